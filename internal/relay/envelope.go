package relay

import "encoding/json"

// Envelope is the published form of one serial line.
// Consumers parse by key; field order is not significant.
type Envelope struct {
	Message  string `json:"message"`
	Sequence uint64 `json:"sequence"`
}

// Marshal encodes the envelope as a UTF-8 JSON object.
func (e Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// ParseEnvelope decodes a payload produced by Marshal.
func ParseEnvelope(payload []byte) (Envelope, error) {
	var e Envelope
	err := json.Unmarshal(payload, &e)
	return e, err
}
