package mqtt

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// maxTopicLength is the MQTT limit on a UTF-8 encoded topic string.
const maxTopicLength = 65535

// healthSuffix is appended to the status topic for periodic health reports.
const healthSuffix = "health"

// Topics provides builders for the bridge's auxiliary topics.
//
//	topics := mqtt.Topics{}
//	topics.Health("boards/board-01/status")
//	// Returns: "boards/board-01/status/health"
type Topics struct{}

// Health returns the topic for periodic relay health reports.
// An empty status topic yields an empty health topic (reporting disabled).
func (Topics) Health(statusTopic string) string {
	if statusTopic == "" {
		return ""
	}
	return fmt.Sprintf("%s/%s", strings.TrimSuffix(statusTopic, "/"), healthSuffix)
}

// ValidateTopic checks a topic name used for publishing.
//
// Topic names must be non-empty valid UTF-8, contain no NUL characters and
// no wildcards, and fit the MQTT length limit.
func ValidateTopic(topic string) error {
	if topic == "" {
		return fmt.Errorf("%w: topic cannot be empty", ErrInvalidTopic)
	}
	if err := checkTopicString(topic); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidTopic, err)
	}
	if strings.ContainsAny(topic, "+#") {
		return fmt.Errorf("%w: wildcards not allowed in %q", ErrInvalidTopic, topic)
	}
	return nil
}

// ValidateFilter checks a topic filter used for subscribing.
//
// Wildcards must occupy a whole level:
//   - + matches exactly one level and may appear anywhere
//   - # matches any remaining levels and must be last
func ValidateFilter(filter string) error {
	if filter == "" {
		return fmt.Errorf("%w: topic cannot be empty", ErrInvalidTopic)
	}
	if err := checkTopicString(filter); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidFilter, err)
	}

	levels := strings.Split(filter, "/")
	for i, level := range levels {
		switch {
		case level == "#":
			if i != len(levels)-1 {
				return fmt.Errorf("%w: '#' must be the last level in %q", ErrInvalidFilter, filter)
			}
		case level == "+":
		case strings.ContainsAny(level, "+#"):
			return fmt.Errorf("%w: wildcard must occupy a whole level in %q", ErrInvalidFilter, filter)
		}
	}
	return nil
}

// checkTopicString applies the rules shared by topic names and filters.
func checkTopicString(s string) error {
	if len(s) > maxTopicLength {
		return fmt.Errorf("length %d exceeds %d bytes", len(s), maxTopicLength)
	}
	if !utf8.ValidString(s) {
		return fmt.Errorf("not valid UTF-8")
	}
	if strings.ContainsRune(s, 0) {
		return fmt.Errorf("contains NUL character")
	}
	return nil
}
