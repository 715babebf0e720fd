// Package serial reads newline-terminated text from a serial device.
//
// A Reader wraps any io.ReadCloser; Open builds one over a real port using
// go.bug.st/serial. Lines are returned without their terminator. Every
// failure, including end of stream, is reported as ErrIO so the relay can
// treat the device as gone.
//
// Usage:
//
//	reader, err := serial.Open(cfg.Serial)
//	if err != nil {
//	    return err
//	}
//	defer reader.Close()
//
//	line, err := reader.ReadLine()
package serial
