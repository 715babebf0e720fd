// Package config handles loading and validating serial bridge configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//
// It is the only package that reads the process environment. Everything else
// receives the resulting *Config (or one of its sections) explicitly.
//
// Security Considerations:
//   - Credentials and certificate paths should be set via environment variables
//   - The private key file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if errors.Is(err, config.ErrInvalidConfig) {
//	    // missing or malformed parameter
//	}
//	fmt.Println(cfg.Serial.Device, cfg.MQTT.Topic)
package config
