// Package config handles loading and validating the edge agent configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling (the session retry policy)
//   - Watching the file for runtime changes
//
// Security Considerations:
//   - The provisioning secret, WiFi passphrase and access token should be set
//     via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.ThingsBoard.Host)
package config
