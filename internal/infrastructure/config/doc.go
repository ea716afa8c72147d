// Package config loads and validates the knxipd configuration.
//
// Values are resolved in three layers: hardcoded defaults, then the
// YAML file, then KNXIP_* environment variables. Validation runs after
// all three, so an env override can both fix and break a config.
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    return err
//	}
//	fmt.Println(cfg.GatewayAddress())
//
// Secrets (broker password, InfluxDB token) belong in environment
// variables rather than the file; either way keep the file at 0600.
package config
