// Package config handles loading and validating Hostel Gate configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Loading an optional .env file (HOSTELGATE_ENV_FILE, default ".env")
//   - Overriding with HOSTELGATE_* environment variables
//   - Validation of required fields
//
// Security Considerations:
//   - Role credentials and the JWT secret should be set via environment
//     variables (HOSTELGATE_CREDENTIAL_<ROLE>, HOSTELGATE_JWT_SECRET)
//   - Credentials may be stored as Argon2id PHC hashes instead of plaintext
//   - The shipped development credentials must be replaced before deployment;
//     Config.UsesDefaultCredentials reports when they are still in use
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Site.Name)
package config
