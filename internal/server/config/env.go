package config

import "os"

// Environment variables override JSON for values that should not sit in a
// file or show up in a process listing.
const (
	EnvDatabaseDSN      = "AUTHKEEPER_DATABASE_DSN"
	EnvAccessSecretKey  = "AUTHKEEPER_ACCESS_SECRET"
	EnvRefreshSecretKey = "AUTHKEEPER_REFRESH_SECRET"
	EnvSMTPPassword     = "AUTHKEEPER_SMTP_PASSWORD"
)

var lookupEnv = os.LookupEnv

func parseEnv(config *Config) {
	for name, dst := range map[string]*string{
		EnvDatabaseDSN:      &config.DatabaseDSN,
		EnvAccessSecretKey:  &config.AccessSecretKey,
		EnvRefreshSecretKey: &config.RefreshSecretKey,
		EnvSMTPPassword:     &config.SMTPPassword,
	} {
		if v, ok := lookupEnv(name); ok && v != "" {
			*dst = v
		}
	}
}
