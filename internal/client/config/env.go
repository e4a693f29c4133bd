package config

import "os"

const (
	EnvServerAddr  = "AUTHKEEPER_SERVER"
	EnvSessionPath = "AUTHKEEPER_SESSION"
	EnvDatabaseDSN = "AUTHKEEPER_DATABASE_DSN"
)

var lookupEnv = os.LookupEnv

func parseEnv(cfg *Config) {
	for name, dst := range map[string]*string{
		EnvServerAddr:  &cfg.ServerAddr,
		EnvSessionPath: &cfg.SessionPath,
		EnvDatabaseDSN: &cfg.DatabaseDSN,
	} {
		if v, ok := lookupEnv(name); ok && v != "" {
			*dst = v
		}
	}
}
