// Package config loads runtime configuration for the authctl CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file passed with --config.
//  3. Environment variables (AUTHKEEPER_SERVER, AUTHKEEPER_SESSION, AUTHKEEPER_DATABASE_DSN).
//  4. Command-line flags, bound by the cobra root command.
//
// # JSON schema
//
// Durations accept strings like "10s" or integer nanoseconds:
//
//	{
//	  "server_addr": "127.0.0.1:50051",
//	  "session_path": "/home/me/.authkeeper/session.db",
//	  "database_dsn": "postgres://...",
//	  "timeout": "10s"
//	}
package config
