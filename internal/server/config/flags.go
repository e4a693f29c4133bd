package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/flagx"
)

// parseFlags populates server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string     gRPC bind address (e.g., ":50051")
//	-m string     metrics bind address, empty disables
//	-d string     PostgreSQL DSN
//	-s string     access token HMAC key
//	-k string     refresh token HMAC key
//	-t int        access token validity, minutes
//	-r int        refresh token validity, minutes
//	-x int        reset token validity, minutes
//	-o duration   per-operation timeout (e.g., "10s")
//	-w duration   mail send timeout
//	-e string     SMTP server address (host:port)
//	-u string     SMTP user
//	-p string     SMTP password
//	-f string     mail sender address
//	-l string     reset link base URL
//	-v string     log level
//
// Token lifetimes are given in whole minutes and converted to time.Duration.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{
		"-a", "-m", "-d", "-s", "-k", "-t", "-r", "-x", "-o", "-w", "-e", "-u", "-p", "-f", "-l", "-v",
	})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrGRPC, "a", config.EndpointAddrGRPC, "address and port to run server")
	fs.StringVar(&config.EndpointAddrMetrics, "m", config.EndpointAddrMetrics, "address and port to expose metrics")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.AccessSecretKey, "s", config.AccessSecretKey, "access token secret key")
	fs.StringVar(&config.RefreshSecretKey, "k", config.RefreshSecretKey, "refresh token secret key")

	accessMinutes := fs.Int("t", int(config.AccessTokenValidityDuration.Minutes()), "access token validity (in minutes)")
	refreshMinutes := fs.Int("r", int(config.RefreshTokenValidityDuration.Minutes()), "refresh token validity (in minutes)")
	resetMinutes := fs.Int("x", int(config.ResetTokenValidityDuration.Minutes()), "reset token validity (in minutes)")

	fs.DurationVar(&config.OperationTimeout, "o", config.OperationTimeout, "per-operation timeout")
	fs.DurationVar(&config.MailTimeout, "w", config.MailTimeout, "mail send timeout")
	fs.StringVar(&config.SMTPAddr, "e", config.SMTPAddr, "SMTP server address")
	fs.StringVar(&config.SMTPUser, "u", config.SMTPUser, "SMTP user")
	fs.StringVar(&config.SMTPPassword, "p", config.SMTPPassword, "SMTP password")
	fs.StringVar(&config.MailFrom, "f", config.MailFrom, "mail sender address")
	fs.StringVar(&config.ResetURLBase, "l", config.ResetURLBase, "reset link base URL")
	fs.StringVar(&config.LogLevel, "v", config.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.AccessTokenValidityDuration = time.Duration(*accessMinutes) * time.Minute
	config.RefreshTokenValidityDuration = time.Duration(*refreshMinutes) * time.Minute
	config.ResetTokenValidityDuration = time.Duration(*resetMinutes) * time.Minute
}
