package config

import (
	"flag"
	"os"

	"github.com/keyfold/keyfold/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line
// flags. Secrets and lifetimes are deliberately not flag-settable: they
// come from the JSON config file so they never show up in process listings.
//
// Supported flags:
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-d string   PostgreSQL DSN
//	-tls        set the Secure attribute on the refresh cookie
func parseFlags(config *Config) {
	// Filter args to include only the flags handled here.
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-tls"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddr, "a", config.EndpointAddr, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.BoolVar(&config.HTTPSEnabled, "tls", config.HTTPSEnabled, "served over HTTPS (controls cookie Secure)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}
