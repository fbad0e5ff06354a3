package main

import (
	"context"
	"flag"
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

const (
	defaultProviderURL = "https://utilitybilling.newberryfl.gov"
	defaultVendorURL   = "https://my-nwbry.sensus-analytics.com"
)

// envOrString returns the environment variable value if set, otherwise returns the default value.
func envOrString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func parseFlags() *Config {
	// Credentials come from the environment (or a .env file); the flags
	// exist so one-off runs can override them. Missing credentials are
	// not validated here, the provider simply rejects the login.
	username := flag.String("username", envOrString("UTILITY_USERNAME", ""), "Utility provider username")
	password := flag.String("password", envOrString("UTILITY_PASSWORD", ""), "Utility provider password")
	account := flag.String("account", envOrString("ACCOUNT_NUMBER", ""), "Utility account number")
	providerURL := flag.String("providerURL", envOrString("PROVIDER_URL", defaultProviderURL), "Utility provider base URL")
	vendorURL := flag.String("vendorURL", envOrString("VENDOR_URL", defaultVendorURL), "AMI analytics vendor base URL")
	outFile := flag.String("out", envOrString("OUTPUT_FILE", "-"), "Output file for the meter list ('-' for stdout)")
	cacheDir := flag.String("cache", envOrString("CACHE_DIR", "disable"), "Directory for HTTP cache ('disable' to disable, empty for temporary directory)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	return &Config{
		Credentials: Credentials{
			Username:      *username,
			Password:      *password,
			AccountNumber: *account,
		},
		ProviderURL:    *providerURL,
		VendorURL:      *vendorURL,
		OutputFile:     *outFile,
		CacheDirectory: *cacheDir,
		Debug:          *debug,
	}
}

func main() {
	// Pick up UTILITY_USERNAME etc. from a local .env when present.
	godotenv.Load()

	config := parseFlags()

	logger := logrus.New()
	if config.Debug {
		logger.SetLevel(logrus.DebugLevel)
	}

	app, err := NewApp(config, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize: %v", err)
	}

	list, err := app.Run(context.Background())
	if err != nil {
		logger.Fatalf("Meter listing failed: %v", err)
	}

	if err := writeMeterList(config.OutputFile, list); err != nil {
		logger.Fatalf("Failed to write meter list: %v", err)
	}
}
