package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"os"
	"path"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/publicsuffix"
)

// Config contains configuration for the application.
type Config struct {
	Credentials    Credentials
	ProviderURL    string
	VendorURL      string
	OutputFile     string
	CacheDirectory string
	Debug          bool
}

// runState tracks how far the handshake chain has advanced. Meter
// records only exist once a run has reached stateVendorReady.
type runState int

const (
	stateInit runState = iota
	stateBootstrapped
	stateAuthenticated
	stateTokenized
	stateVendorReady
	stateQuerying
	stateDone
	stateFailed
)

func (s runState) String() string {
	switch s {
	case stateInit:
		return "Init"
	case stateBootstrapped:
		return "Bootstrapped"
	case stateAuthenticated:
		return "Authenticated"
	case stateTokenized:
		return "Tokenized"
	case stateVendorReady:
		return "VendorReady"
	case stateQuerying:
		return "Querying"
	case stateDone:
		return "Done"
	case stateFailed:
		return "Failed"
	}
	return "Unknown"
}

// App manages application dependencies and logic.
type App struct {
	Config   *Config
	Logger   *logrus.Logger
	Client   *http.Client
	Provider *ProviderService
	Vendor   *VendorService

	state runState
}

func NewApp(config *Config, logger *logrus.Logger) (*App, error) {
	rt := http.RoundTripper(http.DefaultTransport)

	if config.CacheDirectory != "disable" {
		cacheDir := config.CacheDirectory
		if cacheDir == "" {
			cacheDir = os.TempDir()
		}
		if err := os.MkdirAll(cacheDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create cache dir: %w", err)
		}

		rt = &CachingRoundTripper{
			UnderlyingTransport: http.DefaultTransport, CacheDir: path.Clean(cacheDir),
		}
		logger.WithField("dir", cacheDir).Info("HTTP caching enabled")
	}

	return newAppWithTransport(config, logger, rt)
}

func newAppWithTransport(config *Config, logger *logrus.Logger, rt http.RoundTripper) (*App, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	// One client serves both portals: the jar is the session state the
	// whole handshake accumulates into.
	client := &http.Client{Transport: rt, Jar: jar}

	return &App{
		Config:   config,
		Logger:   logger,
		Client:   client,
		Provider: NewProviderService(config.ProviderURL, client, logger),
		Vendor:   NewVendorService(config.VendorURL, client, logger),
		state:    stateInit,
	}, nil
}

func (app *App) advance(next runState) {
	app.Logger.WithFields(logrus.Fields{
		"from": app.state.String(),
		"to":   next.String(),
	}).Debug("Pipeline state change")
	app.state = next
}

func (app *App) fail(err error) error {
	app.advance(stateFailed)
	return err
}

// Run drives the handshake chain and collects the meter inventory.
// Any failure before the per-type queries aborts the run; a single
// type's failure only costs that type.
func (app *App) Run(ctx context.Context) (*MeterList, error) {
	app.Logger.Info("Creating a session with the local utility provider...")
	if err := app.Provider.Bootstrap(ctx); err != nil {
		return nil, app.fail(err)
	}
	app.advance(stateBootstrapped)

	app.Logger.Info("Authenticating with supplied username and password...")
	if err := app.Provider.Authenticate(ctx, app.Config.Credentials); err != nil {
		return nil, app.fail(fmt.Errorf("failed to authenticate with the local utility provider: %w", err))
	}
	app.advance(stateAuthenticated)

	app.Logger.Info("Getting SSO token for the AMI portal from the local utility provider...")
	token, err := app.Provider.FetchAccessToken(ctx)
	if err != nil {
		return nil, app.fail(fmt.Errorf("failed to get an access token from the local utility provider: %w", err))
	}
	app.advance(stateTokenized)

	app.Logger.Info("Starting session with the AMI portal using token...")
	if err := app.Vendor.InitSession(ctx, token); err != nil {
		return nil, app.fail(fmt.Errorf("failed to start a session with the data vendor: %w", err))
	}
	app.advance(stateVendorReady)

	if app.Config.Debug {
		if details, err := app.Vendor.AccountDetails(ctx); err != nil {
			app.Logger.WithError(err).Debug("Could not fetch account details")
		} else {
			app.Logger.WithField("details", details).Debug("Account details")
		}
	}

	app.advance(stateQuerying)
	list := &MeterList{Meters: []MeterRecord{}}
	for _, meterType := range MeterTypes {
		app.Logger.Infof("Getting all %s meters on account %s...", meterType, app.Config.Credentials.AccountNumber)
		meters, err := app.Vendor.MetersByType(ctx, token, app.Config.Credentials.AccountNumber, meterType)
		if err != nil {
			// One type's failure is indistinguishable from an empty
			// listing; the remaining types still get queried.
			app.Logger.WithError(err).WithField("meterType", meterType).Debug("Meter query failed")
			continue
		}
		if len(meters) == 0 {
			app.Logger.Debugf("No meters of type %s found on the account.", meterType)
			continue
		}
		app.Logger.Infof("Found %d meters of type %s on the account.", len(meters), meterType)
		list.Meters = append(list.Meters, meters...)
	}
	app.advance(stateDone)

	return list, nil
}
