package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"estatescout-backend/lib/browser"
	"estatescout-backend/lib/captcha"
	"estatescout-backend/lib/configutil"
	"estatescout-backend/lib/restyutil"
	"estatescout-backend/lib/scrapers/registry"
	"estatescout-backend/lib/telemetry"
	"estatescout-backend/services/pipeline"

	"github.com/spf13/cobra"
)

type Config struct {
	PortalBaseUrl    string `json:"portal_base_url"`
	RemoteBrowserUrl string `json:"remote_browser_url"`
	Headful          bool   `json:"headful"`
	UserAgent        string `json:"user_agent"`

	SolverBaseUrl string `json:"solver_base_url"`
	SolverApiKey  string `json:"solver_api_key"`

	// user-facing names -> portal select values
	Counties    map[string]string `json:"counties"`
	Proceedings map[string]string `json:"proceedings"`

	MinEstateValue     float64 `json:"min_estate_value"`
	RetryAttempts      int     `json:"retry_attempts"`
	FilingDelaySeconds int     `json:"filing_delay_seconds"`
}

var (
	county     *string
	proceeding *string
	fromDate   *string
	toDate     *string
	minValue   *float64
	debug      *bool
)

var rootCmd = &cobra.Command{
	Use:   "estatescout",
	Short: "estatescout searches the Register of Wills portal for qualifying estate filings.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if *debug {
			telemetry.InitSlog(true)
			registry.SetRestyInstrumentOutput(restyutil.NewFilesystemOutput(".dev/resty/registry"))
		}
	},
}

func init() {
	county = rootCmd.PersistentFlags().String("county", "", "County to search.")
	proceeding = rootCmd.PersistentFlags().String("proceeding", "Regular Estate", "Proceeding type to search.")
	fromDate = rootCmd.PersistentFlags().String("from", "", "Start of the filing date range (MM/DD/YYYY).")
	toDate = rootCmd.PersistentFlags().String("to", "", "End of the filing date range (MM/DD/YYYY).")
	minValue = rootCmd.PersistentFlags().Float64("min", -1, "Minimum estate value; overrides the configured default.")
	debug = rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging and record download traffic.")
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func readConfig() (Config, error) {
	cfg, err := configutil.ReadConfig[Config]("config.json5")
	if err != nil {
		return Config{}, fmt.Errorf("%w: %v", pipeline.ErrConfiguration, err)
	}
	if cfg.PortalBaseUrl == "" {
		return Config{}, fmt.Errorf("%w: portal_base_url is required", pipeline.ErrConfiguration)
	}
	return cfg, nil
}

func queryFromFlags(cfg Config) pipeline.Query {
	min := cfg.MinEstateValue
	if *minValue >= 0 {
		min = *minValue
	}
	return pipeline.Query{
		County:         *county,
		ProceedingType: *proceeding,
		FromDate:       *fromDate,
		ToDate:         *toDate,
		MinEstateValue: min,
	}
}

// connect builds the full scraping stack: browser session, challenge
// solver, registry client. The caller owns closing the session.
func connect(ctx context.Context, cfg Config, events pipeline.EventSink) (*pipeline.Service, *browser.Session, error) {
	session, err := browser.Connect(ctx, browser.Options{
		RemoteURL: cfg.RemoteBrowserUrl,
		Headful:   cfg.Headful,
		UserAgent: cfg.UserAgent,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", pipeline.ErrConnection, err)
	}

	solver, err := captcha.NewClient(captcha.ClientOptions{
		BaseUrl: cfg.SolverBaseUrl,
		APIKey:  cfg.SolverApiKey,
	})
	if err != nil {
		session.Close()
		return nil, nil, fmt.Errorf("%w: %v", pipeline.ErrConfiguration, err)
	}

	portal, err := registry.NewClient(registry.Options{
		BaseUrl: cfg.PortalBaseUrl,
		Session: session,
		Solver:  solver,
	})
	if err != nil {
		session.Close()
		return nil, nil, fmt.Errorf("%w: %v", pipeline.ErrConfiguration, err)
	}

	service, err := pipeline.NewService(pipeline.Options{
		Portal:      portal,
		Counties:    cfg.Counties,
		Proceedings: cfg.Proceedings,
		Events:      events,
		Attempts:    cfg.RetryAttempts,
		FilingDelay: time.Duration(cfg.FilingDelaySeconds) * time.Second,
	})
	if err != nil {
		session.Close()
		return nil, nil, err
	}
	return service, session, nil
}
