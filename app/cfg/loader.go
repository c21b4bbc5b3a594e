package cfg

import (
	"cmp"
	"fmt"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Database configuration
	DBPath string `long:"db-path" env:"DB_PATH" default:"./rsstank.db" description:"Path to the SQLite database file"`

	// HTTP server configuration
	Port         string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	APIAccessKey string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for admin endpoints (optional)"`

	// Mailtank API configuration
	MailtankURL string `long:"mailtank-url" env:"MAILTANK_URL" default:"https://api.mailtank.ru/" description:"Base URL of the Mailtank API"`

	// Crawler configuration
	UserAgent         string `long:"user-agent" env:"USER_AGENT" default:"rsstank/1.0" description:"User agent string for HTTP requests"`
	HostConcurrency   int    `long:"host-concurrency" env:"HOST_CONCURRENCY" default:"20" description:"Maximum number of hosts polled concurrently"`
	DefaultCrawlDelay int    `long:"default-crawl-delay" env:"DEFAULT_CRAWL_DELAY" default:"1" description:"Minimum delay between requests to the same host in seconds"`
	FetchTimeout      int    `long:"fetch-timeout" env:"FETCH_TIMEOUT" default:"30" description:"HTTP fetch timeout in seconds"`

	// Job scheduling configuration
	WorkerCount     int `long:"worker-count" env:"WORKER_COUNT" default:"2" description:"Number of background job workers"`
	PollInterval    int `long:"poll-interval" env:"POLL_INTERVAL" default:"600" description:"Feed polling interval in seconds"`
	SendInterval    int `long:"send-interval" env:"SEND_INTERVAL" default:"300" description:"Dispatch sweep interval in seconds"`
	SyncInterval    int `long:"sync-interval" env:"SYNC_INTERVAL" default:"900" description:"Tag sync interval in seconds"`
	CleanupInterval int `long:"cleanup-interval" env:"CLEANUP_INTERVAL" default:"86400" description:"Sent item cleanup interval in seconds"`

	// Dispatch configuration
	FirstSendStart string `long:"first-send-start" env:"FIRST_SEND_START" default:"09:00" description:"Default first-send window start, local time of day (HH:MM)"`
	FirstSendEnd   string `long:"first-send-end" env:"FIRST_SEND_END" default:"21:00" description:"Default first-send window end, local time of day (HH:MM)"`

	// Application metadata
	Debug bool `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

var globalCfg *Cfg

func Load() (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		DBPath:            raw.DBPath,
		Port:              raw.Port,
		APIAccessKey:      raw.APIAccessKey,
		MailtankURL:       raw.MailtankURL,
		UserAgent:         raw.UserAgent,
		HostConcurrency:   raw.HostConcurrency,
		DefaultCrawlDelay: raw.DefaultCrawlDelay,
		FetchTimeout:      raw.FetchTimeout,
		WorkerCount:       raw.WorkerCount,
		PollInterval:      raw.PollInterval,
		SendInterval:      raw.SendInterval,
		SyncInterval:      raw.SyncInterval,
		CleanupInterval:   raw.CleanupInterval,
		FirstSendStart:    raw.FirstSendStart,
		FirstSendEnd:      raw.FirstSendEnd,
		Debug:             raw.Debug,
		Version:           GetVersion(),
	}

	globalCfg = cfg

	return cfg, nil
}

func Get() *Cfg {
	if globalCfg == nil {
		panic("configuration not loaded - call cfg.Load() first")
	}
	return globalCfg
}

// Set replaces the global configuration. Intended for tests.
func Set(c *Cfg) {
	globalCfg = c
}
