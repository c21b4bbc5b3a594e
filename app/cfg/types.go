package cfg

type Cfg struct {
	// Database configuration
	DBPath string

	// HTTP server configuration
	Port         string
	APIAccessKey string

	// Mailtank API configuration
	MailtankURL string

	// Crawler configuration
	UserAgent         string
	HostConcurrency   int
	DefaultCrawlDelay int
	FetchTimeout      int

	// Job scheduling configuration (seconds)
	WorkerCount     int
	PollInterval    int
	SendInterval    int
	SyncInterval    int
	CleanupInterval int

	// Dispatch configuration
	FirstSendStart string
	FirstSendEnd   string

	// Application metadata
	Debug   bool
	Version string
}
