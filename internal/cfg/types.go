package cfg

// Cfg holds the resolved runtime configuration.
type Cfg struct {
	// Server configuration
	Port        string
	Timezone    string
	WorkerLimit int

	// AWS resources
	EventsTable          string
	RejectedImportsTable string
	SnapshotBucket       string

	// External APIs
	OpenAIAPIKey    string
	OpenAIModel     string
	FirecrawlAPIKey string

	// Application metadata
	Debug   bool
	Version string
}
