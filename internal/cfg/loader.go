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
	// Server configuration
	Port        string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	Timezone    string `long:"timezone" env:"EVENTS_TIMEZONE" default:"America/Los_Angeles" description:"Reference timezone for event dates"`
	WorkerLimit int    `long:"worker-limit" env:"WORKER_LIMIT" default:"3" description:"Maximum concurrent import jobs"`

	// AWS resources
	EventsTable          string `long:"events-table" env:"EVENTS_TABLE" default:"seattle-events" description:"DynamoDB table for stored events"`
	RejectedImportsTable string `long:"rejected-imports-table" env:"REJECTED_IMPORTS_TABLE" default:"seattle-rejected-imports" description:"DynamoDB table for rejected import URLs"`
	SnapshotBucket       string `long:"snapshot-bucket" env:"SNAPSHOT_BUCKET" description:"S3 bucket for published event snapshots (optional)"`

	// External APIs
	OpenAIAPIKey    string `long:"openai-api-key" env:"OPENAI_API_KEY" description:"OpenAI API key (required)" required:"true"`
	OpenAIModel     string `long:"openai-model" env:"OPENAI_MODEL" default:"gpt-4o-mini" description:"OpenAI model for extraction"`
	FirecrawlAPIKey string `long:"firecrawl-api-key" env:"FIRECRAWL_API_KEY" description:"Firecrawl API key (required)" required:"true"`

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
		Port:                 raw.Port,
		Timezone:             raw.Timezone,
		WorkerLimit:          raw.WorkerLimit,
		EventsTable:          raw.EventsTable,
		RejectedImportsTable: raw.RejectedImportsTable,
		SnapshotBucket:       raw.SnapshotBucket,
		OpenAIAPIKey:         raw.OpenAIAPIKey,
		OpenAIModel:          raw.OpenAIModel,
		FirecrawlAPIKey:      raw.FirecrawlAPIKey,
		Debug:                raw.Debug,
		Version:              GetVersion(),
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
