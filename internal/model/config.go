package model

import "time"

// Config is the complete process configuration
type Config struct {
	Server        ServerConfig        `yaml:"server" mapstructure:"server"`
	Store         StoreConfig         `yaml:"store" mapstructure:"store"`
	Pipeline      PipelineConfig      `yaml:"pipeline" mapstructure:"pipeline"`
	LLM           LLMConfig           `yaml:"llm" mapstructure:"llm"`
	Primary       PrimaryConfig       `yaml:"primary" mapstructure:"primary"`
	HTTP          HTTPConfig          `yaml:"http" mapstructure:"http"`
	RateLimiting  RateLimitConfig     `yaml:"rate_limiting" mapstructure:"rate_limiting"`
	Sources       SourceCheckConfig   `yaml:"sources" mapstructure:"sources"`
	Transcription TranscriptionConfig `yaml:"transcription" mapstructure:"transcription"`
	Concurrency   ConcurrencyConfig   `yaml:"concurrency" mapstructure:"concurrency"`
	Logging       LoggingConfig       `yaml:"logging" mapstructure:"logging"`
}

// ServerConfig controls the HTTP API
type ServerConfig struct {
	Addr           string `yaml:"addr" mapstructure:"addr"`
	CORSOrigin     string `yaml:"cors_origin" mapstructure:"cors_origin"`
	UploadDir      string `yaml:"upload_dir" mapstructure:"upload_dir"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes" mapstructure:"max_upload_bytes"`
}

// StoreConfig selects and configures the job store backend
type StoreConfig struct {
	Backend          string        `yaml:"backend" mapstructure:"backend"` // redis, memory, sqlite
	URL              string        `yaml:"url" mapstructure:"url"`         // redis://host:port/db
	Path             string        `yaml:"path" mapstructure:"path"`       // sqlite database file
	TTL              time.Duration `yaml:"ttl" mapstructure:"ttl"`
	FallbackToMemory bool          `yaml:"fallback_to_memory" mapstructure:"fallback_to_memory"`
}

// PipelineConfig tunes the job pipeline
type PipelineConfig struct {
	MaxClaims             int           `yaml:"max_claims" mapstructure:"max_claims"`
	ContextSnippetChars   int           `yaml:"context_snippet_chars" mapstructure:"context_snippet_chars"`
	ClaimWorkers          int           `yaml:"claim_workers" mapstructure:"claim_workers"`
	PrimaryScoringEnabled bool          `yaml:"primary_scoring_enabled" mapstructure:"primary_scoring_enabled"`
	LockTTL               time.Duration `yaml:"lock_ttl" mapstructure:"lock_ttl"`
}

// LLMConfig configures the provider used for claims, evidence and fallback scoring
type LLMConfig struct {
	Provider  string `yaml:"provider" mapstructure:"provider"` // openai, anthropic, ollama, gemini, "" (stub)
	Model     string `yaml:"model" mapstructure:"model"`
	APIKey    string `yaml:"api_key,omitempty" mapstructure:"api_key"`
	BaseURL   string `yaml:"base_url,omitempty" mapstructure:"base_url"`
	Timeout   int    `yaml:"timeout" mapstructure:"timeout"` // seconds
	MaxTokens int    `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// PrimaryConfig configures the primary (Gemini) review scorer
type PrimaryConfig struct {
	APIKey  string `yaml:"api_key,omitempty" mapstructure:"api_key"`
	Model   string `yaml:"model" mapstructure:"model"`
	BaseURL string `yaml:"base_url,omitempty" mapstructure:"base_url"`
	Timeout int    `yaml:"timeout" mapstructure:"timeout"` // seconds
}

// HTTPConfig controls outbound fetches for URL input
type HTTPConfig struct {
	Timeout       time.Duration `yaml:"timeout" mapstructure:"timeout"`
	UserAgent     string        `yaml:"user_agent" mapstructure:"user_agent"`
	MaxBodyBytes  int64         `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	RespectRobots bool          `yaml:"respect_robots" mapstructure:"respect_robots"`
	HTTPProxy     string        `yaml:"http_proxy,omitempty" mapstructure:"http_proxy"`
	HTTPSProxy    string        `yaml:"https_proxy,omitempty" mapstructure:"https_proxy"`
	NoProxy       string        `yaml:"no_proxy,omitempty" mapstructure:"no_proxy"`
}

// RateLimitConfig controls per-domain fetch rate
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	BurstSize         int     `yaml:"burst_size" mapstructure:"burst_size"`
}

// SourceCheckConfig controls link checking and authority ranking of the
// sources cited during evidence retrieval
type SourceCheckConfig struct {
	Enabled          bool          `yaml:"enabled" mapstructure:"enabled"`
	Timeout          time.Duration `yaml:"timeout" mapstructure:"timeout"`
	Workers          int           `yaml:"workers" mapstructure:"workers"`
	PrimaryDomains   []string      `yaml:"primary_domains" mapstructure:"primary_domains"`
	SecondaryDomains []string      `yaml:"secondary_domains" mapstructure:"secondary_domains"`
}

// TranscriptionConfig controls video transcription
type TranscriptionConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Model   string `yaml:"model" mapstructure:"model"`
	APIKey  string `yaml:"api_key,omitempty" mapstructure:"api_key"`
}

// ConcurrencyConfig controls the background job pool
type ConcurrencyConfig struct {
	Workers   int `yaml:"workers" mapstructure:"workers"`
	QueueSize int `yaml:"queue_size" mapstructure:"queue_size"`
}

// LoggingConfig controls the zap logger
type LoggingConfig struct {
	Level      string `yaml:"level" mapstructure:"level"`   // debug, info, warn, error
	Format     string `yaml:"format" mapstructure:"format"` // json, console
	DebugJobID string `yaml:"debug_job_id,omitempty" mapstructure:"debug_job_id"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:           ":8000",
			CORSOrigin:     "*",
			UploadDir:      "uploads",
			MaxUploadBytes: 100 << 20,
		},
		Store: StoreConfig{
			Backend:          "redis",
			URL:              "redis://localhost:6379/0",
			Path:             "proofpulse.db",
			TTL:              time.Hour,
			FallbackToMemory: true,
		},
		Pipeline: PipelineConfig{
			MaxClaims:             5,
			ContextSnippetChars:   500,
			ClaimWorkers:          1,
			PrimaryScoringEnabled: true,
			LockTTL:               10 * time.Minute,
		},
		LLM: LLMConfig{
			Provider:  "",
			Timeout:   60,
			MaxTokens: 2000,
		},
		Primary: PrimaryConfig{
			Model:   "gemini-2.0-flash",
			Timeout: 60,
		},
		HTTP: HTTPConfig{
			Timeout:       30 * time.Second,
			UserAgent:     "ProofPulse/0.1 (+https://github.com/ppiankov/proofpulse)",
			MaxBodyBytes:  5 << 20,
			RespectRobots: true,
		},
		RateLimiting: RateLimitConfig{
			RequestsPerSecond: 2,
			BurstSize:         5,
		},
		Sources: SourceCheckConfig{
			Enabled: true,
			Timeout: 10 * time.Second,
			Workers: 8,
			PrimaryDomains: []string{
				"who.int", "un.org", "worldbank.org", "imf.org", "oecd.org",
				"europa.eu", "doi.org", "nature.com", "science.org", "thelancet.com",
				"nejm.org", "pubmed.ncbi.nlm.nih.gov", "ons.gov.uk", "legislation.gov.uk",
			},
			SecondaryDomains: []string{
				"reuters.com", "apnews.com", "bbc.com", "bbc.co.uk", "nytimes.com",
				"theguardian.com", "ft.com", "economist.com", "wikipedia.org", "britannica.com",
			},
		},
		Transcription: TranscriptionConfig{
			Enabled: false,
			Model:   "whisper-1",
		},
		Concurrency: ConcurrencyConfig{
			Workers:   4,
			QueueSize: 64,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

