package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/proofpulse/internal/model"
)

// Version is set at build time
var Version = "v0.1.0"

var (
	cfgFile string
	verbose bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "proofpulse",
	Short: "ProofPulse - claim verification pipeline",
	Long: `ProofPulse checks factual claims in text, web pages, PDFs and video.

Each job walks a fixed pipeline: text extraction, claim extraction,
evidence retrieval, review scoring with a fallback reviewer, and a
deterministic final score per claim.

Run 'proofpulse serve' for the HTTP API, or 'proofpulse check' and
'proofpulse batch' to verify input from the command line.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("proofpulse %s\n", Version)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default: $HOME/.proofpulse/config.yaml)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "verbose output (debug logging)")
	flags.String("store", "", "job store backend (redis, memory, sqlite)")
	flags.String("store-url", "", "redis URL for the redis backend")
	flags.String("llm-provider", "", "LLM provider (openai, anthropic, ollama, gemini; empty for offline heuristics)")
	flags.String("llm-model", "", "LLM model name")
	flags.String("log-format", "", "log format (console, json)")
	flags.String("http-proxy", "", "HTTP proxy URL (overrides HTTP_PROXY env var)")
	flags.String("https-proxy", "", "HTTPS proxy URL (overrides HTTPS_PROXY env var)")

	// Bind flags to viper
	for key, flag := range map[string]string{
		"store.backend":    "store",
		"store.url":        "store-url",
		"llm.provider":     "llm-provider",
		"llm.model":        "llm-model",
		"logging.format":   "log-format",
		"http.http_proxy":  "http-proxy",
		"http.https_proxy": "https-proxy",
	} {
		_ = viper.BindPFlag(key, flags.Lookup(flag))
	}

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
}

// initConfig reads in config file and ENV variables
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			return
		}

		viper.AddConfigPath(filepath.Join(home, ".proofpulse"))
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// Read in environment variables that match PROOFPULSE_*, with
	// nested keys joined by underscores (PROOFPULSE_STORE_BACKEND)
	viper.SetEnvPrefix("PROOFPULSE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	registerDefaults(viper.GetViper())

	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// registerDefaults makes every config key known to viper so that
// AutomaticEnv can override keys absent from the config file
func registerDefaults(v *viper.Viper) {
	data, err := yaml.Marshal(model.DefaultConfig())
	if err != nil {
		return
	}
	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return
	}
	setDefaults(v, "", tree)

	// Secrets are omitted from the marshaled defaults
	for _, key := range []string{
		"llm.api_key", "llm.base_url", "primary.api_key", "primary.base_url",
		"transcription.api_key", "http.http_proxy", "http.https_proxy",
		"http.no_proxy", "logging.debug_job_id",
	} {
		_ = v.BindEnv(key)
	}
}

func setDefaults(v *viper.Viper, prefix string, tree map[string]any) {
	for k, val := range tree {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if sub, ok := val.(map[string]any); ok {
			setDefaults(v, key, sub)
			continue
		}
		v.SetDefault(key, val)
	}
}

// loadConfig merges defaults, config file, environment and flags
func loadConfig() (*model.Config, error) {
	cfg := model.DefaultConfig()
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	applyProviderEnv(cfg)
	if verbose {
		cfg.Logging.Level = "debug"
	}
	return cfg, nil
}

// applyProviderEnv fills provider credentials from their conventional
// environment variables when the config leaves them empty
func applyProviderEnv(cfg *model.Config) {
	if cfg.LLM.APIKey == "" {
		switch strings.ToLower(cfg.LLM.Provider) {
		case "openai":
			cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
		case "anthropic", "claude":
			cfg.LLM.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		case "gemini", "google":
			cfg.LLM.APIKey = os.Getenv("GEMINI_API_KEY")
		}
	}
	if cfg.LLM.BaseURL == "" && strings.EqualFold(cfg.LLM.Provider, "ollama") {
		cfg.LLM.BaseURL = os.Getenv("OLLAMA_BASE_URL")
	}
	if cfg.Primary.APIKey == "" {
		cfg.Primary.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	if cfg.Transcription.APIKey == "" {
		cfg.Transcription.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.Logging.DebugJobID == "" {
		cfg.Logging.DebugJobID = os.Getenv("DEBUG_JOB_ID")
	}
}

// newLogger builds the process logger from the logging section
func newLogger(lc model.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(lc.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", lc.Level, err)
	}

	var zc zap.Config
	switch strings.ToLower(lc.Format) {
	case "json":
		zc = zap.NewProductionConfig()
	case "console", "":
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	default:
		return nil, fmt.Errorf("invalid log format %q (supported: console, json)", lc.Format)
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = []string{"stderr"}
	zc.ErrorOutputPaths = []string{"stderr"}
	return zc.Build()
}

// setup loads config and builds the logger for a command
func setup() (*model.Config, *zap.Logger, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	logger, err := newLogger(cfg.Logging)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}
