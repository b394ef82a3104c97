// Command kwlq serves KWLQ phase analysis and phase-aware prompt generation.
package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/api996/AIHeuristicLearningApp-sub001/internal/api"
	"github.com/api996/AIHeuristicLearningApp-sub001/internal/genai"
	"github.com/api996/AIHeuristicLearningApp-sub001/internal/phase"
	"github.com/api996/AIHeuristicLearningApp-sub001/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for kwlq state data
	DefaultStateDir = "/var/lib/kwlq"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "kwlq.db"
	// DefaultProviders is the default provider priority order
	DefaultProviders = "deepseek,gemini,openai,anthropic"
	// DefaultStatsSchedule is the default cron schedule of the stats report
	DefaultStatsSchedule = "@every 5m"
)

func main() {
	config := loadEnvironmentConfig()
	if err := newRootCmd(&config).Execute(); err != nil {
		slog.Error("kwlq failed", "error", err)
		os.Exit(1)
	}
}

// Config holds environment configuration
type Config struct {
	OpenAIKey       string
	AnthropicKey    string
	GeminiKey       string
	DeepSeekKey     string
	Providers       string
	ProviderTimeout time.Duration
	ParamPrefix     string
	DatabaseURL     string
	StateDir        string
	APIAddr         string
	PromptConfig    string
	StatsSchedule   string
	Debug           bool
}

// initializeLogger sets up structured logging.
func initializeLogger(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		OpenAIKey:       os.Getenv("OPENAI_API_KEY"),
		AnthropicKey:    os.Getenv("ANTHROPIC_API_KEY"),
		GeminiKey:       os.Getenv("GEMINI_API_KEY"),
		DeepSeekKey:     os.Getenv("DEEPSEEK_API_KEY"),
		Providers:       util.StringEnv("PHASE_PROVIDERS", DefaultProviders),
		ProviderTimeout: util.ParseDurationEnv("PHASE_PROVIDER_TIMEOUT", phase.DefaultProviderTimeout),
		ParamPrefix:     os.Getenv("SSM_PARAM_PREFIX"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		StateDir:        util.StringEnv("KWLQ_STATE_DIR", DefaultStateDir),
		APIAddr:         util.StringEnv("API_ADDR", api.DefaultAddr),
		PromptConfig:    os.Getenv("PROMPT_CONFIG"),
		StatsSchedule:   util.StringEnv("STATS_REPORT_SCHEDULE", DefaultStatsSchedule),
		Debug:           util.ParseBoolEnv("KWLQ_DEBUG", false),
	}

	slog.Debug("environment variables loaded",
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"ANTHROPIC_API_KEY_SET", config.AnthropicKey != "",
		"GEMINI_API_KEY_SET", config.GeminiKey != "",
		"DEEPSEEK_API_KEY_SET", config.DeepSeekKey != "",
		"PHASE_PROVIDERS", config.Providers,
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"KWLQ_STATE_DIR", config.StateDir,
		"API_ADDR", config.APIAddr)

	return config
}

// resolveDSN defaults to SQLite in the state directory when no database is configured.
func resolveDSN(config Config) string {
	if config.DatabaseURL != "" {
		return config.DatabaseURL
	}
	return filepath.Join(config.StateDir, DefaultDBFileName)
}

// providerConfigs lists the providers in priority order with their keys.
func providerConfigs(config Config) []genai.ProviderConfig {
	keys := map[string]string{
		genai.ProviderOpenAI:    config.OpenAIKey,
		genai.ProviderAnthropic: config.AnthropicKey,
		genai.ProviderGemini:    config.GeminiKey,
		genai.ProviderDeepSeek:  config.DeepSeekKey,
	}
	var out []genai.ProviderConfig
	for _, name := range genai.ParseProviderList(config.Providers) {
		if _, known := keys[name]; !known {
			slog.Warn("providerConfigs: ignoring unknown provider", "provider", name)
			continue
		}
		out = append(out, genai.ProviderConfig{Name: name, APIKey: keys[name]})
	}
	return out
}

func newRootCmd(config *Config) *cobra.Command {
	root := &cobra.Command{
		Use:           "kwlq",
		Short:         "KWLQ conversation phase analysis and prompt generation",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			initializeLogger(config.Debug)
		},
	}

	f := root.PersistentFlags()
	f.StringVar(&config.StateDir, "state-dir", config.StateDir, "state directory for kwlq data (overrides $KWLQ_STATE_DIR)")
	f.StringVar(&config.DatabaseURL, "db-dsn", config.DatabaseURL, "postgres DSN, SQLite path or dynamodb://<table> (overrides $DATABASE_URL)")
	f.StringVar(&config.Providers, "providers", config.Providers, "comma-separated provider priority (overrides $PHASE_PROVIDERS)")
	f.DurationVar(&config.ProviderTimeout, "provider-timeout", config.ProviderTimeout, "per-provider time budget (overrides $PHASE_PROVIDER_TIMEOUT)")
	f.StringVar(&config.ParamPrefix, "param-prefix", config.ParamPrefix, "SSM prefix for provider keys (overrides $SSM_PARAM_PREFIX)")
	f.StringVar(&config.OpenAIKey, "openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)")
	f.StringVar(&config.PromptConfig, "prompt-config", config.PromptConfig, "YAML prompt module configuration (overrides $PROMPT_CONFIG)")
	f.BoolVar(&config.Debug, "debug", config.Debug, "enable debug logging (overrides $KWLQ_DEBUG)")

	root.AddCommand(
		newServeCmd(config),
		newLambdaCmd(config),
		newClassifyCmd(config),
		newPromptCmd(config),
	)
	return root
}
