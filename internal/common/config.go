package common

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aestimo/internal/interfaces"
)

// Config represents the application configuration
type Config struct {
	Environment string            `toml:"environment"` // "development" or "production"
	Server      ServerConfig      `toml:"server"`
	Storage     StorageConfig     `toml:"storage"`
	Logging     LoggingConfig     `toml:"logging"`
	Variables   KeysDirConfig     `toml:"variables"` // Variables directory configuration (./keys/*.toml) for key/value pairs
	Gemini      GeminiConfig      `toml:"gemini"`
	Claude      ClaudeConfig      `toml:"claude"`
	LLM         LLMConfig         `toml:"llm"`
	Analysis    AnalysisConfig    `toml:"analysis"`
	Search      SearchConfig      `toml:"search"`
	Ingest      IngestConfig      `toml:"ingest"`
	Report      ReportConfig      `toml:"report"`
	WebSocket   WebSocketConfig   `toml:"websocket"`
	Maintenance MaintenanceConfig `toml:"maintenance"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Format     string   `toml:"format"`      // "json" or "text"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // Time format for logs (default: "15:04:05.000")
}

// KeysDirConfig contains configuration for key/value file loading (generic secrets/configuration)
type KeysDirConfig struct {
	Dir string `toml:"dir"` // Directory containing variable files (TOML)
}

// GeminiConfig contains unified Google Gemini API configuration for all AI services
type GeminiConfig struct {
	APIKey      string  `toml:"api_key"`     // Google Gemini API key for all AI operations
	Model       string  `toml:"model"`       // Model for AI operations (default: "gemini-3-flash-preview")
	Thinking    string  `toml:"thinking"`    // Default thinking level: NONE, LOW, NORMAL, MEDIUM, HIGH (default: "NORMAL")
	Timeout     string  `toml:"timeout"`     // Operation timeout as duration string (default: "5m")
	RateLimit   string  `toml:"rate_limit"`  // Rate limit duration string (default: "4s" for 15 RPM)
	Temperature float32 `toml:"temperature"` // Completion temperature (default: 0.3)
}

// ClaudeConfig contains Anthropic Claude API configuration for AI services
type ClaudeConfig struct {
	APIKey      string  `toml:"api_key"`     // Anthropic API key for Claude operations
	Model       string  `toml:"model"`       // Model for AI operations (default: "claude-haiku-3-5-20241022")
	Thinking    string  `toml:"thinking"`    // Default thinking level: NONE, LOW, NORMAL, MEDIUM, HIGH (default: "NORMAL")
	MaxTokens   int     `toml:"max_tokens"`  // Maximum tokens in response (default: 8192)
	Timeout     string  `toml:"timeout"`     // Operation timeout as duration string (default: "5m")
	RateLimit   string  `toml:"rate_limit"`  // Rate limit duration string (default: "1s")
	Temperature float32 `toml:"temperature"` // Completion temperature (default: 0.3)
}

// LLMProvider represents the AI provider type
type LLMProvider string

const (
	// LLMProviderGemini uses Google Gemini API
	LLMProviderGemini LLMProvider = "gemini"
	// LLMProviderClaude uses Anthropic Claude API
	LLMProviderClaude LLMProvider = "claude"
)

// LLMConfig contains unified configuration for all AI providers
type LLMConfig struct {
	DefaultProvider LLMProvider    `toml:"default_provider"` // Default provider: "gemini" or "claude" (default: "gemini")
	Audit           LLMAuditConfig `toml:"audit"`            // Audit trail for LLM calls
}

// LLMAuditConfig controls the LLM call audit trail kept in the KV store
type LLMAuditConfig struct {
	Enabled    bool `toml:"enabled"`     // Record each LLM call in the KV store (default: true)
	LogPrompts bool `toml:"log_prompts"` // Include a prompt snippet in each audit entry (default: false)
	MaxEntries int  `toml:"max_entries"` // Entries retained before the oldest are pruned (default: 1000)
}

// AnalysisConfig contains tuning parameters for the analysis pipeline.
// The character limits mirror the sizing the prompts were written against,
// so changing them changes prompt behavior, not just memory usage.
type AnalysisConfig struct {
	ChunkMaxChars         int    `toml:"chunk_max_chars"`          // Maximum characters per document chunk (default: 4000)
	OverviewWorkers       int    `toml:"overview_workers"`         // Concurrent workers for chunk overview generation (default: 3)
	CompressedDocMaxChars int    `toml:"compressed_doc_max_chars"` // Target length for compressed extraction context (default: 5000)
	ToolSummaryMaxChars   int    `toml:"tool_summary_max_chars"`   // Target length for abbreviated module summaries (default: 1500)
	SummaryInputMaxChars  int    `toml:"summary_input_max_chars"`  // Input cap when abbreviating a module analysis (default: 15000)
	FinalSummaryMinChars  int    `toml:"final_summary_min_chars"`  // Lower bound for the final overall summary (default: 2000)
	FinalSummaryMaxChars  int    `toml:"final_summary_max_chars"`  // Upper bound for the final overall summary (default: 3000)
	StatementMaxRows      int    `toml:"statement_max_rows"`       // Row cap when formatting statement data for prompts (default: 100)
	LLMTimeout            string `toml:"llm_timeout"`              // Per-call timeout for analysis LLM requests (default: "5m")
}

// SearchConfig contains configuration for the web search collaborator
type SearchConfig struct {
	Enabled        bool   `toml:"enabled"`         // Enable web search for module context (default: true)
	MaxResults     int    `toml:"max_results"`     // Maximum results returned per query (default: 5)
	FetchContent   bool   `toml:"fetch_content"`   // Fetch and convert top result pages to markdown (default: false)
	RequestTimeout string `toml:"request_timeout"` // HTTP request timeout as duration string (default: "30s")
	RateLimit      string `toml:"rate_limit"`      // Minimum interval between search requests (default: "2s")
	UserAgent      string `toml:"user_agent"`      // User agent for search and fetch requests
}

// IngestConfig contains configuration for workpaper document loading
type IngestConfig struct {
	WorkpapersDir string `toml:"workpapers_dir"` // Directory scanned for workpaper JSON and PDF files (default: "./workpapers")
	MaxPDFPages   int    `toml:"max_pdf_pages"`  // Page cap for PDF text extraction, 0 = all pages (default: 0)
}

// ReportConfig contains configuration for report generation
type ReportConfig struct {
	OutputDir string `toml:"output_dir"` // Directory for generated HTML reports (default: "./reports")
}

// WebSocketConfig contains configuration for WebSocket progress streaming
type WebSocketConfig struct {
	// Minimum event severity to broadcast ("debug", "info", "warn").
	// Per-chunk progress is debug; contradiction findings are warn;
	// everything else is info.
	MinLevel string `toml:"min_level"`
	// Whitelist of event types to broadcast via WebSocket. Empty list allows all events.
	// Example: ["module_started", "module_completed", "conclusion_updated"]
	AllowedEvents []string `toml:"allowed_events"`
	// Throttle intervals for high-frequency events. Map of event type to duration string.
	// Example: {"chunk_progress": "1s"}
	ThrottleIntervals map[string]string `toml:"throttle_intervals"`
}

// MaintenanceConfig contains configuration for scheduled storage maintenance
type MaintenanceConfig struct {
	Enabled        bool    `toml:"enabled"`          // Run scheduled Badger value log GC (default: true)
	GCSchedule     string  `toml:"gc_schedule"`      // Cron schedule for GC runs (default: "*/10 * * * *")
	GCDiscardRatio float64 `toml:"gc_discard_ratio"` // Badger GC discard ratio (default: 0.5)
}

// NewDefaultConfig creates a configuration with default values
// Technical parameters are hardcoded here for production stability.
// Only user-facing settings should be exposed in aestimo.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8080,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",                     // Info level for production (debug|info|warn|error)
			Format: "text",                     // Human-readable text format (text|json)
			Output: []string{"stdout", "file"}, // Log to both console and file
		},
		Variables: KeysDirConfig{
			Dir: "./", // Default directory for variables.toml
		},
		Gemini: GeminiConfig{
			APIKey:      "",                       // User must provide API key (no fallback)
			Model:       "gemini-3-flash-preview", // Model for AI operations
			Thinking:    "NORMAL",                 // Default thinking level
			Timeout:     "5m",                     // 5 minutes for operations
			RateLimit:   "4s",                     // Default to 4s (15 RPM) for free tier
			Temperature: 0.3,                      // Low temperature for analytical output
		},
		Claude: ClaudeConfig{
			APIKey:      "",                          // User must provide API key (ANTHROPIC_API_KEY or config)
			Model:       "claude-haiku-3-5-20241022", // Model for AI operations
			Thinking:    "NORMAL",                    // Default thinking level
			MaxTokens:   8192,                        // Default max tokens
			Timeout:     "5m",                        // 5 minutes for operations
			RateLimit:   "1s",                        // Default rate limit
			Temperature: 0.3,                         // Low temperature for analytical output
		},
		LLM: LLMConfig{
			DefaultProvider: LLMProviderGemini,
			Audit: LLMAuditConfig{
				Enabled:    true,
				LogPrompts: false, // Prompts carry full document text, keep them out of the store by default
				MaxEntries: 1000,
			},
		},
		Analysis: AnalysisConfig{
			ChunkMaxChars:         4000,  // Keeps chunk + overview prompt inside a comfortable context window
			OverviewWorkers:       3,     // Bounded concurrency against provider rate limits
			CompressedDocMaxChars: 5000,  // Target for compressed extraction context
			ToolSummaryMaxChars:   1500,  // Abbreviated summary target for cross-module reuse
			SummaryInputMaxChars:  15000, // Cap on analysis text fed to the abbreviation prompt
			FinalSummaryMinChars:  2000,
			FinalSummaryMaxChars:  3000,
			StatementMaxRows:      100, // Row cap when statement tables are rendered into prompts
			LLMTimeout:            "5m",
		},
		Search: SearchConfig{
			Enabled:        true,
			MaxResults:     5,
			FetchContent:   false, // Snippets only by default; full page fetch is opt-in
			RequestTimeout: "30s",
			RateLimit:      "2s",
			UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		},
		Ingest: IngestConfig{
			WorkpapersDir: "./workpapers",
			MaxPDFPages:   0, // All pages
		},
		Report: ReportConfig{
			OutputDir: "./reports",
		},
		WebSocket: WebSocketConfig{
			MinLevel: "debug", // Broadcast everything; raise to drop per-chunk progress
			// Empty AllowedEvents allows all events
			AllowedEvents: []string{},
			// Throttle high-frequency events to prevent WebSocket flooding during chunk preprocessing
			ThrottleIntervals: map[string]string{
				"chunk_progress": "1s",
			},
		},
		Maintenance: MaintenanceConfig{
			Enabled:        true,
			GCSchedule:     "*/10 * * * *", // Every 10 minutes
			GCDiscardRatio: 0.5,
		},
	}
}

// LoadFromFile loads configuration with priority: default -> file -> env -> CLI
// Priority system: CLI flags > Environment variables > Config file > Defaults
// kvStorage can be nil (replacement will be skipped)
func LoadFromFile(kvStorage interfaces.KeyValueStorage, path string) (*Config, error) {
	if path == "" {
		return LoadFromFiles(kvStorage)
	}
	return LoadFromFiles(kvStorage, path)
}

// LoadFromFiles loads configuration from multiple files with priority: default -> file1 -> file2 -> ... -> env -> CLI
// Later files override earlier files.
// Example: LoadFromFiles(kvStorage, "base.toml", "override.toml") - override.toml settings take precedence over base.toml
// kvStorage can be nil (replacement will be skipped)
func LoadFromFiles(kvStorage interfaces.KeyValueStorage, paths ...string) (*Config, error) {
	// Start with defaults
	config := NewDefaultConfig()

	// Load and merge each config file in order (later files override earlier files)
	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		// Unmarshal into config (merges with existing values, later values override)
		err = toml.Unmarshal(data, config)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	// Perform {key-name} replacement if KV storage is available
	if kvStorage != nil {
		ctx := context.Background()
		kvMap, err := kvStorage.GetAll(ctx)
		if err != nil {
			// Log warning and skip replacement (graceful degradation)
			logger := arbor.NewLogger()
			logger.Warn().Err(err).Msg("Failed to fetch KV map for config replacement, skipping replacement")
		} else {
			logger := arbor.NewLogger()
			if err := ReplaceInStruct(config, kvMap, logger); err != nil {
				logger.Warn().Err(err).Msg("Failed to replace key references in config")
			} else {
				logger.Info().Int("keys", len(kvMap)).Msg("Applied key/value replacements to config")
			}
		}
	}

	// Apply environment variables (overrides all file configs and replacements)
	applyEnvOverrides(config)

	// Guard the analysis limits: zero or negative values would stall chunking
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	// Environment configuration (highest priority: AESTIMO_ENV, fallback: GO_ENV)
	if env := os.Getenv("AESTIMO_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	// Server configuration
	if port := os.Getenv("AESTIMO_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("AESTIMO_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	// Storage configuration
	if badgerPath := os.Getenv("AESTIMO_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	// Logging configuration
	if level := os.Getenv("AESTIMO_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if format := os.Getenv("AESTIMO_LOG_FORMAT"); format != "" {
		config.Logging.Format = format
	}
	if output := os.Getenv("AESTIMO_LOG_OUTPUT"); output != "" {
		// Split comma-separated output types
		outputs := []string{}
		for _, o := range splitString(output, ",") {
			trimmed := trimSpace(o)
			if trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}
	// Gemini configuration
	if apiKey := os.Getenv("AESTIMO_GEMINI_API_KEY"); apiKey != "" {
		config.Gemini.APIKey = apiKey
	}
	if model := os.Getenv("AESTIMO_GEMINI_MODEL"); model != "" {
		config.Gemini.Model = model
	}
	if thinking := os.Getenv("AESTIMO_GEMINI_THINKING"); thinking != "" {
		config.Gemini.Thinking = thinking
	}
	if timeout := os.Getenv("AESTIMO_GEMINI_TIMEOUT"); timeout != "" {
		config.Gemini.Timeout = timeout
	}
	if rateLimit := os.Getenv("AESTIMO_GEMINI_RATE_LIMIT"); rateLimit != "" {
		config.Gemini.RateLimit = rateLimit
	}
	if temperature := os.Getenv("AESTIMO_GEMINI_TEMPERATURE"); temperature != "" {
		if t, err := strconv.ParseFloat(temperature, 32); err == nil {
			config.Gemini.Temperature = float32(t)
		}
	}

	// Claude configuration
	if apiKey := os.Getenv("ANTHROPIC_API_KEY"); apiKey != "" {
		config.Claude.APIKey = apiKey
	}
	if apiKey := os.Getenv("AESTIMO_CLAUDE_API_KEY"); apiKey != "" {
		config.Claude.APIKey = apiKey // AESTIMO_ prefix takes priority
	}
	if model := os.Getenv("AESTIMO_CLAUDE_MODEL"); model != "" {
		config.Claude.Model = model
	}
	if thinking := os.Getenv("AESTIMO_CLAUDE_THINKING"); thinking != "" {
		config.Claude.Thinking = thinking
	}
	if maxTokens := os.Getenv("AESTIMO_CLAUDE_MAX_TOKENS"); maxTokens != "" {
		if mt, err := strconv.Atoi(maxTokens); err == nil {
			config.Claude.MaxTokens = mt
		}
	}
	if timeout := os.Getenv("AESTIMO_CLAUDE_TIMEOUT"); timeout != "" {
		config.Claude.Timeout = timeout
	}
	if rateLimit := os.Getenv("AESTIMO_CLAUDE_RATE_LIMIT"); rateLimit != "" {
		config.Claude.RateLimit = rateLimit
	}
	if temperature := os.Getenv("AESTIMO_CLAUDE_TEMPERATURE"); temperature != "" {
		if t, err := strconv.ParseFloat(temperature, 32); err == nil {
			config.Claude.Temperature = float32(t)
		}
	}

	// LLM provider configuration
	if provider := os.Getenv("AESTIMO_LLM_DEFAULT_PROVIDER"); provider != "" {
		config.LLM.DefaultProvider = LLMProvider(provider)
	}
	if auditEnabled := os.Getenv("AESTIMO_LLM_AUDIT_ENABLED"); auditEnabled != "" {
		if e, err := strconv.ParseBool(auditEnabled); err == nil {
			config.LLM.Audit.Enabled = e
		}
	}
	if logPrompts := os.Getenv("AESTIMO_LLM_AUDIT_LOG_PROMPTS"); logPrompts != "" {
		if lp, err := strconv.ParseBool(logPrompts); err == nil {
			config.LLM.Audit.LogPrompts = lp
		}
	}

	// Analysis configuration
	if chunkMax := os.Getenv("AESTIMO_ANALYSIS_CHUNK_MAX_CHARS"); chunkMax != "" {
		if cm, err := strconv.Atoi(chunkMax); err == nil {
			config.Analysis.ChunkMaxChars = cm
		}
	}
	if workers := os.Getenv("AESTIMO_ANALYSIS_OVERVIEW_WORKERS"); workers != "" {
		if w, err := strconv.Atoi(workers); err == nil {
			config.Analysis.OverviewWorkers = w
		}
	}
	if compressedMax := os.Getenv("AESTIMO_ANALYSIS_COMPRESSED_DOC_MAX_CHARS"); compressedMax != "" {
		if cm, err := strconv.Atoi(compressedMax); err == nil {
			config.Analysis.CompressedDocMaxChars = cm
		}
	}
	if llmTimeout := os.Getenv("AESTIMO_ANALYSIS_LLM_TIMEOUT"); llmTimeout != "" {
		config.Analysis.LLMTimeout = llmTimeout
	}

	// Search configuration
	if enabled := os.Getenv("AESTIMO_SEARCH_ENABLED"); enabled != "" {
		if e, err := strconv.ParseBool(enabled); err == nil {
			config.Search.Enabled = e
		}
	}
	if maxResults := os.Getenv("AESTIMO_SEARCH_MAX_RESULTS"); maxResults != "" {
		if mr, err := strconv.Atoi(maxResults); err == nil {
			config.Search.MaxResults = mr
		}
	}
	if fetchContent := os.Getenv("AESTIMO_SEARCH_FETCH_CONTENT"); fetchContent != "" {
		if fc, err := strconv.ParseBool(fetchContent); err == nil {
			config.Search.FetchContent = fc
		}
	}
	if requestTimeout := os.Getenv("AESTIMO_SEARCH_REQUEST_TIMEOUT"); requestTimeout != "" {
		if _, err := time.ParseDuration(requestTimeout); err == nil {
			config.Search.RequestTimeout = requestTimeout
		}
	}
	if rateLimit := os.Getenv("AESTIMO_SEARCH_RATE_LIMIT"); rateLimit != "" {
		if _, err := time.ParseDuration(rateLimit); err == nil {
			config.Search.RateLimit = rateLimit
		}
	}
	if userAgent := os.Getenv("AESTIMO_SEARCH_USER_AGENT"); userAgent != "" {
		config.Search.UserAgent = userAgent
	}

	// Ingest configuration
	if workpapersDir := os.Getenv("AESTIMO_INGEST_WORKPAPERS_DIR"); workpapersDir != "" {
		config.Ingest.WorkpapersDir = workpapersDir
	}
	if maxPages := os.Getenv("AESTIMO_INGEST_MAX_PDF_PAGES"); maxPages != "" {
		if mp, err := strconv.Atoi(maxPages); err == nil {
			config.Ingest.MaxPDFPages = mp
		}
	}

	// Report configuration
	if outputDir := os.Getenv("AESTIMO_REPORT_OUTPUT_DIR"); outputDir != "" {
		config.Report.OutputDir = outputDir
	}

	// WebSocket configuration
	if minLevel := os.Getenv("AESTIMO_WEBSOCKET_MIN_LEVEL"); minLevel != "" {
		config.WebSocket.MinLevel = minLevel
	}
	if allowedEvents := os.Getenv("AESTIMO_WEBSOCKET_ALLOWED_EVENTS"); allowedEvents != "" {
		// Split comma-separated event types
		events := []string{}
		for _, e := range splitString(allowedEvents, ",") {
			trimmed := trimSpace(e)
			if trimmed != "" {
				events = append(events, trimmed)
			}
		}
		if len(events) > 0 {
			config.WebSocket.AllowedEvents = events
		}
	}

	// Maintenance configuration
	if enabled := os.Getenv("AESTIMO_MAINTENANCE_ENABLED"); enabled != "" {
		if e, err := strconv.ParseBool(enabled); err == nil {
			config.Maintenance.Enabled = e
		}
	}
	if schedule := os.Getenv("AESTIMO_MAINTENANCE_GC_SCHEDULE"); schedule != "" {
		config.Maintenance.GCSchedule = schedule
	}

	// Variables configuration
	if variablesDir := os.Getenv("AESTIMO_VARIABLES_DIR"); variablesDir != "" {
		config.Variables.Dir = variablesDir
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, port int, host string) {
	// Command-line flags have highest priority
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// Validate checks configuration values that would break the pipeline at runtime.
// Returns an error describing the first invalid setting found.
func (c *Config) Validate() error {
	if c.Analysis.ChunkMaxChars <= 0 {
		return fmt.Errorf("analysis.chunk_max_chars must be positive, got %d", c.Analysis.ChunkMaxChars)
	}
	if c.Analysis.OverviewWorkers <= 0 {
		return fmt.Errorf("analysis.overview_workers must be positive, got %d", c.Analysis.OverviewWorkers)
	}
	if c.Analysis.CompressedDocMaxChars <= 0 {
		return fmt.Errorf("analysis.compressed_doc_max_chars must be positive, got %d", c.Analysis.CompressedDocMaxChars)
	}
	if c.Analysis.FinalSummaryMinChars > c.Analysis.FinalSummaryMaxChars {
		return fmt.Errorf("analysis.final_summary_min_chars %d exceeds final_summary_max_chars %d",
			c.Analysis.FinalSummaryMinChars, c.Analysis.FinalSummaryMaxChars)
	}
	if _, err := time.ParseDuration(c.Analysis.LLMTimeout); err != nil {
		return fmt.Errorf("analysis.llm_timeout is not a valid duration: %w", err)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	switch c.LLM.DefaultProvider {
	case LLMProviderGemini, LLMProviderClaude:
	default:
		return fmt.Errorf("llm.default_provider must be %q or %q, got %q",
			LLMProviderGemini, LLMProviderClaude, c.LLM.DefaultProvider)
	}
	if c.LLM.Audit.Enabled && c.LLM.Audit.MaxEntries <= 0 {
		return fmt.Errorf("llm.audit.max_entries must be positive when auditing is enabled, got %d", c.LLM.Audit.MaxEntries)
	}
	return nil
}

// AnalysisLLMTimeout returns the parsed per-call LLM timeout for analysis operations.
// Falls back to 5 minutes if the configured value does not parse.
func (c *Config) AnalysisLLMTimeout() time.Duration {
	d, err := time.ParseDuration(c.Analysis.LLMTimeout)
	if err != nil || d <= 0 {
		return 5 * time.Minute
	}
	return d
}

// ResolveAPIKey resolves an API key by name with environment variable priority
// Resolution order: environment variables → KV store → config fallback → error
// This ensures AESTIMO_* environment variables always take precedence
func ResolveAPIKey(ctx context.Context, kvStorage interfaces.KeyValueStorage, name string, configFallback string) (string, error) {
	// Map of KV store key names to environment variable names
	// Environment variables have highest priority
	keyToEnvMapping := map[string][]string{
		"gemini_api_key":    {"AESTIMO_GEMINI_API_KEY"},
		"google_api_key":    {"AESTIMO_GEMINI_API_KEY"}, // Legacy KV store key
		"anthropic_api_key": {"AESTIMO_CLAUDE_API_KEY"},
		"claude_api_key":    {"AESTIMO_CLAUDE_API_KEY"},
	}

	// For Claude, also check the standard ANTHROPIC_API_KEY env var
	if name == "anthropic_api_key" || name == "claude_api_key" {
		if envValue := os.Getenv("ANTHROPIC_API_KEY"); envValue != "" {
			return envValue, nil
		}
	}

	// Check environment variables (highest priority)
	if envVarNames, hasMappedEnv := keyToEnvMapping[name]; hasMappedEnv {
		for _, envVarName := range envVarNames {
			if envValue := os.Getenv(envVarName); envValue != "" {
				return envValue, nil
			}
		}
	}

	// Try to resolve from KV store (medium priority - file-based variables)
	if kvStorage != nil {
		apiKey, err := kvStorage.Get(ctx, name)
		if err == nil && apiKey != "" {
			return apiKey, nil
		}
	}

	// Fallback to config value (lowest priority)
	if configFallback != "" {
		return configFallback, nil
	}

	return "", fmt.Errorf("API key '%s' not found in environment, KV store, or config", name)
}

// Helper functions for string manipulation
func splitString(s, sep string) []string {
	result := []string{}
	start := 0
	for i := 0; i < len(s); i++ {
		if i+len(sep) <= len(s) && s[i:i+len(sep)] == sep {
			result = append(result, s[start:i])
			start = i + len(sep)
			i = start - 1
		}
	}
	result = append(result, s[start:])
	return result
}

func trimSpace(s string) string {
	start := 0
	end := len(s)
	for start < end && (s[start] == ' ' || s[start] == '\t' || s[start] == '\n' || s[start] == '\r') {
		start++
	}
	for end > start && (s[end-1] == ' ' || s[end-1] == '\t' || s[end-1] == '\n' || s[end-1] == '\r') {
		end--
	}
	return s[start:end]
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

// DeepCloneConfig creates a deep copy of the Config struct
// This prevents mutations of the original config when callers tweak settings per run.
func DeepCloneConfig(c *Config) *Config {
	if c == nil {
		return nil
	}

	// Clone the config struct (shallow copy first)
	clone := *c

	// Deep clone slice and map fields to prevent shared memory
	if len(c.Logging.Output) > 0 {
		clone.Logging.Output = make([]string, len(c.Logging.Output))
		copy(clone.Logging.Output, c.Logging.Output)
	}

	if len(c.WebSocket.AllowedEvents) > 0 {
		clone.WebSocket.AllowedEvents = make([]string, len(c.WebSocket.AllowedEvents))
		copy(clone.WebSocket.AllowedEvents, c.WebSocket.AllowedEvents)
	}

	if len(c.WebSocket.ThrottleIntervals) > 0 {
		clone.WebSocket.ThrottleIntervals = make(map[string]string, len(c.WebSocket.ThrottleIntervals))
		for k, v := range c.WebSocket.ThrottleIntervals {
			clone.WebSocket.ThrottleIntervals[k] = v
		}
	}

	return &clone
}
