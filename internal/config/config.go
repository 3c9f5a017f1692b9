// Package config loads the agent's single YAML configuration file and
// resolves it, together with flags and environment variables, into the
// typed values internal/app wires into the rest of the system. Layering is
// defaults, then file, then explicit flags; sections cover the model and
// API endpoints plus push-data endpoints, custom tools, and research
// source adapters.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	yaml "gopkg.in/yaml.v3"
)

// ModelEntry is one named entry under models.*: the provider-side model id
// plus the API endpoint it is served from and its context window.
type ModelEntry struct {
	ID          string `yaml:"id" json:"id"`
	API         string `yaml:"api" json:"api"`
	MaxChars    int    `yaml:"max_chars" json:"max_chars"`
	ContextSize int    `yaml:"context_size" json:"context_size"`
}

// APIEntry is one named entry under api.*: an OpenAI-compatible endpoint
// plus the environment variable holding its key.
type APIEntry struct {
	BaseURL   string `yaml:"base_url" json:"base_url"`
	APIKey    string `yaml:"api_key" json:"api_key"`
	APIKeyEnv string `yaml:"api_key_env" json:"api_key_env"`
}

// Prompts holds the configurable prompt fragments; zero values fall back
// to conversation.Default* constants.
type Prompts struct {
	SystemPrefix         string `yaml:"system_prefix" json:"system_prefix"`
	ForceSearch          string `yaml:"force_search" json:"force_search"`
	SystemSuffix         string `yaml:"system_suffix" json:"system_suffix"`
	DeepResearchTemplate string `yaml:"deep_research" json:"deep_research"`
	DeepDive             string `yaml:"deep_dive" json:"deep_dive"`
}

// PushDataEndpoint mirrors pushdata.Endpoint plus the description/schema
// metadata pushdata.Endpoint itself does not carry.
type PushDataEndpoint struct {
	URL         string            `yaml:"url" json:"url"`
	Method      string            `yaml:"method" json:"method"`
	Headers     map[string]string `yaml:"headers" json:"headers"`
	Fields      map[string]string `yaml:"fields" json:"fields"`
	Enabled     bool              `yaml:"enabled" json:"enabled"`
	Description string            `yaml:"description" json:"description"`
	Schema      json.RawMessage   `yaml:"schema" json:"schema"`
}

// CustomTool mirrors customtool.Definition plus the description/schema
// metadata surfaced to the model.
type CustomTool struct {
	Command     string          `yaml:"command" json:"command"`
	TimeoutSecs int             `yaml:"timeout_seconds" json:"timeout_seconds"`
	Description string          `yaml:"description" json:"description"`
	Schema      json.RawMessage `yaml:"schema" json:"schema"`
}

// SourceAdapter mirrors adapters.Adapter.
type SourceAdapter struct {
	Prefix       string `yaml:"prefix" json:"prefix"`
	DiscoverTool string `yaml:"discover_tool" json:"discover_tool"`
	ReadTool     string `yaml:"read_tool" json:"read_tool"`
}

// General holds the top-level behavioral knobs.
type General struct {
	DefaultModel            string `yaml:"default_model" json:"default_model"`
	MaxTurns                 int    `yaml:"max_turns" json:"max_turns"`
	CompactionThresholdPct   int    `yaml:"compaction_threshold_percent" json:"compaction_threshold_percent"`
	CompactionStrategy       string `yaml:"compaction_strategy" json:"compaction_strategy"`
	QuerySummaryMaxChars     int    `yaml:"query_summary_max_chars" json:"query_summary_max_chars"`
	AnswerSummaryMaxChars    int    `yaml:"answer_summary_max_chars" json:"answer_summary_max_chars"`
	SummarizeByDefault       bool   `yaml:"summarize_by_default" json:"summarize_by_default"`
	SummaryWorkers           int    `yaml:"summary_workers" json:"summary_workers"`
	ResearchMaxLinksPerURL   int    `yaml:"research_max_links_per_url" json:"research_max_links_per_url"`
	ResearchMaxRelevantLinks int    `yaml:"research_max_relevant_links" json:"research_max_relevant_links"`
	ChunkSize                int    `yaml:"chunk_size" json:"chunk_size"`
	ChunkOverlap             int    `yaml:"chunk_overlap" json:"chunk_overlap"`
	EmbeddingModel           string `yaml:"embedding_model" json:"embedding_model"`
	EmbeddingAPI             string `yaml:"embedding_api" json:"embedding_api"`
	DBPath                   string `yaml:"db_path" json:"db_path"`
	DBPathEnvVar             string `yaml:"db_path_env_var" json:"db_path_env_var"`
	CacheDir                 string `yaml:"cache_dir" json:"cache_dir"`
	CacheMaxAgeHours         int    `yaml:"cache_max_age_hours" json:"cache_max_age_hours"`
	CacheMaxBytes            int64  `yaml:"cache_max_bytes" json:"cache_max_bytes"`
	CacheMaxCount            int    `yaml:"cache_max_count" json:"cache_max_count"`
	UserAgent                string `yaml:"user_agent" json:"user_agent"`
	SearxURL                 string `yaml:"searx_url" json:"searx_url"`
	SearxAPIKey              string `yaml:"searx_api_key" json:"searx_api_key"`
	FileSearchPath           string `yaml:"file_search_path" json:"file_search_path"`
}

// Config is the fully parsed configuration file.
type Config struct {
	General        General                     `yaml:"general" json:"general"`
	API            map[string]APIEntry         `yaml:"api" json:"api"`
	Models         map[string]ModelEntry       `yaml:"models" json:"models"`
	Prompts        Prompts                     `yaml:"prompts" json:"prompts"`
	PushData       map[string]PushDataEndpoint `yaml:"push_data" json:"push_data"`
	CustomTools    map[string]CustomTool       `yaml:"custom_tools" json:"custom_tools"`
	SourceAdapters map[string]SourceAdapter    `yaml:"source_adapters" json:"source_adapters"`
}

// Built-in defaults applied to any knob the file leaves unset.
const (
	DefaultMaxTurns                 = 8
	DefaultCompactionThresholdPct   = 80
	DefaultCompactionStrategy       = "summaries"
	DefaultQuerySummaryMaxChars     = 40
	DefaultAnswerSummaryMaxChars    = 200
	DefaultSummaryWorkers           = 4
	DefaultResearchMaxLinksPerURL   = 20
	DefaultResearchMaxRelevantLinks = 10
	DefaultChunkSize                = 1200
	DefaultChunkOverlap             = 200
	DefaultAppName                  = "seeker"
)

// Load reads a YAML configuration file at path and applies Defaults on top
// of whatever it leaves unset. A missing path is not an error: an empty,
// defaulted Config is returned so the agent can run from flags/env alone.
func Load(path string) (Config, error) {
	var cfg Config
	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return Defaults(), nil
			}
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config yaml: %w", err)
		}
	}
	applyDefaults(&cfg)
	return cfg, nil
}

// Defaults returns a Config populated entirely from built-in defaults, for
// callers (tests, a configless invocation) that never load a file.
func Defaults() Config {
	var cfg Config
	applyDefaults(&cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.General.MaxTurns <= 0 {
		cfg.General.MaxTurns = DefaultMaxTurns
	}
	if cfg.General.CompactionThresholdPct <= 0 {
		cfg.General.CompactionThresholdPct = DefaultCompactionThresholdPct
	}
	if cfg.General.CompactionStrategy == "" {
		cfg.General.CompactionStrategy = DefaultCompactionStrategy
	}
	if cfg.General.QuerySummaryMaxChars <= 0 {
		cfg.General.QuerySummaryMaxChars = DefaultQuerySummaryMaxChars
	}
	if cfg.General.AnswerSummaryMaxChars <= 0 {
		cfg.General.AnswerSummaryMaxChars = DefaultAnswerSummaryMaxChars
	}
	if cfg.General.SummaryWorkers <= 0 {
		cfg.General.SummaryWorkers = DefaultSummaryWorkers
	}
	if cfg.General.ResearchMaxLinksPerURL <= 0 {
		cfg.General.ResearchMaxLinksPerURL = DefaultResearchMaxLinksPerURL
	}
	if cfg.General.ResearchMaxRelevantLinks <= 0 {
		cfg.General.ResearchMaxRelevantLinks = DefaultResearchMaxRelevantLinks
	}
	if cfg.General.ChunkSize <= 0 {
		cfg.General.ChunkSize = DefaultChunkSize
	}
	if cfg.General.ChunkOverlap <= 0 {
		cfg.General.ChunkOverlap = DefaultChunkOverlap
	}
	if cfg.General.UserAgent == "" {
		cfg.General.UserAgent = "seeker/1.0 (+https://github.com/hyperifyio/seeker)"
	}
	if cfg.General.DBPathEnvVar == "" {
		cfg.General.DBPathEnvVar = "SEEKER_DB_PATH"
	}
}

// ResolveModel looks up a model alias, falling back to General.DefaultModel
// when alias is empty. The bool reports whether the alias was found.
func (c Config) ResolveModel(alias string) (ModelEntry, bool) {
	if alias == "" {
		alias = c.General.DefaultModel
	}
	m, ok := c.Models[alias]
	return m, ok
}

// ResolveAPI looks up an API entry by name.
func (c Config) ResolveAPI(name string) (APIEntry, bool) {
	a, ok := c.API[name]
	return a, ok
}

// DBPath resolves the SQLite database path: environment variable override,
// then the configured path, then a per-user default under the standard
// config directory.
func DBPath(cfg Config, getenv func(string) (string, bool)) (string, error) {
	if getenv == nil {
		getenv = func(string) (string, bool) { return "", false }
	}
	if v, ok := getenv(cfg.General.DBPathEnvVar); ok && strings.TrimSpace(v) != "" {
		return v, nil
	}
	if strings.TrimSpace(cfg.General.DBPath) != "" {
		return cfg.General.DBPath, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve default db path: %w", err)
	}
	return filepath.Join(dir, DefaultAppName, "history.db"), nil
}

// ErrModelNotFound is returned by ResolveModel callers that require a hit.
var ErrModelNotFound = errors.New("model not configured")
