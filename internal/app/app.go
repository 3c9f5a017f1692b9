// Package app wires the agent together for one CLI invocation: resolved
// configuration in, a session-aware conversation engine out. All
// collaborators are constructed here, once, and threaded downward; nothing
// below this package reads configuration on its own.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"

	"github.com/hyperifyio/seeker/internal/adapters"
	"github.com/hyperifyio/seeker/internal/cache"
	"github.com/hyperifyio/seeker/internal/config"
	"github.com/hyperifyio/seeker/internal/conversation"
	"github.com/hyperifyio/seeker/internal/customtool"
	"github.com/hyperifyio/seeker/internal/embeddings"
	"github.com/hyperifyio/seeker/internal/fetch"
	"github.com/hyperifyio/seeker/internal/llm"
	"github.com/hyperifyio/seeker/internal/pushdata"
	"github.com/hyperifyio/seeker/internal/robots"
	"github.com/hyperifyio/seeker/internal/search"
	"github.com/hyperifyio/seeker/internal/session"
	"github.com/hyperifyio/seeker/internal/store"
	"github.com/hyperifyio/seeker/internal/summarize"
	"github.com/hyperifyio/seeker/internal/tools"
)

// App holds the wired agent for one invocation.
type App struct {
	cfg  Config
	file config.Config

	store      *store.Store
	pool       *cache.SummaryWorkerPool
	client     *llm.RetryingClient
	usage      *llm.UsageTracker
	registry   *tools.Registry
	sessions   *session.Manager
	summarizer *summarize.Service

	modelAlias  string
	modelID     string
	contextSize int
	maxTurns    int
}

func getenv(name string) (string, bool) {
	return os.LookupEnv(name)
}

// New loads the configuration file, resolves the model and its API
// endpoint, opens the persistence store, and builds the tool registry and
// session manager. Configuration errors are returned as-is so the CLI can
// exit with its invalid-configuration code.
func New(ctx context.Context, cliCfg Config) (*App, error) {
	fileCfg, err := config.Load(cliCfg.ConfigPath)
	if err != nil {
		return nil, err
	}

	alias := cliCfg.ModelAlias
	if alias == "" {
		alias = fileCfg.General.DefaultModel
	}
	model, ok := fileCfg.ResolveModel(alias)
	if !ok {
		return nil, fmt.Errorf("%w: %q", config.ErrModelNotFound, alias)
	}
	api, ok := fileCfg.ResolveAPI(model.API)
	if !ok {
		return nil, fmt.Errorf("api endpoint %q for model %q is not configured", model.API, alias)
	}

	dbPath := cliCfg.DBPath
	if dbPath == "" {
		dbPath, err = config.DBPath(fileCfg, getenv)
		if err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	st, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	a := &App{
		cfg:        cliCfg,
		file:       fileCfg,
		store:      st,
		usage:      llm.NewUsageTracker(),
		modelAlias: alias,
		modelID:    model.ID,
		maxTurns:   fileCfg.General.MaxTurns,
	}
	a.contextSize = model.ContextSize

	httpTimeout := cliCfg.HTTPTimeout
	if httpTimeout <= 0 {
		httpTimeout = 60 * time.Second
	}
	httpClient := &http.Client{Timeout: httpTimeout}

	a.client = &llm.RetryingClient{
		Model: llm.ModelConfig{
			ID:          model.ID,
			Alias:       alias,
			BaseURL:     chatEndpoint(api.BaseURL),
			APIKey:      api.APIKey,
			APIKeyEnv:   api.APIKeyEnv,
			ContextSize: model.ContextSize,
		},
		HTTPClient: httpClient,
		UserAgent:  fileCfg.General.UserAgent,
		Usage:      a.usage,
		GetEnv:     getenv,
	}
	preflightModels(ctx, api, a.client.Model, httpClient)

	cacheDir := cliCfg.CacheDir
	if cacheDir == "" {
		cacheDir = fileCfg.General.CacheDir
	}
	var llmCache *cache.LLMCache
	var httpCache *cache.HTTPCache
	if cacheDir != "" {
		if cliCfg.CacheClear {
			_ = cache.ClearDir(cacheDir)
		}
		llmCache = &cache.LLMCache{Dir: cacheDir}
		httpCache = &cache.HTTPCache{Dir: cacheDir}
		a.maintainCaches(ctx, cacheDir)
	}

	a.summarizer = &summarize.Service{Client: a.client, Model: model.ID, Cache: llmCache}

	fetcher := &fetch.Client{
		HTTPClient:        httpClient,
		UserAgent:         fileCfg.General.UserAgent,
		MaxAttempts:       3,
		PerRequestTimeout: httpTimeout,
		Cache:             httpCache,
		MaxConcurrent:     8,
		Robots: &robots.Manager{
			HTTPClient: httpClient,
			Cache:      httpCache,
			UserAgent:  fileCfg.General.UserAgent,
		},
	}

	research := &cache.ResearchCache{Store: st}
	a.pool = cache.NewSummaryWorkerPool(st, a.summarizer.SummarizePage, fileCfg.General.SummaryWorkers)
	a.pool.Start(ctx)
	research.Pool = a.pool

	var embedder *embeddings.Client
	if fileCfg.General.EmbeddingModel != "" {
		embAPI, ok := fileCfg.ResolveAPI(fileCfg.General.EmbeddingAPI)
		if !ok {
			embAPI = api
		}
		key := embAPI.APIKey
		if key == "" && embAPI.APIKeyEnv != "" {
			if v, found := getenv(embAPI.APIKeyEnv); found {
				key = v
			}
		}
		embedder = embeddings.NewClient(embAPI.BaseURL, fileCfg.General.EmbeddingModel, key, httpClient)
	}

	var provider search.Provider
	switch {
	case fileCfg.General.SearxURL != "":
		provider = &search.SearxNG{
			BaseURL:    fileCfg.General.SearxURL,
			APIKey:     fileCfg.General.SearxAPIKey,
			HTTPClient: httpClient,
			UserAgent:  fileCfg.General.UserAgent,
		}
	case fileCfg.General.FileSearchPath != "":
		provider = &search.FileProvider{Path: fileCfg.General.FileSearchPath}
	}

	runner, toolSchemas, toolDescriptions := buildCustomTools(fileCfg.CustomTools)

	adapterCfg := make(map[string]adapters.Adapter, len(fileCfg.SourceAdapters))
	for name, sa := range fileCfg.SourceAdapters {
		adapterCfg[name] = adapters.Adapter{
			Name:         name,
			Prefix:       sa.Prefix,
			DiscoverTool: sa.DiscoverTool,
			ReadTool:     sa.ReadTool,
		}
	}

	endpoints, pushDescriptions, pushSchemas := buildPushData(fileCfg.PushData)

	deps := &tools.Deps{
		Search:      provider,
		Fetch:       fetcher,
		Cache:       research,
		Embeddings:  embedder,
		Summarizer:  a.summarizer,
		Adapters:    adapters.Resolve(adapterCfg),

		PushData:             endpoints,
		PushDataDescriptions: pushDescriptions,
		PushDataSchemas:      pushSchemas,

		HTTPClient: httpClient,
		GetEnv:     getenv,

		DefaultMaxLinks:  fileCfg.General.ResearchMaxLinksPerURL,
		MaxRelevantLinks: fileCfg.General.ResearchMaxRelevantLinks,
		ChunkSize:        fileCfg.General.ChunkSize,
		ChunkOverlap:     fileCfg.General.ChunkOverlap,
	}

	// A typed-nil runner must not end up inside the interface field.
	if runner != nil {
		deps.CustomTools = runner
	}

	a.registry = tools.NewRegistry()
	tools.RegisterBuiltins(a.registry, deps, toolSchemas, toolDescriptions)
	tools.RegisterResearch(a.registry, deps)

	a.sessions = session.NewManager(st, a.summarizer, alias, model.ContextSize)
	a.sessions.CompactionPercent = fileCfg.General.CompactionThresholdPct
	a.sessions.CompactionStrategy = session.CompactionStrategy(fileCfg.General.CompactionStrategy)

	return a, nil
}

// preflightModels lists the endpoint's models as a quick connectivity
// check. Best-effort: an unreachable endpoint only warns, so offline or
// lazily-started backends do not block the run.
func preflightModels(ctx context.Context, api config.APIEntry, model llm.ModelConfig, httpClient *http.Client) {
	clientCfg := openai.DefaultConfig(model.ResolveAPIKey(getenv))
	clientCfg.BaseURL = strings.TrimRight(api.BaseURL, "/")
	clientCfg.HTTPClient = httpClient
	provider := &llm.OpenAIProvider{Inner: openai.NewClientWithConfig(clientCfg)}

	preflightCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	models, err := provider.ListModels(preflightCtx)
	if err != nil {
		log.Warn().Err(err).Msg("model list failed; continuing")
		return
	}
	if len(models.Models) == 0 {
		log.Warn().Msg("endpoint returned zero models")
		return
	}
	log.Debug().Int("count", len(models.Models)).Msg("models available")
}

// maintainCaches applies the configured age and size bounds to the on-disk
// HTTP/LLM caches and evicts expired url_cache rows (which cascades their
// embeddings). Maintenance failures never block startup.
func (a *App) maintainCaches(ctx context.Context, cacheDir string) {
	g := a.file.General
	if g.CacheMaxAgeHours > 0 {
		maxAge := time.Duration(g.CacheMaxAgeHours) * time.Hour
		if n, err := cache.PurgeHTTPCacheByAge(cacheDir, maxAge); err == nil && n > 0 {
			log.Debug().Int("removed", n).Msg("purged http cache entries")
		}
		if n, err := cache.PurgeLLMCacheByAge(cacheDir, maxAge); err == nil && n > 0 {
			log.Debug().Int("removed", n).Msg("purged llm cache entries")
		}
		if n, err := a.store.PurgeOlderThan(ctx, time.Now().Add(-maxAge)); err == nil && n > 0 {
			log.Debug().Int64("removed", n).Msg("evicted url cache rows")
		}
	}
	if g.CacheMaxBytes > 0 || g.CacheMaxCount > 0 {
		_, _ = cache.EnforceHTTPCacheLimits(cacheDir, g.CacheMaxBytes, g.CacheMaxCount)
		_, _ = cache.EnforceLLMCacheLimits(cacheDir, g.CacheMaxBytes, g.CacheMaxCount)
	}
}

// Close drains the summary worker pool and closes the store. In-flight
// summaries get a short grace period; rows still processing are reclaimed
// to pending for the next run.
func (a *App) Close() {
	if a.pool != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.pool.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("summary pool shutdown")
		}
	}
	if a.store != nil {
		_ = a.store.Close()
	}
}

// Run executes one query end to end: resolve the session, assemble prior
// context, drive the conversation engine, persist the turn, and compact if
// the session has outgrown its threshold. The final answer is returned for
// rendering.
func (a *App) Run(ctx context.Context) (string, error) {
	sess, err := a.sessions.StartOrResume(ctx, a.cfg.SessionName, a.cfg.Query)
	if err != nil {
		return "", err
	}
	if err := session.WriteLockFile(sess.ID); err != nil {
		log.Warn().Err(err).Msg("write session lock file")
	}
	log.Debug().Int64("session", sess.ID).Str("name", sess.Name).Msg("session resolved")

	prompts := conversation.PromptSet{
		SystemPrefix:         a.file.Prompts.SystemPrefix,
		ForceSearch:          a.file.Prompts.ForceSearch,
		SystemSuffix:         a.file.Prompts.SystemSuffix,
		DeepResearchTemplate: a.file.Prompts.DeepResearchTemplate,
		DeepDivePrompt:       a.file.Prompts.DeepDive,
	}
	system := prompts.ConstructSystemPrompt(a.maxTurns, a.cfg.DeepResearchN, a.cfg.DeepDive, a.cfg.ForceSearch)

	messages := []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleSystem, Content: system}}
	history, err := a.sessions.BuildContextMessages(ctx)
	if err != nil {
		return "", err
	}
	messages = append(messages, history...)
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: a.cfg.Query})

	engine := &conversation.Engine{
		Client:      a.client,
		ModelID:     a.modelID,
		ModelAlias:  a.modelAlias,
		ContextSize: a.contextSize,
		Registry:    a.registry,
		Summarize:   a.cfg.Summarize || a.file.General.SummarizeByDefault,
		Usage:       a.usage,
		MaxTurns:    a.maxTurns,
	}
	answer, err := engine.Run(ctx, messages)
	if err != nil {
		return "", err
	}

	querySummary := a.bestEffortSummary(ctx, a.cfg.Query, a.file.General.QuerySummaryMaxChars, a.summarizer.SummarizeQuery)
	answerSummary := a.bestEffortSummary(ctx, answer, a.file.General.AnswerSummaryMaxChars, a.summarizer.SummarizeAnswer)

	if err := a.sessions.SaveTurn(ctx, a.cfg.Query, answer, querySummary, answerSummary); err != nil {
		return answer, err
	}
	if err := a.store.InsertHistory(ctx, a.cfg.Query, querySummary, answer, answerSummary, a.modelAlias); err != nil {
		log.Warn().Err(err).Msg("insert history")
	}
	if compacted, err := a.sessions.CheckAndCompact(ctx); err != nil {
		log.Warn().Err(err).Msg("compaction failed")
	} else if compacted {
		log.Info().Int64("session", sess.ID).Msg("session compacted")
	}

	return answer, nil
}

// Usage returns the total tokens tracked against the active model alias.
func (a *App) Usage() int {
	return a.usage.Total(a.modelAlias)
}

// bestEffortSummary asks the summarization model for a short summary and
// falls back to a plain prefix truncation when it declines or errors.
func (a *App) bestEffortSummary(ctx context.Context, text string, maxChars int, condense func(context.Context, string) (string, error)) string {
	if maxChars <= 0 {
		maxChars = 100
	}
	runes := []rune(text)
	if len(runes) <= maxChars {
		return text
	}
	if summary, err := condense(ctx, text); err == nil && summary != "" {
		return summary
	}
	return string(runes[:maxChars])
}

// chatEndpoint joins an [api.*] base URL with the chat-completions path,
// tolerating bases configured with or without the path already present.
func chatEndpoint(base string) string {
	base = strings.TrimRight(base, "/")
	if strings.HasSuffix(base, "/chat/completions") {
		return base
	}
	return base + "/chat/completions"
}

func buildCustomTools(configured map[string]config.CustomTool) (*customtool.Runner, map[string]json.RawMessage, map[string]string) {
	defs := make([]customtool.Definition, 0, len(configured))
	schemas := make(map[string]json.RawMessage, len(configured))
	descriptions := make(map[string]string, len(configured))
	for name, ct := range configured {
		if strings.TrimSpace(ct.Command) == "" {
			continue
		}
		timeout := time.Duration(ct.TimeoutSecs) * time.Second
		defs = append(defs, customtool.Definition{Name: name, Command: ct.Command, Timeout: timeout})
		if len(ct.Schema) > 0 {
			schemas[name] = ct.Schema
		} else {
			schemas[name] = json.RawMessage(`{"type": "object", "properties": {}}`)
		}
		descriptions[name] = ct.Description
	}
	if len(defs) == 0 {
		return nil, nil, nil
	}
	return customtool.NewRunner(defs), schemas, descriptions
}

func buildPushData(configured map[string]config.PushDataEndpoint) (map[string]pushdata.Endpoint, map[string]string, map[string]json.RawMessage) {
	endpoints := make(map[string]pushdata.Endpoint, len(configured))
	descriptions := make(map[string]string, len(configured))
	schemas := make(map[string]json.RawMessage, len(configured))
	for name, pd := range configured {
		endpoints[name] = pushdata.Endpoint{
			Name:    name,
			URL:     pd.URL,
			Method:  pd.Method,
			Headers: pd.Headers,
			Fields:  pd.Fields,
			Enabled: pd.Enabled,
		}
		descriptions[name] = pd.Description
		if len(pd.Schema) > 0 {
			schemas[name] = pd.Schema
		}
	}
	return pushdata.EnabledEndpoints(endpoints), descriptions, schemas
}
