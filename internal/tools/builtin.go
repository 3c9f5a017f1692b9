package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hyperifyio/seeker/internal/aggregate"
	"github.com/hyperifyio/seeker/internal/pushdata"
	"github.com/hyperifyio/seeker/internal/search"
	sel "github.com/hyperifyio/seeker/internal/select"
	"github.com/hyperifyio/seeker/internal/summarize"
)

// RegisterBuiltins registers the agent's always-available tools (search,
// page fetch, the clock) plus any configured custom tools and push-data
// endpoints.
func RegisterBuiltins(r *Registry, deps *Deps, customToolSchemas map[string]json.RawMessage, customToolDescriptions map[string]string) {
	r.Register(Definition{
		Name:        "web_search",
		Description: "Search the web and return top results.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"q": {"type": "string"},
				"count": {"type": "integer", "default": 5}
			},
			"required": ["q"]
		}`),
		Executor: deps.executeWebSearch,
	})

	r.Register(Definition{
		Name:        "get_url_content",
		Description: "Fetch the content of one or more URLs and return their text content (HTML stripped).",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"urls": {"type": "array", "items": {"type": "string"}, "description": "List of URLs to fetch content from."},
				"url": {"type": "string", "description": "Single URL (deprecated, use 'urls' instead)."},
				"summarize": {"type": "boolean", "description": "If true, summarize the content of the page using an LLM."}
			},
			"required": []
		}`),
		Executor: deps.executeGetURLContent,
	})

	r.Register(Definition{
		Name:        "get_url_details",
		Description: "Fetch content and extract links from a URL. Use this in deep dive mode.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {"url": {"type": "string"}},
			"required": ["url"]
		}`),
		Executor: deps.executeGetURLDetails,
	})

	r.Register(Definition{
		Name:        "get_date_time",
		Description: "Return the current date and time.",
		Parameters:  json.RawMessage(`{"type": "object", "properties": {}}`),
		Executor:    executeGetDateTime,
	})

	for name, schema := range customToolSchemas {
		name := name
		description := customToolDescriptions[name]
		if description == "" {
			description = fmt.Sprintf("Custom tool: %s", name)
		}
		r.Register(Definition{
			Name:        name,
			Description: description,
			Parameters:  schema,
			Executor:    deps.executeCustomTool(name),
		})
	}

	for name, endpoint := range deps.PushData {
		name, endpoint := name, endpoint
		description := deps.PushDataDescriptions[name]
		if description == "" {
			description = fmt.Sprintf("Push data to the %s endpoint.", name)
		}
		schema := deps.PushDataSchemas[name]
		if len(schema) == 0 {
			schema = json.RawMessage(`{"type": "object", "properties": {}}`)
		}
		r.Register(Definition{
			Name:        name,
			Description: description,
			Parameters:  schema,
			Executor:    deps.executePushData(name, endpoint),
		})
	}
}

func (d *Deps) executeWebSearch(ctx context.Context, args map[string]any, _ DispatchContext) (map[string]any, error) {
	if d.Search == nil {
		return map[string]any{"error": "web search is not configured"}, nil
	}
	q, _ := args["q"].(string)
	if q == "" {
		return map[string]any{"error": "'q' is required"}, nil
	}
	count := 5
	if c, ok := args["count"].(float64); ok && c > 0 {
		count = int(c)
	}
	results, err := d.Search.Search(ctx, q, count)
	if err != nil {
		return map[string]any{"error": err.Error()}, nil
	}
	// Normalize URLs, drop duplicates, and cap per-domain dominance before
	// the results reach the model.
	merged := aggregate.MergeAndNormalize([][]search.Result{results})
	selected := sel.Select(merged, sel.Options{MaxTotal: count, PerDomain: d.perDomainCap()})
	out := make([]map[string]any, 0, len(selected))
	for _, r := range selected {
		out = append(out, map[string]any{"title": r.Title, "url": r.URL, "snippet": r.Snippet})
	}
	return map[string]any{"results": out}, nil
}

func stringsArg(args map[string]any, key string) []string {
	switch v := args[key].(type) {
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// dedupeURLs drops duplicates after sanitization, preserving first-seen
// order.
func dedupeURLs(urls []string) []string {
	seen := make(map[string]struct{}, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		u = sanitizeURL(u)
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}

func (d *Deps) executeGetURLContent(ctx context.Context, args map[string]any, dctx DispatchContext) (map[string]any, error) {
	urls := stringsArg(args, "urls")
	urls = append(urls, stringsArg(args, "url")...)
	urls = dedupeURLs(urls)
	if len(urls) == 0 {
		return map[string]any{"error": "No URLs provided. Please specify 'urls' or 'url' parameter."}, nil
	}

	effectiveSummarize := dctx.Summarize
	if v, ok := args["summarize"].(bool); ok {
		effectiveSummarize = v
	}

	out := make(map[string]any, len(urls))
	for _, u := range urls {
		page := d.fetchAndParse(ctx, u, "")
		if page.Err != "" {
			out[u] = fmt.Sprintf("Error: %s", page.Err)
			continue
		}
		content := page.Content
		if effectiveSummarize && d.Summarizer != nil {
			summary, err := d.Summarizer.Summarize(ctx, summarize.AnswerSummaryPrompt, content, summarize.DefaultAnswerSummaryMaxChars)
			if err == nil {
				content = fmt.Sprintf("Summary of %s:\n%s", u, summary)
			}
		}
		out[u] = content
	}
	return out, nil
}

func (d *Deps) executeGetURLDetails(ctx context.Context, args map[string]any, _ DispatchContext) (map[string]any, error) {
	u, _ := args["url"].(string)
	if u == "" {
		return map[string]any{"error": "'url' is required"}, nil
	}
	page := d.fetchAndParse(ctx, sanitizeURL(u), "")
	if page.Err != "" {
		return map[string]any{"error": page.Err}, nil
	}
	links := make([]map[string]string, 0, len(page.Links))
	for _, l := range page.Links {
		links = append(links, map[string]string{"text": l.Text, "href": l.Href})
	}
	return map[string]any{
		"title":   page.Title,
		"content": page.Content,
		"links":   links,
	}, nil
}

func executeGetDateTime(_ context.Context, _ map[string]any, _ DispatchContext) (map[string]any, error) {
	now := time.Now().UTC()
	return map[string]any{
		"date_time": now.Format(time.RFC3339),
		"date":      now.Format("2006-01-02"),
		"time":      now.Format("15:04:05"),
	}, nil
}

func (d *Deps) executeCustomTool(name string) Executor {
	return func(ctx context.Context, args map[string]any, _ DispatchContext) (map[string]any, error) {
		if d.CustomTools == nil {
			return map[string]any{"error": fmt.Sprintf("custom tool %q is not configured", name)}, nil
		}
		inv, err := d.CustomTools.Invoke(ctx, name, args)
		if err != nil {
			return map[string]any{"error": err.Error()}, nil
		}
		result := map[string]any{
			"stdout":    inv.Stdout,
			"stderr":    inv.Stderr,
			"exit_code": inv.ExitCode,
		}
		if inv.Err != nil {
			result["error"] = inv.Err.Error()
		}
		return result, nil
	}
}

func (d *Deps) executePushData(name string, endpoint pushdata.Endpoint) Executor {
	return func(ctx context.Context, args map[string]any, _ DispatchContext) (map[string]any, error) {
		dynamicArgs := make(map[string]string, len(args))
		for k, v := range args {
			if s, ok := v.(string); ok {
				dynamicArgs[k] = s
			} else if b, err := json.Marshal(v); err == nil {
				dynamicArgs[k] = string(b)
			}
		}
		req := pushdata.Request{
			Query:       dynamicArgs["query"],
			Answer:      dynamicArgs["answer"],
			Model:       dynamicArgs["model"],
			DynamicArgs: dynamicArgs,
			Timestamp:   time.Now().UTC(),
		}
		getenv := d.GetEnv
		if getenv == nil {
			getenv = func(string) (string, bool) { return "", false }
		}
		client := d.HTTPClient
		if client == nil {
			client = &http.Client{Timeout: 30 * time.Second}
		}
		_ = name
		result := pushdata.Execute(ctx, client, endpoint, req, getenv)
		out := map[string]any{
			"success":  result.Success,
			"endpoint": result.Endpoint,
		}
		if result.StatusCode != 0 {
			out["status_code"] = result.StatusCode
		}
		if result.Error != "" {
			out["error"] = result.Error
		}
		return out, nil
	}
}
