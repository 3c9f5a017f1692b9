// Package adapters routes research targets matching a configured URI-like
// prefix to a custom tool that knows how to discover or read them, instead
// of the default HTTP fetch path. This lets the agent research content that
// lives behind a prefix like "local://" or "intranet://" that an ordinary
// URL fetch cannot reach.
package adapters

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
)

// DefaultMaxLinks bounds how many links an adapter's discovery payload
// contributes when the caller does not request a specific limit.
const DefaultMaxLinks = 50

var hrefFields = []string{"href", "url", "target", "id", "path"}
var textFields = []string{"text", "title", "name", "label"}

// Adapter is one configured research source adapter.
type Adapter struct {
	Name        string
	Prefix      string
	DiscoverTool string
	ReadTool    string
}

// Link is a normalized {text, href} pair.
type Link struct {
	Text string `json:"text"`
	Href string `json:"href"`
}

// FetchResult is the normalized research fetch contract an adapter or a
// direct HTML fetch both produce.
type FetchResult struct {
	Content string
	Title   string
	Links   []Link
	Error   string
}

// CustomToolRunner executes a named custom tool with JSON-shaped args and
// returns its parsed stdout plus any dispatch-level error (process failed
// to start, timed out; distinct from the tool's own stdout error).
type CustomToolRunner interface {
	RunCustomTool(ctx context.Context, name string, args map[string]any) (stdout string, err error)
}

// Resolve builds the enabled adapter set from configuration, matching
// longest-prefix-first so a more specific adapter wins over a shorter
// generic one sharing a common prefix.
func Resolve(configured map[string]Adapter) []Adapter {
	out := make([]Adapter, 0, len(configured))
	for _, a := range configured {
		if strings.TrimSpace(a.Prefix) == "" {
			continue
		}
		if a.DiscoverTool == "" && a.ReadTool == "" {
			continue
		}
		if a.DiscoverTool == "" {
			a.DiscoverTool = a.ReadTool
		}
		if a.ReadTool == "" {
			a.ReadTool = a.DiscoverTool
		}
		out = append(out, a)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return len(out[i].Prefix) > len(out[j].Prefix)
	})
	return out
}

// Get returns the adapter whose prefix matches target, or false if none do.
func Get(adapters []Adapter, target string) (Adapter, bool) {
	if target == "" {
		return Adapter{}, false
	}
	for _, a := range adapters {
		if strings.HasPrefix(target, a.Prefix) {
			return a, true
		}
	}
	return Adapter{}, false
}

// Has reports whether any configured adapter handles target.
func Has(adapters []Adapter, target string) bool {
	_, ok := Get(adapters, target)
	return ok
}

func coerceText(v any, fallback string) string {
	if v == nil {
		return fallback
	}
	switch t := v.(type) {
	case string:
		return t
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fallback
		}
		return string(b)
	}
}

func normalizeLink(item any, fallback string) (Link, bool) {
	switch v := item.(type) {
	case string:
		text := strings.TrimSpace(v)
		if text == "" {
			return Link{}, false
		}
		return Link{Text: text, Href: text}, true
	case map[string]any:
		var href string
		for _, f := range hrefFields {
			if val, ok := v[f]; ok && val != nil {
				s := strings.TrimSpace(coerceText(val, ""))
				if s != "" {
					href = s
					break
				}
			}
		}
		if href == "" {
			return Link{}, false
		}
		var text string
		for _, f := range textFields {
			if val, ok := v[f]; ok && val != nil {
				s := strings.TrimSpace(coerceText(val, ""))
				if s != "" {
					text = s
					break
				}
			}
		}
		if text == "" {
			text = href
		}
		return Link{Text: text, Href: href}, true
	default:
		return Link{}, false
	}
}

// NormalizeLinks normalizes a raw adapter links payload, bounding the
// result to maxLinks entries.
func NormalizeLinks(raw any, maxLinks int) []Link {
	items, ok := raw.([]any)
	if !ok {
		return nil
	}
	var out []Link
	for _, item := range items {
		link, ok := normalizeLink(item, "")
		if !ok {
			continue
		}
		out = append(out, link)
		if len(out) >= maxLinks {
			break
		}
	}
	return out
}

func parseAdapterStdout(stdout string) (map[string]any, string) {
	if strings.TrimSpace(stdout) == "" {
		return nil, "adapter tool returned empty stdout"
	}
	var data any
	if err := json.Unmarshal([]byte(stdout), &data); err != nil {
		return nil, "adapter tool returned invalid JSON: " + err.Error()
	}
	obj, ok := data.(map[string]any)
	if !ok {
		return nil, "adapter tool JSON output must be an object"
	}
	return obj, ""
}

func normalizeAdapterPayload(payload map[string]any, target string, maxLinks int) FetchResult {
	if errVal, ok := payload["error"]; ok && errVal != nil {
		if s := coerceText(errVal, ""); s != "" {
			return FetchResult{Title: target, Error: s}
		}
	}

	title := target
	if t, ok := payload["title"]; ok && t != nil {
		title = coerceText(t, target)
	} else if n, ok := payload["name"]; ok && n != nil {
		title = coerceText(n, target)
	}

	content := ""
	if c, ok := payload["content"]; ok {
		content = coerceText(c, "")
	}

	rawLinks := payload["links"]
	if rawLinks == nil {
		rawLinks = payload["items"]
	}
	links := NormalizeLinks(rawLinks, maxLinks)

	return FetchResult{Content: content, Title: title, Links: links}
}

// Operation names the two adapter invocation modes.
type Operation string

const (
	OperationDiscover Operation = "discover"
	OperationRead     Operation = "read"
)

// FetchVia invokes the matching adapter's custom tool for target and
// normalizes its response. Returns ok=false when no adapter matches target.
func FetchVia(ctx context.Context, runner CustomToolRunner, adapters []Adapter, target, query string, maxLinks int, op Operation) (FetchResult, bool) {
	adapter, ok := Get(adapters, target)
	if !ok {
		return FetchResult{}, false
	}
	if maxLinks <= 0 {
		maxLinks = DefaultMaxLinks
	}
	toolName := adapter.DiscoverTool
	if op == OperationRead {
		toolName = adapter.ReadTool
	}

	args := map[string]any{
		"target":    target,
		"max_links": maxLinks,
		"operation": string(op),
	}
	if query != "" {
		args["query"] = query
	}

	stdout, err := runner.RunCustomTool(ctx, toolName, args)
	if err != nil {
		return FetchResult{Title: target, Error: err.Error()}, true
	}

	payload, parseErr := parseAdapterStdout(stdout)
	if parseErr != "" {
		return FetchResult{Title: target, Error: parseErr}, true
	}
	return normalizeAdapterPayload(payload, target, maxLinks), true
}
