package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/hyperifyio/seeker/internal/adapters"
	"github.com/hyperifyio/seeker/internal/cache"
	"github.com/hyperifyio/seeker/internal/customtool"
	"github.com/hyperifyio/seeker/internal/embeddings"
	"github.com/hyperifyio/seeker/internal/extract"
	"github.com/hyperifyio/seeker/internal/fetch"
	"github.com/hyperifyio/seeker/internal/pushdata"
	"github.com/hyperifyio/seeker/internal/search"
	"github.com/hyperifyio/seeker/internal/store"
	"github.com/hyperifyio/seeker/internal/summarize"
)

// CustomToolRunner is the executor surface the tools need from
// internal/customtool: the adapter-facing run call plus the full
// invocation shape for directly-registered custom tools. Satisfied by
// *customtool.Runner.
type CustomToolRunner interface {
	adapters.CustomToolRunner
	Has(name string) bool
	Invoke(ctx context.Context, name string, args map[string]any) (customtool.Invocation, error)
}

// Deps bundles every collaborator the built-in and research tools call
// into, so RegisterBuiltins/RegisterResearch take one argument instead of
// a long parameter list.
type Deps struct {
	Search      search.Provider
	Fetch       *fetch.Client
	Cache       *cache.ResearchCache
	Embeddings  *embeddings.Client
	Summarizer  *summarize.Service
	CustomTools CustomToolRunner
	Adapters    []adapters.Adapter

	PushData             map[string]pushdata.Endpoint
	PushDataDescriptions map[string]string
	PushDataSchemas      map[string]json.RawMessage

	HTTPClient *http.Client
	GetEnv     func(string) (string, bool)

	// DefaultMaxLinks, MaxRelevantLinks, ChunkSize and ChunkOverlap bound
	// link extraction and chunk embedding; zero values use the package
	// defaults.
	DefaultMaxLinks  int
	MaxRelevantLinks int
	ChunkSize        int
	ChunkOverlap     int

	// SearchPerDomainCap bounds how many web_search results one domain may
	// contribute. Zero means 3.
	SearchPerDomainCap int
}

func (d *Deps) perDomainCap() int {
	if d.SearchPerDomainCap > 0 {
		return d.SearchPerDomainCap
	}
	return 3
}

func (d *Deps) maxLinks() int {
	if d.DefaultMaxLinks > 0 {
		return d.DefaultMaxLinks
	}
	return 20
}

func (d *Deps) maxRelevantLinks() int {
	if d.MaxRelevantLinks > 0 {
		return d.MaxRelevantLinks
	}
	return 10
}

func (d *Deps) chunkSize() int {
	if d.ChunkSize > 0 {
		return d.ChunkSize
	}
	return 1200
}

func (d *Deps) chunkOverlap() int {
	if d.ChunkOverlap > 0 {
		return d.ChunkOverlap
	}
	return 200
}

// fetchedPage is the normalized shape of one fetched-or-adapted page.
type fetchedPage struct {
	Content string
	Title   string
	Links   []extract.Link
	Err     string
}

// fetchAndParse retrieves target either through a matching source adapter
// or a direct HTTP GET + HTML extraction, normalizing both paths to the
// same shape.
func (d *Deps) fetchAndParse(ctx context.Context, target, query string) fetchedPage {
	if d.CustomTools != nil {
		if result, ok := adapters.FetchVia(ctx, d.CustomTools, d.Adapters, target, query, d.maxLinks(), adapters.OperationRead); ok {
			if result.Error != "" {
				return fetchedPage{Err: result.Error}
			}
			links := make([]extract.Link, 0, len(result.Links))
			for _, l := range result.Links {
				links = append(links, extract.Link{Text: l.Text, Href: l.Href})
			}
			return fetchedPage{Content: result.Content, Title: result.Title, Links: links}
		}
	}

	if d.Fetch == nil {
		return fetchedPage{Err: "no fetch client configured"}
	}
	body, contentType, err := d.Fetch.Get(ctx, sanitizeURL(target))
	if err != nil {
		return fetchedPage{Err: err.Error()}
	}
	if !strings.Contains(contentType, "html") && contentType != "" {
		return fetchedPage{Err: fmt.Sprintf("unsupported content type: %s", contentType)}
	}

	doc := extract.FromHTML(body)
	title := doc.Title
	if title == "" {
		title = firstNonEmptyLine(doc.Text, 200)
	}
	if title == "" {
		title = target
	}
	return fetchedPage{
		Content: doc.Text,
		Title:   title,
		Links:   extract.Links(body, target),
	}
}

func firstNonEmptyLine(text string, maxLen int) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if len(line) > maxLen {
			return line[:maxLen]
		}
		return line
	}
	return ""
}

func sanitizeURL(u string) string {
	return strings.ReplaceAll(u, "\\", "")
}

func linksToJSON(links []extract.Link) []byte {
	type jsonLink struct {
		Text string `json:"text"`
		Href string `json:"href"`
	}
	out := make([]jsonLink, 0, len(links))
	for _, l := range links {
		out = append(out, jsonLink{Text: l.Text, Href: l.Href})
	}
	b, err := json.Marshal(out)
	if err != nil {
		return []byte("[]")
	}
	return b
}

func linksFromJSON(raw []byte) []extract.Link {
	type jsonLink struct {
		Text string `json:"text"`
		Href string `json:"href"`
	}
	var parsed []jsonLink
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil
	}
	out := make([]extract.Link, 0, len(parsed))
	for _, l := range parsed {
		out = append(out, extract.Link{Text: l.Text, Href: l.Href})
	}
	return out
}

// getCached returns a page's cache row, or ok=false if it is not cached.
func (d *Deps) getCached(ctx context.Context, url string) (store.URLCacheRow, bool) {
	row, err := d.Cache.Store.GetURLCache(ctx, url)
	if err != nil {
		return store.URLCacheRow{}, false
	}
	return row, true
}

var errNotConfigured = errors.New("dependency not configured")
