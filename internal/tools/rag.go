package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hyperifyio/seeker/internal/adapters"
	"github.com/hyperifyio/seeker/internal/chunker"
	"github.com/hyperifyio/seeker/internal/embeddings"
	"github.com/hyperifyio/seeker/internal/extract"
	"github.com/hyperifyio/seeker/internal/store"
	"github.com/hyperifyio/seeker/internal/vectorstore"
)

// RegisterResearch registers the six research-memory tools the agent uses
// to accumulate and recall findings across a session.
func RegisterResearch(r *Registry, deps *Deps) {
	r.Register(Definition{
		Name:        "extract_links",
		Description: "Extract links from one or more URLs, caching their content. Ranks links by relevance when 'query' is given.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"urls": {"type": "array", "items": {"type": "string"}},
				"url": {"type": "string"},
				"query": {"type": "string"},
				"max_links": {"type": "integer"}
			},
			"required": []
		}`),
		Executor: deps.executeExtractLinks,
	})

	r.Register(Definition{
		Name:        "get_link_summaries",
		Description: "Get the (possibly still-generating) summaries for URLs already cached via extract_links.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {"urls": {"type": "array", "items": {"type": "string"}}},
			"required": ["urls"]
		}`),
		Executor: deps.executeGetLinkSummaries,
	})

	r.Register(Definition{
		Name:        "get_relevant_content",
		Description: "Retrieve the chunks of cached page content most relevant to a query, using semantic search.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"urls": {"type": "array", "items": {"type": "string"}},
				"query": {"type": "string"},
				"max_chunks": {"type": "integer"}
			},
			"required": ["urls", "query"]
		}`),
		Executor: deps.executeGetRelevantContent,
	})

	r.Register(Definition{
		Name:        "get_full_content",
		Description: "Get the full cached content for one or more URLs already fetched via extract_links.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {"urls": {"type": "array", "items": {"type": "string"}}},
			"required": ["urls"]
		}`),
		Executor: deps.executeGetFullContent,
	})

	r.Register(Definition{
		Name:        "save_finding",
		Description: "Save a research finding to persistent memory for later recall.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"finding": {"type": "string"},
				"source_url": {"type": "string"},
				"source_title": {"type": "string"},
				"tags": {"type": "array", "items": {"type": "string"}}
			},
			"required": ["finding"]
		}`),
		Executor: deps.executeSaveFinding,
	})

	r.Register(Definition{
		Name:        "query_research_memory",
		Description: "Search previously saved findings by semantic similarity to a query.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"query": {"type": "string"},
				"limit": {"type": "integer"}
			},
			"required": ["query"]
		}`),
		Executor: deps.executeQueryResearchMemory,
	})
}

func (d *Deps) embedQuery(ctx context.Context, query string) ([]float32, error) {
	if d.Embeddings == nil || !d.Embeddings.IsAvailable() {
		return nil, errNotConfigured
	}
	return d.Embeddings.EmbedSingle(ctx, query)
}

func (d *Deps) tryEmbedLinks(ctx context.Context, cacheID int64, links []extract.Link) {
	if d.Embeddings == nil || !d.Embeddings.IsAvailable() {
		return
	}
	has, err := d.Cache.Store.HasLinkEmbeddings(ctx, cacheID)
	if err != nil || has {
		return
	}
	texts := make([]string, len(links))
	for i, l := range links {
		texts[i] = l.Text
	}
	vectors, err := d.Embeddings.Embed(ctx, texts)
	if err != nil {
		return
	}
	rows := make([]store.EmbeddingRow, 0, len(links))
	for i, l := range links {
		if i >= len(vectors) {
			break
		}
		rows = append(rows, store.EmbeddingRow{Ordinal: i, OriginalText: l.Text, Href: l.Href, Vector: embeddings.Serialize(vectors[i])})
	}
	_ = d.Cache.Store.StoreLinkEmbeddings(ctx, cacheID, rows)
}

func (d *Deps) executeExtractLinks(ctx context.Context, args map[string]any, _ DispatchContext) (map[string]any, error) {
	urls := dedupeURLs(append(stringsArg(args, "urls"), stringsArg(args, "url")...))
	if len(urls) == 0 {
		return map[string]any{"error": "No URLs provided. Please specify 'urls' or 'url' parameter."}, nil
	}
	query, _ := args["query"].(string)
	maxLinks := d.maxLinks()
	if v, ok := args["max_links"].(float64); ok && v > 0 {
		maxLinks = int(v)
	}

	results := make(map[string]any, len(urls))
	for _, u := range urls {
		var cacheID int64
		var links []extract.Link
		var fromCache bool

		if row, ok := d.getCached(ctx, u); ok {
			cacheID = row.ID
			links = linksFromJSON(row.Links)
			fromCache = true
		} else {
			page := d.fetchAndParse(ctx, u, "")
			if page.Err != "" {
				results[u] = map[string]any{"error": page.Err}
				continue
			}
			row, err := d.Cache.CacheURL(ctx, u, page.Title, page.Content, linksToJSON(page.Links), true)
			if err != nil {
				results[u] = map[string]any{"error": err.Error()}
				continue
			}
			cacheID = row.ID
			links = page.Links
		}

		d.tryEmbedLinks(ctx, cacheID, links)

		if query != "" && len(links) > 0 {
			links = d.rankLinksByRelevance(ctx, cacheID, query, links, maxLinks)
		} else if len(links) > maxLinks {
			links = links[:maxLinks]
		}

		linkOut := make([]map[string]any, 0, len(links))
		for _, l := range links {
			linkOut = append(linkOut, map[string]any{"text": l.Text, "href": l.Href})
		}
		results[u] = map[string]any{
			"links":      linkOut,
			"cached":     fromCache,
			"link_count": len(links),
			"note":       "Content cached. Use get_link_summaries or get_relevant_content to read.",
		}
	}
	return results, nil
}

// rankLinksByRelevance ranks links by similarity to query, falling back to
// the first maxLinks unranked when embeddings are unavailable or ranking
// fails.
func (d *Deps) rankLinksByRelevance(ctx context.Context, cacheID int64, query string, links []extract.Link, maxLinks int) []extract.Link {
	queryVec, err := d.embedQuery(ctx, query)
	if err != nil {
		return truncateLinks(links, maxLinks)
	}
	topK := maxLinks
	if d.maxRelevantLinks() < topK {
		topK = d.maxRelevantLinks()
	}
	scored, err := vectorstore.RankLinksByRelevance(ctx, d.Cache.Store, cacheID, queryVec, topK)
	if err != nil || len(scored) == 0 {
		return truncateLinks(links, maxLinks)
	}
	out := make([]extract.Link, 0, len(scored))
	for _, s := range scored {
		out = append(out, extract.Link{Text: s.OriginalText, Href: s.Href})
	}
	return out
}

func truncateLinks(links []extract.Link, max int) []extract.Link {
	if max <= 0 || len(links) <= max {
		return links
	}
	return links[:max]
}

func (d *Deps) executeGetLinkSummaries(ctx context.Context, args map[string]any, _ DispatchContext) (map[string]any, error) {
	urls := dedupeURLs(stringsArg(args, "urls"))
	if len(urls) == 0 {
		return map[string]any{"error": "No URLs provided."}, nil
	}
	results := make(map[string]any, len(urls))
	for _, u := range urls {
		row, ok := d.getCached(ctx, u)
		if !ok {
			results[u] = map[string]any{"error": "Not cached. Use extract_links first to cache this URL."}
			continue
		}
		switch row.SummaryStatus {
		case store.SummaryCompleted:
			if row.Summary != "" {
				results[u] = map[string]any{"title": row.Title, "summary": row.Summary}
				continue
			}
			results[u] = map[string]any{"title": row.Title, "summary": "(Summary pending)", "status": string(row.SummaryStatus)}
		case store.SummaryProcessing:
			results[u] = map[string]any{"title": row.Title, "summary": "(Summary is being generated... try again in a moment)", "status": "processing"}
		case store.SummaryFailed:
			results[u] = map[string]any{"title": row.Title, "summary": "(Summary generation failed)", "status": "failed"}
		default:
			results[u] = map[string]any{"title": row.Title, "summary": "(Summary pending)", "status": string(row.SummaryStatus)}
		}
	}
	return results, nil
}

// relevantContentPreviewChars and relevantContentFallbackChars mirror the
// source's differing truncation lengths for the two distinct fallback
// branches of get_relevant_content: no relevant chunks found (2000 chars)
// versus a semantic-search exception (3000 chars).
const (
	relevantContentPreviewChars  = 2000
	relevantContentFallbackChars = 3000
)

func (d *Deps) executeGetRelevantContent(ctx context.Context, args map[string]any, _ DispatchContext) (map[string]any, error) {
	urls := dedupeURLs(stringsArg(args, "urls"))
	query, _ := args["query"].(string)
	maxChunks := 5
	if v, ok := args["max_chunks"].(float64); ok && v > 0 {
		maxChunks = int(v)
	}
	if len(urls) == 0 {
		return map[string]any{"error": "No URLs provided."}, nil
	}
	if query == "" {
		return map[string]any{"error": "Query is required for relevant content retrieval."}, nil
	}

	results := make(map[string]any, len(urls))
	for _, u := range urls {
		row, ok := d.getCached(ctx, u)
		if !ok {
			results[u] = map[string]any{"error": "Not cached. Use extract_links first to cache this URL."}
			continue
		}
		if row.Content == "" {
			results[u] = map[string]any{"error": "Cached content is empty."}
			continue
		}

		scored, err := d.relevantChunks(ctx, row, query, maxChunks)
		if err != nil {
			results[u] = map[string]any{
				"title":           row.Title,
				"fallback":        true,
				"note":            fmt.Sprintf("Semantic search unavailable (%s). Returning content preview.", truncateMessage(err.Error(), 50)),
				"content_preview": truncatePreview(row.Content, relevantContentFallbackChars),
			}
			continue
		}
		if len(scored) == 0 {
			results[u] = map[string]any{
				"title":           row.Title,
				"note":            "No highly relevant sections found. Returning content preview.",
				"content_preview": truncatePreview(row.Content, relevantContentPreviewChars),
			}
			continue
		}
		chunks := make([]map[string]any, 0, len(scored))
		for _, s := range scored {
			chunks = append(chunks, map[string]any{"text": s.OriginalText, "relevance": roundScore(s.Score)})
		}
		results[u] = map[string]any{
			"title":       row.Title,
			"chunks":      chunks,
			"chunk_count": len(chunks),
		}
	}
	return results, nil
}

func (d *Deps) relevantChunks(ctx context.Context, row store.URLCacheRow, query string, topK int) ([]vectorstore.Scored, error) {
	if d.Embeddings == nil || !d.Embeddings.IsAvailable() {
		return nil, errNotConfigured
	}
	has, err := d.Cache.Store.HasChunkEmbeddings(ctx, row.ID)
	if err != nil {
		return nil, err
	}
	if !has {
		chunks := chunker.Split(row.Content, d.chunkSize(), d.chunkOverlap())
		vectors, err := d.Embeddings.Embed(ctx, chunks)
		if err != nil {
			return nil, err
		}
		rows := make([]store.EmbeddingRow, 0, len(chunks))
		for i, text := range chunks {
			if i >= len(vectors) {
				break
			}
			rows = append(rows, store.EmbeddingRow{Ordinal: i, OriginalText: text, Vector: embeddings.Serialize(vectors[i])})
		}
		if len(rows) == 0 {
			return nil, fmt.Errorf("failed to store chunk embeddings")
		}
		if err := d.Cache.Store.StoreChunkEmbeddings(ctx, row.ID, rows); err != nil {
			return nil, err
		}
	}

	queryVec, err := d.embedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	return vectorstore.SearchChunks(ctx, d.Cache.Store, row.ID, queryVec, topK)
}

func (d *Deps) executeGetFullContent(ctx context.Context, args map[string]any, _ DispatchContext) (map[string]any, error) {
	urls := dedupeURLs(stringsArg(args, "urls"))
	if len(urls) == 0 {
		return map[string]any{"error": "No URLs provided."}, nil
	}
	results := make(map[string]any, len(urls))
	for _, u := range urls {
		row, ok := d.getCached(ctx, u)
		if !ok {
			// A cache miss on an adapter-backed target reads it through the
			// adapter's read tool and caches the normalized payload.
			fetched, ferr := d.fetchViaAdapter(ctx, u)
			if ferr != "" {
				results[u] = map[string]any{"error": ferr}
				continue
			}
			row = fetched
		}
		if row.Content == "" {
			results[u] = map[string]any{"error": "Cached content is empty."}
			continue
		}
		results[u] = map[string]any{
			"title":          row.Title,
			"content":        row.Content,
			"content_length": len(row.Content),
		}
	}
	return results, nil
}

// fetchViaAdapter resolves a non-cached target through the source-adapter
// layer, caching the normalized payload on success. Targets with no
// matching adapter keep the "extract_links first" contract.
func (d *Deps) fetchViaAdapter(ctx context.Context, target string) (store.URLCacheRow, string) {
	if d.CustomTools == nil || !adapters.Has(d.Adapters, target) {
		return store.URLCacheRow{}, "Not cached. Use extract_links first to cache this URL."
	}
	result, ok := adapters.FetchVia(ctx, d.CustomTools, d.Adapters, target, "", adapters.DefaultMaxLinks, adapters.OperationRead)
	if !ok {
		return store.URLCacheRow{}, "Not cached. Use extract_links first to cache this URL."
	}
	if result.Error != "" {
		return store.URLCacheRow{}, result.Error
	}
	links := make([]extract.Link, 0, len(result.Links))
	for _, l := range result.Links {
		links = append(links, extract.Link{Text: l.Text, Href: l.Href})
	}
	row, err := d.Cache.CacheURL(ctx, target, result.Title, result.Content, linksToJSON(links), true)
	if err != nil {
		return store.URLCacheRow{}, err.Error()
	}
	return row, ""
}

func (d *Deps) executeSaveFinding(ctx context.Context, args map[string]any, _ DispatchContext) (map[string]any, error) {
	finding := strings.TrimSpace(stringArg(args, "finding"))
	if finding == "" {
		return map[string]any{"error": "Finding text is required."}, nil
	}
	sourceURL := stringArg(args, "source_url")
	sourceTitle := stringArg(args, "source_title")
	tags := stringsArg(args, "tags")

	row, err := d.Cache.Store.InsertFinding(ctx, finding, sourceURL, sourceTitle, tags)
	if err != nil {
		return map[string]any{"error": err.Error()}, nil
	}

	embedded := false
	if d.Embeddings != nil && d.Embeddings.IsAvailable() {
		if vec, err := d.Embeddings.EmbedSingle(ctx, finding); err == nil {
			if err := d.Cache.Store.StoreFindingEmbedding(ctx, row.ID, store.EmbeddingRow{OriginalText: finding, Vector: embeddings.Serialize(vec)}); err == nil {
				embedded = true
			}
		}
	}

	note := "Finding saved to research memory"
	if embedded {
		note += " with embedding"
	} else {
		note += " (without embedding - API unavailable)"
	}
	return map[string]any{
		"status":     "saved",
		"finding_id": row.ID,
		"embedded":   embedded,
		"note":       note,
	}, nil
}

func (d *Deps) executeQueryResearchMemory(ctx context.Context, args map[string]any, _ DispatchContext) (map[string]any, error) {
	query := strings.TrimSpace(stringArg(args, "query"))
	if query == "" {
		return map[string]any{"error": "Query is required."}, nil
	}
	limit := 5
	if v, ok := args["limit"].(float64); ok && v > 0 {
		limit = int(v)
	}

	queryVec, err := d.embedQuery(ctx, query)
	if err == nil {
		scored, serr := vectorstore.SearchFindings(ctx, d.Cache.Store, queryVec, limit)
		if serr == nil && len(scored) > 0 {
			findings := make([]map[string]any, 0, len(scored))
			for _, s := range scored {
				findings = append(findings, map[string]any{
					"finding":   s.OriginalText,
					"relevance": roundScore(s.Score),
				})
			}
			return map[string]any{"findings": findings, "count": len(findings), "search_type": "semantic"}, nil
		}
		if serr == nil {
			return d.recentFindingsFallback(ctx, limit, "No semantically relevant findings. Showing recent findings.", "recent")
		}
		err = serr
	}

	return d.recentFindingsFallback(ctx, limit, fmt.Sprintf("Semantic search unavailable (%s). Showing recent findings.", truncateMessage(err.Error(), 30)), "fallback")
}

func (d *Deps) recentFindingsFallback(ctx context.Context, limit int, note, searchType string) (map[string]any, error) {
	recent, err := d.Cache.Store.ListRecentFindings(ctx, limit)
	if err != nil || len(recent) == 0 {
		return map[string]any{
			"findings": []map[string]any{},
			"note":     "No findings in research memory yet. Use save_finding to store discoveries.",
		}, nil
	}
	findings := make([]map[string]any, 0, len(recent))
	for _, f := range recent {
		findings = append(findings, map[string]any{
			"finding":      f.Text,
			"source_url":   f.SourceURL,
			"source_title": f.SourceTitle,
			"tags":         f.Tags,
			"saved_at":     f.CreatedAt,
		})
	}
	return map[string]any{
		"findings":    findings,
		"count":       len(findings),
		"note":        note,
		"search_type": searchType,
	}, nil
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

func truncatePreview(content string, max int) string {
	if len(content) <= max {
		return content
	}
	return content[:max] + "..."
}

func truncateMessage(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

func roundScore(score float32) float64 {
	return float64(int(score*1000+0.5)) / 1000
}
