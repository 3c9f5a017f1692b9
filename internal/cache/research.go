package cache

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/hyperifyio/seeker/internal/store"
)

// Summarizer produces a bounded summary of page content for the background
// summarization workers.
type Summarizer func(ctx context.Context, content string) (string, error)

// ResearchCache is the content-addressed page cache: CacheURL is idempotent
// on url ("cache wins until evicted"), and summaries populate asynchronously
// through a SummaryWorkerPool that consumers poll via GetSummary.
type ResearchCache struct {
	Store *store.Store
	Pool  *SummaryWorkerPool
}

// CacheURL inserts a page, or no-ops if the URL is already cached. When the
// row is newly created and triggerSummarization is set, the row id is
// handed to the worker pool; producers never await the summary.
func (c *ResearchCache) CacheURL(ctx context.Context, url, title, content string, links []byte, triggerSummarization bool) (store.URLCacheRow, error) {
	row, created, err := c.Store.UpsertURLCache(ctx, url, title, content, links)
	if err != nil {
		return store.URLCacheRow{}, fmt.Errorf("cache url: %w", err)
	}
	if created && triggerSummarization && c.Pool != nil {
		c.Pool.Enqueue(row.ID)
	}
	return row, nil
}

// GetSummary reports the current summary and status for url, for consumers
// polling after CacheURL triggered background summarization.
func (c *ResearchCache) GetSummary(ctx context.Context, url string) (summary string, status store.SummaryStatus, err error) {
	row, err := c.Store.GetURLCache(ctx, url)
	if err != nil {
		return "", "", fmt.Errorf("get summary: %w", err)
	}
	return row.Summary, row.SummaryStatus, nil
}

// SummaryWorkerPool is a bounded pool of background summarization workers
// draining a channel of cache-row ids, supervised by
// golang.org/x/sync/errgroup.
type SummaryWorkerPool struct {
	store      *store.Store
	summarize  Summarizer
	workers    int
	jobs       chan int64
	group      *errgroup.Group
	cancel     context.CancelFunc
	startOnce  sync.Once
	shutdownMu sync.Mutex
	shutdown   bool
}

// NewSummaryWorkerPool builds a pool with the given number of workers and a
// reasonably sized job buffer so CacheURL's Enqueue never blocks the caller
// under normal load.
func NewSummaryWorkerPool(s *store.Store, summarize Summarizer, workers int) *SummaryWorkerPool {
	if workers <= 0 {
		workers = 4
	}
	return &SummaryWorkerPool{
		store:     s,
		summarize: summarize,
		workers:   workers,
		jobs:      make(chan int64, 256),
	}
}

// Start launches the worker goroutines. Safe to call once; subsequent calls
// are no-ops.
func (p *SummaryWorkerPool) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		groupCtx, cancel := context.WithCancel(ctx)
		g, gctx := errgroup.WithContext(groupCtx)
		p.group = g
		p.cancel = cancel
		for i := 0; i < p.workers; i++ {
			g.Go(func() error {
				p.drain(gctx)
				return nil
			})
		}
	})
}

func (p *SummaryWorkerPool) drain(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case id, ok := <-p.jobs:
			if !ok {
				return
			}
			p.process(ctx, id)
		}
	}
}

func (p *SummaryWorkerPool) process(ctx context.Context, id int64) {
	ok, err := p.store.MarkSummaryProcessing(ctx, id)
	if err != nil || !ok {
		return
	}

	row, err := p.store.GetURLCacheByID(ctx, id)
	if err != nil {
		_, _ = p.store.SetSummaryResult(ctx, id, store.SummaryFailed, "")
		return
	}

	summary, err := p.summarize(ctx, row.Content)
	if err != nil {
		log.Warn().Err(err).Int64("cache_id", id).Msg("background summarization failed")
		_, _ = p.store.SetSummaryResult(ctx, id, store.SummaryFailed, "")
		return
	}
	_, _ = p.store.SetSummaryResult(ctx, id, store.SummaryCompleted, summary)
}

// Enqueue schedules cacheID for background summarization. Never blocks: a
// full buffer drops the job and leaves the row pending. Nothing enqueues a
// pending row again: CacheURL only enqueues rows it newly creates.
func (p *SummaryWorkerPool) Enqueue(cacheID int64) {
	p.shutdownMu.Lock()
	defer p.shutdownMu.Unlock()
	if p.shutdown {
		return
	}
	select {
	case p.jobs <- cacheID:
	default:
		log.Warn().Int64("cache_id", cacheID).Msg("summary queue full, leaving row pending")
	}
}

// Shutdown stops accepting new work, waits for in-flight jobs to drain up
// to ctx's deadline, then reclaims any row left in "processing" back to
// "pending" so a later process retries it instead of losing the
// summarization intent silently.
func (p *SummaryWorkerPool) Shutdown(ctx context.Context) error {
	p.shutdownMu.Lock()
	alreadyDown := p.shutdown
	p.shutdown = true
	if !alreadyDown {
		// Closing the queue lets workers finish the buffered jobs and exit.
		close(p.jobs)
	}
	p.shutdownMu.Unlock()

	if p.cancel == nil {
		return nil
	}

	done := make(chan error, 1)
	go func() {
		done <- p.group.Wait()
	}()

	select {
	case <-ctx.Done():
		// Deadline reached with jobs still in flight: stop waiting and
		// reclaim below rather than block on a job that may itself be
		// ignoring cancellation.
		p.cancel()
	case err := <-done:
		if err != nil {
			p.cancel()
			return err
		}
	}

	_, reclaimErr := p.store.ReclaimAbandonedSummaries(context.Background())
	return reclaimErr
}
