package main

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// DetailResult is the outcome of one shop detail fetch.
type DetailResult struct {
	ShopID string
	Detail *ShopDetail
	Err    error
	Fatal  bool
}

// DetailPool runs a bounded set of workers that fetch shop details
// concurrently. All workers share one engine: the request counter and the
// proxy pool serialize behind their locks, and a proxied send holds the
// engine's client lock so each pool slot carries exactly one request. A
// worker suspended by pacing or a verification prompt blocks only itself.
type DetailPool struct {
	fetcher      *DetailFetcher
	workerCount  int
	workChan     chan string
	resultsChan  chan DetailResult
	wg           sync.WaitGroup
	logger       Logger
	staggerDelay time.Duration
	cancel       context.CancelFunc
	fatalOnce    sync.Once
	stopped      atomic.Bool
}

func NewDetailPool(workerCount int, fetcher *DetailFetcher, staggerDelay time.Duration, logger Logger) *DetailPool {
	return &DetailPool{
		fetcher:      fetcher,
		workerCount:  workerCount,
		workChan:     make(chan string, workerCount*2),
		resultsChan:  make(chan DetailResult, workerCount*2),
		logger:       logger,
		staggerDelay: staggerDelay,
	}
}

// workerLogger wraps a logger with a worker ID prefix.
type workerLogger struct {
	id   string
	base Logger
}

func (w *workerLogger) Log(format string, args ...any) {
	w.base.Log("[%s] "+format, append([]any{w.id}, args...)...)
}

func (p *DetailPool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)

	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.runWorker(ctx, &workerLogger{id: shortID(), base: p.logger})

		if p.staggerDelay > 0 && i < p.workerCount-1 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(p.staggerDelay):
			}
		}
	}
}

func (p *DetailPool) handleFatalError(shopID string, err error) {
	p.fatalOnce.Do(func() {
		p.stopped.Store(true)
		p.logger.Log("FATAL ERROR: %v - stopping all workers", err)

		if p.cancel != nil {
			p.cancel()
		}

		select {
		case p.resultsChan <- DetailResult{ShopID: shopID, Fatal: true, Err: err}:
		default:
		}
	})
}

func (p *DetailPool) runWorker(ctx context.Context, logger Logger) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case shopID, ok := <-p.workChan:
			if !ok {
				return
			}
			if p.stopped.Load() {
				return
			}

			logger.Log("Fetching detail: %s", shopID)
			detail, err := p.fetcher.Fetch(shopID)

			if err != nil && IsFatalError(err) {
				p.handleFatalError(shopID, err)
				return
			}

			select {
			case p.resultsChan <- DetailResult{ShopID: shopID, Detail: detail, Err: err}:
			case <-ctx.Done():
				return
			}
		}
	}
}

// Submit queues a shop ID for detail fetching.
func (p *DetailPool) Submit(shopID string) {
	p.workChan <- shopID
}

// Results returns the channel detail outcomes are delivered on.
func (p *DetailPool) Results() <-chan DetailResult {
	return p.resultsChan
}

// Close shuts the pool down and waits for the workers to drain.
func (p *DetailPool) Close() {
	close(p.workChan)
	p.wg.Wait()
	close(p.resultsChan)
}
