package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fairyhunter13/ai-signal-executor/internal/adapter/observability"
	"github.com/fairyhunter13/ai-signal-executor/internal/domain"
	"github.com/fairyhunter13/ai-signal-executor/internal/marketclock"
)

// Prefetcher gathers the read-only facts the model needs, in parallel,
// under a hard wall-clock budget. A sub-read that errors or times out
// becomes an unavailable marker in the bundle; it never cancels the
// other reads and never aborts the task.
type Prefetcher struct {
	Broker domain.Broker
	Market domain.MarketData
	Budget time.Duration
	Now    func() time.Time
}

// NewPrefetcher constructs a Prefetcher with its dependencies.
func NewPrefetcher(b domain.Broker, m domain.MarketData, budget time.Duration) Prefetcher {
	return Prefetcher{Broker: b, Market: m, Budget: budget, Now: time.Now}
}

// Gather returns a bundle with whatever completed inside the budget.
// The market clock is computed locally, so only the four network reads
// run on goroutines.
func (p Prefetcher) Gather(ctx domain.Context, sig domain.Signal) domain.PrefetchBundle {
	cctx, cancel := context.WithTimeout(ctx, p.Budget)
	defer cancel()

	ti := marketclock.Status(p.Now())
	bundle := domain.PrefetchBundle{Time: &ti, Signal: &sig}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	fail := func(kind, reason string, err error) {
		mu.Lock()
		bundle.MarkUnavailable(kind, reason)
		mu.Unlock()
		observability.PrefetchFailuresTotal.WithLabelValues(kind).Inc()
		slog.Warn("prefetch sub-read failed",
			slog.String("kind", kind),
			slog.String("thread_id", sig.ThreadID),
			slog.Any("error", err))
	}
	launch := func(kind string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// A panicking adapter must not take the process down; fold
			// it into an unavailable marker like any other failure.
			defer func() {
				if r := recover(); r != nil {
					fail(kind, fmt.Sprintf("panic: %v", r), fmt.Errorf("%v", r))
				}
			}()
			err := fn(cctx)
			if err == nil {
				return
			}
			reason := err.Error()
			if cctx.Err() != nil {
				reason = "timed out: " + reason
			}
			fail(kind, reason, err)
		}()
	}

	// Decided before any goroutine starts so the marker append does not
	// race the locked appends from failing sub-reads.
	if sig.Parsed.Ticker == "" {
		bundle.MarkUnavailable("option_chain", "no ticker parsed from signal")
	}

	launch("account", func(ctx context.Context) error {
		ai, err := p.Broker.Account(ctx)
		if err != nil {
			return err
		}
		bundle.Account = &ai
		return nil
	})
	launch("positions", func(ctx context.Context) error {
		ps, err := p.Broker.Positions(ctx)
		if err != nil {
			return err
		}
		bundle.Positions = ps
		return nil
	})
	launch("vix", func(ctx context.Context) error {
		v, err := p.Market.VIX(ctx)
		if err != nil {
			return err
		}
		bundle.VIX = &v
		return nil
	})
	if sig.Parsed.Ticker != "" {
		launch("option_chain", func(ctx context.Context) error {
			chain, err := p.Market.OptionChain(ctx, sig.Parsed.Ticker, sig.Parsed.Expiry)
			if err != nil {
				return err
			}
			bundle.OptionChain = &chain
			return nil
		})
	}

	wg.Wait()
	return bundle
}
