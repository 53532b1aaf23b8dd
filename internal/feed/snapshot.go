package feed

import (
	"context"
	"errors"
	"sync"

	"llm-trading-dashboard/internal/interfaces"
	"llm-trading-dashboard/internal/logger"
	"llm-trading-dashboard/internal/state"
)

var errSnapshotIncomplete = errors.New("snapshot refresh incomplete, keeping cached data")

// SnapshotResult reports which of the four pulls succeeded.
type SnapshotResult struct {
	Status    error
	Portfolio error
	Trades    error
	Logs      error
}

func (r SnapshotResult) OK() bool {
	return r.Status == nil && r.Portfolio == nil && r.Trades == nil && r.Logs == nil
}

// Failed counts the pulls that did not apply.
func (r SnapshotResult) Failed() int {
	n := 0
	for _, err := range []error{r.Status, r.Portfolio, r.Trades, r.Logs} {
		if err != nil {
			n++
		}
	}
	return n
}

// SnapshotFetcher pulls full state from the backend. Each endpoint is fetched
// on its own goroutine and applied as soon as it returns, so one slow or
// failing endpoint never holds back or blanks the others.
type SnapshotFetcher struct {
	source interfaces.SnapshotSource
	store  *state.Store
}

func NewSnapshotFetcher(source interfaces.SnapshotSource, store *state.Store) *SnapshotFetcher {
	return &SnapshotFetcher{source: source, store: store}
}

func (f *SnapshotFetcher) Fetch(ctx context.Context) SnapshotResult {
	op := logger.StartOperation(ctx, "snapshot.fetch")
	ctx = op.GetContext()

	var (
		res SnapshotResult
		wg  sync.WaitGroup
	)
	wg.Add(4)

	go func() {
		defer wg.Done()
		st, err := f.source.Status(ctx)
		if res.Status = err; err == nil {
			f.store.ApplyStatus(st)
		}
	}()
	go func() {
		defer wg.Done()
		p, err := f.source.Portfolio(ctx)
		if res.Portfolio = err; err == nil {
			f.store.ApplyPortfolio(p)
		}
	}()
	go func() {
		defer wg.Done()
		trades, err := f.source.Trades(ctx)
		if res.Trades = err; err == nil {
			f.store.ReplaceTrades(trades)
		}
	}()
	go func() {
		defer wg.Done()
		logs, err := f.source.Logs(ctx)
		if res.Logs = err; err == nil {
			f.store.ReplaceLogs(logs)
		}
	}()

	wg.Wait()

	switch {
	case res.OK():
		op.End()
	case ctx.Err() != nil:
		op.End("cancelled", true)
	default:
		op.EndWithError(errSnapshotIncomplete,
			"failed", res.Failed(),
			"status_error", errString(res.Status),
			"portfolio_error", errString(res.Portfolio),
			"trades_error", errString(res.Trades),
			"logs_error", errString(res.Logs))
	}
	return res
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
