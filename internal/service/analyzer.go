package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dyike/agenttrader/internal/agents"
	"github.com/dyike/agenttrader/internal/dataflows"
	"github.com/dyike/agenttrader/internal/graph"
	"github.com/dyike/agenttrader/internal/memory"
	"github.com/dyike/agenttrader/internal/processing"
	"github.com/dyike/agenttrader/internal/storage"
	"github.com/dyike/agenttrader/models"
	"github.com/google/uuid"
	"github.com/kataras/golog"
)

var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrNoHistory      = errors.New("run history is not configured")
	ErrClosed         = errors.New("analyzer is closed")
)

type Option func(*Analyzer)

func WithStore(store *storage.Store) Option {
	return func(a *Analyzer) { a.store = store }
}

// WithResultsDir enables writing the reports of finished runs as markdown.
func WithResultsDir(dir string) Option {
	return func(a *Analyzer) { a.resultsDir = dir }
}

func WithClock(now func() time.Time) Option {
	return func(a *Analyzer) { a.now = now }
}

// WithReflection enables Reflect.
func WithReflection(r Reflector, memories *memory.Bank) Option {
	return func(a *Analyzer) {
		a.reflector = r
		a.memories = memories
	}
}

// WithCloser registers a cleanup run by Close after in-flight runs finish.
func WithCloser(fn func() error) Option {
	return func(a *Analyzer) { a.closers = append(a.closers, fn) }
}

// Analyzer runs analyses on a compiled trading graph. It is safe for
// concurrent use; each run owns its own state.
type Analyzer struct {
	graph      *graph.TradingAgentsGraph
	store      *storage.Store
	resultsDir string
	now        func() time.Time

	reflector Reflector
	memories  *memory.Bank

	mu       sync.Mutex
	closed   bool
	inflight sync.WaitGroup
	closers  []func() error
}

func NewAnalyzer(g *graph.TradingAgentsGraph, opts ...Option) *Analyzer {
	a := &Analyzer{graph: g, now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// DefaultTradeDate is two days before now.
func DefaultTradeDate(now time.Time) string {
	return now.AddDate(0, 0, -2).Format(dataflows.DateLayout)
}

func (a *Analyzer) normalize(req models.AnalyzeRequest) (string, string, error) {
	ticker := dataflows.NormalizeSymbol(req.Ticker)
	if err := dataflows.ValidateSymbol(ticker); err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	date := strings.TrimSpace(req.TradeDate)
	if date == "" {
		return ticker, DefaultTradeDate(a.now()), nil
	}
	if _, err := time.Parse(dataflows.DateLayout, date); err != nil {
		return "", "", fmt.Errorf("%w: trade_date %q must be yyyy-mm-dd", ErrInvalidRequest, date)
	}
	return ticker, date, nil
}

// Analyze runs one analysis to completion.
func (a *Analyzer) Analyze(ctx context.Context, req models.AnalyzeRequest) (*models.AnalyzeResponse, error) {
	state, err := a.run(ctx, req, nil)
	return models.NewAnalyzeResponse(state), err
}

// Stream runs one analysis and calls emit once per executed node and once
// more with the terminal event. emit is called from the caller's goroutine.
// A closed analyzer returns ErrClosed without emitting anything.
func (a *Analyzer) Stream(ctx context.Context, req models.AnalyzeRequest, emit func(models.StreamEvent)) error {
	state, err := a.run(ctx, req, func(node string) {
		emit(models.StreamEvent{Node: node})
	})
	if errors.Is(err, ErrClosed) {
		return err
	}
	done := models.StreamEvent{Done: true, AnalyzeResponse: models.NewAnalyzeResponse(state)}
	if err != nil {
		done.Error = err.Error()
	}
	emit(done)
	return err
}

func (a *Analyzer) run(ctx context.Context, req models.AnalyzeRequest, onNode func(string)) (*models.TradingState, error) {
	ticker, date, err := a.normalize(req)
	if err != nil {
		return nil, err
	}
	if err := a.acquire(); err != nil {
		return nil, err
	}
	defer a.inflight.Done()

	var rec *storage.Recorder
	if a.store != nil {
		rec, err = storage.NewRecorder(ctx, a.store, models.SessionRecord{
			ID:        uuid.NewString(),
			Ticker:    ticker,
			TradeDate: date,
		})
		if err != nil {
			return nil, fmt.Errorf("start session: %w", err)
		}
	}

	usage := &agents.Usage{}
	ctx = agents.WithRunUsage(ctx, usage)
	started := time.Now()
	golog.Infof("analysis %s %s started", ticker, date)

	var (
		state  *models.TradingState
		runErr error
		done   bool
	)
	for ev := range a.graph.Stream(ctx, ticker, date) {
		if ev.Done {
			state, runErr, done = ev.State, ev.Err, true
			continue
		}
		if rec != nil {
			rec.Record(ev.Step.Node, ev.Step.Delta)
		}
		if onNode != nil {
			onNode(ev.Step.Node)
		}
	}

	if !done {
		// the final event is dropped only when ctx was cancelled
		runErr = fmt.Errorf("stream ended early: %w", context.Cause(ctx))
	}

	if rec != nil {
		if err := rec.Finish(context.WithoutCancel(ctx), state, runErr); err != nil {
			golog.Warnf("finish session %s: %v", rec.SessionID(), err)
		}
	}
	if runErr != nil {
		golog.Errorf("analysis %s %s failed after %s: %v", ticker, date, time.Since(started).Round(time.Millisecond), runErr)
		return state, fmt.Errorf("analyze %s: %w", ticker, runErr)
	}

	calls, prompt, completion := usage.Totals()
	golog.Infof("analysis %s %s finished in %s, signal %s, %d model calls (%d prompt / %d completion tokens)", ticker, date,
		time.Since(started).Round(time.Millisecond), processing.Extract(state.FinalTradeDecision).Action, calls, prompt, completion)
	if a.resultsDir != "" {
		if err := WriteReports(a.resultsDir, state); err != nil {
			golog.Warnf("write reports for %s: %v", ticker, err)
		}
	}
	return state, nil
}

// acquire registers an in-flight call. It fails once Close has begun, so
// nothing starts on resources that are about to be released.
func (a *Analyzer) acquire() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrClosed
	}
	a.inflight.Add(1)
	return nil
}

// Close rejects new calls, waits for in-flight ones and releases the
// analyzer's resources. Later calls are no-ops.
func (a *Analyzer) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.mu.Unlock()

	a.inflight.Wait()
	var errs []error
	for _, fn := range a.closers {
		if err := fn(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
