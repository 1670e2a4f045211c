package dataset

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/fmuoria/resume-screener/internal/table"
)

// Store persists the summary table. While an artifact is present it is
// authoritative and the pipeline does not run.
type Store interface {
	// Lock serialises loads and rebuilds, also across processes sharing
	// the artifact.
	Lock(ctx context.Context) (unlock func(), err error)
	// Load returns the stored summary, or false when there is none (or
	// it is stale).
	Load(ctx context.Context) (*table.Frame, bool, error)
	Save(ctx context.Context, summary *table.Frame, fingerprint string) error
	Remove() error
}

// DefaultLoadTimeout bounds one pipeline run, downloads included.
const DefaultLoadTimeout = 30 * time.Minute

// Loader produces the summary table, from the store when possible, and keeps
// the last result in memory for the rest of the process.
type Loader struct {
	acquirer *Acquirer
	sources  []Source
	store    Store
	group    singleflight.Group
	builds   atomic.Int64
	logger   *slog.Logger

	maxAge  time.Duration
	timeout time.Duration
	now     func() time.Time

	mu       sync.RWMutex
	current  *table.Frame
	loadedAt time.Time
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithMaxAge makes the in-memory summary expire after d; the next Load goes
// back to the store. d <= 0 keeps it for the life of the process.
func WithMaxAge(d time.Duration) LoaderOption {
	return func(l *Loader) { l.maxAge = d }
}

// WithLoadTimeout bounds a single pipeline run.
func WithLoadTimeout(d time.Duration) LoaderOption {
	return func(l *Loader) {
		if d > 0 {
			l.timeout = d
		}
	}
}

// NewLoader wires the acquisition, flattening and join stages to a store.
func NewLoader(acquirer *Acquirer, sources []Source, store Store, opts ...LoaderOption) *Loader {
	l := &Loader{
		acquirer: acquirer,
		sources:  sources,
		store:    store,
		logger:   slog.With("component", "loader"),
		timeout:  DefaultLoadTimeout,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load returns the summary held in memory, then the stored one; otherwise
// it runs the whole pipeline and stores the result before returning it.
// Concurrent callers share one load, and a caller that gives up does not
// cancel it for the others.
func (l *Loader) Load(ctx context.Context) (*table.Frame, error) {
	if summary, ok := l.inMemory(); ok {
		return summary, nil
	}
	return l.do(ctx, "load", false)
}

// Rebuild discards the stored summary and recomputes it. Local source files
// are kept; delete them to force a new download.
func (l *Loader) Rebuild(ctx context.Context) (*table.Frame, error) {
	return l.do(ctx, "rebuild", true)
}

func (l *Loader) do(ctx context.Context, key string, rebuild bool) (*table.Frame, error) {
	ch := l.group.DoChan(key, func() (any, error) {
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.timeout)
		defer cancel()
		return l.run(runCtx, rebuild)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*table.Frame), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *Loader) inMemory() (*table.Frame, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.current == nil {
		return nil, false
	}
	if l.maxAge > 0 && l.now().Sub(l.loadedAt) > l.maxAge {
		return nil, false
	}
	return l.current, true
}

func (l *Loader) keep(summary *table.Frame) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.current = summary
	l.loadedAt = l.now()
}

// Builds returns how many times the pipeline has run in this process.
func (l *Loader) Builds() int64 { return l.builds.Load() }

func (l *Loader) run(ctx context.Context, rebuild bool) (*table.Frame, error) {
	unlock, err := l.store.Lock(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to lock summary cache: %w", err)
	}
	defer unlock()

	if rebuild {
		if err := l.store.Remove(); err != nil {
			return nil, fmt.Errorf("failed to remove summary cache: %w", err)
		}
	} else {
		summary, ok, err := l.store.Load(ctx)
		switch {
		case err != nil:
			l.logger.Warn("summary cache unreadable, rebuilding", "error", err)
		case ok:
			l.logger.Info("summary loaded from cache", "rows", summary.Len())
			l.keep(summary)
			return summary, nil
		}
	}

	start := time.Now()
	summary, err := l.build(ctx)
	if err != nil {
		return nil, err
	}
	l.builds.Add(1)

	fingerprint, err := l.acquirer.Fingerprint(l.sources)
	if err != nil {
		return nil, fmt.Errorf("failed to fingerprint sources: %w", err)
	}
	if err := l.store.Save(ctx, summary, fingerprint); err != nil {
		return nil, fmt.Errorf("failed to save summary cache: %w", err)
	}
	l.keep(summary)

	l.logger.Info("summary built",
		"rows", summary.Len(),
		"duration_ms", time.Since(start).Milliseconds())
	return summary, nil
}

func (l *Loader) build(ctx context.Context) (*table.Frame, error) {
	if _, err := l.acquirer.Ensure(ctx, l.sources); err != nil {
		return nil, err
	}

	prospects, err := l.flatten(Prospects, func(r io.Reader) (*table.Frame, error) {
		return FlattenProspects(r)
	})
	if err != nil {
		return nil, err
	}
	applicants, err := l.flatten(Applicants, func(r io.Reader) (*table.Frame, error) {
		return FlattenApplicants(r)
	})
	if err != nil {
		return nil, err
	}
	jobs, err := l.flatten(Jobs, func(r io.Reader) (*table.Frame, error) {
		return FlattenJobs(r, JobDescriptionColumns...)
	})
	if err != nil {
		return nil, err
	}

	l.logger.Debug("datasets flattened",
		"prospects", prospects.Len(),
		"applicants", applicants.Len(),
		"jobs", jobs.Len())

	return BuildSummary(prospects, applicants, jobs)
}

func (l *Loader) flatten(name string, fn func(io.Reader) (*table.Frame, error)) (*table.Frame, error) {
	src, ok := l.source(name)
	if !ok {
		return nil, fmt.Errorf("no source configured for dataset %q", name)
	}
	f, err := os.Open(l.acquirer.Path(src))
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", name, err)
	}
	defer f.Close()
	return fn(bufio.NewReaderSize(f, 1<<20))
}

func (l *Loader) source(name string) (Source, bool) {
	for _, s := range l.sources {
		if s.Name == name {
			return s, true
		}
	}
	return Source{}, false
}
