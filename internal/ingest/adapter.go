package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/angelmondragon/velora-notify/internal/notifications"
	"github.com/angelmondragon/velora-notify/pkg/enums"
	pkgerrors "github.com/angelmondragon/velora-notify/pkg/errors"
	"github.com/angelmondragon/velora-notify/pkg/logger"
	"github.com/angelmondragon/velora-notify/pkg/metrics"
	"github.com/go-playground/validator/v10"
	"github.com/sethvargo/go-retry"
)

// Source is one live event channel. Run blocks delivering raw event bytes in
// arrival order until the channel drops (error) or the context is canceled.
type Source interface {
	Name() string
	Run(ctx context.Context, deliver func(ctx context.Context, data []byte)) error
}

// SourceHealth is the diagnostic signal surfaced for one subscription.
type SourceHealth struct {
	State       enums.SourceState `json:"state"`
	LastError   string            `json:"lastError,omitempty"`
	LastEventAt time.Time         `json:"lastEventAt,omitzero"`
}

// RetryConfig tunes the per-source reconnect backoff.
type RetryConfig struct {
	Attempts uint64
	Base     time.Duration
	Cap      time.Duration
}

// Adapter owns one independent subscription per source, normalizes inbound
// events through the per-source mapping tables, and feeds the store. A
// malformed event from one source never stops the others.
type Adapter struct {
	store    *notifications.Store
	mappers  map[string]Mapper
	cfg      RetryConfig
	logg     *logger.Logger
	metrics  *metrics.EngineMetrics
	validate *validator.Validate
	onIngest func(n *notifications.Notification)

	mu     sync.Mutex
	health map[string]SourceHealth
	wg     sync.WaitGroup
}

// NewAdapter wires the ingestion adapter. onIngest observes every stored
// notification and may be nil.
func NewAdapter(store *notifications.Store, mappers map[string]Mapper, cfg RetryConfig, logg *logger.Logger, m *metrics.EngineMetrics, onIngest func(*notifications.Notification)) (*Adapter, error) {
	if store == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notification store required")
	}
	if len(mappers) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "at least one mapper required")
	}
	if logg == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	if cfg.Base <= 0 {
		cfg.Base = time.Second
	}
	if cfg.Cap <= 0 {
		cfg.Cap = time.Minute
	}
	return &Adapter{
		store:    store,
		mappers:  mappers,
		cfg:      cfg,
		logg:     logg,
		metrics:  m,
		validate: validator.New(),
		onIngest: onIngest,
		health:   map[string]SourceHealth{},
	}, nil
}

// Start launches one goroutine per source. Each subscription retries
// independently; one source degrading leaves the others delivering.
func (a *Adapter) Start(ctx context.Context, sources []Source) {
	for _, src := range sources {
		a.setHealth(src.Name(), SourceHealth{State: enums.SourceStateActive})
		a.wg.Add(1)
		go func(src Source) {
			defer a.wg.Done()
			a.runSource(ctx, src)
		}(src)
	}
}

// Wait blocks until every source goroutine has exited.
func (a *Adapter) Wait() {
	a.wg.Wait()
}

// Health returns a snapshot of every source's diagnostic state.
func (a *Adapter) Health() map[string]SourceHealth {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]SourceHealth, len(a.health))
	for name, h := range a.health {
		out[name] = h
	}
	return out
}

func (a *Adapter) runSource(ctx context.Context, src Source) {
	logCtx := a.logg.WithSource(ctx, src.Name())

	backoff := retry.WithMaxRetries(a.cfg.Attempts,
		retry.WithCappedDuration(a.cfg.Cap, retry.NewExponential(a.cfg.Base)))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		a.setHealth(src.Name(), SourceHealth{State: enums.SourceStateActive})
		runErr := src.Run(ctx, func(ctx context.Context, data []byte) {
			a.HandleEvent(ctx, src.Name(), data)
		})
		if runErr == nil || errors.Is(runErr, context.Canceled) {
			return runErr
		}
		a.logg.Error(logCtx, "source channel dropped, backing off", runErr)
		a.setHealth(src.Name(), SourceHealth{State: enums.SourceStateRetrying, LastError: runErr.Error()})
		return retry.RetryableError(runErr)
	})

	switch {
	case err == nil, errors.Is(err, context.Canceled):
		a.setHealth(src.Name(), SourceHealth{State: enums.SourceStateStopped})
		a.logg.Info(logCtx, "source subscription stopped")
	default:
		// Exhausted retries: degrade this source only, never crash the host.
		a.setHealth(src.Name(), SourceHealth{State: enums.SourceStateDegraded, LastError: err.Error()})
		a.logg.Error(logCtx, "source degraded after exhausting retries", err)
	}
}

// HandleEvent normalizes one raw event from the named source. Malformed
// events are logged and dropped; duplicates are silently idempotent.
func (a *Adapter) HandleEvent(ctx context.Context, source string, data []byte) {
	logCtx := a.logg.WithSource(ctx, source)

	var evt DomainEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		a.metrics.IncDropped(source, "malformed_json")
		a.logg.Warn(a.logg.WithField(logCtx, "error", err.Error()), "dropping undecodable event")
		return
	}
	if err := a.validate.Struct(evt); err != nil {
		a.metrics.IncDropped(source, "missing_fields")
		a.logg.Warn(a.logg.WithField(logCtx, "error", err.Error()), "dropping incomplete event")
		return
	}

	mapper, ok := a.mappers[source]
	if !ok {
		a.metrics.IncDropped(source, "unknown_source")
		a.logg.Warn(logCtx, "no mapper registered for source")
		return
	}

	logCtx = a.logg.WithFields(logCtx, map[string]any{
		"event_id":   evt.EventID,
		"new_status": evt.NewStatus,
	})

	n, err := mapper(evt)
	if err != nil {
		a.metrics.IncDropped(source, "mapping_failed")
		a.logg.Warn(a.logg.WithField(logCtx, "error", err.Error()), "dropping unmappable event")
		return
	}

	if err := a.store.Insert(n); err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeDuplicate) {
			a.metrics.IncDuplicate(source)
			return
		}
		a.metrics.IncDropped(source, "rejected_by_store")
		a.logg.Warn(a.logg.WithField(logCtx, "error", err.Error()), "store rejected event")
		return
	}

	a.markEventSeen(source)
	a.metrics.IncIngested(source)
	if a.onIngest != nil {
		a.onIngest(n)
	}
}

func (a *Adapter) setHealth(source string, health SourceHealth) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if prev, ok := a.health[source]; ok && health.LastEventAt.IsZero() {
		health.LastEventAt = prev.LastEventAt
	}
	a.health[source] = health
}

func (a *Adapter) markEventSeen(source string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	h := a.health[source]
	h.LastEventAt = time.Now().UTC()
	a.health[source] = h
}
