// Package incentive assembles the processing pipeline behind a single
// builder, so embedders get a working engine without wiring each component.
package incentive

import (
	"io"
	"log/slog"

	mem "incentivekit/adapters/memory"
	"incentivekit/engine"
	"incentivekit/realtime"
)

// Engine bundles the assembled pipeline components.
type Engine struct {
	Processor *engine.Processor
	Collector *engine.Collector
	Admin     *engine.Admin
	Bus       *engine.EventBus

	detach func()
}

// Close detaches event sinks and stops the bus workers.
func (e *Engine) Close() {
	if e.detach != nil {
		e.detach()
	}
	e.Bus.Close()
}

// Option configures the engine builder.
type Option func(*config)

type config struct {
	storage      engine.Storage
	catalog      engine.CatalogStore
	catalogAdmin engine.CatalogAdmin
	configStore  engine.ConfigStore
	ledger       engine.ReviewLedger
	noLedger     bool
	mode         engine.DispatchMode
	hub          *realtime.Hub
	logger       *slog.Logger
}

// WithStorage sets the persistence adapter.
func WithStorage(s engine.Storage) Option { return func(c *config) { c.storage = s } }

// WithCatalog overrides where the level ladder and badge catalog are read
// from, e.g. a Redis-cached or file-backed catalog.
func WithCatalog(cs engine.CatalogStore) Option { return func(c *config) { c.catalog = cs } }

// WithCatalogAdmin overrides where catalog writes go.
func WithCatalogAdmin(ca engine.CatalogAdmin) Option { return func(c *config) { c.catalogAdmin = ca } }

// WithConfigStore overrides where dynamic configuration is read from.
func WithConfigStore(cs engine.ConfigStore) Option { return func(c *config) { c.configStore = cs } }

// WithLedger overrides the processed-review ledger.
func WithLedger(l engine.ReviewLedger) Option { return func(c *config) { c.ledger = l } }

// WithoutLedger disables duplicate-review protection entirely.
func WithoutLedger() Option { return func(c *config) { c.noLedger = true } }

// WithDispatchMode selects sync or async event dispatch.
func WithDispatchMode(m engine.DispatchMode) Option { return func(c *config) { c.mode = m } }

// WithRealtime wires a realtime hub to receive all engine events.
func WithRealtime(h *realtime.Hub) Option { return func(c *config) { c.hub = h } }

// WithLogger sets the structured logger used by every component.
func WithLogger(l *slog.Logger) Option { return func(c *config) { c.logger = l } }

// New builds a configured Engine. Defaults: in-memory storage, async
// dispatch, the storage itself as catalog, config store and ledger, and a
// logger that discards output.
func New(opts ...Option) *Engine {
	cfg := &config{mode: engine.DispatchAsync}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.storage == nil {
		cfg.storage = mem.New()
	}
	if cfg.catalog == nil {
		cfg.catalog = cfg.storage
	}
	if cfg.catalogAdmin == nil {
		cfg.catalogAdmin = cfg.storage
	}
	if cfg.configStore == nil {
		cfg.configStore = cfg.storage
	}
	if cfg.ledger == nil {
		cfg.ledger = cfg.storage
	}
	if cfg.logger == nil {
		cfg.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	bus := engine.NewEventBus(cfg.mode)
	collector := engine.NewCollector(cfg.storage, cfg.storage, cfg.storage, cfg.storage, cfg.logger)

	procOpts := []engine.ProcessorOption{engine.WithBus(bus)}
	if !cfg.noLedger {
		procOpts = append(procOpts, engine.WithLedger(cfg.ledger))
	}
	processor := engine.NewProcessor(
		engine.NewCalculator(cfg.storage, cfg.configStore, cfg.logger),
		cfg.storage,
		engine.NewProgression(cfg.storage, cfg.catalog, bus, cfg.logger),
		engine.NewBadgeEvaluator(cfg.storage, cfg.catalog, collector, bus, cfg.logger),
		collector,
		cfg.logger,
		procOpts...,
	)

	eng := &Engine{
		Processor: processor,
		Collector: collector,
		Admin:     engine.NewAdmin(cfg.catalog, cfg.catalogAdmin, cfg.logger),
		Bus:       bus,
	}
	if cfg.hub != nil {
		eng.detach = cfg.hub.Attach(bus)
	}
	return eng
}
