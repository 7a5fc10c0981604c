// Package sync runs one cache synchronization cycle end to end: source
// queries, metadata resolution, view derivation, and persistence.
package sync

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/arkeo-network/arkeo-cache-sync/internal/config"
	"github.com/arkeo-network/arkeo-cache-sync/internal/metadata"
	"github.com/arkeo-network/arkeo-cache-sync/internal/model"
	"github.com/arkeo-network/arkeo-cache-sync/internal/sources"
	"github.com/arkeo-network/arkeo-cache-sync/internal/storage"
	"github.com/arkeo-network/arkeo-cache-sync/internal/telemetry"
	"github.com/arkeo-network/arkeo-cache-sync/internal/views"
)

// Result summarizes one completed cycle.
type Result struct {
	// Sources maps each source name to its raw result.
	Sources map[string]*sources.RawQueryResult

	// Failures lists the sources whose queries failed. A non-empty list
	// marks the cycle failed even though derivation still ran.
	Failures []string

	// MetadataFetched is how many metadata URIs were fetched this cycle.
	MetadataFetched int

	// ActiveServices and ActiveProviders are the sizes of the derived views.
	ActiveServices  int
	ActiveProviders int

	// ListenerSummary is set when listener reconciliation ran.
	ListenerSummary *views.ReconcileSummary
}

// Err returns a describable cycle error when any source failed, nil
// otherwise.
func (r *Result) Err() error {
	if len(r.Failures) == 0 {
		return nil
	}
	return fmt.Errorf("source queries failed: %s", strings.Join(r.Failures, ", "))
}

// Manager executes sync cycles. Exactly one cycle runs at a time; the
// coordinator guarantees calls never overlap.
type Manager struct {
	cfg      *config.Config
	store    storage.Store
	adapter  *sources.Adapter
	resolver *metadata.Resolver
	strategy views.Strategy
	metrics  *telemetry.SyncMetrics
	logger   *slog.Logger
}

// NewManager creates a sync manager. metrics may be nil.
func NewManager(
	cfg *config.Config,
	store storage.Store,
	adapter *sources.Adapter,
	resolver *metadata.Resolver,
	strategy views.Strategy,
	metrics *telemetry.SyncMetrics,
) *Manager {
	return &Manager{
		cfg:      cfg,
		store:    store,
		adapter:  adapter,
		resolver: resolver,
		strategy: strategy,
		metrics:  metrics,
		logger:   slog.Default().With("component", "sync"),
	}
}

// PerformSync runs one cycle: reload runtime settings, query every source
// sequentially, resolve metadata, derive all views, and persist each
// artifact atomically. Source and persistence failures are recorded, not
// raised; downstream derivation always runs against whatever succeeded. An
// error return means something unexpected broke and the process should not
// pretend the cycle completed.
func (m *Manager) PerformSync(ctx context.Context) (*Result, error) {
	settings := config.LoadRuntimeSettings(m.cfg)
	now := time.Now().UTC()

	if m.cfg.Metadata.RefreshPerCycle {
		if err := m.resolver.Drop(); err != nil {
			m.logger.Warn("failed to drop metadata cache", "error", err)
		}
	}

	result := &Result{Sources: make(map[string]*sources.RawQueryResult)}

	catalog := views.LoadChainCatalog(m.cfg.Views.ServiceTypeResourcesPath)

	for _, spec := range sources.BuildQueries(m.cfg, settings) {
		res := m.adapter.Fetch(ctx, spec)
		result.Sources[spec.Name] = res

		if !res.OK() {
			m.logger.Warn("source query failed",
				"source", spec.Name, "exit_code", res.ExitCode, "error", res.Error)
			result.Failures = append(result.Failures, spec.Name)
			m.metrics.RecordSourceFailure(ctx, spec.Name)
		} else if spec.Name == sources.SourceServiceTypes {
			if enriched, changed := views.EnrichServiceTypes(res.Data, catalog); changed {
				res.Data = enriched
			}
		}

		if err := m.store.WriteArtifact(spec.Name, res); err != nil {
			m.logger.Warn("failed to persist source artifact",
				"source", spec.Name, "error", err)
		}
	}

	// Each derived view is rebuilt only when its backing source succeeded.
	// Skipped views keep the previous cycle's artifact on disk so consumers
	// never see a populated file replaced by an empty one.
	if res := result.Sources[sources.SourceProviderServices]; res.OK() {
		providerRecords := model.ParseProviderRecords(res.Data)
		serviceTypes := m.parsedServiceTypes(result)

		resolution := m.resolver.Resolve(ctx, providerRecords, settings.AllowLocalhost)
		result.MetadataFetched = resolution.Fetched
		m.metrics.RecordMetadataFetches(ctx, resolution.Fetched)

		activeServices := views.DeriveActiveServices(
			m.strategy, providerRecords, resolution.Resolved, settings.AllowLocalhost, now)
		result.ActiveServices = len(activeServices.ActiveServices)
		m.persist("active_services", activeServices)

		activeProviders := views.DeriveActiveProviders(
			activeServices, providerRecords, resolution.Cache, settings, now)
		result.ActiveProviders = len(activeProviders.Providers)
		m.persist("active_providers", activeProviders)

		m.persist("active_service_types",
			views.DeriveActiveServiceTypes(activeServices, serviceTypes, now))

		if m.cfg.Views.SyncListeners {
			result.ListenerSummary = m.reconcileListeners(activeServices, activeProviders, now)
		}
	} else {
		m.logger.Warn("provider source failed, keeping previous derived views")
	}

	if res := result.Sources[sources.SourceProviderContracts]; res.OK() {
		m.persist("subscribers", views.DeriveSubscribers(model.ParseContractRecords(res.Data), now))
	} else {
		m.logger.Warn("contract source failed, keeping previous subscribers view")
	}

	m.logger.Info("cycle complete",
		"active_services", result.ActiveServices,
		"active_providers", result.ActiveProviders,
		"metadata_fetched", result.MetadataFetched,
		"failed_sources", len(result.Failures))

	return result, nil
}

func (m *Manager) parsedServiceTypes(result *Result) []model.ServiceType {
	res := result.Sources[sources.SourceServiceTypes]
	if !res.OK() {
		return nil
	}
	return model.ParseServiceTypes(res.Data)
}

// persist writes a derived artifact. Persistence failures are logged and
// swallowed; the prior version of the artifact stays in place.
func (m *Manager) persist(name string, v any) {
	if err := m.store.WriteArtifact(name, v); err != nil {
		m.logger.Warn("failed to persist artifact", "artifact", name, "error", err)
	}
}

// reconcileListeners merges live service state into the externally owned
// listeners artifact. A missing or malformed artifact skips the pass.
func (m *Manager) reconcileListeners(
	activeServices *views.ActiveServicesView,
	activeProviders *views.ActiveProvidersView,
	now time.Time,
) *views.ReconcileSummary {
	doc, err := m.store.ReadRaw(views.ListenersArtifact)
	if err != nil {
		return nil
	}

	updated, summary, changed := views.ReconcileListeners(doc, activeServices, activeProviders, now)
	if summary == nil {
		m.logger.Debug("listeners artifact unusable, skipping reconciliation")
		return nil
	}
	if changed {
		m.persist(views.ListenersArtifact, updated)
	}
	return summary
}
