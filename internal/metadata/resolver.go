package metadata

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"time"

	"github.com/arkeo-network/arkeo-cache-sync/internal/httpclient"
	"github.com/arkeo-network/arkeo-cache-sync/internal/model"
	"github.com/arkeo-network/arkeo-cache-sync/internal/storage"
)

// ArtifactName is the metadata cache artifact (metadata.json).
const ArtifactName = "metadata"

// Entry is one memoized metadata document, keyed by its URI.
type Entry struct {
	URI       string          `json:"metadata_uri"`
	FetchedAt time.Time       `json:"fetched_at"`
	Data      json.RawMessage `json:"data"`
}

// Cache maps metadata URIs to resolved documents. It persists across cycles.
type Cache map[string]Entry

// Resolved returns the annotation map consulted by the view derivation:
// every URI present in the cache is active.
func (c Cache) Resolved() map[string]bool {
	resolved := make(map[string]bool, len(c))
	for uri := range c {
		resolved[uri] = true
	}
	return resolved
}

// cacheDocument is the on-disk shape of the metadata cache.
type cacheDocument struct {
	Metadata Cache `json:"metadata"`
}

// Result is the outcome of one resolution pass.
type Result struct {
	// Cache is the merged cache after resolution.
	Cache Cache

	// Resolved maps each cached URI to true; views consult this instead of
	// mutating raw records.
	Resolved map[string]bool

	// Fetched is how many URIs were fetched this cycle (cache misses).
	Fetched int
}

// Resolver fetches and memoizes metadata documents.
type Resolver struct {
	store  storage.Store
	client httpclient.Client
}

// NewResolver creates a resolver persisting through the given store and
// fetching with the given client.
func NewResolver(store storage.Store, client httpclient.Client) *Resolver {
	return &Resolver{store: store, client: client}
}

// LoadCache reads the persisted cache. A missing or malformed artifact
// yields an empty cache; the cycle then re-resolves from scratch.
func (r *Resolver) LoadCache() Cache {
	var doc cacheDocument
	if err := r.store.ReadArtifact(ArtifactName, &doc); err != nil || doc.Metadata == nil {
		return Cache{}
	}
	return doc.Metadata
}

// Drop removes the persisted cache so the next resolution starts cold.
func (r *Resolver) Drop() error {
	return r.store.RemoveArtifact(ArtifactName)
}

// Resolve collects every eligible metadata URI referenced by the provider
// records (provider-level and service-level), deduplicates them, and fetches
// the ones the loaded cache does not already hold. Only responses that parse
// as JSON objects are cached; plain text and fetch errors leave the URI
// unresolved. The merged cache is persisted only when at least one entry was
// added.
func (r *Resolver) Resolve(ctx context.Context, records []model.ProviderRecord, allowLocalhost bool) *Result {
	cache := r.LoadCache()

	uriSet := make(map[string]struct{})
	collect := func(uri string) {
		if uri != "" && IsExternalURI(uri, allowLocalhost) {
			uriSet[uri] = struct{}{}
		}
	}
	for _, rec := range records {
		collect(rec.MetadataURI)
		for _, uri := range rec.ServiceMetadataURIs {
			collect(uri)
		}
	}

	// Deterministic fetch order keeps cycles reproducible.
	uris := make([]string, 0, len(uriSet))
	for uri := range uriSet {
		uris = append(uris, uri)
	}
	sort.Strings(uris)

	changed := false
	fetched := 0
	for _, uri := range uris {
		if _, ok := cache[uri]; ok {
			// First successful resolution wins; never re-fetch within or
			// across cycles while the entry exists.
			continue
		}

		fetched++
		body, err := r.client.Get(ctx, uri)
		if err != nil {
			slog.Debug("metadata fetch failed", "uri", uri, "error", err)
			continue
		}

		// Only structured documents are worth memoizing. A JSON object is
		// required; arrays, scalars, and plain text stay unresolved.
		var doc map[string]json.RawMessage
		if err := json.Unmarshal(body, &doc); err != nil {
			slog.Debug("metadata response is not a JSON object", "uri", uri)
			continue
		}

		cache[uri] = Entry{
			URI:       uri,
			FetchedAt: time.Now().UTC(),
			Data:      json.RawMessage(body),
		}
		changed = true
	}

	if changed {
		if err := r.store.WriteArtifact(ArtifactName, &cacheDocument{Metadata: cache}); err != nil {
			// Persistence failure is not fatal; the in-memory cache still
			// serves this cycle and the next cycle re-fetches.
			slog.Error("failed to persist metadata cache", "error", err)
		}
	}

	return &Result{
		Cache:    cache,
		Resolved: cache.Resolved(),
		Fetched:  fetched,
	}
}
