package views

import (
	"encoding/json"
	"time"

	"github.com/tidwall/gjson"

	"github.com/arkeo-network/arkeo-cache-sync/internal/config"
	"github.com/arkeo-network/arkeo-cache-sync/internal/metadata"
	"github.com/arkeo-network/arkeo-cache-sync/internal/model"
)

// ActiveProvider is one provider that passed the provider-level gate.
type ActiveProvider struct {
	ProviderPubKey    string          `json:"provider_pubkey"`
	ProviderMoniker   string          `json:"provider_moniker"`
	MetadataURI       string          `json:"metadata_uri"`
	MetadataURIActive bool            `json:"metadata_uri_active"`
	Metadata          json.RawMessage `json:"metadata,omitempty"`
	Provider          json.RawMessage `json:"provider,omitempty"`
}

// SettingsEcho records the effective settings a derivation ran under, so a
// reader of the artifact can tell why a provider was or was not admitted.
type SettingsEcho struct {
	AllowLocalhost bool   `json:"allow_localhost"`
	Node           string `json:"node"`
	RESTAPI        string `json:"rest_api,omitempty"`
}

// DebugCounts summarizes how many records survived each stage of the gate.
type DebugCounts struct {
	ActiveServices int `json:"active_services"`
	ProvidersSeen  int `json:"providers_seen"`
	ProvidersKept  int `json:"providers_kept"`
}

// ActiveProvidersView is the active-providers artifact.
type ActiveProvidersView struct {
	FetchedAt          time.Time        `json:"fetched_at"`
	Source             string           `json:"source"`
	Providers          []ActiveProvider `json:"providers"`
	MetadataURISources SettingsEcho     `json:"metadata_uri_sources"`
	DebugCounts        DebugCounts      `json:"debug_counts"`
}

// DeriveActiveProviders reduces the provider records to the distinct
// providers backing at least one active service. Each pubkey appears once;
// the first record seen for it wins. A provider is kept when it is online,
// its metadata URI is external, and that URI either resolved into the cache
// or is a localhost sentinel explicitly allowed by settings.
func DeriveActiveProviders(
	active *ActiveServicesView,
	records []model.ProviderRecord,
	cache metadata.Cache,
	settings config.RuntimeSettings,
	now time.Time,
) *ActiveProvidersView {
	activeSet := make(map[string]bool, len(active.ActiveServices))
	for _, svc := range active.ActiveServices {
		activeSet[svc.ProviderPubKey] = true
	}

	counts := DebugCounts{ActiveServices: len(active.ActiveServices)}
	seen := make(map[string]bool, len(activeSet))
	providers := make([]ActiveProvider, 0, len(activeSet))

	for _, rec := range records {
		counts.ProvidersSeen++
		if rec.PubKey == "" || !activeSet[rec.PubKey] || seen[rec.PubKey] {
			continue
		}
		if !rec.Online {
			continue
		}
		uri := rec.MetadataURI
		if !metadata.IsExternalURI(uri, settings.AllowLocalhost) {
			continue
		}

		entry, cached := cache[uri]
		localhostBypass := settings.AllowLocalhost && metadata.IsLocalhostURI(uri)
		if !cached && !localhostBypass {
			continue
		}

		seen[rec.PubKey] = true
		counts.ProvidersKept++
		providers = append(providers, ActiveProvider{
			ProviderPubKey:    rec.PubKey,
			ProviderMoniker:   providerMoniker(entry.Data, rec.PubKey),
			MetadataURI:       uri,
			MetadataURIActive: cached || localhostBypass,
			Metadata:          entry.Data,
			Provider:          rec.Raw,
		})
	}

	return &ActiveProvidersView{
		FetchedAt: now.UTC(),
		Source:    "provider-services",
		Providers: providers,
		MetadataURISources: SettingsEcho{
			AllowLocalhost: settings.AllowLocalhost,
			Node:           settings.NodeEndpoint,
			RESTAPI:        settings.RESTEndpoint,
		},
		DebugCounts: counts,
	}
}

// providerMoniker picks a display name from resolved metadata, preferring
// the nested config moniker over the top-level one, falling back to the
// pubkey when the metadata names nothing.
func providerMoniker(meta json.RawMessage, pubkey string) string {
	if len(meta) > 0 {
		doc := gjson.ParseBytes(meta)
		if m := doc.Get("config.moniker"); m.Type == gjson.String && m.Str != "" {
			return m.Str
		}
		if m := doc.Get("moniker"); m.Type == gjson.String && m.Str != "" {
			return m.Str
		}
	}
	return pubkey
}
