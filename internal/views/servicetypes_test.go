package views

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkeo-network/arkeo-cache-sync/internal/model"
)

func activeService(pk, sid, name string) ActiveService {
	return ActiveService{ProviderPubKey: pk, ServiceID: sid, Service: name}
}

func TestDeriveActiveServiceTypes(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	catalog := []model.ServiceType{
		{ID: "13", Name: "eth-mainnet", Description: "Ethereum Mainnet",
			Raw: json.RawMessage(`{"service_id":"13","name":"eth-mainnet","description":"Ethereum Mainnet"}`)},
		{Name: "btc-mainnet", Description: "Bitcoin Mainnet",
			Raw: json.RawMessage(`{"name":"btc-mainnet","description":"Bitcoin Mainnet"}`)},
	}

	active := &ActiveServicesView{ActiveServices: []ActiveService{
		activeService("p1", "13", "eth-mainnet"),
		activeService("p2", "13", "eth-mainnet"),
		activeService("p3", "99", "unknown-service"),
		activeService("p4", "", "btc-mainnet"),
	}}

	view := DeriveActiveServiceTypes(active, catalog, now)
	require.Len(t, view.ActiveServiceTypes, 3)
	assert.Equal(t, now, view.FetchedAt)
	assert.Equal(t, "service-types", view.Source)

	byID := make(map[string]ServiceTypeAggregate)
	for _, agg := range view.ActiveServiceTypes {
		byID[agg.ServiceID] = agg
	}

	// Matched by catalog id.
	assert.Equal(t, 2, byID["13"].Count)
	assert.JSONEq(t, string(catalog[0].Raw), string(byID["13"].ServiceType))

	// No descriptor; count stands alone.
	assert.Equal(t, 1, byID["99"].Count)
	assert.Empty(t, byID["99"].ServiceType)

	// Matched by case-insensitive name when no id is known.
	assert.Equal(t, 1, byID["btc-mainnet"].Count)
	assert.JSONEq(t, string(catalog[1].Raw), string(byID["btc-mainnet"].ServiceType))
}

func TestDeriveActiveServiceTypesSortOrder(t *testing.T) {
	t.Parallel()

	catalog := []model.ServiceType{
		{ID: "2", Name: "beta", Description: "Zeta chain",
			Raw: json.RawMessage(`{"service_id":"2","name":"beta","description":"Zeta chain"}`)},
		{ID: "1", Name: "alpha", Description: "alpha chain",
			Raw: json.RawMessage(`{"service_id":"1","name":"alpha","description":"alpha chain"}`)},
	}
	active := &ActiveServicesView{ActiveServices: []ActiveService{
		activeService("p1", "2", "beta"),
		activeService("p2", "1", "alpha"),
		activeService("p3", "9", ""),
	}}

	view := DeriveActiveServiceTypes(active, catalog, time.Now())
	require.Len(t, view.ActiveServiceTypes, 3)

	// Sorted by lowercased (description, name, id); entries without a
	// descriptor have empty description and sort first.
	assert.Equal(t, "9", view.ActiveServiceTypes[0].ServiceID)
	assert.Equal(t, "1", view.ActiveServiceTypes[1].ServiceID)
	assert.Equal(t, "2", view.ActiveServiceTypes[2].ServiceID)
}

func writeCatalogFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "service-type_resources.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadChainCatalog(t *testing.T) {
	t.Parallel()

	t.Run("loads entries from data wrapper", func(t *testing.T) {
		t.Parallel()

		path := writeCatalogFile(t, `{"data":[
			{"service_id":"13","name":"eth-mainnet","chain":"ethereum"},
			{"name":"btc-mainnet","chain":"bitcoin"},
			{"name":"no-chain-entry"}
		]}`)

		catalog := LoadChainCatalog(path)
		require.NotNil(t, catalog)
		assert.Equal(t, "ethereum", catalog.Lookup("13", ""))
		assert.Equal(t, "ethereum", catalog.Lookup("", "ETH-Mainnet"))
		assert.Equal(t, "bitcoin", catalog.Lookup("", "btc-mainnet"))
		assert.Empty(t, catalog.Lookup("", "no-chain-entry"))
		assert.Empty(t, catalog.Lookup("77", "unknown"))
	})

	t.Run("missing file yields nil catalog", func(t *testing.T) {
		t.Parallel()

		catalog := LoadChainCatalog(filepath.Join(t.TempDir(), "absent.json"))
		assert.Nil(t, catalog)
		assert.Empty(t, catalog.Lookup("13", "eth-mainnet"))
	})

	t.Run("malformed file yields nil catalog", func(t *testing.T) {
		t.Parallel()

		assert.Nil(t, LoadChainCatalog(writeCatalogFile(t, "not json at all")))
	})
}

func TestEnrichServiceTypes(t *testing.T) {
	t.Parallel()

	catalog := LoadChainCatalog(writeCatalogFile(t, `{"data":[
		{"service_id":"13","name":"eth-mainnet","chain":"ethereum"}
	]}`))
	require.NotNil(t, catalog)

	t.Run("fills missing chain inside wrapper", func(t *testing.T) {
		t.Parallel()

		in := json.RawMessage(`{"services":[{"service_id":"13","name":"eth-mainnet"}]}`)
		out, changed := EnrichServiceTypes(in, catalog)
		assert.True(t, changed)
		assert.JSONEq(t,
			`{"services":[{"service_id":"13","name":"eth-mainnet","chain":"ethereum"}]}`,
			string(out))
	})

	t.Run("fills missing chain on bare array", func(t *testing.T) {
		t.Parallel()

		in := json.RawMessage(`[{"name":"eth-mainnet"}]`)
		out, changed := EnrichServiceTypes(in, catalog)
		assert.True(t, changed)
		assert.JSONEq(t, `[{"name":"eth-mainnet","chain":"ethereum"}]`, string(out))
	})

	t.Run("existing chain untouched", func(t *testing.T) {
		t.Parallel()

		in := json.RawMessage(`{"services":[{"service_id":"13","chain":"custom"}]}`)
		out, changed := EnrichServiceTypes(in, catalog)
		assert.False(t, changed)
		assert.Equal(t, string(in), string(out))
	})

	t.Run("nil catalog is a no-op", func(t *testing.T) {
		t.Parallel()

		in := json.RawMessage(`{"services":[{"service_id":"13"}]}`)
		out, changed := EnrichServiceTypes(in, nil)
		assert.False(t, changed)
		assert.Equal(t, string(in), string(out))
	})

	t.Run("unrecognized shape is a no-op", func(t *testing.T) {
		t.Parallel()

		in := json.RawMessage(`{"count":3}`)
		out, changed := EnrichServiceTypes(in, catalog)
		assert.False(t, changed)
		assert.Equal(t, string(in), string(out))
	})
}
