package metadata

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkeo-network/arkeo-cache-sync/internal/model"
	"github.com/arkeo-network/arkeo-cache-sync/internal/storage"
)

// fakeClient serves canned bodies and counts fetches per URI.
type fakeClient struct {
	responses map[string][]byte
	calls     map[string]int
}

func newFakeClient(responses map[string][]byte) *fakeClient {
	return &fakeClient{responses: responses, calls: make(map[string]int)}
}

func (c *fakeClient) Get(_ context.Context, url string) ([]byte, error) {
	c.calls[url] += 1
	body, ok := c.responses[url]
	if !ok {
		return nil, fmt.Errorf("connection refused")
	}
	return body, nil
}

func (c *fakeClient) totalCalls() int {
	total := 0
	for _, n := range c.calls {
		total += n
	}
	return total
}

func providerWithURI(uri string) model.ProviderRecord {
	return model.ProviderRecord{PubKey: "pk1", MetadataURI: uri}
}

func TestResolveCachesJSONObjects(t *testing.T) {
	t.Parallel()

	store := storage.NewFileStore(t.TempDir())
	client := newFakeClient(map[string][]byte{
		"https://meta.example.com/p1.json": []byte(`{"moniker":"Acme"}`),
	})
	resolver := NewResolver(store, client)

	result := resolver.Resolve(context.Background(),
		[]model.ProviderRecord{providerWithURI("https://meta.example.com/p1.json")}, false)

	assert.Equal(t, 1, result.Fetched)
	assert.True(t, result.Resolved["https://meta.example.com/p1.json"])
	require.Contains(t, result.Cache, "https://meta.example.com/p1.json")
	assert.JSONEq(t, `{"moniker":"Acme"}`,
		string(result.Cache["https://meta.example.com/p1.json"].Data))

	// The cache survived the process: a fresh resolver sees the entry.
	reloaded := NewResolver(store, client).LoadCache()
	assert.Contains(t, reloaded, "https://meta.example.com/p1.json")
}

func TestResolveMemoizesAcrossCycles(t *testing.T) {
	t.Parallel()

	store := storage.NewFileStore(t.TempDir())
	client := newFakeClient(map[string][]byte{
		"https://meta.example.com/p1.json": []byte(`{"moniker":"Acme"}`),
	})
	resolver := NewResolver(store, client)
	records := []model.ProviderRecord{providerWithURI("https://meta.example.com/p1.json")}

	first := resolver.Resolve(context.Background(), records, false)
	assert.Equal(t, 1, first.Fetched)

	// Second cycle: everything is cached, nothing is fetched.
	second := resolver.Resolve(context.Background(), records, false)
	assert.Zero(t, second.Fetched)
	assert.Equal(t, 1, client.totalCalls())
	assert.True(t, second.Resolved["https://meta.example.com/p1.json"])
}

func TestResolveSkipsNonObjectResponses(t *testing.T) {
	t.Parallel()

	store := storage.NewFileStore(t.TempDir())
	client := newFakeClient(map[string][]byte{
		"https://a.example.com/meta.json": []byte(`plain text, not metadata`),
		"https://b.example.com/meta.json": []byte(`["an","array"]`),
		"https://c.example.com/meta.json": []byte(`{"ok":true}`),
	})
	resolver := NewResolver(store, client)

	records := []model.ProviderRecord{
		providerWithURI("https://a.example.com/meta.json"),
		providerWithURI("https://b.example.com/meta.json"),
		providerWithURI("https://c.example.com/meta.json"),
		providerWithURI("https://unreachable.example.com/meta.json"),
	}
	result := resolver.Resolve(context.Background(), records, false)

	assert.Equal(t, 4, result.Fetched)
	assert.Len(t, result.Cache, 1)
	assert.True(t, result.Resolved["https://c.example.com/meta.json"])
	assert.False(t, result.Resolved["https://a.example.com/meta.json"])
	assert.False(t, result.Resolved["https://b.example.com/meta.json"])
	assert.False(t, result.Resolved["https://unreachable.example.com/meta.json"])

	// Unresolved URIs are retried next cycle.
	result = resolver.Resolve(context.Background(), records, false)
	assert.Equal(t, 3, result.Fetched)
}

func TestResolveCollectsServiceURIsAndDedupes(t *testing.T) {
	t.Parallel()

	store := storage.NewFileStore(t.TempDir())
	client := newFakeClient(map[string][]byte{
		"https://meta.example.com/shared.json": []byte(`{"moniker":"Acme"}`),
		"https://meta.example.com/svc.json":    []byte(`{"service":"eth"}`),
	})
	resolver := NewResolver(store, client)

	records := []model.ProviderRecord{
		{
			PubKey:              "pk1",
			MetadataURI:         "https://meta.example.com/shared.json",
			ServiceMetadataURIs: []string{"https://meta.example.com/svc.json"},
		},
		{PubKey: "pk2", MetadataURI: "https://meta.example.com/shared.json"},
	}
	result := resolver.Resolve(context.Background(), records, false)

	// The shared URI is fetched once.
	assert.Equal(t, 2, result.Fetched)
	assert.Equal(t, 1, client.calls["https://meta.example.com/shared.json"])
	assert.Len(t, result.Cache, 2)
}

func TestResolveIgnoresIneligibleURIs(t *testing.T) {
	t.Parallel()

	store := storage.NewFileStore(t.TempDir())
	client := newFakeClient(map[string][]byte{
		"http://localhost:9000/meta.json": []byte(`{"moniker":"Local"}`),
	})
	resolver := NewResolver(store, client)

	records := []model.ProviderRecord{
		providerWithURI("http://localhost:9000/meta.json"),
		providerWithURI("/relative/meta.json"),
		providerWithURI(""),
	}

	result := resolver.Resolve(context.Background(), records, false)
	assert.Zero(t, result.Fetched)
	assert.Empty(t, result.Cache)

	// With the override the localhost URI becomes eligible.
	result = resolver.Resolve(context.Background(), records, true)
	assert.Equal(t, 1, result.Fetched)
	assert.True(t, result.Resolved["http://localhost:9000/meta.json"])
}

func TestDropClearsPersistedCache(t *testing.T) {
	t.Parallel()

	store := storage.NewFileStore(t.TempDir())
	client := newFakeClient(map[string][]byte{
		"https://meta.example.com/p1.json": []byte(`{"moniker":"Acme"}`),
	})
	resolver := NewResolver(store, client)
	records := []model.ProviderRecord{providerWithURI("https://meta.example.com/p1.json")}

	resolver.Resolve(context.Background(), records, false)
	require.NoError(t, resolver.Drop())
	assert.Empty(t, resolver.LoadCache())

	// The next cycle starts cold and re-fetches.
	result := resolver.Resolve(context.Background(), records, false)
	assert.Equal(t, 1, result.Fetched)
	assert.Equal(t, 2, client.totalCalls())
}
