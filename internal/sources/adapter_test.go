package sources

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkeo-network/arkeo-cache-sync/internal/config"
)

// fakeExecutor returns a canned outcome and records the commands it ran.
type fakeExecutor struct {
	code int
	out  []byte
	err  error
	ran  [][]string
}

func (e *fakeExecutor) Run(_ context.Context, args []string) (int, []byte, error) {
	e.ran = append(e.ran, args)
	return e.code, e.out, e.err
}

// fakeRESTClient serves one canned response.
type fakeRESTClient struct {
	body []byte
	err  error
}

func (c *fakeRESTClient) Get(_ context.Context, _ string) ([]byte, error) {
	return c.body, c.err
}

func cliSpec(name string) QuerySpec {
	return QuerySpec{
		Name:    name,
		Kind:    KindCLI,
		Command: []string{"arkeod", "query", "arkeo", "list-providers", "-o", "json"},
	}
}

func TestFetchCLI(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		executor     *fakeExecutor
		wantExitCode int
		wantData     string
		wantError    string
	}{
		{
			name:         "json output parsed",
			executor:     &fakeExecutor{out: []byte(`{"providers":[]}`)},
			wantData:     `{"providers":[]}`,
			wantExitCode: 0,
		},
		{
			name:         "non-zero exit captured",
			executor:     &fakeExecutor{code: 1, out: []byte("Error: rpc unavailable")},
			wantExitCode: 1,
			wantError:    "Error: rpc unavailable",
		},
		{
			name:         "process start failure captured",
			executor:     &fakeExecutor{err: fmt.Errorf("failed to run arkeod: executable not found")},
			wantExitCode: -1,
			wantError:    "executable not found",
		},
		{
			name:         "non-json output kept as string payload",
			executor:     &fakeExecutor{out: []byte("plain text output")},
			wantExitCode: 0,
			wantData:     `"plain text output"`,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			adapter := NewAdapterWith(tt.executor, &fakeRESTClient{})
			result := adapter.Fetch(context.Background(), cliSpec(SourceProviderServices))

			assert.Equal(t, SourceProviderServices, result.Source)
			assert.Equal(t, tt.wantExitCode, result.ExitCode)
			assert.False(t, result.FetchedAt.IsZero())
			if tt.wantData != "" {
				assert.JSONEq(t, tt.wantData, string(result.Data))
			}
			if tt.wantError != "" {
				assert.Contains(t, result.Error, tt.wantError)
			}
			assert.Equal(t, result.ExitCode == 0, result.OK())
		})
	}
}

func TestFetchCLIServiceTypesPlaintextFallback(t *testing.T) {
	t.Parallel()

	executor := &fakeExecutor{out: []byte("- eth-mainnet : 13 (Ethereum Mainnet RPC)\n")}
	adapter := NewAdapterWith(executor, &fakeRESTClient{})

	spec := QuerySpec{
		Name:    SourceServiceTypes,
		Kind:    KindCLI,
		Command: []string{"arkeod", "query", "arkeo", "all-services", "-o", "json"},
	}
	result := adapter.Fetch(context.Background(), spec)

	require.True(t, result.OK())
	assert.Equal(t, "all-services text output", result.ParsedFrom)
	assert.JSONEq(t,
		`{"services":[{"service_id":13,"name":"eth-mainnet","description":"Ethereum Mainnet RPC"}]}`,
		string(result.Data))
}

func TestFetchREST(t *testing.T) {
	t.Parallel()

	restSpec := QuerySpec{
		Name:     SourceServiceTypes,
		Kind:     KindREST,
		URL:      "https://rest.example.com/arkeo/services",
		Fallback: []string{"arkeod", "query", "arkeo", "all-services", "-o", "json"},
	}

	t.Run("rest success skips the fallback", func(t *testing.T) {
		t.Parallel()

		executor := &fakeExecutor{}
		client := &fakeRESTClient{body: []byte(`{"services":[{"service_id":"13"}]}`)}
		result := NewAdapterWith(executor, client).Fetch(context.Background(), restSpec)

		require.True(t, result.OK())
		assert.JSONEq(t, `{"services":[{"service_id":"13"}]}`, string(result.Data))
		assert.Equal(t, []string{restSpec.URL}, result.Cmd)
		assert.Empty(t, executor.ran)
	})

	t.Run("rest failure falls back to the CLI", func(t *testing.T) {
		t.Parallel()

		executor := &fakeExecutor{out: []byte(`{"services":[]}`)}
		client := &fakeRESTClient{err: fmt.Errorf("connection refused")}
		result := NewAdapterWith(executor, client).Fetch(context.Background(), restSpec)

		require.True(t, result.OK())
		assert.JSONEq(t, `{"services":[]}`, string(result.Data))
		require.Len(t, executor.ran, 1)
		assert.Equal(t, restSpec.Fallback, executor.ran[0])
	})

	t.Run("both paths failing preserves both errors", func(t *testing.T) {
		t.Parallel()

		executor := &fakeExecutor{code: 1, out: []byte("Error: rpc unavailable")}
		client := &fakeRESTClient{err: fmt.Errorf("connection refused")}
		result := NewAdapterWith(executor, client).Fetch(context.Background(), restSpec)

		assert.False(t, result.OK())
		assert.Contains(t, result.Error, "rest_err=connection refused")
		assert.Contains(t, result.Error, "rpc_err=Error: rpc unavailable")
	})

	t.Run("no fallback configured reports the rest error", func(t *testing.T) {
		t.Parallel()

		spec := restSpec
		spec.Fallback = nil
		client := &fakeRESTClient{err: fmt.Errorf("connection refused")}
		result := NewAdapterWith(&fakeExecutor{}, client).Fetch(context.Background(), spec)

		assert.False(t, result.OK())
		assert.Equal(t, "connection refused", result.Error)
	})
}

func TestBuildQueries(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	cfg.Node.Home = "/root/.arkeo"

	t.Run("cli services query without rest endpoint", func(t *testing.T) {
		t.Parallel()

		settings := config.RuntimeSettings{NodeEndpoint: "tcp://node:26657"}
		specs := BuildQueries(cfg, settings)
		require.Len(t, specs, 4)

		names := make([]string, 0, len(specs))
		for _, spec := range specs {
			names = append(names, spec.Name)
		}
		assert.Equal(t, []string{
			SourceProviderServices,
			SourceProviderContracts,
			SourceValidators,
			SourceServiceTypes,
		}, names)

		for _, spec := range specs {
			assert.Equal(t, KindCLI, spec.Kind)
			cmd := strings.Join(spec.Command, " ")
			assert.Contains(t, cmd, "--home /root/.arkeo")
			assert.Contains(t, cmd, "--node tcp://node:26657")
			assert.Contains(t, cmd, "-o json")
		}

		validators := strings.Join(specs[2].Command, " ")
		assert.Contains(t, validators, "--status BOND_STATUS_BONDED")
		assert.Contains(t, validators, "--page-limit 1000")
	})

	t.Run("rest services query when endpoint set", func(t *testing.T) {
		t.Parallel()

		settings := config.RuntimeSettings{RESTEndpoint: "https://rest.example.com/"}
		specs := BuildQueries(cfg, settings)
		require.Len(t, specs, 4)

		services := specs[3]
		assert.Equal(t, KindREST, services.Kind)
		assert.Equal(t, "https://rest.example.com/arkeo/services", services.URL)
		require.NotEmpty(t, services.Fallback)
		assert.Contains(t, strings.Join(services.Fallback, " "), "all-services")

		// No --node flag when the settings leave the endpoint empty.
		assert.NotContains(t, strings.Join(specs[0].Command, " "), "--node")
	})
}
