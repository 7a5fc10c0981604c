// Package sources runs the named chain queries and normalizes their output
// into raw query results, one per source per cycle.
package sources

import (
	"context"
	"encoding/json"
	"time"

	"github.com/arkeo-network/arkeo-cache-sync/internal/config"
)

// Named sources queried every cycle. Each name is also the artifact the raw
// result is written to.
const (
	SourceProviderServices  = "provider-services"
	SourceProviderContracts = "provider-contracts"
	SourceValidators        = "validators"
	SourceServiceTypes      = "service-types"
)

// Query kinds.
const (
	// KindCLI invokes the node binary and captures its output.
	KindCLI = "cli"

	// KindREST fetches from the node's REST API, falling back to the CLI
	// query when the REST call fails.
	KindREST = "rest"
)

// QuerySpec names one external query and how to execute it.
type QuerySpec struct {
	// Name is the source name and artifact name.
	Name string

	// Kind is KindCLI or KindREST.
	Kind string

	// Command is the full CLI invocation (binary first).
	Command []string

	// URL is the REST endpoint for KindREST queries.
	URL string

	// Fallback is the CLI invocation tried when a REST query fails.
	Fallback []string
}

// RawQueryResult is the normalized outcome of one named query. It is
// immutable once produced and overwritten wholesale each cycle.
type RawQueryResult struct {
	// Source is the name of the query that produced this result.
	Source string `json:"source,omitempty"`

	// FetchedAt is when the query completed.
	FetchedAt time.Time `json:"fetched_at"`

	// ExitCode is zero on success. Transport errors and non-zero process
	// exits both yield a non-zero value here.
	ExitCode int `json:"exit_code"`

	// Cmd echoes the command line or URL that was executed.
	Cmd []string `json:"cmd,omitempty"`

	// Data is the parsed payload: a structured document when the output
	// parsed as JSON (or through the plaintext fallback), otherwise the raw
	// text as a JSON string.
	Data json.RawMessage `json:"data,omitempty"`

	// Error holds the failure output when ExitCode is non-zero.
	Error string `json:"error,omitempty"`

	// ParsedFrom notes when Data was recovered via the plaintext fallback.
	ParsedFrom string `json:"parsed_from,omitempty"`
}

// OK reports whether the query succeeded.
func (r *RawQueryResult) OK() bool {
	return r != nil && r.ExitCode == 0
}

// Executor runs an external command and returns its exit code and combined
// output. Implementations must respect the context deadline.
type Executor interface {
	Run(ctx context.Context, args []string) (int, []byte, error)
}

// BuildQueries assembles the query list for one cycle from the static
// config and the cycle's runtime settings. Order matters: providers first so
// metadata resolution can run before the derived views.
func BuildQueries(cfg *config.Config, settings config.RuntimeSettings) []QuerySpec {
	base := []string{"arkeod", "--home", cfg.Node.Home}
	if settings.NodeEndpoint != "" {
		base = append(base, "--node", settings.NodeEndpoint)
	}

	cli := func(args ...string) []string {
		return append(append([]string{}, base...), args...)
	}

	allServices := cli("query", "arkeo", "all-services", "-o", "json")

	specs := []QuerySpec{
		{
			Name:    SourceProviderServices,
			Kind:    KindCLI,
			Command: cli("query", "arkeo", "list-providers", "-o", "json"),
		},
		{
			Name:    SourceProviderContracts,
			Kind:    KindCLI,
			Command: cli("query", "arkeo", "list-contracts", "-o", "json"),
		},
		{
			Name: SourceValidators,
			Kind: KindCLI,
			Command: cli("query", "staking", "validators",
				"--page-limit", "1000", "--page-count-total",
				"--status", "BOND_STATUS_BONDED", "-o", "json"),
		},
	}

	if settings.RESTEndpoint != "" {
		specs = append(specs, QuerySpec{
			Name:     SourceServiceTypes,
			Kind:     KindREST,
			URL:      servicesURL(settings.RESTEndpoint),
			Fallback: allServices,
		})
	} else {
		specs = append(specs, QuerySpec{
			Name:    SourceServiceTypes,
			Kind:    KindCLI,
			Command: allServices,
		})
	}

	return specs
}
