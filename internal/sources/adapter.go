package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/arkeo-network/arkeo-cache-sync/internal/httpclient"
)

// restTimeout bounds the REST services query.
const restTimeout = 15 * time.Second

// Adapter executes query specs and normalizes their outcomes. Failures are
// captured inside the result, never returned: one source failing must not
// block the others.
type Adapter struct {
	executor Executor
	client   httpclient.Client
}

// NewAdapter creates an adapter with the default process executor and HTTP
// client.
func NewAdapter() *Adapter {
	return &Adapter{
		executor: &processExecutor{},
		client:   httpclient.NewDefaultClient(restTimeout),
	}
}

// NewAdapterWith creates an adapter with injected dependencies, for tests.
func NewAdapterWith(executor Executor, client httpclient.Client) *Adapter {
	return &Adapter{executor: executor, client: client}
}

// Fetch runs one query spec to completion and returns its normalized result.
func (a *Adapter) Fetch(ctx context.Context, spec QuerySpec) *RawQueryResult {
	if spec.Kind == KindREST {
		return a.fetchREST(ctx, spec)
	}
	return a.fetchCLI(ctx, spec)
}

// fetchCLI runs the command and normalizes its combined output.
func (a *Adapter) fetchCLI(ctx context.Context, spec QuerySpec) *RawQueryResult {
	code, out, err := a.executor.Run(ctx, spec.Command)
	if err != nil && code == 0 {
		// The process could not be started at all.
		code = -1
		out = []byte(err.Error())
	}
	return normalizeResult(spec.Name, code, out, spec.Command)
}

// fetchREST fetches the REST URL, falling back to the CLI query on any
// transport failure. Both error strings are preserved when both paths fail.
func (a *Adapter) fetchREST(ctx context.Context, spec QuerySpec) *RawQueryResult {
	body, restErr := a.client.Get(ctx, spec.URL)
	if restErr == nil {
		return normalizeResult(spec.Name, 0, body, []string{spec.URL})
	}

	slog.Warn("REST query failed, falling back to CLI",
		"source", spec.Name,
		"url", spec.URL,
		"error", restErr)

	if len(spec.Fallback) == 0 {
		return &RawQueryResult{
			Source:    spec.Name,
			FetchedAt: time.Now().UTC(),
			ExitCode:  1,
			Cmd:       []string{spec.URL},
			Error:     restErr.Error(),
		}
	}

	code, out, execErr := a.executor.Run(ctx, spec.Fallback)
	if execErr != nil && code == 0 {
		return &RawQueryResult{
			Source:    spec.Name,
			FetchedAt: time.Now().UTC(),
			ExitCode:  1,
			Cmd:       []string{spec.URL},
			Error:     fmt.Sprintf("rest_err=%v; rpc_exec_err=%v", restErr, execErr),
		}
	}

	result := normalizeResult(spec.Name, code, out, spec.Fallback)
	if result.ExitCode != 0 {
		result.Error = fmt.Sprintf("rest_err=%v; rpc_err=%s", restErr, result.Error)
	}
	return result
}

// normalizeResult converts raw command output into a RawQueryResult.
// Successful output is parsed as JSON; for the service-types source a known
// line-oriented plaintext format is converted to the structured shape; as a
// last resort the raw text is retained verbatim.
func normalizeResult(name string, code int, out []byte, cmd []string) *RawQueryResult {
	result := &RawQueryResult{
		Source:    name,
		FetchedAt: time.Now().UTC(),
		ExitCode:  code,
		Cmd:       append([]string{}, cmd...),
	}

	if code != 0 {
		result.Error = string(out)
		return result
	}

	trimmed := bytes.TrimSpace(out)
	if json.Valid(trimmed) && len(trimmed) > 0 {
		result.Data = json.RawMessage(trimmed)
		return result
	}

	if name == SourceServiceTypes {
		if doc := ParseServicesText(string(out)); doc != nil {
			data, err := json.Marshal(doc)
			if err == nil {
				result.Data = data
				result.ParsedFrom = "all-services text output"
				return result
			}
		}
	}

	// Keep the raw text as a JSON string so the artifact stays valid JSON.
	raw, err := json.Marshal(string(out))
	if err != nil {
		result.ExitCode = 1
		result.Error = fmt.Sprintf("failed to encode raw output: %v", err)
		return result
	}
	result.Data = raw
	return result
}

// processExecutor runs commands through os/exec.
type processExecutor struct{}

// Run executes the command and returns its exit code with combined output.
func (*processExecutor) Run(ctx context.Context, args []string) (int, []byte, error) {
	if len(args) == 0 {
		return -1, nil, fmt.Errorf("empty command")
	}

	// #nosec G204 -- the command line is assembled from configuration, never
	// from query payloads
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	out, err := cmd.CombinedOutput()
	if err == nil {
		return 0, out, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), out, nil
	}
	return 0, nil, fmt.Errorf("failed to run %s: %w", strings.Join(args, " "), err)
}

// servicesURL joins the REST base with the services path.
func servicesURL(restEndpoint string) string {
	return strings.TrimRight(restEndpoint, "/") + "/arkeo/services"
}
