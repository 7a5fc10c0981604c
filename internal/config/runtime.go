package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
)

// SettingsFileName is the runtime settings document inside the cache
// directory. Operators edit it to redirect the pipeline without a restart.
const SettingsFileName = "subscriber-settings.json"

// RuntimeSettings is the per-cycle snapshot of the values that may change
// between cycles. It is reloaded at the start of every cycle and passed down
// explicitly so a cycle is reproducible from its inputs.
type RuntimeSettings struct {
	// NodeEndpoint is the Tendermint RPC endpoint for CLI queries.
	NodeEndpoint string

	// RESTEndpoint is the REST API base URL for the services query.
	RESTEndpoint string

	// AllowLocalhost permits localhost/loopback metadata URIs this cycle.
	AllowLocalhost bool
}

// settingsDocument mirrors the on-disk JSON shape. Key names are the
// historical environment-variable spellings the document always used.
type settingsDocument struct {
	Node           string `json:"ARKEOD_NODE,omitempty"`
	RESTEndpoint   string `json:"ARKEO_REST_API,omitempty"`
	AllowLocalhost string `json:"ALLOW_LOCALHOST_SENTINEL_URIS,omitempty"`
}

// LoadRuntimeSettings builds the settings snapshot for one cycle. Precedence
// per field: settings document, then environment, then the static config.
// A missing or malformed document is not an error; the fallbacks apply.
func LoadRuntimeSettings(cfg *Config) RuntimeSettings {
	settings := RuntimeSettings{
		NodeEndpoint:   cfg.Node.Endpoint,
		RESTEndpoint:   cfg.Node.RESTEndpoint,
		AllowLocalhost: cfg.Metadata.AllowLocalhost,
	}

	var doc settingsDocument
	if data, err := os.ReadFile(filepath.Join(cfg.CacheDir, SettingsFileName)); err == nil {
		// Ignore parse failures; a half-edited document must not take the
		// whole cycle down.
		_ = json.Unmarshal(data, &doc)
	}

	if v := strings.TrimSpace(doc.Node); v != "" {
		settings.NodeEndpoint = v
	} else if v := strings.TrimSpace(os.Getenv(envArkeodNode)); v != "" {
		settings.NodeEndpoint = v
	}

	if v := strings.TrimSpace(doc.RESTEndpoint); v != "" {
		settings.RESTEndpoint = v
	} else if v := strings.TrimSpace(os.Getenv(envRESTEndpoint)); v != "" {
		settings.RESTEndpoint = v
	}

	if v := doc.AllowLocalhost; v != "" {
		settings.AllowLocalhost = ParseBool(v)
	} else if v := os.Getenv(envAllowLocalhost); v != "" {
		settings.AllowLocalhost = ParseBool(v)
	}

	return settings
}
