package views

import (
	"encoding/json"
	"time"

	"github.com/tidwall/gjson"
)

// ListenersArtifact is the shared artifact reconciled against live state.
// The listener runtime owns most of its fields; reconciliation only touches
// what it can vouch for.
const ListenersArtifact = "listeners"

// preservedServiceFields are written by the listener runtime and carried
// through a merge byte for byte.
var preservedServiceFields = []string{
	"rt_avg_ms",
	"rt_count",
	"rt_last_ms",
	"rt_updated_at",
	"status_updated_at",
}

// ReconcileSummary reports what a reconciliation pass touched.
type ReconcileSummary struct {
	Listeners        int `json:"listeners"`
	ListenersUpdated int `json:"listeners_updated"`
	ServicesUpdated  int `json:"services_updated"`
	ServicesDropped  int `json:"services_dropped"`
}

// ReconcileListeners merges live service state into a listeners document.
// Each top_services entry keyed by provider pubkey and service id is
// refreshed from the matching active service, dropped when no active
// service backs it anymore, or dropped as a duplicate of an earlier entry.
// Entries that cannot be keyed are kept verbatim. Listeners that changed
// get their updated_at stamped; untouched listeners are not reserialized.
//
// The returned document is nil when the input is absent, malformed, or has
// no listeners key; the caller skips the write in that case. The boolean
// reports whether anything changed.
func ReconcileListeners(
	doc []byte,
	active *ActiveServicesView,
	providers *ActiveProvidersView,
	now time.Time,
) (map[string]json.RawMessage, *ReconcileSummary, bool) {
	var root map[string]json.RawMessage
	if err := json.Unmarshal(doc, &root); err != nil {
		return nil, nil, false
	}
	listenersRaw, ok := root["listeners"]
	if !ok {
		return nil, nil, false
	}
	var listeners []map[string]json.RawMessage
	if err := json.Unmarshal(listenersRaw, &listeners); err != nil {
		return nil, nil, false
	}

	liveStatus := make(map[string]json.RawMessage)
	for _, svc := range active.ActiveServices {
		key := svc.ProviderPubKey + "|" + serviceKey(svc)
		if _, seen := liveStatus[key]; seen {
			continue
		}
		liveStatus[key] = rawField(svc.Raw, "status")
	}

	monikers := make(map[string]string)
	for _, p := range providers.Providers {
		if len(p.Metadata) == 0 {
			continue
		}
		if m := gjson.GetBytes(p.Metadata, "config.moniker"); m.Type == gjson.String && m.Str != "" {
			monikers[p.ProviderPubKey] = m.Str
		}
	}

	summary := &ReconcileSummary{Listeners: len(listeners)}
	anyChanged := false

	for _, listener := range listeners {
		var top []map[string]json.RawMessage
		if raw, ok := listener["top_services"]; ok {
			if err := json.Unmarshal(raw, &top); err != nil {
				continue
			}
		}

		listenerSID := stringField(listener, "service_id", "service")
		merged := make([]map[string]json.RawMessage, 0, len(top))
		seen := make(map[string]bool, len(top))
		changed := false

		for _, entry := range top {
			pk := stringField(entry, "provider_pubkey", "pubkey")
			sid := stringField(entry, "service_id", "service")
			if sid == "" {
				sid = listenerSID
			}
			if pk == "" || sid == "" {
				merged = append(merged, entry)
				continue
			}

			key := pk + "|" + sid
			if seen[key] {
				changed = true
				summary.ServicesDropped++
				continue
			}
			seen[key] = true

			status, live := liveStatus[key]
			if !live {
				changed = true
				summary.ServicesDropped++
				continue
			}

			next := map[string]json.RawMessage{
				"provider_pubkey": rawString(pk),
			}
			for _, field := range []string{"service_id", "service"} {
				if v, ok := entry[field]; ok {
					next[field] = v
				}
			}
			if status != nil {
				next["status"] = status
			}
			if moniker, ok := monikers[pk]; ok {
				next["provider_moniker"] = rawString(moniker)
			}
			for _, field := range preservedServiceFields {
				if v, ok := entry[field]; ok {
					next[field] = v
				}
			}

			changed = true
			summary.ServicesUpdated++
			merged = append(merged, next)
		}

		if !changed {
			continue
		}
		topRaw, err := json.Marshal(merged)
		if err != nil {
			continue
		}
		listener["top_services"] = topRaw
		listener["updated_at"] = rawTime(now)
		summary.ListenersUpdated++
		anyChanged = true
	}

	if !anyChanged {
		return root, summary, false
	}

	updatedListeners, err := json.Marshal(listeners)
	if err != nil {
		return nil, summary, false
	}
	root["listeners"] = updatedListeners
	root["fetched_at"] = rawTime(now)
	return root, summary, true
}

func serviceKey(svc ActiveService) string {
	if svc.ServiceID != "" {
		return svc.ServiceID
	}
	return svc.Service
}

func rawField(raw json.RawMessage, path string) json.RawMessage {
	if len(raw) == 0 {
		return nil
	}
	v := gjson.GetBytes(raw, path)
	if !v.Exists() {
		return nil
	}
	return json.RawMessage(v.Raw)
}

func stringField(obj map[string]json.RawMessage, keys ...string) string {
	for _, key := range keys {
		raw, ok := obj[key]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil && s != "" {
			return s
		}
		var n json.Number
		if err := json.Unmarshal(raw, &n); err == nil {
			return n.String()
		}
	}
	return ""
}

func rawString(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}

func rawTime(t time.Time) json.RawMessage {
	b, _ := json.Marshal(t.UTC())
	return b
}
