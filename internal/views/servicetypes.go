package views

import (
	"encoding/json"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/arkeo-network/arkeo-cache-sync/internal/model"
)

// ServiceTypeAggregate counts active offerings of one service type and
// carries the matching catalog descriptor when one exists.
type ServiceTypeAggregate struct {
	ServiceID   string          `json:"service_id"`
	Count       int             `json:"count"`
	ServiceType json.RawMessage `json:"service_type,omitempty"`
}

// ActiveServiceTypesView is the active-service-types artifact.
type ActiveServiceTypesView struct {
	FetchedAt          time.Time              `json:"fetched_at"`
	Source             string                 `json:"source"`
	ActiveServiceTypes []ServiceTypeAggregate `json:"active_service_types"`
}

// DeriveActiveServiceTypes groups the active services by service id and
// attaches the catalog descriptor for each group, matched by id first and by
// case-insensitive name second. Groups with no descriptor are kept; the
// count stands on its own.
func DeriveActiveServiceTypes(
	active *ActiveServicesView, catalog []model.ServiceType, now time.Time,
) *ActiveServiceTypesView {
	byID := make(map[string]model.ServiceType, len(catalog))
	byName := make(map[string]model.ServiceType, len(catalog))
	for _, st := range catalog {
		if st.ID != "" {
			if _, ok := byID[st.ID]; !ok {
				byID[st.ID] = st
			}
		}
		if st.Name != "" {
			key := strings.ToLower(st.Name)
			if _, ok := byName[key]; !ok {
				byName[key] = st
			}
		}
	}

	counts := make(map[string]int)
	names := make(map[string]string)
	order := make([]string, 0)
	for _, svc := range active.ActiveServices {
		sid := svc.ServiceID
		if sid == "" {
			sid = svc.Service
		}
		if sid == "" {
			continue
		}
		if _, ok := counts[sid]; !ok {
			order = append(order, sid)
		}
		counts[sid]++
		if names[sid] == "" {
			names[sid] = svc.Service
		}
	}

	aggregates := make([]ServiceTypeAggregate, 0, len(order))
	for _, sid := range order {
		agg := ServiceTypeAggregate{ServiceID: sid, Count: counts[sid]}
		if st, ok := byID[sid]; ok {
			agg.ServiceType = st.Raw
		} else if st, ok := byName[strings.ToLower(names[sid])]; ok && names[sid] != "" {
			agg.ServiceType = st.Raw
		}
		aggregates = append(aggregates, agg)
	}

	sort.SliceStable(aggregates, func(i, j int) bool {
		return aggregateSortKey(aggregates[i]).less(aggregateSortKey(aggregates[j]))
	})

	return &ActiveServiceTypesView{
		FetchedAt:          now.UTC(),
		Source:             "service-types",
		ActiveServiceTypes: aggregates,
	}
}

type sortKey struct {
	description string
	name        string
	id          string
}

func (k sortKey) less(other sortKey) bool {
	if k.description != other.description {
		return k.description < other.description
	}
	if k.name != other.name {
		return k.name < other.name
	}
	return k.id < other.id
}

func aggregateSortKey(agg ServiceTypeAggregate) sortKey {
	key := sortKey{id: strings.ToLower(agg.ServiceID)}
	if len(agg.ServiceType) > 0 {
		doc := gjson.ParseBytes(agg.ServiceType)
		key.description = strings.ToLower(firstString(doc, "description"))
		key.name = strings.ToLower(firstString(doc, "name", "service"))
	}
	return key
}

func firstString(doc gjson.Result, keys ...string) string {
	for _, key := range keys {
		if v := doc.Get(key); v.Type == gjson.String {
			return v.Str
		}
	}
	return ""
}

// ChainCatalog maps service ids and names to chain identifiers, loaded from
// the static service-type resources file maintained by operators.
type ChainCatalog struct {
	byID   map[string]string
	byName map[string]string
}

// LoadChainCatalog reads the resources file at path. A missing or malformed
// file yields a nil catalog, which Lookup treats as empty; chain enrichment
// is strictly best effort.
func LoadChainCatalog(path string) *ChainCatalog {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path) // #nosec G304 - operator-configured path
	if err != nil || !gjson.ValidBytes(data) {
		return nil
	}

	doc := gjson.ParseBytes(data)
	list := doc
	for _, key := range []string{"data", "services", "service", "result"} {
		if v := doc.Get(key); v.Exists() {
			list = v
			break
		}
	}
	if inner := list.Get("services"); inner.IsArray() {
		list = inner
	}
	if !list.IsArray() {
		return nil
	}

	catalog := &ChainCatalog{
		byID:   make(map[string]string),
		byName: make(map[string]string),
	}
	for _, entry := range list.Array() {
		if !entry.IsObject() {
			continue
		}
		chain := firstString(entry, "chain")
		if chain == "" {
			continue
		}
		if id := entryServiceID(entry); id != "" {
			catalog.byID[id] = chain
		}
		if name := firstString(entry, "name", "service"); name != "" {
			catalog.byName[strings.ToLower(name)] = chain
		}
	}
	return catalog
}

// Lookup returns the chain for a service, matching id first and
// case-insensitive name second. Empty string means unknown.
func (c *ChainCatalog) Lookup(id, name string) string {
	if c == nil {
		return ""
	}
	if id != "" {
		if chain, ok := c.byID[id]; ok {
			return chain
		}
	}
	if name != "" {
		if chain, ok := c.byName[strings.ToLower(name)]; ok {
			return chain
		}
	}
	return ""
}

func entryServiceID(entry gjson.Result) string {
	for _, key := range []string{"service_id", "id", "service"} {
		v := entry.Get(key)
		switch v.Type {
		case gjson.String:
			if v.Str != "" {
				return v.Str
			}
		case gjson.Number:
			return v.Raw
		}
	}
	return ""
}

// EnrichServiceTypes fills the chain field of service-type entries from the
// catalog, in place within the raw document shape the node returned. Entries
// that already carry a chain are left alone. The second return reports
// whether anything changed; on unrecognized document shapes the input comes
// back untouched.
func EnrichServiceTypes(data json.RawMessage, catalog *ChainCatalog) (json.RawMessage, bool) {
	if catalog == nil || len(data) == 0 || !gjson.ValidBytes(data) {
		return data, false
	}

	doc := gjson.ParseBytes(data)
	wrapperKey := ""
	list := doc
	if doc.IsObject() {
		for _, key := range []string{"services", "service", "result"} {
			if v := doc.Get(key); v.IsArray() {
				wrapperKey = key
				list = v
				break
			}
		}
		if wrapperKey == "" {
			return data, false
		}
	} else if !doc.IsArray() {
		return data, false
	}

	var entries []map[string]any
	if err := json.Unmarshal([]byte(list.Raw), &entries); err != nil {
		return data, false
	}

	changed := false
	for _, entry := range entries {
		if entry == nil {
			continue
		}
		if existing, ok := entry["chain"].(string); ok && existing != "" {
			continue
		}
		id := anyServiceID(entry)
		name, _ := entry["name"].(string)
		if name == "" {
			name, _ = entry["service"].(string)
		}
		if chain := catalog.Lookup(id, name); chain != "" {
			entry["chain"] = chain
			changed = true
		}
	}
	if !changed {
		return data, false
	}

	if wrapperKey == "" {
		out, err := json.Marshal(entries)
		if err != nil {
			return data, false
		}
		return out, true
	}

	var root map[string]json.RawMessage
	if err := json.Unmarshal(data, &root); err != nil {
		return data, false
	}
	listRaw, err := json.Marshal(entries)
	if err != nil {
		return data, false
	}
	root[wrapperKey] = listRaw
	out, err := json.Marshal(root)
	if err != nil {
		return data, false
	}
	return out, true
}

func anyServiceID(entry map[string]any) string {
	for _, key := range []string{"service_id", "id", "service"} {
		switch v := entry[key].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}
