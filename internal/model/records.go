// Package model normalizes the heterogeneous JSON shapes returned by the
// chain's query interface onto fixed record types. All key aliases the
// interface has been observed to use (snake_case, camelCase, singular and
// plural collection names) are resolved here, once, so the derivation logic
// operates on a single shape.
package model

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"
)

// Coin is a denominated amount.
type Coin struct {
	Denom  string `json:"denom"`
	Amount int64  `json:"amount"`
}

// ProviderRecord is one service offering advertised by a provider. The
// list-providers query returns one entry per (provider, service) pair.
type ProviderRecord struct {
	PubKey      string
	Online      bool
	Status      json.RawMessage
	Bond        Coin
	Rates       []Coin
	MetadataURI string
	ServiceID   string
	ServiceName string

	// ServiceMetadataURIs holds metadata URIs declared on nested service
	// lists, when the source nests services under the provider entry.
	ServiceMetadataURIs []string

	Raw json.RawMessage
}

// ContractRecord is one contract between a client and a provider service.
type ContractRecord struct {
	Client    string
	ServiceID string
	Raw       json.RawMessage
}

// ServiceType is one entry of the service catalog.
type ServiceType struct {
	ID          string
	Name        string
	Description string
	Chain       string
	Raw         json.RawMessage
}

// pick returns the first existing key from the candidates.
func pick(r gjson.Result, keys ...string) gjson.Result {
	for _, key := range keys {
		if v := r.Get(key); v.Exists() {
			return v
		}
	}
	return gjson.Result{}
}

// pickString returns the first non-empty string value among the candidates.
func pickString(r gjson.Result, keys ...string) string {
	for _, key := range keys {
		if v := r.Get(key); v.Exists() && v.String() != "" {
			return v.String()
		}
	}
	return ""
}

// collection returns the element list for a result that is either a bare
// array or an object wrapping the array under one of the given keys.
func collection(r gjson.Result, keys ...string) []gjson.Result {
	if r.IsArray() {
		return r.Array()
	}
	if !r.IsObject() {
		return nil
	}
	for _, key := range keys {
		if v := r.Get(key); v.IsArray() {
			return v.Array()
		}
	}
	return nil
}

// ParseAmount extracts an integer amount from a raw int, a numeric string,
// or a coin string such as "100uarkeo". Returns false when no digits are
// present.
func ParseAmount(v gjson.Result) (int64, bool) {
	switch v.Type {
	case gjson.Number:
		return int64(v.Num), true
	case gjson.String:
		var digits strings.Builder
		for _, ch := range v.Str {
			if ch >= '0' && ch <= '9' {
				digits.WriteRune(ch)
			} else if digits.Len() > 0 {
				break
			}
		}
		if digits.Len() == 0 {
			return 0, false
		}
		var amount int64
		for _, ch := range digits.String() {
			amount = amount*10 + int64(ch-'0')
		}
		return amount, true
	default:
		return 0, false
	}
}

// onlineFlag reports whether a status value means "online": boolean true,
// numeric 1, or the strings "online"/"1" (case-insensitive).
func onlineFlag(v gjson.Result) bool {
	switch v.Type {
	case gjson.True:
		return true
	case gjson.Number:
		return v.Num == 1
	case gjson.String:
		s := strings.ToLower(strings.TrimSpace(v.Str))
		return s == "online" || s == "1"
	default:
		return false
	}
}

// parseCoin reads a {denom, amount} object with capitalized key fallbacks.
func parseCoin(r gjson.Result) (Coin, bool) {
	amount, ok := ParseAmount(pick(r, "amount", "Amount"))
	if !ok {
		return Coin{}, false
	}
	return Coin{
		Denom:  pickString(r, "denom", "Denom"),
		Amount: amount,
	}, true
}

// ParseProviderRecords extracts provider service records from a raw
// provider-services payload. Entries that are not objects are skipped.
func ParseProviderRecords(data json.RawMessage) []ProviderRecord {
	root := gjson.ParseBytes(data)
	entries := collection(root, "providers", "provider")

	records := make([]ProviderRecord, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsObject() {
			continue
		}

		rec := ProviderRecord{
			PubKey:      pickString(entry, "pub_key", "pubkey", "pubKey"),
			MetadataURI: pickString(entry, "metadata_uri", "metadataUri"),
			ServiceID:   pickString(entry, "service_id", "id", "service"),
			ServiceName: pickString(entry, "service", "name"),
			Raw:         json.RawMessage(entry.Raw),
		}

		if status := entry.Get("status"); status.Exists() {
			rec.Status = json.RawMessage(status.Raw)
			rec.Online = onlineFlag(status)
		}

		if bond := entry.Get("bond"); bond.Exists() {
			if bond.IsObject() {
				if coin, ok := parseCoin(bond); ok {
					rec.Bond = coin
				}
			} else if amount, ok := ParseAmount(bond); ok {
				rec.Bond = Coin{Amount: amount}
			}
		}

		rates := pick(entry, "pay_as_you_go_rate", "pay_as_you_go_rates")
		for _, rate := range rates.Array() {
			if !rate.IsObject() {
				continue
			}
			if coin, ok := parseCoin(rate); ok {
				rec.Rates = append(rec.Rates, coin)
			}
		}

		for _, svc := range pick(entry, "services", "service").Array() {
			if !svc.IsObject() {
				continue
			}
			if uri := pickString(svc, "metadata_uri", "metadataUri"); uri != "" {
				rec.ServiceMetadataURIs = append(rec.ServiceMetadataURIs, uri)
			}
		}

		records = append(records, rec)
	}

	return records
}

// ParseContractRecords extracts contract records from a raw
// provider-contracts payload.
func ParseContractRecords(data json.RawMessage) []ContractRecord {
	root := gjson.ParseBytes(data)
	entries := collection(root, "contracts", "contract")

	records := make([]ContractRecord, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsObject() {
			continue
		}
		records = append(records, ContractRecord{
			Client:    entry.Get("client").String(),
			ServiceID: pickString(entry, "service", "service_id", "serviceID"),
			Raw:       json.RawMessage(entry.Raw),
		})
	}

	return records
}

// ParseServiceTypes extracts catalog entries from a raw service-types
// payload, which may be a bare array or wrapped under several keys.
func ParseServiceTypes(data json.RawMessage) []ServiceType {
	root := gjson.ParseBytes(data)
	entries := collection(root, "services", "service", "result", "data", "entries")

	types := make([]ServiceType, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsObject() {
			continue
		}
		id := pick(entry, "service_id", "id", "serviceID", "service")
		types = append(types, ServiceType{
			ID:          id.String(),
			Name:        pickString(entry, "name", "service"),
			Description: pickString(entry, "description", "desc"),
			Chain:       entry.Get("chain").String(),
			Raw:         json.RawMessage(entry.Raw),
		})
	}

	return types
}
