// Package views derives the active views from normalized query records and
// the metadata cache. Every function here is pure: same inputs, same
// outputs, no I/O.
package views

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/arkeo-network/arkeo-cache-sync/internal/config"
	"github.com/arkeo-network/arkeo-cache-sync/internal/metadata"
	"github.com/arkeo-network/arkeo-cache-sync/internal/model"
)

// Activation gates for the bond-rate strategy.
const (
	// BaseDenom is the chain's base unit; bonds in any other denomination
	// count as zero.
	BaseDenom = "uarkeo"

	// MinBondAmount is the minimum bond, in BaseDenom, for a service
	// offering to qualify as active.
	MinBondAmount = 100_000_000
)

// ActiveService is one qualifying service offering.
type ActiveService struct {
	ProviderPubKey string          `json:"provider_pubkey"`
	ServiceID      string          `json:"service_id,omitempty"`
	Service        string          `json:"service,omitempty"`
	MetadataURI    string          `json:"metadata_uri"`
	PayAsYouGoRate *model.Coin     `json:"pay_as_you_go_rate,omitempty"`
	Raw            json.RawMessage `json:"raw,omitempty"`
}

// ActiveServicesView is the active-services artifact. Entries keep the
// order the source records arrived in; the view is rebuilt from scratch
// every cycle.
type ActiveServicesView struct {
	FetchedAt      time.Time       `json:"fetched_at"`
	Source         string          `json:"source"`
	ActiveServices []ActiveService `json:"active_services"`
}

// Strategy decides which service offerings are active. Both strategies the
// pipeline has historically run are kept as explicit, separately selectable
// implementations; neither is authoritative.
type Strategy interface {
	// Name returns the configuration name of the strategy.
	Name() string

	// Activate filters the provider records down to active offerings.
	Activate(records []model.ProviderRecord, resolved map[string]bool, allowLocalhost bool) []ActiveService
}

// NewStrategy returns the named activation strategy.
func NewStrategy(name string) (Strategy, error) {
	switch name {
	case config.StrategyBondRate:
		return &bondRateStrategy{minBond: MinBondAmount}, nil
	case config.StrategyProviderMembership:
		return &providerMembershipStrategy{}, nil
	default:
		return nil, fmt.Errorf("unknown derivation strategy: %s", name)
	}
}

// bondRateStrategy activates offerings that are online, meet the bond
// threshold, declare a positive pay-as-you-go rate, and reference a resolved
// external metadata URI.
type bondRateStrategy struct {
	minBond int64
}

func (*bondRateStrategy) Name() string {
	return config.StrategyBondRate
}

func (s *bondRateStrategy) Activate(
	records []model.ProviderRecord, resolved map[string]bool, allowLocalhost bool,
) []ActiveService {
	active := make([]ActiveService, 0)
	for _, rec := range records {
		if rec.PubKey == "" || !rec.Online {
			continue
		}
		if bondBaseAmount(rec.Bond) < s.minBond {
			continue
		}
		rate, ok := minPositiveRate(rec.Rates)
		if !ok {
			continue
		}
		if rec.MetadataURI == "" ||
			!metadata.IsExternalURI(rec.MetadataURI, allowLocalhost) ||
			!resolved[rec.MetadataURI] {
			continue
		}

		active = append(active, ActiveService{
			ProviderPubKey: rec.PubKey,
			ServiceID:      rec.ServiceID,
			Service:        rec.ServiceName,
			MetadataURI:    rec.MetadataURI,
			PayAsYouGoRate: &rate,
			Raw:            rec.Raw,
		})
	}
	return active
}

// providerMembershipStrategy activates offerings that are online with an
// external metadata URI; bond, rate, and cache membership are not checked
// here. Provider-level gating happens in the active-providers view.
type providerMembershipStrategy struct{}

func (*providerMembershipStrategy) Name() string {
	return config.StrategyProviderMembership
}

func (*providerMembershipStrategy) Activate(
	records []model.ProviderRecord, _ map[string]bool, allowLocalhost bool,
) []ActiveService {
	active := make([]ActiveService, 0)
	for _, rec := range records {
		if rec.PubKey == "" || !rec.Online {
			continue
		}
		if rec.MetadataURI == "" || !metadata.IsExternalURI(rec.MetadataURI, allowLocalhost) {
			continue
		}

		active = append(active, ActiveService{
			ProviderPubKey: rec.PubKey,
			ServiceID:      rec.ServiceID,
			Service:        rec.ServiceName,
			MetadataURI:    rec.MetadataURI,
			Raw:            rec.Raw,
		})
	}
	return active
}

// DeriveActiveServices builds the active-services view using the given
// strategy.
func DeriveActiveServices(
	strategy Strategy,
	records []model.ProviderRecord,
	resolved map[string]bool,
	allowLocalhost bool,
	now time.Time,
) *ActiveServicesView {
	return &ActiveServicesView{
		FetchedAt:      now.UTC(),
		Source:         "provider-services",
		ActiveServices: strategy.Activate(records, resolved, allowLocalhost),
	}
}

// bondBaseAmount returns the bond amount in the base denomination. A bond
// in any other denomination is worth zero for activation purposes.
func bondBaseAmount(bond model.Coin) int64 {
	if bond.Denom != "" && strings.ToLower(bond.Denom) != BaseDenom {
		return 0
	}
	return bond.Amount
}

// minPositiveRate selects the representative pay-as-you-go rate: the entry
// with the smallest positive amount, first one wins on ties. Returns false
// when no positive rate exists.
func minPositiveRate(rates []model.Coin) (model.Coin, bool) {
	var best model.Coin
	found := false
	for _, rate := range rates {
		if rate.Amount <= 0 {
			continue
		}
		if !found || rate.Amount < best.Amount {
			best = rate
			found = true
		}
	}
	return best, found
}
