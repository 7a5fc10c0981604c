package views

import (
	"sort"
	"time"

	"github.com/arkeo-network/arkeo-cache-sync/internal/model"
)

// Subscriber summarizes the open contracts held by one client address.
type Subscriber struct {
	Subscriber string   `json:"subscriber"`
	Contracts  int      `json:"contracts"`
	Services   []string `json:"services"`
}

// SubscribersView is the subscribers artifact.
type SubscribersView struct {
	FetchedAt   time.Time    `json:"fetched_at"`
	Source      string       `json:"source"`
	Subscribers []Subscriber `json:"subscribers"`
}

// DeriveSubscribers groups contract records by client address. Contracts
// without a client are skipped. Subscribers keep first-seen order; the
// distinct service ids per subscriber are sorted.
func DeriveSubscribers(contracts []model.ContractRecord, now time.Time) *SubscribersView {
	counts := make(map[string]int)
	services := make(map[string]map[string]bool)
	order := make([]string, 0)

	for _, c := range contracts {
		if c.Client == "" {
			continue
		}
		if _, ok := counts[c.Client]; !ok {
			order = append(order, c.Client)
			services[c.Client] = make(map[string]bool)
		}
		counts[c.Client]++
		if c.ServiceID != "" {
			services[c.Client][c.ServiceID] = true
		}
	}

	subscribers := make([]Subscriber, 0, len(order))
	for _, client := range order {
		ids := make([]string, 0, len(services[client]))
		for id := range services[client] {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		subscribers = append(subscribers, Subscriber{
			Subscriber: client,
			Contracts:  counts[client],
			Services:   ids,
		})
	}

	return &SubscribersView{
		FetchedAt:   now.UTC(),
		Source:      "provider-contracts",
		Subscribers: subscribers,
	}
}
