package views

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkeo-network/arkeo-cache-sync/internal/model"
)

func TestDeriveSubscribers(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	contracts := []model.ContractRecord{
		{Client: "arkeo1client1", ServiceID: "14"},
		{Client: "arkeo1client2", ServiceID: "13"},
		{Client: "arkeo1client1", ServiceID: "13"},
		{Client: "arkeo1client1", ServiceID: "13"},
		{Client: "", ServiceID: "13"},
		{Client: "arkeo1client3"},
	}

	view := DeriveSubscribers(contracts, now)
	assert.Equal(t, now, view.FetchedAt)
	assert.Equal(t, "provider-contracts", view.Source)
	require.Len(t, view.Subscribers, 3)

	// First-seen order, counts include duplicate service contracts,
	// services are distinct and sorted.
	assert.Equal(t, "arkeo1client1", view.Subscribers[0].Subscriber)
	assert.Equal(t, 3, view.Subscribers[0].Contracts)
	assert.Equal(t, []string{"13", "14"}, view.Subscribers[0].Services)

	assert.Equal(t, "arkeo1client2", view.Subscribers[1].Subscriber)
	assert.Equal(t, 1, view.Subscribers[1].Contracts)
	assert.Equal(t, []string{"13"}, view.Subscribers[1].Services)

	// A contract without a service id still counts.
	assert.Equal(t, "arkeo1client3", view.Subscribers[2].Subscriber)
	assert.Equal(t, 1, view.Subscribers[2].Contracts)
	assert.Empty(t, view.Subscribers[2].Services)
}

func TestDeriveSubscribersEmpty(t *testing.T) {
	t.Parallel()

	view := DeriveSubscribers(nil, time.Now())
	assert.NotNil(t, view.Subscribers)
	assert.Empty(t, view.Subscribers)
}
