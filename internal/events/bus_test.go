package events

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectEvents(t *testing.T, bus *Bus, eventType EventType) (*sync.Mutex, *[]*Event) {
	t.Helper()
	var mu sync.Mutex
	var got []*Event
	bus.Subscribe(eventType, func(e *Event) {
		mu.Lock()
		got = append(got, e)
		mu.Unlock()
	})
	return &mu, &got
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within deadline")
}

func TestBusDeliversToSubscriber(t *testing.T) {
	bus := NewBus(zerolog.Nop())
	defer bus.Close()
	mu, got := collectEvents(t, bus, AccountSyncSucceeded)

	bus.Emit(AccountSyncSucceeded, "sync", map[string]interface{}{"total": 2})

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(*got) == 1
	})

	mu.Lock()
	defer mu.Unlock()
	e := (*got)[0]
	assert.Equal(t, AccountSyncSucceeded, e.Type)
	assert.Equal(t, "sync", e.Module)
	assert.NotEmpty(t, e.ID)
	assert.False(t, e.OccurredAt.IsZero())
}

func TestBusPerSubscriberOrdering(t *testing.T) {
	bus := NewBus(zerolog.Nop())
	defer bus.Close()
	mu, got := collectEvents(t, bus, FileImportProgress)

	const n = 50
	for i := 0; i < n; i++ {
		bus.Emit(FileImportProgress, "sync", map[string]interface{}{"seq": i})
	}

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(*got) == n
	})

	mu.Lock()
	defer mu.Unlock()
	for i, e := range *got {
		assert.Equal(t, i, e.Data["seq"])
	}
}

func TestBusIgnoresOtherTypes(t *testing.T) {
	bus := NewBus(zerolog.Nop())
	defer bus.Close()
	mu, got := collectEvents(t, bus, AccountSyncFailed)

	bus.Emit(AccountSyncSucceeded, "sync", nil)
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Empty(t, *got)
}

func TestBusEventIDsTimeOrdered(t *testing.T) {
	bus := NewBus(zerolog.Nop())
	defer bus.Close()
	mu, got := collectEvents(t, bus, AccountBalanceUpdated)

	for i := 0; i < 10; i++ {
		bus.Emit(AccountBalanceUpdated, "sync", nil)
		time.Sleep(2 * time.Millisecond)
	}

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(*got) == 10
	})

	mu.Lock()
	defer mu.Unlock()
	for i := 1; i < len(*got); i++ {
		assert.Less(t, (*got)[i-1].ID, (*got)[i].ID)
	}
}

func TestManagerEmitForUser(t *testing.T) {
	bus := NewBus(zerolog.Nop())
	defer bus.Close()
	mu, got := collectEvents(t, bus, ProviderConnectionAttempted)

	mgr := NewManager(bus, zerolog.Nop())
	mgr.EmitForUser(ProviderConnectionAttempted, "connections", "user-1", map[string]interface{}{
		"provider_slug": "schwab",
	})

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(*got) == 1
	})

	mu.Lock()
	defer mu.Unlock()
	e := (*got)[0]
	assert.Equal(t, "user-1", e.UserID)
	assert.Equal(t, "schwab", e.Data["provider_slug"])
}

func TestManagerEmitFailedCarriesReason(t *testing.T) {
	bus := NewBus(zerolog.Nop())
	defer bus.Close()
	mu, got := collectEvents(t, bus, AccountSyncFailed)

	mgr := NewManager(bus, zerolog.Nop())
	mgr.EmitFailed(AccountSyncFailed, "sync", "user-1", "RECENTLY_SYNCED", map[string]interface{}{
		"connection_id": "conn-1",
	})

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(*got) == 1
	})

	mu.Lock()
	defer mu.Unlock()
	e := (*got)[0]
	require.Equal(t, "RECENTLY_SYNCED", e.Data["reason"])
	assert.Equal(t, "conn-1", e.Data["connection_id"])
}
