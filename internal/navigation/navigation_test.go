package navigation

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []string
}

func (n *recordingNotifier) Alert(message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, message)
}

func (n *recordingNotifier) Notify(string) {}

func TestGuard_TryAcquireOnce(t *testing.T) {
	var g Guard

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0

	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if g.TryAcquire() {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.True(t, g.Held())
	assert.False(t, g.TryAcquire())
}

func TestLocation_QueryEditsReplaceHistory(t *testing.T) {
	loc, err := NewLocation("https://meet.example.com/room.html?room=abc")
	require.NoError(t, err)

	assert.Equal(t, "abc", loc.Query("room"))
	assert.False(t, loc.SetQuery("room", "abc"))

	assert.True(t, loc.SetQuery("room", "xyz"))
	assert.Equal(t, "xyz", loc.Query("room"))
	assert.Len(t, loc.History(), 1)

	assert.True(t, loc.DeleteQuery("room"))
	assert.False(t, loc.DeleteQuery("room"))
	assert.Equal(t, "https://meet.example.com/room.html", loc.String())
	assert.Len(t, loc.History(), 1)
}

func TestRedirector_OnlyFirstRedirectWins(t *testing.T) {
	loc, err := NewLocation("https://meet.example.com/room.html?room=abc")
	require.NoError(t, err)

	notifier := &recordingNotifier{}
	r := NewRedirector(loc, notifier)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make(chan bool, 20)
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if i%2 == 0 {
				results <- r.ToLogin(ctx, "session expired")
			} else {
				results <- r.ToRoot(ctx, "room not found", "Room not found")
			}
		}()
	}
	wg.Wait()
	close(results)

	won := 0
	for ok := range results {
		if ok {
			won++
		}
	}

	assert.Equal(t, 1, won)
	assert.True(t, r.Redirecting())
	assert.Len(t, loc.History(), 2)
	assert.Contains(t, []string{LoginPath, RootPath}, r.Target())
	assert.LessOrEqual(t, len(notifier.alerts), 1)
}

func TestRedirector_ToRootAlertsAndTargetsRoot(t *testing.T) {
	loc, err := NewLocation("https://meet.example.com/room.html?room=abc")
	require.NoError(t, err)

	notifier := &recordingNotifier{}
	r := NewRedirector(loc, notifier)

	assert.True(t, r.ToRoot(context.Background(), "room not found", "Room not found or no longer active."))
	assert.Equal(t, RootPath, r.Target())
	assert.Equal(t, "room not found", r.Reason())
	assert.Equal(t, "https://meet.example.com/", loc.String())
	assert.Equal(t, []string{"Room not found or no longer active."}, notifier.alerts)

	assert.False(t, r.ToLogin(context.Background(), "late failure"))
	assert.Equal(t, RootPath, r.Target())
}
