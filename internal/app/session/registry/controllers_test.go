package registry

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/jukebot/internal/app/playback"
)

func newController(t *testing.T, guildID string) *playback.Controller {
	t.Helper()
	c := playback.NewController(guildID, playback.Config{}, nil, nil)
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	return c
}

func TestControllerRegistry_GetOrCreate(t *testing.T) {
	r := NewControllerRegistry()

	c1, created, err := r.GetOrCreate("g1", func() *playback.Controller { return newController(t, "g1") })
	require.NoError(t, err)
	assert.True(t, created)

	c2, created, err := r.GetOrCreate("g1", func() *playback.Controller {
		t.Fatal("create must not be called for an existing guild")
		return nil
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Same(t, c1, c2)
	assert.Len(t, r.All(), 1)
}

func TestControllerRegistry_GetOrCreateConcurrent(t *testing.T) {
	r := NewControllerRegistry()

	var mu sync.Mutex
	creates := 0
	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, _ = r.GetOrCreate("g1", func() *playback.Controller {
				mu.Lock()
				creates++
				mu.Unlock()
				return newController(t, "g1")
			})
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, creates)
	assert.Len(t, r.All(), 1)
}

func TestControllerRegistry_GetRemoveAll(t *testing.T) {
	r := NewControllerRegistry()
	_, err := r.Get("g1")
	assert.ErrorIs(t, err, ErrUnknownGuild)

	_, _, err = r.GetOrCreate("g2", func() *playback.Controller { return newController(t, "g2") })
	require.NoError(t, err)
	_, _, err = r.GetOrCreate("g1", func() *playback.Controller { return newController(t, "g1") })
	require.NoError(t, err)

	got, err := r.Get("g1")
	require.NoError(t, err)
	assert.Equal(t, "g1", got.GuildID())

	all := r.All()
	require.Len(t, all, 2)
	assert.Equal(t, "g1", all[0].GuildID())
	assert.Equal(t, "g2", all[1].GuildID())

	removed, ok := r.Remove("g1")
	assert.True(t, ok)
	assert.Equal(t, "g1", removed.GuildID())
	_, ok = r.Remove("g1")
	assert.False(t, ok)
	assert.Len(t, r.All(), 1)
}

func TestControllerRegistry_Close(t *testing.T) {
	r := NewControllerRegistry()
	for _, id := range []string{"g2", "g1"} {
		_, _, err := r.GetOrCreate(id, func() *playback.Controller { return newController(t, id) })
		require.NoError(t, err)
	}

	closed := r.Close()
	require.Len(t, closed, 2)
	assert.Equal(t, "g1", closed[0].GuildID())
	assert.Empty(t, r.All())

	_, _, err := r.GetOrCreate("g3", func() *playback.Controller {
		t.Fatal("create must not be called after Close")
		return nil
	})
	assert.ErrorIs(t, err, ErrClosed)
	assert.Empty(t, r.Close())
}

func TestControllerRegistry_CloseRacesCreate(t *testing.T) {
	for range 50 {
		r := NewControllerRegistry()

		var mu sync.Mutex
		var created []string
		var wg sync.WaitGroup
		for i := range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				id := string(rune('a' + i))
				_, _, _ = r.GetOrCreate(id, func() *playback.Controller {
					mu.Lock()
					created = append(created, id)
					mu.Unlock()
					return newController(t, id)
				})
			}()
		}
		var closed []string
		for _, c := range r.Close() {
			closed = append(closed, c.GuildID())
		}
		wg.Wait()

		mu.Lock()
		assert.ElementsMatch(t, created, closed, "every created controller is handed to Close")
		mu.Unlock()
	}
}
