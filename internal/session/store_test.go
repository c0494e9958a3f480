package session

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreCRUD(t *testing.T) {
	st := NewMemoryStore()

	_, ok := st.Get("a")
	assert.False(t, ok)

	s := New("a", "Ann", t0)
	st.Set(s)
	st.Set(New("b", "Bob", t0))
	assert.Equal(t, 2, st.Len())

	got, ok := st.Get("a")
	require.True(t, ok)
	assert.Equal(t, "Ann", got.CustomerName)

	// Values are copied in and out.
	s.AddFile("x", t0)
	got.AddFile("y", t0)
	again, _ := st.Get("a")
	assert.Empty(t, again.Files)

	list := st.List()
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].ChatID)
	assert.Equal(t, "b", list[1].ChatID)

	// Last write wins.
	over := New("a", "Anna", t0)
	st.Set(over)
	got, _ = st.Get("a")
	assert.Equal(t, "Anna", got.CustomerName)

	require.NoError(t, st.Delete("a"))
	require.ErrorIs(t, st.Delete("a"), ErrNotFound)
	assert.Equal(t, 1, st.Len())
}

func TestMemoryStoreUpdate(t *testing.T) {
	st := NewMemoryStore()

	err := st.Update("a", func(cur *Session) (*Session, error) {
		assert.Nil(t, cur)
		return New("a", "", t0), nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, st.Len())

	boom := errors.New("boom")
	err = st.Update("a", func(cur *Session) (*Session, error) {
		cur.AddFile("lost", t0)
		return cur, boom
	})
	require.ErrorIs(t, err, boom)
	got, _ := st.Get("a")
	assert.Empty(t, got.Files)

	err = st.Update("a", func(cur *Session) (*Session, error) {
		return New("b", "", t0), nil
	})
	require.Error(t, err)
	_, ok := st.Get("b")
	assert.False(t, ok)

	require.NoError(t, st.Update("a", func(cur *Session) (*Session, error) { return nil, nil }))
	assert.Zero(t, st.Len())
}

func TestMemoryStoreUpdateHasNoLostUpdates(t *testing.T) {
	st := NewMemoryStore()
	st.Set(New("chat", "", t0))

	const workers, perWorker = 8, 50
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				_ = st.Update("chat", func(cur *Session) (*Session, error) {
					cur.AddFile(fmt.Sprintf("%d-%d", w, i), t0)
					return cur, nil
				})
				_ = st.List()
			}
		}(w)
	}
	wg.Wait()

	got, ok := st.Get("chat")
	require.True(t, ok)
	assert.Len(t, got.Files, workers*perWorker)
}
