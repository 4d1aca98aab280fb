package store

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	require.NotNil(t, s)
	assert.Empty(t, s.GetAll())
}

// TestMemoryStore_UpdateReturnsPrevious verifies Update reports the snapshot
// it replaced, which drives transition detection.
func TestMemoryStore_UpdateReturnsPrevious(t *testing.T) {
	s := NewMemoryStore()

	_, existed := s.Update(NodeSnapshot{Type: "sql", Key: "db1", Status: "good"})
	assert.False(t, existed)

	prev, existed := s.Update(NodeSnapshot{Type: "SQL", Key: "DB1", Status: "critical"})
	require.True(t, existed)
	assert.Equal(t, "good", prev.Status)

	all := s.GetAll()
	require.Len(t, all, 1)
	assert.Equal(t, "critical", all[0].Status)

	got, ok := s.Get("sql", "db1")
	require.True(t, ok)
	assert.Equal(t, "critical", got.Status)

	_, ok = s.Get("sql", "db2")
	assert.False(t, ok)
}

// TestMemoryStore_GetAllSorted verifies snapshots come back ordered by type
// then key.
func TestMemoryStore_GetAllSorted(t *testing.T) {
	s := NewMemoryStore()
	s.Update(NodeSnapshot{Type: "sql", Key: "b"})
	s.Update(NodeSnapshot{Type: "redis", Key: "z"})
	s.Update(NodeSnapshot{Type: "sql", Key: "a"})

	var ids []string
	for _, snap := range s.GetAll() {
		ids = append(ids, snap.ID())
	}
	assert.Equal(t, []string{"redis/z", "sql/a", "sql/b"}, ids)
}

// TestMemoryStore_LabelsCopied verifies callers cannot mutate stored labels.
func TestMemoryStore_LabelsCopied(t *testing.T) {
	s := NewMemoryStore()
	labels := map[string]string{"env": "prod"}
	s.Update(NodeSnapshot{Type: "http", Key: "api", Labels: labels})
	labels["env"] = "dev"

	got, _ := s.Get("http", "api")
	assert.Equal(t, "prod", got.Labels["env"])
}

func TestMemoryStore_Subscribe(t *testing.T) {
	s := NewMemoryStore()
	ch := s.Subscribe()
	require.NotNil(t, ch)

	go s.Update(NodeSnapshot{Type: "sql", Key: "db1", Status: "good"})

	select {
	case snap := <-ch:
		assert.Equal(t, "db1", snap.Key)
	case <-time.After(time.Second):
		t.Error("Subscribe() channel did not receive update")
	}
}

func TestMemoryStore_MultipleSubscribers(t *testing.T) {
	s := NewMemoryStore()
	ch1 := s.Subscribe()
	ch2 := s.Subscribe()
	ch3 := s.Subscribe()

	go s.Update(NodeSnapshot{Type: "sql", Key: "db1"})

	received := 0
	timeout := time.After(time.Second)
	for received < 3 {
		select {
		case <-ch1:
			received++
		case <-ch2:
			received++
		case <-ch3:
			received++
		case <-timeout:
			t.Fatalf("only received %d/3 updates", received)
		}
	}
}

func TestMemoryStore_Unsubscribe(t *testing.T) {
	s := NewMemoryStore()
	ch := s.Subscribe()
	s.Unsubscribe(ch)
	s.Unsubscribe(ch)

	select {
	case _, ok := <-ch:
		assert.False(t, ok, "channel should be closed")
	case <-time.After(100 * time.Millisecond):
		t.Error("Unsubscribe() channel should be closed immediately")
	}
}

func TestMemoryStore_SlowSubscriberDoesNotBlock(t *testing.T) {
	s := NewMemoryStore()
	_ = s.Subscribe()
	ch2 := s.Subscribe()

	done := make(chan struct{})
	go func() {
		for range 200 {
			s.Update(NodeSnapshot{Type: "sql", Key: "db1"})
		}
		close(done)
	}()
	go func() {
		for range ch2 {
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Error("Update() blocked on slow subscriber")
	}
}

func TestMemoryStore_ConcurrentAccess(t *testing.T) {
	s := NewMemoryStore()

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(3)
		go func() {
			defer wg.Done()
			for range 100 {
				s.Update(NodeSnapshot{Type: "sql", Key: "db1", Status: "good"})
			}
		}()
		go func() {
			defer wg.Done()
			for range 100 {
				_ = s.GetAll()
			}
		}()
		go func() {
			defer wg.Done()
			ch := s.Subscribe()
			time.Sleep(10 * time.Millisecond)
			s.Unsubscribe(ch)
		}()
	}
	wg.Wait()
}
