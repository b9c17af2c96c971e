package app

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyedMutexReleasesEntries(t *testing.T) {
	k := newKeyedMutex()
	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock("s1")
			counter++
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)
	assert.Zero(t, k.size())
}

func TestLocalLockerReadersShareWritersExclude(t *testing.T) {
	ctx := context.Background()
	l := NewLocalLocker()

	r1, err := l.RLock(ctx, "s1")
	require.NoError(t, err)
	r2, err := l.RLock(ctx, "s1")
	require.NoError(t, err)

	var writing atomic.Bool
	done := make(chan struct{})
	go func() {
		unlock, _ := l.Lock(ctx, "s1")
		writing.Store(true)
		unlock()
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	assert.False(t, writing.Load(), "writer must wait for readers")
	r1()
	r2()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("writer never acquired the lock")
	}

	other, err := l.Lock(ctx, "s2")
	require.NoError(t, err)
	other()
	assert.Zero(t, l.keys.size())
}
