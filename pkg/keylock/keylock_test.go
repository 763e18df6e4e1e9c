package keylock

import (
	"sync"
	"testing"
)

func TestLockSerialisesSameKey(t *testing.T) {
	t.Parallel()

	m := New()
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := m.Lock("supplier-a")
			defer unlock()
			v := counter
			v++
			counter = v
		}()
	}
	wg.Wait()

	if counter != 50 {
		t.Fatalf("expected 50 increments, got %d", counter)
	}
	if m.size() != 0 {
		t.Fatalf("expected released keys to be forgotten, got %d", m.size())
	}
}

func TestLockDifferentKeysIndependent(t *testing.T) {
	t.Parallel()

	m := New()
	unlockA := m.Lock("a")
	done := make(chan struct{})
	go func() {
		unlockB := m.Lock("b")
		unlockB()
		close(done)
	}()
	<-done
	unlockA()
}
