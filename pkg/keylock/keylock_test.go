package keylock

import (
	"sync"
	"testing"
)

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	k := New()
	var counter int

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			k.Lock("doctor-1|2026-03-02")
			counter++
			k.Unlock("doctor-1|2026-03-02")
		}()
	}
	wg.Wait()

	if counter != 100 {
		t.Fatalf("expected 100 increments, got %d", counter)
	}
}

func TestKeyedMutex_IndependentKeys(t *testing.T) {
	k := New()
	k.Lock("a")
	defer k.Unlock("a")

	done := make(chan struct{})
	go func() {
		k.Lock("b")
		k.Unlock("b")
		close(done)
	}()
	<-done
}

func TestKeyedMutex_CleansUpEntries(t *testing.T) {
	k := New()
	k.Lock("x")
	k.Unlock("x")

	k.mu.Lock()
	n := len(k.locks)
	k.mu.Unlock()
	if n != 0 {
		t.Fatalf("expected empty lock map, got %d entries", n)
	}
}

func TestKeyedMutex_UnlockUnheldPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on unlock of unheld key")
		}
	}()
	New().Unlock("never-locked")
}
