package memory

import (
	"sync"
	"sync/atomic"
	"testing"

	"group-quiz-service/internal/app"
)

func TestSessionStoreLifecycle(t *testing.T) {
	store := NewSessionStore()
	first := &app.Session{}
	second := &app.Session{}

	ok, err := store.Insert("group-1", first)
	if err != nil || !ok {
		t.Fatalf("expected insert, got ok=%v err=%v", ok, err)
	}
	if ok, _ := store.Insert("group-1", second); ok {
		t.Fatalf("expected second insert for same group to fail")
	}
	if got, ok := store.Get("group-1"); !ok || got != first {
		t.Fatalf("expected first session present")
	}

	if store.Delete("group-1", second) {
		t.Fatalf("delete with a foreign session must not remove the entry")
	}
	if !store.Delete("group-1", first) {
		t.Fatalf("expected session removed")
	}
	if _, ok := store.Get("group-1"); ok {
		t.Fatalf("expected session removed")
	}
}

func TestSessionStoreConcurrentInsertSingleWinner(t *testing.T) {
	store := NewSessionStore()
	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := store.Insert("group-1", &app.Session{}); ok {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}
	if len(store.List()) != 1 {
		t.Fatalf("expected one listed session, got %d", len(store.List()))
	}
}
