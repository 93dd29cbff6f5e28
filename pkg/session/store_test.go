package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestMemoryStore(t *testing.T) {
	clock := newFakeClock()
	store := NewMemoryStore(WithStoreClock(clock.Now))
	defer store.Close()

	ctx := context.Background()
	id := "ABCDEFGHIJKLMNOPQRST"
	data := []byte(`{"id":"ABCDEFGHIJKLMNOPQRST","host":"h"}`)

	if err := store.Save(ctx, id, data, clock.Now().Add(5*time.Minute)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := store.Load(ctx, id)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if string(loaded) != string(data) {
		t.Errorf("Load = %s, want %s", loaded, data)
	}

	if loaded, err := store.Load(ctx, "missing"); err != nil || loaded != nil {
		t.Errorf("Load(missing) = %v, %v, want nil, nil", loaded, err)
	}

	if err := store.Touch(ctx, id, clock.Now().Add(10*time.Minute)); err != nil {
		t.Fatalf("Touch failed: %v", err)
	}
	clock.Advance(7 * time.Minute)
	if loaded, _ := store.Load(ctx, id); loaded == nil {
		t.Error("session expired despite Touch")
	}

	clock.Advance(4 * time.Minute)
	if loaded, _ := store.Load(ctx, id); loaded != nil {
		t.Error("Load returned an expired session")
	}

	store.cleanup()
	if store.Count() != 0 {
		t.Errorf("Count() after cleanup = %d, want 0", store.Count())
	}

	if err := store.Delete(ctx, "missing"); err != nil {
		t.Errorf("Delete(missing) = %v", err)
	}
}

func TestMemoryStore_CopiesData(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	ctx := context.Background()

	data := []byte("abc")
	store.Save(ctx, "s", data, time.Now().Add(time.Minute))
	data[0] = 'X'

	loaded, _ := store.Load(ctx, "s")
	if string(loaded) != "abc" {
		t.Errorf("stored data mutated through caller slice: %q", loaded)
	}
	loaded[1] = 'Y'
	again, _ := store.Load(ctx, "s")
	if string(again) != "abc" {
		t.Errorf("stored data mutated through returned slice: %q", again)
	}
}

func TestMemoryStore_SaveAll(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	ctx := context.Background()

	err := store.SaveAll(ctx, map[string]SessionData{
		"a": {Data: []byte("1"), ExpiresAt: time.Now().Add(time.Minute)},
		"b": {Data: []byte("2"), ExpiresAt: time.Now().Add(time.Minute)},
	})
	if err != nil {
		t.Fatalf("SaveAll failed: %v", err)
	}
	if store.Count() != 2 {
		t.Errorf("Count() = %d, want 2", store.Count())
	}
}

func TestMemoryStore_Closed(t *testing.T) {
	store := NewMemoryStore()
	store.Close()
	ctx := context.Background()

	checks := map[string]error{
		"Save":    store.Save(ctx, "s", nil, time.Now()),
		"Delete":  store.Delete(ctx, "s"),
		"Touch":   store.Touch(ctx, "s", time.Now()),
		"SaveAll": store.SaveAll(ctx, nil),
	}
	for name, err := range checks {
		if !errors.Is(err, ErrStoreClosed) {
			t.Errorf("%s after Close = %v, want ErrStoreClosed", name, err)
		}
	}
	if _, err := store.Load(ctx, "s"); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("Load after Close = %v, want ErrStoreClosed", err)
	}
	if err := store.Close(); err != nil {
		t.Errorf("second Close = %v", err)
	}
}

func TestMemoryStore_Concurrency(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("s-%d", i)
			store.Save(ctx, id, []byte(id), time.Now().Add(time.Minute))
			store.Load(ctx, id)
			store.Touch(ctx, id, time.Now().Add(2*time.Minute))
		}(i)
	}
	wg.Wait()
	if store.Count() != 50 {
		t.Errorf("Count() = %d, want 50", store.Count())
	}
}

func TestParams(t *testing.T) {
	p := NewParams(map[string]string{"b": "2"})
	p.Set("a", "1")
	if v, ok := p.Get("a"); !ok || v != "1" {
		t.Errorf("Get(a) = %q, %v", v, ok)
	}
	keys := p.Keys()
	if len(keys) != 2 || keys[0] != "a" || keys[1] != "b" {
		t.Errorf("Keys() = %v, want [a b]", keys)
	}
	snap := p.Snapshot()
	p.Delete("a")
	if snap["a"] != "1" {
		t.Error("Snapshot shares storage with Params")
	}
	if p.Len() != 1 {
		t.Errorf("Len() = %d, want 1", p.Len())
	}
}
