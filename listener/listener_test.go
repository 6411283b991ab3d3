package listener_test

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/meridiancache/meridiancache/listener"
)

func TestDispatcher_SyncRunsInRegistrationOrder(t *testing.T) {
	t.Parallel()

	d := listener.New[string, int](nil)

	var mu sync.Mutex
	var order []string

	for _, name := range []string{"first", "second", "third"} {
		name := name
		err := d.Register(listener.Registration[string, int]{
			Name:     name,
			Dispatch: listener.Sync,
			Listener: func(listener.Event[string, int]) {
				mu.Lock()
				order = append(order, name)
				mu.Unlock()
			},
		})
		if err != nil {
			t.Fatalf("register(%s): %v", name, err)
		}
	}

	d.Dispatch(listener.Event[string, int]{Type: listener.Created, Key: "k"})

	mu.Lock()
	defer mu.Unlock()

	want := []string{"first", "second", "third"}
	if len(order) != len(want) {
		t.Fatalf("expected %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, order)
		}
	}
}

func TestDispatcher_DuplicateRegistrationErrors(t *testing.T) {
	t.Parallel()

	d := listener.New[string, int](nil)

	reg := listener.Registration[string, int]{Name: "dup", Listener: func(listener.Event[string, int]) {}}

	if err := d.Register(reg); err != nil {
		t.Fatalf("first register: %v", err)
	}

	err := d.Register(reg)
	if !errors.Is(err, listener.ErrDuplicateListener) {
		t.Fatalf("expected ErrDuplicateListener, got %v", err)
	}
}

func TestDispatcher_PanicDoesNotStopOtherListeners(t *testing.T) {
	t.Parallel()

	d := listener.New[string, int](nil)

	var secondRan atomic.Bool

	_ = d.Register(listener.Registration[string, int]{
		Name:     "panics",
		Dispatch: listener.Sync,
		Listener: func(listener.Event[string, int]) { panic("boom") },
	})
	_ = d.Register(listener.Registration[string, int]{
		Name:     "survives",
		Dispatch: listener.Sync,
		Listener: func(listener.Event[string, int]) { secondRan.Store(true) },
	})

	d.Dispatch(listener.Event[string, int]{Type: listener.Removed, Key: "k"})

	if !secondRan.Load() {
		t.Fatal("expected second listener to run despite the first panicking")
	}
}

func TestDispatcher_FilterSkipsNonMatchingEvents(t *testing.T) {
	t.Parallel()

	d := listener.New[string, int](nil)

	var called atomic.Bool

	_ = d.Register(listener.Registration[string, int]{
		Name:     "created-only",
		Dispatch: listener.Sync,
		Filter:   func(ev listener.Event[string, int]) bool { return ev.Type == listener.Created },
		Listener: func(listener.Event[string, int]) { called.Store(true) },
	})

	d.Dispatch(listener.Event[string, int]{Type: listener.Removed, Key: "k"})
	if called.Load() {
		t.Fatal("expected filtered-out REMOVED event to be skipped")
	}

	d.Dispatch(listener.Event[string, int]{Type: listener.Created, Key: "k"})
	if !called.Load() {
		t.Fatal("expected matching CREATED event to be delivered")
	}
}

func TestDispatcher_AsyncDeliversEventually(t *testing.T) {
	t.Parallel()

	d := listener.New[string, int](nil)
	defer d.Close()

	var got atomic.Bool

	_ = d.Register(listener.Registration[string, int]{
		Name:     "async",
		Dispatch: listener.Async,
		Listener: func(listener.Event[string, int]) { got.Store(true) },
	})

	d.Dispatch(listener.Event[string, int]{Type: listener.Created, Key: "k"})

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && !got.Load() {
		time.Sleep(time.Millisecond)
	}

	if !got.Load() {
		t.Fatal("expected async listener to eventually run")
	}
}

func TestDispatcher_Deregister(t *testing.T) {
	t.Parallel()

	d := listener.New[string, int](nil)

	var called atomic.Bool
	_ = d.Register(listener.Registration[string, int]{
		Name:     "temp",
		Dispatch: listener.Sync,
		Listener: func(listener.Event[string, int]) { called.Store(true) },
	})

	d.Deregister("temp")
	d.Dispatch(listener.Event[string, int]{Type: listener.Created, Key: "k"})

	if called.Load() {
		t.Fatal("expected deregistered listener to not run")
	}
}
