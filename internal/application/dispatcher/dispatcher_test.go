package dispatcher

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/approvalflow/approvalflow/internal/domain/event"
)

// mockLogger implements Logger for testing
type mockLogger struct {
	mu     sync.Mutex
	infos  []string
	errors []string
}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infos = append(m.infos, msg)
}

func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, msg)
}

func (m *mockLogger) HasInfo(msg string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, info := range m.infos {
		if info == msg {
			return true
		}
	}
	return false
}

func (m *mockLogger) ErrorCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.errors)
}

func testEvent(eventType event.Type) *event.Event {
	return event.NewEvent(eventType, uuid.Must(uuid.NewV7()), uuid.Must(uuid.NewV7()), uuid.Must(uuid.NewV7()), nil)
}

func TestNewDispatcher(t *testing.T) {
	t.Run("creates dispatcher without logger", func(t *testing.T) {
		d := NewDispatcher()
		if d == nil {
			t.Fatal("expected non-nil dispatcher")
		}
	})

	t.Run("creates dispatcher with logger", func(t *testing.T) {
		logger := &mockLogger{}
		d := NewDispatcher(WithLogger(logger))
		if d == nil {
			t.Fatal("expected non-nil dispatcher")
		}
	})
}

func TestSubscribe(t *testing.T) {
	t.Run("subscribes handler with auto-generated name", func(t *testing.T) {
		d := NewDispatcher()
		called := false

		d.Subscribe(event.TypeWorkflowSubmitted, func(ctx context.Context, evt *event.Event) error {
			called = true
			return nil
		})

		if err := d.Dispatch(context.Background(), testEvent(event.TypeWorkflowSubmitted)); err != nil {
			t.Fatalf("dispatch failed: %v", err)
		}

		if !called {
			t.Error("expected handler to be called")
		}
	})

	t.Run("handlers only receive their event type", func(t *testing.T) {
		d := NewDispatcher()
		var submitted, decided bool

		d.Subscribe(event.TypeWorkflowSubmitted, func(ctx context.Context, evt *event.Event) error {
			submitted = true
			return nil
		})
		d.Subscribe(event.TypeStepDecided, func(ctx context.Context, evt *event.Event) error {
			decided = true
			return nil
		})

		if err := d.Dispatch(context.Background(), testEvent(event.TypeStepDecided)); err != nil {
			t.Fatalf("dispatch failed: %v", err)
		}

		if submitted {
			t.Error("submitted handler must not fire for step.decided")
		}
		if !decided {
			t.Error("expected decided handler to be called")
		}
	})
}

func TestSubscribeNamed(t *testing.T) {
	logger := &mockLogger{}
	d := NewDispatcher(WithLogger(logger))

	d.SubscribeNamed(event.TypeWorkflowCompleted, "audit", func(ctx context.Context, evt *event.Event) error {
		return nil
	})

	if !logger.HasInfo("Handler registered") {
		t.Error("expected registration to be logged")
	}
}

func TestDispatch(t *testing.T) {
	t.Run("dispatches to all handlers in order", func(t *testing.T) {
		d := NewDispatcher()
		order := []int{}

		d.Subscribe(event.TypeWorkflowSubmitted, func(ctx context.Context, evt *event.Event) error {
			order = append(order, 1)
			return nil
		})
		d.Subscribe(event.TypeWorkflowSubmitted, func(ctx context.Context, evt *event.Event) error {
			order = append(order, 2)
			return nil
		})

		if err := d.Dispatch(context.Background(), testEvent(event.TypeWorkflowSubmitted)); err != nil {
			t.Fatalf("dispatch failed: %v", err)
		}

		if len(order) != 2 || order[0] != 1 || order[1] != 2 {
			t.Errorf("expected handlers to run in order [1, 2], got %v", order)
		}
	})

	t.Run("returns first error encountered", func(t *testing.T) {
		d := NewDispatcher()
		expectedErr := errors.New("handler error")
		called := false

		d.Subscribe(event.TypeWorkflowSubmitted, func(ctx context.Context, evt *event.Event) error {
			return expectedErr
		})
		d.Subscribe(event.TypeWorkflowSubmitted, func(ctx context.Context, evt *event.Event) error {
			called = true
			return nil
		})

		err := d.Dispatch(context.Background(), testEvent(event.TypeWorkflowSubmitted))
		if !errors.Is(err, expectedErr) {
			t.Errorf("expected error to wrap %v, got %v", expectedErr, err)
		}
		if called {
			t.Error("expected second handler not to be called after first error")
		}
	})

	t.Run("recovers handler panics", func(t *testing.T) {
		d := NewDispatcher()

		d.Subscribe(event.TypeStepDecided, func(ctx context.Context, evt *event.Event) error {
			panic("boom")
		})

		err := d.Dispatch(context.Background(), testEvent(event.TypeStepDecided))
		if err == nil {
			t.Fatal("expected error from panicking handler")
		}
	})

	t.Run("no handlers is not an error", func(t *testing.T) {
		d := NewDispatcher()
		if err := d.Dispatch(context.Background(), testEvent(event.TypeDefinitionPublished)); err != nil {
			t.Errorf("dispatch with no handlers error = %v", err)
		}
	})
}

func TestDispatchAsync(t *testing.T) {
	t.Run("runs handlers before Close returns", func(t *testing.T) {
		d := NewDispatcher()
		var count atomic.Int32

		d.Subscribe(event.TypeWorkflowResubmitted, func(ctx context.Context, evt *event.Event) error {
			time.Sleep(10 * time.Millisecond)
			count.Add(1)
			return nil
		})
		d.Subscribe(event.TypeWorkflowResubmitted, func(ctx context.Context, evt *event.Event) error {
			count.Add(1)
			return nil
		})

		d.DispatchAsync(context.Background(), testEvent(event.TypeWorkflowResubmitted))

		if err := d.Close(); err != nil {
			t.Fatalf("close failed: %v", err)
		}
		if got := count.Load(); got != 2 {
			t.Errorf("handlers run = %d, want 2", got)
		}
	})

	t.Run("logs handler errors instead of surfacing them", func(t *testing.T) {
		logger := &mockLogger{}
		d := NewDispatcher(WithLogger(logger))

		d.Subscribe(event.TypeStepDecided, func(ctx context.Context, evt *event.Event) error {
			return errors.New("audit sink down")
		})

		d.DispatchAsync(context.Background(), testEvent(event.TypeStepDecided))
		if err := d.Close(); err != nil {
			t.Fatalf("close failed: %v", err)
		}

		if logger.ErrorCount() == 0 {
			t.Error("expected async handler error to be logged")
		}
	})
}

func TestClose(t *testing.T) {
	d := NewDispatcher()

	if err := d.Close(); err != nil {
		t.Fatalf("first close failed: %v", err)
	}
	if err := d.Close(); err == nil {
		t.Error("expected error on double close")
	}
	if err := d.Dispatch(context.Background(), testEvent(event.TypeWorkflowSubmitted)); err == nil {
		t.Error("expected dispatch on closed dispatcher to fail")
	}
}
