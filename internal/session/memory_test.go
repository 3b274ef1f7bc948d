package session

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStoreGetOrCreate(t *testing.T) {
	m := NewMemoryStore(0)
	defer m.Close()
	ctx := context.Background()

	s, err := m.GetOrCreate(ctx, 7)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if s.UserID != 7 || s.Step != StepIdle {
		t.Fatalf("fresh session = %+v", s)
	}

	s.Step = StepAwaitingName
	if err := m.Save(ctx, s); err != nil {
		t.Fatalf("Save: %v", err)
	}

	again, err := m.GetOrCreate(ctx, 7)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if again.Step != StepAwaitingName {
		t.Errorf("Step = %s, want %s", again.Step, StepAwaitingName)
	}
}

func TestMemoryStoreIsolatesUsers(t *testing.T) {
	m := NewMemoryStore(0)
	defer m.Close()
	ctx := context.Background()

	a, _ := m.GetOrCreate(ctx, 1)
	a.Step = StepAwaitingPhone
	a.Name = "Jane"
	if err := m.Save(ctx, a); err != nil {
		t.Fatalf("Save: %v", err)
	}

	b, _ := m.GetOrCreate(ctx, 2)
	if b.Step != StepIdle || b.Name != "" {
		t.Errorf("user 2 sees user 1 state: %+v", b)
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	m := NewMemoryStore(0)
	defer m.Close()
	ctx := context.Background()

	s, _ := m.GetOrCreate(ctx, 3)
	s.Name = "mutated without save"

	fresh, _ := m.GetOrCreate(ctx, 3)
	if fresh.Name != "" {
		t.Errorf("mutation leaked into store: %q", fresh.Name)
	}
}

func TestMemoryStoreClear(t *testing.T) {
	m := NewMemoryStore(0)
	defer m.Close()
	ctx := context.Background()

	s, _ := m.GetOrCreate(ctx, 4)
	s.Step = StepAwaitingAddress
	_ = m.Save(ctx, s)

	if err := m.Clear(ctx, 4); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, err := m.Get(ctx, 4); err != ErrNotFound {
		t.Errorf("Get after Clear: %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreTTLExpiry(t *testing.T) {
	m := NewMemoryStore(10 * time.Millisecond)
	defer m.Close()
	ctx := context.Background()

	s, _ := m.GetOrCreate(ctx, 5)
	s.Step = StepAwaitingQuantity
	_ = m.Save(ctx, s)

	time.Sleep(25 * time.Millisecond)

	if _, err := m.Get(ctx, 5); err != ErrNotFound {
		t.Fatalf("expired session still visible: %v", err)
	}
	fresh, err := m.GetOrCreate(ctx, 5)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if fresh.Step != StepIdle {
		t.Errorf("expired session not reset: %s", fresh.Step)
	}
}
