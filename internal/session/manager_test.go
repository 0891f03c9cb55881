package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/yousuf/loopviz/internal/config"
)

func newManager(t *testing.T) *Manager {
	t.Helper()
	cfg := config.Default()
	cfg.Session.IdleTimeoutMs = 1000
	return NewManager(cfg)
}

func TestGetOrCreateSession(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()

	a, err := m.GetOrCreateSession(ctx, "one")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	b, err := m.GetOrCreateSession(ctx, "one")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if a != b {
		t.Error("same ID produced two sessions")
	}
	if a.Controller == nil {
		t.Fatal("session has no controller")
	}

	if _, err := m.GetOrCreateSession(ctx, ""); err == nil {
		t.Error("empty session ID accepted")
	}
}

func TestDeleteSession(t *testing.T) {
	m := newManager(t)
	if _, err := m.GetOrCreateSession(context.Background(), "one"); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := m.DeleteSession("one"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := m.GetSession("one"); !errors.Is(err, ErrNotFound) {
		t.Errorf("get after delete: got %v, want ErrNotFound", err)
	}
	if err := m.DeleteSession("one"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete: got %v, want ErrNotFound", err)
	}
}

func TestReapIdle(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()
	if _, err := m.GetOrCreateSession(ctx, "old"); err != nil {
		t.Fatal(err)
	}
	if _, err := m.GetOrCreateSession(ctx, "fresh"); err != nil {
		t.Fatal(err)
	}

	later := time.Now().Add(2 * time.Second)
	fresh, _ := m.GetSession("fresh")
	fresh.lastAccessed.Store(later.UnixNano())

	if n := m.ReapIdle(later); n != 1 {
		t.Fatalf("reaped %d sessions, want 1", n)
	}
	if _, err := m.GetSession("old"); !errors.Is(err, ErrNotFound) {
		t.Errorf("idle session survived: %v", err)
	}
	if m.Len() != 1 {
		t.Errorf("len = %d, want 1", m.Len())
	}
}

func TestCloseAll(t *testing.T) {
	m := newManager(t)
	for _, id := range []string{"a", "b"} {
		if _, err := m.GetOrCreateSession(context.Background(), id); err != nil {
			t.Fatal(err)
		}
	}
	if err := m.CloseAll(); err != nil {
		t.Fatalf("close all: %v", err)
	}
	if m.Len() != 0 {
		t.Errorf("len = %d after CloseAll", m.Len())
	}
}
