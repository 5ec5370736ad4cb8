package permission

import (
	"context"
	"sync/atomic"
	"testing"

	"rupiah-scanner/src/core/utils"
)

type countingPrompter struct {
	prompts atomic.Int32
	answer  bool
}

func (p *countingPrompter) Prompt(ctx context.Context, permissions []string, answer func(granted bool)) {
	p.prompts.Add(1)
	go answer(p.answer)
}

func waitResult(t *testing.T, gate *Gate, ctx context.Context) bool {
	t.Helper()
	result := make(chan bool, 1)
	gate.RequestPermissions(ctx, func(granted bool) { result <- granted })
	return <-result
}

func TestGateAlreadyGranted(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	_ = store.Save(ctx, Camera, true)

	gate := NewGate(store, &countingPrompter{}, utils.NewConsoleLogger("error"))
	if !gate.HasRequiredPermissions(ctx) {
		t.Fatalf("expected camera permission to be granted")
	}
	if gate.State() != StateGranted {
		t.Fatalf("state = %s, want granted", gate.State())
	}
}

func TestGateRequestGranted(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	prompter := &countingPrompter{answer: true}
	gate := NewGate(store, prompter, utils.NewConsoleLogger("error"))

	if gate.HasRequiredPermissions(ctx) {
		t.Fatalf("expected missing permission")
	}
	if !waitResult(t, gate, ctx) {
		t.Fatalf("expected grant")
	}
	if granted, _ := store.Granted(ctx, Camera); !granted {
		t.Fatalf("grant was not saved")
	}
	if !gate.HasRequiredPermissions(ctx) {
		t.Fatalf("expected permission after grant")
	}
}

func TestGateDenialIsTerminal(t *testing.T) {
	ctx := context.Background()
	prompter := &countingPrompter{answer: false}
	gate := NewGate(NewMemoryStore(), prompter, utils.NewConsoleLogger("error"))

	if waitResult(t, gate, ctx) {
		t.Fatalf("expected denial")
	}
	if gate.State() != StateDenied {
		t.Fatalf("state = %s, want denied", gate.State())
	}

	// 拒绝之后不再弹出询问
	if waitResult(t, gate, ctx) {
		t.Fatalf("expected denial on second request")
	}
	if n := prompter.prompts.Load(); n != 1 {
		t.Fatalf("prompted %d times, want 1", n)
	}
}

func TestAutoGrant(t *testing.T) {
	gate := NewGate(NewMemoryStore(), AutoGrant, utils.NewConsoleLogger("error"))
	if !waitResult(t, gate, context.Background()) {
		t.Fatalf("expected auto grant")
	}
}
