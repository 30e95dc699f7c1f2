package tui

import (
	"context"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/idilsaglam/tada/internal/model"
	"github.com/idilsaglam/tada/internal/store"
	"github.com/idilsaglam/tada/internal/store/storetest"
	"github.com/idilsaglam/tada/internal/syncer"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// harness drives a Model the way the bubbletea runtime does: commands run on
// their own goroutines and their messages are fed back through Update.
type harness struct {
	t       *testing.T
	m       Model
	f       *storetest.Fake
	s       *syncer.Synchronizer
	results chan tea.Msg
	quit    bool
}

func newHarness(t *testing.T, opts ...syncer.Option) *harness {
	t.Helper()
	f := storetest.New()
	s := syncer.New(f, opts...)
	t.Cleanup(s.Close)
	h := &harness{t: t, f: f, s: s, results: make(chan tea.Msg, 256)}
	h.m = New(s)
	h.send(tea.WindowSizeMsg{Width: 100, Height: 40})
	h.exec(h.m.Init())
	h.settle()
	return h
}

func (h *harness) exec(cmd tea.Cmd) {
	if cmd == nil {
		return
	}
	go func() { h.results <- cmd() }()
}

func (h *harness) send(msg tea.Msg) {
	next, cmd := h.m.Update(msg)
	h.m = next.(Model)
	h.exec(cmd)
}

func (h *harness) deliver(msg tea.Msg) {
	switch msg := msg.(type) {
	case nil:
	case tea.BatchMsg:
		for _, c := range msg {
			h.exec(c)
		}
	case tea.QuitMsg:
		h.quit = true
	default:
		h.send(msg)
	}
}

// settle processes messages until none arrive for a short while.
func (h *harness) settle() {
	for {
		select {
		case msg := <-h.results:
			h.deliver(msg)
		case <-time.After(50 * time.Millisecond):
			return
		}
	}
}

func (h *harness) key(msg tea.KeyMsg) {
	h.send(msg)
	h.settle()
}

func (h *harness) typeText(s string) {
	h.key(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)})
}

func (h *harness) push(items ...model.Item) {
	h.pushEvent(storetest.Snapshot(items...))
}

func (h *harness) pushEvent(ev store.Event) {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.f.PushEvent(ctx, ev); err != nil {
		h.t.Fatalf("push: %v", err)
	}
	h.settle()
}

func (h *harness) view() string { return h.m.View() }

var (
	enter = tea.KeyMsg{Type: tea.KeyEnter}
	esc   = tea.KeyMsg{Type: tea.KeyEsc}
	tab   = tea.KeyMsg{Type: tea.KeyTab}
	bksp  = tea.KeyMsg{Type: tea.KeyBackspace}
)

func TestLoadingThenEmptyState(t *testing.T) {
	h := newHarness(t)
	v := h.view()
	if !strings.Contains(v, LoadingText) {
		t.Errorf("view while loading lacks %q:\n%s", LoadingText, v)
	}
	if strings.Contains(v, EmptyText) {
		t.Errorf("view while loading shows the empty state")
	}

	h.push()
	v = h.view()
	if !strings.Contains(v, EmptyText) {
		t.Errorf("view after empty snapshot lacks %q:\n%s", EmptyText, v)
	}
	if strings.Contains(v, LoadingText) {
		t.Errorf("view after empty snapshot still loading")
	}
	for _, s := range []string{HeaderText, FooterText, InputTitle} {
		if !strings.Contains(v, s) {
			t.Errorf("view lacks %q", s)
		}
	}
}

func TestInputDisabledWhileLoading(t *testing.T) {
	h := newHarness(t)
	h.typeText("Buy milk")
	h.key(enter)
	if got := h.m.input.Value(); got != "" {
		t.Errorf("input while loading: got %q, want empty", got)
	}
	if len(h.f.Calls()) != 0 {
		t.Errorf("calls while loading: %v", h.f.Calls())
	}
}

func TestAddScenario(t *testing.T) {
	h := newHarness(t)
	h.push()

	h.typeText("Buy milk")
	h.key(enter)

	calls := h.f.Calls()
	if len(calls) != 1 || calls[0].Op != "create" {
		t.Fatalf("calls: got %+v, want one create", calls)
	}
	if calls[0].Fields[store.FieldText] != "Buy milk" {
		t.Errorf("text: got %q, want %q", calls[0].Fields[store.FieldText], "Buy milk")
	}
	if got := h.m.input.Value(); got != "" {
		t.Errorf("input after add: got %q, want empty", got)
	}
	if !strings.Contains(h.view(), EmptyText) {
		t.Error("item shown before its snapshot arrived")
	}

	h.push(
		model.Item{ID: calls[0].ID, Text: "Buy milk", CreatedAt: t0},
		model.Item{ID: "old", Text: "Walk the dog", CreatedAt: t0.Add(-time.Hour)},
	)
	v := h.view()
	top, older := strings.Index(v, "Buy milk"), strings.Index(v, "Walk the dog")
	if top < 0 || older < 0 {
		t.Fatalf("view lacks items:\n%s", v)
	}
	if top > older {
		t.Errorf("newest item is not on top:\n%s", v)
	}
}

func TestWhitespaceAddDoesNothing(t *testing.T) {
	h := newHarness(t)
	h.push()
	h.typeText("   ")
	h.key(enter)
	if len(h.f.Calls()) != 0 {
		t.Errorf("calls: got %v, want none", h.f.Calls())
	}
}

func TestAddFailureShowsBannerAndKeepsInput(t *testing.T) {
	h := newHarness(t)
	h.push()
	h.f.SetErrors(storetest.ErrRejected, nil, nil)

	h.typeText("Buy milk")
	h.key(enter)
	if !strings.Contains(h.view(), syncer.MsgAddFailed) {
		t.Errorf("view lacks banner %q:\n%s", syncer.MsgAddFailed, h.view())
	}
	if got := h.m.input.Value(); got != "Buy milk" {
		t.Errorf("input: got %q, want %q", got, "Buy milk")
	}
}

func TestEditScenario(t *testing.T) {
	h := newHarness(t)
	h.push(model.Item{ID: "x", Text: "Buy milk", CreatedAt: t0})

	h.key(tab)
	h.typeText("e")
	if h.s.EditingID() != "x" {
		t.Fatalf("EditingID: got %q, want x", h.s.EditingID())
	}
	if got := h.m.editor.Value(); got != "Buy milk" {
		t.Fatalf("editor: got %q, want %q", got, "Buy milk")
	}
	for i := 0; i < len("milk"); i++ {
		h.key(bksp)
	}
	h.typeText("oat milk")
	h.key(enter)

	calls := h.f.Calls()
	if len(calls) != 1 || calls[0].Op != "update" || calls[0].ID != "x" {
		t.Fatalf("calls: got %+v, want one update of x", calls)
	}
	if calls[0].Fields[store.FieldText] != "Buy oat milk" {
		t.Errorf("text: got %q, want %q", calls[0].Fields[store.FieldText], "Buy oat milk")
	}
	if h.s.EditingID() != "" {
		t.Errorf("still editing after save")
	}
	v := h.view()
	if !strings.Contains(v, "Buy milk") || strings.Contains(v, "Buy oat milk") {
		t.Errorf("view before snapshot should show old text:\n%s", v)
	}

	h.push(model.Item{ID: "x", Text: "Buy oat milk", CreatedAt: t0})
	if !strings.Contains(h.view(), "Buy oat milk") {
		t.Errorf("view after snapshot lacks new text:\n%s", h.view())
	}
}

func TestEditedItemRemovedElsewhere(t *testing.T) {
	h := newHarness(t)
	h.push(model.Item{ID: "x", Text: "Buy milk", CreatedAt: t0})
	h.key(tab)
	h.typeText("e")
	if h.s.EditingID() != "x" {
		t.Fatalf("EditingID: got %q, want x", h.s.EditingID())
	}

	h.push()
	if h.s.EditingID() != "" {
		t.Errorf("EditingID after x vanished: got %q, want empty", h.s.EditingID())
	}
	if !strings.Contains(h.view(), EmptyText) {
		t.Errorf("view after x vanished:\n%s", h.view())
	}
	h.typeText("zzz")
	h.key(enter)
	for _, c := range h.f.Calls() {
		if c.Op == "update" {
			t.Errorf("update sent for a removed item: %+v", c)
		}
	}
}

func TestEscCancelsEdit(t *testing.T) {
	h := newHarness(t)
	h.push(model.Item{ID: "x", Text: "Buy milk", CreatedAt: t0})
	h.key(tab)
	h.typeText("e")
	h.typeText(" now")
	h.key(esc)
	if h.s.EditingID() != "" {
		t.Errorf("EditingID after esc: got %q, want empty", h.s.EditingID())
	}
	if len(h.f.Calls()) != 0 {
		t.Errorf("calls: got %v, want none", h.f.Calls())
	}
	h.key(esc)
	if h.quit {
		t.Error("a second esc quit the program")
	}
	h.typeText("q")
	if !h.quit {
		t.Error("q in the list did not quit")
	}
}

func TestBlurCancelsEdit(t *testing.T) {
	h := newHarness(t)
	h.push(model.Item{ID: "x", Text: "Buy milk", CreatedAt: t0})
	h.key(tab)
	h.typeText("e")
	h.send(tea.BlurMsg{})
	h.settle()
	if h.s.EditingID() != "" {
		t.Errorf("EditingID after blur: got %q, want empty", h.s.EditingID())
	}
}

func TestDeleteScenario(t *testing.T) {
	h := newHarness(t)
	h.push(model.Item{ID: "x", Text: "Buy milk", CreatedAt: t0})
	h.key(tab)
	h.typeText("d")

	calls := h.f.Calls()
	if len(calls) != 1 || calls[0].Op != "delete" || calls[0].ID != "x" {
		t.Fatalf("calls: got %+v, want one delete of x", calls)
	}
	if !strings.Contains(h.view(), "Buy milk") {
		t.Error("item vanished before its snapshot")
	}
	h.push()
	v := h.view()
	if strings.Contains(v, "Buy milk") || !strings.Contains(v, EmptyText) {
		t.Errorf("view after delete snapshot:\n%s", v)
	}
}

func TestFatalScreen(t *testing.T) {
	h := newHarness(t, syncer.WithFatal("firebase project ID is missing"))
	v := h.view()
	if !strings.Contains(v, FatalTitle) || !strings.Contains(v, "firebase project ID is missing") {
		t.Errorf("fatal view:\n%s", v)
	}
	for _, s := range []string{InputTitle, EmptyText, LoadingText} {
		if strings.Contains(v, s) {
			t.Errorf("fatal view shows %q", s)
		}
	}
	h.typeText("Buy milk")
	h.key(enter)
	if !h.quit {
		t.Error("enter on the fatal screen did not quit")
	}
	if len(h.f.Calls()) != 0 {
		t.Errorf("calls: got %v, want none", h.f.Calls())
	}
}

func TestStreamErrorBanner(t *testing.T) {
	h := newHarness(t)
	h.push(model.Item{ID: "x", Text: "Buy milk", CreatedAt: t0})
	h.pushEvent(store.Event{Err: context.DeadlineExceeded})
	v := h.view()
	if !strings.Contains(v, syncer.MsgSubscribeFailed) {
		t.Errorf("view lacks stream error banner:\n%s", v)
	}
	if !strings.Contains(v, "Buy milk") {
		t.Errorf("view dropped the last known items:\n%s", v)
	}
}
