// Package syncer owns the todo list's local state and mediates every read and
// write against the document store.
//
// All state changes happen inside the bubbletea event loop: operations return
// a tea.Cmd that performs the store call off-loop, and the completion comes
// back through Update as a message. The subscription is the only path that
// changes Items; write results only touch the banner and the edit buffers.
package syncer

import (
	"context"
	"io"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"

	"github.com/idilsaglam/tada/internal/model"
	"github.com/idilsaglam/tada/internal/store"
)

// Phase is the lifecycle state of the list.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseLoading
	PhaseReady
	PhaseFatal
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseLoading:
		return "loading"
	case PhaseReady:
		return "ready"
	case PhaseFatal:
		return "fatal"
	}
	return "unknown"
}

// Banner messages shown to the user. Causes are logged, not displayed.
const (
	MsgAddFailed       = "Failed to add todo"
	MsgUpdateFailed    = "Failed to update todo"
	MsgDeleteFailed    = "Failed to delete todo"
	MsgSubscribeFailed = "Failed to load todos. Showing the last known list."
	MsgNoStore         = "The document store is not configured."
)

// DefaultCollection is the watched collection when none is given.
const DefaultCollection = "todos"

// Synchronizer holds the list state. It is not safe for concurrent use; it
// belongs to the event loop that calls its methods.
type Synchronizer struct {
	store      store.Store
	collection string
	logger     *log.Logger
	now        func() time.Time
	ctx        context.Context

	phase    Phase
	fatal    string
	items    []model.Item
	rev      int
	banner   string
	newText  string
	editing  string
	editText string
	saving   string

	sub      *store.Subscription
	tornDown bool
}

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithCollection sets the watched collection.
func WithCollection(name string) Option {
	return func(s *Synchronizer) { s.collection = name }
}

// WithLogger sets the diagnostics logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Synchronizer) { s.logger = l }
}

// WithClock overrides the clock used for createdAt and updatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Synchronizer) { s.now = now }
}

// WithContext sets the parent context for the subscription and writes.
func WithContext(ctx context.Context) Option {
	return func(s *Synchronizer) { s.ctx = ctx }
}

// WithFatal makes Init enter PhaseFatal with msg, for configuration errors
// detected before a store could be built.
func WithFatal(msg string) Option {
	return func(s *Synchronizer) { s.fatal = msg }
}

// New returns a Synchronizer in PhaseIdle. st may be nil, in which case Init
// fails fatally.
func New(st store.Store, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		store:      st,
		collection: DefaultCollection,
		logger:     log.New(io.Discard),
		now:        time.Now,
		ctx:        context.Background(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.logger == nil {
		s.logger = log.New(io.Discard)
	}
	return s
}

// Phase reports the lifecycle state.
func (s *Synchronizer) Phase() Phase { return s.phase }

// Loading reports whether the first snapshot is still pending.
func (s *Synchronizer) Loading() bool { return s.phase == PhaseLoading }

// FatalMessage is set once Init has failed for good.
func (s *Synchronizer) FatalMessage() string { return s.fatal }

// Err is the banner message, or "".
func (s *Synchronizer) Err() string { return s.banner }

func (s *Synchronizer) NewText() string { return s.newText }

func (s *Synchronizer) EditText() string { return s.editText }

// EditingID is the item in edit mode, or "".
func (s *Synchronizer) EditingID() string { return s.editing }

func (s *Synchronizer) Collection() string { return s.collection }

// Revision counts applied snapshots; it changes whenever Items is replaced.
func (s *Synchronizer) Revision() int { return s.rev }

// Items returns the last snapshot. Callers must not modify it.
func (s *Synchronizer) Items() []model.Item { return s.items }

// Item looks up an item of the last snapshot by id.
func (s *Synchronizer) Item(id string) (model.Item, bool) {
	for _, it := range s.items {
		if it.ID == id {
			return it, true
		}
	}
	return model.Item{}, false
}

// SetNewText binds the add input.
func (s *Synchronizer) SetNewText(v string) { s.newText = v }

// SetEditText binds the inline edit input.
func (s *Synchronizer) SetEditText(v string) { s.editText = v }

// Messages delivered back to Update.
type subscribedMsg struct{ sub *store.Subscription }

type subscribeErrMsg struct{ err error }

type snapshotMsg struct{ snap *store.Snapshot }

type streamErrMsg struct{ err error }

type streamEndMsg struct{}

type addDoneMsg struct {
	id  string
	err error
}

type updateDoneMsg struct {
	id  string
	err error
}

type deleteDoneMsg struct {
	id  string
	err error
}

// Init starts the lifecycle. It runs once; later calls return nil.
func (s *Synchronizer) Init() tea.Cmd {
	if s.phase != PhaseIdle || s.tornDown {
		return nil
	}
	if s.fatal != "" {
		s.phase = PhaseFatal
		s.logger.Error("cannot start", "err", s.fatal)
		return nil
	}
	if s.store == nil {
		s.phase = PhaseFatal
		s.fatal = MsgNoStore
		s.logger.Error("cannot start", "err", "nil store")
		return nil
	}
	s.phase = PhaseLoading
	st, ctx, coll := s.store, s.ctx, s.collection
	return func() tea.Msg {
		sub, err := st.Subscribe(ctx, coll, store.NewestFirst)
		if err != nil {
			return subscribeErrMsg{err: err}
		}
		return subscribedMsg{sub: sub}
	}
}

func waitForEvent(sub *store.Subscription) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-sub.Events()
		if !ok {
			return streamEndMsg{}
		}
		if ev.Err != nil {
			return streamErrMsg{err: ev.Err}
		}
		return snapshotMsg{snap: ev.Snapshot}
	}
}

// Update applies a completion message. Messages it does not own are ignored.
// After Close every message is ignored.
func (s *Synchronizer) Update(msg tea.Msg) tea.Cmd {
	if s.tornDown {
		if m, ok := msg.(subscribedMsg); ok {
			// Subscribed after teardown; nobody will read it.
			go m.sub.Close()
		}
		return nil
	}
	switch msg := msg.(type) {
	case subscribedMsg:
		s.sub = msg.sub
		return waitForEvent(msg.sub)

	case subscribeErrMsg:
		s.logger.Error("subscribe", "collection", s.collection, "err", msg.err)
		s.banner = MsgSubscribeFailed
		s.phase = PhaseReady
		return nil

	case snapshotMsg:
		if msg.snap != nil {
			s.items = msg.snap.Items
			s.rev++
			s.logger.Debug("snapshot", "collection", s.collection, "items", len(s.items))
			// The edit target was deleted elsewhere; there is no row left to edit.
			if _, ok := s.Item(s.editing); s.editing != "" && !ok {
				s.logger.Info("edit target removed", "id", s.editing)
				s.editing = ""
				s.saving = ""
			}
		}
		s.phase = PhaseReady
		return waitForEvent(s.sub)

	case streamErrMsg:
		s.logger.Error("subscription", "collection", s.collection, "err", msg.err)
		s.banner = MsgSubscribeFailed
		s.phase = PhaseReady
		return waitForEvent(s.sub)

	case streamEndMsg:
		s.logger.Debug("subscription ended", "collection", s.collection)
		if s.phase == PhaseLoading {
			s.phase = PhaseReady
		}
		return nil

	case addDoneMsg:
		if msg.err != nil {
			s.logger.Error("add", "err", msg.err)
			s.banner = MsgAddFailed
			return nil
		}
		s.logger.Info("added", "id", msg.id)
		s.newText = ""
		return nil

	case updateDoneMsg:
		if s.saving == msg.id {
			s.saving = ""
		}
		if msg.err != nil {
			s.logger.Error("update", "id", msg.id, "err", msg.err)
			s.banner = MsgUpdateFailed
			return nil
		}
		s.logger.Info("updated", "id", msg.id)
		// Leave edit mode only if the user has not moved on to another item.
		if s.editing == msg.id {
			s.editing = ""
		}
		return nil

	case deleteDoneMsg:
		if msg.err != nil {
			s.logger.Error("delete", "id", msg.id, "err", msg.err)
			s.banner = MsgDeleteFailed
			return nil
		}
		s.logger.Info("deleted", "id", msg.id)
		return nil
	}
	return nil
}

func (s *Synchronizer) writable() bool {
	return !s.tornDown && s.phase != PhaseFatal && s.phase != PhaseIdle
}

// Add creates an item from text. Whitespace-only input is ignored without any
// state change.
func (s *Synchronizer) Add(text string) tea.Cmd {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" || !s.writable() {
		return nil
	}
	s.banner = ""
	fields := store.Fields{
		store.FieldText:      trimmed,
		store.FieldCreatedAt: s.now(),
	}
	st, ctx, coll := s.store, s.ctx, s.collection
	return func() tea.Msg {
		id, err := st.Create(ctx, coll, fields)
		return addDoneMsg{id: id, err: err}
	}
}

// StartEdit puts id in edit mode and seeds the buffer with its text. Starting
// an edit while another is open switches the target.
func (s *Synchronizer) StartEdit(id string) {
	if !s.writable() {
		return
	}
	it, ok := s.Item(id)
	if !ok {
		return
	}
	s.editing = id
	s.editText = it.Text
}

// SaveEdit writes the edit buffer to id. An empty buffer is ignored.
func (s *Synchronizer) SaveEdit(id string) tea.Cmd {
	if id == "" || strings.TrimSpace(s.editText) == "" || !s.writable() {
		return nil
	}
	s.banner = ""
	s.saving = id
	fields := store.Fields{
		store.FieldText:      s.editText,
		store.FieldUpdatedAt: s.now(),
	}
	st, ctx, coll := s.store, s.ctx, s.collection
	return func() tea.Msg {
		err := st.Update(ctx, coll, id, fields)
		return updateDoneMsg{id: id, err: err}
	}
}

// CancelEdit leaves edit mode unconditionally.
func (s *Synchronizer) CancelEdit() {
	s.editing = ""
}

// BlurEdit leaves edit mode because the editor lost focus. It yields to an
// in-flight save of the same item so a failed save can still be retried.
func (s *Synchronizer) BlurEdit() {
	if s.editing != "" && s.saving == s.editing {
		return
	}
	s.editing = ""
}

// Delete removes id. The item stays in Items until a snapshot omits it.
func (s *Synchronizer) Delete(id string) tea.Cmd {
	if id == "" || !s.writable() {
		return nil
	}
	s.banner = ""
	st, ctx, coll := s.store, s.ctx, s.collection
	return func() tea.Msg {
		err := st.Delete(ctx, coll, id)
		return deleteDoneMsg{id: id, err: err}
	}
}

// Close cancels the subscription. No state changes after it returns.
func (s *Synchronizer) Close() {
	if s.tornDown {
		return
	}
	s.tornDown = true
	if s.sub != nil {
		s.sub.Close()
	}
}
