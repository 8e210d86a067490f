package editing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync/atomic"

	"api-studio/internal/commands"
	"api-studio/internal/document"
	"api-studio/internal/models"

	"github.com/google/uuid"
)

/*
EDITING SESSION

The client side of a live collaborative editing session.

Key Concepts:
1. **Optimistic local apply**: a local edit mutates the document
   immediately, then travels to the hub tagged with the content
   version it was generated against.
2. **Pending queue**: unacknowledged local commands wait in FIFO
   order; the hub's ack retires them by command ID.
3. **Single dispatch loop**: every inbound event and every local send
   funnels through one goroutine, so document mutations never race
   and arrive in exactly the order the transport delivered them.

Flow:
  UI edit → Execute(factory) → dispatch loop: apply + enqueue + send
  → hub sequences it → ack{commandId, version} retires the pending
  entry, or command{version} from a peer applies directly.
*/

// ConnectionState tracks the session lifecycle
type ConnectionState int32

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateClosed  // intentional close, silent
	StateDropped // unexpected disconnect, surfaced to the user
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	case StateDropped:
		return "dropped"
	default:
		return fmt.Sprintf("unknown(%d)", int32(s))
	}
}

var (
	// ErrNotConnected is returned when a send is attempted outside the
	// Connected state.
	ErrNotConnected = errors.New("editing session is not connected")
	// ErrAlreadyConnected is returned by Connect on any state but
	// Disconnected.
	ErrAlreadyConnected = errors.New("editing session already connected")
)

// close code reported when the transport dropped without a close frame
const abnormalClosureCode = 1006

// Handlers receives session events. All callbacks are optional and
// are invoked from the session's dispatch loop, one at a time, in the
// order the events arrived. For a given connection attempt exactly
// one of OnClosed / OnDisconnected ever fires, and only after
// OnConnected.
type Handlers struct {
	OnConnected    func()
	OnClosed       func()
	OnDisconnected func(code int)

	OnCommand func(c *commands.Command)
	OnAck     func(ack models.AckPayload)
	OnUndo    func(contentVersion int64)
	OnRedo    func(contentVersion int64)

	OnJoin      func(user *models.ApiEditorUser)
	OnLeave     func(user *models.ApiEditorUser)
	OnSelection func(userID string, selection *string)
}

// OperationFactory builds an operation against the current document.
// It runs on the dispatch loop so the pre-edit state it captures
// (for undo) cannot race with remote mutations.
type OperationFactory func(doc *document.Document) commands.Operation

type eventKind int

const (
	evLocalCommand eventKind = iota
	evLocalSelection
	evLocalUndo
	evLocalRedo
	evInbound
	evTransportDown
)

type sessionEvent struct {
	kind      eventKind
	factory   OperationFactory
	selection *string
	version   int64
	msg       *models.Message
	err       error
}

// Session is a live editing session for one design. It exclusively
// owns its pending queue, presence tracker, and command history; the
// document model is shared with the UI layer but only mutated here.
type Session struct {
	designID string
	user     models.ApiEditorUser
	doc      *document.Document

	transport Transport
	handlers  Handlers

	queue     *PendingCommandQueue
	presence  *PresenceTracker
	history   *CommandHistory
	selection *SelectionTracker

	state   atomic.Int32
	closing atomic.Bool

	// loop-owned
	nextCommandID int64

	events chan sessionEvent
	done   chan struct{}
}

// NewSession builds a session from a previously fetched editable
// document snapshot. The initial fetch is the caller's problem; the
// session only runs the live connection.
func NewSession(editable *models.EditableDocument, user models.ApiEditorUser, transport Transport) (*Session, error) {
	doc, err := document.Parse(editable.Content, editable.ContentVersion)
	if err != nil {
		return nil, err
	}
	if user.UserID == "" {
		user.UserID = uuid.NewString()
	}
	return &Session{
		designID:  editable.ID,
		user:      user,
		doc:       doc,
		transport: transport,
		queue:     NewPendingCommandQueue(),
		presence:  NewPresenceTracker(nil),
		history:   NewCommandHistory(),
		selection: NewSelectionTracker(),
		events:    make(chan sessionEvent, 256),
		done:      make(chan struct{}),
	}, nil
}

// State returns the current connection state
func (s *Session) State() ConnectionState {
	return ConnectionState(s.state.Load())
}

// Document exposes the shared document model
func (s *Session) Document() *document.Document { return s.doc }

// PendingCommands returns the unacknowledged local commands in
// issuance order
func (s *Session) PendingCommands() []*commands.Command { return s.queue.Commands() }

// Presence exposes the collaborator tracker
func (s *Session) Presence() *PresenceTracker { return s.presence }

// History exposes the observed command log
func (s *Session) History() *CommandHistory { return s.history }

// Selection exposes the local selection tracker
func (s *Session) Selection() *SelectionTracker { return s.selection }

// LocalUser returns the identity this session connected as
func (s *Session) LocalUser() models.ApiEditorUser { return s.user }

// Connect performs the transport handshake and starts the dispatch
// loop. On success OnConnected fires exactly once, before any other
// callback. A handshake failure leaves the session Disconnected and
// fires nothing.
func (s *Session) Connect(ctx context.Context, handlers Handlers) error {
	if !s.state.CompareAndSwap(int32(StateDisconnected), int32(StateConnecting)) {
		return ErrAlreadyConnected
	}
	s.handlers = handlers

	if err := s.transport.Connect(ctx); err != nil {
		s.state.Store(int32(StateDisconnected))
		return fmt.Errorf("failed to connect editing session: %w", err)
	}

	s.state.Store(int32(StateConnected))
	if s.handlers.OnConnected != nil {
		s.handlers.OnConnected()
	}

	go s.run()
	go s.readPump()
	return nil
}

// Execute runs the factory on the dispatch loop, applies the
// resulting command optimistically, enqueues it as pending, and
// transmits it. Fire-and-forget: the ack arrives later on the same
// loop. Valid only while Connected.
func (s *Session) Execute(build OperationFactory) error {
	if s.State() != StateConnected {
		return ErrNotConnected
	}
	select {
	case s.events <- sessionEvent{kind: evLocalCommand, factory: build}:
		return nil
	case <-s.done:
		return ErrNotConnected
	}
}

// Select broadcasts a selection on the given node path. Advisory
// presence data: dropped silently under backpressure, never retried.
func (s *Session) Select(path string) {
	s.postSelection(&path)
}

// ClearSelection broadcasts "no selection"
func (s *Session) ClearSelection() {
	s.postSelection(nil)
}

func (s *Session) postSelection(sel *string) {
	if s.State() != StateConnected {
		return
	}
	select {
	case s.events <- sessionEvent{kind: evLocalSelection, selection: sel}:
	default:
		// backpressure: presence is eventually consistent, drop it
	}
}

// SendUndo asks the hub to revert the given sequenced command.
// Success is observed through a later undo notification, applied
// exactly like a remote one.
func (s *Session) SendUndo(c *commands.Command) error {
	return s.postVersion(evLocalUndo, c.ContentVersion)
}

// SendRedo asks the hub to restore the command at a content version
func (s *Session) SendRedo(contentVersion int64) error {
	return s.postVersion(evLocalRedo, contentVersion)
}

func (s *Session) postVersion(kind eventKind, version int64) error {
	if s.State() != StateConnected {
		return ErrNotConnected
	}
	select {
	case s.events <- sessionEvent{kind: kind, version: version}:
		return nil
	case <-s.done:
		return ErrNotConnected
	}
}

// Close ends the session intentionally. No error is surfaced: the
// OnClosed callback fires once the transport has wound down. Already
// applied document mutations stay applied.
func (s *Session) Close() error {
	switch s.State() {
	case StateClosed, StateDropped:
		return nil
	case StateDisconnected:
		s.state.Store(int32(StateClosed))
		return nil
	}
	s.closing.Store(true)
	return s.transport.Close()
}

// readPump feeds the transport's ordered stream into the dispatch
// loop. One reader, one channel: receipt order is dispatch order.
func (s *Session) readPump() {
	for {
		msg, err := s.transport.Receive()
		if err != nil {
			select {
			case s.events <- sessionEvent{kind: evTransportDown, err: err}:
			case <-s.done:
			}
			return
		}
		select {
		case s.events <- sessionEvent{kind: evInbound, msg: msg}:
		case <-s.done:
			return
		}
	}
}

// run is the single dispatch loop. All document mutation, queue and
// presence bookkeeping, and transport writes happen here.
func (s *Session) run() {
	for {
		select {
		case <-s.done:
			return
		case ev := <-s.events:
			if ev.kind == evTransportDown {
				s.handleTransportDown(ev.err)
				return
			}
			s.dispatch(ev)
		}
	}
}

func (s *Session) dispatch(ev sessionEvent) {
	switch ev.kind {
	case evLocalCommand:
		s.handleLocalCommand(ev.factory)
	case evLocalSelection:
		s.handleLocalSelection(ev.selection)
	case evLocalUndo:
		s.sendVersion(models.MessageTypeUndo, ev.version)
	case evLocalRedo:
		s.sendVersion(models.MessageTypeRedo, ev.version)
	case evInbound:
		s.handleInbound(ev.msg)
	}
}

func (s *Session) handleLocalCommand(build OperationFactory) {
	op := build(s.doc)
	if op == nil {
		return
	}

	s.nextCommandID++
	c := &commands.Command{
		CommandID:      s.nextCommandID,
		ContentVersion: s.doc.ContentVersion(),
		Op:             op,
	}

	// Optimistic apply: the UI sees the edit before the hub confirms it
	if err := op.Apply(s.doc); err != nil {
		log.Printf("⚠️  Failed to apply local %s command: %v", op.Kind(), err)
		return
	}
	s.queue.Enqueue(c)

	kind, payload, err := commands.MarshalOperation(op)
	if err != nil {
		log.Printf("⚠️  Failed to encode local command: %v", err)
		return
	}
	msg, err := models.NewMessage(models.MessageTypeCommand, models.CommandPayload{
		CommandID:      c.CommandID,
		ContentVersion: c.ContentVersion,
		AuthorID:       s.user.UserID,
		Kind:           kind,
		Command:        payload,
	})
	if err != nil {
		log.Printf("⚠️  Failed to encode command message: %v", err)
		return
	}
	if err := s.transport.Send(msg); err != nil {
		// The read pump will observe the drop and surface it.
		log.Printf("⚠️  Failed to send command %d: %v", c.CommandID, err)
	}
}

func (s *Session) handleLocalSelection(sel *string) {
	if sel == nil {
		s.selection.Clear()
	} else {
		s.selection.Set(*sel)
	}
	msg, err := models.NewMessage(models.MessageTypeSelection, models.SelectionPayload{
		UserID:    s.user.UserID,
		Selection: sel,
	})
	if err != nil {
		return
	}
	// fire-and-forget
	if err := s.transport.Send(msg); err != nil {
		log.Printf("Selection broadcast dropped: %v", err)
	}
}

func (s *Session) sendVersion(t models.MessageType, version int64) {
	msg, err := models.NewMessage(t, models.VersionPayload{ContentVersion: version})
	if err != nil {
		return
	}
	if err := s.transport.Send(msg); err != nil {
		log.Printf("⚠️  Failed to send %s for version %d: %v", t, version, err)
	}
}

// handleInbound applies one message from the hub's ordered stream
func (s *Session) handleInbound(msg *models.Message) {
	switch msg.Type {
	case models.MessageTypeCommand:
		s.handleRemoteCommand(msg.Payload)
	case models.MessageTypeAck:
		s.handleAck(msg.Payload)
	case models.MessageTypeUndo:
		s.handleUndo(msg.Payload)
	case models.MessageTypeRedo:
		s.handleRedo(msg.Payload)
	case models.MessageTypeJoin:
		s.handleJoin(msg.Payload)
	case models.MessageTypeLeave:
		s.handleLeave(msg.Payload)
	case models.MessageTypeSelection:
		s.handleSelection(msg.Payload)
	case models.MessageTypeError:
		var p models.ErrorPayload
		if err := json.Unmarshal(msg.Payload, &p); err == nil {
			log.Printf("⚠️  Hub error %s: %s", p.Code, p.Message)
		}
	default:
		log.Printf("Ignoring unknown message type %q", msg.Type)
	}
}

// handleRemoteCommand applies a peer's sequenced command
// unconditionally, in receipt order. Field-level conflicts resolve
// last-applied-wins inside the mutation itself.
func (s *Session) handleRemoteCommand(payload json.RawMessage) {
	var p models.CommandPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		log.Printf("⚠️  Malformed remote command: %v", err)
		return
	}
	op, err := commands.UnmarshalOperation(p.Kind, p.Command)
	if err != nil {
		log.Printf("⚠️  Undecodable remote command at version %d: %v", p.ContentVersion, err)
		return
	}
	c := &commands.Command{ContentVersion: p.ContentVersion, Op: op}
	if err := op.Apply(s.doc); err != nil {
		log.Printf("⚠️  Failed to apply remote %s command: %v", p.Kind, err)
	}
	if p.ContentVersion > s.doc.ContentVersion() {
		s.doc.SetContentVersion(p.ContentVersion)
	}
	s.history.Record(c)
	if s.handlers.OnCommand != nil {
		s.handlers.OnCommand(c)
	}
}

// handleAck retires the matching pending command. A stale or unknown
// ack is an idempotent no-op.
func (s *Session) handleAck(payload json.RawMessage) {
	var ack models.AckPayload
	if err := json.Unmarshal(payload, &ack); err != nil {
		log.Printf("⚠️  Malformed ack: %v", err)
		return
	}
	c := s.queue.Drain(func(c *commands.Command) bool {
		return c.CommandID == ack.CommandID
	})
	if c == nil {
		return
	}
	// Finalize: the command now lives in history under its canonical
	// server-assigned version. No retry, no rollback.
	c.ContentVersion = ack.ContentVersion
	s.history.Record(c)
	if ack.ContentVersion > s.doc.ContentVersion() {
		s.doc.SetContentVersion(ack.ContentVersion)
	}
	if s.handlers.OnAck != nil {
		s.handlers.OnAck(ack)
	}
}

// handleUndo applies the inverse of the command sequenced at the
// given version. Unknown or already-reverted versions are safe no-ops.
func (s *Session) handleUndo(payload json.RawMessage) {
	var p models.VersionPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return
	}
	c := s.history.ByVersion(p.ContentVersion)
	if c == nil || c.Reverted {
		return
	}
	c.Reverted = true
	if err := c.Op.Invert().Apply(s.doc); err != nil {
		log.Printf("⚠️  Failed to apply undo of version %d: %v", p.ContentVersion, err)
	}
	if s.handlers.OnUndo != nil {
		s.handlers.OnUndo(p.ContentVersion)
	}
}

func (s *Session) handleRedo(payload json.RawMessage) {
	var p models.VersionPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return
	}
	c := s.history.ByVersion(p.ContentVersion)
	if c == nil || !c.Reverted {
		return
	}
	c.Reverted = false
	if err := c.Op.Apply(s.doc); err != nil {
		log.Printf("⚠️  Failed to apply redo of version %d: %v", p.ContentVersion, err)
	}
	if s.handlers.OnRedo != nil {
		s.handlers.OnRedo(p.ContentVersion)
	}
}

func (s *Session) handleJoin(payload json.RawMessage) {
	var p models.JoinPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return
	}
	user := s.presence.Join(p.UserID, p.UserName, p.Attributes)
	if p.Selection != nil {
		s.presence.SetSelection(p.UserID, p.Selection)
	}
	if s.handlers.OnJoin != nil {
		s.handlers.OnJoin(user)
	}
}

func (s *Session) handleLeave(payload json.RawMessage) {
	var p models.LeavePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return
	}
	user := s.presence.Leave(p.UserID)
	if user != nil && s.handlers.OnLeave != nil {
		s.handlers.OnLeave(user)
	}
}

func (s *Session) handleSelection(payload json.RawMessage) {
	var p models.SelectionPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return
	}
	s.presence.SetSelection(p.UserID, p.Selection)
	if s.handlers.OnSelection != nil {
		s.handlers.OnSelection(p.UserID, p.Selection)
	}
}

// handleTransportDown ends the session. An intentional Close lands in
// Closed and stays silent; anything else is a Dropped session the UI
// must surface, because unacked commands have unknown server-side
// status. There is no automatic reconnect or replay.
func (s *Session) handleTransportDown(err error) {
	defer close(s.done)

	if s.closing.Load() {
		s.state.Store(int32(StateClosed))
		s.queue.Clear()
		s.presence.Clear()
		if s.handlers.OnClosed != nil {
			s.handlers.OnClosed()
		}
		return
	}

	s.state.Store(int32(StateDropped))
	code := abnormalClosureCode
	var disc *DisconnectError
	if errors.As(err, &disc) {
		code = disc.Code
	}
	log.Printf("⚠️  Editing session dropped (design %s): %v", s.designID, err)
	if s.handlers.OnDisconnected != nil {
		s.handlers.OnDisconnected(code)
	}
}
