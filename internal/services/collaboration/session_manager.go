package collaboration

import (
	"context"
	"encoding/json"
	"log"
	"sync/atomic"
	"time"

	"api-studio/internal/commands"
	"api-studio/internal/middleware"
	"api-studio/internal/models"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
)

/*
HUB SESSION MANAGER

The server end of the collaborative editing protocol. One room per
design; each room carries the authoritative content-version counter.

Key Concepts:
1. **Single sequencing loop**: register/unregister and every inbound
   message funnel through one goroutine, so commands for a design get
   strictly increasing versions and every session sees the same order.
2. **Per-session send buffer**: a slow or dead consumer overflows its
   buffer and is dropped rather than stalling the room.
3. **Async persistence**: sequenced commands go to the command log
   through the writer pool, off the sequencing path.
*/

// CommandLogWriter is what the manager needs for persistence.
// Implemented by services.CommandLogWriter (the worker pool).
type CommandLogWriter interface {
	SubmitAppend(cmd *models.DesignCommand) error
	SubmitRevert(designID string, contentVersion int64, reverted bool) error
}

// VersionStore seeds a room's content-version counter on first join
type VersionStore interface {
	MaxVersion(ctx context.Context, designID string) (int64, error)
}

// room is the live state for one design. Owned by the manager loop.
type room struct {
	sessions map[*Session]bool
	version  int64
}

// SessionManager manages all active editing sessions
type SessionManager struct {
	rooms      map[string]*room // designID -> room
	register   chan *Session
	unregister chan *Session
	inbound    chan *inboundMessage

	logWriter CommandLogWriter
	versions  VersionStore

	done chan struct{}
}

// Session represents an active WebSocket connection
type Session struct {
	*models.Session
	Conn    *websocket.Conn
	Send    chan *models.Message // Buffered channel for outbound messages
	Manager *SessionManager
	// BaseVersion is the design's stored content version at connect
	// time, used to seed the room counter on first join.
	BaseVersion int64
	// Selection is the node path this user has selected, relayed to
	// late joiners. Owned by the manager loop.
	Selection *string

	lastActive atomic.Int64 // unix nanos, written by the pumps
}

type inboundMessage struct {
	session *Session
	msg     *models.Message
	// snapshot, when set, asks the loop for the current session list
	// instead of carrying a protocol message
	snapshot chan []*Session
}

// NewSessionManager creates a new session manager
func NewSessionManager() *SessionManager {
	return &SessionManager{
		rooms:      make(map[string]*room),
		register:   make(chan *Session),
		unregister: make(chan *Session),
		inbound:    make(chan *inboundMessage, 256),
		done:       make(chan struct{}),
	}
}

// SetCommandLogWriter sets the async command-log persistence service
func (sm *SessionManager) SetCommandLogWriter(w CommandLogWriter) {
	sm.logWriter = w
}

// SetVersionStore sets the store used to seed room version counters
func (sm *SessionManager) SetVersionStore(vs VersionStore) {
	sm.versions = vs
}

// Start begins the sequencing loop and the stale-session sweeper
func (sm *SessionManager) Start() {
	log.Println("🔄 Starting editing session manager...")

	go func() {
		for {
			select {
			case <-sm.done:
				log.Println("Session manager shutting down...")
				return
			case session := <-sm.register:
				sm.handleRegister(session)
			case session := <-sm.unregister:
				sm.handleUnregister(session)
			case in := <-sm.inbound:
				if in.snapshot != nil {
					in.snapshot <- sm.allSessions()
					continue
				}
				sm.handleInbound(in.session, in.msg)
			}
		}
	}()

	go sm.sweepLoop()

	log.Println("✓ Editing session manager started")
}

// handleRegister adds a session to a design room, replays the current
// roster to the newcomer, and announces them to everyone else
func (sm *SessionManager) handleRegister(session *Session) {
	rm := sm.rooms[session.DesignID]
	if rm == nil {
		rm = &room{sessions: make(map[*Session]bool)}
		rm.version = session.BaseVersion
		if sm.versions != nil {
			if v, err := sm.versions.MaxVersion(context.Background(), session.DesignID); err != nil {
				log.Printf("⚠️  Failed to seed version for design %s: %v", session.DesignID, err)
			} else if v > rm.version {
				rm.version = v
			}
		}
		sm.rooms[session.DesignID] = rm
	}

	// Replay the roster to the newcomer before announcing them, so
	// their presence tracker starts complete.
	for peer := range rm.sessions {
		join, err := models.NewMessage(models.MessageTypeJoin, models.JoinPayload{
			UserID:    peer.UserID,
			UserName:  peer.UserName,
			Selection: peer.Selection,
		})
		if err == nil {
			sm.deliver(session, join)
		}
	}

	rm.sessions[session] = true
	log.Printf("  Session %s joined design %s (total: %d users)",
		session.ID, session.DesignID, len(rm.sessions))

	join, err := models.NewMessage(models.MessageTypeJoin, models.JoinPayload{
		UserID:   session.UserID,
		UserName: session.UserName,
	})
	if err == nil {
		sm.broadcast(rm, join, session)
	}
}

// handleUnregister removes a session from its room
func (sm *SessionManager) handleUnregister(session *Session) {
	rm := sm.rooms[session.DesignID]
	if rm == nil || !rm.sessions[session] {
		return
	}
	delete(rm.sessions, session)
	close(session.Send)

	log.Printf("  Session %s left design %s (remaining: %d users)",
		session.ID, session.DesignID, len(rm.sessions))

	if len(rm.sessions) == 0 {
		delete(sm.rooms, session.DesignID)
		return
	}

	leave, err := models.NewMessage(models.MessageTypeLeave, models.LeavePayload{
		UserID: session.UserID,
	})
	if err == nil {
		sm.broadcast(rm, leave, nil)
	}
}

// handleInbound sequences one message from a session
func (sm *SessionManager) handleInbound(session *Session, msg *models.Message) {
	rm := sm.rooms[session.DesignID]
	if rm == nil || !rm.sessions[session] {
		return
	}

	switch msg.Type {
	case models.MessageTypeCommand:
		sm.sequenceCommand(rm, session, msg.Payload)
	case models.MessageTypeSelection:
		sm.relaySelection(rm, session, msg.Payload)
	case models.MessageTypeUndo:
		sm.relayRevert(rm, session, msg.Payload, true)
	case models.MessageTypeRedo:
		sm.relayRevert(rm, session, msg.Payload, false)
	default:
		sm.sendError(session, "unknown-message", string(msg.Type))
	}
}

// sequenceCommand assigns the next content version, persists the
// command, acks the origin, and broadcasts to the rest of the room
func (sm *SessionManager) sequenceCommand(rm *room, session *Session, payload json.RawMessage) {
	var p models.CommandPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		sm.sendError(session, "malformed-command", err.Error())
		return
	}
	// Validate against the closed command set before sequencing
	if _, err := commands.UnmarshalOperation(p.Kind, p.Command); err != nil {
		sm.sendError(session, "invalid-command", err.Error())
		return
	}

	rm.version++
	version := rm.version

	if sm.logWriter != nil {
		err := sm.logWriter.SubmitAppend(&models.DesignCommand{
			DesignID:       session.DesignID,
			ContentVersion: version,
			AuthorID:       session.UserID,
			Kind:           p.Kind,
			Payload:        p.Command,
		})
		if err != nil {
			log.Printf("⚠️  Failed to queue command log write: %v", err)
		}
	}

	ack, err := models.NewMessage(models.MessageTypeAck, models.AckPayload{
		CommandID:      p.CommandID,
		ContentVersion: version,
	})
	if err == nil {
		sm.deliver(session, ack)
	}

	remote, err := models.NewMessage(models.MessageTypeCommand, models.CommandPayload{
		ContentVersion: version,
		AuthorID:       session.UserID,
		Kind:           p.Kind,
		Command:        p.Command,
	})
	if err == nil {
		sm.broadcast(rm, remote, session)
	}
}

// relaySelection forwards presence data to the rest of the room.
// Fire-and-forget: never persisted, never acked.
func (sm *SessionManager) relaySelection(rm *room, session *Session, payload json.RawMessage) {
	var p models.SelectionPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return
	}
	session.Selection = p.Selection

	relay, err := models.NewMessage(models.MessageTypeSelection, models.SelectionPayload{
		UserID:    session.UserID,
		Selection: p.Selection,
	})
	if err == nil {
		sm.broadcast(rm, relay, session)
	}
}

// relayRevert flips the reverted flag in the log and notifies every
// session, including the requester: undo success is observed the same
// way peers observe it.
func (sm *SessionManager) relayRevert(rm *room, session *Session, payload json.RawMessage, reverted bool) {
	var p models.VersionPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return
	}
	if p.ContentVersion <= 0 || p.ContentVersion > rm.version {
		sm.sendError(session, "unknown-version", "no command sequenced at that content version")
		return
	}

	if sm.logWriter != nil {
		if err := sm.logWriter.SubmitRevert(session.DesignID, p.ContentVersion, reverted); err != nil {
			log.Printf("⚠️  Failed to queue revert write: %v", err)
		}
	}

	t := models.MessageTypeUndo
	if !reverted {
		t = models.MessageTypeRedo
	}
	notice, err := models.NewMessage(t, models.VersionPayload{ContentVersion: p.ContentVersion})
	if err == nil {
		sm.broadcast(rm, notice, nil)
	}
}

// broadcast sends a message to every session in the room except skip
func (sm *SessionManager) broadcast(rm *room, msg *models.Message, skip *Session) {
	for session := range rm.sessions {
		if session == skip {
			continue
		}
		sm.deliver(session, msg)
	}
}

// deliver queues a message for one session, dropping the session on
// buffer overflow
func (sm *SessionManager) deliver(session *Session, msg *models.Message) {
	select {
	case session.Send <- msg:
		// queued
	default:
		// Buffer full - connection is slow/dead
		log.Printf("⚠️  Session %s buffer full, closing connection", session.ID)
		sm.handleUnregister(session)
		session.Conn.Close()
	}
}

func (sm *SessionManager) sendError(session *Session, code, detail string) {
	msg, err := models.NewMessage(models.MessageTypeError, models.ErrorPayload{
		Code:    code,
		Message: detail,
	})
	if err == nil {
		sm.deliver(session, msg)
	}
}

// allSessions flattens every room's session set. Loop-only.
func (sm *SessionManager) allSessions() []*Session {
	var out []*Session
	for _, rm := range sm.rooms {
		for session := range rm.sessions {
			out = append(out, session)
		}
	}
	return out
}

// Sessions returns a snapshot of the live sessions for a design,
// served through the sequencing loop to avoid racing room mutation
func (sm *SessionManager) Sessions(designID string) []*Session {
	var out []*Session
	for _, session := range sm.snapshotSessions() {
		if session.DesignID == designID {
			out = append(out, session)
		}
	}
	return out
}

// sweepLoop periodically drops sessions with no recent activity
func (sm *SessionManager) sweepLoop() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-sm.done:
			return
		case <-ticker.C:
			sm.sweep()
		}
	}
}

// sweep closes connections idle past the timeout. Closing the conn
// makes the session's read pump exit and unregister normally.
func (sm *SessionManager) sweep() {
	// Snapshot through the loop is overkill here: sweeping only reads
	// the atomic activity stamp and closes the raw conn.
	cutoff := time.Now().Add(-5 * time.Minute).UnixNano()
	for _, session := range sm.snapshotSessions() {
		if session.lastActive.Load() < cutoff {
			log.Printf("  Closing inactive session %s", session.ID)
			session.Conn.Close()
		}
	}
}

func (sm *SessionManager) snapshotSessions() []*Session {
	result := make(chan []*Session, 1)
	select {
	case sm.inbound <- &inboundMessage{snapshot: result}:
		return <-result
	case <-sm.done:
		return nil
	}
}

// Shutdown gracefully closes all connections
func (sm *SessionManager) Shutdown() {
	log.Println("🛑 Shutting down session manager...")

	sessions := sm.snapshotSessions()
	close(sm.done)
	for _, session := range sessions {
		session.Conn.Close()
	}

	log.Println("✓ Session manager shutdown complete")
}

// Session methods

// touch records activity for the idle sweeper
func (s *Session) touch() {
	s.lastActive.Store(time.Now().UnixNano())
}

// ReadPump reads messages from the WebSocket connection and feeds
// them into the manager's sequencing loop
func (s *Session) ReadPump(ctx context.Context) {
	defer func() {
		select {
		case s.Manager.unregister <- s:
		case <-s.Manager.done:
		}
		s.Conn.Close()
	}()

	s.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	s.Conn.SetPongHandler(func(string) error {
		s.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		s.touch()
		return nil
	})

	for {
		var msg models.Message
		if err := s.Conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("WebSocket error (session %s): %v", s.ID, err)
			}
			break
		}

		s.touch()

		_, span := middleware.StartSpan(ctx, "Hub.ProcessMessage",
			attribute.String("session.id", s.ID),
			attribute.String("design.id", s.DesignID),
			attribute.String("message.type", string(msg.Type)),
		)

		select {
		case s.Manager.inbound <- &inboundMessage{session: s, msg: &msg}:
		case <-s.Manager.done:
			span.End()
			return
		}

		span.End()
	}
}

// WritePump writes queued messages to the WebSocket connection
func (s *Session) WritePump(ctx context.Context) {
	ticker := time.NewTicker(54 * time.Second) // Ping interval
	defer func() {
		ticker.Stop()
		s.Conn.Close()
	}()

	for {
		select {
		case msg, ok := <-s.Send:
			s.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				// Channel closed by the manager
				s.Conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := s.Conn.WriteJSON(msg); err != nil {
				return
			}
			s.touch()

		case <-ticker.C:
			s.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := s.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
