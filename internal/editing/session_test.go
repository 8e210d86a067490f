package editing

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"api-studio/internal/commands"
	"api-studio/internal/document"
	"api-studio/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTransport scripts the hub side of a session: tests push inbound
// messages and observe outbound ones.
type fakeTransport struct {
	inbound chan *models.Message
	errs    chan error
	sent    chan *models.Message
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		inbound: make(chan *models.Message, 64),
		errs:    make(chan error, 1),
		sent:    make(chan *models.Message, 64),
	}
}

func (t *fakeTransport) Connect(ctx context.Context) error { return nil }

func (t *fakeTransport) Send(msg *models.Message) error {
	t.sent <- msg
	return nil
}

func (t *fakeTransport) Receive() (*models.Message, error) {
	select {
	case msg := <-t.inbound:
		return msg, nil
	case err := <-t.errs:
		return nil, err
	}
}

func (t *fakeTransport) Close() error {
	select {
	case t.errs <- errors.New("connection closed"):
	default:
	}
	return nil
}

// push delivers a hub message to the session
func (t *fakeTransport) push(tb testing.TB, mt models.MessageType, payload any) {
	tb.Helper()
	msg, err := models.NewMessage(mt, payload)
	require.NoError(tb, err)
	t.inbound <- msg
}

// drop simulates an unexpected transport failure
func (t *fakeTransport) drop(code int) {
	t.errs <- &DisconnectError{Code: code, Reason: "gone"}
}

func waitMsg(tb testing.TB, ch chan *models.Message) *models.Message {
	tb.Helper()
	select {
	case m := <-ch:
		return m
	case <-time.After(2 * time.Second):
		tb.Fatal("timed out waiting for outbound message")
		return nil
	}
}

func wait[T any](tb testing.TB, ch chan T) T {
	tb.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		tb.Fatal("timed out waiting for event")
		var zero T
		return zero
	}
}

func newTestSession(t *testing.T, content string, version int64) (*Session, *fakeTransport) {
	t.Helper()
	transport := newFakeTransport()
	session, err := NewSession(
		&models.EditableDocument{ID: "d1", Content: content, ContentVersion: version},
		models.ApiEditorUser{UserID: "local", UserName: "Local"},
		transport,
	)
	require.NoError(t, err)
	return session, transport
}

func TestSendBeforeConnectIsAnError(t *testing.T) {
	session, _ := newTestSession(t, "{}", 0)

	err := session.Execute(func(doc *document.Document) commands.Operation {
		return commands.NewAddNode("/paths", "/pets", map[string]any{})
	})
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.ErrorIs(t, session.SendRedo(1), ErrNotConnected)
}

func TestConnectFiresOnConnectedExactlyOnce(t *testing.T) {
	session, transport := newTestSession(t, "{}", 0)

	connected := 0
	disconnected := make(chan int, 2)
	closed := make(chan struct{}, 2)

	err := session.Connect(context.Background(), Handlers{
		OnConnected:    func() { connected++ },
		OnDisconnected: func(code int) { disconnected <- code },
		OnClosed:       func() { closed <- struct{}{} },
	})
	require.NoError(t, err)
	assert.Equal(t, 1, connected)
	assert.Equal(t, StateConnected, session.State())

	// Unexpected drop: OnDisconnected once, never OnClosed
	transport.drop(4001)
	assert.Equal(t, 4001, wait(t, disconnected))
	assert.Equal(t, StateDropped, session.State())

	select {
	case <-closed:
		t.Fatal("OnClosed must not fire after a drop")
	case <-disconnected:
		t.Fatal("OnDisconnected must fire exactly once")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestCloseIsSilent(t *testing.T) {
	session, _ := newTestSession(t, "{}", 0)

	disconnected := make(chan int, 1)
	closed := make(chan struct{}, 1)
	require.NoError(t, session.Connect(context.Background(), Handlers{
		OnDisconnected: func(code int) { disconnected <- code },
		OnClosed:       func() { closed <- struct{}{} },
	}))

	require.NoError(t, session.Close())
	wait(t, closed)
	assert.Equal(t, StateClosed, session.State())
	assert.Empty(t, session.PendingCommands())
	assert.Empty(t, session.Presence().Collaborators())

	select {
	case <-disconnected:
		t.Fatal("OnDisconnected must not fire on an intentional close")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestLocalCommandIsAppliedEnqueuedAndSent(t *testing.T) {
	session, transport := newTestSession(t, `{"paths":{}}`, 3)
	require.NoError(t, session.Connect(context.Background(), Handlers{}))

	for i := 0; i < 3; i++ {
		key := string(rune('a' + i))
		require.NoError(t, session.Execute(func(doc *document.Document) commands.Operation {
			return commands.NewAddNode("/paths", "/"+key, map[string]any{})
		}))
	}

	// Outbound order mirrors issuance order
	for i := 0; i < 3; i++ {
		msg := waitMsg(t, transport.sent)
		require.Equal(t, models.MessageTypeCommand, msg.Type)
		var p models.CommandPayload
		require.NoError(t, json.Unmarshal(msg.Payload, &p))
		assert.Equal(t, int64(i+1), p.CommandID)
		assert.Equal(t, int64(3), p.ContentVersion, "commands carry the base version they were generated against")
	}

	// Pending queue keeps issuance order
	pending := session.PendingCommands()
	require.Len(t, pending, 3)
	for i, c := range pending {
		assert.Equal(t, int64(i+1), c.CommandID)
	}

	// Optimistic apply: the document already has all three nodes
	_, ok := session.Document().Get("/paths/~1a")
	assert.True(t, ok)
}

func TestAckRetiresPendingCommand(t *testing.T) {
	session, transport := newTestSession(t, `{"paths":{}}`, 0)
	acks := make(chan models.AckPayload, 4)
	require.NoError(t, session.Connect(context.Background(), Handlers{
		OnAck: func(ack models.AckPayload) { acks <- ack },
	}))

	require.NoError(t, session.Execute(func(doc *document.Document) commands.Operation {
		return commands.NewAddNode("/paths", "/pets", map[string]any{})
	}))
	waitMsg(t, transport.sent)

	// An ack for an unrelated command leaves c1 pending
	transport.push(t, models.MessageTypeAck, models.AckPayload{CommandID: 999, ContentVersion: 9})

	// The real ack finalizes it under the hub-assigned version
	transport.push(t, models.MessageTypeAck, models.AckPayload{CommandID: 1, ContentVersion: 5})
	ack := wait(t, acks)
	assert.Equal(t, int64(1), ack.CommandID)

	assert.Empty(t, session.PendingCommands())
	assert.Equal(t, int64(5), session.Document().ContentVersion())

	finalized := session.History().ByVersion(5)
	require.NotNil(t, finalized)
	assert.Equal(t, int64(1), finalized.CommandID)

	// Duplicate ack: idempotent no-op. The trailing ack for an unknown
	// command is the fence proving the duplicate was dispatched.
	transport.push(t, models.MessageTypeAck, models.AckPayload{CommandID: 1, ContentVersion: 5})
	require.NoError(t, session.Execute(func(doc *document.Document) commands.Operation {
		return commands.NewAddNode("/paths", "/orders", map[string]any{})
	}))
	waitMsg(t, transport.sent)
	transport.push(t, models.MessageTypeAck, models.AckPayload{CommandID: 2, ContentVersion: 6})
	ack = wait(t, acks)
	assert.Equal(t, int64(2), ack.CommandID)
	assert.Empty(t, session.PendingCommands())
	assert.Equal(t, int64(6), session.Document().ContentVersion())
}

func TestRemoteCommandsApplyInReceiptOrder(t *testing.T) {
	session, _ := newTestSession(t, `{"paths":{}}`, 0)
	received := make(chan *commands.Command, 8)
	require.NoError(t, session.Connect(context.Background(), Handlers{
		OnCommand: func(c *commands.Command) { received <- c },
	}))

	transport := session.transport.(*fakeTransport)
	pushRemote := func(version int64, op commands.Operation) {
		kind, payload, err := commands.MarshalOperation(op)
		require.NoError(t, err)
		transport.push(t, models.MessageTypeCommand, models.CommandPayload{
			ContentVersion: version,
			AuthorID:       "peer",
			Kind:           kind,
			Command:        payload,
		})
	}

	// A sets the title, B overwrites it, C deletes it. Only strict
	// receipt order produces "deleted" as the final state.
	pushRemote(1, &commands.ChangePropertyOperation{NodePath: "/info", Property: "title", Value: "A"})
	pushRemote(2, &commands.ChangePropertyOperation{NodePath: "/info", Property: "title", Value: "B", OldValue: "A", OldPresent: true})
	pushRemote(3, &commands.DeleteNodeOperation{NodePath: "/info/title", OldValue: "B"})

	for i := int64(1); i <= 3; i++ {
		c := wait(t, received)
		assert.Equal(t, i, c.ContentVersion)
	}

	_, ok := session.Document().Get("/info/title")
	assert.False(t, ok, "final state must equal sequential application of A, B, C")
	assert.Equal(t, int64(3), session.Document().ContentVersion())
}

func TestUndoRedoRoundTrip(t *testing.T) {
	session, transport := newTestSession(t, `{"info":{"title":"Pet Store"}}`, 0)
	undone := make(chan int64, 4)
	redone := make(chan int64, 4)
	require.NoError(t, session.Connect(context.Background(), Handlers{
		OnUndo: func(v int64) { undone <- v },
		OnRedo: func(v int64) { redone <- v },
	}))

	op := &commands.ChangePropertyOperation{
		NodePath: "/info", Property: "title",
		Value: "Pet Emporium", OldValue: "Pet Store", OldPresent: true,
	}
	kind, payload, err := commands.MarshalOperation(op)
	require.NoError(t, err)
	transport.push(t, models.MessageTypeCommand, models.CommandPayload{
		ContentVersion: 5, AuthorID: "peer", Kind: kind, Command: payload,
	})

	// Undo notification reverts via the inverse
	transport.push(t, models.MessageTypeUndo, models.VersionPayload{ContentVersion: 5})
	assert.Equal(t, int64(5), wait(t, undone))
	title, _ := session.Document().Get("/info/title")
	assert.Equal(t, "Pet Store", title)

	// Redo reapplies
	transport.push(t, models.MessageTypeRedo, models.VersionPayload{ContentVersion: 5})
	assert.Equal(t, int64(5), wait(t, redone))
	title, _ = session.Document().Get("/info/title")
	assert.Equal(t, "Pet Emporium", title)
}

func TestUndoOfUnknownVersionIsSafeNoop(t *testing.T) {
	session, transport := newTestSession(t, `{"info":{"title":"Pet Store"}}`, 0)
	undone := make(chan int64, 1)
	joins := make(chan *models.ApiEditorUser, 1)
	require.NoError(t, session.Connect(context.Background(), Handlers{
		OnUndo: func(v int64) { undone <- v },
		OnJoin: func(u *models.ApiEditorUser) { joins <- u },
	}))

	transport.push(t, models.MessageTypeUndo, models.VersionPayload{ContentVersion: 5})

	// Fence with a second inbound message: the join callback proves the
	// undo ahead of it was dispatched
	transport.push(t, models.MessageTypeJoin, models.JoinPayload{UserID: "u1", UserName: "Ada"})
	wait(t, joins)

	select {
	case <-undone:
		t.Fatal("OnUndo must not fire for an unknown content version")
	default:
	}
	title, _ := session.Document().Get("/info/title")
	assert.Equal(t, "Pet Store", title, "document must be unchanged")
}

func TestPresenceEventsDriveTracker(t *testing.T) {
	session, transport := newTestSession(t, "{}", 0)
	joins := make(chan *models.ApiEditorUser, 4)
	leaves := make(chan *models.ApiEditorUser, 4)
	selections := make(chan string, 4)
	require.NoError(t, session.Connect(context.Background(), Handlers{
		OnJoin:  func(u *models.ApiEditorUser) { joins <- u },
		OnLeave: func(u *models.ApiEditorUser) { leaves <- u },
		OnSelection: func(userID string, sel *string) {
			if sel != nil {
				selections <- *sel
			}
		},
	}))

	transport.push(t, models.MessageTypeJoin, models.JoinPayload{UserID: "u1", UserName: "Ada"})
	transport.push(t, models.MessageTypeJoin, models.JoinPayload{UserID: "u2", UserName: "Mia"})
	wait(t, joins)
	wait(t, joins)

	sel := "/paths/~1pets"
	transport.push(t, models.MessageTypeSelection, models.SelectionPayload{UserID: "u1", Selection: &sel})
	assert.Equal(t, sel, wait(t, selections))

	// Exactly one collaborator is on the selected path
	users := session.Presence().CollaboratorsForPath("/paths/~1pets")
	require.Len(t, users, 1)
	assert.Equal(t, "u1", users[0].UserID)

	// After leave, the user never matches any path
	transport.push(t, models.MessageTypeLeave, models.LeavePayload{UserID: "u1"})
	left := wait(t, leaves)
	assert.Equal(t, "u1", left.UserID)
	assert.Empty(t, session.Presence().CollaboratorsForPath("/paths/~1pets"))
	assert.Len(t, session.Presence().Collaborators(), 1)
}

func TestSelectionBroadcast(t *testing.T) {
	session, transport := newTestSession(t, "{}", 0)
	require.NoError(t, session.Connect(context.Background(), Handlers{}))

	session.Select("/paths/~1pets")
	msg := waitMsg(t, transport.sent)
	require.Equal(t, models.MessageTypeSelection, msg.Type)

	var p models.SelectionPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &p))
	assert.Equal(t, "local", p.UserID)
	require.NotNil(t, p.Selection)
	assert.Equal(t, "/paths/~1pets", *p.Selection)

	session.ClearSelection()
	msg = waitMsg(t, transport.sent)
	require.NoError(t, json.Unmarshal(msg.Payload, &p))
	assert.Nil(t, p.Selection, "cleared selection is an explicit null, not an omission")
}
