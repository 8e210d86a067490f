package commands

import (
	"encoding/json"
	"fmt"
)

// Command pairs an operation with the session-level bookkeeping the
// reconciliation pipeline needs. The operation itself never changes;
// undo does not rewrite history, it applies the inverse and flips the
// Reverted flag.
type Command struct {
	// CommandID is the client-local sequence number, echoed back in
	// the hub's ack.
	CommandID int64
	// ContentVersion is the document version this command was
	// generated against (on the wire out) or was sequenced at (once
	// acked / received from a peer).
	ContentVersion int64
	// Reverted is set once an undo for this command's version has
	// been observed.
	Reverted bool

	Op Operation
}

// MarshalOperation encodes an operation body for the wire or the log
func MarshalOperation(op Operation) (kind string, payload json.RawMessage, err error) {
	kind, err = kindOf(op)
	if err != nil {
		return "", nil, err
	}
	payload, err = json.Marshal(op)
	if err != nil {
		return "", nil, fmt.Errorf("failed to encode %s operation: %w", kind, err)
	}
	return kind, payload, nil
}

// UnmarshalOperation decodes an operation body by its kind tag
func UnmarshalOperation(kind string, payload json.RawMessage) (Operation, error) {
	var op Operation
	switch kind {
	case KindChangeProperty:
		op = &ChangePropertyOperation{}
	case KindAddNode:
		op = &AddNodeOperation{}
	case KindDeleteNode:
		op = &DeleteNodeOperation{}
	case KindRenameNode:
		op = &RenameNodeOperation{}
	default:
		return nil, fmt.Errorf("unknown command kind %q", kind)
	}
	if err := json.Unmarshal(payload, op); err != nil {
		return nil, fmt.Errorf("failed to decode %s operation: %w", kind, err)
	}
	return op, nil
}
