package commands

import (
	"fmt"

	"api-studio/internal/document"
)

// Operation kind tags. The set is closed: the codec and the hub only
// accept these.
const (
	KindChangeProperty = "change-property"
	KindAddNode        = "add-node"
	KindDeleteNode     = "delete-node"
	KindRenameNode     = "rename-node"
)

// Operation is a single atomic mutation of the document model.
// Every operation carries enough payload to both apply and invert
// itself; the pre-edit state is captured when the operation is
// constructed, never recomputed later.
type Operation interface {
	Kind() string
	Apply(doc *document.Document) error
	Invert() Operation
}

// ChangePropertyOperation sets one property of a node.
// OldPresent distinguishes "property existed with OldValue" from
// "property did not exist", so the inverse can restore either state.
type ChangePropertyOperation struct {
	NodePath   string `json:"node_path"`
	Property   string `json:"property"`
	Value      any    `json:"value"`
	OldValue   any    `json:"old_value,omitempty"`
	OldPresent bool   `json:"old_present"`
}

// NewChangeProperty captures the current property value from doc and
// returns the operation that overwrites it.
func NewChangeProperty(doc *document.Document, nodePath, property string, value any) *ChangePropertyOperation {
	op := &ChangePropertyOperation{
		NodePath: nodePath,
		Property: property,
		Value:    value,
	}
	op.OldValue, op.OldPresent = doc.Get(op.propertyPath())
	return op
}

func (op *ChangePropertyOperation) propertyPath() string {
	return op.NodePath + document.JoinPath(op.Property)
}

func (op *ChangePropertyOperation) Kind() string { return KindChangeProperty }

func (op *ChangePropertyOperation) Apply(doc *document.Document) error {
	return doc.Set(op.propertyPath(), op.Value)
}

func (op *ChangePropertyOperation) Invert() Operation {
	if !op.OldPresent {
		return &DeleteNodeOperation{NodePath: op.propertyPath(), OldValue: op.Value}
	}
	return &ChangePropertyOperation{
		NodePath:   op.NodePath,
		Property:   op.Property,
		Value:      op.OldValue,
		OldValue:   op.Value,
		OldPresent: true,
	}
}

// AddNodeOperation inserts a child node under a parent path, e.g.
// adding path item "/pets" under "/paths".
type AddNodeOperation struct {
	ParentPath string `json:"parent_path"`
	Key        string `json:"key"`
	Value      any    `json:"value"`
}

func NewAddNode(parentPath, key string, value any) *AddNodeOperation {
	return &AddNodeOperation{ParentPath: parentPath, Key: key, Value: value}
}

func (op *AddNodeOperation) nodePath() string {
	return op.ParentPath + document.JoinPath(op.Key)
}

func (op *AddNodeOperation) Kind() string { return KindAddNode }

func (op *AddNodeOperation) Apply(doc *document.Document) error {
	return doc.Set(op.nodePath(), op.Value)
}

func (op *AddNodeOperation) Invert() Operation {
	return &DeleteNodeOperation{NodePath: op.nodePath(), OldValue: op.Value}
}

// DeleteNodeOperation removes the node at a path. The removed subtree
// is captured at construction so the inverse can restore it.
type DeleteNodeOperation struct {
	NodePath string `json:"node_path"`
	OldValue any    `json:"old_value,omitempty"`
}

// NewDeleteNode captures the current subtree at nodePath from doc
func NewDeleteNode(doc *document.Document, nodePath string) *DeleteNodeOperation {
	op := &DeleteNodeOperation{NodePath: nodePath}
	op.OldValue, _ = doc.Get(nodePath)
	return op
}

func (op *DeleteNodeOperation) Kind() string { return KindDeleteNode }

// Apply removes the node. Deleting an already-missing node is a
// no-op, not an error: remote deletes may race local ones.
func (op *DeleteNodeOperation) Apply(doc *document.Document) error {
	doc.Delete(op.NodePath)
	return nil
}

func (op *DeleteNodeOperation) Invert() Operation {
	segments, err := document.ParsePath(op.NodePath)
	if err != nil || len(segments) == 0 {
		// Un-invertible path; the inverse degenerates to a no-op delete.
		return &DeleteNodeOperation{NodePath: op.NodePath}
	}
	return &AddNodeOperation{
		ParentPath: document.JoinPath(segments[:len(segments)-1]...),
		Key:        segments[len(segments)-1],
		Value:      op.OldValue,
	}
}

// RenameNodeOperation renames a child key under a parent path
type RenameNodeOperation struct {
	ParentPath string `json:"parent_path"`
	From       string `json:"from"`
	To         string `json:"to"`
}

func NewRenameNode(parentPath, from, to string) *RenameNodeOperation {
	return &RenameNodeOperation{ParentPath: parentPath, From: from, To: to}
}

func (op *RenameNodeOperation) Kind() string { return KindRenameNode }

func (op *RenameNodeOperation) Apply(doc *document.Document) error {
	fromPath := op.ParentPath + document.JoinPath(op.From)
	value, ok := doc.Get(fromPath)
	if !ok {
		// Source vanished under a concurrent edit; nothing to move.
		return nil
	}
	doc.Delete(fromPath)
	return doc.Set(op.ParentPath+document.JoinPath(op.To), value)
}

func (op *RenameNodeOperation) Invert() Operation {
	return &RenameNodeOperation{ParentPath: op.ParentPath, From: op.To, To: op.From}
}

// ensure the closed set stays closed
var _ = []Operation{
	(*ChangePropertyOperation)(nil),
	(*AddNodeOperation)(nil),
	(*DeleteNodeOperation)(nil),
	(*RenameNodeOperation)(nil),
}

func kindOf(op Operation) (string, error) {
	switch op.(type) {
	case *ChangePropertyOperation, *AddNodeOperation, *DeleteNodeOperation, *RenameNodeOperation:
		return op.Kind(), nil
	default:
		return "", fmt.Errorf("unknown operation type %T", op)
	}
}
