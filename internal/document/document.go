package document

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

/*
DOCUMENT MODEL

An API design (OpenAPI/AsyncAPI) is held in memory as a tree of nested
maps, addressable by node paths:

  /paths/~1pets/get/summary

Path segments use JSON-pointer escaping: "~1" is a literal "/" and
"~0" is a literal "~", so "/paths/~1pets" addresses the "/pets" entry
under "paths".

The model is deliberately not goroutine-safe. All mutation funnels
through the editing session's single dispatch loop (or the hub's
sequencing loop), so structural mutual exclusion makes locks
unnecessary.
*/

// Document is an in-memory, path-addressable API design tree
type Document struct {
	root           map[string]any
	contentVersion int64
}

// New creates an empty document
func New() *Document {
	return &Document{root: make(map[string]any)}
}

// Parse builds a document from JSON content and a content version
func Parse(content string, contentVersion int64) (*Document, error) {
	root := make(map[string]any)
	if strings.TrimSpace(content) != "" {
		if err := json.Unmarshal([]byte(content), &root); err != nil {
			return nil, fmt.Errorf("failed to parse document content: %w", err)
		}
	}
	return &Document{root: root, contentVersion: contentVersion}, nil
}

// ContentVersion returns the version of the last applied sequenced command
func (d *Document) ContentVersion() int64 {
	return d.contentVersion
}

// SetContentVersion records the version after a sequenced command applies
func (d *Document) SetContentVersion(v int64) {
	d.contentVersion = v
}

// Root exposes the underlying tree (read-only by convention)
func (d *Document) Root() map[string]any {
	return d.root
}

// Get returns the value at the given node path
func (d *Document) Get(path string) (any, bool) {
	segments, err := ParsePath(path)
	if err != nil {
		return nil, false
	}
	var current any = d.root
	for _, seg := range segments {
		node, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = node[seg]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// Set writes a value at the given node path, creating intermediate
// map nodes as needed. Fails if an intermediate node exists but is
// not a map.
func (d *Document) Set(path string, value any) error {
	segments, err := ParsePath(path)
	if err != nil {
		return err
	}
	if len(segments) == 0 {
		return fmt.Errorf("cannot set the document root")
	}
	node := d.root
	for _, seg := range segments[:len(segments)-1] {
		child, ok := node[seg]
		if !ok {
			next := make(map[string]any)
			node[seg] = next
			node = next
			continue
		}
		next, ok := child.(map[string]any)
		if !ok {
			return fmt.Errorf("path %s crosses a non-object node at %q", path, seg)
		}
		node = next
	}
	node[segments[len(segments)-1]] = value
	return nil
}

// Delete removes the node at the given path and returns the removed
// value. Missing nodes are reported via the bool, not an error.
func (d *Document) Delete(path string) (any, bool) {
	segments, err := ParsePath(path)
	if err != nil || len(segments) == 0 {
		return nil, false
	}
	node := d.root
	for _, seg := range segments[:len(segments)-1] {
		next, ok := node[seg].(map[string]any)
		if !ok {
			return nil, false
		}
		node = next
	}
	leaf := segments[len(segments)-1]
	value, ok := node[leaf]
	if !ok {
		return nil, false
	}
	delete(node, leaf)
	return value, true
}

// Walk visits every node depth-first in sorted key order, calling fn
// with the node path and value. Returning false stops the walk.
func (d *Document) Walk(fn func(path string, value any) bool) {
	walk("", d.root, fn)
}

func walk(prefix string, node map[string]any, fn func(string, any) bool) bool {
	keys := make([]string, 0, len(node))
	for k := range node {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		path := prefix + "/" + EscapeSegment(k)
		value := node[k]
		if !fn(path, value) {
			return false
		}
		if child, ok := value.(map[string]any); ok {
			if !walk(path, child, fn) {
				return false
			}
		}
	}
	return true
}

// String serializes the document tree back to JSON
func (d *Document) String() (string, error) {
	data, err := json.Marshal(d.root)
	if err != nil {
		return "", fmt.Errorf("failed to serialize document: %w", err)
	}
	return string(data), nil
}
