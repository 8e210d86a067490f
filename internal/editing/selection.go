package editing

// SelectionTracker holds the local user's current selection. The
// session broadcasts changes to the hub; peers see them through their
// presence trackers. Selection is advisory presence data, so
// broadcasts are fire-and-forget.
type SelectionTracker struct {
	current *string
}

func NewSelectionTracker() *SelectionTracker {
	return &SelectionTracker{}
}

// Set records a selection on the given node path
func (s *SelectionTracker) Set(path string) {
	s.current = &path
}

// Clear records "no selection"
func (s *SelectionTracker) Clear() {
	s.current = nil
}

// Current returns the selected node path, or nil for no selection
func (s *SelectionTracker) Current() *string {
	return s.current
}
