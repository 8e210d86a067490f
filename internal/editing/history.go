package editing

import "api-studio/internal/commands"

// CommandHistory is the append-only log of sequenced commands this
// client has observed: remote commands as they arrive and local
// commands once acked. Undo/redo notifications resolve against it by
// content version.
//
// Owned by the session; only touched from its dispatch loop.
type CommandHistory struct {
	byVersion map[int64]*commands.Command
	versions  []int64 // record order, for the activity feed
}

func NewCommandHistory() *CommandHistory {
	return &CommandHistory{byVersion: make(map[int64]*commands.Command)}
}

// Record appends a command under its sequenced content version
func (h *CommandHistory) Record(c *commands.Command) {
	if _, seen := h.byVersion[c.ContentVersion]; !seen {
		h.versions = append(h.versions, c.ContentVersion)
	}
	h.byVersion[c.ContentVersion] = c
}

// ByVersion returns the command sequenced at the given content
// version, or nil if this client never observed it
func (h *CommandHistory) ByVersion(version int64) *commands.Command {
	return h.byVersion[version]
}

// Len returns the number of recorded commands
func (h *CommandHistory) Len() int {
	return len(h.versions)
}

// Commands returns the log in record order
func (h *CommandHistory) Commands() []*commands.Command {
	out := make([]*commands.Command, 0, len(h.versions))
	for _, v := range h.versions {
		out = append(out, h.byVersion[v])
	}
	return out
}
