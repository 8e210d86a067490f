package editing

import (
	"sort"
	"strings"

	"api-studio/internal/models"
)

// DefaultPalette is the display color rotation for collaborators
var DefaultPalette = []string{
	"#f94144", "#f3722c", "#f8961e", "#f9c74f",
	"#90be6d", "#43aa8b", "#577590", "#9b5de5",
}

// ColorAllocator hands out display colors for joining collaborators
type ColorAllocator interface {
	Next() string
}

// paletteAllocator cycles a fixed palette with wraparound. The index
// is owned by the allocator instance, so color assignment is
// deterministic per join order and never leaks across sessions.
type paletteAllocator struct {
	palette []string
	index   int
}

func NewPaletteAllocator(palette []string) ColorAllocator {
	if len(palette) == 0 {
		palette = DefaultPalette
	}
	return &paletteAllocator{palette: palette}
}

func (a *paletteAllocator) Next() string {
	color := a.palette[a.index]
	a.index = (a.index + 1) % len(a.palette)
	return color
}

// PresenceTracker maintains the set of active collaborators and their
// live selections. Keyed by user ID; at most one entry per user.
//
// Owned by the session and only touched from its dispatch loop.
type PresenceTracker struct {
	users  map[string]*models.ApiEditorUser
	sorted []*models.ApiEditorUser // by user name, for stable UI ordering
	colors ColorAllocator
}

func NewPresenceTracker(colors ColorAllocator) *PresenceTracker {
	if colors == nil {
		colors = NewPaletteAllocator(nil)
	}
	return &PresenceTracker{
		users:  make(map[string]*models.ApiEditorUser),
		colors: colors,
	}
}

// Join adds a collaborator, assigns the next palette color, and
// re-sorts the active set. Joining an already-present user refreshes
// their name and attributes but keeps the assigned color.
func (t *PresenceTracker) Join(userID, userName string, attributes map[string]string) *models.ApiEditorUser {
	if existing, ok := t.users[userID]; ok {
		existing.UserName = userName
		for k, v := range attributes {
			if k != "color" {
				existing.Attributes[k] = v
			}
		}
		t.resort()
		return existing
	}

	attrs := make(map[string]string, len(attributes)+1)
	for k, v := range attributes {
		attrs[k] = v
	}
	attrs["color"] = t.colors.Next()

	user := &models.ApiEditorUser{
		UserID:     userID,
		UserName:   userName,
		Attributes: attrs,
	}
	t.users[userID] = user
	t.sorted = append(t.sorted, user)
	t.resort()
	return user
}

// Leave clears the user's selection and removes them from the active
// set. The explicit clear distinguishes "gone" from "no data".
func (t *PresenceTracker) Leave(userID string) *models.ApiEditorUser {
	user, ok := t.users[userID]
	if !ok {
		return nil
	}
	user.Selection = ""
	delete(t.users, userID)
	for i, u := range t.sorted {
		if u == user {
			t.sorted = append(t.sorted[:i], t.sorted[i+1:]...)
			break
		}
	}
	return user
}

// SetSelection updates a collaborator's selection. nil means "no
// selection", not "unknown".
func (t *PresenceTracker) SetSelection(userID string, selection *string) *models.ApiEditorUser {
	user, ok := t.users[userID]
	if !ok {
		return nil
	}
	if selection == nil {
		user.Selection = ""
	} else {
		user.Selection = *selection
	}
	return user
}

// Get returns the collaborator with the given user ID, or nil
func (t *PresenceTracker) Get(userID string) *models.ApiEditorUser {
	return t.users[userID]
}

// Collaborators returns the active set sorted by user name
func (t *PresenceTracker) Collaborators() []*models.ApiEditorUser {
	out := make([]*models.ApiEditorUser, len(t.sorted))
	copy(out, t.sorted)
	return out
}

// CollaboratorsForPath returns the active users whose current
// selection starts with the given node path. The match is a plain
// string-prefix test: querying "/paths" finds a user selecting
// "/paths/~1pets".
func (t *PresenceTracker) CollaboratorsForPath(path string) []*models.ApiEditorUser {
	var out []*models.ApiEditorUser
	for _, u := range t.sorted {
		if u.Selection != "" && strings.HasPrefix(u.Selection, path) {
			out = append(out, u)
		}
	}
	return out
}

// Clear removes everyone (session teardown)
func (t *PresenceTracker) Clear() {
	t.users = make(map[string]*models.ApiEditorUser)
	t.sorted = nil
}

func (t *PresenceTracker) resort() {
	sort.SliceStable(t.sorted, func(i, j int) bool {
		return t.sorted[i].UserName < t.sorted[j].UserName
	})
}
