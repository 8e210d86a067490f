package editing

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strptr(s string) *string { return &s }

func TestColorAssignmentIsDeterministic(t *testing.T) {
	var first []string
	for run := 0; run < 3; run++ {
		tracker := NewPresenceTracker(nil)
		var colors []string
		for i := 1; i <= 5; i++ {
			u := tracker.Join(fmt.Sprintf("u%d", i), fmt.Sprintf("User %d", i), nil)
			colors = append(colors, u.Color())
		}
		if first == nil {
			first = colors
			continue
		}
		assert.Equal(t, first, colors, "join order must yield the same colors on every run")
	}

	// And the palette cycles with wraparound
	tracker := NewPresenceTracker(NewPaletteAllocator([]string{"red", "green"}))
	assert.Equal(t, "red", tracker.Join("a", "A", nil).Color())
	assert.Equal(t, "green", tracker.Join("b", "B", nil).Color())
	assert.Equal(t, "red", tracker.Join("c", "C", nil).Color())
}

func TestCollaboratorsSortedByName(t *testing.T) {
	tracker := NewPresenceTracker(nil)
	tracker.Join("u1", "Zoe", nil)
	tracker.Join("u2", "Ada", nil)
	tracker.Join("u3", "Mia", nil)

	users := tracker.Collaborators()
	require.Len(t, users, 3)
	assert.Equal(t, "Ada", users[0].UserName)
	assert.Equal(t, "Mia", users[1].UserName)
	assert.Equal(t, "Zoe", users[2].UserName)
}

func TestCollaboratorsForPath(t *testing.T) {
	tracker := NewPresenceTracker(nil)
	tracker.Join("u1", "Ada", nil)
	tracker.Join("u2", "Mia", nil)

	tracker.SetSelection("u1", strptr("/paths/~1pets"))

	// Only the selecting collaborator matches
	users := tracker.CollaboratorsForPath("/paths/~1pets")
	require.Len(t, users, 1)
	assert.Equal(t, "u1", users[0].UserID)

	// Prefix match: an ancestor query finds the deeper selection
	users = tracker.CollaboratorsForPath("/paths")
	require.Len(t, users, 1)
	assert.Equal(t, "u1", users[0].UserID)

	// A sibling path does not
	assert.Empty(t, tracker.CollaboratorsForPath("/components"))

	// No selection means no match, even for ""
	tracker.SetSelection("u1", nil)
	assert.Empty(t, tracker.CollaboratorsForPath("/paths/~1pets"))
}

func TestLeaveClearsSelection(t *testing.T) {
	tracker := NewPresenceTracker(nil)
	tracker.Join("u1", "Ada", nil)
	tracker.SetSelection("u1", strptr("/paths/~1pets"))

	left := tracker.Leave("u1")
	require.NotNil(t, left)
	assert.Empty(t, left.Selection)

	assert.Empty(t, tracker.CollaboratorsForPath("/paths/~1pets"))
	assert.Empty(t, tracker.Collaborators())
	assert.Nil(t, tracker.Get("u1"))
}

func TestLeaveUnknownUserIsNoop(t *testing.T) {
	tracker := NewPresenceTracker(nil)
	assert.Nil(t, tracker.Leave("ghost"))
}

func TestRejoinKeepsColor(t *testing.T) {
	tracker := NewPresenceTracker(nil)
	first := tracker.Join("u1", "Ada", nil)
	color := first.Color()

	again := tracker.Join("u1", "Ada L.", nil)
	assert.Equal(t, color, again.Color())
	assert.Equal(t, "Ada L.", again.UserName)
	assert.Len(t, tracker.Collaborators(), 1)
}

func TestSelectionNilMeansNoSelection(t *testing.T) {
	tracker := NewPresenceTracker(nil)
	tracker.Join("u1", "Ada", nil)

	tracker.SetSelection("u1", strptr("/info"))
	require.Equal(t, "/info", tracker.Get("u1").Selection)

	tracker.SetSelection("u1", nil)
	assert.Empty(t, tracker.Get("u1").Selection)

	// Selection for an unknown user is dropped quietly
	assert.Nil(t, tracker.SetSelection("ghost", strptr("/info")))
}
