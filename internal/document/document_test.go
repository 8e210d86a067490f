package document

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePathEscaping(t *testing.T) {
	segments, err := ParsePath("/paths/~1pets/get")
	require.NoError(t, err)
	assert.Equal(t, []string{"paths", "/pets", "get"}, segments)

	segments, err = ParsePath("/components/~0weird~1name")
	require.NoError(t, err)
	assert.Equal(t, []string{"components", "~weird/name"}, segments)
}

func TestParsePathRejectsRelative(t *testing.T) {
	_, err := ParsePath("paths/~1pets")
	assert.Error(t, err)

	_, err = ParsePath("/paths//get")
	assert.Error(t, err)
}

func TestJoinPathRoundTrip(t *testing.T) {
	path := JoinPath("paths", "/pets", "get")
	assert.Equal(t, "/paths/~1pets/get", path)

	segments, err := ParsePath(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"paths", "/pets", "get"}, segments)
}

func TestGetSetDelete(t *testing.T) {
	doc := New()

	require.NoError(t, doc.Set("/info/title", "Pet Store"))
	require.NoError(t, doc.Set("/paths/~1pets/get/summary", "List pets"))

	title, ok := doc.Get("/info/title")
	require.True(t, ok)
	assert.Equal(t, "Pet Store", title)

	summary, ok := doc.Get("/paths/~1pets/get/summary")
	require.True(t, ok)
	assert.Equal(t, "List pets", summary)

	_, ok = doc.Get("/paths/~1dogs")
	assert.False(t, ok)

	removed, ok := doc.Delete("/paths/~1pets/get")
	require.True(t, ok)
	assert.Equal(t, map[string]any{"summary": "List pets"}, removed)

	_, ok = doc.Get("/paths/~1pets/get/summary")
	assert.False(t, ok)

	// Deleting again is a miss, not a panic
	_, ok = doc.Delete("/paths/~1pets/get")
	assert.False(t, ok)
}

func TestSetRejectsNonObjectCrossing(t *testing.T) {
	doc := New()
	require.NoError(t, doc.Set("/info/title", "Pet Store"))

	err := doc.Set("/info/title/x", "nope")
	assert.Error(t, err)
}

func TestParseContent(t *testing.T) {
	doc, err := Parse(`{"openapi":"3.0.0","info":{"title":"Pet Store"}}`, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(7), doc.ContentVersion())

	title, ok := doc.Get("/info/title")
	require.True(t, ok)
	assert.Equal(t, "Pet Store", title)

	out, err := doc.String()
	require.NoError(t, err)
	assert.JSONEq(t, `{"openapi":"3.0.0","info":{"title":"Pet Store"}}`, out)
}

func TestWalkVisitsDepthFirstSorted(t *testing.T) {
	doc := New()
	require.NoError(t, doc.Set("/paths/~1pets/get", "a"))
	require.NoError(t, doc.Set("/info/title", "b"))

	var visited []string
	doc.Walk(func(path string, value any) bool {
		visited = append(visited, path)
		return true
	})

	assert.Equal(t, []string{
		"/info",
		"/info/title",
		"/paths",
		"/paths/~1pets",
		"/paths/~1pets/get",
	}, visited)
}
