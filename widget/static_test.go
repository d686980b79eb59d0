package widget

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func selected(t *testing.T, s *Static) []string {
	t.Helper()
	ids, err := s.SelectedPartIDs(context.Background())
	require.NoError(t, err)
	return ids
}

func TestStaticSelection(t *testing.T) {
	s := NewStatic("a", "b", "a", " ")
	assert.Equal(t, []string{"a", "b"}, selected(t, s))

	s.Select("c", "b")
	assert.Equal(t, []string{"a", "b", "c"}, selected(t, s))

	s.Deselect("a")
	assert.Equal(t, []string{"b", "c"}, selected(t, s))

	s.Set("z")
	assert.Equal(t, []string{"z"}, selected(t, s))
}

func TestStaticCoalescesChanges(t *testing.T) {
	s := NewStatic()
	select {
	case <-s.Changes():
		t.Fatal("no change expected before any mutation")
	default:
	}

	s.Select("a")
	s.Select("b")
	s.Deselect("a")

	<-s.Changes()
	select {
	case <-s.Changes():
		t.Fatal("pending changes should be merged into one signal")
	default:
	}
	assert.Equal(t, []string{"b"}, selected(t, s))
}
