package signaling

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPresence(t *testing.T) {
	req := require.New(t)
	p := NewPresence()

	req.True(p.Add("b"))
	req.True(p.Add("a"))
	req.False(p.Add("a"))
	req.Equal([]string{"a", "b"}, p.List())

	req.True(p.Remove("a"))
	req.False(p.Remove("a"))
	req.Equal([]string{"b"}, p.List())
	req.Equal(1, p.Len())
}
