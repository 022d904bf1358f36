package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestManualDispatcher(t *testing.T) {
	d := NewManualDispatcher()
	var ran []string
	d.Dispatch("a", func() { ran = append(ran, "a") })
	d.Dispatch("b", func() {
		ran = append(ran, "b")
		d.Dispatch("c", func() { ran = append(ran, "c") })
	})

	assert.Equal(t, []string{"a", "b"}, d.Pending())
	assert.True(t, d.RunNamed("b"))
	assert.Equal(t, []string{"a", "c"}, d.Pending())
	assert.False(t, d.RunNamed("missing"))

	assert.Equal(t, 2, d.RunAll())
	assert.Equal(t, []string{"b", "a", "c"}, ran)
	assert.False(t, d.RunNext())
	assert.Empty(t, d.Pending())
}
