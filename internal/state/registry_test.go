package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistry(t *testing.T) {
	api := &fakeAPI{members: seedMembers()}
	base, _, _ := newController(t, api)
	built := 0
	r := NewRegistry(func() *Controller {
		built++
		return New(base.opts)
	})

	c1, created := r.GetOrCreate("a")
	assert.True(t, created)
	c2, created := r.GetOrCreate("a")
	assert.False(t, created)
	assert.Same(t, c1, c2)
	assert.Equal(t, 1, built)

	other := r.New()
	r.Put("b", other)
	got, ok := r.Get("b")
	assert.True(t, ok)
	assert.Same(t, other, got)
	assert.Equal(t, 2, r.Len())

	r.Prune([]string{"a", "missing"})
	_, ok = r.Get("a")
	assert.False(t, ok)

	r.Remove("b")
	assert.Zero(t, r.Len())
}
