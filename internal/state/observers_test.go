package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestObservers_DeliversInVersionOrder(t *testing.T) {
	var o Observers[string]
	var got []string
	o.Subscribe(func(s string) { got = append(got, s) })

	assert.True(t, o.Notify(1, "one"))
	assert.True(t, o.Notify(3, "three"))
	assert.False(t, o.Notify(2, "two"), "older snapshot arriving late is dropped")
	assert.False(t, o.Notify(3, "three again"))

	assert.Equal(t, []string{"one", "three"}, got)
}

func TestObservers_Unsubscribe(t *testing.T) {
	var o Observers[int]
	var a, b int
	unsubA := o.Subscribe(func(v int) { a = v })
	o.Subscribe(func(v int) { b = v })
	assert.Equal(t, 2, o.Len())

	o.Notify(1, 10)
	unsubA()
	unsubA()
	o.Notify(2, 20)

	assert.Equal(t, 10, a)
	assert.Equal(t, 20, b)
	assert.Equal(t, 1, o.Len())
}
