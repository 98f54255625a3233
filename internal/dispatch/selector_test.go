package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRandomSelectorIsReproducible(t *testing.T) {
	pool := []string{"a", "b", "c", "d"}
	s1, s2 := NewRandomSelector(42), NewRandomSelector(42)

	for i := 0; i < 20; i++ {
		assert.Equal(t, s1.Pick(pool), s2.Pick(pool))
	}
}

func TestRandomSelectorCoversPool(t *testing.T) {
	pool := []string{"a", "b", "c"}
	s := NewRandomSelector(1)
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		seen[s.Pick(pool)] = true
	}
	assert.Len(t, seen, 3)
}

func TestSelectorsEmptyPool(t *testing.T) {
	assert.Empty(t, NewRandomSelector(1).Pick(nil))
	assert.Empty(t, FirstSelector{}.Pick(nil))
	assert.Equal(t, "x", FirstSelector{}.Pick([]string{"x", "y"}))
}
