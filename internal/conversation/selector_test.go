package conversation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestSelectorExclusive(t *testing.T) {
	var s Selector
	s.Select(Direct(5))
	_, isGroup := s.ActiveGroup()
	assert.False(t, isGroup)

	prev := s.Select(Group(2))
	assert.Equal(t, Direct(5), prev)
	_, isPerson := s.ActivePerson()
	assert.False(t, isPerson)
	g, _ := s.ActiveGroup()
	assert.Equal(t, uint(2), g)

	assert.False(t, s.ClearIf(Group(3)))
	assert.True(t, s.ClearIf(Group(2)))
	assert.True(t, s.Active().IsNone())
	assert.False(t, s.ClearIf(Group(2)), "clearing twice is a no-op")
}

func TestApplyDeepLinkOnce(t *testing.T) {
	t.Run("applies first link only", func(t *testing.T) {
		var s Selector
		got, changed := s.ApplyDeepLink("42")
		assert.True(t, changed)
		assert.Equal(t, Direct(42), got)

		s.Select(Group(1))
		got, changed = s.ApplyDeepLink("42")
		assert.False(t, changed)
		assert.Equal(t, Group(1), got)
	})

	t.Run("empty first call consumes the guard", func(t *testing.T) {
		var s Selector
		_, changed := s.ApplyDeepLink("")
		assert.False(t, changed)
		assert.True(t, s.DeepLinkApplied())
		_, changed = s.ApplyDeepLink("7")
		assert.False(t, changed)
		assert.True(t, s.Active().IsNone())
	})

	t.Run("invalid link consumes the guard", func(t *testing.T) {
		var s Selector
		_, changed := s.ApplyDeepLink("nope")
		assert.False(t, changed)
		_, changed = s.ApplyDeepLink("group:5")
		assert.False(t, changed)
	})
}

func TestProperty_SelectorMutualExclusion(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		var s Selector
		steps := rapid.IntRange(1, 50).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			id := rapid.UintRange(1, 5).Draw(t, "id")
			switch rapid.IntRange(0, 3).Draw(t, "op") {
			case 0:
				s.Select(Direct(id))
			case 1:
				s.Select(Group(id))
			case 2:
				s.Clear()
			case 3:
				s.ClearIf(Group(id))
			}
			_, g := s.ActiveGroup()
			_, p := s.ActivePerson()
			if g && p {
				t.Fatalf("person and group both active: %v", s.Active())
			}
			if s.Active().IsNone() && (g || p) {
				t.Fatalf("none but something active")
			}
		}
	})
}
