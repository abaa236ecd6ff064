package session

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func TestOptimistic(t *testing.T) {
	o := NewOptimistic[int64](4)
	assert.Equal(t, int64(4), o.Value())
	assert.False(t, o.Pending())

	o.Apply(0)
	assert.Equal(t, int64(0), o.Value())
	assert.Equal(t, int64(4), o.Confirmed())
	assert.True(t, o.Pending())

	o.Reset(6)
	assert.Equal(t, int64(0), o.Value(), "pending value stays in front")
	assert.Equal(t, int64(6), o.Rollback())
	assert.Equal(t, int64(6), o.Value())

	o.Apply(1)
	o.Confirm()
	assert.Equal(t, int64(1), o.Value())
	assert.False(t, o.Pending())
	o.Confirm()
	assert.Equal(t, int64(1), o.Confirmed())
}

func TestOptimisticProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("apply then rollback restores the confirmed value", prop.ForAll(
		func(confirmed, speculative int64) bool {
			o := NewOptimistic(confirmed)
			o.Apply(speculative)
			return o.Rollback() == confirmed && o.Value() == confirmed
		},
		gen.Int64(), gen.Int64(),
	))

	properties.Property("apply then confirm keeps the applied value", prop.ForAll(
		func(confirmed, speculative int64) bool {
			o := NewOptimistic(confirmed)
			o.Apply(speculative)
			o.Confirm()
			return o.Value() == speculative && o.Confirmed() == speculative && !o.Pending()
		},
		gen.Int64(), gen.Int64(),
	))

	properties.TestingRun(t)
}
