package worldmodel

import (
	"testing"

	"github.com/banshee-data/fieldstate/internal/units"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackTable(t *testing.T) {
	t.Parallel()

	newTable := func(capacity int) (*trackTable, *robotFactory) {
		rf := &robotFactory{timeout: 100}
		return newTrackTable("self", capacity, rf.New), rf
	}

	t.Run("associate creates then matches", func(t *testing.T) {
		t.Parallel()
		tt, rf := newTable(2)

		assert.Equal(t, associateCreated, tt.associate(9, 10, units.Point{X: 1}, 0))
		assert.Equal(t, associateMatched, tt.associate(9, 20, units.Point{X: 2}, 45))
		require.Len(t, rf.created, 1)
		assert.Equal(t, units.Point{X: 2}, rf.created[0].Pos())
		assert.Equal(t, 45.0, rf.created[0].Angle())
	})

	t.Run("associate fills first empty slot", func(t *testing.T) {
		t.Parallel()
		tt, _ := newTable(3)
		tt.associate(1, 0, units.Point{}, 0)
		tt.associate(2, 0, units.Point{}, 0)
		tt.slots[0].clear()

		tt.associate(3, 0, units.Point{}, 0)
		assert.Equal(t, 3, tt.slots[0].filter.ID())
		assert.Equal(t, []int{3, 2}, tt.ids())
	})

	t.Run("associate drops when full", func(t *testing.T) {
		t.Parallel()
		tt, rf := newTable(1)
		tt.associate(1, 0, units.Point{}, 0)

		assert.Equal(t, associateDropped, tt.associate(2, 0, units.Point{}, 0))
		assert.Len(t, rf.created, 1)
	})

	t.Run("advance updates valid and clears invalid", func(t *testing.T) {
		t.Parallel()
		tt, rf := newTable(3)
		tt.associate(1, 1000, units.Point{}, 0)
		tt.associate(2, 950, units.Point{}, 0)
		tt.associate(3, 800, units.Point{}, 0)

		evicted := tt.advance(1050)

		assert.Equal(t, []int{3}, evicted)
		assert.Equal(t, []int{1, 2}, tt.ids())
		assert.Equal(t, []int64{1050}, rf.created[0].updates)
		assert.Equal(t, []int64{1050}, rf.created[1].updates)
		assert.Empty(t, rf.created[2].updates)
	})

	t.Run("fuseHasBall only touches live tracks", func(t *testing.T) {
		t.Parallel()
		tt, rf := newTable(2)
		tt.associate(4, 0, units.Point{}, 0)

		assert.True(t, tt.fuseHasBall(4, true))
		assert.False(t, tt.fuseHasBall(5, true))
		assert.True(t, rf.created[0].HasBall())
		assert.Equal(t, 1, tt.live())
	})

	t.Run("beginCycle clears matched marks", func(t *testing.T) {
		t.Parallel()
		tt, _ := newTable(2)
		tt.associate(4, 0, units.Point{}, 0)
		require.True(t, tt.slots[0].seen)

		tt.beginCycle()
		assert.False(t, tt.slots[0].seen)
		assert.True(t, tt.slots[0].live())
	})
}
