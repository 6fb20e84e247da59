package guest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tossapol/jukebox-party/model"
	"github.com/tossapol/jukebox-party/protocol"
)

func strptr(s string) *string { return &s }

func TestReduceReplacesEverything(t *testing.T) {
	self := model.User{ID: "u1", Name: "Ann"}
	prior := model.View{
		Queue:       []model.Song{{ID: "old12345678", Title: "Old"}},
		CurrentSong: &model.Song{ID: "gone1234567"},
		MasterID:    "someone-else",
		Self:        self,
	}
	snap := protocol.Snapshot{
		Queue:    []model.Song{{ID: "new12345678", Title: "New", Sender: "Bob"}},
		Users:    []model.User{{ID: "u1", Name: "Ann"}, {ID: "u2", Name: "Bob"}},
		MasterID: strptr("u2"),
	}

	view := Reduce(prior, snap, self)

	require.Len(t, view.Queue, 1)
	assert.Equal(t, "new12345678", view.Queue[0].ID)
	assert.Nil(t, view.CurrentSong)
	assert.Len(t, view.Users, 2)
	assert.Equal(t, "u2", view.MasterID)
	assert.False(t, view.IsMaster())
}

func TestReduceIsIdempotent(t *testing.T) {
	self := model.User{ID: "u1", Name: "Ann"}
	snap := protocol.Snapshot{
		Queue:       []model.Song{{ID: "abc12345678", Title: "Queued"}},
		CurrentID:   strptr("cur12345678"),
		CurrentSong: &model.Song{ID: "cur12345678", Title: "Playing"},
		Users:       []model.User{{ID: "u1", Name: "Ann", IsMaster: true}},
		MasterID:    strptr("u1"),
	}

	once := Reduce(model.View{Self: self}, snap, self)
	twice := Reduce(once, snap, self)

	assert.Equal(t, once, twice)
}

func TestReduceCarriesCurrentSong(t *testing.T) {
	// The playing item is never part of the pushed queue; it must come
	// from the carried snapshot fields.
	self := model.User{ID: "u1", Name: "Ann"}
	snap := protocol.Snapshot{
		Queue:       []model.Song{{ID: "abc12345678"}},
		CurrentID:   strptr("cur12345678"),
		CurrentSong: &model.Song{ID: "cur12345678", Title: "Playing", Sender: "Bob"},
	}

	view := Reduce(model.View{Self: self}, snap, self)

	require.NotNil(t, view.CurrentSong)
	assert.Equal(t, "cur12345678", view.CurrentSong.ID)
	assert.Equal(t, "Playing", view.CurrentSong.Title)
	for _, s := range view.Queue {
		assert.NotEqual(t, view.CurrentSong.ID, s.ID)
	}
}

func TestReduceMasterDetection(t *testing.T) {
	self := model.User{ID: "u1", Name: "Ann"}

	view := Reduce(model.View{Self: self}, protocol.Snapshot{MasterID: strptr("u1")}, self)
	assert.True(t, view.IsMaster())

	view = Reduce(view, protocol.Snapshot{}, self)
	assert.False(t, view.IsMaster())
}
