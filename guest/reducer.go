package guest

import (
	"github.com/tossapol/jukebox-party/model"
	"github.com/tossapol/jukebox-party/protocol"
)

// Reduce replaces the guest view with the pushed snapshot. There is no merge
// and no conflict resolution: the host always sends authoritative full
// state, so the last snapshot wins and applying one twice changes nothing.
// The current song is taken from the carried snapshot fields; it is never
// present in the pushed queue, so it must not be resolved from there.
func Reduce(prior model.View, snap protocol.Snapshot, self model.User) model.View {
	view := model.View{
		Queue: make([]model.Song, len(snap.Queue)),
		Users: make([]model.User, len(snap.Users)),
		Self:  self,
	}
	copy(view.Queue, snap.Queue)
	copy(view.Users, snap.Users)

	if snap.CurrentSong != nil {
		current := *snap.CurrentSong
		view.CurrentSong = &current
	}
	if snap.MasterID != nil {
		view.MasterID = *snap.MasterID
	}
	return view
}
