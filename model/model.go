package model

// User is a participant identity. Guests generate their own id on first
// join and persist it locally, so the same device re-joins as the same user.
type User struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	IsMaster bool   `json:"isMaster"`
}

// Song is one queued media item. Title starts as a placeholder and may be
// enriched asynchronously after enqueue.
type Song struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Sender    string `json:"sender"`
	Thumbnail string `json:"thumbnail,omitempty"`
}

// View is the guest-side read-only projection of the host session.
// It is replaced wholesale on every snapshot, never merged.
type View struct {
	Queue       []Song
	CurrentSong *Song
	Users       []User
	MasterID    string
	Self        User
}

// IsMaster reports whether the local user currently holds transport control.
func (v View) IsMaster() bool {
	return v.MasterID != "" && v.MasterID == v.Self.ID
}
