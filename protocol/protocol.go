package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	"github.com/tossapol/jukebox-party/model"
)

// Command vocabulary. The set is closed: anything else on the wire is
// dropped by the receiver with no side effect.
const (
	TypeJoin        = "JOIN"
	TypeAddSong     = "ADD_SONG"
	TypePlay        = "PLAY"
	TypePause       = "PAUSE"
	TypeStop        = "STOP"
	TypeNext        = "NEXT"
	TypeGetState    = "GET_STATE"
	TypeUpdateState = "UPDATE_STATE"
)

var (
	ErrMalformed   = errors.New("malformed message")
	ErrUnknownType = errors.New("unknown message type")
)

// Command is the flat wire shape of every guest-to-host message.
// Fields beyond Type are populated per message type.
type Command struct {
	Type string     `json:"type"`
	User model.User `json:"user"`
	URL  string     `json:"url,omitempty"`
}

// Snapshot is the full host-to-guest state push. CurrentID and CurrentSong
// are carried fields: the playing item is never present in Queue, so guests
// must not try to resolve it from there.
type Snapshot struct {
	Type        string       `json:"type"`
	Queue       []model.Song `json:"queue"`
	CurrentID   *string      `json:"currentId"`
	CurrentSong *model.Song  `json:"currentSong,omitempty"`
	Users       []model.User `json:"users"`
	MasterID    *string      `json:"masterId"`
}

// Decode parses and validates one inbound message. Each message is
// independently interpretable; there is no cross-command sequencing.
func Decode(payload []byte) (Command, error) {
	var cmd Command
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return Command{}, errors.Join(ErrMalformed, err)
	}
	switch cmd.Type {
	case TypeJoin, TypePlay, TypePause, TypeStop, TypeNext:
		if cmd.User.ID == "" {
			return Command{}, ErrMalformed
		}
	case TypeAddSong:
		if cmd.User.ID == "" || cmd.URL == "" {
			return Command{}, ErrMalformed
		}
	case TypeGetState, TypeUpdateState:
	default:
		return Command{}, ErrUnknownType
	}
	return cmd, nil
}

// EncodeCommand marshals a guest command for the wire.
func EncodeCommand(cmd Command) ([]byte, error) {
	b, err := json.Marshal(cmd)
	if err != nil {
		return nil, errors.Join(ErrMalformed, err)
	}
	return b, nil
}

// EncodeSnapshot marshals a state push for broadcast.
func EncodeSnapshot(snap Snapshot) ([]byte, error) {
	snap.Type = TypeUpdateState
	if snap.Queue == nil {
		snap.Queue = []model.Song{}
	}
	if snap.Users == nil {
		snap.Users = []model.User{}
	}
	b, err := json.Marshal(snap)
	if err != nil {
		return nil, errors.Join(ErrMalformed, err)
	}
	return b, nil
}

// DecodeSnapshot parses a host push on the guest side. Anything that is not
// an UPDATE_STATE is rejected.
func DecodeSnapshot(payload []byte) (Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return Snapshot{}, errors.Join(ErrMalformed, err)
	}
	if snap.Type != TypeUpdateState {
		return Snapshot{}, ErrUnknownType
	}
	return snap, nil
}

// videoIDPattern recognizes the common YouTube link shapes: watch?v=,
// youtu.be/, /v/, /embed/ and /u/<ch>/. The captured token must be exactly
// 11 characters to count as a video id.
var videoIDPattern = regexp.MustCompile(`^.*((youtu\.be/)|(v/)|(/u/\w/)|(embed/)|(watch\?))\??v?=?([^#&?]*).*`)

const videoIDLength = 11

// ExtractVideoID pulls the media id out of a submitted URL.
func ExtractVideoID(url string) (string, bool) {
	m := videoIDPattern.FindStringSubmatch(url)
	if m == nil || len(m[7]) != videoIDLength {
		return "", false
	}
	return m[7], true
}

// ThumbnailURL derives the thumbnail deterministically from the media id.
func ThumbnailURL(videoID string) string {
	return fmt.Sprintf("https://img.youtube.com/vi/%s/mqdefault.jpg", videoID)
}

// PlaceholderTitle is used until metadata enrichment resolves a real title.
func PlaceholderTitle(videoID string) string {
	return "Song " + videoID
}
