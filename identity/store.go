package identity

import (
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/tossapol/jukebox-party/model"
	_ "modernc.org/sqlite"
)

var (
	ErrOpen  = errors.New("unable to open identity store")
	ErrQuery = errors.New("identity store query failed")
	ErrSave  = errors.New("unable to persist identity")
)

const schema = `
CREATE TABLE IF NOT EXISTS guest_identity (
	host_id   TEXT PRIMARY KEY,
	user_id   TEXT NOT NULL,
	name      TEXT NOT NULL,
	is_master INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS remembered_master (
	host_id   TEXT PRIMARY KEY,
	master_id TEXT NOT NULL
);`

// Store persists local identity state across restarts, keyed by host id.
// Guests keep their self-generated identity here so reconnecting to the same
// host re-uses the same user id; hosts keep the remembered master id here so
// the original master regains control after a host restart.
type Store struct {
	db *sql.DB
}

func NewStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Join(ErrOpen, err)
	}
	if _, err = db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, errors.Join(ErrOpen, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// GuestIdentity returns the persisted identity for the given host, if any.
func (s *Store) GuestIdentity(hostID string) (model.User, bool, error) {
	var (
		u        model.User
		isMaster int
	)
	row := s.db.QueryRow(
		`SELECT user_id, name, is_master FROM guest_identity WHERE host_id = ?`, hostID)
	err := row.Scan(&u.ID, &u.Name, &isMaster)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, false, nil
	}
	if err != nil {
		return model.User{}, false, errors.Join(ErrQuery, err)
	}
	u.IsMaster = isMaster != 0
	return u, true, nil
}

// SaveGuestIdentity upserts the local identity for the given host.
func (s *Store) SaveGuestIdentity(hostID string, u model.User) error {
	isMaster := 0
	if u.IsMaster {
		isMaster = 1
	}
	_, err := s.db.Exec(
		`INSERT INTO guest_identity (host_id, user_id, name, is_master) VALUES (?, ?, ?, ?)
		 ON CONFLICT(host_id) DO UPDATE SET user_id = excluded.user_id,
		 name = excluded.name, is_master = excluded.is_master`,
		hostID, u.ID, u.Name, isMaster)
	if err != nil {
		return errors.Join(ErrSave, err)
	}
	return nil
}

// GuestIdentityOrNew returns the persisted identity for the host, creating
// and persisting a fresh one with a random id when none exists yet.
func (s *Store) GuestIdentityOrNew(hostID, name string) (model.User, error) {
	u, ok, err := s.GuestIdentity(hostID)
	if err != nil {
		return model.User{}, err
	}
	if ok {
		if name != "" && name != u.Name {
			u.Name = name
			if err = s.SaveGuestIdentity(hostID, u); err != nil {
				return model.User{}, err
			}
		}
		return u, nil
	}
	u = model.User{ID: uuid.NewString(), Name: name}
	if err = s.SaveGuestIdentity(hostID, u); err != nil {
		return model.User{}, err
	}
	return u, nil
}

// MasterID returns the remembered master id for the given host,
// or empty when none was ever promoted.
func (s *Store) MasterID(hostID string) (string, error) {
	var masterID string
	row := s.db.QueryRow(
		`SELECT master_id FROM remembered_master WHERE host_id = ?`, hostID)
	err := row.Scan(&masterID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", errors.Join(ErrQuery, err)
	}
	return masterID, nil
}

// SaveMasterID upserts the remembered master id for the given host.
func (s *Store) SaveMasterID(hostID, masterID string) error {
	_, err := s.db.Exec(
		`INSERT INTO remembered_master (host_id, master_id) VALUES (?, ?)
		 ON CONFLICT(host_id) DO UPDATE SET master_id = excluded.master_id`,
		hostID, masterID)
	if err != nil {
		return errors.Join(ErrSave, err)
	}
	return nil
}
