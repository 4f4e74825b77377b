package storage

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	lvlstorage "github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"

	"aidledger/types/ids"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrAccountInUse    = errors.New("account already in use")
)

var (
	accountPrefix = []byte("acct/")
	eventPrefix   = []byte("evt/")
	eventSeqKey   = []byte("meta/event_seq")
)

func accountKey(addr ids.Pubkey) []byte {
	return append(append([]byte{}, accountPrefix...), addr[:]...)
}

func eventKey(seq uint64) []byte {
	return binary.BigEndian.AppendUint64(append([]byte{}, eventPrefix...), seq)
}

// Storage is the addressed record store: one value per derived address and
// an append-only event log.
type Storage struct {
	db *leveldb.DB
}

// NewStorage opens (or creates) a LevelDB database at path.
func NewStorage(path string) (*Storage, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb %s: %w", path, err)
	}
	return &Storage{db: db}, nil
}

// NewMemStorage returns a store that lives only in memory.
func NewMemStorage() (*Storage, error) {
	db, err := leveldb.Open(lvlstorage.NewMemStorage(), nil)
	if err != nil {
		return nil, err
	}
	return &Storage{db: db}, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

// Get retrieves the record stored at addr.
func (s *Storage) Get(addr ids.Pubkey) ([]byte, error) {
	data, err := s.db.Get(accountKey(addr), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrAccountNotFound
	}
	return data, err
}

// Ping does one point read, failing once the database is closed.
func (s *Storage) Ping() error {
	_, err := s.db.Has(eventSeqKey, nil)
	return err
}

// Tx is a single atomic unit of work against the store.
type Tx struct {
	tr *leveldb.Transaction
}

func (tx *Tx) Get(addr ids.Pubkey) ([]byte, error) {
	data, err := tx.tr.Get(accountKey(addr), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrAccountNotFound
	}
	return data, err
}

// Create allocates addr with data, failing with ErrAccountInUse when the
// address already holds a record.
func (tx *Tx) Create(addr ids.Pubkey, data []byte) error {
	key := accountKey(addr)
	exists, err := tx.tr.Has(key, nil)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrAccountInUse, addr)
	}
	return tx.tr.Put(key, data, nil)
}

// Emit appends an event to the log and returns its sequence number.
func (tx *Tx) Emit(data []byte) (uint64, error) {
	var next uint64
	raw, err := tx.tr.Get(eventSeqKey, nil)
	switch {
	case err == nil && len(raw) == 8:
		next = binary.BigEndian.Uint64(raw)
	case err != nil && !errors.Is(err, leveldb.ErrNotFound):
		return 0, err
	}
	if err := tx.tr.Put(eventKey(next), data, nil); err != nil {
		return 0, err
	}
	if err := tx.tr.Put(eventSeqKey, binary.BigEndian.AppendUint64(nil, next+1), nil); err != nil {
		return 0, err
	}
	return next, nil
}

// Update runs fn inside one LevelDB transaction. Writes become visible only
// if fn returns nil; conflicting writers are serialized by the store.
func (s *Storage) Update(fn func(tx *Tx) error) error {
	tr, err := s.db.OpenTransaction()
	if err != nil {
		return fmt.Errorf("open transaction: %w", err)
	}
	tx := &Tx{tr: tr}
	if err := fn(tx); err != nil {
		tr.Discard()
		return err
	}
	if err := tr.Commit(); err != nil {
		tr.Discard()
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Scan walks every stored record in address order until fn returns false.
func (s *Storage) Scan(fn func(addr ids.Pubkey, data []byte) bool) error {
	iter := s.db.NewIterator(util.BytesPrefix(accountPrefix), nil)
	defer iter.Release()

	for iter.Next() {
		addr, err := ids.FromBytes(iter.Key()[len(accountPrefix):])
		if err != nil {
			continue
		}
		data := append([]byte(nil), iter.Value()...)
		if !fn(addr, data) {
			break
		}
	}
	return iter.Error()
}

// EventRecord is one entry of the event log.
type EventRecord struct {
	Seq  uint64
	Data []byte
}

// Events returns up to limit events starting at sequence from.
func (s *Storage) Events(from uint64, limit int) ([]EventRecord, error) {
	iter := s.db.NewIterator(util.BytesPrefix(eventPrefix), nil)
	defer iter.Release()

	var out []EventRecord
	for ok := iter.Seek(eventKey(from)); ok; ok = iter.Next() {
		if limit > 0 && len(out) >= limit {
			break
		}
		key := iter.Key()
		out = append(out, EventRecord{
			Seq:  binary.BigEndian.Uint64(key[len(eventPrefix):]),
			Data: append([]byte(nil), iter.Value()...),
		})
	}
	return out, iter.Error()
}

// Stats summarises the store contents.
type Stats struct {
	Accounts int    `json:"accounts"`
	Events   uint64 `json:"events"`
}

func (s *Storage) Stats() (Stats, error) {
	var st Stats
	err := s.Scan(func(ids.Pubkey, []byte) bool {
		st.Accounts++
		return true
	})
	if err != nil {
		return st, err
	}
	raw, err := s.db.Get(eventSeqKey, nil)
	switch {
	case err == nil && len(raw) == 8:
		st.Events = binary.BigEndian.Uint64(raw)
	case err != nil && !errors.Is(err, leveldb.ErrNotFound):
		return st, err
	}
	return st, nil
}
