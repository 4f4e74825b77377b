package storage

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aidledger/types/ids"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := NewMemStorage()
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateIsExactlyOnce(t *testing.T) {
	s := newTestStorage(t)
	addr := ids.NewID([]byte("a"))

	require.NoError(t, s.Update(func(tx *Tx) error {
		return tx.Create(addr, []byte("first"))
	}))
	err := s.Update(func(tx *Tx) error {
		return tx.Create(addr, []byte("second"))
	})
	assert.ErrorIs(t, err, ErrAccountInUse)

	data, err := s.Get(addr)
	require.NoError(t, err)
	assert.Equal(t, "first", string(data))
}

func TestFailedUpdateWritesNothing(t *testing.T) {
	s := newTestStorage(t)
	addr := ids.NewID([]byte("a"))
	boom := errors.New("boom")

	err := s.Update(func(tx *Tx) error {
		if err := tx.Create(addr, []byte("x")); err != nil {
			return err
		}
		if _, err := tx.Emit([]byte("event")); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = s.Get(addr)
	assert.ErrorIs(t, err, ErrAccountNotFound)
	events, err := s.Events(0, 0)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestTxSeesItsOwnWrites(t *testing.T) {
	s := newTestStorage(t)
	addr := ids.NewID([]byte("a"))
	require.NoError(t, s.Update(func(tx *Tx) error {
		_, err := tx.Get(addr)
		assert.ErrorIs(t, err, ErrAccountNotFound)
		require.NoError(t, tx.Create(addr, []byte("x")))
		data, err := tx.Get(addr)
		require.NoError(t, err)
		assert.Equal(t, "x", string(data))
		return nil
	}))
}

func TestEventLogOrder(t *testing.T) {
	s := newTestStorage(t)
	for _, payload := range []string{"e0", "e1", "e2"} {
		require.NoError(t, s.Update(func(tx *Tx) error {
			_, err := tx.Emit([]byte(payload))
			return err
		}))
	}

	all, err := s.Events(0, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	for i, ev := range all {
		assert.Equal(t, uint64(i), ev.Seq)
	}

	tail, err := s.Events(1, 1)
	require.NoError(t, err)
	require.Len(t, tail, 1)
	assert.Equal(t, "e1", string(tail[0].Data))

	st, err := s.Stats()
	require.NoError(t, err)
	assert.Equal(t, uint64(3), st.Events)
	assert.Equal(t, 0, st.Accounts)
}

func TestScan(t *testing.T) {
	s := newTestStorage(t)
	for _, name := range []string{"a", "b", "c"} {
		addr := ids.NewID([]byte(name))
		require.NoError(t, s.Update(func(tx *Tx) error { return tx.Create(addr, []byte(name)) }))
	}

	seen := map[string]bool{}
	require.NoError(t, s.Scan(func(addr ids.Pubkey, data []byte) bool {
		assert.Equal(t, ids.NewID(data), addr)
		seen[string(data)] = true
		return true
	}))
	assert.Len(t, seen, 3)

	count := 0
	require.NoError(t, s.Scan(func(ids.Pubkey, []byte) bool {
		count++
		return false
	}))
	assert.Equal(t, 1, count)
}

func TestConcurrentCreateSameAddress(t *testing.T) {
	s := newTestStorage(t)
	addr := ids.NewID([]byte("contended"))

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.Update(func(tx *Tx) error { return tx.Create(addr, []byte("v")) })
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, ErrAccountInUse)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestPing(t *testing.T) {
	s, err := NewMemStorage()
	require.NoError(t, err)
	assert.NoError(t, s.Ping())

	require.NoError(t, s.Close())
	assert.Error(t, s.Ping())
}
