package ledger

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPutAndGet(t *testing.T) {
	s := openTest(t)

	rec := &Record{
		Hash:    strings.Repeat("ab", 32),
		Nonce:   "1a2b3c4d",
		Status:  "AUTHENTICATED_BY_BM1387",
		Offsets: []int{0, 1616},
	}
	require.NoError(t, s.Put(rec))

	_, err := uuid.Parse(rec.ID)
	require.NoError(t, err)
	assert.False(t, rec.CreatedAt.IsZero())

	got, err := s.Get(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.Nonce, got.Nonce)
	assert.Equal(t, rec.Offsets, got.Offsets)
	assert.True(t, rec.CreatedAt.Equal(got.CreatedAt))

	byPrefix, err := s.Get(rec.ID[:8])
	require.NoError(t, err)
	assert.Equal(t, rec.ID, byPrefix.ID)

	_, err = s.Get("does-not-exist")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListAndFind(t *testing.T) {
	s := openTest(t)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	hashA := strings.Repeat("aa", 32)
	hashB := strings.Repeat("bb", 32)
	for i, h := range []string{hashA, hashB, hashA} {
		require.NoError(t, s.Put(&Record{
			Hash:      h,
			Nonce:     strings.Repeat("0", 7) + string(rune('1'+i)),
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}))
	}

	all, err := s.List(0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "00000003", all[0].Nonce, "newest first")
	assert.Equal(t, "00000001", all[2].Nonce)

	two, err := s.List(2)
	require.NoError(t, err)
	assert.Len(t, two, 2)

	found, err := s.FindByHash(strings.ToUpper(hashA))
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, "00000003", found[0].Nonce)

	none, err := s.FindByHash(strings.Repeat("cc", 32))
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestDelete(t *testing.T) {
	s := openTest(t)

	rec := &Record{Hash: strings.Repeat("dd", 32)}
	require.NoError(t, s.Put(rec))
	require.NoError(t, s.Delete(rec.ID))

	_, err := s.Get(rec.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	found, err := s.FindByHash(rec.Hash)
	require.NoError(t, err)
	assert.Empty(t, found)

	assert.ErrorIs(t, s.Delete(rec.ID), ErrNotFound)
}

func TestOpenOnDisk(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(dir)
	require.NoError(t, err)
	rec := &Record{Hash: strings.Repeat("ee", 32), Source: "simulated"}
	require.NoError(t, s.Put(rec))
	require.NoError(t, s.Close())

	s, err = Open(dir)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Get(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "simulated", got.Source)
}
