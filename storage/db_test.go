package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemDBPutGetHas(t *testing.T) {
	db := NewMemDB()
	defer db.Close()

	_, err := db.Get([]byte("missing"))
	require.Error(t, err)

	ok, err := db.Has([]byte("missing"))
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, db.Put([]byte("k"), []byte("v1")))
	value, err := db.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("v1"), value)

	require.NoError(t, db.Put([]byte("k"), []byte("v2")))
	value, err = db.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("v2"), value)

	ok, err = db.Has([]byte("k"))
	require.NoError(t, err)
	require.True(t, ok)
}

func TestMemDBCopiesValues(t *testing.T) {
	db := NewMemDB()
	defer db.Close()

	original := []byte("value")
	require.NoError(t, db.Put([]byte("k"), original))
	original[0] = 'X'

	stored, err := db.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("value"), stored)

	stored[0] = 'Y'
	again, err := db.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("value"), again)
}

func TestLevelDBRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db")
	db, err := NewLevelDB(path)
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Put([]byte("k"), []byte("v")))
	value, err := db.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("v"), value)

	ok, err := db.Has([]byte("k"))
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = db.Has([]byte("missing"))
	require.NoError(t, err)
	require.False(t, ok)
}
