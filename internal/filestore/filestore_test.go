package filestore_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freightdesk/shipledger/internal/filestore"
)

func Test_SaveAndRead_RoundTrip(t *testing.T) {
	store, err := filestore.NewStore(t.TempDir())
	require.NoError(t, err)

	storedName, err := store.Save([]byte("pdf bytes"), "bol.pdf")
	require.NoError(t, err)
	assert.Contains(t, storedName, "bol.pdf")

	data, err := store.Read(storedName)
	require.NoError(t, err)
	assert.Equal(t, []byte("pdf bytes"), data)
}

func Test_Save_SameNameNeverCollides(t *testing.T) {
	store, err := filestore.NewStore(t.TempDir())
	require.NoError(t, err)

	first, err := store.Save([]byte("one"), "bol.pdf")
	require.NoError(t, err)
	second, err := store.Save([]byte("two"), "bol.pdf")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func Test_Save_RejectsUnsupportedExtensions(t *testing.T) {
	store, err := filestore.NewStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Save([]byte("#!/bin/sh"), "script.sh")

	assert.ErrorIs(t, err, filestore.ErrUnsupportedType)
}

func Test_Save_RejectsTraversalNames(t *testing.T) {
	store, err := filestore.NewStore(t.TempDir())
	require.NoError(t, err)

	for _, name := range []string{"..", ".", ""} {
		_, err = store.Save([]byte("x"), name)
		assert.Error(t, err, "expected %q to be rejected", name)
	}
}

func Test_Read_RejectsPathsOutsideTheStore(t *testing.T) {
	store, err := filestore.NewStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Read("../secret.pdf")

	assert.ErrorIs(t, err, filestore.ErrInvalidName)
}

func Test_Read_MissingFileIsNotExist(t *testing.T) {
	store, err := filestore.NewStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Read("does-not-exist.pdf")

	assert.ErrorIs(t, err, os.ErrNotExist)
}
