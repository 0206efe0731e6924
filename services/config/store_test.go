package config

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"

	"switchcontrol/errcode"
	"switchcontrol/types"
)

func openTestStore(t *testing.T, path string) *Store {
	t.Helper()
	s, err := OpenStore(path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func servoConfig(id types.ChannelID) types.ChannelConfig {
	sc := types.DefaultServoConfig()
	return types.ChannelConfig{Channel: id, Type: types.ChannelServo, Servo: &sc}
}

func TestStore_FreshDatabaseHasDisabledDefaults(t *testing.T) {
	s := openTestStore(t, filepath.Join(t.TempDir(), "ch.db"))

	all := s.Channels()
	require.Len(t, all, len(types.ChannelIDs()))
	for i, id := range types.ChannelIDs() {
		assert.Equal(t, types.DefaultChannelConfig(id), all[i])
		assert.True(t, s.HasConfig(id))
	}
	assert.False(t, s.HasConfig("C1"))
	assert.Positive(t, s.Size())
}

func TestStore_SetConfigPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ch.db")
	s, err := OpenStore(path, nil)
	require.NoError(t, err)

	want := servoConfig("A2")
	want.Servo.OverdrawSeconds = 0.5
	require.NoError(t, s.SetConfig(want))

	got, err := s.GetConfig("A2")
	require.NoError(t, err)
	assert.Equal(t, want, got)
	require.NoError(t, s.Close())

	reopened := openTestStore(t, path)
	got, err = reopened.GetConfig("A2")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestStore_SetConfigRejectsInvalid(t *testing.T) {
	s := openTestStore(t, filepath.Join(t.TempDir(), "ch.db"))

	err := s.SetConfig(servoConfig("B3"))
	assert.Equal(t, errcode.NoCapability, errcode.Of(err))

	err = s.SetConfig(types.ChannelConfig{Channel: "A1", Type: types.ChannelServo})
	assert.Equal(t, errcode.MissingServoConfig, errcode.Of(err))

	got, err := s.GetConfig("B3")
	require.NoError(t, err)
	assert.Equal(t, types.ChannelDisabled, got.Type)
}

func TestStore_GetUnknown(t *testing.T) {
	s := openTestStore(t, filepath.Join(t.TempDir(), "ch.db"))
	_, err := s.GetConfig("Z9")
	assert.Equal(t, errcode.NotFound, errcode.Of(err))
}

func TestStore_InvalidStoredEntriesAreReplaced(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ch.db")

	db, err := bolt.Open(path, 0o600, nil)
	require.NoError(t, err)
	mismatched, _ := json.Marshal(servoConfig("A2"))
	noCap, _ := json.Marshal(servoConfig("B5"))
	require.NoError(t, db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketChannels)
		if err != nil {
			return err
		}
		if err := b.Put([]byte("A1"), []byte("{not json")); err != nil {
			return err
		}
		if err := b.Put([]byte("A3"), mismatched); err != nil {
			return err
		}
		return b.Put([]byte("B5"), noCap)
	}))
	require.NoError(t, db.Close())

	s := openTestStore(t, path)
	for _, id := range []types.ChannelID{"A1", "A3", "B5"} {
		got, err := s.GetConfig(id)
		require.NoError(t, err)
		assert.Equal(t, types.DefaultChannelConfig(id), got, id)
	}
	require.NoError(t, s.Close())

	// defaults were written back
	db, err = bolt.Open(path, 0o600, nil)
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.View(func(tx *bolt.Tx) error {
		var cfg types.ChannelConfig
		require.NoError(t, json.Unmarshal(tx.Bucket(bucketChannels).Get([]byte("A1")), &cfg))
		assert.Equal(t, types.DefaultChannelConfig("A1"), cfg)
		return nil
	}))
}
