package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"switchcontrol/errcode"
	"switchcontrol/types"
	"switchcontrol/x/logx"
)

var bucketChannels = []byte("channels")

// Store persists one JSON ChannelConfig per channel id in bbolt and keeps
// a validated in-memory copy.
type Store struct {
	db  *bolt.DB
	log *slog.Logger

	mu       sync.RWMutex
	channels map[types.ChannelID]types.ChannelConfig
}

// OpenStore opens (or creates) the database at path. Every channel in the
// capability table ends up with a valid config: missing or invalid entries
// are replaced by the Disabled default and written back.
func OpenStore(path string, log *slog.Logger) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}
	s := &Store{
		db:       db,
		log:      logx.OrDiscard(log).With("component", "store"),
		channels: make(map[types.ChannelID]types.ChannelConfig),
	}
	if err := s.load(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketChannels)
		if err != nil {
			return fmt.Errorf("create bucket: %w", err)
		}
		for _, id := range types.ChannelIDs() {
			cfg, err := decodeChannel(id, b.Get([]byte(id)))
			if err != nil {
				s.log.Warn("replacing stored channel config with default", "channel", id, "err", err)
				cfg = types.DefaultChannelConfig(id)
				raw, err := json.Marshal(cfg)
				if err != nil {
					return err
				}
				if err := b.Put([]byte(id), raw); err != nil {
					return fmt.Errorf("write default %s: %w", id, err)
				}
			}
			s.channels[id] = cfg
		}
		return nil
	})
}

func decodeChannel(id types.ChannelID, raw []byte) (types.ChannelConfig, error) {
	var cfg types.ChannelConfig
	if raw == nil {
		return cfg, errcode.NotFound
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return cfg, errcode.Wrap(errcode.InvalidPayload, "store.decode", err)
	}
	if cfg.Channel != id {
		return cfg, errcode.New(errcode.InvalidPayload, "store.decode", fmt.Sprintf("stored under %s but names %s", id, cfg.Channel))
	}
	return cfg, cfg.Validate()
}

// HasConfig reports whether id is a known channel.
func (s *Store) HasConfig(id types.ChannelID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.channels[id]
	return ok
}

func (s *Store) GetConfig(id types.ChannelID) (types.ChannelConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.channels[id]
	if !ok {
		return cfg, errcode.New(errcode.NotFound, "store.get", fmt.Sprintf("no config for channel %q", id))
	}
	return cfg, nil
}

// SetConfig validates and persists cfg.
func (s *Store) SetConfig(cfg types.ChannelConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return errcode.Wrap(errcode.InvalidPayload, "store.set", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketChannels).Put([]byte(cfg.Channel), raw)
	})
	if err != nil {
		return fmt.Errorf("store %s: %w", cfg.Channel, err)
	}
	s.channels[cfg.Channel] = cfg
	s.log.Info("channel config stored", "channel", cfg.Channel, "type", cfg.Type)
	return nil
}

// Channels returns every config in canonical channel order.
func (s *Store) Channels() []types.ChannelConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.ChannelConfig, 0, len(s.channels))
	for _, id := range types.ChannelIDs() {
		if cfg, ok := s.channels[id]; ok {
			out = append(out, cfg)
		}
	}
	return out
}

// Size is the database size in bytes.
func (s *Store) Size() int64 {
	var n int64
	_ = s.db.View(func(tx *bolt.Tx) error {
		n = tx.Size()
		return nil
	})
	return n
}

func (s *Store) Close() error { return s.db.Close() }
