package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"mcot/tree"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var ErrNotFound = errors.New("checkpoint not found")

const prefix = "run/"

type Config struct {
	// Dir holds the database files. Ignored when InMemory is set.
	Dir        string
	InMemory   bool
	SyncWrites bool
	// Quiet disables badger's own logging.
	Quiet bool
}

// Entry describes one stored checkpoint.
type Entry struct {
	RunID string
	Depth int
	Bytes int64
}

// Store keeps compressed tree records in badger, one per run and depth milestone.
type Store struct {
	db *badger.DB
}

type badgerLogger struct{}

func (badgerLogger) Errorf(format string, args ...interface{}) {
	log.Error().Str("component", "badger").Msgf(strings.TrimSpace(format), args...)
}

func (badgerLogger) Warningf(format string, args ...interface{}) {
	log.Warn().Str("component", "badger").Msgf(strings.TrimSpace(format), args...)
}

func (badgerLogger) Infof(format string, args ...interface{}) {
	log.Debug().Str("component", "badger").Msgf(strings.TrimSpace(format), args...)
}

func (badgerLogger) Debugf(format string, args ...interface{}) {
	log.Trace().Str("component", "badger").Msgf(strings.TrimSpace(format), args...)
}

func Open(cfg Config) (*Store, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Dir == "" {
			return nil, errors.New("checkpoint directory is required")
		}
		if err := os.MkdirAll(cfg.Dir, 0750); err != nil {
			return nil, fmt.Errorf("create checkpoint directory %s: %w", cfg.Dir, err)
		}
		opts = badger.DefaultOptions(cfg.Dir)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Quiet {
		opts = opts.WithLogger(nil)
	} else {
		opts = opts.WithLogger(badgerLogger{})
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint store: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func key(runID string, depth int) []byte {
	return []byte(fmt.Sprintf("%s%s/depth/%04d", prefix, runID, depth))
}

func runPrefix(runID string) []byte {
	return []byte(prefix + runID + "/depth/")
}

func checkRunID(runID string) error {
	if _, err := uuid.Parse(runID); err != nil {
		return fmt.Errorf("run id %q: %w", runID, err)
	}
	return nil
}

// Save stores the tree under the run and depth, replacing an earlier checkpoint at the same depth.
func (s *Store) Save(ctx context.Context, runID string, depth int, t *tree.Tree) error {
	if err := checkRunID(runID); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := t.MarshalBinary()
	if err != nil {
		return err
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(runID, depth), data)
	})
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	log.Debug().Str("run", runID).Msgf("saved checkpoint at depth %d (%d bytes, %d nodes)", depth, len(data), t.Size())
	return nil
}

// Load restores the tree saved at the given depth. Options not stored in the record, such as
// memory tiers, are applied to the restored tree.
func (s *Store) Load(runID string, depth int, options ...tree.Option) (*tree.Tree, error) {
	if err := checkRunID(runID); err != nil {
		return nil, err
	}
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(runID, depth))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("run %s depth %d: %w", runID, depth, ErrNotFound)
		}
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return tree.Unmarshal(data, options...)
}

// Latest restores the deepest checkpoint of a run.
func (s *Store) Latest(runID string, options ...tree.Option) (*tree.Tree, int, error) {
	entries, err := s.List(runID)
	if err != nil {
		return nil, 0, err
	}
	if len(entries) == 0 {
		return nil, 0, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	depth := entries[len(entries)-1].Depth
	t, err := s.Load(runID, depth, options...)
	return t, depth, err
}

// List returns the checkpoints of a run in increasing depth.
func (s *Store) List(runID string) ([]Entry, error) {
	if err := checkRunID(runID); err != nil {
		return nil, err
	}
	entries := []Entry{}
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = runPrefix(runID)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			id, depth, err := parseKey(item.Key())
			if err != nil {
				return err
			}
			entries = append(entries, Entry{RunID: id, Depth: depth, Bytes: item.ValueSize()})
		}
		return nil
	})
	return entries, err
}

// Runs returns the ids of every run with at least one checkpoint.
func (s *Store) Runs() ([]string, error) {
	runs := []string{}
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			id, _, err := parseKey(it.Item().Key())
			if err != nil {
				return err
			}
			if len(runs) == 0 || runs[len(runs)-1] != id {
				runs = append(runs, id)
			}
		}
		return nil
	})
	return runs, err
}

func parseKey(k []byte) (string, int, error) {
	parts := strings.Split(strings.TrimPrefix(string(k), prefix), "/")
	if len(parts) != 3 || parts[1] != "depth" {
		return "", 0, fmt.Errorf("malformed checkpoint key %q", k)
	}
	depth, err := strconv.Atoi(parts[2])
	if err != nil {
		return "", 0, fmt.Errorf("malformed checkpoint key %q: %w", k, err)
	}
	return parts[0], depth, nil
}
