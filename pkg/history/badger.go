package history

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/haivivi/emochat/pkg/chat"
)

// Badger is a Store backed by BadgerDB v4.
type Badger struct {
	db *badger.DB
}

// BadgerOptions configures the BadgerDB store.
type BadgerOptions struct {
	// Dir is the directory for BadgerDB data files.
	// Required unless InMemory is set.
	Dir string

	// InMemory runs BadgerDB without disk persistence.
	InMemory bool

	// Logger receives badger warnings and errors. Nil uses slog.Default().
	Logger *slog.Logger
}

// OpenBadger opens (or creates) a BadgerDB-backed Store.
func OpenBadger(opts BadgerOptions) (*Badger, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("history: BadgerOptions.Dir is required for on-disk mode")
	}
	dbOpts := badger.DefaultOptions(opts.Dir)
	if opts.InMemory {
		dbOpts = badger.DefaultOptions("").WithInMemory(true)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	dbOpts = dbOpts.WithLogger(badgerLogger{logger.With("component", "history.badger")})
	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("history: open badger: %w", err)
	}
	return &Badger{db: db}, nil
}

func (b *Badger) Append(_ context.Context, userID string, turn chat.Turn) error {
	key, value, err := encode(userID, turn)
	if err != nil {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
}

func (b *Badger) Recent(ctx context.Context, userID string, limit int) ([]chat.Turn, error) {
	if err := checkUser(userID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, nil
	}
	prefix := userPrefix(userID)

	var turns []chat.Turn
	err := b.db.View(func(txn *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.Reverse = true
		iterOpts.Prefix = prefix
		iterOpts.PrefetchSize = limit
		it := txn.NewIterator(iterOpts)
		defer it.Close()

		// Reverse seek lands on the last key <= prefix+0xff.
		for it.Seek(append(bytes.Clone(prefix), 0xff)); it.ValidForPrefix(prefix) && len(turns) < limit; it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			t, err := decodeItem(it.Item())
			if err != nil {
				return err
			}
			turns = append(turns, t)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.Reverse(turns)
	return turns, nil
}

func (b *Badger) EmotionStats(ctx context.Context, userID string, day time.Time) (map[string]int, error) {
	if err := checkUser(userID); err != nil {
		return nil, err
	}
	start, end := dayRange(userID, day)
	stats := newStats()

	err := b.db.View(func(txn *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.Prefix = userPrefix(userID)
		it := txn.NewIterator(iterOpts)
		defer it.Close()

		for it.Seek(start); it.Valid() && bytes.Compare(it.Item().Key(), end) < 0; it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			t, err := decodeItem(it.Item())
			if err != nil {
				return err
			}
			count(stats, t)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

func (b *Badger) Close() error {
	return b.db.Close()
}

func decodeItem(item *badger.Item) (chat.Turn, error) {
	var t chat.Turn
	err := item.Value(func(val []byte) error {
		var err error
		t, err = decode(val)
		return err
	})
	return t, err
}

// badgerLogger forwards badger warnings and errors to slog and drops its
// info and debug chatter.
type badgerLogger struct {
	l *slog.Logger
}

func (bl badgerLogger) Errorf(f string, v ...any) { bl.l.Error(fmt.Sprintf(f, v...)) }
func (bl badgerLogger) Warningf(f string, v ...any) { bl.l.Warn(fmt.Sprintf(f, v...)) }
func (badgerLogger) Infof(string, ...any)  {}
func (badgerLogger) Debugf(string, ...any) {}
