// Trailguard - Tourist Safety Event Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trailguard

package eventstore

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/trailguard/internal/logging"
	"github.com/tomtom215/trailguard/internal/models"
)

// keyPrefix is the namespace all log entries live under. The suffix is the
// big-endian append sequence, so key order equals insertion order.
var keyPrefix = []byte("events/")

// persister is the durable side of the log.
type persister interface {
	load() ([]record, error)
	write(rec record, evicted []uint64) error
	clear() error
	close() error
}

type badgerPersister struct {
	db           *badger.DB
	retention    time.Duration
	closeTimeout time.Duration
}

func openBadger(cfg *Config) (*badgerPersister, error) {
	opts := badger.DefaultOptions(cfg.Path)
	opts.SyncWrites = cfg.SyncWrites
	opts.MemTableSize = cfg.MemTableSize
	opts.ValueLogFileSize = cfg.ValueLogFileSize
	opts.NumCompactors = cfg.NumCompactors
	if cfg.Compression {
		opts.Compression = options.Snappy
	}
	opts.Logger = newBadgerLogger()

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}
	return &badgerPersister{db: db, retention: cfg.Retention, closeTimeout: cfg.CloseTimeout}, nil
}

func seqKey(seq uint64) []byte {
	key := make([]byte, len(keyPrefix)+8)
	copy(key, keyPrefix)
	binary.BigEndian.PutUint64(key[len(keyPrefix):], seq)
	return key
}

func (p *badgerPersister) load() ([]record, error) {
	var out []record
	err := p.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(keyPrefix); it.ValidForPrefix(keyPrefix); it.Next() {
			item := it.Item()
			key := item.Key()
			if len(key) != len(keyPrefix)+8 {
				continue
			}
			seq := binary.BigEndian.Uint64(key[len(keyPrefix):])

			var entry models.Entry
			err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			})
			if err != nil {
				logging.Warn().Err(err).Uint64("seq", seq).Msg("Skipping undecodable event log entry")
				continue
			}
			if err := entry.Validate(); err != nil {
				logging.Warn().Err(err).Uint64("seq", seq).Msg("Skipping invalid event log entry")
				continue
			}
			out = append(out, record{seq: seq, entry: entry})
		}
		return nil
	})
	return out, err
}

func (p *badgerPersister) write(rec record, evicted []uint64) error {
	data, err := json.Marshal(rec.entry)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}
	return p.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry(seqKey(rec.seq), data)
		if p.retention > 0 {
			e = e.WithTTL(p.retention)
		}
		if err := txn.SetEntry(e); err != nil {
			return err
		}
		for _, seq := range evicted {
			if err := txn.Delete(seqKey(seq)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (p *badgerPersister) clear() error {
	return p.db.DropPrefix(keyPrefix)
}

// runGC runs value log GC until there is nothing left to rewrite.
func (p *badgerPersister) runGC(ratio float64) (int, error) {
	rounds := 0
	for {
		err := p.db.RunValueLogGC(ratio)
		if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrRejected) {
			return rounds, nil
		}
		if err != nil {
			return rounds, err
		}
		rounds++
	}
}

func (p *badgerPersister) close() error {
	timeout := p.closeTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	done := make(chan error, 1)
	go func() {
		done <- p.db.Close()
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("close BadgerDB: %w", err)
		}
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("badgerdb close timeout after %v", timeout)
	}
}

// badgerLogger routes BadgerDB's own logging into zerolog. Badger is chatty
// at info level, so info is demoted to debug.
type badgerLogger struct {
	log zerolog.Logger
}

func newBadgerLogger() *badgerLogger {
	return &badgerLogger{log: logging.WithComponent("badger")}
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.log.Error().Msgf(format, args...)
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.log.Warn().Msgf(format, args...)
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.log.Debug().Msgf(format, args...)
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.log.Trace().Msgf(format, args...)
}
