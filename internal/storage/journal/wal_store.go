// Package journal persists committed ledger events in a write-ahead log so the
// activity of the wallet can be replayed after a restart.
package journal

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/carteira/internal/domain"
	"github.com/vadiminshakov/gowal"
)

const (
	DefaultDir     = "./wal/ledger"
	segmentLimit   = 1000
	maxSegments    = 100
	eventKeyPrefix = "ledger_event_"
)

// WALStore appends ledger events to a gowal WAL.
type WALStore struct {
	wal *gowal.Wal
	mu  sync.RWMutex
}

// NewWALStore initializes a WAL-backed journal under dir.
func NewWALStore(dir string) (*WALStore, error) {
	if dir == "" {
		dir = DefaultDir
	}

	cfg := gowal.Config{
		Dir:              dir,
		Prefix:           "ledger_",
		SegmentThreshold: segmentLimit,
		MaxSegments:      maxSegments,
		IsInSyncDiskMode: true,
	}

	wal, err := gowal.NewWAL(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "init ledger journal WAL")
	}

	return &WALStore{wal: wal}, nil
}

// Save appends event, stamping it with its journal sequence number.
func (s *WALStore) Save(event domain.LedgerEvent) error {
	if s == nil || s.wal == nil {
		return errors.New("ledger journal is not initialized")
	}
	if event.ID == "" {
		return fmt.Errorf("ledger event id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	nextIndex := s.wal.CurrentIndex() + 1
	event.Seq = nextIndex

	payload, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "marshal ledger event")
	}

	return s.wal.Write(nextIndex, eventKeyPrefix+string(event.Kind), payload)
}

// EventsAfter returns every journaled event with a sequence number above seq.
func (s *WALStore) EventsAfter(seq uint64) ([]domain.LedgerEventRecord, error) {
	if s == nil || s.wal == nil {
		return nil, errors.New("ledger journal is not initialized")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.wal.CurrentIndex() <= seq {
		return nil, nil
	}

	var records []domain.LedgerEventRecord
	for msg := range s.wal.Iterator() {
		if !strings.HasPrefix(msg.Key, eventKeyPrefix) {
			continue
		}
		var event domain.LedgerEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			return nil, errors.Wrap(err, "decode ledger event")
		}
		if event.Seq <= seq {
			continue
		}
		records = append(records, domain.LedgerEventRecord{Index: event.Seq, Event: event})
	}

	return records, nil
}

// CurrentIndex returns the latest journal sequence number.
func (s *WALStore) CurrentIndex() uint64 {
	if s == nil || s.wal == nil {
		return 0
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.wal.CurrentIndex()
}

// Close closes the underlying WAL.
func (s *WALStore) Close() error {
	if s == nil || s.wal == nil {
		return errors.New("ledger journal is not initialized")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wal.Close()
}
