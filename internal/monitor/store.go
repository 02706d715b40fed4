package monitor

import (
	"context"
	"sort"
	"sync"

	"github.com/mixelka/inboxrelay/pkg/models"
)

// record is the state of one monitored user. token and lastSeen are
// guarded by store.mu; the rest is immutable after creation.
type record struct {
	userID  int64
	address string
	secret  string

	token    string
	lastSeen int

	ctx    context.Context
	cancel context.CancelFunc
	force  chan chan struct{}
	done   chan struct{}
}

// credentials is what a tick reads at its start
type credentials struct {
	address  string
	token    string
	secret   string
	lastSeen int
}

// store is the only shared mutable state of the scheduler. Writers pass the
// record they borrowed; writes for a record that was stopped or replaced
// are dropped, so an in-flight tick never resurrects or clobbers state.
type store struct {
	mu      sync.RWMutex
	records map[int64]*record
}

func newStore() *store {
	return &store{records: make(map[int64]*record)}
}

// put registers rec, cancelling whatever was registered for the same user
func (s *store) put(rec *record) (replaced bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, exists := s.records[rec.userID]; exists {
		prev.cancel()
		replaced = true
	}
	s.records[rec.userID] = rec
	return replaced
}

func (s *store) get(userID int64) (*record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[userID]
	return rec, ok
}

// remove cancels and deletes the user's record, if any
func (s *store) remove(userID int64) *record {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.records[userID]
	if !exists {
		return nil
	}
	rec.cancel()
	delete(s.records, userID)
	return rec
}

// drain cancels and deletes every record
func (s *store) drain() []*record {
	s.mu.Lock()
	defer s.mu.Unlock()

	recs := make([]*record, 0, len(s.records))
	for id, rec := range s.records {
		rec.cancel()
		delete(s.records, id)
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].userID < recs[j].userID })
	return recs
}

// live reports whether rec is still the registered, uncancelled record.
// Callers hold s.mu.
func (s *store) live(rec *record) bool {
	return s.records[rec.userID] == rec && rec.ctx.Err() == nil
}

func (s *store) credentials(rec *record) (credentials, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.live(rec) {
		return credentials{}, false
	}
	return credentials{
		address:  rec.address,
		token:    rec.token,
		secret:   rec.secret,
		lastSeen: rec.lastSeen,
	}, true
}

func (s *store) replaceToken(rec *record, token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.live(rec) {
		return false
	}
	rec.token = token
	return true
}

// advance raises lastSeen to count; it never lowers it
func (s *store) advance(rec *record, count int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.live(rec) {
		return false
	}
	if count > rec.lastSeen {
		rec.lastSeen = count
	}
	return true
}

func (s *store) status(userID int64) models.MonitorStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, exists := s.records[userID]
	if !exists {
		return models.MonitorStatus{}
	}
	return models.MonitorStatus{
		Active:       true,
		MailAddress:  rec.address,
		MessageCount: rec.lastSeen,
	}
}

func (s *store) snapshot() []models.MonitorSummary {
	s.mu.RLock()
	list := make([]models.MonitorSummary, 0, len(s.records))
	for id, rec := range s.records {
		list = append(list, models.MonitorSummary{
			UserID:      id,
			MailAddress: rec.address,
			Active:      rec.ctx.Err() == nil,
		})
	}
	s.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool { return list[i].UserID < list[j].UserID })
	return list
}

func (s *store) size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
