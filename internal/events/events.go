// Package events implements the append-only event feed consumed by
// off-chain observers. Every state-changing operation in the engine emits
// exactly one event after its state changes commit; events are
// sequence-numbered, persisted, and mirrored to the structured log.
package events

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	klog "github.com/monte1s/tokengate/internal/log"
	"github.com/monte1s/tokengate/internal/storage"
	"github.com/rs/zerolog"
)

// Type identifies a kind of emitted event.
type Type string

// Event types emitted by the engine.
const (
	TypeRegistrationSet    Type = "registration_set"
	TypeRestrictionRemoved Type = "transfer_restriction_removed"
	TypeRoleGranted        Type = "role_granted"
	TypeRoleRevoked        Type = "role_revoked"
	TypeSaleStarted        Type = "sale_started"
	TypeSalePaused         Type = "sale_paused"
	TypePurchase           Type = "tokens_purchased"
	TypeTreasuryTransfer   Type = "treasury_transfer"
	TypeTreasuryReclaim    Type = "treasury_reclaim"
	TypeReclaimBounced     Type = "reclaim_bounced"
	TypeReclaimFailed      Type = "reclaim_failed"
	TypeParamChanged       Type = "param_changed"
)

// Event is a single feed entry.
type Event struct {
	Seq   uint64            `json:"seq"`
	Time  time.Time         `json:"time"`
	Type  Type              `json:"type"`
	Attrs map[string]string `json:"attrs,omitempty"`
}

// Emitter is the write side of the feed. Components hold an Emitter so
// tests can swap in a recording fake.
type Emitter interface {
	Emit(t Type, attrs map[string]string)
}

var prefixEvent = []byte("e/") // e/<seq be8> -> Event JSON

// Feed persists events and replays them in sequence order.
type Feed struct {
	mu      sync.Mutex
	db      storage.DB
	nextSeq uint64
	logger  zerolog.Logger
}

// NewFeed creates an event feed over db, resuming the sequence counter
// from previously persisted events.
func NewFeed(db storage.DB) (*Feed, error) {
	f := &Feed{db: db, logger: klog.Events}

	// Resume after the highest persisted sequence number.
	err := db.ForEach(prefixEvent, func(key, _ []byte) error {
		if len(key) == len(prefixEvent)+8 {
			seq := binary.BigEndian.Uint64(key[len(prefixEvent):])
			if seq >= f.nextSeq {
				f.nextSeq = seq + 1
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan event feed: %w", err)
	}
	return f, nil
}

// Emit appends an event to the feed. Persistence failures are logged but
// do not fail the operation that emitted the event: by the time Emit runs
// the operation's state changes have already committed. A sequence number
// is only consumed once its event is persisted, so the feed has no gaps
// and Len always matches the persisted count.
func (f *Feed) Emit(t Type, attrs map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	seq := f.nextSeq
	e := Event{Seq: seq, Time: time.Now().UTC(), Type: t, Attrs: attrs}
	data, err := json.Marshal(&e)
	if err != nil {
		f.logger.Error().Err(err).Str("type", string(t)).Msg("marshal event")
		return
	}
	if err := f.db.Put(eventKey(seq), data); err != nil {
		f.logger.Error().Err(err).Str("type", string(t)).Msg("persist event")
		return
	}
	f.nextSeq = seq + 1

	ev := f.logger.Info().Uint64("seq", seq).Str("type", string(t))
	for k, v := range attrs {
		ev = ev.Str(k, v)
	}
	ev.Msg("event")
}

// Replay invokes fn for every persisted event with Seq >= from, in
// sequence order. Return a non-nil error from fn to stop early.
func (f *Feed) Replay(from uint64, fn func(*Event) error) error {
	return f.db.ForEach(prefixEvent, func(key, value []byte) error {
		if len(key) != len(prefixEvent)+8 {
			return nil // Malformed key, skip.
		}
		if binary.BigEndian.Uint64(key[len(prefixEvent):]) < from {
			return nil
		}
		var e Event
		if err := json.Unmarshal(value, &e); err != nil {
			return nil // Skip corrupt entries.
		}
		return fn(&e)
	})
}

// Len returns the number of persisted events.
func (f *Feed) Len() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nextSeq
}

func eventKey(seq uint64) []byte {
	key := make([]byte, len(prefixEvent)+8)
	copy(key, prefixEvent)
	binary.BigEndian.PutUint64(key[len(prefixEvent):], seq)
	return key
}
