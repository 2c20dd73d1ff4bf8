package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// HistoryEvent is one audit entry. Events are values and are never edited
// after they are appended.
type HistoryEvent struct {
	ID        string        `json:"id"`
	JobID     string        `json:"jobId"`
	BatchID   string        `json:"batchId,omitempty"`
	Stage     Stage         `json:"stage,omitempty"`
	Action    HistoryAction `json:"action"`
	Timestamp time.Time     `json:"timestamp"`
	Actor     string        `json:"actor"`
	Detail    string        `json:"detail,omitempty"`
}

// History is an append-only list of events. The only way to add to it is
// Ledger.Append; readers get copies.
type History struct {
	events []HistoryEvent
}

// Len returns the number of recorded events.
func (h History) Len() int { return len(h.events) }

// Events returns the events in insertion order.
func (h History) Events() []HistoryEvent {
	out := make([]HistoryEvent, len(h.events))
	copy(out, h.events)
	return out
}

// Last returns the most recently appended event.
func (h History) Last() (HistoryEvent, bool) {
	if len(h.events) == 0 {
		return HistoryEvent{}, false
	}
	return h.events[len(h.events)-1], true
}

// Extends reports whether h starts with every event of prev, in order.
func (h History) Extends(prev History) bool {
	if len(h.events) < len(prev.events) {
		return false
	}
	for i, ev := range prev.events {
		if !sameEvent(h.events[i], ev) {
			return false
		}
	}
	return true
}

func (h History) validate() error {
	for _, ev := range h.events {
		if !ev.Action.IsValid() {
			return fmt.Errorf("history event %q has action %q", ev.ID, ev.Action)
		}
	}
	return nil
}

func sameEvent(a, b HistoryEvent) bool {
	return a.ID == b.ID &&
		a.JobID == b.JobID &&
		a.BatchID == b.BatchID &&
		a.Stage == b.Stage &&
		a.Action == b.Action &&
		a.Timestamp.Equal(b.Timestamp) &&
		a.Actor == b.Actor &&
		a.Detail == b.Detail
}

func (h History) clone() History {
	if h.events == nil {
		return History{}
	}
	return History{events: append([]HistoryEvent(nil), h.events...)}
}

// MarshalJSON encodes the history as a JSON array.
func (h History) MarshalJSON() ([]byte, error) {
	if h.events == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(h.events)
}

// UnmarshalJSON restores a history from a JSON array.
func (h *History) UnmarshalJSON(data []byte) error {
	var events []HistoryEvent
	if err := json.Unmarshal(data, &events); err != nil {
		return err
	}
	h.events = events
	return nil
}

// Ledger appends audit events. It owns the clock and the id source used by
// the workflow so tests can pin both.
type Ledger struct {
	now   func() time.Time
	newID func() string
}

// NewLedger creates a ledger. Nil arguments fall back to the wall clock and
// random UUIDs.
func NewLedger(now func() time.Time, newID func() string) *Ledger {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	if newID == nil {
		newID = uuid.NewString
	}
	return &Ledger{now: now, newID: newID}
}

// Now returns the ledger's current time.
func (l *Ledger) Now() time.Time { return l.now() }

// NewID returns a fresh identifier.
func (l *Ledger) NewID() string { return l.newID() }

// Append validates ev, stamps its id and timestamp when missing, and adds it
// to h. Earlier events are never touched.
func (l *Ledger) Append(h *History, ev HistoryEvent) (HistoryEvent, error) {
	if err := validateEvent(ev); err != nil {
		return HistoryEvent{}, err
	}
	if ev.ID == "" {
		ev.ID = l.newID()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = l.now()
	}
	ev.Actor = strings.TrimSpace(ev.Actor)
	h.events = append(h.events, ev)
	return ev, nil
}

// Replay returns the events ordered by timestamp. Events with equal
// timestamps keep their insertion order.
func (l *Ledger) Replay(h History) []HistoryEvent {
	return sortEvents(h.Events())
}

// Timeline merges the job's own events with those of all its batches.
func (l *Ledger) Timeline(job *Job) []HistoryEvent {
	events := job.History.Events()
	for _, b := range job.Batches {
		events = append(events, b.History.events...)
	}
	return sortEvents(events)
}

func sortEvents(events []HistoryEvent) []HistoryEvent {
	sort.SliceStable(events, func(i, k int) bool {
		return events[i].Timestamp.Before(events[k].Timestamp)
	})
	return events
}

func validateEvent(ev HistoryEvent) error {
	if !ev.Action.IsValid() {
		return ErrInvalidHistoryEvent.Withf("history action %q is not valid", ev.Action)
	}
	if strings.TrimSpace(ev.Actor) == "" {
		return ErrInvalidHistoryEvent.Withf("history event %s requires an actor", ev.Action)
	}
	return nil
}

// requireActor fails early so an operation never mutates state and then
// discovers it cannot record the change.
func requireActor(actor string) error {
	if strings.TrimSpace(actor) == "" {
		return ErrInvalidHistoryEvent.Withf("an acting user is required")
	}
	return nil
}
