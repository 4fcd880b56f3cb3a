// internal/feed/watcher.go
package feed

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TableView is what an observer knows about one session from its public events.
type TableView struct {
	SessionID  uuid.UUID `json:"session_id"`
	Seats      int       `json:"seats"`
	ActiveSeat int       `json:"active_seat"`
	DiscardTop string    `json:"discard_top,omitempty"`
	LastEvent  string    `json:"last_event"`
	LastIndex  int       `json:"last_index"`
	LastSeen   time.Time `json:"last_seen"`
	Ended      bool      `json:"ended"`
}

// Watcher folds an event stream into per-session views and flags tables that have
// gone quiet for longer than the inactivity threshold.
type Watcher struct {
	inactivity time.Duration

	mu     sync.Mutex
	tables map[uuid.UUID]*TableView
}

func NewWatcher(inactivity time.Duration) *Watcher {
	return &Watcher{
		inactivity: inactivity,
		tables:     make(map[uuid.UUID]*TableView),
	}
}

// Apply records one event. Events older than the last one seen for the session are ignored.
func (w *Watcher) Apply(ev Event) {
	w.mu.Lock()
	defer w.mu.Unlock()

	t, ok := w.tables[ev.SessionID]
	if !ok {
		t = &TableView{SessionID: ev.SessionID, ActiveSeat: -1}
		w.tables[ev.SessionID] = t
	}
	if ev.Index <= t.LastIndex {
		return
	}
	t.LastIndex = ev.Index
	t.LastEvent = ev.Type
	t.LastSeen = time.UnixMilli(ev.Timestamp)

	switch ev.Type {
	case EventSeatJoined:
		t.Seats++
	case EventTurn:
		t.ActiveSeat = ev.Seat
	case EventDealt:
		t.DiscardTop, _ = ev.Payload["discard_top"].(string)
	case EventDraw:
		// only discard draws carry the new top; empty means the pile emptied
		if top, ok := ev.Payload["discard_top"]; ok {
			t.DiscardTop, _ = top.(string)
		}
	case EventDrop:
		t.DiscardTop, _ = ev.Payload["card"].(string)
	case EventWin, EventAbort:
		t.Ended = true
		t.ActiveSeat = -1
	}
}

// Tables returns every tracked session, most recently active first.
func (w *Watcher) Tables() []TableView {
	w.mu.Lock()
	out := make([]TableView, 0, len(w.tables))
	for _, t := range w.tables {
		out = append(out, *t)
	}
	w.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].LastSeen.After(out[j].LastSeen)
	})
	return out
}

// Idle returns the sessions still in progress whose last event is older than the
// inactivity threshold at now.
func (w *Watcher) Idle(now time.Time) []TableView {
	var idle []TableView
	for _, t := range w.Tables() {
		if !t.Ended && now.Sub(t.LastSeen) > w.inactivity {
			idle = append(idle, t)
		}
	}
	return idle
}

// Forget drops ended sessions so a long-running watcher does not grow without bound.
func (w *Watcher) Forget() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for id, t := range w.tables {
		if t.Ended {
			delete(w.tables, id)
			n++
		}
	}
	return n
}
