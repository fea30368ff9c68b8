package convert

import (
	"sync"

	"github.com/tamkeen-edu/tamkeen/internal/model"
)

// EventKind names a step in a conversion's life.
type EventKind string

const (
	EventStarted   EventKind = "started"
	EventCompleted EventKind = "completed"
	EventStopped   EventKind = "stopped"
	EventFailed    EventKind = "failed"
)

// Event is published to a surface's subscribers as conversions progress.
type Event struct {
	Surface string                  `json:"surface"`
	Token   uint64                  `json:"token"`
	Kind    EventKind               `json:"kind"`
	Profile model.Profile           `json:"profile"`
	Status  model.AudioStatus       `json:"status,omitempty"`
	Err     model.Kind              `json:"error,omitempty"`
	Result  *model.ConversionResult `json:"result,omitempty"`
}

const subscriberBuffer = 16

// hub fans events out to per-surface subscribers. Slow subscribers lose
// events rather than block the dispatcher.
type hub struct {
	mu   sync.Mutex
	subs map[string]map[chan Event]struct{}
}

func newHub() *hub {
	return &hub{subs: make(map[string]map[chan Event]struct{})}
}

func (h *hub) subscribe(surface string) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)
	h.mu.Lock()
	if h.subs[surface] == nil {
		h.subs[surface] = make(map[chan Event]struct{})
	}
	h.subs[surface][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs[surface], ch)
			if len(h.subs[surface]) == 0 {
				delete(h.subs, surface)
			}
			close(ch)
		})
	}
}

func (h *hub) publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[ev.Surface] {
		select {
		case ch <- ev:
		default:
		}
	}
}
