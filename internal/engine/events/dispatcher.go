package events

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// Payload is the event body handed to local listeners.
type Payload map[string]any

// Listener handles one dispatched event. A returned error is logged and
// otherwise ignored.
type Listener func(Payload) error

type subscription struct {
	listener Listener
	filter   string
}

// Dispatcher is a same-process publish/subscribe hub. Delivery is
// synchronous, in registration order, best effort.
type Dispatcher struct {
	mu   sync.RWMutex
	subs map[string][]subscription
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{subs: make(map[string][]subscription)}
}

// Subscribe registers l for event. A non-empty filter restricts l to payloads
// whose "name" field equals it.
func (d *Dispatcher) Subscribe(event string, l Listener, filter string) {
	if l == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subs[event] = append(d.subs[event], subscription{listener: l, filter: filter})
}

// Dispatch invokes the listeners of event and returns how many were invoked.
// Listener failures never reach the caller.
func (d *Dispatcher) Dispatch(event string, payload Payload) int {
	d.mu.RLock()
	subs := make([]subscription, len(d.subs[event]))
	copy(subs, d.subs[event])
	d.mu.RUnlock()

	name, _ := payload["name"].(string)

	invoked := 0
	for i, s := range subs {
		if s.filter != "" && s.filter != name {
			continue
		}
		invoked++
		if err := invoke(s.listener, payload); err != nil {
			log.Error().Err(err).Str("event", event).Int("listener", i).Msg("Event listener failed")
		}
	}
	return invoked
}

func invoke(l Listener, payload Payload) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("listener panicked: %v", r)
		}
	}()
	return l(payload)
}
