// Package events implements the in-process event dispatcher the
// Repository Facade fires around every mutating operation (SPEC_FULL
// §4.1): a cancelable pre-event and an informational post-event, each
// firing its registered handlers in registration order. Grounded on the
// teacher's internal/daemon event-loop's plain ordered-handler-list
// idiom (no generic pub/sub library), generalized from daemon lifecycle
// events to repository operation events.
package events

import "github.com/untoldecay/jjg/internal/jjgerr"

// Event describes one operation about to run or having just run.
type Event struct {
	Name    string
	Payload any
}

// PreHandler observes an operation before it mutates state. Returning a
// non-nil error cancels the operation with KindEventCancelled.
type PreHandler func(Event) error

// PostHandler observes an operation's outcome. It cannot cancel
// anything; the operation has already committed.
type PostHandler func(Event)

// Dispatcher holds the registered pre/post handlers, fired in the order
// they were registered.
type Dispatcher struct {
	pre  []PreHandler
	post []PostHandler
}

// New returns an empty Dispatcher.
func New() *Dispatcher { return &Dispatcher{} }

// OnPre registers a pre-event handler.
func (d *Dispatcher) OnPre(h PreHandler) { d.pre = append(d.pre, h) }

// OnPost registers a post-event handler.
func (d *Dispatcher) OnPost(h PostHandler) { d.post = append(d.post, h) }

// FirePre runs every registered pre-handler in order, stopping at the
// first error and wrapping it as KindEventCancelled.
func (d *Dispatcher) FirePre(name string, payload any) error {
	ev := Event{Name: name, Payload: payload}
	for _, h := range d.pre {
		if err := h(ev); err != nil {
			return jjgerr.Wrap(jjgerr.KindEventCancelled, "operation "+name+" cancelled by handler", err)
		}
	}
	return nil
}

// FirePost runs every registered post-handler in order. Handlers cannot
// fail the operation; panics are not recovered here, matching the
// facade's single-threaded, let-it-crash-to-the-caller discipline.
func (d *Dispatcher) FirePost(name string, payload any) {
	ev := Event{Name: name, Payload: payload}
	for _, h := range d.post {
		h(ev)
	}
}
