package watcher

import (
	"sync"
	"time"
)

// DefaultDebounce is the quiet period used when none is configured.
const DefaultDebounce = 150 * time.Millisecond

// DebouncedWatcher delivers a burst of changes to one path as a single
// event once the path has been quiet for the configured period. The ops of
// every event in the burst are merged. Watch registration is handled by the
// embedded watcher.
type DebouncedWatcher struct {
	Watcher

	quiet time.Duration

	mu     sync.Mutex
	bursts map[string]*burst
	out    chan Event
	errs   chan error
	done   chan struct{}
	closed bool
	wg     sync.WaitGroup
}

// burst is the merged event for a path still inside its quiet period.
type burst struct {
	merged Event
	timer  *time.Timer
}

// NewDebouncedWatcher wraps inner. A non-positive quiet period uses
// DefaultDebounce.
func NewDebouncedWatcher(inner Watcher, quiet time.Duration) *DebouncedWatcher {
	if quiet <= 0 {
		quiet = DefaultDebounce
	}
	size := DefaultConfig().BufferSize
	d := &DebouncedWatcher{
		Watcher: inner,
		quiet:   quiet,
		bursts:  make(map[string]*burst),
		out:     make(chan Event, size),
		errs:    make(chan error, size),
		done:    make(chan struct{}),
	}
	d.wg.Add(1)
	go d.forward()
	return d
}

// Events returns debounced events.
func (d *DebouncedWatcher) Events() <-chan Event { return d.out }

// Errors returns errors from the wrapped watcher and dropped-event reports.
func (d *DebouncedWatcher) Errors() <-chan error { return d.errs }

// Close drops every burst still waiting and closes the wrapped watcher.
func (d *DebouncedWatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.done)
	for p, b := range d.bursts {
		b.timer.Stop()
		delete(d.bursts, p)
	}
	d.mu.Unlock()

	err := d.Watcher.Close()
	d.wg.Wait()

	// A timer may have fired before Stop; emit checks closed under mu.
	d.mu.Lock()
	close(d.out)
	close(d.errs)
	d.mu.Unlock()
	return err
}

func (d *DebouncedWatcher) forward() {
	defer d.wg.Done()
	in, inErrs := d.Watcher.Events(), d.Watcher.Errors()
	for {
		select {
		case <-d.done:
			return
		case ev, ok := <-in:
			if !ok {
				return
			}
			d.extend(ev)
		case err, ok := <-inErrs:
			if !ok {
				return
			}
			d.report(err)
		}
	}
}

// extend opens a burst for ev's path or restarts its quiet period.
func (d *DebouncedWatcher) extend(ev Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	if b := d.bursts[ev.Path]; b != nil {
		b.merged.Op |= ev.Op
		b.merged.Timestamp = ev.Timestamp
		b.timer.Reset(d.quiet)
		return
	}
	p := ev.Path
	d.bursts[p] = &burst{
		merged: ev,
		timer:  time.AfterFunc(d.quiet, func() { d.emit(p) }),
	}
}

// emit ends the burst for p and delivers its merged event.
func (d *DebouncedWatcher) emit(p string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b := d.bursts[p]
	if b == nil || d.closed {
		return
	}
	delete(d.bursts, p)
	select {
	case d.out <- b.merged:
	default:
		d.reportLocked(&DroppedEventError{Event: b.merged})
	}
}

func (d *DebouncedWatcher) report(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.closed {
		d.reportLocked(err)
	}
}

// reportLocked queues err unless the error buffer is full.
func (d *DebouncedWatcher) reportLocked(err error) {
	select {
	case d.errs <- err:
	default:
	}
}

// Flush ends every open burst now.
func (d *DebouncedWatcher) Flush() {
	d.mu.Lock()
	open := make([]string, 0, len(d.bursts))
	for p, b := range d.bursts {
		b.timer.Stop()
		open = append(open, p)
	}
	d.mu.Unlock()
	for _, p := range open {
		d.emit(p)
	}
}

// PendingCount returns how many paths are inside their quiet period.
func (d *DebouncedWatcher) PendingCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.bursts)
}

// DroppedEventError reports an event discarded because the consumer fell
// behind.
type DroppedEventError struct {
	Event Event
}

func (e *DroppedEventError) Error() string {
	return "event buffer full, dropped " + e.Event.Op.String() + " " + e.Event.Path
}

var _ Watcher = (*DebouncedWatcher)(nil)
