package haptic

import (
	"sync"
	"time"
)

// QueueCapacity is the number of pulses that can wait for the motor.
const QueueCapacity = 10

// Vibrator drives the actual motor (or whatever stands in for it).
// Vibrate may block for the duration of the pulse.
type Vibrator interface {
	Vibrate(d time.Duration)
}

// VibratorFunc adapts a plain function to Vibrator.
type VibratorFunc func(d time.Duration)

// Vibrate calls f(d).
func (f VibratorFunc) Vibrate(d time.Duration) {
	f(d)
}

// Volume reports whether haptic feedback is currently silenced.
type Volume interface {
	Muted() bool
}

// Dispatcher decouples the physics loop from the vibration motor. Pulses are
// queued without blocking and played one at a time by a worker goroutine.
type Dispatcher struct {
	queue    chan time.Duration
	vibrator Vibrator
	volume   Volume

	mu     sync.Mutex
	cancel chan struct{}
}

// NewDispatcher creates a stopped dispatcher. volume may be nil.
func NewDispatcher(vibrator Vibrator, volume Volume) *Dispatcher {
	if vibrator == nil {
		vibrator = VibratorFunc(func(time.Duration) {})
	}
	return &Dispatcher{
		queue:    make(chan time.Duration, QueueCapacity),
		vibrator: vibrator,
		volume:   volume,
	}
}

// Enqueue queues a pulse. It never blocks: when the queue is full the pulse
// is dropped and false is returned.
func (d *Dispatcher) Enqueue(dur time.Duration) bool {
	select {
	case d.queue <- dur:
		return true
	default:
		return false
	}
}

// Pending returns the number of queued pulses.
func (d *Dispatcher) Pending() int {
	return len(d.queue)
}

// Start spawns the worker. It does nothing if a worker is already running.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cancel != nil {
		return
	}
	cancel := make(chan struct{})
	d.cancel = cancel
	go d.work(cancel)
}

// Stop signals the worker to exit and returns immediately. A pulse that is
// already playing finishes on its own; queued pulses stay for the next Start.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cancel == nil {
		return
	}
	close(d.cancel)
	d.cancel = nil
}

// Running reports whether a worker has been started and not stopped.
func (d *Dispatcher) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cancel != nil
}

func (d *Dispatcher) work(cancel <-chan struct{}) {
	for {
		select {
		case <-cancel:
			return
		case dur := <-d.queue:
			// Both cases may have been ready; don't eat a pulse after Stop.
			select {
			case <-cancel:
				d.Enqueue(dur)
				return
			default:
			}
			if d.volume != nil && d.volume.Muted() {
				continue
			}
			d.vibrator.Vibrate(dur)
		}
	}
}
