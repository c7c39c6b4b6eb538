package haptic

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type muteSwitch struct {
	muted atomic.Bool
}

func (m *muteSwitch) Muted() bool {
	return m.muted.Load()
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestEnqueue_DropsWhenFull(t *testing.T) {
	d := NewDispatcher(nil, nil)

	for i := 0; i < QueueCapacity; i++ {
		if !d.Enqueue(30 * time.Millisecond) {
			t.Fatalf("expected pulse %d to be queued", i)
		}
	}
	if d.Enqueue(30 * time.Millisecond) {
		t.Error("expected pulse to be dropped on a full queue")
	}
	if d.Pending() != QueueCapacity {
		t.Errorf("expected %d pending, got %d", QueueCapacity, d.Pending())
	}
}

func TestDispatcher_PlaysPulsesInOrder(t *testing.T) {
	var mu sync.Mutex
	var played []time.Duration
	d := NewDispatcher(VibratorFunc(func(dur time.Duration) {
		mu.Lock()
		played = append(played, dur)
		mu.Unlock()
	}), nil)

	d.Enqueue(1 * time.Millisecond)
	d.Enqueue(2 * time.Millisecond)
	d.Enqueue(3 * time.Millisecond)
	d.Start()
	defer d.Stop()

	waitFor(t, "three pulses", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(played) == 3
	})

	mu.Lock()
	defer mu.Unlock()
	for i, want := range []time.Duration{1, 2, 3} {
		if played[i] != want*time.Millisecond {
			t.Errorf("pulse %d: expected %v, got %v", i, want*time.Millisecond, played[i])
		}
	}
}

func TestDispatcher_MutedSkipsVibration(t *testing.T) {
	var count atomic.Int32
	mute := &muteSwitch{}
	mute.muted.Store(true)
	d := NewDispatcher(VibratorFunc(func(time.Duration) { count.Add(1) }), mute)

	d.Start()
	defer d.Stop()

	d.Enqueue(time.Millisecond)
	d.Enqueue(time.Millisecond)
	waitFor(t, "queue to drain", func() bool { return d.Pending() == 0 })
	time.Sleep(10 * time.Millisecond)
	if count.Load() != 0 {
		t.Errorf("expected no vibration while muted, got %d", count.Load())
	}

	mute.muted.Store(false)
	d.Enqueue(time.Millisecond)
	waitFor(t, "unmuted pulse", func() bool { return count.Load() == 1 })
}

func TestDispatcher_StopDoesNotWaitForVibration(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	d := NewDispatcher(VibratorFunc(func(time.Duration) {
		close(started)
		<-release
	}), nil)

	d.Start()
	d.Enqueue(time.Hour)
	<-started

	stopped := make(chan struct{})
	go func() {
		d.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked on a running vibration")
	}
	if d.Running() {
		t.Error("expected dispatcher stopped")
	}
	close(release)
}

func TestDispatcher_PendingSurviveStop(t *testing.T) {
	var count atomic.Int32
	d := NewDispatcher(VibratorFunc(func(time.Duration) { count.Add(1) }), nil)

	d.Start()
	d.Stop()
	d.Stop() // second Stop is a no-op

	for i := 0; i < 4; i++ {
		d.Enqueue(time.Millisecond)
	}
	time.Sleep(10 * time.Millisecond)
	if count.Load() != 0 {
		t.Fatalf("expected no pulses while stopped, got %d", count.Load())
	}
	if d.Pending() != 4 {
		t.Fatalf("expected 4 pending, got %d", d.Pending())
	}

	d.Start()
	defer d.Stop()
	waitFor(t, "pending pulses", func() bool { return count.Load() == 4 })
}

func TestDispatcher_StartIsIdempotent(t *testing.T) {
	var active, peak atomic.Int32
	d := NewDispatcher(VibratorFunc(func(time.Duration) {
		n := active.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		active.Add(-1)
	}), nil)

	d.Start()
	d.Start()
	d.Start()
	defer d.Stop()

	for i := 0; i < QueueCapacity; i++ {
		d.Enqueue(time.Millisecond)
	}
	waitFor(t, "queue to drain", func() bool { return d.Pending() == 0 && active.Load() == 0 })

	if peak.Load() != 1 {
		t.Errorf("expected a single worker, saw %d concurrent vibrations", peak.Load())
	}
}

func TestDispatcher_Restart(t *testing.T) {
	var count atomic.Int32
	d := NewDispatcher(VibratorFunc(func(time.Duration) { count.Add(1) }), nil)

	for round := int32(1); round <= 3; round++ {
		d.Start()
		if !d.Running() {
			t.Fatalf("round %d: expected running", round)
		}
		d.Enqueue(time.Millisecond)
		waitFor(t, "pulse", func() bool { return count.Load() == round })
		d.Stop()
	}
}
