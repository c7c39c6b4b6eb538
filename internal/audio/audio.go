package audio

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"
)

const (
	sampleRate = beep.SampleRate(44100)

	// DefaultBuzzFreq is low enough to sound like a motor rather than a beep.
	DefaultBuzzFreq = 110.0
)

var (
	mu          sync.Mutex
	initialized bool
)

// Init initializes the audio system
func Init() error {
	mu.Lock()
	defer mu.Unlock()

	if initialized {
		return nil
	}

	err := speaker.Init(sampleRate, sampleRate.N(time.Second/100))
	if err != nil {
		return err
	}

	initialized = true
	return nil
}

// Close shuts down the audio system
func Close() {
	mu.Lock()
	defer mu.Unlock()

	if initialized {
		speaker.Close()
		initialized = false
	}
}

func ready() bool {
	mu.Lock()
	defer mu.Unlock()
	return initialized
}

// squareWave generates a square wave at freq for duration. The first and
// last few samples are ramped to avoid clicks on very short pulses.
func squareWave(freq float64, duration time.Duration, volume float64) beep.Streamer {
	total := sampleRate.N(duration)
	ramp := sampleRate.N(2 * time.Millisecond)
	if ramp > total/2 {
		ramp = total / 2
	}
	pos := 0
	phase := 0.0
	phaseStep := freq / float64(sampleRate)

	return beep.StreamerFunc(func(samples [][2]float64) (n int, ok bool) {
		for i := range samples {
			if pos >= total {
				return i, false
			}
			val := volume
			if math.Mod(phase, 1.0) > 0.5 {
				val = -val
			}
			if pos < ramp {
				val *= float64(pos) / float64(ramp)
			} else if total-pos < ramp {
				val *= float64(total-pos) / float64(ramp)
			}
			samples[i][0] = val
			samples[i][1] = val
			phase += phaseStep
			pos++
		}
		return len(samples), true
	})
}

// Buzzer stands in for a vibration motor: every pulse is a short low buzz.
// It satisfies haptic.Vibrator and haptic.Volume.
type Buzzer struct {
	Freq   float64
	Volume float64

	muted atomic.Bool
}

// NewBuzzer creates a buzzer with the default tone.
func NewBuzzer(muted bool) *Buzzer {
	b := &Buzzer{Freq: DefaultBuzzFreq, Volume: 0.25}
	b.muted.Store(muted)
	return b
}

// Muted reports whether the buzzer is silenced.
func (b *Buzzer) Muted() bool {
	return b.muted.Load()
}

// SetMuted silences or re-enables the buzzer.
func (b *Buzzer) SetMuted(muted bool) {
	b.muted.Store(muted)
}

// Toggle flips the mute state and returns the new one.
func (b *Buzzer) Toggle() bool {
	for {
		old := b.muted.Load()
		if b.muted.CompareAndSwap(old, !old) {
			return !old
		}
	}
}

// Vibrate plays a buzz of length d and returns once it has finished, the way
// a motor call would. Without an audio device it just waits.
func (b *Buzzer) Vibrate(d time.Duration) {
	if d <= 0 {
		return
	}
	if !ready() {
		time.Sleep(d)
		return
	}

	done := make(chan struct{})
	speaker.Play(beep.Seq(squareWave(b.Freq, d, b.Volume), beep.Callback(func() {
		close(done)
	})))

	select {
	case <-done:
	case <-time.After(d + 100*time.Millisecond):
		// The speaker may have been closed under us.
	}
}
