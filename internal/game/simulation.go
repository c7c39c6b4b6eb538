package game

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// Constants for the stock field
const (
	DefaultRefreshRate   = 60    // Hz, used when the display rate is unknown
	GravityAcceleration  = 3.0   // field units per second squared, per unit
	BallRadius           = 0.045 // relative to the field unit
	WallRestitution      = 0.6
	VibrationThreshold   = 1.0 // |Δv| per unit that counts as a hit
	VibrationLength      = 30 * time.Millisecond
	MaxBallsVibrating    = 10
	MaxVibrationsPerBall = 10
)

// ErrInvalidFieldSize is returned by ConfigureField for non-positive sizes.
var ErrInvalidFieldSize = errors.New("field width and height must be positive")

// Haptics receives collision pulses. Enqueue must never block.
type Haptics interface {
	Enqueue(d time.Duration) bool
	Start()
	Stop()
}

// Params tunes the simulation.
type Params struct {
	Gravity              float64
	BallRadius           float64
	Restitution          float64
	VibrationThreshold   float64
	VibrationLength      time.Duration
	MaxBallsVibrating    int
	MaxVibrationsPerBall int
	Lifetime             Lifetime
}

// DefaultParams returns the stock tuning.
func DefaultParams() Params {
	return Params{
		Gravity:              GravityAcceleration,
		BallRadius:           BallRadius,
		Restitution:          WallRestitution,
		VibrationThreshold:   VibrationThreshold,
		VibrationLength:      VibrationLength,
		MaxBallsVibrating:    MaxBallsVibrating,
		MaxVibrationsPerBall: MaxVibrationsPerBall,
		Lifetime:             DefaultLifetime(),
	}
}

// Validate checks the parameters for values that would break the physics.
func (p Params) Validate() error {
	if math.IsNaN(p.Gravity) || math.IsInf(p.Gravity, 0) {
		return fmt.Errorf("gravity must be finite, got %v", p.Gravity)
	}
	if !(p.BallRadius > 0) || math.IsInf(p.BallRadius, 0) {
		return ErrInvalidRadius
	}
	if math.IsNaN(p.Restitution) || p.Restitution < 0 || p.Restitution > 1 {
		return ErrInvalidRestitution
	}
	if p.Lifetime.DeletionDelay <= 0 {
		return fmt.Errorf("deletion delay must be positive, got %v", p.Lifetime.DeletionDelay)
	}
	return nil
}

// TickPeriod converts a display refresh rate to the physics timer period.
func TickPeriod(refreshRate float64) time.Duration {
	if !(refreshRate > 0) || math.IsInf(refreshRate, 0) {
		refreshRate = DefaultRefreshRate
	}
	ms := math.Round(1000 / refreshRate)
	if ms < 1 {
		ms = 1
	}
	return time.Duration(ms) * time.Millisecond
}

// Simulation owns the field, its obstacles and every ball in it, and
// advances released balls on its own timer.
type Simulation struct {
	params  Params
	clock   Clock
	haptics Haptics

	// mu guards the field geometry and the held-ball table. Input may call
	// in from any goroutine.
	mu        sync.Mutex
	width     int
	height    int
	unit      float64
	obstacles []Obstacle
	held      map[int]*Ball

	balls ballSet

	// tickMu serializes Tick.
	tickMu   sync.Mutex
	lastTick time.Time
	ticks    atomic.Uint64

	runMu sync.Mutex
	stop  chan struct{}
	done  chan struct{}
}

// NewSimulation creates a simulation for a width x height field. haptics
// may be nil.
func NewSimulation(width, height int, params Params, clock Clock, haptics Haptics) (*Simulation, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid simulation parameters: %w", err)
	}
	if clock == nil {
		clock = SystemClock{}
	}
	s := &Simulation{
		params:  params,
		clock:   clock,
		haptics: haptics,
		held:    make(map[int]*Ball),
	}
	s.lastTick = clock.Now()
	if err := s.ConfigureField(width, height); err != nil {
		return nil, err
	}
	return s, nil
}

// ConfigureField rebuilds the field and its walls for a new size. All balls
// are discarded.
func (s *Simulation) ConfigureField(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidFieldSize, width, height)
	}

	walls, err := NewBox(Rect{Right: float64(width), Bottom: float64(height)}, s.params.Restitution, true)
	if err != nil {
		return fmt.Errorf("failed to build walls: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.width = width
	s.height = height
	s.unit = float64(width+height) / 2
	s.obstacles = []Obstacle{walls}
	s.held = make(map[int]*Ball)
	s.balls.reset()
	return nil
}

// Size returns the field dimensions.
func (s *Simulation) Size() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.width, s.height
}

// Unit returns the resolution-independent length scale (width+height)/2.
func (s *Simulation) Unit() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unit
}

// Obstacles returns the current obstacle set.
func (s *Simulation) Obstacles() []Obstacle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.obstacles
}

// Params returns the tuning the simulation was created with.
func (s *Simulation) Params() Params {
	return s.params
}

// Balls returns a stable snapshot of the active balls. The slice must not
// be modified.
func (s *Simulation) Balls() []*Ball {
	return s.balls.load()
}

// Ticks returns the number of completed ticks.
func (s *Simulation) Ticks() uint64 {
	return s.ticks.Load()
}

// Frame returns render views of every active ball.
func (s *Simulation) Frame() []BallView {
	now := s.clock.Now()
	balls := s.balls.load()
	views := make([]BallView, len(balls))
	for i, b := range balls {
		views[i] = b.Snapshot(now, s.params.Lifetime)
	}
	return views
}

// HeldBall returns the ball held by pointer id.
func (s *Simulation) HeldBall(id int) (*Ball, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.held[id]
	return b, ok
}

// CreateHeldBall spawns a ball under pointer id. A ball the same pointer
// was still holding is discarded first.
func (s *Simulation) CreateHeldBall(id int, pos Vec2) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.held[id]; ok {
		s.balls.remove(old)
		delete(s.held, id)
	}

	radius := s.unit * s.params.BallRadius
	b, err := NewBall(s.clampLocked(pos, radius), radius, BallColor, TrailColor)
	if err != nil {
		// Params are validated and the field is non-empty, so this is unreachable.
		return
	}

	s.held[id] = b
	s.balls.add(b)
}

// MoveHeldBall drags the ball held by pointer id. Unknown ids are ignored.
func (s *Simulation) MoveHeldBall(id int, pos Vec2) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.held[id]
	if !ok {
		return
	}
	b.Position = s.clampLocked(pos, b.Radius)
	b.Publish()
}

// ReleaseBall lets go of the ball held by pointer id with the given fling
// velocity. Unknown ids are ignored.
func (s *Simulation) ReleaseBall(id int, velocity Vec2) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.held[id]
	if !ok {
		return
	}
	delete(s.held, id)

	if !velocity.IsFinite() {
		velocity = Vec2{}
	}
	b.Launch(velocity, s.clock.Now())
}

// clampLocked returns pos moved so that a ball of the given radius lies
// fully inside the field. s.mu must be held.
func (s *Simulation) clampLocked(pos Vec2, radius float64) Vec2 {
	if !pos.IsFinite() {
		pos = V(float64(s.width)/2, float64(s.height)/2)
	}
	return Vec2{
		X: clamp(pos.X, radius, float64(s.width)-radius),
		Y: clamp(pos.Y, radius, float64(s.height)-radius),
	}
}

func clamp(v, lo, hi float64) float64 {
	if lo > hi {
		return (lo + hi) / 2
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Start begins ticking at the period derived from refreshRate. Calling
// Start while running restarts the timer.
func (s *Simulation) Start(refreshRate float64) {
	s.Stop()

	s.runMu.Lock()
	defer s.runMu.Unlock()

	s.tickMu.Lock()
	s.lastTick = s.clock.Now()
	s.tickMu.Unlock()

	stop := make(chan struct{})
	done := make(chan struct{})
	s.stop, s.done = stop, done

	if s.haptics != nil {
		s.haptics.Start()
	}
	go s.run(TickPeriod(refreshRate), stop, done)
}

// Stop halts the timer and the haptic worker. It is safe to call when the
// simulation is not running.
func (s *Simulation) Stop() {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	if s.stop == nil {
		return
	}
	close(s.stop)
	<-s.done
	s.stop, s.done = nil, nil

	if s.haptics != nil {
		s.haptics.Stop()
	}
}

// Running reports whether the timer is active.
func (s *Simulation) Running() bool {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	return s.stop != nil
}

func (s *Simulation) run(period time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.Tick()
		}
	}
}

// Tick advances every released ball by the wall-clock time elapsed since
// the previous tick.
func (s *Simulation) Tick() {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	now := s.clock.Now()
	if s.lastTick.IsZero() {
		s.lastTick = now
	}
	dt := now.Sub(s.lastTick).Seconds()
	s.lastTick = now
	if dt < 0 {
		dt = 0
	}

	s.mu.Lock()
	unit := s.unit
	obstacles := s.obstacles
	s.mu.Unlock()

	all := s.balls.load()
	flying := make([]*Ball, 0, len(all))
	for _, b := range all {
		if b.InFlight() {
			flying = append(flying, b)
		}
	}

	// Vibration slots are counted over in-flight balls only, so held balls
	// never take a slot from the oldest and newest flying ones.
	half := s.params.MaxBallsVibrating / 2
	last := len(flying) - 1
	for i, b := range flying {
		vibrate := (i < half || last-i < half) && b.CollisionCount() < s.params.MaxVibrationsPerBall
		s.step(b, dt, unit, obstacles, vibrate)
		if b.ShouldBeDeleted(now, s.params.Lifetime.DeletionDelay) {
			s.balls.remove(b)
		}
	}

	s.ticks.Add(1)
}

// step integrates one ball. Only the tick goroutine touches in-flight balls.
func (s *Simulation) step(b *Ball, dt, unit float64, obstacles []Obstacle, vibrate bool) {
	b.Velocity.Y += dt * unit * s.params.Gravity
	b.Position = b.Position.Add(b.Velocity.Mul(dt))

	before := b.Velocity
	for _, o := range obstacles {
		o.Collide(b, dt)
	}

	if vibrate && s.haptics != nil {
		impulse := b.Velocity.Sub(before).Len() / unit
		if impulse >= s.params.VibrationThreshold {
			s.haptics.Enqueue(s.params.VibrationLength)
			b.recordCollision()
		}
	}

	b.Publish()
}

// ballSet is a copy-on-write list: readers get an immutable snapshot and
// never block writers.
type ballSet struct {
	mu   sync.Mutex
	list atomic.Pointer[[]*Ball]
}

func (bs *ballSet) load() []*Ball {
	if p := bs.list.Load(); p != nil {
		return *p
	}
	return nil
}

func (bs *ballSet) add(b *Ball) {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	cur := bs.load()
	next := make([]*Ball, len(cur), len(cur)+1)
	copy(next, cur)
	next = append(next, b)
	bs.list.Store(&next)
}

func (bs *ballSet) remove(b *Ball) bool {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	cur := bs.load()
	for i, x := range cur {
		if x != b {
			continue
		}
		next := make([]*Ball, 0, len(cur)-1)
		next = append(next, cur[:i]...)
		next = append(next, cur[i+1:]...)
		bs.list.Store(&next)
		return true
	}
	return false
}

func (bs *ballSet) reset() {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	bs.list.Store(nil)
}
