package app

import (
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/diegok/fidgetball/internal/audio"
	"github.com/diegok/fidgetball/internal/client"
	"github.com/diegok/fidgetball/internal/config"
	"github.com/diegok/fidgetball/internal/game"
	"github.com/diegok/fidgetball/internal/haptic"
	"github.com/diegok/fidgetball/internal/protocol"
	"github.com/diegok/fidgetball/internal/server"
	"github.com/diegok/fidgetball/internal/ui"
)

// App is the main application controller. It owns the terminal and routes
// mouse input either to a local simulation or to a server.
type App struct {
	cfg      *config.Config
	screen   *ui.Screen
	renderer *ui.Renderer
	pointers *ui.Pointers
	buzzer   *audio.Buzzer
	haptics  *haptic.Dispatcher

	// Exactly one of sim (local mode) or client (serve and join) is set.
	sim    *game.Simulation
	client *client.Client
	server *server.Server

	frame   protocol.Frame
	focused bool

	quit    chan struct{}
	sigChan chan os.Signal
}

// NewApp creates a new App instance with the given configuration.
func NewApp(cfg *config.Config) *App {
	return &App{
		cfg:     cfg,
		focused: true,
		quit:    make(chan struct{}),
	}
}

// Run is the main entry point for the application.
// It initializes the screen, sets up signal handling, and starts the field.
func (a *App) Run() error {
	// The field works without sound; pulses then just wait out their length.
	if err := audio.Init(); err != nil {
		log.Printf("app: audio unavailable: %v", err)
	}

	screen, err := ui.InitScreen()
	if err != nil {
		return fmt.Errorf("failed to initialize screen: %w", err)
	}
	a.attach(screen)

	a.sigChan = make(chan os.Signal, 1)
	signal.Notify(a.sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-a.sigChan
		close(a.quit)
	}()

	log.Printf("app: starting in %s mode", a.cfg.Mode())

	var runErr error
	switch a.cfg.Mode() {
	case config.ModeServe:
		runErr = a.runServer()
	case config.ModeJoin:
		runErr = a.runClient()
	default:
		runErr = a.runLocal()
	}

	a.cleanup()

	return runErr
}

// attach wires the app to a screen and builds the input and haptic layers
// around it.
func (a *App) attach(screen *ui.Screen) {
	a.screen = screen
	a.renderer = ui.NewRenderer(screen)
	a.pointers = ui.NewPointers(a.cfg.Fling)
	a.buzzer = audio.NewBuzzer(a.cfg.Mute)
	a.haptics = haptic.NewDispatcher(a.buzzer, a.buzzer)
}

// params derives the simulation tuning from the configuration.
func (a *App) params() game.Params {
	params := game.DefaultParams()
	params.Gravity = a.cfg.Gravity
	params.Restitution = a.cfg.Restitution
	return params
}

// startLocal creates a simulation sized to the terminal and starts it.
func (a *App) startLocal() error {
	w, h := protocol.FieldSize(a.screen.FieldSize())
	sim, err := game.NewSimulation(w, h, a.params(), game.SystemClock{}, a.haptics)
	if err != nil {
		return fmt.Errorf("failed to create simulation: %w", err)
	}
	a.sim = sim
	a.sim.Start(float64(a.cfg.FPS))
	return nil
}

// runLocal plays on a field owned by this process.
func (a *App) runLocal() error {
	if err := a.startLocal(); err != nil {
		return err
	}
	return a.mainLoop()
}

// runServer creates and starts a server, then connects to it as a client.
func (a *App) runServer() error {
	srv, err := server.NewServer(a.cfg)
	if err != nil {
		return err
	}
	a.server = srv
	if err := a.server.Start(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	addr := fmt.Sprintf("localhost:%d", a.server.Port())
	return a.connectAndRun(addr)
}

// runClient connects to a remote server.
func (a *App) runClient() error {
	addr := a.cfg.ServerAddr
	// Add default port if not specified
	if !hasPort(addr) {
		addr = fmt.Sprintf("%s:%d", addr, config.DefaultPort)
	}
	return a.connectAndRun(addr)
}

// connectAndRun establishes a connection to the server and runs the main loop.
func (a *App) connectAndRun(addr string) error {
	a.renderer.RenderConnecting(addr)

	name := a.cfg.PlayerName
	if name == "" {
		name = generateRandomName()
	}

	w, h := a.screen.Size()
	a.client = client.NewClient(name, w, h)
	if err := a.client.Connect(addr); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	log.Printf("app: joined %s as %s (session %s)", addr, name, a.client.PlayerID)

	// Remote pulses buzz here; the server's own simulation only relays them.
	a.haptics.Start()

	return a.mainLoop()
}

// mainLoop is the main event loop that handles all input and rendering.
func (a *App) mainLoop() error {
	events := make(chan tcell.Event)
	go func() {
		for {
			ev := a.screen.PollEvent()
			if ev == nil {
				return
			}
			select {
			case events <- ev:
			case <-a.quit:
				return
			}
		}
	}()

	ticker := time.NewTicker(game.TickPeriod(float64(a.cfg.FPS)))
	defer ticker.Stop()

	// Nil channels block forever, which disables these cases in local mode.
	var (
		frames <-chan protocol.Frame
		pulses <-chan protocol.Pulse
		errs   <-chan error
	)
	if a.client != nil {
		frames, pulses, errs = a.client.Frames, a.client.Pulses, a.client.Error
	}

	for {
		select {
		case <-a.quit:
			return nil

		case ev := <-events:
			if a.handleEvent(ev) {
				return nil
			}

		case frame := <-frames:
			a.frame = frame

		case pulse := <-pulses:
			if a.focused {
				a.haptics.Enqueue(pulse.Duration)
			}

		case err := <-errs:
			log.Printf("app: connection lost: %v", err)
			a.renderer.RenderError(err.Error())
			// Wait for a key press
			a.screen.PollEvent()
			return err

		case <-ticker.C:
			a.render()
		}
	}
}

// handleEvent processes keyboard, mouse and terminal events.
// Returns true if the application should quit.
func (a *App) handleEvent(ev tcell.Event) bool {
	switch ev := ev.(type) {
	case *tcell.EventKey:
		return a.handleKey(ev.Key(), ev.Rune())

	case *tcell.EventMouse:
		x, y := ev.Position()
		a.handleMouse(ev.Buttons(), x, y, ev.When())

	case *tcell.EventResize:
		w, h := ev.Size()
		a.handleResize(w, h)

	case *tcell.EventFocus:
		a.setFocus(ev.Focused)
	}

	return false
}

// handleKey returns true for the quit keys.
func (a *App) handleKey(key tcell.Key, r rune) bool {
	if ui.IsQuitKey(key, r) {
		return true
	}
	if ui.IsMuteKey(key, r) {
		muted := a.buzzer.Toggle()
		log.Printf("app: muted=%v", muted)
	}
	return false
}

// handleMouse maps a mouse sample from screen cells to field units and
// feeds it through the pointer tracker.
func (a *App) handleMouse(buttons tcell.ButtonMask, col, row int, at time.Time) {
	if !a.focused {
		return
	}
	w, h := a.fieldSize()
	x, y := a.renderer.Viewport(w, h).ToField(col, row)
	for _, ev := range a.pointers.Mouse(buttons, x, y, at) {
		a.dispatchPointer(ev)
	}
}

// dispatchPointer routes one pointer event to wherever the field lives.
func (a *App) dispatchPointer(ev protocol.PointerEvent) {
	if a.sim != nil {
		a.sim.HandlePointer(ev.Pointer, ev)
		return
	}
	if a.client != nil {
		if err := a.client.SendPointer(ev); err != nil {
			log.Printf("app: dropped %s event: %v", ev.Kind, err)
		}
	}
}

// handleResize refits the field to the new terminal size. Any ball being
// dragged is let go first, since a new field starts empty.
func (a *App) handleResize(cols, rows int) {
	a.screen.Clear()
	for _, ev := range a.pointers.ReleaseAll() {
		a.dispatchPointer(ev)
	}

	if a.sim != nil {
		fieldCols, fieldRows := a.screen.FieldSize()
		w, h := protocol.FieldSize(fieldCols, fieldRows)
		if cw, ch := a.sim.Size(); cw != w || ch != h {
			if err := a.sim.ConfigureField(w, h); err != nil {
				log.Printf("app: failed to resize field: %v", err)
			}
		}
	}
	if a.client != nil {
		if err := a.client.SendResize(cols, rows); err != nil {
			log.Printf("app: failed to report resize: %v", err)
		}
	}

	a.render()
}

// setFocus pauses the field while the terminal is in the background and
// resumes it when focus returns.
func (a *App) setFocus(focused bool) {
	if a.focused == focused {
		return
	}
	a.focused = focused
	log.Printf("app: focused=%v", focused)

	if !focused {
		for _, ev := range a.pointers.ReleaseAll() {
			a.dispatchPointer(ev)
		}
	}

	switch {
	case a.sim != nil && focused:
		a.sim.Start(float64(a.cfg.FPS))
	case a.sim != nil:
		a.sim.Stop()
	case focused:
		a.haptics.Start()
	default:
		a.haptics.Stop()
	}
}

// fieldSize returns the size of the field currently shown.
func (a *App) fieldSize() (int, int) {
	if a.sim != nil {
		return a.sim.Size()
	}
	return a.frame.Width, a.frame.Height
}

// currentFrame returns the frame to draw next.
func (a *App) currentFrame() protocol.Frame {
	if a.sim != nil {
		a.frame = a.sim.ToProtocolFrame()
	}
	return a.frame
}

// render draws the field, or a waiting message before the first frame.
func (a *App) render() {
	frame := a.currentFrame()
	if frame.Width == 0 || frame.Height == 0 {
		a.renderer.RenderMessage("FIDGETBALL", "Waiting for the field...", "Press 'q' to quit", tcell.ColorTeal)
		return
	}
	a.renderer.RenderField(frame, a.status(frame))
}

// status builds the text of the bottom bar.
func (a *App) status(frame protocol.Frame) string {
	parts := []string{" " + a.cfg.Mode().String()}
	if frame.Players > 0 {
		parts = append(parts, fmt.Sprintf("players: %d", frame.Players))
	}
	parts = append(parts, fmt.Sprintf("balls: %d", len(frame.Balls)))
	if a.buzzer.Muted() {
		parts = append(parts, "muted")
	}
	if !a.focused {
		parts = append(parts, "paused")
	}
	parts = append(parts, "M: mute  Q: quit")
	return strings.Join(parts, " | ")
}

// cleanup shuts down all resources.
func (a *App) cleanup() {
	if a.sim != nil {
		a.sim.Stop()
	}
	if a.haptics != nil {
		a.haptics.Stop()
	}

	audio.Close()

	// Close client connection
	if a.client != nil {
		a.client.Close()
	}

	// Stop server
	if a.server != nil {
		a.server.Stop()
	}

	// Finalize screen
	if a.screen != nil {
		a.screen.Fini()
	}

	if a.sigChan != nil {
		signal.Stop(a.sigChan)
	}
}

// hasPort checks if the address string contains a port number.
func hasPort(addr string) bool {
	return strings.Contains(addr, ":")
}

// generateRandomName creates a random player name.
func generateRandomName() string {
	adjectives := []string{"Bouncy", "Springy", "Restless", "Twitchy", "Jolly", "Nimble", "Fizzy", "Wobbly"}
	nouns := []string{"Ball", "Thumb", "Finger", "Marble", "Pebble", "Comet", "Spinner", "Flicker"}

	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	adj := adjectives[r.Intn(len(adjectives))]
	noun := nouns[r.Intn(len(nouns))]
	num := r.Intn(100)

	return fmt.Sprintf("%s%s%d", adj, noun, num)
}
