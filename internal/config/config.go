package config

import (
	"errors"
	"flag"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// Default values for configuration
const (
	DefaultPort        = 5656
	DefaultFPS         = 60
	DefaultGravity     = 3.0
	DefaultRestitution = 0.6
	DefaultFling       = 1.0

	MaxFPS = 1000

	// EnvPrefix is prepended to every environment variable name.
	EnvPrefix = "FIDGETBALL_"
)

// Mode selects how the field is hosted.
type Mode int

const (
	ModeLocal Mode = iota
	ModeServe
	ModeJoin
)

func (m Mode) String() string {
	switch m {
	case ModeServe:
		return "serve"
	case ModeJoin:
		return "join"
	default:
		return "local"
	}
}

// Config holds the application configuration
type Config struct {
	IsServer    bool    `toml:"serve"`
	ServerAddr  string  `toml:"join"`
	Port        int     `toml:"port"`
	PlayerName  string  `toml:"name"`
	FPS         int     `toml:"fps"`
	Gravity     float64 `toml:"gravity"`
	Restitution float64 `toml:"restitution"`
	Fling       float64 `toml:"fling"`
	Mute        bool    `toml:"mute"`
	Debug       bool    `toml:"debug"`

	// SpectatePort serves a read-only websocket feed of the field when
	// hosting. Zero disables it.
	SpectatePort int `toml:"spectate_port"`
}

// Default returns the compiled-in configuration.
func Default() *Config {
	return &Config{
		Port:        DefaultPort,
		FPS:         DefaultFPS,
		Gravity:     DefaultGravity,
		Restitution: DefaultRestitution,
		Fling:       DefaultFling,
	}
}

// Mode reports whether the field is local, hosted or joined.
func (c *Config) Mode() Mode {
	switch {
	case c.IsServer:
		return ModeServe
	case c.ServerAddr != "":
		return ModeJoin
	default:
		return ModeLocal
	}
}

// ParseArgs parses command line arguments on top of the settings file and
// the process environment.
func ParseArgs(args []string) (*Config, error) {
	return Load(args, os.LookupEnv)
}

// Load builds a Config from, in increasing precedence: defaults, the TOML
// file named by --config, FIDGETBALL_* variables from lookupEnv, and flags.
func Load(args []string, lookupEnv func(string) (string, bool)) (*Config, error) {
	fs := flag.NewFlagSet("fidgetball", flag.ContinueOnError)

	var fl Config
	configPath := fs.String("config", "", "path to a TOML settings file")
	fs.BoolVar(&fl.IsServer, "serve", false, "host a shared field")
	fs.StringVar(&fl.ServerAddr, "join", "", "server address to join")
	fs.IntVar(&fl.Port, "port", DefaultPort, "port number (1-65535)")
	fs.StringVar(&fl.PlayerName, "name", "", "player name")
	fs.IntVar(&fl.FPS, "fps", DefaultFPS, "simulation rate in Hz (1-1000)")
	fs.Float64Var(&fl.Gravity, "gravity", DefaultGravity, "gravity in field units per second squared")
	fs.Float64Var(&fl.Restitution, "restitution", DefaultRestitution, "wall restitution (0-1)")
	fs.Float64Var(&fl.Fling, "fling", DefaultFling, "release velocity multiplier (>0)")
	fs.BoolVar(&fl.Mute, "mute", false, "start with haptics muted")
	fs.BoolVar(&fl.Debug, "debug", false, "write a debug log file")
	fs.IntVar(&fl.SpectatePort, "spectate-port", 0, "websocket spectator port when serving (0 disables)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg := Default()

	if *configPath != "" {
		md, err := toml.DecodeFile(*configPath, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("unknown setting %q in %s", undecoded[0].String(), *configPath)
		}
	}

	if lookupEnv != nil {
		if err := applyEnv(cfg, lookupEnv); err != nil {
			return nil, err
		}
	}

	fs.Visit(func(f *flag.Flag) {
		applyFlag(cfg, &fl, f.Name)
	})

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyFlag(cfg, fl *Config, name string) {
	switch name {
	case "serve":
		cfg.IsServer = fl.IsServer
	case "join":
		cfg.ServerAddr = fl.ServerAddr
	case "port":
		cfg.Port = fl.Port
	case "name":
		cfg.PlayerName = fl.PlayerName
	case "fps":
		cfg.FPS = fl.FPS
	case "gravity":
		cfg.Gravity = fl.Gravity
	case "restitution":
		cfg.Restitution = fl.Restitution
	case "fling":
		cfg.Fling = fl.Fling
	case "mute":
		cfg.Mute = fl.Mute
	case "debug":
		cfg.Debug = fl.Debug
	case "spectate-port":
		cfg.SpectatePort = fl.SpectatePort
	}
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	get := func(key string) (string, bool) {
		v, ok := lookup(EnvPrefix + key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	var err error
	if v, ok := get("SERVE"); ok {
		if cfg.IsServer, err = strconv.ParseBool(v); err != nil {
			return envError("SERVE", v, err)
		}
	}
	if v, ok := get("JOIN"); ok {
		cfg.ServerAddr = v
	}
	if v, ok := get("PORT"); ok {
		if cfg.Port, err = strconv.Atoi(v); err != nil {
			return envError("PORT", v, err)
		}
	}
	if v, ok := get("NAME"); ok {
		cfg.PlayerName = v
	}
	if v, ok := get("FPS"); ok {
		if cfg.FPS, err = strconv.Atoi(v); err != nil {
			return envError("FPS", v, err)
		}
	}
	if v, ok := get("GRAVITY"); ok {
		if cfg.Gravity, err = strconv.ParseFloat(v, 64); err != nil {
			return envError("GRAVITY", v, err)
		}
	}
	if v, ok := get("RESTITUTION"); ok {
		if cfg.Restitution, err = strconv.ParseFloat(v, 64); err != nil {
			return envError("RESTITUTION", v, err)
		}
	}
	if v, ok := get("FLING"); ok {
		if cfg.Fling, err = strconv.ParseFloat(v, 64); err != nil {
			return envError("FLING", v, err)
		}
	}
	if v, ok := get("MUTE"); ok {
		if cfg.Mute, err = strconv.ParseBool(v); err != nil {
			return envError("MUTE", v, err)
		}
	}
	if v, ok := get("DEBUG"); ok {
		if cfg.Debug, err = strconv.ParseBool(v); err != nil {
			return envError("DEBUG", v, err)
		}
	}
	if v, ok := get("SPECTATE_PORT"); ok {
		if cfg.SpectatePort, err = strconv.Atoi(v); err != nil {
			return envError("SPECTATE_PORT", v, err)
		}
	}
	return nil
}

func envError(key, value string, err error) error {
	return fmt.Errorf("invalid %s%s=%q: %w", EnvPrefix, key, value, err)
}

// Validate checks ranges and mutually exclusive options.
func (c *Config) Validate() error {
	// Validate: cannot have both --serve and --join
	if c.IsServer && c.ServerAddr != "" {
		return errors.New("cannot specify both --serve and --join")
	}

	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}

	if c.SpectatePort < 0 || c.SpectatePort > 65535 {
		return fmt.Errorf("spectate port must be between 0 and 65535, got %d", c.SpectatePort)
	}
	if c.SpectatePort != 0 && c.SpectatePort == c.Port {
		return fmt.Errorf("spectate port %d collides with the game port", c.SpectatePort)
	}

	if c.FPS < 1 || c.FPS > MaxFPS {
		return fmt.Errorf("fps must be between 1 and %d, got %d", MaxFPS, c.FPS)
	}

	if math.IsNaN(c.Gravity) || math.IsInf(c.Gravity, 0) {
		return fmt.Errorf("gravity must be a finite number, got %v", c.Gravity)
	}

	if math.IsNaN(c.Restitution) || c.Restitution < 0 || c.Restitution > 1 {
		return fmt.Errorf("restitution must be between 0 and 1, got %v", c.Restitution)
	}

	if !(c.Fling > 0) || math.IsInf(c.Fling, 0) {
		return fmt.Errorf("fling must be positive, got %v", c.Fling)
	}

	return nil
}
