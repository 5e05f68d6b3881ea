package interp

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-interp/errors"
)

// Approximate per-entry sizes used for the stack budget.
const (
	valueBytes = 24
	frameBytes = 32
)

// Config carries the interpreter's tunables. It replaces process-wide flags:
// every Interpreter reads its own copy.
type Config struct {
	// Logger receives debug and warning output. Nil means no logging.
	Logger *zap.Logger `toml:"-"`

	// Tracer, if set, observes every executed instruction.
	Tracer Tracer `toml:"-"`

	// MaxStackBytes bounds operand stack plus frame stack usage. A call that
	// exceeds it traps with a stack overflow.
	MaxStackBytes int `toml:"max_stack_bytes"`

	// GrowMemoryCost is the step budget consumed by one memory.grow.
	GrowMemoryCost int `toml:"grow_memory_cost"`

	// InitialStackSlots sizes the operand stack of new threads.
	InitialStackSlots int `toml:"initial_stack_slots"`

	// Debug checks every instruction's operand stack effect against the
	// static effect and panics on divergence.
	Debug bool `toml:"debug"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		MaxStackBytes:     1 << 20,
		GrowMemoryCost:    1000,
		InitialStackSlots: 64,
	}
}

func (c *Config) normalize() {
	d := DefaultConfig()
	if c.MaxStackBytes <= 0 {
		c.MaxStackBytes = d.MaxStackBytes
	}
	if c.GrowMemoryCost < 0 {
		c.GrowMemoryCost = 0
	}
	if c.InitialStackSlots <= 0 {
		c.InitialStackSlots = d.InitialStackSlots
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}

// ParseConfig decodes TOML on top of DefaultConfig.
//
//	max_stack_bytes = 65536
//	grow_memory_cost = 1000
//	debug = true
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return Config{}, errors.Wrap(errors.PhaseConfig, errors.KindInvalidData, err, "parse interpreter config")
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return Config{}, errors.InvalidInput(errors.PhaseConfig, fmt.Sprintf("unknown config keys: %v", undecoded))
	}
	return cfg, nil
}

// LoadConfig reads a TOML config file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(errors.PhaseConfig, errors.KindNotFound, err, "read "+path)
	}
	return ParseConfig(data)
}
