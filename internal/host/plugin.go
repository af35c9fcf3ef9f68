package host

import (
	"errors"

	"github.com/JohnDoe6345789/winejs/internal/emulator"
)

// X86PluginID identifies the built-in x86-64 simulator plugin.
const X86PluginID = "x86-simulator"

var (
	ErrNotWired  = errors.New("x86-64 simulator not wired")
	ErrNoPlugin  = errors.New("no simulator plugin available for this binary")
	ErrNoPlugins = errors.New("no simulator plugins registered")
)

// Factory builds a simulator for an executable image.
type Factory func(data []byte, opts ...emulator.Option) (*emulator.Simulator, error)

// Plugin offers a simulator for binaries it recognizes. Create may return
// a nil simulator and nil error when the plugin cannot serve the binary.
type Plugin struct {
	ID     string
	Match  func(data []byte) bool
	Create Factory
}

// X86Plugin wraps factory as the x86-64 plugin. A nil factory yields a
// plugin that matches everything but never produces a simulator.
func X86Plugin(factory Factory) Plugin {
	return Plugin{
		ID:    X86PluginID,
		Match: func([]byte) bool { return true },
		Create: func(data []byte, opts ...emulator.Option) (*emulator.Simulator, error) {
			if factory == nil {
				return nil, nil
			}
			return factory(data, opts...)
		},
	}
}

// missing explains why no plugin produced a simulator.
func (h *Host) missing() error {
	for _, p := range h.plugins {
		if p.ID == X86PluginID {
			return ErrNotWired
		}
	}
	if len(h.plugins) > 0 {
		return ErrNoPlugin
	}
	return ErrNoPlugins
}

func (h *Host) create(data []byte) (*emulator.Simulator, string, error) {
	for _, p := range h.plugins {
		if p.Match != nil && !p.Match(data) {
			continue
		}
		if p.Create == nil {
			continue
		}
		opts := []emulator.Option{emulator.WithLogger(h.log)}
		if h.cfg.Imports.JumpThunks {
			opts = append(opts, emulator.WithJumpThunks())
		}
		sim, err := p.Create(data, opts...)
		if err != nil {
			return nil, p.ID, err
		}
		if sim != nil {
			return sim, p.ID, nil
		}
	}
	return nil, "", h.missing()
}
