package emulator

import (
	"github.com/JohnDoe6345789/winejs/internal/pe"
)

// Simulator owns one parsed image and runs it on a fresh CPU each time, so
// repeated runs start from identical state.
type Simulator struct {
	img  *pe.Image
	opts []Option
}

// NewSimulator parses data and prepares it for execution.
func NewSimulator(data []byte, opts ...Option) (*Simulator, error) {
	img, err := pe.Parse(data)
	if err != nil {
		return nil, err
	}
	return NewSimulatorFromImage(img, opts...), nil
}

// NewSimulatorFromImage wraps an already parsed image.
func NewSimulatorFromImage(img *pe.Image, opts ...Option) *Simulator {
	return &Simulator{img: img, opts: opts}
}

// Image returns the loaded image.
func (s *Simulator) Image() *pe.Image {
	return s.img
}

// NewCPU returns a CPU reset to the image entry point.
func (s *Simulator) NewCPU() *CPU {
	return New(s.img, s.opts...)
}

// Run executes the image from its entry point on a new CPU.
func (s *Simulator) Run(opts RunOptions) (*RunResult, error) {
	return s.NewCPU().Run(opts)
}
