package stubs

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JohnDoe6345789/winejs/internal/config"
	"github.com/JohnDoe6345789/winejs/internal/emulator"
	glog "github.com/JohnDoe6345789/winejs/internal/log"
	"github.com/JohnDoe6345789/winejs/internal/pe"
	"github.com/JohnDoe6345789/winejs/internal/winsock"
)

// Session is the host state shared by stubs during one run.
// It is owned by the goroutine driving the CPU.
type Session struct {
	ID     string
	Config *config.Config
	Image  *pe.Image
	Bridge *winsock.Bridge
	Log    *glog.Logger

	GUIIntent    bool
	GUIReasons   []string
	DirectX      bool
	MessageBoxes []string
	LastError    uint32
	Exited       bool
	ExitCode     uint32

	ctx       context.Context
	activated map[string]bool
	state     map[string]any
	registry  *Registry
	call      *emulator.ImportCall
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithBridge attaches a Winsock bridge.
func WithBridge(b *winsock.Bridge) SessionOption {
	return func(s *Session) { s.Bridge = b }
}

// WithLogger sets the session logger.
func WithLogger(l *glog.Logger) SessionOption {
	return func(s *Session) { s.Log = l }
}

// WithContext bounds blocking stubs such as connect and recv.
func WithContext(ctx context.Context) SessionOption {
	return func(s *Session) { s.ctx = ctx }
}

// NewSession creates a session for img. A nil cfg uses config.Default.
func NewSession(img *pe.Image, cfg *config.Config, opts ...SessionOption) *Session {
	if cfg == nil {
		cfg = config.Default()
	}
	s := &Session{
		ID:        uuid.NewString(),
		Config:    cfg,
		Image:     img,
		Log:       glog.L,
		ctx:       context.Background(),
		activated: make(map[string]bool),
		state:     make(map[string]any),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Log = s.Log.WithFields(zap.String("session", s.ID[:8]))
	return s
}

// Hooks binds the default registry to s.
func (s *Session) Hooks() emulator.ImportHooks {
	return DefaultRegistry.Hooks(s)
}

// Context returns the session's base context.
func (s *Session) Context() context.Context {
	return s.ctx
}

// Imports returns the image's import list.
func (s *Session) Imports() []pe.ImportSymbol {
	if s.Image == nil {
		return nil
	}
	return s.Image.ImportList
}

// Detected reports whether the named detector fired.
func (s *Session) Detected(name string) bool {
	return s.activated[name]
}

// FlagGUI records that the program tried to use the windowing API.
func (s *Session) FlagGUI(reason string) {
	s.GUIIntent = true
	for _, r := range s.GUIReasons {
		if r == reason {
			return
		}
	}
	s.GUIReasons = append(s.GUIReasons, reason)
}

// State returns the value stored under key, creating it with init on
// first use. Stub packages keep their per-run state here.
func (s *Session) State(key string, init func() any) any {
	v, ok := s.state[key]
	if !ok {
		v = init()
		s.state[key] = v
	}
	return v
}

// Trace reports stub activity for the import currently being handled.
func (s *Session) Trace(category, detail string) {
	var (
		rip  uint64
		name string
	)
	if s.call != nil {
		rip, name = s.call.Site, s.call.Name()
	}
	if s.registry != nil {
		s.registry.log(s, rip, category, name, detail)
		return
	}
	s.Log.Trace(rip, category, name, detail)
}
