package ads

import (
	"fmt"
	"html/template"
	"log/slog"
	"sync"
)

// Injector adds and removes the third-party ad script.
type Injector interface {
	Inject() error
	Remove() error
}

// Service owns the single answer to "is the ad script injected". Enable and
// Disable only touch the injector on an actual state change.
type Service struct {
	injector Injector
	logger   *slog.Logger

	mu      sync.Mutex
	enabled bool
}

func NewService(injector Injector, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{injector: injector, logger: logger}
}

func (s *Service) Enable() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.enabled {
		return nil
	}
	if err := s.injector.Inject(); err != nil {
		return fmt.Errorf("ads: inject: %w", err)
	}
	s.enabled = true
	s.logger.Info("ad script enabled")
	return nil
}

func (s *Service) Disable() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.enabled {
		return nil
	}
	if err := s.injector.Remove(); err != nil {
		return fmt.Errorf("ads: remove: %w", err)
	}
	s.enabled = false
	s.logger.Info("ad script disabled")
	return nil
}

func (s *Service) IsEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// Set enables or disables the script.
func (s *Service) Set(enabled bool) error {
	if enabled {
		return s.Enable()
	}
	return s.Disable()
}

// ScriptTag is an Injector for server-rendered pages: while injected, Tag
// returns the script element to place in the page head.
type ScriptTag struct {
	src string

	mu  sync.RWMutex
	tag template.HTML
}

func NewScriptTag(src string) *ScriptTag {
	return &ScriptTag{src: src}
}

func (s *ScriptTag) Inject() error {
	if s.src == "" {
		return fmt.Errorf("no ad script url configured")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tag = template.HTML(`<script async src="` + template.HTMLEscapeString(s.src) + `"></script>`)
	return nil
}

func (s *ScriptTag) Remove() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tag = ""
	return nil
}

// Tag returns the script element, or "" when not injected.
func (s *ScriptTag) Tag() template.HTML {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tag
}
