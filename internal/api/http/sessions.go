package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mind-engage/mindengage-study/internal/exam"
	"github.com/mind-engage/mindengage-study/internal/genai"
	"github.com/mind-engage/mindengage-study/internal/session"
)

var errSessionGone = errors.New("session not found or expired")

// Generator is everything the study endpoints need from the LLM backend.
type Generator interface {
	exam.GenerationService
	GenerateNotes(ctx context.Context, material string) (string, error)
	GenerateFlashcards(ctx context.Context, material string, count int) ([]genai.Flashcard, error)
}

// GeneratorSource returns a generator for a caller-supplied API key, or for
// the platform key when apiKey is empty.
type GeneratorSource func(apiKey string) (Generator, error)

// SessionGauge tracks live sessions.
type SessionGauge interface {
	SessionOpened()
	SessionClosed()
}

type SessionOptions struct {
	Store      exam.AttemptStore
	Generators GeneratorSource
	Issuer     *session.Issuer
	TTL        time.Duration // idle sessions older than this are swept
	Timeout    time.Duration // per generation call
	AllowBYOK  bool
	Recorder   exam.Recorder
	Gauge      SessionGauge
	Logger     *zap.Logger
	Now        func() time.Time
}

type studySession struct {
	ctrl     *exam.Controller
	gen      Generator
	lastSeen time.Time
}

// Sessions owns one exam controller per browser session.
type Sessions struct {
	opts SessionOptions

	mu   sync.Mutex
	byID map[string]*studySession
}

func NewSessions(opts SessionOptions) *Sessions {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.TTL <= 0 {
		opts.TTL = 12 * time.Hour
	}
	return &Sessions{opts: opts, byID: map[string]*studySession{}}
}

// Open starts a session bound to subject and returns its id and bearer token.
func (s *Sessions) Open(subject exam.Subject, apiKey string) (string, string, error) {
	if apiKey != "" && !s.opts.AllowBYOK {
		return "", "", fmt.Errorf("%w: caller-supplied API keys are disabled", exam.ErrValidation)
	}
	gen, err := s.opts.Generators(apiKey)
	if err != nil {
		if errors.Is(err, genai.ErrMissingAPIKey) {
			return "", "", fmt.Errorf("%w: %w", exam.ErrValidation, err)
		}
		return "", "", err
	}
	sid, token, err := s.opts.Issuer.Issue(subject.ID)
	if err != nil {
		return "", "", err
	}
	ctrl := exam.NewController(gen, s.opts.Store, exam.Options{
		Subject:  subject,
		Timeout:  s.opts.Timeout,
		Logger:   s.opts.Logger.With(zap.String("session_id", sid)),
		Recorder: s.opts.Recorder,
	})

	s.mu.Lock()
	s.byID[sid] = &studySession{ctrl: ctrl, gen: gen, lastSeen: s.opts.Now()}
	s.mu.Unlock()
	if s.opts.Gauge != nil {
		s.opts.Gauge.SessionOpened()
	}
	s.opts.Logger.Info("session opened", zap.String("session_id", sid), zap.String("subject_id", subject.ID), zap.Bool("byok", apiKey != ""))
	return sid, token, nil
}

func (s *Sessions) get(sid string) (*studySession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ss, ok := s.byID[sid]
	if !ok {
		return nil, errSessionGone
	}
	ss.lastSeen = s.opts.Now()
	return ss, nil
}

// Sweep drops sessions idle for longer than the TTL and reports how many.
func (s *Sessions) Sweep() int {
	cutoff := s.opts.Now().Add(-s.opts.TTL)
	s.mu.Lock()
	n := 0
	for id, ss := range s.byID {
		if ss.lastSeen.Before(cutoff) && !ss.ctrl.State().Transient() {
			delete(s.byID, id)
			n++
		}
	}
	s.mu.Unlock()
	if s.opts.Gauge != nil {
		for i := 0; i < n; i++ {
			s.opts.Gauge.SessionClosed()
		}
	}
	if n > 0 {
		s.opts.Logger.Info("sessions expired", zap.Int("count", n))
	}
	return n
}

// RunSweeper sweeps every interval until ctx is done.
func (s *Sessions) RunSweeper(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Sweep()
		}
	}
}

func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}

// callContext bounds a direct generator call by the generation timeout.
func (s *Sessions) callContext(r *http.Request) (context.Context, context.CancelFunc) {
	if s.opts.Timeout > 0 {
		return context.WithTimeout(r.Context(), s.opts.Timeout)
	}
	return context.WithCancel(r.Context())
}
