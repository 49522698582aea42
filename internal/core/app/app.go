// Package app wires one analysis session: the adapter registry, aggregator,
// fix broker, apply controller and history store share a single immutable
// configuration snapshot.
package app

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"coderefactor/internal/core/config"
	"coderefactor/internal/core/issue"
	"coderefactor/internal/core/ports"
	"coderefactor/internal/data/history"
	"coderefactor/internal/engine/adapters"
	"coderefactor/internal/engine/aggregate"
	"coderefactor/internal/engine/apply"
	"coderefactor/internal/engine/fix"
	"coderefactor/internal/engine/oracle"
	"coderefactor/internal/engine/parser"
)

// Dependencies overrides the collaborators New would build from config.
type Dependencies struct {
	Parser  *parser.Parser
	Runner  adapters.Runner
	Oracle  ports.Oracle
	History ports.HistoryStore
	Fixers  []ports.Fixer
	Now     func() time.Time
}

// Session holds all per-session state. Nothing here is global; callers pass
// the session explicitly.
type Session struct {
	ID        string
	Config    *config.Config
	Analyzer  config.AnalyzerConfig
	StartedAt time.Time

	Parser     *parser.Parser
	Registry   *adapters.Registry
	Aggregator *aggregate.Aggregator
	Walker     *aggregate.Walker
	Broker     *fix.Broker
	Controller *apply.Controller

	history  ports.HistoryStore
	recorder *history.Recorder
	closers  []func() error
	oracleOn bool

	mu      sync.RWMutex
	results map[string]issue.AnalysisResult
}

func New(cfg *config.Config) (*Session, error) {
	return NewWithDependencies(cfg, Dependencies{})
}

// NewWithDependencies builds a session, filling unset dependencies from cfg.
// A missing oracle key or an unopenable history database degrades the
// session instead of failing it.
func NewWithDependencies(cfg *config.Config, deps Dependencies) (*Session, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	s := &Session{
		ID:        uuid.NewString(),
		Config:    cfg,
		Analyzer:  cfg.Analyzer(),
		StartedAt: deps.Now().UTC(),
		results:   make(map[string]issue.AnalysisResult),
	}

	p := deps.Parser
	if p == nil {
		var err error
		if p, err = parser.NewDefaultParser(); err != nil {
			return nil, fmt.Errorf("init parser: %w", err)
		}
	}
	s.Parser = p

	registry, err := adapters.Default(cfg, p, deps.Runner)
	if err != nil {
		return nil, fmt.Errorf("build adapter registry: %w", err)
	}
	s.Registry = registry
	s.Aggregator = aggregate.New(registry.Profiles())

	walker, err := aggregate.NewWalker(cfg.Project.Include, cfg.Project.Exclude, p.Registry())
	if err != nil {
		return nil, err
	}
	s.Walker = walker

	orc := deps.Oracle
	if orc == nil && cfg.Oracle.Enabled {
		client, err := oracle.FromConfig(cfg.Oracle)
		if err != nil {
			slog.Warn("oracle disabled", "error", err)
		} else {
			orc = client
		}
	}
	s.oracleOn = orc != nil

	fixers := deps.Fixers
	if fixers == nil {
		fixers = fix.DefaultFixers()
	}
	s.Broker = fix.NewBroker(fixers, orc, parser.NewValidator(p), fix.Options{
		OracleTimeout:   cfg.Fix.OracleTimeout,
		RetryBackoff:    cfg.Fix.RetryBackoff,
		OracleForManual: cfg.Fix.OracleForManual,
	})
	s.Controller = apply.NewController(s.Broker)

	store := deps.History
	if store == nil && cfg.DB.Enabled {
		opened, err := history.Open(cfg.DB.Path, cfg.DB.BusyTimeout)
		if err != nil {
			slog.Warn("history disabled", "path", cfg.DB.Path, "error", err)
		} else {
			store = opened
			s.closers = append(s.closers, opened.Close)
		}
	}
	if store != nil {
		s.history = store
		s.recorder = history.NewRecorder(store)
	}

	slog.Debug("session started",
		"session_id", s.ID,
		"adapters", registry.Names(),
		"oracle", s.oracleOn,
		"history", s.history != nil,
	)
	return s, nil
}

// History returns the configured store, or nil.
func (s *Session) History() ports.HistoryStore {
	return s.history
}

// Close releases resources owned by the session.
func (s *Session) Close() error {
	var first error
	for _, closer := range s.closers {
		if err := closer(); err != nil && first == nil {
			first = err
		}
	}
	s.closers = nil
	return first
}

func (s *Session) remember(res issue.AnalysisResult) {
	s.mu.Lock()
	s.results[res.FilePath] = res
	s.mu.Unlock()
}

// Result returns the latest analysis result for path.
func (s *Session) Result(path string) (issue.AnalysisResult, bool) {
	if path == "" {
		path = issue.BufferPath
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	res, ok := s.results[path]
	return res, ok
}

// FindIssue looks an issue id up across every result of the session.
func (s *Session) FindIssue(id string) (issue.Issue, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, res := range s.results {
		if is, ok := res.Find(id); ok {
			return is, true
		}
	}
	return issue.Issue{}, false
}
