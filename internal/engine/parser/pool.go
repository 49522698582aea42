// # internal/engine/parser/pool.go
package parser

import (
	"sync"
	"time"

	sitter "github.com/tree-sitter/go-tree-sitter"
)

// ParserPool recycles tree-sitter parsers for one grammar. Safe for
// concurrent use.
//
//	sp := pool.Get()
//	defer pool.Put(sp)
//	tree := sp.Parse(source, nil)
type ParserPool struct {
	lang *sitter.Language
	pool sync.Pool

	leases   map[*sitter.Parser]time.Time
	leasesMu sync.Mutex
}

// NewParserPool creates a pool for the given language grammar.
func NewParserPool(lang *sitter.Language) *ParserPool {
	p := &ParserPool{
		lang:   lang,
		leases: make(map[*sitter.Parser]time.Time),
	}
	p.pool = sync.Pool{
		New: func() any {
			sp := sitter.NewParser()
			_ = sp.SetLanguage(lang)
			return sp
		},
	}
	return p
}

// Get returns a parser configured for the pool's language.
func (p *ParserPool) Get() *sitter.Parser {
	sp := p.pool.Get().(*sitter.Parser)
	// Reset() may have cleared the language.
	_ = sp.SetLanguage(p.lang)

	p.leasesMu.Lock()
	p.leases[sp] = time.Now()
	p.leasesMu.Unlock()

	return sp
}

// Put resets sp and returns it to the pool. Callers must not use sp after.
func (p *ParserPool) Put(sp *sitter.Parser) {
	if sp == nil {
		return
	}

	p.leasesMu.Lock()
	delete(p.leases, sp)
	p.leasesMu.Unlock()

	sp.Reset()
	p.pool.Put(sp)
}

// Leased returns the number of parsers currently checked out.
func (p *ParserPool) Leased() int {
	p.leasesMu.Lock()
	defer p.leasesMu.Unlock()
	return len(p.leases)
}

// PoolSet lazily creates one ParserPool per language.
type PoolSet struct {
	loader *GrammarLoader

	mu    sync.Mutex
	pools map[string]*ParserPool
}

func NewPoolSet(loader *GrammarLoader) *PoolSet {
	return &PoolSet{loader: loader, pools: make(map[string]*ParserPool)}
}

// For returns the pool for a language id, or nil when no grammar exists.
func (s *PoolSet) For(language string) *ParserPool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pool, ok := s.pools[language]; ok {
		return pool
	}
	lang, ok := s.loader.Language(language)
	if !ok {
		return nil
	}
	pool := NewParserPool(lang)
	s.pools[language] = pool
	return pool
}
