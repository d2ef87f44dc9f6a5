package service

import (
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sagerenn/acrodict/internal/cache"
	"github.com/sagerenn/acrodict/internal/dict"
	"github.com/sagerenn/acrodict/internal/dict/filedict"
	"github.com/sagerenn/acrodict/internal/observability"
)

// ErrNotLoaded means no dictionary has been loaded yet. Callers should offer
// a refresh rather than report an empty dictionary.
var ErrNotLoaded = errors.New("dictionary not loaded")

type Options struct {
	UseIndexCache bool
	CacheSize     int
	CacheTTL      time.Duration
}

type Result struct {
	Query       string   `json:"query"`
	Acronym     string   `json:"acronym"`
	Definitions []string `json:"definitions"`
}

func (r Result) Found() bool {
	return len(r.Definitions) > 0
}

// snapshot pairs an index with the result cache built against it so both are
// replaced by one pointer store.
type snapshot struct {
	idx   *filedict.Index
	cache *cache.Cache[[]string]
}

type Service struct {
	path    string
	opts    Options
	log     *observability.Logger
	current atomic.Pointer[snapshot]
}

func New(path string, opts Options, log *observability.Logger) *Service {
	if opts.CacheSize <= 0 {
		opts.CacheSize = 1024
	}
	return &Service{path: path, opts: opts, log: log}
}

func (s *Service) Path() string {
	return s.path
}

// Reload parses the dictionary file into a new index and swaps it in. On
// error the previous index, if any, stays in service.
func (s *Service) Reload() error {
	start := time.Now()
	idx, err := filedict.Load(s.path, filedict.Options{
		UseCache: s.opts.UseIndexCache,
		OnSkip: func(n int, line string) {
			s.log.Debug("skipping malformed line", "path", s.path, "line", n, "text", truncate(line, 80))
		},
	})
	if err != nil {
		return err
	}
	s.current.Store(&snapshot{
		idx:   idx,
		cache: cache.New[[]string](s.opts.CacheSize, s.opts.CacheTTL),
	})
	st := idx.Stats()
	if st.Cached && st.Skipped > 0 {
		s.log.Debug("malformed lines skipped in cached index", "path", s.path, "skipped", st.Skipped)
	}
	observability.IndexReloads.Add(1)
	observability.LinesSkipped.Add(int64(st.Skipped))
	s.log.Info("dictionary loaded",
		"path", s.path,
		"acronyms", st.Acronyms,
		"entries", st.Entries,
		"skipped", st.Skipped,
		"cached", st.Cached,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func (s *Service) Loaded() bool {
	return s.current.Load() != nil
}

// Lookup answers an exact-match query. A missing key is a Result with no
// definitions, not an error.
func (s *Service) Lookup(raw string) (Result, error) {
	snap := s.current.Load()
	if snap == nil {
		return Result{}, ErrNotLoaded
	}
	query := strings.TrimSpace(raw)
	key := dict.NormalizeAcronym(query)
	observability.LookupsTotal.Add(1)

	defs, ok := snap.cache.Get(key)
	if !ok {
		defs, _ = snap.idx.Lookup(query)
		snap.cache.Set(key, defs)
	}
	if len(defs) == 0 {
		observability.LookupsNotFound.Add(1)
		return Result{Query: query, Acronym: key, Definitions: []string{}}, nil
	}
	out := make([]string, len(defs))
	copy(out, defs)
	return Result{Query: query, Acronym: key, Definitions: out}, nil
}

func (s *Service) Stats() (filedict.Stats, error) {
	snap := s.current.Load()
	if snap == nil {
		return filedict.Stats{}, ErrNotLoaded
	}
	return snap.idx.Stats(), nil
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	i := 0
	for j := range s {
		if i == n {
			return s[:j] + "..."
		}
		i++
	}
	return s
}
