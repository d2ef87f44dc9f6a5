package filedict

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/sagerenn/acrodict/internal/dict"
	"github.com/sagerenn/acrodict/internal/indexcache"
)

// LoadError reports that the dictionary file could not be read.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load dictionary %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

type Options struct {
	// UseCache reads and writes the gob index next to the source file.
	UseCache bool
	// OnSkip is called for every line without a tab, with its 1-based number.
	OnSkip func(lineNo int, line string)
}

// Index maps acronyms to their definitions in file order. It is immutable
// once returned by Load.
type Index struct {
	source   string
	loadedAt time.Time
	keys     []string
	entries  map[string][]string
	lines    int
	skipped  int
	cached   bool
}

type Stats struct {
	Source   string    `json:"source"`
	LoadedAt time.Time `json:"loaded_at"`
	Acronyms int       `json:"acronyms"`
	Entries  int       `json:"entries"`
	Lines    int       `json:"lines"`
	Skipped  int       `json:"skipped"`
	Cached   bool      `json:"cached"`
}

// Load reads the tab-separated dictionary at path. Lines without a tab are
// skipped. Keys are stored exactly as written in the file.
func Load(path string, opts Options) (*Index, error) {
	if opts.UseCache {
		if c, ok, err := indexcache.Load(path); err == nil && ok {
			return &Index{
				source:   path,
				loadedAt: time.Now(),
				keys:     c.Keys,
				entries:  c.Entries,
				lines:    c.Lines,
				skipped:  c.Skipped,
				cached:   true,
			}, nil
		}
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	defer file.Close()

	idx := &Index{
		source:  path,
		entries: make(map[string][]string),
	}
	r := bufio.NewReaderSize(file, 64*1024)
	for {
		line, err := r.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, &LoadError{Path: path, Err: err}
		}
		if line != "" {
			idx.add(strings.TrimSuffix(strings.TrimSuffix(line, "\n"), "\r"), opts.OnSkip)
		}
		if err != nil {
			break
		}
	}
	idx.loadedAt = time.Now()

	if opts.UseCache {
		_ = indexcache.Save(path, &indexcache.Index{
			Keys:    idx.keys,
			Entries: idx.entries,
			Lines:   idx.lines,
			Skipped: idx.skipped,
		})
	}
	return idx, nil
}

// add records one line. There is no line length limit.
func (x *Index) add(line string, onSkip func(int, string)) {
	x.lines++
	e, ok := dict.ParseLine(line)
	if !ok {
		x.skipped++
		if onSkip != nil {
			onSkip(x.lines, line)
		}
		return
	}
	if _, seen := x.entries[e.Acronym]; !seen {
		x.keys = append(x.keys, e.Acronym)
	}
	x.entries[e.Acronym] = append(x.entries[e.Acronym], e.Definition)
}

// Lookup normalizes acronym and returns a copy of its definitions.
func (x *Index) Lookup(acronym string) ([]string, bool) {
	defs, ok := x.entries[dict.NormalizeAcronym(acronym)]
	if !ok || len(defs) == 0 {
		return nil, false
	}
	return slices.Clone(defs), true
}

func (x *Index) Stats() Stats {
	n := 0
	for _, defs := range x.entries {
		n += len(defs)
	}
	return Stats{
		Source:   x.source,
		LoadedAt: x.loadedAt,
		Acronyms: len(x.entries),
		Entries:  n,
		Lines:    x.lines,
		Skipped:  x.skipped,
		Cached:   x.cached,
	}
}
