// Package mcpserver exposes acronym lookups and dictionary refresh as MCP
// tools over stdio.
package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/sagerenn/acrodict/internal/refresh"
	"github.com/sagerenn/acrodict/internal/service"
)

const serverName = "acrodict"

type Tools struct {
	svc *service.Service
	mgr *refresh.Manager
}

func NewTools(svc *service.Service, mgr *refresh.Manager) *Tools {
	return &Tools{svc: svc, mgr: mgr}
}

// LookupInput defines input for the lookup_acronym tool
type LookupInput struct {
	Acronym string `json:"acronym" jsonschema:"the acronym to look up, e.g. LOL or U.S.A."`
}

// LookupOutput defines output for the lookup_acronym tool
type LookupOutput struct {
	Acronym     string   `json:"acronym"`
	Definitions []string `json:"definitions"`
	Found       bool     `json:"found"`
}

type StatsInput struct{}

type RefreshInput struct{}

type StatsOutput struct {
	Source   string `json:"source"`
	LoadedAt string `json:"loaded_at"`
	Acronyms int    `json:"acronyms"`
	Entries  int    `json:"entries"`
	Skipped  int    `json:"skipped"`
}

type RefreshOutput struct {
	Job      string `json:"job"`
	State    string `json:"state"`
	Bytes    int64  `json:"bytes"`
	Acronyms int    `json:"acronyms"`
	Entries  int    `json:"entries"`
}

var errNotLoaded = errors.New("dictionary not loaded, call refresh_dictionary first")

func (t *Tools) LookupAcronym(ctx context.Context, req *mcp.CallToolRequest, in LookupInput) (*mcp.CallToolResult, LookupOutput, error) {
	if strings.TrimSpace(in.Acronym) == "" {
		return nil, LookupOutput{}, errors.New("acronym is required")
	}
	res, err := t.svc.Lookup(in.Acronym)
	if errors.Is(err, service.ErrNotLoaded) {
		return nil, LookupOutput{}, errNotLoaded
	}
	if err != nil {
		return nil, LookupOutput{}, err
	}
	return nil, LookupOutput{Acronym: res.Acronym, Definitions: res.Definitions, Found: res.Found()}, nil
}

func (t *Tools) DictionaryStats(ctx context.Context, req *mcp.CallToolRequest, in StatsInput) (*mcp.CallToolResult, StatsOutput, error) {
	st, err := t.svc.Stats()
	if errors.Is(err, service.ErrNotLoaded) {
		return nil, StatsOutput{}, errNotLoaded
	}
	if err != nil {
		return nil, StatsOutput{}, err
	}
	return nil, StatsOutput{
		Source:   st.Source,
		LoadedAt: st.LoadedAt.Format(time.RFC3339),
		Acronyms: st.Acronyms,
		Entries:  st.Entries,
		Skipped:  st.Skipped,
	}, nil
}

// RefreshDictionary downloads the dictionary and waits for the job. If the
// tool call is cancelled the download keeps running in the background.
func (t *Tools) RefreshDictionary(ctx context.Context, req *mcp.CallToolRequest, in RefreshInput) (*mcp.CallToolResult, RefreshOutput, error) {
	job := t.mgr.Refresh(refresh.Sink{})
	if err := job.Wait(ctx); err != nil {
		return nil, RefreshOutput{}, fmt.Errorf("refresh %s: %w", job.ID(), err)
	}
	st := job.Status()
	out := RefreshOutput{Job: st.ID, State: string(st.State), Bytes: st.Progress.Transferred}
	if ds, err := t.svc.Stats(); err == nil {
		out.Acronyms = ds.Acronyms
		out.Entries = ds.Entries
	}
	return nil, out, nil
}

// New builds an MCP server with all acrodict tools registered.
func New(t *Tools, version string) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: serverName, Version: version}, nil)

	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "lookup_acronym",
			Description: "Look up every known definition of an acronym. Matching is exact after upper-casing; dotted input like u.s.a. is treated as USA.",
		},
		t.LookupAcronym,
	)
	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "dictionary_stats",
			Description: "Report how many acronyms and definitions the loaded dictionary holds.",
		},
		t.DictionaryStats,
	)
	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "refresh_dictionary",
			Description: "Download the acronym dictionary again and reload it. Cancels a download already in progress.",
		},
		t.RefreshDictionary,
	)
	return server
}

// Run serves the tools on stdin/stdout until ctx is done or the client
// disconnects.
func Run(ctx context.Context, t *Tools, version string) error {
	return New(t, version).Run(ctx, &mcp.StdioTransport{})
}
