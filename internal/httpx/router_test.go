package httpx

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sagerenn/acrodict/internal/fetch"
	"github.com/sagerenn/acrodict/internal/observability"
	"github.com/sagerenn/acrodict/internal/refresh"
	"github.com/sagerenn/acrodict/internal/service"
)

type lookupResp struct {
	Query       string   `json:"query"`
	Acronym     string   `json:"acronym"`
	Definitions []string `json:"definitions"`
	Count       int      `json:"count"`
	Found       bool     `json:"found"`
}

type fixture struct {
	handler http.Handler
	mgr     *refresh.Manager
}

// setupRouter serves upstream as the remote dictionary. When local is not
// empty it is written to disk and loaded before the router is built.
func setupRouter(t *testing.T, local, upstream, basePath string) *fixture {
	t.Helper()
	remote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, upstream)
	}))
	t.Cleanup(remote.Close)

	path := filepath.Join(t.TempDir(), "acronyms.db")
	log := observability.NewWithWriter("error", io.Discard)
	svc := service.New(path, service.Options{}, log)
	if local != "" {
		if err := os.WriteFile(path, []byte(local), 0644); err != nil {
			t.Fatal(err)
		}
		if err := svc.Reload(); err != nil {
			t.Fatal(err)
		}
	}
	mgr := refresh.NewManager(fetch.New(nil, 0), remote.URL, path, svc.Reload, log)
	t.Cleanup(mgr.Close)
	return &fixture{handler: NewRouter(svc, mgr, log, basePath), mgr: mgr}
}

func do(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeLookup(t *testing.T, rr *httptest.ResponseRecorder) lookupResp {
	t.Helper()
	var resp lookupResp
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	return resp
}

func TestHealth(t *testing.T) {
	f := setupRouter(t, "", "", "")
	rr := do(t, f.handler, http.MethodGet, "/health")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"loaded":false`) {
		t.Fatalf("unexpected body %s", rr.Body.String())
	}
}

func TestLookup(t *testing.T) {
	f := setupRouter(t, "LOL\tlaugh out loud\nLOL\tlots of love\n", "", "")
	rr := do(t, f.handler, http.MethodGet, "/lookup?q=lol")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	resp := decodeLookup(t, rr)
	if !resp.Found || resp.Count != 2 || resp.Acronym != "LOL" || resp.Definitions[1] != "lots of love" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if rr.Header().Get(observability.RequestIDHeader) == "" {
		t.Fatal("missing request id header")
	}
}

func TestLookupDotted(t *testing.T) {
	f := setupRouter(t, "USA\tUnited States of America\n", "", "")
	resp := decodeLookup(t, do(t, f.handler, http.MethodGet, "/lookup?q=u.s.a."))
	if !resp.Found || resp.Acronym != "USA" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestLookupNotFound(t *testing.T) {
	f := setupRouter(t, "BTW\tby the way\n", "", "")
	rr := do(t, f.handler, http.MethodGet, "/lookup?q=idk")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	resp := decodeLookup(t, rr)
	if resp.Found || resp.Count != 0 || resp.Definitions == nil {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestLookupErrors(t *testing.T) {
	f := setupRouter(t, "", "", "")
	if rr := do(t, f.handler, http.MethodGet, "/lookup"); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if rr := do(t, f.handler, http.MethodGet, "/lookup?q=btw"); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 before load, got %d", rr.Code)
	}
	if rr := do(t, f.handler, http.MethodGet, "/stats"); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 stats before load, got %d", rr.Code)
	}
}

func TestEntry(t *testing.T) {
	f := setupRouter(t, "LOL\tlaugh out loud\nLOL\tlots of love\n", "", "")
	rr := do(t, f.handler, http.MethodGet, "/entry?q=lol")
	if rr.Code != http.StatusOK || rr.Body.String() != "laugh out loud\nlots of love\n" {
		t.Fatalf("unexpected entry response %d %q", rr.Code, rr.Body.String())
	}
	if !strings.HasPrefix(rr.Header().Get("Content-Type"), "text/plain") {
		t.Fatalf("unexpected content type %q", rr.Header().Get("Content-Type"))
	}
	if rr := do(t, f.handler, http.MethodGet, "/entry?q=wtf"); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestStats(t *testing.T) {
	f := setupRouter(t, "A\tone\nA\ttwo\nbad line\n", "", "")
	rr := do(t, f.handler, http.MethodGet, "/stats")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var st struct {
		Acronyms int `json:"acronyms"`
		Entries  int `json:"entries"`
		Skipped  int `json:"skipped"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &st); err != nil {
		t.Fatal(err)
	}
	if st.Acronyms != 1 || st.Entries != 2 || st.Skipped != 1 {
		t.Fatalf("unexpected stats %+v", st)
	}
}

func TestRefreshLoadsDictionary(t *testing.T) {
	f := setupRouter(t, "", "WTF\twhat the fun\n", "")
	if rr := do(t, f.handler, http.MethodGet, "/refresh"); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before any refresh, got %d", rr.Code)
	}
	rr := do(t, f.handler, http.MethodPost, "/refresh")
	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rr.Code)
	}
	job, ok := f.mgr.Current()
	if !ok {
		t.Fatal("no job started")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := job.Wait(ctx); err != nil {
		t.Fatal(err)
	}
	resp := decodeLookup(t, do(t, f.handler, http.MethodGet, "/lookup?q=wtf"))
	if !resp.Found || resp.Definitions[0] != "what the fun" {
		t.Fatalf("unexpected response after refresh: %+v", resp)
	}
	rr = do(t, f.handler, http.MethodGet, "/refresh")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"state":"succeeded"`) {
		t.Fatalf("unexpected status response %d %s", rr.Code, rr.Body.String())
	}
	if rr := do(t, f.handler, http.MethodPut, "/refresh"); rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rr.Code)
	}
}

func TestBasePath(t *testing.T) {
	f := setupRouter(t, "BTW\tby the way\n", "", "/wtf/")
	if rr := do(t, f.handler, http.MethodGet, "/wtf/lookup?q=btw"); rr.Code != http.StatusOK {
		t.Fatalf("expected 200 under base path, got %d", rr.Code)
	}
}

func TestDebugVars(t *testing.T) {
	f := setupRouter(t, "", "", "")
	rr := do(t, f.handler, http.MethodGet, "/debug/vars")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "lookups_total") {
		t.Fatalf("expected expvar output, got %s", rr.Body.String())
	}
}
