package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

const DefaultChunkSize = 4096

// Progress is reported after every chunk. Total is <= 0 when the server did
// not send a Content-Length.
type Progress struct {
	Transferred int64 `json:"transferred"`
	Total       int64 `json:"total"`
}

func (p Progress) Indeterminate() bool {
	return p.Total <= 0
}

// Percent is 0..100, or -1 when the total is unknown.
func (p Progress) Percent() int {
	if p.Indeterminate() {
		return -1
	}
	pct := p.Transferred * 100 / p.Total
	if pct > 100 {
		pct = 100
	}
	return int(pct)
}

type Fetcher struct {
	client    *http.Client
	chunkSize int
}

func New(client *http.Client, chunkSize int) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Minute}
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Fetcher{client: client, chunkSize: chunkSize}
}

// Fetch downloads url into dest. The body goes to a temp file next to dest
// that is renamed over dest only after the whole body has been written; on
// any error or cancellation the temp file is removed and dest is untouched.
// onProgress may be nil.
func (f *Fetcher) Fetch(ctx context.Context, url, dest string, onProgress func(Progress)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &NetworkError{URL: url, Err: err}
	}
	resp, err := f.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("download canceled: %w", ctxErr)
		}
		return &NetworkError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &StatusError{Code: resp.StatusCode, Status: resp.Status}
	}

	counter := &countingReader{r: resp.Body}
	src := decodeBody(counter, resp.Header.Get("Content-Type"))

	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return &IOError{Op: "mkdir", Path: dir, Err: err}
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(dest)+".part.*")
	if err != nil {
		return &IOError{Op: "create", Path: dir, Err: err}
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	buf := make([]byte, f.chunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("download canceled: %w", err)
		}
		n, rerr := src.Read(buf)
		if n > 0 {
			if _, err := tmp.Write(buf[:n]); err != nil {
				return &IOError{Op: "write", Path: tmpName, Err: err}
			}
			if onProgress != nil {
				onProgress(Progress{Transferred: counter.n, Total: resp.ContentLength})
			}
		}
		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return fmt.Errorf("download canceled: %w", ctxErr)
			}
			return &NetworkError{URL: url, Err: rerr}
		}
	}

	if err := tmp.Chmod(0644); err != nil {
		return &IOError{Op: "chmod", Path: tmpName, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		return &IOError{Op: "sync", Path: tmpName, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &IOError{Op: "close", Path: tmpName, Err: err}
	}
	if err := os.Rename(tmpName, dest); err != nil {
		_ = os.Remove(tmpName)
		committed = true
		return &IOError{Op: "rename", Path: dest, Err: err}
	}
	committed = true
	return nil
}

// decodeBody transcodes to UTF-8 when Content-Type names another charset.
// Unknown charsets pass through unchanged.
func decodeBody(r io.Reader, contentType string) io.Reader {
	if contentType == "" {
		return r
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil || params["charset"] == "" {
		return r
	}
	enc, err := htmlindex.Get(params["charset"])
	if err != nil {
		return r
	}
	if name, _ := htmlindex.Name(enc); name == "utf-8" {
		return r
	}
	return transform.NewReader(r, enc.NewDecoder())
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
