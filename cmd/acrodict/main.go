package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sagerenn/acrodict/internal/config"
	"github.com/sagerenn/acrodict/internal/fetch"
	"github.com/sagerenn/acrodict/internal/httpx"
	"github.com/sagerenn/acrodict/internal/mcpserver"
	"github.com/sagerenn/acrodict/internal/observability"
	"github.com/sagerenn/acrodict/internal/refresh"
	"github.com/sagerenn/acrodict/internal/service"
)

const version = "1.0.0"

func main() {
	os.Exit(run())
}

// run returns the process exit code.
func run() int {
	cfgPath := flag.String("config", "", "path to JSON config (defaults and ACRODICT_* env when empty)")
	lookup := flag.String("lookup", "", "print the definitions of an acronym and exit")
	forceRefresh := flag.Bool("refresh", false, "download the dictionary before doing anything else")
	mcpMode := flag.Bool("mcp", false, "serve MCP tools on stdio instead of HTTP")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return fail("config", err)
	}

	log := observability.New(cfg.Log.Level)
	if *mcpMode || *lookup != "" {
		log = observability.NewWithWriter(cfg.Log.Level, os.Stderr)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc := service.New(cfg.Dictionary.Path, service.Options{
		UseIndexCache: cfg.Dictionary.IndexCache,
		CacheSize:     cfg.Dictionary.CacheSize,
		CacheTTL:      cfg.Dictionary.CacheTTL,
	}, log)
	fetcher := fetch.New(&http.Client{Timeout: cfg.Dictionary.FetchTimeout}, cfg.Dictionary.ChunkSize)
	mgr := refresh.NewManager(fetcher, cfg.Dictionary.URL, cfg.Dictionary.Path, svc.Reload, log)
	defer mgr.Close()

	if err := bootstrap(ctx, svc, mgr, *forceRefresh, log); err != nil {
		log.Error("dictionary unavailable", "path", cfg.Dictionary.Path, "error", err)
	}

	switch {
	case *lookup != "":
		return runLookup(svc, *lookup, os.Stdout, os.Stderr)
	case *mcpMode:
		if err := mcpserver.Run(ctx, mcpserver.NewTools(svc, mgr), version); err != nil && !errors.Is(err, context.Canceled) {
			return fail("mcp", err)
		}
	default:
		if err := serve(ctx, cfg, svc, mgr, log); err != nil {
			return fail("server", err)
		}
	}
	return 0
}

// bootstrap downloads the dictionary when it is missing (or when forced) and
// loads it. A failed download still leaves any existing file loadable.
func bootstrap(ctx context.Context, svc *service.Service, mgr *refresh.Manager, force bool, log *observability.Logger) error {
	_, statErr := os.Stat(svc.Path())
	if force || errors.Is(statErr, fs.ErrNotExist) {
		log.Info("downloading dictionary", "path", svc.Path())
		err := mgr.Refresh(refresh.LogSink(log)).Wait(ctx)
		if err == nil {
			return nil
		}
		log.Error("download failed", "error", err)
	}
	return svc.Reload()
}

// runLookup prints each definition on its own line. It returns 0 when found,
// 1 when not found and 2 when no dictionary is loaded.
func runLookup(svc *service.Service, acronym string, stdout, stderr io.Writer) int {
	res, err := svc.Lookup(acronym)
	if errors.Is(err, service.ErrNotLoaded) {
		fmt.Fprintln(stderr, "dictionary not loaded, run with -refresh")
		return 2
	}
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}
	if !res.Found() {
		fmt.Fprintf(stderr, "Gee... I don't know what %s means...\n", res.Acronym)
		return 1
	}
	for _, d := range res.Definitions {
		fmt.Fprintln(stdout, d)
	}
	return 0
}

func serve(ctx context.Context, cfg config.Config, svc *service.Service, mgr *refresh.Manager, log *observability.Logger) error {
	h := httpx.NewRouter(svc, mgr, log, cfg.URLBasePath)
	srv := &http.Server{
		Addr:         cfg.Listen,
		Handler:      h,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.Listen)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	log.Info("server stopped")
	return nil
}

func fail(stage string, err error) int {
	_, _ = os.Stderr.WriteString(stage + ": " + err.Error() + "\n")
	return 1
}
