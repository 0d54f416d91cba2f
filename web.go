/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"

	"github.com/Seednode/warroom/internal/autosave"
	"github.com/Seednode/warroom/internal/exercise"
	"github.com/Seednode/warroom/internal/hub"
	"github.com/Seednode/warroom/internal/store"
)

const (
	timeout time.Duration = 10 * time.Second
)

func securityHeaders(cfg *Config, w http.ResponseWriter) {
	w.Header().Set("Cross-Origin-Embedder-Policy", "require-corp")
	w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
	w.Header().Set("Cross-Origin-Resource-Policy", "same-site")
	w.Header().Set("Permissions-Policy", "geolocation=(), midi=(), sync-xhr=(), microphone=(), camera=(), magnetometer=(), gyroscope=(), fullscreen=(), payment=()")
	w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Content-Security-Policy", "default-src 'self'")

	if cfg.scheme() == "https" {
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")
	}
}

func realIP(r *http.Request) string {
	host, port, _ := net.SplitHostPort(r.RemoteAddr)
	if ip := r.Header.Get("CF-Connecting-IP"); ip != "" {
		if net.ParseIP(ip) != nil {
			host = ip
		}
	} else if ip := r.Header.Get("X-Real-IP"); ip != "" {
		if net.ParseIP(ip) != nil {
			host = ip
		}
	}
	if net.ParseIP(host) != nil && strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if port != "" {
		return host + ":" + port
	}
	return host
}

// humanReadableSize formats a byte count for request logs.
func humanReadableSize(bytes int64) string {
	const unit int64 = 1000
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := unit, 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "kMGTPE"[exp])
}

func serveVersion(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		startTime := time.Now()

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		securityHeaders(cfg, w)
		w.WriteHeader(http.StatusOK)

		written, err := w.Write([]byte("warroom v" + releaseVersion + "\n"))
		if err != nil {
			errs <- err

			return
		}

		logf(cfg, "SERVE: Version page (%s) to %s in %s",
			humanReadableSize(int64(written)),
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
		)
	}
}

// openStores returns the local backend and, when configured, the remote one.
func openStores(ctx context.Context, cfg *Config) (remote, local store.Backend, err error) {
	dataDir := cfg.dataDir
	if dataDir == "" {
		dataDir = ":memory:"
	}

	sqlite, err := store.OpenSQLite(dataDir, cfg.localQuota)
	if err != nil {
		return nil, nil, err
	}

	switch cfg.remote {
	case remoteRedis:
		rdb, err := store.OpenRedis(ctx, cfg.redisURL, "")
		if err != nil {
			_ = sqlite.Close()
			return nil, nil, err
		}
		return rdb, sqlite, nil
	case remotePostgres:
		pg, err := store.OpenPostgres(ctx, cfg.postgresURL)
		if err != nil {
			_ = sqlite.Close()
			return nil, nil, err
		}
		return pg, sqlite, nil
	default:
		return nil, sqlite, nil
	}
}

// resyncLoop pushes locally held writes back to the remote store.
func resyncLoop(ctx context.Context, cfg *Config, layer *store.Layer) {
	if layer.Remote() == nil || cfg.resyncInterval <= 0 {
		return
	}

	ticker := time.NewTicker(cfg.resyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pushed, err := layer.Resync(ctx)
			if err != nil {
				cfg.logger.Warn("SYNC: resync incomplete", zap.Int("pushed", pushed), zap.Error(err))
				continue
			}
			if pushed > 0 {
				logf(cfg, "SYNC: Pushed %d keys to %s", pushed, layer.Remote().Name())
			}
		}
	}
}

// newRouter registers every route of the server on a fresh router.
func newRouter(cfg *Config, a *api, errs chan<- error) *httprouter.Router {
	mux := httprouter.New()

	mux.PanicHandler = func(w http.ResponseWriter, r *http.Request, i any) {
		if strings.HasPrefix(r.URL.Path, cfg.prefix+"/api/") {
			writeError(cfg, w, errors.New("panic serving request"))
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		securityHeaders(cfg, w)
		w.WriteHeader(http.StatusInternalServerError)

		_, _ = io.WriteString(w, newPage("Server Error", "An error has occurred. Please try again."))
	}

	mux.GET(cfg.prefix+"/", serveHomePage(cfg, a.svc, errs))

	mux.GET(cfg.prefix+"/healthz", serveHealthCheck(cfg, errs))

	mux.GET(cfg.prefix+"/robots.txt", serveRobots(cfg, errs))

	mux.GET(cfg.prefix+"/version", serveVersion(cfg, errs))

	if cfg.profile {
		registerProfileHandlers(cfg, mux)
	}

	registerAPI(a, mux)

	return mux
}

func ServePage(ctx context.Context, cfg *Config, args []string) error {
	var err error

	timeZone := os.Getenv("TZ")
	if timeZone != "" {
		time.Local, err = time.LoadLocation(timeZone)
		if err != nil {
			return err
		}
	}

	logf(cfg, "START: warroom v%s", releaseVersion)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	remote, local, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}

	layer := store.NewLayer(remote, local, cfg.logger)
	defer func() {
		if err := layer.Close(); err != nil {
			cfg.logger.Warn("STOP: closing stores", zap.Error(err))
		}
	}()

	if remote != nil {
		logf(cfg, "START: Using %s with %s fallback", remote.Name(), local.Name())
	} else {
		logf(cfg, "START: Using %s only", local.Name())
	}

	svc := exercise.New(layer, cfg.logger)

	hubs := hub.NewManager(svc, cfg.logger,
		hub.WithIdleTimeout(cfg.sessionTimeout),
		hub.WithRoleGrace(cfg.roleTimeout),
	)
	hubs.Start(ctx)
	defer hubs.Close()

	layer.Subscribe(hubs.Publish)

	var wg sync.WaitGroup

	if rdb, ok := remote.(*store.Redis); ok {
		relay := hub.NewRelay(rdb.Client(), layer.Origin(), cfg.logger)

		layer.Subscribe(func(c store.Change) {
			if !relay.Enqueue(c) {
				logf(cfg, "SYNC: Relay queue full, dropped change to %s", c.Key)
			}
		})

		wg.Go(func() { relay.Forward(ctx) })
		wg.Go(func() {
			if err := relay.Run(ctx, hubs.Publish); err != nil {
				cfg.logger.Warn("SYNC: relay stopped", zap.Error(err))
			}
		})
	}

	saverOpts := []autosave.Option{autosave.WithInterval(cfg.autosaveInterval)}
	if cfg.autosaveDir != "" {
		if err := os.MkdirAll(cfg.autosaveDir, 0o755); err != nil {
			return err
		}
		saverOpts = append(saverOpts, autosave.WithDir(cfg.autosaveDir, cfg.autosaveKeep))
	}
	saver := autosave.New(svc, layer, cfg.logger, saverOpts...)

	wg.Go(func() { saver.Run(ctx) })
	wg.Go(func() { resyncLoop(ctx, cfg, layer) })

	errs := make(chan error, 64)
	wg.Go(func() {
		for {
			select {
			case <-ctx.Done():
				return
			case err := <-errs:
				logf(cfg, "SERVE: %v", err)
			}
		}
	})

	cfg.prefix = strings.TrimSuffix(cfg.prefix, "/")

	a := &api{
		cfg:   cfg,
		svc:   svc,
		hubs:  hubs,
		saver: saver,
		layer: layer,
	}

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.bind, strconv.Itoa(cfg.port)),
		Handler:           newRouter(cfg, a, errs),
		IdleTimeout:       10 * time.Minute,
		ReadTimeout:       timeout,
		ReadHeaderTimeout: timeout,
		WriteTimeout:      timeout,
	}

	failed := make(chan error, 1)
	go func() {
		var err error
		logf(cfg, "SERVE: Listening on %s://%s%s/", cfg.scheme(), srv.Addr, cfg.prefix)
		if cfg.tlsKey != "" && cfg.tlsCert != "" {
			err = srv.ListenAndServeTLS(cfg.tlsCert, cfg.tlsKey)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			failed <- err
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-failed:
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	_ = srv.Shutdown(shutdownCtx)

	// Websocket clients are hijacked and not covered by Shutdown.
	hubs.Close()

	cancel()
	wg.Wait()

	// Final flush of anything still held only locally.
	if layer.Remote() != nil {
		flushCtx, stop := context.WithTimeout(context.Background(), timeout)
		defer stop()
		if _, err := layer.Resync(flushCtx); err != nil {
			cfg.logger.Warn("STOP: final resync incomplete", zap.Error(err))
		}
	}

	logf(cfg, "STOP: warroom v%s", releaseVersion)

	return serveErr
}
