// Command kvserve runs the key-value service: an HTTP front end over a
// sharded LRU cache, a bounded backing-store connection pool, and a worker
// pool offloading store operations.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/IvanBrykalov/kvserve/cache"
	"github.com/IvanBrykalov/kvserve/connpool"
	"github.com/IvanBrykalov/kvserve/dispatch"
	"github.com/IvanBrykalov/kvserve/httpapi"
	"github.com/IvanBrykalov/kvserve/kv"
	"github.com/IvanBrykalov/kvserve/metrics/prom"
	"github.com/IvanBrykalov/kvserve/store"
	"github.com/IvanBrykalov/kvserve/store/memstore"
	"github.com/IvanBrykalov/kvserve/store/mysqlstore"
)

func main() {
	var (
		addr     = flag.String("addr", ":8080", "HTTP listen address")
		capacity = flag.Int("cache-capacity", 10_000, "total cache capacity (entries)")
		shards   = flag.Int("cache-shards", 0, "number of cache shards (0 = auto)")
		poolSize = flag.Int("pool-size", 16, "backing-store connection pool size")
		workers  = flag.Int("workers", 16, "store-operation worker goroutines")
		queue    = flag.Int("queue-depth", 256, "store-operation queue depth")

		dsn   = flag.String("dsn", "", "MySQL DSN (user:pass@tcp(host:3306)/db); empty selects the in-memory store")
		table = flag.String("table", "kv", "MySQL table holding key/value rows")

		acquireTimeout = flag.Duration("acquire-timeout", 0, "bound on connection acquisition (0 = block indefinitely)")
	)
	flag.Parse()

	logger := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	logger = log.With(logger, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller)

	// Signal-aware context is the root of ownership for the server lifetime.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	c := cache.New[int64, string](cache.Options[int64, string]{
		Capacity: *capacity,
		Shards:   *shards,
		Metrics:  prom.New(reg, "kvserve", "cache", nil),
	})
	defer func() { _ = c.Close() }()

	var (
		factory    connpool.Factory[store.Conn]
		closeStore = func() error { return nil }
	)
	if *dsn == "" {
		level.Info(logger).Log("msg", "no DSN given, using in-memory store")
		factory = memstore.New().Conn
	} else {
		st, err := mysqlstore.Open(ctx, mysqlstore.Config{DSN: *dsn, Table: *table, MaxConns: *poolSize})
		if err != nil {
			level.Error(logger).Log("msg", "connect to MySQL", "err", err)
			os.Exit(1)
		}
		factory = st.Conn
		closeStore = st.Close
	}

	pool, err := connpool.New(ctx, *poolSize, factory, connpool.NewMetrics(reg))
	if err != nil {
		level.Error(logger).Log("msg", "establish connection pool", "err", err)
		os.Exit(1)
	}

	disp := dispatch.New(*workers, *queue)

	svc, err := kv.NewService(kv.Config{
		Cache:          c,
		Pool:           pool,
		Workers:        disp,
		Logger:         logger,
		Metrics:        kv.NewMetrics(reg),
		AcquireTimeout: *acquireTimeout,
	})
	if err != nil {
		level.Error(logger).Log("msg", "build service", "err", err)
		os.Exit(1)
	}

	mux := http.NewServeMux()
	httpapi.New(svc, logger).Register(mux)
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: *addr, Handler: mux}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		level.Info(logger).Log("msg", "listening", "addr", *addr,
			"cache_capacity", *capacity, "pool_size", *poolSize, "workers", *workers)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		level.Error(logger).Log("msg", "server error", "err", err)
	}

	// Drain in dependency order: no new requests, then workers, then
	// connections, then the store handle.
	disp.Shutdown()
	pool.Close()
	if err := closeStore(); err != nil {
		level.Error(logger).Log("msg", "close store", "err", err)
	}
	level.Info(logger).Log("msg", "shut down cleanly")
}
