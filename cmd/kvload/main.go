// Command kvload drives a running kvserve instance with a closed-loop
// concurrent workload and reports aggregate throughput and latency.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
)

const charset = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

type counters struct {
	sent      atomic.Int64
	ok        atomic.Int64
	latencyNs atomic.Int64
}

func main() {
	var (
		base     = flag.String("url", "http://localhost:8080", "kvserve base URL")
		workload = flag.String("workload", "get_put_mix",
			"workload: put_all | get_all | delete_all | get_popular | get_put_mix | get_delete_mix")
		workers   = flag.Int("workers", 64, "concurrent closed-loop workers")
		duration  = flag.Duration("duration", 30*time.Second, "run duration")
		keys      = flag.Int("keys", 100_000, "large keyspace size")
		popular   = flag.Int("popular", 100, "popular keyspace size (get_popular)")
		valueSize = flag.Int("value-size", 256, "payload size in bytes")
		timeout   = flag.Duration("timeout", 5*time.Second, "per-request timeout")
		seed      = flag.Int64("seed", time.Now().UnixNano(), "random seed")
	)
	flag.Parse()

	op, err := pickOp(*workload)
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *duration)
	defer cancel()

	client := &http.Client{Timeout: *timeout}
	var stats counters

	cfg := opConfig{
		base:      *base,
		keys:      int64(*keys),
		popular:   int64(*popular),
		valueSize: *valueSize,
	}

	log.Printf("workload=%s workers=%d duration=%s keys=%d url=%s",
		*workload, *workers, *duration, *keys, *base)

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < *workers; w++ {
		// Independent RNG stream per worker.
		r := rand.New(rand.NewSource(*seed + int64(w)*9973))
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				default:
				}
				t0 := time.Now()
				ok := op(gctx, client, r, cfg)
				stats.sent.Add(1)
				stats.latencyNs.Add(int64(time.Since(t0)))
				if ok {
					stats.ok.Add(1)
				}
			}
		})
	}
	if err := g.Wait(); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		log.Printf("workers: %v", err)
	}
	elapsed := time.Since(start)

	sent := stats.sent.Load()
	okCount := stats.ok.Load()
	if sent == 0 {
		log.Fatal("no requests completed")
	}
	avgLatency := time.Duration(stats.latencyNs.Load() / sent)
	fmt.Printf("requests:   %d\n", sent)
	fmt.Printf("successful: %d (%.1f%%)\n", okCount, 100*float64(okCount)/float64(sent))
	fmt.Printf("throughput: %.0f req/s\n", float64(sent)/elapsed.Seconds())
	fmt.Printf("latency:    %s avg\n", avgLatency)
}

type opConfig struct {
	base      string
	keys      int64
	popular   int64
	valueSize int
}

type opFunc func(ctx context.Context, c *http.Client, r *rand.Rand, cfg opConfig) bool

func pickOp(workload string) (opFunc, error) {
	switch workload {
	case "put_all":
		return doPut, nil
	case "get_all":
		return doGet, nil
	case "delete_all":
		return doDelete, nil
	case "get_popular":
		return doGetPopular, nil
	case "get_put_mix":
		return mix(doGet, doPut, 80), nil
	case "get_delete_mix":
		return mix(doGet, doDelete, 80), nil
	default:
		return nil, fmt.Errorf("unknown workload %q", workload)
	}
}

// mix runs a with the given percentage, b otherwise.
func mix(a, b opFunc, aPct int) opFunc {
	return func(ctx context.Context, c *http.Client, r *rand.Rand, cfg opConfig) bool {
		if r.Intn(100) < aPct {
			return a(ctx, c, r, cfg)
		}
		return b(ctx, c, r, cfg)
	}
}

func doGet(ctx context.Context, c *http.Client, r *rand.Rand, cfg opConfig) bool {
	k := r.Int63n(cfg.keys)
	return request(ctx, c, http.MethodGet, fmt.Sprintf("%s/get?key=%d", cfg.base, k))
}

func doGetPopular(ctx context.Context, c *http.Client, r *rand.Rand, cfg opConfig) bool {
	k := 1 + r.Int63n(cfg.popular)
	return request(ctx, c, http.MethodGet, fmt.Sprintf("%s/get?key=%d", cfg.base, k))
}

func doPut(ctx context.Context, c *http.Client, r *rand.Rand, cfg opConfig) bool {
	k := r.Int63n(cfg.keys)
	v := randomValue(r, cfg.valueSize)
	return request(ctx, c, http.MethodPut,
		fmt.Sprintf("%s/put?key=%d&value=%s", cfg.base, k, url.QueryEscape(v)))
}

func doDelete(ctx context.Context, c *http.Client, r *rand.Rand, cfg opConfig) bool {
	k := r.Int63n(cfg.keys)
	return request(ctx, c, http.MethodDelete, fmt.Sprintf("%s/delete?key=%d", cfg.base, k))
}

// request reports success for a 200 response; 404s from get/delete on keys
// that were never written count as failures, matching a closed-loop
// success-rate view.
func request(ctx context.Context, c *http.Client, method, u string) bool {
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return false
	}
	resp, err := c.Do(req)
	if err != nil {
		return false
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func randomValue(r *rand.Rand, n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = charset[r.Intn(len(charset))]
	}
	return string(b)
}
