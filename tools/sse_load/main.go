// Command sse_load opens many concurrent subscriptions to the watchtower
// /events stream and reports connection and event counts.
package main

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

type options struct {
	url         string
	conns       int
	duration    time.Duration
	ramp        time.Duration
	reportEvery time.Duration
}

type counters struct {
	connected   atomic.Int64
	connectErrs atomic.Int64
	streamErrs  atomic.Int64
	heartbeats  atomic.Int64

	mu     sync.Mutex
	byType map[string]int64
}

func (c *counters) event(kind string) {
	c.mu.Lock()
	c.byType[kind]++
	c.mu.Unlock()
}

func (c *counters) events() (int64, string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	kinds := make([]string, 0, len(c.byType))
	var total int64
	for k, n := range c.byType {
		kinds = append(kinds, fmt.Sprintf("%s=%d", k, n))
		total += n
	}
	sort.Strings(kinds)
	return total, strings.Join(kinds, ",")
}

func main() {
	opts := options{}

	cmd := &cobra.Command{
		Use:          "sse_load",
		Short:        "Load test the watchtower event stream",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			l, err := zap.NewDevelopment()
			if err != nil {
				return err
			}
			defer func() { _ = l.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, l, opts)
		},
	}
	cmd.Flags().StringVar(&opts.url, "url", "http://localhost:9090/events", "SSE endpoint URL")
	cmd.Flags().IntVar(&opts.conns, "conns", 1000, "number of concurrent connections to open")
	cmd.Flags().DurationVar(&opts.duration, "dur", 60*time.Second, "test duration (0 for until interrupted)")
	cmd.Flags().DurationVar(&opts.ramp, "ramp", 0, "ramp-up window; defaults to 1s per 500 connections")
	cmd.Flags().DurationVar(&opts.reportEvery, "report", 5*time.Second, "status report interval")

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, l *zap.Logger, opts options) error {
	if opts.conns <= 0 {
		return errors.Errorf("invalid conns: %d", opts.conns)
	}
	if opts.ramp == 0 {
		opts.ramp = time.Duration(opts.conns/500) * time.Second
		if opts.ramp < time.Second {
			opts.ramp = time.Second
		}
	}
	if opts.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.duration)
		defer cancel()
	}

	l.Info("starting SSE load",
		zap.String("url", opts.url),
		zap.Int("conns", opts.conns),
		zap.Duration("duration", opts.duration),
		zap.Duration("ramp", opts.ramp))

	client := &http.Client{
		Transport: &http.Transport{
			MaxConnsPerHost:     opts.conns + 100,
			MaxIdleConns:        opts.conns + 100,
			MaxIdleConnsPerHost: opts.conns + 100,
			DisableCompression:  true,
			DialContext: (&net.Dialer{
				Timeout:   5 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
		},
	}

	c := &counters{byType: make(map[string]int64)}
	limiter := rate.NewLimiter(rate.Limit(float64(opts.conns)/opts.ramp.Seconds()), 1)
	start := time.Now()

	go report(ctx, l, c, start, opts.reportEvery)

	var g errgroup.Group
	for i := 0; i < opts.conns; i++ {
		if err := limiter.Wait(ctx); err != nil {
			break
		}
		g.Go(func() error {
			subscribe(ctx, client, opts.url, c)
			return nil
		})
	}
	_ = g.Wait()

	elapsed := time.Since(start)
	total, kinds := c.events()
	fmt.Printf("done: connected=%d connect_errs=%d stream_errs=%d heartbeats=%d events=%d [%s] elapsed=%s events/s=%.2f\n",
		c.connected.Load(),
		c.connectErrs.Load(),
		c.streamErrs.Load(),
		c.heartbeats.Load(),
		total,
		kinds,
		elapsed.Truncate(time.Millisecond),
		float64(total)/elapsed.Seconds(),
	)
	return nil
}

func subscribe(ctx context.Context, client *http.Client, url string, c *counters) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		c.connectErrs.Add(1)
		return
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := client.Do(req)
	if err != nil {
		c.connectErrs.Add(1)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		c.connectErrs.Add(1)
		return
	}
	c.connected.Add(1)

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, ":"):
			c.heartbeats.Add(1)
		case strings.HasPrefix(line, "event: "):
			c.event(strings.TrimPrefix(line, "event: "))
		}
	}
	if ctx.Err() == nil {
		c.streamErrs.Add(1)
	}
}

func report(ctx context.Context, l *zap.Logger, c *counters, start time.Time, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			total, kinds := c.events()
			l.Info("status",
				zap.Int64("connected", c.connected.Load()),
				zap.Int64("connect_errs", c.connectErrs.Load()),
				zap.Int64("stream_errs", c.streamErrs.Load()),
				zap.Int64("events", total),
				zap.String("by_type", kinds),
				zap.Duration("elapsed", time.Since(start).Truncate(time.Second)))
		}
	}
}
