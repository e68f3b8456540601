// Command streamload opens many concurrent subscriptions to the dashboard's
// ledger event stream and reports how many events each kind delivered.
package main

import (
	"bufio"
	"context"
	"flag"
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

	"go.uber.org/zap"
)

type stats struct {
	connected   atomic.Int64
	connectErrs atomic.Int64
	streamErrs  atomic.Int64

	mu     sync.Mutex
	events map[string]int64
}

func (s *stats) count(name string) {
	s.mu.Lock()
	s.events[name]++
	s.mu.Unlock()
}

func (s *stats) snapshot() (total int64, byName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.events))
	for name, n := range s.events {
		names = append(names, name)
		total += n
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s=%d", name, s.events[name]))
	}
	return total, strings.Join(parts, " ")
}

func main() {
	var (
		targetURL    string
		connections  int
		testDuration time.Duration
		rampUp       time.Duration
		identity     string
	)

	flag.StringVar(&targetURL, "url", "http://localhost:8080/api/v1/events/stream", "ledger event stream URL")
	flag.IntVar(&connections, "conns", 500, "number of concurrent subscriptions")
	flag.DurationVar(&testDuration, "dur", 60*time.Second, "test duration (0 for until interrupted)")
	flag.DurationVar(&rampUp, "ramp", 0, "spread connection starts across this window")
	flag.StringVar(&identity, "identity", "", "only follow events of this identity")
	flag.Parse()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	if connections <= 0 {
		logger.Fatal("invalid conns", zap.Int("conns", connections))
	}
	if rampUp == 0 && connections > 100 {
		// 1 second per 500 connections
		rampUp = max(time.Duration(connections/500)*time.Second, time.Second)
	}
	if identity != "" {
		targetURL += "?identity=" + identity
	}

	logger.Info("starting stream load",
		zap.String("url", targetURL),
		zap.Int("conns", connections),
		zap.Duration("duration", testDuration),
		zap.Duration("ramp", rampUp))

	client := &http.Client{
		Transport: &http.Transport{
			MaxConnsPerHost:     connections + 100,
			MaxIdleConns:        connections + 100,
			MaxIdleConnsPerHost: connections + 100,
			DisableCompression:  true,
			DialContext: (&net.Dialer{
				Timeout:   5 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if testDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, testDuration)
		defer cancel()
	}

	st := &stats{events: make(map[string]int64)}
	start := time.Now()

	var interval time.Duration
	if rampUp > 0 {
		interval = rampUp / time.Duration(connections)
	}

	var wg sync.WaitGroup
	for i := 0; i < connections && ctx.Err() == nil; i++ {
		if i > 0 && interval > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(interval):
			}
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			subscribe(ctx, client, targetURL, st)
		}()
	}

	ticker := time.NewTicker(5 * time.Second)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				total, byName := st.snapshot()
				logger.Info("status",
					zap.Int64("connected", st.connected.Load()),
					zap.Int64("connect_errs", st.connectErrs.Load()),
					zap.Int64("stream_errs", st.streamErrs.Load()),
					zap.Int64("events", total),
					zap.String("by_kind", byName),
					zap.Duration("elapsed", time.Since(start).Truncate(time.Second)))
			}
		}
	}()

	wg.Wait()

	elapsed := max(time.Since(start), time.Millisecond)
	total, byName := st.snapshot()
	fmt.Fprintf(os.Stdout, "done: connected=%d connect_errs=%d stream_errs=%d events=%d [%s] elapsed=%s events/s=%.2f\n",
		st.connected.Load(),
		st.connectErrs.Load(),
		st.streamErrs.Load(),
		total,
		byName,
		elapsed.Truncate(time.Millisecond),
		float64(total)/elapsed.Seconds(),
	)
}

// subscribe reads one stream until ctx is done, counting events by name.
func subscribe(ctx context.Context, client *http.Client, url string, st *stats) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		st.connectErrs.Add(1)
		return
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := client.Do(req)
	if err != nil {
		st.connectErrs.Add(1)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		st.connectErrs.Add(1)
		return
	}

	st.connected.Add(1)
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		if name, ok := strings.CutPrefix(sc.Text(), "event: "); ok {
			st.count(name)
		}
	}
	if ctx.Err() == nil {
		st.streamErrs.Add(1)
	}
}
