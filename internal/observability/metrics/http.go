package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// 延迟直方图的桶边界,单位秒。
var latencyBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

type histogram struct {
	perBucket []uint64
	sum       float64
	count     uint64
}

func (h *histogram) observe(seconds float64) {
	h.count++
	h.sum += seconds
	for idx, bound := range latencyBuckets {
		if seconds <= bound {
			h.perBucket[idx]++
			return
		}
	}
}

// cumulative 返回 Prometheus 直方图要求的累计桶计数。
func (h *histogram) cumulative() []uint64 {
	out := make([]uint64, len(h.perBucket))
	var running uint64
	for idx, n := range h.perBucket {
		running += n
		out[idx] = running
	}
	return out
}

type httpStats struct {
	mu       sync.Mutex
	requests map[[3]string]uint64 // handler, method, code
	errors   map[[2]string]uint64 // handler, method
	latency  map[[2]string]*histogram
}

var httpCollector = &httpStats{
	requests: make(map[[3]string]uint64),
	errors:   make(map[[2]string]uint64),
	latency:  make(map[[2]string]*histogram),
}

// ObserveHTTPRequest 记录一次 HTTP 请求的状态码与耗时。
func ObserveHTTPRequest(handler, method string, status int, duration time.Duration) {
	c := httpCollector
	c.mu.Lock()
	defer c.mu.Unlock()

	c.requests[[3]string{handler, method, strconv.Itoa(status)}]++
	if status >= 500 {
		c.errors[[2]string{handler, method}]++
	}
	key := [2]string{handler, method}
	hist := c.latency[key]
	if hist == nil {
		hist = &histogram{perBucket: make([]uint64, len(latencyBuckets))}
		c.latency[key] = hist
	}
	hist.observe(duration.Seconds())
}

// Handler 以 Prometheus 文本格式暴露全部指标。
func Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		_, _ = fmt.Fprint(w, httpCollector.render())
		_, _ = fmt.Fprint(w, eventCollector.render())
	})
}

func (c *httpStats) render() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var b strings.Builder
	b.Grow(1024)

	b.WriteString("# HELP agentd_http_requests_total Total number of HTTP requests processed.\n")
	b.WriteString("# TYPE agentd_http_requests_total counter\n")
	writeSorted(&b, func(emit func(string)) {
		for key, value := range c.requests {
			emit(fmt.Sprintf("agentd_http_requests_total{handler=%q,method=%q,code=%q} %d\n",
				key[0], key[1], key[2], value))
		}
	})

	b.WriteString("# HELP agentd_http_request_errors_total Total number of HTTP requests that resulted in a server error.\n")
	b.WriteString("# TYPE agentd_http_request_errors_total counter\n")
	writeSorted(&b, func(emit func(string)) {
		for key, value := range c.errors {
			emit(fmt.Sprintf("agentd_http_request_errors_total{handler=%q,method=%q} %d\n",
				key[0], key[1], value))
		}
	})

	b.WriteString("# HELP agentd_http_request_duration_seconds HTTP request duration in seconds.\n")
	b.WriteString("# TYPE agentd_http_request_duration_seconds histogram\n")
	writeSorted(&b, func(emit func(string)) {
		for key, hist := range c.latency {
			var series strings.Builder
			handler, method := key[0], key[1]
			for idx, total := range hist.cumulative() {
				fmt.Fprintf(&series, "agentd_http_request_duration_seconds_bucket{handler=%q,method=%q,le=%q} %d\n",
					handler, method, formatFloat(latencyBuckets[idx]), total)
			}
			fmt.Fprintf(&series, "agentd_http_request_duration_seconds_bucket{handler=%q,method=%q,le=\"+Inf\"} %d\n",
				handler, method, hist.count)
			fmt.Fprintf(&series, "agentd_http_request_duration_seconds_sum{handler=%q,method=%q} %s\n",
				handler, method, formatFloat(hist.sum))
			fmt.Fprintf(&series, "agentd_http_request_duration_seconds_count{handler=%q,method=%q} %d\n",
				handler, method, hist.count)
			emit(series.String())
		}
	})

	return b.String()
}

// writeSorted 收集一批指标行并按字典序稳定输出。
func writeSorted(b *strings.Builder, collect func(emit func(string))) {
	var lines []string
	collect(func(line string) { lines = append(lines, line) })
	sort.Strings(lines)
	for _, line := range lines {
		b.WriteString(line)
	}
}

func escape(value string) string {
	value = strings.ReplaceAll(value, "\\", "\\\\")
	value = strings.ReplaceAll(value, "\"", "\\\"")
	return strings.ReplaceAll(value, "\n", "")
}

func formatFloat(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}

// StartServer 启动独立的 /metrics HTTP 服务,阻塞到 ctx 取消。
func StartServer(ctx context.Context, addr string) error {
	if addr == "" {
		return errors.New("metrics address is empty")
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	srv := &http.Server{Addr: addr, Handler: mux}
	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		return err
	}
}
