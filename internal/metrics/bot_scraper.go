package metrics

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/influxdata/tdigest"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

// Re-exported bot process metrics. The Python prometheus_client exposes
// these process_* families by default, so the launcher can surface the
// bot's resource usage next to its own metrics.
var (
	botMetricsUp = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bot_launcher_bot_metrics_up",
			Help: "1 when the bot metrics endpoint was scraped successfully",
		},
	)

	botMemoryBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bot_launcher_bot_memory_bytes",
			Help: "Resident memory of the bot process (from its own exporter)",
		},
	)

	botCPUPercent = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bot_launcher_bot_cpu_percent",
			Help: "CPU usage of the bot process over the last scrape interval",
		},
	)

	botOpenFDs = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bot_launcher_bot_open_fds",
			Help: "Open file descriptors of the bot process",
		},
	)

	botScrapeLatencyP50 = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bot_launcher_bot_scrape_latency_p50_seconds",
			Help: "Median bot metrics scrape latency",
		},
	)

	botScrapeLatencyP99 = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bot_launcher_bot_scrape_latency_p99_seconds",
			Help: "99th percentile bot metrics scrape latency",
		},
	)
)

// BotMetrics contains the last scraped values from the bot's exporter.
type BotMetrics struct {
	MemoryBytes float64
	CPUPercent  float64
	OpenFDs     float64

	LastUpdate time.Time
	Healthy    bool
	Error      string
}

// BotScraper periodically scrapes the bot's own Prometheus endpoint and
// re-exports a small set of process metrics under the launcher registry.
// Uses atomic.Value for lock-free metric reads.
type BotScraper struct {
	url        string
	interval   time.Duration
	logger     *slog.Logger
	httpClient *http.Client

	metrics atomic.Value // *BotMetrics

	// CPU rate state: previous counter sample
	lastCPUSeconds atomic.Uint64 // float64 bits
	lastCPUTime    atomic.Value  // time.Time

	// Scrape latency percentiles
	latencyMu     sync.Mutex
	latencyDigest *tdigest.TDigest
}

// NewBotScraper creates a scraper for the given endpoint.
// Returns nil if url is empty (feature disabled).
func NewBotScraper(url string, interval time.Duration, logger *slog.Logger, registry prometheus.Registerer) *BotScraper {
	if url == "" {
		return nil
	}
	if interval <= 0 {
		interval = 15 * time.Second
	}
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	registry.MustRegister(
		botMetricsUp,
		botMemoryBytes,
		botCPUPercent,
		botOpenFDs,
		botScrapeLatencyP50,
		botScrapeLatencyP99,
	)

	s := &BotScraper{
		url:      url,
		interval: interval,
		logger:   logger,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
		latencyDigest: tdigest.NewWithCompression(100),
	}
	s.metrics.Store(&BotMetrics{Error: "not yet scraped"})
	return s
}

// Run starts the scrape loop. Blocks until the context is cancelled.
func (s *BotScraper) Run(ctx context.Context) {
	if s == nil {
		return // Feature disabled
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.scrape()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.scrape()
		}
	}
}

// Current returns the last scraped metrics (thread-safe, lock-free).
func (s *BotScraper) Current() *BotMetrics {
	if s == nil {
		return nil
	}
	m, _ := s.metrics.Load().(*BotMetrics)
	return m
}

// scrape fetches and parses the bot's exporter once.
func (s *BotScraper) scrape() {
	start := time.Now()
	families, err := s.fetch()
	latency := time.Since(start)

	s.latencyMu.Lock()
	s.latencyDigest.Add(latency.Seconds(), 1)
	botScrapeLatencyP50.Set(s.latencyDigest.Quantile(0.50))
	botScrapeLatencyP99.Set(s.latencyDigest.Quantile(0.99))
	s.latencyMu.Unlock()

	if err != nil {
		botMetricsUp.Set(0)
		s.metrics.Store(&BotMetrics{
			LastUpdate: time.Now(),
			Healthy:    false,
			Error:      err.Error(),
		})
		s.logger.Debug("bot_metrics_scrape_failed", "url", s.url, "error", err)
		return
	}

	m := &BotMetrics{
		MemoryBytes: gaugeValue(families, "process_resident_memory_bytes"),
		OpenFDs:     gaugeValue(families, "process_open_fds"),
		CPUPercent:  s.cpuPercent(families),
		LastUpdate:  time.Now(),
		Healthy:     true,
	}

	botMetricsUp.Set(1)
	botMemoryBytes.Set(m.MemoryBytes)
	botCPUPercent.Set(m.CPUPercent)
	botOpenFDs.Set(m.OpenFDs)

	s.metrics.Store(m)
}

// fetch retrieves and decodes the Prometheus text exposition.
func (s *BotScraper) fetch() (map[string]*dto.MetricFamily, error) {
	resp, err := s.httpClient.Get(s.url)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http status %d", resp.StatusCode)
	}

	decoder := expfmt.NewDecoder(resp.Body, expfmt.FmtText)
	families := make(map[string]*dto.MetricFamily)

	for {
		var mf dto.MetricFamily
		if err := decoder.Decode(&mf); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("decode error: %w", err)
		}
		families[mf.GetName()] = &mf
	}

	return families, nil
}

// cpuPercent derives a usage percentage from the process_cpu_seconds_total
// counter delta between scrapes.
func (s *BotScraper) cpuPercent(families map[string]*dto.MetricFamily) float64 {
	current := counterValue(families, "process_cpu_seconds_total")
	now := time.Now()

	prevBits := s.lastCPUSeconds.Swap(math.Float64bits(current))
	prevTimeVal := s.lastCPUTime.Swap(now)

	prevTime, ok := prevTimeVal.(time.Time)
	if !ok || prevBits == 0 {
		return 0
	}

	elapsed := now.Sub(prevTime).Seconds()
	if elapsed <= 0 {
		return 0
	}

	delta := current - math.Float64frombits(prevBits)
	if delta < 0 {
		// Counter reset (bot restarted)
		return 0
	}
	return delta / elapsed * 100
}

// gaugeValue extracts the first gauge sample of a family, or 0.
func gaugeValue(families map[string]*dto.MetricFamily, name string) float64 {
	mf, ok := families[name]
	if !ok || len(mf.GetMetric()) == 0 {
		return 0
	}
	return mf.GetMetric()[0].GetGauge().GetValue()
}

// counterValue extracts the first counter sample of a family, or 0.
func counterValue(families map[string]*dto.MetricFamily, name string) float64 {
	mf, ok := families[name]
	if !ok || len(mf.GetMetric()) == 0 {
		return 0
	}
	return mf.GetMetric()[0].GetCounter().GetValue()
}
