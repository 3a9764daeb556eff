package main

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
)

// scenarioOp — псевдо-операция, которой меряется весь сценарий целиком.
const scenarioOp = "scenario"

type latencySummary struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

type opReport struct {
	Calls     int64            `json:"calls"`
	Success   int64            `json:"success"`
	Failed    int64            `json:"failed"`
	ErrorRate float64          `json:"error_rate"`
	Statuses  map[string]int64 `json:"statuses"`
	LatencyMs latencySummary   `json:"latency_ms"`
}

type report struct {
	StartedAt       time.Time           `json:"started_at"`
	DurationSeconds float64             `json:"duration_seconds"`
	TotalScenarios  int64               `json:"total_scenarios"`
	FailedScenarios int64               `json:"failed_scenarios"`
	ErrorRate       float64             `json:"error_rate"`
	RPS             float64             `json:"rps"`
	ScenarioLatency latencySummary      `json:"scenario_latency_ms"`
	Operations      map[string]opReport `json:"operations"`
}

// sample — один HTTP вызов; status 0 означает, что ответа не было.
type sample struct {
	latency time.Duration
	status  int
	ok      bool
}

type collector struct {
	mu      sync.Mutex
	samples map[string][]sample
}

func newCollector() *collector {
	return &collector{samples: make(map[string][]sample)}
}

func (c *collector) record(op string, latency time.Duration, status int, ok bool) {
	c.mu.Lock()
	c.samples[op] = append(c.samples[op], sample{latency: latency, status: status, ok: ok})
	c.mu.Unlock()
}

func (c *collector) buildReport(startedAt time.Time, elapsed time.Duration) report {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := report{
		StartedAt:       startedAt.UTC(),
		DurationSeconds: elapsed.Seconds(),
		Operations:      make(map[string]opReport, len(c.samples)),
	}
	for op, samples := range c.samples {
		out.Operations[op] = summarizeOp(samples)
	}

	if s, ok := out.Operations[scenarioOp]; ok {
		out.TotalScenarios, out.FailedScenarios = s.Calls, s.Failed
		out.ErrorRate = s.ErrorRate
		out.ScenarioLatency = s.LatencyMs
	}
	if elapsed > 0 {
		out.RPS = float64(out.TotalScenarios) / elapsed.Seconds()
	}
	return out
}

func summarizeOp(samples []sample) opReport {
	rep := opReport{Calls: int64(len(samples)), Statuses: make(map[string]int64)}
	millis := make([]float64, 0, len(samples))
	for _, s := range samples {
		if !s.ok {
			rep.Failed++
		}
		label := "error"
		if s.status > 0 {
			label = strconv.Itoa(s.status)
		}
		rep.Statuses[label]++
		millis = append(millis, float64(s.latency)/float64(time.Millisecond))
	}
	rep.Success = rep.Calls - rep.Failed
	rep.ErrorRate = ratio(rep.Failed, rep.Calls)
	rep.LatencyMs = buildLatencySummary(millis)
	return rep
}

func buildLatencySummary(values []float64) latencySummary {
	if len(values) == 0 {
		return latencySummary{}
	}
	sorted := slices.Sorted(slices.Values(values))

	var total float64
	for _, v := range sorted {
		total += v
	}
	return latencySummary{
		Min: sorted[0],
		Max: sorted[len(sorted)-1],
		Avg: total / float64(len(sorted)),
		P50: percentile(sorted, 50),
		P95: percentile(sorted, 95),
		P99: percentile(sorted, 99),
	}
}

// percentile линейно интерполирует между соседними рангами отсортированной выборки.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := p / 100 * float64(len(sorted)-1)
	lo, hi := int(math.Floor(rank)), int(math.Ceil(rank))
	return sorted[lo] + (sorted[hi]-sorted[lo])*(rank-float64(lo))
}

func ratio(failed, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(failed) / float64(total)
}

// writeJSONReport пишет отчёт по абсолютному или относительному пути без выхода через "..".
func writeJSONReport(path string, rep report) error {
	clean := filepath.Clean(path)
	if slices.Contains(strings.Split(filepath.ToSlash(clean), "/"), "..") {
		return fmt.Errorf("report path %q must not contain parent directory references", path)
	}

	f, err := os.Create(clean)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rep); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func printReport(w io.Writer, rep report, mode string) {
	lat := rep.ScenarioLatency
	var b strings.Builder
	fmt.Fprintf(&b, "Load test summary\nmode=%s total=%d failed=%d error_rate=%.4f\n",
		mode, rep.TotalScenarios, rep.FailedScenarios, rep.ErrorRate)
	fmt.Fprintf(&b, "duration=%.2fs rps=%.2f\n", rep.DurationSeconds, rep.RPS)
	fmt.Fprintf(&b, "scenario latency ms: min=%.2f avg=%.2f p50=%.2f p95=%.2f p99=%.2f max=%.2f\n",
		lat.Min, lat.Avg, lat.P50, lat.P95, lat.P99, lat.Max)

	for _, op := range slices.Sorted(maps.Keys(rep.Operations)) {
		if op == scenarioOp {
			continue
		}
		s := rep.Operations[op]
		fmt.Fprintf(&b, "%s: calls=%d failed=%d error_rate=%.4f p95=%.2fms\n",
			op, s.Calls, s.Failed, s.ErrorRate, s.LatencyMs.P95)
	}
	_, _ = io.WriteString(w, b.String())
}
