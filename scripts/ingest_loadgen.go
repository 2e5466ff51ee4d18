//go:build ignore
// +build ignore

// Load generator for the ingestion API.
// Posts synthetic CSV files at a configurable rate and polls job progress
// until every import settles, then prints throughput and latency numbers.
//
// Usage:
//   go run scripts/ingest_loadgen.go \
//     --server=http://localhost:8080 \
//     --files=50 \
//     --rows=10000 \
//     --concurrency=4
//
// The generated rows mix strings, integers, floats, booleans, dates and
// empty cells so type inference gets a realistic workload.

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

type config struct {
	ServerURL   string
	Files       int
	RowsPerFile int
	Concurrency int
	PollEvery   time.Duration
	Timeout     time.Duration
}

type metrics struct {
	mu             sync.Mutex
	submitted      int64
	accepted       int64
	rejected       int64
	completed      int64
	withErrors     int64
	failed         int64
	rowsIngested   int64
	submitLatency  []time.Duration
	settleLatency  []time.Duration
}

func (m *metrics) recordSubmit(d time.Duration, ok bool) {
	atomic.AddInt64(&m.submitted, 1)
	if ok {
		atomic.AddInt64(&m.accepted, 1)
	} else {
		atomic.AddInt64(&m.rejected, 1)
	}
	m.mu.Lock()
	m.submitLatency = append(m.submitLatency, d)
	m.mu.Unlock()
}

func (m *metrics) recordSettle(status string, rows int64, d time.Duration) {
	switch status {
	case "Completed":
		atomic.AddInt64(&m.completed, 1)
	case "CompletedWithErrors":
		atomic.AddInt64(&m.withErrors, 1)
	default:
		atomic.AddInt64(&m.failed, 1)
	}
	atomic.AddInt64(&m.rowsIngested, rows)
	m.mu.Lock()
	m.settleLatency = append(m.settleLatency, d)
	m.mu.Unlock()
}

func percentile(durations []time.Duration, p int) time.Duration {
	if len(durations) == 0 {
		return 0
	}
	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := len(sorted) * p / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

var firstNames = []string{"ada", "alan", "grace", "edsger", "barbara", "donald", "tony", "leslie"}
var cities = []string{"london", "zurich", "pittsburgh", "amsterdam", "cambridge", ""}

// generateCSV builds a semicolon-delimited file with a header row and a
// deliberate sprinkling of blank cells and one short row per 500 rows.
func generateCSV(rows int, rng *rand.Rand) []byte {
	var buf bytes.Buffer
	buf.WriteString("name;age;score;active;joined;city\n")
	for i := 0; i < rows; i++ {
		if i > 0 && i%500 == 0 {
			// Short row: exercises the per-row failure path.
			fmt.Fprintf(&buf, "short-row-%d\n", i)
			continue
		}
		name := firstNames[rng.Intn(len(firstNames))]
		joined := time.Date(2020+rng.Intn(5), time.Month(1+rng.Intn(12)), 1+rng.Intn(28), 0, 0, 0, 0, time.UTC)
		fmt.Fprintf(&buf, "%s-%d;%d;%.2f;%t;%s;%s\n",
			name, i, 18+rng.Intn(60), rng.Float64()*100, rng.Intn(2) == 0,
			joined.Format("2006-01-02"), cities[rng.Intn(len(cities))])
	}
	return buf.Bytes()
}

type jobResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

type progressResponse struct {
	Status           string `json:"status"`
	ProcessedRecords int64  `json:"processed_records"`
	FailedRecords    int64  `json:"failed_records"`
}

func submitFile(ctx context.Context, client *http.Client, cfg *config, seq int, payload []byte) (string, error) {
	url := fmt.Sprintf("%s/api/imports?filename=loadgen-%d.csv", cfg.ServerURL, seq)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "text/csv")
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	var jr jobResponse
	if err := json.NewDecoder(resp.Body).Decode(&jr); err != nil {
		return "", err
	}
	return jr.JobID, nil
}

func pollUntilSettled(ctx context.Context, client *http.Client, cfg *config, jobID string) (string, int64, error) {
	ticker := time.NewTicker(cfg.PollEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return "", 0, ctx.Err()
		case <-ticker.C:
		}
		url := fmt.Sprintf("%s/api/imports/%s/progress", cfg.ServerURL, jobID)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return "", 0, err
		}
		resp, err := client.Do(req)
		if err != nil {
			return "", 0, err
		}
		var pr progressResponse
		err = json.NewDecoder(resp.Body).Decode(&pr)
		resp.Body.Close()
		if err != nil {
			return "", 0, err
		}
		switch pr.Status {
		case "Completed", "CompletedWithErrors", "Failed":
			return pr.Status, pr.ProcessedRecords, nil
		}
	}
}

func main() {
	cfg := &config{}
	flag.StringVar(&cfg.ServerURL, "server", "http://localhost:8080", "ingestion server base URL")
	flag.IntVar(&cfg.Files, "files", 50, "number of files to submit")
	flag.IntVar(&cfg.RowsPerFile, "rows", 10000, "data rows per file")
	flag.IntVar(&cfg.Concurrency, "concurrency", 4, "concurrent submitters")
	flag.DurationVar(&cfg.PollEvery, "poll-every", 250*time.Millisecond, "progress poll interval")
	flag.DurationVar(&cfg.Timeout, "timeout", 10*time.Minute, "overall test timeout")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("[Loadgen] interrupted, stopping")
		cancel()
	}()

	client := &http.Client{Timeout: 30 * time.Second}
	m := &metrics{}
	work := make(chan int)
	var wg sync.WaitGroup

	start := time.Now()
	log.Printf("[Loadgen] submitting %d files x %d rows to %s (concurrency %d)",
		cfg.Files, cfg.RowsPerFile, cfg.ServerURL, cfg.Concurrency)

	for w := 0; w < cfg.Concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)))
			for seq := range work {
				payload := generateCSV(cfg.RowsPerFile, rng)
				submitStart := time.Now()
				jobID, err := submitFile(ctx, client, cfg, seq, payload)
				m.recordSubmit(time.Since(submitStart), err == nil)
				if err != nil {
					log.Printf("[Loadgen] submit %d failed: %v", seq, err)
					continue
				}
				status, rows, err := pollUntilSettled(ctx, client, cfg, jobID)
				if err != nil {
					log.Printf("[Loadgen] poll %s failed: %v", jobID, err)
					continue
				}
				m.recordSettle(status, rows, time.Since(submitStart))
			}
		}(w)
	}

	for seq := 0; seq < cfg.Files; seq++ {
		select {
		case <-ctx.Done():
			seq = cfg.Files
		case work <- seq:
		}
	}
	close(work)
	wg.Wait()
	elapsed := time.Since(start)

	m.mu.Lock()
	defer m.mu.Unlock()
	fmt.Println()
	fmt.Println("==============================================")
	fmt.Println("  INGESTION LOAD TEST RESULTS")
	fmt.Println("==============================================")
	fmt.Printf("  Duration:           %s\n", elapsed.Round(time.Millisecond))
	fmt.Printf("  Files submitted:    %d (accepted %d, rejected %d)\n", m.submitted, m.accepted, m.rejected)
	fmt.Printf("  Completed:          %d\n", m.completed)
	fmt.Printf("  CompletedWithErrors:%d\n", m.withErrors)
	fmt.Printf("  Failed:             %d\n", m.failed)
	fmt.Printf("  Rows ingested:      %d (%.0f rows/sec)\n", m.rowsIngested, float64(m.rowsIngested)/elapsed.Seconds())
	fmt.Printf("  Submit latency:     p50=%s p95=%s\n", percentile(m.submitLatency, 50), percentile(m.submitLatency, 95))
	fmt.Printf("  Settle latency:     p50=%s p95=%s p99=%s\n",
		percentile(m.settleLatency, 50), percentile(m.settleLatency, 95), percentile(m.settleLatency, 99))
	fmt.Println("==============================================")
}
