package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// Config holds the benchmark settings
var (
	targetURL   string
	concurrency int
	duration    time.Duration
	workload    string
)

// Metrics
var (
	totalRequests uint64
	success200    uint64 // Accepted transactions and statements
	fail422       uint64 // Limit / validation rejections
	fail503       uint64 // Contention budget exhausted
	failOther     uint64
)

func init() {
	flag.StringVar(&targetURL, "url", "http://localhost:9999", "API Base URL")
	flag.IntVar(&concurrency, "workers", 10, "Number of concurrent workers")
	flag.DurationVar(&duration, "duration", 30*time.Second, "Test duration")
	flag.StringVar(&workload, "workload", "uniform", "Workload type: uniform | hotspot")
}

func main() {
	flag.Parse()
	log.Printf("Starting Benchmark: %s | Workers: %d | Duration: %s", workload, concurrency, duration)

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(concurrency)

	for i := 0; i < concurrency; i++ {
		go worker(&wg, start)
	}

	wg.Wait()
	printResults(time.Since(start))
}

func worker(wg *sync.WaitGroup, start time.Time) {
	defer wg.Done()
	client := &http.Client{Timeout: 5 * time.Second}

	for time.Since(start) < duration {
		clientID := pickClient()

		// 1 in 10 requests reads the statement, the rest are writes
		// split 3:1 debit vs credit to keep balances near the limit.
		var resp *http.Response
		var err error
		if rand.Intn(10) == 0 {
			resp, err = client.Get(fmt.Sprintf("%s/clients/%d/statement", targetURL, clientID))
		} else {
			kind := "d"
			if rand.Intn(4) == 0 {
				kind = "c"
			}
			payload := map[string]interface{}{
				"amount":      int64(rand.Intn(1000) + 1),
				"kind":        kind,
				"description": "bench",
			}
			body, _ := json.Marshal(payload)
			resp, err = client.Post(
				fmt.Sprintf("%s/clients/%d/transactions", targetURL, clientID),
				"application/json",
				bytes.NewBuffer(body),
			)
		}

		if err != nil {
			atomic.AddUint64(&failOther, 1)
			continue
		}

		atomic.AddUint64(&totalRequests, 1)
		switch resp.StatusCode {
		case 200:
			atomic.AddUint64(&success200, 1)
		case 422:
			atomic.AddUint64(&fail422, 1)
		case 503:
			atomic.AddUint64(&fail503, 1)
		default:
			atomic.AddUint64(&failOther, 1)
		}
		resp.Body.Close()
	}
}

func pickClient() int64 {
	// Assumes the seeded client set (IDs 1-5)
	totalClients := 5

	if workload == "hotspot" {
		// Hotspot: 90% of traffic hammers client 1
		if rand.Float32() < 0.90 {
			return 1
		}
	}

	return int64(rand.Intn(totalClients) + 1)
}

func printResults(d time.Duration) {
	total := atomic.LoadUint64(&totalRequests)
	ok := atomic.LoadUint64(&success200)
	rejected := atomic.LoadUint64(&fail422)
	contended := atomic.LoadUint64(&fail503)
	fErr := atomic.LoadUint64(&failOther)

	tps := float64(total) / d.Seconds()
	contentionRate := float64(contended) / float64(total) * 100

	results := map[string]interface{}{
		"workload":            workload,
		"duration_sec":        d.Seconds(),
		"total_requests":      total,
		"throughput_tps":      tps,
		"success":             ok,
		"rejected_limit":      rejected,
		"contention_failures": contended,
		"contention_rate_pct": contentionRate,
		"errors":              fErr,
	}

	// Print JSON for the python plotter to consume
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(results)

	// Also save to file
	filename := fmt.Sprintf("results_%s.json", workload)
	file, _ := os.Create(filename)
	defer file.Close()
	json.NewEncoder(file).Encode(results)
}
