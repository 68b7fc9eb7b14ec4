package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/punchamoorthee/lendex/internal/api"
	"github.com/punchamoorthee/lendex/internal/domain"
)

// Config holds the benchmark settings
var (
	targetURL    string
	concurrency  int
	duration     time.Duration
	workload     string
	secret       string
	totalTickets int
	hotTicket    int64
	firstUserID  int64
	replayRatio  float64
)

// Metrics
var (
	totalRequests uint64
	success200    uint64 // Idempotent replays
	success201    uint64 // Created
	fail409       uint64 // Ticket not active
	fail403       uint64 // Self-deals
	fail503       uint64 // Transient
	fail429       uint64 // Throttled
	failOther     uint64
)

func init() {
	flag.StringVar(&targetURL, "url", "http://localhost:8080", "API Base URL")
	flag.IntVar(&concurrency, "workers", 10, "Number of concurrent workers")
	flag.DurationVar(&duration, "duration", 30*time.Second, "Test duration")
	flag.StringVar(&workload, "workload", "uniform", "Workload type: uniform | hotspot")
	flag.StringVar(&secret, "secret", "development-secret", "JWT signing secret shared with the API")
	flag.IntVar(&totalTickets, "tickets", 1000, "Ticket ids 1..tickets are targeted by the uniform workload")
	flag.Int64Var(&hotTicket, "hot-ticket", 1, "Ticket id targeted by the hotspot workload")
	flag.Int64Var(&firstUserID, "first-user", 100000, "Workers act as users first-user..first-user+workers-1")
	flag.Float64Var(&replayRatio, "replay", 0.1, "Fraction of requests that resend the previous Idempotency-Key")
}

func main() {
	flag.Parse()
	log.Printf("Starting Benchmark: %s | Workers: %d | Duration: %s", workload, concurrency, duration)

	ctx, cancel := context.WithTimeout(context.Background(), duration)
	defer cancel()

	start := time.Now()
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < concurrency; i++ {
		userID := firstUserID + int64(i)
		g.Go(func() error { return worker(ctx, userID) })
	}
	if err := g.Wait(); err != nil {
		log.Fatalf("worker failed: %v", err)
	}
	printResults(time.Since(start))
}

func worker(ctx context.Context, userID int64) error {
	token, err := api.SignToken([]byte(secret), userID, "user", duration+time.Minute)
	if err != nil {
		return fmt.Errorf("sign token: %w", err)
	}
	client := &http.Client{Timeout: 5 * time.Second}
	rng := rand.New(rand.NewSource(userID))

	var (
		lastKey  string
		lastBody []byte
	)
	for ctx.Err() == nil {
		key, body := lastKey, lastBody
		if key == "" || rng.Float64() >= replayRatio {
			amount := float64(1000 * (rng.Intn(50) + 1))
			body, _ = json.Marshal(domain.DealRequest{
				TicketID:       pickTicket(rng),
				Message:        "benchmark deal",
				ProposedAmount: &amount,
			})
			key = fmt.Sprintf("bench-%d-%d", userID, time.Now().UnixNano())
			lastKey, lastBody = key, body
		}

		req, _ := http.NewRequestWithContext(ctx, http.MethodPost, targetURL+"/api/v1/deals", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Idempotency-Key", key)

		resp, err := client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			atomic.AddUint64(&failOther, 1)
			continue
		}

		atomic.AddUint64(&totalRequests, 1)
		switch resp.StatusCode {
		case http.StatusCreated:
			atomic.AddUint64(&success201, 1)
		case http.StatusOK:
			atomic.AddUint64(&success200, 1)
		case http.StatusConflict:
			atomic.AddUint64(&fail409, 1)
		case http.StatusForbidden:
			atomic.AddUint64(&fail403, 1)
		case http.StatusTooManyRequests:
			atomic.AddUint64(&fail429, 1)
		case http.StatusServiceUnavailable:
			atomic.AddUint64(&fail503, 1)
		default:
			atomic.AddUint64(&failOther, 1)
		}
		resp.Body.Close()
	}
	return nil
}

func pickTicket(rng *rand.Rand) int64 {
	// Hotspot: 90% of traffic goes to one ticket
	if workload == "hotspot" && rng.Float32() < 0.90 {
		return hotTicket
	}
	return int64(rng.Intn(totalTickets) + 1)
}

func printResults(d time.Duration) {
	total := atomic.LoadUint64(&totalRequests)

	results := map[string]any{
		"workload":        workload,
		"duration_sec":    d.Seconds(),
		"total_requests":  total,
		"throughput_tps":  float64(total) / d.Seconds(),
		"success_created": atomic.LoadUint64(&success201),
		"success_replay":  atomic.LoadUint64(&success200),
		"conflicts":       atomic.LoadUint64(&fail409),
		"forbidden":       atomic.LoadUint64(&fail403),
		"transient":       atomic.LoadUint64(&fail503),
		"throttled":       atomic.LoadUint64(&fail429),
		"errors":          atomic.LoadUint64(&failOther),
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(results)

	filename := fmt.Sprintf("results_%s.json", workload)
	file, err := os.Create(filename)
	if err != nil {
		log.Printf("could not save results: %v", err)
		return
	}
	defer file.Close()
	json.NewEncoder(file).Encode(results)
}
