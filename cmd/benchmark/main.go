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

	"github.com/punchamoorthee/offpay/internal/domain"
	"github.com/punchamoorthee/offpay/internal/envelope"
)

// Config holds the benchmark settings
var (
	targetURL   string
	fixtureFile string
	concurrency int
	duration    time.Duration
	workload    string
	offlineRate float64
)

// Metrics
var (
	totalRequests uint64
	successOnline uint64 // 201 Created
	successRelay  uint64 // 200 OK from the relay webhook
	fail409       uint64 // Conflicts
	fail422       uint64 // Insufficient funds and friends
	failOther     uint64
)

type fixture struct {
	ID     string `json:"id"`
	Handle string `json:"handle"`
	PIN    string `json:"pin"`
	Token  string `json:"token"`
}

var accounts []fixture

func init() {
	flag.StringVar(&targetURL, "url", "http://localhost:8080", "API Base URL")
	flag.StringVar(&fixtureFile, "fixtures", "accounts.json", "Fixture file written by the seeder")
	flag.IntVar(&concurrency, "workers", 10, "Number of concurrent workers")
	flag.DurationVar(&duration, "duration", 30*time.Second, "Test duration")
	flag.StringVar(&workload, "workload", "uniform", "Workload type: uniform | hotspot")
	flag.Float64Var(&offlineRate, "offline", 0.2, "Fraction of transfers sent as relay envelopes")
}

func main() {
	flag.Parse()

	raw, err := os.ReadFile(fixtureFile)
	if err != nil {
		log.Fatalf("Unable to read fixtures: %v", err)
	}
	if err := json.Unmarshal(raw, &accounts); err != nil {
		log.Fatalf("Unable to parse fixtures: %v", err)
	}
	if len(accounts) < 2 {
		log.Fatal("Need at least two seeded accounts")
	}

	log.Printf("Starting Benchmark: %s | Workers: %d | Duration: %s | Offline: %.0f%%",
		workload, concurrency, duration, offlineRate*100)

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
		from, to := generateAccounts()
		amount := int64(100)

		var req *http.Request
		if rand.Float64() < offlineRate {
			req = relayRequest(from, to, amount)
		} else {
			req = onlineRequest(from, to, amount)
		}
		if req == nil {
			atomic.AddUint64(&failOther, 1)
			continue
		}

		resp, err := client.Do(req)
		if err != nil {
			atomic.AddUint64(&failOther, 1)
			continue
		}

		atomic.AddUint64(&totalRequests, 1)
		switch resp.StatusCode {
		case 201:
			atomic.AddUint64(&successOnline, 1)
		case 200:
			atomic.AddUint64(&successRelay, 1)
		case 409:
			atomic.AddUint64(&fail409, 1)
		case 422:
			atomic.AddUint64(&fail422, 1)
		default:
			atomic.AddUint64(&failOther, 1)
		}
		resp.Body.Close()
	}
}

func onlineRequest(from, to fixture, amount int64) *http.Request {
	body, _ := json.Marshal(map[string]interface{}{
		"receiverUpi": to.Handle,
		"amount":      amount,
		"pin":         from.PIN,
	})
	req, err := http.NewRequest("POST", targetURL+"/api/v1/transfers", bytes.NewBuffer(body))
	if err != nil {
		return nil
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+from.Token)
	return req
}

func relayRequest(from, to fixture, amount int64) *http.Request {
	token, err := envelope.Encode(domain.TransferRequest{
		SenderID:       from.ID,
		ReceiverHandle: to.Handle,
		Amount:         amount,
		PIN:            from.PIN,
		Channel:        domain.ChannelOffline,
		Op:             domain.OpTransfer,
	})
	if err != nil {
		return nil
	}
	body, _ := json.Marshal(map[string]string{"message": token})
	req, err := http.NewRequest("POST", targetURL+"/api/v1/relay/inbound", bytes.NewBuffer(body))
	if err != nil {
		return nil
	}
	req.Header.Set("Content-Type", "application/json")
	return req
}

func generateAccounts() (fixture, fixture) {
	n := len(accounts)

	if workload == "hotspot" {
		// Hotspot: 90% of traffic goes between the first two accounts
		if rand.Float32() < 0.90 {
			if rand.Float32() < 0.5 {
				return accounts[0], accounts[1]
			}
			return accounts[1], accounts[0]
		}
	}

	// Uniform Random
	a := rand.Intn(n)
	b := rand.Intn(n)
	for a == b {
		b = rand.Intn(n)
	}
	return accounts[a], accounts[b]
}

func printResults(d time.Duration) {
	total := atomic.LoadUint64(&totalRequests)
	sOnline := atomic.LoadUint64(&successOnline)
	sRelay := atomic.LoadUint64(&successRelay)
	f409 := atomic.LoadUint64(&fail409)
	f422 := atomic.LoadUint64(&fail422)
	fErr := atomic.LoadUint64(&failOther)

	tps := float64(total) / d.Seconds()
	abortRate := 0.0
	if total > 0 {
		abortRate = float64(f409) / float64(total) * 100
	}

	results := map[string]interface{}{
		"workload":         workload,
		"duration_sec":     d.Seconds(),
		"total_requests":   total,
		"throughput_tps":   tps,
		"success_online":   sOnline,
		"success_relay":    sRelay,
		"aborts_conflict":  f409,
		"abort_rate_pct":   abortRate,
		"rejected_422":     f422,
		"errors":           fErr,
		"offline_fraction": offlineRate,
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
