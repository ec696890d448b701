package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/clinic-scheduling/internal/db"
	"github.com/clinicore/clinic-scheduling/internal/scheduling"
)

type SimConfig struct {
	APIBaseURL  string
	Duration    time.Duration
	Workers     int
	PatientPool int
	PostgresDSN string
}

type Outcome struct {
	Created        int64
	SlotTaken      int64
	AlreadyBooked  int64
	OutsideWindow  int64
	Contended      int64
	OtherRejected  int64
	TransportError int64
}

type LatencyTracker struct {
	mu        sync.Mutex
	latencies []time.Duration
}

func (lt *LatencyTracker) Add(d time.Duration) {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	lt.latencies = append(lt.latencies, d)
}

func (lt *LatencyTracker) Percentile(p float64) time.Duration {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	if len(lt.latencies) == 0 {
		return 0
	}
	sorted := make([]time.Duration, len(lt.latencies))
	copy(sorted, lt.latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(float64(len(sorted)-1) * p)
	return sorted[idx]
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg := loadSimConfig()
	log.Printf("simulate: url=%s duration=%s workers=%d patients=%d",
		cfg.APIBaseURL, cfg.Duration, cfg.Workers, cfg.PatientPool)

	doctors, err := loadDoctorIDs(cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("load doctors: %v", err)
	}
	if len(doctors) == 0 {
		log.Fatal("no doctor availabilities found, run cmd/seed first")
	}
	log.Printf("loaded %d doctors", len(doctors))

	patients := make([]uuid.UUID, cfg.PatientPool)
	for i := range patients {
		patients[i] = uuid.New()
	}

	var outcome Outcome
	tracker := &LatencyTracker{}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	client := &http.Client{Timeout: 5 * time.Second}

	var wg sync.WaitGroup
	for w := 0; w < cfg.Workers; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for ctx.Err() == nil {
				fireBooking(ctx, client, cfg.APIBaseURL, rng, doctors, patients, &outcome, tracker)
			}
		}(time.Now().UnixNano() + int64(w))
	}
	wg.Wait()

	total := outcome.Created + outcome.SlotTaken + outcome.AlreadyBooked +
		outcome.OutsideWindow + outcome.Contended + outcome.OtherRejected + outcome.TransportError

	fmt.Println("--- simulation results ---")
	fmt.Printf("total requests:     %d\n", total)
	fmt.Printf("created:            %d\n", outcome.Created)
	fmt.Printf("doctor slot taken:  %d\n", outcome.SlotTaken)
	fmt.Printf("patient dup day:    %d\n", outcome.AlreadyBooked)
	fmt.Printf("outside window:     %d\n", outcome.OutsideWindow)
	fmt.Printf("lock contended:     %d\n", outcome.Contended)
	fmt.Printf("other rejected:     %d\n", outcome.OtherRejected)
	fmt.Printf("transport errors:   %d\n", outcome.TransportError)
	fmt.Printf("latency p50=%s p95=%s p99=%s\n",
		tracker.Percentile(0.50), tracker.Percentile(0.95), tracker.Percentile(0.99))
}

func fireBooking(ctx context.Context, client *http.Client, baseURL string, rng *rand.Rand,
	doctors, patients []uuid.UUID, outcome *Outcome, tracker *LatencyTracker) {

	// Random slot in the next two weeks, 30-min aligned inside plausible
	// clinic hours. A large share lands outside the doctor's actual windows
	// on purpose, so availability rejections show up in the mix.
	date := time.Now().AddDate(0, 0, 1+rng.Intn(14))
	slot := scheduling.NewClockTime(8+rng.Intn(12), 30*rng.Intn(2))

	body, _ := json.Marshal(map[string]string{
		"patient_id": patients[rng.Intn(len(patients))].String(),
		"doctor_id":  doctors[rng.Intn(len(doctors))].String(),
		"date":       date.Format(scheduling.DateLayout),
		"time":       slot.String(),
		"type":       "consultation",
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/appointments", bytes.NewReader(body))
	if err != nil {
		atomic.AddInt64(&outcome.TransportError, 1)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() == nil {
			atomic.AddInt64(&outcome.TransportError, 1)
		}
		return
	}
	tracker.Add(time.Since(start))

	var errBody struct {
		Error string `json:"error"`
	}
	data, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if resp.StatusCode == http.StatusCreated {
		atomic.AddInt64(&outcome.Created, 1)
		return
	}

	_ = json.Unmarshal(data, &errBody)
	switch errBody.Error {
	case "doctor_slot_taken":
		atomic.AddInt64(&outcome.SlotTaken, 1)
	case "patient_already_booked":
		atomic.AddInt64(&outcome.AlreadyBooked, 1)
	case "outside_availability":
		atomic.AddInt64(&outcome.OutsideWindow, 1)
	case "booking_contended":
		atomic.AddInt64(&outcome.Contended, 1)
	default:
		atomic.AddInt64(&outcome.OtherRejected, 1)
	}
}

func loadDoctorIDs(dsn string) ([]uuid.UUID, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		return nil, err
	}
	defer pool.Close()

	rows, err := pool.Query(ctx, `SELECT doctor_id FROM doctor_availability`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func loadSimConfig() SimConfig {
	cfg := SimConfig{
		APIBaseURL:  getenv("API_BASE_URL", "http://127.0.0.1:8080"),
		Duration:    30 * time.Second,
		Workers:     20,
		PatientPool: 500,
		PostgresDSN: os.Getenv("POSTGRES_DSN"),
	}
	if cfg.PostgresDSN == "" {
		log.Fatal("POSTGRES_DSN is required")
	}
	if v := os.Getenv("SIM_DURATION"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Duration = d
		}
	}
	if v := os.Getenv("SIM_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Workers = n
		}
	}
	if v := os.Getenv("SIM_PATIENTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.PatientPool = n
		}
	}
	return cfg
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
