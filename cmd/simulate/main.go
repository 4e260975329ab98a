package main

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/hackgods/clinic-appointments/internal/domain"
)

type SimConfig struct {
	APIBaseURL        string
	Duration          time.Duration
	Workers           int
	BookingRatio      float64
	CancelRatio       float64
	ReadRatio         float64
	PatientLimit      int
	PractitionerLimit int
}

type bookable struct {
	PractitionerID string
	Slot           domain.Slot
}

type DataPool struct {
	Patients []string
	Slots    []bookable

	mu           sync.RWMutex
	appointments []string
}

func (dp *DataPool) AddAppointment(id string) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, id)
}

func (dp *DataPool) RandomAppointment(rng *rand.Rand) (string, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return "", false
	}
	return dp.appointments[rng.Intn(len(dp.appointments))], true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, status int, err error) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case err != nil:
		atomic.AddInt64(&om.Error, 1)
	case status >= 200 && status < 300:
		atomic.AddInt64(&om.Success, 1)
	case status == http.StatusConflict || status == http.StatusPreconditionFailed:
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	om.mu.Unlock()

	if len(latencies) == 0 {
		return 0, 0, 0, 0, 0
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	percentile := func(p int) time.Duration {
		idx := len(latencies) * p / 100
		if idx >= len(latencies) {
			idx = len(latencies) - 1
		}
		return latencies[idx]
	}

	return sum / time.Duration(len(latencies)), latencies[0], latencies[len(latencies)-1], percentile(50), percentile(95)
}

type Metrics struct {
	Booking            OperationMetrics
	Cancel             OperationMetrics
	ReadByID           OperationMetrics
	ListByPatient      OperationMetrics
	ListByPractitioner OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("simulator starting")

	_ = godotenv.Load()
	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	log.Printf("config: duration=%s workers=%d booking=%.2f cancel=%.2f read=%.2f",
		cfg.Duration, cfg.Workers, cfg.BookingRatio, cfg.CancelRatio, cfg.ReadRatio)

	sim := &Simulator{
		config: cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	pool, err := sim.loadDataPool(ctx)
	cancel()
	if err != nil {
		log.Fatalf("load data pool: %v", err)
	}
	sim.pool = pool
	log.Printf("loaded: %d patients, %d open slots", len(pool.Patients), len(pool.Slots))

	sim.Run()
	sim.PrintReport()

	auditCtx, cancelAudit := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelAudit()
	violations, err := sim.Audit(auditCtx)
	if err != nil {
		log.Fatalf("audit: %v", err)
	}
	if len(violations) > 0 {
		for _, v := range violations {
			log.Printf("VIOLATION: %s", v)
		}
		log.Fatalf("audit found %d violations", len(violations))
	}
	log.Println("audit passed: no double bookings")
}

func loadConfig() SimConfig {
	cfg := SimConfig{
		APIBaseURL:        strings.TrimRight(getEnv("SIM_API_BASE_URL", "http://localhost:8080"), "/"),
		Duration:          getDuration("SIM_DURATION", 30*time.Second),
		Workers:           getInt("SIM_WORKERS", 10),
		BookingRatio:      getFloat("SIM_BOOKING_RATIO", 0.5),
		CancelRatio:       getFloat("SIM_CANCEL_RATIO", 0.2),
		ReadRatio:         getFloat("SIM_READ_RATIO", 0.3),
		PatientLimit:      getInt("SIM_PATIENT_LIMIT", 4000),
		PractitionerLimit: getInt("SIM_PRACTITIONER_LIMIT", 50),
	}

	total := cfg.BookingRatio + cfg.CancelRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.CancelRatio /= total
		cfg.ReadRatio /= total
	}

	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	return nil
}

func (s *Simulator) getJSON(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.config.APIBaseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func (s *Simulator) send(ctx context.Context, method, path string, body any) (*http.Response, time.Duration, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, 0, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, &buf)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := s.client.Do(req)
	return resp, time.Since(start), err
}

func (s *Simulator) loadDataPool(ctx context.Context) (*DataPool, error) {
	var patients []domain.Patient
	if err := s.getJSON(ctx, "/patients", &patients); err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	var practitioners []domain.Practitioner
	if err := s.getJSON(ctx, "/practitioners", &practitioners); err != nil {
		return nil, fmt.Errorf("load practitioners: %w", err)
	}

	pool := &DataPool{}
	for i, p := range patients {
		if i >= s.config.PatientLimit {
			break
		}
		pool.Patients = append(pool.Patients, p.ID)
	}
	if len(practitioners) > s.config.PractitionerLimit {
		practitioners = practitioners[:s.config.PractitionerLimit]
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, p := range practitioners {
		g.Go(func() error {
			var slots []domain.Slot
			if err := s.getJSON(gctx, "/practitioners/"+p.ID+"/slots/available", &slots); err != nil {
				return fmt.Errorf("load slots for %s: %w", p.ID, err)
			}
			mu.Lock()
			defer mu.Unlock()
			for _, sl := range slots {
				pool.Slots = append(pool.Slots, bookable{PractitionerID: p.ID, Slot: sl})
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if len(pool.Patients) == 0 {
		return nil, fmt.Errorf("no patients loaded")
	}
	if len(pool.Slots) == 0 {
		return nil, fmt.Errorf("no open slots loaded")
	}
	return pool, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	log.Printf("starting simulation for %s with %d workers", s.config.Duration, s.config.Workers)

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	log.Println("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for ctx.Err() == nil {
		r := rng.Float64()
		switch {
		case r < s.config.BookingRatio:
			s.doBooking(ctx, rng)
		case r < s.config.BookingRatio+s.config.CancelRatio:
			s.doCancel(ctx, rng)
		default:
			switch rng.Intn(3) {
			case 0:
				s.doRead(ctx, &s.metrics.ReadByID, "/appointments/"+s.randomAppointment(rng))
			case 1:
				s.doRead(ctx, &s.metrics.ListByPatient,
					"/patients/"+s.pool.Patients[rng.Intn(len(s.pool.Patients))]+"/appointments")
			case 2:
				s.doRead(ctx, &s.metrics.ListByPractitioner,
					"/practitioners/"+s.pool.Slots[rng.Intn(len(s.pool.Slots))].PractitionerID+"/appointments")
			}
		}
	}
}

func (s *Simulator) randomAppointment(rng *rand.Rand) string {
	id, ok := s.pool.RandomAppointment(rng)
	if !ok {
		return domain.NewID()
	}
	return id
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	target := s.pool.Slots[rng.Intn(len(s.pool.Slots))]
	patientID := s.pool.Patients[rng.Intn(len(s.pool.Patients))]

	body := map[string]string{
		"patient_id":      patientID,
		"practitioner_id": target.PractitionerID,
		"date":            target.Slot.Date.String(),
		"start_time":      target.Slot.Start.String(),
		"end_time":        target.Slot.End.String(),
	}

	resp, latency, err := s.send(ctx, http.MethodPost, "/appointments", body)
	if err != nil {
		if ctx.Err() == nil {
			s.metrics.Booking.Record(latency, 0, err)
		}
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusCreated {
		var created struct {
			ID string `json:"id"`
		}
		if json.NewDecoder(resp.Body).Decode(&created) == nil && created.ID != "" {
			s.pool.AddAppointment(created.ID)
		}
	}
	s.metrics.Booking.Record(latency, resp.StatusCode, nil)
}

func (s *Simulator) doCancel(ctx context.Context, rng *rand.Rand) {
	apptID, ok := s.pool.RandomAppointment(rng)
	if !ok {
		return
	}

	resp, latency, err := s.send(ctx, http.MethodPost, "/appointments/"+apptID+"/cancel", nil)
	if err != nil {
		if ctx.Err() == nil {
			s.metrics.Cancel.Record(latency, 0, err)
		}
		return
	}
	resp.Body.Close()
	s.metrics.Cancel.Record(latency, resp.StatusCode, nil)
}

func (s *Simulator) doRead(ctx context.Context, om *OperationMetrics, path string) {
	resp, latency, err := s.send(ctx, http.MethodGet, path, nil)
	if err != nil {
		if ctx.Err() == nil {
			om.Record(latency, 0, err)
		}
		return
	}
	resp.Body.Close()
	// a random read may miss; only server failures count as errors
	status := resp.StatusCode
	if status == http.StatusNotFound {
		status = http.StatusOK
	}
	om.Record(latency, status, nil)
}

// Audit loads every appointment and reports slots held twice and patients
// holding overlapping appointments.
func (s *Simulator) Audit(ctx context.Context) ([]string, error) {
	var all []domain.Appointment
	if err := s.getJSON(ctx, "/appointments", &all); err != nil {
		return nil, err
	}

	var violations []string
	bySlot := make(map[string]string)
	byPatient := make(map[string][]domain.Appointment)
	for _, a := range all {
		if a.State == domain.StateCancelled {
			continue
		}
		key := fmt.Sprintf("%s/%s/%s-%s", a.PractitionerID, a.Slot.Date, a.Slot.Start, a.Slot.End)
		if other, dup := bySlot[key]; dup {
			violations = append(violations, fmt.Sprintf("slot %s held by %s and %s", key, other, a.ID))
		}
		bySlot[key] = a.ID

		for _, prev := range byPatient[a.PatientID] {
			if domain.Overlaps(prev.Slot, a.Slot) {
				violations = append(violations,
					fmt.Sprintf("patient %s holds overlapping %s and %s", a.PatientID, prev.ID, a.ID))
			}
		}
		byPatient[a.PatientID] = append(byPatient[a.PatientID], a)
	}

	log.Printf("audited %d appointments", len(all))
	return violations, nil
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Cancel", &s.metrics.Cancel)
	printOperationReport("Read by ID", &s.metrics.ReadByID)
	printOperationReport("List by Patient", &s.metrics.ListByPatient)
	printOperationReport("List by Practitioner", &s.metrics.ListByPractitioner)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Rejected: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
