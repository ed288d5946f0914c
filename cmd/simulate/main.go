package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/hackgods/clinic-portal/internal/appointment"
	"github.com/hackgods/clinic-portal/internal/auth"
	"github.com/hackgods/clinic-portal/internal/availability"
	"github.com/hackgods/clinic-portal/internal/booking"
	"github.com/hackgods/clinic-portal/internal/calendar"
	"github.com/hackgods/clinic-portal/internal/config"
	"github.com/hackgods/clinic-portal/internal/fault"
	"github.com/hackgods/clinic-portal/internal/logging"
	"github.com/hackgods/clinic-portal/internal/notification"
	"github.com/hackgods/clinic-portal/internal/session"
	"github.com/hackgods/clinic-portal/internal/storeclient"
)

type SimConfig struct {
	APIBaseURL   string
	Duration     time.Duration
	Workers      int
	BookingRatio float64
	CancelRatio  float64
	ReadRatio    float64
	Days         int // how many bookable days the workers compete for
	JWTSecret    string
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, err error) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case err == nil:
		atomic.AddInt64(&om.Success, 1)
	case errors.Is(err, fault.ErrSlotConflict), errors.Is(err, fault.ErrIllegalTransition):
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
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	sort.Slice(latencies, func(i, j int) bool {
		return latencies[i] < latencies[j]
	})

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]
	p50 = latencies[percentileIndex(len(latencies), 50)]
	p95 = latencies[percentileIndex(len(latencies), 95)]
	return avg, min, max, p50, p95
}

func percentileIndex(n, p int) int {
	idx := n * p / 100
	if idx >= n {
		idx = n - 1
	}
	return idx
}

type Metrics struct {
	Booking       OperationMetrics
	Cancel        OperationMetrics
	ListAppts     OperationMetrics
	Notifications OperationMetrics
}

// patient is one simulated portal session with its own core components.
type patient struct {
	sess     session.Session
	manager  *booking.Manager
	feed     *notification.Aggregator
	resolver *availability.Resolver
}

type Simulator struct {
	config      SimConfig
	client      *storeclient.Client
	cal         *calendar.Calendar
	departments []string
	days        []time.Time
	tokens      *auth.Tokens
	log         logrus.FieldLogger
	metrics     Metrics
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		logrus.Fatalf("invalid config: %v", err)
	}

	log := logging.New("dev")
	log.WithFields(logrus.Fields{
		"duration": cfg.Duration,
		"workers":  cfg.Workers,
		"booking":  cfg.BookingRatio,
		"cancel":   cfg.CancelRatio,
		"read":     cfg.ReadRatio,
	}).Info("simulator starting")

	sim := &Simulator{
		config: cfg,
		client: storeclient.New(cfg.APIBaseURL, &http.Client{Timeout: 10 * time.Second}),
		cal:    calendar.Default(),
		tokens: auth.NewTokens(cfg.JWTSecret),
		log:    log,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := sim.loadReferenceData(ctx); err != nil {
		log.Fatalf("load reference data: %v", err)
	}
	log.WithFields(logrus.Fields{"departments": len(sim.departments), "days": len(sim.days)}).Info("reference data loaded")

	sim.Run()
	sim.PrintReport()
}

func loadConfig() (SimConfig, error) {
	baseCfg, err := config.Load()
	if err != nil {
		return SimConfig{}, fmt.Errorf("load base config: %w", err)
	}

	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("SIM_API_BASE_URL", "http://localhost:8080")
	v.SetDefault("SIM_DURATION", "30s")
	v.SetDefault("SIM_WORKERS", 10)
	v.SetDefault("SIM_BOOKING_RATIO", 0.5)
	v.SetDefault("SIM_CANCEL_RATIO", 0.2)
	v.SetDefault("SIM_READ_RATIO", 0.3)
	v.SetDefault("SIM_DAYS", 2)

	cfg := SimConfig{
		APIBaseURL:   strings.TrimRight(v.GetString("SIM_API_BASE_URL"), "/"),
		Duration:     v.GetDuration("SIM_DURATION"),
		Workers:      v.GetInt("SIM_WORKERS"),
		BookingRatio: v.GetFloat64("SIM_BOOKING_RATIO"),
		CancelRatio:  v.GetFloat64("SIM_CANCEL_RATIO"),
		ReadRatio:    v.GetFloat64("SIM_READ_RATIO"),
		Days:         v.GetInt("SIM_DAYS"),
		JWTSecret:    baseCfg.JWTSecret,
	}

	if cfg.Workers <= 0 {
		return SimConfig{}, errors.New("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return SimConfig{}, errors.New("SIM_DURATION must be > 0")
	}
	if cfg.Days <= 0 {
		return SimConfig{}, errors.New("SIM_DAYS must be > 0")
	}

	// Normalize ratios
	total := cfg.BookingRatio + cfg.CancelRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.CancelRatio /= total
		cfg.ReadRatio /= total
	}
	return cfg, nil
}

// loadReferenceData fetches departments and picks the first bookable days,
// so that workers contend for a small set of slots.
func (s *Simulator) loadReferenceData(ctx context.Context) error {
	sess, err := s.newSession()
	if err != nil {
		return err
	}

	depts, err := s.client.Departments(ctx, sess)
	if err != nil {
		return err
	}
	if len(depts) == 0 {
		return errors.New("store has no departments, run seed first")
	}
	for _, d := range depts {
		s.departments = append(s.departments, d.Name)
	}

	from, to := s.cal.EligibleDateRange(time.Now())
	for day := from.AddDate(0, 0, 1); !day.After(to) && len(s.days) < s.config.Days; day = day.AddDate(0, 0, 1) {
		if s.cal.IsBookableWeekday(day) {
			s.days = append(s.days, day)
		}
	}
	if len(s.days) == 0 {
		return errors.New("no bookable days in range")
	}
	return nil
}

func (s *Simulator) newSession() (session.Session, error) {
	userID := uuid.New()
	token, err := s.tokens.Issue(userID, s.config.Duration+time.Hour)
	if err != nil {
		return session.Session{}, fmt.Errorf("issue token: %w", err)
	}
	return session.New(token, userID), nil
}

func (s *Simulator) newPatient() (*patient, error) {
	sess, err := s.newSession()
	if err != nil {
		return nil, err
	}
	resolver := availability.NewResolver(s.client, s.cal)
	resolver.SetDepartments(s.departments)
	return &patient{
		sess:     sess,
		resolver: resolver,
		manager:  booking.NewManager(s.client, resolver, s.cal, s.log),
		feed:     notification.NewAggregator(s.client, s.log),
	}, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	s.log.Infof("starting simulation for %s with %d workers", s.config.Duration, s.config.Workers)

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		p, err := s.newPatient()
		if err != nil {
			s.log.WithError(err).Error("create patient")
			continue
		}
		wg.Add(1)
		go func(workerID int, p *patient) {
			defer wg.Done()
			s.worker(ctx, workerID, p)
		}(i, p)
	}

	wg.Wait()
	s.log.Info("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int, p *patient) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
			r := rng.Float64()
			if r < s.config.BookingRatio {
				s.doBooking(ctx, rng, p)
			} else if r < s.config.BookingRatio+s.config.CancelRatio {
				s.doCancel(ctx, rng, p)
			} else if rng.Intn(2) == 0 {
				s.doListAppointments(ctx, p)
			} else {
				s.doNotifications(ctx, p)
			}
		}
	}
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand, p *patient) {
	dept := s.departments[rng.Intn(len(s.departments))]
	day := s.days[rng.Intn(len(s.days))]

	start := time.Now()
	snap, err := p.resolver.Resolve(ctx, p.sess, dept, day)
	if err != nil {
		s.recordUnlessCancelled(ctx, &s.metrics.Booking, time.Since(start), err)
		return
	}

	var open []string
	for _, slot := range snap.Slots {
		if slot.Available {
			open = append(open, slot.Label)
		}
	}
	if len(open) == 0 {
		return
	}

	req := booking.Request{
		Department: dept,
		Date:       day,
		Time:       open[rng.Intn(len(open))],
		Symptoms:   []string{appointment.Symptoms[gofakeit.Number(0, len(appointment.Symptoms)-1)]},
	}
	if req.Symptoms[0] == appointment.SymptomOther {
		req.OtherSymptom = gofakeit.RandomString([]string{"dizziness", "back pain", "rash", "insomnia"})
	}

	_, err = p.manager.Submit(ctx, p.sess, req)
	s.recordUnlessCancelled(ctx, &s.metrics.Booking, time.Since(start), err)
}

func (s *Simulator) doCancel(ctx context.Context, rng *rand.Rand, p *patient) {
	var candidates []uuid.UUID
	for _, v := range p.manager.Views() {
		if v.CanCancel {
			candidates = append(candidates, v.Appointment.ID)
		}
	}
	if len(candidates) == 0 {
		return
	}

	start := time.Now()
	_, err := p.manager.Cancel(ctx, p.sess, candidates[rng.Intn(len(candidates))])
	s.recordUnlessCancelled(ctx, &s.metrics.Cancel, time.Since(start), err)
}

func (s *Simulator) doListAppointments(ctx context.Context, p *patient) {
	start := time.Now()
	_, err := p.manager.Refresh(ctx, p.sess)
	s.recordUnlessCancelled(ctx, &s.metrics.ListAppts, time.Since(start), err)
}

func (s *Simulator) doNotifications(ctx context.Context, p *patient) {
	start := time.Now()
	_, err := p.feed.Refresh(ctx, p.sess)
	if err == nil && p.feed.HasUnread() {
		err = p.feed.Open(ctx, p.sess)
	}
	s.recordUnlessCancelled(ctx, &s.metrics.Notifications, time.Since(start), err)
}

// recordUnlessCancelled drops operations cut short by the end of the run.
func (s *Simulator) recordUnlessCancelled(ctx context.Context, om *OperationMetrics, latency time.Duration, err error) {
	if err != nil && ctx.Err() != nil {
		return
	}
	if err != nil && !errors.Is(err, fault.ErrSlotConflict) {
		s.log.WithError(err).Debug("operation failed")
	}
	om.Record(latency, err)
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Printf("Contended days: %d x %d departments\n", len(s.days), len(s.departments))
	fmt.Println()

	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Cancel", &s.metrics.Cancel)
	printOperationReport("List appointments", &s.metrics.ListAppts)
	printOperationReport("Notifications", &s.metrics.Notifications)
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
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}
