package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/hackgods/clinic-portal/internal/appointment"
	"github.com/hackgods/clinic-portal/internal/auth"
	"github.com/hackgods/clinic-portal/internal/calendar"
	"github.com/hackgods/clinic-portal/internal/config"
	"github.com/hackgods/clinic-portal/internal/db"
	"github.com/hackgods/clinic-portal/internal/healthrecord"
	"github.com/hackgods/clinic-portal/internal/logging"
)

const (
	seedUsers           = 20
	recordsPerUser      = 6
	appointmentsPerUser = 3
	tokenTTL            = 30 * 24 * time.Hour
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("config load error: %v", err)
	}
	if cfg.StoreBackend != config.BackendPostgres {
		logrus.Fatalf("seed requires STORE_BACKEND=%s", config.BackendPostgres)
	}

	log := logging.New(cfg.Env)
	log.Info("seed starting")

	if err := db.Migrate(cfg.PostgresDSN, log); err != nil {
		log.Fatalf("migration error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, cfg.PostgresMaxConns, log)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	if err := seedDepartments(ctx, pool, log); err != nil {
		log.Fatalf("seed departments: %v", err)
	}

	tokens := auth.NewTokens(cfg.JWTSecret)
	records := healthrecord.NewPgRepository(pool)
	appts := appointment.NewPgRepository(pool)

	for i := 0; i < seedUsers; i++ {
		userID := uuid.New()

		if err := seedRecords(ctx, records, userID, recordsPerUser); err != nil {
			log.Fatalf("seed health records: %v", err)
		}
		booked, err := seedAppointments(ctx, appts, userID, appointmentsPerUser)
		if err != nil {
			log.Fatalf("seed appointments: %v", err)
		}

		token, err := tokens.Issue(userID, tokenTTL)
		if err != nil {
			log.Fatalf("issue token: %v", err)
		}
		fmt.Printf("user=%s appointments=%d token=%s\n", userID, booked, token)
	}

	log.Info("seed complete")
}

func seedDepartments(ctx context.Context, pool *pgxpool.Pool, log logrus.FieldLogger) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, d := range appointment.DefaultDepartments {
		_, err := tx.Exec(ctx, `
			INSERT INTO departments (name, icon)
			VALUES ($1, $2)
			ON CONFLICT (name) DO UPDATE SET icon = EXCLUDED.icon
		`, d.Name, d.Icon)
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}
	log.WithField("count", len(appointment.DefaultDepartments)).Info("departments seeded")
	return nil
}

func seedRecords(ctx context.Context, repo healthrecord.Repository, userID uuid.UUID, count int) error {
	for i := 0; i < count; i++ {
		weight := gofakeit.Float64Range(45, 120)
		height := gofakeit.Float64Range(150, 200)
		heartRate := gofakeit.Number(55, 110)
		bp := fmt.Sprintf("%d/%d", gofakeit.Number(100, 140), gofakeit.Number(60, 90))
		diagnosis := gofakeit.RandomString([]string{"Healthy", "Seasonal flu", "Mild hypertension", "Migraine", "Dermatitis"})
		notes := gofakeit.RandomString([]string{"Follow up in two weeks", "Keep hydrated", "Review blood work", "No further action"})

		_, err := repo.Create(ctx, healthrecord.NewRecord{
			UserID:        userID,
			Date:          calendar.Day(gofakeit.DateRange(time.Now().AddDate(-1, 0, 0), time.Now())),
			Weight:        &weight,
			Height:        &height,
			BloodPressure: &bp,
			HeartRate:     &heartRate,
			Diagnosis:     &diagnosis,
			Notes:         &notes,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// seedAppointments books random future slots, skipping ones already taken.
func seedAppointments(ctx context.Context, repo appointment.Repository, userID uuid.UUID, count int) (int, error) {
	cal := calendar.Default()
	grid := cal.FixedSlotGrid()
	from, to := cal.EligibleDateRange(time.Now())

	booked := 0
	for attempt := 0; booked < count && attempt < count*10; attempt++ {
		day := calendar.Day(gofakeit.DateRange(from, to.Add(24*time.Hour-time.Second)))
		if !cal.IsBookableWeekday(day) {
			continue
		}
		dept := appointment.DefaultDepartments[gofakeit.Number(0, len(appointment.DefaultDepartments)-1)]

		_, err := repo.Create(ctx, appointment.NewAppointment{
			UserID:     userID,
			Department: dept.Name,
			SlotDate:   day,
			SlotTime:   grid[gofakeit.Number(0, len(grid)-1)],
			Symptoms:   []string{appointment.Symptoms[gofakeit.Number(0, len(appointment.Symptoms)-2)]},
		})
		if errors.Is(err, appointment.ErrSlotTaken) {
			continue
		}
		if err != nil {
			return booked, err
		}
		booked++
	}
	return booked, nil
}
