package main

import (
	"context"
	"errors"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointments/internal/config"
	"github.com/hackgods/clinic-appointments/internal/domain"
	"github.com/hackgods/clinic-appointments/internal/lock"
	"github.com/hackgods/clinic-appointments/internal/logging"
	"github.com/hackgods/clinic-appointments/internal/patient"
	"github.com/hackgods/clinic-appointments/internal/practitioner"
	"github.com/hackgods/clinic-appointments/internal/store"
)

var specialties = []string{
	"Dermatology",
	"Cardiology",
	"General Practice",
	"Orthopedics",
	"Endocrinology",
	"Neurology",
	"Pediatrics",
	"Psychiatry",
	"Ophthalmology",
	"ENT",
}

type seedConfig struct {
	Practitioners int
	Patients      int
	Days          int
	SlotLength    time.Duration
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if cfg.StoreDriver == config.DriverMemory {
		logger.Warn("seeding the in-memory store; data is discarded on exit")
	}

	sc := seedConfig{
		Practitioners: getInt("SEED_PRACTITIONERS", 100),
		Patients:      getInt("SEED_PATIENTS", 9000),
		Days:          getInt("SEED_DAYS", 5),
		SlotLength:    30 * time.Minute,
	}

	ctx := context.Background()

	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	stores, err := store.Open(connCtx, cfg, logger)
	cancel()
	if err != nil {
		logger.Fatal("store connection error", zap.Error(err))
	}
	defer stores.Close()

	locker := lock.NewLocal(cfg.LockWait)
	quiet := logger.WithOptions(zap.IncreaseLevel(zap.WarnLevel))
	practitioners := practitioner.NewRegistry(stores.Practitioners, stores.Appointments, locker, quiet,
		practitioner.WithLocation(cfg.Timezone))
	patients := patient.NewRegistry(stores.Patients, stores.Appointments, locker, quiet)

	faker := gofakeit.New(0)

	ids, err := seedPractitioners(ctx, logger, practitioners, faker, sc.Practitioners)
	if err != nil {
		logger.Fatal("seed practitioners", zap.Error(err))
	}
	if err := seedSlots(ctx, logger, practitioners, ids, sc, cfg.Timezone); err != nil {
		logger.Fatal("seed slots", zap.Error(err))
	}
	if err := seedPatients(ctx, logger, patients, faker, sc.Patients); err != nil {
		logger.Fatal("seed patients", zap.Error(err))
	}

	logger.Info("seed complete")
}

func seedPractitioners(ctx context.Context, logger *zap.Logger, reg *practitioner.Registry, faker *gofakeit.Faker, count int) ([]string, error) {
	logger.Info("seeding practitioners", zap.Int("count", count))

	ids := make([]string, 0, count)
	for len(ids) < count {
		id, err := reg.Register(ctx, practitioner.Input{
			Name:      "Dr. " + faker.Name(),
			Specialty: specialties[faker.Number(0, len(specialties)-1)],
		})
		if errors.Is(err, domain.ErrDuplicateName) {
			continue
		}
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	logger.Info("practitioners seeded", zap.Int("count", len(ids)))
	return ids, nil
}

// seedSlots offers a working day of back-to-back slots, 09:00 to 17:00,
// on each of the next sc.Days days.
func seedSlots(ctx context.Context, logger *zap.Logger, reg *practitioner.Registry, ids []string, sc seedConfig, loc *time.Location) error {
	step := domain.Clock(sc.SlotLength / time.Minute)
	open, closing := domain.NewClock(9, 0), domain.NewClock(17, 0)
	today := domain.DateOf(time.Now().In(loc))

	total := 0
	for _, id := range ids {
		for d := 1; d <= sc.Days; d++ {
			date := domain.NewDate(today.Year, today.Month, today.Day+d)
			// touching slots overlap, so leave a minute between them
			for start := open; start+step <= closing; start += step {
				if _, err := reg.AddSlot(ctx, id, date, start, start+step-1); err != nil {
					return err
				}
				total++
			}
		}
	}

	logger.Info("slots seeded", zap.Int("count", total))
	return nil
}

func seedPatients(ctx context.Context, logger *zap.Logger, reg *patient.Registry, faker *gofakeit.Faker, count int) error {
	logger.Info("seeding patients", zap.Int("count", count))

	const batchSize = 500

	created := 0
	for created < count {
		_, err := reg.Register(ctx, patient.Input{Name: faker.Name()})
		if errors.Is(err, domain.ErrDuplicateName) {
			continue
		}
		if err != nil {
			return err
		}
		created++
		if created%batchSize == 0 {
			logger.Info("patients seeded", zap.Int("done", created), zap.Int("total", count))
		}
	}

	logger.Info("patients seeded", zap.Int("count", created))
	return nil
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
