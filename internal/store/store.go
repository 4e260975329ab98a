// Package store opens the configured set of domain stores.
package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointments/internal/config"
	"github.com/hackgods/clinic-appointments/internal/db"
	"github.com/hackgods/clinic-appointments/internal/domain"
	"github.com/hackgods/clinic-appointments/internal/events"
	"github.com/hackgods/clinic-appointments/internal/store/memory"
	"github.com/hackgods/clinic-appointments/internal/store/mongostore"
	"github.com/hackgods/clinic-appointments/internal/store/postgres"
)

type Set struct {
	Practitioners domain.PractitionerStore
	Patients      domain.PatientStore
	Appointments  domain.AppointmentStore
	// EventLog is non-nil for backends that persist lifecycle events.
	EventLog events.Sink
	// Ping checks backend reachability for readiness probes.
	Ping  func(ctx context.Context) error
	Close func()
}

func Memory() Set {
	return Set{
		Practitioners: memory.NewPractitionerStore(),
		Patients:      memory.NewPatientStore(),
		Appointments:  memory.NewAppointmentStore(),
		Ping:          func(context.Context) error { return nil },
		Close:         func() {},
	}
}

func Open(ctx context.Context, cfg config.Config, log *zap.Logger) (Set, error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
		if err != nil {
			return Set{}, err
		}
		if err := postgres.Migrate(ctx, pool); err != nil {
			pool.Close()
			return Set{}, err
		}
		log.Info("connected to postgres")
		return postgresSet(pool), nil

	case config.DriverMongo:
		client, err := db.ConnectMongo(ctx, cfg.MongoURI)
		if err != nil {
			return Set{}, err
		}
		database := client.Database(cfg.MongoDatabase)
		if err := mongostore.EnsureIndexes(ctx, database); err != nil {
			_ = client.Disconnect(context.Background())
			return Set{}, err
		}
		log.Info("connected to mongo", zap.String("database", cfg.MongoDatabase))
		return mongoSet(client, database), nil

	case config.DriverMemory:
		log.Info("using in-memory stores")
		return Memory(), nil
	}
	return Set{}, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}

func postgresSet(pool *pgxpool.Pool) Set {
	return Set{
		Practitioners: postgres.NewPractitionerStore(pool),
		Patients:      postgres.NewPatientStore(pool),
		Appointments:  postgres.NewAppointmentStore(pool),
		EventLog:      postgres.NewEventLog(pool),
		Ping:          pool.Ping,
		Close:         pool.Close,
	}
}

func mongoSet(client *mongo.Client, database *mongo.Database) Set {
	return Set{
		Practitioners: mongostore.NewPractitionerStore(database),
		Patients:      mongostore.NewPatientStore(database),
		Appointments:  mongostore.NewAppointmentStore(database),
		Ping:          func(ctx context.Context) error { return client.Ping(ctx, nil) },
		Close:         func() { _ = client.Disconnect(context.Background()) },
	}
}
