package database

import (
	"context"

	"github.com/pkg/errors"

	"github.com/murilobento/studiofisiopilates-sub000/core"
	"github.com/murilobento/studiofisiopilates-sub000/core/billing"
	"github.com/murilobento/studiofisiopilates-sub000/core/finance"
	"github.com/murilobento/studiofisiopilates-sub000/core/schedule"
	"github.com/murilobento/studiofisiopilates-sub000/core/student"
	"github.com/murilobento/studiofisiopilates-sub000/core/user"
	inmemdb "github.com/murilobento/studiofisiopilates-sub000/storage/database/inmem"
	sqlxrepos "github.com/murilobento/studiofisiopilates-sub000/storage/database/sqlx"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Repositories is every repository of a storage driver, sharing one Transactor.
type Repositories struct {
	Tx       core.Transactor
	Users    user.Repository
	Students student.Repository
	Schedule schedule.Repository
	Billing  billing.Repository
	Finance  finance.Repository

	close func() error
}

func (r *Repositories) Close() error {
	if r.close == nil {
		return nil
	}
	return r.close()
}

// MemoryRepositories are backed by a fresh in-memory store.
func MemoryRepositories() *Repositories {
	db := inmemdb.Open()
	return &Repositories{
		Tx:       db,
		Users:    inmemdb.NewUserRepository(db),
		Students: inmemdb.NewStudentRepository(db),
		Schedule: inmemdb.NewScheduleRepository(db),
		Billing:  inmemdb.NewBillingRepository(db),
		Finance:  inmemdb.NewFinanceRepository(db),
	}
}

// NewRepositories opens the configured driver. For postgres the database is created
// if needed and migrated to the latest version.
func NewRepositories(ctx context.Context, conf *core.Config) (*Repositories, error) {
	switch conf.Database.Driver {
	case DriverMemory:
		return MemoryRepositories(), nil
	case DriverPostgres, "":
	default:
		return nil, errors.Errorf("unknown database driver %q", conf.Database.Driver)
	}

	if err := CreateIfNotExist(ctx, conf); err != nil {
		return nil, err
	}
	db, err := Open(ctx, conf)
	if err != nil {
		return nil, err
	}
	if err = Migrate(db.DB, "up"); err != nil {
		_ = db.Close()
		return nil, err
	}

	store := sqlxrepos.NewStore(db)
	return &Repositories{
		Tx:       store,
		Users:    sqlxrepos.NewUserRepository(store),
		Students: sqlxrepos.NewStudentRepository(store),
		Schedule: sqlxrepos.NewScheduleRepository(store),
		Billing:  sqlxrepos.NewBillingRepository(store),
		Finance:  sqlxrepos.NewFinanceRepository(store),
		close:    db.Close,
	}, nil
}
