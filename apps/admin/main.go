package main

import (
	"context"
	"database/sql"
	"log"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	dig_container "github.com/murilobento/studiofisiopilates-sub000/apps/api/di/dig"
	"github.com/murilobento/studiofisiopilates-sub000/core"
	"github.com/murilobento/studiofisiopilates-sub000/storage/database"
)

var logger *log.Logger

func main() {
	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	var cli *commandLine
	var repos *database.Repositories
	err := dig_container.New().Invoke(func(
		conf *core.Config,
		clock core.Clock,
		validate *validator.Validate,
		svcs dig_container.Services,
		r *database.Repositories,
	) {
		repos = r
		cli = &commandLine{
			clock:     clock,
			validate:  validate,
			openDB:    dbOpener(conf),
			users:     svcs.Users,
			schedule:  svcs.Schedule,
			generator: svcs.Generator,
			finance:   svcs.Finance,
			out:       os.Stdout,
		}
	})
	errAndDie(err)

	err = cli.run(os.Args)
	_ = repos.Close()
	if err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

// dbOpener opens a dedicated connection for migrations.
func dbOpener(conf *core.Config) func() (*sql.DB, func() error, error) {
	return func() (*sql.DB, func() error, error) {
		if conf.Database.Driver == database.DriverMemory {
			return nil, nil, errors.New("migrations need the postgres driver")
		}
		db, err := database.Open(context.Background(), conf)
		if err != nil {
			return nil, nil, err
		}
		return db.DB, db.Close, nil
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}
