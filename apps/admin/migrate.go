package main

import (
	"github.com/murilobento/studiofisiopilates-sub000/storage/database"
)

var migrateFunc = database.Migrate // mockable

func (cli *commandLine) migrate(args []string) error {
	db, closeDB, err := cli.openDB()
	if err != nil {
		return err
	}
	defer func() { _ = closeDB() }()
	return migrateFunc(db, args[0], args[1:]...)
}
