package main

import (
	"github.com/siat-edu/siat/storage/database"
)

var migrateFunc = database.RunMigrations // mockable

func (cli *commandLine) migrate(args []string) error {
	return migrateFunc(cli.db, cli.conf.Database.Engine, args[0], args[1:]...)
}
