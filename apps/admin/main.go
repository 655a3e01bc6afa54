package main

import (
	"fmt"
	"log"
	"os"

	"github.com/siat-edu/siat/core"
	"github.com/siat-edu/siat/core/academics"
	"github.com/siat-edu/siat/core/progress"
	"github.com/siat-edu/siat/core/user"
	emailsvc "github.com/siat-edu/siat/services/email"
	logsvc "github.com/siat-edu/siat/services/logger"
	"github.com/siat-edu/siat/storage/database"
	sqlxrepos "github.com/siat-edu/siat/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)

	// set up DB
	if err := database.CreateIfNotExist(conf); err != nil {
		logger.Fatal(fmt.Sprintf("creating database: %v", err), err)
	}
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
	}

	usrRepo := sqlxrepos.NewUserRepository(db)
	acadRepo := sqlxrepos.NewAcademicsRepository(db)
	mailSvc := emailsvc.NewConsoleService(conf, logger)

	// start CLI
	cli := commandLine{
		db:         db,
		conf:       conf,
		out:        os.Stdout,
		usrRepo:    usrRepo,
		acadSvc:    academics.NewService(db, acadRepo, user.NewService(usrRepo), mailSvc, conf),
		calculator: progress.NewCalculator(sqlxrepos.NewProgressRepository(db), logger),
	}
	err = cli.run(os.Args)
	_ = db.Close()
	logger.Close()
	if err != nil {
		if err != errHelp {
			fmt.Fprintf(os.Stderr, "\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}
