package main

import (
	"log"
	"os"

	"github.com/trezcool/markit/core"
	"github.com/trezcool/markit/core/answer"
	"github.com/trezcool/markit/core/marking"
	"github.com/trezcool/markit/core/task"
	"github.com/trezcool/markit/core/user"
	emailsvc "github.com/trezcool/markit/services/email"
	filesvc "github.com/trezcool/markit/services/files"
	imagingsvc "github.com/trezcool/markit/services/imaging"
	logsvc "github.com/trezcool/markit/services/logger"
	mirrorsvc "github.com/trezcool/markit/services/mirror"
	reportsvc "github.com/trezcool/markit/services/report"
	"github.com/trezcool/markit/storage/database"
	boiledrepos "github.com/trezcool/markit/storage/database/sqlboiler"
	sqlxrepos "github.com/trezcool/markit/storage/database/sqlx"
)

var logger core.Logger

func main() {
	defer os.Exit(0)

	conf := core.NewConfig()
	logger = logsvc.NewRollbarLogger(log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile), conf)

	// set up DB
	db, err := database.Open(conf)
	errAndDie(err)
	defer db.Close()
	errAndDie(database.Ping(db))

	core.ParseEmailTemplates(logger, false /* strict */)

	// set up services
	usrRepo := sqlxrepos.NewUserRepository(db)
	markingRepo := sqlxrepos.NewMarkingRepository(db)
	files := filesvc.NewLocalStore(conf)
	mailSvc := emailsvc.NewService(conf, logger)
	queue := mirrorsvc.NewQueue(conf, logger)

	usrSvc := user.NewService(usrRepo, mailSvc, conf)
	taskSvc := task.NewService(db, sqlxrepos.NewTaskRepository(db), usrSvc, mailSvc)
	answerSvc := answer.NewService(db, sqlxrepos.NewAnswerRepository(db), taskSvc, usrSvc, files, imagingsvc.NewProcessor(), queue)
	markingSvc := marking.NewService(markingRepo, boiledrepos.NewStatsRepository(db), taskSvc, answerSvc, usrSvc)

	provider, err := mirrorsvc.NewProvider(conf)
	errAndDie(err)

	// start CLI
	cli := commandLine{
		db:         db,
		usrRepo:    usrRepo,
		taskSvc:    taskSvc,
		answerSvc:  answerSvc,
		markingSvc: markingSvc,
		mailSvc:    mailSvc,
		reporter:   reportsvc.NewService(conf),
		mirror:     mirrorsvc.NewWorker(conf, queue, answerSvc, provider, files, logger),
		out:        os.Stdout,
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Error(err.Error(), err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err.Error(), err)
	}
}
