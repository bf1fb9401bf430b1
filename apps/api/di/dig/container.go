package dig_container

import (
	"database/sql"
	"fmt"
	"log"
	"os"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/trezcool/markit/apps/api/echo"
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

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

type MirrorLoggerParam struct {
	dig.In
	Logger core.Logger `name:"mirrorLogger"`
}

func newRollbarLogger(conf *core.Config, prefix string, flags int) core.Logger {
	stdLogger := log.New(os.Stdout, prefix, flags)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug && conf.RollbarToken != "")
	return logger
}

func newLogger(conf *core.Config) core.Logger {
	return newRollbarLogger(conf, "API : ", log.LstdFlags)
}

func newDBLogger(conf *core.Config) core.Logger {
	return newRollbarLogger(conf, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
}

func newMirrorLogger(conf *core.Config) core.Logger {
	return newRollbarLogger(conf, "MIRROR : ", log.LstdFlags|log.Lmicroseconds)
}

func newDB(conf *core.Config, loggerParam DBLoggerParam) (*sql.DB, core.DB) {
	setUp := func() (*sql.DB, error) {
		if err := database.CreateIfNotExist(conf); err != nil {
			return nil, err
		}

		db, err := database.Open(conf)
		if err != nil {
			return nil, err
		}

		if err = database.Migrate(db); err != nil {
			return nil, err
		}
		return db, nil
	}

	db, err := setUp()
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return db, db
}

func newUserRepository(db *sql.DB) user.Repository       { return sqlxrepos.NewUserRepository(db) }
func newTaskRepository(db *sql.DB) task.Repository       { return sqlxrepos.NewTaskRepository(db) }
func newAnswerRepository(db *sql.DB) answer.Repository   { return sqlxrepos.NewAnswerRepository(db) }
func newMarkingRepository(db *sql.DB) marking.Repository { return sqlxrepos.NewMarkingRepository(db) }

func newStatsRepository(db *sql.DB) marking.StatsRepository {
	return boiledrepos.NewStatsRepository(db)
}

func newProvider(conf *core.Config, loggerParam MirrorLoggerParam) mirrorsvc.Provider {
	provider, err := mirrorsvc.NewProvider(conf)
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up mirror provider: %v", err), err)
	}
	return provider
}

func newQueue(conf *core.Config, loggerParam MirrorLoggerParam) *mirrorsvc.Queue {
	return mirrorsvc.NewQueue(conf, loggerParam.Logger)
}

func newMirrorQueue(queue *mirrorsvc.Queue) answer.MirrorQueue { return queue }

func newWorker(
	conf *core.Config,
	queue *mirrorsvc.Queue,
	answerSvc answer.Service,
	provider mirrorsvc.Provider,
	files answer.FileStore,
	loggerParam MirrorLoggerParam,
) *mirrorsvc.Worker {
	return mirrorsvc.NewWorker(conf, queue, answerSvc, provider, files, loggerParam.Logger)
}

type serverParams struct {
	dig.In

	Conf       *core.Config
	Logger     core.Logger
	Validate   *validator.Validate
	Translator ut.Translator
	UserSvc    user.Service
	TaskSvc    task.Service
	AnswerSvc  answer.Service
	MarkingSvc marking.Service
	Reporter   echoapi.Reporter
	Provider   mirrorsvc.Provider
}

func newServer(p serverParams) *echoapi.Server {
	deps := echoapi.ServerDeps{
		Conf:       p.Conf,
		Logger:     p.Logger,
		Validate:   p.Validate,
		Translator: p.Translator,
		UserSvc:    p.UserSvc,
		TaskSvc:    p.TaskSvc,
		AnswerSvc:  p.AnswerSvc,
		MarkingSvc: p.MarkingSvc,
		Reporter:   p.Reporter,
	}
	if p.Provider != nil {
		deps.Mirror = p.Provider
	}
	return echoapi.NewServer(deps)
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	// config & loggers
	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newMirrorLogger, dig.Name("mirrorLogger")))

	// storage
	must(c.Provide(newDB))
	must(c.Provide(newUserRepository))
	must(c.Provide(newTaskRepository))
	must(c.Provide(newAnswerRepository))
	must(c.Provide(newMarkingRepository))
	must(c.Provide(newStatsRepository))
	must(c.Provide(filesvc.NewLocalStore, dig.As(new(answer.FileStore))))

	// services
	must(c.Provide(emailsvc.NewService))
	must(c.Provide(imagingsvc.NewProcessor, dig.As(new(answer.PageProcessor))))
	must(c.Provide(reportsvc.NewService, dig.As(new(echoapi.Reporter))))
	must(c.Provide(newProvider))
	must(c.Provide(newQueue))
	must(c.Provide(newMirrorQueue))
	must(c.Provide(user.NewService))
	must(c.Provide(task.NewService))
	must(c.Provide(answer.NewService))
	must(c.Provide(marking.NewService))
	must(c.Provide(newWorker))

	// api
	must(c.Provide(validator.New))
	must(c.Provide(core.NewTranslator))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
