package dig_container

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/trezcool/elearning/apps/api/echo"
	"github.com/trezcool/elearning/core"
	"github.com/trezcool/elearning/core/attempt"
	"github.com/trezcool/elearning/core/exam"
	"github.com/trezcool/elearning/core/file"
	"github.com/trezcool/elearning/core/flashcard"
	"github.com/trezcool/elearning/core/question"
	"github.com/trezcool/elearning/core/session"
	"github.com/trezcool/elearning/core/srs"
	"github.com/trezcool/elearning/core/test"
	"github.com/trezcool/elearning/core/topic"
	"github.com/trezcool/elearning/core/user"
	emailsvc "github.com/trezcool/elearning/services/email"
	filesvc "github.com/trezcool/elearning/services/files"
	geminisvc "github.com/trezcool/elearning/services/gemini"
	jobsvc "github.com/trezcool/elearning/services/jobs"
	logsvc "github.com/trezcool/elearning/services/logger"
	metricsvc "github.com/trezcool/elearning/services/metrics"
	"github.com/trezcool/elearning/storage/database"
	pgrepos "github.com/trezcool/elearning/storage/database/postgres"
)

type (
	DBLoggerParam struct {
		dig.In
		Logger core.Logger `name:"dbLogger"`
	}

	// serverParams collects everything echoapi.NewServer needs.
	serverParams struct {
		dig.In

		Conf       *core.Config
		Logger     core.Logger
		Validate   *validator.Validate
		Translator ut.Translator
		Metrics    *metricsvc.Metrics

		UserSvc      user.ServiceInterface
		TopicSvc     *topic.Service
		QuestionSvc  *question.Service
		TestSvc      *test.Service
		AttemptSvc   *attempt.Service
		FileSvc      *file.Service
		FlashcardSvc *flashcard.Service
		SRSSvc       *srs.Service
		ExamSvc      *exam.Service
		SessionSvc   *session.Service
	}
)

func newLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "API : ", log.LstdFlags)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newDBLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newDB(conf *core.Config, loggerParam DBLoggerParam) *sqlx.DB {
	setUp := func() (*sqlx.DB, error) {
		if err := database.CreateIfNotExist(conf); err != nil {
			return nil, err
		}

		db, err := database.Open(conf)
		if err != nil {
			return nil, err
		}

		if err = database.Migrate(db.DB, "up"); err != nil {
			return nil, err
		}
		return db, nil
	}

	db, err := setUp()
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return db
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(conf, log.New(os.Stdout, "", 0), logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}

func newFileService(conf *core.Config, db *sqlx.DB) (*file.Service, error) {
	storage, err := filesvc.NewDiskStorage(conf.MediaRoot)
	if err != nil {
		return nil, errors.Wrap(err, "preparing media root")
	}
	return file.NewService(pgrepos.NewFileRepository(db), storage, conf.BackendBaseURL), nil
}

func newAIClient(conf *core.Config, metrics *metricsvc.Metrics, logger core.Logger) (*geminisvc.Client, error) {
	if conf.AI.GeminiAPIKey == "" {
		logger.Warn("gemini api key not set: essay grading and AI feedback are disabled")
	}
	return geminisvc.NewClient(context.Background(), conf, metrics)
}

func newTopicService(db *sqlx.DB) *topic.Service {
	return topic.NewService(pgrepos.NewTopicRepository(db))
}

func newQuestionService(db *sqlx.DB) *question.Service {
	return question.NewService(pgrepos.NewQuestionRepository(db), pgrepos.NewTopicRepository(db))
}

func newTestService(db *sqlx.DB) *test.Service {
	return test.NewService(pgrepos.NewTestRepository(db), pgrepos.NewQuestionRepository(db))
}

func newAttemptService(
	conf *core.Config,
	db *sqlx.DB,
	tests *test.Service,
	files *file.Service,
	ai *geminisvc.Client,
	logger core.Logger,
) *attempt.Service {
	return attempt.NewService(
		pgrepos.NewAttemptRepository(db), tests, pgrepos.NewQuestionRepository(db), files, ai, ai, logger,
		attempt.Options{
			MaxConcurrentGradings: conf.AI.MaxConcurrentGradings,
			GradingTimeout:        conf.AI.GradingTimeout,
			FeedbackTimeout:       conf.AI.FeedbackTimeout,
		},
	)
}

func newFlashcardService(db *sqlx.DB) *flashcard.Service {
	return flashcard.NewService(pgrepos.NewFlashcardRepository(db), pgrepos.NewTopicRepository(db))
}

func newSRSService(db *sqlx.DB, cards *flashcard.Service) *srs.Service {
	return srs.NewService(pgrepos.NewSRSRepository(db), cards, pgrepos.NewTopicRepository(db), pgrepos.NewExamRepository(db))
}

func newExamService(db *sqlx.DB, cards *flashcard.Service, progress *srs.Service, ai *geminisvc.Client, logger core.Logger) *exam.Service {
	return exam.NewService(pgrepos.NewExamRepository(db), cards, pgrepos.NewTopicRepository(db), progress, ai, logger)
}

func newSessionService(db *sqlx.DB) *session.Service {
	return session.NewService(pgrepos.NewSessionRepository(db), pgrepos.NewTopicRepository(db))
}

func newScheduler(conf *core.Config, attempts *attempt.Service, users user.ServiceInterface, logger core.Logger, metrics *metricsvc.Metrics) (*jobsvc.Scheduler, error) {
	return jobsvc.NewScheduler(conf, attempts, users, logger, metrics)
}

func newServer(p serverParams) *echoapi.Server {
	return echoapi.NewServer(echoapi.ServerDeps{
		Conf:         p.Conf,
		Logger:       p.Logger,
		Validate:     p.Validate,
		Translator:   p.Translator,
		Metrics:      p.Metrics,
		UserSvc:      p.UserSvc,
		TopicSvc:     p.TopicSvc,
		QuestionSvc:  p.QuestionSvc,
		TestSvc:      p.TestSvc,
		AttemptSvc:   p.AttemptSvc,
		FileSvc:      p.FileSvc,
		FlashcardSvc: p.FlashcardSvc,
		SRSSvc:       p.SRSSvc,
		ExamSvc:      p.ExamSvc,
		SessionSvc:   p.SessionSvc,
	})
}

// New returns a new dependency injection dig.Container
func New(visualize bool) *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newDB))
	must(c.Provide(newEmailService))
	must(c.Provide(pgrepos.NewUserRepository, dig.As(new(user.Repository))))
	must(c.Provide(validator.New))
	must(c.Provide(newTranslator))
	must(c.Provide(metricsvc.New))
	must(c.Provide(newAIClient))
	must(c.Provide(user.NewService))
	must(c.Provide(newTopicService))
	must(c.Provide(newQuestionService))
	must(c.Provide(newTestService))
	must(c.Provide(newFileService))
	must(c.Provide(newAttemptService))
	must(c.Provide(newFlashcardService))
	must(c.Provide(newSRSService))
	must(c.Provide(newExamService))
	must(c.Provide(newSessionService))
	must(c.Provide(newScheduler))
	must(c.Provide(newServer))

	if visualize {
		_ = dig.Visualize(c, os.Stdout)
	}

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
