package main

import (
	"context"
	"log"
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/elearning/core"
	"github.com/trezcool/elearning/core/attempt"
	"github.com/trezcool/elearning/core/file"
	"github.com/trezcool/elearning/core/flashcard"
	"github.com/trezcool/elearning/core/question"
	"github.com/trezcool/elearning/core/test"
	"github.com/trezcool/elearning/core/topic"
	"github.com/trezcool/elearning/core/user"
	filesvc "github.com/trezcool/elearning/services/files"
	geminisvc "github.com/trezcool/elearning/services/gemini"
	logsvc "github.com/trezcool/elearning/services/logger"
	"github.com/trezcool/elearning/storage/database"
	pgrepos "github.com/trezcool/elearning/storage/database/postgres"
)

func main() {
	conf := core.NewConfig()
	logger := logsvc.NewRollbarLogger(log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile), conf)
	logger.Enable(!conf.Debug)
	defer logger.Close()

	if err := user.LoadCommonPasswords(); err != nil {
		logger.Fatal("loading common passwords", err)
	}

	// set up DB
	if err := database.CreateIfNotExist(conf); err != nil {
		logger.Fatal("creating database", err)
	}
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal("opening database", err)
	}
	defer db.Close()

	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	validate := validator.New()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	flashcard.InitValidators(validate)

	storage, err := filesvc.NewDiskStorage(conf.MediaRoot)
	if err != nil {
		logger.Fatal("preparing media root", err)
	}
	ai, err := geminisvc.NewClient(context.Background(), conf, nil)
	if err != nil {
		logger.Fatal("creating gemini client", err)
	}

	topicRepo := pgrepos.NewTopicRepository(db)
	questionRepo := pgrepos.NewQuestionRepository(db)
	testSvc := test.NewService(pgrepos.NewTestRepository(db), questionRepo)
	fileSvc := file.NewService(pgrepos.NewFileRepository(db), storage, conf.BackendBaseURL)

	deps := &Dependencies{
		Ctx:        context.Background(),
		Stdout:     os.Stdout,
		Stderr:     os.Stderr,
		DB:         db.DB,
		Validate:   validate,
		Users:      pgrepos.NewUserRepository(db),
		Topics:     topic.NewService(topicRepo),
		Questions:  question.NewService(questionRepo, topicRepo),
		Tests:      testSvc,
		Flashcards: flashcard.NewService(pgrepos.NewFlashcardRepository(db), topicRepo),
		Attempts: attempt.NewService(
			pgrepos.NewAttemptRepository(db), testSvc, questionRepo, fileSvc, ai, ai, logger,
			attempt.Options{
				MaxConcurrentGradings: conf.AI.MaxConcurrentGradings,
				GradingTimeout:        conf.AI.GradingTimeout,
				FeedbackTimeout:       conf.AI.FeedbackTimeout,
			},
		),
	}

	if err := run(deps, os.Args[1:]); err != nil {
		if err != errHelp {
			logger.Error("command failed: "+err.Error(), err)
		}
		logger.Close()
		_ = db.Close()
		os.Exit(1)
	}
}
