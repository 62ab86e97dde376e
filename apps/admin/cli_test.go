package main

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/elearning/core"
	"github.com/trezcool/elearning/core/attempt"
	"github.com/trezcool/elearning/core/file"
	"github.com/trezcool/elearning/core/flashcard"
	"github.com/trezcool/elearning/core/question"
	"github.com/trezcool/elearning/core/test"
	"github.com/trezcool/elearning/core/topic"
	"github.com/trezcool/elearning/core/user"
	filesvc "github.com/trezcool/elearning/services/files"
	inmemdb "github.com/trezcool/elearning/storage/database/inmem"
	"github.com/trezcool/elearning/testutil"
)

const goodPassword = "Sup3r$ecret!Phrase"

type noAI struct{}

func (noAI) GradeEssay(context.Context, attempt.EssayRequest) (attempt.EssayGrade, error) {
	return attempt.EssayGrade{}, errors.New("unavailable")
}

func (noAI) GenerateFeedback(context.Context, attempt.FeedbackRequest) (attempt.Feedback, error) {
	return attempt.Feedback{}, errors.New("unavailable")
}

func setup(t *testing.T) (*Dependencies, *bytes.Buffer) {
	t.Helper()

	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	validate := validator.New()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	flashcard.InitValidators(validate)

	storage, err := filesvc.NewDiskStorage(t.TempDir())
	require.NoError(t, err)

	db := inmemdb.Open()
	topicRepo := inmemdb.NewTopicRepository(db)
	questionRepo := inmemdb.NewQuestionRepository(db)
	testSvc := test.NewService(inmemdb.NewTestRepository(db), questionRepo)
	fileSvc := file.NewService(inmemdb.NewFileRepository(db), storage, "http://localhost:8000")

	stdout := &bytes.Buffer{}
	return &Dependencies{
		Ctx:        context.Background(),
		Stdout:     stdout,
		Stderr:     &bytes.Buffer{},
		DB:         &sql.DB{},
		Validate:   validate,
		Users:      inmemdb.NewUserRepository(db),
		Topics:     topic.NewService(topicRepo),
		Questions:  question.NewService(questionRepo, topicRepo),
		Tests:      testSvc,
		Flashcards: flashcard.NewService(inmemdb.NewFlashcardRepository(db), topicRepo),
		Attempts: attempt.NewService(
			inmemdb.NewAttemptRepository(db), testSvc, questionRepo, fileSvc, &noAI{}, &noAI{}, testutil.NewLogger(),
			attempt.Options{MaxConcurrentGradings: 1},
		),
	}, stdout
}

func mockPassword(t *testing.T, pwd string) {
	t.Helper()
	orig := readPasswordFunc
	readPasswordFunc = func() ([]byte, error) { return []byte(pwd), nil }
	t.Cleanup(func() { readPasswordFunc = orig })
}

func Test_run_help(t *testing.T) {
	deps, stdout := setup(t)

	for _, args := range [][]string{nil, {"help"}, {"--help"}} {
		stdout.Reset()
		err := run(deps, args)
		assert.Equal(t, errHelp, err)
		for _, cmd := range []string{"migrate", "adduser", "resetpassword", "import", "grade-pending"} {
			assert.Contains(t, stdout.String(), cmd)
		}
	}

	assert.Error(t, run(deps, []string{"lol"}))
}

func Test_run_migrate(t *testing.T) {
	deps, _ := setup(t)

	var gotCmd string
	var gotArgs []string
	orig := gooseRunFunc
	gooseRunFunc = func(db *sql.DB, command string, args ...string) error {
		gotCmd, gotArgs = command, args
		switch command {
		case "up", "down", "redo", "reset", "status", "version":
			return nil
		case "up-to", "down-to":
			if len(args) == 0 {
				return fmt.Errorf("%s must be of form: goose [OPTIONS] DRIVER DBSTRING %s VERSION", command, command)
			}
			return nil
		default:
			return fmt.Errorf("%q: no such command", command)
		}
	}
	t.Cleanup(func() { gooseRunFunc = orig })

	tests := []struct {
		name       string
		args       []string
		wantCmd    string
		wantArgs   []string
		wantErrStr string
	}{
		{name: "no subcommand", args: []string{"migrate"}, wantErrStr: "expected"},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantCmd: "lol", wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantCmd: "up-to", wantErrStr: "up-to must be of form"},
		{name: "up", args: []string{"migrate", "up"}, wantCmd: "up"},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}, wantCmd: "down-to", wantArgs: []string{"1"}},
		{name: "status", args: []string{"migrate", "status"}, wantCmd: "status"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotCmd, gotArgs = "", nil
			err := run(deps, tt.args)
			if tt.wantErrStr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErrStr)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantCmd, gotCmd)
			if tt.wantArgs != nil {
				assert.Equal(t, tt.wantArgs, gotArgs)
			}
		})
	}
}

func Test_run_adduser(t *testing.T) {
	deps, stdout := setup(t)
	mockPassword(t, goodPassword)
	ctx := context.Background()

	tests := []struct {
		name    string
		args    []string
		wantErr bool
	}{
		{name: "no email", args: []string{"adduser"}, wantErr: true},
		{name: "invalid email", args: []string{"adduser", "nope", "--first-name", "Ann"}, wantErr: true},
		{name: "new user without name", args: []string{"adduser", "ann@test.cd"}, wantErr: true},
		{name: "invalid role", args: []string{"adduser", "ann@test.cd", "--first-name", "Ann", "--role", "king:"}, wantErr: true},
		{name: "create teacher", args: []string{"adduser", "Ann@Test.cd", "--first-name", "Ann", "--role", user.RoleTeacher}},
		{name: "promote to admin", args: []string{"adduser", "ann@test.cd", "--admin"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := run(deps, tt.args)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	usr, err := deps.Users.GetUser(ctx, user.GetFilter{Email: "ann@test.cd"})
	require.NoError(t, err)
	assert.Equal(t, "Ann", usr.FirstName)
	assert.True(t, usr.IsAdmin())
	assert.True(t, usr.IsActive)
	assert.NoError(t, usr.CheckPassword(goodPassword))
	assert.Contains(t, stdout.String(), "user ann@test.cd saved")

	users, err := deps.Users.QueryUsers(ctx, user.QueryFilter{}, nil)
	require.NoError(t, err)
	assert.Len(t, users, 1)

	t.Run("weak password", func(t *testing.T) {
		mockPassword(t, "password")
		assert.Error(t, run(deps, []string{"adduser", "bob@test.cd", "--first-name", "Bob"}))
	})
}

func Test_run_resetpassword(t *testing.T) {
	deps, _ := setup(t)
	usr := testutil.CreateUser(t, deps.Users, "User", "Awe", "awe@test.cd", "Old$ecret123", nil, true)

	tests := []struct {
		name    string
		args    []string
		pwd     string
		wantErr bool
	}{
		{name: "no args", args: []string{"resetpassword"}, wantErr: true},
		{name: "unknown user", args: []string{"resetpassword", "nobody@test.cd"}, pwd: goodPassword, wantErr: true},
		{name: "empty password", args: []string{"resetpassword", "awe@test.cd"}, pwd: "", wantErr: true},
		{name: "weak password", args: []string{"resetpassword", "awe@test.cd"}, pwd: "12345678", wantErr: true},
		{name: "success", args: []string{"resetpassword", "AWE@test.cd"}, pwd: goodPassword},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockPassword(t, tt.pwd)
			err := run(deps, tt.args)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	got, err := deps.Users.GetUser(context.Background(), user.GetFilter{ID: usr.ID})
	require.NoError(t, err)
	assert.NoError(t, got.CheckPassword(goodPassword))
}

func Test_run_import(t *testing.T) {
	deps, stdout := setup(t)
	ctx := context.Background()
	content := filepath.Join("testdata", "content.yaml")

	t.Run("missing file", func(t *testing.T) {
		assert.Error(t, run(deps, []string{"import", filepath.Join(t.TempDir(), "nope.yaml")}))
	})

	t.Run("invalid content", func(t *testing.T) {
		bad := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(bad, []byte("topics:\n  - name: Algebra\n    tests:\n      - title: Quiz\n        questions: [missing]\n"), 0o600))
		err := run(deps, []string{"import", bad})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown question key")

		unknownField := filepath.Join(t.TempDir(), "field.yaml")
		require.NoError(t, os.WriteFile(unknownField, []byte("topics:\n  - name: Algebra\n    colour: red\n"), 0o600))
		assert.Error(t, run(deps, []string{"import", unknownField}))

		topics, err := deps.Topics.Query(ctx, topic.QueryFilter{})
		require.NoError(t, err)
		assert.Empty(t, topics, "nothing is written when validation fails")
	})

	t.Run("dry run", func(t *testing.T) {
		stdout.Reset()
		require.NoError(t, run(deps, []string{"import", "--dry-run", content}))
		assert.Contains(t, stdout.String(), "is valid: 1 topic(s)")
		topics, err := deps.Topics.Query(ctx, topic.QueryFilter{})
		require.NoError(t, err)
		assert.Empty(t, topics)
	})

	t.Run("import", func(t *testing.T) {
		stdout.Reset()
		require.NoError(t, run(deps, []string{"import", content}))
		assert.Contains(t, stdout.String(), "imported 1 topic(s), 3 question(s), 1 test(s), 2 flashcard(s)")

		topics, err := deps.Topics.Query(ctx, topic.QueryFilter{})
		require.NoError(t, err)
		require.Len(t, topics, 1)
		assert.True(t, topics[0].IsActive)

		tests, err := deps.Tests.Query(ctx, test.QueryFilter{})
		require.NoError(t, err)
		require.Len(t, tests, 1)
		assert.Equal(t, "Shapes", tests[0].Title)

		cards, err := deps.Flashcards.Query(ctx, flashcard.QueryFilter{TopicID: topics[0].ID, Type: flashcard.TypeOrderingSteps})
		require.NoError(t, err)
		require.Len(t, cards, 1)
		assert.Len(t, cards[0].OrderingSteps, 3)
	})

	t.Run("topics are reused", func(t *testing.T) {
		stdout.Reset()
		require.NoError(t, run(deps, []string{"import", content}))
		assert.Contains(t, stdout.String(), "imported 0 topic(s), 3 question(s)")
		topics, err := deps.Topics.Query(ctx, topic.QueryFilter{})
		require.NoError(t, err)
		assert.Len(t, topics, 1)
	})
}

func Test_run_gradePending(t *testing.T) {
	deps, stdout := setup(t)
	require.NoError(t, run(deps, []string{"grade-pending"}))
	assert.Contains(t, stdout.String(), "0 attempt(s) graded")
}
