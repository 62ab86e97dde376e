package echoapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"os"
	"sync"
	"testing"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"

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
	inmemdb "github.com/trezcool/elearning/storage/database/inmem"
	"github.com/trezcool/elearning/testutil"
)

const testPassword = "Sup3r$ecret!Phrase"

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

func TestMain(m *testing.M) {
	if err := user.LoadCommonPasswords(); err != nil {
		fmt.Printf("user.LoadCommonPasswords(): %v\n", err)
		os.Exit(1)
	}
	if err := core.ParseEmailTemplates(true); err != nil {
		fmt.Printf("core.ParseEmailTemplates(): %v\n", err)
		os.Exit(1)
	}
	os.Exit(m.Run())
}

// fakeAI stands in for the LLM client.
type fakeAI struct {
	mu       sync.Mutex
	essays   []attempt.EssayRequest
	grade    attempt.EssayGrade
	gradeErr error
	review   exam.AnswerReview
}

func (ai *fakeAI) GradeEssay(_ context.Context, req attempt.EssayRequest) (attempt.EssayGrade, error) {
	ai.mu.Lock()
	defer ai.mu.Unlock()
	ai.essays = append(ai.essays, req)
	return ai.grade, ai.gradeErr
}

func (ai *fakeAI) GenerateFeedback(context.Context, attempt.FeedbackRequest) (attempt.Feedback, error) {
	return attempt.Feedback{Feedback: "Well done", Recommendation: "Keep practicing"}, nil
}

func (ai *fakeAI) ReviewAnswer(context.Context, exam.ReviewRequest) (exam.AnswerReview, error) {
	return ai.review, nil
}

type testApp struct {
	srv  *Server
	conf *core.Config
	db   *inmemdb.DB
	mail *emailsvc.ConsoleService
	ai   *fakeAI

	usrRepo  user.Repository
	topics   *topic.Service
	quests   *question.Service
	tests    *test.Service
	cards    *flashcard.Service
	exams    *exam.Service
	attempts *attempt.Service
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	conf := testutil.NewConfig()
	logger := testutil.NewLogger()
	db := inmemdb.Open()
	mail := emailsvc.NewConsoleServiceMock(conf)
	ai := &fakeAI{}

	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	validate := validator.New()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	flashcard.InitValidators(validate)

	storage, err := filesvc.NewDiskStorage(t.TempDir())
	require.NoError(t, err)

	usrRepo := inmemdb.NewUserRepository(db)
	topicRepo := inmemdb.NewTopicRepository(db)
	questionRepo := inmemdb.NewQuestionRepository(db)
	examRepo := inmemdb.NewExamRepository(db)

	usrSvc := user.NewService(usrRepo, mail, conf)
	topicSvc := topic.NewService(topicRepo)
	questionSvc := question.NewService(questionRepo, topicRepo)
	testSvc := test.NewService(inmemdb.NewTestRepository(db), questionRepo)
	fileSvc := file.NewService(inmemdb.NewFileRepository(db), storage, conf.BackendBaseURL)
	attemptSvc := attempt.NewService(
		inmemdb.NewAttemptRepository(db), testSvc, questionRepo, fileSvc, ai, ai, logger,
		attempt.Options{MaxConcurrentGradings: conf.AI.MaxConcurrentGradings},
	)
	cardSvc := flashcard.NewService(inmemdb.NewFlashcardRepository(db), topicRepo)
	srsSvc := srs.NewService(inmemdb.NewSRSRepository(db), cardSvc, topicRepo, examRepo)
	examSvc := exam.NewService(examRepo, cardSvc, topicRepo, srsSvc, ai, logger)
	sessionSvc := session.NewService(inmemdb.NewSessionRepository(db), topicRepo)

	srv := NewServer(ServerDeps{
		Conf:         conf,
		Logger:       logger,
		Validate:     validate,
		Translator:   translator,
		UserSvc:      usrSvc,
		TopicSvc:     topicSvc,
		QuestionSvc:  questionSvc,
		TestSvc:      testSvc,
		AttemptSvc:   attemptSvc,
		FileSvc:      fileSvc,
		FlashcardSvc: cardSvc,
		SRSSvc:       srsSvc,
		ExamSvc:      examSvc,
		SessionSvc:   sessionSvc,
	})

	return &testApp{
		srv:      srv,
		conf:     conf,
		db:       db,
		mail:     mail,
		ai:       ai,
		usrRepo:  usrRepo,
		topics:   topicSvc,
		quests:   questionSvc,
		tests:    testSvc,
		cards:    cardSvc,
		exams:    examSvc,
		attempts: attemptSvc,
	}
}

func (app *testApp) createUser(t *testing.T, email string, roles ...string) user.User {
	t.Helper()
	if len(roles) == 0 {
		roles = []string{user.RoleStudent}
	}
	return testutil.CreateUser(t, app.usrRepo, "Test", "User", email, testPassword, roles, true)
}

func (app *testApp) token(t *testing.T, usr user.User) string {
	t.Helper()
	token, err := app.srv.auth.generateToken(app.srv.auth.userClaims(usr))
	require.NoError(t, err)
	return token
}

// do sends a JSON request and returns the recorded response.
func (app *testApp) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.([]byte); ok {
			buf.Write(raw)
		} else {
			_ = json.NewEncoder(&buf).Encode(body)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	app.srv.ServeHTTP(rec, req)
	return rec
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     interface{}
	token    string
	wantCode int
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func bPtr(b bool) *bool { return &b }
