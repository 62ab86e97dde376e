package attempt_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/elearning/core"
	"github.com/trezcool/elearning/core/attempt"
	"github.com/trezcool/elearning/core/file"
	"github.com/trezcool/elearning/core/question"
	"github.com/trezcool/elearning/core/test"
	"github.com/trezcool/elearning/core/topic"
	"github.com/trezcool/elearning/core/user"
	filesvc "github.com/trezcool/elearning/services/files"
	inmemdb "github.com/trezcool/elearning/storage/database/inmem"
	"github.com/trezcool/elearning/testutil"
)

// fakeAI grades every essay with the full score of its rubric, unless failing is set.
type fakeAI struct {
	mu       sync.Mutex
	failing  bool
	requests []attempt.EssayRequest
}

func (ai *fakeAI) setFailing(failing bool) {
	ai.mu.Lock()
	defer ai.mu.Unlock()
	ai.failing = failing
}

func (ai *fakeAI) GradeEssay(_ context.Context, req attempt.EssayRequest) (attempt.EssayGrade, error) {
	ai.mu.Lock()
	defer ai.mu.Unlock()
	ai.requests = append(ai.requests, req)
	if ai.failing {
		return attempt.EssayGrade{}, errors.New("quota exceeded")
	}
	grade := attempt.EssayGrade{OverallFeedback: "Well argued."}
	for _, item := range req.Rubric {
		grade.TotalScoreAwarded += item.MaxScore
		grade.RubricScores = append(grade.RubricScores, attempt.RubricScore{
			RubricItemID:  item.ID,
			PointsAwarded: item.MaxScore,
			Comment:       "ok",
		})
	}
	grade.RubricScores = append(grade.RubricScores, attempt.RubricScore{RubricItemID: "hallucinated", PointsAwarded: 9})
	return grade, nil
}

func (ai *fakeAI) GenerateFeedback(context.Context, attempt.FeedbackRequest) (attempt.Feedback, error) {
	ai.mu.Lock()
	defer ai.mu.Unlock()
	if ai.failing {
		return attempt.Feedback{}, errors.New("quota exceeded")
	}
	return attempt.Feedback{Feedback: "Good job.", Recommendation: "Review triangles."}, nil
}

type fixture struct {
	svc       *attempt.Service
	tests     *test.Service
	questions *question.Service
	repo      attempt.Repository
	ai        *fakeAI
	quiz      test.Test
	mcq       question.Question
	sw        question.Question
	essay     question.Question
	itemByQ   map[string]string // question ID -> test question item ID
	student   user.User
	intruder  user.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	db := inmemdb.Open()
	topicRepo := inmemdb.NewTopicRepository(db)
	questionRepo := inmemdb.NewQuestionRepository(db)
	testSvc := test.NewService(inmemdb.NewTestRepository(db), questionRepo)
	storage, err := filesvc.NewDiskStorage(t.TempDir())
	require.NoError(t, err)
	fileSvc := file.NewService(inmemdb.NewFileRepository(db), storage, "http://localhost:8000")

	geo, err := topic.NewService(topicRepo).Create(ctx, topic.NewTopic{Name: "Geography"})
	require.NoError(t, err)
	questions := question.NewService(questionRepo, topicRepo)
	mcq, err := questions.Create(ctx, question.NewQuestion{
		TopicID: geo.ID,
		Content: "Capital of Kenya?",
		Type:    question.TypeMultipleChoice,
		Options: []question.Option{{Text: "Mombasa"}, {Text: "Nairobi", IsCorrect: true}},
	})
	require.NoError(t, err)
	sw, err := questions.Create(ctx, question.NewQuestion{
		TopicID:   geo.ID,
		Content:   "Capital of France?",
		Type:      question.TypeSelfWrite,
		AnswerKey: "Paris",
	})
	require.NoError(t, err)
	essay, err := questions.Create(ctx, question.NewQuestion{
		TopicID: geo.ID,
		Content: "Describe the Nile.",
		Type:    question.TypeEssay,
		Marks:   10,
		Rubric: []question.RubricItem{
			{Description: "Mentions its length", MaxScore: 4, StepOrder: 2},
			{Description: "Mentions its source", MaxScore: 6, StepOrder: 1},
		},
	})
	require.NoError(t, err)

	quiz, err := testSvc.Create(ctx, test.NewTest{
		Title:            "Capitals",
		TopicID:          geo.ID,
		TimeLimitMinutes: 10,
		PassingScore:     50,
		Questions: []test.NewQuestionItem{
			{QuestionID: mcq.ID, Idx: 0},
			{QuestionID: sw.ID, Idx: 1},
			{QuestionID: essay.ID, Idx: 2},
		},
	})
	require.NoError(t, err)
	itemByQ := make(map[string]string)
	for _, item := range quiz.Questions {
		itemByQ[item.QuestionID] = item.ID
	}

	userRepo := inmemdb.NewUserRepository(db)
	ai := &fakeAI{}
	repo := inmemdb.NewAttemptRepository(db)
	return &fixture{
		svc: attempt.NewService(repo, testSvc, questionRepo, fileSvc, ai, ai, testutil.NewLogger(),
			attempt.Options{MaxConcurrentGradings: 2, GradingTimeout: time.Second, FeedbackTimeout: time.Second}),
		tests:     testSvc,
		questions: questions,
		repo:      repo,
		ai:        ai,
		quiz:      quiz,
		mcq:       mcq,
		sw:        sw,
		essay:     essay,
		itemByQ:   itemByQ,
		student:   testutil.CreateUser(t, userRepo, "Stu", "Dent", "student@test.cd", "", nil, true),
		intruder:  testutil.CreateUser(t, userRepo, "In", "Truder", "intruder@test.cd", "", nil, true),
	}
}

func (f *fixture) submission(mcqAnswer string) attempt.Submission {
	answers := make(map[string]attempt.SubmittedAnswer)
	for qID, item := range f.itemByQ {
		var sa attempt.SubmittedAnswer
		switch qID {
		case f.mcq.ID:
			sa.UserAnswer.Value = &mcqAnswer
		case f.essay.ID:
			text := "The Nile flows north from Lake Victoria."
			sa.UserAnswer.Value = &text
			sa.Images = []attempt.Base64Image{
				{Data: "data:image/png;base64,iVBORw0KGgo=", Filename: "map.png"},
				{Data: "not base64!"},
			}
		default:
			text := "  paris "
			sa.UserAnswer.Value = &text
		}
		sa.TimeSpent = 30
		answers[item] = sa
	}
	left := 120
	return attempt.Submission{Answers: answers, TimeLeft: &left}
}

func TestService_attemptFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	status, err := f.svc.Status(ctx, f.student, f.quiz.ID)
	require.NoError(t, err)
	assert.Equal(t, attempt.StatusNotStarted, status.Status)

	sess, err := f.svc.StartOrResume(ctx, f.student, f.quiz.ID)
	require.NoError(t, err)
	assert.Equal(t, attempt.StatusInProgress, sess.Attempt.Status)
	assert.Equal(t, 600, sess.Attempt.RemainingTimeSeconds)
	assert.Len(t, sess.Questions, 3)
	assert.Empty(t, sess.SavedAnswers)

	t.Run("save progress", func(t *testing.T) {
		answer := attempt.AnswerText{Value: &f.mcq.Options[0].ID}
		remaining := 500
		err := f.svc.SaveProgress(ctx, f.intruder, sess.Attempt.ID, attempt.Progress{})
		assert.True(t, core.IsPermissionDenied(err))

		require.NoError(t, f.svc.SaveProgress(ctx, f.student, sess.Attempt.ID, attempt.Progress{
			Answers: map[string]attempt.ProgressAnswer{
				f.itemByQ[f.mcq.ID]: {UserAnswer: answer, TimeSpentSeconds: 12},
				"unknown-item":      {UserAnswer: answer},
			},
			RemainingTimeSeconds: &remaining,
			LastViewedQuestion:   f.itemByQ[f.mcq.ID],
		}))

		resumed, err := f.svc.StartOrResume(ctx, f.student, f.quiz.ID)
		require.NoError(t, err)
		assert.Equal(t, sess.Attempt.ID, resumed.Attempt.ID)
		assert.Equal(t, 500, resumed.Attempt.RemainingTimeSeconds)
		assert.Equal(t, f.mcq.ID, resumed.Attempt.LastViewedQuestionID)
		require.Len(t, resumed.SavedAnswers, 1)
		saved := resumed.SavedAnswers[f.itemByQ[f.mcq.ID]]
		assert.Equal(t, f.mcq.Options[0].ID, *saved.UserAnswer)
		assert.Equal(t, 12, saved.TimeSpentSeconds)
	})

	t.Run("submit", func(t *testing.T) {
		_, err := f.svc.Submit(ctx, f.intruder, sess.Attempt.ID, f.submission(""))
		assert.True(t, core.IsPermissionDenied(err))

		res, err := f.svc.Submit(ctx, f.student, sess.Attempt.ID, f.submission(f.mcq.CorrectOptionID()))
		require.NoError(t, err)
		assert.Equal(t, attempt.StatusGraded, res.Status)
		assert.Equal(t, 12.0, res.Score)
		assert.True(t, res.Passed)

		require.Len(t, f.ai.requests, 1)
		req := f.ai.requests[0]
		assert.Equal(t, "Mentions its source", req.Rubric[0].Description, "rubric is sorted by step order")
		require.Len(t, req.Images, 1, "invalid images are skipped")
		assert.Equal(t, "image/png", req.Images[0].MIMEType)

		_, err = f.svc.Submit(ctx, f.student, sess.Attempt.ID, f.submission(""))
		assert.Error(t, err, "an attempt is submitted once")
	})

	t.Run("results", func(t *testing.T) {
		_, err := f.svc.ResultDetails(ctx, f.intruder, sess.Attempt.ID)
		assert.True(t, core.IsPermissionDenied(err))

		res, err := f.svc.ResultDetails(ctx, f.student, sess.Attempt.ID)
		require.NoError(t, err)
		assert.Equal(t, 12.0, res.Test.TotalPossibleScore)
		assert.True(t, res.Test.HasEssayQuestion)
		assert.Equal(t, "Good job.", res.OverallFeedbackFromLLM)
		assert.Equal(t, "Review triangles.", res.OverallRecommendationFromLLM)
		require.Len(t, res.QuestionsAnswers, 3)

		essay := res.QuestionsAnswers[2]
		assert.Equal(t, f.essay.ID, essay.QuestionID)
		assert.Equal(t, 10.0, essay.PointsAwardedFinal)
		assert.Equal(t, "Well argued.", essay.AIOverallFeedbackForQuestion)
		assert.Len(t, essay.AIRubricScores, 2, "unknown rubric items are dropped")
		require.Len(t, essay.UserSubmittedImages, 1)
		assert.Contains(t, essay.UserSubmittedImages[0].URL, "http://localhost:8000/v1/files/")

		summaries, err := f.svc.ListAll(ctx, f.student)
		require.NoError(t, err)
		require.Len(t, summaries, 1)
		assert.Equal(t, "Capitals", summaries[0].TestTitle)
		assert.NotNil(t, summaries[0].TimeTakenSeconds)

		status, err := f.svc.Status(ctx, f.student, f.quiz.ID)
		require.NoError(t, err)
		assert.Equal(t, attempt.StatusGraded, status.Status)
	})

	t.Run("content edits keep results", func(t *testing.T) {
		edited, err := f.tests.Update(ctx, f.quiz.ID, test.NewTest{
			Title:            "Capitals, revised",
			TopicID:          f.quiz.TopicID,
			TimeLimitMinutes: 10,
			PassingScore:     50,
			Questions: []test.NewQuestionItem{
				{QuestionID: f.essay.ID, Idx: 0},
				{QuestionID: f.mcq.ID, Idx: 1},
				{QuestionID: f.sw.ID, Idx: 2},
			},
		})
		require.NoError(t, err)
		for _, item := range edited.Questions {
			assert.Equal(t, f.itemByQ[item.QuestionID], item.ID)
		}

		rubric := append([]question.RubricItem(nil), f.essay.Rubric...)
		rubric[0].Description = "Mentions its length in km"
		rubric = append(rubric, question.RubricItem{ID: "foreign", Description: "Mentions Egypt", MaxScore: 1, StepOrder: 3})
		essay, err := f.questions.Update(ctx, f.essay.ID, question.NewQuestion{
			TopicID: f.essay.TopicID,
			Content: f.essay.Content,
			Type:    question.TypeEssay,
			Marks:   10,
			Rubric:  rubric,
		})
		require.NoError(t, err)
		require.Len(t, essay.Rubric, 3)
		assert.Equal(t, f.essay.Rubric[0].ID, essay.Rubric[0].ID)
		assert.Equal(t, f.essay.Rubric[1].ID, essay.Rubric[1].ID)
		assert.NotEqual(t, "foreign", essay.Rubric[2].ID)

		res, err := f.svc.ResultDetails(ctx, f.student, sess.Attempt.ID)
		require.NoError(t, err)
		assert.Equal(t, "Capitals, revised", res.Test.Title)
		require.Len(t, res.QuestionsAnswers, 3)
		for _, qa := range res.QuestionsAnswers {
			assert.NotNil(t, qa.UserAnswerText, "answer to %s", qa.QuestionID)
		}
		got := res.QuestionsAnswers[0]
		assert.Equal(t, f.essay.ID, got.QuestionID)
		assert.Equal(t, 10.0, got.PointsAwardedFinal)
		assert.Len(t, got.AIRubricScores, 2)
		got = res.QuestionsAnswers[1]
		assert.Equal(t, f.mcq.ID, got.QuestionID)
		require.NotNil(t, got.IsCorrect)
		assert.True(t, *got.IsCorrect)
		assert.Equal(t, 1.0, got.PointsAwardedFinal)
	})
}

func TestService_Submit_deletedQuestion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sess, err := f.svc.StartOrResume(ctx, f.student, f.quiz.ID)
	require.NoError(t, err)
	require.NoError(t, f.questions.Delete(ctx, f.sw.ID))

	res, err := f.svc.Submit(ctx, f.student, sess.Attempt.ID, f.submission(f.mcq.CorrectOptionID()))
	require.NoError(t, err)
	assert.Equal(t, attempt.StatusGraded, res.Status)
	assert.Equal(t, 11.0, res.Score)

	a, err := f.repo.GetAttempt(ctx, sess.Attempt.ID)
	require.NoError(t, err)
	assert.Len(t, a.Answers, 3)
	ans, ok := a.Answer(f.itemByQ[f.sw.ID])
	require.True(t, ok)
	assert.Equal(t, attempt.FeedbackMissingQuestion, ans.AIFeedback)
	require.NotNil(t, ans.PointsAwarded)
	assert.Zero(t, *ans.PointsAwarded)
	require.NotNil(t, ans.UserAnswer)
	assert.Equal(t, "  paris ", *ans.UserAnswer)
	assert.Equal(t, 11.0, a.TotalPossibleScore)
}

func TestService_GradePending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sess, err := f.svc.StartOrResume(ctx, f.student, f.quiz.ID)
	require.NoError(t, err)

	f.ai.setFailing(true)
	res, err := f.svc.Submit(ctx, f.student, sess.Attempt.ID, f.submission("wrong"))
	require.NoError(t, err)
	assert.Equal(t, attempt.StatusToBeGraded, res.Status)
	assert.Equal(t, 1.0, res.Score)
	assert.False(t, res.Passed)

	a, err := f.repo.GetAttempt(ctx, sess.Attempt.ID)
	require.NoError(t, err)
	ans, ok := a.Answer(f.itemByQ[f.essay.ID])
	require.True(t, ok)
	assert.Equal(t, attempt.FeedbackGradingError, ans.AIFeedback)

	graded, err := f.svc.GradePending(ctx)
	require.NoError(t, err)
	assert.Zero(t, graded, "grading still fails")

	f.ai.setFailing(false)
	graded, err = f.svc.GradePending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, graded)

	a, err = f.repo.GetAttempt(ctx, sess.Attempt.ID)
	require.NoError(t, err)
	assert.Equal(t, attempt.StatusGraded, a.Status)
	assert.Equal(t, 11.0, a.FinalScore)
	assert.True(t, a.IsPassed)
	assert.Equal(t, "Good job.", a.Feedback)
	last := f.ai.requests[len(f.ai.requests)-1]
	assert.Len(t, last.Images, 1, "stored images are sent again")

	graded, err = f.svc.GradePending(ctx)
	require.NoError(t, err)
	assert.Zero(t, graded)
}

func TestService_TimeOutStale(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()

	stale, err := f.repo.CreateAttempt(ctx, attempt.Attempt{
		UserID:    f.student.ID,
		TestID:    f.quiz.ID,
		Status:    attempt.StatusInProgress,
		StartTime: now.Add(-15 * time.Minute),
	})
	require.NoError(t, err)
	fresh, err := f.repo.CreateAttempt(ctx, attempt.Attempt{
		UserID:    f.intruder.ID,
		TestID:    f.quiz.ID,
		Status:    attempt.StatusInProgress,
		StartTime: now.Add(-8 * time.Minute),
	})
	require.NoError(t, err)

	count, err := f.svc.TimeOutStale(ctx, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	got, err := f.repo.GetAttempt(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, attempt.StatusTimedOut, got.Status)
	assert.NotNil(t, got.EndTime)

	got, err = f.repo.GetAttempt(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, attempt.StatusInProgress, got.Status)

	count, err = f.svc.TimeOutStale(ctx, time.Minute)
	require.NoError(t, err)
	assert.Zero(t, count)
}
