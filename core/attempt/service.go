package attempt

import (
	"context"
	"encoding/base64"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/trezcool/elearning/core"
	"github.com/trezcool/elearning/core/file"
	"github.com/trezcool/elearning/core/question"
	"github.com/trezcool/elearning/core/test"
	"github.com/trezcool/elearning/core/user"
)

// Essay feedbacks set when the AI could not grade an answer.
const (
	FeedbackNoRubric     = "No rubric defined for this essay question. Manual grading needed."
	FeedbackNoContent    = "No content submitted for grading."
	FeedbackGradingError = "AI grading error, manual grading needed."
	FeedbackUnavailable  = "Overall feedback could not be generated at this time."
)

// FeedbackMissingQuestion marks an answer whose question was deleted after the test was built.
const FeedbackMissingQuestion = "Error: the original question no longer exists."

var (
	// errors
	ErrNotFound = core.NewNotFoundError("attempt not found")

	nowFunc = func() time.Time { return time.Now().UTC() } // mockable
)

type (
	Repository interface {
		CreateAttempt(ctx context.Context, a Attempt) (Attempt, error)
		// GetAttempt returns the attempt with its answers and their rubric scores.
		GetAttempt(ctx context.Context, id string) (Attempt, error)
		// GetLatestAttempt returns the most recently started attempt of a user on a test.
		GetLatestAttempt(ctx context.Context, userID, testID string) (Attempt, error)
		// GetInProgressAttempt returns the user's In Progress attempt on a test, with its answers.
		GetInProgressAttempt(ctx context.Context, userID, testID string) (Attempt, error)
		// QueryAttempts returns the attempts matching filter, newest first, without their answers.
		QueryAttempts(ctx context.Context, filter QueryFilter) ([]Attempt, error)
		// SaveAttempt updates a and replaces all its answers.
		SaveAttempt(ctx context.Context, a Attempt) (Attempt, error)
		UpdateAttemptFeedback(ctx context.Context, id string, fb Feedback) error
	}

	TestGetter interface {
		Get(ctx context.Context, id string) (test.Test, error)
		Questions(ctx context.Context, t test.Test) ([]test.QuestionData, error)
	}

	QuestionGetter interface {
		GetQuestions(ctx context.Context, ids ...string) ([]question.Question, error)
	}

	FileStore interface {
		Upload(ctx context.Context, ownerID, filename string, content []byte, private bool, attachedTo string) (file.File, error)
		Read(ctx context.Context, name string) (file.File, []byte, error)
		URL(name string) string
	}

	EssayGrader interface {
		GradeEssay(ctx context.Context, req EssayRequest) (EssayGrade, error)
	}

	FeedbackGenerator interface {
		GenerateFeedback(ctx context.Context, req FeedbackRequest) (Feedback, error)
	}

	Options struct {
		MaxConcurrentGradings int
		GradingTimeout        time.Duration
		FeedbackTimeout       time.Duration
	}

	Service struct {
		repo      Repository
		tests     TestGetter
		questions QuestionGetter
		files     FileStore
		grader    EssayGrader
		feedback  FeedbackGenerator
		log       core.Logger
		opts      Options
	}
)

func NewService(
	repo Repository,
	tests TestGetter,
	questions QuestionGetter,
	files FileStore,
	grader EssayGrader,
	feedback FeedbackGenerator,
	log core.Logger,
	opts Options,
) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(tests, "tests"),
		vala.IsNotNil(questions, "questions"),
		vala.IsNotNil(files, "files"),
		vala.IsNotNil(grader, "grader"),
		vala.IsNotNil(feedback, "feedback"),
		vala.IsNotNil(log, "log"),
	).CheckAndPanic()

	if opts.MaxConcurrentGradings < 1 {
		opts.MaxConcurrentGradings = 1
	}
	return &Service{
		repo:      repo,
		tests:     tests,
		questions: questions,
		files:     files,
		grader:    grader,
		feedback:  feedback,
		log:       log,
		opts:      opts,
	}
}

// Status returns the status of the user's latest attempt on a test.
func (svc *Service) Status(ctx context.Context, usr user.User, testID string) (StatusResult, error) {
	a, err := svc.repo.GetLatestAttempt(ctx, usr.ID, testID)
	if err != nil {
		if core.IsNotFound(err) {
			return StatusResult{Status: StatusNotStarted}, nil
		}
		return StatusResult{}, err
	}

	status := a.Status
	if status != StatusInProgress && !resultStatuses[status] {
		status = StatusCompleted
	}
	return StatusResult{Status: status, AttemptID: a.ID}, nil
}

// StartOrResume resumes the user's attempt in progress on a test or starts a new one.
func (svc *Service) StartOrResume(ctx context.Context, usr user.User, testID string) (Session, error) {
	t, err := svc.tests.Get(ctx, testID)
	if err != nil {
		return Session{}, err
	}
	if !t.IsActive {
		return Session{}, core.Invalid(fmt.Sprintf("Test %s is not active.", t.ID))
	}

	now := nowFunc()
	elapsed := 0
	a, err := svc.repo.GetInProgressAttempt(ctx, usr.ID, t.ID)
	switch {
	case err == nil:
		elapsed = int(now.Sub(a.StartTime).Seconds())
	case core.IsNotFound(err):
		a, err = svc.repo.CreateAttempt(ctx, Attempt{
			UserID:               usr.ID,
			TestID:               t.ID,
			Status:               StatusInProgress,
			StartTime:            now,
			RemainingTimeSeconds: t.TimeLimitMinutes * 60,
			CreatedAt:            now,
			UpdatedAt:            now,
		})
		if err != nil {
			return Session{}, errors.Wrap(err, "creating attempt")
		}
	default:
		return Session{}, errors.Wrap(err, "getting attempt in progress")
	}

	questions, err := svc.tests.Questions(ctx, t)
	if err != nil {
		return Session{}, err
	}
	saved := make(map[string]SavedAnswer, len(a.Answers))
	for _, ans := range a.Answers {
		saved[ans.TestQuestionItemID] = SavedAnswer{UserAnswer: ans.UserAnswer, TimeSpentSeconds: ans.TimeSpentSeconds}
	}

	return Session{
		Attempt: SessionAttempt{
			ID:                   a.ID,
			Status:               a.Status,
			StartTime:            a.StartTime,
			RemainingTimeSeconds: a.RemainingTimeSeconds,
			LastViewedQuestionID: a.LastViewedQuestionID,
		},
		Test: SessionTest{
			ID:               t.ID,
			Title:            t.Title,
			TimeLimitMinutes: t.TimeLimitMinutes,
			Instructions:     t.Instructions,
		},
		Questions:          questions,
		SavedAnswers:       saved,
		TimeElapsedSeconds: elapsed,
	}, nil
}

// SaveProgress records the answers given so far without grading them.
func (svc *Service) SaveProgress(ctx context.Context, usr user.User, attemptID string, p Progress) error {
	a, err := svc.repo.GetAttempt(ctx, attemptID)
	if err != nil {
		return err
	}
	if a.UserID != usr.ID {
		return core.NewPermissionError("You are not permitted to save progress for this attempt.")
	}
	if a.Status != StatusInProgress {
		return core.Invalid(fmt.Sprintf("Cannot save progress. Status is %s.", a.Status))
	}
	t, err := svc.tests.Get(ctx, a.TestID)
	if err != nil {
		return err
	}

	now := nowFunc()
	for _, tqi := range sortedKeys(p.Answers) {
		item, ok := t.Item(tqi)
		if !ok {
			continue
		}
		pa := p.Answers[tqi]
		ans := Answer{TestQuestionItemID: item.ID, QuestionID: item.QuestionID}
		idx := -1
		for i := range a.Answers {
			if a.Answers[i].TestQuestionItemID == item.ID {
				ans, idx = a.Answers[i], i
				break
			}
		}
		ans.UserAnswer = pa.UserAnswer.Value
		ans.TimeSpentSeconds = pa.TimeSpentSeconds
		ans.SubmittedAt = &now
		ans.IsCorrect = nil
		ans.PointsAwarded = nil
		if idx < 0 {
			a.Answers = append(a.Answers, ans)
		} else {
			a.Answers[idx] = ans
		}
	}

	if p.RemainingTimeSeconds != nil {
		a.RemainingTimeSeconds = *p.RemainingTimeSeconds
	}
	a.LastViewedQuestionID = lastViewed(t, p.LastViewedQuestion)
	a.UpdatedAt = now
	_, err = svc.repo.SaveAttempt(ctx, a)
	return err
}

// essayJob is an essay answer waiting to be graded.
type essayJob struct {
	idx      int // index in the answers being graded
	question question.Question
	images   []Image
}

// Submit grades the submitted answers and closes the attempt.
func (svc *Service) Submit(ctx context.Context, usr user.User, attemptID string, sub Submission) (SubmitResult, error) {
	a, err := svc.repo.GetAttempt(ctx, attemptID)
	if err != nil {
		return SubmitResult{}, err
	}
	if a.UserID != usr.ID {
		return SubmitResult{}, core.NewPermissionError("You are not permitted to submit this attempt.")
	}
	if a.Status != StatusInProgress {
		return SubmitResult{}, core.Invalid(fmt.Sprintf("This attempt cannot be submitted (Status: %s).", a.Status))
	}
	t, err := svc.tests.Get(ctx, a.TestID)
	if err != nil {
		return SubmitResult{}, err
	}
	byID, err := svc.questionsByID(ctx, t)
	if err != nil {
		return SubmitResult{}, err
	}

	now := nowFunc()
	var (
		answers  []Answer
		jobs     []essayJob
		possible float64
		hasEssay bool
	)
	for _, tqi := range sortedKeys(sub.Answers) {
		item, ok := t.Item(tqi)
		if !ok {
			continue
		}
		sa := sub.Answers[tqi]
		q, ok := byID[item.QuestionID]
		if !ok {
			svc.log.Error(fmt.Sprintf("question %s of item %s not found while submitting attempt %s", item.QuestionID, item.ID, a.ID))
			zero := 0.0
			answers = append(answers, Answer{
				TestQuestionItemID: item.ID,
				QuestionID:         item.QuestionID,
				UserAnswer:         sa.UserAnswer.Value,
				TimeSpentSeconds:   sa.TimeSpent,
				SubmittedAt:        &now,
				PointsAwarded:      &zero,
				AIFeedback:         FeedbackMissingQuestion,
			})
			continue
		}
		possible += q.PointValue()

		ans := Answer{
			TestQuestionItemID: item.ID,
			QuestionID:         q.ID,
			UserAnswer:         sa.UserAnswer.Value,
			TimeSpentSeconds:   sa.TimeSpent,
			SubmittedAt:        &now,
		}
		switch q.Type {
		case question.TypeMultipleChoice:
			correct := ans.UserAnswer != nil && strings.TrimSpace(*ans.UserAnswer) != "" &&
				strings.TrimSpace(*ans.UserAnswer) == q.CorrectOptionID()
			setCorrectness(&ans, correct, q.PointValue())
		case question.TypeSelfWrite:
			key := strings.TrimSpace(q.AnswerKey)
			correct := ans.UserAnswer != nil && key != "" &&
				strings.EqualFold(strings.TrimSpace(*ans.UserAnswer), key)
			setCorrectness(&ans, correct, q.PointValue())
		case question.TypeEssay:
			hasEssay = true
			images := svc.storeImages(ctx, usr, a.ID, item.ID, sa.Images, &ans)
			jobs = append(jobs, essayJob{idx: len(answers), question: q, images: images})
		}
		answers = append(answers, ans)
	}

	manualReview := svc.gradeEssays(ctx, answers, jobs)

	a.Answers = answers
	a.Status = finalStatus(manualReview, hasEssay)
	a.EndTime = &now
	a.RemainingTimeSeconds = 0
	if sub.TimeLeft != nil {
		a.RemainingTimeSeconds = *sub.TimeLeft
	}
	a.LastViewedQuestionID = lastViewed(t, sub.LastViewedQuestion)
	a.FinalScore = totalPoints(answers)
	a.TotalPossibleScore = possible
	a.IsPassed = isPassed(a.FinalScore, possible, t.PassingScore)
	a.UpdatedAt = now

	if a, err = svc.repo.SaveAttempt(ctx, a); err != nil {
		return SubmitResult{}, errors.Wrap(err, "saving submitted attempt")
	}
	if a.Status == StatusGraded || a.Status == StatusCompleted {
		svc.generateFeedback(ctx, a, t, byID)
	}

	return SubmitResult{Status: a.Status, Score: a.FinalScore, Passed: a.IsPassed, AttemptID: a.ID}, nil
}

// storeImages decodes the base64 images of an essay answer and stores them as private files.
// Invalid images are logged and skipped.
func (svc *Service) storeImages(ctx context.Context, usr user.User, attemptID, tqi string, imgs []Base64Image, ans *Answer) []Image {
	var images []Image
	for n, img := range imgs {
		data := img.Data
		if i := strings.Index(data, ";base64,"); i >= 0 && strings.HasPrefix(data, "data:") {
			data = data[i+len(";base64,"):]
		}
		content, err := base64.StdEncoding.DecodeString(strings.TrimSpace(data))
		if err != nil || len(content) == 0 {
			svc.log.Warn(fmt.Sprintf("skipping invalid image %d for item %s of attempt %s", n, tqi, attemptID), err, usr)
			continue
		}
		filename := core.CleanString(img.Filename)
		if filename == "" {
			filename = fmt.Sprintf("image_%s_%d.png", tqi, n+1)
		}
		f, err := svc.files.Upload(ctx, usr.ID, filename, content, true, attemptID)
		if err != nil {
			svc.log.Warn(fmt.Sprintf("could not store image %s for attempt %s", filename, attemptID), err, usr)
			continue
		}
		ans.Images = append(ans.Images, f.Name)
		images = append(images, Image{Filename: f.OriginalFilename, MIMEType: f.ContentType, Data: content})
	}
	return images
}

// gradeEssays grades the essay jobs concurrently, writing the outcome into answers.
// It reports whether any essay needs manual review.
func (svc *Service) gradeEssays(ctx context.Context, answers []Answer, jobs []essayJob) bool {
	manual := make([]bool, len(jobs))
	var g errgroup.Group
	g.SetLimit(svc.opts.MaxConcurrentGradings)
	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			manual[i] = svc.gradeEssay(ctx, &answers[job.idx], job.question, job.images)
			return nil
		})
	}
	_ = g.Wait()

	for _, m := range manual {
		if m {
			return true
		}
	}
	return false
}

// gradeEssay asks the grader to score ans and reports whether it needs manual review.
func (svc *Service) gradeEssay(ctx context.Context, ans *Answer, q question.Question, images []Image) bool {
	zero := 0.0
	ans.RubricScores = nil
	ans.IsCorrect = nil
	rubric := q.SortedRubric()
	if len(rubric) == 0 {
		ans.AIScore = nil
		ans.PointsAwarded = &zero
		ans.AIFeedback = FeedbackNoRubric
		return true
	}

	if svc.opts.GradingTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, svc.opts.GradingTimeout)
		defer cancel()
	}
	grade, err := svc.grader.GradeEssay(ctx, EssayRequest{
		QuestionID:      q.ID,
		QuestionContent: q.Content,
		AnswerText:      ans.Text(),
		Rubric:          rubric,
		Images:          images,
	})
	if err != nil {
		svc.log.Error(fmt.Sprintf("grading essay answer to question %s", q.ID), err)
		ans.AIScore = nil
		ans.PointsAwarded = &zero
		ans.AIFeedback = FeedbackGradingError
		return true
	}

	score := grade.TotalScoreAwarded
	ans.AIScore = &score
	ans.PointsAwarded = &score
	ans.AIFeedback = grade.OverallFeedback
	for _, rs := range grade.RubricScores {
		if q.HasRubricItem(rs.RubricItemID) {
			rs.ID = ""
			ans.RubricScores = append(ans.RubricScores, rs)
		}
	}

	fb := strings.TrimSpace(grade.OverallFeedback)
	return fb == FeedbackNoContent || (score == 0 && strings.Contains(strings.ToLower(fb), "error"))
}

// generateFeedback stores the overall LLM feedback of a graded attempt.
// Failures are logged and replaced by a fallback text.
func (svc *Service) generateFeedback(ctx context.Context, a Attempt, t test.Test, byID map[string]question.Question) {
	req := FeedbackRequest{TestTitle: t.Title, TotalScore: a.FinalScore}
	for _, ans := range a.Answers {
		q := byID[ans.QuestionID]
		item := FeedbackItem{
			QuestionID:    ans.QuestionID,
			Question:      q.Content,
			QuestionType:  q.Type,
			StudentAnswer: ans.UserAnswer,
			IsCorrect:     ans.IsCorrect,
			PointsAwarded: ans.PointsAwarded,
		}
		if q.Type == question.TypeEssay {
			item.EssayFeedback = ans.AIFeedback
		}
		req.Answers = append(req.Answers, item)
	}

	gctx := ctx
	if svc.opts.FeedbackTimeout > 0 {
		var cancel context.CancelFunc
		gctx, cancel = context.WithTimeout(ctx, svc.opts.FeedbackTimeout)
		defer cancel()
	}
	fb, err := svc.feedback.GenerateFeedback(gctx, req)
	if err != nil {
		svc.log.Error(fmt.Sprintf("generating feedback for attempt %s", a.ID), err)
		fb = Feedback{Feedback: FeedbackUnavailable}
	}
	if err := svc.repo.UpdateAttemptFeedback(ctx, a.ID, fb); err != nil {
		svc.log.Error(fmt.Sprintf("saving feedback for attempt %s", a.ID), err)
	}
}

// ListForTest returns the user's attempts on a test, newest first.
func (svc *Service) ListForTest(ctx context.Context, usr user.User, testID string) ([]Summary, error) {
	attempts, err := svc.repo.QueryAttempts(ctx, QueryFilter{UserID: usr.ID, TestID: testID})
	if err != nil {
		return nil, err
	}
	summaries := make([]Summary, 0, len(attempts))
	for _, a := range attempts {
		summaries = append(summaries, a.Summary())
	}
	return summaries, nil
}

// ListAll returns all the user's attempts with their test titles, newest first.
func (svc *Service) ListAll(ctx context.Context, usr user.User) ([]Summary, error) {
	attempts, err := svc.repo.QueryAttempts(ctx, QueryFilter{UserID: usr.ID})
	if err != nil {
		return nil, err
	}
	titles := make(map[string]string)
	summaries := make([]Summary, 0, len(attempts))
	for _, a := range attempts {
		title, ok := titles[a.TestID]
		if !ok {
			t, err := svc.tests.Get(ctx, a.TestID)
			if err != nil && !core.IsNotFound(err) {
				return nil, err
			}
			title = t.Title
			titles[a.TestID] = title
		}
		s := a.Summary()
		s.TestTitle = title
		summaries = append(summaries, s)
	}
	return summaries, nil
}

// ResultDetails returns a finished attempt with every test question and the answer given to it.
func (svc *Service) ResultDetails(ctx context.Context, usr user.User, attemptID string) (Result, error) {
	a, err := svc.repo.GetAttempt(ctx, attemptID)
	if err != nil {
		return Result{}, err
	}
	if a.UserID != usr.ID {
		return Result{}, core.NewPermissionError("You are not permitted to view results for this attempt.")
	}
	if !resultStatuses[a.Status] {
		return Result{}, core.Invalid(fmt.Sprintf("Results are not available for this attempt status (%s).", a.Status))
	}
	t, err := svc.tests.Get(ctx, a.TestID)
	if err != nil {
		return Result{}, err
	}
	byID, err := svc.questionsByID(ctx, t)
	if err != nil {
		return Result{}, err
	}

	items := make([]test.QuestionItem, len(t.Questions))
	copy(items, t.Questions)
	sort.SliceStable(items, func(i, j int) bool { return items[i].Idx < items[j].Idx })

	res := Result{
		Attempt: ResultAttempt{
			ID:               a.ID,
			Status:           a.Status,
			Score:            a.FinalScore,
			Passed:           a.IsPassed,
			StartTime:        a.StartTime,
			EndTime:          a.EndTime,
			TimeTakenSeconds: a.TimeTakenSeconds(),
		},
		Test: ResultTest{
			ID:                    t.ID,
			Title:                 t.Title,
			PassingScoreThreshold: t.PassingScore,
		},
		QuestionsAnswers:             make([]ResultQuestion, 0, len(items)),
		OverallFeedbackFromLLM:       a.Feedback,
		OverallRecommendationFromLLM: a.Recommendation,
	}

	for _, item := range items {
		q, ok := byID[item.QuestionID]
		if !ok {
			continue
		}
		res.Test.TotalPossibleScore += q.PointValue()
		if q.Type == question.TypeEssay {
			res.Test.HasEssayQuestion = true
		}
		res.QuestionsAnswers = append(res.QuestionsAnswers, svc.resultQuestion(item, q, a))
	}
	return res, nil
}

func (svc *Service) resultQuestion(item test.QuestionItem, q question.Question, a Attempt) ResultQuestion {
	rq := ResultQuestion{
		QuestionID:          q.ID,
		TestQuestionID:      item.ID,
		Content:             q.Content,
		Type:                q.Type,
		Marks:               q.Marks,
		ImageURL:            q.ImageURL,
		Options:             make([]ResultOption, 0, len(q.Options)),
		Explanation:         q.Explanation,
		Hint:                q.Hint,
		UserSubmittedImages: []ResultImage{},
		PointValueInTest:    q.PointValue(),
		AIRubricScores:      []ResultRubricScore{},
	}
	for i, opt := range q.Options {
		rq.Options = append(rq.Options, ResultOption{ID: opt.ID, Text: opt.Text, Label: test.OptionLabel(i)})
	}
	switch q.Type {
	case question.TypeMultipleChoice:
		rq.AnswerKeyDisplay = q.CorrectOptionID()
	case question.TypeEssay:
		rq.AnswerKeyDisplay = q.SortedRubric()
	default:
		rq.AnswerKeyDisplay = q.AnswerKey
	}

	ans, ok := a.Answer(item.ID)
	if !ok {
		return rq
	}
	rq.UserAnswerText = ans.UserAnswer
	rq.IsCorrect = ans.IsCorrect
	rq.PointsAwardedFinal = ans.Points()
	spent := ans.TimeSpentSeconds
	rq.TimeSpentSeconds = &spent
	rq.AITotalScoreForQuestion = ans.AIScore
	rq.AIOverallFeedbackForQuestion = ans.AIFeedback
	for _, name := range ans.Images {
		rq.UserSubmittedImages = append(rq.UserSubmittedImages, ResultImage{URL: svc.files.URL(name), Name: name})
	}
	for _, rs := range ans.RubricScores {
		rrs := ResultRubricScore{
			RubricScoreID:     rs.ID,
			RubricItemID:      rs.RubricItemID,
			PointsAwardedByAI: rs.PointsAwarded,
			AIComment:         rs.Comment,
		}
		for _, ri := range q.Rubric {
			if ri.ID == rs.RubricItemID {
				rrs.CriterionDescription = ri.Description
				rrs.CriterionMaxScore = ri.MaxScore
				break
			}
		}
		rq.AIRubricScores = append(rq.AIRubricScores, rrs)
	}
	return rq
}

// GradePending re-runs AI grading on the essays of the attempts waiting for manual grading.
// It returns the number of attempts that no longer need a manual review.
func (svc *Service) GradePending(ctx context.Context) (int, error) {
	attempts, err := svc.repo.QueryAttempts(ctx, QueryFilter{Statuses: []string{StatusToBeGraded}})
	if err != nil {
		return 0, err
	}

	graded := 0
	for _, att := range attempts {
		if err := ctx.Err(); err != nil {
			return graded, err
		}
		ok, err := svc.regrade(ctx, att.ID)
		if err != nil {
			svc.log.Error(fmt.Sprintf("regrading attempt %s", att.ID), err)
			continue
		}
		if ok {
			graded++
		}
	}
	return graded, nil
}

func (svc *Service) regrade(ctx context.Context, attemptID string) (bool, error) {
	a, err := svc.repo.GetAttempt(ctx, attemptID)
	if err != nil {
		return false, err
	}
	t, err := svc.tests.Get(ctx, a.TestID)
	if err != nil {
		return false, err
	}
	byID, err := svc.questionsByID(ctx, t)
	if err != nil {
		return false, err
	}

	var jobs []essayJob
	manualLeft := false
	for i, ans := range a.Answers {
		q, ok := byID[ans.QuestionID]
		if !ok || q.Type != question.TypeEssay {
			continue
		}
		if len(q.Rubric) == 0 {
			manualLeft = true
			continue
		}
		var images []Image
		for _, name := range ans.Images {
			f, content, err := svc.files.Read(ctx, name)
			if err != nil {
				svc.log.Warn(fmt.Sprintf("could not read image %s of attempt %s", name, a.ID), err)
				continue
			}
			images = append(images, Image{Filename: f.OriginalFilename, MIMEType: f.ContentType, Data: content})
		}
		jobs = append(jobs, essayJob{idx: i, question: q, images: images})
	}
	if len(jobs) == 0 {
		return false, nil
	}

	manual := svc.gradeEssays(ctx, a.Answers, jobs) || manualLeft
	a.Status = finalStatus(manual, true)
	a.FinalScore = totalPoints(a.Answers)
	a.IsPassed = isPassed(a.FinalScore, a.TotalPossibleScore, t.PassingScore)
	a.UpdatedAt = nowFunc()
	if a, err = svc.repo.SaveAttempt(ctx, a); err != nil {
		return false, errors.Wrap(err, "saving regraded attempt")
	}
	if manual {
		return false, nil
	}
	svc.generateFeedback(ctx, a, t, byID)
	return true, nil
}

// TimeOutStale closes the attempts in progress whose time limit, plus grace, has elapsed.
// Tests without a time limit never time out.
func (svc *Service) TimeOutStale(ctx context.Context, grace time.Duration) (int, error) {
	attempts, err := svc.repo.QueryAttempts(ctx, QueryFilter{Statuses: []string{StatusInProgress}})
	if err != nil {
		return 0, err
	}

	now := nowFunc()
	limits := make(map[string]time.Duration)
	count := 0
	for _, att := range attempts {
		limit, ok := limits[att.TestID]
		if !ok {
			t, err := svc.tests.Get(ctx, att.TestID)
			if err != nil && !core.IsNotFound(err) {
				return count, err
			}
			limit = t.TimeLimit()
			limits[att.TestID] = limit
		}
		if limit <= 0 || now.Before(att.StartTime.Add(limit+grace)) {
			continue
		}

		a, err := svc.repo.GetAttempt(ctx, att.ID)
		if err != nil {
			return count, err
		}
		a.Status = StatusTimedOut
		a.EndTime = &now
		a.RemainingTimeSeconds = 0
		a.FinalScore = totalPoints(a.Answers)
		a.UpdatedAt = now
		if _, err := svc.repo.SaveAttempt(ctx, a); err != nil {
			return count, errors.Wrap(err, "timing out attempt")
		}
		count++
	}
	return count, nil
}

// questionsByID returns the questions of t keyed by ID.
func (svc *Service) questionsByID(ctx context.Context, t test.Test) (map[string]question.Question, error) {
	ids := make([]string, 0, len(t.Questions))
	for _, item := range t.Questions {
		ids = append(ids, item.QuestionID)
	}
	questions, err := svc.questions.GetQuestions(ctx, ids...)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]question.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}
	return byID, nil
}

func setCorrectness(ans *Answer, correct bool, pointValue float64) {
	points := 0.0
	if correct {
		points = pointValue
	}
	ans.IsCorrect = &correct
	ans.PointsAwarded = &points
}

func finalStatus(manualReview, hasEssay bool) string {
	switch {
	case manualReview:
		return StatusToBeGraded
	case hasEssay:
		return StatusGraded
	default:
		return StatusCompleted
	}
}

func isPassed(score, possible, passingScore float64) bool {
	if possible > 0 {
		return score/possible*100 >= passingScore
	}
	return passingScore == 0
}

func totalPoints(answers []Answer) float64 {
	total := 0.0
	for _, ans := range answers {
		total += ans.Points()
	}
	return total
}

// lastViewed maps a test question item to its question, empty when unknown.
func lastViewed(t test.Test, tqi string) string {
	if item, ok := t.Item(tqi); ok {
		return item.QuestionID
	}
	return ""
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
