package pgrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/elearning/core/attempt"
	"github.com/trezcool/elearning/core/file"
)

type fileRow struct {
	Name             string      `db:"name"`
	OriginalFilename string      `db:"original_filename"`
	ContentType      string      `db:"content_type"`
	Size             int64       `db:"size"`
	IsPrivate        bool        `db:"is_private"`
	OwnerID          null.String `db:"owner_id"`
	AttachedTo       string      `db:"attached_to"`
	CreatedAt        time.Time   `db:"created_at"`
}

type fileRepository struct {
	db *sqlx.DB
}

var _ file.Repository = (*fileRepository)(nil) // interface compliance check

func NewFileRepository(db *sqlx.DB) *fileRepository {
	return &fileRepository{db: db}
}

func (repo *fileRepository) CreateFile(ctx context.Context, f file.File) (file.File, error) {
	q := `INSERT INTO files (name, original_filename, content_type, size, is_private, owner_id, attached_to, created_at)
		VALUES (:name, :original_filename, :content_type, :size, :is_private, :owner_id, :attached_to, :created_at)`
	row := fileRow{
		Name:             f.Name,
		OriginalFilename: f.OriginalFilename,
		ContentType:      f.ContentType,
		Size:             f.Size,
		IsPrivate:        f.IsPrivate,
		OwnerID:          nullID(f.OwnerID),
		AttachedTo:       f.AttachedTo,
		CreatedAt:        f.CreatedAt.UTC(),
	}
	if _, err := repo.db.NamedExecContext(ctx, q, row); err != nil {
		return file.File{}, errors.Wrap(err, "inserting file")
	}
	return f, nil
}

func (repo *fileRepository) GetFile(ctx context.Context, name string) (file.File, error) {
	var row fileRow
	if err := repo.db.GetContext(ctx, &row, `SELECT * FROM files WHERE name = $1`, name); err != nil {
		return file.File{}, trapNoRows(err, file.ErrNotFound, "getting file")
	}
	return file.File{
		Name:             row.Name,
		OriginalFilename: row.OriginalFilename,
		ContentType:      row.ContentType,
		Size:             row.Size,
		IsPrivate:        row.IsPrivate,
		OwnerID:          row.OwnerID.String,
		AttachedTo:       row.AttachedTo,
		CreatedAt:        row.CreatedAt.UTC(),
	}, nil
}

func (repo *fileRepository) AttachFiles(ctx context.Context, attachedTo string, names ...string) error {
	_, err := repo.db.ExecContext(ctx, `UPDATE files SET attached_to = $1 WHERE name = ANY($2)`, attachedTo, pq.StringArray(names))
	return errors.Wrap(err, "attaching files")
}

const attemptColumns = `id, user_id, test_id, status, start_time, end_time, remaining_time_seconds,
	last_viewed_question, final_score, total_possible_score, is_passed, feedback, recommendation, created_at, updated_at`

type attemptRow struct {
	ID                   string    `db:"id"`
	UserID               string    `db:"user_id"`
	TestID               string    `db:"test_id"`
	Status               string    `db:"status"`
	StartTime            time.Time `db:"start_time"`
	EndTime              null.Time `db:"end_time"`
	RemainingTimeSeconds int       `db:"remaining_time_seconds"`
	LastViewedQuestion   string    `db:"last_viewed_question"`
	FinalScore           float64   `db:"final_score"`
	TotalPossibleScore   float64   `db:"total_possible_score"`
	IsPassed             bool      `db:"is_passed"`
	Feedback             string    `db:"feedback"`
	Recommendation       string    `db:"recommendation"`
	CreatedAt            time.Time `db:"created_at"`
	UpdatedAt            time.Time `db:"updated_at"`
}

func toAttemptRow(a attempt.Attempt) attemptRow {
	return attemptRow{
		ID:                   a.ID,
		UserID:               a.UserID,
		TestID:               a.TestID,
		Status:               a.Status,
		StartTime:            a.StartTime.UTC(),
		EndTime:              null.TimeFromPtr(a.EndTime),
		RemainingTimeSeconds: a.RemainingTimeSeconds,
		LastViewedQuestion:   a.LastViewedQuestionID,
		FinalScore:           a.FinalScore,
		TotalPossibleScore:   a.TotalPossibleScore,
		IsPassed:             a.IsPassed,
		Feedback:             a.Feedback,
		Recommendation:       a.Recommendation,
		CreatedAt:            a.CreatedAt.UTC(),
		UpdatedAt:            a.UpdatedAt.UTC(),
	}
}

func (row attemptRow) attempt() attempt.Attempt {
	return attempt.Attempt{
		ID:                   row.ID,
		UserID:               row.UserID,
		TestID:               row.TestID,
		Status:               row.Status,
		StartTime:            row.StartTime.UTC(),
		EndTime:              utcPtr(row.EndTime),
		RemainingTimeSeconds: row.RemainingTimeSeconds,
		LastViewedQuestionID: row.LastViewedQuestion,
		FinalScore:           row.FinalScore,
		TotalPossibleScore:   row.TotalPossibleScore,
		IsPassed:             row.IsPassed,
		Feedback:             row.Feedback,
		Recommendation:       row.Recommendation,
		CreatedAt:            row.CreatedAt.UTC(),
		UpdatedAt:            row.UpdatedAt.UTC(),
	}
}

func utcPtr(t null.Time) *time.Time {
	if !t.Valid {
		return nil
	}
	utc := t.Time.UTC()
	return &utc
}

type answerRow struct {
	ID               string         `db:"id"`
	AttemptID        string         `db:"attempt_id"`
	TestQuestionItem string         `db:"test_question_item"`
	QuestionID       string         `db:"question_id"`
	UserAnswer       null.String    `db:"user_answer"`
	TimeSpentSeconds int            `db:"time_spent_seconds"`
	IsCorrect        null.Bool      `db:"is_correct"`
	PointsAwarded    null.Float64   `db:"points_awarded"`
	AIScore          null.Float64   `db:"ai_score"`
	AIFeedback       string         `db:"ai_feedback"`
	Images           pq.StringArray `db:"images"`
	SubmittedAt      null.Time      `db:"submitted_at"`
	Idx              int            `db:"idx"`
}

type rubricScoreRow struct {
	ID            string  `db:"id"`
	AnswerID      string  `db:"answer_id"`
	RubricItemID  string  `db:"rubric_item_id"`
	PointsAwarded float64 `db:"points_awarded"`
	Comment       string  `db:"comment"`
}

type attemptRepository struct {
	db *sqlx.DB
}

var _ attempt.Repository = (*attemptRepository)(nil) // interface compliance check

func NewAttemptRepository(db *sqlx.DB) *attemptRepository {
	return &attemptRepository{db: db}
}

func (repo *attemptRepository) CreateAttempt(ctx context.Context, a attempt.Attempt) (attempt.Attempt, error) {
	a.ID = newID()
	err := inTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		q := `INSERT INTO test_attempts (` + attemptColumns + `) VALUES (:id, :user_id, :test_id, :status, :start_time,
			:end_time, :remaining_time_seconds, :last_viewed_question, :final_score, :total_possible_score, :is_passed,
			:feedback, :recommendation, :created_at, :updated_at)`
		if _, err := tx.NamedExecContext(ctx, q, toAttemptRow(a)); err != nil {
			return errors.Wrap(err, "inserting test attempt")
		}
		return repo.saveAnswers(ctx, tx, &a)
	})
	if err != nil {
		return attempt.Attempt{}, err
	}
	return a, nil
}

// saveAnswers replaces the answers of a and their rubric scores, assigning missing IDs.
func (repo *attemptRepository) saveAnswers(ctx context.Context, tx *sqlx.Tx, a *attempt.Attempt) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM test_attempt_answers WHERE attempt_id = $1`, a.ID); err != nil {
		return errors.Wrap(err, "deleting answers")
	}

	answers := make([][]interface{}, 0, len(a.Answers))
	scores := make([][]interface{}, 0)
	for i := range a.Answers {
		ans := &a.Answers[i]
		if !validID(ans.ID) {
			ans.ID = newID()
		}
		images := ans.Images
		if images == nil {
			images = []string{}
		}
		answers = append(answers, []interface{}{
			ans.ID, a.ID, ans.TestQuestionItemID, ans.QuestionID, null.StringFromPtr(ans.UserAnswer),
			ans.TimeSpentSeconds, null.BoolFromPtr(ans.IsCorrect), null.Float64FromPtr(ans.PointsAwarded),
			null.Float64FromPtr(ans.AIScore), ans.AIFeedback, pq.StringArray(images), null.TimeFromPtr(ans.SubmittedAt), i,
		})
		for j := range ans.RubricScores {
			rs := &ans.RubricScores[j]
			if !validID(rs.ID) {
				rs.ID = newID()
			}
			scores = append(scores, []interface{}{rs.ID, ans.ID, rs.RubricItemID, rs.PointsAwarded, rs.Comment})
		}
	}
	cols := []string{
		"id", "attempt_id", "test_question_item", "question_id", "user_answer", "time_spent_seconds", "is_correct",
		"points_awarded", "ai_score", "ai_feedback", "images", "submitted_at", "idx",
	}
	if err := bulkInsert(ctx, tx, "test_attempt_answers", cols, answers); err != nil {
		return err
	}
	cols = []string{"id", "answer_id", "rubric_item_id", "points_awarded", "comment"}
	return bulkInsert(ctx, tx, "rubric_scores", cols, scores)
}

// loadAnswers loads the answers of a with their rubric scores.
func (repo *attemptRepository) loadAnswers(ctx context.Context, a *attempt.Attempt) error {
	var answers []answerRow
	q := `SELECT * FROM test_attempt_answers WHERE attempt_id = $1 ORDER BY idx`
	if err := repo.db.SelectContext(ctx, &answers, q, a.ID); err != nil {
		return errors.Wrap(err, "querying answers")
	}
	var scores []rubricScoreRow
	q = `SELECT rs.* FROM rubric_scores rs JOIN test_attempt_answers ans ON ans.id = rs.answer_id
		WHERE ans.attempt_id = $1 ORDER BY rs.id`
	if err := repo.db.SelectContext(ctx, &scores, q, a.ID); err != nil {
		return errors.Wrap(err, "querying rubric scores")
	}
	scoresByAnswer := make(map[string][]attempt.RubricScore)
	for _, rs := range scores {
		scoresByAnswer[rs.AnswerID] = append(scoresByAnswer[rs.AnswerID], attempt.RubricScore{
			ID:            rs.ID,
			RubricItemID:  rs.RubricItemID,
			PointsAwarded: rs.PointsAwarded,
			Comment:       rs.Comment,
		})
	}

	a.Answers = make([]attempt.Answer, 0, len(answers))
	for _, row := range answers {
		a.Answers = append(a.Answers, attempt.Answer{
			ID:                 row.ID,
			TestQuestionItemID: row.TestQuestionItem,
			QuestionID:         row.QuestionID,
			UserAnswer:         row.UserAnswer.Ptr(),
			TimeSpentSeconds:   row.TimeSpentSeconds,
			IsCorrect:          row.IsCorrect.Ptr(),
			PointsAwarded:      row.PointsAwarded.Ptr(),
			AIScore:            row.AIScore.Ptr(),
			AIFeedback:         row.AIFeedback,
			Images:             row.Images,
			SubmittedAt:        utcPtr(row.SubmittedAt),
			RubricScores:       scoresByAnswer[row.ID],
		})
	}
	return nil
}

// getOne returns the first attempt matching w, with its answers.
func (repo *attemptRepository) getOne(ctx context.Context, w where) (attempt.Attempt, error) {
	var row attemptRow
	q := `SELECT ` + attemptColumns + ` FROM test_attempts` + w.String() + ` ORDER BY start_time DESC LIMIT 1`
	if err := repo.db.GetContext(ctx, &row, q, w.args...); err != nil {
		return attempt.Attempt{}, trapNoRows(err, attempt.ErrNotFound, "getting test attempt")
	}
	a := row.attempt()
	if err := repo.loadAnswers(ctx, &a); err != nil {
		return attempt.Attempt{}, err
	}
	return a, nil
}

func (repo *attemptRepository) GetAttempt(ctx context.Context, id string) (attempt.Attempt, error) {
	if !validID(id) {
		return attempt.Attempt{}, attempt.ErrNotFound
	}
	var w where
	w.add("id = ?", id)
	return repo.getOne(ctx, w)
}

func (repo *attemptRepository) GetLatestAttempt(ctx context.Context, userID, testID string) (attempt.Attempt, error) {
	if !validID(userID) || !validID(testID) {
		return attempt.Attempt{}, attempt.ErrNotFound
	}
	var w where
	w.add("user_id = ? AND test_id = ?", userID, testID)
	return repo.getOne(ctx, w)
}

func (repo *attemptRepository) GetInProgressAttempt(ctx context.Context, userID, testID string) (attempt.Attempt, error) {
	if !validID(userID) || !validID(testID) {
		return attempt.Attempt{}, attempt.ErrNotFound
	}
	var w where
	w.add("user_id = ? AND test_id = ? AND status = ?", userID, testID, attempt.StatusInProgress)
	return repo.getOne(ctx, w)
}

func (repo *attemptRepository) QueryAttempts(ctx context.Context, filter attempt.QueryFilter) ([]attempt.Attempt, error) {
	var w where
	if filter.UserID != "" {
		if !validID(filter.UserID) {
			return []attempt.Attempt{}, nil
		}
		w.add("user_id = ?", filter.UserID)
	}
	if filter.TestID != "" {
		if !validID(filter.TestID) {
			return []attempt.Attempt{}, nil
		}
		w.add("test_id = ?", filter.TestID)
	}
	if len(filter.Statuses) > 0 {
		w.add("status = ANY(?)", pq.StringArray(filter.Statuses))
	}

	var rows []attemptRow
	q := `SELECT ` + attemptColumns + ` FROM test_attempts` + w.String() + ` ORDER BY start_time DESC`
	if err := repo.db.SelectContext(ctx, &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying test attempts")
	}
	attempts := make([]attempt.Attempt, 0, len(rows))
	for _, row := range rows {
		attempts = append(attempts, row.attempt())
	}
	return attempts, nil
}

func (repo *attemptRepository) SaveAttempt(ctx context.Context, a attempt.Attempt) (attempt.Attempt, error) {
	if !validID(a.ID) {
		return attempt.Attempt{}, attempt.ErrNotFound
	}
	err := inTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		q := `UPDATE test_attempts SET status = :status, start_time = :start_time, end_time = :end_time,
			remaining_time_seconds = :remaining_time_seconds, last_viewed_question = :last_viewed_question,
			final_score = :final_score, total_possible_score = :total_possible_score, is_passed = :is_passed,
			feedback = :feedback, recommendation = :recommendation, updated_at = :updated_at WHERE id = :id`
		res, err := tx.NamedExecContext(ctx, q, toAttemptRow(a))
		if err != nil {
			return errors.Wrap(err, "updating test attempt")
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return attempt.ErrNotFound
		}
		return repo.saveAnswers(ctx, tx, &a)
	})
	if err != nil {
		return attempt.Attempt{}, err
	}
	return a, nil
}

func (repo *attemptRepository) UpdateAttemptFeedback(ctx context.Context, id string, fb attempt.Feedback) error {
	if !validID(id) {
		return attempt.ErrNotFound
	}
	q := `UPDATE test_attempts SET feedback = $1, recommendation = $2 WHERE id = $3`
	res, err := repo.db.ExecContext(ctx, q, fb.Feedback, fb.Recommendation, id)
	if err != nil {
		return errors.Wrap(err, "updating test attempt feedback")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return attempt.ErrNotFound
	}
	return nil
}
