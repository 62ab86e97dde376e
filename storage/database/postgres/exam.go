package pgrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/elearning/core/exam"
	"github.com/trezcool/elearning/core/session"
)

type examRow struct {
	ID                  string    `db:"id"`
	UserID              string    `db:"user_id"`
	TopicID             string    `db:"topic_id"`
	StartTime           time.Time `db:"start_time"`
	CompletionTimestamp null.Time `db:"completion_timestamp"`
	TimeSpentSeconds    int       `db:"time_spent_seconds"`
	TotalQuestions      int       `db:"total_questions"`
	CreatedAt           time.Time `db:"created_at"`
}

func (row examRow) attempt() exam.Attempt {
	return exam.Attempt{
		ID:                  row.ID,
		UserID:              row.UserID,
		TopicID:             row.TopicID,
		StartTime:           row.StartTime.UTC(),
		CompletionTimestamp: utcPtr(row.CompletionTimestamp),
		TimeSpentSeconds:    row.TimeSpentSeconds,
		TotalQuestions:      row.TotalQuestions,
		CreatedAt:           row.CreatedAt.UTC(),
	}
}

type detailRow struct {
	ID                 string    `db:"id"`
	AttemptID          string    `db:"attempt_id"`
	FlashcardID        string    `db:"flashcard_id"`
	UserAnswer         string    `db:"user_answer"`
	IsCorrect          bool      `db:"is_correct"`
	IsSkipped          bool      `db:"is_skipped"`
	SelfAssessment     string    `db:"user_self_assessment"`
	AssessedAt         null.Time `db:"assessed_at"`
	AIWhatWasCorrect   string    `db:"ai_feedback_what_was_correct"`
	AIWhatWasIncorrect string    `db:"ai_feedback_what_was_incorrect"`
	AIWhatToInclude    string    `db:"ai_feedback_what_to_include"`
	Idx                int       `db:"idx"`
}

func toDetailRow(d exam.Detail) detailRow {
	return detailRow{
		ID:                 d.ID,
		AttemptID:          d.AttemptID,
		FlashcardID:        d.FlashcardID,
		UserAnswer:         d.UserAnswer,
		IsCorrect:          d.IsCorrect,
		IsSkipped:          d.IsSkipped,
		SelfAssessment:     d.SelfAssessment,
		AssessedAt:         null.TimeFromPtr(d.AssessedAt),
		AIWhatWasCorrect:   d.AIWhatWasCorrect,
		AIWhatWasIncorrect: d.AIWhatWasIncorrect,
		AIWhatToInclude:    d.AIWhatToInclude,
		Idx:                d.Idx,
	}
}

func (row detailRow) detail() exam.Detail {
	return exam.Detail{
		ID:                 row.ID,
		AttemptID:          row.AttemptID,
		FlashcardID:        row.FlashcardID,
		UserAnswer:         row.UserAnswer,
		IsCorrect:          row.IsCorrect,
		IsSkipped:          row.IsSkipped,
		SelfAssessment:     row.SelfAssessment,
		AssessedAt:         utcPtr(row.AssessedAt),
		AIWhatWasCorrect:   row.AIWhatWasCorrect,
		AIWhatWasIncorrect: row.AIWhatWasIncorrect,
		AIWhatToInclude:    row.AIWhatToInclude,
		Idx:                row.Idx,
	}
}

const (
	// examSelect selects exam attempts with their question count.
	examSelect = `SELECT a.id, a.user_id, a.topic_id, a.start_time, a.completion_timestamp, a.time_spent_seconds,
		a.created_at, (SELECT count(*) FROM user_exam_attempt_details d WHERE d.attempt_id = a.id) AS total_questions
		FROM user_exam_attempts a`

	insertDetail = `INSERT INTO user_exam_attempt_details (id, attempt_id, flashcard_id, user_answer, is_correct,
		is_skipped, user_self_assessment, assessed_at, ai_feedback_what_was_correct, ai_feedback_what_was_incorrect,
		ai_feedback_what_to_include, idx) VALUES (:id, :attempt_id, :flashcard_id, :user_answer, :is_correct,
		:is_skipped, :user_self_assessment, :assessed_at, :ai_feedback_what_was_correct,
		:ai_feedback_what_was_incorrect, :ai_feedback_what_to_include, :idx)`
)

type examRepository struct {
	db *sqlx.DB
}

var _ exam.Repository = (*examRepository)(nil) // interface compliance check

func NewExamRepository(db *sqlx.DB) *examRepository {
	return &examRepository{db: db}
}

func (repo *examRepository) CreateAttempt(ctx context.Context, a exam.Attempt) (exam.Attempt, error) {
	a.ID = newID()
	err := inTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		q := `INSERT INTO user_exam_attempts (id, user_id, topic_id, start_time, completion_timestamp,
			time_spent_seconds, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`
		_, err := tx.ExecContext(ctx, q, a.ID, a.UserID, a.TopicID, a.StartTime.UTC(),
			null.TimeFromPtr(a.CompletionTimestamp), a.TimeSpentSeconds, a.CreatedAt.UTC())
		if err != nil {
			return errors.Wrap(err, "inserting exam attempt")
		}
		for i := range a.Details {
			a.Details[i].ID = newID()
			a.Details[i].AttemptID = a.ID
			if _, err = tx.NamedExecContext(ctx, insertDetail, toDetailRow(a.Details[i])); err != nil {
				return errors.Wrap(err, "inserting exam attempt detail")
			}
		}
		return nil
	})
	if err != nil {
		return exam.Attempt{}, err
	}
	return a, nil
}

func (repo *examRepository) GetAttempt(ctx context.Context, id string) (exam.Attempt, error) {
	if !validID(id) {
		return exam.Attempt{}, exam.ErrNotFound
	}
	var row examRow
	if err := repo.db.GetContext(ctx, &row, examSelect+` WHERE a.id = $1`, id); err != nil {
		return exam.Attempt{}, trapNoRows(err, exam.ErrNotFound, "getting exam attempt")
	}
	var details []detailRow
	q := `SELECT * FROM user_exam_attempt_details WHERE attempt_id = $1 ORDER BY idx`
	if err := repo.db.SelectContext(ctx, &details, q, id); err != nil {
		return exam.Attempt{}, errors.Wrap(err, "querying exam attempt details")
	}
	a := row.attempt()
	a.Details = make([]exam.Detail, 0, len(details))
	for _, d := range details {
		a.Details = append(a.Details, d.detail())
	}
	return a, nil
}

func (repo *examRepository) UpdateAttempt(ctx context.Context, a exam.Attempt) error {
	if !validID(a.ID) {
		return exam.ErrNotFound
	}
	q := `UPDATE user_exam_attempts SET completion_timestamp = $1, time_spent_seconds = $2 WHERE id = $3`
	res, err := repo.db.ExecContext(ctx, q, null.TimeFromPtr(a.CompletionTimestamp), a.TimeSpentSeconds, a.ID)
	if err != nil {
		return errors.Wrap(err, "updating exam attempt")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return exam.ErrNotFound
	}
	return nil
}

func (repo *examRepository) SaveDetail(ctx context.Context, d exam.Detail) (exam.Detail, error) {
	if !validID(d.AttemptID) {
		return exam.Detail{}, exam.ErrNotFound
	}
	if d.ID == "" {
		d.ID = newID()
		err := inTx(ctx, repo.db, func(tx *sqlx.Tx) error {
			q := `SELECT COALESCE(MAX(idx) + 1, 0) FROM user_exam_attempt_details WHERE attempt_id = $1`
			if err := tx.GetContext(ctx, &d.Idx, q, d.AttemptID); err != nil {
				return errors.Wrap(err, "numbering exam attempt detail")
			}
			_, err := tx.NamedExecContext(ctx, insertDetail, toDetailRow(d))
			return errors.Wrap(err, "inserting exam attempt detail")
		})
		if err != nil {
			return exam.Detail{}, err
		}
		return d, nil
	}

	q := `UPDATE user_exam_attempt_details SET user_answer = :user_answer, is_correct = :is_correct,
		is_skipped = :is_skipped, user_self_assessment = :user_self_assessment, assessed_at = :assessed_at,
		ai_feedback_what_was_correct = :ai_feedback_what_was_correct,
		ai_feedback_what_was_incorrect = :ai_feedback_what_was_incorrect,
		ai_feedback_what_to_include = :ai_feedback_what_to_include
		WHERE id = :id AND attempt_id = :attempt_id`
	res, err := repo.db.NamedExecContext(ctx, q, toDetailRow(d))
	if err != nil {
		return exam.Detail{}, errors.Wrap(err, "updating exam attempt detail")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return exam.Detail{}, exam.ErrNotFound
	}
	return d, nil
}

func (repo *examRepository) QueryAttempts(ctx context.Context, filter exam.QueryFilter) ([]exam.Attempt, int, error) {
	var w where
	if filter.UserID != "" {
		if !validID(filter.UserID) {
			return []exam.Attempt{}, 0, nil
		}
		w.add("a.user_id = ?", filter.UserID)
	}
	if filter.TopicID != "" {
		if !validID(filter.TopicID) {
			return []exam.Attempt{}, 0, nil
		}
		w.add("a.topic_id = ?", filter.TopicID)
	}
	if filter.CompletedOnly {
		w.add("a.completion_timestamp IS NOT NULL")
	}

	var total int
	if err := repo.db.GetContext(ctx, &total, `SELECT count(*) FROM user_exam_attempts a`+w.String(), w.args...); err != nil {
		return nil, 0, errors.Wrap(err, "counting exam attempts")
	}

	q := examSelect + w.String() + ` ORDER BY a.created_at DESC`
	if filter.Limit > 0 {
		q += ` LIMIT ` + w.next(filter.Limit)
	}
	if filter.Offset > 0 {
		q += ` OFFSET ` + w.next(filter.Offset)
	}
	var rows []examRow
	if err := repo.db.SelectContext(ctx, &rows, q, w.args...); err != nil {
		return nil, 0, errors.Wrap(err, "querying exam attempts")
	}
	attempts := make([]exam.Attempt, 0, len(rows))
	for _, row := range rows {
		attempts = append(attempts, row.attempt())
	}
	return attempts, total, nil
}

func (repo *examRepository) CountAttempts(ctx context.Context, userID, topicID string) (int, error) {
	if !validID(userID) || !validID(topicID) {
		return 0, nil
	}
	var count int
	q := `SELECT count(*) FROM user_exam_attempts WHERE user_id = $1 AND topic_id = $2`
	if err := repo.db.GetContext(ctx, &count, q, userID, topicID); err != nil {
		return 0, errors.Wrap(err, "counting exam attempts")
	}
	return count, nil
}

func (repo *examRepository) AssessedFlashcardIDs(ctx context.Context, userID, topicID string) ([]string, error) {
	ids := make([]string, 0)
	if !validID(userID) || !validID(topicID) {
		return ids, nil
	}
	q := `SELECT DISTINCT d.flashcard_id FROM user_exam_attempt_details d
		JOIN user_exam_attempts a ON a.id = d.attempt_id
		WHERE a.user_id = $1 AND a.topic_id = $2 AND d.assessed_at IS NOT NULL
		ORDER BY d.flashcard_id`
	if err := repo.db.SelectContext(ctx, &ids, q, userID, topicID); err != nil {
		return nil, errors.Wrap(err, "querying assessed flashcards")
	}
	return ids, nil
}

func (repo *examRepository) TimeByMonth(ctx context.Context, userID string, year int) (map[int]int, error) {
	q := `SELECT EXTRACT(MONTH FROM created_at AT TIME ZONE 'UTC')::int AS month,
		COALESCE(SUM(time_spent_seconds), 0)::int AS seconds
		FROM user_exam_attempts
		WHERE user_id = $1 AND completion_timestamp IS NOT NULL
		AND EXTRACT(YEAR FROM created_at AT TIME ZONE 'UTC') = $2
		GROUP BY 1`
	return monthlyTotals(ctx, repo.db, q, userID, year)
}

type sessionRow struct {
	ID               string    `db:"id"`
	UserID           string    `db:"user_id"`
	TopicID          string    `db:"topic_id"`
	Mode             string    `db:"mode"`
	StartTime        time.Time `db:"start_time"`
	EndTime          null.Time `db:"end_time"`
	TimeSpentSeconds int       `db:"time_spent_seconds"`
}

type sessionRepository struct {
	db *sqlx.DB
}

var _ session.Repository = (*sessionRepository)(nil) // interface compliance check

func NewSessionRepository(db *sqlx.DB) *sessionRepository {
	return &sessionRepository{db: db}
}

func (repo *sessionRepository) CreateSession(ctx context.Context, s session.Session) (session.Session, error) {
	s.ID = newID()
	q := `INSERT INTO flashcard_sessions (id, user_id, topic_id, mode, start_time, end_time, time_spent_seconds)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := repo.db.ExecContext(ctx, q, s.ID, s.UserID, s.TopicID, s.Mode, s.StartTime.UTC(),
		null.TimeFromPtr(s.EndTime), s.TimeSpentSeconds)
	if err != nil {
		return session.Session{}, errors.Wrap(err, "inserting flashcard session")
	}
	return s, nil
}

func (repo *sessionRepository) GetSession(ctx context.Context, id string) (session.Session, error) {
	if !validID(id) {
		return session.Session{}, session.ErrNotFound
	}
	var row sessionRow
	if err := repo.db.GetContext(ctx, &row, `SELECT * FROM flashcard_sessions WHERE id = $1`, id); err != nil {
		return session.Session{}, trapNoRows(err, session.ErrNotFound, "getting flashcard session")
	}
	return session.Session{
		ID:               row.ID,
		UserID:           row.UserID,
		TopicID:          row.TopicID,
		Mode:             row.Mode,
		StartTime:        row.StartTime.UTC(),
		EndTime:          utcPtr(row.EndTime),
		TimeSpentSeconds: row.TimeSpentSeconds,
	}, nil
}

func (repo *sessionRepository) UpdateSession(ctx context.Context, s session.Session) error {
	if !validID(s.ID) {
		return session.ErrNotFound
	}
	q := `UPDATE flashcard_sessions SET end_time = $1, time_spent_seconds = $2 WHERE id = $3`
	res, err := repo.db.ExecContext(ctx, q, null.TimeFromPtr(s.EndTime), s.TimeSpentSeconds, s.ID)
	if err != nil {
		return errors.Wrap(err, "updating flashcard session")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return session.ErrNotFound
	}
	return nil
}

func (repo *sessionRepository) TimeByMonth(ctx context.Context, userID string, year int) (map[int]map[string]int, error) {
	q := `SELECT EXTRACT(MONTH FROM start_time AT TIME ZONE 'UTC')::int AS month, mode,
		COALESCE(SUM(time_spent_seconds), 0)::int AS seconds
		FROM flashcard_sessions
		WHERE user_id = $1 AND EXTRACT(YEAR FROM start_time AT TIME ZONE 'UTC') = $2
		GROUP BY 1, 2`
	return monthlyModeTotals(ctx, repo.db, q, userID, year)
}
