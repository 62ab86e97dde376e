package pgrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/elearning/core/flashcard"
	"github.com/trezcool/elearning/core/srs"
)

type flashcardRow struct {
	ID          string    `db:"id"`
	TopicID     string    `db:"topic_id"`
	Type        string    `db:"flashcard_type"`
	Question    string    `db:"question"`
	Answer      string    `db:"answer"`
	Explanation string    `db:"explanation"`
	Hint        string    `db:"hint"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

type stepRow struct {
	ID           string `db:"id"`
	FlashcardID  string `db:"flashcard_id"`
	Content      string `db:"step_content"`
	CorrectOrder int    `db:"correct_order"`
}

func toFlashcardRow(fc flashcard.Flashcard) flashcardRow {
	return flashcardRow{
		ID:          fc.ID,
		TopicID:     fc.TopicID,
		Type:        fc.Type,
		Question:    fc.Question,
		Answer:      fc.Answer,
		Explanation: fc.Explanation,
		Hint:        fc.Hint,
		CreatedAt:   fc.CreatedAt.UTC(),
		UpdatedAt:   fc.UpdatedAt.UTC(),
	}
}

type flashcardRepository struct {
	db *sqlx.DB
}

var _ flashcard.Repository = (*flashcardRepository)(nil) // interface compliance check

func NewFlashcardRepository(db *sqlx.DB) *flashcardRepository {
	return &flashcardRepository{db: db}
}

func (repo *flashcardRepository) saveSteps(ctx context.Context, tx *sqlx.Tx, fc flashcard.Flashcard) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM flashcard_ordering_steps WHERE flashcard_id = $1`, fc.ID); err != nil {
		return errors.Wrap(err, "deleting ordering steps")
	}
	steps := make([][]interface{}, 0, len(fc.OrderingSteps))
	for _, step := range fc.OrderingSteps {
		steps = append(steps, []interface{}{newID(), fc.ID, step.Content, step.CorrectOrder})
	}
	cols := []string{"id", "flashcard_id", "step_content", "correct_order"}
	return bulkInsert(ctx, tx, "flashcard_ordering_steps", cols, steps)
}

func (repo *flashcardRepository) CreateFlashcard(ctx context.Context, fc flashcard.Flashcard) (flashcard.Flashcard, error) {
	if !validID(fc.TopicID) {
		return flashcard.Flashcard{}, errors.New("invalid topic id")
	}
	fc.ID = newID()
	err := inTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		q := `INSERT INTO flashcards (id, topic_id, flashcard_type, question, answer, explanation, hint, created_at,
			updated_at) VALUES (:id, :topic_id, :flashcard_type, :question, :answer, :explanation, :hint, :created_at,
			:updated_at)`
		if _, err := tx.NamedExecContext(ctx, q, toFlashcardRow(fc)); err != nil {
			return errors.Wrap(err, "inserting flashcard")
		}
		return repo.saveSteps(ctx, tx, fc)
	})
	if err != nil {
		return flashcard.Flashcard{}, err
	}
	return fc, nil
}

func (repo *flashcardRepository) UpdateFlashcard(ctx context.Context, fc flashcard.Flashcard) (flashcard.Flashcard, error) {
	if !validID(fc.ID) {
		return flashcard.Flashcard{}, flashcard.ErrNotFound
	}
	err := inTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		q := `UPDATE flashcards SET topic_id = :topic_id, flashcard_type = :flashcard_type, question = :question,
			answer = :answer, explanation = :explanation, hint = :hint, updated_at = :updated_at WHERE id = :id`
		res, err := tx.NamedExecContext(ctx, q, toFlashcardRow(fc))
		if err != nil {
			return errors.Wrap(err, "updating flashcard")
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return flashcard.ErrNotFound
		}
		return repo.saveSteps(ctx, tx, fc)
	})
	if err != nil {
		return flashcard.Flashcard{}, err
	}
	return fc, nil
}

func (repo *flashcardRepository) GetFlashcard(ctx context.Context, id string) (flashcard.Flashcard, error) {
	if !validID(id) {
		return flashcard.Flashcard{}, flashcard.ErrNotFound
	}
	cards, err := repo.QueryFlashcards(ctx, flashcard.QueryFilter{IDs: []string{id}})
	if err != nil {
		return flashcard.Flashcard{}, err
	}
	if len(cards) == 0 {
		return flashcard.Flashcard{}, flashcard.ErrNotFound
	}
	return cards[0], nil
}

func (repo *flashcardRepository) QueryFlashcards(ctx context.Context, filter flashcard.QueryFilter) ([]flashcard.Flashcard, error) {
	var w where
	if filter.TopicID != "" {
		if !validID(filter.TopicID) {
			return []flashcard.Flashcard{}, nil
		}
		w.add("topic_id = ?", filter.TopicID)
	}
	if filter.Type != "" {
		w.add("flashcard_type = ?", filter.Type)
	}
	if filter.IDs != nil {
		w.add("id = ANY(?::uuid[])", pq.StringArray(validIDs(filter.IDs)))
	}

	var rows []flashcardRow
	if err := repo.db.SelectContext(ctx, &rows, `SELECT * FROM flashcards`+w.String()+` ORDER BY id`, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying flashcards")
	}
	if len(rows) == 0 {
		return []flashcard.Flashcard{}, nil
	}

	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	var steps []stepRow
	q := `SELECT * FROM flashcard_ordering_steps WHERE flashcard_id = ANY($1::uuid[]) ORDER BY correct_order, id`
	if err := repo.db.SelectContext(ctx, &steps, q, pq.StringArray(ids)); err != nil {
		return nil, errors.Wrap(err, "querying ordering steps")
	}
	stepsByCard := make(map[string][]flashcard.OrderingStep)
	for _, step := range steps {
		stepsByCard[step.FlashcardID] = append(stepsByCard[step.FlashcardID], flashcard.OrderingStep{
			Content:      step.Content,
			CorrectOrder: step.CorrectOrder,
		})
	}

	cards := make([]flashcard.Flashcard, 0, len(rows))
	for _, row := range rows {
		cards = append(cards, flashcard.Flashcard{
			ID:            row.ID,
			TopicID:       row.TopicID,
			Type:          row.Type,
			Question:      row.Question,
			Answer:        row.Answer,
			Explanation:   row.Explanation,
			Hint:          row.Hint,
			OrderingSteps: stepsByCard[row.ID],
			CreatedAt:     row.CreatedAt.UTC(),
			UpdatedAt:     row.UpdatedAt.UTC(),
		})
	}
	return cards, nil
}

func (repo *flashcardRepository) DeleteFlashcard(ctx context.Context, id string) error {
	if !validID(id) {
		return nil
	}
	_, err := repo.db.ExecContext(ctx, `DELETE FROM flashcards WHERE id = $1`, id)
	return errors.Wrap(err, "deleting flashcard")
}

type settingsRow struct {
	ArrangeMode string `db:"flashcard_arrange_mode"`
	Direction   string `db:"flashcard_direction"`
	TypeFilter  string `db:"study_exam_flashcard_type_filter"`
}

func (repo *flashcardRepository) GetSettings(ctx context.Context, userID, topicID string) (flashcard.Settings, error) {
	if !validID(userID) || !validID(topicID) {
		return flashcard.Settings{}, flashcard.ErrSettingsNotFound
	}
	var row settingsRow
	q := `SELECT flashcard_arrange_mode, flashcard_direction, study_exam_flashcard_type_filter
		FROM user_flashcard_settings WHERE user_id = $1 AND topic_id = $2`
	if err := repo.db.GetContext(ctx, &row, q, userID, topicID); err != nil {
		return flashcard.Settings{}, trapNoRows(err, flashcard.ErrSettingsNotFound, "getting flashcard settings")
	}
	return flashcard.Settings(row), nil
}

func (repo *flashcardRepository) SaveSettings(ctx context.Context, userID, topicID string, s flashcard.Settings) (flashcard.Settings, error) {
	q := `INSERT INTO user_flashcard_settings (user_id, topic_id, flashcard_arrange_mode, flashcard_direction,
		study_exam_flashcard_type_filter) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, topic_id) DO UPDATE SET flashcard_arrange_mode = EXCLUDED.flashcard_arrange_mode,
		flashcard_direction = EXCLUDED.flashcard_direction,
		study_exam_flashcard_type_filter = EXCLUDED.study_exam_flashcard_type_filter`
	if _, err := repo.db.ExecContext(ctx, q, userID, topicID, s.ArrangeMode, s.Direction, s.TypeFilter); err != nil {
		return flashcard.Settings{}, errors.Wrap(err, "saving flashcard settings")
	}
	return s, nil
}

type progressRow struct {
	ID                    string    `db:"id"`
	UserID                string    `db:"user_id"`
	FlashcardID           string    `db:"flashcard_id"`
	Status                string    `db:"status"`
	IntervalDays          float64   `db:"interval_days"`
	EaseFactor            float64   `db:"ease_factor"`
	Repetitions           int       `db:"repetitions"`
	LearningStep          int       `db:"learning_step"`
	LastReview            time.Time `db:"last_review_timestamp"`
	NextReview            time.Time `db:"next_review_timestamp"`
	TotalTimeSpentSeconds int       `db:"total_time_spent_seconds"`
}

func (row progressRow) progress() srs.Progress {
	p := srs.Progress(row)
	p.LastReview, p.NextReview = row.LastReview.UTC(), row.NextReview.UTC()
	return p
}

type srsRepository struct {
	db *sqlx.DB
}

var _ srs.Repository = (*srsRepository)(nil) // interface compliance check

func NewSRSRepository(db *sqlx.DB) *srsRepository {
	return &srsRepository{db: db}
}

func (repo *srsRepository) GetProgress(ctx context.Context, userID, flashcardID string) (srs.Progress, error) {
	if !validID(userID) || !validID(flashcardID) {
		return srs.Progress{}, srs.ErrNotFound
	}
	var row progressRow
	q := `SELECT * FROM user_srs_progress WHERE user_id = $1 AND flashcard_id = $2`
	if err := repo.db.GetContext(ctx, &row, q, userID, flashcardID); err != nil {
		return srs.Progress{}, trapNoRows(err, srs.ErrNotFound, "getting srs progress")
	}
	return row.progress(), nil
}

func (repo *srsRepository) SaveProgress(ctx context.Context, p srs.Progress) (srs.Progress, error) {
	if !validID(p.ID) {
		p.ID = newID()
	}
	row := progressRow(p)
	row.LastReview, row.NextReview = p.LastReview.UTC(), p.NextReview.UTC()

	var id string
	q := `INSERT INTO user_srs_progress (id, user_id, flashcard_id, status, interval_days, ease_factor, repetitions,
		learning_step, last_review_timestamp, next_review_timestamp, total_time_spent_seconds)
		VALUES (:id, :user_id, :flashcard_id, :status, :interval_days, :ease_factor, :repetitions, :learning_step,
		:last_review_timestamp, :next_review_timestamp, :total_time_spent_seconds)
		ON CONFLICT (user_id, flashcard_id) DO UPDATE SET status = EXCLUDED.status,
		interval_days = EXCLUDED.interval_days, ease_factor = EXCLUDED.ease_factor,
		repetitions = EXCLUDED.repetitions, learning_step = EXCLUDED.learning_step,
		last_review_timestamp = EXCLUDED.last_review_timestamp, next_review_timestamp = EXCLUDED.next_review_timestamp,
		total_time_spent_seconds = EXCLUDED.total_time_spent_seconds
		RETURNING id`
	stmt, err := repo.db.PrepareNamedContext(ctx, q)
	if err != nil {
		return srs.Progress{}, errors.Wrap(err, "preparing srs progress upsert")
	}
	defer func() { _ = stmt.Close() }()
	if err = stmt.GetContext(ctx, &id, row); err != nil {
		return srs.Progress{}, errors.Wrap(err, "saving srs progress")
	}
	p.ID = id
	return p, nil
}

func (repo *srsRepository) QueryProgress(ctx context.Context, filter srs.QueryFilter) ([]srs.Progress, error) {
	var w where
	if filter.UserID != "" {
		if !validID(filter.UserID) {
			return []srs.Progress{}, nil
		}
		w.add("user_id = ?", filter.UserID)
	}
	if filter.FlashcardIDs != nil {
		w.add("flashcard_id = ANY(?::uuid[])", pq.StringArray(validIDs(filter.FlashcardIDs)))
	}
	if filter.NextReviewBefore != nil {
		w.add("next_review_timestamp <= ?", filter.NextReviewBefore.UTC())
	}

	var rows []progressRow
	q := `SELECT * FROM user_srs_progress` + w.String() + ` ORDER BY next_review_timestamp`
	if err := repo.db.SelectContext(ctx, &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying srs progress")
	}
	progress := make([]srs.Progress, 0, len(rows))
	for _, row := range rows {
		progress = append(progress, row.progress())
	}
	return progress, nil
}

func (repo *srsRepository) DeleteProgress(ctx context.Context, userID string, flashcardIDs ...string) (int, error) {
	if !validID(userID) {
		return 0, nil
	}
	q := `DELETE FROM user_srs_progress WHERE user_id = $1 AND flashcard_id = ANY($2::uuid[])`
	res, err := repo.db.ExecContext(ctx, q, userID, pq.StringArray(validIDs(flashcardIDs)))
	if err != nil {
		return 0, errors.Wrap(err, "deleting srs progress")
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (repo *srsRepository) TimeByMonth(ctx context.Context, userID string, year int) (map[int]int, error) {
	q := `SELECT EXTRACT(MONTH FROM last_review_timestamp AT TIME ZONE 'UTC')::int AS month,
		COALESCE(SUM(total_time_spent_seconds), 0)::int AS seconds
		FROM user_srs_progress
		WHERE user_id = $1 AND EXTRACT(YEAR FROM last_review_timestamp AT TIME ZONE 'UTC') = $2
		GROUP BY 1`
	return monthlyTotals(ctx, repo.db, q, userID, year)
}
