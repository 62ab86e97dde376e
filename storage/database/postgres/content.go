package pgrepos

import (
	"context"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/elearning/core/question"
	"github.com/trezcool/elearning/core/test"
	"github.com/trezcool/elearning/core/topic"
)

type topicRow struct {
	ID          string    `db:"id"`
	Name        string    `db:"topic_name"`
	GradeLevel  string    `db:"grade_level"`
	Description string    `db:"description"`
	IsActive    bool      `db:"is_active"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

type topicRepository struct {
	db *sqlx.DB
}

var _ topic.Repository = (*topicRepository)(nil) // interface compliance check

func NewTopicRepository(db *sqlx.DB) *topicRepository {
	return &topicRepository{db: db}
}

func (repo *topicRepository) CheckNameUniqueness(ctx context.Context, name string, excluded ...topic.Topic) error {
	ids := make([]string, 0, len(excluded))
	for _, t := range excluded {
		ids = append(ids, t.ID)
	}

	var exists bool
	q := `SELECT EXISTS (SELECT 1 FROM topics WHERE lower(topic_name) = lower($1) AND NOT (id::text = ANY($2)))`
	if err := repo.db.GetContext(ctx, &exists, q, name, pq.StringArray(ids)); err != nil {
		return errors.Wrap(err, "checking topic name uniqueness")
	}
	if exists {
		return topic.ErrNameExists
	}
	return nil
}

func (repo *topicRepository) CreateTopic(ctx context.Context, t topic.Topic) (topic.Topic, error) {
	t.ID = newID()
	q := `INSERT INTO topics (id, topic_name, grade_level, description, is_active, created_at, updated_at)
		VALUES (:id, :topic_name, :grade_level, :description, :is_active, :created_at, :updated_at)`
	if _, err := repo.db.NamedExecContext(ctx, q, topicRow(t)); err != nil {
		return topic.Topic{}, errors.Wrap(err, "inserting topic")
	}
	return t, nil
}

func (repo *topicRepository) QueryTopics(ctx context.Context, filter topic.QueryFilter) ([]topic.Topic, error) {
	var w where
	if filter.ActiveOnly {
		w.add("is_active")
	}
	if filter.Search != "" {
		w.add("lower(topic_name) LIKE ?", "%"+strings.ToLower(filter.Search)+"%")
	}

	var rows []topicRow
	q := `SELECT * FROM topics` + w.String() + ` ORDER BY topic_name`
	if err := repo.db.SelectContext(ctx, &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying topics")
	}
	topics := make([]topic.Topic, 0, len(rows))
	for _, row := range rows {
		topics = append(topics, topic.Topic(row))
	}
	return topics, nil
}

func (repo *topicRepository) GetTopic(ctx context.Context, id string) (topic.Topic, error) {
	if !validID(id) {
		return topic.Topic{}, topic.ErrNotFound
	}
	var row topicRow
	if err := repo.db.GetContext(ctx, &row, `SELECT * FROM topics WHERE id = $1`, id); err != nil {
		return topic.Topic{}, trapNoRows(err, topic.ErrNotFound, "getting topic")
	}
	return topic.Topic(row), nil
}

func (repo *topicRepository) UpdateTopic(ctx context.Context, t topic.Topic) (topic.Topic, error) {
	q := `UPDATE topics SET topic_name = :topic_name, grade_level = :grade_level, description = :description,
		is_active = :is_active, updated_at = :updated_at WHERE id = :id`
	res, err := repo.db.NamedExecContext(ctx, q, topicRow(t))
	if err != nil {
		return topic.Topic{}, errors.Wrap(err, "updating topic")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return topic.Topic{}, topic.ErrNotFound
	}
	return t, nil
}

func (repo *topicRepository) DeleteTopic(ctx context.Context, id string) error {
	if !validID(id) {
		return nil
	}
	_, err := repo.db.ExecContext(ctx, `DELETE FROM topics WHERE id = $1`, id)
	return errors.Wrap(err, "deleting topic")
}

type questionRow struct {
	ID          string      `db:"id"`
	TopicID     null.String `db:"topic_id"`
	Content     string      `db:"content"`
	Type        string      `db:"question_type"`
	AnswerKey   string      `db:"answer_key"`
	Marks       float64     `db:"marks"`
	Explanation string      `db:"explanation"`
	Hint        string      `db:"hint"`
	ImageURL    string      `db:"image_url"`
	CreatedAt   time.Time   `db:"created_at"`
	UpdatedAt   time.Time   `db:"updated_at"`
}

type optionRow struct {
	ID         string `db:"id"`
	QuestionID string `db:"question_id"`
	Text       string `db:"option_text"`
	IsCorrect  bool   `db:"is_correct"`
	Idx        int    `db:"idx"`
}

type rubricRow struct {
	ID          string  `db:"id"`
	QuestionID  string  `db:"question_id"`
	Description string  `db:"description"`
	MaxScore    float64 `db:"max_score"`
	StepOrder   int     `db:"step_order"`
}

type questionRepository struct {
	db *sqlx.DB
}

var _ question.Repository = (*questionRepository)(nil) // interface compliance check

func NewQuestionRepository(db *sqlx.DB) *questionRepository {
	return &questionRepository{db: db}
}

// saveChildren syncs the options and rubric items of q, assigning missing IDs.
func (repo *questionRepository) saveChildren(ctx context.Context, tx *sqlx.Tx, q *question.Question) error {
	options := make([][]interface{}, 0, len(q.Options))
	for i := range q.Options {
		if !validID(q.Options[i].ID) {
			q.Options[i].ID = newID()
		}
		opt := q.Options[i]
		options = append(options, []interface{}{opt.ID, q.ID, opt.Text, opt.IsCorrect, i})
	}
	cols := []string{"id", "question_id", "option_text", "is_correct", "idx"}
	if err := syncChildren(ctx, tx, "question_options", cols, q.ID, options); err != nil {
		return err
	}

	rubric := make([][]interface{}, 0, len(q.Rubric))
	for i := range q.Rubric {
		if !validID(q.Rubric[i].ID) {
			q.Rubric[i].ID = newID()
		}
		item := q.Rubric[i]
		rubric = append(rubric, []interface{}{item.ID, q.ID, item.Description, item.MaxScore, item.StepOrder})
	}
	cols = []string{"id", "question_id", "description", "max_score", "step_order"}
	return syncChildren(ctx, tx, "rubric_items", cols, q.ID, rubric)
}

func toQuestionRow(q question.Question) questionRow {
	return questionRow{
		ID:          q.ID,
		TopicID:     nullID(q.TopicID),
		Content:     q.Content,
		Type:        q.Type,
		AnswerKey:   q.AnswerKey,
		Marks:       q.Marks,
		Explanation: q.Explanation,
		Hint:        q.Hint,
		ImageURL:    q.ImageURL,
		CreatedAt:   q.CreatedAt.UTC(),
		UpdatedAt:   q.UpdatedAt.UTC(),
	}
}

func (repo *questionRepository) CreateQuestion(ctx context.Context, q question.Question) (question.Question, error) {
	q.ID = newID()
	err := inTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		stmt := `INSERT INTO questions (id, topic_id, content, question_type, answer_key, marks, explanation, hint,
			image_url, created_at, updated_at) VALUES (:id, :topic_id, :content, :question_type, :answer_key, :marks,
			:explanation, :hint, :image_url, :created_at, :updated_at)`
		if _, err := tx.NamedExecContext(ctx, stmt, toQuestionRow(q)); err != nil {
			return errors.Wrap(err, "inserting question")
		}
		return repo.saveChildren(ctx, tx, &q)
	})
	if err != nil {
		return question.Question{}, err
	}
	return q, nil
}

func (repo *questionRepository) UpdateQuestion(ctx context.Context, q question.Question) (question.Question, error) {
	if !validID(q.ID) {
		return question.Question{}, question.ErrNotFound
	}
	err := inTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		stmt := `UPDATE questions SET topic_id = :topic_id, content = :content, question_type = :question_type,
			answer_key = :answer_key, marks = :marks, explanation = :explanation, hint = :hint,
			image_url = :image_url, updated_at = :updated_at WHERE id = :id`
		res, err := tx.NamedExecContext(ctx, stmt, toQuestionRow(q))
		if err != nil {
			return errors.Wrap(err, "updating question")
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return question.ErrNotFound
		}
		return repo.saveChildren(ctx, tx, &q)
	})
	if err != nil {
		return question.Question{}, err
	}
	return q, nil
}

func (repo *questionRepository) GetQuestion(ctx context.Context, id string) (question.Question, error) {
	questions, err := repo.GetQuestions(ctx, id)
	if err != nil {
		return question.Question{}, err
	}
	if len(questions) == 0 {
		return question.Question{}, question.ErrNotFound
	}
	return questions[0], nil
}

func (repo *questionRepository) GetQuestions(ctx context.Context, ids ...string) ([]question.Question, error) {
	if ids = validIDs(ids); len(ids) == 0 {
		return []question.Question{}, nil
	}
	var w where
	w.add("id = ANY(?::uuid[])", pq.StringArray(ids))
	return repo.query(ctx, w, "created_at, id")
}

func (repo *questionRepository) QueryQuestions(ctx context.Context, filter question.QueryFilter) ([]question.Question, error) {
	var w where
	if filter.TopicID != "" {
		if !validID(filter.TopicID) {
			return []question.Question{}, nil
		}
		w.add("topic_id = ?", filter.TopicID)
	}
	if filter.Type != "" {
		w.add("question_type = ?", filter.Type)
	}
	return repo.query(ctx, w, "created_at, id")
}

// query loads the questions matching w with their options and rubric items.
func (repo *questionRepository) query(ctx context.Context, w where, order string) ([]question.Question, error) {
	var rows []questionRow
	if err := repo.db.SelectContext(ctx, &rows, `SELECT * FROM questions`+w.String()+` ORDER BY `+order, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying questions")
	}
	if len(rows) == 0 {
		return []question.Question{}, nil
	}

	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	var options []optionRow
	q := `SELECT * FROM question_options WHERE question_id = ANY($1::uuid[]) ORDER BY idx`
	if err := repo.db.SelectContext(ctx, &options, q, pq.StringArray(ids)); err != nil {
		return nil, errors.Wrap(err, "querying question options")
	}
	var rubric []rubricRow
	q = `SELECT * FROM rubric_items WHERE question_id = ANY($1::uuid[]) ORDER BY step_order, id`
	if err := repo.db.SelectContext(ctx, &rubric, q, pq.StringArray(ids)); err != nil {
		return nil, errors.Wrap(err, "querying rubric items")
	}

	optionsByQ := make(map[string][]question.Option)
	for _, opt := range options {
		optionsByQ[opt.QuestionID] = append(optionsByQ[opt.QuestionID], question.Option{ID: opt.ID, Text: opt.Text, IsCorrect: opt.IsCorrect})
	}
	rubricByQ := make(map[string][]question.RubricItem)
	for _, item := range rubric {
		rubricByQ[item.QuestionID] = append(rubricByQ[item.QuestionID], question.RubricItem{
			ID:          item.ID,
			Description: item.Description,
			MaxScore:    item.MaxScore,
			StepOrder:   item.StepOrder,
		})
	}

	questions := make([]question.Question, 0, len(rows))
	for _, row := range rows {
		questions = append(questions, question.Question{
			ID:          row.ID,
			TopicID:     row.TopicID.String,
			Content:     row.Content,
			Type:        row.Type,
			Options:     optionsByQ[row.ID],
			AnswerKey:   row.AnswerKey,
			Marks:       row.Marks,
			Explanation: row.Explanation,
			Hint:        row.Hint,
			ImageURL:    row.ImageURL,
			Rubric:      rubricByQ[row.ID],
			CreatedAt:   row.CreatedAt.UTC(),
			UpdatedAt:   row.UpdatedAt.UTC(),
		})
	}
	return questions, nil
}

func (repo *questionRepository) DeleteQuestion(ctx context.Context, id string) error {
	if !validID(id) {
		return nil
	}
	_, err := repo.db.ExecContext(ctx, `DELETE FROM questions WHERE id = $1`, id)
	return errors.Wrap(err, "deleting question")
}

type testRow struct {
	ID               string      `db:"id"`
	Title            string      `db:"title"`
	TopicID          null.String `db:"topic_id"`
	GradeLevel       string      `db:"grade_level"`
	TestType         string      `db:"test_type"`
	TimeLimitMinutes int         `db:"time_limit_minutes"`
	Instructions     string      `db:"instructions"`
	DifficultyLevel  string      `db:"difficulty_level"`
	PassingScore     float64     `db:"passing_score"`
	IsActive         bool        `db:"is_active"`
	CreatedAt        time.Time   `db:"created_at"`
	UpdatedAt        time.Time   `db:"updated_at"`
}

type testItemRow struct {
	ID         string `db:"id"`
	TestID     string `db:"test_id"`
	QuestionID string `db:"question_id"`
	Idx        int    `db:"idx"`
}

func toTestRow(t test.Test) testRow {
	return testRow{
		ID:               t.ID,
		Title:            t.Title,
		TopicID:          nullID(t.TopicID),
		GradeLevel:       t.GradeLevel,
		TestType:         t.TestType,
		TimeLimitMinutes: t.TimeLimitMinutes,
		Instructions:     t.Instructions,
		DifficultyLevel:  t.DifficultyLevel,
		PassingScore:     t.PassingScore,
		IsActive:         t.IsActive,
		CreatedAt:        t.CreatedAt.UTC(),
		UpdatedAt:        t.UpdatedAt.UTC(),
	}
}

type testRepository struct {
	db *sqlx.DB
}

var _ test.Repository = (*testRepository)(nil) // interface compliance check

func NewTestRepository(db *sqlx.DB) *testRepository {
	return &testRepository{db: db}
}

func (repo *testRepository) saveItems(ctx context.Context, tx *sqlx.Tx, t *test.Test) error {
	items := make([][]interface{}, 0, len(t.Questions))
	for i := range t.Questions {
		if !validID(t.Questions[i].ID) {
			t.Questions[i].ID = newID()
		}
		item := t.Questions[i]
		items = append(items, []interface{}{item.ID, t.ID, item.QuestionID, item.Idx})
	}
	return syncChildren(ctx, tx, "test_question_items", []string{"id", "test_id", "question_id", "idx"}, t.ID, items)
}

func (repo *testRepository) CreateTest(ctx context.Context, t test.Test) (test.Test, error) {
	t.ID = newID()
	err := inTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		stmt := `INSERT INTO tests (id, title, topic_id, grade_level, test_type, time_limit_minutes, instructions,
			difficulty_level, passing_score, is_active, created_at, updated_at) VALUES (:id, :title, :topic_id,
			:grade_level, :test_type, :time_limit_minutes, :instructions, :difficulty_level, :passing_score,
			:is_active, :created_at, :updated_at)`
		if _, err := tx.NamedExecContext(ctx, stmt, toTestRow(t)); err != nil {
			return errors.Wrap(err, "inserting test")
		}
		return repo.saveItems(ctx, tx, &t)
	})
	if err != nil {
		return test.Test{}, err
	}
	return t, nil
}

func (repo *testRepository) UpdateTest(ctx context.Context, t test.Test) (test.Test, error) {
	if !validID(t.ID) {
		return test.Test{}, test.ErrNotFound
	}
	err := inTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		stmt := `UPDATE tests SET title = :title, topic_id = :topic_id, grade_level = :grade_level,
			test_type = :test_type, time_limit_minutes = :time_limit_minutes, instructions = :instructions,
			difficulty_level = :difficulty_level, passing_score = :passing_score, is_active = :is_active,
			updated_at = :updated_at WHERE id = :id`
		res, err := tx.NamedExecContext(ctx, stmt, toTestRow(t))
		if err != nil {
			return errors.Wrap(err, "updating test")
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return test.ErrNotFound
		}
		return repo.saveItems(ctx, tx, &t)
	})
	if err != nil {
		return test.Test{}, err
	}
	return t, nil
}

func (repo *testRepository) GetTest(ctx context.Context, id string) (test.Test, error) {
	if !validID(id) {
		return test.Test{}, test.ErrNotFound
	}
	var w where
	w.add("id = ?", id)
	tests, err := repo.query(ctx, w)
	if err != nil {
		return test.Test{}, err
	}
	if len(tests) == 0 {
		return test.Test{}, test.ErrNotFound
	}
	return tests[0], nil
}

func (repo *testRepository) QueryTests(ctx context.Context, filter test.QueryFilter) ([]test.Test, error) {
	var w where
	if filter.ActiveOnly {
		w.add("is_active")
	}
	if filter.TopicID != "" {
		if !validID(filter.TopicID) {
			return []test.Test{}, nil
		}
		w.add("topic_id = ?", filter.TopicID)
	}
	if filter.GradeLevel != "" {
		w.add("grade_level = ?", filter.GradeLevel)
	}
	if filter.TestType != "" {
		w.add("test_type = ?", filter.TestType)
	}
	return repo.query(ctx, w)
}

func (repo *testRepository) query(ctx context.Context, w where) ([]test.Test, error) {
	var rows []testRow
	if err := repo.db.SelectContext(ctx, &rows, `SELECT * FROM tests`+w.String()+` ORDER BY title`, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying tests")
	}
	if len(rows) == 0 {
		return []test.Test{}, nil
	}

	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	var items []testItemRow
	q := `SELECT * FROM test_question_items WHERE test_id = ANY($1::uuid[]) ORDER BY idx`
	if err := repo.db.SelectContext(ctx, &items, q, pq.StringArray(ids)); err != nil {
		return nil, errors.Wrap(err, "querying test question items")
	}
	itemsByTest := make(map[string][]test.QuestionItem)
	for _, item := range items {
		itemsByTest[item.TestID] = append(itemsByTest[item.TestID], test.QuestionItem{
			ID:         item.ID,
			QuestionID: item.QuestionID,
			Idx:        item.Idx,
		})
	}

	tests := make([]test.Test, 0, len(rows))
	for _, row := range rows {
		tests = append(tests, test.Test{
			ID:               row.ID,
			Title:            row.Title,
			TopicID:          row.TopicID.String,
			GradeLevel:       row.GradeLevel,
			TestType:         row.TestType,
			TimeLimitMinutes: row.TimeLimitMinutes,
			Instructions:     row.Instructions,
			DifficultyLevel:  row.DifficultyLevel,
			PassingScore:     row.PassingScore,
			IsActive:         row.IsActive,
			Questions:        itemsByTest[row.ID],
			CreatedAt:        row.CreatedAt.UTC(),
			UpdatedAt:        row.UpdatedAt.UTC(),
		})
	}
	return tests, nil
}

func (repo *testRepository) DeleteTest(ctx context.Context, id string) error {
	if !validID(id) {
		return nil
	}
	_, err := repo.db.ExecContext(ctx, `DELETE FROM tests WHERE id = $1`, id)
	return errors.Wrap(err, "deleting test")
}
