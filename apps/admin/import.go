package main

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/trezcool/elearning/core/flashcard"
	"github.com/trezcool/elearning/core/question"
	"github.com/trezcool/elearning/core/test"
	"github.com/trezcool/elearning/core/topic"
)

type (
	// ImportCmd loads content from a YAML document. Topics are matched by name and reused.
	ImportCmd struct {
		File   string `arg:"" type:"existingfile" help:"path to the YAML content file"`
		DryRun bool   `name:"dry-run" help:"parse and validate the file without saving anything"`
	}

	contentFile struct {
		Topics []topicDoc `yaml:"topics"`
	}

	topicDoc struct {
		Name        string         `yaml:"name"`
		GradeLevel  string         `yaml:"grade_level"`
		Description string         `yaml:"description"`
		Inactive    bool           `yaml:"inactive"`
		Questions   []questionDoc  `yaml:"questions"`
		Tests       []testDoc      `yaml:"tests"`
		Flashcards  []flashcardDoc `yaml:"flashcards"`
	}

	questionDoc struct {
		Key         string      `yaml:"key"` // referenced by tests
		Content     string      `yaml:"content"`
		Type        string      `yaml:"type"`
		Marks       float64     `yaml:"marks"`
		AnswerKey   string      `yaml:"answer_key"`
		Explanation string      `yaml:"explanation"`
		Hint        string      `yaml:"hint"`
		Image       string      `yaml:"image"`
		Options     []optionDoc `yaml:"options"`
		Rubric      []rubricDoc `yaml:"rubric"`
	}

	optionDoc struct {
		Text    string `yaml:"text"`
		Correct bool   `yaml:"correct"`
	}

	rubricDoc struct {
		Description string  `yaml:"description"`
		MaxScore    float64 `yaml:"max_score"`
	}

	testDoc struct {
		Title            string   `yaml:"title"`
		GradeLevel       string   `yaml:"grade_level"`
		TestType         string   `yaml:"test_type"`
		DifficultyLevel  string   `yaml:"difficulty_level"`
		Instructions     string   `yaml:"instructions"`
		TimeLimitMinutes int      `yaml:"time_limit_minutes"`
		PassingScore     float64  `yaml:"passing_score"`
		Inactive         bool     `yaml:"inactive"`
		Questions        []string `yaml:"questions"` // question keys, in order
	}

	flashcardDoc struct {
		Type        string   `yaml:"type"`
		Question    string   `yaml:"question"`
		Answer      string   `yaml:"answer"`
		Explanation string   `yaml:"explanation"`
		Hint        string   `yaml:"hint"`
		Steps       []string `yaml:"steps"` // in the correct order
	}

	importStats struct {
		Topics, Questions, Tests, Flashcards int
	}
)

func parseContent(raw []byte) (contentFile, error) {
	var cf contentFile
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cf); err != nil {
		return contentFile{}, errors.Wrap(err, "decoding content file")
	}
	if len(cf.Topics) == 0 {
		return contentFile{}, errors.New("content file has no topics")
	}
	return cf, nil
}

func (qd questionDoc) newQuestion(topicID string) question.NewQuestion {
	nq := question.NewQuestion{
		TopicID:     topicID,
		Content:     qd.Content,
		Type:        qd.Type,
		AnswerKey:   qd.AnswerKey,
		Marks:       qd.Marks,
		Explanation: qd.Explanation,
		Hint:        qd.Hint,
		ImageURL:    qd.Image,
	}
	for _, o := range qd.Options {
		nq.Options = append(nq.Options, question.Option{Text: o.Text, IsCorrect: o.Correct})
	}
	for i, r := range qd.Rubric {
		nq.Rubric = append(nq.Rubric, question.RubricItem{Description: r.Description, MaxScore: r.MaxScore, StepOrder: i + 1})
	}
	return nq
}

func (fd flashcardDoc) newFlashcard(topicID string) flashcard.NewFlashcard {
	nf := flashcard.NewFlashcard{
		TopicID:     topicID,
		Type:        fd.Type,
		Question:    fd.Question,
		Answer:      fd.Answer,
		Explanation: fd.Explanation,
		Hint:        fd.Hint,
	}
	for i, step := range fd.Steps {
		nf.OrderingSteps = append(nf.OrderingSteps, flashcard.OrderingStep{Content: step, CorrectOrder: i + 1})
	}
	return nf
}

func (td testDoc) newTest(topicID string, questionIDs map[string]string) (test.NewTest, error) {
	active := !td.Inactive
	nt := test.NewTest{
		Title:            td.Title,
		TopicID:          topicID,
		GradeLevel:       td.GradeLevel,
		TestType:         td.TestType,
		TimeLimitMinutes: td.TimeLimitMinutes,
		Instructions:     td.Instructions,
		DifficultyLevel:  td.DifficultyLevel,
		PassingScore:     td.PassingScore,
		IsActive:         &active,
	}
	for i, key := range td.Questions {
		id, ok := questionIDs[key]
		if !ok {
			return test.NewTest{}, fmt.Errorf("test %q: unknown question key %q", td.Title, key)
		}
		nt.Questions = append(nt.Questions, test.NewQuestionItem{QuestionID: id, Idx: i})
	}
	return nt, nil
}

// validate checks every document of cf before anything is written.
func (c *ImportCmd) validate(deps *Dependencies, cf contentFile) error {
	for _, td := range cf.Topics {
		active := !td.Inactive
		nt := topic.NewTopic{Name: td.Name, GradeLevel: td.GradeLevel, Description: td.Description, IsActive: &active}
		if err := nt.Validate(deps.Validate); err != nil {
			return errors.Wrapf(err, "topic %q", td.Name)
		}

		keys := make(map[string]string, len(td.Questions))
		for i, qd := range td.Questions {
			nq := qd.newQuestion("")
			if err := nq.Validate(deps.Validate); err != nil {
				return errors.Wrapf(err, "topic %q: question %d", td.Name, i+1)
			}
			if qd.Key != "" {
				if _, dup := keys[qd.Key]; dup {
					return fmt.Errorf("topic %q: duplicate question key %q", td.Name, qd.Key)
				}
				keys[qd.Key] = qd.Key
			}
		}
		for _, tsd := range td.Tests {
			nt, err := tsd.newTest("", keys)
			if err != nil {
				return errors.Wrapf(err, "topic %q", td.Name)
			}
			if err := nt.Validate(deps.Validate); err != nil {
				return errors.Wrapf(err, "topic %q: test %q", td.Name, tsd.Title)
			}
		}
		for i, fd := range td.Flashcards {
			nf := fd.newFlashcard("-")
			if err := nf.Validate(deps.Validate); err != nil {
				return errors.Wrapf(err, "topic %q: flashcard %d", td.Name, i+1)
			}
		}
	}
	return nil
}

func (c *ImportCmd) findTopic(deps *Dependencies, name string) (topic.Topic, bool, error) {
	topics, err := deps.Topics.Query(deps.Ctx, topic.QueryFilter{})
	if err != nil {
		return topic.Topic{}, false, err
	}
	for _, t := range topics {
		if strings.EqualFold(t.Name, strings.TrimSpace(name)) {
			return t, true, nil
		}
	}
	return topic.Topic{}, false, nil
}

func (c *ImportCmd) importTopic(deps *Dependencies, td topicDoc, stats *importStats) error {
	t, found, err := c.findTopic(deps, td.Name)
	if err != nil {
		return err
	}
	if !found {
		active := !td.Inactive
		if t, err = deps.Topics.Create(deps.Ctx, topic.NewTopic{
			Name:        td.Name,
			GradeLevel:  td.GradeLevel,
			Description: td.Description,
			IsActive:    &active,
		}); err != nil {
			return errors.Wrapf(err, "creating topic %q", td.Name)
		}
		stats.Topics++
	}

	questionIDs := make(map[string]string, len(td.Questions))
	for _, qd := range td.Questions {
		q, err := deps.Questions.Create(deps.Ctx, qd.newQuestion(t.ID))
		if err != nil {
			return errors.Wrapf(err, "creating question %q", qd.Content)
		}
		if qd.Key != "" {
			questionIDs[qd.Key] = q.ID
		}
		stats.Questions++
	}
	for _, tsd := range td.Tests {
		nt, err := tsd.newTest(t.ID, questionIDs)
		if err != nil {
			return err
		}
		if _, err := deps.Tests.Create(deps.Ctx, nt); err != nil {
			return errors.Wrapf(err, "creating test %q", tsd.Title)
		}
		stats.Tests++
	}
	for _, fd := range td.Flashcards {
		if _, err := deps.Flashcards.Create(deps.Ctx, fd.newFlashcard(t.ID)); err != nil {
			return errors.Wrapf(err, "creating flashcard %q", fd.Question)
		}
		stats.Flashcards++
	}
	return nil
}

func (c *ImportCmd) Run(deps *Dependencies) error {
	raw, err := os.ReadFile(c.File)
	if err != nil {
		return errors.Wrap(err, "reading content file")
	}
	cf, err := parseContent(raw)
	if err != nil {
		return err
	}
	if err := c.validate(deps, cf); err != nil {
		return err
	}
	if c.DryRun {
		fmt.Fprintf(deps.Stdout, "%s is valid: %d topic(s)\n", c.File, len(cf.Topics))
		return nil
	}

	var stats importStats
	for _, td := range cf.Topics {
		if err := c.importTopic(deps, td, &stats); err != nil {
			return err
		}
	}
	fmt.Fprintf(deps.Stdout, "imported %d topic(s), %d question(s), %d test(s), %d flashcard(s)\n",
		stats.Topics, stats.Questions, stats.Tests, stats.Flashcards)
	return nil
}
