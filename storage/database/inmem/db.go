package inmemdb

import (
	"sync"

	"github.com/google/uuid"

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
)

// DB is an in-memory database shared by the repositories of this package.
// Records are stored by value so callers never alias stored state.
type DB struct {
	mutex sync.RWMutex

	users      map[string]user.User
	tokens     map[string]user.VerificationToken
	topics     map[string]topic.Topic
	questions  map[string]question.Question
	tests      map[string]test.Test
	files      map[string]file.File
	attempts   map[string]attempt.Attempt
	flashcards map[string]flashcard.Flashcard
	settings   map[settingsKey]flashcard.Settings
	progress   map[string]srs.Progress
	exams      map[string]exam.Attempt
	sessions   map[string]session.Session
}

type settingsKey struct {
	userID, topicID string
}

func Open() *DB {
	return &DB{
		users:      make(map[string]user.User),
		tokens:     make(map[string]user.VerificationToken),
		topics:     make(map[string]topic.Topic),
		questions:  make(map[string]question.Question),
		tests:      make(map[string]test.Test),
		files:      make(map[string]file.File),
		attempts:   make(map[string]attempt.Attempt),
		flashcards: make(map[string]flashcard.Flashcard),
		settings:   make(map[settingsKey]flashcard.Settings),
		progress:   make(map[string]srs.Progress),
		exams:      make(map[string]exam.Attempt),
		sessions:   make(map[string]session.Session),
	}
}

func newID() string {
	return uuid.New().String()
}

func contains(values []string, v string) bool {
	for _, val := range values {
		if val == v {
			return true
		}
	}
	return false
}
