package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/elearning/core"
	"github.com/trezcool/elearning/core/session"
	"github.com/trezcool/elearning/core/topic"
	"github.com/trezcool/elearning/core/user"
	inmemdb "github.com/trezcool/elearning/storage/database/inmem"
)

func TestService(t *testing.T) {
	ctx := context.Background()
	db := inmemdb.Open()
	topicRepo := inmemdb.NewTopicRepository(db)
	svc := session.NewService(inmemdb.NewSessionRepository(db), topicRepo)

	algebra, err := topic.NewService(topicRepo).Create(ctx, topic.NewTopic{Name: "Algebra"})
	require.NoError(t, err)
	ann := user.User{ID: "ann"}
	bob := user.User{ID: "bob"}

	_, err = svc.Start(ctx, ann, session.NewSession{TopicID: "nope"})
	assert.True(t, core.IsNotFound(err))

	basic, err := svc.Start(ctx, ann, session.NewSession{TopicID: algebra.ID})
	require.NoError(t, err)
	assert.Equal(t, session.ModeBasic, basic.Mode, "mode defaults to Basic")

	srsSess, err := svc.Start(ctx, ann, session.NewSession{TopicID: algebra.ID, Mode: session.ModeSRS})
	require.NoError(t, err)
	examSess, err := svc.Start(ctx, ann, session.NewSession{TopicID: algebra.ID, Mode: session.ModeExam})
	require.NoError(t, err)

	tests := []struct {
		name    string
		usr     user.User
		id      string
		seconds int
		check   func(error) bool
	}{
		{name: "negative", usr: ann, id: basic.ID, seconds: -1, check: func(err error) bool {
			_, ok := err.(*core.ValidationError)
			return ok
		}},
		{name: "not owner", usr: bob, id: basic.ID, seconds: 5, check: core.IsPermissionDenied},
		{name: "unknown", usr: ann, id: "nope", seconds: 5, check: core.IsNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.AddTime(ctx, tt.usr, tt.id, tt.seconds)
			require.Error(t, err)
			assert.True(t, tt.check(err), err.Error())
		})
	}

	require.NoError(t, svc.AddTime(ctx, ann, basic.ID, 30))
	require.NoError(t, svc.AddTime(ctx, ann, basic.ID, 10))
	require.NoError(t, svc.AddTime(ctx, ann, srsSess.ID, 90))
	require.NoError(t, svc.AddTime(ctx, ann, examSess.ID, 45))
	assert.True(t, core.IsPermissionDenied(svc.End(ctx, bob, basic.ID)))
	require.NoError(t, svc.End(ctx, ann, basic.ID))

	now := time.Now().UTC()
	report, err := svc.TimeByMonth(ctx, ann, now.Year())
	require.NoError(t, err)
	require.Len(t, report, 12)
	month := report[int(now.Month())-1]
	assert.Equal(t, int(now.Month()), month.Month)
	assert.Equal(t, 40, month.BasicTime)
	assert.Equal(t, 90, month.SRSTime)
	assert.Equal(t, 45, month.ExamTime)
	assert.Equal(t, 130, month.StudyTime)
	assert.Equal(t, 45, month.TestTime)

	report, err = svc.TimeByMonth(ctx, bob, now.Year())
	require.NoError(t, err)
	for _, m := range report {
		assert.Zero(t, m.StudyTime+m.TestTime)
	}
}
