package jobsvc

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/elearning/testutil"
)

type fakeSweeper struct {
	grace chan time.Duration
}

func (s *fakeSweeper) TimeOutStale(_ context.Context, grace time.Duration) (int, error) {
	select {
	case s.grace <- grace:
	default:
	}
	return 1, nil
}

type fakePurger struct{ err error }

func (p *fakePurger) PurgeExpiredTokens(context.Context) (int, error) { return 0, p.err }

type fakeObserver struct {
	mu   sync.Mutex
	runs map[string][]error
}

func (o *fakeObserver) ObserveJobRun(job string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.runs == nil {
		o.runs = make(map[string][]error)
	}
	o.runs[job] = append(o.runs[job], err)
}

func TestNewScheduler(t *testing.T) {
	t.Run("disabled jobs", func(t *testing.T) {
		conf := testutil.NewConfig()
		conf.Jobs.TokenPurgeInterval = time.Hour

		s, err := NewScheduler(conf, &fakeSweeper{}, &fakePurger{}, testutil.NewLogger(), nil)
		require.NoError(t, err)
		assert.Equal(t, []string{JobTokenPurge}, s.JobNames())
		require.NoError(t, s.Shutdown())
	})

	t.Run("runs attempt sweeps", func(t *testing.T) {
		conf := testutil.NewConfig()
		conf.Jobs.AttemptSweepInterval = 20 * time.Millisecond
		conf.Jobs.AttemptGracePeriod = 7 * time.Minute
		sweeper := &fakeSweeper{grace: make(chan time.Duration, 1)}

		s, err := NewScheduler(conf, sweeper, &fakePurger{}, testutil.NewLogger(), nil)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{JobAttemptTimeout}, s.JobNames())
		s.Start()
		defer func() { _ = s.Shutdown() }()

		select {
		case grace := <-sweeper.grace:
			assert.Equal(t, 7*time.Minute, grace)
		case <-time.After(2 * time.Second):
			t.Fatal("attempt sweep did not run")
		}
	})
}

func TestScheduler_run(t *testing.T) {
	obs := &fakeObserver{}
	s := &Scheduler{log: testutil.NewLogger(), obs: obs}
	boom := errors.New("boom")

	s.run(context.Background(), JobTokenPurge, (&fakePurger{}).PurgeExpiredTokens)
	s.run(context.Background(), JobTokenPurge, (&fakePurger{err: boom}).PurgeExpiredTokens)

	assert.Equal(t, []error{nil, boom}, obs.runs[JobTokenPurge])
}
