package jobsvc

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/pkg/errors"

	"github.com/trezcool/elearning/core"
)

// job names
const (
	JobAttemptTimeout = "attempts.timeout"
	JobTokenPurge     = "tokens.purge"
)

type (
	AttemptSweeper interface {
		TimeOutStale(ctx context.Context, grace time.Duration) (int, error)
	}

	TokenPurger interface {
		PurgeExpiredTokens(ctx context.Context) (int, error)
	}

	Observer interface {
		ObserveJobRun(job string, err error)
	}

	// Scheduler runs the periodic maintenance jobs.
	Scheduler struct {
		scheduler gocron.Scheduler
		log       core.Logger
		obs       Observer
	}
)

// NewScheduler registers the jobs whose interval is configured.
func NewScheduler(conf *core.Config, attempts AttemptSweeper, tokens TokenPurger, log core.Logger, obs Observer) (*Scheduler, error) {
	s, err := gocron.NewScheduler(gocron.WithLogger(log))
	if err != nil {
		return nil, errors.Wrap(err, "creating scheduler")
	}
	sched := &Scheduler{scheduler: s, log: log, obs: obs}

	grace := conf.Jobs.AttemptGracePeriod
	if err := sched.schedule(JobAttemptTimeout, conf.Jobs.AttemptSweepInterval, func(ctx context.Context) (int, error) {
		return attempts.TimeOutStale(ctx, grace)
	}); err != nil {
		return nil, err
	}
	if err := sched.schedule(JobTokenPurge, conf.Jobs.TokenPurgeInterval, tokens.PurgeExpiredTokens); err != nil {
		return nil, err
	}
	return sched, nil
}

func (s *Scheduler) schedule(name string, interval time.Duration, fn func(ctx context.Context) (int, error)) error {
	if interval <= 0 {
		s.log.Info(fmt.Sprintf("job %s disabled", name))
		return nil
	}
	_, err := s.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(s.run, name, fn),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	return errors.Wrapf(err, "scheduling job %s", name)
}

// run executes one job run. gocron passes ctx, which is cancelled on shutdown.
func (s *Scheduler) run(ctx context.Context, name string, fn func(ctx context.Context) (int, error)) {
	n, err := fn(ctx)
	if s.obs != nil {
		s.obs.ObserveJobRun(name, err)
	}
	if err != nil {
		s.log.Error(fmt.Sprintf("job %s failed", name), err)
		return
	}
	if n > 0 {
		s.log.Info(fmt.Sprintf("job %s processed %d item(s)", name, n))
	}
}

// JobNames returns the names of the scheduled jobs.
func (s *Scheduler) JobNames() []string {
	jobs := s.scheduler.Jobs()
	names := make([]string, 0, len(jobs))
	for _, j := range jobs {
		names = append(names, j.Name())
	}
	return names
}

func (s *Scheduler) Start() {
	s.log.Info("starting job scheduler")
	s.scheduler.Start()
}

func (s *Scheduler) Shutdown() error {
	s.log.Info("stopping job scheduler")
	return errors.Wrap(s.scheduler.Shutdown(), "stopping scheduler")
}
