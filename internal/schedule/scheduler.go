package schedule

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

type Job interface {
	Name() string
	Run(ctx context.Context) error
}

type Scheduler interface {
	AddJob(job Job, spec string) error
	Trigger(name string) error
	Start(ctx context.Context)
	Stop()
}

type scheduledJob struct {
	entry   cron.EntryID
	spec    string
	job     Job
	running atomic.Bool
}

// CronScheduler runs jobs on 5 field cron specs. A job never overlaps with
// itself, whether started by cron or by Trigger.
type CronScheduler struct {
	cron *cron.Cron

	mu   sync.Mutex
	jobs map[string]*scheduledJob
	ctx  context.Context
	wg   sync.WaitGroup
}

func NewCronScheduler() *CronScheduler {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	return &CronScheduler{
		cron: cron.New(cron.WithParser(parser)),
		jobs: make(map[string]*scheduledJob),
		ctx:  context.Background(),
	}
}

func (c *CronScheduler) AddJob(job Job, spec string) error {
	name := job.Name()
	logger := logutil.GetLogger(context.Background()).With(zap.String("job", name), zap.String("spec", spec))
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.jobs[name]; ok {
		return fmt.Errorf("job %s already scheduled", name)
	}
	sj := &scheduledJob{spec: spec, job: job}
	entryID, err := c.cron.AddFunc(spec, func() { c.run(sj) })
	if err != nil {
		logger.Error("schedule job failed", zap.Error(err))
		return err
	}
	sj.entry = entryID
	c.jobs[name] = sj
	logger.Info("job scheduled")
	return nil
}

// Trigger runs a scheduled job now in the background. It is a no-op while the
// job is already running.
func (c *CronScheduler) Trigger(name string) error {
	c.mu.Lock()
	sj, ok := c.jobs[name]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("job %s not scheduled", name)
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.run(sj)
	}()
	return nil
}

func (c *CronScheduler) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	c.mu.Lock()
	c.ctx = ctx
	c.mu.Unlock()
	c.cron.Start()
}

// Stop waits for running jobs to return.
func (c *CronScheduler) Stop() {
	ctx := c.cron.Stop()
	<-ctx.Done()
	c.wg.Wait()
}

func (c *CronScheduler) run(sj *scheduledJob) {
	if !sj.running.CompareAndSwap(false, true) {
		logutil.GetLogger(context.Background()).With(
			zap.String("job", sj.job.Name()),
			zap.String("spec", sj.spec),
		).Info("job skipped: still running")
		return
	}
	defer sj.running.Store(false)

	c.mu.Lock()
	ctx := c.ctx
	c.mu.Unlock()
	logger := logutil.GetLogger(ctx).With(
		zap.String("job", sj.job.Name()),
		zap.String("spec", sj.spec),
	)
	start := time.Now()
	logger.Info("job started")
	err := sj.job.Run(ctx)
	elapsed := time.Since(start)
	if err != nil {
		logger.Error("job finished", zap.Error(err), zap.Duration("duration", elapsed))
		return
	}
	logger.Info("job finished", zap.Duration("duration", elapsed))
}
