package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/lyallcooper/moleui/internal/config"
	"github.com/lyallcooper/moleui/internal/parser"
	"github.com/lyallcooper/moleui/internal/services"
	"github.com/lyallcooper/moleui/internal/types"
)

// Runner starts background dry-runs. *services.Scanner implements it.
type Runner interface {
	StartScan(verb string, opts services.ScanOptions) (uint64, error)
	StartArtifactScan() (uint64, error)
	StartInstallerScan() (uint64, error)
	Snapshot(verb string) (services.View, bool)
}

// JobInfo describes one refresh job for display.
type JobInfo struct {
	Verb      string     `json:"verb"`
	Cron      string     `json:"cron"`
	NextRun   time.Time  `json:"nextRun"`
	LastRun   *time.Time `json:"lastRun,omitempty"`
	LastToken uint64     `json:"lastToken,omitempty"`
	LastError string     `json:"lastError,omitempty"`
}

type job struct {
	info     JobInfo
	schedule cron.Schedule
}

// Scheduler triggers refresh scans on cron schedules
type Scheduler struct {
	runner   Runner
	parser   cron.Parser
	interval time.Duration
	now      func() time.Time
	log      *logrus.Entry

	mu       sync.RWMutex
	jobs     []*job
	running  bool
	stopChan chan struct{}
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// New validates the refresh jobs and creates a scheduler
func New(jobs []config.RefreshJob, runner Runner, log *logrus.Entry) (*Scheduler, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	s := &Scheduler{
		runner:   runner,
		parser:   cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		interval: time.Minute,
		now:      time.Now,
		log:      log.WithField("component", "scheduler"),
	}

	now := s.now()
	for _, j := range jobs {
		if !validVerb(j.Verb) {
			return nil, fmt.Errorf("refresh job: %w: %s", services.ErrUnknownVerb, j.Verb)
		}
		schedule, err := s.parser.Parse(j.Cron)
		if err != nil {
			return nil, fmt.Errorf("refresh job %s: invalid cron expression %q: %w", j.Verb, j.Cron, err)
		}
		s.jobs = append(s.jobs, &job{
			info:     JobInfo{Verb: j.Verb, Cron: j.Cron, NextRun: schedule.Next(now)},
			schedule: schedule,
		})
	}
	return s, nil
}

func validVerb(verb string) bool {
	if verb == services.VerbArtifacts || verb == services.VerbInstallers {
		return true
	}
	_, err := parser.ForVerb(verb)
	return err == nil
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.running || len(s.jobs) == 0 {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopChan = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run(ctx)
}

// Stop stops the scheduler loop and waits for it to exit
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopChan)
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	s.wg.Wait()
}

// run is the main scheduler loop
func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.checkJobs(ctx)
		}
	}
}

// checkJobs triggers every job whose next run has passed
func (s *Scheduler) checkJobs(ctx context.Context) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.jobs {
		if ctx.Err() != nil {
			return
		}
		if now.Before(j.info.NextRun) {
			continue
		}
		s.runJob(j, now)
	}
}

// runJob starts one refresh. Scans are asynchronous, so this only issues
// the token and schedules the next run.
func (s *Scheduler) runJob(j *job, now time.Time) {
	ran := now
	j.info.LastRun = &ran
	j.info.NextRun = j.schedule.Next(now)
	fields := logrus.Fields{"verb": j.info.Verb, "next_run": j.info.NextRun}

	// A newer token would orphan the running scan's remaining output,
	// including the outcome of a confirmed real run.
	if view, ok := s.runner.Snapshot(j.info.Verb); ok && view.Status == types.StatusRunning {
		j.info.LastError = fmt.Sprintf("skipped: %s scan %d still running", j.info.Verb, view.Token)
		fields["running_token"] = view.Token
		fields["dry_run"] = view.DryRun
		s.log.WithFields(fields).Info("Skipping scheduled refresh")
		return
	}

	var token uint64
	var err error
	switch j.info.Verb {
	case services.VerbArtifacts:
		token, err = s.runner.StartArtifactScan()
	case services.VerbInstallers:
		token, err = s.runner.StartInstallerScan()
	default:
		token, err = s.runner.StartScan(j.info.Verb, services.ScanOptions{DryRun: true})
	}

	if err != nil {
		j.info.LastError = err.Error()
		fields["error"] = err
		s.log.WithFields(fields).Warn("Scheduled refresh failed to start")
		return
	}
	j.info.LastError = ""
	j.info.LastToken = token
	fields["token"] = token
	s.log.WithFields(fields).Info("Started scheduled refresh")
}

// Jobs returns the configured jobs and their run state
func (s *Scheduler) Jobs() []JobInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]JobInfo, len(s.jobs))
	for i, j := range s.jobs {
		out[i] = j.info
	}
	return out
}
