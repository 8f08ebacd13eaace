package scheduler

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lyallcooper/moleui/internal/config"
	"github.com/lyallcooper/moleui/internal/services"
	"github.com/lyallcooper/moleui/internal/types"
)

// mockRunner implements Runner for testing
type mockRunner struct {
	mu       sync.Mutex
	verbs    []string
	dryRuns  []bool
	startErr error
	token    uint64
	views    map[string]services.View
}

func (m *mockRunner) record(verb string, dryRun bool) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verbs = append(m.verbs, verb)
	m.dryRuns = append(m.dryRuns, dryRun)
	if m.startErr != nil {
		return 0, m.startErr
	}
	m.token++
	return m.token, nil
}

func (m *mockRunner) StartScan(verb string, opts services.ScanOptions) (uint64, error) {
	return m.record(verb, opts.DryRun)
}

func (m *mockRunner) StartArtifactScan() (uint64, error) {
	return m.record(services.VerbArtifacts, true)
}

func (m *mockRunner) StartInstallerScan() (uint64, error) {
	return m.record(services.VerbInstallers, true)
}

func (m *mockRunner) Snapshot(verb string) (services.View, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.views[verb]
	return v, ok
}

func (m *mockRunner) calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.verbs...)
}

func TestNewRejectsBadJobs(t *testing.T) {
	tests := []struct {
		name string
		job  config.RefreshJob
	}{
		{"bad cron", config.RefreshJob{Verb: "clean", Cron: "every day"}},
		{"unknown verb", config.RefreshJob{Verb: "defrag", Cron: "0 * * * *"}},
		{"seconds field", config.RefreshJob{Verb: "clean", Cron: "0 0 * * * *"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New([]config.RefreshJob{tt.job}, &mockRunner{}, nil); err == nil {
				t.Errorf("New(%+v) succeeded, want error", tt.job)
			}
		})
	}
}

func TestCheckJobsRunsDueJobs(t *testing.T) {
	runner := &mockRunner{}
	s, err := New([]config.RefreshJob{
		{Verb: "clean", Cron: "0 * * * *"},
		{Verb: services.VerbArtifacts, Cron: "@daily"},
	}, runner, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	jobs := s.Jobs()
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(jobs))
	}

	// Before anything is due
	s.checkJobs(context.Background())
	if got := runner.calls(); len(got) != 0 {
		t.Fatalf("no job should run yet, ran %v", got)
	}

	// Jump past the hourly job only
	hourly := jobs[0].NextRun
	s.now = func() time.Time { return hourly.Add(time.Second) }
	s.checkJobs(context.Background())

	got := runner.calls()
	if len(got) != 1 || got[0] != "clean" {
		t.Fatalf("calls = %v, want [clean]", got)
	}
	if !runner.dryRuns[0] {
		t.Error("scheduled refreshes must be dry runs")
	}

	jobs = s.Jobs()
	if !jobs[0].NextRun.After(hourly) {
		t.Errorf("NextRun not advanced: %v", jobs[0].NextRun)
	}
	if jobs[0].LastRun == nil || jobs[0].LastToken != 1 {
		t.Errorf("run state not recorded: %+v", jobs[0])
	}

	// Same instant again: nothing new is due
	s.checkJobs(context.Background())
	if got := runner.calls(); len(got) != 1 {
		t.Errorf("job ran twice: %v", got)
	}

	// A day later both are due
	s.now = func() time.Time { return hourly.Add(25 * time.Hour) }
	s.checkJobs(context.Background())
	if got := runner.calls(); len(got) != 3 || got[2] != services.VerbArtifacts {
		t.Errorf("calls = %v", got)
	}
}

func TestRunJobRecordsStartError(t *testing.T) {
	runner := &mockRunner{startErr: errors.New("mole not found")}
	s, err := New([]config.RefreshJob{{Verb: "purge", Cron: "*/5 * * * *"}}, runner, nil)
	if err != nil {
		t.Fatal(err)
	}
	next := s.Jobs()[0].NextRun
	s.now = func() time.Time { return next }
	s.checkJobs(context.Background())

	job := s.Jobs()[0]
	if job.LastError != "mole not found" {
		t.Errorf("LastError = %q", job.LastError)
	}
	if !job.NextRun.After(next) {
		t.Error("a failed start should still advance the schedule")
	}
}

func TestRunJobSkipsVerbWithRunningScan(t *testing.T) {
	runner := &mockRunner{views: map[string]services.View{
		"clean": {Verb: "clean", Token: 7, Status: types.StatusRunning, DryRun: false},
	}}
	s, err := New([]config.RefreshJob{{Verb: "clean", Cron: "0 * * * *"}}, runner, nil)
	if err != nil {
		t.Fatal(err)
	}
	next := s.Jobs()[0].NextRun
	s.now = func() time.Time { return next }
	s.checkJobs(context.Background())

	if got := runner.calls(); len(got) != 0 {
		t.Fatalf("refresh started over a running clean: %v", got)
	}
	job := s.Jobs()[0]
	if !strings.Contains(job.LastError, "still running") {
		t.Errorf("LastError = %q, want a skip reason", job.LastError)
	}
	if !job.NextRun.After(next) {
		t.Error("a skipped run should still advance the schedule")
	}

	// Once the real run has finished the next slot refreshes normally.
	runner.mu.Lock()
	runner.views["clean"] = services.View{Verb: "clean", Token: 7, Status: types.StatusCompleted}
	runner.mu.Unlock()
	later := job.NextRun
	s.now = func() time.Time { return later }
	s.checkJobs(context.Background())

	if got := runner.calls(); len(got) != 1 || got[0] != "clean" {
		t.Fatalf("calls = %v, want [clean]", got)
	}
	if job := s.Jobs()[0]; job.LastError != "" || job.LastToken != 1 {
		t.Errorf("run state not recorded: %+v", job)
	}
}

func TestStartStop(t *testing.T) {
	runner := &mockRunner{}
	s, err := New([]config.RefreshJob{{Verb: "installers", Cron: "* * * * *"}}, runner, nil)
	if err != nil {
		t.Fatal(err)
	}
	s.interval = 10 * time.Millisecond
	s.now = func() time.Time { return time.Now().Add(2 * time.Minute) }

	s.Start()
	s.Start() // idempotent

	deadline := time.Now().Add(2 * time.Second)
	for len(runner.calls()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	s.Stop()
	s.Stop()

	if len(runner.calls()) == 0 {
		t.Error("scheduler never triggered the due job")
	}
}

func TestStartWithoutJobsIsNoop(t *testing.T) {
	s, err := New(nil, &mockRunner{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	s.Start()
	s.Stop()
}
