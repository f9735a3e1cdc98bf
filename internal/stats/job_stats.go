// Package stats tracks the live view of a job run and formats the exit
// summary.
//
// JobStats is fed by the runner's callbacks and read by the dashboard, so
// every field is an atomic and reads never block the runner.
package stats

import (
	"sync/atomic"
	"time"

	"github.com/randomizedcoder/go-processjob/internal/job"
)

// JobStats holds live statistics for one job run.
type JobStats struct {
	Name          string
	TotalCommands int
	StartTime     time.Time

	// Event counts (atomic, lock-free)
	CommandsStarted   atomic.Int64
	CommandsSucceeded atomic.Int64
	CommandsFailed    atomic.Int64
	Cancels           atomic.Int64
	KillEscalations   atomic.Int64

	// Current command
	currentIndex atomic.Int64 // -1 when no command is running
	currentPid   atomic.Int64
	commandStart atomic.Int64 // unix nanos of the current spawn
	lastExitCode atomic.Int64
	lastElapsed  atomic.Int64 // time.Duration as nanoseconds

	state atomic.Int32 // job.State
}

// NewJobStats creates stats for a job with the given number of commands.
func NewJobStats(name string, commands int) *JobStats {
	s := &JobStats{
		Name:          name,
		TotalCommands: commands,
		StartTime:     time.Now(),
	}
	s.currentIndex.Store(-1)
	s.lastExitCode.Store(-1)
	s.state.Store(int32(job.StateIdle))
	return s
}

// --- Runner events ---

// OnStateChange records the runner state.
func (s *JobStats) OnStateChange(_, newState job.State) {
	s.state.Store(int32(newState))
}

// OnStart records a spawned command.
func (s *JobStats) OnStart(index, pid int) {
	s.CommandsStarted.Add(1)
	s.currentIndex.Store(int64(index))
	s.currentPid.Store(int64(pid))
	s.commandStart.Store(time.Now().UnixNano())
}

// OnExit records a command exit.
func (s *JobStats) OnExit(_ int, exitCode int, elapsed time.Duration) {
	if exitCode == 0 {
		s.CommandsSucceeded.Add(1)
	} else {
		s.CommandsFailed.Add(1)
	}
	s.lastExitCode.Store(int64(exitCode))
	s.lastElapsed.Store(int64(elapsed))
	s.currentPid.Store(0)
	s.commandStart.Store(0)
}

// OnCancel records a cancel request.
func (s *JobStats) OnCancel(int) {
	s.Cancels.Add(1)
}

// OnEscalate records a forced kill.
func (s *JobStats) OnEscalate(int) {
	s.KillEscalations.Add(1)
}

// --- Reading ---

// State returns the last runner state seen.
func (s *JobStats) State() job.State {
	return job.State(s.state.Load())
}

// Uptime returns how long the job has been running.
func (s *JobStats) Uptime() time.Duration {
	return time.Since(s.StartTime)
}

// CommandElapsed returns how long the current command has been running,
// zero when none is.
func (s *JobStats) CommandElapsed() time.Duration {
	ns := s.commandStart.Load()
	if ns == 0 {
		return 0
	}
	return time.Since(time.Unix(0, ns))
}

// --- Summary ---

// Summary is a snapshot of the live statistics.
type Summary struct {
	Name              string
	State             job.State
	TotalCommands     int
	CurrentIndex      int
	Pid               int
	CommandElapsed    time.Duration
	Uptime            time.Duration
	CommandsStarted   int64
	CommandsSucceeded int64
	CommandsFailed    int64
	Cancels           int64
	KillEscalations   int64
	LastExitCode      int
	LastElapsed       time.Duration
}

// GetSummary returns a snapshot of all key values.
func (s *JobStats) GetSummary() Summary {
	return Summary{
		Name:              s.Name,
		State:             s.State(),
		TotalCommands:     s.TotalCommands,
		CurrentIndex:      int(s.currentIndex.Load()),
		Pid:               int(s.currentPid.Load()),
		CommandElapsed:    s.CommandElapsed(),
		Uptime:            s.Uptime(),
		CommandsStarted:   s.CommandsStarted.Load(),
		CommandsSucceeded: s.CommandsSucceeded.Load(),
		CommandsFailed:    s.CommandsFailed.Load(),
		Cancels:           s.Cancels.Load(),
		KillEscalations:   s.KillEscalations.Load(),
		LastExitCode:      int(s.lastExitCode.Load()),
		LastElapsed:       time.Duration(s.lastElapsed.Load()),
	}
}

// Completed returns the fraction of commands that have finished
// successfully, for the dashboard's progress bar.
func (s Summary) Completed() float64 {
	if s.TotalCommands == 0 {
		return 0
	}
	return float64(s.CommandsSucceeded) / float64(s.TotalCommands)
}
