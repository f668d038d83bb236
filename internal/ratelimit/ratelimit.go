// Package ratelimit implements a cross-process sliding-window limiter over
// a shared JSON state file, so every worker process throttles against the
// same budget without a central coordinator.
package ratelimit

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog"

	"github.com/agentswarm/swarm/internal/fileutil"
)

const (
	window       = 60 * time.Second
	minRetryWait = 500 * time.Millisecond
	maxRetryWait = 5 * time.Second
	jitterMin    = 2 * time.Second
	jitterMax    = 3 * time.Second
)

// Limiter enforces a per-minute call ceiling shared across every process
// that opens the same state file.
type Limiter struct {
	statePath string
	lockPath  string
	rpm       int
	log       zerolog.Logger
}

// New builds a Limiter backed by the given state file (and its companion
// ".lock" file) enforcing rpm reservations per rolling 60s window.
func New(statePath string, rpm int, log zerolog.Logger) (*Limiter, error) {
	if err := fileutil.EnsureDir(dirOf(statePath)); err != nil {
		return nil, fmt.Errorf("creating rate limiter state directory: %w", err)
	}
	return &Limiter{
		statePath: statePath,
		lockPath:  statePath + ".lock",
		rpm:       rpm,
		log:       log,
	}, nil
}

func dirOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return "."
}

// state is the on-disk shape: a flat list of Unix-second timestamps of
// reservations still inside the current window.
type state struct {
	Timestamps []int64 `json:"timestamps"`
}

// Reserve blocks until a call slot is available, then reserves it. It
// never holds the advisory lock across a sleep, so one stalled process
// cannot block the rest of the fleet.
func (l *Limiter) Reserve() error {
	for {
		reserved, waitFor, err := l.tryReserve()
		if err != nil {
			return err
		}
		if reserved {
			break
		}
		time.Sleep(waitFor)
	}

	jitter := jitterMin + time.Duration(rand.Int63n(int64(jitterMax-jitterMin)))
	time.Sleep(jitter)
	return nil
}

// tryReserve attempts a single reservation under the file lock. It returns
// (true, 0, nil) on success, or (false, waitDuration, nil) if the window is
// full and the caller should sleep and retry.
func (l *Limiter) tryReserve() (bool, time.Duration, error) {
	fl := flock.New(l.lockPath)
	if err := fl.Lock(); err != nil {
		return false, 0, fmt.Errorf("locking rate limiter state: %w", err)
	}
	defer fl.Unlock()

	st := l.readState()

	now := time.Now().Unix()
	cutoff := now - int64(window.Seconds())

	live := st.Timestamps[:0]
	for _, ts := range st.Timestamps {
		if ts > cutoff {
			live = append(live, ts)
		}
	}
	st.Timestamps = live

	if len(st.Timestamps) >= l.rpm {
		oldest := st.Timestamps[0]
		wait := time.Duration(window.Seconds()-float64(now-oldest)) * time.Second
		if wait < minRetryWait {
			wait = minRetryWait
		}
		if wait > maxRetryWait {
			wait = maxRetryWait
		}
		return false, wait, nil
	}

	warnThreshold := (l.rpm*8 + 9) / 10 // ceil(0.8 * rpm)
	if len(st.Timestamps) >= warnThreshold {
		l.log.Warn().Int("in_window", len(st.Timestamps)).Int("rpm", l.rpm).Msg("approaching rate limit")
	}

	st.Timestamps = append(st.Timestamps, now)
	if err := l.writeState(st); err != nil {
		return false, 0, err
	}
	return true, 0, nil
}

// readState loads the JSON state file, tolerating a missing or malformed
// file by treating it as an empty window — a corrupt state file should
// never wedge the whole swarm.
func (l *Limiter) readState() state {
	data, err := os.ReadFile(l.statePath)
	if err != nil {
		return state{}
	}
	var st state
	if err := json.Unmarshal(data, &st); err != nil {
		return state{}
	}
	return st
}

func (l *Limiter) writeState(st state) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encoding rate limiter state: %w", err)
	}
	if err := os.WriteFile(l.statePath, data, 0644); err != nil {
		return fmt.Errorf("writing rate limiter state: %w", err)
	}
	return nil
}
