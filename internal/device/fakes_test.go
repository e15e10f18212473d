package device

import (
	"context"
	"errors"
	"os/exec"
	"sync"
	"time"
)

// fakeExecutor resolves only the binaries listed in paths and records
// every command it is asked to run.
type fakeExecutor struct {
	mu       sync.Mutex
	paths    map[string]string
	run      func(ctx context.Context, name string, args []string) error
	startErr error
	runs     [][]string
	starts   [][]string
	procs    []*fakeProcess
}

func newFakeExecutor(binaries ...string) *fakeExecutor {
	paths := make(map[string]string, len(binaries))
	for _, b := range binaries {
		paths[b] = "/usr/sbin/" + b
	}
	return &fakeExecutor{paths: paths}
}

func (f *fakeExecutor) LookPath(file string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.paths[file]; ok {
		return p, nil
	}
	return "", &exec.Error{Name: file, Err: exec.ErrNotFound}
}

func (f *fakeExecutor) Run(ctx context.Context, name string, args ...string) error {
	f.mu.Lock()
	f.runs = append(f.runs, append([]string{name}, args...))
	run := f.run
	f.mu.Unlock()
	if run != nil {
		return run(ctx, name, args)
	}
	return nil
}

func (f *fakeExecutor) Start(name string, args ...string) (Process, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return nil, f.startErr
	}
	f.starts = append(f.starts, append([]string{name}, args...))
	p := &fakeProcess{alive: true}
	f.procs = append(f.procs, p)
	return p, nil
}

func (f *fakeExecutor) startCalls() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.starts...)
}

func (f *fakeExecutor) lastProcess() *fakeProcess {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.procs) == 0 {
		return nil
	}
	return f.procs[len(f.procs)-1]
}

// fakeProcess stays alive until stopped. ignoreStop simulates a process
// that outlives its grace period; a non-nil release makes Stop block until
// it is closed.
type fakeProcess struct {
	mu         sync.Mutex
	alive      bool
	stops      int
	lastGrace  time.Duration
	ignoreStop bool
	release    chan struct{}
}

func (p *fakeProcess) Alive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.alive
}

func (p *fakeProcess) Stop(grace time.Duration) error {
	p.mu.Lock()
	p.stops++
	p.lastGrace = grace
	release := p.release
	p.mu.Unlock()
	if release != nil {
		<-release
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ignoreStop {
		return errors.New("process did not exit")
	}
	p.alive = false
	return nil
}

func (p *fakeProcess) stopCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stops
}

func (p *fakeProcess) exit() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.alive = false
}
