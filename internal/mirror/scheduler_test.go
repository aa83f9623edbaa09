package mirror

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLister struct {
	mu      sync.Mutex
	mirrors []Mirror
}

func (f *fakeLister) ListMirrors() ([]Mirror, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Mirror, len(f.mirrors))
	copy(out, f.mirrors)
	return out, nil
}

type recordingListener struct {
	mu        sync.Mutex
	started   []string
	completed []string
	errored   []string
}

func (l *recordingListener) OnStart(task Task) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.started = append(l.started, task.Mirror.ID)
}
func (l *recordingListener) OnComplete(task Task, _ Result) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.completed = append(l.completed, task.Mirror.ID)
}
func (l *recordingListener) OnError(task Task, _ error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errored = append(l.errored, task.Mirror.ID)
}

func (l *recordingListener) count() (started, completed, errored int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.started), len(l.completed), len(l.errored)
}

func TestSchedulerRunsDueMirrorEverySecondTick(t *testing.T) {
	lister := &fakeLister{mirrors: []Mirror{{ID: "m1", Enabled: true, Schedule: "@every 1s"}}}
	listener := &recordingListener{}

	var execCount int32
	var mu sync.Mutex
	sched := NewScheduler(lister, 2, "", nil, listener, func(task Task) (Result, error) {
		mu.Lock()
		execCount++
		mu.Unlock()
		return Result{}, nil
	}, nil)

	sched.tick(time.Now())
	sched.tick(time.Now().Add(time.Second))

	require.Eventually(t, func() bool {
		started, completed, _ := listener.count()
		return started >= 1 && completed >= 1
	}, time.Second, 10*time.Millisecond)
}

func TestSchedulerSkipsZoneMismatchedMirror(t *testing.T) {
	lister := &fakeLister{mirrors: []Mirror{{ID: "m1", Enabled: true, Schedule: "@every 1s", Zone: "us-east"}}}
	var ran bool
	var mu sync.Mutex
	sched := NewScheduler(lister, 1, "us-west", nil, nil, func(task Task) (Result, error) {
		mu.Lock()
		ran = true
		mu.Unlock()
		return Result{}, nil
	}, nil)

	sched.tick(time.Now())
	time.Sleep(30 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.False(t, ran)
}

func TestSchedulerSkipsWhenNotLeader(t *testing.T) {
	lister := &fakeLister{mirrors: []Mirror{{ID: "m1", Enabled: true, Schedule: "@every 1s"}}}
	var ran bool
	var mu sync.Mutex
	sched := NewScheduler(lister, 1, "", func() bool { return false }, nil, func(task Task) (Result, error) {
		mu.Lock()
		ran = true
		mu.Unlock()
		return Result{}, nil
	}, nil)

	sched.tick(time.Now())
	time.Sleep(30 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.False(t, ran)
}

func TestSchedulerSkipsMirrorAlreadyRunning(t *testing.T) {
	lister := &fakeLister{mirrors: []Mirror{{ID: "m1", Enabled: true, Schedule: "@every 1s"}}}
	release := make(chan struct{})
	var starts int32
	var mu sync.Mutex
	sched := NewScheduler(lister, 1, "", nil, nil, func(task Task) (Result, error) {
		mu.Lock()
		starts++
		mu.Unlock()
		<-release
		return Result{}, nil
	}, nil)

	now := time.Now()
	sched.tick(now)
	time.Sleep(20 * time.Millisecond) // let the worker pick it up and mark it running
	sched.tick(now.Add(time.Second))
	time.Sleep(20 * time.Millisecond)
	close(release)

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, int32(1), starts)
}
