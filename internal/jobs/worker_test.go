package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/cloo-solutions/docsage/internal/dedup"
	"github.com/cloo-solutions/docsage/internal/logger"
)

type MockTask struct {
	mock.Mock
}

func (m *MockTask) Run(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

type MockEvictor struct {
	mock.Mock
}

func (m *MockEvictor) EvictExpired(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

// signalTask reports every run on ran.
type signalTask struct {
	ran chan struct{}
	err error
}

func (s *signalTask) Run(ctx context.Context) error {
	select {
	case s.ran <- struct{}{}:
	default:
	}
	return s.err
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not exit")
	}
}

func startWorker(ctx context.Context, w *Worker) <-chan struct{} {
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		w.Start(ctx)
	}()
	return exited
}

func TestWorker_RunsUntilStopped(t *testing.T) {
	task := &signalTask{ran: make(chan struct{}, 1)}
	w := NewWorker("sweeper", task, 10*time.Millisecond, logger.Nop())

	exited := startWorker(context.Background(), w)
	for range 2 {
		select {
		case <-task.ran:
		case <-time.After(2 * time.Second):
			t.Fatal("task never ran")
		}
	}

	w.Stop()
	waitDone(t, exited)
	assert.NotPanics(t, w.Stop)
}

func TestWorker_ExitsOnContextCancel(t *testing.T) {
	task := new(MockTask)
	task.On("Run", mock.Anything).Return(errors.New("transient")).Maybe()
	w := NewWorker("sweeper", task, 10*time.Millisecond, logger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	exited := startWorker(ctx, w)

	time.Sleep(50 * time.Millisecond)
	cancel()
	waitDone(t, exited)
}

func TestWorker_StopBeforeStart(t *testing.T) {
	task := new(MockTask)
	w := NewWorker("sweeper", task, time.Millisecond, logger.Nop())

	w.Stop()
	waitDone(t, startWorker(context.Background(), w))

	task.AssertNotCalled(t, "Run", mock.Anything)
}

type panickyTask struct{}

func (panickyTask) Run(context.Context) error { panic("bad entry") }

func TestWorker_TaskPanicIsContained(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	w := NewWorker("sweeper", panickyTask{}, time.Second, logger.NewFromCore(core))

	assert.NotPanics(t, func() { w.tick(context.Background()) })

	failed := logs.FilterMessage("task failed").All()
	require.Len(t, failed, 1)
	assert.Contains(t, failed[0].ContextMap()["error"], "task panicked: bad entry")
}

func TestWorker_FailureStreakEscalates(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	task := &signalTask{ran: make(chan struct{}, 1), err: errors.New("store unreachable")}
	w := NewWorker("sweeper", task, time.Second, logger.NewFromCore(core))
	ctx := context.Background()

	var levels []zapcore.Level
	for range failureStreakAlert {
		w.tick(ctx)
		entries := logs.TakeAll()
		require.Len(t, entries, 1)
		levels = append(levels, entries[0].Level)
	}
	assert.Equal(t, []zapcore.Level{zapcore.WarnLevel, zapcore.WarnLevel, zapcore.ErrorLevel}, levels)

	task.err = nil
	w.tick(ctx)
	recovered := logs.FilterMessage("task recovered").All()
	require.Len(t, recovered, 1)
	assert.EqualValues(t, failureStreakAlert, recovered[0].ContextMap()["after_failures"])
	assert.Zero(t, w.failures)
}

func TestWorker_RunIsBoundedByInterval(t *testing.T) {
	var deadline time.Time
	task := new(MockTask)
	task.On("Run", mock.Anything).Run(func(args mock.Arguments) {
		deadline, _ = args.Get(0).(context.Context).Deadline()
	}).Return(nil)

	w := NewWorker("sweeper", task, time.Minute, logger.Nop())
	before := time.Now()
	w.tick(context.Background())

	assert.WithinDuration(t, before.Add(time.Minute), deadline, time.Second)
}

func TestDedupSweeper_Run(t *testing.T) {
	evictor := new(MockEvictor)
	evictor.On("EvictExpired", mock.Anything).Return(3, nil).Once()
	evictor.On("EvictExpired", mock.Anything).Return(0, errors.New("boom")).Once()

	sweeper := NewDedupSweeper(evictor, logger.Nop())

	assert.NoError(t, sweeper.Run(context.Background()))
	assert.EqualError(t, sweeper.Run(context.Background()), "boom")
	evictor.AssertExpectations(t)
}

func TestDedupSweeper_EvictsMemoryStore(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	store := dedup.NewMemoryStoreWithClock(func() time.Time { return now })
	ctx := context.Background()

	ok, err := store.SetNX(ctx, "k", []byte("v"), time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	now = now.Add(2 * time.Second)
	require.NoError(t, NewDedupSweeper(store, nil).Run(ctx))

	assert.Equal(t, 0, store.Len())
}

func TestNewWorker_DefaultsInterval(t *testing.T) {
	w := NewWorker("sweeper", new(MockTask), 0, nil)

	assert.Equal(t, defaultPollInterval, w.interval)
}
