package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/omnichat/gateway/internal/core_domain"
	"github.com/omnichat/gateway/internal/inbound_service/domain"
)

// --- Mocks ---

type MockInboundJobRepository struct {
	mock.Mock
}

func (m *MockInboundJobRepository) Create(ctx context.Context, job *core_domain.InboundJob) (*core_domain.InboundJob, error) {
	args := m.Called(ctx, job)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*core_domain.InboundJob), args.Error(1)
}

func (m *MockInboundJobRepository) AcquireDue(ctx context.Context, now time.Time, limit int) ([]*core_domain.InboundJob, error) {
	args := m.Called(ctx, now, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*core_domain.InboundJob), args.Error(1)
}

func (m *MockInboundJobRepository) MarkDone(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockInboundJobRepository) MarkFailed(ctx context.Context, id string, attemptCount int, errorMessage string) error {
	args := m.Called(ctx, id, attemptCount, errorMessage)
	return args.Error(0)
}

func (m *MockInboundJobRepository) Requeue(ctx context.Context, id string, nextAttemptAt time.Time, attemptCount int, errorMessage string) error {
	args := m.Called(ctx, id, nextAttemptAt, attemptCount, errorMessage)
	return args.Error(0)
}

// flakySink fails its first n deliveries, then records the rest.
type flakySink struct {
	failures int
	received []core_domain.InboundMessage
}

func (s *flakySink) HandleInbound(_ context.Context, msg core_domain.InboundMessage) error {
	if s.failures > 0 {
		s.failures--
		return errors.New("sink unavailable")
	}
	s.received = append(s.received, msg)
	return nil
}

// --- Helpers ---

func testInboundDispatcher(t *testing.T, repo *MockInboundJobRepository, store *MockProcessedMessageStore, sink domain.MessageSink) *Dispatcher {
	t.Helper()
	processor := NewProcessor(store, []domain.MessageSink{sink}, testProcessorLogger())
	return NewDispatcher(repo, processor, testProcessorLogger(), DispatcherConfig{
		Concurrency: 2,
		BackoffBase: 2 * time.Second,
		BackoffCap:  time.Minute,
	})
}

func inboundJob(attempts int) *core_domain.InboundJob {
	return &core_domain.InboundJob{
		ID:           "ijob-1",
		Message:      testInboundMessage(),
		Status:       core_domain.JobStatusActive,
		AttemptCount: attempts,
		MaxAttempts:  core_domain.DefaultMaxAttempts,
	}
}

// --- Tests ---

func TestInboundDispatcher_ProcessJob_Done(t *testing.T) {
	repo := new(MockInboundJobRepository)
	store := new(MockProcessedMessageStore)
	store.On("MarkProcessed", mock.Anything, "waconnect", "wm1").Return(true, nil).Once()
	sink := &flakySink{}
	d := testInboundDispatcher(t, repo, store, sink)

	repo.On("MarkDone", mock.Anything, "ijob-1").Return(nil).Once()

	d.processJob(context.Background(), inboundJob(0))

	repo.AssertExpectations(t)
	require.Len(t, sink.received, 1)
	assert.Equal(t, "wm1", sink.received[0].MessageID)
}

func TestInboundDispatcher_ProcessJob_FailureSchedulesRetry(t *testing.T) {
	repo := new(MockInboundJobRepository)
	store := new(MockProcessedMessageStore)
	store.On("MarkProcessed", mock.Anything, "waconnect", "wm1").Return(true, nil).Once()
	store.On("Forget", mock.Anything, "waconnect", "wm1").Return(nil).Once()
	d := testInboundDispatcher(t, repo, store, &flakySink{failures: 1})
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return base }

	// attemptCount 0 -> 1, backoff base * 2^1 = 4s
	repo.On("Requeue", mock.Anything, "ijob-1", base.Add(4*time.Second), 1,
		"forward message wm1: sink unavailable").Return(nil).Once()

	d.processJob(context.Background(), inboundJob(0))

	repo.AssertExpectations(t)
	repo.AssertNotCalled(t, "MarkDone", mock.Anything, mock.Anything)
	repo.AssertNotCalled(t, "MarkFailed", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestInboundDispatcher_ProcessJob_ExhaustionDeadLetters(t *testing.T) {
	repo := new(MockInboundJobRepository)
	store := new(MockProcessedMessageStore)
	store.On("MarkProcessed", mock.Anything, "waconnect", "wm1").Return(true, nil).Once()
	store.On("Forget", mock.Anything, "waconnect", "wm1").Return(nil).Once()
	d := testInboundDispatcher(t, repo, store, &flakySink{failures: 1})

	// Third attempt of a max-3 job fails terminally.
	repo.On("MarkFailed", mock.Anything, "ijob-1", 3,
		"forward message wm1: sink unavailable").Return(nil).Once()

	d.processJob(context.Background(), inboundJob(2))

	repo.AssertExpectations(t)
	repo.AssertNotCalled(t, "Requeue")
}

// An acknowledged message whose processing fails is redelivered from the
// durable queue and forwarded on the retry, not lost.
func TestInboundDispatcher_RetryAfterFailureForwards(t *testing.T) {
	repo := new(MockInboundJobRepository)
	store := new(MockProcessedMessageStore)
	store.On("MarkProcessed", mock.Anything, "waconnect", "wm1").Return(true, nil).Twice()
	store.On("Forget", mock.Anything, "waconnect", "wm1").Return(nil).Once()
	sink := &flakySink{failures: 1}
	d := testInboundDispatcher(t, repo, store, sink)

	job := inboundJob(0)
	repo.On("Requeue", mock.Anything, "ijob-1", mock.Anything, 1, mock.Anything).
		Run(func(args mock.Arguments) { job.AttemptCount = 1 }).Return(nil).Once()
	repo.On("MarkDone", mock.Anything, "ijob-1").Return(nil).Once()

	d.processJob(context.Background(), job)
	d.processJob(context.Background(), job)

	repo.AssertExpectations(t)
	store.AssertExpectations(t)
	require.Len(t, sink.received, 1, "the retry attempt must forward the message")
	assert.Equal(t, "wm1", sink.received[0].MessageID)
}

func TestInboundDispatcher_Run_ProcessesAcquiredJobs(t *testing.T) {
	repo := new(MockInboundJobRepository)
	store := new(MockProcessedMessageStore)
	store.On("MarkProcessed", mock.Anything, "waconnect", "wm1").Return(true, nil).Once()
	d := testInboundDispatcher(t, repo, store, &flakySink{})
	d.cfg.PollInterval = 10 * time.Millisecond

	done := make(chan struct{})
	repo.On("AcquireDue", mock.Anything, mock.Anything, mock.Anything).
		Return([]*core_domain.InboundJob{inboundJob(0)}, nil).Once()
	repo.On("AcquireDue", mock.Anything, mock.Anything, mock.Anything).
		Return([]*core_domain.InboundJob{}, nil)
	repo.On("MarkDone", mock.Anything, "ijob-1").
		Run(func(args mock.Arguments) { close(done) }).Return(nil).Once()

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(stopped)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job was not processed by the worker pool")
	}
	cancel()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not stop on context cancellation")
	}

	require.True(t, repo.AssertExpectations(t))
}
