package app

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/omnichat/gateway/internal/core_domain"
)

type fakeBroker struct {
	mu       sync.Mutex
	messages map[string][][]byte
	err      error
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{messages: make(map[string][][]byte)}
}

func (b *fakeBroker) Publish(_ context.Context, subject string, data []byte) error {
	if b.err != nil {
		return b.err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages[subject] = append(b.messages[subject], data)
	return nil
}

func (b *fakeBroker) count(subject string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.messages[subject])
}

func TestEnqueuer_PersistsJobAndWakesWorkers(t *testing.T) {
	repo := new(MockInboundJobRepository)
	repo.On("Create", mock.Anything, mock.MatchedBy(func(job *core_domain.InboundJob) bool {
		return job.Message.MessageID == "wm1" &&
			job.Status == core_domain.JobStatusQueued &&
			job.MaxAttempts == 5
	})).Return(&core_domain.InboundJob{ID: "ijob-1", Status: core_domain.JobStatusQueued}, nil).Once()
	broker := newFakeBroker()
	enqueuer := NewEnqueuer(repo, broker, testProcessorLogger(), 5)

	err := enqueuer.Enqueue(context.Background(), testInboundMessage())
	require.NoError(t, err)
	assert.Equal(t, 1, broker.count("gateway.inbound.message.waconnect"),
		"a wake-up event must follow the enqueue")
	repo.AssertExpectations(t)
}

// The webhook must not be acknowledged for a message the queue could not
// persist; the error propagates up to the 500 response.
func TestEnqueuer_CreateFailureReturned(t *testing.T) {
	repo := new(MockInboundJobRepository)
	repo.On("Create", mock.Anything, mock.Anything).
		Return(nil, errors.New("connection refused")).Once()
	broker := newFakeBroker()
	enqueuer := NewEnqueuer(repo, broker, testProcessorLogger(), 0)

	err := enqueuer.Enqueue(context.Background(), testInboundMessage())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Zero(t, broker.count("gateway.inbound.message.waconnect"))
}

func TestEnqueuer_WakeFailureIsBestEffort(t *testing.T) {
	repo := new(MockInboundJobRepository)
	repo.On("Create", mock.Anything, mock.Anything).
		Return(&core_domain.InboundJob{ID: "ijob-2"}, nil).Once()
	broker := newFakeBroker()
	broker.err = errors.New("nats down")
	enqueuer := NewEnqueuer(repo, broker, testProcessorLogger(), 0)

	err := enqueuer.Enqueue(context.Background(), testInboundMessage())
	require.NoError(t, err, "the job is durable; a missed wake-up only delays it one poll")
}

func TestEnqueuer_MissingMessageIDRejected(t *testing.T) {
	repo := new(MockInboundJobRepository)
	enqueuer := NewEnqueuer(repo, newFakeBroker(), testProcessorLogger(), 0)

	msg := testInboundMessage()
	msg.MessageID = ""

	err := enqueuer.Enqueue(context.Background(), msg)
	require.Error(t, err)
	repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}
