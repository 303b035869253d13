package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"form-analytics-service/internal/logger"
	"form-analytics-service/internal/model"
	"form-analytics-service/internal/testdata/mockrepository"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

type BatchWorkerTestSuite struct {
	suite.Suite
	mockRepo *mockrepository.Repository
	worker   *batchEventWorker
}

// TestBatchWorkerSuite is the entry point for the suite runner.
func TestBatchWorkerSuite(t *testing.T) {
	suite.Run(t, new(BatchWorkerTestSuite))
}

// SetupTest runs before each test method.
func (s *BatchWorkerTestSuite) SetupTest() {
	s.mockRepo = new(mockrepository.Repository)
}

// TearDownTest runs after each test method.
func (s *BatchWorkerTestSuite) TearDownTest() {
	s.mockRepo.AssertExpectations(s.T())
}

func (s *BatchWorkerTestSuite) TestBatchSizeTrigger() {
	// Configuration for this specific case
	batchSize := 5
	bufferSize := 10
	flushInterval := 1 * time.Hour // Long interval to prevent timer trigger

	// Synchronization: We use a WaitGroup to detect when the background worker calls the repo
	var wg sync.WaitGroup
	wg.Add(1)

	// Expectation: CreateBatch should be called exactly once with 5 events
	s.mockRepo.On("CreateBatch", mock.Anything, mock.MatchedBy(func(events []model.Event) bool {
		return len(events) == batchSize
	})).Run(func(args mock.Arguments) {
		wg.Done()
	}).Return(nil)

	// Initialize worker
	s.worker = NewBatchEventWorker(s.mockRepo, logger.Nop(), bufferSize, batchSize, flushInterval)
	defer s.worker.Shutdown() // Ensure cleanup

	// Action: Fill the batch
	for i := 0; i < batchSize; i++ {
		s.worker.Enqueue(model.Event{FormID: "f1", Type: model.EventView})
	}

	// Assert: Wait for the async operation to complete
	s.waitForAsyncOp(&wg, "Batch Size Trigger")
}

func (s *BatchWorkerTestSuite) TestTimeIntervalTrigger() {
	// Configuration: Large batch size, but short interval
	batchSize := 10
	bufferSize := 10
	flushInterval := 50 * time.Millisecond

	var wg sync.WaitGroup
	wg.Add(1)

	// Expectation: A partial batch (3 events) should be flushed due to timer
	eventsToSend := 3
	s.mockRepo.On("CreateBatch", mock.Anything, mock.MatchedBy(func(events []model.Event) bool {
		return len(events) == eventsToSend
	})).Run(func(args mock.Arguments) {
		wg.Done()
	}).Return(nil)

	s.worker = NewBatchEventWorker(s.mockRepo, logger.Nop(), bufferSize, batchSize, flushInterval)
	defer s.worker.Shutdown()

	// Action: Send fewer events than batch size
	for i := 0; i < eventsToSend; i++ {
		s.worker.Enqueue(model.Event{FormID: "f1", Type: model.EventStart})
	}

	// Assert: Wait for the timer to trigger the flush
	s.waitForAsyncOp(&wg, "Time Interval Trigger")
}

func (s *BatchWorkerTestSuite) TestShutdownFlush() {
	// Configuration
	batchSize := 10
	flushInterval := 1 * time.Hour

	// Expectation: Shutdown should flush whatever is in the queue
	eventsToSend := 4
	s.mockRepo.On("CreateBatch", mock.Anything, mock.MatchedBy(func(events []model.Event) bool {
		return len(events) == eventsToSend
	})).Return(nil)

	s.worker = NewBatchEventWorker(s.mockRepo, logger.Nop(), 10, batchSize, flushInterval)

	// Action: Enqueue items
	for i := 0; i < eventsToSend; i++ {
		s.worker.Enqueue(model.Event{FormID: "f1", Type: model.EventSubmit})
	}

	// Action: Shutdown
	// This method blocks until the worker drains the queue, so we don't need a WaitGroup here.
	s.worker.Shutdown()

	// Assert: Verify mock was called
	s.mockRepo.AssertExpectations(s.T())
}

func (s *BatchWorkerTestSuite) TestGracefulErrorHandling() {
	// Configuration
	batchSize := 1
	flushInterval := 1 * time.Hour

	var wg sync.WaitGroup
	wg.Add(1)

	// Expectation: Repo returns an error (e.g., DB down), Worker should log it but not crash
	s.mockRepo.On("CreateBatch", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { wg.Done() }).
		Return(context.DeadlineExceeded)

	s.worker = NewBatchEventWorker(s.mockRepo, logger.Nop(), 10, batchSize, flushInterval)
	defer s.worker.Shutdown()

	s.worker.Enqueue(model.Event{FormID: "f1", Type: model.EventError})

	// Assert: Wait for processing
	s.waitForAsyncOp(&wg, "Error Handling")

	// If the test reaches here without panicking, the worker handled the error gracefully.
	s.mockRepo.AssertExpectations(s.T())
}

func (s *BatchWorkerTestSuite) TestEnqueueDropsWhenFull() {
	// The loop is parked inside a slow CreateBatch so the buffer cannot drain.
	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	s.mockRepo.On("CreateBatch", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			wg.Done()
			<-release
		}).
		Return(nil).Once()
	s.mockRepo.On("CreateBatch", mock.Anything, mock.Anything).Return(nil).Maybe()

	s.worker = NewBatchEventWorker(s.mockRepo, logger.Nop(), 1, 1, time.Hour)
	s.worker.Enqueue(model.Event{FormID: "f1", Type: model.EventView})
	s.waitForAsyncOp(&wg, "Blocked Flush")

	done := make(chan struct{})
	go func() {
		s.worker.Enqueue(model.Event{FormID: "f1", Type: model.EventView})
		s.worker.Enqueue(model.Event{FormID: "f1", Type: model.EventView})
		s.worker.Enqueue(model.Event{FormID: "f1", Type: model.EventView})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		s.T().Fatal("Enqueue blocked on a full queue")
	}

	close(release)
	s.worker.Shutdown()
}

// Helper method to wait for async operations with a timeout
func (s *BatchWorkerTestSuite) waitForAsyncOp(wg *sync.WaitGroup, testName string) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		// Success
		s.mockRepo.AssertExpectations(s.T())
	case <-time.After(1 * time.Second):
		s.T().Fatalf("Test '%s' timed out waiting for worker response", testName)
	}
}
