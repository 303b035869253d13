package service

import (
	"context"
	"sync"
	"time"

	"form-analytics-service/internal/logger"
	"form-analytics-service/internal/model"
	"form-analytics-service/internal/repository"
)

// BatchEventWorker buffers raw conversion events and writes them in batches.
type BatchEventWorker interface {
	Enqueue(event model.Event)
	Shutdown()
}

type batchEventWorker struct {
	repo          repository.EventRepository
	log           *logger.Logger
	eventQueue    chan model.Event
	batchSize     int
	flushInterval time.Duration
	wg            sync.WaitGroup
	closeOnce     sync.Once
}

// NewBatchEventWorker starts the flush loop. A batch is written when it
// reaches batchSize or when interval elapses, whichever comes first.
func NewBatchEventWorker(repo repository.EventRepository, log *logger.Logger, bufferSize int, batchSize int, interval time.Duration) *batchEventWorker {
	worker := &batchEventWorker{
		repo:          repo,
		log:           log.With("component", "BatchEventWorker"),
		eventQueue:    make(chan model.Event, bufferSize),
		batchSize:     batchSize,
		flushInterval: interval,
	}
	worker.wg.Add(1)
	go worker.startLoop()
	return worker
}

// Enqueue never blocks the caller: when the buffer is full the raw event is
// dropped. Aggregate counters are updated independently, so only the raw log
// loses the event.
func (w *batchEventWorker) Enqueue(event model.Event) {
	select {
	case w.eventQueue <- event:
	default:
		w.log.Warn("event queue full, dropping raw event", "form_id", event.FormID, "type", event.Type)
	}
}

// Shutdown stops accepting events and blocks until the queue is flushed.
func (w *batchEventWorker) Shutdown() {
	w.closeOnce.Do(func() {
		w.log.Info("shutting down, draining queue", "pending", len(w.eventQueue))
		close(w.eventQueue)
		w.wg.Wait()
		w.log.Info("worker stopped")
	})
}

func (w *batchEventWorker) startLoop() {
	defer w.wg.Done()

	var batch []model.Event
	ticker := time.NewTicker(w.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-w.eventQueue:
			if !ok {
				if len(batch) > 0 {
					w.bulkInsert(batch)
				}
				return
			}

			batch = append(batch, event)
			if len(batch) >= w.batchSize {
				w.bulkInsert(batch)
				batch = nil
			}

		case <-ticker.C:
			if len(batch) > 0 {
				w.bulkInsert(batch)
				batch = nil
			}
		}
	}
}

func (w *batchEventWorker) bulkInsert(events []model.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := w.repo.CreateBatch(ctx, events); err != nil {
		w.log.Error("bulk insert failed", "count", len(events), "error", err)
		return
	}
	w.log.Debug("events flushed", "count", len(events))
}
