// Package pipeline drains queued detector submissions into ingestion.
package pipeline

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"sentryline/internal/ingest"
	"sentryline/internal/logger"
)

// Source yields raw submission payloads. Pop returns nil when nothing arrived
// within its own wait window.
type Source interface {
	Pop(ctx context.Context) ([]byte, error)
	Close() error
}

// Submitter is the ingestion entry point.
type Submitter interface {
	Submit(ctx context.Context, sub ingest.Submission) (*ingest.Result, error)
}

// IntakePipeline reads submissions from a queue and ingests them on a pool
// of workers. Bad payloads are logged and dropped.
type IntakePipeline struct {
	source     Source
	submitter  Submitter
	workers    int
	retryDelay time.Duration
}

// NewIntakePipeline creates a pipeline with the given worker count.
func NewIntakePipeline(source Source, submitter Submitter, workers int) *IntakePipeline {
	if workers <= 0 {
		workers = 4
	}
	return &IntakePipeline{
		source:     source,
		submitter:  submitter,
		workers:    workers,
		retryDelay: 500 * time.Millisecond,
	}
}

// Run blocks until ctx is cancelled, then drains in-flight payloads.
func (p *IntakePipeline) Run(ctx context.Context) error {
	logger.Infof("Intake pipeline started: workers=%d", p.workers)

	msgCh := make(chan []byte, p.workers*4)

	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.workerLoop(msgCh)
		}()
	}

	p.readLoop(ctx, msgCh)
	close(msgCh)
	wg.Wait()

	logger.Infof("Intake pipeline stopped")
	return ctx.Err()
}

// Close releases the source.
func (p *IntakePipeline) Close() error {
	if p.source != nil {
		return p.source.Close()
	}
	return nil
}

func (p *IntakePipeline) readLoop(ctx context.Context, out chan<- []byte) {
	for {
		if ctx.Err() != nil {
			return
		}
		payload, err := p.source.Pop(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Errorf("Failed to pop submission: %v", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(p.retryDelay):
			}
			continue
		}
		if payload == nil {
			continue
		}
		select {
		case out <- payload:
		case <-ctx.Done():
			return
		}
	}
}

func (p *IntakePipeline) workerLoop(in <-chan []byte) {
	for payload := range in {
		var sub ingest.Submission
		if err := json.Unmarshal(payload, &sub); err != nil {
			logger.Warnf("Dropping malformed submission: %v", err)
			continue
		}
		// Queued work is finished even during shutdown.
		res, err := p.submitter.Submit(context.Background(), sub)
		if err != nil {
			logger.Warnf("Dropping submission %s: %v", sub.EventType, err)
			continue
		}
		logger.Debugf("Queued submission ingested: event=%s alert=%s", res.EventID, res.AlertID)
	}
}
