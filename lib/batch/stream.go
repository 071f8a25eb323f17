package batch

import (
	"context"
	"errors"
	"io"
	"sync"

	"golang.org/x/sync/errgroup"

	"gitlab.mdcatapult.io/informatics/software-engineering/mention-detection/lib/span"
)

var ErrStopped = errors.New("batch stream stopped")

type outcome struct {
	batch *Batch
	err   error
}

type job struct {
	candidates []span.Candidate
	out        chan outcome
}

// Stream delivers the batches of one or more passes in plan order. A planner goroutine cuts each pass
// into jobs, a fixed pool of workers extracts them, and at most QueueSize planned batches wait ahead
// of the consumer. Next and Stop belong to a single consumer goroutine.
type Stream struct {
	ctx     context.Context
	cancel  context.CancelFunc
	g       *errgroup.Group
	gctx    context.Context
	pending chan chan outcome
	current chan outcome

	once sync.Once
	err  error
}

// MiniBatch streams a single pass over the pools.
func (c *Constructor) MiniBatch(ctx context.Context, req Request) (*Stream, error) {
	return c.stream(ctx, req, false)
}

// InfiniteMiniBatch streams passes back to back, re-planning (and reshuffling) each time one is
// exhausted. It only ends on Stop, cancellation or an extraction error.
func (c *Constructor) InfiniteMiniBatch(ctx context.Context, req Request) (*Stream, error) {
	return c.stream(ctx, req, true)
}

func (c *Constructor) stream(ctx context.Context, req Request, infinite bool) (*Stream, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if infinite && c.Expected(req) == 0 {
		return nil, errNoCandidates
	}

	sctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(sctx)
	s := &Stream{
		ctx:     ctx,
		cancel:  cancel,
		g:       g,
		gctx:    gctx,
		pending: make(chan chan outcome, c.opts.QueueSize),
	}
	jobs := make(chan job)

	g.Go(func() error {
		defer close(jobs)
		defer close(s.pending)
		for {
			candidates := c.plan(req)
			for start := 0; start < len(candidates); start += req.BatchSize {
				end := start + req.BatchSize
				if end > len(candidates) {
					end = len(candidates)
				}
				out := make(chan outcome, 1)
				select {
				case s.pending <- out:
					queueDepth.Inc()
				case <-gctx.Done():
					return nil
				}
				select {
				case jobs <- job{candidates: candidates[start:end], out: out}:
				case <-gctx.Done():
					return nil
				}
			}
			if !infinite {
				return nil
			}
		}
	})

	for i := 0; i < c.opts.Workers; i++ {
		g.Go(func() error {
			for j := range jobs {
				b, err := c.build(j.candidates, req.Choice)
				j.out <- outcome{batch: b, err: err}
				if err != nil {
					return err
				}
			}
			return nil
		})
	}

	return s, nil
}

// Next blocks until the next batch in plan order is built. It returns io.EOF once a finite pass is
// exhausted, the extraction error that aborted the stream, ErrStopped after Stop, or the error of ctx.
// A cancelled ctx leaves the stream intact.
func (s *Stream) Next(ctx context.Context) (*Batch, error) {
	if s.err != nil {
		return nil, s.err
	}

	if s.current == nil {
		select {
		case out, ok := <-s.pending:
			if !ok {
				return nil, s.finish(nil)
			}
			queueDepth.Dec()
			s.current = out
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	select {
	case o := <-s.current:
		return s.deliver(o)
	case <-s.gctx.Done():
		// a worker may have finished just before the group was cancelled
		select {
		case o := <-s.current:
			return s.deliver(o)
		default:
			return nil, s.finish(nil)
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Stream) deliver(o outcome) (*Batch, error) {
	s.current = nil
	if o.err != nil {
		return nil, s.finish(o.err)
	}
	return o.batch, nil
}

// Stop cancels the workers and waits for them to exit. Calling it more than once, or after the
// stream ended, is harmless.
func (s *Stream) Stop() {
	s.finish(ErrStopped)
}

func (s *Stream) finish(cause error) error {
	s.once.Do(func() {
		s.cancel()
		werr := s.g.Wait()
		for range s.pending {
			queueDepth.Dec()
		}
		switch {
		case cause != nil:
			s.err = cause
		case werr != nil:
			s.err = werr
		case s.ctx.Err() != nil:
			s.err = s.ctx.Err()
		default:
			s.err = io.EOF
		}
	})
	return s.err
}

// Each calls fn with every batch until the stream ends or fn fails. The stream is stopped on return.
func (s *Stream) Each(ctx context.Context, fn func(*Batch) error) error {
	defer s.Stop()
	for {
		b, err := s.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(b); err != nil {
			return err
		}
	}
}
