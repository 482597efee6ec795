package worker

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/andresmejia3/docmask/internal/ocr"
	"github.com/andresmejia3/docmask/internal/types"
	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
)

// Worker owns one OCR engine. Engines hold native state, so a Worker is used
// by a single goroutine at a time.
type Worker struct {
	ID     int
	Engine ocr.Engine
}

// NewWorker builds the engine for worker id.
func NewWorker(id int, factory ocr.Factory) (*Worker, error) {
	eng, err := factory()
	if err != nil {
		return nil, fmt.Errorf("worker %d failed to start: %w", id, err)
	}
	return &Worker{ID: id, Engine: eng}, nil
}

// Recognize runs OCR on img.
func (w *Worker) Recognize(ctx context.Context, img *image.RGBA) ([]types.Token, error) {
	toks, err := w.Engine.Recognize(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("worker %d (%s): %w", w.ID, w.Engine.Name(), err)
	}
	return toks, nil
}

func (w *Worker) Close() error {
	return w.Engine.Close()
}

// Pool is a fixed set of workers shared between goroutines. Callers borrow a
// worker with Acquire and must hand it back with Release.
type Pool struct {
	idle chan *Worker
	all  []*Worker
	log  *log.Logger
}

// NewPool starts size workers. If any fails to start, the ones already
// running are closed.
func NewPool(size int, factory ocr.Factory, logger *log.Logger) (*Pool, error) {
	if size < 1 {
		size = 1
	}
	if logger == nil {
		logger = log.Default()
	}
	p := &Pool{idle: make(chan *Worker, size), log: logger}
	for i := 0; i < size; i++ {
		w, err := NewWorker(i, factory)
		if err != nil {
			p.Close()
			return nil, err
		}
		p.all = append(p.all, w)
		p.idle <- w
	}
	logger.Debug("worker pool ready", "workers", size)
	return p, nil
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.all) }

// Acquire blocks until a worker is free or ctx is done.
func (p *Pool) Acquire(ctx context.Context) (*Worker, error) {
	select {
	case w := <-p.idle:
		return w, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Release returns w to the pool.
func (p *Pool) Release(w *Worker) {
	p.idle <- w
}

// Do runs fn with a borrowed worker.
func (p *Pool) Do(ctx context.Context, fn func(*Worker) error) error {
	w, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer p.Release(w)
	return fn(w)
}

// Close shuts every engine down. It must not be called while workers are
// borrowed.
func (p *Pool) Close() error {
	var errs []error
	for _, w := range p.all {
		if err := w.Close(); err != nil {
			p.log.Warn("failed to close worker", "id", w.ID, "err", err)
			errs = append(errs, err)
		}
	}
	p.all = nil
	return errors.Join(errs...)
}

// Run processes tasks on the pool and returns results in task order. The
// first error cancels the remaining tasks.
func Run[R any](ctx context.Context, p *Pool, tasks []types.DocumentTask, fn func(context.Context, *Worker, types.DocumentTask) (R, error)) ([]R, error) {
	results := make([]R, len(tasks))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.Size())
	for i, task := range tasks {
		g.Go(func() error {
			return p.Do(ctx, func(w *Worker) error {
				r, err := fn(ctx, w, task)
				if err != nil {
					return err
				}
				results[i] = r
				return nil
			})
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
