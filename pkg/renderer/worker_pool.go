package renderer

import (
	"context"
	"fmt"
	"runtime"

	"github.com/df07/go-pathtracer/pkg/core"
	"golang.org/x/sync/errgroup"
)

// ScanlineTask represents one scanline for the worker pool
type ScanlineTask struct {
	Row int
}

// PixelResult contains one finished pixel
type PixelResult struct {
	Row   int
	Col   int
	Color core.Vec3 // Accumulated, not averaged
}

// WorkerPool manages parallel scanline rendering.
// The first worker error cancels the pool's context and is returned from Wait.
type WorkerPool struct {
	taskQueue   chan ScanlineTask
	resultQueue chan PixelResult
	workers     []*Worker
	numWorkers  int
	group       *errgroup.Group
	ctx         context.Context
}

// Worker handles individual scanline tasks
type Worker struct {
	ID          int
	renderer    *Renderer
	taskQueue   <-chan ScanlineTask
	resultQueue chan<- PixelResult
}

// NewWorkerPool creates a worker pool with the specified number of workers
func NewWorkerPool(ctx context.Context, renderer *Renderer, numWorkers, numTasks int) *WorkerPool {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}

	// Room for every scanline, and for one row in flight per worker
	group, groupCtx := errgroup.WithContext(ctx)
	wp := &WorkerPool{
		taskQueue:   make(chan ScanlineTask, numTasks),
		resultQueue: make(chan PixelResult, numWorkers*renderer.width),
		numWorkers:  numWorkers,
		group:       group,
		ctx:         groupCtx,
	}

	for i := 0; i < numWorkers; i++ {
		wp.workers = append(wp.workers, &Worker{
			ID:          i,
			renderer:    renderer,
			taskQueue:   wp.taskQueue,
			resultQueue: wp.resultQueue,
		})
	}

	return wp
}

// Start begins all workers
func (wp *WorkerPool) Start() {
	for _, worker := range wp.workers {
		wp.group.Go(func() error {
			return worker.run(wp.ctx)
		})
	}
}

// SubmitTask submits a scanline task to the worker pool
func (wp *WorkerPool) SubmitTask(task ScanlineTask) {
	wp.taskQueue <- task
}

// CloseTasks signals that no more tasks will be submitted
func (wp *WorkerPool) CloseTasks() {
	close(wp.taskQueue)
}

// Results returns the pixel stream. It is never closed; the consumer
// knows how many pixels to expect.
func (wp *WorkerPool) Results() <-chan PixelResult {
	return wp.resultQueue
}

// Done is closed when the pool's context is cancelled or a worker fails
func (wp *WorkerPool) Done() <-chan struct{} {
	return wp.ctx.Done()
}

// Wait blocks until every worker has exited and returns the first error
func (wp *WorkerPool) Wait() error {
	return wp.group.Wait()
}

// GetNumWorkers returns the number of workers in the pool
func (wp *WorkerPool) GetNumWorkers() int {
	return wp.numWorkers
}

// run is the main worker loop
func (w *Worker) run(ctx context.Context) error {
	for task := range w.taskQueue {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.renderTask(ctx, task); err != nil {
			return err
		}
	}
	return nil
}

// renderTask renders one scanline, turning a panic into an error for that row
func (w *Worker) renderTask(ctx context.Context, task ScanlineTask) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker %d: scanline %d: panic: %v", w.ID, task.Row, r)
		}
	}()

	return w.renderer.RenderScanline(task.Row, func(col int, color core.Vec3) error {
		select {
		case w.resultQueue <- PixelResult{Row: task.Row, Col: col, Color: color}:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
}
