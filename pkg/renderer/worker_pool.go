package renderer

import (
	"image"
	"runtime"
	"sync"
)

// BandTask represents a band of rows for the worker pool
type BandTask struct {
	Bounds image.Rectangle
	TaskID int         // For deterministic ordering
	Frame  *frameState // Shared frame state, read only except for the band's own pixels
}

// BandResult contains the result from rendering a band
type BandResult struct {
	TaskID int
	Stats  RenderStats
}

// WorkerPool manages parallel band rendering
type WorkerPool struct {
	taskQueue   chan BandTask
	resultQueue chan BandResult
	workers     []*Worker
	numWorkers  int
	wg          sync.WaitGroup
	stopOnce    sync.Once
}

// Worker handles individual band rendering tasks
type Worker struct {
	ID          int
	taskQueue   chan BandTask
	resultQueue chan BandResult
}

// NewWorkerPool creates a worker pool with the specified number of workers
// for images of the given height cut into bands of bandHeight rows
func NewWorkerPool(height, bandHeight, numWorkers int) *WorkerPool {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	maxBands := (height + bandHeight - 1) / bandHeight

	wp := &WorkerPool{
		taskQueue:   make(chan BandTask, maxBands),   // Buffer for all bands of a frame
		resultQueue: make(chan BandResult, maxBands), // Buffer for all results of a frame
		numWorkers:  numWorkers,
	}

	for i := 0; i < numWorkers; i++ {
		wp.workers = append(wp.workers, &Worker{
			ID:          i,
			taskQueue:   wp.taskQueue,
			resultQueue: wp.resultQueue,
		})
	}

	return wp
}

// Start begins all workers
func (wp *WorkerPool) Start() {
	for _, worker := range wp.workers {
		wp.wg.Add(1)
		go worker.run(&wp.wg)
	}
}

// Stop gracefully shuts down all workers
func (wp *WorkerPool) Stop() {
	wp.stopOnce.Do(func() {
		close(wp.taskQueue) // No more tasks
		wp.wg.Wait()        // Wait for workers to finish
		close(wp.resultQueue)
	})
}

// SubmitTask submits a band task to the worker pool
func (wp *WorkerPool) SubmitTask(task BandTask) {
	wp.taskQueue <- task
}

// GetResult retrieves a completed band result
func (wp *WorkerPool) GetResult() (BandResult, bool) {
	result, ok := <-wp.resultQueue
	return result, ok
}

// GetNumWorkers returns the number of workers in the pool
func (wp *WorkerPool) GetNumWorkers() int {
	return wp.numWorkers
}

// run is the main worker loop
func (w *Worker) run(wg *sync.WaitGroup) {
	defer wg.Done()

	for task := range w.taskQueue {
		// Bands never overlap, so writing to the shared image is safe
		stats := task.Frame.renderBounds(task.Bounds)

		w.resultQueue <- BandResult{
			TaskID: task.TaskID,
			Stats:  stats,
		}
	}
}
