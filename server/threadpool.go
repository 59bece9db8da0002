/******************************************************************************
 *
 *  Description :
 *    Small worker pool for offloading provider API calls from room
 *    goroutines. Spawns goroutines lazily up to a fixed cap.
 *
 *****************************************************************************/
package main

// Task is a unit of work accepted by the pool.
type Task struct {
	work func()
}

// ThreadPool runs tasks on at most cap(sem) goroutines. Workers are started
// on demand and kept alive until Stop.
type ThreadPool struct {
	work chan *Task
	sem  chan struct{}
	stop chan struct{}
}

// NewThreadPool creates a pool limited to numWorkers concurrent goroutines.
func NewThreadPool(numWorkers int) *ThreadPool {
	return &ThreadPool{
		work: make(chan *Task),
		sem:  make(chan struct{}, numWorkers),
		stop: make(chan struct{}, numWorkers),
	}
}

// Schedule hands the task to an idle worker, starting a new one if the pool
// is below its cap. Blocks when all workers are busy and the cap is reached:
// backpressure on the caller is intended, carrier API calls are rate-limited
// anyway.
func (p *ThreadPool) Schedule(task *Task) {
	select {
	case p.work <- task:
	case p.sem <- struct{}{}:
		go p.worker(task)
	}
}

// Stop terminates all running workers.
func (p *ThreadPool) Stop() {
	for i := 0; i < cap(p.sem); i++ {
		p.stop <- struct{}{}
	}
}

func (p *ThreadPool) worker(task *Task) {
	defer func() { <-p.sem }()
	for {
		task.work()
		select {
		case task = <-p.work:
		case <-p.stop:
			return
		}
	}
}
