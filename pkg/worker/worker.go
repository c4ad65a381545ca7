package worker

import "github.com/fjmorton/trackforge/pkg/logger"

var workerLogger = logger.Get("Worker")

type (
	WorkerWakeupChan chan int
	WorkerStatus     int

	// TaskFn is the unit of work executed by a Worker. The boolean
	// return indicates whether any work was actually performed; a
	// worker whose task reports no work will go back to sleep until
	// it is woken via it's wakeup channel.
	TaskFn func(Worker) (bool, error)
)

const (
	SLEEPING WorkerStatus = iota
	WORKING
	FINISHED
)

type Worker interface {
	Start()
	Status() WorkerStatus
	WakeupChan() WorkerWakeupChan
	Label() string
	Sleep() bool
	Close()
}

type taskWorker struct {
	label         string
	task          TaskFn
	wakeupChan    WorkerWakeupChan
	currentStatus WorkerStatus
}

func NewWorker(label string, task TaskFn) *taskWorker {
	return &taskWorker{
		label:         label,
		task:          task,
		wakeupChan:    make(WorkerWakeupChan),
		currentStatus: SLEEPING,
	}
}

// Start runs the workers task in a loop, sleeping whenever the task
// reports that no work was available. Start only returns once the
// workers wakeup channel has been closed, or the task errors.
func (worker *taskWorker) Start() {
	workerLogger.Emit(logger.NEW, "Starting worker %s\n", worker.label)
	worker.currentStatus = WORKING

	for {
		didWork, err := worker.task(worker)
		if err != nil {
			workerLogger.Emit(logger.ERROR, "Worker %s task reported an error(%T): %v\n", worker.label, err, err)
			break
		}

		if !didWork {
			if !worker.Sleep() {
				break
			}
		}
	}

	worker.currentStatus = FINISHED
	workerLogger.Emit(logger.STOP, "Worker %s has stopped\n", worker.label)
}

func (worker *taskWorker) Status() WorkerStatus { return worker.currentStatus }

func (worker *taskWorker) WakeupChan() WorkerWakeupChan { return worker.wakeupChan }

// Close closes the Worker by closing the WakeupChan. Note that this does
// not interrupt a currently running task.
func (worker *taskWorker) Close() {
	close(worker.wakeupChan)
}

func (worker *taskWorker) Label() string { return worker.label }

// Sleep puts a worker to sleep until it's wakeupChan is signalled
// from another goroutine. Returns 'false' if the wakeup channel was
// closed - indicating the worker should quit.
func (worker *taskWorker) Sleep() (isAlive bool) {
	worker.currentStatus = SLEEPING

	if _, isAlive = <-worker.wakeupChan; isAlive {
		worker.currentStatus = WORKING
	} else {
		worker.currentStatus = FINISHED
	}

	return isAlive
}
