package providers

import "context"

// Job is a unit of scheduled work
type Job func(ctx context.Context)

// Scheduler runs jobs on recurring cron expressions
type Scheduler interface {
	// Register adds job under name on a five-field cron expression
	Register(name, spec string, job Job) error

	// Start begins dispatching registered jobs
	Start()

	// Stop prevents new dispatches and waits for running jobs or ctx
	Stop(ctx context.Context) error
}
