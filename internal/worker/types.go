package worker

import "context"

// Job is one unit of analysis work executed by the pool.
type Job func(ctx context.Context) error
