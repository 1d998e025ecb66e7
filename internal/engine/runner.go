package engine

import (
	"context"
	"sync"
)

// DefaultConcurrency bounds RunAll when no limit is given.
const DefaultConcurrency = 8

// Job is one independent measurement, typically a Loop bound to a target.
type Job struct {
	Name string
	Run  func(ctx context.Context) error
}

// JobResult is the outcome of a job.
type JobResult struct {
	Name string
	Err  error
}

type jobIndex struct {
	i   int
	job Job
}

// RunAll runs jobs on a bounded worker pool. Results come back in the order
// of jobs. Jobs not yet started when ctx is done report ctx.Err().
func RunAll(ctx context.Context, jobs []Job, concurrency int) []JobResult {
	results := make([]JobResult, len(jobs))
	if len(jobs) == 0 {
		return results
	}
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if concurrency > len(jobs) {
		concurrency = len(jobs)
	}

	queue := make(chan jobIndex, len(jobs))
	for i, j := range jobs {
		results[i].Name = j.Name
		queue <- jobIndex{i: i, job: j}
	}
	close(queue)

	// Start worker pool
	var wg sync.WaitGroup
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ji := range queue {
				if err := ctx.Err(); err != nil {
					results[ji.i].Err = err
					continue
				}
				results[ji.i].Err = ji.job.Run(ctx)
			}
		}()
	}
	wg.Wait()

	return results
}
