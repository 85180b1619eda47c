// Package gather runs independent lookups concurrently where a failed lookup
// degrades to a default value instead of failing the whole batch.
package gather

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Task is one lookup. Fallback, if set, runs when Run returns an error.
type Task struct {
	Name     string
	Run      func(ctx context.Context) error
	Fallback func()
}

// Failure records a task whose Run returned an error
type Failure struct {
	Name string
	Err  error
}

// All runs every task concurrently and waits for all of them.
// Sibling tasks are never cancelled; failures are returned in task order.
func All(ctx context.Context, tasks ...Task) []Failure {
	return AllLimit(ctx, 0, tasks...)
}

// AllLimit is All with at most limit tasks in flight. A non-positive limit means no limit.
func AllLimit(ctx context.Context, limit int, tasks ...Task) []Failure {
	errs := make([]error, len(tasks))

	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, task := range tasks {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return nil
			}
			errs[i] = task.Run(ctx)
			return nil
		})
	}
	_ = g.Wait()

	var failures []Failure
	for i, err := range errs {
		if err == nil {
			continue
		}
		if tasks[i].Fallback != nil {
			tasks[i].Fallback()
		}
		failures = append(failures, Failure{Name: tasks[i].Name, Err: err})
	}
	return failures
}

// Names lists the names of failed tasks
func Names(failures []Failure) []string {
	names := make([]string, 0, len(failures))
	for _, f := range failures {
		names = append(names, f.Name)
	}
	return names
}
