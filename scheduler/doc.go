// Package scheduler turns chunked documents into queued processing tasks.
//
// Each task is estimated with a linear cost model. A task whose estimate
// exceeds the usable execution budget is split into sub-tasks that each fit
// it; the original is kept as a non-runnable parent whose status is derived
// from its sub-tasks:
//
//	s, _ := scheduler.New(q)
//	res, err := s.ScheduleTask(ctx, scheduler.Request{FileName: "a.md", Chunks: chunks})
//	report, err := s.GetTaskStatus(ctx, res.MainTaskID)
//
// Cancelling a task that is already executing is forwarded to a Canceller,
// normally the background processor.
package scheduler
