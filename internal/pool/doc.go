/*
Package pool runs a lazily produced sequence of tasks with bounded, adjustable
concurrency, and hands back each task's result as soon as it completes.

An [Engine] owns a [Source] of task descriptors. It starts tasks only as its
concurrency limit allows, tracks each started task until its result is
claimed, and surfaces results in completion order rather than submission
order. Callers consume an engine in exactly one of two ways at a time:

  - In the foreground, by opening a [Session] (or ranging over [Engine.All])
    and pulling one result per step.
  - In the background, by calling [Engine.Start], which drives the engine
    from an internal goroutine until [Engine.Stop] is called or the run ends.

Either way, the run as a whole settles a single [lifecycle.Handle] exactly
once, available from [Engine.Lifecycle]. An [ErrorHandler] decides per failed
task whether to skip the failure, stop the run gracefully, or fail the run.
*/
package pool
