// Package engine owns the mock server's executions. A Registry creates,
// starts and cancels executions, and completes running ones on a timer it
// owns per execution. All writes go through the registry; the store only
// persists what the registry decides.
package engine
