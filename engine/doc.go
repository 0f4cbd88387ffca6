// Package engine is the workflow orchestration core: the router state
// machine, the concurrent fan-out dispatcher, the approval gate, and the
// bounded-retry error handler.
//
// An instance progresses node-by-node sequentially, except during fan-out
// where sub-tasks run as isolated concurrent branches. Every transition is
// applied and checkpointed atomically; an outstanding approval request
// suspends the instance until an external decision arrives.
package engine
