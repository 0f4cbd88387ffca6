// Package workers implements the pluggable nodes the engine routes between:
// the planner, the domain specialists (coder, reviewer, researcher,
// designer), and the fan-in aggregator. Each worker consults the capability
// resolver for a backend, reads the workflow state, and returns a delta plus
// a routing decision; none of them mutate state directly.
package workers
