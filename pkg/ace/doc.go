// Package ace implements Agentic Context Engineering: a closed learning loop
// that keeps a playbook of guidance bullets and refines it from observed
// usefulness.
//
// # Architecture
//
// The loop has three components around a playbook.Store:
//
//   - Generator: selects bullets, composes a prompt, calls the model gateway,
//     parses attribution markers, and writes feedback back to the store
//   - Reflector: runs a bounded analysis/assessment/refinement loop against
//     the gateway, mining a trajectory into structured insights
//   - Curator: turns insights into deduplicated delta operations against the
//     playbook
//
// Control flow is a closed loop: Generator produces a Trajectory, the
// Reflector mines it into Insights, the Curator emits DeltaOperations, the
// store applies them, and the next Generator call observes the updated
// playbook. The Manager ties the stages together and can process
// trajectories in the background.
//
// # Attribution markers
//
// The generator instructs the model to end its response with marker lines of
// the form
//
//	#helpful-<bulletId>
//	#harmful-<bulletId>
//
// referencing the ids it was shown. Marker parsing is line-oriented; free
// text elsewhere is ignored and never an error.
//
// # Parse fallbacks
//
// Every step that parses model output has a deterministic fallback chain:
// structured JSON first, a line-oriented textual scan second, and a safe
// default last. Malformed output degrades the result; it never raises.
//
// # Reference
//
// Based on the ACE paper (arXiv:2510.04618).
package ace
