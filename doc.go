// Package ace is a Go implementation of a self-improving playbook engine for
// LLM coding assistants: the system answers queries, reflects on its own
// trajectories and folds the lessons back into the prompts of future queries.
//
// ace-go provides a playbook store, a closed learning loop and the ambient
// plumbing around them. It focuses on making it easy to:
//   - Accumulate guidance bullets with helpful/harmful usage counters
//   - Inject the most relevant bullets into each prompt
//   - Mine completed trajectories for reusable insights
//   - Curate insights into safe, deduplicated playbook deltas
//   - Persist the playbook between runs
//
// Key Components:
//
//   - Playbook: The authoritative bullet store (pkg/playbook) with atomic
//     operations, filtered queries, text and embedding search, feedback
//     counters and batch delta application.
//
//   - Learning loop (pkg/ace):
//     * Generator: selects bullets, renders the system prompt and records
//     attribution markers from the response
//     * Reflector: bounded analysis/assessment/refinement loop extracting
//     insights from a trajectory
//     * Curator: synthesizes delta operations from insights and
//     deduplicates additions against existing bullets
//     * Manager: wires the three into a closed loop with optional
//     background learning
//
//   - Gateway (pkg/llm): the minimal chat contract every loop stage speaks,
//     with an optional embedding capability discovered by type assertion
//     and a reference Anthropic adapter.
//
//   - Persistence (pkg/storage): SQLite snapshot store for the playbook.
//
// Getting Started:
//
//	store := playbook.NewStore(playbook.Config{})
//	gateway, err := llm.NewAnthropicGateway("", "claude-sonnet-4-5")
//	if err != nil {
//		log.Fatal(err)
//	}
//	manager := ace.NewManager(store, gateway, ace.ManagerOptions{})
//	result, err := manager.Process(ctx, "how do I reverse a slice?")
//
// Each Process call returns the generated trajectory along with the
// reflection and curation outcomes, and the store accumulates whatever the
// loop learned.
package ace
