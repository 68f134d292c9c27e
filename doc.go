// Package evoflow executes directed workflow graphs of AI nodes and
// improves them with an evolutionary optimizer.
//
// A workflow graph is a set of nodes, each with a system prompt, a
// model and declared handoffs, terminating at the "end" sentinel. The
// runner dispatches eligible nodes concurrently, routes outputs along
// the handoffs each node actually takes, and synchronizes fan-in
// through waitFor join barriers with aggregated payloads.
//
// Key packages:
//
//   - core: the shared data model (graphs, invocations, payloads) and
//     the Gateway, Store and NodeRunner contracts.
//
//   - workflow: graph validation, the run scheduler with budget, rate
//     limit, retry/repair and cancellation semantics, and the run
//     service mirroring the invoke/status/cancel surface.
//
//   - evolution: genomes, populations, mutation and crossover
//     operators, fitness evaluation and the generation loop.
//
//   - llms: the Anthropic gateway adapter with per-model cost
//     accounting.
//
//   - store: in-memory and SQLite persistence of workflow versions and
//     node invocations.
//
//   - tools: the tool registry and MCP-discovered tools.
//
// The evoflow command under cmd/evoflow wires these together for use
// from the shell.
package evoflow
