// Package hearth is the multi-agent orchestration core of a smart-home
// assistant. It turns one free-form user request into one or more agent
// invocations and a single synthesized reply.
//
// A request flows through three executors wired as a fixed pipeline:
// RouterExecutor picks the agent(s) via a schema-constrained LLM call,
// DispatchExecutor fans the request out to local and remote invokers with
// per-agent timeouts and failure isolation, and AggregatorExecutor merges
// the partial results into one user-facing message with clarification
// detection. The Engine owns the surrounding lifecycle: multi-turn session
// history (SessionCache), a durable per-conversation task log with a state
// machine (TaskManager), an optional routing-decision cache, and an
// observer bus for live activity streaming.
//
// LLM backends, embedding providers, and concrete skills stay behind the
// ChatClient, EmbeddingClient, and AIAgent interfaces; the core never
// depends on a specific provider.
package hearth
