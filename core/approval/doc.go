// Package approval tracks externally raised approval requests ("allow this
// command", "allow this file change") and gates execution on them.
//
// [NewQueue], [EvaluateGate], and [ApplyDecision] are pure functions over a
// []Request: the gate has no side effects and must be evaluated immediately
// before the gated action runs, never cached. [Book] is the mutex-guarded
// holder the orchestrator owns so seeds and decisions can arrive from other
// goroutines (HTTP handlers, the CLI) between gate evaluations.
package approval
