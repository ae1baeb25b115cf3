// Package agent implements the conversation orchestration engine: intent
// recognition with a deterministic fallback, a bounded ReAct planning loop
// with a clarification/resume state machine, tool invocation through the
// registry, the layered memory write-back, and the security guard applied at
// the handle/resume boundary.
package agent
