// Package llm contains adapters and shared types for invoking large language
// models. It abstracts away provider-specific APIs behind a single chat
// contract so the orchestrator can compose recognition, planning, and
// summarization prompts without caring which backend answers them.
package llm
