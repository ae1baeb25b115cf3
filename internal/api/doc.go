// Package api exposes the REST surface of the assistant: conversation
// handle/resume, tool discovery, document ingestion, and metrics.
package api
