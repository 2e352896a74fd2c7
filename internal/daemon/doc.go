// Package daemon coordinates the long-running roast machine process.
//
// It wires configuration, the run queue, the session store, the workflow
// manager and the HTTP API into a single lifecycle with flock-based locking
// to prevent multiple instances. The HTTP layer validates uploads, hands them
// to the api facade, and wraps every response in the JSON envelope.
//
// Keep orchestration logic here: pipeline stages live in internal/pipeline
// while the daemon focuses on startup, shutdown, and transport.
package daemon
