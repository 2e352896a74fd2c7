// Package pipeline executes the five roast stages for one queued run.
//
// Stages run strictly in order: init-session, transcribe, identify-song,
// generate-commentary, record-attempt. After each stage the result is written
// as a checkpoint; on a retried or reclaimed run every checkpointed stage is
// decoded instead of executed again. Inference failures are absorbed into
// sentinel or fallback results with OK=false. Only session store failures are
// fatal and move the run to errored.
//
// The runner re-reads the run status before every stage so an operator pause
// or terminate takes effect at the next stage boundary.
package pipeline
