// Package inference defines the three capability interfaces the pipeline
// calls (Transcriber, SongIdentifier, CommentaryGenerator) and their
// production adapters over WhisperX and an OpenRouter-compatible chat API.
//
// Adapters never fall back on their own. Any failure is returned wrapped in
// services.ErrUpstream and the calling stage decides what sentinel to use.
// Song identification responses are validated against an embedded JSON
// schema at this boundary so loosely typed model output never reaches the
// pipeline.
package inference
