// Package llm provides an OpenRouter-compatible chat client used for song
// identification and roast generation.
//
// # Entry Points
//
// NewClient: construct client from Config (one client per model).
// Client.CompleteJSON: send system/user prompts, receive a cleaned JSON object.
// Client.CompleteText: send system/user prompts, receive free-form text.
// Client.HealthCheck: verify API key and model availability.
// JSONPayload: recover the object from fenced or prose-wrapped replies.
//
// # Retry Behaviour
//
// HTTP 408/429/5xx answers, empty replies, JSON replies without an object and
// network timeouts are retried with exponential backoff (base 1s, max 10s, up
// to 5 attempts by default). Retry-After is honored up to the cap. A rejected
// key (StatusError.Unauthorized) and context cancellation end the attempt.
//
// # Fallback
//
// Callers treat any returned error as final for the attempt and substitute
// their own fallback values.
package llm
