package preflight

import (
	"context"

	"roastmachine/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunLocal checks state, work and log directories without network access.
func RunLocal(cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}
	results := []Result{
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
		CheckDirectoryAccess("Work directory", cfg.Paths.WorkDir),
	}
	if cfg.Paths.LogDir != "" {
		results = append(results, CheckDirectoryAccess("Log directory", cfg.Paths.LogDir))
	}
	return results
}

// RunAll executes the local checks plus an LLM reachability check per
// distinct model.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}
	results := RunLocal(cfg)
	results = append(results, CheckLLM(ctx, "Identification LLM", cfg, cfg.IdentifyModel()))
	if cfg.CommentaryModel() != cfg.IdentifyModel() {
		results = append(results, CheckLLM(ctx, "Commentary LLM", cfg, cfg.CommentaryModel()))
	}
	return results
}

// Failed returns the checks that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
