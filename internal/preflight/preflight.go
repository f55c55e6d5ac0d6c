package preflight

import (
	"context"

	"reel/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
	// Optional results are reported but never block startup.
	Optional bool
}

// RunAll executes the filesystem and device checks for cfg.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		optional(CheckReadable("Source base", cfg.Paths.SourceBase)),
		CheckDestination("Series destination", cfg.Paths.SeriesDest),
		CheckDestination("Movie destination", cfg.Paths.MovieDest),
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
		CheckDestination("Hardware lock directory", parentDir(cfg.Hardware.LockPath)),
	}
	if cfg.Hardware.Device != "" {
		results = append(results, optional(CheckDevice("VAAPI device", cfg.Hardware.Device)))
	}
	return results
}

// Failed returns the required checks that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed && !r.Optional {
			out = append(out, r)
		}
	}
	return out
}

func optional(r Result) Result {
	r.Optional = true
	return r
}
