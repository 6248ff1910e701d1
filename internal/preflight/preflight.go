// Package preflight provides readiness checks for the filesystem paths,
// disk space, and external binaries framerand depends on.
//
// The daemon runs RunAll once at startup and refuses to serve when a check
// fails; the CLI status command reuses the individual checks to display
// environment health.
package preflight

import (
	"framerand/internal/config"
	"framerand/internal/deps"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// Failed reports whether any required check failed.
func Failed(results []Result) bool {
	for _, result := range results {
		if !result.Passed {
			return true
		}
	}
	return false
}

// RunAll executes the filesystem checks for the given config.
func RunAll(cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckReadableDirectory("Video directory", cfg.Paths.VideoDir),
		CheckDirectoryAccess("Output directory", cfg.Paths.OutputDir),
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckReadableFile("Show data", cfg.Library.ShowDataPath),
	}
	if cfg.Library.MinFreeSpaceMiB > 0 {
		results = append(results, CheckFreeSpace("Output free space", cfg.Paths.OutputDir, cfg.Library.MinFreeSpaceMiB))
	}
	return results
}

// SystemDeps evaluates every external binary the configured features need.
// Both the daemon and the CLI status command use this to avoid duplicating
// the requirements list.
func SystemDeps(cfg *config.Config) []deps.Status {
	requirements := []deps.Requirement{
		{
			Name:        "FFmpeg",
			Command:     cfg.Producer.FFmpegBinary,
			Description: "Required for clip extraction",
		},
		{
			Name:        "FFprobe",
			Command:     cfg.Library.FFprobeBinary,
			Description: "Required for episode duration probing",
		},
	}
	if cfg.Producer.MinFrameStddev > 0 {
		requirements = append(requirements, deps.Requirement{
			Name:        "ImageMagick identify",
			Command:     cfg.Producer.IdentifyBinary,
			Description: "Required for blank-frame detection",
		})
	}
	return deps.CheckBinaries(requirements)
}
