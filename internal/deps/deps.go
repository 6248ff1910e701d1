// Package deps probes for the external binaries framerand shells out to.
package deps

import (
	"fmt"
	"os/exec"
	"strings"
)

// Requirement names one binary a configured feature needs.
type Requirement struct {
	Name        string
	Command     string
	Description string
}

// Status is the probe outcome for one requirement.
type Status struct {
	Name        string
	Command     string
	Description string
	Available   bool
	Detail      string
}

// CheckBinaries resolves each requirement's command on PATH. An empty
// command means a feature was enabled without configuring its binary.
func CheckBinaries(requirements []Requirement) []Status {
	statuses := make([]Status, len(requirements))
	for i, req := range requirements {
		statuses[i] = probe(req)
	}
	return statuses
}

func probe(req Requirement) Status {
	status := Status{
		Name:        req.Name,
		Command:     strings.TrimSpace(req.Command),
		Description: strings.TrimSpace(req.Description),
	}
	if status.Command == "" {
		status.Detail = "command not configured"
		return status
	}
	if _, err := exec.LookPath(status.Command); err != nil {
		status.Detail = fmt.Sprintf("binary %q not found", status.Command)
		return status
	}
	status.Available = true
	return status
}
