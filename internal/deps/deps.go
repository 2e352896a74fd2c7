// Package deps reports whether the external binaries the transcription stage
// shells out to are installed.
package deps

import (
	"fmt"
	"os/exec"
	"strings"
)

// Requirement defines an external binary the roast machine relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// CheckBinaries evaluates the provided requirements and reports availability.
// Available commands are recorded with their resolved path.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		switch resolved, err := resolve(cmd); {
		case cmd == "":
			status.Detail = "command not configured"
		case err != nil:
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
		default:
			status.Command = resolved
			status.Available = true
		}
		results = append(results, status)
	}
	return results
}

// MissingRequired returns the names of required dependencies that are unavailable.
func MissingRequired(statuses []Status) []string {
	var missing []string
	for _, status := range statuses {
		if !status.Available && !status.Optional {
			missing = append(missing, status.Name)
		}
	}
	return missing
}

func resolve(cmd string) (string, error) {
	if cmd == "" {
		return "", nil
	}
	return exec.LookPath(cmd)
}
