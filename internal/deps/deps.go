// Package deps reports whether the external binaries the encode phase shells
// out to can be found.
package deps

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Requirement names one external binary.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status is the lookup result for one Requirement.
type Status struct {
	Requirement
	Path      string
	Available bool
	Detail    string
}

// EncoderRequirements lists what drapto needs on PATH to transcode.
func EncoderRequirements() []Requirement {
	return []Requirement{
		{Name: "FFmpeg", Command: "ffmpeg", Description: "Encodes the export"},
		{Name: "FFprobe", Command: "ffprobe", Description: "Probes the source streams"},
	}
}

// Check resolves each requirement on PATH.
func Check(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		req.Command = strings.TrimSpace(req.Command)
		status := Status{Requirement: req}
		switch path, err := exec.LookPath(req.Command); {
		case req.Command == "":
			status.Detail = "command not configured"
		case err != nil:
			status.Detail = fmt.Sprintf("binary %q not found", req.Command)
		default:
			status.Path = path
			status.Available = true
		}
		results = append(results, status)
	}
	return results
}

// Missing joins the failures of required entries, or returns nil.
func Missing(statuses []Status) error {
	var errs []error
	for _, status := range statuses {
		if !status.Available && !status.Optional {
			errs = append(errs, fmt.Errorf("%s: %s", status.Name, status.Detail))
		}
	}
	return errors.Join(errs...)
}
