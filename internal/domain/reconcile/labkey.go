package reconcile

import (
	"context"
	"fmt"
	"strings"

	"github.com/moka-guys/GeL-Reports/internal/platform/remote"
)

// LabKeySource runs the LabKey lookup script on the application server and
// parses the participant demographics from its stdout.
type LabKeySource struct {
	runner remote.Runner
	script string
}

func NewLabKeySource(runner remote.Runner, script string) *LabKeySource {
	return &LabKeySource{runner: runner, script: script}
}

// Lookup invokes the remote LabKey script with the participant ID. The script
// prints one line: name,dob,nhs (optionally quoted). Anything on stderr, or an
// empty stdout, is a lookup failure.
func (s *LabKeySource) Lookup(ctx context.Context, participantID string) (Demographics, error) {
	command := fmt.Sprintf("%s -i %s", s.script, participantID)
	stdout, stderr, err := s.runner.Run(ctx, command)
	if err != nil {
		return Demographics{}, err
	}
	if stderr != "" {
		return Demographics{}, fmt.Errorf("labkey lookup for %s failed: %s", participantID, strings.TrimSpace(stderr))
	}

	line := strings.Trim(strings.TrimRight(stdout, "\n"), "'")
	if line == "" {
		return Demographics{}, fmt.Errorf("labkey lookup for %s returned no output", participantID)
	}
	parts := strings.Split(line, ",")
	if len(parts) != 3 {
		return Demographics{}, fmt.Errorf("labkey lookup for %s returned malformed output %q", participantID, line)
	}
	return Demographics{
		Name:        parts[0],
		DateOfBirth: parts[1],
		NHSNumber:   parts[2],
	}, nil
}
