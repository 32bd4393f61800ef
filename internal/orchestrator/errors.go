// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package orchestrator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/pdiddy/equity-research/pkg/types"
)

// ErrAllAnalystsFailed is matched by a JobError returned when no analyst
// produced a dataset.
var ErrAllAnalystsFailed = eris.New("all analysts failed")

// JobError is the job-level failure returned by Run. It records the phase
// the job was in when it stopped and the reason each analyst failed.
type JobError struct {
	JobID    string
	Phase    types.JobPhase
	Failures map[types.AnalystKind]string
}

func (e *JobError) Error() string {
	kinds := make([]string, 0, len(e.Failures))
	for k := range e.Failures {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)
	parts := make([]string, 0, len(kinds))
	for _, k := range kinds {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Failures[types.AnalystKind(k)]))
	}
	return fmt.Sprintf("job %s failed during %s: %d analysts failed (%s)",
		e.JobID, e.Phase, len(e.Failures), strings.Join(parts, "; "))
}

// Unwrap lets errors.Is match ErrAllAnalystsFailed.
func (e *JobError) Unwrap() error { return ErrAllAnalystsFailed }
