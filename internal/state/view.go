// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package state

import "github.com/pdiddy/equity-research/pkg/types"

// View is what an analyst sees of the record: identity, the site scrape,
// its own kind, the transcript and the job's publisher. It exposes no
// dataset of any kind.
type View struct {
	state *ResearchState
	kind  types.AnalystKind
}

// Kind returns the analyst kind the view was issued for.
func (v *View) Kind() types.AnalystKind { return v.kind }

// Company returns the company identity.
func (v *View) Company() types.Company { return v.state.company }

// JobID returns the job identifier.
func (v *View) JobID() string { return v.state.jobID }

// SiteScrape returns the first-party site text, if any.
func (v *View) SiteScrape() string { return v.state.siteScrape }

// Note appends a message to the job transcript. Notes from an analyst that
// outlived its job are dropped.
func (v *View) Note(msg string) {
	if v.state.frozen.Load() {
		return
	}
	v.state.transcript.Append(msg)
}

// Publish sends a progress event for the job, tagging it with the view's kind.
func (v *View) Publish(status types.JobStatus, message string, result types.StatusResult) {
	if v.state.frozen.Load() {
		return
	}
	if result.AnalystType == "" {
		result.AnalystType = string(v.kind)
	}
	if result.Step == "" {
		result.Step = v.kind.Label()
	}
	v.state.Publisher().Publish(v.state.jobID, status, message, result)
}
