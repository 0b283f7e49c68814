// Package report renders the outcome of a run as a JSON audit record.
package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/yuya-takeyama/cargo-safe-publish/pkg/failure"
	"github.com/yuya-takeyama/cargo-safe-publish/pkg/pipeline"
	"github.com/yuya-takeyama/cargo-safe-publish/pkg/s3client"
)

// Report represents one publish run
type Report struct {
	RunID      string        `json:"run_id"`
	Tool       string        `json:"tool"`
	Package    Package       `json:"package"`
	State      string        `json:"state"`
	History    []string      `json:"history"`
	FailedStep string        `json:"failed_step,omitempty"`
	Error      *Error        `json:"error,omitempty"`
	Files      []string      `json:"files"`
	Violations []Violation   `json:"violations"`
	Warnings   []string      `json:"warnings,omitempty"`
	Diffs      []Discrepancy `json:"discrepancies"`
	SHA256     string        `json:"sha256,omitempty"`
	Steps      []StepTiming  `json:"steps"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Summary    Summary       `json:"summary"`
}

type Package struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Root    string `json:"root"`
}

type Error struct {
	Kind     string `json:"kind,omitempty"`
	Severity string `json:"severity,omitempty"`
	Message  string `json:"message"`
	ExitCode int    `json:"exit_code"`
}

type Violation struct {
	Path   string `json:"path"`
	Kind   string `json:"kind"`
	Detail string `json:"detail"`
}

type Discrepancy struct {
	Path string `json:"path"`
	Kind string `json:"kind"`
	Diff string `json:"diff,omitempty"`
}

type StepTiming struct {
	Step       string  `json:"step"`
	DurationMS float64 `json:"duration_ms"`
}

type Summary struct {
	Files         int  `json:"files"`
	Violations    int  `json:"violations"`
	Discrepancies int  `json:"discrepancies"`
	Published     bool `json:"published"`
	Verified      bool `json:"verified"`
}

var stepOrder = []pipeline.Step{
	pipeline.StepIntegrity,
	pipeline.StepBuildVerification,
	pipeline.StepArtifactGuard,
	pipeline.StepUpload,
	pipeline.StepPostPublish,
}

// Build converts an Outcome into a Report.
func Build(runID, tool string, out *pipeline.Outcome) Report {
	r := Report{
		RunID: runID,
		Tool:  tool,
		Package: Package{
			Name:    out.Package.Name,
			Version: out.Package.Version,
			Root:    out.Package.Root,
		},
		State:      string(out.State),
		FailedStep: string(out.FailedStep),
		Files:      out.Expected.Paths(),
		Violations: []Violation{},
		Warnings:   out.Warnings,
		Diffs:      []Discrepancy{},
		SHA256:     out.Digest,
		Steps:      []StepTiming{},
		StartedAt:  out.Started.UTC(),
		FinishedAt: out.Finished.UTC(),
	}

	for _, s := range out.History {
		r.History = append(r.History, string(s))
		if s == pipeline.StatePublished {
			r.Summary.Published = true
		}
	}
	for _, v := range out.Violations {
		r.Violations = append(r.Violations, Violation{Path: v.Path, Kind: string(v.Kind), Detail: v.Detail})
	}
	for _, d := range out.Report.Discrepancies {
		r.Diffs = append(r.Diffs, Discrepancy{Path: d.Path, Kind: string(d.Kind), Diff: d.Diff})
	}
	for _, s := range stepOrder {
		if d, ok := out.Durations[s]; ok {
			r.Steps = append(r.Steps, StepTiming{Step: string(s), DurationMS: float64(d.Microseconds()) / 1000})
		}
	}
	if out.Err != nil {
		r.Error = &Error{Message: out.Err.Error(), ExitCode: failure.ExitCode(out.Err)}
		if fe, ok := failure.As(out.Err); ok {
			r.Error.Kind = string(fe.Kind())
			r.Error.Severity = string(fe.Severity())
		}
	}

	r.Summary.Files = len(r.Files)
	r.Summary.Violations = len(r.Violations)
	r.Summary.Discrepancies = len(r.Diffs)
	r.Summary.Verified = out.State == pipeline.StateVerified
	return r
}

// FileName is the default object name of the report.
func (r Report) FileName() string {
	return fmt.Sprintf("%s-%s-%s.json", r.Package.Name, r.Package.Version, r.RunID)
}

func (r Report) Marshal() ([]byte, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal report: %w", err)
	}
	return append(data, '\n'), nil
}

// WriteFile writes the report as indented JSON to path.
func WriteFile(path string, r Report) error {
	data, err := r.Marshal()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write report file: %w", err)
	}
	return nil
}

// Upload stores the report at uri; a prefix URI gets FileName appended.
func Upload(ctx context.Context, client s3client.Client, uri string, r Report) (string, error) {
	bucket, key, err := s3client.ParseS3URI(uri)
	if err != nil {
		return "", err
	}
	key = s3client.ObjectKey(key, r.FileName())

	data, err := r.Marshal()
	if err != nil {
		return "", err
	}
	err = client.PutObject(ctx, &s3client.PutObjectRequest{
		Bucket:      bucket,
		Key:         key,
		Body:        bytes.NewReader(data),
		ContentType: "application/json",
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("s3://%s/%s", bucket, key), nil
}
