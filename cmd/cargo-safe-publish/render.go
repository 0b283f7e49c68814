package main

import (
	"time"

	"github.com/yuya-takeyama/cargo-safe-publish/pkg/failure"
	"github.com/yuya-takeyama/cargo-safe-publish/pkg/logger"
	"github.com/yuya-takeyama/cargo-safe-publish/pkg/manifest"
	"github.com/yuya-takeyama/cargo-safe-publish/pkg/pipeline"
)

var stepOrder = []pipeline.Step{
	pipeline.StepIntegrity,
	pipeline.StepBuildVerification,
	pipeline.StepArtifactGuard,
	pipeline.StepUpload,
	pipeline.StepPostPublish,
}

// progress prints a status line for each finished step.
func progress(rep *logger.Reporter, pkg manifest.Package, e pipeline.Event) {
	if e.Err != nil {
		return
	}
	switch e.Step {
	case pipeline.StepIntegrity:
		rep.Status("Checked", "files of %s against git", pkg)
	case pipeline.StepBuildVerification:
		rep.Status("Verified", "build of %s", pkg)
	case pipeline.StepArtifactGuard:
		rep.Status("Deleted", "verified archive %s", pkg.ArchiveBaseName())
	case pipeline.StepUpload:
		rep.Status("Published", "%s", pkg)
	}
}

func render(rep *logger.Reporter, out *pipeline.Outcome) {
	if out.Err == nil && len(out.Violations) > 0 {
		rep.Warning("published with %d uncommitted files:", len(out.Violations))
		rep.List(violationLines(out))
	}

	switch out.State {
	case pipeline.StateVerified:
		rep.Success("Verified", "%s matches the published archive (sha256 %s)", out.Package, out.Digest)
		summary(rep, out)
		return
	case pipeline.StateDryRunComplete:
		rep.Success("Finished", "dry run of %s; nothing was uploaded", out.Package)
		summary(rep, out)
		return
	}

	err := out.Err
	if err == nil {
		return
	}
	switch failure.KindOf(err) {
	case failure.KindIntegrityViolation:
		rep.Error("%v", err)
		rep.List(violationLines(out))
		rep.Block("commit or remove these files, list them in package.exclude, or pass --allow-dirty")
	case failure.KindBuildVerificationFailed, failure.KindUploadFailed:
		rep.Error("%v; check the cargo output above", err)
	case failure.KindPostPublishMismatch:
		rep.Error("%v", err)
		for _, d := range out.Report.Discrepancies {
			rep.Error("%s", d)
			if d.Diff != "" {
				rep.Diff(d.Diff)
			}
		}
	default:
		rep.Error("%v", err)
	}
	if failure.KindOf(err).Published() {
		rep.Warning("%s is already on the registry and stays there until it is yanked", out.Package.ArchiveBaseName())
	}
}

func violationLines(out *pipeline.Outcome) []string {
	lines := make([]string, 0, len(out.Violations))
	for _, v := range out.Violations {
		lines = append(lines, v.String())
	}
	return lines
}

// summary prints the time spent in every step that ran.
func summary(rep *logger.Reporter, out *pipeline.Outcome) {
	for _, s := range stepOrder {
		d, ok := out.Durations[s]
		if !ok {
			continue
		}
		rep.Status("Took", "%s in %s", d.Round(time.Millisecond), s)
	}
	rep.Status("Total", "%s", out.Finished.Sub(out.Started).Round(time.Millisecond))
}
