// Package postpublish downloads the version that was just published and
// compares it with the files that were verified locally.
package postpublish

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/yuya-takeyama/cargo-safe-publish/pkg/cargo"
	"github.com/yuya-takeyama/cargo-safe-publish/pkg/failure"
	"github.com/yuya-takeyama/cargo-safe-publish/pkg/integrity"
	"github.com/yuya-takeyama/cargo-safe-publish/pkg/logger"
	"github.com/yuya-takeyama/cargo-safe-publish/pkg/manifest"
	"github.com/yuya-takeyama/cargo-safe-publish/pkg/registry"
)

const Step = "post-publish"

// Result is what the verifier learned about the published version.
type Result struct {
	Report Report
	SHA256 string
	Files  int
}

type Verifier struct {
	client registry.Client
	mode   CompareMode
	log    *slog.Logger
}

func New(client registry.Client, mode CompareMode, log *slog.Logger) *Verifier {
	if mode == "" {
		mode = CompareExact
	}
	return &Verifier{client: client, mode: mode, log: logger.OrDiscard(log)}
}

// Verify downloads pkg from the registry and compares it with expected.
// A registry that never serves the version is reported as
// RegistryUnavailable; any difference as PostPublishMismatch. Both leave the
// Result populated as far as it got.
func (v *Verifier) Verify(ctx context.Context, pkg manifest.Package, expected integrity.FileSet) (Result, error) {
	data, err := v.client.Download(ctx, pkg.Name, pkg.Version)
	if err != nil {
		return Result{}, failure.Wrap(err, failure.KindRegistryUnavailable,
			fmt.Sprintf("could not download %s %s from the registry to verify it; check the published version by hand", pkg.Name, pkg.Version)).
			Step(Step).Build()
	}

	pub, err := Extract(data, cargo.ArchiveBaseName(pkg.Name, pkg.Version))
	if err != nil {
		return Result{}, failure.Wrap(err, failure.KindPostPublishMismatch,
			fmt.Sprintf("the published archive of %s %s could not be read", pkg.Name, pkg.Version)).
			Step(Step).Build()
	}
	res := Result{SHA256: pub.SHA256, Files: len(pub.Files)}
	v.log.Info("downloaded published archive", logger.Package(pkg.Name), logger.Version(pkg.Version),
		logger.Digest(pub.SHA256), logger.Count(res.Files))

	read := func(p string) ([]byte, error) {
		return os.ReadFile(filepath.Join(pkg.Root, filepath.FromSlash(p)))
	}
	res.Report, err = Compare(expected, pub, read, v.mode)
	if err != nil {
		return res, failure.Wrap(err, failure.KindPostPublishMismatch, "could not compare the published files").
			Step(Step).Build()
	}
	if !res.Report.Empty() {
		return res, failure.Mismatch(fmt.Sprintf(
			"found %d differences between the published and the local version; double check if that is intended, otherwise yank version %s of `%s`",
			len(res.Report.Discrepancies), pkg.Version, pkg.Name)).
			Step(Step).Build()
	}
	return res, nil
}
