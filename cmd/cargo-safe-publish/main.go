package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/yuya-takeyama/cargo-safe-publish/internal/config"
	"github.com/yuya-takeyama/cargo-safe-publish/internal/metrics"
	"github.com/yuya-takeyama/cargo-safe-publish/pkg/cargo"
	"github.com/yuya-takeyama/cargo-safe-publish/pkg/failure"
	"github.com/yuya-takeyama/cargo-safe-publish/pkg/guard"
	"github.com/yuya-takeyama/cargo-safe-publish/pkg/logger"
	"github.com/yuya-takeyama/cargo-safe-publish/pkg/manifest"
	"github.com/yuya-takeyama/cargo-safe-publish/pkg/pipeline"
	"github.com/yuya-takeyama/cargo-safe-publish/pkg/postpublish"
	"github.com/yuya-takeyama/cargo-safe-publish/pkg/registry"
	"github.com/yuya-takeyama/cargo-safe-publish/pkg/report"
	"github.com/yuya-takeyama/cargo-safe-publish/pkg/s3client"
	"github.com/yuya-takeyama/cargo-safe-publish/pkg/vcs"
	"github.com/yuya-takeyama/cargo-safe-publish/pkg/verifier"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
	builtBy = "unknown"
)

var (
	manifestPath   string
	packageName    string
	dryRun         bool
	noVerify       bool
	allowDirty     bool
	registryURL    string
	compareMode    string
	precedence     string
	retries        int
	configFile     string
	reportJSONFile string
	reportS3URI    string
	metricsFile    string
	profile        string
	region         string
	quiet          bool
	verbose        bool

	// cargoArgs are the arguments passed through to cargo publish.
	cargoArgs []string
)

func main() {
	rootCmd := newRootCmd()
	own, forward := splitCargoArgs(rootCmd.Flags(), os.Args[1:])
	rootCmd.SetArgs(own)
	cargoArgs = forward

	if err := rootCmd.Execute(); err != nil {
		var reported *reportedError
		if !errors.As(err, &reported) {
			logger.NewReporter(os.Stderr, false).Error("%v", err)
		}
		os.Exit(failure.ExitCode(err))
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "cargo-safe-publish [safe-publish] [flags] [cargo publish flags]",
		Short: "A safer cargo publish",
		Long: `cargo-safe-publish publishes a crate only if every file that goes into the
package is committed to git, deletes the verified archive before the upload
so that cargo packages the sources again, and finally downloads the published
version to compare it with the local files.

Flags not listed below are passed to both cargo publish calls.`,
		Version:       fmt.Sprintf("%s (commit: %s, built at: %s by %s)", version, commit, date, builtBy),
		Args:          cobra.ArbitraryArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE:          run,
	}
	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return failure.Wrap(err, failure.KindConfig, "invalid arguments").Build()
	})

	f := rootCmd.Flags()
	f.StringVar(&manifestPath, "manifest-path", "", "Path to Cargo.toml")
	f.StringVarP(&packageName, "package", "p", "", "Package to publish")
	f.BoolVar(&dryRun, "dry-run", false, "Check and verify the package without uploading")
	f.BoolVar(&noVerify, "no-verify", false, "Skip the verification build")
	f.BoolVar(&allowDirty, "allow-dirty", false, "Publish even if files that are not committed would be packaged")
	f.StringVar(&registryURL, "registry-url", "", "Base URL of the registry download API (default https://crates.io)")
	f.StringVar(&compareMode, "compare", "", "How published files are compared: exact or whitespace (default exact)")
	f.StringVar(&precedence, "precedence", "", "How include and exclude rules combine: cargo, last-match or most-specific (default cargo)")
	f.IntVar(&retries, "retries", -1, "Download retries while the registry has not caught up (default 5)")
	f.StringVar(&configFile, "config", "", "Config file (default "+config.DefaultFileName+" in the package directory)")
	f.StringVar(&reportJSONFile, "report-json-file", "", "Write the run report as JSON to this file")
	f.StringVar(&reportS3URI, "report-s3-uri", "", "Upload the run report to this S3 URI (s3://bucket/prefix/)")
	f.StringVar(&metricsFile, "metrics-file", "", "Write Prometheus metrics of the run to this file")
	f.StringVar(&profile, "profile", "", "AWS profile used for --report-s3-uri")
	f.StringVar(&region, "region", "", "AWS region used for --report-s3-uri")
	f.BoolVarP(&quiet, "quiet", "q", false, "Only print errors")
	f.BoolVarP(&verbose, "verbose", "v", false, "Print debug logs")
	rootCmd.InitDefaultHelpFlag()
	rootCmd.InitDefaultVersionFlag()

	return rootCmd
}

// settings is the merged view of flags and config file.
type settings struct {
	registryURL string
	compare     postpublish.CompareMode
	pipeline    pipeline.Options
	reportJSON  string
	reportS3    string
	metricsFile string
}

func run(cmd *cobra.Command, args []string) error {
	if err := checkPositional(args); err != nil {
		return failure.Wrap(err, failure.KindConfig, "invalid arguments").Build()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runID := uuid.NewString()
	log := logger.New(os.Stderr, logger.Options{Quiet: quiet, Verbose: verbose}).With(logger.RunID(runID))
	rep := logger.NewReporter(os.Stderr, quiet)

	cargoBin := os.Getenv("CARGO")
	pkg, err := manifest.NewCargoReader(cargo.NewExecRunner(cargoBin, nil, nil), "", manifestPath, packageName).Read(ctx)
	if err != nil {
		return failure.Wrap(err, failure.KindConfig, "could not read the package manifest").Build()
	}
	log = log.With(logger.Package(pkg.Name), logger.Version(pkg.Version))
	rep.Status("Checking", "%s", pkg)

	cfg, err := loadConfig(pkg.Root)
	if err != nil {
		return failure.Wrap(err, failure.KindConfig, "could not load the configuration").Build()
	}
	s, err := mergeSettings(cmd, cfg, forwardedArgs(pkg, cargoArgs))
	if err != nil {
		return failure.Wrap(err, failure.KindConfig, "invalid configuration").Build()
	}
	policy, err := cfg.RetryPolicy()
	if err != nil {
		return failure.Wrap(err, failure.KindConfig, "invalid retry configuration").Build()
	}
	if cmd.Flags().Changed("retries") {
		policy.MaxRetries = retries
	}
	if err := policy.Validate(); err != nil {
		return failure.Wrap(err, failure.KindConfig, "invalid retry configuration").Build()
	}

	var rec *metrics.Recorder
	if s.metricsFile != "" {
		rec = metrics.New()
	}

	runner := cargo.NewExecRunner(cargoBin, os.Stdout, os.Stderr)
	client := registry.NewHTTPClient(s.registryURL, "cargo-safe-publish/"+version, policy, registry.WithLogger(log))
	controller := pipeline.NewController(
		vcs.NewGitBackend(),
		verifier.New(runner, log),
		guard.New(runner, log),
		postpublish.New(client, s.compare, log),
		pipeline.WithLogger(log),
		pipeline.WithObserver(func(e pipeline.Event) {
			progress(rep, pkg, e)
			if rec != nil {
				rec.Observe(e)
			}
		}),
	)

	out, runErr := controller.Run(ctx, pkg, s.pipeline)
	render(rep, out)

	if rec != nil {
		rec.Finish(out)
		if err := rec.WriteFile(s.metricsFile); err != nil {
			log.Warn("could not write metrics", logger.Path(s.metricsFile), logger.Error(err))
		}
	}
	if err := writeReports(ctx, log, rep, s, report.Build(runID, "cargo-safe-publish/"+version, out)); err != nil && runErr == nil {
		return err
	}

	if runErr != nil {
		return &reportedError{err: runErr}
	}
	return nil
}

func loadConfig(root string) (*config.Config, error) {
	if configFile != "" {
		return config.Load(configFile)
	}
	return config.LoadDefault(root)
}

func writeReports(ctx context.Context, log *slog.Logger, rep *logger.Reporter, s settings, r report.Report) error {
	if s.reportJSON != "" {
		if err := report.WriteFile(s.reportJSON, r); err != nil {
			rep.Warning("could not write the report: %v", err)
			return err
		}
		log.Debug("report written", logger.Path(s.reportJSON))
	}
	if s.reportS3 != "" {
		cfg, err := s3client.LoadConfig(ctx, profile, region)
		if err != nil {
			rep.Warning("could not upload the report: %v", err)
			return err
		}
		loc, err := report.Upload(ctx, s3client.NewAWSClient(cfg), s.reportS3, r)
		if err != nil {
			rep.Warning("could not upload the report: %v", err)
			return err
		}
		rep.Status("Uploaded", "report to %s", loc)
	}
	return nil
}

// reportedError marks a failure that was already shown to the user.
type reportedError struct {
	err error
}

func (e *reportedError) Error() string { return e.err.Error() }
func (e *reportedError) Unwrap() error { return e.err }
