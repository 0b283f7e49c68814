package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/yuya-takeyama/cargo-safe-publish/internal/config"
	"github.com/yuya-takeyama/cargo-safe-publish/pkg/manifest"
	"github.com/yuya-takeyama/cargo-safe-publish/pkg/matcher"
	"github.com/yuya-takeyama/cargo-safe-publish/pkg/pipeline"
	"github.com/yuya-takeyama/cargo-safe-publish/pkg/postpublish"
)

// subcommand is the first argument cargo passes to external subcommands.
const subcommand = "safe-publish"

// splitCargoArgs separates the arguments declared on flags from the ones
// handed to cargo publish unchanged: unknown flags with their values and
// everything after `--`. cargo publish takes no positional arguments, so a
// bare word right after an unknown flag is that flag's value.
func splitCargoArgs(flags *pflag.FlagSet, args []string) (own, forward []string) {
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			return own, append(forward, args[i+1:]...)
		}
		if len(arg) < 2 || arg[0] != '-' {
			own = append(own, arg)
			continue
		}

		f, inline := lookupFlag(flags, arg)
		takesValue := !inline && i+1 < len(args)
		if f == nil {
			forward = append(forward, arg)
			if takesValue && !strings.HasPrefix(args[i+1], "-") {
				i++
				forward = append(forward, args[i])
			}
			continue
		}
		own = append(own, arg)
		if takesValue && f.NoOptDefVal == "" {
			i++
			own = append(own, args[i])
		}
	}
	return own, forward
}

// lookupFlag finds the flag arg refers to. inline reports whether arg already
// carries its value, as in --name=value, -pvalue or -qv.
func lookupFlag(flags *pflag.FlagSet, arg string) (f *pflag.Flag, inline bool) {
	if long, ok := strings.CutPrefix(arg, "--"); ok {
		name, _, hasValue := strings.Cut(long, "=")
		return flags.Lookup(name), hasValue
	}

	short := arg[1:]
	f = flags.ShorthandLookup(short[:1])
	if len(short) == 1 {
		return f, false
	}
	if f != nil && f.NoOptDefVal == "" {
		return f, true
	}
	// a group of boolean shorthands is ours only if every letter is
	for i := range len(short) {
		g := flags.ShorthandLookup(short[i : i+1])
		if g == nil || g.NoOptDefVal == "" {
			return nil, true
		}
	}
	return f, true
}

func checkPositional(args []string) error {
	if len(args) > 0 && args[0] == subcommand {
		args = args[1:]
	}
	if len(args) > 0 {
		return fmt.Errorf("unexpected argument %q", args[0])
	}
	return nil
}

// forwardedArgs are handed to both cargo publish calls: the flags cargo
// understands itself followed by the arguments this command does not know.
// Cargo runs in the package directory, so the manifest is passed by its
// absolute path.
func forwardedArgs(pkg manifest.Package, extra []string) []string {
	var args []string
	if manifestPath != "" {
		args = append(args, "--manifest-path", pkg.ManifestPath)
	}
	if packageName != "" {
		args = append(args, "--package", packageName)
	}
	if allowDirty {
		args = append(args, "--allow-dirty")
	}
	if quiet {
		args = append(args, "--quiet")
	}
	if verbose {
		args = append(args, "--verbose")
	}
	return append(args, extra...)
}

// mergeSettings layers explicitly set flags over the config file.
func mergeSettings(cmd *cobra.Command, cfg *config.Config, forward []string) (settings, error) {
	flags := cmd.Flags()
	pick := func(name, flagValue, cfgValue string) string {
		if flags.Changed(name) || cfgValue == "" {
			return flagValue
		}
		return cfgValue
	}

	s := settings{
		registryURL: pick("registry-url", registryURL, cfg.RegistryURL),
		reportJSON:  pick("report-json-file", reportJSONFile, cfg.Report.JSONFile),
		reportS3:    pick("report-s3-uri", reportS3URI, cfg.Report.S3URI),
		metricsFile: pick("metrics-file", metricsFile, cfg.MetricsFile),
	}

	mode, err := postpublish.ParseCompareMode(pick("compare", compareMode, cfg.Compare))
	if err != nil {
		return settings{}, err
	}
	s.compare = mode

	prec, err := matcher.ParsePrecedence(pick("precedence", precedence, cfg.Precedence))
	if err != nil {
		return settings{}, err
	}

	s.pipeline = pipeline.Options{
		DryRun:     dryRun,
		NoVerify:   noVerify,
		AllowDirty: allowDirty,
		Precedence: prec,
		CargoArgs:  forward,
	}
	return s, nil
}
