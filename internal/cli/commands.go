package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/vk/minemods/internal/app"
	"github.com/vk/minemods/internal/assetcheck"
	"github.com/vk/minemods/internal/assets"
	"github.com/vk/minemods/internal/ctxlog"
	"github.com/vk/minemods/internal/fsutil"
	"github.com/vk/minemods/internal/manifest"
	"github.com/vk/minemods/internal/mods"
)

// Execute runs cmd. Command output goes to outW and logs to logW.
func Execute(ctx context.Context, cmd *Command, outW, logW io.Writer, opts ...app.Option) error {
	if cmd.Name == CmdSchema {
		return printJSON(outW, manifest.Schema())
	}

	a, err := app.New(cmd.Config, append([]app.Option{app.WithOutput(logW)}, opts...)...)
	if err != nil {
		return &ExitError{Code: 1, Message: err.Error()}
	}
	ctx = ctxlog.WithLogger(ctx, a.Logger())
	defer a.Cleanup(ctx)

	switch cmd.Name {
	case CmdList:
		return runList(a, cmd, outW)
	case CmdOrder:
		return runOrder(a, cmd, outW)
	case CmdLoad:
		return runLoad(ctx, a, cmd, outW)
	case CmdWatch:
		return runWatch(ctx, a, cmd, outW)
	case CmdDoctor:
		return runDoctor(ctx, a, cmd, outW)
	}
	return &ExitError{Code: 2, Message: fmt.Sprintf("unknown command %q", cmd.Name)}
}

type listEntry struct {
	mods.Summary
	Enabled bool `json:"enabled"`
}

func runList(a *app.App, cmd *Command, outW io.Writer) error {
	enabled := a.Settings().EnabledMods()
	var entries []listEntry
	for _, d := range a.Manager().Discover(false) {
		entries = append(entries, listEntry{Summary: d.Summary(), Enabled: slices.Contains(enabled, d.Namespace)})
	}

	if cmd.JSON {
		return printJSON(outW, map[string]any{
			"mods":             entries,
			"discovery_errors": a.Manager().DiscoveryErrors(),
		})
	}

	tw := tabwriter.NewWriter(outW, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAMESPACE\tNAME\tVERSION\tPERMISSION\tENABLED")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\n", e.Namespace, e.Name, e.Version, e.Permission, e.Enabled)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	for _, msg := range a.Manager().DiscoveryErrors() {
		fmt.Fprintf(outW, "error: %s\n", msg)
	}
	return nil
}

func runOrder(a *app.App, cmd *Command, outW io.Writer) error {
	a.Manager().Discover(false)
	order, err := a.Manager().ResolveDependencies(a.Settings().EnabledMods())
	if err != nil {
		return &ExitError{Code: 1, Message: fmt.Sprintf("dependency resolution failed: %v", err)}
	}
	if cmd.JSON {
		return printJSON(outW, order)
	}
	for i, ns := range order {
		fmt.Fprintf(outW, "%3d  %s\n", i+1, ns)
	}
	return nil
}

func initialize(ctx context.Context, a *app.App) error {
	if !a.Initialize(ctx) {
		return &ExitError{Code: 1, Message: "mod loader is disabled; set enable_mod_loader in user settings or MINEMODS_ENABLE_MOD_LOADER"}
	}
	return nil
}

func runLoad(ctx context.Context, a *app.App, cmd *Command, outW io.Writer) error {
	if err := initialize(ctx, a); err != nil {
		return err
	}
	results := a.DiscoverAndLoad(ctx)
	if err := printResults(outW, cmd, results); err != nil {
		return err
	}
	if n := failures(results); n > 0 {
		return &ExitError{Code: 1, Message: fmt.Sprintf("%d mod(s) failed to load", n)}
	}
	return nil
}

func runWatch(ctx context.Context, a *app.App, cmd *Command, outW io.Writer) error {
	if err := initialize(ctx, a); err != nil {
		return err
	}
	if err := printResults(outW, cmd, a.DiscoverAndLoad(ctx)); err != nil {
		return err
	}
	return a.Watch(ctx, cmd.Interval)
}

// DoctorReport is the output of the doctor command.
type DoctorReport struct {
	Loaded          map[string]bool       `json:"loaded"`
	Scripts         map[string]int        `json:"scripts"`
	Relations       map[string]mods.Links `json:"relations"`
	DiscoveryErrors []string              `json:"discovery_errors"`
	Issues          []string              `json:"issues"`
	Assets          []assetcheck.Result   `json:"assets"`
	Problems        int                   `json:"problems"`
}

func runDoctor(ctx context.Context, a *app.App, cmd *Command, outW io.Writer) error {
	if err := initialize(ctx, a); err != nil {
		return err
	}
	report := DoctorReport{
		Loaded:  a.DiscoverAndLoad(ctx),
		Scripts: make(map[string]int),
	}
	report.DiscoveryErrors = a.Manager().DiscoveryErrors()
	report.Issues = a.ModSettings().Validate()
	relations, err := a.Manager().Relations()
	if err != nil {
		report.Issues = append(report.Issues, err.Error())
	}
	report.Relations = relations

	for _, d := range a.Manager().Discovered() {
		scripts, err := fsutil.FindFilesByExtension(d.Path, ".lua")
		if err != nil {
			report.Issues = append(report.Issues, fmt.Sprintf("%s: %v", d.Namespace, err))
			continue
		}
		report.Scripts[d.Namespace] = len(scripts)
	}

	results, err := assetcheck.New(a.Logger(), assetcheck.DefaultWorkers).Check(ctx, a.Assets().List(assets.Filter{}))
	if err != nil {
		return err
	}
	report.Assets = results

	report.Problems = failures(report.Loaded) + len(report.DiscoveryErrors) + len(report.Issues)
	for _, r := range results {
		if !r.OK() {
			report.Problems++
		}
	}

	if cmd.JSON {
		if err := printJSON(outW, report); err != nil {
			return err
		}
	} else {
		printDoctor(outW, report)
	}
	if report.Problems > 0 {
		return &ExitError{Code: 1, Message: fmt.Sprintf("doctor found %d problem(s)", report.Problems)}
	}
	return nil
}

func printDoctor(outW io.Writer, r DoctorReport) {
	fmt.Fprintln(outW, "Mods:")
	for _, ns := range sortedKeys(r.Loaded) {
		fmt.Fprintf(outW, "  %-24s %s (%d scripts)", ns, status(r.Loaded[ns]), r.Scripts[ns])
		if after := r.Relations[ns].LoadsAfter; len(after) > 0 {
			fmt.Fprintf(outW, " after %s", strings.Join(after, ", "))
		}
		fmt.Fprintln(outW)
	}
	fmt.Fprintln(outW, "Assets:")
	for _, res := range r.Assets {
		if res.OK() {
			fmt.Fprintf(outW, "  ok      %s [%s] %s\n", res.Name, res.Namespace, res.Detail)
		} else {
			fmt.Fprintf(outW, "  broken  %s [%s] %s\n", res.Name, res.Namespace, res.Error)
		}
	}
	for _, msg := range r.DiscoveryErrors {
		fmt.Fprintf(outW, "discovery: %s\n", msg)
	}
	for _, msg := range r.Issues {
		fmt.Fprintf(outW, "issue: %s\n", msg)
	}
	fmt.Fprintf(outW, "%d problem(s) found.\n", r.Problems)
}

func printResults(outW io.Writer, cmd *Command, results map[string]bool) error {
	if cmd.JSON {
		return printJSON(outW, results)
	}
	for _, ns := range sortedKeys(results) {
		fmt.Fprintf(outW, "%-24s %s\n", ns, status(results[ns]))
	}
	return nil
}

func status(ok bool) string {
	if ok {
		return "loaded"
	}
	return "failed"
}

func failures(results map[string]bool) int {
	n := 0
	for _, ok := range results {
		if !ok {
			n++
		}
	}
	return n
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func printJSON(outW io.Writer, v any) error {
	enc := json.NewEncoder(outW)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
