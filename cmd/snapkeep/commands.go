package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/djabi/snapkeep/internal/bytesize"
	"github.com/djabi/snapkeep/internal/catalog"
	"github.com/djabi/snapkeep/internal/config"
	"github.com/djabi/snapkeep/internal/enginerr"
	"github.com/djabi/snapkeep/internal/filter"
	"github.com/djabi/snapkeep/internal/integrity"
	"github.com/djabi/snapkeep/internal/recovery"
	"github.com/djabi/snapkeep/internal/retention"
	"github.com/djabi/snapkeep/internal/snapshot"
	"github.com/djabi/snapkeep/internal/timespan"
	"github.com/djabi/snapkeep/internal/vfs"
	"github.com/urfave/cli/v2"
)

func runInit(dir, backupRoot, name string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return enginerr.NewConfigError("resolve %s: %v", dir, err)
	}
	profile := config.Profile{SourceRoot: abs, BackupRoot: backupRoot, Name: name}
	path := filepath.Join(abs, profileName)
	if err := profile.Save(path); err != nil {
		return enginerr.NewFatalIOError("write profile", err)
	}
	fmt.Printf("wrote %s\n", path)
	return nil
}

func backupCommand(r *run) *cli.Command {
	return &cli.Command{
		Name:  "backup",
		Usage: "Build a new snapshot",
		Flags: append([]cli.Flag{
			&cli.Float64Flag{Name: "copy-probability", Usage: "Re-copy probability (0-1)"},
			&cli.IntFlag{Name: "hard-link-count", Usage: "Derive copy-probability as 1/(N+1)"},
			&cli.BoolFlag{Name: "force-copy", Usage: "Always copy, never hard-link"},
			&cli.BoolFlag{Name: "delete-on-error", Usage: "Remove the partial snapshot if the build aborts"},
			&cli.BoolFlag{Name: "delete-first", Usage: "Run the retention pass before building"},
			&cli.StringFlag{Name: "free-up", Usage: "Pre-flight free-space target, e.g. 10GB"},
		}, retentionFlags()...),
		Action: func(c *cli.Context) error {
			opts := snapshot.Options{
				SourceRoot:      r.sourceRoot,
				BackupRoot:      r.backupRoot,
				OSLabel:         r.osLabel,
				CopyProbability: c.Float64("copy-probability"),
				HardLinkCount:   c.Int("hard-link-count"),
				ForceCopy:       c.Bool("force-copy"),
				DeleteOnError:   c.Bool("delete-on-error"),
			}
			if s := c.String("free-up"); s != "" {
				n, err := bytesize.Parse(s)
				if err != nil {
					return enginerr.NewConfigError("--free-up: %v", err)
				}
				opts.FreeUpBytes = n
			}

			pol, err := policyFromFlags(c)
			if err != nil {
				return err
			}
			if c.Bool("delete-first") || opts.FreeUpBytes > 0 {
				opts.PreFlight = func() error { return runPrune(r, pol, true) }
			}
			if c.Bool("delete-first") {
				if err := runPrune(r, pol, true); err != nil {
					return err
				}
			}

			b := snapshot.New(r.ctx, opts)
			dest, stats, err := b.Build()
			if err != nil {
				return err
			}
			fmt.Printf("snapshot: %s\n", dest)
			fmt.Printf("files: %d total, %d linked, %d copied, %d failed\n",
				stats.FilesTotal, stats.FilesLinked, stats.FilesCopied, stats.FilesFailed)
			fmt.Printf("bytes copied: %d\n", stats.BytesCopied)
			return nil
		},
	}
}

func snapshotsCommand(r *run) *cli.Command {
	return &cli.Command{
		Name:    "snapshots",
		Aliases: []string{"list-snapshots"},
		Usage:   "List snapshots in the backup root",
		Action: func(c *cli.Context) error {
			snaps, err := catalog.Enumerate(r.ctx.FS, r.backupRoot)
			if err != nil {
				return enginerr.NewCatalogError("enumerate", err)
			}
			for _, s := range snaps {
				fmt.Println(s.Name)
			}
			return nil
		},
	}
}

func retentionFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "delete-after", Usage: "Age cutoff, e.g. 6m"},
		&cli.StringFlag{Name: "keep-weekly-after", Usage: "Thin to weekly past this age"},
		&cli.StringFlag{Name: "keep-monthly-after", Usage: "Thin to monthly past this age"},
		&cli.StringFlag{Name: "keep-yearly-after", Usage: "Thin to yearly past this age"},
		&cli.IntFlag{Name: "max-deletions", Usage: "Cap deletions for this run"},
		&cli.StringFlag{Name: "free-up-target", Usage: "Free-space target for prune, e.g. 10GB"},
	}
}

func policyFromFlags(c *cli.Context) (retention.Policy, error) {
	var pol retention.Policy
	parseSpan := func(flag string) (*timespan.Span, error) {
		s := c.String(flag)
		if s == "" {
			return nil, nil
		}
		span, err := timespan.Parse(s)
		if err != nil {
			return nil, enginerr.NewConfigError("--%s: %v", flag, err)
		}
		return &span, nil
	}

	var err error
	if pol.DeleteAfter, err = parseSpan("delete-after"); err != nil {
		return pol, err
	}
	if pol.KeepWeeklyAfter, err = parseSpan("keep-weekly-after"); err != nil {
		return pol, err
	}
	if pol.KeepMonthlyAfter, err = parseSpan("keep-monthly-after"); err != nil {
		return pol, err
	}
	if pol.KeepYearlyAfter, err = parseSpan("keep-yearly-after"); err != nil {
		return pol, err
	}
	pol.MaxDeletions = c.Int("max-deletions")

	freeUpFlag := "free-up-target"
	if !c.IsSet(freeUpFlag) {
		freeUpFlag = "free-up"
	}
	if s := c.String(freeUpFlag); s != "" {
		n, err := bytesize.Parse(s)
		if err != nil {
			return pol, enginerr.NewConfigError("--%s: %v", freeUpFlag, err)
		}
		pol.FreeUpBytes = n
	}
	return pol, nil
}

func pruneCommand(r *run) *cli.Command {
	return &cli.Command{
		Name:  "prune",
		Usage: "Run the retention policy",
		Flags: append(retentionFlags(), &cli.BoolFlag{Name: "dry-run", Usage: "Print the plan without deleting"}),
		Action: func(c *cli.Context) error {
			pol, err := policyFromFlags(c)
			if err != nil {
				return err
			}
			return runPrune(r, pol, !c.Bool("dry-run"))
		},
	}
}

func runPrune(r *run, pol retention.Policy, execute bool) error {
	planned, err := retention.Plan(r.ctx, r.backupRoot, pol)
	if err != nil {
		return enginerr.NewCatalogError("plan retention", err)
	}
	for _, s := range planned {
		fmt.Printf("%s %s\n", pruneVerb(execute), s.Name)
	}
	if !execute {
		return nil
	}
	return retention.Execute(r.ctx.FS, planned)
}

func pruneVerb(execute bool) string {
	if execute {
		return "deleting"
	}
	return "would delete"
}

func checksumCommand(r *run) *cli.Command {
	return &cli.Command{
		Name:  "checksum",
		Usage: "Write a checksum manifest for a snapshot",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "snapshot", Usage: "Snapshot name (default: newest)"},
			&cli.StringFlag{Name: "checksum-every", Usage: "Skip if a younger manifest exists anywhere, e.g. 7d"},
		},
		Action: func(c *cli.Context) error {
			snap, err := pickSnapshot(r, c.String("snapshot"), false)
			if err != nil {
				return err
			}
			if everyStr := c.String("checksum-every"); everyStr != "" {
				span, err := timespan.Parse(everyStr)
				if err != nil {
					return enginerr.NewConfigError("--checksum-every: %v", err)
				}
				cutoff := span.Before(r.ctx.Now())
				snaps, err := catalog.Enumerate(r.ctx.FS, r.backupRoot)
				if err != nil {
					return enginerr.NewCatalogError("enumerate", err)
				}
				for _, s := range snaps {
					if integrity.YoungerThanExists(r.ctx.FS, s.Path, cutoff) {
						fmt.Println("a recent manifest already exists; skipping")
						return nil
					}
				}
			}
			path, err := integrity.CreateManifest(r.ctx.FS, snap.Path)
			if err != nil {
				return enginerr.NewFatalIOError("create manifest", err)
			}
			fmt.Println(path)
			return nil
		},
	}
}

func pickSnapshot(r *run, name string, requireManifest bool) (catalog.Snapshot, error) {
	snaps, err := catalog.Enumerate(r.ctx.FS, r.backupRoot)
	if err != nil {
		return catalog.Snapshot{}, enginerr.NewCatalogError("enumerate", err)
	}
	if len(snaps) == 0 {
		return catalog.Snapshot{}, enginerr.NewCatalogError("empty backup root", nil)
	}
	if name != "" {
		for _, s := range snaps {
			if s.Name == name {
				return s, nil
			}
		}
		return catalog.Snapshot{}, enginerr.NewConfigError("no such snapshot: %s", name)
	}
	if !requireManifest {
		return snaps[len(snaps)-1], nil
	}
	for i := len(snaps) - 1; i >= 0; i-- {
		if _, ok := integrity.HasAnyManifest(r.ctx.FS, snaps[i].Path); ok {
			return snaps[i], nil
		}
	}
	return snaps[len(snaps)-1], nil
}

func verifyChecksumCommand(r *run) *cli.Command {
	return &cli.Command{
		Name:  "verify-checksum",
		Usage: "Re-hash a snapshot and compare to its stored manifest",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "out-dir", Required: true},
			&cli.BoolFlag{Name: "oldest"},
			&cli.BoolFlag{Name: "newest"},
			&cli.StringFlag{Name: "snapshot"},
		},
		Action: func(c *cli.Context) error {
			snaps, err := manifestedSnapshots(r)
			if err != nil {
				return err
			}
			if len(snaps) == 0 {
				return enginerr.NewConfigError("no snapshot has a checksum manifest")
			}
			var chosen catalog.Snapshot
			switch {
			case c.String("snapshot") != "":
				found := false
				for _, s := range snaps {
					if s.Name == c.String("snapshot") {
						chosen, found = s, true
					}
				}
				if !found {
					return enginerr.NewConfigError("no manifested snapshot named %s", c.String("snapshot"))
				}
			case c.Bool("oldest"):
				chosen = snaps[0]
			default:
				chosen = snaps[len(snaps)-1]
			}

			name, _ := integrity.HasAnyManifest(r.ctx.FS, chosen.Path)
			mismatches, err := integrity.VerifyManifest(r.ctx.FS, chosen.Path, name)
			if err != nil {
				return enginerr.NewFatalIOError("verify manifest", err)
			}
			if len(mismatches) == 0 {
				fmt.Println("no mismatches")
				return nil
			}
			outName, err := integrity.UniqueName(r.ctx.FS, c.String("out-dir"), "mismatches.txt")
			if err != nil {
				return err
			}
			outPath := filepath.Join(c.String("out-dir"), outName)
			if err := integrity.WriteListFile(r.ctx.FS, outPath, mismatches); err != nil {
				return enginerr.NewFatalIOError("write mismatch report", err)
			}
			fmt.Println(outPath)
			return nil
		},
	}
}

func manifestedSnapshots(r *run) ([]catalog.Snapshot, error) {
	all, err := catalog.Enumerate(r.ctx.FS, r.backupRoot)
	if err != nil {
		return nil, enginerr.NewCatalogError("enumerate", err)
	}
	var out []catalog.Snapshot
	for _, s := range all {
		if _, ok := integrity.HasAnyManifest(r.ctx.FS, s.Path); ok {
			out = append(out, s)
		}
	}
	return out, nil
}

func verifyCommand(r *run) *cli.Command {
	return &cli.Command{
		Name:  "verify",
		Usage: "Compare the source tree against the latest snapshot",
		Flags: []cli.Flag{&cli.StringFlag{Name: "out-dir", Required: true}},
		Action: func(c *cli.Context) error {
			snap, err := pickSnapshot(r, "", false)
			if err != nil {
				return err
			}
			result, err := integrity.LiveVerify(r.ctx, r.sourceRoot, snap.Path)
			if err != nil {
				return enginerr.NewFatalIOError("live verify", err)
			}
			prefix := r.ctx.Now().Format("2006-01-02 15-04-05")
			outDir := c.String("out-dir")
			files := map[string][]string{
				prefix + " matching files.txt":    result.Matching,
				prefix + " mismatching files.txt": result.Mismatching,
				prefix + " error files.txt":       result.Errored,
			}
			for name, lines := range files {
				if err := integrity.WriteListFile(r.ctx.FS, filepath.Join(outDir, name), lines); err != nil {
					return enginerr.NewFatalIOError("write "+name, err)
				}
				fmt.Println(filepath.Join(outDir, name))
			}
			return nil
		},
	}
}

func findMissingCommand(r *run) *cli.Command {
	return &cli.Command{
		Name:  "find-missing",
		Usage: "List files that once existed in a snapshot but not in the source tree now",
		Flags: []cli.Flag{&cli.StringFlag{Name: "out-dir", Required: true}},
		Action: func(c *cli.Context) error {
			snaps, err := catalog.Enumerate(r.ctx.FS, r.backupRoot)
			if err != nil {
				return enginerr.NewCatalogError("enumerate", err)
			}
			paths := make([]string, len(snaps))
			for i, s := range snaps {
				paths[i] = s.Path
			}
			missing, err := integrity.FindMissing(r.ctx, r.backupRoot, r.sourceRoot, paths)
			if err != nil {
				return enginerr.NewFatalIOError("find missing", err)
			}
			outDir := c.String("out-dir")
			name, err := integrity.UniqueName(r.ctx.FS, outDir, "missing_files.txt")
			if err != nil {
				return err
			}
			outPath := filepath.Join(outDir, name)
			if err := integrity.WriteListFile(r.ctx.FS, outPath, missing); err != nil {
				return enginerr.NewFatalIOError("write missing file report", err)
			}
			fmt.Println(outPath)
			return nil
		},
	}
}

func recoverCommand(r *run) *cli.Command {
	return &cli.Command{
		Name:      "recover",
		Usage:     "Recover one version of a path next to its live location",
		ArgsUsage: "PATH",
		Flags:     []cli.Flag{&cli.StringFlag{Name: "snapshot", Usage: "Snapshot name to recover from (default: newest version)"}},
		Action: func(c *cli.Context) error {
			relPath := c.Args().First()
			if relPath == "" {
				return enginerr.NewConfigError("recover requires a path")
			}
			occurrences, err := recovery.FindOccurrences(r.ctx.FS, r.backupRoot, relPath)
			if err != nil {
				return enginerr.NewCatalogError("find occurrences", err)
			}
			versions := recovery.DistinctVersions(r.ctx.FS, occurrences, relPath)
			if len(versions) == 0 {
				return enginerr.NewConfigError("%s was never backed up", relPath)
			}
			chosen := versions[len(versions)-1]
			if name := c.String("snapshot"); name != "" {
				found := false
				for _, v := range versions {
					if v.Name == name {
						chosen, found = v, true
					}
				}
				if !found {
					return enginerr.NewConfigError("no distinct version of %s in %s", relPath, name)
				}
			}
			liveDir := filepath.Join(r.sourceRoot, filepath.Dir(relPath))
			dest, err := recovery.Recover(r.ctx.FS, chosen, relPath, liveDir)
			if err != nil {
				return enginerr.NewFatalIOError("recover", err)
			}
			fmt.Println(dest)
			return nil
		},
	}
}

func listCommand(r *run) *cli.Command {
	return &cli.Command{
		Name:      "list",
		Usage:     "List every distinct path ever backed up under DIR",
		ArgsUsage: "DIR",
		Action: func(c *cli.Context) error {
			dir := c.Args().First()
			paths, err := recovery.ListPaths(r.ctx.FS, r.backupRoot, dir)
			if err != nil {
				return enginerr.NewCatalogError("list", err)
			}
			for _, p := range paths {
				fmt.Println(p)
			}
			return nil
		},
	}
}

func restoreCommand(r *run) *cli.Command {
	return &cli.Command{
		Name:  "restore",
		Usage: "Copy a snapshot's content into a destination directory",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "destination", Required: true},
			&cli.StringFlag{Name: "snapshot", Usage: "default: newest"},
			&cli.BoolFlag{Name: "delete-extra"},
			&cli.BoolFlag{Name: "keep-extra"},
		},
		Action: func(c *cli.Context) error {
			if c.Bool("delete-extra") == c.Bool("keep-extra") {
				return enginerr.NewConfigError("exactly one of --delete-extra or --keep-extra is required")
			}
			snap, err := pickSnapshot(r, c.String("snapshot"), false)
			if err != nil {
				return err
			}
			if err := recovery.Restore(r.ctx.FS, snap, c.String("destination"), c.Bool("delete-extra")); err != nil {
				return enginerr.NewFatalIOError("restore", err)
			}
			return nil
		},
	}
}

func purgeCommand(r *run) *cli.Command {
	return &cli.Command{
		Name:      "purge",
		Usage:     "Remove every occurrence of a path across all snapshots",
		ArgsUsage: "PATH",
		Action: func(c *cli.Context) error {
			relPath := c.Args().First()
			if relPath == "" {
				return enginerr.NewConfigError("purge requires a path")
			}
			affected, err := recovery.Purge(r.ctx.FS, r.backupRoot, relPath)
			if err != nil {
				return enginerr.NewFatalIOError("purge", err)
			}
			for _, s := range affected {
				fmt.Printf("removed from %s\n", s.Name)
			}
			return nil
		},
	}
}

func moveBackupCommand(r *run) *cli.Command {
	return &cli.Command{
		Name:  "move-backup",
		Usage: "Re-materialize a range of snapshots at a new root",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "destination", Required: true},
			&cli.IntFlag{Name: "move-count"},
			&cli.StringFlag{Name: "move-age"},
			&cli.StringFlag{Name: "move-since"},
		},
		Action: func(c *cli.Context) error {
			set := 0
			for _, s := range []bool{c.IsSet("move-count"), c.IsSet("move-age"), c.IsSet("move-since")} {
				if s {
					set++
				}
			}
			if set != 1 {
				return enginerr.NewConfigError("exactly one of --move-count, --move-age, --move-since is required")
			}

			all, err := catalog.Enumerate(r.ctx.FS, r.backupRoot)
			if err != nil {
				return enginerr.NewCatalogError("enumerate", err)
			}

			var selected []catalog.Snapshot
			switch {
			case c.IsSet("move-count"):
				n := c.Int("move-count")
				if n > len(all) {
					n = len(all)
				}
				selected = all[len(all)-n:]
			case c.IsSet("move-age"):
				span, err := timespan.Parse(c.String("move-age"))
				if err != nil {
					return enginerr.NewConfigError("--move-age: %v", err)
				}
				cutoff := span.Before(r.ctx.Now())
				for _, s := range all {
					if s.Time.Before(cutoff) {
						selected = append(selected, s)
					}
				}
			case c.IsSet("move-since"):
				since, err := timespan.ParseDate(c.String("move-since"))
				if err != nil {
					return enginerr.NewConfigError("--move-since: %v", err)
				}
				for _, s := range all {
					if !s.Time.Before(since) {
						selected = append(selected, s)
					}
				}
			}

			if len(selected) == 0 {
				fmt.Println("nothing to move")
				return nil
			}
			if err := recovery.MoveBackup(r.ctx, selected, c.String("destination")); err != nil {
				return enginerr.NewFatalIOError("move backup", err)
			}
			fmt.Printf("moved %d snapshots to %s\n", len(selected), c.String("destination"))
			return nil
		},
	}
}

func statusCommand(r *run) *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Compare the source tree against the previous snapshot without building one",
		Flags: []cli.Flag{&cli.BoolFlag{Name: "show-ignored", Usage: "Also list filter-excluded paths"}},
		Action: func(c *cli.Context) error {
			entries, err := snapshot.Status(r.ctx, r.sourceRoot, r.backupRoot, c.Bool("show-ignored"))
			if err != nil {
				return enginerr.NewFatalIOError("status", err)
			}
			counts := make(map[snapshot.State]int)
			for _, e := range entries {
				fmt.Printf("%s %s\n", e.State, e.RelPath)
				counts[e.State]++
			}
			fmt.Printf("\n%d unchanged, %d new, %d modified, %d ignored\n",
				counts[snapshot.StateUnchanged], counts[snapshot.StateNew],
				counts[snapshot.StateModified], counts[snapshot.StateIgnored])
			return nil
		},
	}
}

func treeCommand(r *run) *cli.Command {
	return &cli.Command{
		Name:      "tree",
		Usage:     "Recursively list a snapshot's content",
		ArgsUsage: "[snapshot-name]",
		Action: func(c *cli.Context) error {
			snap, err := pickSnapshot(r, c.Args().First(), false)
			if err != nil {
				return err
			}
			entries, err := catalog.Tree(r.ctx.FS, snap.Path)
			if err != nil {
				return enginerr.NewFatalIOError("tree", err)
			}
			fmt.Println(snap.Name)
			for _, e := range entries {
				suffix := ""
				if e.Kind == vfs.KindDirectory {
					suffix = "/"
				}
				fmt.Printf("%s%s%s\n", strings.Repeat("  ", e.Depth+1), filepath.Base(e.RelPath), suffix)
			}
			return nil
		},
	}
}

func previewFilterCommand(r *run) *cli.Command {
	return &cli.Command{
		Name:  "preview-filter",
		Usage: "Dry-run the filter over the source tree without backing anything up",
		Action: func(c *cli.Context) error {
			entries, err := filter.Preview(r.ctx.FS, r.sourceRoot, r.ctx.Filter)
			if err != nil {
				return enginerr.NewFatalIOError("preview filter", err)
			}
			for _, e := range entries {
				sign := "-"
				if e.Included {
					sign = "+"
				}
				fmt.Printf("%s %s\n", sign, e.RelPath)
			}
			for _, rule := range r.ctx.Filter.UnusedRules() {
				fmt.Printf("warning: rule never matched: %s\n", rule.Raw)
			}
			return nil
		},
	}
}
