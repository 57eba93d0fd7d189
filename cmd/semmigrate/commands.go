package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/c360studio/semmigrate/catalog"
	"github.com/c360studio/semmigrate/config"
	"github.com/c360studio/semmigrate/export"
	"github.com/c360studio/semmigrate/source"
	"github.com/c360studio/semmigrate/staging"
	"github.com/c360studio/semmigrate/update"
	"github.com/c360studio/semmigrate/upload"
	"github.com/c360studio/semmigrate/vocabulary"
)

// withApp loads the App, runs fn and releases the App afterwards.
func withApp(cmd *cobra.Command, g *globalFlags, fn func(ctx context.Context, a *App) error) error {
	ctx := cmd.Context()
	a, err := loadApp(ctx, g)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func ingestCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Stage and upload source records",
	}

	var (
		syncFirst bool
		artifact  string
	)
	csvCmd := &cobra.Command{
		Use:   "csv FILE",
		Short: "Upload the rows of an easydb export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, g, func(ctx context.Context, a *App) error {
				if syncFirst {
					t, err := source.ReadTableFile(args[0], source.Easydb)
					if err != nil {
						return err
					}
					if err := runSync(ctx, a, cmd.OutOrStdout(), vocabulary.EasydbPopulation(t),
						vocabulary.EasydbKinds()...); err != nil {
						return err
					}
				}
				it, err := a.Records(ctx, args[0], "")
				if err != nil {
					return err
				}
				return runUpload(ctx, a, cmd.OutOrStdout(), it, a.EasydbUploadOptions(), artifact)
			})
		},
	}
	csvCmd.Flags().BoolVar(&syncFirst, "sync", true, "Create missing creators, projects and their dependencies before uploading")
	csvCmd.Flags().StringVar(&artifact, "errors", "", "Error artifact path (default from config)")

	var (
		filter        string
		mongoSync     bool
		mongoArtifact string
	)
	mongoCmd := &cobra.Command{
		Use:   "mongo",
		Short: "Upload the records of the configured MongoDB collection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, g, func(ctx context.Context, a *App) error {
				if mongoSync {
					pop, err := a.MongoPopulation(ctx)
					if err != nil {
						return err
					}
					if err := runSync(ctx, a, cmd.OutOrStdout(), pop, vocabulary.AllKinds()...); err != nil {
						return err
					}
				}
				it, err := a.Records(ctx, "", filter)
				if err != nil {
					return err
				}
				return runUpload(ctx, a, cmd.OutOrStdout(), it, a.cfg.Upload, mongoArtifact)
			})
		},
	}
	mongoCmd.Flags().StringVar(&filter, "filter", "", "MongoDB query filter (extended JSON)")
	mongoCmd.Flags().BoolVar(&mongoSync, "sync", false, "Synchronize all vocabulary kinds before uploading")
	mongoCmd.Flags().StringVar(&mongoArtifact, "errors", "", "Error artifact path (default from config)")

	cmd.AddCommand(csvCmd, mongoCmd)
	return cmd
}

func retryCmd(g *globalFlags) *cobra.Command {
	var artifact string
	cmd := &cobra.Command{
		Use:   "retry [ARTIFACT]",
		Short: "Upload the failed records of an error artifact again",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, g, func(ctx context.Context, a *App) error {
				path := a.cfg.Upload.ArtifactPath
				if len(args) == 1 {
					path = args[0]
				}
				prev, err := upload.LoadErrorArtifact(path)
				if err != nil {
					return err
				}
				if !prev.Complete {
					a.logger.Warn("Artifact is from an interrupted run", "run_id", prev.RunID)
				}
				a.logger.Info("Retrying failed records", "run_id", prev.RunID, "records", len(prev.Failures))
				out := artifact
				if out == "" {
					out = path
				}
				return runUpload(ctx, a, cmd.OutOrStdout(), prev.Iterator(), prev.Options(a.cfg.Upload), out)
			})
		},
	}
	cmd.Flags().StringVar(&artifact, "errors", "", "Artifact for this run's failures (default: overwrite the input)")
	return cmd
}

func runUpload(ctx context.Context, a *App, w io.Writer, it source.Iterator, opts upload.Options, artifact string) error {
	defer it.Close()
	u, err := a.Orchestrator(opts, artifact)
	if err != nil {
		return err
	}
	sum, err := u.Run(ctx, it)
	fmt.Fprintf(w, "run %s: %d uploaded, %d already present, %d failed, %d capped\n",
		sum.RunID, sum.Succeeded, sum.Skipped, sum.Failed, sum.Capped)
	if sum.Interrupted {
		fmt.Fprintln(w, "run interrupted; failures so far were written to the error artifact")
	}
	return err
}

func stageCmd(g *globalFlags) *cobra.Command {
	var (
		input  string
		filter string
		limit  int
		format string
	)
	cmd := &cobra.Command{
		Use:   "stage",
		Short: "Stage records without uploading them",
		Long: `Stage records and print the result. The json format prints each staged
document with its warnings; turtle, ntriples and jsonld render the
documents as RDF.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var rdf export.Format
			if format != "json" {
				f, err := export.ParseFormat(format)
				if err != nil {
					return err
				}
				rdf = f
			}
			return withApp(cmd, g, func(ctx context.Context, a *App) error {
				it, err := a.Records(ctx, input, filter)
				if err != nil {
					return err
				}
				defer it.Close()
				stager, err := a.Stager()
				if err != nil {
					return err
				}
				staged, err := stageAll(ctx, a, stager, it, limit)
				if err != nil {
					return err
				}
				if rdf == "" {
					return writeStagedJSON(cmd.OutOrStdout(), staged)
				}
				out, err := export.Render(a.cfg.Export, stager.ItemBundle(), staged, rdf)
				if err != nil {
					return err
				}
				_, err = io.WriteString(cmd.OutOrStdout(), out)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&input, "input", "", "easydb export to read instead of MongoDB")
	cmd.Flags().StringVar(&filter, "filter", "", "MongoDB query filter (extended JSON)")
	cmd.Flags().IntVar(&limit, "limit", 10, "Maximum number of records to stage (0 for all)")
	cmd.Flags().StringVar(&format, "format", "json", "Output format (json, turtle, ntriples, jsonld)")
	return cmd
}

// stageAll stages up to limit records. Records that fail staging are
// logged and left out.
func stageAll(ctx context.Context, a *App, stager *staging.Stager, it source.Iterator, limit int) ([]export.Staged, error) {
	var out []export.Staged
	for i := 0; limit <= 0 || len(out) < limit; i++ {
		rec, err := it.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return out, err
		}
		key := rec.String(a.cfg.Upload.KeyPath)
		if key == "" {
			key = fmt.Sprintf("record-%d", i)
		}
		doc, err := stager.Stage(ctx, rec)
		if err != nil {
			if upload.IsFatal(err) {
				return nil, err
			}
			a.logger.Warn("Record failed staging", "index", i, "record", key, "error", err)
			continue
		}
		out = append(out, export.Staged{Key: key, Doc: doc})
	}
	return out, nil
}

func writeStagedJSON(w io.Writer, staged []export.Staged) error {
	type stagedJSON struct {
		Key      string   `json:"key"`
		Document any      `json:"document"`
		Warnings []string `json:"warnings,omitempty"`
	}
	out := make([]stagedJSON, 0, len(staged))
	for _, s := range staged {
		out = append(out, stagedJSON{Key: s.Key, Document: s.Doc, Warnings: s.Doc.Warnings})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func syncCmd(g *globalFlags) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "sync [KIND...]",
		Short: "Create vocabulary entities missing from the store",
		Long: fmt.Sprintf(`Compare vocabulary kinds in MongoDB with the store and create the
missing entities. Kinds are synchronized after the kinds they depend on.
Without arguments every kind is synchronized.

Kinds: %s`, kindNames()),
		RunE: func(cmd *cobra.Command, args []string) error {
			requested, err := parseKinds(args)
			if err != nil {
				return err
			}
			if len(requested) == 0 {
				requested = vocabulary.AllKinds()
			}
			return withApp(cmd, g, func(ctx context.Context, a *App) error {
				pop, err := a.MongoPopulation(ctx)
				if err != nil {
					return err
				}
				if dryRun {
					return printMissing(ctx, a, cmd.OutOrStdout(), pop, requested)
				}
				return runSync(ctx, a, cmd.OutOrStdout(), pop, requested...)
			})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "List missing entities without creating them")

	var (
		kindName     string
		nameColumn   string
		secondaryCol string
	)
	authorities := &cobra.Command{
		Use:   "authorities FILE",
		Short: "Create identifier authorities from a tab-separated list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := vocabulary.ParseKind(kindName)
			if err != nil {
				return err
			}
			t, err := source.ReadTableFile(args[0], source.TSV)
			if err != nil {
				return err
			}
			items, err := vocabulary.TableItems(t, nameColumn, secondaryCol)
			if err != nil {
				return err
			}
			return withApp(cmd, g, func(ctx context.Context, a *App) error {
				pop := vocabulary.StaticPopulation{kind: items}
				return runSync(ctx, a, cmd.OutOrStdout(), pop, kind)
			})
		},
	}
	authorities.Flags().StringVar(&kindName, "kind", vocabulary.Identifiers.String(), "Vocabulary kind the list holds")
	authorities.Flags().StringVar(&nameColumn, "name-column", "name", "Column holding the entity name")
	authorities.Flags().StringVar(&secondaryCol, "secondary-column", "url", "Column holding the secondary attribute (empty for none)")

	cmd.AddCommand(authorities)
	return cmd
}

func runSync(ctx context.Context, a *App, w io.Writer, pop vocabulary.Population, kinds ...vocabulary.Kind) error {
	s, err := a.Synchronizer(pop)
	if err != nil {
		return err
	}
	results, err := s.Run(ctx, kinds...)
	for _, r := range results {
		fmt.Fprintf(w, "%s: %d created, %d present, %d failed\n", r.Kind, r.Created, r.Present, r.Failed)
		for _, e := range r.Errors {
			fmt.Fprintf(w, "  %v\n", e)
		}
	}
	return err
}

func printMissing(ctx context.Context, a *App, w io.Writer, pop vocabulary.Population, kinds []vocabulary.Kind) error {
	s, err := a.Synchronizer(pop)
	if err != nil {
		return err
	}
	if len(kinds) == 0 {
		kinds = vocabulary.AllKinds()
	}
	for _, k := range kinds {
		missing, err := s.Missing(ctx, k)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s: %d missing\n", k, len(missing))
		for _, item := range missing {
			if item.Secondary != "" {
				fmt.Fprintf(w, "  %s (%s)\n", item.Name, item.Secondary)
				continue
			}
			fmt.Fprintf(w, "  %s\n", item.Name)
		}
	}
	return nil
}

func affiliationsCmd(g *globalFlags) *cobra.Command {
	var kindName string
	cmd := &cobra.Command{
		Use:   "affiliations",
		Short: "Rewrite the secondary attribute of existing vocabulary entities",
		Long: `Rewrite the affiliation of persons already in the store with the one
MongoDB currently gives. Use --kind for the other kinds with a secondary
attribute. Missing entities of the kinds the attribute refers to are
created first; entities of the kind itself are not.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := vocabulary.ParseKind(kindName)
			if err != nil {
				return err
			}
			return withApp(cmd, g, func(ctx context.Context, a *App) error {
				pop, err := a.MongoPopulation(ctx)
				if err != nil {
					return err
				}
				s, err := a.Synchronizer(pop)
				if err != nil {
					return err
				}
				return runAffiliations(ctx, s, cmd.OutOrStdout(), kind)
			})
		},
	}
	cmd.Flags().StringVar(&kindName, "kind", vocabulary.Persons.String(), "Vocabulary kind")
	return cmd
}

// secondaryUpdater rewrites the secondary attribute of one kind.
type secondaryUpdater interface {
	UpdateSecondary(ctx context.Context, kind vocabulary.Kind) (vocabulary.SecondaryResult, error)
}

func runAffiliations(ctx context.Context, s secondaryUpdater, w io.Writer, kind vocabulary.Kind) error {
	res, err := s.UpdateSecondary(ctx, kind)
	fmt.Fprintf(w, "%s: %d updated, %d unchanged, %d unresolved, %d failed\n",
		res.Kind, res.Updated, res.Unchanged, res.Unresolved, res.Failed)
	return err
}

func updateCmd(g *globalFlags) *cobra.Command {
	var (
		stepNames []string
		input     string
		filter    string
		opts      update.Options
	)
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Recompute selected fields of items already in the store",
		Long: fmt.Sprintf(`Recompute the fields produced by the given staging steps for items
already in the store and save the ones that changed.

Steps: %s`, stepList()),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			steps, err := staging.ParseSteps(stepNames)
			if err != nil {
				return err
			}
			if len(steps) == 0 {
				return fmt.Errorf("at least one --step is required")
			}
			return withApp(cmd, g, func(ctx context.Context, a *App) error {
				stager, err := a.Stager()
				if err != nil {
					return err
				}
				it, err := a.Records(ctx, input, filter)
				if err != nil {
					return err
				}
				defer it.Close()

				u := update.New(stager, a.store, a.resolver, opts, a.logger)
				sum, err := u.Run(ctx, it, steps)
				fmt.Fprintf(cmd.OutOrStdout(), "%d updated, %d unchanged, %d not in store, %d failed\n",
					sum.Updated, sum.Unchanged, sum.Missing, sum.Failed)
				return err
			})
		},
	}
	cmd.Flags().StringSliceVar(&stepNames, "step", nil, "Staging step to recompute (repeatable)")
	cmd.Flags().StringVar(&input, "input", "", "easydb export to read instead of MongoDB")
	cmd.Flags().StringVar(&filter, "filter", "", "MongoDB query filter (extended JSON)")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Report changes without saving")
	cmd.Flags().BoolVar(&opts.Append, "append", false, "Add recomputed values instead of replacing")
	return cmd
}

func catalogCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Manage the schema catalog",
	}

	var exportPath string
	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Extract bundle and field ids from a pathbuilder export",
		Long: `Extract bundle and field ids from a pathbuilder export into the catalog
directory. Without --export the newest file matching catalog.export_pattern
is used.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(stderr, g.logLevel, g.logFormat)
			if err != nil {
				return err
			}
			cfg, err := config.NewLoader(logger).Load(g.configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			path := exportPath
			if path == "" {
				if path, err = catalog.LatestExport(cfg.Catalog.ExportPattern); err != nil {
					return err
				}
			}
			maps, err := catalog.ParsePathbuilderFile(path)
			if err != nil {
				return err
			}
			if err := maps.Save(cfg.Catalog.Dir, cfg.Catalog.Files); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d bundles and %d fields from %s into %s\n",
				len(maps.Bundles), len(maps.Fields), path, cfg.Catalog.Dir)
			return nil
		},
	}
	importCmd.Flags().StringVar(&exportPath, "export", "", "Pathbuilder export file")

	cmd.AddCommand(importCmd)
	return cmd
}

func parseKinds(names []string) ([]vocabulary.Kind, error) {
	out := make([]vocabulary.Kind, 0, len(names))
	for _, n := range names {
		k, err := vocabulary.ParseKind(n)
		if err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, nil
}

func stepList() string {
	var s string
	for i, st := range staging.AllSteps() {
		if i > 0 {
			s += ", "
		}
		s += st.String()
	}
	return s
}

func kindNames() string {
	var s string
	for i, k := range vocabulary.AllKinds() {
		if i > 0 {
			s += ", "
		}
		s += k.String()
	}
	return s
}
