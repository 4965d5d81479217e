package commands

import (
	"errors"
	"fmt"
	"strings"

	"github.com/leapstack-labs/dante/internal/cli/output"
	"github.com/leapstack-labs/dante/internal/importer"
	"github.com/leapstack-labs/dante/pkg/core"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// ImportOptions holds the flag form of an import spec.
type ImportOptions struct {
	Source             string
	SourceTable        string
	Name               string
	Kind               string
	RowID              string
	Keep               []string
	RowMetadata        bool
	RowMetadataName    string
	RowMetadataColumns []string
	Save               string
}

// NewImportCommand creates the import command.
func NewImportCommand() *cobra.Command {
	return newImportCommand(&ImportOptions{})
}

func newImportCommand(opts *ImportOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import [spec.yaml]",
		Short: "Import flat files into the session",
		Long: `Import a tab-delimited (.txt, .tsv), comma-delimited (.csv) or SQLite
(.db, .db3) source into a named session object.

The import is described either by a YAML spec file, which may list several
imports, or by flags. Flags override the fields of a single-import spec file.

A failed import stops at the failing step; objects created by earlier steps
are left in place.`,
		Example: `  # Import columns A and C, labelling rows by ID, and save the workspace
  dante import --source expr.txt --name expr --row-id ID --keep A,C --save project.ddb

  # Import with row metadata from a spec file into an existing workspace
  dante import imports.yaml -w project.ddb --save project.ddb`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var specs []core.ImportSpec
			if len(args) == 1 {
				loaded, err := LoadSpecFile(args[0])
				if err != nil {
					return err
				}
				specs = loaded
			} else {
				specs = []core.ImportSpec{{}}
			}
			if len(specs) == 1 {
				if err := opts.apply(cmd.Flags(), &specs[0]); err != nil {
					return err
				}
			}

			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			return runImport(cmd, cmdCtx, specs, opts.Save)
		},
	}

	cmd.Flags().StringVarP(&opts.Source, "source", "s", "", "Source file (.txt, .tsv, .csv, .db)")
	cmd.Flags().StringVar(&opts.SourceTable, "source-table", "", "Table to read from a SQLite source")
	cmd.Flags().StringVar(&opts.Name, "name", "", "Name of the object to create")
	cmd.Flags().StringVar(&opts.Kind, "kind", "data", "Import kind (data|column_metadata|row_metadata)")
	cmd.Flags().StringVar(&opts.RowID, "row-id", "", "Column holding unique row labels")
	cmd.Flags().StringSliceVar(&opts.Keep, "keep", nil, "Columns to keep, in order")
	cmd.Flags().BoolVar(&opts.RowMetadata, "row-metadata", false, "Also create a row metadata table")
	cmd.Flags().StringVar(&opts.RowMetadataName, "row-metadata-name", "", "Name of the row metadata table")
	cmd.Flags().StringSliceVar(&opts.RowMetadataColumns, "row-metadata-columns", nil, "Columns of the row metadata table")
	cmd.Flags().StringVar(&opts.Save, "save", "", "Save the workspace to this image afterwards")

	_ = cmd.RegisterFlagCompletionFunc("kind", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"data", "column_metadata", "row_metadata"}, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

// apply copies explicitly set flags onto spec.
func (o *ImportOptions) apply(flags *pflag.FlagSet, spec *core.ImportSpec) error {
	set := flags.Changed
	if set("source") {
		spec.SourceFile = o.Source
	}
	if set("source-table") {
		spec.SourceTable = o.SourceTable
	}
	if set("name") {
		spec.TargetName = o.Name
	}
	if set("kind") || spec.Kind == "" {
		kind, err := core.ParseImportKind(o.Kind)
		if err != nil {
			return err
		}
		spec.Kind = kind
	}
	if set("row-id") {
		spec.UniqueRowIDColumn = o.RowID
	}
	if set("keep") {
		spec.ColumnsToKeep = o.Keep
	}
	if set("row-metadata") {
		spec.IncludeRowMetadata = o.RowMetadata
	}
	if set("row-metadata-name") {
		spec.RowMetadataTableName = o.RowMetadataName
	}
	if set("row-metadata-columns") {
		spec.RowMetadataColumns = o.RowMetadataColumns
	}
	return nil
}

func runImport(cmd *cobra.Command, cmdCtx *CommandContext, specs []core.ImportSpec, save string) error {
	r := cmdCtx.Renderer
	var results []*importer.Result

	for _, spec := range specs {
		res, err := cmdCtx.Bridge.RunImport(cmd.Context(), spec, nil)
		if err != nil {
			var stepErr *importer.StepError
			if errors.As(err, &stepErr) && res != nil && len(res.Created) > 0 {
				r.Warning(fmt.Sprintf("partially imported: %s", strings.Join(res.Created, ", ")))
			}
			return err
		}
		results = append(results, res)
		r.Success(fmt.Sprintf("imported %s (%s): %s", res.Target, res.Kind, strings.Join(res.Created, ", ")))
	}

	if save != "" {
		if err := cmdCtx.Bridge.SaveWorkspace(cmd.Context(), save); err != nil {
			return err
		}
		r.Success("saved workspace " + cmdCtx.Bridge.CurrentWorkspace())
	}

	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(results)
	}
	return nil
}
