package importer

import (
	"fmt"
	"slices"

	"github.com/leapstack-labs/dante/internal/expr"
	"github.com/leapstack-labs/dante/pkg/core"
)

// Validate checks spec against the staged table without touching the engine.
// It returns the spec with defaults applied, or an InvalidSpecError listing
// every problem found.
func Validate(spec core.ImportSpec, staged *core.Table) (core.ImportSpec, error) {
	var problems []string
	addf := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if spec.Kind == "" {
		spec.Kind = core.KindDataTable
	}
	switch spec.Kind {
	case core.KindDataTable, core.KindColumnMetadata, core.KindRowMetadata:
	default:
		addf("unknown kind %q", spec.Kind)
	}

	if err := expr.Check(spec.TargetName); err != nil {
		addf("target: %v", err)
	}
	if spec.SourceFile == "" {
		addf("source file is required")
	} else if spec.Format() == core.FormatUnknown {
		addf("source %s: unsupported format", spec.SourceFile)
	}

	if staged == nil {
		addf("no staged table")
		return spec, &core.InvalidSpecError{Problems: problems}
	}
	if err := staged.Validate(); err != nil {
		addf("staged table: %v", err)
	}

	seen := make(map[string]bool, len(staged.Columns))
	for _, c := range staged.Columns {
		if err := expr.Check(c); err != nil {
			addf("source column: %v", err)
		}
		if seen[c] {
			addf("source column %q appears more than once", c)
		}
		seen[c] = true
	}
	checkColumns := func(field string, cols []string) {
		dup := make(map[string]bool, len(cols))
		for _, c := range cols {
			if !seen[c] {
				addf("%s: column %q not in source", field, c)
			}
			if dup[c] {
				addf("%s: column %q listed twice", field, c)
			}
			dup[c] = true
		}
	}

	if id := spec.UniqueRowIDColumn; id != "" {
		checkColumns("row id", []string{id})
		if slices.Contains(spec.ColumnsToKeep, id) {
			addf("keep: column %q is already the row id", id)
		}
	}
	checkColumns("keep", spec.ColumnsToKeep)
	if spec.Kind == core.KindDataTable && len(spec.ColumnsToKeep) == 0 {
		addf("keep: at least one column is required")
	}

	if spec.Kind == core.KindRowMetadata || spec.IncludeRowMetadata {
		if len(spec.RowMetadataColumns) == 0 {
			addf("row metadata: at least one column is required")
		}
		checkColumns("row metadata", spec.RowMetadataColumns)
	}
	if spec.IncludeRowMetadata {
		if spec.Kind != core.KindDataTable {
			addf("row metadata: only data imports can include a row metadata table")
		}
		if err := expr.Check(spec.RowMetadataTableName); err != nil {
			addf("row metadata name: %v", err)
		} else if spec.RowMetadataTableName == spec.TargetName {
			addf("row metadata name %q equals the target name", spec.RowMetadataTableName)
		}
	}

	if len(problems) > 0 {
		return spec, &core.InvalidSpecError{Problems: problems}
	}
	return spec, nil
}
