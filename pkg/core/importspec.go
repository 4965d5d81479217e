package core

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ImportKind selects what an import materializes inside the session.
type ImportKind string

// Import kinds.
const (
	KindDataTable      ImportKind = "data"
	KindColumnMetadata ImportKind = "column_metadata"
	KindRowMetadata    ImportKind = "row_metadata"
)

// ParseImportKind accepts the canonical names plus a few spellings used in spec files.
func ParseImportKind(s string) (ImportKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "data", "datatable", "data_table", "table":
		return KindDataTable, nil
	case "column_metadata", "columnmetadata", "colmeta", "column-metadata":
		return KindColumnMetadata, nil
	case "row_metadata", "rowmetadata", "rowmeta", "row-metadata":
		return KindRowMetadata, nil
	default:
		return "", fmt.Errorf("unknown import kind %q", s)
	}
}

// SourceFormat is the on-disk format of an import source.
type SourceFormat int

// Source formats, derived from the file extension.
const (
	FormatUnknown SourceFormat = iota
	FormatTab
	FormatComma
	FormatSQLite
)

func (f SourceFormat) String() string {
	switch f {
	case FormatTab:
		return "tab-delimited"
	case FormatComma:
		return "comma-delimited"
	case FormatSQLite:
		return "sqlite"
	default:
		return "unknown"
	}
}

// DetectFormat maps a file extension to a SourceFormat.
func DetectFormat(path string) SourceFormat {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".tsv", ".tab":
		return FormatTab
	case ".csv":
		return FormatComma
	case ".db", ".db3", ".sqlite", ".sqlite3":
		return FormatSQLite
	default:
		return FormatUnknown
	}
}

// ImportSpec is a user-declared plan for turning a staged flat file into
// one or more session objects. SourceTable names the table to read when
// SourceFile is a SQLite database.
type ImportSpec struct {
	SourceFile           string     `yaml:"source" json:"source"`
	SourceTable          string     `yaml:"source_table,omitempty" json:"source_table,omitempty"`
	TargetName           string     `yaml:"name" json:"name"`
	Kind                 ImportKind `yaml:"kind" json:"kind"`
	UniqueRowIDColumn    string     `yaml:"row_id,omitempty" json:"row_id,omitempty"`
	ColumnsToKeep        []string   `yaml:"keep,omitempty" json:"keep,omitempty"`
	IncludeRowMetadata   bool       `yaml:"row_metadata,omitempty" json:"row_metadata,omitempty"`
	RowMetadataTableName string     `yaml:"row_metadata_name,omitempty" json:"row_metadata_name,omitempty"`
	RowMetadataColumns   []string   `yaml:"row_metadata_columns,omitempty" json:"row_metadata_columns,omitempty"`
}

// Format returns the source format derived from SourceFile.
func (s *ImportSpec) Format() SourceFormat { return DetectFormat(s.SourceFile) }
