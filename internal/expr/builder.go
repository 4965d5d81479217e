// Package expr builds the SQL text evaluated inside the embedded engine.
//
// Every identifier passes through QuoteIdent and every string value through
// Literal; no other package concatenates SQL. The only inputs that cannot be
// represented are strings containing NUL bytes, which Check rejects.
package expr

import (
	"errors"
	"fmt"
	"strings"

	"github.com/leapstack-labs/dante/pkg/core"
)

// OrderColumn is a reserved helper column used while deduplicating rows.
const OrderColumn = ".order"

// ImageAlias is the catalog alias a workspace image is attached under.
const ImageAlias = "dante_image"

// VariablesTable holds the session variables of a workspace image: one row,
// one column per variable, each column keeping the variable's type.
const VariablesTable = "dante.variables"

// numericTypes lists the engine column types reported as numeric.
var numericTypes = []string{
	"TINYINT", "SMALLINT", "INTEGER", "BIGINT", "HUGEINT",
	"UTINYINT", "USMALLINT", "UINTEGER", "UBIGINT", "UHUGEINT",
	"FLOAT", "DOUBLE",
}

// QuoteIdent quotes an identifier, doubling embedded double quotes.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// Literal quotes a string literal, doubling embedded single quotes.
// Backslashes carry no meaning in standard engine string literals.
func Literal(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// Check reports whether name can be used as a user-supplied identifier.
func Check(name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return errors.New("name is empty")
	case strings.ContainsRune(name, 0):
		return fmt.Errorf("name %q contains a NUL byte", name)
	case IsReserved(name):
		return fmt.Errorf("name %q is reserved", name)
	}
	return nil
}

// IsReserved reports whether name collides with a column the bridge manages itself.
func IsReserved(name string) bool {
	return name == core.RowLabelColumn || name == OrderColumn || name == VariablesTable
}

// Script joins statements into one statement list evaluated as a unit.
func Script(stmts ...string) string {
	return strings.Join(stmts, ";\n")
}

func inMainSchema() string {
	return "table_catalog = current_database() AND table_schema = 'main' AND table_name <> " + Literal(VariablesTable)
}

// --- Namespace inspection ---

// ListNames lists every table, view and variable in the session, sorted by name.
func ListNames() string {
	return "SELECT name FROM (" +
		"SELECT table_name AS name FROM information_schema.tables WHERE " + inMainSchema() +
		" UNION SELECT name FROM duckdb_variables()" +
		") ORDER BY name"
}

// ListObjectKinds lists (name, kind) pairs where kind is BASE TABLE, VIEW or VARIABLE.
func ListObjectKinds() string {
	return "SELECT table_name AS name, table_type AS kind FROM information_schema.tables WHERE " + inMainSchema() +
		" UNION ALL SELECT name, 'VARIABLE' FROM duckdb_variables()" +
		" ORDER BY name"
}

// ClassOf yields data.frame or matrix for tables and views, the lower-cased
// type name for variables, and NULL for unknown names.
func ClassOf(name string) string {
	lit := Literal(name)
	numeric := make([]string, len(numericTypes))
	for i, t := range numericTypes {
		numeric[i] = Literal(t)
	}
	return "SELECT CASE" +
		" WHEN EXISTS (SELECT 1 FROM information_schema.tables WHERE " + inMainSchema() + " AND table_name = " + lit + ") THEN" +
		" CASE WHEN (SELECT bool_and(data_type IN (" + strings.Join(numeric, ", ") + ") OR data_type LIKE 'DECIMAL%')" +
		" FROM information_schema.columns WHERE " + inMainSchema() + " AND table_name = " + lit +
		" AND column_name <> " + Literal(core.RowLabelColumn) + ")" +
		" THEN " + Literal(core.ClassMatrix) + " ELSE " + Literal(core.ClassDataFrame) + " END" +
		" ELSE (SELECT lower(\"type\") FROM duckdb_variables() WHERE name = " + lit + ")" +
		" END"
}

// RowCount counts the rows of a table or view.
func RowCount(name string) string {
	return "SELECT count(*) FROM " + QuoteIdent(name)
}

// ColumnCount counts the data columns of a table or view, excluding row labels.
func ColumnCount(name string) string {
	return "SELECT count(*) FROM information_schema.columns WHERE " + inMainSchema() +
		" AND table_name = " + Literal(name) +
		" AND column_name <> " + Literal(core.RowLabelColumn)
}

// LengthOf yields the length of a variable: list length for list types, 1 otherwise.
func LengthOf(name, class string) string {
	if strings.HasSuffix(class, "[]") {
		return "SELECT len(getvariable(" + Literal(name) + "))"
	}
	return "SELECT 1"
}

// --- Marshalling ---

// Columns lists every column of a table or view in declaration order,
// including the row label column when present.
func Columns(name string) string {
	return "SELECT column_name FROM information_schema.columns WHERE " + inMainSchema() +
		" AND table_name = " + Literal(name) +
		" ORDER BY ordinal_position"
}

// RowLabels fetches the row label column as text.
func RowLabels(name string) string {
	return "SELECT CAST(" + QuoteIdent(core.RowLabelColumn) + " AS VARCHAR) FROM " + QuoteIdent(name)
}

// Payload selects the given data columns in order; nil selects every column.
func Payload(name string, columns []string) string {
	if len(columns) == 0 {
		return "SELECT * FROM " + QuoteIdent(name)
	}
	return "SELECT " + identList(columns) + " FROM " + QuoteIdent(name)
}

// --- Binding and reshaping ---

// Source is a table-producing expression usable in Bind.
type Source string

// ReadDelimited reads a delimited text file with a header row. Tab files
// are read without quoting; comma files use double-quote quoting.
func ReadDelimited(path string, delim rune) Source {
	quote := `'"'`
	if delim == '\t' {
		quote = "''"
	}
	return Source("read_csv(" + Literal(path) +
		", delim = " + Literal(string(delim)) +
		", header = true, quote = " + quote + ", escape = " + quote + ")")
}

// Bind materializes source as table name, replacing any previous object.
func Bind(name string, source Source) string {
	return "CREATE OR REPLACE TABLE " + QuoteIdent(name) + " AS SELECT * FROM " + string(source)
}

// CreateTable creates an empty all-text table with the given columns.
func CreateTable(name string, columns []string) string {
	defs := make([]string, len(columns))
	for i, c := range columns {
		defs[i] = QuoteIdent(c) + " VARCHAR"
	}
	return "CREATE OR REPLACE TABLE " + QuoteIdent(name) + " (" + strings.Join(defs, ", ") + ")"
}

// Column selects Source, optionally renamed to As and cast to text.
type Column struct {
	Source string
	As     string
	AsText bool
}

func (c Column) expr() string {
	src := QuoteIdent(c.Source)
	if c.AsText {
		src = "CAST(" + src + " AS VARCHAR)"
	}
	as := c.As
	if as == "" {
		as = c.Source
	}
	return src + " AS " + QuoteIdent(as)
}

// SubsetColumns replaces table with the ordered, optionally renamed column subset.
func SubsetColumns(table string, columns []Column) string {
	return "CREATE OR REPLACE TABLE " + QuoteIdent(table) + " AS SELECT " + columnList(columns) +
		" FROM " + QuoteIdent(table)
}

// SetRowLabels prepends the row label column, copied as text from column.
func SetRowLabels(table, column string) string {
	return "CREATE OR REPLACE TABLE " + QuoteIdent(table) + " AS SELECT CAST(" + QuoteIdent(column) +
		" AS VARCHAR) AS " + QuoteIdent(core.RowLabelColumn) + ", * FROM " + QuoteIdent(table)
}

// DropColumn removes one column from table.
func DropColumn(table, column string) string {
	return "ALTER TABLE " + QuoteIdent(table) + " DROP COLUMN " + QuoteIdent(column)
}

// UniqueRows binds target to the distinct text rows of columns from source,
// keeping the first occurrence of each row in source order.
func UniqueRows(target, source string, columns []string) string {
	cols := make([]Column, len(columns))
	for i, c := range columns {
		cols[i] = Column{Source: c, AsText: true}
	}
	order := QuoteIdent(OrderColumn)
	return "CREATE OR REPLACE TABLE " + QuoteIdent(target) + " AS SELECT " + identList(columns) +
		" FROM (SELECT " + columnList(cols) + ", rowid AS " + order + " FROM " + QuoteIdent(source) + ")" +
		" QUALIFY row_number() OVER (PARTITION BY " + identList(columns) + " ORDER BY " + order + ") = 1" +
		" ORDER BY " + order
}

// --- Workspace images ---

// SaveImage copies every table and view of catalog into a new image file
// at path, along with the named session variables.
func SaveImage(catalog, path string, variables []string) string {
	stmts := []string{
		DetachImage(),
		"ATTACH " + Literal(path) + " AS " + QuoteIdent(ImageAlias),
		"COPY FROM DATABASE " + QuoteIdent(catalog) + " TO " + QuoteIdent(ImageAlias),
	}
	if len(variables) > 0 {
		cols := make([]string, len(variables))
		for i, v := range variables {
			cols[i] = "getvariable(" + Literal(v) + ") AS " + QuoteIdent(v)
		}
		stmts = append(stmts, "CREATE OR REPLACE TABLE "+imageVariables()+" AS SELECT "+strings.Join(cols, ", "))
	}
	return Script(append(stmts, "DETACH DATABASE "+QuoteIdent(ImageAlias))...)
}

// AttachImage attaches the image file at path read-only.
func AttachImage(path string) string {
	return Script(
		DetachImage(),
		"ATTACH "+Literal(path)+" AS "+QuoteIdent(ImageAlias)+" (READ_ONLY)",
	)
}

// ImageTables lists the tables and views of the attached image.
func ImageTables() string {
	return "SELECT table_name FROM information_schema.tables WHERE table_catalog = " + Literal(ImageAlias) +
		" AND table_schema = 'main' AND table_name <> " + Literal(VariablesTable) +
		" ORDER BY table_name"
}

// ImageVariables lists the session variables stored in the attached image.
func ImageVariables() string {
	return "SELECT column_name FROM information_schema.columns WHERE table_catalog = " + Literal(ImageAlias) +
		" AND table_schema = 'main' AND table_name = " + Literal(VariablesTable) +
		" ORDER BY ordinal_position"
}

// LoadImage copies the attached image into catalog, restores the named
// variables from it and detaches it.
func LoadImage(catalog string, variables []string) string {
	stmts := []string{"COPY FROM DATABASE " + QuoteIdent(ImageAlias) + " TO " + QuoteIdent(catalog)}
	for _, v := range variables {
		stmts = append(stmts, SetVariable(v, "(SELECT "+QuoteIdent(v)+" FROM "+imageVariables()+")"))
	}
	return Script(append(stmts,
		"DROP TABLE IF EXISTS "+QuoteIdent(catalog)+".main."+QuoteIdent(VariablesTable),
		"DETACH DATABASE "+QuoteIdent(ImageAlias),
	)...)
}

func imageVariables() string {
	return QuoteIdent(ImageAlias) + ".main." + QuoteIdent(VariablesTable)
}

// DetachImage detaches a leftover image catalog, if any.
func DetachImage() string {
	return "DETACH DATABASE IF EXISTS " + QuoteIdent(ImageAlias)
}

// CurrentCatalog yields the name of the session's default catalog.
func CurrentCatalog() string {
	return "SELECT current_database()"
}

// ObjectKind is the engine kind of a namespace entry.
type ObjectKind string

// Object kinds as reported by ListObjectKinds.
const (
	KindTable    ObjectKind = "BASE TABLE"
	KindView     ObjectKind = "VIEW"
	KindVariable ObjectKind = "VARIABLE"
)

// Object names a namespace entry of a given kind.
type Object struct {
	Name string
	Kind ObjectKind
}

// ClearNamespace drops every given object, views first. It returns "" for no objects.
func ClearNamespace(objects []Object) string {
	var views, rest []string
	for _, o := range objects {
		switch o.Kind {
		case KindView:
			views = append(views, "DROP VIEW IF EXISTS "+QuoteIdent(o.Name))
		case KindVariable:
			rest = append(rest, ResetVariable(o.Name))
		default:
			rest = append(rest, "DROP TABLE IF EXISTS "+QuoteIdent(o.Name))
		}
	}
	return Script(append(views, rest...)...)
}

// SetVariable binds a session variable to the value of a SQL expression.
func SetVariable(name, value string) string {
	return "SET VARIABLE " + QuoteIdent(name) + " = " + value
}

// ResetVariable removes a session variable.
func ResetVariable(name string) string {
	return "RESET VARIABLE " + QuoteIdent(name)
}

func identList(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = QuoteIdent(n)
	}
	return strings.Join(quoted, ", ")
}

func columnList(columns []Column) string {
	parts := make([]string, len(columns))
	for i, c := range columns {
		parts[i] = c.expr()
	}
	return strings.Join(parts, ", ")
}
