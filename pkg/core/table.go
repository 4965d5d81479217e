package core

import "fmt"

// RowLabelColumn is the header of the synthetic first column of every Table,
// and the name of the reserved engine column that stores row labels.
const RowLabelColumn = "row.names"

// Object classes reported by the engine for tabular objects.
const (
	ClassDataFrame = "data.frame"
	ClassMatrix    = "matrix"
)

// IsTabularClass reports whether objects of class are rows × columns tables.
func IsTabularClass(class string) bool {
	return class == ClassDataFrame || class == ClassMatrix
}

// Table is an immutable, UI-agnostic snapshot of a tabular object.
// Every row has exactly len(Columns) cells; the first column is the row label.
type Table struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// NumCols returns the number of columns including the label column.
func (t *Table) NumCols() int { return len(t.Columns) }

// NumRows returns the number of rows.
func (t *Table) NumRows() int { return len(t.Rows) }

// Validate checks the rectangular shape invariant.
func (t *Table) Validate() error {
	for i, row := range t.Rows {
		if len(row) != len(t.Columns) {
			return fmt.Errorf("row %d has %d cells, want %d", i+1, len(row), len(t.Columns))
		}
	}
	return nil
}

// ColumnIndex returns the position of name in Columns, or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Head returns a copy of t truncated to at most n rows. n <= 0 means no limit.
func (t *Table) Head(n int) *Table {
	if n <= 0 || n >= len(t.Rows) {
		return t
	}
	return &Table{Columns: t.Columns, Rows: t.Rows[:n]}
}

// NamedObject describes one object living in the session namespace.
// It is discovered, never stored: every refresh recomputes it.
type NamedObject struct {
	Name  string `json:"name"`
	Class string `json:"class"`
	// Rows and Cols are nil when the dimensions could not be determined.
	Rows *int `json:"rows"`
	Cols *int `json:"cols"`
}

// Tabular reports whether the object is a rows × columns table.
func (o NamedObject) Tabular() bool { return IsTabularClass(o.Class) }

// Tree is a generic tree view model node.
type Tree struct {
	Label    string  `json:"label"`
	Children []*Tree `json:"children,omitempty"`
}

// Add appends a child with the given label and returns it.
func (t *Tree) Add(label string) *Tree {
	child := &Tree{Label: label}
	t.Children = append(t.Children, child)
	return child
}
