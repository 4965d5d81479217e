package expr

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// hostile identifiers that must never escape their quotes.
var hostile = []string{
	`A`,
	`col"umn`,
	`it's`,
	`x"; DROP TABLE t; --`,
	`y'); SELECT 1; --`,
	`tab	sep,comma`,
	`back\slash`,
	`""`,
	`ünïcødé`,
}

// scan walks sql and returns the text outside quoted tokens.
// It fails the test when a quoted token is left unterminated.
func scan(t *testing.T, sql string) string {
	t.Helper()
	var outside strings.Builder
	for i := 0; i < len(sql); i++ {
		c := sql[i]
		if c != '"' && c != '\'' {
			outside.WriteByte(c)
			continue
		}
		closed := false
		for j := i + 1; j < len(sql); j++ {
			if sql[j] != c {
				continue
			}
			if j+1 < len(sql) && sql[j+1] == c {
				j++
				continue
			}
			i = j
			closed = true
			break
		}
		require.True(t, closed, "unterminated quote in %q", sql)
		outside.WriteString(" ? ")
	}
	return outside.String()
}

func assertContained(t *testing.T, sql string) {
	t.Helper()
	rest := scan(t, sql)
	for _, bad := range []string{"DROP TABLE t", "SELECT 1;", "--"} {
		assert.NotContains(t, rest, bad, "user text leaked outside quotes: %s", sql)
	}
	assert.Equal(t, strings.Count(rest, "("), strings.Count(rest, ")"), "unbalanced parentheses: %s", sql)
}

func TestQuoteIdent(t *testing.T) {
	assert.Equal(t, `"A"`, QuoteIdent("A"))
	assert.Equal(t, `"col""umn"`, QuoteIdent(`col"umn`))
	assert.Equal(t, `""""""`, QuoteIdent(`""`))
}

func TestLiteral(t *testing.T) {
	assert.Equal(t, `'it''s'`, Literal("it's"))
	assert.Equal(t, `'C:\data\x.csv'`, Literal(`C:\data\x.csv`))
}

func TestCheck(t *testing.T) {
	require.NoError(t, Check("peptides"))
	require.NoError(t, Check(`weird "name"`))
	assert.Error(t, Check(""))
	assert.Error(t, Check("   "))
	assert.Error(t, Check("a\x00b"))
	assert.Error(t, Check("row.names"))
	assert.Error(t, Check(".order"))
	assert.Error(t, Check(VariablesTable))
}

func TestBuilders_HostileNamesStayQuoted(t *testing.T) {
	for _, name := range hostile {
		t.Run(name, func(t *testing.T) {
			cols := []string{name, "B", name + "2"}
			subset := []Column{{Source: name, AsText: true}, {Source: "B", As: name}}

			stmts := []string{
				ClassOf(name),
				RowCount(name),
				ColumnCount(name),
				LengthOf(name, "integer[]"),
				Columns(name),
				RowLabels(name),
				Payload(name, cols),
				Bind(name, ReadDelimited("/tmp/"+name+".txt", '\t')),
				CreateTable(name, cols),
				SubsetColumns(name, subset),
				SetRowLabels(name, name),
				DropColumn(name, name),
				UniqueRows(name+"_rows", name, cols),
				SaveImage(name, "/tmp/"+name+".duckdb", []string{name}),
				AttachImage("/tmp/" + name + ".duckdb"),
				LoadImage(name, []string{name}),
				SetVariable(name, Literal(name)),
				ClearNamespace([]Object{{Name: name, Kind: KindView}, {Name: name, Kind: KindTable}, {Name: name, Kind: KindVariable}}),
			}
			for _, sql := range stmts {
				assertContained(t, sql)
			}
		})
	}
}

func TestSubsetColumns_OrderAndRenaming(t *testing.T) {
	sql := SubsetColumns("t", []Column{
		{Source: "ID", AsText: true},
		{Source: "A"},
		{Source: "C", As: "Charlie"},
	})

	assert.Equal(t,
		`CREATE OR REPLACE TABLE "t" AS SELECT CAST("ID" AS VARCHAR) AS "ID", "A" AS "A", "C" AS "Charlie" FROM "t"`,
		sql)
}

func TestSetRowLabelsAndDropColumn(t *testing.T) {
	assert.Equal(t,
		`CREATE OR REPLACE TABLE "t" AS SELECT CAST("ID" AS VARCHAR) AS "row.names", * FROM "t"`,
		SetRowLabels("t", "ID"))
	assert.Equal(t, `ALTER TABLE "t" DROP COLUMN "ID"`, DropColumn("t", "ID"))
}

func TestUniqueRows_PreservesFirstOccurrence(t *testing.T) {
	sql := UniqueRows("rows", "t", []string{"Protein", "Gene"})

	assert.True(t, strings.HasPrefix(sql, `CREATE OR REPLACE TABLE "rows" AS SELECT "Protein", "Gene" FROM (`))
	assert.Contains(t, sql, `CAST("Protein" AS VARCHAR) AS "Protein"`)
	assert.Contains(t, sql, `rowid AS ".order"`)
	assert.Contains(t, sql, `PARTITION BY "Protein", "Gene" ORDER BY ".order"`)
	assert.True(t, strings.HasSuffix(sql, `ORDER BY ".order"`))
}

func TestReadDelimited(t *testing.T) {
	assert.Equal(t, Source(`read_csv('/d/x.csv', delim = ',', header = true, quote = '"', escape = '"')`), ReadDelimited("/d/x.csv", ','))
	assert.Equal(t, Source("read_csv('/d/x.txt', delim = '\t', header = true, quote = '', escape = '')"), ReadDelimited("/d/x.txt", '\t'))
}

func TestClearNamespace(t *testing.T) {
	assert.Equal(t, "", ClearNamespace(nil))

	sql := ClearNamespace([]Object{
		{Name: "a", Kind: KindTable},
		{Name: "v", Kind: KindView},
		{Name: "x", Kind: KindVariable},
	})
	assert.Equal(t, "DROP VIEW IF EXISTS \"v\";\nDROP TABLE IF EXISTS \"a\";\nRESET VARIABLE \"x\"", sql)
}

func TestLengthOf(t *testing.T) {
	assert.Equal(t, "SELECT len(getvariable('xs'))", LengthOf("xs", "integer[]"))
	assert.Equal(t, "SELECT 1", LengthOf("n", "integer"))
}

func TestAttachImage(t *testing.T) {
	sql := AttachImage("/w/it's.duckdb")
	assert.Contains(t, sql, `ATTACH '/w/it''s.duckdb' AS "dante_image" (READ_ONLY)`)
	assert.True(t, strings.HasPrefix(sql, `DETACH DATABASE IF EXISTS "dante_image"`))
}

func TestLoadImage(t *testing.T) {
	sql := LoadImage("memory", []string{"alpha"})
	assert.True(t, strings.HasPrefix(sql, `COPY FROM DATABASE "dante_image" TO "memory"`))
	assert.Contains(t, sql, `SET VARIABLE "alpha" = (SELECT "alpha" FROM "dante_image".main."dante.variables")`)
	assert.Contains(t, sql, `DROP TABLE IF EXISTS "memory".main."dante.variables"`)
	assert.True(t, strings.HasSuffix(sql, `DETACH DATABASE "dante_image"`))
}

func TestSaveImage(t *testing.T) {
	sql := SaveImage("memory", "/w/a.duckdb", nil)
	assert.NotContains(t, sql, "dante.variables")

	sql = SaveImage("memory", "/w/a.duckdb", []string{"alpha", "genes"})
	assert.Contains(t, sql, `COPY FROM DATABASE "memory" TO "dante_image"`)
	assert.Contains(t, sql,
		`CREATE OR REPLACE TABLE "dante_image".main."dante.variables" AS SELECT getvariable('alpha') AS "alpha", getvariable('genes') AS "genes"`)
}
