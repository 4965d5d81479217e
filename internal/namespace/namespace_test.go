package namespace

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/dante/internal/session"
	"github.com/leapstack-labs/dante/internal/testutil"
	"github.com/leapstack-labs/dante/pkg/core"
)

func setup(t *testing.T, stmts ...string) (*session.Session, *Inspector) {
	t.Helper()
	s := testutil.StartSession(t, stmts...)
	return s, New(s, testutil.NewTestLogger(t))
}

func byName(objects []core.NamedObject) map[string]core.NamedObject {
	m := make(map[string]core.NamedObject, len(objects))
	for _, o := range objects {
		m[o.Name] = o
	}
	return m
}

func TestList_Empty(t *testing.T) {
	_, insp := setup(t)

	objects, err := insp.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, objects)
}

func TestList_MalformedObjectDegrades(t *testing.T) {
	_, insp := setup(t,
		`CREATE TABLE scores AS SELECT * FROM (VALUES ('a', 1.5, 2), ('b', 3.0, 4), ('c', 5.5, 6)) t("row.names", x, y)`,
		`CREATE TABLE samples AS SELECT * FROM (VALUES ('s1', 'ctrl'), ('s2', 'case')) t(id, "group")`,
		`CREATE TABLE doomed (v INTEGER)`,
		`CREATE VIEW broken AS SELECT * FROM doomed`,
		`DROP TABLE doomed`,
	)

	objects, err := insp.List(context.Background())
	require.NoError(t, err)
	require.Len(t, objects, 3)

	got := byName(objects)

	scores := got["scores"]
	assert.Equal(t, core.ClassMatrix, scores.Class)
	require.NotNil(t, scores.Rows)
	require.NotNil(t, scores.Cols)
	assert.Equal(t, 3, *scores.Rows)
	assert.Equal(t, 2, *scores.Cols)

	samples := got["samples"]
	assert.Equal(t, core.ClassDataFrame, samples.Class)
	require.NotNil(t, samples.Rows)
	assert.Equal(t, 2, *samples.Rows)
	assert.Equal(t, 2, *samples.Cols)

	broken, ok := got["broken"]
	require.True(t, ok)
	assert.Nil(t, broken.Rows)
	assert.Nil(t, broken.Cols)
}

func TestList_OpaqueVariables(t *testing.T) {
	_, insp := setup(t,
		`SET VARIABLE threshold = 0.05`,
		`SET VARIABLE genes = ['tp53', 'brca1', 'egfr']`,
	)

	objects, err := insp.List(context.Background())
	require.NoError(t, err)
	got := byName(objects)
	require.Len(t, got, 2)

	genes := got["genes"]
	assert.False(t, genes.Tabular())
	require.NotNil(t, genes.Rows)
	assert.Equal(t, 3, *genes.Rows)
	assert.Equal(t, 0, *genes.Cols)

	threshold := got["threshold"]
	require.NotNil(t, threshold.Rows)
	assert.Equal(t, 1, *threshold.Rows)
}

func TestLookup(t *testing.T) {
	_, insp := setup(t, `CREATE TABLE t AS SELECT 1 AS a`)

	obj, err := insp.Lookup(context.Background(), "t")
	require.NoError(t, err)
	assert.Equal(t, core.ClassMatrix, obj.Class)
	assert.Equal(t, 1, *obj.Rows)
	assert.Equal(t, 1, *obj.Cols)

	_, err = insp.Lookup(context.Background(), "missing")
	var evalErr *core.EvaluationError
	assert.ErrorAs(t, err, &evalErr)
	assert.ErrorIs(t, err, core.ErrObjectNotFound)
}

func TestObjects(t *testing.T) {
	s, _ := setup(t,
		`CREATE TABLE t AS SELECT 1 AS a`,
		`CREATE VIEW v AS SELECT * FROM t`,
		`SET VARIABLE x = 1`,
	)

	var objects []string
	err := s.Exclusive(context.Background(), func(ev session.Evaluator) error {
		list, err := Objects(context.Background(), ev)
		for _, o := range list {
			objects = append(objects, o.Name+":"+string(o.Kind))
		}
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"t:BASE TABLE", "v:VIEW", "x:VARIABLE"}, objects)
}
