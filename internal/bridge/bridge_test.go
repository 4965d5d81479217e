package bridge

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/dante/internal/importer"
	"github.com/leapstack-labs/dante/internal/notifier"
	"github.com/leapstack-labs/dante/internal/session"
	"github.com/leapstack-labs/dante/internal/testutil"
	"github.com/leapstack-labs/dante/pkg/core"
)

func openBridge(t *testing.T) *Bridge {
	t.Helper()
	b, err := Open(context.Background(), Options{
		HistoryPath: filepath.Join(t.TempDir(), "history.db"),
		Logger:      testutil.NewTestLogger(t),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func writeSource(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "expr.txt")
	content := "ID\tA\tB\tC\ng1\t1\tx\t0.5\ng2\t2\ty\t1.5\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func nextEvent(t *testing.T, ch chan notifier.Event) notifier.Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event received")
		return notifier.Event{}
	}
}

func TestBridge_ImportAndInspect(t *testing.T) {
	ctx := context.Background()
	b := openBridge(t)
	events := b.Subscribe()
	defer b.Unsubscribe(events)

	res, err := b.RunImport(ctx, core.ImportSpec{
		SourceFile:        writeSource(t),
		TargetName:        "expr",
		UniqueRowIDColumn: "ID",
		ColumnsToKeep:     []string{"A", "C"},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"expr"}, res.Created)

	ev := nextEvent(t, events)
	assert.Equal(t, notifier.ImportCompleted, ev.Type)
	assert.Equal(t, "expr", ev.Target)

	objects, err := b.ObjectsTable(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Name", "Class", "Rows", "Columns"}, objects.Columns)
	assert.Equal(t, [][]string{{"expr", "matrix", "2", "2"}}, objects.Rows)

	tree, err := b.Tree(ctx)
	require.NoError(t, err)
	assert.Equal(t, "NewProject", tree.Label)
	require.Len(t, tree.Children, 1)
	assert.Equal(t, "expr", tree.Children[0].Label)
	assert.Equal(t, "2 rows; 2 columns", tree.Children[0].Children[0].Label)

	table, err := b.GetTable(ctx, "expr")
	require.NoError(t, err)
	assert.Equal(t, []string{"row.names", "A", "C"}, table.Columns)
	assert.Equal(t, []string{"g2", "2", "1.5"}, table.Rows[1])

	history, err := b.History(10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, core.HistoryImport, history[0].Kind)
	assert.Equal(t, core.HistorySucceeded, history[0].Status)
}

func TestBridge_FailedImportIsRecorded(t *testing.T) {
	ctx := context.Background()
	b := openBridge(t)
	events := b.Subscribe()
	defer b.Unsubscribe(events)

	_, err := b.RunImport(ctx, core.ImportSpec{
		SourceFile:    writeSource(t),
		TargetName:    "expr",
		ColumnsToKeep: []string{"missing"},
	}, nil)
	var invalid *core.InvalidSpecError
	require.ErrorAs(t, err, &invalid)

	ev := nextEvent(t, events)
	assert.Equal(t, notifier.ImportFailed, ev.Type)
	assert.NotEmpty(t, ev.Error)

	history, err := b.History(0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, core.HistoryFailed, history[0].Status)
	assert.Equal(t, string(importer.StepValidate), history[0].FailedStep)
}

func TestBridge_LoadThenCloseLeavesNothing(t *testing.T) {
	ctx := context.Background()
	b := openBridge(t)

	_, err := b.Evaluate(ctx, `CREATE TABLE a AS SELECT 1 AS x; CREATE TABLE b AS SELECT 'y' AS y`)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "study.dante")
	require.NoError(t, b.SaveWorkspace(ctx, path))
	require.NoError(t, b.CloseWorkspace(ctx))

	require.NoError(t, b.LoadWorkspace(ctx, path))
	assert.Equal(t, "study", b.WorkspaceName())
	objects, err := b.ListObjects(ctx)
	require.NoError(t, err)
	assert.Len(t, objects, 2)

	require.NoError(t, b.CloseWorkspace(ctx))
	objects, err = b.ListObjects(ctx)
	require.NoError(t, err)
	assert.Empty(t, objects)
	assert.Equal(t, "", b.CurrentWorkspace())

	history, err := b.History(0)
	require.NoError(t, err)
	kinds := make([]core.HistoryKind, len(history))
	for i, h := range history {
		kinds[i] = h.Kind
	}
	assert.ElementsMatch(t, []core.HistoryKind{
		core.HistoryWorkspaceSave, core.HistoryWorkspaceClose,
		core.HistoryWorkspaceLoad, core.HistoryWorkspaceClose,
	}, kinds)
}

func TestBridge_LoadFailure(t *testing.T) {
	b := openBridge(t)

	err := b.LoadWorkspace(context.Background(), filepath.Join(t.TempDir(), "nope.dante"))
	var loadErr *core.LoadError
	assert.ErrorAs(t, err, &loadErr)
}

func TestBridge_ImportUnreadableSource(t *testing.T) {
	b := openBridge(t)
	dir := t.TempDir()

	for _, source := range []string{filepath.Join(dir, "gone.csv"), filepath.Join(dir, "book.xlsx")} {
		_, err := b.RunImport(context.Background(), core.ImportSpec{SourceFile: source, TargetName: "x"}, nil)
		var invalid *core.InvalidSpecError
		require.ErrorAs(t, err, &invalid, source)
		var stepErr *importer.StepError
		require.ErrorAs(t, err, &stepErr)
		assert.Equal(t, importer.StepValidate, stepErr.Step)
	}

	short := filepath.Join(dir, "short.csv")
	require.NoError(t, os.WriteFile(short, []byte("ID,A\nr1\n"), 0o600))
	_, err := b.RunImport(context.Background(), core.ImportSpec{SourceFile: short, TargetName: "x"}, nil)
	var mismatch *core.ColumnCountMismatchError
	assert.ErrorAs(t, err, &mismatch)
}

func TestBridge_EvaluateAndStatus(t *testing.T) {
	b := openBridge(t)

	v, err := b.Evaluate(context.Background(), "SELECT 6 * 7")
	require.NoError(t, err)
	assert.Equal(t, session.Scalar(42), v)
	assert.False(t, b.Status().Busy)
}

func TestBridge_WithoutHistory(t *testing.T) {
	b, err := Open(context.Background(), Options{})
	require.NoError(t, err)
	defer func() { _ = b.Close() }()

	history, err := b.History(5)
	require.NoError(t, err)
	assert.Empty(t, history)
	require.NoError(t, b.CloseWorkspace(context.Background()))
}
