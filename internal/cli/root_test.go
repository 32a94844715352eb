package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leaptable/internal/catalog"
	"github.com/leapstack-labs/leaptable/internal/cli/commands"
	"github.com/leapstack-labs/leaptable/internal/cli/config"
	"github.com/leapstack-labs/leaptable/internal/testutil"
	"github.com/leapstack-labs/leaptable/internal/ui"
	"github.com/leapstack-labs/leaptable/pkg/core"
)

const haloCSV = `Mvir,big,profile
5,True,[1;2]
3,False,[3]
9,True,[]
1,False,[4;5;6;7]
7,True,[8]
`

// setupProject creates a project with a leaptable.yaml and one data table
// and makes it the working directory.
func setupProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	data := filepath.Join(dir, "sim")
	require.NoError(t, os.MkdirAll(data, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(data, "halo.csv"), []byte(haloCSV), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "leaptable.yaml"),
		[]byte("data_dir: sim\nstate_path: .leaptable/state.db\n"), 0o600))
	t.Chdir(dir)
	config.ResetConfig()
	return dir
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCmd()
	out, errOut := new(bytes.Buffer), new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func TestRoot_Subcommands(t *testing.T) {
	cmd := NewRootCmd()
	for _, name := range []string{"serve", "gather", "browse", "version", "completion"} {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, sub.Name())
	}
	for _, flag := range []string{"config", "data-dir", "state", "identity-column", "server", "session", "verbose", "output"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(flag), "flag %q should exist", flag)
	}
}

func TestVersion(t *testing.T) {
	setupProject(t)
	out, _, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "leaptable v"+Version)
}

func TestGather(t *testing.T) {
	setupProject(t)

	out, _, err := execute(t, "gather", "halo", "Mvir", "-o", "json")
	require.NoError(t, err)
	var res core.ColumnResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, []string{"5", "3", "9", "1", "7"}, res.DataFormatted)
	assert.Equal(t, "sim", res.Timestep)

	out, _, err = execute(t, "gather", "halo", "Mvir * 2", "-o", "markdown")
	require.NoError(t, err)
	assert.Contains(t, out, "Mvir * 2")
	assert.Contains(t, out, "| 3 | 18 |")

	out, _, err = execute(t, "gather", "halo", "big", "-o", "csv")
	require.NoError(t, err)
	assert.Contains(t, out, "#,big")
	assert.Contains(t, out, "2,False")
}

func TestGather_Errors(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"name error", []string{"gather", "halo", "Mstar"}, "NameError"},
		{"syntax error", []string{"gather", "halo", "Mvir +"}, "SyntaxError"},
		{"unknown object type", []string{"gather", "star", "Mvir"}, "UnknownObjectType"},
		{"missing query", []string{"gather", "halo"}, "accepts 2 arg(s)"},
		{"invalid output", []string{"gather", "halo", "Mvir", "-o", "xml"}, "output must be one of"},
		{"missing data dir", []string{"gather", "halo", "Mvir", "--data-dir", "nowhere"}, "data directory does not exist"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setupProject(t)
			_, _, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestGather_FailedResultAsJSON(t *testing.T) {
	setupProject(t)

	out, _, err := execute(t, "gather", "halo", "Mstar", "-o", "json")
	require.Error(t, err)
	var res core.ColumnResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "NameError", res.ErrorClass)
}

func TestGather_FromServer(t *testing.T) {
	dir := setupProject(t)
	logger := testutil.NewTestLogger(t)

	cat := catalog.New(catalog.Options{Logger: logger})
	require.NoError(t, cat.Open(":memory:"))
	t.Cleanup(func() { _ = cat.Close() })
	_, err := cat.Load(context.Background(), filepath.Join(dir, "sim"))
	require.NoError(t, err)

	srv := ui.NewServer(ui.Config{Catalog: cat, SessionSecret: "cli-test-secret-cli-test-secret", Logger: logger})
	t.Cleanup(func() { _ = srv.Registry().Close() })
	handler, err := srv.Handler()
	require.NoError(t, err)
	hs := httptest.NewServer(handler)
	t.Cleanup(hs.Close)

	// The data dir is not needed when a server answers.
	out, _, err := execute(t, "gather", "halo", "Mvir / 2", "--server", hs.URL, "--data-dir", "nowhere", "-o", "json")
	require.NoError(t, err)
	var res core.ColumnResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, []string{"2.50", "1.50", "4.50", "0.50", "3.50"}, res.DataFormatted)
}

func browse(t *testing.T, args ...string) commands.BrowseResult {
	t.Helper()
	out, _, err := execute(t, append([]string{"browse", "-o", "json"}, args...)...)
	require.NoError(t, err)
	var res commands.BrowseResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	return res
}

func TestBrowse(t *testing.T) {
	setupProject(t)

	res := browse(t, "halo", "Mvir")
	assert.Equal(t, core.ObjectType("halo"), res.ObjectType)
	assert.Equal(t, []string{"number()", "Mvir"}, res.Columns)
	assert.Equal(t, 5, res.FilteredCount)
	assert.Equal(t, 1, res.PageCount)
	require.Len(t, res.Rows, 5)
	assert.Equal(t, []string{"1", "5"}, res.Rows[0].Cells)
	assert.Nil(t, res.Sort)
}

func TestBrowse_FilterSortPage(t *testing.T) {
	setupProject(t)

	res := browse(t, "halo", "Mvir", "--filter", "big", "--sort", "Mvir", "--desc", "--page-size", "2")
	assert.Equal(t, []string{"number()", "Mvir", "big"}, res.Columns)
	assert.Equal(t, 3, res.FilteredCount)
	assert.Equal(t, 2, res.PageCount)
	assert.Equal(t, 2, res.PageSize)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, []string{"3", "9", "True"}, res.Rows[0].Cells)
	assert.Equal(t, []string{"5", "7", "True"}, res.Rows[1].Cells)
	require.NotNil(t, res.Sort)
	assert.Equal(t, core.SortState{Query: "Mvir", Ascending: false}, *res.Sort)

	res = browse(t, "halo", "Mvir", "--filter", "big", "--sort", "Mvir", "--desc", "--page-size", "2", "--page", "2")
	require.Len(t, res.Rows, 1)
	assert.Equal(t, []string{"1", "5", "True"}, res.Rows[0].Cells)
}

func TestBrowse_ColumnErrorsAreReported(t *testing.T) {
	setupProject(t)

	out, errOut, err := execute(t, "browse", "halo", "Mstar", "-o", "json")
	require.NoError(t, err)
	assert.Contains(t, errOut, "NameError")

	var res commands.BrowseResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Contains(t, res.Errors["Mstar"], "NameError")
	require.Len(t, res.Rows, 5)
	assert.Equal(t, []string{"1", ""}, res.Rows[0].Cells)
}

func TestBrowse_UnknownObjectType(t *testing.T) {
	setupProject(t)

	_, _, err := execute(t, "browse", "star")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "UnknownObjectType")
}

func TestBrowse_SessionRestoresTable(t *testing.T) {
	setupProject(t)

	first := browse(t, "halo", "Mvir", "--filter", "big", "--sort", "Mvir", "--page-size", "2", "--page", "2", "--session", "s1")
	require.Len(t, first.Rows, 1)

	again := browse(t, "halo", "--session", "s1")
	assert.Equal(t, []string{"number()", "Mvir", "big"}, again.Columns)
	assert.Equal(t, 2, again.Page)
	assert.Equal(t, 2, again.PageSize)
	assert.Equal(t, 3, again.FilteredCount)
	require.NotNil(t, again.Sort)
	assert.Equal(t, "Mvir", again.Sort.Query)
	require.Len(t, again.Rows, 1)
	assert.Equal(t, []string{"3", "9", "True"}, again.Rows[0].Cells)

	other := browse(t, "halo", "--session", "s2")
	assert.Equal(t, []string{"number()"}, other.Columns, "sessions are separate")
}

func TestBrowse_TableOutput(t *testing.T) {
	setupProject(t)

	out, _, err := execute(t, "browse", "halo", "Mvir", "--sort", "Mvir", "-o", "table")
	require.NoError(t, err)
	assert.Contains(t, out, "Mvir")
	assert.Contains(t, out, "page 1 of 1, 5 rows, sorted by Mvir ascending")
}
