package cli

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sunsync/sunsync/internal/baseline"
	"github.com/sunsync/sunsync/internal/catalog"
	"github.com/sunsync/sunsync/internal/engine"
	"github.com/sunsync/sunsync/internal/syncer"
)

func newCaptureCommand() (*cobra.Command, *bytes.Buffer, *bytes.Buffer) {
	cmd := &cobra.Command{}
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	return cmd, out, errOut
}

func TestReportSummarySuccess(t *testing.T) {
	cmd, out, _ := newCaptureCommand()
	entry := catalog.Entry{Name: "Portal"}
	summary := &syncer.Summary{
		Plan: engine.Plan{
			RemoteOps: []engine.Operation{{Action: engine.ActionUpdate, Name: "Portal", Local: &entry, Result: &entry}},
		},
		RemoteApplied: 1,
	}

	require.NoError(t, reportSummary(cmd, summary))
	assert.Contains(t, out.String(), `-> remote update "Portal"`)
	assert.Contains(t, out.String(), "applied: 1 to remote, 0 to local")
}

func TestReportSummaryDryRun(t *testing.T) {
	cmd, out, _ := newCaptureCommand()
	summary := &syncer.Summary{DryRun: true}

	require.NoError(t, reportSummary(cmd, summary))
	assert.Contains(t, out.String(), "dry run: nothing was written")
	assert.NotContains(t, out.String(), "applied:")
}

func TestReportSummaryErrorsYieldNonZeroExit(t *testing.T) {
	cmd, _, errOut := newCaptureCommand()
	summary := &syncer.Summary{
		Errors: []error{
			&syncer.ApplyError{Name: "Portal", Operation: "remote update", Err: errors.New("boom")},
		},
	}

	err := reportSummary(cmd, summary)
	require.Error(t, err)
	assert.Contains(t, errOut.String(), `remote update "Portal": boom`)
}

func TestDryRunDoesNotClearCache(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/api/login":
			w.Header().Set("Set-Cookie", "session=s1")
		case r.URL.Path == "/api/apps" && r.Method == http.MethodGet:
			_, _ = w.Write([]byte(`{"apps":[]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	dir := t.TempDir()
	appsFile := filepath.Join(dir, "apps.json")
	require.NoError(t, os.WriteFile(appsFile, []byte(`{"apps":[]}`), 0o644))
	cacheFile := filepath.Join(dir, "cache.json")
	store := baseline.NewFileStore(nil, cacheFile)
	require.NoError(t, store.Save(baseline.New([]catalog.Entry{{Name: "Portal"}}, 1)))

	cfgFile := filepath.Join(dir, "config.yaml")
	cfgBody := fmt.Sprintf("endpoint: %s\nusername: admin\npassword: secret\napps_file: %s\ncache: %s\n",
		server.URL, appsFile, cacheFile)
	require.NoError(t, os.WriteFile(cfgFile, []byte(cfgBody), 0o644))

	out := &bytes.Buffer{}
	rootCmd.SetOut(out)
	rootCmd.SetErr(out)
	rootCmd.SetArgs([]string{"sync", "--config", cfgFile, "--dry-run", "--clear-cache"})
	require.NoError(t, rootCmd.Execute())

	snap, err := store.Load()
	require.NoError(t, err)
	require.NotNil(t, snap, "dry run left no baseline cache")
	assert.NoError(t, snap.Verify())
	assert.Contains(t, out.String(), "dry run: nothing was written")
}

func TestReportSummaryUnresolvedConflicts(t *testing.T) {
	cmd, out, _ := newCaptureCommand()
	summary := &syncer.Summary{Unresolved: 2}

	require.NoError(t, reportSummary(cmd, summary))
	assert.Contains(t, out.String(), "2 conflicts left unresolved")
}
