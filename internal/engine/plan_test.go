package engine

import (
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sunsync/sunsync/internal/catalog"
)

func buildFixture() Plan {
	cached := []catalog.Entry{
		{Name: "Portal", Cmd: "run"},
		{Name: "Quake", Cmd: "q"},
		{Name: "Hollow Knight", Cmd: "hk"},
		{Name: "Celeste", ExitTimeout: 5},
	}
	local := []catalog.Entry{
		{Name: "Portal", Cmd: "run-local"},
		{Name: "Factorio", Cmd: "f"},
		{Name: "Hollow Knight", Cmd: "hk"},
		{Name: "Celeste", ExitTimeout: 10},
	}
	remote := []catalog.Entry{
		{Name: "Portal", Cmd: "run", UUID: "u-portal"},
		{Name: "Doom", Cmd: "d", UUID: "u-doom"},
		{Name: "Quake", Cmd: "q", UUID: "u-quake"},
		{Name: "Hollow Knight", Cmd: "hk", UUID: "u-hk"},
		{Name: "Celeste", ExitTimeout: 20, UUID: "u-celeste"},
	}
	return Build(local, remote, cached)
}

func TestBuildPartitionsByClassification(t *testing.T) {
	plan := buildFixture()

	localOps, remoteOps, conflicts, unchanged := plan.Counts()
	assert.Equal(t, 1, localOps)
	assert.Equal(t, 3, remoteOps)
	assert.Equal(t, 1, conflicts)
	assert.Equal(t, 1, unchanged)

	// Keys are processed in sorted normalized order.
	require.Len(t, plan.RemoteOps, 3)
	assert.Equal(t, ActionCreate, plan.RemoteOps[0].Action)
	assert.Equal(t, "Factorio", plan.RemoteOps[0].Name)
	assert.Equal(t, ActionUpdate, plan.RemoteOps[1].Action)
	assert.Equal(t, "Portal", plan.RemoteOps[1].Name)
	assert.Equal(t, "run-local", plan.RemoteOps[1].Result.Cmd)
	assert.Equal(t, ActionDelete, plan.RemoteOps[2].Action)
	assert.Equal(t, "Quake", plan.RemoteOps[2].Name)

	require.Len(t, plan.LocalOps, 1)
	assert.Equal(t, ActionCreate, plan.LocalOps[0].Action)
	assert.Equal(t, "Doom", plan.LocalOps[0].Name)
	assert.Equal(t, "d", plan.LocalOps[0].Result.Cmd)

	require.Len(t, plan.Conflicts, 1)
	assert.Equal(t, "Celeste", plan.Conflicts[0].Name)
	require.Len(t, plan.Conflicts[0].Fields, 1)
	assert.Equal(t, "exit-timeout", plan.Conflicts[0].Fields[0].Field)
	assert.Equal(t, "10", plan.Conflicts[0].Fields[0].Local)
	assert.Equal(t, "20", plan.Conflicts[0].Fields[0].Remote)
}

func TestBuildConvergentUpdateContributesToBothPartitions(t *testing.T) {
	cached := []catalog.Entry{{Name: "Portal", Cmd: "run"}}
	local := []catalog.Entry{{Name: "Portal", Cmd: "run-new", Output: "new.log"}}
	remote := []catalog.Entry{{Name: "Portal", Cmd: "run-new", Output: "new.log"}}

	plan := Build(local, remote, cached)
	require.Len(t, plan.LocalOps, 1)
	require.Len(t, plan.RemoteOps, 1)
	assert.Equal(t, ActionUpdate, plan.LocalOps[0].Action)
	assert.Equal(t, "run-new", plan.RemoteOps[0].Result.Cmd)
}

func TestBuildDisjointEditsCarryMergedResult(t *testing.T) {
	cached := []catalog.Entry{{Name: "Portal", Cmd: "run", ExitTimeout: 10}}
	local := []catalog.Entry{{Name: "Portal", Cmd: "run-new", ExitTimeout: 10}}
	remote := []catalog.Entry{{Name: "Portal", Cmd: "run", ExitTimeout: 99}}

	plan := Build(local, remote, cached)
	require.Empty(t, plan.Conflicts)
	require.Len(t, plan.RemoteOps, 1)
	merged := plan.RemoteOps[0].Result
	assert.Equal(t, "run-new", merged.Cmd)
	assert.Equal(t, 99, merged.ExitTimeout)
}

func TestBuildEmptyInputs(t *testing.T) {
	plan := Build(nil, nil, nil)
	assert.True(t, plan.Empty())
	assert.Zero(t, plan.Unchanged)
}

func TestPlanRender(t *testing.T) {
	plan := buildFixture()
	g := goldie.New(t)
	g.Assert(t, "plan_render", []byte(plan.Render()))
}

func TestResolvePolicies(t *testing.T) {
	conflict := Conflict{
		Name:   "Celeste",
		Local:  catalog.Entry{Name: "Celeste", ExitTimeout: 10},
		Remote: catalog.Entry{Name: "Celeste", ExitTimeout: 20, UUID: "u"},
		Fields: []FieldConflict{{Field: "exit-timeout", Local: "10", Remote: "20"}},
	}

	op, dir, ok := Resolve(conflict, PolicyPreferLocal)
	require.True(t, ok)
	assert.Equal(t, DirectionRemote, dir)
	assert.Equal(t, ActionUpdate, op.Action)
	assert.Equal(t, 10, op.Result.ExitTimeout)

	op, dir, ok = Resolve(conflict, PolicyPreferRemote)
	require.True(t, ok)
	assert.Equal(t, DirectionLocal, dir)
	assert.Equal(t, 20, op.Result.ExitTimeout)

	_, dir, ok = Resolve(conflict, PolicyManual)
	assert.False(t, ok)
	assert.Equal(t, DirectionNone, dir)
}

func TestParsePolicy(t *testing.T) {
	for spelling, want := range map[string]Policy{
		"":              PolicyManual,
		"manual":        PolicyManual,
		"local-wins":    PolicyPreferLocal,
		"LOCAL":         PolicyPreferLocal,
		"server-wins":   PolicyPreferRemote,
		"remote-wins":   PolicyPreferRemote,
		"prefer-remote": PolicyPreferRemote,
	} {
		got, err := ParsePolicy(spelling)
		require.NoError(t, err, spelling)
		assert.Equal(t, want, got, spelling)
	}

	_, err := ParsePolicy("coin-flip")
	assert.ErrorIs(t, err, ErrUnknownPolicy)
}
