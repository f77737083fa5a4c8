package profiler

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildDataset(t *testing.T) *Dataset {
	t.Helper()
	p, clk, _ := newTestProfile(t)
	reg := p.Registry()
	unit := reg.GetOrCreateUnit("main.lua")
	outer := reg.GetOrCreateCallable(unit, "outer", 1)
	inner := reg.GetOrCreateCallable(unit, "inner", 10)

	clk.Set(0)
	p.Enable()
	tr := p.NewTracker("main")
	tr.Enter(outer, 1, 0)
	tr.Step(2, 3)
	tr.Enter(inner, 10, 4)
	tr.Leave(8)
	tr.Leave(9)
	clk.Set(20)
	p.Disable()
	return p.Merge()
}

func hasIssue(issues []Issue, fragment string) bool {
	for _, issue := range issues {
		if strings.Contains(issue.Check, fragment) {
			return true
		}
	}
	return false
}

func TestVerify_ConsistentDatasetHasNoIssues(t *testing.T) {
	ds := buildDataset(t)
	assert.Empty(t, Verify(ds))
}

func TestVerify_DetectsTotalMismatch(t *testing.T) {
	ds := buildDataset(t)
	ds.Units[0].TotalHits++

	issues := Verify(ds)
	require.NotEmpty(t, issues)
	assert.True(t, hasIssue(issues, "total consistency"))
	assert.NotEmpty(t, issues[0].String())
}

func TestVerify_DetectsNegativeValues(t *testing.T) {
	ds := buildDataset(t)
	ds.Units[0].Lines[0].Hits = -1

	issues := Verify(ds)
	assert.True(t, hasIssue(issues, "non-negative"))
}

func TestVerify_DetectsDuplicateNames(t *testing.T) {
	ds := buildDataset(t)
	clone := *ds.Units[0]
	ds.Units = append(ds.Units, &clone)

	issues := Verify(ds)
	assert.True(t, hasIssue(issues, "unique name"))
}

func TestVerify_DetectsUnresolvableCallee(t *testing.T) {
	ds := buildDataset(t)
	u := ds.Units[0]
	require.NotEmpty(t, u.Calls)
	u.Calls[0].Callee = CallableID(9999)

	issues := Verify(ds)
	assert.True(t, hasIssue(issues, "callee resolution"))
}

func TestVerify_DetectsMismatchedCalleeUnit(t *testing.T) {
	ds := buildDataset(t)
	u := ds.Units[0]
	require.NotEmpty(t, u.Calls)
	u.Calls[0].CalleeUnit = UnitID(7)

	issues := Verify(ds)
	assert.True(t, hasIssue(issues, "callee unit"))
}

func TestVerify_SingleWriterTimeBound(t *testing.T) {
	ds := buildDataset(t)
	require.Equal(t, 1, ds.Writers)
	ds.TotalTime = ds.Units[0].TotalTime / 2

	issues := Verify(ds)
	assert.True(t, hasIssue(issues, "within total time"))
}

func TestVerify_MultiWriterSkipsTimeBound(t *testing.T) {
	ds := buildDataset(t)
	ds.Writers = 2
	ds.TotalTime = ds.Units[0].TotalTime / 2

	issues := Verify(ds)
	assert.False(t, hasIssue(issues, "within total time"))
}
