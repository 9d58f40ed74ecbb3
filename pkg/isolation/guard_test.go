package isolation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/warden/pkg/types"
)

func newTestGuard(t *testing.T) *Guard {
	t.Helper()
	g, err := NewGuard(Config{
		OwnRepoPath:       "/srv/agent/warden",
		ProtectedPatterns: []string{"**/.github/workflows/**"},
	}, nil)
	require.NoError(t, err)
	require.NoError(t, g.Register("warden", "/srv/agent/warden"))
	require.NoError(t, g.Register("sandbox", "/srv/work/sandbox"))
	return g
}

func TestGuard_RequiresOwnRepoPath(t *testing.T) {
	_, err := NewGuard(Config{}, nil)
	assert.Error(t, err)
}

func TestGuard_CurrentFailsWithoutContext(t *testing.T) {
	g := newTestGuard(t)

	_, err := g.Current()
	assert.ErrorContains(t, err, "no active repository context")

	err = g.PreventSelfModification("commit")
	assert.ErrorContains(t, err, "no active repository context")
}

func TestGuard_PushPopRestoresCaller(t *testing.T) {
	g := newTestGuard(t)

	require.NoError(t, g.Push(types.RepositoryContext{RepoID: "sandbox", RepoPath: "/srv/work/sandbox"}))
	require.NoError(t, g.Push(types.RepositoryContext{RepoID: "other", RepoPath: "/srv/work/other"}))
	assert.Equal(t, 2, g.Depth())

	rc, err := g.Pop()
	require.NoError(t, err)
	assert.Equal(t, "other", rc.RepoID)

	current, err := g.Current()
	require.NoError(t, err)
	assert.Equal(t, "sandbox", current.RepoID)
}

func TestGuard_WithRepositoryRestoresOnError(t *testing.T) {
	g := newTestGuard(t)
	require.NoError(t, g.Push(types.RepositoryContext{RepoID: "sandbox", RepoPath: "/srv/work/sandbox"}))

	err := g.WithRepository(types.RepositoryContext{RepoID: "other", RepoPath: "/srv/work/other"}, func() error {
		inner, err := g.Current()
		require.NoError(t, err)
		assert.Equal(t, "other", inner.RepoID)
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)

	current, err := g.Current()
	require.NoError(t, err)
	assert.Equal(t, "sandbox", current.RepoID, "caller context restored after failure")
}

func TestGuard_WithRepositoryRestoresOnPanic(t *testing.T) {
	g := newTestGuard(t)
	require.NoError(t, g.Push(types.RepositoryContext{RepoID: "sandbox", RepoPath: "/srv/work/sandbox"}))

	assert.Panics(t, func() {
		_ = g.WithRepository(types.RepositoryContext{RepoID: "other", RepoPath: "/srv/work/other"}, func() error {
			panic("boom")
		})
	})
	assert.Equal(t, 1, g.Depth())
}

func TestGuard_PreventSelfModification(t *testing.T) {
	g := newTestGuard(t)

	require.NoError(t, g.Push(types.RepositoryContext{RepoID: "warden", RepoPath: "/srv/agent/warden"}))
	err := g.PreventSelfModification("create branch")

	var violation *types.GovernanceViolationError
	require.ErrorAs(t, err, &violation)
	assert.Equal(t, "create branch", violation.Op)

	// Any other registered repository is fine.
	require.NoError(t, g.Push(types.RepositoryContext{RepoID: "sandbox", RepoPath: "/srv/work/sandbox"}))
	assert.NoError(t, g.PreventSelfModification("create branch"))
}

func TestGuard_PreventSelfModification_NormalizedComparison(t *testing.T) {
	g := newTestGuard(t)

	// Case or separator games must not bypass the check.
	require.NoError(t, g.Push(types.RepositoryContext{RepoID: "warden", RepoPath: `\srv\Agent\WARDEN`}))
	var violation *types.GovernanceViolationError
	assert.ErrorAs(t, g.PreventSelfModification("push"), &violation)
}

func TestGuard_VerifySeparation(t *testing.T) {
	g := newTestGuard(t)

	tests := []struct {
		name     string
		path     string
		repoID   string
		wantFail string
	}{
		{name: "inside own repository", path: "/srv/agent/warden/pkg/risk/evaluator.go", wantFail: "own repository"},
		{name: "own repository root", path: "/srv/agent/warden", wantFail: "own repository"},
		{name: "unregistered path", path: "/tmp/scratch/x.go", wantFail: "registered repository"},
		{name: "protected pattern", path: "/srv/work/sandbox/.github/workflows/deploy.yml", wantFail: "protected pattern"},
		{name: "wrong repository", path: "/srv/work/sandbox/main.go", repoID: "other", wantFail: "expected"},
		{name: "registered path", path: "/srv/work/sandbox/main.go", repoID: "sandbox"},
		{name: "registered path without expectation", path: "/srv/work/sandbox/main.go"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := g.VerifySeparation(tt.path, tt.repoID)
			if tt.wantFail == "" {
				assert.NoError(t, err)
				return
			}
			var violation *types.GovernanceViolationError
			require.ErrorAs(t, err, &violation)
			assert.Contains(t, violation.Reason, tt.wantFail)
		})
	}
}

func TestGuard_VerifySeparation_PrefixNotConfused(t *testing.T) {
	g := newTestGuard(t)

	// /srv/work/sandbox-evil is not under /srv/work/sandbox.
	err := g.VerifySeparation("/srv/work/sandbox-evil/x.go", "")
	var violation *types.GovernanceViolationError
	assert.ErrorAs(t, err, &violation)
}
