package promotion

import "context"

// TestOutcome is the result of running the remote test command. A failing
// run is a normal outcome, not an error; errors are reserved for the
// command being unrunnable.
type TestOutcome struct {
	Passed bool
	Output string
}

// PullRequest identifies a pull request opened on the target repository.
type PullRequest struct {
	URL    string
	Number int
}

// Workflow is the repository side of a deployment: branching, committing,
// opening the pull request, and running the configured commands. The
// gitops package provides an implementation shelling out to git and gh.
type Workflow interface {
	CreateBranch(ctx context.Context, name string) error
	Commit(ctx context.Context, message string, files []string) error
	Push(ctx context.Context, branch string) error
	CreatePullRequest(ctx context.Context, branch, title, body, baseBranch string) (*PullRequest, error)
	ChangedFiles(ctx context.Context, baseBranch string) ([]string, error)
	RunTests(ctx context.Context, command string) (*TestOutcome, error)
	RunDeploy(ctx context.Context, command string) (string, error)
}
