// Package gitops implements the promotion workflow by shelling out to git
// and the gh CLI in the target repository's working directory.
package gitops

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/entrhq/warden/pkg/logging"
	"github.com/entrhq/warden/pkg/promotion"
)

// Repo runs the workflow against one local checkout.
type Repo struct {
	dir string
	log *logging.Logger
}

func New(dir string, log *logging.Logger) *Repo {
	if log == nil {
		log, _ = logging.NewLogger("gitops")
	}
	return &Repo{dir: dir, log: log}
}

func (r *Repo) run(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = r.dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return stdout.String(), fmt.Errorf("%s %s failed: %w, stderr: %s",
			name, strings.Join(args, " "), err, stderr.String())
	}
	return stdout.String(), nil
}

func (r *Repo) CreateBranch(ctx context.Context, name string) error {
	if _, err := r.run(ctx, "git", "checkout", "-b", name); err != nil {
		return err
	}
	r.log.Infof("created branch %s in %s", name, r.dir)
	return nil
}

func (r *Repo) Commit(ctx context.Context, message string, files []string) error {
	if len(files) == 0 {
		return fmt.Errorf("no files to commit")
	}
	args := append([]string{"add"}, files...)
	if _, err := r.run(ctx, "git", args...); err != nil {
		return err
	}
	if _, err := r.run(ctx, "git", "commit", "-m", message); err != nil {
		return err
	}
	return nil
}

func (r *Repo) Push(ctx context.Context, branch string) error {
	_, err := r.run(ctx, "git", "push", "-u", "origin", branch)
	if err != nil && strings.Contains(err.Error(), "already exists") {
		return nil
	}
	return err
}

func (r *Repo) CreatePullRequest(ctx context.Context, branch, title, body, baseBranch string) (*promotion.PullRequest, error) {
	out, err := r.run(ctx, "gh", "pr", "create",
		"--title", title,
		"--body", body,
		"--base", baseBranch,
		"--head", branch,
	)
	if err != nil {
		return nil, err
	}

	url := strings.TrimSpace(out)
	return &promotion.PullRequest{URL: url, Number: prNumber(url)}, nil
}

// prNumber extracts the trailing number from a pull request URL. Zero when
// the URL has an unexpected shape.
func prNumber(url string) int {
	idx := strings.LastIndex(url, "/")
	if idx < 0 {
		return 0
	}
	n, err := strconv.Atoi(url[idx+1:])
	if err != nil {
		return 0
	}
	return n
}

func (r *Repo) ChangedFiles(ctx context.Context, baseBranch string) ([]string, error) {
	out, err := r.run(ctx, "git", "diff", "--name-only", baseBranch+"...HEAD")
	if err != nil {
		return nil, err
	}

	var files []string
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line != "" {
			files = append(files, line)
		}
	}
	return files, nil
}

// RunTests runs the configured test command through the shell. A non-zero
// exit is a failing run, not an error; errors mean the command could not
// run at all.
func (r *Repo) RunTests(ctx context.Context, command string) (*promotion.TestOutcome, error) {
	if command == "" {
		return nil, fmt.Errorf("no test command configured")
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = r.dir

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	err := cmd.Run()
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("test command failed to run: %w", err)
		}
		return &promotion.TestOutcome{Passed: false, Output: output.String()}, nil
	}
	return &promotion.TestOutcome{Passed: true, Output: output.String()}, nil
}

func (r *Repo) RunDeploy(ctx context.Context, command string) (string, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = r.dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("deploy command failed: %w, stderr: %s", err, stderr.String())
	}
	return strings.TrimSpace(stdout.String()), nil
}
