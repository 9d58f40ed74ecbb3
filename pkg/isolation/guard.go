// Package isolation enforces repository boundaries for the governance
// pipeline. A Guard tracks which repository is "current" on an explicit
// context stack, forbids operations from crossing repository roots, and
// refuses any direct write targeting the agent's own production repository:
// changes to it may only flow through the promotion path.
//
// A Guard is not safe for concurrent use by lifecycles targeting different
// repositories from the same "current context". Callers operating on
// multiple repositories concurrently must use independent Guard instances
// or serialize per repository; the governed invariant is per-repository,
// not global.
package isolation

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/gobwas/glob"

	"github.com/entrhq/warden/pkg/logging"
	"github.com/entrhq/warden/pkg/types"
)

// Guard holds the repository context stack and boundary configuration.
type Guard struct {
	// ownRepoPath is the normalized path of the agent's own repository.
	ownRepoPath string

	// protected are extra path patterns that may never be written even
	// inside an otherwise-permitted repository.
	protected []glob.Glob

	// registered maps repo id to its normalized root path.
	registered map[string]string

	stack []types.RepositoryContext
	log   *logging.Logger
}

// Config configures a Guard.
type Config struct {
	// OwnRepoPath is the path of the agent's own production repository.
	OwnRepoPath string

	// ProtectedPatterns are glob patterns (slash-separated, ** supported)
	// of paths that may never be written directly, e.g.
	// "**/.github/workflows/**".
	ProtectedPatterns []string
}

// NewGuard creates a guard. Pattern compilation errors are returned rather
// than silently dropping a protection rule.
func NewGuard(cfg Config, log *logging.Logger) (*Guard, error) {
	if cfg.OwnRepoPath == "" {
		return nil, fmt.Errorf("own repository path is required")
	}
	if log == nil {
		log, _ = logging.NewLogger("isolation")
	}

	protected := make([]glob.Glob, 0, len(cfg.ProtectedPatterns))
	for _, p := range cfg.ProtectedPatterns {
		g, err := glob.Compile(normalizePath(p), '/')
		if err != nil {
			return nil, fmt.Errorf("invalid protected pattern %q: %w", p, err)
		}
		protected = append(protected, g)
	}

	return &Guard{
		ownRepoPath: normalizePath(cfg.OwnRepoPath),
		protected:   protected,
		registered:  make(map[string]string),
		log:         log,
	}, nil
}

// Register records a repository root so paths can be attributed to it.
func (g *Guard) Register(repoID, path string) error {
	if repoID == "" || path == "" {
		return fmt.Errorf("repository id and path are required")
	}
	g.registered[repoID] = normalizePath(path)
	return nil
}

// Push enters a repository context. The context's path must belong to a
// registered repository.
func (g *Guard) Push(rc types.RepositoryContext) error {
	if rc.RepoPath == "" {
		return fmt.Errorf("repository context requires a path")
	}
	if rc.EnteredAt.IsZero() {
		rc.EnteredAt = time.Now()
	}
	g.stack = append(g.stack, rc)
	g.log.Debugf("entered repository %s (%s), depth %d", rc.RepoID, rc.RepoPath, len(g.stack))
	return nil
}

// Pop leaves the current repository context, restoring the caller's.
func (g *Guard) Pop() (types.RepositoryContext, error) {
	if len(g.stack) == 0 {
		return types.RepositoryContext{}, fmt.Errorf("no active repository context")
	}
	rc := g.stack[len(g.stack)-1]
	g.stack = g.stack[:len(g.stack)-1]
	g.log.Debugf("left repository %s, depth %d", rc.RepoID, len(g.stack))
	return rc, nil
}

// Current returns the active repository context, failing when the stack is
// empty.
func (g *Guard) Current() (types.RepositoryContext, error) {
	if len(g.stack) == 0 {
		return types.RepositoryContext{}, fmt.Errorf("no active repository context")
	}
	return g.stack[len(g.stack)-1], nil
}

// Depth returns the number of nested contexts.
func (g *Guard) Depth() int {
	return len(g.stack)
}

// WithRepository runs fn inside the given repository context and restores
// the caller's context on every exit path, including panics.
func (g *Guard) WithRepository(rc types.RepositoryContext, fn func() error) error {
	if err := g.Push(rc); err != nil {
		return err
	}
	defer g.Pop()
	return fn()
}

// PreventSelfModification fails with a governance violation when the
// current context is the agent's own repository. It must be invoked
// immediately before every write operation (branch creation, commit, push),
// not only on entry.
func (g *Guard) PreventSelfModification(op string) error {
	rc, err := g.Current()
	if err != nil {
		return err
	}
	if samePath(rc.RepoPath, g.ownRepoPath) {
		return &types.GovernanceViolationError{
			Op:     op,
			Path:   rc.RepoPath,
			Reason: "direct modification of the agent's own repository; changes must flow through a promotion request",
		}
	}
	return nil
}

// VerifySeparation checks that a path is a legitimate write target: never
// inside the agent's own repository, never matching a protected pattern,
// always under a registered repository root, and under the expected
// repository when expectedRepoID is given.
func (g *Guard) VerifySeparation(path, expectedRepoID string) error {
	norm := normalizePath(path)

	if samePath(norm, g.ownRepoPath) || isUnder(norm, g.ownRepoPath) {
		return &types.GovernanceViolationError{
			Op:     "verify separation",
			Path:   path,
			Reason: "path resolves inside the agent's own repository",
		}
	}
	for _, p := range g.protected {
		if p.Match(norm) {
			return &types.GovernanceViolationError{
				Op:     "verify separation",
				Path:   path,
				Reason: "path matches a protected pattern",
			}
		}
	}

	owner := ""
	for repoID, root := range g.registered {
		if samePath(norm, root) || isUnder(norm, root) {
			owner = repoID
			break
		}
	}
	if owner == "" {
		return &types.GovernanceViolationError{
			Op:     "verify separation",
			Path:   path,
			Reason: "path does not fall under any registered repository root",
		}
	}
	if expectedRepoID != "" && owner != expectedRepoID {
		return &types.GovernanceViolationError{
			Op:     "verify separation",
			Path:   path,
			Reason: fmt.Sprintf("path belongs to repository %q, expected %q", owner, expectedRepoID),
		}
	}
	return nil
}

// normalizePath lowercases, slash-normalizes, and cleans a path so that
// case or separator differences cannot bypass a boundary check.
func normalizePath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	p = filepath.ToSlash(filepath.Clean(p))
	return strings.ToLower(strings.TrimSuffix(p, "/"))
}

func samePath(a, b string) bool {
	return normalizePath(a) == normalizePath(b)
}

func isUnder(path, root string) bool {
	return strings.HasPrefix(path+"/", root+"/")
}
