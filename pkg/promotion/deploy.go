package promotion

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/entrhq/warden/pkg/notify"
	"github.com/entrhq/warden/pkg/types"
)

// DeployResult reports one deployment attempt. A failed attempt is a
// reportable outcome, not a program fault: the error string and step log
// live on the result, and the returned error is reserved for an unknown id
// or a promotion that is not approved.
type DeployResult struct {
	PromotionID    string   `json:"promotionId"`
	Success        bool     `json:"success"`
	TestsPassed    bool     `json:"testsPassed"`
	PullRequestURL string   `json:"pullRequestUrl,omitempty"`
	DeploymentURL  string   `json:"deploymentUrl,omitempty"`
	Error          string   `json:"error,omitempty"`
	Log            []string `json:"log"`
}

// Deploy runs the deployment sequence for an approved promotion: isolation
// check, branch and pull request on the target repository, the remote test
// run, the optional deploy command, then the deployed transition. Every
// step is appended to the result log. A failing test run halts the
// deployment without retrying; the promotion stays approved so the attempt
// can be repeated after a fix.
func (m *Manager) Deploy(ctx context.Context, id string) (*DeployResult, error) {
	m.mu.Lock()
	promo, ok := m.promotions[id]
	if !ok {
		m.mu.Unlock()
		return nil, &types.NotFoundError{Kind: "promotion", ID: id}
	}
	if promo.Status != types.PromotionApproved {
		err := &types.InvalidStateError{
			Kind:    "promotion",
			ID:      id,
			Op:      "deploy",
			Current: string(promo.Status),
			Wanted:  string(types.PromotionApproved),
		}
		m.mu.Unlock()
		return nil, err
	}
	snapshot := *promo
	m.mu.Unlock()

	result := &DeployResult{PromotionID: id}
	err := m.guard.WithRepository(types.RepositoryContext{
		RepoID:    m.cfg.Target.RepoID,
		RepoPath:  m.cfg.Target.RepoPath,
		Provider:  m.cfg.Target.Provider,
		URL:       m.cfg.Target.URL,
		EnteredAt: time.Now(),
	}, func() error {
		m.runDeploySteps(ctx, &snapshot, result)
		return nil
	})
	if err != nil {
		m.failDeploy(ctx, &snapshot, result, fmt.Errorf("enter target repository context: %w", err))
	}
	return result, nil
}

func (m *Manager) runDeploySteps(ctx context.Context, promo *types.PromotionRequest, result *DeployResult) {
	step := func(format string, args ...any) {
		line := fmt.Sprintf(format, args...)
		result.Log = append(result.Log, line)
		m.log.Infof("deploy %s: %s", promo.ID, line)
	}

	step("deployment started for %q", promo.Title)

	if err := m.guard.PreventSelfModification("deploy promotion " + promo.ID); err != nil {
		m.failDeploy(ctx, promo, result, err)
		return
	}
	step("isolation check passed for repository %s", m.cfg.Target.RepoID)

	branch := branchName(promo)
	if err := m.workflow.CreateBranch(ctx, branch); err != nil {
		m.failDeploy(ctx, promo, result, err)
		return
	}
	step("created branch %s", branch)

	files := make([]string, 0, len(promo.Changes))
	for _, c := range promo.Changes {
		files = append(files, c.File)
	}
	if err := m.workflow.Commit(ctx, promo.Title, files); err != nil {
		m.failDeploy(ctx, promo, result, err)
		return
	}
	step("committed %d file(s)", len(files))

	if err := m.workflow.Push(ctx, branch); err != nil {
		m.failDeploy(ctx, promo, result, err)
		return
	}
	step("pushed %s", branch)

	pr, err := m.workflow.CreatePullRequest(ctx, branch, promo.Title, Describe(promo), m.cfg.BaseBranch)
	if err != nil {
		m.failDeploy(ctx, promo, result, err)
		return
	}
	result.PullRequestURL = pr.URL
	step("opened pull request #%d: %s", pr.Number, pr.URL)

	outcome, err := m.workflow.RunTests(ctx, m.cfg.TestCommand)
	if err != nil {
		m.failDeploy(ctx, promo, result, &types.ExternalFailureError{System: "test run", Err: err})
		return
	}
	result.TestsPassed = outcome.Passed
	if !outcome.Passed {
		step("remote tests failed")
		m.failDeploy(ctx, promo, result, fmt.Errorf("remote tests failed: %s", firstLine(outcome.Output)))
		return
	}
	step("remote tests passed")

	if m.cfg.DeployCommand != "" {
		url, err := m.workflow.RunDeploy(ctx, m.cfg.DeployCommand)
		if err != nil {
			m.failDeploy(ctx, promo, result, &types.ExternalFailureError{System: "deployment", Err: err})
			return
		}
		result.DeploymentURL = strings.TrimSpace(url)
		step("deploy command completed: %s", result.DeploymentURL)
	}

	now := time.Now()
	m.mu.Lock()
	if stored, ok := m.promotions[promo.ID]; ok {
		stored.Status = types.PromotionDeployed
		stored.DeployedAt = now
	}
	m.mu.Unlock()
	result.Success = true
	step("promotion deployed")

	m.record(ctx, types.PromotionAuditEntry{
		PromotionID: promo.ID,
		Action:      types.AuditDeployed,
		User:        promo.ApprovedBy,
	})
	m.notifier.Notify(ctx, notify.Payload{
		Type:        notify.EventDeployed,
		PromotionID: promo.ID,
		Title:       promo.Title,
		Approver:    promo.ApprovedBy,
		Status:      string(types.PromotionDeployed),
		URL:         firstNonEmpty(result.DeploymentURL, result.PullRequestURL),
		Timestamp:   now,
	})
}

// failDeploy settles the result as failed and emits the deployment_failed
// trail entry and notification. The promotion status is left untouched.
func (m *Manager) failDeploy(ctx context.Context, promo *types.PromotionRequest, result *DeployResult, err error) {
	result.Success = false
	result.Error = err.Error()
	result.Log = append(result.Log, "deployment failed: "+err.Error())
	m.log.Errorf("deploy %s failed: %v", promo.ID, err)

	m.record(ctx, types.PromotionAuditEntry{
		PromotionID: promo.ID,
		Action:      types.AuditDeployFailed,
		User:        promo.ApprovedBy,
		Reason:      err.Error(),
	})
	m.notifier.Notify(ctx, notify.Payload{
		Type:        notify.EventDeploymentFailed,
		PromotionID: promo.ID,
		Title:       promo.Title,
		Status:      string(types.PromotionApproved),
		Timestamp:   time.Now(),
	})
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
