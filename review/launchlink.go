package review

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/stitchhq/stitch/fixctx"
	"github.com/stitchhq/stitch/launchtoken"
)

// DeepLinkBuilder stores a finding's remediation context and issues a
// signed deep link pointing at it. The link is stateless for the
// browser: all context travels as an opaque signed token in the query
// string.
type DeepLinkBuilder struct {
	Store   fixctx.Store
	Tokens  *launchtoken.Service
	BaseURL string // e.g. "https://stitch.example.com"
	Agent   string // target remediation agent name
}

// LinkFor persists the fix context and returns the launch URL.
func (b *DeepLinkBuilder) LinkFor(ctx context.Context, finding Finding, repo RepoContext) (string, error) {
	raw, err := json.Marshal(finding)
	if err != nil {
		return "", fmt.Errorf("marshal finding: %w", err)
	}

	id, err := b.Store.Put(ctx, raw, fixctx.RepoContext{
		Owner:     repo.Owner,
		Repo:      repo.Repo,
		Branch:    repo.Branch,
		CommitSHA: repo.CommitSHA,
	})
	if err != nil {
		return "", fmt.Errorf("store fix context: %w", err)
	}

	token, err := b.Tokens.Issue(b.Agent, id)
	if err != nil {
		return "", fmt.Errorf("issue launch token: %w", err)
	}

	return fmt.Sprintf("%s/launch?data=%s", b.BaseURL, url.QueryEscape(token)), nil
}
