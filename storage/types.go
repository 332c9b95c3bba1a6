package storage

// Installation represents a GitHub App installation.
type Installation struct {
	InstallationID int64  `json:"installation_id"`
	AccountID      int64  `json:"account_id,omitempty"`
	OrgLogin       string `json:"org_login"`
	InstalledAt    string `json:"installed_at"`
}

// RunRecord is the stored outcome of one review run.
type RunRecord struct {
	ID            int64  `json:"id,omitempty"`
	Owner         string `json:"owner"`
	Repo          string `json:"repo"`
	PRNumber      int    `json:"pr_number"`
	HeadSHA       string `json:"head_sha"`
	ReviewID      int64  `json:"review_id,omitempty"`
	CheckRunID    int64  `json:"check_run_id,omitempty"`
	Verdict       string `json:"verdict,omitempty"`
	FindingCount  int    `json:"finding_count"`
	CommentCount  int    `json:"comment_count"`
	MappingMisses int    `json:"mapping_misses"`
	Conclusion    string `json:"conclusion"`
	CreatedAt     string `json:"created_at,omitempty"`
}
