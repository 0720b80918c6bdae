package models

// MergeOutcome reports one projection run: how many source rows were fed
// into the master schema and which source identifiers were rejected
// (missing required fields or identity conflicts) and left unflagged for
// retry.
type MergeOutcome struct {
	Fed      int      `json:"fed"`
	Rejected []string `json:"rejected,omitempty"`
}

// FeedResult reports one orchestrated feed run across all three kinds.
type FeedResult struct {
	Tenders       MergeOutcome `json:"tenders"`
	Awards        MergeOutcome `json:"awards"`
	Organizations MergeOutcome `json:"organizations"`
}

// ExtractResult reports one organization extraction run.
type ExtractResult struct {
	Organizations  int `json:"organizations"`
	AwardsConsumed int `json:"awards_consumed"`
}
