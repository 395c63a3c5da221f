package dto

// ── import ──

// ImportRequest multipart form fields accompanying the uploaded file
type ImportRequest struct {
	Format      string `form:"format"       binding:"omitempty,oneof=csv xlsx grid"`
	Delimiter   string `form:"delimiter"    binding:"omitempty,len=1"`
	Sheet       string `form:"sheet"        binding:"omitempty,max=64"`
	BatchSize   int    `form:"batch_size"   binding:"omitempty,min=1,max=50000"`
	Timezone    string `form:"tz"           binding:"omitempty,max=64"`
	DryRun      bool   `form:"dry_run"`
	ResolveOnly bool   `form:"resolve_only"`
}

// ImportReport outcome of one import run
type ImportReport struct {
	RunID              string           `json:"run_id"`
	Processed          int              `json:"processed"`
	Created            int              `json:"created"`
	SkippedNoIdentity  int              `json:"skipped_no_identity"`
	SkippedBadInterval int              `json:"skipped_bad_interval"`
	SkippedDuplicate   int              `json:"skipped_duplicate"`
	SkippedInvalid     int              `json:"skipped_invalid"`
	FailedRows         int              `json:"failed_rows"`
	IdentitiesCreated  int              `json:"identities_created"`
	SupervisorsLinked  int              `json:"supervisors_linked"`
	VocabularyWarnings int              `json:"vocabulary_warnings"`
	Errors             []ImportRowError `json:"errors,omitempty"`
	ErrorsTruncated    bool             `json:"errors_truncated,omitempty"`
	DryRun             bool             `json:"dry_run,omitempty"`
	Cancelled          bool             `json:"cancelled,omitempty"`
}

// ImportRowError one non-fatal row problem
type ImportRowError struct {
	Row         int               `json:"row"`
	Values      map[string]string `json:"values,omitempty"`
	Reason      string            `json:"reason"`
	Suggestions []string          `json:"suggestions,omitempty"`
}
