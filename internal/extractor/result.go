package extractor

// ItemError is one per-file failure captured into a run's result instead
// of aborting the batch.
type ItemError struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// SkippedFolder is a directory the post-run cleanup left in place.
type SkippedFolder struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// Result is the structured outcome of one extraction run. Dry runs
// return the same shape with identical classification, so previews are
// trustworthy.
type Result struct {
	Moved             int             `json:"moved"`
	Renamed           int             `json:"renamed"`
	ContentDuplicates int             `json:"content_duplicates"`
	GlobalDuplicates  int             `json:"global_duplicates"`
	Errors            []ItemError     `json:"errors"`
	CreatedFolders    []string        `json:"created_folders"`
	SkippedFolders    []SkippedFolder `json:"skipped_folders"`
	DryRun            bool            `json:"dry_run"`
	Cancelled         bool            `json:"cancelled"`
}

// addError captures one per-file failure.
func (r *Result) addError(path, reason string) {
	r.Errors = append(r.Errors, ItemError{Path: path, Reason: reason})
}
