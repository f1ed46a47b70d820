package domain

// ChangeStatus classifies a document against the stored history.
type ChangeStatus string

const (
	StatusNew       ChangeStatus = "NEW"
	StatusUpdated   ChangeStatus = "UPDATED"
	StatusDuplicate ChangeStatus = "DUPLICATE"
	StatusUnchanged ChangeStatus = "UNCHANGED"
)

// Actionable reports whether the status leads to an assessment.
func (s ChangeStatus) Actionable() bool {
	return s == StatusNew || s == StatusUpdated
}

// Diff kinds used in ChangeRecord.DiffSummary.
const (
	DiffFullText  = "full-text"
	DiffMinorEdit = "minor-edit"
)

// ChangeRecord is the detector's verdict for one document.
type ChangeRecord struct {
	Status          ChangeStatus `json:"status"`
	PredecessorHash string       `json:"predecessor_hash,omitempty"`
	DiffSummary     string       `json:"diff_summary,omitempty"`
	FieldsChanged   []string     `json:"fields_changed,omitempty"`
	Similarity      float64      `json:"similarity,omitempty"`
	DiffExcerpt     string       `json:"diff_excerpt,omitempty"`
	DuplicateOf     string       `json:"duplicate_of,omitempty"`
	Revision        int          `json:"revision"`
}
