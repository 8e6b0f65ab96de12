package domain

// Category is the classification bucket assigned to a record.
type Category string

const (
	CategorySerious         Category = "serious"
	CategorySeriousMemecoin Category = "serious_memecoin"
	CategoryTrashMemecoin   Category = "trash_memecoin"
	CategoryTrash           Category = "trash"

	// Strict filter outcomes.
	CategoryPassed   Category = "passed"
	CategoryRejected Category = "rejected"
)

// Verdict is the classifier output for a single record.
type Verdict struct {
	Pass     bool     `json:"pass"`
	Category Category `json:"category"`
	Score    float64  `json:"score"`
	Reasons  []string `json:"reasons,omitempty"`
}
