package questions

import "time"

// Question belongs to one reference check. Order is 1-based and contiguous within a set.
type Question struct {
	ID       string `json:"id" db:"id"`
	CheckID  string `json:"reference_check_id" db:"reference_check_id"`
	Text     string `json:"text" db:"text"`
	Category string `json:"category" db:"category"`
	Order    int    `json:"order_num" db:"order_num"`
	Source   Source `json:"source" db:"source"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type Source string

const (
	SourceStandard  Source = "standard"
	SourceGenerated Source = "generated"
	SourceCustom    Source = "custom"
)

const (
	CategoryStandard = "standard"
	CategoryCustom   = "custom"
	CategoryGeneral  = "general"
)

// BuildRequest is the input to Builder.Build. An empty JobDescription skips generation.
type BuildRequest struct {
	Position       string   `json:"position"`
	JobDescription string   `json:"job_description"`
	Custom         []string `json:"custom_questions,omitempty"`
}

// Texts returns question texts in order.
func Texts(qs []Question) []string {
	out := make([]string, 0, len(qs))
	for _, q := range qs {
		out = append(out, q.Text)
	}
	return out
}
