package dto

// ValueReportRequest defines payload for creating or updating a value report.
type ValueReportRequest struct {
	Aspect string `json:"aspect" validate:"required,max=120"`
	Score  *int   `json:"score" validate:"required,min=0,max=100"`
	Note   string `json:"note" validate:"omitempty,max=1000"`
}
