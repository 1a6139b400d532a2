package models

import "time"

type JobStatus string

const (
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// PrintJob is the ledger record written once a job reaches a terminal state.
type PrintJob struct {
	ID               string        `json:"id"`
	ChatID           string        `json:"chat_id"`
	FileName         string        `json:"file_name"`
	Pages            string        `json:"pages"`
	Copies           int           `json:"copies"`
	Color            bool          `json:"color"`
	Size             PaperSize     `json:"size"`
	TotalCost        int64         `json:"total_cost"`
	PaymentMethod    PaymentMethod `json:"payment_method"`
	PaymentReference string        `json:"payment_reference"`
	Status           JobStatus     `json:"status"`
	CreatedAt        time.Time     `json:"created_at"`
}

// PendingCashJob is the staff-facing view of a priced job awaiting
// out-of-band cash confirmation.
type PendingCashJob struct {
	ChatID    string    `json:"chatId"`
	TotalCost int64     `json:"totalCost"`
	Pages     string    `json:"pages"`
	Copies    int       `json:"copies"`
	Color     string    `json:"color"`
	Size      PaperSize `json:"size"`
}
