package models

// Step identifies where a conversation sits in the intake workflow.
type Step string

const (
	StepNone                  Step = ""
	StepAwaitingFileSelection Step = "awaiting_file_selection"
	StepAwaitingAction        Step = "awaiting_action"
	StepEditing               Step = "editing"
	StepAwaitingPages         Step = "awaiting_pages"
	StepAwaitingCopies        Step = "awaiting_copies"
	StepAwaitingColor         Step = "awaiting_color"
	StepAwaitingSize          Step = "awaiting_size"
	StepAwaitingPaymentMethod Step = "awaiting_payment_method"
	StepAwaitingPayment       Step = "awaiting_payment"
	StepPendingCash           Step = "pending_cash"
)

type PaperSize string

const (
	SizeA4 PaperSize = "A4"
	SizeA3 PaperSize = "A3"
)

type PaymentMethod string

const (
	PaymentUnset PaymentMethod = ""
	PaymentCard  PaymentMethod = "card"
	PaymentCash  PaymentMethod = "cash"
)

// FileEntry is one uploaded artifact. Path always points at a PDF after
// ingestion; OriginalPath keeps the as-uploaded file until selection.
type FileEntry struct {
	Path         string `json:"path"`
	OriginalPath string `json:"original_path"`
	Name         string `json:"name"`
}

// Selection holds everything collected from one conversation. It is mutated
// exclusively by the serialized consumer of that conversation's queue.
type Selection struct {
	Step             Step          `json:"step"`
	Files            []*FileEntry  `json:"files"`
	File             *FileEntry    `json:"file"` // set once chosen
	Pages            string        `json:"pages"`
	Copies           int           `json:"copies"`
	Color            bool          `json:"color"`
	Size             PaperSize     `json:"size"`
	TotalCost        int64         `json:"total_cost"`
	PaymentMethod    PaymentMethod `json:"payment_method"`
	PaymentReference string        `json:"payment_reference"`
	PromptLock       bool          `json:"-"`
}
