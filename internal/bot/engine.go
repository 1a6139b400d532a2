// Package bot implements the conversational print-job intake engine: the
// per-conversation queue scheduler, the intake state machine, the prompt
// debouncer, file ingestion, the print pipeline, and resource cleanup.
package bot

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ziad784/whatsapp-bot2/internal/convert"
	"github.com/ziad784/whatsapp-bot2/internal/models"
	"github.com/ziad784/whatsapp-bot2/internal/payment"
	"github.com/ziad784/whatsapp-bot2/internal/storage"
	"github.com/ziad784/whatsapp-bot2/internal/transport"
)

// Extractor produces a PDF holding only the requested page range.
type Extractor interface {
	Extract(ctx context.Context, inputPath, outputPath, pages string) error
}

// Printer dispatches one copy of a PDF to the physical printer.
type Printer interface {
	Print(ctx context.Context, path string, size models.PaperSize) error
}

const (
	defaultPromptDelay  = time.Second
	defaultStageTimeout = 2 * time.Minute
)

// Config wires the engine's collaborators.
type Config struct {
	Transport  transport.Client
	ImageToPDF convert.Step
	DocToPDF   convert.Step
	Extractor  Extractor
	Grayscale  convert.Step
	Printer    Printer
	Pages      convert.PageCounter
	Gateway    payment.Gateway
	DB         *sql.DB // optional job ledger
	UploadsDir string
	Pricing    PricingTable
	// PromptDelay and StageTimeout default to 1s and 2m when zero.
	PromptDelay  time.Duration
	StageTimeout time.Duration
}

// Engine owns the conversation registry and drives every conversation
// through the intake workflow.
type Engine struct {
	reg *registry

	transport  transport.Client
	imageToPDF convert.Step
	docToPDF   convert.Step
	extractor  Extractor
	grayscale  convert.Step
	printer    Printer
	pages      convert.PageCounter
	gateway    payment.Gateway
	db         *sql.DB

	uploadsDir   string
	pricing      PricingTable
	promptDelay  time.Duration
	stageTimeout time.Duration
}

func NewEngine(cfg Config) *Engine {
	if cfg.PromptDelay <= 0 {
		cfg.PromptDelay = defaultPromptDelay
	}
	if cfg.StageTimeout <= 0 {
		cfg.StageTimeout = defaultStageTimeout
	}
	if cfg.Pricing == nil {
		cfg.Pricing = DefaultPricing
	}
	return &Engine{
		reg:          newRegistry(),
		transport:    cfg.Transport,
		imageToPDF:   cfg.ImageToPDF,
		docToPDF:     cfg.DocToPDF,
		extractor:    cfg.Extractor,
		grayscale:    cfg.Grayscale,
		printer:      cfg.Printer,
		pages:        cfg.Pages,
		gateway:      cfg.Gateway,
		db:           cfg.DB,
		uploadsDir:   cfg.UploadsDir,
		pricing:      cfg.Pricing,
		promptDelay:  cfg.PromptDelay,
		stageTimeout: cfg.StageTimeout,
	}
}

const (
	msgReset          = "🔄 Conversation reset. Please send your document."
	msgWelcome        = "Welcome to Apex Business Hub!\n📄 Please send your document (PDF, Word, or image), or type 'cancel' to reset."
	msgGenericError   = "❌ An error occurred. Please try again or contact support."
	msgInvalidAction  = "❌ Invalid choice. Reply with 1, 2, 3, or 'cancel'."
	msgEnterPages     = "Enter the page range (e.g., 1-5 or 'all')."
	msgEditing        = "✏️ Editing option selected. What would you like to modify?"
	msgVisitOffice    = "Please visit our office to make modifications to your document."
	msgEnterCopies    = "Enter the number of copies."
	msgInvalidCopies  = "❌ Invalid number. Enter a valid number of copies."
	msgChooseColor    = "Choose print type: (1) Black & White (2) Color"
	msgChooseSize     = "Choose paper size: (1) A4 (2) A3"
	msgInvalidPayment = "❌ Invalid choice. Reply with (1) Card or (2) Cash."
	msgPaymentPending = "Please complete the payment using the link sent earlier."
	msgPaymentFailed  = "❌ Failed to initiate payment. Please try again."
)

// handleEvent consumes one inbound event while holding the conversation's
// entry lock. Unexpected errors are contained here: the step is left
// untouched and the user gets a generic apology.
func (e *Engine) handleEvent(ev *models.Event) {
	ent := e.reg.getOrCreate(ev.ChatID)
	ent.mu.Lock()
	defer ent.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			log.Printf("event handler panic for chat %s: %v", ev.ChatID, r)
			e.safeReply(ev, msgGenericError)
		}
	}()

	log.Printf("processing message %s for chat %s, has media: %t", ev.MessageID, ev.ChatID, ev.HasMedia)

	if strings.EqualFold(strings.TrimSpace(ev.Body), "cancel") {
		e.cancelConversation(ent, ev)
		return
	}

	if ev.HasMedia {
		e.handleUpload(ent, ev)
		return
	}

	sel := ent.sel
	step := models.StepNone
	if sel != nil {
		step = sel.Step
	}
	switch step {
	case models.StepAwaitingFileSelection:
		e.handleFileSelection(ent, ev)
	case models.StepAwaitingAction:
		e.handleAction(ent, ev)
	case models.StepEditing:
		e.safeReply(ev, msgVisitOffice)
		e.cleanupLocked(ev.ChatID, ent)
		e.safeReply(ev, msgReset)
	case models.StepAwaitingPages:
		sel.Pages = strings.TrimSpace(ev.Body)
		sel.Step = models.StepAwaitingCopies
		e.safeReply(ev, msgEnterCopies)
	case models.StepAwaitingCopies:
		copies, err := strconv.Atoi(strings.TrimSpace(ev.Body))
		if err != nil || copies < 1 {
			log.Printf("invalid copies input %q for chat %s", ev.Body, ev.ChatID)
			e.safeReply(ev, msgInvalidCopies)
			return
		}
		sel.Copies = copies
		sel.Step = models.StepAwaitingColor
		e.safeReply(ev, msgChooseColor)
	case models.StepAwaitingColor:
		// Permissive positional choice: anything but "2" means B&W.
		sel.Color = strings.TrimSpace(ev.Body) == "2"
		sel.Step = models.StepAwaitingSize
		e.safeReply(ev, msgChooseSize)
	case models.StepAwaitingSize:
		e.handleSize(ent, ev)
	case models.StepAwaitingPaymentMethod:
		e.handlePaymentMethod(ent, ev)
	case models.StepAwaitingPayment:
		e.safeReply(ev, msgPaymentPending)
	case models.StepPendingCash:
		e.safeReply(ev, fmt.Sprintf("Your print job is pending cash payment of ₦%d. Please pay at the print shop. Awaiting staff confirmation.", sel.TotalCost))
	case models.StepNone:
		e.safeReply(ev, msgWelcome)
	default:
		log.Printf("unhandled step %q for chat %s", step, ev.ChatID)
		e.safeReply(ev, msgGenericError)
	}
}

func (e *Engine) cancelConversation(ent *entry, ev *models.Event) {
	log.Printf("cancel command received for chat %s", ev.ChatID)
	if sel := ent.sel; sel != nil && sel.TotalCost > 0 {
		e.recordJob(ev.ChatID, sel, models.JobCancelled)
	}
	e.cleanupLocked(ev.ChatID, ent)
	e.safeReply(ev, msgReset)
}

func (e *Engine) handleFileSelection(ent *entry, ev *models.Event) {
	sel := ent.sel
	input := strings.TrimSpace(ev.Body)
	choice, err := strconv.Atoi(input)
	if err != nil || choice < 1 || choice > len(sel.Files) {
		log.Printf("invalid file selection %q for chat %s, prompting again", input, ev.ChatID)
		e.safeReply(ev, "❌ Invalid choice. Please select a file to print:\n"+fileOptions(sel.Files)+"\nReply with the number (e.g., 1) or 'cancel' to reset.")
		return
	}

	selected := sel.Files[choice-1]
	for i, f := range sel.Files {
		if i == choice-1 {
			continue
		}
		removeFileEntry(ev.ChatID, f)
	}
	sel.Files = []*models.FileEntry{selected}
	sel.File = selected
	sel.Step = models.StepAwaitingAction
	sel.PromptLock = true
	log.Printf("selected file %s for chat %s", selected.Name, ev.ChatID)

	e.reg.mu.Lock()
	if ent.prompt != nil {
		ent.prompt.Stop()
		ent.prompt = nil
	}
	e.reg.mu.Unlock()

	e.safeReply(ev, fmt.Sprintf("✅ Selected %s. Do you want to:\n1️⃣ Print immediately 🖨\n2️⃣ Edit the document ✏️\n3️⃣ Cancel ❌\nReply with 1, 2, 3, or 'cancel'.", selected.Name))
}

func (e *Engine) handleAction(ent *entry, ev *models.Event) {
	switch strings.TrimSpace(ev.Body) {
	case "1":
		ent.sel.Step = models.StepAwaitingPages
		e.safeReply(ev, msgEnterPages)
	case "2":
		ent.sel.Step = models.StepEditing
		e.safeReply(ev, msgEditing)
	case "3":
		e.cleanupLocked(ev.ChatID, ent)
		e.safeReply(ev, msgReset)
	default:
		e.safeReply(ev, msgInvalidAction)
	}
}

func (e *Engine) handleSize(ent *entry, ev *models.Event) {
	sel := ent.sel
	size := models.SizeA4
	if strings.TrimSpace(ev.Body) == "2" {
		size = models.SizeA3
	}

	pageCount, err := e.resolvePageCount(sel)
	if err != nil {
		// Step unchanged so the user may answer again once the document
		// can be inspected.
		log.Printf("page count lookup failed for chat %s: %v", ev.ChatID, err)
		e.safeReply(ev, msgGenericError)
		return
	}

	sel.Size = size
	sel.TotalCost = e.pricing.Cost(pageCount, sel.Copies, sel.Color, size)
	sel.Step = models.StepAwaitingPaymentMethod
	log.Printf("computed cost for chat %s: pages=%d copies=%d color=%t size=%s cost=%d",
		ev.ChatID, pageCount, sel.Copies, sel.Color, size, sel.TotalCost)
	e.safeReply(ev, fmt.Sprintf("Total Cost: ₦%d.\nHow would you like to pay?\n(1) Card\n(2) Cash", sel.TotalCost))
}

// resolvePageCount applies the range grammar: "all" delegates to the
// document inspector, "a-b" spans b-a+1 pages, any other token is one page.
func (e *Engine) resolvePageCount(sel *models.Selection) (int, error) {
	if strings.EqualFold(sel.Pages, "all") {
		ctx, cancel := context.WithTimeout(context.Background(), e.stageTimeout)
		defer cancel()
		return e.pages.PageCount(ctx, sel.File.Path)
	}
	return ParsePageRange(sel.Pages), nil
}

func (e *Engine) handlePaymentMethod(ent *entry, ev *models.Event) {
	sel := ent.sel
	switch strings.TrimSpace(ev.Body) {
	case "1":
		sel.PaymentMethod = models.PaymentCard
		sel.Step = models.StepAwaitingPayment
		e.initiatePayment(ev, sel)
	case "2":
		sel.PaymentMethod = models.PaymentCash
		sel.Step = models.StepPendingCash
		log.Printf("cash payment selected, job pending for chat %s", ev.ChatID)
		e.safeReply(ev, fmt.Sprintf("✅ Cash payment selected. Please pay ₦%d at the print shop. Awaiting confirmation from staff.", sel.TotalCost))
	default:
		log.Printf("invalid payment method input %q for chat %s", ev.Body, ev.ChatID)
		e.safeReply(ev, msgInvalidPayment)
	}
}

func (e *Engine) initiatePayment(ev *models.Event, sel *models.Selection) {
	ctx, cancel := context.WithTimeout(context.Background(), e.stageTimeout)
	defer cancel()
	res, err := e.gateway.Initialize(ctx, ev.ChatID, sel.TotalCost)
	if err != nil {
		log.Printf("payment initiation failed for chat %s: %v", ev.ChatID, err)
		e.safeReply(ev, msgPaymentFailed)
		return
	}
	sel.PaymentReference = res.Reference
	log.Printf("payment initialized for chat %s, reference %s", ev.ChatID, res.Reference)
	e.safeReply(ev, "Please complete your payment here: "+res.PaymentURL)
}

// Selection returns a snapshot of the conversation's session, or nil when
// none exists. Mutation still happens only on the serialized queue.
func (e *Engine) Selection(chatID string) *models.Selection {
	ent := e.reg.get(chatID)
	if ent == nil {
		return nil
	}
	ent.mu.Lock()
	defer ent.mu.Unlock()
	if ent.sel == nil {
		return nil
	}
	snap := *ent.sel
	if ent.sel.File != nil {
		f := *ent.sel.File
		snap.File = &f
	}
	snap.Files = append([]*models.FileEntry(nil), ent.sel.Files...)
	return &snap
}

// PendingCashJobs lists every conversation priced and awaiting staff cash
// confirmation, for the staff surface.
func (e *Engine) PendingCashJobs() []models.PendingCashJob {
	jobs := make([]models.PendingCashJob, 0)
	for chatID, ent := range e.reg.snapshot() {
		ent.mu.Lock()
		sel := ent.sel
		if sel != nil && sel.Step == models.StepPendingCash {
			color := "B&W"
			if sel.Color {
				color = "Color"
			}
			jobs = append(jobs, models.PendingCashJob{
				ChatID:    chatID,
				TotalCost: sel.TotalCost,
				Pages:     sel.Pages,
				Copies:    sel.Copies,
				Color:     color,
				Size:      sel.Size,
			})
		}
		ent.mu.Unlock()
	}
	return jobs
}

// InitiatePayment creates (or recreates) a card payment link for a priced
// conversation, used by the staff surface when the chat-side link was lost.
func (e *Engine) InitiatePayment(ctx context.Context, chatID string) (*payment.InitResult, error) {
	ent := e.reg.get(chatID)
	if ent == nil {
		return nil, fmt.Errorf("no conversation for chat %s", chatID)
	}
	ent.mu.Lock()
	defer ent.mu.Unlock()
	sel := ent.sel
	if sel == nil || sel.TotalCost <= 0 {
		return nil, fmt.Errorf("chat %s has no priced job", chatID)
	}
	res, err := e.gateway.Initialize(ctx, chatID, sel.TotalCost)
	if err != nil {
		return nil, err
	}
	sel.PaymentMethod = models.PaymentCard
	sel.PaymentReference = res.Reference
	sel.Step = models.StepAwaitingPayment
	log.Printf("payment link created for chat %s, reference %s", chatID, res.Reference)
	return res, nil
}

// ConfirmCashPayment is the staff confirmation path: only a conversation
// actually waiting on cash may be confirmed, after which the job prints.
// The pipeline runs detached from the caller's context: once the user has
// been told the job is printing, a dropped staff connection must not cancel
// the stages mid-flight.
func (e *Engine) ConfirmCashPayment(ctx context.Context, chatID string) error {
	sel := e.Selection(chatID)
	if sel == nil || sel.Step != models.StepPendingCash {
		return fmt.Errorf("chat %s has no job pending cash payment", chatID)
	}
	log.Printf("cash payment confirmed by staff for chat %s", chatID)
	e.safeSend(chatID, "✅ Cash payment confirmed! Your document is printing now.")
	return e.ExecutePrintJob(context.WithoutCancel(ctx), chatID)
}

// CompleteCardPayment verifies a gateway reference for a conversation
// awaiting card payment and, on success, prints the job.
func (e *Engine) CompleteCardPayment(ctx context.Context, chatID, reference string) error {
	sel := e.Selection(chatID)
	if sel == nil || sel.Step != models.StepAwaitingPayment {
		return fmt.Errorf("chat %s is not awaiting payment", chatID)
	}
	if reference == "" {
		reference = sel.PaymentReference
	}
	if err := e.gateway.Verify(ctx, reference); err != nil {
		log.Printf("payment verification failed for chat %s: %v", chatID, err)
		e.safeSend(chatID, "❌ Payment verification failed. Please try again or contact support.")
		return err
	}
	log.Printf("payment verified for chat %s, reference %s", chatID, reference)
	e.safeSend(chatID, "✅ Payment confirmed! Your document is printing now.")
	// Same detachment as the cash path: a verified payment prints even if
	// the callback request dies.
	return e.ExecutePrintJob(context.WithoutCancel(ctx), chatID)
}

func (e *Engine) recordJob(chatID string, sel *models.Selection, status models.JobStatus) {
	if e.db == nil {
		return
	}
	name := ""
	if sel.File != nil {
		name = sel.File.Name
	}
	job := &models.PrintJob{
		ID:               uuid.NewString(),
		ChatID:           chatID,
		FileName:         name,
		Pages:            sel.Pages,
		Copies:           sel.Copies,
		Color:            sel.Color,
		Size:             sel.Size,
		TotalCost:        sel.TotalCost,
		PaymentMethod:    sel.PaymentMethod,
		PaymentReference: sel.PaymentReference,
		Status:           status,
		CreatedAt:        time.Now().UTC(),
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := storage.RecordJob(ctx, e.db, job); err != nil {
		log.Printf("record job for chat %s failed: %v", chatID, err)
	}
}

// safeReply sends a reply and only logs failures; a broken transport never
// escalates into the state machine.
func (e *Engine) safeReply(ev *models.Event, text string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := e.transport.Reply(ctx, ev, text); err != nil {
		log.Printf("reply to chat %s failed: %v", ev.ChatID, err)
		return
	}
	debugLog("sent reply to chat %s: %s", ev.ChatID, text)
}

// safeSend is safeReply for contexts with no triggering event (payment
// callbacks, staff confirmations).
func (e *Engine) safeSend(chatID, text string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := e.transport.Send(ctx, chatID, text); err != nil {
		log.Printf("send to chat %s failed: %v", chatID, err)
	}
}
