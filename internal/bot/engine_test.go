package bot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ziad784/whatsapp-bot2/internal/models"
	"github.com/ziad784/whatsapp-bot2/internal/payment"
	"github.com/ziad784/whatsapp-bot2/internal/transport"
)

type fakeTransport struct {
	mu       sync.Mutex
	messages []string
	media    []byte
	active   int32
	overlaps int32
}

func (f *fakeTransport) record(text string) {
	if atomic.AddInt32(&f.active, 1) > 1 {
		atomic.AddInt32(&f.overlaps, 1)
	}
	time.Sleep(time.Millisecond)
	f.mu.Lock()
	f.messages = append(f.messages, text)
	f.mu.Unlock()
	atomic.AddInt32(&f.active, -1)
}

func (f *fakeTransport) Reply(ctx context.Context, ev *models.Event, text string) error {
	f.record(ev.ChatID + "|" + text)
	return nil
}

func (f *fakeTransport) Send(ctx context.Context, chatID, text string) error {
	f.record(chatID + "|" + text)
	return nil
}

func (f *fakeTransport) Download(ctx context.Context, ev *models.Event) (*transport.Media, error) {
	return &transport.Media{Data: f.media, MimeType: ev.MimeType, Filename: ev.Filename}, nil
}

func (f *fakeTransport) all() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.messages...)
}

func (f *fakeTransport) count(substr string) int {
	n := 0
	for _, m := range f.all() {
		if strings.Contains(m, substr) {
			n++
		}
	}
	return n
}

func (f *fakeTransport) waitFor(t *testing.T, substr string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if f.count(substr) > 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("no message containing %q, got %v", substr, f.all())
}

type copyStep struct{ fail bool }

func (s copyStep) Run(ctx context.Context, in, out string) error {
	if s.fail {
		return fmt.Errorf("tool failed for %s", in)
	}
	data, err := os.ReadFile(in)
	if err != nil {
		return err
	}
	return os.WriteFile(out, data, 0o644)
}

type fakeExtractor struct {
	silent bool // exit clean without producing output
	pages  []string
}

func (f *fakeExtractor) Extract(ctx context.Context, in, out, pages string) error {
	f.pages = append(f.pages, pages)
	if f.silent {
		return nil
	}
	return os.WriteFile(out, []byte("extracted"), 0o644)
}

type fakePrinter struct {
	mu    sync.Mutex
	jobs  []models.PaperSize
	fail  bool
	count int
}

func (f *fakePrinter) Print(ctx context.Context, path string, size models.PaperSize) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return fmt.Errorf("printer offline")
	}
	f.count++
	f.jobs = append(f.jobs, size)
	return nil
}

type fakePages struct{ n int }

func (f fakePages) PageCount(ctx context.Context, path string) (int, error) {
	return f.n, nil
}

type fakeGateway struct {
	verifyErr error
	initCalls int
}

func (f *fakeGateway) Initialize(ctx context.Context, chatID string, amount int64) (*payment.InitResult, error) {
	f.initCalls++
	return &payment.InitResult{PaymentURL: "https://pay.example/abc", Reference: "ref-123"}, nil
}

func (f *fakeGateway) Verify(ctx context.Context, reference string) error {
	return f.verifyErr
}

type testRig struct {
	engine    *Engine
	transport *fakeTransport
	printer   *fakePrinter
	extractor *fakeExtractor
	gateway   *fakeGateway
}

func newTestRig(t *testing.T) *testRig {
	return newTestRigDelay(t, 20*time.Millisecond)
}

func newTestRigDelay(t *testing.T, promptDelay time.Duration) *testRig {
	t.Helper()
	tr := &fakeTransport{media: []byte("%PDF-1.4 test")}
	pr := &fakePrinter{}
	ex := &fakeExtractor{}
	gw := &fakeGateway{}
	eng := NewEngine(Config{
		Transport:   tr,
		ImageToPDF:  copyStep{},
		DocToPDF:    copyStep{},
		Extractor:   ex,
		Grayscale:   copyStep{},
		Printer:     pr,
		Pages:       fakePages{n: 7},
		Gateway:     gw,
		UploadsDir:  t.TempDir(),
		PromptDelay: promptDelay,
	})
	return &testRig{engine: eng, transport: tr, printer: pr, extractor: ex, gateway: gw}
}

func (r *testRig) send(t *testing.T, chatID, body string) {
	t.Helper()
	ev := &models.Event{
		ChatID:    chatID,
		MessageID: fmt.Sprintf("msg-%d", time.Now().UnixNano()),
		Body:      body,
	}
	if err := r.engine.Enqueue(context.Background(), ev); err != nil {
		t.Fatalf("enqueue %q: %v", body, err)
	}
}

func (r *testRig) sendMedia(t *testing.T, chatID, filename, mime string) {
	t.Helper()
	ev := &models.Event{
		ChatID:    chatID,
		MessageID: fmt.Sprintf("media-%d", time.Now().UnixNano()),
		HasMedia:  true,
		MediaURL:  "https://media.example/" + filename,
		MimeType:  mime,
		Filename:  filename,
	}
	if err := r.engine.Enqueue(context.Background(), ev); err != nil {
		t.Fatalf("enqueue media %s: %v", filename, err)
	}
}

func TestIntakeFlowCashToPrint(t *testing.T) {
	rig := newTestRig(t)
	chat := "234800000001@c.us"

	rig.sendMedia(t, chat, "essay.pdf", "application/pdf")
	rig.transport.waitFor(t, "select a file")

	rig.send(t, chat, "1")
	rig.transport.waitFor(t, "Selected essay.pdf")

	rig.send(t, chat, "1") // print immediately
	rig.send(t, chat, "2-4")
	rig.send(t, chat, "2") // copies
	rig.send(t, chat, "1") // black & white
	rig.send(t, chat, "1") // A4

	// 3 pages x 2 copies x 100 per B&W A4 page.
	rig.transport.waitFor(t, "Total Cost: ₦600")

	rig.send(t, chat, "2") // cash
	rig.transport.waitFor(t, "Cash payment selected")

	pending := rig.engine.PendingCashJobs()
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending cash job, got %d", len(pending))
	}
	if pending[0].TotalCost != 600 || pending[0].Copies != 2 || pending[0].Color != "B&W" {
		t.Fatalf("unexpected pending job: %+v", pending[0])
	}

	if err := rig.engine.ConfirmCashPayment(context.Background(), chat); err != nil {
		t.Fatalf("confirm cash payment: %v", err)
	}
	rig.transport.waitFor(t, "Successfully printed")
	if rig.printer.count != 2 {
		t.Fatalf("expected 2 print dispatches, got %d", rig.printer.count)
	}
	if got := rig.extractor.pages; len(got) != 1 || got[0] != "2-4" {
		t.Fatalf("unexpected extraction calls: %v", got)
	}
	if sel := rig.engine.Selection(chat); sel != nil {
		t.Fatalf("expected session released after print, got %+v", sel)
	}
}

func TestIntakeFlowCardPayment(t *testing.T) {
	rig := newTestRig(t)
	chat := "234800000002@c.us"

	rig.sendMedia(t, chat, "slides.pdf", "application/pdf")
	rig.transport.waitFor(t, "select a file")
	rig.send(t, chat, "1")
	rig.send(t, chat, "1")
	rig.send(t, chat, "all")
	rig.send(t, chat, "1") // copies
	rig.send(t, chat, "2") // color
	rig.send(t, chat, "2") // A3

	// "all" resolves to 7 pages; 7 x 1 x 400 color A3.
	rig.transport.waitFor(t, "Total Cost: ₦2800")

	rig.send(t, chat, "1") // card
	rig.transport.waitFor(t, "complete your payment")
	if rig.gateway.initCalls != 1 {
		t.Fatalf("expected 1 payment initialization, got %d", rig.gateway.initCalls)
	}
	sel := rig.engine.Selection(chat)
	if sel == nil || sel.Step != models.StepAwaitingPayment || sel.PaymentReference != "ref-123" {
		t.Fatalf("unexpected selection after card choice: %+v", sel)
	}

	if err := rig.engine.CompleteCardPayment(context.Background(), chat, "ref-123"); err != nil {
		t.Fatalf("complete card payment: %v", err)
	}
	rig.transport.waitFor(t, "Successfully printed")
	// Color job on A3: no grayscale stage, one dispatch at A3.
	if len(rig.printer.jobs) != 1 || rig.printer.jobs[0] != models.SizeA3 {
		t.Fatalf("unexpected print dispatches: %v", rig.printer.jobs)
	}
}

func TestSelectionPurgesUnchosenFiles(t *testing.T) {
	rig := newTestRig(t)
	chat := "234800000003@c.us"

	rig.sendMedia(t, chat, "one.pdf", "application/pdf")
	rig.sendMedia(t, chat, "two.pdf", "application/pdf")
	rig.sendMedia(t, chat, "three.pdf", "application/pdf")
	rig.transport.waitFor(t, "select a file")
	if rig.transport.count("select a file") != 1 {
		t.Fatalf("expected one debounced prompt, got %d", rig.transport.count("select a file"))
	}

	sel := rig.engine.Selection(chat)
	if sel == nil || len(sel.Files) != 3 {
		t.Fatalf("expected 3 candidate files, got %+v", sel)
	}
	var keep, dropA, dropB string
	keep = sel.Files[1].Path
	dropA = sel.Files[0].Path
	dropB = sel.Files[2].Path

	rig.send(t, chat, "2")
	rig.transport.waitFor(t, "Selected two.pdf")

	if _, err := os.Stat(keep); err != nil {
		t.Fatalf("chosen file should remain: %v", err)
	}
	for _, p := range []string{dropA, dropB} {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Fatalf("unchosen file %s should be deleted", p)
		}
	}
}

func TestCancelResetsConversation(t *testing.T) {
	rig := newTestRig(t)
	chat := "234800000004@c.us"

	rig.sendMedia(t, chat, "doc.pdf", "application/pdf")
	rig.transport.waitFor(t, "select a file")
	sel := rig.engine.Selection(chat)
	path := sel.Files[0].Path

	rig.send(t, chat, "CANCEL")
	rig.transport.waitFor(t, "Conversation reset")

	if sel := rig.engine.Selection(chat); sel != nil {
		t.Fatalf("expected no session after cancel, got %+v", sel)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("uploaded file %s should be deleted on cancel", path)
	}

	// Cleanup of an already-clean conversation must be harmless.
	rig.engine.Cleanup(chat)
	rig.engine.Cleanup("never-seen@c.us")
}

func TestInvalidCopiesReprompts(t *testing.T) {
	rig := newTestRig(t)
	chat := "234800000005@c.us"

	rig.sendMedia(t, chat, "doc.pdf", "application/pdf")
	rig.transport.waitFor(t, "select a file")
	rig.send(t, chat, "1")
	rig.send(t, chat, "1")
	rig.send(t, chat, "1-2")

	rig.send(t, chat, "zero")
	rig.transport.waitFor(t, "Invalid number")
	if sel := rig.engine.Selection(chat); sel.Step != models.StepAwaitingCopies {
		t.Fatalf("step should stay at copies after bad input, got %q", sel.Step)
	}

	rig.send(t, chat, "3")
	if sel := rig.engine.Selection(chat); sel.Copies != 3 || sel.Step != models.StepAwaitingColor {
		t.Fatalf("copies not accepted: %+v", sel)
	}
}

func TestUnsupportedMediaRejected(t *testing.T) {
	rig := newTestRig(t)
	chat := "234800000006@c.us"

	rig.sendMedia(t, chat, "movie.mp4", "video/mp4")
	rig.transport.waitFor(t, "Unsupported file type")
	if sel := rig.engine.Selection(chat); sel != nil {
		t.Fatalf("rejected upload must not create a session, got %+v", sel)
	}
}

func TestImageUploadConvertedToPDF(t *testing.T) {
	rig := newTestRig(t)
	chat := "234800000007@c.us"

	rig.sendMedia(t, chat, "photo.jpg", "image/jpeg")
	rig.transport.waitFor(t, "select a file")

	sel := rig.engine.Selection(chat)
	if len(sel.Files) != 1 {
		t.Fatalf("expected one candidate file, got %d", len(sel.Files))
	}
	f := sel.Files[0]
	if filepath.Ext(f.Path) != ".pdf" {
		t.Fatalf("image should have been converted to pdf, path %s", f.Path)
	}
	if f.OriginalPath == f.Path {
		t.Fatal("original image path should be kept separately")
	}
	if _, err := os.Stat(f.Path); err != nil {
		t.Fatalf("converted pdf missing: %v", err)
	}
}

func TestPromptDelayRestartsOnLaterUpload(t *testing.T) {
	rig := newTestRigDelay(t, 300*time.Millisecond)
	chat := "234800000009@c.us"

	rig.sendMedia(t, chat, "one.pdf", "application/pdf")
	time.Sleep(150 * time.Millisecond)
	rig.sendMedia(t, chat, "two.pdf", "application/pdf")

	// Well past the first upload's delay but still inside the second's:
	// a prompt here would mean the timer was not restarted.
	time.Sleep(220 * time.Millisecond)
	if n := rig.transport.count("select a file"); n != 0 {
		t.Fatalf("prompt fired before the restarted delay elapsed (%d prompts)", n)
	}

	rig.transport.waitFor(t, "select a file")
	if n := rig.transport.count("select a file"); n != 1 {
		t.Fatalf("expected exactly one prompt, got %d", n)
	}
}

func TestFreshConversationAfterCancel(t *testing.T) {
	rig := newTestRig(t)
	chat := "234800000011@c.us"

	rig.sendMedia(t, chat, "old.pdf", "application/pdf")
	rig.transport.waitFor(t, "select a file")
	oldPath := rig.engine.Selection(chat).Files[0].Path

	rig.send(t, chat, "cancel")
	rig.transport.waitFor(t, "Conversation reset")

	rig.sendMedia(t, chat, "new.pdf", "application/pdf")
	deadline := time.Now().Add(2 * time.Second)
	for rig.transport.count("select a file") < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("no prompt for the new conversation, messages %v", rig.transport.all())
		}
		time.Sleep(5 * time.Millisecond)
	}

	sel := rig.engine.Selection(chat)
	if sel == nil || sel.Step != models.StepAwaitingFileSelection {
		t.Fatalf("expected a fresh session awaiting selection, got %+v", sel)
	}
	if len(sel.Files) != 1 || sel.Files[0].Name != "new.pdf" {
		t.Fatalf("fresh session should hold only the new upload, got %+v", sel.Files)
	}
	if _, err := os.Stat(oldPath); !os.IsNotExist(err) {
		t.Fatalf("cancelled upload %s should stay deleted", oldPath)
	}
}

func TestMessageOutsideWorkflowGetsWelcome(t *testing.T) {
	rig := newTestRig(t)
	rig.send(t, "234800000008@c.us", "hello")
	rig.transport.waitFor(t, "Welcome")
}
