// Package api exposes the bot's HTTP surface: the inbound message webhook,
// the payment callback, and the staff endpoints for cash jobs and the job
// ledger.
package api

import (
	"context"
	"database/sql"
	"fmt"
	"html"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/ziad784/whatsapp-bot2/internal/dedup"
	"github.com/ziad784/whatsapp-bot2/internal/models"
	"github.com/ziad784/whatsapp-bot2/internal/payment"
	"github.com/ziad784/whatsapp-bot2/internal/storage"
)

// Bot is the engine surface the HTTP layer drives.
type Bot interface {
	Enqueue(ctx context.Context, ev *models.Event) error
	Cleanup(chatID string)
	Selection(chatID string) *models.Selection
	PendingCashJobs() []models.PendingCashJob
	ConfirmCashPayment(ctx context.Context, chatID string) error
	CompleteCardPayment(ctx context.Context, chatID, reference string) error
	InitiatePayment(ctx context.Context, chatID string) (*payment.InitResult, error)
}

// Handler wires HTTP routes to the bot engine.
type Handler struct {
	bot            Bot
	dedup          *dedup.Filter
	db             *sql.DB
	adminToken     string
	whatsappNumber string
	started        time.Time
}

// NewHandler constructs a Handler instance. db may be nil when no job
// ledger is configured; adminToken empty leaves staff routes open.
func NewHandler(bot Bot, filter *dedup.Filter, db *sql.DB, adminToken, whatsappNumber string) *Handler {
	return &Handler{
		bot:            bot,
		dedup:          filter,
		db:             db,
		adminToken:     adminToken,
		whatsappNumber: whatsappNumber,
		started:        time.Now(),
	}
}

func (h *Handler) requireAdminToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.adminToken != "" && c.GetHeader("X-Admin-Token") != h.adminToken {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
			return
		}
		c.Next()
	}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/", h.dashboard)
	router.GET("/status", h.status)
	router.GET("/qr", h.qr)
	router.POST("/webhook", h.webhook)
	router.GET("/callback", h.paymentCallback)

	staff := router.Group("/", h.requireAdminToken())
	staff.GET("/pending-cash-jobs", h.pendingCashJobs)
	staff.POST("/confirm-cash-payment", h.confirmCashPayment)
	staff.POST("/initialize-payment", h.initializePayment)
	staff.POST("/reset-conversation", h.resetConversation)
	staff.GET("/jobs", h.listJobs)
}

func (h *Handler) dashboard(c *gin.Context) {
	page := `<!DOCTYPE html>
<html>
<head><title>Print Bot</title></head>
<body>
<h1>WhatsApp Print Bot</h1>
<p>The bot is running. Scan the <a href="/qr">QR code</a> to start a chat.</p>
<ul>
<li><a href="/status">Status</a></li>
<li><a href="/pending-cash-jobs">Pending cash jobs</a></li>
<li><a href="/jobs">Recent jobs</a></li>
</ul>
</body>
</html>`
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(page))
}

func (h *Handler) status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": time.Since(h.started).Round(time.Second).String(),
	})
}

// qr renders a QR code linking straight into the WhatsApp chat.
func (h *Handler) qr(c *gin.Context) {
	if h.whatsappNumber == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "no whatsapp number configured"})
		return
	}
	png, err := qrcode.Encode("https://wa.me/"+h.whatsappNumber, qrcode.Medium, 256)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to render qr code"})
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

// webhook ingests one inbound message. The response is sent only after the
// event has been fully processed, so delivery providers get accurate
// success signals and retries of the same message are deduplicated.
func (h *Handler) webhook(c *gin.Context) {
	var ev models.Event
	if err := c.ShouldBindJSON(&ev); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if ev.ChatID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "chat_id is required"})
		return
	}
	if !h.dedup.FirstSight(c.Request.Context(), ev.MessageID) {
		c.JSON(http.StatusOK, gin.H{"status": "duplicate"})
		return
	}
	if err := h.bot.Enqueue(c.Request.Context(), &ev); err != nil {
		log.Printf("webhook enqueue failed for chat %s: %v", ev.ChatID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process message"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "processed"})
}

// paymentCallback is where the gateway redirects the payer's browser after
// checkout. Verification and printing run in the background; the page sends
// the payer back to the chat.
func (h *Handler) paymentCallback(c *gin.Context) {
	chatID := c.Query("chatId")
	reference := c.Query("reference")
	if reference == "" {
		reference = c.Query("trxref")
	}
	if chatID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "chatId is required"})
		return
	}
	go func() {
		if err := h.bot.CompleteCardPayment(context.Background(), chatID, reference); err != nil {
			log.Printf("payment completion failed for chat %s: %v", chatID, err)
		}
	}()

	waLink := "https://wa.me/" + h.whatsappNumber
	page := fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><title>Payment Received</title><meta http-equiv="refresh" content="3;url=%s"></head>
<body>
<h1>Thank you!</h1>
<p>We are verifying your payment. You will get a confirmation on WhatsApp shortly.</p>
<p><a href="%s">Return to the chat</a></p>
</body>
</html>`, html.EscapeString(waLink), html.EscapeString(waLink))
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(page))
}

func (h *Handler) pendingCashJobs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"jobs": h.bot.PendingCashJobs()})
}

type chatRequest struct {
	ChatID string `json:"chatId"`
}

func (h *Handler) confirmCashPayment(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ChatID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "chatId is required"})
		return
	}
	if err := h.bot.ConfirmCashPayment(c.Request.Context(), req.ChatID); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "confirmed"})
}

func (h *Handler) initializePayment(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ChatID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "chatId is required"})
		return
	}
	res, err := h.bot.InitiatePayment(c.Request.Context(), req.ChatID)
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) resetConversation(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ChatID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "chatId is required"})
		return
	}
	h.bot.Cleanup(req.ChatID)
	c.JSON(http.StatusOK, gin.H{"status": "reset"})
}

func (h *Handler) listJobs(c *gin.Context) {
	if h.db == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "job ledger not configured"})
		return
	}
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}
	jobs, err := storage.RecentJobs(c.Request.Context(), h.db, limit)
	if err != nil {
		log.Printf("list jobs failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load jobs"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs})
}
