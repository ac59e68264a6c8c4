package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/cardvault/voucher-service/internal/serial"
	"github.com/cardvault/voucher-service/internal/voucher"
	"github.com/gin-gonic/gin"
)

// BatchHandler handles admin operations on batches, bundles and cards.
type BatchHandler struct {
	svc *voucher.Service
}

// NewBatchHandler wires a batch handler with the voucher service.
func NewBatchHandler(svc *voucher.Service) *BatchHandler {
	return &BatchHandler{svc: svc}
}

// issueBatchRequest captures the payload for batch issuance.
type issueBatchRequest struct {
	Denomination   int64  `json:"denomination"`     // Face value per card, in minor units.
	BundleCount    int    `json:"bundle_count"`     // Number of bundles to create.
	CardsPerBundle int    `json:"cards_per_bundle"` // Number of cards in each bundle.
	Note           string `json:"note"`             // Optional operator note.
}

// Issue creates a batch of bundles and cards in a single transaction. The
// response carries each card's raw PIN; this is the only place it is ever
// disclosed.
func (h *BatchHandler) Issue(c *gin.Context) {
	var body issueBatchRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	issued, errIssue := h.svc.IssueBatch(c.Request.Context(), body.Denomination, body.BundleCount, body.CardsPerBundle, strings.TrimSpace(body.Note), actorFromContext(c))
	if errIssue != nil {
		if errors.Is(errIssue, serial.ErrGenerationExhausted) {
			c.JSON(http.StatusConflict, gin.H{"error": "identifier generation exhausted, retry issuance"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": errIssue.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"batch":   issued.Batch,
		"secrets": issued.Secrets,
	})
}

// List returns batches with derived counts, filtered by query parameters.
func (h *BatchHandler) List(c *gin.Context) {
	filter := voucher.QueryFilter{
		Search:      strings.TrimSpace(c.Query("search")),
		BundleClass: strings.TrimSpace(c.Query("bundle_class")),
		CardStatus:  strings.TrimSpace(c.Query("card_status")),
	}
	views, errQuery := h.svc.Query(c.Request.Context(), filter)
	if errQuery != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list batches failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"batches": views})
}

// Get returns one batch with its full bundle and card hierarchy.
func (h *BatchHandler) Get(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	view, errGet := h.svc.GetBatch(c.Request.Context(), id)
	if errGet != nil {
		if errors.Is(errGet, voucher.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "batch not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load batch failed"})
		return
	}
	c.JSON(http.StatusOK, view)
}

// InvalidateBatch invalidates every eligible card in a batch.
func (h *BatchHandler) InvalidateBatch(c *gin.Context) {
	h.invalidate(c, voucher.BatchScope)
}

// InvalidateBundle invalidates every eligible card in a bundle.
func (h *BatchHandler) InvalidateBundle(c *gin.Context) {
	h.invalidate(c, voucher.BundleScope)
}

func (h *BatchHandler) invalidate(c *gin.Context, scopeOf func(uint64) voucher.Scope) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	report, errInvalidate := h.svc.Invalidate(c.Request.Context(), scopeOf(id), actorFromContext(c))
	if errInvalidate != nil {
		if errors.Is(errInvalidate, voucher.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "scope not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "invalidate failed"})
		return
	}
	c.JSON(http.StatusOK, report)
}

// RegenerateBatch issues replacement cards for invalidated cards in a batch.
func (h *BatchHandler) RegenerateBatch(c *gin.Context) {
	h.regenerate(c, voucher.BatchScope)
}

// RegenerateBundle issues replacement cards for invalidated cards in a bundle.
func (h *BatchHandler) RegenerateBundle(c *gin.Context) {
	h.regenerate(c, voucher.BundleScope)
}

func (h *BatchHandler) regenerate(c *gin.Context, scopeOf func(uint64) voucher.Scope) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	report, errRegen := h.svc.Regenerate(c.Request.Context(), scopeOf(id), actorFromContext(c))
	if errRegen != nil {
		if errors.Is(errRegen, voucher.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "scope not found"})
			return
		}
		if errors.Is(errRegen, serial.ErrGenerationExhausted) {
			c.JSON(http.StatusConflict, gin.H{"error": "identifier generation exhausted, retry regeneration"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "regenerate failed"})
		return
	}
	c.JSON(http.StatusOK, report)
}

// markSoldRequest captures the payload for bulk sale marking.
type markSoldRequest struct {
	CardIDs []uint64 `json:"card_ids"` // Cards to mark as sold.
	Channel string   `json:"channel"`  // Sale channel: physical or digital.
}

// MarkSold marks the listed cards as sold through the given channel.
func (h *BatchHandler) MarkSold(c *gin.Context) {
	var body markSoldRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if len(body.CardIDs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "card_ids is required"})
		return
	}

	report, errMark := h.svc.MarkSold(c.Request.Context(), body.CardIDs, strings.TrimSpace(body.Channel), actorFromContext(c))
	if errMark != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errMark.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}

// parseIDParam parses the :id path parameter, responding 400 on bad input.
func parseIDParam(c *gin.Context) (uint64, bool) {
	id, errParse := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if errParse != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

// actorFromContext reads the authenticated admin username set by the auth
// middleware.
func actorFromContext(c *gin.Context) string {
	if username, ok := c.Get("adminUsername"); ok {
		if s, okStr := username.(string); okStr && s != "" {
			return s
		}
	}
	return "admin"
}
