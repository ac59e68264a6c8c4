package handlers

import (
	"errors"
	"net/http"

	"github.com/cardvault/voucher-service/internal/lifecycle"
	"github.com/cardvault/voucher-service/internal/voucher"
	"github.com/gin-gonic/gin"
)

// RedeemHandler receives redemption notifications from the redemption
// system.
type RedeemHandler struct {
	svc *voucher.Service
}

// NewRedeemHandler constructs a RedeemHandler.
func NewRedeemHandler(svc *voucher.Service) *RedeemHandler {
	return &RedeemHandler{svc: svc}
}

// redeemedRequest identifies the card that was redeemed.
type redeemedRequest struct {
	CardID uint64 `json:"card_id"`
}

// Redeemed marks a sold card as used. Cards that are not in a redeemable
// state are rejected without mutation.
func (h *RedeemHandler) Redeemed(c *gin.Context) {
	var body redeemedRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if body.CardID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "card_id is required"})
		return
	}

	if errRedeem := h.svc.NotifyRedeemed(c.Request.Context(), body.CardID); errRedeem != nil {
		switch {
		case errors.Is(errRedeem, voucher.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "card not found"})
		case errors.Is(errRedeem, lifecycle.ErrInvalidTransition):
			c.JSON(http.StatusConflict, gin.H{"error": "card is not in a redeemable state"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "redeem failed"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
