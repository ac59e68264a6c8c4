package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cardvault/voucher-service/internal/models"
	"github.com/cardvault/voucher-service/internal/voucher"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func setupFrontDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:fronthandler_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, errOpen := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := db.AutoMigrate(&models.Batch{}, &models.Bundle{}, &models.Card{}, &models.AuditLog{}); errMigrate != nil {
		t.Fatalf("migrate db: %v", errMigrate)
	}
	return db
}

func newFrontRouter(t *testing.T) (*gin.Engine, *voucher.Service) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	svc := voucher.NewService(setupFrontDB(t), voucher.Options{})
	router := gin.New()
	redeemHandler := NewRedeemHandler(svc)
	router.POST("/v0/front/cards/redeemed", redeemHandler.Redeemed)
	serialHandler := NewSerialHandler()
	router.POST("/v0/front/serials/validate", serialHandler.Validate)
	return router, svc
}

func postFront(t *testing.T, router *gin.Engine, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, errMarshal := json.Marshal(body)
	if errMarshal != nil {
		t.Fatalf("marshal body: %v", errMarshal)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRedeemedEndpoint(t *testing.T) {
	router, svc := newFrontRouter(t)
	issued, errIssue := svc.IssueBatch(context.Background(), 1000, 1, 2, "", "test")
	if errIssue != nil {
		t.Fatalf("issue batch: %v", errIssue)
	}
	sold := issued.Secrets[0].CardID
	available := issued.Secrets[1].CardID
	if _, errMark := svc.MarkSold(context.Background(), []uint64{sold}, models.ChannelDigital, "test"); errMark != nil {
		t.Fatalf("mark sold: %v", errMark)
	}

	if w := postFront(t, router, "/v0/front/cards/redeemed", gin.H{"card_id": sold}); w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if w := postFront(t, router, "/v0/front/cards/redeemed", gin.H{"card_id": sold}); w.Code != http.StatusConflict {
		t.Fatalf("expected status 409 on double redemption, got %d", w.Code)
	}
	if w := postFront(t, router, "/v0/front/cards/redeemed", gin.H{"card_id": available}); w.Code != http.StatusConflict {
		t.Fatalf("expected status 409 for unsold card, got %d", w.Code)
	}
	if w := postFront(t, router, "/v0/front/cards/redeemed", gin.H{"card_id": 987654}); w.Code != http.StatusNotFound {
		t.Fatalf("expected status 404 for unknown card, got %d", w.Code)
	}
	if w := postFront(t, router, "/v0/front/cards/redeemed", gin.H{}); w.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 for missing card_id, got %d", w.Code)
	}
}

func TestValidateSerialEndpoint(t *testing.T) {
	router, svc := newFrontRouter(t)
	issued, errIssue := svc.IssueBatch(context.Background(), 1000, 1, 1, "", "test")
	if errIssue != nil {
		t.Fatalf("issue batch: %v", errIssue)
	}
	genuine := issued.Secrets[0].SerialNumber

	w := postFront(t, router, "/v0/front/serials/validate", gin.H{"serial_number": genuine})
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var resp struct {
		Valid bool `json:"valid"`
	}
	if errDecode := json.Unmarshal(w.Body.Bytes(), &resp); errDecode != nil {
		t.Fatalf("decode response: %v", errDecode)
	}
	if !resp.Valid {
		t.Fatalf("expected genuine serial to validate")
	}

	w = postFront(t, router, "/v0/front/serials/validate", gin.H{"serial_number": genuine[:len(genuine)-1] + "X"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	resp.Valid = true
	if errDecode := json.Unmarshal(w.Body.Bytes(), &resp); errDecode != nil {
		t.Fatalf("decode response: %v", errDecode)
	}
	if resp.Valid {
		t.Fatalf("expected corrupted serial to fail validation")
	}

	if w := postFront(t, router, "/v0/front/serials/validate", gin.H{"serial_number": ""}); w.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 for empty serial, got %d", w.Code)
	}
}
