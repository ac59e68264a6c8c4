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

func setupBatchDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:batchhandler_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, errOpen := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := db.AutoMigrate(&models.Batch{}, &models.Bundle{}, &models.Card{}, &models.AuditLog{}); errMigrate != nil {
		t.Fatalf("migrate db: %v", errMigrate)
	}
	return db
}

func newBatchRouter(t *testing.T) (*gin.Engine, *voucher.Service) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	svc := voucher.NewService(setupBatchDB(t), voucher.Options{})
	handler := NewBatchHandler(svc)
	router := gin.New()
	router.POST("/v0/admin/batches", handler.Issue)
	router.GET("/v0/admin/batches", handler.List)
	router.GET("/v0/admin/batches/:id", handler.Get)
	router.POST("/v0/admin/batches/:id/invalidate", handler.InvalidateBatch)
	router.POST("/v0/admin/batches/:id/regenerate", handler.RegenerateBatch)
	router.POST("/v0/admin/bundles/:id/invalidate", handler.InvalidateBundle)
	router.POST("/v0/admin/cards/mark-sold", handler.MarkSold)
	return router, svc
}

func postJSON(t *testing.T, router *gin.Engine, path string, body any) *httptest.ResponseRecorder {
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

func TestIssueEndpointReturnsSecrets(t *testing.T) {
	router, _ := newBatchRouter(t)

	w := postJSON(t, router, "/v0/admin/batches", gin.H{
		"denomination":     1000,
		"bundle_count":     1,
		"cards_per_bundle": 3,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Batch struct {
			BatchNumber string `json:"batch_number"`
		} `json:"batch"`
		Secrets []struct {
			CardID       uint64 `json:"card_id"`
			SerialNumber string `json:"serial_number"`
			PIN          string `json:"pin"`
		} `json:"secrets"`
	}
	if errDecode := json.Unmarshal(w.Body.Bytes(), &resp); errDecode != nil {
		t.Fatalf("decode response: %v", errDecode)
	}
	if resp.Batch.BatchNumber == "" {
		t.Fatalf("expected batch number in response")
	}
	if len(resp.Secrets) != 3 {
		t.Fatalf("expected 3 secrets, got %d", len(resp.Secrets))
	}
	for _, secret := range resp.Secrets {
		if secret.PIN == "" || secret.SerialNumber == "" {
			t.Fatalf("incomplete secret %+v", secret)
		}
	}
}

func TestIssueEndpointRejectsBadPayload(t *testing.T) {
	router, _ := newBatchRouter(t)
	w := postJSON(t, router, "/v0/admin/batches", gin.H{"denomination": -1, "bundle_count": 1, "cards_per_bundle": 1})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", w.Code)
	}
}

func TestInvalidateBundleEndpointReportsAffected(t *testing.T) {
	router, svc := newBatchRouter(t)
	issued, errIssue := svc.IssueBatch(context.Background(), 1000, 1, 4, "", "test")
	if errIssue != nil {
		t.Fatalf("issue batch: %v", errIssue)
	}

	path := fmt.Sprintf("/v0/admin/bundles/%d/invalidate", issued.Batch.Bundles[0].ID)
	w := postJSON(t, router, path, gin.H{})
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var report voucher.BulkReport
	if errDecode := json.Unmarshal(w.Body.Bytes(), &report); errDecode != nil {
		t.Fatalf("decode report: %v", errDecode)
	}
	if len(report.Affected) != 4 || len(report.Skipped) != 0 {
		t.Fatalf("expected 4 affected, got %d/%d", len(report.Affected), len(report.Skipped))
	}
}

func TestInvalidateEndpointUnknownScope(t *testing.T) {
	router, _ := newBatchRouter(t)
	w := postJSON(t, router, "/v0/admin/batches/999/invalidate", gin.H{})
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", w.Code)
	}
	w = postJSON(t, router, "/v0/admin/batches/abc/invalidate", gin.H{})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", w.Code)
	}
}

func TestRegenerateEndpointAfterInvalidation(t *testing.T) {
	router, svc := newBatchRouter(t)
	issued, errIssue := svc.IssueBatch(context.Background(), 1000, 1, 2, "", "test")
	if errIssue != nil {
		t.Fatalf("issue batch: %v", errIssue)
	}
	if _, errInvalidate := svc.Invalidate(context.Background(), voucher.BatchScope(issued.Batch.ID), "test"); errInvalidate != nil {
		t.Fatalf("invalidate: %v", errInvalidate)
	}

	path := fmt.Sprintf("/v0/admin/batches/%d/regenerate", issued.Batch.ID)
	w := postJSON(t, router, path, gin.H{})
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var report voucher.RegenerationReport
	if errDecode := json.Unmarshal(w.Body.Bytes(), &report); errDecode != nil {
		t.Fatalf("decode report: %v", errDecode)
	}
	if len(report.NewCards) != 2 {
		t.Fatalf("expected 2 replacement cards, got %d", len(report.NewCards))
	}
	for _, secret := range report.NewCards {
		if secret.PIN == "" {
			t.Fatalf("replacement secret missing pin")
		}
	}
}

func TestMarkSoldEndpoint(t *testing.T) {
	router, svc := newBatchRouter(t)
	issued, errIssue := svc.IssueBatch(context.Background(), 1000, 1, 2, "", "test")
	if errIssue != nil {
		t.Fatalf("issue batch: %v", errIssue)
	}

	w := postJSON(t, router, "/v0/admin/cards/mark-sold", gin.H{
		"card_ids": []uint64{issued.Secrets[0].CardID},
		"channel":  models.ChannelPhysical,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var report voucher.BulkReport
	if errDecode := json.Unmarshal(w.Body.Bytes(), &report); errDecode != nil {
		t.Fatalf("decode report: %v", errDecode)
	}
	if len(report.Affected) != 1 {
		t.Fatalf("expected 1 affected, got %d", len(report.Affected))
	}

	w = postJSON(t, router, "/v0/admin/cards/mark-sold", gin.H{"card_ids": []uint64{}, "channel": "physical"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 for empty card_ids, got %d", w.Code)
	}
	w = postJSON(t, router, "/v0/admin/cards/mark-sold", gin.H{"card_ids": []uint64{1}, "channel": "fax"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 for bad channel, got %d", w.Code)
	}
}

func TestListAndGetEndpoints(t *testing.T) {
	router, svc := newBatchRouter(t)
	issued, errIssue := svc.IssueBatch(context.Background(), 1000, 1, 2, "", "test")
	if errIssue != nil {
		t.Fatalf("issue batch: %v", errIssue)
	}

	req := httptest.NewRequest(http.MethodGet, "/v0/admin/batches?search="+issued.Batch.BatchNumber[:3], nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, fmt.Sprintf("/v0/admin/batches/%d", issued.Batch.ID), nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var view voucher.BatchView
	if errDecode := json.Unmarshal(w.Body.Bytes(), &view); errDecode != nil {
		t.Fatalf("decode view: %v", errDecode)
	}
	if view.ID != issued.Batch.ID || len(view.Bundles) != 1 {
		t.Fatalf("unexpected view %+v", view)
	}

	req = httptest.NewRequest(http.MethodGet, "/v0/admin/batches/424242", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", w.Code)
	}
}
