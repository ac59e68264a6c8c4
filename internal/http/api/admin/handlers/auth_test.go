package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cardvault/voucher-service/internal/config"
	"github.com/cardvault/voucher-service/internal/models"
	"github.com/cardvault/voucher-service/internal/security"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func setupAuthDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:authhandler_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, errOpen := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := db.AutoMigrate(&models.Admin{}); errMigrate != nil {
		t.Fatalf("migrate db: %v", errMigrate)
	}
	return db
}

func seedAdmin(t *testing.T, db *gorm.DB, username, password string, active bool) {
	t.Helper()
	hash, errHash := security.HashPassword(password)
	if errHash != nil {
		t.Fatalf("hash password: %v", errHash)
	}
	admin := models.Admin{Username: username, Password: hash, Active: active}
	if errCreate := db.Create(&admin).Error; errCreate != nil {
		t.Fatalf("create admin: %v", errCreate)
	}
}

func loginWith(t *testing.T, router *gin.Engine, username, password string) *httptest.ResponseRecorder {
	t.Helper()
	raw, errMarshal := json.Marshal(gin.H{"username": username, "password": password})
	if errMarshal != nil {
		t.Fatalf("marshal body: %v", errMarshal)
	}
	req := httptest.NewRequest(http.MethodPost, "/v0/admin/auth/login", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestAdminLogin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := setupAuthDB(t)
	seedAdmin(t, db, "root", "correct-horse", true)
	seedAdmin(t, db, "retired", "correct-horse", false)

	jwtCfg := config.JWTConfig{Secret: "test-secret", Expiry: time.Hour}
	handler := NewAuthHandler(db, jwtCfg)
	router := gin.New()
	router.POST("/v0/admin/auth/login", handler.Login)

	w := loginWith(t, router, "root", "correct-horse")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Token string `json:"token"`
	}
	if errDecode := json.Unmarshal(w.Body.Bytes(), &resp); errDecode != nil {
		t.Fatalf("decode response: %v", errDecode)
	}
	claims, errParse := security.ParseAdminToken(jwtCfg.Secret, resp.Token)
	if errParse != nil {
		t.Fatalf("parse issued token: %v", errParse)
	}
	if claims.Username != "root" {
		t.Fatalf("unexpected claims %+v", claims)
	}

	if w := loginWith(t, router, "root", "wrong"); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401 for bad password, got %d", w.Code)
	}
	if w := loginWith(t, router, "nobody", "whatever"); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401 for unknown admin, got %d", w.Code)
	}
	if w := loginWith(t, router, "retired", "correct-horse"); w.Code != http.StatusForbidden {
		t.Fatalf("expected status 403 for disabled admin, got %d", w.Code)
	}
	if w := loginWith(t, router, "", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 for empty credentials, got %d", w.Code)
	}
}
