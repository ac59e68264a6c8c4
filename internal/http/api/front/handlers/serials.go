package handlers

import (
	"net/http"
	"strings"

	"github.com/cardvault/voucher-service/internal/serial"
	"github.com/gin-gonic/gin"
)

// SerialHandler validates card serial numbers at points of sale before any
// database lookup happens.
type SerialHandler struct{}

// NewSerialHandler constructs a SerialHandler.
func NewSerialHandler() *SerialHandler {
	return &SerialHandler{}
}

// validateSerialRequest carries the serial number to check.
type validateSerialRequest struct {
	SerialNumber string `json:"serial_number"`
}

// Validate checks the serial's check digit. It says nothing about whether
// the serial exists, only whether it is well formed.
func (h *SerialHandler) Validate(c *gin.Context) {
	var body validateSerialRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	serialNumber := strings.TrimSpace(body.SerialNumber)
	if serialNumber == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "serial_number is required"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": serial.ValidateSerial(serialNumber)})
}
