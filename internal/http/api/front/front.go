package front

import (
	"github.com/cardvault/voucher-service/internal/http/api/front/handlers"
	"github.com/cardvault/voucher-service/internal/voucher"
	"github.com/gin-gonic/gin"
)

// RegisterFrontRoutes registers the routes called by sale and redemption
// systems.
func RegisterFrontRoutes(r *gin.Engine, svc *voucher.Service) {
	if r == nil || svc == nil {
		return
	}

	front := r.Group("/v0/front")

	redeemHandler := handlers.NewRedeemHandler(svc)
	front.POST("/cards/redeemed", redeemHandler.Redeemed)

	serialHandler := handlers.NewSerialHandler()
	front.POST("/serials/validate", serialHandler.Validate)
}
