package http

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/nurpe/marketplace-ledger/internal/http/middleware"
)

// NewRouter assembles the API. Money is rendered as JSON numbers.
func NewRouter(handler *Handler, identity gin.HandlerFunc, environment string, origins []string, log zerolog.Logger) *gin.Engine {
	decimal.MarshalJSONWithoutQuotes = true
	if environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLog(log))
	router.Use(middleware.CORS(origins))

	handler.Register(router, identity)
	return router
}
