package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/nurpe/marketplace-ledger/internal/http/middleware"
	"github.com/nurpe/marketplace-ledger/internal/model"
	"github.com/nurpe/marketplace-ledger/internal/service"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type Handler struct {
	ledger    *service.LedgerService
	contracts *service.ContractService
	reports   *service.ReportService
	log       zerolog.Logger
}

func NewHandler(ledger *service.LedgerService, contracts *service.ContractService, reports *service.ReportService, log zerolog.Logger) *Handler {
	return &Handler{ledger: ledger, contracts: contracts, reports: reports, log: log}
}

func (h *Handler) Register(router *gin.Engine, identity gin.HandlerFunc) {
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	protected := router.Group("/")
	protected.Use(identity)
	protected.GET("/contracts", h.listContracts)
	protected.GET("/contracts/:id", h.getContract)
	protected.GET("/jobs/unpaid", h.listUnpaidJobs)
	protected.POST("/jobs/:id/pay", h.payJob)
	protected.GET("/jobs/:id/receipt", h.paymentReceipt)
	protected.POST("/balances/deposit/:userId", h.deposit)
	protected.GET("/admin/best-profession", h.bestProfession)
	protected.GET("/admin/best-clients", h.bestClients)
	protected.GET("/admin/best-clients/export", h.exportBestClients)
}

type amountRequest struct {
	Amount *decimal.Decimal `json:"amount"`
}

func (h *Handler) payJob(c *gin.Context) {
	profile, ok := middleware.MustProfile(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing profile"})
		return
	}

	jobID, err := parseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job id"})
		return
	}

	amount := bindAmount(c)

	job, err := h.ledger.PayJob(c.Request.Context(), profile, jobID, amount)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

func (h *Handler) deposit(c *gin.Context) {
	recipientID, err := parseID(c.Param("userId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	amount := bindAmount(c)

	profile, err := h.ledger.Deposit(c.Request.Context(), recipientID, amount)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (h *Handler) listContracts(c *gin.Context) {
	profile, ok := middleware.MustProfile(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing profile"})
		return
	}

	contracts, err := h.contracts.ListContracts(c.Request.Context(), profile)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, contracts)
}

func (h *Handler) getContract(c *gin.Context) {
	profile, ok := middleware.MustProfile(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing profile"})
		return
	}

	id, err := parseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid contract id"})
		return
	}

	contract, err := h.contracts.GetContract(c.Request.Context(), profile, id)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, contract)
}

func (h *Handler) listUnpaidJobs(c *gin.Context) {
	profile, ok := middleware.MustProfile(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing profile"})
		return
	}

	jobs, err := h.contracts.ListUnpaidJobs(c.Request.Context(), profile)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, jobs)
}

func (h *Handler) paymentReceipt(c *gin.Context) {
	profile, ok := middleware.MustProfile(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing profile"})
		return
	}

	jobID, err := parseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job id"})
		return
	}

	result, err := h.contracts.PaymentReceipt(c.Request.Context(), profile, jobID)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.Header("Content-Disposition", "attachment; filename=\""+result.FileName+"\"")
	c.Data(http.StatusOK, "application/pdf", result.Content)
}

func (h *Handler) bestProfession(c *gin.Context) {
	rng, err := parseRange(c)
	if err != nil {
		h.handleError(c, err)
		return
	}

	best, err := h.reports.BestProfession(c.Request.Context(), rng)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, best)
}

func (h *Handler) bestClients(c *gin.Context) {
	rng, limit, err := parseClientsQuery(c)
	if err != nil {
		h.handleError(c, err)
		return
	}

	clients, err := h.reports.BestClients(c.Request.Context(), rng, limit)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, clients)
}

func (h *Handler) exportBestClients(c *gin.Context) {
	rng, limit, err := parseClientsQuery(c)
	if err != nil {
		h.handleError(c, err)
		return
	}

	result, err := h.reports.ExportBestClients(c.Request.Context(), rng, limit)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.Header("Content-Disposition", "attachment; filename=\""+result.FileName+"\"")
	c.Data(http.StatusOK, xlsxContentType, result.Content)
}

func (h *Handler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrInvalidAmount),
		errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, service.ErrInsufficientFundsOrPriceMismatch),
		errors.Is(err, service.ErrDepositExceedsCap):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// bindAmount returns zero for an absent or unreadable amount; the services
// reject it with ErrInvalidAmount after their own permission checks.
func bindAmount(c *gin.Context) decimal.Decimal {
	var req amountRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Amount == nil {
		return decimal.Zero
	}
	return *req.Amount
}

func parseID(raw string) (uint, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 0)
	if err != nil || id == 0 {
		return 0, service.ErrInvalidInput
	}
	return uint(id), nil
}

func parseClientsQuery(c *gin.Context) (model.ReportRange, int, error) {
	rng, err := parseRange(c)
	if err != nil {
		return model.ReportRange{}, 0, err
	}

	limit := service.DefaultBestClientsLimit
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil {
			return model.ReportRange{}, 0, service.ErrInvalidInput
		}
	}
	return rng, limit, nil
}

// parseRange reads the start and end query bounds. Both are whole days and
// inclusive, so end is turned into the exclusive start of the following day.
func parseRange(c *gin.Context) (model.ReportRange, error) {
	var rng model.ReportRange
	if raw := strings.TrimSpace(c.Query("start")); raw != "" {
		start, err := parseDate(raw)
		if err != nil {
			return rng, err
		}
		start = dateOnly(start)
		rng.From = &start
	}
	if raw := strings.TrimSpace(c.Query("end")); raw != "" {
		end, err := parseDate(raw)
		if err != nil {
			return rng, err
		}
		endExclusive := dateOnly(end).Add(24 * time.Hour)
		rng.To = &endExclusive
	}
	return rng, nil
}

func parseDate(raw string) (time.Time, error) {
	layouts := []string{
		time.RFC3339,
		"2006-01-02",
		"2006-01-02T15:04:05",
	}
	for _, layout := range layouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, service.ErrInvalidInput
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
