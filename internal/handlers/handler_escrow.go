package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/payflowhq/escrow_backend/internal/core/domain"
	portssvc "github.com/payflowhq/escrow_backend/internal/core/ports/services"
	"github.com/payflowhq/escrow_backend/internal/dto"
	"github.com/payflowhq/escrow_backend/internal/middleware"
)

// escrowHandler handles HTTP requests for escrow transactions.
type escrowHandler struct {
	escrowService portssvc.EscrowSvcFacade
}

func newEscrowHandler(es portssvc.EscrowSvcFacade) *escrowHandler {
	return &escrowHandler{escrowService: es}
}

// registerEscrowRoutes registers routes related to escrow transactions.
// Every mutating route requires an Idempotency-Key header.
func registerEscrowRoutes(rg *gin.RouterGroup, escrowService portssvc.EscrowSvcFacade) {
	h := newEscrowHandler(escrowService)

	transactions := rg.Group("/transactions")
	{
		transactions.GET("/:id", h.getTransaction)
		transactions.GET("/:id/history", h.listHistory)
		transactions.GET("/:id/actions", h.getAvailableActions)

		mutating := transactions.Group("", middleware.RequireIdempotencyKey())
		{
			mutating.POST("", h.createTransaction)
			mutating.POST("/:id/hold", h.holdInEscrow)
			mutating.POST("/:id/release", h.release)
			mutating.POST("/:id/refund", h.refund)
			mutating.POST("/:id/dispute", h.dispute)
			mutating.POST("/:id/resolve", h.resolveDispute)
			mutating.POST("/:id/cancel", h.cancel)
		}
	}
}

// actorFromContext builds the initiating actor from the authenticated user
// and the request's idempotency key.
func actorFromContext(c *gin.Context) (portssvc.Actor, bool) {
	userID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		return portssvc.Actor{}, false
	}
	return portssvc.Actor{
		ID:             userID,
		Type:           domain.InitiatorUser,
		IdempotencyKey: middleware.GetIdempotencyKeyFromContext(c),
	}, true
}

func (h *escrowHandler) createTransaction(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	var req dto.CreateTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Failed to bind JSON for CreateTransaction", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return
	}

	actor, ok := actorFromContext(c)
	if !ok {
		logger.Error("User ID not found in context")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	logger.Info("Received request to create escrow transaction",
		slog.String("buyer_id", req.BuyerID), slog.String("seller_id", req.SellerID),
		slog.String("amount", req.Amount.String()), slog.String("currency", req.Currency))

	txn, err := h.escrowService.CreateTransaction(c.Request.Context(), req, actor)
	if err != nil {
		respondError(c, logger, err, "Failed to create transaction")
		return
	}

	logger.Info("Transaction created", slog.String("transaction_id", txn.TransactionID))
	c.JSON(http.StatusCreated, dto.ToTransactionResponse(txn))
}

func (h *escrowHandler) getTransaction(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	transactionID := c.Param("id")

	txn, err := h.escrowService.GetTransaction(c.Request.Context(), transactionID)
	if err != nil {
		respondError(c, logger, err, "Failed to retrieve transaction")
		return
	}
	c.JSON(http.StatusOK, dto.ToTransactionResponse(txn))
}

func (h *escrowHandler) listHistory(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	transactionID := c.Param("id")

	entries, err := h.escrowService.ListHistory(c.Request.Context(), transactionID)
	if err != nil {
		respondError(c, logger, err, "Failed to retrieve transaction history")
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": dto.ToHistoryEntryResponses(entries)})
}

func (h *escrowHandler) getAvailableActions(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	transactionID := c.Param("id")

	actions, err := h.escrowService.GetAvailableActions(c.Request.Context(), transactionID)
	if err != nil {
		respondError(c, logger, err, "Failed to retrieve available actions")
		return
	}
	c.JSON(http.StatusOK, gin.H{"actions": actions})
}

func (h *escrowHandler) holdInEscrow(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	transactionID := c.Param("id")

	actor, ok := actorFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	logger.Info("Received request to hold funds in escrow", slog.String("transaction_id", transactionID))

	txn, err := h.escrowService.HoldInEscrow(c.Request.Context(), transactionID, actor)
	if err != nil {
		respondError(c, logger, err, "Failed to hold funds in escrow")
		return
	}
	c.JSON(http.StatusOK, dto.ToTransactionResponse(txn))
}

func (h *escrowHandler) release(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	transactionID := c.Param("id")

	actor, ok := actorFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	logger.Info("Received request to release escrowed funds", slog.String("transaction_id", transactionID))

	txn, err := h.escrowService.Release(c.Request.Context(), transactionID, actor)
	if err != nil {
		respondError(c, logger, err, "Failed to release funds")
		return
	}
	c.JSON(http.StatusOK, dto.ToTransactionResponse(txn))
}

func (h *escrowHandler) refund(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	transactionID := c.Param("id")

	var req dto.ActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return
	}

	actor, ok := actorFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	logger.Info("Received request to refund escrowed funds", slog.String("transaction_id", transactionID))

	txn, err := h.escrowService.Refund(c.Request.Context(), transactionID, req.Reason, actor)
	if err != nil {
		respondError(c, logger, err, "Failed to refund funds")
		return
	}
	c.JSON(http.StatusOK, dto.ToTransactionResponse(txn))
}

func (h *escrowHandler) dispute(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	transactionID := c.Param("id")

	var req dto.ActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return
	}

	actor, ok := actorFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	logger.Info("Received request to dispute transaction", slog.String("transaction_id", transactionID))

	txn, err := h.escrowService.Dispute(c.Request.Context(), transactionID, req.Reason, actor)
	if err != nil {
		respondError(c, logger, err, "Failed to dispute transaction")
		return
	}
	c.JSON(http.StatusOK, dto.ToTransactionResponse(txn))
}

func (h *escrowHandler) resolveDispute(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	transactionID := c.Param("id")

	var req dto.ResolveDisputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return
	}

	actor, ok := actorFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	logger.Info("Received request to resolve dispute",
		slog.String("transaction_id", transactionID), slog.Bool("in_favor_of_seller", req.InFavorOfSeller))

	txn, err := h.escrowService.ResolveDispute(c.Request.Context(), transactionID, req.InFavorOfSeller, req.Reason, actor)
	if err != nil {
		respondError(c, logger, err, "Failed to resolve dispute")
		return
	}
	c.JSON(http.StatusOK, dto.ToTransactionResponse(txn))
}

func (h *escrowHandler) cancel(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	transactionID := c.Param("id")

	var req dto.ActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return
	}

	actor, ok := actorFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	logger.Info("Received request to cancel transaction", slog.String("transaction_id", transactionID))

	txn, err := h.escrowService.Cancel(c.Request.Context(), transactionID, req.Reason, actor)
	if err != nil {
		respondError(c, logger, err, "Failed to cancel transaction")
		return
	}
	c.JSON(http.StatusOK, dto.ToTransactionResponse(txn))
}
