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

// walletHandler handles HTTP requests for wallets and their ledger.
type walletHandler struct {
	walletService portssvc.WalletSvcFacade
}

func newWalletHandler(ws portssvc.WalletSvcFacade) *walletHandler {
	return &walletHandler{walletService: ws}
}

// registerWalletRoutes registers routes related to wallets.
func registerWalletRoutes(rg *gin.RouterGroup, walletService portssvc.WalletSvcFacade) {
	h := newWalletHandler(walletService)

	wallets := rg.Group("/wallets")
	{
		wallets.POST("", h.createWallet)
		wallets.GET("/:id", h.getWallet)
		wallets.GET("/owner/:ownerID", h.getWalletByOwner)
		wallets.DELETE("/:id", h.closeWallet)
		wallets.GET("/:id/entries", h.listEntries)
		wallets.GET("/:id/reconcile", h.reconcile)
		wallets.GET("/system/:kind", h.getSystemWallet)

		mutating := wallets.Group("", middleware.RequireIdempotencyKey())
		{
			mutating.POST("/:id/deposit", h.deposit)
			mutating.POST("/:id/withdraw", h.withdraw)
		}
	}
}

func (h *walletHandler) createWallet(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	var req dto.CreateWalletRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Failed to bind JSON for CreateWallet", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return
	}

	creatorID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	logger.Info("Received request to create wallet", slog.String("owner_id", req.OwnerID))

	wallet, err := h.walletService.CreateWallet(c.Request.Context(), req, creatorID)
	if err != nil {
		respondError(c, logger, err, "Failed to create wallet")
		return
	}

	logger.Info("Wallet created", slog.String("wallet_id", wallet.WalletID))
	c.JSON(http.StatusCreated, dto.ToWalletResponse(wallet))
}

func (h *walletHandler) getWallet(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	wallet, err := h.walletService.GetWallet(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, logger, err, "Failed to retrieve wallet")
		return
	}
	c.JSON(http.StatusOK, dto.ToWalletResponse(wallet))
}

func (h *walletHandler) getWalletByOwner(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	wallet, err := h.walletService.GetWalletByOwner(c.Request.Context(), c.Param("ownerID"))
	if err != nil {
		respondError(c, logger, err, "Failed to retrieve wallet")
		return
	}
	c.JSON(http.StatusOK, dto.ToWalletResponse(wallet))
}

func (h *walletHandler) getSystemWallet(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	kind := domain.SystemWalletKind(c.Param("kind"))
	if kind != domain.SystemWalletEscrow && kind != domain.SystemWalletFee {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown system wallet kind"})
		return
	}

	wallet, err := h.walletService.GetOrCreateSystemWallet(c.Request.Context(), kind)
	if err != nil {
		respondError(c, logger, err, "Failed to retrieve system wallet")
		return
	}
	c.JSON(http.StatusOK, dto.ToWalletResponse(wallet))
}

func (h *walletHandler) closeWallet(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	walletID := c.Param("id")

	userID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	logger.Info("Received request to close wallet", slog.String("wallet_id", walletID))

	if err := h.walletService.CloseWallet(c.Request.Context(), walletID, userID); err != nil {
		respondError(c, logger, err, "Failed to close wallet")
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *walletHandler) deposit(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	walletID := c.Param("id")

	var req dto.MoveFundsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return
	}

	logger.Info("Received request to deposit funds",
		slog.String("wallet_id", walletID), slog.String("amount", req.Amount.String()))

	entry, err := h.walletService.Deposit(c.Request.Context(), walletID, req.Currency, req.Amount, req.Description,
		middleware.GetIdempotencyKeyFromContext(c))
	if err != nil {
		respondError(c, logger, err, "Failed to deposit funds")
		return
	}
	c.JSON(http.StatusOK, dto.ToLedgerEntryResponses([]domain.LedgerEntry{*entry})[0])
}

func (h *walletHandler) withdraw(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	walletID := c.Param("id")

	var req dto.MoveFundsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return
	}

	logger.Info("Received request to withdraw funds",
		slog.String("wallet_id", walletID), slog.String("amount", req.Amount.String()))

	entry, err := h.walletService.Withdraw(c.Request.Context(), walletID, req.Currency, req.Amount, req.Description,
		middleware.GetIdempotencyKeyFromContext(c))
	if err != nil {
		respondError(c, logger, err, "Failed to withdraw funds")
		return
	}
	c.JSON(http.StatusOK, dto.ToLedgerEntryResponses([]domain.LedgerEntry{*entry})[0])
}

func (h *walletHandler) listEntries(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	walletID := c.Param("id")
	currency := c.Query("currency")
	if currency == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "currency query parameter required"})
		return
	}

	entries, err := h.walletService.ListEntries(c.Request.Context(), walletID, currency)
	if err != nil {
		respondError(c, logger, err, "Failed to list ledger entries")
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": dto.ToLedgerEntryResponses(entries)})
}

func (h *walletHandler) reconcile(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	walletID := c.Param("id")
	currency := c.Query("currency")
	if currency == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "currency query parameter required"})
		return
	}

	result, err := h.walletService.Reconcile(c.Request.Context(), walletID, currency)
	if err != nil {
		respondError(c, logger, err, "Failed to reconcile wallet")
		return
	}
	c.JSON(http.StatusOK, result)
}
