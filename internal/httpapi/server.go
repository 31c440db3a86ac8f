// Package httpapi exposes the inventory service as a JSON API. It owns all
// HTTP concerns: routing, cart cookies, payload shapes, and status mapping;
// the core never sees a request.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/stockroom/pkg/inventory"
)

// Run boots the HTTP API around an already-wired inventory service and
// blocks until ctx is cancelled.
func Run(ctx context.Context, cfg Config, service *inventory.Service, logger *zap.Logger) error {
	router := NewRouter(cfg, service, logger)

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("stockroom api listening", zap.String("addr", cfg.ListenAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Warn("server shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// NewRouter builds the gin engine with all routes attached.
func NewRouter(cfg Config, service *inventory.Service, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Origin", "Accept"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	handler := &httpHandler{
		logger:  logger,
		service: service,
		cfg:     cfg,
	}

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	api.GET("/items", handler.handleListItems)
	api.POST("/items", handler.handleAddItem)
	api.PATCH("/items/:id", handler.handleUpdateItem)
	api.DELETE("/items/:id", handler.handleDeleteItem)
	api.GET("/catalogue", handler.handleCatalogue)
	api.GET("/low_stock", handler.handleLowStock)
	api.GET("/purchase", handler.handlePurchaseView)
	api.GET("/cart", handler.handleCart)
	api.POST("/cart", handler.handleAddToCart)
	api.POST("/cart/clear", handler.handleClearCart)
	api.POST("/checkout", handler.handleCheckout)

	return router
}

type httpHandler struct {
	logger  *zap.Logger
	service *inventory.Service
	cfg     Config
}

type itemPayload struct {
	ItemID     string `json:"item_id"`
	Name       string `json:"name"`
	Quantity   int64  `json:"quantity"`
	PriceCents int64  `json:"price_cents"`
}

type addItemRequest struct {
	ItemID     string `json:"item_id"`
	Name       string `json:"name"`
	Quantity   int64  `json:"quantity"`
	PriceCents int64  `json:"price_cents"`
}

type updateItemRequest struct {
	Name         *string `json:"name"`
	Quantity     *int64  `json:"quantity"`
	QuantityMode string  `json:"quantity_mode"`
	PriceCents   *int64  `json:"price_cents"`
	PriceMode    string  `json:"price_mode"`
}

type addToCartRequest struct {
	Ref      string `json:"ref"`
	Quantity int64  `json:"quantity"`
}

func (handler *httpHandler) handleListItems(ctx *gin.Context) {
	items := handler.service.Search(ctx.Query("q"))
	ctx.JSON(http.StatusOK, gin.H{"items": itemPayloads(items)})
}

func (handler *httpHandler) handleCatalogue(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"items": itemPayloads(handler.service.Catalogue())})
}

func (handler *httpHandler) handleLowStock(ctx *gin.Context) {
	items := handler.service.LowStock(handler.cfg.LowStockThreshold)
	ctx.JSON(http.StatusOK, gin.H{
		"threshold": handler.cfg.LowStockThreshold,
		"items":     itemPayloads(items),
	})
}

func (handler *httpHandler) handleAddItem(ctx *gin.Context) {
	var request addItemRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	id, err := inventory.NewItemID(request.ItemID)
	if err != nil {
		handler.respondDomainError(ctx, err)
		return
	}
	if err := handler.service.AddItem(ctx.Request.Context(), id, request.Name, request.Quantity, request.PriceCents); err != nil {
		handler.respondDomainError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"item_id": id.String()})
}

func (handler *httpHandler) handleUpdateItem(ctx *gin.Context) {
	id, err := inventory.NewItemID(ctx.Param("id"))
	if err != nil {
		handler.respondDomainError(ctx, err)
		return
	}
	var request updateItemRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	patch := inventory.ItemPatch{
		Name:        request.Name,
		Quantity:    request.Quantity,
		QuantityAdd: request.QuantityMode == "add",
		PriceCents:  request.PriceCents,
		PriceAdd:    request.PriceMode == "add",
	}
	if err := handler.service.UpdateItem(ctx.Request.Context(), id, patch); err != nil {
		handler.respondDomainError(ctx, err)
		return
	}
	item, err := handler.service.Item(id)
	if err != nil {
		handler.respondDomainError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, itemPayload{
		ItemID:     id.String(),
		Name:       item.Name,
		Quantity:   item.Quantity,
		PriceCents: item.PriceCents,
	})
}

func (handler *httpHandler) handleDeleteItem(ctx *gin.Context) {
	id, err := inventory.NewItemID(ctx.Param("id"))
	if err != nil {
		handler.respondDomainError(ctx, err)
		return
	}
	rawAmount := ctx.Query("amount")
	if rawAmount == "" {
		if err := handler.service.RemoveItem(ctx.Request.Context(), id); err != nil {
			handler.respondDomainError(ctx, err)
			return
		}
		ctx.JSON(http.StatusOK, gin.H{"item_id": id.String(), "removed": true})
		return
	}
	amount, err := strconv.ParseInt(rawAmount, 10, 64)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_quantity", "amount must be an integer"))
		return
	}
	removedAll, err := handler.service.RemovePartial(ctx.Request.Context(), id, amount)
	if err != nil {
		handler.respondDomainError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"item_id": id.String(), "removed": removedAll})
}

func (handler *httpHandler) handlePurchaseView(ctx *gin.Context) {
	session, _, err := handler.ensureCartSession(ctx)
	if err != nil {
		handler.logger.Error("cart session failed", zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, errorResponse("session_error", "could not open cart session"))
		return
	}
	view := handler.service.DisplayView(session)
	index := inventory.BuildRefIndex(view)
	rows := make([]gin.H, 0, len(view))
	for position, listed := range view {
		rows = append(rows, gin.H{
			"ref":         strconv.Itoa(position + 1),
			"item_id":     listed.ID.String(),
			"name":        listed.Item.Name,
			"available":   listed.Item.Quantity,
			"price_cents": listed.Item.PriceCents,
		})
	}
	ctx.JSON(http.StatusOK, gin.H{
		"items": rows,
		"refs":  index.Len(),
		"cart":  cartPayload(session),
	})
}

func (handler *httpHandler) handleAddToCart(ctx *gin.Context) {
	var request addToCartRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	session, _, err := handler.ensureCartSession(ctx)
	if err != nil {
		handler.logger.Error("cart session failed", zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, errorResponse("session_error", "could not open cart session"))
		return
	}
	// The ref is only meaningful against the view it was built from, so the
	// index is rebuilt from the same session overlay the client last saw.
	index := inventory.BuildRefIndex(handler.service.DisplayView(session))
	id, err := index.Resolve(request.Ref)
	if err != nil {
		handler.respondDomainError(ctx, err)
		return
	}
	if err := handler.service.AddLine(ctx.Request.Context(), session, id, request.Quantity); err != nil {
		handler.respondDomainError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"cart": cartPayload(session)})
}

func (handler *httpHandler) handleCart(ctx *gin.Context) {
	session := handler.resumeCartSession(ctx)
	if session == nil {
		ctx.JSON(http.StatusOK, gin.H{"cart": gin.H{"lines": []gin.H{}, "total_cents": 0}})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"cart": cartPayload(session)})
}

func (handler *httpHandler) handleClearCart(ctx *gin.Context) {
	session, token := handler.resumeCartSessionWithToken(ctx)
	if session != nil {
		if err := handler.service.CancelSession(ctx.Request.Context(), session); err != nil && !errors.Is(err, inventory.ErrSessionClosed) {
			handler.respondDomainError(ctx, err)
			return
		}
		handler.service.ReleaseSession(token)
	}
	handler.clearCartCookie(ctx)
	ctx.JSON(http.StatusOK, gin.H{"status": "cleared"})
}

func (handler *httpHandler) handleCheckout(ctx *gin.Context) {
	session, token := handler.resumeCartSessionWithToken(ctx)
	if session == nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("empty_cart", "no active cart"))
		return
	}
	receipt, err := handler.service.Checkout(ctx.Request.Context(), session)
	if err != nil && !errors.Is(err, inventory.ErrSnapshotFailed) {
		// An insufficient line aborts the whole checkout and the cart is
		// kept for the client to adjust.
		handler.respondDomainError(ctx, err)
		return
	}
	handler.service.ReleaseSession(token)
	handler.clearCartCookie(ctx)
	response := gin.H{"receipt": receiptPayload(receipt)}
	if err != nil {
		handler.logger.Error("snapshot save failed after checkout", zap.Error(err))
		response["warning"] = "snapshot_failed"
	}
	ctx.JSON(http.StatusOK, response)
}

func (handler *httpHandler) ensureCartSession(ctx *gin.Context) (*inventory.Session, string, error) {
	if token, ok := handler.cartTokenFromCookie(ctx); ok {
		if session, err := handler.service.ResumeSession(token); err == nil {
			return session, token, nil
		}
	}
	token, session := handler.service.BeginSession()
	if err := handler.issueCartCookie(ctx, token); err != nil {
		handler.service.ReleaseSession(token)
		return nil, "", err
	}
	return session, token, nil
}

func (handler *httpHandler) resumeCartSession(ctx *gin.Context) *inventory.Session {
	session, _ := handler.resumeCartSessionWithToken(ctx)
	return session
}

func (handler *httpHandler) resumeCartSessionWithToken(ctx *gin.Context) (*inventory.Session, string) {
	token, ok := handler.cartTokenFromCookie(ctx)
	if !ok {
		return nil, ""
	}
	session, err := handler.service.ResumeSession(token)
	if err != nil {
		return nil, ""
	}
	return session, token
}

func (handler *httpHandler) respondDomainError(ctx *gin.Context, err error) {
	var stockError *inventory.InsufficientStockError
	if errors.As(err, &stockError) {
		ctx.JSON(http.StatusConflict, gin.H{
			"error": gin.H{
				"code":      "insufficient_stock",
				"message":   stockError.Error(),
				"item_id":   stockError.ItemID.String(),
				"available": stockError.Available,
			},
		})
		return
	}
	switch {
	case errors.Is(err, inventory.ErrNotFound):
		ctx.JSON(http.StatusNotFound, errorResponse("not_found", "item not found"))
	case errors.Is(err, inventory.ErrUnknownRef):
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_ref", "unknown reference number"))
	case errors.Is(err, inventory.ErrConflict):
		ctx.JSON(http.StatusConflict, errorResponse("conflict", "item id already exists"))
	case errors.Is(err, inventory.ErrEmptyCart):
		ctx.JSON(http.StatusBadRequest, errorResponse("empty_cart", "cart is empty"))
	case errors.Is(err, inventory.ErrSessionClosed):
		ctx.JSON(http.StatusConflict, errorResponse("session_closed", "cart session is closed"))
	case errors.Is(err, inventory.ErrInvalidQuantity),
		errors.Is(err, inventory.ErrInvalidItemID),
		errors.Is(err, inventory.ErrInvalidItemName),
		errors.Is(err, inventory.ErrInvalidPriceCents):
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_input", err.Error()))
	case errors.Is(err, inventory.ErrSnapshotFailed):
		handler.logger.Error("snapshot save failed", zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, errorResponse("snapshot_failed", "change applied but not yet durable"))
	default:
		handler.logger.Error("inventory operation failed", zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, errorResponse("internal_error", "operation failed"))
	}
}

func itemPayloads(items []inventory.ListedItem) []itemPayload {
	payloads := make([]itemPayload, 0, len(items))
	for _, listed := range items {
		payloads = append(payloads, itemPayload{
			ItemID:     listed.ID.String(),
			Name:       listed.Item.Name,
			Quantity:   listed.Item.Quantity,
			PriceCents: listed.Item.PriceCents,
		})
	}
	return payloads
}

func cartPayload(session *inventory.Session) gin.H {
	lines := session.Lines()
	payload := make([]gin.H, 0, len(lines))
	for _, line := range lines {
		payload = append(payload, gin.H{
			"item_id":     line.ItemID.String(),
			"name":        line.Name,
			"quantity":    line.Quantity,
			"price_cents": line.PriceCents,
		})
	}
	return gin.H{"lines": payload, "total_cents": session.TotalCents()}
}

func receiptPayload(receipt inventory.Receipt) gin.H {
	lines := make([]gin.H, 0, len(receipt.Lines))
	for _, line := range receipt.Lines {
		lines = append(lines, gin.H{
			"item_id":          line.ItemID.String(),
			"name":             line.Name,
			"quantity":         line.Quantity,
			"unit_price_cents": line.UnitPriceCents,
			"subtotal_cents":   line.SubtotalCents,
		})
	}
	return gin.H{
		"receipt_id":       receipt.ReceiptID,
		"lines":            lines,
		"total_cents":      receipt.TotalCents,
		"created_unix_utc": receipt.CreatedUnixUTC,
	}
}

func errorResponse(code string, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}
