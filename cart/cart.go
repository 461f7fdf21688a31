package cart

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"merza/checkout"
	"merza/db"
	"merza/models"
	"merza/mq"
	"merza/utils"

	"github.com/julienschmidt/httprouter"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

type Handler struct {
	DB     *db.Store
	Stores *checkout.MongoStores
	CO     *checkout.Orchestrator
	Events *mq.Emitter
}

func NewHandler(store *db.Store, stores *checkout.MongoStores, co *checkout.Orchestrator, events *mq.Emitter) *Handler {
	return &Handler{DB: store, Stores: stores, CO: co, Events: events}
}

func (h *Handler) requireUser(w http.ResponseWriter, r *http.Request) (primitive.ObjectID, bool) {
	userID := utils.GetUserIDFromRequest(r)
	if userID == "" {
		utils.RespondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return primitive.NilObjectID, false
	}
	oid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		utils.RespondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return primitive.NilObjectID, false
	}
	return oid, true
}

// loadOrNewCart returns the user's cart, creating an empty one in memory if
// none exists yet.
func (h *Handler) loadOrNewCart(ctx context.Context, userID primitive.ObjectID) (*models.Cart, error) {
	cart, err := h.Stores.LoadCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	if cart == nil {
		cart = &models.Cart{UserID: userID, Items: []models.CartItem{}, CreatedAt: time.Now()}
	}
	return cart, nil
}

func (h *Handler) findProduct(ctx context.Context, id, slug string) (*models.Product, error) {
	filter := bson.M{}
	if id != "" {
		oid, err := primitive.ObjectIDFromHex(id)
		if err != nil {
			return nil, mongo.ErrNoDocuments
		}
		filter["_id"] = oid
	} else if slug != "" {
		filter["slug"] = utils.Slugify(slug)
	} else {
		return nil, mongo.ErrNoDocuments
	}

	var product models.Product
	if err := h.DB.Products.FindOne(ctx, filter).Decode(&product); err != nil {
		return nil, err
	}
	return &product, nil
}

func resolveVariant(product *models.Product, variantID string) *models.Variant {
	if variantID != "" {
		oid, err := primitive.ObjectIDFromHex(variantID)
		if err != nil {
			return nil
		}
		return product.FindVariant(oid)
	}
	return product.FirstActiveVariant()
}

func respondCartError(w http.ResponseWriter, err error) {
	var insufficient *InsufficientStockError
	switch {
	case errors.Is(err, ErrItemNotFound):
		utils.RespondWithError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrProductNotActive), errors.Is(err, ErrVariantNotAvailable), errors.As(err, &insufficient):
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
	default:
		log.Println("cart error:", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Server error")
	}
}

// POST /api/cart
func (h *Handler) AddToCart(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	var body struct {
		ProductID   string `json:"productId"`
		ProductSlug string `json:"productSlug"`
		VariantID   string `json:"variantId"`
		Quantity    int    `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}
	if body.Quantity == 0 {
		body.Quantity = 1
	}
	if body.Quantity < 1 {
		utils.RespondWithError(w, http.StatusBadRequest, "Quantity must be at least 1")
		return
	}

	product, err := h.findProduct(ctx, body.ProductID, body.ProductSlug)
	if err != nil {
		utils.RespondWithError(w, http.StatusNotFound, "Product not found")
		return
	}
	variant := resolveVariant(product, body.VariantID)

	cart, err := h.loadOrNewCart(ctx, userID)
	if err != nil {
		respondCartError(w, err)
		return
	}

	if err := AddItem(cart, product, variant, body.Quantity, time.Now()); err != nil {
		respondCartError(w, err)
		return
	}
	if err := h.Stores.SaveCart(ctx, cart); err != nil {
		respondCartError(w, err)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, utils.M{"success": true, "cart": cart})
}

// GET /api/cart
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	cart, err := h.Stores.LoadCart(ctx, userID)
	if err != nil {
		respondCartError(w, err)
		return
	}
	if cart == nil {
		cart = &models.Cart{UserID: userID, Items: []models.CartItem{}}
	}

	utils.RespondWithJSON(w, http.StatusOK, utils.M{"success": true, "cart": cart})
}

// PUT /api/cart/item
func (h *Handler) UpdateCartItem(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	var body struct {
		ProductID string `json:"productId"`
		VariantID string `json:"variantId"`
		Quantity  int    `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}
	productID, err := primitive.ObjectIDFromHex(body.ProductID)
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "productId and variantId required")
		return
	}
	variantID, err := primitive.ObjectIDFromHex(body.VariantID)
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "productId and variantId required")
		return
	}

	cart, err := h.Stores.LoadCart(ctx, userID)
	if err != nil {
		respondCartError(w, err)
		return
	}
	if cart == nil {
		utils.RespondWithError(w, http.StatusNotFound, "Cart not found")
		return
	}

	// re-check live stock unless this is a removal
	var variant *models.Variant
	if body.Quantity > 0 {
		product, err := h.findProduct(ctx, body.ProductID, "")
		if err != nil {
			utils.RespondWithError(w, http.StatusNotFound, "Variant not found")
			return
		}
		variant = product.FindVariant(variantID)
		if variant == nil {
			utils.RespondWithError(w, http.StatusNotFound, "Variant not found")
			return
		}
	}

	if err := UpdateItem(cart, variant, productID, variantID, body.Quantity, time.Now()); err != nil {
		respondCartError(w, err)
		return
	}
	if err := h.Stores.SaveCart(ctx, cart); err != nil {
		respondCartError(w, err)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, utils.M{"success": true, "cart": cart})
}

// DELETE /api/cart/item
func (h *Handler) RemoveCartItem(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	var body struct {
		ProductID string `json:"productId"`
		VariantID string `json:"variantId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}
	productID, err1 := primitive.ObjectIDFromHex(body.ProductID)
	variantID, err2 := primitive.ObjectIDFromHex(body.VariantID)
	if err1 != nil || err2 != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "productId and variantId required")
		return
	}

	cart, err := h.Stores.LoadCart(ctx, userID)
	if err != nil {
		respondCartError(w, err)
		return
	}
	if cart == nil {
		utils.RespondWithError(w, http.StatusNotFound, "Cart not found")
		return
	}

	now := time.Now()
	cart.RemoveItem(productID, variantID)
	cart.RecomputeTotal(now)
	cart.UpdatedAt = now
	if err := h.Stores.SaveCart(ctx, cart); err != nil {
		respondCartError(w, err)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, utils.M{"success": true, "cart": cart})
}

// POST /api/cart/bulk-remove
func (h *Handler) BulkRemove(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	var body struct {
		Items []struct {
			ProductID string `json:"productId"`
			VariantID string `json:"variantId"`
		} `json:"items"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}

	cart, err := h.Stores.LoadCart(ctx, userID)
	if err != nil {
		respondCartError(w, err)
		return
	}
	if cart == nil {
		utils.RespondWithError(w, http.StatusNotFound, "Cart not found")
		return
	}

	now := time.Now()
	for _, rem := range body.Items {
		productID, err1 := primitive.ObjectIDFromHex(rem.ProductID)
		variantID, err2 := primitive.ObjectIDFromHex(rem.VariantID)
		if err1 != nil || err2 != nil {
			continue
		}
		cart.RemoveItem(productID, variantID)
	}
	cart.RecomputeTotal(now)
	cart.UpdatedAt = now
	if err := h.Stores.SaveCart(ctx, cart); err != nil {
		respondCartError(w, err)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, utils.M{"success": true, "cart": cart})
}

// DELETE /api/cart/clear
func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	cart, err := h.Stores.LoadCart(ctx, userID)
	if err != nil {
		respondCartError(w, err)
		return
	}
	if cart == nil {
		cart = &models.Cart{UserID: userID, Items: []models.CartItem{}}
		utils.RespondWithJSON(w, http.StatusOK, utils.M{"success": true, "cart": cart})
		return
	}

	cart.Clear(time.Now())
	if err := h.Stores.SaveCart(ctx, cart); err != nil {
		respondCartError(w, err)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, utils.M{"success": true, "cart": cart})
}

// POST /api/cart/merge
// Folds a local (pre-login) cart into the server cart. Best-effort: entries
// whose product or variant is gone or inactive are skipped, not failed.
func (h *Handler) MergeCart(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	var body struct {
		Items []struct {
			ProductID string `json:"productId"`
			VariantID string `json:"variantId"`
			Quantity  int    `json:"quantity"`
		} `json:"items"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Items == nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid items")
		return
	}

	cart, err := h.loadOrNewCart(ctx, userID)
	if err != nil {
		respondCartError(w, err)
		return
	}

	now := time.Now()
	for _, incoming := range body.Items {
		product, err := h.findProduct(ctx, incoming.ProductID, "")
		if err != nil || product.Status != models.ProductStatusActive {
			continue
		}
		variant := resolveVariant(product, incoming.VariantID)
		if variant == nil || !variant.IsActive {
			continue
		}
		MergeItem(cart, product, variant, incoming.Quantity, now)
	}

	if err := h.Stores.SaveCart(ctx, cart); err != nil {
		respondCartError(w, err)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, utils.M{"success": true, "cart": cart})
}

// POST /api/cart/checkout
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	var body struct {
		PaymentInfo map[string]any `json:"paymentInfo"`
	}
	if r.Body != nil {
		// body is optional; a decode failure on an empty body is fine
		_ = json.NewDecoder(r.Body).Decode(&body)
	}

	result, err := h.CO.Run(ctx, userID, body.PaymentInfo)
	if err != nil {
		status := checkout.StatusFor(err)
		if status == http.StatusInternalServerError {
			log.Printf("checkout failed for user %s: %v", userID.Hex(), err)
			utils.RespondWithError(w, status, "Checkout failed")
			return
		}
		utils.RespondWithError(w, status, err.Error())
		return
	}

	go func() {
		bg := context.Background()
		h.Events.Emit(bg, mq.Event{
			Name:       "order-created",
			EntityType: "order",
			EntityID:   result.Order.ID.Hex(),
			UserID:     userID.Hex(),
			Method:     "POST",
		})
		for _, low := range result.LowStock {
			h.Events.Emit(bg, mq.Event{Name: "stock-low", SKU: low.SKU})
		}
	}()

	utils.RespondWithJSON(w, http.StatusOK, utils.M{"success": true, "order": result.Order})
}
