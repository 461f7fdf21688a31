// Package wishlist keeps one set-like list of saved products per user.
package wishlist

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"merza/cart"
	"merza/checkout"
	"merza/db"
	"merza/models"
	"merza/utils"

	"github.com/julienschmidt/httprouter"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Handler struct {
	DB     *db.Store
	Stores *checkout.MongoStores
}

func NewHandler(store *db.Store, stores *checkout.MongoStores) *Handler {
	return &Handler{DB: store, Stores: stores}
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

func entryFilter(productID primitive.ObjectID, variantID *primitive.ObjectID) bson.M {
	return bson.M{"productId": productID, "variantId": variantID}
}

// GET /api/wishlist
func (h *Handler) GetWishlist(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	var list models.Wishlist
	err := h.DB.Wishlists.FindOne(ctx, bson.M{"userId": userID}).Decode(&list)
	if err == mongo.ErrNoDocuments {
		list = models.Wishlist{UserID: userID, Products: []models.WishlistEntry{}}
	} else if err != nil {
		log.Println("load wishlist:", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Server error")
		return
	}
	if list.Products == nil {
		list.Products = []models.WishlistEntry{}
	}

	utils.RespondWithJSON(w, http.StatusOK, utils.M{"success": true, "wishlist": list})
}

// POST /api/wishlist
// Adding an entry that is already present is a no-op.
func (h *Handler) AddToWishlist(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
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
	productID, err := primitive.ObjectIDFromHex(body.ProductID)
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "productId required")
		return
	}
	var variantID *primitive.ObjectID
	if body.VariantID != "" {
		vid, err := primitive.ObjectIDFromHex(body.VariantID)
		if err != nil {
			utils.RespondWithError(w, http.StatusBadRequest, "Invalid variant id")
			return
		}
		variantID = &vid
	}

	count, err := h.DB.Products.CountDocuments(ctx, bson.M{
		"_id":    productID,
		"status": bson.M{"$ne": models.ProductStatusArchived},
	})
	if err != nil || count == 0 {
		utils.RespondWithError(w, http.StatusNotFound, "Product not found")
		return
	}

	now := time.Now()

	// make sure the document exists, then push only if the pair is absent
	_, err = h.DB.Wishlists.UpdateOne(ctx, bson.M{"userId": userID},
		bson.M{"$setOnInsert": bson.M{"products": []models.WishlistEntry{}, "createdAt": now}},
		options.Update().SetUpsert(true))
	if err != nil {
		log.Println("ensure wishlist:", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Server error")
		return
	}

	entry := models.WishlistEntry{ProductID: productID, VariantID: variantID, AddedAt: now}
	_, err = h.DB.Wishlists.UpdateOne(ctx,
		bson.M{"userId": userID, "products": bson.M{"$not": bson.M{"$elemMatch": entryFilter(productID, variantID)}}},
		bson.M{"$push": bson.M{"products": entry}, "$set": bson.M{"updatedAt": now}})
	if err != nil {
		log.Println("add wishlist entry:", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Server error")
		return
	}

	utils.SendResponse(w, http.StatusOK, nil, "Added to wishlist", nil)
}

// DELETE /api/wishlist
func (h *Handler) RemoveFromWishlist(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
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
	productID, err := primitive.ObjectIDFromHex(body.ProductID)
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "productId required")
		return
	}
	var variantID *primitive.ObjectID
	if body.VariantID != "" {
		vid, err := primitive.ObjectIDFromHex(body.VariantID)
		if err != nil {
			utils.RespondWithError(w, http.StatusBadRequest, "Invalid variant id")
			return
		}
		variantID = &vid
	}

	res, err := h.DB.Wishlists.UpdateOne(ctx, bson.M{"userId": userID},
		bson.M{
			"$pull": bson.M{"products": entryFilter(productID, variantID)},
			"$set":  bson.M{"updatedAt": time.Now()},
		})
	if err != nil {
		log.Println("remove wishlist entry:", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Server error")
		return
	}
	if res.MatchedCount == 0 {
		utils.RespondWithError(w, http.StatusNotFound, "Wishlist not found")
		return
	}

	utils.SendResponse(w, http.StatusOK, nil, "Removed from wishlist", nil)
}

// POST /api/wishlist/move-to-cart
// Moves one saved entry into the cart with the regular add semantics; the
// entry is only removed after the cart write sticks.
func (h *Handler) MoveToCart(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
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
	if body.Quantity == 0 {
		body.Quantity = 1
	}
	productID, err := primitive.ObjectIDFromHex(body.ProductID)
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "productId required")
		return
	}
	var variantID *primitive.ObjectID
	if body.VariantID != "" {
		vid, err := primitive.ObjectIDFromHex(body.VariantID)
		if err != nil {
			utils.RespondWithError(w, http.StatusBadRequest, "Invalid variant id")
			return
		}
		variantID = &vid
	}

	var product models.Product
	if err := h.DB.Products.FindOne(ctx, bson.M{"_id": productID}).Decode(&product); err != nil {
		utils.RespondWithError(w, http.StatusNotFound, "Product not found")
		return
	}
	var variant *models.Variant
	if variantID != nil {
		variant = product.FindVariant(*variantID)
	} else {
		variant = product.FirstActiveVariant()
	}

	userCart, err := h.Stores.LoadCart(ctx, userID)
	if err != nil {
		log.Println("load cart:", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Server error")
		return
	}
	if userCart == nil {
		userCart = &models.Cart{UserID: userID, Items: []models.CartItem{}, CreatedAt: time.Now()}
	}

	if err := cart.AddItem(userCart, &product, variant, body.Quantity, time.Now()); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.Stores.SaveCart(ctx, userCart); err != nil {
		log.Println("save cart:", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Server error")
		return
	}

	_, err = h.DB.Wishlists.UpdateOne(ctx, bson.M{"userId": userID},
		bson.M{
			"$pull": bson.M{"products": entryFilter(productID, variantID)},
			"$set":  bson.M{"updatedAt": time.Now()},
		})
	if err != nil {
		log.Println("remove moved wishlist entry:", err)
	}

	utils.RespondWithJSON(w, http.StatusOK, utils.M{"success": true, "cart": userCart})
}
