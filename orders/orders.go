package orders

import (
	"context"
	"log"
	"net/http"
	"time"

	"merza/db"
	"merza/models"
	"merza/utils"

	"github.com/julienschmidt/httprouter"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Handler struct {
	DB *db.Store
}

func NewHandler(store *db.Store) *Handler {
	return &Handler{DB: store}
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

// GET /api/orders
// The caller's orders, newest first.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cursor, err := h.DB.Orders.Find(ctx, bson.M{"userId": userID}, opts)
	if err != nil {
		log.Println("list orders:", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Server error")
		return
	}
	defer cursor.Close(ctx)

	ordersList := []models.Order{}
	if err := cursor.All(ctx, &ordersList); err != nil {
		log.Println("decode orders:", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Server error")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, utils.M{"success": true, "orders": ordersList})
}

// GET /api/orders/:id
// Owner-only.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	orderID, err := primitive.ObjectIDFromHex(ps.ByName("id"))
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid order id")
		return
	}

	var order models.Order
	err = h.DB.Orders.FindOne(ctx, bson.M{"_id": orderID, "userId": userID}).Decode(&order)
	if err != nil {
		utils.RespondWithError(w, http.StatusNotFound, "Order not found")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, utils.M{"success": true, "order": order})
}
