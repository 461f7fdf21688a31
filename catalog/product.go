package catalog

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"merza/db"
	"merza/filemgr"
	"merza/models"
	"merza/mq"
	"merza/rdx"
	"merza/utils"

	"github.com/julienschmidt/httprouter"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const productCacheTTL = 5 * time.Minute

type Handler struct {
	DB     *db.Store
	Cache  *rdx.Cache
	Events *mq.Emitter
}

func NewHandler(store *db.Store, cache *rdx.Cache, events *mq.Emitter) *Handler {
	return &Handler{DB: store, Cache: cache, Events: events}
}

// normalizeVariants assigns ids to new variants and uppercases SKUs.
func normalizeVariants(variants []models.Variant) {
	for i := range variants {
		if variants[i].ID.IsZero() {
			variants[i].ID = primitive.NewObjectID()
		}
		variants[i].SKU = strings.ToUpper(strings.TrimSpace(variants[i].SKU))
	}
}

// POST /api/admin/products
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	var product models.Product
	if err := json.NewDecoder(r.Body).Decode(&product); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}

	product.ID = primitive.NilObjectID
	product.Slug = utils.Slugify(product.Name)
	if product.Status == "" {
		product.Status = models.ProductStatusDraft
	}
	normalizeVariants(product.Variants)
	if err := product.Validate(); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !product.Category.IsZero() {
		count, err := h.DB.Categories.CountDocuments(ctx, bson.M{"_id": product.Category})
		if err != nil || count == 0 {
			utils.RespondWithError(w, http.StatusBadRequest, "Unknown category")
			return
		}
	}

	now := time.Now()
	product.CreatedAt = now
	product.UpdatedAt = now

	res, err := h.DB.Products.InsertOne(ctx, product)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			utils.RespondWithError(w, http.StatusConflict, "Product slug or SKU already exists")
			return
		}
		log.Println("create product:", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Server error")
		return
	}
	product.ID = res.InsertedID.(primitive.ObjectID)

	go h.Events.Emit(context.Background(), mq.Event{
		Name: "product-created", EntityType: "product",
		EntityID: product.ID.Hex(), Method: "POST",
	})

	utils.RespondWithJSON(w, http.StatusCreated, utils.M{"success": true, "product": product})
}

// PUT /api/admin/products/:id
// Stock counts are deliberately untouchable here; restock is its own endpoint.
func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	id, err := primitive.ObjectIDFromHex(ps.ByName("id"))
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid product id")
		return
	}

	var input struct {
		Name        *string             `json:"name"`
		Title       *string             `json:"title"`
		Description *string             `json:"description"`
		Category    *primitive.ObjectID `json:"category"`
		Brand       *string             `json:"brand"`
		IsFeatured  *bool               `json:"isFeatured"`
		Status      *string             `json:"status"`
		Variants    []models.Variant    `json:"variants"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}

	set := bson.M{"updatedAt": time.Now()}
	if input.Name != nil {
		set["name"] = *input.Name
		set["slug"] = utils.Slugify(*input.Name)
	}
	if input.Title != nil {
		set["title"] = *input.Title
	}
	if input.Description != nil {
		set["description"] = *input.Description
	}
	if input.Category != nil {
		count, err := h.DB.Categories.CountDocuments(ctx, bson.M{"_id": *input.Category})
		if err != nil || count == 0 {
			utils.RespondWithError(w, http.StatusBadRequest, "Unknown category")
			return
		}
		set["category"] = *input.Category
	}
	if input.Brand != nil {
		set["brand"] = *input.Brand
	}
	if input.IsFeatured != nil {
		set["isFeatured"] = *input.IsFeatured
	}
	if input.Status != nil {
		switch *input.Status {
		case models.ProductStatusDraft, models.ProductStatusActive, models.ProductStatusArchived:
			set["status"] = *input.Status
		default:
			utils.RespondWithError(w, http.StatusBadRequest, "Invalid status")
			return
		}
	}
	if input.Variants != nil {
		// carry over current stock counts so an update can never race the
		// checkout decrement
		var current models.Product
		if err := h.DB.Products.FindOne(ctx, bson.M{"_id": id}).Decode(&current); err != nil {
			utils.RespondWithError(w, http.StatusNotFound, "Product not found")
			return
		}
		normalizeVariants(input.Variants)
		for i := range input.Variants {
			if err := input.Variants[i].Validate(); err != nil {
				utils.RespondWithError(w, http.StatusBadRequest, err.Error())
				return
			}
			if existing := current.FindVariant(input.Variants[i].ID); existing != nil {
				input.Variants[i].Inventory.Quantity = existing.Inventory.Quantity
			}
		}
		set["variants"] = input.Variants
	}

	res, err := h.DB.Products.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			utils.RespondWithError(w, http.StatusConflict, "Product slug or SKU already exists")
			return
		}
		log.Println("update product:", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Server error")
		return
	}
	if res.MatchedCount == 0 {
		utils.RespondWithError(w, http.StatusNotFound, "Product not found")
		return
	}

	go h.Events.Emit(context.Background(), mq.Event{
		Name: "product-edited", EntityType: "product",
		EntityID: id.Hex(), Method: "PUT",
	})

	utils.SendResponse(w, http.StatusOK, nil, "Product updated", nil)
}

// DELETE /api/admin/products/:id
// Archives by default; ?hard=true removes the document.
func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	id, err := primitive.ObjectIDFromHex(ps.ByName("id"))
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid product id")
		return
	}

	if r.URL.Query().Get("hard") == "true" {
		res, err := h.DB.Products.DeleteOne(ctx, bson.M{"_id": id})
		if err != nil {
			log.Println("delete product:", err)
			utils.RespondWithError(w, http.StatusInternalServerError, "Server error")
			return
		}
		if res.DeletedCount == 0 {
			utils.RespondWithError(w, http.StatusNotFound, "Product not found")
			return
		}
	} else {
		res, err := h.DB.Products.UpdateOne(ctx, bson.M{"_id": id},
			bson.M{"$set": bson.M{"status": models.ProductStatusArchived, "updatedAt": time.Now()}})
		if err != nil {
			log.Println("archive product:", err)
			utils.RespondWithError(w, http.StatusInternalServerError, "Server error")
			return
		}
		if res.MatchedCount == 0 {
			utils.RespondWithError(w, http.StatusNotFound, "Product not found")
			return
		}
	}

	go h.Events.Emit(context.Background(), mq.Event{
		Name: "product-deleted", EntityType: "product",
		EntityID: id.Hex(), Method: "DELETE",
	})

	utils.SendResponse(w, http.StatusOK, nil, "Product deleted", nil)
}

// POST /api/admin/products/:id/variants
func (h *Handler) AddVariant(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	id, err := primitive.ObjectIDFromHex(ps.ByName("id"))
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid product id")
		return
	}

	var variant models.Variant
	if err := json.NewDecoder(r.Body).Decode(&variant); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}
	variant.ID = primitive.NewObjectID()
	variant.SKU = strings.ToUpper(strings.TrimSpace(variant.SKU))
	if err := variant.Validate(); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.DB.Products.UpdateOne(ctx,
		bson.M{"_id": id, "variants.sku": bson.M{"$ne": variant.SKU}},
		bson.M{"$push": bson.M{"variants": variant}, "$set": bson.M{"updatedAt": time.Now()}})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			utils.RespondWithError(w, http.StatusConflict, "SKU already exists")
			return
		}
		log.Println("add variant:", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Server error")
		return
	}
	if res.MatchedCount == 0 {
		utils.RespondWithError(w, http.StatusConflict, "Product not found or SKU already on product")
		return
	}

	go h.Events.Emit(context.Background(), mq.Event{
		Name: "product-edited", EntityType: "product",
		EntityID: id.Hex(), Method: "POST",
	})

	utils.RespondWithJSON(w, http.StatusCreated, utils.M{"success": true, "variant": variant})
}

// POST /api/admin/products/:id/variants/:variantId/restock
// The only write path that grows inventory.quantity.
func (h *Handler) Restock(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	id, err := primitive.ObjectIDFromHex(ps.ByName("id"))
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid product id")
		return
	}
	variantID, err := primitive.ObjectIDFromHex(ps.ByName("variantId"))
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid variant id")
		return
	}

	var input struct {
		Quantity int `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil || input.Quantity <= 0 {
		utils.RespondWithError(w, http.StatusBadRequest, "Quantity must be a positive integer")
		return
	}

	res, err := h.DB.Products.UpdateOne(ctx,
		bson.M{"_id": id, "variants._id": variantID},
		bson.M{
			"$inc": bson.M{"variants.$.inventory.quantity": input.Quantity},
			"$set": bson.M{"updatedAt": time.Now()},
		})
	if err != nil {
		log.Println("restock:", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Server error")
		return
	}
	if res.MatchedCount == 0 {
		utils.RespondWithError(w, http.StatusNotFound, "Variant not found")
		return
	}

	// report the SKU so the low-stock set can be cleared
	var product models.Product
	if err := h.DB.Products.FindOne(ctx, bson.M{"_id": id}).Decode(&product); err == nil {
		if v := product.FindVariant(variantID); v != nil {
			go h.Events.Emit(context.Background(), mq.Event{Name: "stock-replenished", SKU: v.SKU})
		}
	}

	utils.SendResponse(w, http.StatusOK, nil, "Stock updated", nil)
}

// POST /api/admin/products/:id/images
// Multipart upload; files land under static/uploads with a thumbnail each.
// An optional variantId form value attaches the images to that variant,
// otherwise the first variant gets them.
func (h *Handler) UploadProductImages(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	id, err := primitive.ObjectIDFromHex(ps.ByName("id"))
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid product id")
		return
	}

	if err := r.ParseMultipartForm(20 << 20); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Unable to parse form")
		return
	}

	var product models.Product
	if err := h.DB.Products.FindOne(ctx, bson.M{"_id": id}).Decode(&product); err != nil {
		utils.RespondWithError(w, http.StatusNotFound, "Product not found")
		return
	}

	var variant *models.Variant
	if hex := r.FormValue("variantId"); hex != "" {
		vid, err := primitive.ObjectIDFromHex(hex)
		if err != nil {
			utils.RespondWithError(w, http.StatusBadRequest, "Invalid variant id")
			return
		}
		variant = product.FindVariant(vid)
	} else if len(product.Variants) > 0 {
		variant = &product.Variants[0]
	}
	if variant == nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Product has no matching variant")
		return
	}

	saved, err := filemgr.SaveFormFiles(r.MultipartForm, "images", filemgr.EntityProduct, filemgr.PicPhoto, true)
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	images := make([]models.Image, 0, len(saved))
	base := len(variant.Images)
	for i, name := range saved {
		images = append(images, models.Image{
			URL:   "/static/uploads/product/photo/" + name,
			Order: base + i,
		})
	}

	_, err = h.DB.Products.UpdateOne(ctx,
		bson.M{"_id": id, "variants._id": variant.ID},
		bson.M{
			"$push": bson.M{"variants.$.images": bson.M{"$each": images}},
			"$set":  bson.M{"updatedAt": time.Now()},
		})
	if err != nil {
		log.Println("attach images:", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Server error")
		return
	}

	go h.Events.Emit(context.Background(), mq.Event{
		Name: "product-edited", EntityType: "product",
		EntityID: id.Hex(), Method: "POST",
	})

	utils.RespondWithJSON(w, http.StatusOK, utils.M{"success": true, "images": images})
}

// GET /api/admin/products/low-stock
// Lists active products with a tracked variant at or below its threshold.
// The event worker's Redis set rides along so the dashboard can show which
// SKUs crossed the line since their last restock.
func (h *Handler) LowStockProducts(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	filter := bson.M{
		"status": models.ProductStatusActive,
		"$expr": bson.M{"$anyElementTrue": bson.A{bson.M{"$map": bson.M{
			"input": "$variants",
			"as":    "v",
			"in": bson.M{"$and": bson.A{
				bson.M{"$eq": bson.A{"$$v.isActive", true}},
				bson.M{"$eq": bson.A{"$$v.inventory.trackInventory", true}},
				bson.M{"$lte": bson.A{"$$v.inventory.quantity", "$$v.inventory.lowStockThreshold"}},
			}},
		}}}},
	}

	cursor, err := h.DB.Products.Find(ctx, filter,
		options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		log.Println("low stock products:", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Server error")
		return
	}
	defer cursor.Close(ctx)

	products := []models.Product{}
	if err := cursor.All(ctx, &products); err != nil {
		log.Println("decode low stock products:", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Server error")
		return
	}

	lowSKUs := []string{}
	for i := range products {
		for _, v := range products[i].LowStockVariants() {
			lowSKUs = append(lowSKUs, v.SKU)
		}
	}

	flagged, err := h.Cache.SMembers(ctx, "stock:low")
	if err != nil {
		log.Println("read low stock set:", err)
		flagged = []string{}
	}

	utils.RespondWithJSON(w, http.StatusOK, utils.M{
		"success":     true,
		"count":       len(products),
		"products":    products,
		"lowSkus":     lowSKUs,
		"flaggedSkus": flagged,
	})
}

// GET /api/products
// Public listing: active products only, with filters and pagination.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	q := r.URL.Query()
	filter := bson.M{"status": models.ProductStatusActive}

	if cat := q.Get("category"); cat != "" {
		catID, err := primitive.ObjectIDFromHex(cat)
		if err != nil {
			utils.RespondWithError(w, http.StatusBadRequest, "Invalid category id")
			return
		}
		filter["category"] = catID
	}
	if search := strings.TrimSpace(q.Get("q")); search != "" {
		filter["$or"] = []bson.M{
			{"name": bson.M{"$regex": search, "$options": "i"}},
			{"title": bson.M{"$regex": search, "$options": "i"}},
			{"brand": bson.M{"$regex": search, "$options": "i"}},
		}
	}
	priceRange := bson.M{}
	if min := q.Get("minPrice"); min != "" {
		if v, err := strconv.ParseFloat(min, 64); err == nil {
			priceRange["$gte"] = v
		}
	}
	if max := q.Get("maxPrice"); max != "" {
		if v, err := strconv.ParseFloat(max, 64); err == nil {
			priceRange["$lte"] = v
		}
	}
	if len(priceRange) > 0 {
		filter["variants"] = bson.M{"$elemMatch": bson.M{"price.base": priceRange}}
	}
	if q.Get("featured") == "true" {
		filter["isFeatured"] = true
	}

	page, _ := strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit < 1 || limit > 100 {
		limit = 20
	}

	sort := bson.D{{Key: "createdAt", Value: -1}}
	if q.Get("sort") == "price" {
		sort = bson.D{{Key: "variants.0.price.base", Value: 1}}
	}

	opts := options.Find().
		SetSort(sort).
		SetSkip(int64((page - 1) * limit)).
		SetLimit(int64(limit))

	total, err := h.DB.Products.CountDocuments(ctx, filter)
	if err != nil {
		log.Println("count products:", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Server error")
		return
	}

	cursor, err := h.DB.Products.Find(ctx, filter, opts)
	if err != nil {
		log.Println("list products:", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Server error")
		return
	}
	defer cursor.Close(ctx)

	products := []models.Product{}
	if err := cursor.All(ctx, &products); err != nil {
		log.Println("decode products:", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Server error")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, utils.M{
		"success":  true,
		"products": products,
		"page":     page,
		"limit":    limit,
		"total":    total,
	})
}

// GET /api/products/featured
func (h *Handler) FeaturedProducts(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}).SetLimit(12)
	cursor, err := h.DB.Products.Find(ctx,
		bson.M{"status": models.ProductStatusActive, "isFeatured": true}, opts)
	if err != nil {
		log.Println("featured products:", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Server error")
		return
	}
	defer cursor.Close(ctx)

	products := []models.Product{}
	if err := cursor.All(ctx, &products); err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Server error")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, utils.M{"success": true, "products": products})
}

// GET /api/product/:slug
// Single product lookup, cached in Redis keyed by document id so the event
// worker can invalidate it on edits.
func (h *Handler) GetProductBySlug(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	slug := ps.ByName("slug")

	var product models.Product
	err := h.DB.Products.FindOne(ctx, bson.M{
		"slug":   slug,
		"status": bson.M{"$ne": models.ProductStatusArchived},
	}).Decode(&product)
	if err != nil {
		utils.RespondWithError(w, http.StatusNotFound, "Product not found")
		return
	}

	if data, err := json.Marshal(product); err == nil {
		if err := h.Cache.SetWithExpiry(ctx, "product:"+product.ID.Hex(), string(data), productCacheTTL); err != nil {
			log.Println("cache product:", err)
		}
	}

	utils.RespondWithJSON(w, http.StatusOK, utils.M{"success": true, "product": product})
}

// GET /api/products/id/:id
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	id, err := primitive.ObjectIDFromHex(ps.ByName("id"))
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid product id")
		return
	}

	if cached, err := h.Cache.Get(ctx, "product:"+id.Hex()); err == nil && cached != "" {
		var product models.Product
		if json.Unmarshal([]byte(cached), &product) == nil {
			utils.RespondWithJSON(w, http.StatusOK, utils.M{"success": true, "product": product})
			return
		}
	}

	var product models.Product
	err = h.DB.Products.FindOne(ctx, bson.M{
		"_id":    id,
		"status": bson.M{"$ne": models.ProductStatusArchived},
	}).Decode(&product)
	if err != nil {
		utils.RespondWithError(w, http.StatusNotFound, "Product not found")
		return
	}

	if data, err := json.Marshal(product); err == nil {
		_ = h.Cache.SetWithExpiry(ctx, "product:"+id.Hex(), string(data), productCacheTTL)
	}

	utils.RespondWithJSON(w, http.StatusOK, utils.M{"success": true, "product": product})
}
