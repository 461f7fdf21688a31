package catalog

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"merza/filemgr"
	"merza/models"
	"merza/utils"

	"github.com/julienschmidt/httprouter"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// POST /api/admin/categories
func (h *Handler) CreateCategory(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	var category models.Category
	if err := json.NewDecoder(r.Body).Decode(&category); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}
	if err := category.Validate(); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	now := time.Now()
	category.ID = primitive.NilObjectID
	category.Slug = utils.Slugify(category.Name)
	category.IsActive = true
	category.CreatedAt = now
	category.UpdatedAt = now

	res, err := h.DB.Categories.InsertOne(ctx, category)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			utils.RespondWithError(w, http.StatusConflict, "Category already exists")
			return
		}
		log.Println("create category:", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Server error")
		return
	}
	category.ID = res.InsertedID.(primitive.ObjectID)

	utils.RespondWithJSON(w, http.StatusCreated, utils.M{"success": true, "category": category})
}

// PUT /api/admin/categories/:id
func (h *Handler) UpdateCategory(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	id, err := primitive.ObjectIDFromHex(ps.ByName("id"))
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid category id")
		return
	}

	var input struct {
		Name        *string `json:"name"`
		Description *string `json:"description"`
		IsActive    *bool   `json:"isActive"`
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
	if input.Description != nil {
		set["description"] = *input.Description
	}
	if input.IsActive != nil {
		set["isActive"] = *input.IsActive
	}

	res, err := h.DB.Categories.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			utils.RespondWithError(w, http.StatusConflict, "Category already exists")
			return
		}
		log.Println("update category:", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Server error")
		return
	}
	if res.MatchedCount == 0 {
		utils.RespondWithError(w, http.StatusNotFound, "Category not found")
		return
	}

	utils.SendResponse(w, http.StatusOK, nil, "Category updated", nil)
}

// DELETE /api/admin/categories/:id
// Refused while any product still references the category.
func (h *Handler) DeleteCategory(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	id, err := primitive.ObjectIDFromHex(ps.ByName("id"))
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid category id")
		return
	}

	inUse, err := h.DB.Products.CountDocuments(ctx, bson.M{"category": id})
	if err != nil {
		log.Println("check category usage:", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Server error")
		return
	}
	if inUse > 0 {
		utils.RespondWithError(w, http.StatusConflict, "Category is still referenced by products")
		return
	}

	res, err := h.DB.Categories.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		log.Println("delete category:", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Server error")
		return
	}
	if res.DeletedCount == 0 {
		utils.RespondWithError(w, http.StatusNotFound, "Category not found")
		return
	}

	utils.SendResponse(w, http.StatusOK, nil, "Category deleted", nil)
}

// POST /api/admin/categories/:id/image
func (h *Handler) UploadCategoryImage(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	id, err := primitive.ObjectIDFromHex(ps.ByName("id"))
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid category id")
		return
	}

	if err := r.ParseMultipartForm(10 << 20); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Unable to parse form")
		return
	}

	fileName, err := filemgr.SaveFormFile(r.MultipartForm, "image", filemgr.EntityCategory, filemgr.PicBanner, true)
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	url := "/static/uploads/category/banner/" + fileName
	res, err := h.DB.Categories.UpdateOne(ctx, bson.M{"_id": id},
		bson.M{"$set": bson.M{"image": url, "updatedAt": time.Now()}})
	if err != nil {
		log.Println("set category image:", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Server error")
		return
	}
	if res.MatchedCount == 0 {
		utils.RespondWithError(w, http.StatusNotFound, "Category not found")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, utils.M{"success": true, "image": url})
}

// GET /api/categories
func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	filter := bson.M{}
	if r.URL.Query().Get("all") != "true" {
		filter["isActive"] = true
	}

	cursor, err := h.DB.Categories.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		log.Println("list categories:", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Server error")
		return
	}
	defer cursor.Close(ctx)

	categories := []models.Category{}
	if err := cursor.All(ctx, &categories); err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Server error")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, utils.M{"success": true, "categories": categories})
}
