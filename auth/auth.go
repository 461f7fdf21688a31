package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"merza/db"
	"merza/globals"
	"merza/middleware"
	"merza/models"
	"merza/rdx"
	"merza/utils"

	"github.com/golang-jwt/jwt/v5"
	"github.com/julienschmidt/httprouter"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/crypto/bcrypt"
)

const (
	accessTokenTTL  = 15 * time.Minute
	refreshTokenTTL = 7 * 24 * time.Hour
)

type Handler struct {
	DB     *db.Store
	Cache  *rdx.Cache
	Mailer Mailer
	SMS    SMSSender
}

func NewHandler(store *db.Store, cache *rdx.Cache, mailer Mailer, sms SMSSender) *Handler {
	return &Handler{DB: store, Cache: cache, Mailer: mailer, SMS: sms}
}

func generateAccessToken(user *models.User) (string, error) {
	claims := middleware.Claims{
		Email:  user.Email,
		UserID: user.ID.Hex(),
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.Hex(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(accessTokenTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(globals.JwtSecret)
}

func generateRefreshToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// POST /api/auth/register
func (h *Handler) Register(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	var input struct {
		Email     string `json:"email"`
		Password  string `json:"password"`
		Firstname string `json:"firstname"`
		Lastname  string `json:"lastname"`
		Phone     string `json:"phone"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid input")
		return
	}

	input.Email = strings.ToLower(strings.TrimSpace(input.Email))
	if _, err := mail.ParseAddress(input.Email); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "A valid email is required")
		return
	}
	if len(input.Password) < 8 {
		utils.RespondWithError(w, http.StatusBadRequest, "Password must be at least 8 characters")
		return
	}

	count, err := h.DB.Users.CountDocuments(ctx, bson.M{"email": input.Email})
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Server error")
		return
	}
	if count > 0 {
		utils.RespondWithError(w, http.StatusConflict, "Email already registered")
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Server error")
		return
	}

	now := time.Now()
	user := models.User{
		Email:    input.Email,
		Password: string(hashed),
		Profile: models.Profile{
			Firstname: strings.TrimSpace(input.Firstname),
			Lastname:  strings.TrimSpace(input.Lastname),
			Phone:     strings.TrimSpace(input.Phone),
		},
		Role:      []string{"customer"},
		Status:    models.UserStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}

	res, err := h.DB.Users.InsertOne(ctx, user)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			utils.RespondWithError(w, http.StatusConflict, "Email already registered")
			return
		}
		utils.RespondWithError(w, http.StatusInternalServerError, "Server error")
		return
	}
	user.ID = res.InsertedID.(primitive.ObjectID)

	// welcome mail is best effort
	go func() {
		if err := h.Mailer.Send(user.Email, "Welcome", "Your account has been created."); err != nil {
			log.Printf("welcome mail to %s: %v", user.Email, err)
		}
	}()

	utils.SendResponse(w, http.StatusCreated, utils.M{"userid": user.ID.Hex()}, "Registration successful", nil)
}

// POST /api/auth/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	var input struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid input")
		return
	}
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))
	if input.Email == "" || input.Password == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	var user models.User
	err := h.DB.Users.FindOne(ctx, bson.M{"email": input.Email}).Decode(&user)
	if err != nil {
		utils.RespondWithError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}
	if user.Status == models.UserStatusSuspended {
		utils.RespondWithError(w, http.StatusForbidden, "Account suspended")
		return
	}
	if user.Password == "" {
		// google-only account
		utils.RespondWithError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(input.Password)); err != nil {
		utils.RespondWithError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}

	tokenString, err := generateAccessToken(&user)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to generate token")
		return
	}
	refreshToken, err := generateRefreshToken()
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to generate refresh token")
		return
	}

	_, err = h.DB.Users.UpdateOne(ctx, bson.M{"_id": user.ID}, bson.M{"$set": bson.M{
		"refresh_token":  hashToken(refreshToken),
		"refresh_expiry": time.Now().Add(refreshTokenTTL),
		"last_login":     time.Now(),
	}})
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to store refresh token")
		return
	}

	utils.SendResponse(w, http.StatusOK, map[string]string{
		"token":        tokenString,
		"refreshToken": refreshToken,
		"userid":       user.ID.Hex(),
	}, "Login successful", nil)
}

// POST /api/auth/logout
// The access token is blacklisted in Redis until it would have expired.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	authHeader := r.Header.Get("Authorization")
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == "" || token == authHeader {
		utils.RespondWithError(w, http.StatusUnauthorized, "No token provided")
		return
	}

	if err := h.Cache.SetWithExpiry(ctx, middleware.BlacklistKey(token), "1", accessTokenTTL); err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to invalidate session")
		return
	}

	// clear the stored refresh token as well
	if userID := utils.GetUserIDFromRequest(r); userID != "" {
		if oid, err := primitive.ObjectIDFromHex(userID); err == nil {
			_, _ = h.DB.Users.UpdateOne(ctx, bson.M{"_id": oid},
				bson.M{"$unset": bson.M{"refresh_token": "", "refresh_expiry": ""}})
		}
	}

	utils.SendResponse(w, http.StatusOK, nil, "Logged out successfully", nil)
}

// POST /api/auth/refresh
func (h *Handler) RefreshToken(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	var input struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil || input.RefreshToken == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "Refresh token required")
		return
	}

	var user models.User
	err := h.DB.Users.FindOne(ctx, bson.M{"refresh_token": hashToken(input.RefreshToken)}).Decode(&user)
	if err != nil {
		utils.RespondWithError(w, http.StatusUnauthorized, "Invalid refresh token")
		return
	}
	if time.Now().After(user.RefreshExpiry) {
		utils.RespondWithError(w, http.StatusUnauthorized, "Refresh token expired")
		return
	}

	tokenString, err := generateAccessToken(&user)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to generate token")
		return
	}

	// rotate the refresh token on every use
	newRefresh, err := generateRefreshToken()
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to generate refresh token")
		return
	}
	_, err = h.DB.Users.UpdateOne(ctx, bson.M{"_id": user.ID}, bson.M{"$set": bson.M{
		"refresh_token":  hashToken(newRefresh),
		"refresh_expiry": time.Now().Add(refreshTokenTTL),
	}})
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to rotate refresh token")
		return
	}

	utils.SendResponse(w, http.StatusOK, map[string]string{
		"token":        tokenString,
		"refreshToken": newRefresh,
	}, "Token refreshed", nil)
}
