package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"merza/models"
	"merza/utils"

	"github.com/julienschmidt/httprouter"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const googleTokenInfoURL = "https://oauth2.googleapis.com/tokeninfo"

type googleTokenInfo struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified string `json:"email_verified"`
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`
	Audience      string `json:"aud"`
	Expiry        string `json:"exp"`
}

// verifyGoogleIDToken asks Google's tokeninfo endpoint about the token and
// checks the audience against GOOGLE_CLIENT_ID.
func verifyGoogleIDToken(ctx context.Context, idToken string) (*googleTokenInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		googleTokenInfoURL+"?id_token="+idToken, nil)
	if err != nil {
		return nil, err
	}
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tokeninfo returned %d", resp.StatusCode)
	}

	var info googleTokenInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, err
	}
	if clientID := os.Getenv("GOOGLE_CLIENT_ID"); clientID != "" && info.Audience != clientID {
		return nil, fmt.Errorf("token audience mismatch")
	}
	if info.Sub == "" || info.Email == "" {
		return nil, fmt.Errorf("incomplete token info")
	}
	return &info, nil
}

// POST /api/auth/google
// Signs the user in with a Google ID token, creating the account on first
// sight.
func (h *Handler) GoogleSignIn(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	var input struct {
		IDToken string `json:"idToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil || input.IDToken == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "idToken required")
		return
	}

	info, err := verifyGoogleIDToken(ctx, input.IDToken)
	if err != nil {
		utils.RespondWithError(w, http.StatusUnauthorized, "Google token verification failed")
		return
	}

	email := strings.ToLower(info.Email)
	now := time.Now()

	var user models.User
	err = h.DB.Users.FindOneAndUpdate(ctx,
		bson.M{"$or": []bson.M{{"googleId": info.Sub}, {"email": email}}},
		bson.M{
			"$set": bson.M{
				"googleId":   info.Sub,
				"last_login": now,
				"updatedAt":  now,
			},
			"$setOnInsert": bson.M{
				"email": email,
				"profile": models.Profile{
					Firstname: info.GivenName,
					Lastname:  info.FamilyName,
				},
				"role":          []string{"customer"},
				"status":        models.UserStatusActive,
				"emailVerified": info.EmailVerified == "true",
				"createdAt":     now,
			},
		},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&user)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Server error")
		return
	}
	if user.Status == models.UserStatusSuspended {
		utils.RespondWithError(w, http.StatusForbidden, "Account suspended")
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
		"refresh_expiry": now.Add(refreshTokenTTL),
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
