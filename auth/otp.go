package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/smtp"
	"strings"
	"time"

	"merza/utils"

	"github.com/julienschmidt/httprouter"
	"go.mongodb.org/mongo-driver/bson"
)

const otpTTL = 10 * time.Minute

// Mailer sends plain-text mail. The SMTP implementation is the default;
// tests plug in a recorder.
type Mailer interface {
	Send(to, subject, body string) error
}

// SMSSender delivers a short text to a phone number, best effort.
type SMSSender interface {
	Send(phone, message string) error
}

// SMTPMailer sends through a single SMTP relay configured from the
// environment.
type SMTPMailer struct {
	Host     string
	Port     string
	From     string
	Password string
}

func (m *SMTPMailer) Send(to, subject, body string) error {
	msg := []byte("From: " + m.From + "\r\n" +
		"To: " + to + "\r\n" +
		"Subject: " + subject + "\r\n\r\n" +
		body)
	auth := smtp.PlainAuth("", m.From, m.Password, m.Host)
	return smtp.SendMail(m.Host+":"+m.Port, auth, m.From, []string{to}, msg)
}

// HTTPSMSSender posts to a generic SMS gateway. Failures are the caller's
// problem; delivery is never awaited.
type HTTPSMSSender struct {
	Endpoint string
	APIKey   string
	Client   *http.Client
}

func (s *HTTPSMSSender) Send(phone, message string) error {
	if s.Endpoint == "" {
		return fmt.Errorf("sms gateway not configured")
	}
	client := s.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	payload, _ := json.Marshal(map[string]string{"to": phone, "message": message})
	req, err := http.NewRequest(http.MethodPost, s.Endpoint, strings.NewReader(string(payload)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.APIKey)
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sms gateway returned %d", resp.StatusCode)
	}
	return nil
}

func otpKey(channel, target string) string {
	return "otp:" + channel + ":" + target
}

// POST /api/auth/otp/request
func (h *Handler) RequestOTP(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	var input struct {
		Channel string `json:"channel"` // "email" or "sms"
		Email   string `json:"email"`
		Phone   string `json:"phone"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid input")
		return
	}

	otp := utils.GenerateRandomDigitString(6)

	switch input.Channel {
	case "email":
		input.Email = strings.ToLower(strings.TrimSpace(input.Email))
		if input.Email == "" {
			utils.RespondWithError(w, http.StatusBadRequest, "Email required")
			return
		}
		if err := h.Cache.SetWithExpiry(ctx, otpKey("email", input.Email), otp, otpTTL); err != nil {
			utils.RespondWithError(w, http.StatusInternalServerError, "Failed to issue OTP")
			return
		}
		if err := h.Mailer.Send(input.Email, "Email Verification", "Your OTP is: "+otp); err != nil {
			utils.RespondWithError(w, http.StatusInternalServerError, "Failed to send OTP")
			return
		}
	case "sms":
		input.Phone = strings.TrimSpace(input.Phone)
		if input.Phone == "" {
			utils.RespondWithError(w, http.StatusBadRequest, "Phone required")
			return
		}
		if err := h.Cache.SetWithExpiry(ctx, otpKey("sms", input.Phone), otp, otpTTL); err != nil {
			utils.RespondWithError(w, http.StatusInternalServerError, "Failed to issue OTP")
			return
		}
		if err := h.SMS.Send(input.Phone, "Your verification code is: "+otp); err != nil {
			utils.RespondWithError(w, http.StatusInternalServerError, "Failed to send OTP")
			return
		}
	default:
		utils.RespondWithError(w, http.StatusBadRequest, "Unknown channel")
		return
	}

	utils.SendResponse(w, http.StatusOK, nil, "OTP sent", nil)
}

// POST /api/auth/otp/verify
func (h *Handler) VerifyOTP(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	var input struct {
		Channel string `json:"channel"`
		Email   string `json:"email"`
		Phone   string `json:"phone"`
		OTP     string `json:"otp"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil || input.OTP == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid input")
		return
	}

	var key string
	var filter, update bson.M
	switch input.Channel {
	case "email":
		input.Email = strings.ToLower(strings.TrimSpace(input.Email))
		key = otpKey("email", input.Email)
		filter = bson.M{"email": input.Email}
		update = bson.M{"$set": bson.M{"emailVerified": true, "updatedAt": time.Now()}}
	case "sms":
		input.Phone = strings.TrimSpace(input.Phone)
		key = otpKey("sms", input.Phone)
		filter = bson.M{"profile.phone": input.Phone}
		update = bson.M{"$set": bson.M{"phoneVerified": true, "updatedAt": time.Now()}}
	default:
		utils.RespondWithError(w, http.StatusBadRequest, "Unknown channel")
		return
	}

	stored, err := h.Cache.Get(ctx, key)
	if err != nil || stored != input.OTP {
		utils.RespondWithError(w, http.StatusUnauthorized, "Invalid or expired OTP")
		return
	}

	if _, err := h.DB.Users.UpdateOne(ctx, filter, update); err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to verify user")
		return
	}

	_, _ = h.Cache.Del(ctx, key)
	utils.SendResponse(w, http.StatusOK, nil, "Verified successfully", nil)
}
