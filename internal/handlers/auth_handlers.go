package handlers

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"regexp"
	"strings"

	"github.com/Joshh0TX/JB-Fitness/internal/config"
	"github.com/Joshh0TX/JB-Fitness/internal/models"
	"github.com/Joshh0TX/JB-Fitness/internal/repository"
	"github.com/Joshh0TX/JB-Fitness/internal/service"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

type AuthHandlers struct {
	challengeStore service.ChallengeStore
	jwtService     *service.JWTService
	emailSender    service.EmailSender
	userStore      repository.UserStore
	otpCfg         *config.OTPConfig
	logger         *logrus.Logger
	lookupMX       func(domain string) ([]*net.MX, error)
}

func NewAuthHandlers(
	challengeStore service.ChallengeStore,
	jwtService *service.JWTService,
	emailSender service.EmailSender,
	userStore repository.UserStore,
	otpCfg *config.OTPConfig,
	logger *logrus.Logger,
) *AuthHandlers {
	return &AuthHandlers{
		challengeStore: challengeStore,
		jwtService:     jwtService,
		emailSender:    emailSender,
		userStore:      userStore,
		otpCfg:         otpCfg,
		logger:         logger,
		lookupMX:       net.LookupMX,
	}
}

type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterResponse struct {
	Message string       `json:"msg"`
	Token   string       `json:"token"`
	User    UserResponse `json:"user"`
}

type ValidateEmailRequest struct {
	Email string `json:"email"`
}

type ValidateEmailResponse struct {
	Message string `json:"msg"`
	Exists  bool   `json:"exists"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Message     string `json:"msg"`
	Requires2FA bool   `json:"requires2FA"`
	ChallengeID string `json:"challengeId"`
	Email       string `json:"email"`
	ExpiresInMs int64  `json:"expiresInMs"`
}

type VerifyOTPRequest struct {
	ChallengeID string `json:"challengeId"`
	OTP         string `json:"otp"`
}

type VerifyOTPResponse struct {
	Message string       `json:"msg"`
	Token   string       `json:"token"`
	User    UserResponse `json:"user"`
}

type ResendOTPRequest struct {
	ChallengeID string `json:"challengeId"`
}

type ResendOTPResponse struct {
	Message     string `json:"msg"`
	ExpiresInMs int64  `json:"expiresInMs"`
}

type UserResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (h *AuthHandlers) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}

	username := strings.TrimSpace(req.Username)
	email := normalizeEmail(req.Email)

	if username == "" || email == "" || req.Password == "" {
		h.respondWithError(w, http.StatusBadRequest, "MISSING_FIELDS", "All fields are required")
		return
	}

	if !h.emailDomainExists(email) {
		h.respondWithError(w, http.StatusBadRequest, "EMAIL_NOT_FOUND", "Email doesn't exist")
		return
	}

	existing, err := h.userStore.GetByEmail(r.Context(), email)
	if err != nil {
		h.logger.WithError(err).Error("Failed to look up user")
		h.respondWithError(w, http.StatusInternalServerError, "SERVER_ERROR", "Server error")
		return
	}
	if existing != nil {
		h.respondWithError(w, http.StatusBadRequest, "USER_EXISTS", "User already exists")
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		h.logger.WithError(err).Error("Failed to hash password")
		h.respondWithError(w, http.StatusInternalServerError, "SERVER_ERROR", "Server error")
		return
	}

	user := &models.User{
		ID:           uuid.New().String(),
		Username:     username,
		Email:        email,
		PasswordHash: string(hashed),
	}

	if err := h.userStore.Create(r.Context(), user); err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			h.respondWithError(w, http.StatusBadRequest, "USER_EXISTS", "User already exists")
			return
		}
		h.logger.WithError(err).Error("Failed to create user")
		h.respondWithError(w, http.StatusInternalServerError, "SERVER_ERROR", "Server error")
		return
	}

	token, err := h.jwtService.IssueSessionToken(user)
	if err != nil {
		h.respondWithError(w, http.StatusInternalServerError, "TOKEN_GENERATION_FAILED", "Failed to generate token")
		return
	}

	h.respondWithJSON(w, http.StatusCreated, RegisterResponse{
		Message: "User registered successfully",
		Token:   token,
		User: UserResponse{
			ID:       user.ID,
			Username: user.Username,
			Email:    user.Email,
		},
	})
}

func (h *AuthHandlers) ValidateEmail(w http.ResponseWriter, r *http.Request) {
	var req ValidateEmailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithJSON(w, http.StatusBadRequest, ValidateEmailResponse{
			Message: "Email is required",
			Exists:  false,
		})
		return
	}

	email := normalizeEmail(req.Email)
	if email == "" {
		h.respondWithJSON(w, http.StatusBadRequest, ValidateEmailResponse{
			Message: "Email is required",
			Exists:  false,
		})
		return
	}

	if !h.emailDomainExists(email) {
		h.respondWithJSON(w, http.StatusBadRequest, ValidateEmailResponse{
			Message: "Email doesn't exist",
			Exists:  false,
		})
		return
	}

	h.respondWithJSON(w, http.StatusOK, ValidateEmailResponse{
		Message: "Email is valid",
		Exists:  true,
	})
}

// Login verifies the primary credential and, on success, opens an OTP
// challenge and emails the code. The challenge is persisted before the email
// is attempted so a failed send is recoverable via resend without another
// password round trip.
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}

	email := normalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		h.respondWithError(w, http.StatusBadRequest, "MISSING_FIELDS", "Email and password are required")
		return
	}

	user, err := h.userStore.GetByEmail(r.Context(), email)
	if err != nil {
		h.logger.WithError(err).Error("Failed to look up user")
		h.respondWithError(w, http.StatusInternalServerError, "SERVER_ERROR", "Server error")
		return
	}
	if user == nil {
		h.respondWithError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid credentials")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		h.respondWithError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid credentials")
		return
	}

	challenge, err := h.challengeStore.Create(r.Context(), user.ID, user.Email, user.Username)
	if err != nil {
		h.logger.WithError(err).Error("Failed to create login challenge")
		h.respondWithError(w, http.StatusInternalServerError, "SERVER_ERROR", "Server error")
		return
	}

	body := service.OTPEmailBody(challenge.Username, challenge.Code)
	if err := h.emailSender.Send(r.Context(), challenge.Email, service.OTPEmailSubject, body); err != nil {
		// The challenge stays live; the client can recover with resend.
		h.logger.WithError(err).Error("Failed to send OTP email")
		h.respondWithError(w, http.StatusInternalServerError, "EMAIL_SEND_FAILED", "Failed to send verification code")
		return
	}

	h.respondWithJSON(w, http.StatusOK, LoginResponse{
		Message:     "Verification code sent to your email",
		Requires2FA: true,
		ChallengeID: challenge.ChallengeID,
		Email:       challenge.Email,
		ExpiresInMs: h.otpTTLMs(),
	})
}

func (h *AuthHandlers) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req VerifyOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}

	challengeID := strings.TrimSpace(req.ChallengeID)
	otp := strings.TrimSpace(req.OTP)
	if challengeID == "" || otp == "" {
		h.respondWithError(w, http.StatusBadRequest, "MISSING_FIELDS", "Challenge ID and OTP are required")
		return
	}

	challenge, err := h.challengeStore.Verify(r.Context(), challengeID, otp)
	if err != nil {
		h.respondWithChallengeError(w, err)
		return
	}

	user := &models.User{
		ID:       challenge.UserID,
		Username: challenge.Username,
		Email:    challenge.Email,
	}

	token, err := h.jwtService.IssueSessionToken(user)
	if err != nil {
		h.respondWithError(w, http.StatusInternalServerError, "TOKEN_GENERATION_FAILED", "Failed to generate token")
		return
	}

	h.respondWithJSON(w, http.StatusOK, VerifyOTPResponse{
		Message: "Login successful",
		Token:   token,
		User: UserResponse{
			ID:       user.ID,
			Username: user.Username,
			Email:    user.Email,
		},
	})
}

func (h *AuthHandlers) ResendOTP(w http.ResponseWriter, r *http.Request) {
	var req ResendOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}

	challengeID := strings.TrimSpace(req.ChallengeID)
	if challengeID == "" {
		h.respondWithError(w, http.StatusBadRequest, "MISSING_FIELDS", "Challenge ID is required")
		return
	}

	challenge, err := h.challengeStore.Resend(r.Context(), challengeID)
	if err != nil {
		h.respondWithChallengeError(w, err)
		return
	}

	body := service.OTPEmailBody(challenge.Username, challenge.Code)
	if err := h.emailSender.Send(r.Context(), challenge.Email, service.OTPEmailSubject, body); err != nil {
		h.logger.WithError(err).Error("Failed to resend OTP email")
		h.respondWithError(w, http.StatusInternalServerError, "EMAIL_SEND_FAILED", "Failed to resend OTP")
		return
	}

	h.respondWithJSON(w, http.StatusOK, ResendOTPResponse{
		Message:     "A new OTP has been sent",
		ExpiresInMs: h.otpTTLMs(),
	})
}

func (h *AuthHandlers) respondWithChallengeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrChallengeNotFound):
		h.respondWithError(w, http.StatusBadRequest, "SESSION_EXPIRED", "Verification session expired. Please sign in again.")
	case errors.Is(err, service.ErrChallengeExpired):
		h.respondWithError(w, http.StatusBadRequest, "OTP_EXPIRED", "OTP expired. Please sign in again.")
	case errors.Is(err, service.ErrOTPMismatch):
		h.respondWithError(w, http.StatusUnauthorized, "INVALID_OTP", "Invalid OTP")
	case errors.Is(err, service.ErrChallengeLocked):
		h.respondWithError(w, http.StatusTooManyRequests, "TOO_MANY_ATTEMPTS", "Too many invalid attempts. Please sign in again.")
	default:
		h.logger.WithError(err).Error("Challenge store failure")
		h.respondWithError(w, http.StatusInternalServerError, "SERVER_ERROR", "Server error")
	}
}

func (h *AuthHandlers) otpTTLMs() int64 {
	// Always the full TTL, not remaining time; the client resets its
	// countdown from this value on every login and resend.
	return h.otpCfg.TTL.Milliseconds()
}

func (h *AuthHandlers) emailDomainExists(email string) bool {
	if !isValidEmailSyntax(email) {
		return false
	}

	at := strings.LastIndex(email, "@")
	domain := email[at+1:]
	if domain == "" {
		return false
	}

	records, err := h.lookupMX(domain)
	if err != nil {
		return false
	}
	return len(records) > 0
}

func (h *AuthHandlers) respondWithJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func (h *AuthHandlers) respondWithError(w http.ResponseWriter, status int, code, message string) {
	h.respondWithJSON(w, status, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

var emailSyntaxRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

func isValidEmailSyntax(email string) bool {
	return emailSyntaxRe.MatchString(email)
}
