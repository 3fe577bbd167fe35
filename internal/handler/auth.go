package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/outbound-wms/api/internal/auth"
	"github.com/outbound-wms/api/internal/enum"
	"github.com/outbound-wms/api/internal/middleware"
	"github.com/outbound-wms/api/internal/store"
)

// AuthStore defines the database methods needed by auth handlers.
// Satisfied by *store.Store; narrow interface for testability.
type AuthStore interface {
	CreateUser(ctx context.Context, u *store.User) error
	GetUserByIdentifier(ctx context.Context, identifier string) (store.User, error)
	TouchLastLogin(ctx context.Context, userID int64) error
	RevokeToken(ctx context.Context, jti string, expiresAt time.Time) error
}

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	store     AuthStore
	jwtSecret string
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(store AuthStore, jwtSecret string) *AuthHandler {
	return &AuthHandler{store: store, jwtSecret: jwtSecret}
}

// RegisterRoutes registers auth endpoints on the given Chi router.
// Signup, login and logout are public; /auth/me goes behind the
// authentication middleware in the router.
func (h *AuthHandler) RegisterRoutes(r chi.Router) {
	r.Post("/auth/signup", h.Signup)
	r.Post("/auth/login", h.Login)
	r.Post("/auth/logout", h.Logout)
}

// --- Request / Response types ---

type signupRequest struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	PhoneNumber string `json:"phoneNumber"`
}

type loginRequest struct {
	UsernameOrEmail string `json:"usernameOrEmail"`
	Password        string `json:"password"`
}

type authResponse struct {
	AccessToken      string              `json:"accessToken"`
	TokenType        string              `json:"tokenType"`
	ExpiresInSeconds int64               `json:"expiresInSeconds"`
	User             userProfileResponse `json:"user"`
}

type userProfileResponse struct {
	ID          int64  `json:"id"`
	Username    string `json:"username"`
	Email       string `json:"email"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	PhoneNumber string `json:"phoneNumber"`
	Role        string `json:"role"`
}

var (
	usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)
	emailPattern    = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	phonePattern    = regexp.MustCompile(`^[0-9]{10,15}$`)
)

// --- Handlers ---

// Signup registers a new user account and logs it in.
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if msg := validateSignup(req); msg != "" {
		writeError(w, http.StatusBadRequest, msg, "VALIDATION_ERROR")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeInternalError(w, err)
		return
	}

	user := store.User{
		Username:     strings.TrimSpace(req.Username),
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		PasswordHash: string(hash),
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		PhoneNumber:  strings.TrimSpace(req.PhoneNumber),
		Role:         enum.UserRoleUser,
	}

	if err := h.store.CreateUser(r.Context(), &user); err != nil {
		switch {
		case errors.Is(err, store.ErrUsernameTaken):
			writeFailure(w, http.StatusConflict, "Username is already taken")
		case errors.Is(err, store.ErrEmailTaken):
			writeFailure(w, http.StatusConflict, "Email is already registered")
		default:
			writeInternalError(w, err)
		}
		return
	}

	h.respondWithToken(w, user, "Signup successful")
}

// Login authenticates by username or email plus password.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid request body")
		return
	}

	identifier := strings.TrimSpace(req.UsernameOrEmail)
	if identifier == "" || req.Password == "" {
		writeFailure(w, http.StatusBadRequest, "usernameOrEmail and password are required")
		return
	}

	user, err := h.store.GetUserByIdentifier(r.Context(), identifier)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			writeFailure(w, http.StatusUnauthorized, "Invalid username/email or password")
			return
		}
		writeInternalError(w, err)
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		writeFailure(w, http.StatusUnauthorized, "Invalid username/email or password")
		return
	}

	if !user.Enabled {
		writeFailure(w, http.StatusForbidden, "Your account is disabled or locked")
		return
	}

	if err := h.store.TouchLastLogin(r.Context(), user.ID); err != nil {
		writeInternalError(w, err)
		return
	}

	h.respondWithToken(w, user, "Login successful")
}

// Logout revokes the bearer token carried in the request, if any. The
// endpoint is idempotent: missing or malformed tokens still get a 200 so
// clients can always clear their session.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	header := r.Header.Get("Authorization")
	if header == "" || !strings.HasPrefix(header, "Bearer ") {
		writeSuccess(w, "Logout successful", nil)
		return
	}

	claims, err := auth.ValidateToken(h.jwtSecret, strings.TrimPrefix(header, "Bearer "))
	if err != nil || claims.ID == "" || claims.ExpiresAt == nil {
		writeSuccess(w, "Logout successful", nil)
		return
	}

	if err := h.store.RevokeToken(r.Context(), claims.ID, claims.ExpiresAt.Time); err != nil {
		writeInternalError(w, err)
		return
	}

	writeSuccess(w, "Logout successful", nil)
}

// Me returns the profile of the authenticated user.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeFailure(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	user, err := h.store.GetUserByIdentifier(r.Context(), claims.Username)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			writeFailure(w, http.StatusNotFound, "User not found")
			return
		}
		writeInternalError(w, err)
		return
	}

	writeSuccess(w, "User profile fetched", toProfile(user))
}

// --- Helpers ---

func (h *AuthHandler) respondWithToken(w http.ResponseWriter, user store.User, message string) {
	token, err := auth.GenerateToken(h.jwtSecret, user.ID, user.Username, user.Role)
	if err != nil {
		writeInternalError(w, err)
		return
	}

	writeSuccess(w, message, authResponse{
		AccessToken:      token,
		TokenType:        "Bearer",
		ExpiresInSeconds: int64(auth.TokenTTL.Seconds()),
		User:             toProfile(user),
	})
}

func toProfile(user store.User) userProfileResponse {
	return userProfileResponse{
		ID:          user.ID,
		Username:    user.Username,
		Email:       user.Email,
		FirstName:   user.FirstName,
		LastName:    user.LastName,
		PhoneNumber: user.PhoneNumber,
		Role:        user.Role,
	}
}

func validateSignup(req signupRequest) string {
	var msgs []string

	username := strings.TrimSpace(req.Username)
	switch {
	case len(username) < 4 || len(username) > 50:
		msgs = append(msgs, "username: must be 4-50 characters")
	case !usernamePattern.MatchString(username):
		msgs = append(msgs, "username: can only contain letters, numbers, dot, underscore and hyphen")
	}

	email := strings.TrimSpace(req.Email)
	if email == "" || len(email) > 100 || !emailPattern.MatchString(email) {
		msgs = append(msgs, "email: must be a valid email address")
	}

	if msg := validatePassword(req.Password); msg != "" {
		msgs = append(msgs, "password: "+msg)
	}

	if strings.TrimSpace(req.FirstName) == "" || len(req.FirstName) > 60 {
		msgs = append(msgs, "firstName: is required")
	}
	if strings.TrimSpace(req.LastName) == "" || len(req.LastName) > 60 {
		msgs = append(msgs, "lastName: is required")
	}
	if !phonePattern.MatchString(strings.TrimSpace(req.PhoneNumber)) {
		msgs = append(msgs, "phoneNumber: must be 10-15 digits")
	}

	return strings.Join(msgs, ", ")
}

func validatePassword(password string) string {
	if len(password) < 8 || len(password) > 100 {
		return "must be 8-100 characters"
	}

	var hasLower, hasUpper, hasDigit, hasSpecial bool
	for _, r := range password {
		switch {
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsDigit(r):
			hasDigit = true
		case strings.ContainsRune(`!@#$%^&*()_+-={}[]|:;"'<>,.?/`, r):
			hasSpecial = true
		}
	}

	if !hasLower || !hasUpper || !hasDigit || !hasSpecial {
		return "must include upper case, lower case, number and special character"
	}
	return ""
}
