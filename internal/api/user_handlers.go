package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"prediction-api/internal/auth"
	"prediction-api/internal/database"
	"prediction-api/internal/models"
)

type CreateUserRequest struct {
	Username string `json:"username" example:"alice"`
	Email    string `json:"email" example:"alice@example.com"`
	Password string `json:"password" example:"password123"`
}

// @Summary      Register a new user
// @Description  Creates a user account and its credits balance, funded with the configured starting amount. Both are created atomically.
// @Tags         users
// @Accept       json
// @Produce      json
// @Param        createUserRequest  body      CreateUserRequest  true  "New user details"
// @Success      201                {object}  models.User
// @Failure      400                {string}  string "Email already registered"
// @Failure      500                {string}  string "Internal Server Error"
// @Router       /users/ [post]
func (s *Server) CreateUserHandler(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	if req.Username == "" || req.Email == "" || req.Password == "" {
		http.Error(w, "Username, email and password are required", http.StatusBadRequest)
		return
	}

	hashedPassword, err := auth.HashPassword(req.Password)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	params := database.CreateUserParams{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hashedPassword,
	}

	// The user row and its credits row land in one transaction: a failed
	// balance initialization must not leave an orphan user behind.
	var user *models.User
	txErr := s.store.ExecTx(r.Context(), func(q *database.Queries) error {
		created, err := q.CreateUser(r.Context(), params)
		if err != nil {
			return err
		}
		if err := q.InitializeCredits(r.Context(), created.Username, s.config.Credits.StartingAmount); err != nil {
			return err
		}
		user = created
		return nil
	})

	if txErr != nil {
		switch {
		case errors.Is(txErr, database.ErrDuplicateEmail):
			http.Error(w, "Email already registered", http.StatusBadRequest)
		case errors.Is(txErr, database.ErrDuplicateUsername):
			http.Error(w, "Username already taken", http.StatusBadRequest)
		default:
			log.Printf("ERROR: Failed to register user %s: %v", req.Username, txErr)
			http.Error(w, "Failed to create user", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(user)
}

// @Summary      Get current user info
// @Description  Retrieves the account of the currently authenticated user.
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  models.User
// @Failure      401  {string}  string "Unauthorized"
// @Failure      500  {string}  string "Internal Server Error"
// @Router       /me [get]
func (s *Server) GetCurrentUserHandler(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	if user == nil {
		http.Error(w, "Could not retrieve user from token", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(user)
}

// @Summary      Get credits balance
// @Description  Retrieves the current credits balance of the authenticated user.
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  models.Credits
// @Failure      401  {string}  string "Unauthorized"
// @Failure      500  {string}  string "Internal Server Error"
// @Router       /me/credits [get]
func (s *Server) GetCreditsHandler(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())

	credits, err := s.store.GetCredits(r.Context(), user.Username)
	if err != nil {
		if errors.Is(err, database.ErrCreditsNotFound) {
			// Registration creates this row with the user, so a miss here
			// is a defect, not a user error.
			log.Printf("ERROR: Missing credits row for existing user %s", user.Username)
		}
		http.Error(w, "Failed to retrieve credits", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(credits)
}
