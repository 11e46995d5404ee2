package api

import (
	"encoding/json"
	"net/http"

	"prediction-api/internal/auth"
)

type TokenResponse struct {
	AccessToken string `json:"access_token" example:"eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9...."`
	TokenType   string `json:"token_type" example:"bearer"`
}

// @Summary      Issue an access token
// @Description  Authenticates a user by username and password and returns a signed bearer token, valid for 30 minutes.
// @Tags         auth
// @Accept       x-www-form-urlencoded
// @Produce      json
// @Param        username  formData  string  true  "Username"
// @Param        password  formData  string  true  "Password"
// @Success      200       {object}  TokenResponse
// @Failure      400       {string}  string "Invalid form data"
// @Failure      401       {string}  string "Incorrect username or password"
// @Failure      500       {string}  string "Internal Server Error"
// @Router       /token [post]
func (s *Server) TokenHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form data", http.StatusBadRequest)
		return
	}

	username := r.PostFormValue("username")
	password := r.PostFormValue("password")
	if username == "" || password == "" {
		http.Error(w, "Username and password are required", http.StatusBadRequest)
		return
	}

	user, err := s.store.GetUserByUsername(r.Context(), username)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if user == nil || !auth.CheckPasswordHash(password, user.PasswordHash) {
		w.Header().Set("WWW-Authenticate", "Bearer")
		http.Error(w, "Incorrect username or password", http.StatusUnauthorized)
		return
	}

	accessToken, err := auth.GenerateJWT(user.Username, s.config.JWT.Secret, auth.DefaultTokenTTL)
	if err != nil {
		http.Error(w, "Failed to generate access token", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(TokenResponse{
		AccessToken: accessToken,
		TokenType:   "bearer",
	})
}
