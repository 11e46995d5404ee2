package api

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// @Summary      List own predictions
// @Description  Retrieves the usage log of the authenticated user: one entry per billed prediction, newest first.
// @Tags         predictions
// @Produce      json
// @Security     BearerAuth
// @Param        limit  query     int  false  "Maximum number of entries to return (default 100)"
// @Success      200    {array}   models.Prediction
// @Failure      400    {string}  string "Bad Request"
// @Failure      401    {string}  string "Unauthorized"
// @Failure      500    {string}  string "Internal Server Error"
// @Router       /predictions [get]
func (s *Server) ListPredictionsHandler(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())

	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 0 {
			http.Error(w, "Invalid 'limit' parameter, must be a non-negative number", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	predictions, err := s.store.ListPredictionsByUser(r.Context(), user.Username, limit)
	if err != nil {
		http.Error(w, "Failed to retrieve predictions", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(predictions)
}
