package api

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"prediction-api/internal/config"
	"prediction-api/internal/database"
	"prediction-api/internal/models"
)

const maxUploadBytes = 16 << 20

type PredictResponse struct {
	PredResult []int `json:"pred_result"`
}

type usageEvent struct {
	PredictionID int64     `json:"prediction_id"`
	ModelType    string    `json:"model_type"`
	Price        int64     `json:"price"`
	NewBalance   int64     `json:"new_balance"`
	Datetime     time.Time `json:"datetime"`
}

// writeDetail mirrors the response shape clients of the original service
// expect for billing failures: a JSON object with a "detail" field.
func writeDetail(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"detail": detail})
}

// @Summary      Run a prediction
// @Description  Runs the requested classification model on an uploaded CSV of feature rows and debits the model's price from the caller's credits. The debit and the usage-log entry are committed together before the result is returned.
// @Tags         predictions
// @Accept       multipart/form-data
// @Produce      json
// @Security     BearerAuth
// @Param        file                  formData  file    true   "CSV file with a header row and one feature row per prediction"
// @Param        requested_model_type  query     string  false  "Model type to use (lr, rf, gb). Defaults to the configured default model."
// @Success      200  {object}  PredictResponse
// @Failure      400  {string}  string "Unknown model type or invalid input file"
// @Failure      401  {string}  string "Unauthorized"
// @Failure      402  {object}  map[string]string "Not enough credits"
// @Failure      403  {string}  string "Inactive user"
// @Failure      503  {string}  string "Model unavailable"
// @Router       /predict [post]
func (s *Server) PredictHandler(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	if user == nil {
		http.Error(w, "Could not retrieve user from token", http.StatusInternalServerError)
		return
	}

	modelType := r.URL.Query().Get("requested_model_type")
	if modelType == "" {
		modelType = s.config.Models.Default
	}

	// Price is locked here and reused at commit; a pricing change mid-request
	// cannot alter what this request is billed.
	price, err := s.config.PriceOf(modelType)
	if err != nil {
		var unknownErr *config.UnknownModelError
		if errors.As(err, &unknownErr) {
			http.Error(w, fmt.Sprintf("Unknown model type: %s", unknownErr.ModelType), http.StatusBadRequest)
			return
		}
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	// Loading a model can be expensive but is never billed; its failure is
	// a capability problem, not a billing one.
	model, err := s.registry.Get(modelType)
	if err != nil {
		log.Printf("ERROR: Failed to load model %q: %v", modelType, err)
		http.Error(w, fmt.Sprintf("Model %s is unavailable", modelType), http.StatusServiceUnavailable)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, _, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "Invalid input file: missing multipart field 'file'", http.StatusBadRequest)
		return
	}
	defer file.Close()

	features, err := parseFeatureCSV(file)
	if err != nil {
		http.Error(w, fmt.Sprintf("Invalid input file: %v", err), http.StatusBadRequest)
		return
	}

	// Funds pre-check: a short balance aborts before the model runs. The
	// authoritative check is the conditional debit at commit; this one only
	// keeps obviously unfunded requests away from the model.
	credits, err := s.store.GetCredits(r.Context(), user.Username)
	if err != nil {
		if errors.Is(err, database.ErrCreditsNotFound) {
			log.Printf("ERROR: Missing credits row for existing user %s", user.Username)
		}
		http.Error(w, "Failed to retrieve credits", http.StatusInternalServerError)
		return
	}
	if credits.Amount < price {
		writeDetail(w, http.StatusPaymentRequired,
			fmt.Sprintf("Not enough credits. %d credits are required, you have %d.", price, credits.Amount))
		return
	}

	labels, err := model.Predict(features)
	if err != nil {
		http.Error(w, fmt.Sprintf("Invalid input file: %v", err), http.StatusBadRequest)
		return
	}

	// Commit: usage-log append and debit in one transaction, both or
	// neither. A concurrent request that emptied the balance since the
	// pre-check makes the debit fail here, and the whole commit rolls back.
	var prediction *models.Prediction
	var newBalance int64
	txErr := s.store.ExecTx(r.Context(), func(q *database.Queries) error {
		prediction, err = q.CreatePrediction(r.Context(), database.CreatePredictionParams{
			ModelType:         modelType,
			RequesterUsername: user.Username,
			Datetime:          time.Now().UTC(),
		})
		if err != nil {
			return err
		}
		newBalance, err = q.DebitCredits(r.Context(), user.Username, price)
		return err
	})

	if txErr != nil {
		var fundsErr *database.InsufficientFundsError
		if errors.As(txErr, &fundsErr) {
			writeDetail(w, http.StatusPaymentRequired,
				fmt.Sprintf("Not enough credits. %d credits are required, you have %d.", fundsErr.Required, fundsErr.Available))
			return
		}
		log.Printf("ERROR: Failed to commit billed prediction for user %s: %v", user.Username, txErr)
		http.Error(w, "Failed to record prediction", http.StatusInternalServerError)
		return
	}

	predictionsTotal.WithLabelValues(modelType).Inc()
	creditsDebitedTotal.Add(float64(price))

	if eventData, err := json.Marshal(usageEvent{
		PredictionID: prediction.ID,
		ModelType:    modelType,
		Price:        price,
		NewBalance:   newBalance,
		Datetime:     prediction.Datetime,
	}); err == nil {
		s.wsHub.PublishEvent(user.Username, eventData)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(PredictResponse{PredResult: labels})
}

// parseFeatureCSV decodes an uploaded CSV into feature rows. The first
// record is a header, every later record one row of float features.
func parseFeatureCSV(r io.Reader) ([][]float64, error) {
	reader := csv.NewReader(r)

	if _, err := reader.Read(); err != nil {
		if err == io.EOF {
			return nil, errors.New("file is empty")
		}
		return nil, err
	}

	var features [][]float64
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		row := make([]float64, len(record))
		for i, field := range record {
			value, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("row %d: %q is not a number", len(features)+1, field)
			}
			row[i] = value
		}
		features = append(features, row)
	}

	if len(features) == 0 {
		return nil, errors.New("no feature rows after the header")
	}

	return features, nil
}
