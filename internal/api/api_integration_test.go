package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"prediction-api/internal/auth"
	"prediction-api/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

// registerTestUserAPI registers a user through the real registration
// handler and returns it with the given balance applied.
func registerTestUserAPI(t *testing.T, balance int64) *models.User {
	t.Helper()

	username := "user_" + newTestID()
	payload := CreateUserRequest{
		Username: username,
		Email:    username + "@example.com",
		Password: "password123",
	}
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest("POST", "/users/", bytes.NewReader(body))
	rr := httptest.NewRecorder()

	http.HandlerFunc(testServer.CreateUserHandler).ServeHTTP(rr, req)
	require.Equal(t, http.StatusCreated, rr.Code)

	var user models.User
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &user))

	if balance != testServer.config.Credits.StartingAmount {
		_, err := testServer.store.GetPool().Exec(context.Background(),
			`UPDATE credits SET amount = $1 WHERE owner_username = $2`, balance, username)
		require.NoError(t, err)
	}

	return &user
}

func buildCSVUpload(t *testing.T, csvContent string) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", "features.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte(csvContent))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	return body, writer.FormDataContentType()
}

func doPredict(t *testing.T, user *models.User, csvContent, modelType string) *httptest.ResponseRecorder {
	t.Helper()

	body, contentType := buildCSVUpload(t, csvContent)
	url := "/predict"
	if modelType != "" {
		url = fmt.Sprintf("/predict?requested_model_type=%s", modelType)
	}
	req := httptest.NewRequest("POST", url, body)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()

	req = req.WithContext(context.WithValue(req.Context(), userContextKey, user))
	http.HandlerFunc(testServer.PredictHandler).ServeHTTP(rr, req)
	return rr
}

func userBalance(t *testing.T, username string) int64 {
	t.Helper()

	credits, err := testServer.store.GetCredits(context.Background(), username)
	require.NoError(t, err)
	return credits.Amount
}

func usageCount(t *testing.T, username string) int64 {
	t.Helper()

	count, err := testServer.store.CountPredictionsByUser(context.Background(), username)
	require.NoError(t, err)
	return count
}

const threeRowCSV = "f1,f2\n1.0,1.0\n0.2,0.2\n2.0,1.0\n"

func TestAPI_RegisterUser(t *testing.T) {
	user := registerTestUserAPI(t, testServer.config.Credits.StartingAmount)

	require.True(t, user.IsActive)
	require.Equal(t, testServer.config.Credits.StartingAmount, userBalance(t, user.Username))
}

func TestAPI_RegisterUser_DuplicateEmail(t *testing.T) {
	user := registerTestUserAPI(t, testServer.config.Credits.StartingAmount)

	payload := CreateUserRequest{
		Username: "user_" + newTestID(),
		Email:    user.Email,
		Password: "password123",
	}
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest("POST", "/users/", bytes.NewReader(body))
	rr := httptest.NewRecorder()

	http.HandlerFunc(testServer.CreateUserHandler).ServeHTTP(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Contains(t, rr.Body.String(), "Email already registered")

	// The rolled-back registration must not leave a user behind.
	orphan, err := testServer.store.GetUserByUsername(context.Background(), payload.Username)
	require.NoError(t, err)
	require.Nil(t, orphan)
}

func TestAPI_Token(t *testing.T) {
	user := registerTestUserAPI(t, testServer.config.Credits.StartingAmount)

	form := fmt.Sprintf("username=%s&password=password123", user.Username)
	req := httptest.NewRequest("POST", "/token", strings.NewReader(form))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()

	http.HandlerFunc(testServer.TokenHandler).ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var tokenResp TokenResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &tokenResp))
	require.Equal(t, "bearer", tokenResp.TokenType)

	claims, err := auth.VerifyJWT(tokenResp.AccessToken, testServer.config.JWT.Secret)
	require.NoError(t, err)
	require.Equal(t, user.Username, claims.Username)
}

func TestAPI_Token_BadPassword(t *testing.T) {
	user := registerTestUserAPI(t, testServer.config.Credits.StartingAmount)

	form := fmt.Sprintf("username=%s&password=wrong", user.Username)
	req := httptest.NewRequest("POST", "/token", strings.NewReader(form))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()

	http.HandlerFunc(testServer.TokenHandler).ServeHTTP(rr, req)

	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestAPI_Predict_Success(t *testing.T) {
	// Starting balance 100, lr costs 5, three feature rows.
	user := registerTestUserAPI(t, 100)

	rr := doPredict(t, user, threeRowCSV, "lr")

	require.Equal(t, http.StatusOK, rr.Code)
	var resp PredictResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp.PredResult, 3, "one label per input row")
	require.Equal(t, []int{1, 0, 1}, resp.PredResult)

	require.Equal(t, int64(95), userBalance(t, user.Username))
	require.Equal(t, int64(1), usageCount(t, user.Username))

	predictions, err := testServer.store.ListPredictionsByUser(context.Background(), user.Username, 0)
	require.NoError(t, err)
	require.Equal(t, "lr", predictions[0].ModelType)
}

func TestAPI_Predict_DefaultModel(t *testing.T) {
	user := registerTestUserAPI(t, 100)

	rr := doPredict(t, user, threeRowCSV, "")

	require.Equal(t, http.StatusOK, rr.Code)
	predictions, err := testServer.store.ListPredictionsByUser(context.Background(), user.Username, 0)
	require.NoError(t, err)
	require.Equal(t, "lr", predictions[0].ModelType, "missing model type should fall back to the configured default")
}

func TestAPI_Predict_InsufficientFunds(t *testing.T) {
	user := registerTestUserAPI(t, 3)

	rr := doPredict(t, user, threeRowCSV, "lr")

	require.Equal(t, http.StatusPaymentRequired, rr.Code)
	var errResp map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &errResp))
	require.Equal(t, "Not enough credits. 5 credits are required, you have 3.", errResp["detail"])

	require.Equal(t, int64(3), userBalance(t, user.Username), "a failed funds check must not debit")
	require.Equal(t, int64(0), usageCount(t, user.Username), "a failed funds check must not be logged")
}

func TestAPI_Predict_UnknownModel(t *testing.T) {
	user := registerTestUserAPI(t, 100)

	rr := doPredict(t, user, threeRowCSV, "nope")

	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Contains(t, rr.Body.String(), "Unknown model type: nope")
	require.Equal(t, int64(100), userBalance(t, user.Username))
}

func TestAPI_Predict_ModelUnavailable(t *testing.T) {
	// "rf" is in the pricing table but has no artifact on disk.
	user := registerTestUserAPI(t, 100)

	rr := doPredict(t, user, threeRowCSV, "rf")

	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	require.Contains(t, rr.Body.String(), "Model rf is unavailable")
	require.Equal(t, int64(100), userBalance(t, user.Username), "a failed model load is never billed")
	require.Equal(t, int64(0), usageCount(t, user.Username))
}

func TestAPI_Predict_InvalidInput(t *testing.T) {
	user := registerTestUserAPI(t, 100)

	rr := doPredict(t, user, "f1,f2\nabc,def\n", "lr")
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Contains(t, rr.Body.String(), "Invalid input file")

	rr = doPredict(t, user, "", "lr")
	require.Equal(t, http.StatusBadRequest, rr.Code)

	// Wrong feature count surfaces from the model, still before billing.
	rr = doPredict(t, user, "f1,f2,f3\n1.0,2.0,3.0\n", "lr")
	require.Equal(t, http.StatusBadRequest, rr.Code)

	require.Equal(t, int64(100), userBalance(t, user.Username))
	require.Equal(t, int64(0), usageCount(t, user.Username))
}

func TestAPI_Predict_ExpiredToken(t *testing.T) {
	user := registerTestUserAPI(t, 100)

	claims := &auth.AppClaims{
		Username: user.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Username,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-1 * time.Minute)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	expiredToken, err := token.SignedString([]byte(testServer.config.JWT.Secret))
	require.NoError(t, err)

	body, contentType := buildCSVUpload(t, threeRowCSV)
	req := httptest.NewRequest("POST", "/predict?requested_model_type=lr", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+expiredToken)
	rr := httptest.NewRecorder()

	testServer.AuthMiddleware(http.HandlerFunc(testServer.PredictHandler)).ServeHTTP(rr, req)

	require.Equal(t, http.StatusUnauthorized, rr.Code)
	require.Equal(t, int64(100), userBalance(t, user.Username), "an unauthorized request must have no side effects")
	require.Equal(t, int64(0), usageCount(t, user.Username))
}

func TestAPI_Predict_InactiveUser(t *testing.T) {
	user := registerTestUserAPI(t, 100)

	_, err := testServer.store.GetPool().Exec(context.Background(),
		`UPDATE users SET is_active = FALSE WHERE username = $1`, user.Username)
	require.NoError(t, err)

	body, contentType := buildCSVUpload(t, threeRowCSV)
	req := httptest.NewRequest("POST", "/predict?requested_model_type=lr", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+tokenForUser(user.Username))
	rr := httptest.NewRecorder()

	testServer.AuthMiddleware(http.HandlerFunc(testServer.PredictHandler)).ServeHTTP(rr, req)

	require.Equal(t, http.StatusForbidden, rr.Code, "a valid token must not get an inactive user through")
	require.Equal(t, int64(0), usageCount(t, user.Username))
}

func TestAPI_Predict_ConcurrentRace(t *testing.T) {
	// Balance covers exactly one lr prediction. Two concurrent requests
	// must produce one 200 and one 402, one usage entry and a zero balance.
	user := registerTestUserAPI(t, 5)

	var wg sync.WaitGroup
	codes := make([]int, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rr := doPredict(t, user, threeRowCSV, "lr")
			codes[i] = rr.Code
		}(i)
	}
	wg.Wait()

	successes := 0
	paymentFailures := 0
	for _, code := range codes {
		switch code {
		case http.StatusOK:
			successes++
		case http.StatusPaymentRequired:
			paymentFailures++
		}
	}
	require.Equal(t, 1, successes, "exactly one request should be billed")
	require.Equal(t, 1, paymentFailures, "the other request should fail on funds")

	require.Equal(t, int64(0), userBalance(t, user.Username))
	require.Equal(t, int64(1), usageCount(t, user.Username))
}

func TestAPI_GetCredits(t *testing.T) {
	user := registerTestUserAPI(t, 42)

	req := httptest.NewRequest("GET", "/api/v1/me/credits", nil)
	rr := httptest.NewRecorder()

	req = req.WithContext(context.WithValue(req.Context(), userContextKey, user))
	http.HandlerFunc(testServer.GetCreditsHandler).ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var credits models.Credits
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &credits))
	require.Equal(t, int64(42), credits.Amount)
}

func TestAPI_ListPredictions(t *testing.T) {
	user := registerTestUserAPI(t, 100)

	rr := doPredict(t, user, threeRowCSV, "gb")
	require.Equal(t, http.StatusOK, rr.Code)

	req := httptest.NewRequest("GET", "/api/v1/predictions", nil)
	listRR := httptest.NewRecorder()

	req = req.WithContext(context.WithValue(req.Context(), userContextKey, user))
	http.HandlerFunc(testServer.ListPredictionsHandler).ServeHTTP(listRR, req)

	require.Equal(t, http.StatusOK, listRR.Code)
	var predictions []models.Prediction
	require.NoError(t, json.Unmarshal(listRR.Body.Bytes(), &predictions))
	require.Len(t, predictions, 1)
	require.Equal(t, "gb", predictions[0].ModelType)

	// gb costs 10.
	require.Equal(t, int64(90), userBalance(t, user.Username))
}
