package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stakevault/backend/internal/apperrors"
	"github.com/stakevault/backend/internal/approval"
	"github.com/stakevault/backend/internal/logger"
	"github.com/stakevault/backend/internal/middleware"
	"github.com/stakevault/backend/internal/queue"
	"github.com/stakevault/backend/internal/services/approvals"
	"github.com/stakevault/backend/internal/services/commission"
	"github.com/stakevault/backend/internal/services/investment"
	"github.com/stakevault/backend/internal/services/rates"
	"github.com/stakevault/backend/internal/services/users"
	"github.com/stakevault/backend/internal/services/withdrawal"
	"github.com/stakevault/backend/internal/store"
	"github.com/stakevault/backend/internal/utils"
	"github.com/stakevault/backend/internal/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const wallet = "TQn9Y2khEsLJW1ChVWFMSMeRDow5KcbLSE"

type testEnv struct {
	router  *gin.Engine
	tokens  *utils.TokenManager
	users   *users.Service
	pending []approval.Action
}

func setupTestRouter(t *testing.T, notifyErr error) *testEnv {
	gin.SetMode(gin.TestMode)
	st := store.NewMemoryStore()
	log := logger.NewSilent()
	env := &testEnv{tokens: utils.NewTokenManager("test-secret")}

	notifier := approval.NotifierFunc(func(_ context.Context, a approval.Action) error {
		if notifyErr != nil {
			return notifyErr
		}
		env.pending = append(env.pending, a)
		return nil
	})
	addresses := validation.NewValidator()
	engine := commission.NewEngine(st, commission.DefaultRules(), log)
	ledger := withdrawal.NewLedger(st, engine, addresses, notifier, log)
	investments := investment.NewService(st, rates.DefaultSchedule(), engine, ledger, addresses, notifier, log)
	env.users = users.NewService(st, "https://app.example.com", log)

	inv := NewInvestmentHandler(investments)
	ref := NewReferralHandler(engine, ledger)
	wd := NewWithdrawalHandler(ledger)
	usr := NewUserHandler(env.users)
	adm := NewAdminHandler(approvals.NewService(investments, ledger, log), nil)

	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/plans", inv.GetPlans)
	router.POST("/users", usr.Register)

	auth := router.Group("")
	auth.Use(middleware.AuthMiddleware(env.tokens))
	auth.GET("/me", usr.GetMe)
	auth.POST("/investments", inv.CreateInvestment)
	auth.GET("/investments", inv.ListInvestments)
	auth.GET("/investments/:id", inv.GetInvestment)
	auth.POST("/investments/:id/withdrawals", inv.Withdraw)
	auth.GET("/referrals/stats", ref.GetStats)
	auth.POST("/referrals/withdrawals", ref.Withdraw)
	auth.GET("/withdrawals", wd.ListWithdrawals)
	auth.GET("/withdrawals/:id", wd.GetWithdrawal)

	admin := router.Group("/admin")
	admin.Use(middleware.AuthMiddleware(env.tokens), middleware.AdminMiddleware())
	admin.POST("/approvals/:kind/:id", adm.Decide)
	admin.GET("/queues", adm.GetQueueStats)

	env.router = router
	return env
}

func (e *testEnv) register(t *testing.T, email string) (uuid.UUID, string) {
	t.Helper()
	u, err := e.users.Register(context.Background(), users.RegisterRequest{Email: email})
	require.NoError(t, err)
	token, err := e.tokens.GenerateToken(u.ID, u.Email, false, time.Hour)
	require.NoError(t, err)
	return u.ID, token
}

func (e *testEnv) adminToken(t *testing.T) string {
	t.Helper()
	token, err := e.tokens.GenerateToken(uuid.New(), "ops@example.com", true, time.Hour)
	require.NoError(t, err)
	return token
}

func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	e.router.ServeHTTP(recorder, req)
	return recorder
}

type envelope struct {
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Warning string          `json:"warning"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

type investmentView struct {
	Investment struct {
		ID     uuid.UUID `json:"id"`
		Status string    `json:"status"`
		Amount string    `json:"amount"`
	} `json:"investment"`
}

func (e *testEnv) createInvestment(t *testing.T, token string) uuid.UUID {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/investments", token, gin.H{
		"amount":         "500",
		"duration":       3,
		"wallet_address": wallet,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var view investmentView
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &view))
	assert.Equal(t, "PENDING", view.Investment.Status)
	return view.Investment.ID
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{apperrors.Validation("bad"), http.StatusBadRequest},
		{apperrors.NotFound("missing"), http.StatusNotFound},
		{fmt.Errorf("wrapped: %w", apperrors.ErrDuplicatePendingRequest), http.StatusConflict},
		{apperrors.ErrConcurrentModification, http.StatusConflict},
		{apperrors.InvalidState("closed"), http.StatusUnprocessableEntity},
		{apperrors.ErrSameDayUpgrade, http.StatusUnprocessableEntity},
		{apperrors.ExternalApproval(errors.New("telegram down")), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

func TestGetPlans(t *testing.T) {
	env := setupTestRouter(t, nil)
	rec := env.do(t, http.MethodGet, "/plans", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Plans     []planResponse     `json:"plans"`
		Durations []durationResponse `json:"durations"`
	}
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &body))
	require.Len(t, body.Plans, 4)
	assert.Equal(t, rates.Starter, body.Plans[0].Tier)
	assert.Equal(t, "14", body.Plans[0].MonthlyRate.String())
	assert.Len(t, body.Durations, 3)
}

func TestRegisterAndMe(t *testing.T) {
	env := setupTestRouter(t, nil)

	rec := env.do(t, http.MethodPost, "/users", "", gin.H{"email": "Alice@Example.com", "username": "alice"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "https://app.example.com")

	rec = env.do(t, http.MethodPost, "/users", "", gin.H{"email": "not-an-email"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/users", "", gin.H{"email": "bob@example.com", "referral_code": "nobody"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	_, token := env.register(t, "carol@example.com")
	rec = env.do(t, http.MethodGet, "/me", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "carol@example.com")
}

func TestAuthRequired(t *testing.T) {
	env := setupTestRouter(t, nil)

	rec := env.do(t, http.MethodGet, "/investments", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodGet, "/investments", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	_, token := env.register(t, "dave@example.com")
	rec = env.do(t, http.MethodPost, "/admin/approvals/investment/"+uuid.New().String(), token, gin.H{"verdict": "approve"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestInvestmentApprovalFlow(t *testing.T) {
	env := setupTestRouter(t, nil)
	_, token := env.register(t, "erin@example.com")

	id := env.createInvestment(t, token)
	require.Len(t, env.pending, 1)
	assert.Equal(t, approval.KindInvestment, env.pending[0].Kind)
	assert.Equal(t, id, env.pending[0].ID)

	rec := env.do(t, http.MethodPost, "/admin/approvals/investment/"+id.String(), env.adminToken(t), gin.H{"verdict": "approve"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "ops@example.com")

	rec = env.do(t, http.MethodGet, "/investments/"+id.String(), token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var view investmentView
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &view))
	assert.Equal(t, "ACTIVE", view.Investment.Status)

	// approving twice is a state error
	rec = env.do(t, http.MethodPost, "/admin/approvals/investment/"+id.String(), env.adminToken(t), gin.H{"verdict": "approve"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = env.do(t, http.MethodGet, "/investments", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var views []investmentView
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &views))
	assert.Len(t, views, 1)
}

func TestInvestmentOwnership(t *testing.T) {
	env := setupTestRouter(t, nil)
	_, owner := env.register(t, "frank@example.com")
	_, other := env.register(t, "grace@example.com")
	id := env.createInvestment(t, owner)

	rec := env.do(t, http.MethodGet, "/investments/"+id.String(), other, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/investments/not-a-uuid", owner, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateInvestmentValidation(t *testing.T) {
	env := setupTestRouter(t, nil)
	_, token := env.register(t, "heidi@example.com")

	tests := []struct {
		name string
		body gin.H
	}{
		{"below minimum", gin.H{"amount": "50", "duration": 3, "wallet_address": wallet}},
		{"unknown duration", gin.H{"amount": "500", "duration": 5, "wallet_address": wallet}},
		{"bad address", gin.H{"amount": "500", "duration": 3, "wallet_address": "nope"}},
		{"tier mismatch", gin.H{"amount": "500", "duration": 3, "wallet_address": wallet, "tier": "Elite"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/investments", token, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
}

func TestCreateInvestmentApprovalUndelivered(t *testing.T) {
	env := setupTestRouter(t, errors.New("telegram down"))
	_, token := env.register(t, "ivan@example.com")

	rec := env.do(t, http.MethodPost, "/investments", token, gin.H{
		"amount":         "500",
		"duration":       3,
		"wallet_address": wallet,
	})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.NotEmpty(t, body.Warning)

	var view investmentView
	require.NoError(t, json.Unmarshal(body.Data, &view))
	assert.Equal(t, "PENDING", view.Investment.Status)
}

func TestWithdrawOnPendingInvestment(t *testing.T) {
	env := setupTestRouter(t, nil)
	_, token := env.register(t, "judy@example.com")
	id := env.createInvestment(t, token)

	rec := env.do(t, http.MethodPost, "/investments/"+id.String()+"/withdrawals", token, gin.H{
		"kind":    "partial",
		"amount":  "10",
		"address": wallet,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/investments/"+id.String()+"/withdrawals", token, gin.H{
		"kind":    "everything",
		"address": wallet,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/withdrawals", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":null}`, rec.Body.String())
}

func TestReferralEndpoints(t *testing.T) {
	env := setupTestRouter(t, nil)
	_, token := env.register(t, "ken@example.com")

	rec := env.do(t, http.MethodGet, "/referrals/stats", token, nil)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/referrals/withdrawals", token, gin.H{"address": wallet})
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/referrals/withdrawals", token, gin.H{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetWithdrawalNotFound(t *testing.T) {
	env := setupTestRouter(t, nil)
	_, token := env.register(t, "leo@example.com")

	rec := env.do(t, http.MethodGet, "/withdrawals/"+uuid.New().String(), token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDecideValidation(t *testing.T) {
	env := setupTestRouter(t, nil)
	admin := env.adminToken(t)

	rec := env.do(t, http.MethodPost, "/admin/approvals/investment/"+uuid.New().String(), admin, gin.H{"verdict": "maybe"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/admin/approvals/spaceship/"+uuid.New().String(), admin, gin.H{"verdict": "approve"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/admin/approvals/investment/"+uuid.New().String(), admin, gin.H{"verdict": "approve"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

type fakeInspector struct{}

func (fakeInspector) Stats(_ context.Context, jobType queue.JobType) (*queue.QueueStats, error) {
	return &queue.QueueStats{Type: jobType, Waiting: 2}, nil
}

func TestGetQueueStats(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewAdminHandler(nil, fakeInspector{})
	router := gin.New()
	router.GET("/queues", h.GetQueueStats)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/queues", nil)
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Data []queue.QueueStats `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data, 2)
	assert.Equal(t, int64(2), body.Data[0].Waiting)
}
