package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/flexprice/entitlements/internal/api/cron"
	"github.com/flexprice/entitlements/internal/api/dto"
	v1 "github.com/flexprice/entitlements/internal/api/v1"
	ierr "github.com/flexprice/entitlements/internal/errors"
	"github.com/flexprice/entitlements/internal/rest/middleware"
	"github.com/flexprice/entitlements/internal/service"
	"github.com/flexprice/entitlements/internal/testutil"
	"github.com/flexprice/entitlements/internal/types"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/suite"
)

type RouterSuite struct {
	testutil.BaseServiceTestSuite
	router *gin.Engine
}

func TestRouter(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

func (s *RouterSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	s.buildRouter(nil)

	ctx := s.GetContext()
	s.NoError(s.GetStores().FeatureRepo.Create(ctx, testutil.MeteredFeature(ctx, "api_calls")))
	s.NoError(s.GetStores().LedgerRepo.Create(ctx, testutil.NewLedgerRow(ctx, "row_api", "cus_1", "api_calls", "100")))
}

func (s *RouterSuite) buildRouter(limiter *middleware.RateLimiter) {
	stores := s.GetStores()
	params := service.NewServiceParams(
		s.GetLogger(),
		s.GetConfig(),
		stores.LedgerRepo,
		stores.FeatureRepo,
		stores.SettingsRepo,
		s.GetLocker(),
		s.GetCache(),
		s.GetBilling(),
		s.GetPublisher(),
		s.GetCalculator(),
		s.GetMetrics(),
	)
	balances := service.NewBalanceService(params)
	resets := service.NewResetService(params)

	s.router = NewRouter(Handlers{
		Balance:     v1.NewBalanceHandler(balances, limiter, s.GetLogger()),
		Product:     v1.NewProductHandler(resets, s.GetLogger()),
		CronBalance: cron.NewBalanceCronHandler(resets, s.GetLogger()),
	}, s.GetConfig(), s.GetLogger(), s.GetRegistry())
}

func (s *RouterSuite) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(types.HeaderTenant, testutil.TestTenantID)
	req.Header.Set(types.HeaderEnvironment, testutil.TestEnvironmentID)

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *RouterSuite) TestTrackAndCheck() {
	w := s.do(http.MethodPost, "/v1/balances/track", map[string]interface{}{
		"customer_id": "cus_1",
		"feature_id":  "api_calls",
		"value":       "40",
	})
	s.Equal(http.StatusOK, w.Code, w.Body.String())

	var tracked dto.BalanceResponse
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &tracked))
	s.True(testutil.D("60").Equal(*tracked.CurrentBalance))

	w = s.do(http.MethodGet, "/v1/balances/check?customer_id=cus_1&feature_id=api_calls&required_balance=61", nil)
	s.Equal(http.StatusOK, w.Code, w.Body.String())

	var checked dto.BalanceResponse
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &checked))
	s.False(checked.Allowed)
	s.True(testutil.D("40").Equal(*checked.Usage))
}

func (s *RouterSuite) TestErrorStatuses() {
	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
		status int
		code   string
	}{
		{
			name:   "malformed body",
			method: http.MethodPost,
			path:   "/v1/balances/track",
			body:   "not an object",
			status: http.StatusBadRequest,
			code:   ierr.ErrCodeValidation,
		},
		{
			name:   "unknown feature",
			method: http.MethodPost,
			path:   "/v1/balances/track",
			body:   map[string]interface{}{"customer_id": "cus_1", "feature_id": "missing", "value": "1"},
			status: http.StatusNotFound,
			code:   ierr.ErrCodeNotFound,
		},
		{
			name:   "bad required balance",
			method: http.MethodGet,
			path:   "/v1/balances/check?customer_id=cus_1&feature_id=api_calls&required_balance=abc",
			status: http.StatusBadRequest,
			code:   ierr.ErrCodeValidation,
		},
		{
			name:   "reject overage",
			method: http.MethodPost,
			path:   "/v1/balances/track",
			body: map[string]interface{}{
				"customer_id":      "cus_1",
				"feature_id":       "api_calls",
				"value":            "500",
				"overage_behavior": "reject",
			},
			status: http.StatusPaymentRequired,
			code:   ierr.ErrCodeInsufficientBalance,
		},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			w := s.do(tt.method, tt.path, tt.body)
			s.Equal(tt.status, w.Code, w.Body.String())

			var resp ierr.ErrorResponse
			s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
			s.Equal(tt.code, resp.Error.Code)
		})
	}
}

func (s *RouterSuite) TestRateLimitedCustomer() {
	s.buildRouter(middleware.NewRateLimiter(0.001, 1))

	body := map[string]interface{}{"customer_id": "cus_1", "feature_id": "api_calls", "value": "1"}
	s.Equal(http.StatusOK, s.do(http.MethodPost, "/v1/balances/track", body).Code)
	s.Equal(http.StatusTooManyRequests, s.do(http.MethodPost, "/v1/balances/track", body).Code)
}

func (s *RouterSuite) TestCronReset() {
	w := s.do(http.MethodPost, "/v1/cron/balances/reset", map[string]interface{}{
		"now": time.Now().UTC().AddDate(0, 2, 0),
	})
	s.Equal(http.StatusOK, w.Code, w.Body.String())

	var resp dto.ResetBalancesResponse
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	s.Equal(0, resp.Failed)

	w = s.do(http.MethodPost, "/v1/cron/balances/reset", nil)
	s.Equal(http.StatusOK, w.Code, w.Body.String())
}

func (s *RouterSuite) TestMetricsEndpoint() {
	s.do(http.MethodPost, "/v1/balances/track", map[string]interface{}{
		"customer_id": "cus_1",
		"feature_id":  "api_calls",
		"value":       "1",
	})

	w := s.do(http.MethodGet, "/metrics", nil)
	s.Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), "entitlements_")
}
