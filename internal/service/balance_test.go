package service

import (
	"errors"
	"testing"
	"time"

	"github.com/flexprice/entitlements/internal/api/dto"
	"github.com/flexprice/entitlements/internal/domain/events"
	"github.com/flexprice/entitlements/internal/domain/ledger"
	"github.com/flexprice/entitlements/internal/domain/price"
	ierr "github.com/flexprice/entitlements/internal/errors"
	"github.com/flexprice/entitlements/internal/testutil"
	"github.com/flexprice/entitlements/internal/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
)

const testCustomerID = "cus_test"

type BalanceServiceSuite struct {
	testutil.BaseServiceTestSuite
	service BalanceService
}

func TestBalanceService(t *testing.T) {
	suite.Run(t, new(BalanceServiceSuite))
}

func (s *BalanceServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	s.service = NewBalanceService(newTestServiceParams(&s.BaseServiceTestSuite))
}

func (s *BalanceServiceSuite) TearDownTest() {
	s.BaseServiceTestSuite.TearDownTest()
}

func newTestServiceParams(base *testutil.BaseServiceTestSuite) ServiceParams {
	stores := base.GetStores()
	return NewServiceParams(
		base.GetLogger(),
		base.GetConfig(),
		stores.LedgerRepo,
		stores.FeatureRepo,
		stores.SettingsRepo,
		base.GetLocker(),
		base.GetCache(),
		base.GetBilling(),
		base.GetPublisher(),
		base.GetCalculator(),
		base.GetMetrics(),
	)
}

func (s *BalanceServiceSuite) createMetered(id string) {
	s.NoError(s.GetStores().FeatureRepo.Create(s.GetContext(), testutil.MeteredFeature(s.GetContext(), id)))
}

func (s *BalanceServiceSuite) createRow(row *ledger.CustomerEntitlement) *ledger.CustomerEntitlement {
	s.NoError(s.GetStores().LedgerRepo.Create(s.GetContext(), row))
	return row
}

func (s *BalanceServiceSuite) storedRow(id string) *ledger.CustomerEntitlement {
	row, err := s.GetStores().LedgerRepo.Get(s.GetContext(), id)
	s.Require().NoError(err)
	return row
}

func (s *BalanceServiceSuite) track(featureID, value string) (*dto.BalanceResponse, error) {
	return s.service.DeductUsage(s.GetContext(), &dto.TrackUsageRequest{
		CustomerID: testCustomerID,
		FeatureID:  featureID,
		Value:      testutil.D(value),
	})
}

func (s *BalanceServiceSuite) assertDecimal(want string, got *decimal.Decimal, msgAndArgs ...interface{}) {
	s.Require().NotNil(got, msgAndArgs...)
	s.True(testutil.D(want).Equal(*got), "want %s, got %s", want, got.String())
}

func (s *BalanceServiceSuite) TestDeductUsageOverageUpToUsageLimit() {
	s.createMetered("api_calls")
	s.createRow(testutil.NewLedgerRow(s.GetContext(), "row_api", testCustomerID, "api_calls", "5",
		testutil.WithUsageAllowed(),
		testutil.WithUsageLimit("10"),
	))

	resp, err := s.track("api_calls", "7")
	s.NoError(err)
	s.assertDecimal("-2", resp.CurrentBalance)
	s.assertDecimal("7", resp.Usage)
	s.assertDecimal("0", resp.Shortfall)
	s.True(resp.Allowed)

	resp, err = s.track("api_calls", "3")
	s.NoError(err)
	s.assertDecimal("-5", resp.CurrentBalance)
	s.assertDecimal("10", resp.Usage)

	resp, err = s.track("api_calls", "1")
	s.NoError(err, "cap clamps at the usage limit instead of failing")
	s.assertDecimal("0", resp.Applied)
	s.assertDecimal("1", resp.Shortfall)
	s.assertDecimal("10", resp.Usage)

	s.Equal("-5", s.storedRow("row_api").Balance.String())
}

func (s *BalanceServiceSuite) TestDeductUsageRejectIsAllOrNothing() {
	s.createMetered("exports")
	s.createRow(testutil.NewLedgerRow(s.GetContext(), "row_exports", testCustomerID, "exports", "5"))

	_, err := s.service.DeductUsage(s.GetContext(), &dto.TrackUsageRequest{
		CustomerID:      testCustomerID,
		FeatureID:       "exports",
		Value:           testutil.D("7"),
		OverageBehavior: types.OverageBehaviorReject,
	})
	s.Error(err)
	s.True(ierr.IsInsufficientBalance(err))

	row := s.storedRow("row_exports")
	s.Equal("5", row.Balance.String())
	s.Equal(int64(1), row.Version)
	s.Empty(s.GetPublisher().Events())
}

func (s *BalanceServiceSuite) TestDeductUsageUnlimitedIsSkipped() {
	s.createMetered("projects")
	s.createRow(testutil.NewLedgerRow(s.GetContext(), "row_projects", testCustomerID, "projects", "0",
		testutil.WithUnlimited(),
	))

	resp, err := s.track("projects", "1000")
	s.NoError(err)
	s.True(resp.Unlimited)
	s.True(resp.Allowed)
	s.Nil(resp.Usage)
	s.Equal(int64(1), s.storedRow("row_projects").Version)
}

func (s *BalanceServiceSuite) TestDeductUsageWithoutEntitlement() {
	s.createMetered("api_calls")

	_, err := s.track("api_calls", "1")
	s.Error(err)
	s.True(ierr.IsNotFound(err))
}

func (s *BalanceServiceSuite) TestDeductUsageHonorsTenantDeductionOrder() {
	s.createMetered("messages")
	older := s.GetNow().Add(-2 * time.Hour)
	newer := s.GetNow().Add(-time.Hour)
	s.createRow(testutil.NewLedgerRow(s.GetContext(), "row_old", testCustomerID, "messages", "10", testutil.WithCreatedAt(older)))
	s.createRow(testutil.NewLedgerRow(s.GetContext(), "row_new", testCustomerID, "messages", "10", testutil.WithCreatedAt(newer)))

	cfg := types.DefaultLedgerConfig()
	cfg.DeductionOrder = types.DeductionOrderReversed
	s.NoError(s.GetStores().SettingsRepo.Upsert(s.GetContext(), testutil.LedgerConfigSetting(s.GetContext(), cfg)))

	_, err := s.track("messages", "4")
	s.NoError(err)

	s.Equal("10", s.storedRow("row_old").Balance.String())
	s.Equal("6", s.storedRow("row_new").Balance.String())
}

func (s *BalanceServiceSuite) TestDeductUsageCreditSystemFallback() {
	s.createMetered("api_calls")
	credits := testutil.CreditSystemFeature(s.GetContext(), "credits", map[string]string{"api_calls": "0.2"})
	s.NoError(s.GetStores().FeatureRepo.Create(s.GetContext(), credits))
	s.createRow(testutil.NewLedgerRow(s.GetContext(), "row_credits", testCustomerID, "credits", "100"))

	resp, err := s.track("api_calls", "50")
	s.NoError(err)
	s.Equal("credits", resp.EffectiveFeatureID)
	s.assertDecimal("10", resp.Usage)
	s.assertDecimal("90", resp.CurrentBalance)
	s.assertDecimal("50", resp.Applied)

	s.Equal("90", s.storedRow("row_credits").Balance.String())
}

func (s *BalanceServiceSuite) TestDeductUsagePublishesBalanceEvent() {
	s.createMetered("api_calls")
	s.createRow(testutil.NewLedgerRow(s.GetContext(), "row_api", testCustomerID, "api_calls", "10"))

	_, err := s.track("api_calls", "3")
	s.NoError(err)

	published := s.GetPublisher().Events()
	s.Require().Len(published, 1)
	s.Equal(events.OperationDeduct, published[0].Operation)
	s.Equal(testutil.TestTenantID, published[0].TenantID)
	s.Equal(testCustomerID, published[0].CustomerID)
	s.assertDecimal("7", published[0].Balance.CurrentBalance)
}

func (s *BalanceServiceSuite) TestDeductUsageSurvivesPublishFailure() {
	s.createMetered("api_calls")
	s.createRow(testutil.NewLedgerRow(s.GetContext(), "row_api", testCustomerID, "api_calls", "10"))
	s.GetPublisher().FailWith(errors.New("broker unavailable"))

	resp, err := s.track("api_calls", "3")
	s.NoError(err)
	s.assertDecimal("7", resp.CurrentBalance)
	s.Equal("7", s.storedRow("row_api").Balance.String())
}

func (s *BalanceServiceSuite) TestDeductUsageFailsFastWhenLocked() {
	s.createMetered("api_calls")
	s.createRow(testutil.NewLedgerRow(s.GetContext(), "row_api", testCustomerID, "api_calls", "10"))

	key := types.FeatureLedgerLockKey(s.GetContext(), testCustomerID, "api_calls")
	guard, ok, err := s.GetLocker().TryLock(s.GetContext(), key)
	s.Require().NoError(err)
	s.Require().True(ok)
	defer guard.Release(s.GetContext())

	_, err = s.track("api_calls", "1")
	s.Error(err)
	s.True(ierr.IsLockContention(err))
	s.True(ierr.IsRetryable(err))
	s.Equal("10", s.storedRow("row_api").Balance.String())
}

func (s *BalanceServiceSuite) TestFeatureLockCoversEveryEntity() {
	s.createMetered("messages")
	s.createRow(testutil.NewLedgerRow(s.GetContext(), "row_msg", testCustomerID, "messages", "10",
		testutil.WithEntities("seats", "seat_a", "seat_b"),
	))

	key := types.FeatureLedgerLockKey(s.GetContext(), testCustomerID, "messages")
	guard, ok, err := s.GetLocker().TryLock(s.GetContext(), key)
	s.Require().NoError(err)
	s.Require().True(ok)

	for _, entityID := range []string{"seat_a", "seat_b"} {
		_, err := s.service.DeductUsage(s.GetContext(), &dto.TrackUsageRequest{
			CustomerID: testCustomerID,
			FeatureID:  "messages",
			EntityID:   entityID,
			Value:      testutil.D("1"),
		})
		s.Error(err)
		s.True(ierr.IsLockContention(err), entityID)
	}
	s.NoError(guard.Release(s.GetContext()))

	resp, err := s.service.DeductUsage(s.GetContext(), &dto.TrackUsageRequest{
		CustomerID: testCustomerID,
		FeatureID:  "messages",
		EntityID:   "seat_a",
		Value:      testutil.D("1"),
	})
	s.Require().NoError(err)
	s.assertDecimal("9", resp.CurrentBalance)
}

func (s *BalanceServiceSuite) TestUpdateBalanceKeepsUsage() {
	s.createMetered("messages")
	s.createRow(testutil.NewLedgerRow(s.GetContext(), "row_messages", testCustomerID, "messages", "100"))

	resp, err := s.track("messages", "30")
	s.NoError(err)
	s.assertDecimal("70", resp.CurrentBalance)
	s.assertDecimal("30", resp.Usage)

	resp, err = s.service.UpdateBalance(s.GetContext(), &dto.SetBalanceRequest{
		CustomerID:     testCustomerID,
		FeatureID:      "messages",
		CurrentBalance: testutil.D("50"),
	})
	s.NoError(err)
	s.assertDecimal("80", resp.GrantedBalance)
	s.assertDecimal("50", resp.CurrentBalance)
	s.assertDecimal("30", resp.Usage)

	row := s.storedRow("row_messages")
	s.Equal("50", row.Balance.String())
	s.Equal("-20", row.Adjustment.String())
}

func (s *BalanceServiceSuite) TestUpdateBalanceRejectsBooleanAndUnlimited() {
	s.NoError(s.GetStores().FeatureRepo.Create(s.GetContext(), testutil.BooleanFeature(s.GetContext(), "sso")))
	s.createRow(testutil.NewLedgerRow(s.GetContext(), "row_sso", testCustomerID, "sso", "0"))
	s.createMetered("projects")
	s.createRow(testutil.NewLedgerRow(s.GetContext(), "row_projects", testCustomerID, "projects", "0", testutil.WithUnlimited()))

	for _, featureID := range []string{"sso", "projects"} {
		s.Run(featureID, func() {
			_, err := s.service.UpdateBalance(s.GetContext(), &dto.SetBalanceRequest{
				CustomerID:     testCustomerID,
				FeatureID:      featureID,
				CurrentBalance: testutil.D("5"),
			})
			s.Error(err)
			s.True(ierr.IsInvalidOperation(err))
		})
	}
}

func (s *BalanceServiceSuite) TestUpdateUsage() {
	s.createMetered("messages")
	s.createRow(testutil.NewLedgerRow(s.GetContext(), "row_messages", testCustomerID, "messages", "100"))

	tests := []struct {
		name    string
		usage   string
		current string
	}{
		{name: "raise usage", usage: "40", current: "60"},
		{name: "lower usage refunds", usage: "15", current: "85"},
		{name: "same usage is a no-op", usage: "15", current: "85"},
		{name: "back to zero", usage: "0", current: "100"},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			resp, err := s.service.UpdateUsage(s.GetContext(), &dto.SetUsageRequest{
				CustomerID: testCustomerID,
				FeatureID:  "messages",
				Usage:      testutil.D(tt.usage),
			})
			s.NoError(err)
			s.assertDecimal(tt.usage, resp.Usage)
			s.assertDecimal(tt.current, resp.CurrentBalance)
		})
	}
}

func (s *BalanceServiceSuite) TestUpdateUsageThroughCreditSystem() {
	s.createMetered("api_calls")
	credits := testutil.CreditSystemFeature(s.GetContext(), "credits", map[string]string{"api_calls": "0.2"})
	s.NoError(s.GetStores().FeatureRepo.Create(s.GetContext(), credits))
	s.createRow(testutil.NewLedgerRow(s.GetContext(), "row_credits", testCustomerID, "credits", "100"))

	resp, err := s.service.UpdateUsage(s.GetContext(), &dto.SetUsageRequest{
		CustomerID: testCustomerID,
		FeatureID:  "api_calls",
		Usage:      testutil.D("20"),
	})
	s.NoError(err)
	s.assertDecimal("20", resp.Usage, "usage is reported in credits")
	s.assertDecimal("80", resp.CurrentBalance)
	s.assertDecimal("100", resp.Applied, "100 api calls cost 20 credits")
}

func (s *BalanceServiceSuite) TestCheckBalance() {
	s.createMetered("api_calls")
	s.createRow(testutil.NewLedgerRow(s.GetContext(), "row_api", testCustomerID, "api_calls", "10"))

	tests := []struct {
		name     string
		required *decimal.Decimal
		allowed  bool
	}{
		{name: "default requires one unit", allowed: true},
		{name: "exact balance", required: types.DecimalPtr(testutil.D("10")), allowed: true},
		{name: "more than balance", required: types.DecimalPtr(testutil.D("11")), allowed: false},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			resp, err := s.service.CheckBalance(s.GetContext(), &dto.CheckBalanceRequest{
				CustomerID:      testCustomerID,
				FeatureID:       "api_calls",
				RequiredBalance: tt.required,
			})
			s.NoError(err)
			s.Equal(tt.allowed, resp.Allowed)
			s.assertDecimal("10", resp.CurrentBalance)
		})
	}
}

func (s *BalanceServiceSuite) TestCheckBalanceIsCachedUntilNextMutation() {
	s.createMetered("api_calls")
	s.createRow(testutil.NewLedgerRow(s.GetContext(), "row_api", testCustomerID, "api_calls", "10"))

	check := func() *dto.BalanceResponse {
		resp, err := s.service.CheckBalance(s.GetContext(), &dto.CheckBalanceRequest{
			CustomerID: testCustomerID,
			FeatureID:  "api_calls",
		})
		s.Require().NoError(err)
		return resp
	}

	s.assertDecimal("10", check().CurrentBalance)

	// a write that bypasses the service is not seen while the snapshot is cached
	row := s.storedRow("row_api")
	row.Balance = testutil.D("4")
	s.NoError(s.GetStores().LedgerRepo.Save(s.GetContext(), []*ledger.CustomerEntitlement{row}))
	s.assertDecimal("10", check().CurrentBalance)

	_, err := s.track("api_calls", "1")
	s.NoError(err)
	s.assertDecimal("3", check().CurrentBalance)
}

func (s *BalanceServiceSuite) TestCheckEntityCreation() {
	s.createMetered("workspaces")
	s.createRow(testutil.NewLedgerRow(s.GetContext(), "row_workspaces", testCustomerID, "workspaces", "3"))
	s.createMetered("members")
	s.createRow(testutil.NewLedgerRow(s.GetContext(), "row_members", testCustomerID, "members", "0", testutil.WithUnlimited()))

	s.Run("fits", func() {
		resp, err := s.service.CheckEntityCreation(s.GetContext(), &dto.EntityCheckRequest{
			CustomerID: testCustomerID, FeatureID: "workspaces", Count: 2,
		})
		s.NoError(err)
		s.True(resp.Allowed)
		s.assertDecimal("1", resp.Remaining)
	})

	s.Run("over the limit", func() {
		_, err := s.service.CheckEntityCreation(s.GetContext(), &dto.EntityCheckRequest{
			CustomerID: testCustomerID, FeatureID: "workspaces", Count: 4,
		})
		s.Error(err)
		s.True(ierr.IsFeatureLimitReached(err))
	})

	s.Run("unlimited", func() {
		resp, err := s.service.CheckEntityCreation(s.GetContext(), &dto.EntityCheckRequest{
			CustomerID: testCustomerID, FeatureID: "members", Count: 1000,
		})
		s.NoError(err)
		s.True(resp.Allowed)
		s.True(resp.Unlimited)
	})

	s.Equal("3", s.storedRow("row_workspaces").Balance.String(), "checks never change the ledger")
}

// createSeats attaches a seat row billed at $10 per seat beyond the allowance.
func (s *BalanceServiceSuite) createSeats(allowance string, cfg *price.ProrationConfig, opts ...testutil.RowOption) *ledger.CustomerEntitlement {
	s.NoError(s.GetStores().FeatureRepo.Create(s.GetContext(), testutil.ContinuousFeature(s.GetContext(), "seats")))
	opts = append([]testutil.RowOption{
		testutil.WithUsageAllowed(),
		testutil.WithPrice(testutil.SeatPrice("seats", "10", cfg)),
		testutil.WithNextResetAt(s.GetNow().AddDate(0, 0, 15)),
	}, opts...)
	return s.createRow(testutil.NewLedgerRow(s.GetContext(), "row_seats", testCustomerID, "seats", allowance, opts...))
}

func (s *BalanceServiceSuite) setSeats(quantity int64) (*dto.QuantityChangeResponse, error) {
	return s.service.UpdateQuantity(s.GetContext(), &dto.QuantityChangeRequest{
		CustomerID: testCustomerID,
		FeatureID:  "seats",
		Quantity:   decimal.NewFromInt(quantity),
	})
}

func billImmediately() *price.ProrationConfig {
	return &price.ProrationConfig{
		OnIncrease: types.ProrationOnIncreaseBillImmediately,
		OnDecrease: types.ProrationOnDecreaseNone,
	}
}

func (s *BalanceServiceSuite) TestUpdateQuantityConcurrentCallsFailFast() {
	s.createSeats("0", billImmediately())
	s.GetBilling().Block()

	type outcome struct {
		resp *dto.QuantityChangeResponse
		err  error
	}
	results := make(chan outcome, 5)
	for i := 0; i < 5; i++ {
		go func() {
			resp, err := s.setSeats(2)
			results <- outcome{resp: resp, err: err}
		}()
	}

	// one call holds the lock inside the billing provider; the rest fail fast
	<-s.GetBilling().Entered()
	for i := 0; i < 4; i++ {
		res := <-results
		s.Error(res.err)
		s.True(ierr.IsLockContention(res.err))
	}

	s.GetBilling().ReleaseAll()
	winner := <-results
	s.Require().NoError(winner.err)
	s.assertDecimal("2", winner.resp.Balance.Usage)
	s.NotEmpty(winner.resp.ChargeID)

	resp, err := s.setSeats(4)
	s.Require().NoError(err)
	s.assertDecimal("4", resp.Balance.Usage)

	charges := s.GetBilling().Charges()
	s.Require().Len(charges, 2)
	s.True(testutil.D("20").Equal(charges[0].Amount))
	s.True(testutil.D("20").Equal(charges[1].Amount))
	s.NotEqual(charges[0].IdempotencyKey, charges[1].IdempotencyKey)
	s.Equal("-4", s.storedRow("row_seats").Balance.String())
}

func (s *BalanceServiceSuite) TestTrackSeatsConcurrentCallsFailFast() {
	s.createSeats("0", billImmediately())
	s.GetBilling().Block()

	type outcome struct {
		resp *dto.BalanceResponse
		err  error
	}
	results := make(chan outcome, 5)
	for i := 0; i < 5; i++ {
		go func() {
			resp, err := s.track("seats", "2")
			results <- outcome{resp: resp, err: err}
		}()
	}

	<-s.GetBilling().Entered()
	for i := 0; i < 4; i++ {
		res := <-results
		s.Error(res.err)
		s.True(ierr.IsLockContention(res.err))
	}

	s.GetBilling().ReleaseAll()
	winner := <-results
	s.Require().NoError(winner.err)
	s.assertDecimal("2", winner.resp.Usage)
	s.assertDecimal("2", winner.resp.Applied)
	s.NotEmpty(winner.resp.ChargeID)

	resp, err := s.track("seats", "2")
	s.Require().NoError(err)
	s.assertDecimal("4", resp.Usage)

	charges := s.GetBilling().Charges()
	s.Require().Len(charges, 2)
	s.True(testutil.D("20").Equal(charges[0].Amount))
	s.True(testutil.D("20").Equal(charges[1].Amount))
	s.Equal("-4", s.storedRow("row_seats").Balance.String())
	s.Len(s.GetPublisher().Events(), 2)
}

func (s *BalanceServiceSuite) TestTrackSeatsRollsBackOnBillingFailure() {
	s.createSeats("0", billImmediately())
	s.GetBilling().FailWith(errors.New("card declined"))

	_, err := s.track("seats", "3")
	s.Error(err)
	s.True(ierr.IsBillingSideEffectFailed(err))
	s.Equal("0", s.storedRow("row_seats").Balance.String())
	s.Empty(s.GetPublisher().Events())
	s.False(s.GetLocker().Held(types.FeatureLedgerLockKey(s.GetContext(), testCustomerID, "seats")))
}

func (s *BalanceServiceSuite) TestTrackSeatsAlwaysRejectsOverage() {
	s.createSeats("0", billImmediately(), testutil.WithUsageLimit("3"))

	_, err := s.service.DeductUsage(s.GetContext(), &dto.TrackUsageRequest{
		CustomerID:      testCustomerID,
		FeatureID:       "seats",
		Value:           testutil.D("5"),
		OverageBehavior: types.OverageBehaviorCap,
	})
	s.Error(err)
	s.True(ierr.IsInsufficientBalance(err))
	s.Equal("0", s.storedRow("row_seats").Balance.String())
	s.Empty(s.GetBilling().Charges())

	resp, err := s.track("seats", "3")
	s.Require().NoError(err)
	s.assertDecimal("3", resp.Usage)
	s.Len(s.GetBilling().Charges(), 1)
}

func (s *BalanceServiceSuite) TestTrackSingleUsePriceIsNotBilled() {
	s.createMetered("api_calls")
	s.createRow(testutil.NewLedgerRow(s.GetContext(), "row_api", testCustomerID, "api_calls", "5",
		testutil.WithUsageAllowed(),
		testutil.WithPrice(testutil.SeatPrice("api_calls", "0.01", nil)),
	))

	resp, err := s.track("api_calls", "7")
	s.Require().NoError(err)
	s.assertDecimal("-2", resp.CurrentBalance)
	s.Empty(resp.ChargeID)
	s.Empty(s.GetBilling().Charges(), "single use overage is billed in arrears")
}

func (s *BalanceServiceSuite) TestUpdateQuantityRollsBackOnBillingFailure() {
	s.createSeats("0", billImmediately())
	s.GetBilling().FailWith(errors.New("card declined"))

	_, err := s.setSeats(3)
	s.Error(err)
	s.True(ierr.IsBillingSideEffectFailed(err))

	row := s.storedRow("row_seats")
	s.Equal("0", row.Balance.String())
	s.Empty(s.GetPublisher().Events())
	s.False(s.GetLocker().Held(types.FeatureLedgerLockKey(s.GetContext(), testCustomerID, "seats")))

	// the rolled back row is still usable
	s.GetBilling().FailWith(nil)
	resp, err := s.setSeats(1)
	s.NoError(err)
	s.assertDecimal("1", resp.Balance.Usage)
}

func (s *BalanceServiceSuite) TestUpdateQuantityReusesFreedSeats() {
	s.createSeats("0", billImmediately())

	_, err := s.setSeats(4)
	s.Require().NoError(err)

	resp, err := s.setSeats(2)
	s.Require().NoError(err)
	s.Equal(2, resp.Proration.NewReplaceables)
	s.assertDecimal("2", resp.Balance.Usage)
	s.Len(s.storedRow("row_seats").Replaceables, 2)

	resp, err = s.setSeats(3)
	s.Require().NoError(err)
	s.Equal(1, resp.Proration.ReplaceablesUsed)
	s.True(resp.Proration.Amount.IsZero(), "a freed seat is already paid for")
	s.assertDecimal("3", resp.Balance.Usage)
	s.Len(s.storedRow("row_seats").Replaceables, 1)

	s.Len(s.GetBilling().Charges(), 1, "only the first increase is billed")
}

func (s *BalanceServiceSuite) TestUpdateQuantityRefundsDecrease() {
	s.createSeats("0", &price.ProrationConfig{
		OnIncrease: types.ProrationOnIncreaseBillImmediately,
		OnDecrease: types.ProrationOnDecreaseRefundImmediately,
	})

	_, err := s.setSeats(5)
	s.Require().NoError(err)

	resp, err := s.setSeats(2)
	s.Require().NoError(err)
	s.Equal(0, resp.Proration.NewReplaceables)
	s.assertDecimal("2", resp.Balance.Usage)

	charges := s.GetBilling().Charges()
	s.Require().Len(charges, 2)
	s.True(testutil.D("-30").Equal(charges[1].Amount), "decrease credits 3 seats")
}

func (s *BalanceServiceSuite) TestUpdateQuantityDefersNextCycleCharges() {
	s.createSeats("0", &price.ProrationConfig{OnIncrease: types.ProrationOnIncreaseBillNextCycle})

	resp, err := s.setSeats(2)
	s.Require().NoError(err)
	s.True(resp.Proration.Amount.IsZero())

	charges := s.GetBilling().Charges()
	s.Require().Len(charges, 1)
	s.True(charges[0].Deferred)
	s.True(testutil.D("20").Equal(charges[0].Amount))
}

func (s *BalanceServiceSuite) TestUpdateQuantityWithinAllowanceIsFree() {
	s.createSeats("3", billImmediately())

	resp, err := s.setSeats(2)
	s.Require().NoError(err)
	s.True(resp.Proration.Amount.IsZero())
	s.Empty(resp.ChargeID)
	s.assertDecimal("1", resp.Balance.CurrentBalance)
	s.Empty(s.GetBilling().Charges())
}

func (s *BalanceServiceSuite) TestPreviewQuantityChangeDoesNotApply() {
	s.createSeats("0", billImmediately())

	resp, err := s.service.PreviewQuantityChange(s.GetContext(), &dto.QuantityChangeRequest{
		CustomerID: testCustomerID,
		FeatureID:  "seats",
		Quantity:   decimal.NewFromInt(3),
	})
	s.Require().NoError(err)
	s.Nil(resp.Balance)
	s.True(testutil.D("30").Equal(resp.Proration.Amount))

	s.Equal("0", s.storedRow("row_seats").Balance.String())
	s.Empty(s.GetBilling().Charges())
}

func (s *BalanceServiceSuite) TestUpdateQuantityRequiresPrice() {
	s.createMetered("seats")
	s.createRow(testutil.NewLedgerRow(s.GetContext(), "row_seats", testCustomerID, "seats", "5"))

	_, err := s.setSeats(2)
	s.Error(err)
	s.True(ierr.IsInvalidOperation(err))
	s.Equal(int64(1), s.storedRow("row_seats").Version)
}

func (s *BalanceServiceSuite) TestOperationsValidateRequests() {
	tests := []struct {
		name string
		call func() error
	}{
		{
			name: "zero usage",
			call: func() error {
				_, err := s.track("api_calls", "0")
				return err
			},
		},
		{
			name: "negative usage target",
			call: func() error {
				_, err := s.service.UpdateUsage(s.GetContext(), &dto.SetUsageRequest{
					CustomerID: testCustomerID, FeatureID: "api_calls", Usage: testutil.D("-1"),
				})
				return err
			},
		},
		{
			name: "fractional quantity",
			call: func() error {
				_, err := s.service.UpdateQuantity(s.GetContext(), &dto.QuantityChangeRequest{
					CustomerID: testCustomerID, FeatureID: "seats", Quantity: testutil.D("1.5"),
				})
				return err
			},
		},
		{
			name: "missing customer",
			call: func() error {
				_, err := s.service.CheckBalance(s.GetContext(), &dto.CheckBalanceRequest{FeatureID: "api_calls"})
				return err
			},
		},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			err := tt.call()
			s.Error(err)
			s.True(ierr.IsValidation(err))
		})
	}
}

func (s *BalanceServiceSuite) TestEventsCarryOperation() {
	s.createMetered("messages")
	s.createRow(testutil.NewLedgerRow(s.GetContext(), "row_messages", testCustomerID, "messages", "100"))

	_, err := s.track("messages", "10")
	s.NoError(err)
	_, err = s.service.UpdateBalance(s.GetContext(), &dto.SetBalanceRequest{
		CustomerID: testCustomerID, FeatureID: "messages", CurrentBalance: testutil.D("100"),
	})
	s.NoError(err)
	_, err = s.service.UpdateUsage(s.GetContext(), &dto.SetUsageRequest{
		CustomerID: testCustomerID, FeatureID: "messages", Usage: testutil.D("0"),
	})
	s.NoError(err)

	ops := lo.Map(s.GetPublisher().Events(), func(e *events.BalanceUpdated, _ int) events.BalanceOperation {
		return e.Operation
	})
	s.Equal([]events.BalanceOperation{
		events.OperationDeduct,
		events.OperationSetBalance,
		events.OperationSetUsage,
	}, ops)
}
