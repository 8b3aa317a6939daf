package testutil

import (
	"context"
	"time"

	"github.com/flexprice/entitlements/internal/cache"
	"github.com/flexprice/entitlements/internal/config"
	"github.com/flexprice/entitlements/internal/domain/proration"
	"github.com/flexprice/entitlements/internal/lock"
	"github.com/flexprice/entitlements/internal/logger"
	"github.com/flexprice/entitlements/internal/metrics"
	"github.com/flexprice/entitlements/internal/repository/memory"
	"github.com/flexprice/entitlements/internal/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"
)

const (
	TestTenantID      = "tenant_test"
	TestEnvironmentID = "env_test"
	TestUserID        = "user_test"
)

// Stores holds all in-memory repositories used by service tests
type Stores struct {
	LedgerRepo   *memory.LedgerStore
	FeatureRepo  *memory.FeatureStore
	SettingsRepo *memory.SettingsStore
}

// BaseServiceTestSuite provides common functionality for all service test suites
type BaseServiceTestSuite struct {
	suite.Suite
	ctx        context.Context
	stores     Stores
	logger     *logger.Logger
	config     *config.Configuration
	locker     *lock.MemoryLocker
	cache      *cache.InMemoryCache
	billing    *FakeBilling
	publisher  *RecordingPublisher
	calculator proration.Calculator
	registry   *prometheus.Registry
	metrics    *metrics.Metrics
	now        time.Time
}

// SetupTest is called before each test
func (s *BaseServiceTestSuite) SetupTest() {
	s.setupContext()
	s.setupConfig()
	s.setupLogger()
	s.setupStores()
	s.setupCollaborators()
	s.now = time.Now().UTC()
}

// TearDownTest is called after each test
func (s *BaseServiceTestSuite) TearDownTest() {
	s.billing.ReleaseAll()
	s.ClearStores()
}

func (s *BaseServiceTestSuite) setupContext() {
	s.ctx = context.Background()
	s.ctx = types.SetTenantID(s.ctx, TestTenantID)
	s.ctx = types.SetEnvironmentID(s.ctx, TestEnvironmentID)
	s.ctx = types.SetUserID(s.ctx, TestUserID)
	s.ctx = types.SetRequestID(s.ctx, types.GenerateUUID())
}

func (s *BaseServiceTestSuite) setupConfig() {
	s.config = config.GetDefaultConfig()
	// keep retries of the reset job fast
	s.config.Reset.RetryDelay = time.Millisecond
}

func (s *BaseServiceTestSuite) setupLogger() {
	s.logger = logger.NewNoopLogger()
}

func (s *BaseServiceTestSuite) setupStores() {
	s.stores = Stores{
		LedgerRepo:   memory.NewLedgerStore(),
		FeatureRepo:  memory.NewFeatureStore(),
		SettingsRepo: memory.NewSettingsStore(),
	}
}

func (s *BaseServiceTestSuite) setupCollaborators() {
	s.locker = lock.NewMemoryLocker()
	s.cache = cache.NewInMemoryCache()
	s.billing = NewFakeBilling()
	s.publisher = NewRecordingPublisher()
	s.calculator = proration.NewCalculator(s.logger)

	s.registry = prometheus.NewRegistry()
	m, err := metrics.New(s.registry)
	s.Require().NoError(err)
	s.metrics = m
}

// ClearStores removes every item from the in-memory stores and the cache
func (s *BaseServiceTestSuite) ClearStores() {
	s.stores.LedgerRepo.Clear()
	s.stores.FeatureRepo.Clear()
	s.stores.SettingsRepo.Clear()
	s.cache.Flush(s.ctx)
}

func (s *BaseServiceTestSuite) GetContext() context.Context {
	return s.ctx
}

func (s *BaseServiceTestSuite) GetStores() Stores {
	return s.stores
}

func (s *BaseServiceTestSuite) GetLogger() *logger.Logger {
	return s.logger
}

func (s *BaseServiceTestSuite) GetConfig() *config.Configuration {
	return s.config
}

func (s *BaseServiceTestSuite) GetLocker() *lock.MemoryLocker {
	return s.locker
}

func (s *BaseServiceTestSuite) GetCache() *cache.InMemoryCache {
	return s.cache
}

func (s *BaseServiceTestSuite) GetBilling() *FakeBilling {
	return s.billing
}

func (s *BaseServiceTestSuite) GetPublisher() *RecordingPublisher {
	return s.publisher
}

func (s *BaseServiceTestSuite) GetCalculator() proration.Calculator {
	return s.calculator
}

func (s *BaseServiceTestSuite) GetMetrics() *metrics.Metrics {
	return s.metrics
}

func (s *BaseServiceTestSuite) GetRegistry() *prometheus.Registry {
	return s.registry
}

// GetNow returns the time captured when the test started
func (s *BaseServiceTestSuite) GetNow() time.Time {
	return s.now
}
