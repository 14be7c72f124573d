package app

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"agencydesk/api/internal/config"
	"agencydesk/api/internal/hawksync"
	"agencydesk/api/internal/runlog"
	"agencydesk/api/internal/store"
)

type dataStore interface {
	Ping(ctx context.Context) error
	ListCustomers(ctx context.Context, offset, limit int) ([]store.Customer, error)
	GetCustomer(ctx context.Context, customerID string) (store.Customer, error)
	ListPoliciesByCustomer(ctx context.Context, customerID string) ([]store.Policy, error)
	GetPolicy(ctx context.Context, policyID string) (store.Policy, error)
	ListPolicyVehicles(ctx context.Context, policyID string) ([]store.Vehicle, error)
	ListPolicyDrivers(ctx context.Context, policyID string) ([]store.Driver, error)
	ListPolicyMortgagees(ctx context.Context, policyID string) ([]store.Mortgagee, error)
	GetPropertyByPolicy(ctx context.Context, policyID string) (*store.Property, error)
	GetSyncMetadata(ctx context.Context, tenantID, integration string) (*store.SyncMetadata, error)
}

type syncRunner interface {
	RunFull(ctx context.Context, offset, limit int) (*hawksync.Report, error)
	RunIncremental(ctx context.Context) (*hawksync.Report, error)
}

type runLog interface {
	Append(ctx context.Context, report any) error
	Recent(ctx context.Context, limit int) ([]json.RawMessage, error)
}

type PolicyDetail struct {
	Policy     store.Policy
	Vehicles   []store.Vehicle
	Drivers    []store.Driver
	Mortgagees []store.Mortgagee
	Property   *store.Property
}

type Service struct {
	cfg    config.Config
	store  dataStore
	syncer syncRunner
	runs   runLog
}

func New(cfg config.Config, dataStore *store.PostgresStore, syncer *hawksync.Syncer) *Service {
	return &Service{cfg: cfg, store: dataStore, syncer: syncer}
}

func NewWithRunLog(cfg config.Config, dataStore *store.PostgresStore, syncer *hawksync.Syncer, runs *runlog.Store) *Service {
	return &Service{cfg: cfg, store: dataStore, syncer: syncer, runs: runs}
}

func (s *Service) SyncToken() string {
	return s.cfg.SyncToken
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// checkSyncConfig fails fast before any partial work when the tenant or
// vendor credentials are missing.
func (s *Service) checkSyncConfig() error {
	if strings.TrimSpace(s.cfg.TenantID) == "" {
		return domainError(http.StatusInternalServerError, "CONFIG_ERROR", "AGENCYDESK_TENANT_ID is not configured", nil)
	}
	if strings.TrimSpace(s.cfg.HawkSoftAPIKey) == "" || strings.TrimSpace(s.cfg.HawkSoftAgencyID) == "" {
		return domainError(http.StatusInternalServerError, "CONFIG_ERROR", "HawkSoft credentials are not configured", nil)
	}
	return nil
}

func (s *Service) RunHawkSoftSync(ctx context.Context, mode string, offset, limit int) (*hawksync.Report, error) {
	if err := s.checkSyncConfig(); err != nil {
		return nil, err
	}

	var report *hawksync.Report
	var err error
	switch mode {
	case "", "full":
		report, err = s.syncer.RunFull(ctx, offset, limit)
	case "incremental":
		report, err = s.syncer.RunIncremental(ctx)
	default:
		return nil, domainError(http.StatusBadRequest, "INVALID_MODE", "mode must be full or incremental", nil)
	}
	if err != nil {
		return nil, err
	}

	if s.runs != nil {
		if logErr := s.runs.Append(ctx, report); logErr != nil {
			log.Printf("runlog: append report: %v", logErr)
		}
	}
	return report, nil
}

func (s *Service) SyncStatus(ctx context.Context) (*store.SyncMetadata, error) {
	if err := s.checkSyncConfig(); err != nil {
		return nil, err
	}
	return s.store.GetSyncMetadata(ctx, s.cfg.TenantID, hawksync.Integration)
}

func (s *Service) RecentSyncRuns(ctx context.Context, limit int) ([]json.RawMessage, error) {
	if s.runs == nil {
		return nil, domainError(http.StatusServiceUnavailable, "RUNLOG_UNAVAILABLE", "Run log storage is not configured", nil)
	}
	return s.runs.Recent(ctx, limit)
}

func (s *Service) Customers(ctx context.Context, offset, limit int) ([]store.Customer, error) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.store.ListCustomers(ctx, offset, limit)
}

func (s *Service) Customer(ctx context.Context, customerID string) (store.Customer, error) {
	return s.store.GetCustomer(ctx, customerID)
}

func (s *Service) CustomerPolicies(ctx context.Context, customerID string) ([]store.Policy, error) {
	if _, err := s.store.GetCustomer(ctx, customerID); err != nil {
		return nil, err
	}
	return s.store.ListPoliciesByCustomer(ctx, customerID)
}

func (s *Service) PolicyDetail(ctx context.Context, policyID string) (PolicyDetail, error) {
	policy, err := s.store.GetPolicy(ctx, policyID)
	if err != nil {
		return PolicyDetail{}, err
	}
	vehicles, err := s.store.ListPolicyVehicles(ctx, policyID)
	if err != nil {
		return PolicyDetail{}, err
	}
	drivers, err := s.store.ListPolicyDrivers(ctx, policyID)
	if err != nil {
		return PolicyDetail{}, err
	}
	mortgagees, err := s.store.ListPolicyMortgagees(ctx, policyID)
	if err != nil {
		return PolicyDetail{}, err
	}
	property, err := s.store.GetPropertyByPolicy(ctx, policyID)
	if err != nil {
		return PolicyDetail{}, err
	}
	return PolicyDetail{
		Policy:     policy,
		Vehicles:   vehicles,
		Drivers:    drivers,
		Mortgagees: mortgagees,
		Property:   property,
	}, nil
}
