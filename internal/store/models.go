package store

import "time"

// Policy status values produced by the sync status mapper.
const (
	PolicyStatusActive     = "active"
	PolicyStatusPending    = "pending"
	PolicyStatusExpired    = "expired"
	PolicyStatusCancelled  = "cancelled"
	PolicyStatusNonRenewed = "non_renewed"
)

// Sync outcome values recorded on sync_metadata.
const (
	SyncStatusSuccess = "success"
	SyncStatusPartial = "partial"
	SyncStatusUnknown = "unknown"
)

type User struct {
	ID        string
	Name      string
	Email     string
	AgentCode string
	CreatedAt time.Time
}

type Customer struct {
	ID                 string
	FirstName          string
	LastName           string
	Email              string
	Phone              string
	AddressLine        string
	City               string
	State              string
	Zip                string
	HawkSoftClientCode *string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

type Policy struct {
	ID               string
	CustomerID       string
	ExternalPolicyID string
	PolicyNumber     string
	LineOfBusiness   string
	Carrier          string
	Status           string
	EffectiveDate    *time.Time
	ExpirationDate   *time.Time
	Premium          float64
	// Coverages is a JSON array of {type, limit, deductible, premium}.
	Coverages  string
	AgentCode1 string
	AgentCode2 string
	AgentCode3 string
	ProducerID *string
	// SyncVersion is the optimistic-lock counter; it only ever increases.
	SyncVersion int
	// PriorTermSnapshot is a JSON copy of the previous term, captured when
	// the effective date rolls over.
	PriorTermSnapshot *string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type Vehicle struct {
	ID       string
	PolicyID string
	Year     int
	Make     string
	Model    string
	VIN      string
}

type Driver struct {
	ID            string
	PolicyID      string
	FirstName     string
	LastName      string
	DateOfBirth   *time.Time
	LicenseNumber string
	LicenseState  string
}

type Mortgagee struct {
	ID           string
	PolicyID     string
	CustomerID   string
	Name         string
	LoanNumber   string
	InterestType string
	AddressLine  string
	City         string
	State        string
	Zip          string
}

type Property struct {
	ID               string
	CustomerID       string
	PolicyID         string
	AddressLine      string
	City             string
	State            string
	Zip              string
	YearBuilt        *int
	SquareFeet       *int
	ConstructionType *string
	RoofType         *string
}

type SyncMetadata struct {
	TenantID                 string
	Integration              string
	LastFullSyncAt           *time.Time
	LastIncrementalSyncAt    *time.Time
	IncrementalSyncCursor    string
	LastSyncStatus           string
	LastSyncRecordsProcessed int
	UpdatedAt                time.Time
}
