package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

// Ping verifies the database connection is alive
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// --- customers ---

const customerColumns = `id, first_name, last_name, email, phone, address_line, city, state, zip, hawksoft_client_code, created_at, updated_at`

func scanCustomer(row interface{ Scan(...any) error }) (Customer, error) {
	var item Customer
	err := row.Scan(
		&item.ID,
		&item.FirstName,
		&item.LastName,
		&item.Email,
		&item.Phone,
		&item.AddressLine,
		&item.City,
		&item.State,
		&item.Zip,
		&item.HawkSoftClientCode,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	return item, err
}

func (s *PostgresStore) ListCustomers(ctx context.Context, offset, limit int) ([]Customer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+customerColumns+`
		FROM customers
		ORDER BY id ASC
		OFFSET $1 LIMIT $2
	`, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}
	defer rows.Close()

	items := make([]Customer, 0)
	for rows.Next() {
		item, err := scanCustomer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan customer: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate customers: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetCustomer(ctx context.Context, customerID string) (Customer, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+customerColumns+`
		FROM customers
		WHERE id=$1
	`, customerID)
	return scanCustomer(row)
}

func (s *PostgresStore) CountCustomersWithClientCode(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM customers
		WHERE hawksoft_client_code IS NOT NULL AND hawksoft_client_code <> ''
	`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count synced customers: %w", err)
	}
	return count, nil
}

// ListCustomersWithClientCode returns the deterministic [offset, offset+limit)
// slice of customers joined to HawkSoft, in the store's natural order.
func (s *PostgresStore) ListCustomersWithClientCode(ctx context.Context, offset, limit int) ([]Customer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+customerColumns+`
		FROM customers
		WHERE hawksoft_client_code IS NOT NULL AND hawksoft_client_code <> ''
		ORDER BY id ASC
		OFFSET $1 LIMIT $2
	`, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("list synced customers: %w", err)
	}
	defer rows.Close()

	items := make([]Customer, 0)
	for rows.Next() {
		item, err := scanCustomer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan customer: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate customers: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) CustomersByClientCodes(ctx context.Context, codes []string) ([]Customer, error) {
	if len(codes) == 0 {
		return []Customer{}, nil
	}
	placeholders := make([]string, len(codes))
	args := make([]any, len(codes))
	for i, code := range codes {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = code
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+customerColumns+`
		FROM customers
		WHERE hawksoft_client_code IN (`+strings.Join(placeholders, ", ")+`)
		ORDER BY id ASC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("customers by client codes: %w", err)
	}
	defer rows.Close()

	items := make([]Customer, 0)
	for rows.Next() {
		item, err := scanCustomer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan customer: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate customers: %w", err)
	}
	return items, nil
}

// UpdateCustomerContact overwrites the fields HawkSoft is authoritative for.
func (s *PostgresStore) UpdateCustomerContact(ctx context.Context, customerID, firstName, addressLine, city, state, zip string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE customers
		SET first_name=$2, address_line=$3, city=$4, state=$5, zip=$6, updated_at=NOW()
		WHERE id=$1
	`, customerID, firstName, addressLine, city, state, zip)
	if err != nil {
		return fmt.Errorf("update customer contact: %w", err)
	}
	return nil
}

// --- agents ---

// AgentCodeMap returns uppercase agent code -> user id for every agent that
// has a code assigned.
func (s *PostgresStore) AgentCodeMap(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, agent_code FROM users
		WHERE agent_code IS NOT NULL AND agent_code <> ''
	`)
	if err != nil {
		return nil, fmt.Errorf("list agent codes: %w", err)
	}
	defer rows.Close()

	codes := make(map[string]string)
	for rows.Next() {
		var id, code string
		if err := rows.Scan(&id, &code); err != nil {
			return nil, fmt.Errorf("scan agent code: %w", err)
		}
		codes[strings.ToUpper(code)] = id
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate agent codes: %w", err)
	}
	return codes, nil
}

// --- renewal comparisons ---

// ActiveRenewalPolicyIDs returns the ids of policies under active renewal
// review. Completed and cancelled comparisons are terminal.
func (s *PostgresStore) ActiveRenewalPolicyIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT policy_id FROM renewal_comparisons
		WHERE status NOT IN ('completed', 'cancelled')
	`)
	if err != nil {
		return nil, fmt.Errorf("list active renewal policies: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan renewal policy id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate renewal policy ids: %w", err)
	}
	return ids, nil
}

// --- policies ---

const policyColumns = `id, customer_id, external_policy_id, policy_number, line_of_business, carrier, status,
	effective_date, expiration_date, premium, COALESCE(coverages::text, '[]'),
	agent_code_1, agent_code_2, agent_code_3, producer_id, sync_version, prior_term_snapshot::text,
	created_at, updated_at`

func scanPolicy(row interface{ Scan(...any) error }) (Policy, error) {
	var item Policy
	err := row.Scan(
		&item.ID,
		&item.CustomerID,
		&item.ExternalPolicyID,
		&item.PolicyNumber,
		&item.LineOfBusiness,
		&item.Carrier,
		&item.Status,
		&item.EffectiveDate,
		&item.ExpirationDate,
		&item.Premium,
		&item.Coverages,
		&item.AgentCode1,
		&item.AgentCode2,
		&item.AgentCode3,
		&item.ProducerID,
		&item.SyncVersion,
		&item.PriorTermSnapshot,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	return item, err
}

// GetPolicyByExternalID returns nil when no policy carries the external id.
func (s *PostgresStore) GetPolicyByExternalID(ctx context.Context, externalPolicyID string) (*Policy, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+policyColumns+`
		FROM policies
		WHERE external_policy_id=$1
	`, externalPolicyID)
	item, err := scanPolicy(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get policy by external id: %w", err)
	}
	return &item, nil
}

func (s *PostgresStore) GetPolicy(ctx context.Context, policyID string) (Policy, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+policyColumns+`
		FROM policies
		WHERE id=$1
	`, policyID)
	return scanPolicy(row)
}

func (s *PostgresStore) ListPoliciesByCustomer(ctx context.Context, customerID string) ([]Policy, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+policyColumns+`
		FROM policies
		WHERE customer_id=$1
		ORDER BY effective_date DESC NULLS LAST, id ASC
	`, customerID)
	if err != nil {
		return nil, fmt.Errorf("list customer policies: %w", err)
	}
	defer rows.Close()

	items := make([]Policy, 0)
	for rows.Next() {
		item, err := scanPolicy(rows)
		if err != nil {
			return nil, fmt.Errorf("scan policy: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate policies: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) InsertPolicy(ctx context.Context, item Policy) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO policies (id, customer_id, external_policy_id, policy_number, line_of_business, carrier, status,
			effective_date, expiration_date, premium, coverages, agent_code_1, agent_code_2, agent_code_3,
			producer_id, sync_version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11::jsonb, $12, $13, $14, $15, 1)
	`, item.ID, item.CustomerID, item.ExternalPolicyID, item.PolicyNumber, item.LineOfBusiness, item.Carrier,
		item.Status, item.EffectiveDate, item.ExpirationDate, item.Premium, item.Coverages,
		item.AgentCode1, item.AgentCode2, item.AgentCode3, item.ProducerID)
	if err != nil {
		return fmt.Errorf("insert policy: %w", err)
	}
	return nil
}

// UpdatePolicyVersioned performs the full sync overwrite, conditioned on the
// stored sync_version still matching expectedVersion. Returns false when the
// compare-and-swap lost to a concurrent writer.
func (s *PostgresStore) UpdatePolicyVersioned(ctx context.Context, item Policy, expectedVersion int) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE policies
		SET policy_number=$2, line_of_business=$3, carrier=$4, status=$5,
			effective_date=$6, expiration_date=$7, premium=$8, coverages=$9::jsonb,
			agent_code_1=$10, agent_code_2=$11, agent_code_3=$12, producer_id=$13,
			prior_term_snapshot=COALESCE($14::jsonb, prior_term_snapshot),
			sync_version=sync_version+1, updated_at=NOW()
		WHERE id=$1 AND sync_version=$15
	`, item.ID, item.PolicyNumber, item.LineOfBusiness, item.Carrier, item.Status,
		item.EffectiveDate, item.ExpirationDate, item.Premium, item.Coverages,
		item.AgentCode1, item.AgentCode2, item.AgentCode3, item.ProducerID,
		item.PriorTermSnapshot, expectedVersion)
	if err != nil {
		return false, fmt.Errorf("update policy versioned: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update policy versioned rows: %w", err)
	}
	return affected > 0, nil
}

// UpdatePolicyAgentFields is the narrow update applied to frozen policies:
// status and agent attribution only, nothing substantive.
func (s *PostgresStore) UpdatePolicyAgentFields(ctx context.Context, policyID, status, agentCode1, agentCode2, agentCode3 string, producerID *string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE policies
		SET status=$2, agent_code_1=$3, agent_code_2=$4, agent_code_3=$5, producer_id=$6, updated_at=NOW()
		WHERE id=$1
	`, policyID, status, agentCode1, agentCode2, agentCode3, producerID)
	if err != nil {
		return fmt.Errorf("update policy agent fields: %w", err)
	}
	return nil
}

// --- vehicles and drivers ---

func (s *PostgresStore) ListPolicyVehicles(ctx context.Context, policyID string) ([]Vehicle, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, policy_id, year, make, model, vin
		FROM vehicles
		WHERE policy_id=$1
		ORDER BY id ASC
	`, policyID)
	if err != nil {
		return nil, fmt.Errorf("list policy vehicles: %w", err)
	}
	defer rows.Close()

	items := make([]Vehicle, 0)
	for rows.Next() {
		var item Vehicle
		if err := rows.Scan(&item.ID, &item.PolicyID, &item.Year, &item.Make, &item.Model, &item.VIN); err != nil {
			return nil, fmt.Errorf("scan vehicle: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate vehicles: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) ListPolicyDrivers(ctx context.Context, policyID string) ([]Driver, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, policy_id, first_name, last_name, date_of_birth, license_number, license_state
		FROM drivers
		WHERE policy_id=$1
		ORDER BY id ASC
	`, policyID)
	if err != nil {
		return nil, fmt.Errorf("list policy drivers: %w", err)
	}
	defer rows.Close()

	items := make([]Driver, 0)
	for rows.Next() {
		var item Driver
		if err := rows.Scan(&item.ID, &item.PolicyID, &item.FirstName, &item.LastName, &item.DateOfBirth, &item.LicenseNumber, &item.LicenseState); err != nil {
			return nil, fmt.Errorf("scan driver: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate drivers: %w", err)
	}
	return items, nil
}

// ReplaceVehicles swaps the policy's vehicle list for the vendor's current
// one. Delete and reinsert run in one transaction so a crash cannot leave the
// policy with no vehicles.
func (s *PostgresStore) ReplaceVehicles(ctx context.Context, policyID string, vehicles []Vehicle) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace vehicles: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM vehicles WHERE policy_id=$1`, policyID); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("delete vehicles: %w", err)
	}
	for _, v := range vehicles {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO vehicles (id, policy_id, year, make, model, vin)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, v.ID, policyID, v.Year, v.Make, v.Model, v.VIN); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert vehicle: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace vehicles: %w", err)
	}
	return nil
}

// ReplaceDrivers mirrors ReplaceVehicles for the driver list.
func (s *PostgresStore) ReplaceDrivers(ctx context.Context, policyID string, drivers []Driver) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace drivers: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM drivers WHERE policy_id=$1`, policyID); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("delete drivers: %w", err)
	}
	for _, d := range drivers {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO drivers (id, policy_id, first_name, last_name, date_of_birth, license_number, license_state)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, d.ID, policyID, d.FirstName, d.LastName, d.DateOfBirth, d.LicenseNumber, d.LicenseState); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert driver: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace drivers: %w", err)
	}
	return nil
}

// --- mortgagees ---

func (s *PostgresStore) ListPolicyMortgagees(ctx context.Context, policyID string) ([]Mortgagee, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, policy_id, customer_id, name, loan_number, interest_type, address_line, city, state, zip
		FROM mortgagees
		WHERE policy_id=$1
		ORDER BY name ASC, loan_number ASC
	`, policyID)
	if err != nil {
		return nil, fmt.Errorf("list policy mortgagees: %w", err)
	}
	defer rows.Close()

	items := make([]Mortgagee, 0)
	for rows.Next() {
		var item Mortgagee
		if err := rows.Scan(&item.ID, &item.PolicyID, &item.CustomerID, &item.Name, &item.LoanNumber, &item.InterestType, &item.AddressLine, &item.City, &item.State, &item.Zip); err != nil {
			return nil, fmt.Errorf("scan mortgagee: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate mortgagees: %w", err)
	}
	return items, nil
}

// UpsertMortgagee keys on (policy_id, name, loan_number); additional interests
// have stable identity and are never bulk-replaced.
func (s *PostgresStore) UpsertMortgagee(ctx context.Context, item Mortgagee) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO mortgagees (id, policy_id, customer_id, name, loan_number, interest_type, address_line, city, state, zip)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (policy_id, name, loan_number)
		DO UPDATE SET interest_type=EXCLUDED.interest_type, address_line=EXCLUDED.address_line,
			city=EXCLUDED.city, state=EXCLUDED.state, zip=EXCLUDED.zip
	`, item.ID, item.PolicyID, item.CustomerID, item.Name, item.LoanNumber, item.InterestType,
		item.AddressLine, item.City, item.State, item.Zip)
	if err != nil {
		return fmt.Errorf("upsert mortgagee: %w", err)
	}
	return nil
}

// --- properties ---

func (s *PostgresStore) GetPropertyByPolicy(ctx context.Context, policyID string) (*Property, error) {
	var item Property
	err := s.db.QueryRowContext(ctx, `
		SELECT id, customer_id, policy_id, address_line, city, state, zip, year_built, square_feet, construction_type, roof_type
		FROM properties
		WHERE policy_id=$1
	`, policyID).Scan(&item.ID, &item.CustomerID, &item.PolicyID, &item.AddressLine, &item.City, &item.State, &item.Zip,
		&item.YearBuilt, &item.SquareFeet, &item.ConstructionType, &item.RoofType)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get property by policy: %w", err)
	}
	return &item, nil
}

// UpsertProperty keys on (customer_id, policy_id). The address is always
// overwritten; construction attributes only when the vendor supplied them, so
// an absent field never clears an existing value.
func (s *PostgresStore) UpsertProperty(ctx context.Context, item Property) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO properties (id, customer_id, policy_id, address_line, city, state, zip, year_built, square_feet, construction_type, roof_type)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (customer_id, policy_id)
		DO UPDATE SET address_line=EXCLUDED.address_line, city=EXCLUDED.city, state=EXCLUDED.state, zip=EXCLUDED.zip,
			year_built=COALESCE(EXCLUDED.year_built, properties.year_built),
			square_feet=COALESCE(EXCLUDED.square_feet, properties.square_feet),
			construction_type=COALESCE(EXCLUDED.construction_type, properties.construction_type),
			roof_type=COALESCE(EXCLUDED.roof_type, properties.roof_type)
	`, item.ID, item.CustomerID, item.PolicyID, item.AddressLine, item.City, item.State, item.Zip,
		item.YearBuilt, item.SquareFeet, item.ConstructionType, item.RoofType)
	if err != nil {
		return fmt.Errorf("upsert property: %w", err)
	}
	return nil
}

// --- sync metadata ---

// GetSyncMetadata returns nil when no row exists for the pair yet.
func (s *PostgresStore) GetSyncMetadata(ctx context.Context, tenantID, integration string) (*SyncMetadata, error) {
	var item SyncMetadata
	err := s.db.QueryRowContext(ctx, `
		SELECT tenant_id, integration, last_full_sync_at, last_incremental_sync_at,
			incremental_sync_cursor, last_sync_status, last_sync_records_processed, updated_at
		FROM sync_metadata
		WHERE tenant_id=$1 AND integration=$2
	`, tenantID, integration).Scan(
		&item.TenantID,
		&item.Integration,
		&item.LastFullSyncAt,
		&item.LastIncrementalSyncAt,
		&item.IncrementalSyncCursor,
		&item.LastSyncStatus,
		&item.LastSyncRecordsProcessed,
		&item.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get sync metadata: %w", err)
	}
	return &item, nil
}

// UpsertFullSyncMetadata stamps the completion of a full run. The incremental
// cursor and timestamp are left untouched.
func (s *PostgresStore) UpsertFullSyncMetadata(ctx context.Context, tenantID, integration string, at time.Time, status string, recordsProcessed int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_metadata (tenant_id, integration, last_full_sync_at, last_sync_status, last_sync_records_processed, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (tenant_id, integration)
		DO UPDATE SET last_full_sync_at=EXCLUDED.last_full_sync_at,
			last_sync_status=EXCLUDED.last_sync_status,
			last_sync_records_processed=EXCLUDED.last_sync_records_processed,
			updated_at=NOW()
	`, tenantID, integration, at, status, recordsProcessed)
	if err != nil {
		return fmt.Errorf("upsert full sync metadata: %w", err)
	}
	return nil
}

// UpsertIncrementalSyncMetadata stamps the completion of an incremental run
// and advances the change-feed cursor.
func (s *PostgresStore) UpsertIncrementalSyncMetadata(ctx context.Context, tenantID, integration string, at time.Time, cursor, status string, recordsProcessed int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_metadata (tenant_id, integration, last_incremental_sync_at, incremental_sync_cursor, last_sync_status, last_sync_records_processed, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (tenant_id, integration)
		DO UPDATE SET last_incremental_sync_at=EXCLUDED.last_incremental_sync_at,
			incremental_sync_cursor=EXCLUDED.incremental_sync_cursor,
			last_sync_status=EXCLUDED.last_sync_status,
			last_sync_records_processed=EXCLUDED.last_sync_records_processed,
			updated_at=NOW()
	`, tenantID, integration, at, cursor, status, recordsProcessed)
	if err != nil {
		return fmt.Errorf("upsert incremental sync metadata: %w", err)
	}
	return nil
}
