// Package hawksync reconciles HawkSoft client records against the local
// customer/policy store, in full (paged) or incremental (change-feed) mode.
package hawksync

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"agencydesk/api/internal/hawksoft"
	"agencydesk/api/internal/store"
	"agencydesk/api/internal/util"
)

const (
	Integration = "hawksoft"

	// Vendor rate/payload accommodation; sub-batches run sequentially.
	subBatchSize = 50

	defaultLimit = 500
	maxLimit     = 1000
)

var (
	expandGroups = []string{"policies", "autos", "drivers", "locations", "additionalInterests"}
	expandFields = []string{"coverages", "loBs", "agentCodes"}
)

type Store interface {
	CountCustomersWithClientCode(ctx context.Context) (int, error)
	ListCustomersWithClientCode(ctx context.Context, offset, limit int) ([]store.Customer, error)
	CustomersByClientCodes(ctx context.Context, codes []string) ([]store.Customer, error)
	UpdateCustomerContact(ctx context.Context, customerID, firstName, addressLine, city, state, zip string) error
	AgentCodeMap(ctx context.Context) (map[string]string, error)
	ActiveRenewalPolicyIDs(ctx context.Context) ([]string, error)
	GetPolicyByExternalID(ctx context.Context, externalPolicyID string) (*store.Policy, error)
	InsertPolicy(ctx context.Context, item store.Policy) error
	UpdatePolicyVersioned(ctx context.Context, item store.Policy, expectedVersion int) (bool, error)
	UpdatePolicyAgentFields(ctx context.Context, policyID, status, agentCode1, agentCode2, agentCode3 string, producerID *string) error
	ListPolicyVehicles(ctx context.Context, policyID string) ([]store.Vehicle, error)
	ListPolicyDrivers(ctx context.Context, policyID string) ([]store.Driver, error)
	ReplaceVehicles(ctx context.Context, policyID string, vehicles []store.Vehicle) error
	ReplaceDrivers(ctx context.Context, policyID string, drivers []store.Driver) error
	UpsertMortgagee(ctx context.Context, item store.Mortgagee) error
	UpsertProperty(ctx context.Context, item store.Property) error
	GetSyncMetadata(ctx context.Context, tenantID, integration string) (*store.SyncMetadata, error)
	UpsertFullSyncMetadata(ctx context.Context, tenantID, integration string, at time.Time, status string, recordsProcessed int) error
	UpsertIncrementalSyncMetadata(ctx context.Context, tenantID, integration string, at time.Time, cursor, status string, recordsProcessed int) error
}

type VendorClient interface {
	GetClients(ctx context.Context, clientNumbers []string, expandGroups, expandFields []string) ([]hawksoft.ClientRecord, error)
	GetChangedClients(ctx context.Context, since string, includeDeleted bool) ([]string, error)
}

// Archiver stores raw vendor payloads for audit/replay. Optional.
type Archiver interface {
	Put(ctx context.Context, key string, payload any) error
}

// Indexer pushes refreshed records into the dashboard search index. Optional.
type Indexer interface {
	IndexCustomers(customers []store.Customer)
	IndexPolicies(policies []store.Policy)
}

type Syncer struct {
	store    Store
	vendor   VendorClient
	tenantID string
	now      func() time.Time
	newID    func(prefix string) string

	// Optional collaborators; nil disables them.
	Archive Archiver
	Search  Indexer
}

func New(st Store, vendor VendorClient, tenantID string) *Syncer {
	return &Syncer{
		store:    st,
		vendor:   vendor,
		tenantID: tenantID,
		now:      time.Now,
		newID:    util.NewID,
	}
}

// runContext carries the per-run read-only lookups plus the records touched,
// which feed the search index after the run.
type runContext struct {
	agents    map[string]string
	frozen    map[string]struct{}
	customers []store.Customer
	policies  []store.Policy
}

func (s *Syncer) loadRunContext(ctx context.Context) (*runContext, error) {
	agents, err := s.store.AgentCodeMap(ctx)
	if err != nil {
		return nil, fmt.Errorf("load agent directory: %w", err)
	}
	ids, err := s.store.ActiveRenewalPolicyIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("load renewal freeze set: %w", err)
	}
	frozen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		frozen[id] = struct{}{}
	}
	return &runContext{agents: agents, frozen: frozen}, nil
}

// RunFull processes the [offset, offset+limit) slice of customers joined to
// HawkSoft. The caller pages with hasMore/nextOffset until the population is
// covered; the final page stamps lastFullSyncAt.
func (s *Syncer) RunFull(ctx context.Context, offset, limit int) (*Report, error) {
	start := s.now()
	offset, limit = clampPage(offset, limit)
	stats := &RunStats{}
	report := &Report{Mode: "full", Offset: offset, Limit: limit, StartedAt: start.UTC().Format(time.RFC3339)}

	total, err := s.store.CountCustomersWithClientCode(ctx)
	if err != nil {
		return nil, err
	}
	customers, err := s.store.ListCustomersWithClientCode(ctx, offset, limit)
	if err != nil {
		return nil, err
	}
	refs, err := s.loadRunContext(ctx)
	if err != nil {
		return nil, err
	}

	stats.Logf("full sync: %d of %d customers, offset %d limit %d", len(customers), total, offset, limit)
	s.processCustomers(ctx, s.newID("run"), stats, customers, refs)

	report.TotalWithHS = total
	report.HasMore = offset+limit < total
	if report.HasMore {
		next := offset + limit
		nextURL := fmt.Sprintf("/api/sync/hawksoft?mode=full&offset=%d&limit=%d", next, limit)
		report.NextOffset = &next
		report.NextURL = &nextURL
	} else {
		status := runStatus(stats)
		if err := s.store.UpsertFullSyncMetadata(ctx, s.tenantID, Integration, s.now(), status, stats.Processed); err != nil {
			stats.Logf("stamp full sync metadata: %v", err)
		} else {
			stats.Logf("final page reached; lastFullSyncAt stamped (%s)", status)
		}
	}

	s.flushIndex(refs)
	report.applyStats(stats)
	report.Success = true
	report.Duration = time.Since(start).String()
	return report, nil
}

// RunIncremental asks the vendor change feed for clients modified since the
// stored cursor. The as-of timestamp for the next cursor is captured before
// any vendor call so a change landing mid-sync is picked up next run.
func (s *Syncer) RunIncremental(ctx context.Context) (*Report, error) {
	start := s.now()
	asOf := start.UTC()
	cursor := asOf.Format(time.RFC3339)
	stats := &RunStats{}
	report := &Report{Mode: "incremental", StartedAt: asOf.Format(time.RFC3339)}

	meta, err := s.store.GetSyncMetadata(ctx, s.tenantID, Integration)
	if err != nil {
		return nil, err
	}

	if meta == nil || meta.IncrementalSyncCursor == "" {
		// No cursor yet: bootstrap from a single full-mode slice, then stamp
		// the cursor so the next run is a true delta.
		stats.Logf("no incremental cursor stored; bootstrapping from one full slice of %d", defaultLimit)
		total, err := s.store.CountCustomersWithClientCode(ctx)
		if err != nil {
			return nil, err
		}
		customers, err := s.store.ListCustomersWithClientCode(ctx, 0, defaultLimit)
		if err != nil {
			return nil, err
		}
		refs, err := s.loadRunContext(ctx)
		if err != nil {
			return nil, err
		}
		s.processCustomers(ctx, s.newID("run"), stats, customers, refs)
		report.TotalWithHS = total

		status := runStatus(stats)
		if err := s.store.UpsertIncrementalSyncMetadata(ctx, s.tenantID, Integration, asOf, cursor, status, stats.Processed); err != nil {
			stats.Logf("stamp incremental sync metadata: %v", err)
		}
		s.flushIndex(refs)
		report.applyStats(stats)
		report.Success = true
		report.Duration = time.Since(start).String()
		return report, nil
	}

	changed, err := s.vendor.GetChangedClients(ctx, meta.IncrementalSyncCursor, false)
	if err != nil {
		// Without the change list there is no scope for this run. Do not
		// advance the cursor, or the missed window would be lost.
		stats.APIErrors++
		stats.Logf("change feed since %s failed: %v", meta.IncrementalSyncCursor, err)
		report.applyStats(stats)
		report.Success = false
		report.Duration = time.Since(start).String()
		return report, nil
	}
	changedCount := len(changed)
	report.ChangedInVendor = &changedCount

	var customers []store.Customer
	if changedCount > 0 {
		customers, err = s.store.CustomersByClientCodes(ctx, changed)
		if err != nil {
			return nil, err
		}
	}
	matched := len(customers)
	report.MatchedInDB = &matched

	if matched == 0 {
		// A quiet night must still advance the cursor or it would stall.
		if err := s.store.UpsertIncrementalSyncMetadata(ctx, s.tenantID, Integration, asOf, cursor, store.SyncStatusSuccess, 0); err != nil {
			stats.Logf("stamp incremental sync metadata: %v", err)
		}
		stats.Logf("%d changed in HawkSoft, 0 matched locally; cursor advanced to %s", changedCount, cursor)
		report.applyStats(stats)
		report.Success = true
		report.Duration = time.Since(start).String()
		return report, nil
	}

	refs, err := s.loadRunContext(ctx)
	if err != nil {
		return nil, err
	}
	stats.Logf("incremental sync: %d changed in HawkSoft, %d matched locally", changedCount, matched)
	s.processCustomers(ctx, s.newID("run"), stats, customers, refs)

	status := runStatus(stats)
	if err := s.store.UpsertIncrementalSyncMetadata(ctx, s.tenantID, Integration, asOf, cursor, status, stats.Processed); err != nil {
		stats.Logf("stamp incremental sync metadata: %v", err)
	}

	s.flushIndex(refs)
	report.applyStats(stats)
	report.Success = true
	report.Duration = time.Since(start).String()
	return report, nil
}

// processCustomers fetches vendor records in bounded sub-batches and runs the
// reconciler per customer. A sub-batch failure is counted and skipped; the
// remaining sub-batches still run.
func (s *Syncer) processCustomers(ctx context.Context, runID string, stats *RunStats, customers []store.Customer, refs *runContext) {
	for batchNo := 0; batchNo*subBatchSize < len(customers); batchNo++ {
		lo := batchNo * subBatchSize
		hi := lo + subBatchSize
		if hi > len(customers) {
			hi = len(customers)
		}
		chunk := customers[lo:hi]

		codes := make([]string, 0, len(chunk))
		for _, cust := range chunk {
			if cust.HawkSoftClientCode != nil && *cust.HawkSoftClientCode != "" {
				codes = append(codes, *cust.HawkSoftClientCode)
			}
		}
		if len(codes) == 0 {
			continue
		}

		records, err := s.vendor.GetClients(ctx, codes, expandGroups, expandFields)
		if err != nil {
			stats.APIErrors++
			stats.Logf("client batch %d (%d clients) failed: %v", batchNo, len(codes), err)
			continue
		}
		if s.Archive != nil {
			key := fmt.Sprintf("hawksoft/%s/batch-%04d.json", runID, batchNo)
			if err := s.Archive.Put(ctx, key, records); err != nil {
				stats.Logf("archive batch %d: %v", batchNo, err)
			}
		}

		byNumber := make(map[string]hawksoft.ClientRecord, len(records))
		for _, rec := range records {
			byNumber[rec.ClientNumber] = rec
		}

		for _, cust := range chunk {
			stats.Processed++
			if cust.HawkSoftClientCode == nil {
				continue
			}
			rec, ok := byNumber[*cust.HawkSoftClientCode]
			if !ok {
				stats.Logf("client %s not in vendor response", *cust.HawkSoftClientCode)
				continue
			}
			s.reconcileCustomer(ctx, stats, cust, rec, refs)
		}
	}
}

func (s *Syncer) reconcileCustomer(ctx context.Context, stats *RunStats, cust store.Customer, rec hawksoft.ClientRecord, refs *runContext) {
	if rec.FirstName != "" || rec.AddressLine != "" {
		firstName := rec.FirstName
		if firstName == "" {
			firstName = cust.FirstName
		}
		if err := s.store.UpdateCustomerContact(ctx, cust.ID, firstName, rec.AddressLine, rec.City, rec.State, rec.Zip); err != nil {
			stats.PolicyErrors++
			stats.Logf("customer %s contact update: %v", cust.ID, err)
		} else {
			stats.CustomersUpdated++
			cust.FirstName = firstName
			cust.AddressLine = rec.AddressLine
			cust.City = rec.City
			cust.State = rec.State
			cust.Zip = rec.Zip
			refs.customers = append(refs.customers, cust)
		}
	}

	for _, pr := range rec.Policies {
		if err := s.reconcilePolicy(ctx, stats, cust, rec, pr, refs); err != nil {
			// One malformed vendor policy never aborts the customer or batch.
			stats.PolicyErrors++
			stats.Logf("policy %s (client %s): %v", externalPolicyID(rec, pr), rec.ClientNumber, err)
		}
	}
}

// reconcilePolicy is the per-policy state machine: insert, frozen narrow
// update, or versioned full update with child fan-out.
func (s *Syncer) reconcilePolicy(ctx context.Context, stats *RunStats, cust store.Customer, rec hawksoft.ClientRecord, pr hawksoft.PolicyRecord, refs *runContext) error {
	extID := externalPolicyID(rec, pr)
	if extID == "" {
		return fmt.Errorf("no usable policy identifier")
	}

	status := MapStatus(pr.Status)
	coverages, err := json.Marshal(coverageList(pr.Coverages))
	if err != nil {
		return fmt.Errorf("marshal coverages: %w", err)
	}
	producer := resolveProducer(refs.agents, pr.AgentCode1, pr.AgentCode2, pr.AgentCode3)
	effective := parseDate(pr.EffectiveDate)
	expiration := parseDate(pr.ExpirationDate)

	existing, err := s.store.GetPolicyByExternalID(ctx, extID)
	if err != nil {
		return err
	}

	if existing == nil {
		policy := store.Policy{
			ID:               s.newID("pol"),
			CustomerID:       cust.ID,
			ExternalPolicyID: extID,
			PolicyNumber:     pr.PolicyNumber,
			LineOfBusiness:   ExtractLineOfBusiness(pr),
			Carrier:          pr.Carrier,
			Status:           status,
			EffectiveDate:    effective,
			ExpirationDate:   expiration,
			Premium:          pr.Premium,
			Coverages:        string(coverages),
			AgentCode1:       pr.AgentCode1,
			AgentCode2:       pr.AgentCode2,
			AgentCode3:       pr.AgentCode3,
			ProducerID:       producer,
			SyncVersion:      1,
		}
		if err := s.store.InsertPolicy(ctx, policy); err != nil {
			return err
		}
		stats.PoliciesSynced++
		refs.policies = append(refs.policies, policy)
		return s.syncChildren(ctx, stats, cust, policy.ID, pr)
	}

	if _, frozen := refs.frozen[existing.ID]; frozen {
		// A human may be mid-edit in a renewal comparison; only status and
		// agent attribution may move.
		if err := s.store.UpdatePolicyAgentFields(ctx, existing.ID, status, pr.AgentCode1, pr.AgentCode2, pr.AgentCode3, producer); err != nil {
			return err
		}
		stats.FrozenPolicies++
		stats.Logf("policy %s frozen by active renewal review; narrow update only", existing.ID)
		return nil
	}

	var snapshot *string
	if !sameDate(existing.EffectiveDate, effective) {
		// Term rollover: capture the outgoing term before it is overwritten.
		// This is the only place point-in-time history is retained.
		snapshot, err = s.buildPriorTermSnapshot(ctx, existing)
		if err != nil {
			return err
		}
	}

	updated := store.Policy{
		ID:                existing.ID,
		CustomerID:        existing.CustomerID,
		ExternalPolicyID:  extID,
		PolicyNumber:      pr.PolicyNumber,
		LineOfBusiness:    ExtractLineOfBusiness(pr),
		Carrier:           pr.Carrier,
		Status:            status,
		EffectiveDate:     effective,
		ExpirationDate:    expiration,
		Premium:           pr.Premium,
		Coverages:         string(coverages),
		AgentCode1:        pr.AgentCode1,
		AgentCode2:        pr.AgentCode2,
		AgentCode3:        pr.AgentCode3,
		ProducerID:        producer,
		PriorTermSnapshot: snapshot,
	}
	ok, err := s.store.UpdatePolicyVersioned(ctx, updated, existing.SyncVersion)
	if err != nil {
		return err
	}
	if !ok {
		// Concurrent writer won the compare-and-swap. Skip children too so a
		// losing run cannot leave its vehicle/driver lists behind; no retry
		// within the run.
		stats.LockConflicts++
		stats.Logf("policy %s: sync_version %d moved underneath us; skipped", existing.ID, existing.SyncVersion)
		return nil
	}
	stats.PoliciesSynced++
	updated.SyncVersion = existing.SyncVersion + 1
	refs.policies = append(refs.policies, updated)
	return s.syncChildren(ctx, stats, cust, existing.ID, pr)
}

// syncChildren applies the vendor's current child lists: vehicles and drivers
// are replaced wholesale (the vendor is authoritative; history lives in the
// prior-term snapshot), mortgagees and the property row are upserted.
func (s *Syncer) syncChildren(ctx context.Context, stats *RunStats, cust store.Customer, policyID string, pr hawksoft.PolicyRecord) error {
	vehicles := make([]store.Vehicle, 0, len(pr.Autos))
	for _, auto := range pr.Autos {
		vehicles = append(vehicles, store.Vehicle{
			ID:       s.newID("veh"),
			PolicyID: policyID,
			Year:     auto.Year,
			Make:     auto.Make,
			Model:    auto.Model,
			VIN:      auto.VIN,
		})
	}
	if err := s.store.ReplaceVehicles(ctx, policyID, vehicles); err != nil {
		return err
	}

	drivers := make([]store.Driver, 0, len(pr.Drivers))
	for _, d := range pr.Drivers {
		drivers = append(drivers, store.Driver{
			ID:            s.newID("drv"),
			PolicyID:      policyID,
			FirstName:     d.FirstName,
			LastName:      d.LastName,
			DateOfBirth:   parseDate(d.DateOfBirth),
			LicenseNumber: d.LicenseNumber,
			LicenseState:  d.LicenseState,
		})
	}
	if err := s.store.ReplaceDrivers(ctx, policyID, drivers); err != nil {
		return err
	}

	for _, ai := range pr.AdditionalInterests {
		if strings.TrimSpace(ai.Name) == "" {
			continue
		}
		mortgagee := store.Mortgagee{
			ID:           s.newID("mtg"),
			PolicyID:     policyID,
			CustomerID:   cust.ID,
			Name:         ai.Name,
			LoanNumber:   ai.LoanNumber,
			InterestType: NormalizeInterestType(ai.Type),
			AddressLine:  ai.AddressLine,
			City:         ai.City,
			State:        ai.State,
			Zip:          ai.Zip,
		}
		if err := s.store.UpsertMortgagee(ctx, mortgagee); err != nil {
			return err
		}
		stats.MortgageesSynced++
	}

	if len(pr.Locations) > 0 {
		loc := pr.Locations[0]
		property := store.Property{
			ID:               s.newID("prp"),
			CustomerID:       cust.ID,
			PolicyID:         policyID,
			AddressLine:      loc.AddressLine,
			City:             loc.City,
			State:            loc.State,
			Zip:              loc.Zip,
			YearBuilt:        loc.YearBuilt,
			SquareFeet:       loc.SquareFeet,
			ConstructionType: nilIfEmpty(loc.ConstructionType),
			RoofType:         nilIfEmpty(loc.RoofType),
		}
		if err := s.store.UpsertProperty(ctx, property); err != nil {
			return err
		}
	}

	return nil
}

func (s *Syncer) buildPriorTermSnapshot(ctx context.Context, existing *store.Policy) (*string, error) {
	vehicles, err := s.store.ListPolicyVehicles(ctx, existing.ID)
	if err != nil {
		return nil, fmt.Errorf("snapshot vehicles: %w", err)
	}
	drivers, err := s.store.ListPolicyDrivers(ctx, existing.ID)
	if err != nil {
		return nil, fmt.Errorf("snapshot drivers: %w", err)
	}

	vehicleDocs := make([]map[string]any, 0, len(vehicles))
	for _, v := range vehicles {
		vehicleDocs = append(vehicleDocs, map[string]any{
			"year": v.Year, "make": v.Make, "model": v.Model, "vin": v.VIN,
		})
	}
	driverDocs := make([]map[string]any, 0, len(drivers))
	for _, d := range drivers {
		driverDocs = append(driverDocs, map[string]any{
			"firstName": d.FirstName, "lastName": d.LastName,
			"dateOfBirth": formatDate(d.DateOfBirth), "licenseNumber": d.LicenseNumber, "licenseState": d.LicenseState,
		})
	}

	coverages := existing.Coverages
	if strings.TrimSpace(coverages) == "" {
		coverages = "[]"
	}
	snapshot := map[string]any{
		"premium":        existing.Premium,
		"effectiveDate":  formatDate(existing.EffectiveDate),
		"expirationDate": formatDate(existing.ExpirationDate),
		"coverages":      json.RawMessage(coverages),
		"vehicles":       vehicleDocs,
		"drivers":        driverDocs,
		"capturedAt":     s.now().UTC().Format(time.RFC3339),
	}
	encoded, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("marshal prior term snapshot: %w", err)
	}
	text := string(encoded)
	return &text, nil
}

func (s *Syncer) flushIndex(refs *runContext) {
	if s.Search == nil {
		return
	}
	if len(refs.customers) > 0 {
		s.Search.IndexCustomers(refs.customers)
	}
	if len(refs.policies) > 0 {
		s.Search.IndexPolicies(refs.policies)
	}
}

// --- helpers ---

func clampPage(offset, limit int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return offset, limit
}

func runStatus(stats *RunStats) string {
	if stats.APIErrors > 0 {
		return store.SyncStatusPartial
	}
	return store.SyncStatusSuccess
}

// externalPolicyID is stable across syncs: the vendor policy id, or a
// client-number+policy-number composite when the vendor omits one.
func externalPolicyID(rec hawksoft.ClientRecord, pr hawksoft.PolicyRecord) string {
	if id := strings.TrimSpace(pr.PolicyID); id != "" {
		return id
	}
	if strings.TrimSpace(pr.PolicyNumber) == "" {
		return ""
	}
	return rec.ClientNumber + "-" + pr.PolicyNumber
}

func resolveProducer(agents map[string]string, codes ...string) *string {
	for _, code := range codes {
		code = strings.TrimSpace(code)
		if code == "" {
			continue
		}
		if id, ok := agents[strings.ToUpper(code)]; ok {
			return &id
		}
	}
	return nil
}

func coverageList(coverages []hawksoft.CoverageRecord) []map[string]any {
	list := make([]map[string]any, 0, len(coverages))
	for _, c := range coverages {
		list = append(list, map[string]any{
			"type": c.Type, "limit": c.Limit, "deductible": c.Deductible, "premium": c.Premium,
		})
	}
	return list
}

func parseDate(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t
		}
	}
	return nil
}

func formatDate(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format("2006-01-02")
}

func sameDate(a, b *time.Time) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return a.Format("2006-01-02") == b.Format("2006-01-02")
}

func nilIfEmpty(raw string) *string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	return &raw
}
