package app

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"agencydesk/api/internal/store"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"database": map[string]any{"status": "ok"},
		}

		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["database"] = map[string]any{
				"status": "error",
				"error":  err.Error(),
			}
		}

		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	// Sync routes: guarded by the scheduler token, not a user session.
	if strings.HasPrefix(r.URL.Path, "/api/sync/hawksoft") {
		if !s.checkSyncToken(w, r) {
			return
		}
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/sync/hawksoft":
			s.handleHawkSoftSync(w, r)
		case r.Method == http.MethodGet && r.URL.Path == "/api/sync/hawksoft/status":
			s.handleSyncStatus(w, r)
		case r.Method == http.MethodGet && r.URL.Path == "/api/sync/hawksoft/runs":
			s.handleSyncRuns(w, r)
		default:
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		}
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/customers" {
		offset := queryInt(r, "offset", 0)
		limit := queryInt(r, "limit", 50)
		customers, err := s.service.Customers(r.Context(), offset, limit)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		items := make([]map[string]any, 0, len(customers))
		for _, c := range customers {
			items = append(items, customerPayload(c))
		}
		writeJSON(w, http.StatusOK, map[string]any{"customers": items})
		return
	}

	parts := splitPath(r.URL.Path)

	// /api/customers/{id} and /api/customers/{id}/policies
	if r.Method == http.MethodGet && len(parts) >= 3 && parts[0] == "api" && parts[1] == "customers" {
		customerID := parts[2]
		if len(parts) == 3 {
			customer, err := s.service.Customer(r.Context(), customerID)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, customerPayload(customer))
			return
		}
		if len(parts) == 4 && parts[3] == "policies" {
			policies, err := s.service.CustomerPolicies(r.Context(), customerID)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			items := make([]map[string]any, 0, len(policies))
			for _, p := range policies {
				items = append(items, policyPayload(p))
			}
			writeJSON(w, http.StatusOK, map[string]any{"policies": items})
			return
		}
	}

	// /api/policies/{id}
	if r.Method == http.MethodGet && len(parts) == 3 && parts[0] == "api" && parts[1] == "policies" {
		detail, err := s.service.PolicyDetail(r.Context(), parts[2])
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, policyDetailPayload(detail))
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) checkSyncToken(w http.ResponseWriter, r *http.Request) bool {
	token := strings.TrimSpace(r.Header.Get("x-agencydesk-sync-token"))
	expected := s.service.SyncToken()
	if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(expected)) != 1 {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return false
	}
	return true
}

func (s *HTTPServer) handleHawkSoftSync(w http.ResponseWriter, r *http.Request) {
	mode := strings.TrimSpace(r.URL.Query().Get("mode"))
	offset := queryInt(r, "offset", 0)
	limit := queryInt(r, "limit", 0)

	report, err := s.service.RunHawkSoftSync(r.Context(), mode, offset, limit)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *HTTPServer) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	meta, err := s.service.SyncStatus(r.Context())
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	if meta == nil {
		writeJSON(w, http.StatusOK, map[string]any{"synced": false})
		return
	}
	writeJSON(w, http.StatusOK, syncMetadataPayload(meta))
}

func (s *HTTPServer) handleSyncRuns(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 10)
	runs, err := s.service.RecentSyncRuns(r.Context(), limit)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	if runs == nil {
		runs = []json.RawMessage{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// --- payloads ---

func customerPayload(c store.Customer) map[string]any {
	return map[string]any{
		"id":                 c.ID,
		"firstName":          c.FirstName,
		"lastName":           c.LastName,
		"email":              c.Email,
		"phone":              c.Phone,
		"addressLine":        c.AddressLine,
		"city":               c.City,
		"state":              c.State,
		"zip":                c.Zip,
		"hawksoftClientCode": c.HawkSoftClientCode,
		"updatedAt":          c.UpdatedAt,
	}
}

func policyPayload(p store.Policy) map[string]any {
	coverages := json.RawMessage(p.Coverages)
	if len(coverages) == 0 {
		coverages = json.RawMessage("[]")
	}
	payload := map[string]any{
		"id":               p.ID,
		"customerId":       p.CustomerID,
		"externalPolicyId": p.ExternalPolicyID,
		"policyNumber":     p.PolicyNumber,
		"lineOfBusiness":   p.LineOfBusiness,
		"carrier":          p.Carrier,
		"status":           p.Status,
		"effectiveDate":    datePayload(p.EffectiveDate),
		"expirationDate":   datePayload(p.ExpirationDate),
		"premium":          p.Premium,
		"coverages":        coverages,
		"agentCode1":       p.AgentCode1,
		"agentCode2":       p.AgentCode2,
		"agentCode3":       p.AgentCode3,
		"producerId":       p.ProducerID,
		"syncVersion":      p.SyncVersion,
		"updatedAt":        p.UpdatedAt,
	}
	if p.PriorTermSnapshot != nil {
		payload["priorTermSnapshot"] = json.RawMessage(*p.PriorTermSnapshot)
	}
	return payload
}

func policyDetailPayload(detail PolicyDetail) map[string]any {
	vehicles := make([]map[string]any, 0, len(detail.Vehicles))
	for _, v := range detail.Vehicles {
		vehicles = append(vehicles, map[string]any{
			"id": v.ID, "year": v.Year, "make": v.Make, "model": v.Model, "vin": v.VIN,
		})
	}
	drivers := make([]map[string]any, 0, len(detail.Drivers))
	for _, d := range detail.Drivers {
		drivers = append(drivers, map[string]any{
			"id": d.ID, "firstName": d.FirstName, "lastName": d.LastName,
			"dateOfBirth": datePayload(d.DateOfBirth), "licenseNumber": d.LicenseNumber, "licenseState": d.LicenseState,
		})
	}
	mortgagees := make([]map[string]any, 0, len(detail.Mortgagees))
	for _, m := range detail.Mortgagees {
		mortgagees = append(mortgagees, map[string]any{
			"id": m.ID, "name": m.Name, "loanNumber": m.LoanNumber, "interestType": m.InterestType,
			"addressLine": m.AddressLine, "city": m.City, "state": m.State, "zip": m.Zip,
		})
	}

	payload := policyPayload(detail.Policy)
	payload["vehicles"] = vehicles
	payload["drivers"] = drivers
	payload["mortgagees"] = mortgagees
	if detail.Property != nil {
		payload["property"] = map[string]any{
			"id":               detail.Property.ID,
			"addressLine":      detail.Property.AddressLine,
			"city":             detail.Property.City,
			"state":            detail.Property.State,
			"zip":              detail.Property.Zip,
			"yearBuilt":        detail.Property.YearBuilt,
			"squareFeet":       detail.Property.SquareFeet,
			"constructionType": detail.Property.ConstructionType,
			"roofType":         detail.Property.RoofType,
		}
	}
	return payload
}

func syncMetadataPayload(meta *store.SyncMetadata) map[string]any {
	return map[string]any{
		"synced":                   true,
		"tenantId":                 meta.TenantID,
		"integration":              meta.Integration,
		"lastFullSyncAt":           meta.LastFullSyncAt,
		"lastIncrementalSyncAt":    meta.LastIncrementalSyncAt,
		"incrementalSyncCursor":    meta.IncrementalSyncCursor,
		"lastSyncStatus":           meta.LastSyncStatus,
		"lastSyncRecordsProcessed": meta.LastSyncRecordsProcessed,
		"updatedAt":                meta.UpdatedAt,
	}
}

func datePayload(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format("2006-01-02")
}

// --- middleware and helpers ---

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID, x-agencydesk-sync-token")
	header.Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return parsed
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
