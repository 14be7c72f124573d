package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"agencydesk/api/internal/hawksync"
	"agencydesk/api/internal/store"
)

func newTestServer(svc *Service) http.Handler {
	return NewHTTPServer(svc, "*").Handler()
}

func doRequest(t *testing.T, handler http.Handler, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func syncHeaders() map[string]string {
	return map[string]string{"x-agencydesk-sync-token": "test-sync-token"}
}

func TestHealthEndpoint(t *testing.T) {
	handler := newTestServer(newTestService(&fakeDataStore{}, &fakeSyncer{}))

	rec := doRequest(t, handler, http.MethodGet, "/api/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}
}

func TestReadyEndpoint(t *testing.T) {
	t.Run("database up", func(t *testing.T) {
		handler := newTestServer(newTestService(&fakeDataStore{}, &fakeSyncer{}))
		rec := doRequest(t, handler, http.MethodGet, "/api/ready", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
	})

	t.Run("database down", func(t *testing.T) {
		fs := &fakeDataStore{
			pingFn: func(context.Context) error { return errors.New("connection refused") },
		}
		handler := newTestServer(newTestService(fs, &fakeSyncer{}))
		rec := doRequest(t, handler, http.MethodGet, "/api/ready", nil)
		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("status = %d, want 503", rec.Code)
		}
	})
}

func TestSyncEndpointRequiresToken(t *testing.T) {
	called := false
	syncer := &fakeSyncer{
		runFullFn: func(context.Context, int, int) (*hawksync.Report, error) {
			called = true
			return &hawksync.Report{Success: true}, nil
		},
	}
	handler := newTestServer(newTestService(&fakeDataStore{}, syncer))

	rec := doRequest(t, handler, http.MethodPost, "/api/sync/hawksoft", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token: status = %d, want 401", rec.Code)
	}

	rec = doRequest(t, handler, http.MethodPost, "/api/sync/hawksoft", map[string]string{
		"x-agencydesk-sync-token": "wrong",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad token: status = %d, want 401", rec.Code)
	}
	if called {
		t.Fatal("sync ran without a valid token")
	}

	rec = doRequest(t, handler, http.MethodPost, "/api/sync/hawksoft", syncHeaders())
	if rec.Code != http.StatusOK {
		t.Fatalf("valid token: status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if !called {
		t.Fatal("sync did not run with a valid token")
	}
}

func TestSyncEndpointPassesPageParams(t *testing.T) {
	var gotOffset, gotLimit int
	syncer := &fakeSyncer{
		runFullFn: func(_ context.Context, offset, limit int) (*hawksync.Report, error) {
			gotOffset, gotLimit = offset, limit
			return &hawksync.Report{Success: true}, nil
		},
	}
	handler := newTestServer(newTestService(&fakeDataStore{}, syncer))

	rec := doRequest(t, handler, http.MethodPost, "/api/sync/hawksoft?mode=full&offset=500&limit=250", syncHeaders())
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if gotOffset != 500 || gotLimit != 250 {
		t.Errorf("page = (%d, %d), want (500, 250)", gotOffset, gotLimit)
	}
}

func TestSyncEndpointInvalidMode(t *testing.T) {
	handler := newTestServer(newTestService(&fakeDataStore{}, &fakeSyncer{}))

	rec := doRequest(t, handler, http.MethodPost, "/api/sync/hawksoft?mode=turbo", syncHeaders())
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}

	var body struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body.Code != "INVALID_MODE" {
		t.Errorf("code = %q, want INVALID_MODE", body.Code)
	}
}

func TestSyncStatusEndpoint(t *testing.T) {
	t.Run("never synced", func(t *testing.T) {
		handler := newTestServer(newTestService(&fakeDataStore{}, &fakeSyncer{}))
		rec := doRequest(t, handler, http.MethodGet, "/api/sync/hawksoft/status", syncHeaders())
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
		}
		var body struct {
			Synced bool `json:"synced"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body.Synced {
			t.Error("synced = true with no metadata row")
		}
	})

	t.Run("with metadata", func(t *testing.T) {
		fs := &fakeDataStore{
			getSyncMetadataFn: func(context.Context, string, string) (*store.SyncMetadata, error) {
				return &store.SyncMetadata{
					TenantID:              "tenant-1",
					Integration:           "hawksoft",
					IncrementalSyncCursor: "2026-03-14T02:00:00Z",
					LastSyncStatus:        store.SyncStatusSuccess,
				}, nil
			},
		}
		handler := newTestServer(newTestService(fs, &fakeSyncer{}))
		rec := doRequest(t, handler, http.MethodGet, "/api/sync/hawksoft/status", syncHeaders())
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
		}
		var body struct {
			Synced         bool   `json:"synced"`
			Cursor         string `json:"incrementalSyncCursor"`
			LastSyncStatus string `json:"lastSyncStatus"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if !body.Synced || body.Cursor != "2026-03-14T02:00:00Z" || body.LastSyncStatus != "success" {
			t.Errorf("body = %+v", body)
		}
	})
}

func TestSyncRunsEndpoint(t *testing.T) {
	t.Run("without redis", func(t *testing.T) {
		handler := newTestServer(newTestService(&fakeDataStore{}, &fakeSyncer{}))
		rec := doRequest(t, handler, http.MethodGet, "/api/sync/hawksoft/runs", syncHeaders())
		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("status = %d, want 503", rec.Code)
		}
	})

	t.Run("with reports", func(t *testing.T) {
		svc := newTestService(&fakeDataStore{}, &fakeSyncer{})
		svc.runs = &fakeRunLog{
			recentFn: func(context.Context, int) ([]json.RawMessage, error) {
				return []json.RawMessage{json.RawMessage(`{"mode":"full"}`)}, nil
			},
		}
		handler := newTestServer(svc)
		rec := doRequest(t, handler, http.MethodGet, "/api/sync/hawksoft/runs?limit=5", syncHeaders())
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
		}
		var body struct {
			Runs []json.RawMessage `json:"runs"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if len(body.Runs) != 1 {
			t.Errorf("runs = %d, want 1", len(body.Runs))
		}
	})
}

func TestCustomerRoutes(t *testing.T) {
	code := "HS100"
	fs := &fakeDataStore{
		listCustomersFn: func(context.Context, int, int) ([]store.Customer, error) {
			return []store.Customer{{ID: "cus_1", FirstName: "Pat", HawkSoftClientCode: &code}}, nil
		},
		getCustomerFn: func(_ context.Context, customerID string) (store.Customer, error) {
			return store.Customer{ID: customerID, FirstName: "Pat"}, nil
		},
		listPoliciesByCustFn: func(context.Context, string) ([]store.Policy, error) {
			return []store.Policy{{ID: "pol_1", PolicyNumber: "PA-555", SyncVersion: 3}}, nil
		},
	}
	handler := newTestServer(newTestService(fs, &fakeSyncer{}))

	rec := doRequest(t, handler, http.MethodGet, "/api/customers", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: status = %d", rec.Code)
	}
	var list struct {
		Customers []struct {
			ID                 string  `json:"id"`
			HawkSoftClientCode *string `json:"hawksoftClientCode"`
		} `json:"customers"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list.Customers) != 1 || list.Customers[0].ID != "cus_1" {
		t.Fatalf("customers = %+v", list.Customers)
	}
	if list.Customers[0].HawkSoftClientCode == nil || *list.Customers[0].HawkSoftClientCode != "HS100" {
		t.Errorf("client code = %v", list.Customers[0].HawkSoftClientCode)
	}

	rec = doRequest(t, handler, http.MethodGet, "/api/customers/cus_1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get: status = %d", rec.Code)
	}

	rec = doRequest(t, handler, http.MethodGet, "/api/customers/cus_1/policies", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("policies: status = %d", rec.Code)
	}
	var policies struct {
		Policies []struct {
			SyncVersion int `json:"syncVersion"`
		} `json:"policies"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &policies); err != nil {
		t.Fatalf("decode policies: %v", err)
	}
	if len(policies.Policies) != 1 || policies.Policies[0].SyncVersion != 3 {
		t.Errorf("policies = %+v", policies.Policies)
	}
}

func TestCustomerNotFound(t *testing.T) {
	handler := newTestServer(newTestService(&fakeDataStore{}, &fakeSyncer{}))

	rec := doRequest(t, handler, http.MethodGet, "/api/customers/cus_missing", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestUnknownRoute(t *testing.T) {
	handler := newTestServer(newTestService(&fakeDataStore{}, &fakeSyncer{}))

	rec := doRequest(t, handler, http.MethodGet, "/api/nope", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestOptionsPreflights(t *testing.T) {
	handler := newTestServer(newTestService(&fakeDataStore{}, &fakeSyncer{}))

	rec := doRequest(t, handler, http.MethodOptions, "/api/customers", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("CORS origin header = %q", rec.Header().Get("Access-Control-Allow-Origin"))
	}
}
