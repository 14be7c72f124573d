package hawksoft

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestGetClients(t *testing.T) {
	var gotPath, gotAPIKey string
	var gotBody struct {
		ClientNumbers []string `json:"clientNumbers"`
		ExpandGroups  []string `json:"expandGroups"`
		ExpandFields  []string `json:"expandFields"`
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAPIKey = r.Header.Get("X-Api-Key")
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request body: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"clients": []map[string]any{
				{
					"clientNumber": "HS100",
					"firstName":    "Pat",
					"policies": []map[string]any{
						{"policyId": "HSP-1", "policyNumber": "PA-555", "premium": 1280.5},
					},
				},
			},
		})
	}))
	defer server.Close()

	client := New(server.URL, "secret-key", "agency-7")
	records, err := client.GetClients(context.Background(), []string{"HS100"}, []string{"policies"}, []string{"coverages"})
	if err != nil {
		t.Fatalf("GetClients: %v", err)
	}

	if gotPath != "/agencies/agency-7/clients/batch" {
		t.Errorf("path = %q", gotPath)
	}
	if gotAPIKey != "secret-key" {
		t.Errorf("api key header = %q", gotAPIKey)
	}
	if len(gotBody.ClientNumbers) != 1 || gotBody.ClientNumbers[0] != "HS100" {
		t.Errorf("clientNumbers = %v", gotBody.ClientNumbers)
	}
	if len(gotBody.ExpandGroups) != 1 || gotBody.ExpandGroups[0] != "policies" {
		t.Errorf("expandGroups = %v", gotBody.ExpandGroups)
	}

	if len(records) != 1 {
		t.Fatalf("records = %d, want 1", len(records))
	}
	if records[0].ClientNumber != "HS100" {
		t.Errorf("clientNumber = %q", records[0].ClientNumber)
	}
	if len(records[0].Policies) != 1 || records[0].Policies[0].PolicyID != "HSP-1" {
		t.Errorf("policies = %+v", records[0].Policies)
	}
	if records[0].Policies[0].Premium != 1280.5 {
		t.Errorf("premium = %v", records[0].Policies[0].Premium)
	}
}

func TestGetClientsErrorIncludesBodySnippet(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"rate limit exceeded"}`))
	}))
	defer server.Close()

	client := New(server.URL, "key", "agency-7")
	_, err := client.GetClients(context.Background(), []string{"HS100"}, nil, nil)
	if err == nil {
		t.Fatal("expected an error")
	}
	if !strings.Contains(err.Error(), "429") || !strings.Contains(err.Error(), "rate limit exceeded") {
		t.Errorf("error = %v, want status and body snippet", err)
	}
}

func TestGetChangedClients(t *testing.T) {
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/agencies/agency-7/clients/changes" {
			t.Errorf("path = %q", r.URL.Path)
		}
		gotQuery = r.URL.RawQuery
		_ = json.NewEncoder(w).Encode(map[string]any{
			"clientNumbers": []string{"HS100", "HS200"},
		})
	}))
	defer server.Close()

	client := New(server.URL, "key", "agency-7")
	changed, err := client.GetChangedClients(context.Background(), "2026-03-14T02:00:00Z", false)
	if err != nil {
		t.Fatalf("GetChangedClients: %v", err)
	}

	if !strings.Contains(gotQuery, "since=2026-03-14T02%3A00%3A00Z") {
		t.Errorf("query = %q, want the since cursor", gotQuery)
	}
	if strings.Contains(gotQuery, "deleted") {
		t.Errorf("query = %q, deleted flag should be absent", gotQuery)
	}
	if len(changed) != 2 || changed[0] != "HS100" {
		t.Errorf("changed = %v", changed)
	}
}

func TestGetChangedClientsIncludeDeleted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("deleted") != "true" {
			t.Errorf("deleted = %q, want true", r.URL.Query().Get("deleted"))
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"clientNumbers": []string{}})
	}))
	defer server.Close()

	client := New(server.URL, "key", "agency-7")
	if _, err := client.GetChangedClients(context.Background(), "2026-03-14T02:00:00Z", true); err != nil {
		t.Fatalf("GetChangedClients: %v", err)
	}
}

func TestBaseURLTrailingSlash(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "//") {
			t.Errorf("path %q contains a double slash", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"clients": []any{}})
	}))
	defer server.Close()

	client := New(server.URL+"/", "key", "agency-7")
	if _, err := client.GetClients(context.Background(), []string{"HS100"}, nil, nil); err != nil {
		t.Fatalf("GetClients: %v", err)
	}
}
