// Package search pushes synced customers and policies into Meilisearch so the
// dashboard's search stays current after each sync run.
package search

import (
	"log"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"

	"agencydesk/api/internal/store"
)

const (
	idxCustomers = "agencydesk_customers"
	idxPolicies  = "agencydesk_policies"
)

type customerDoc struct {
	ID          string `json:"id"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	AddressLine string `json:"addressLine"`
	City        string `json:"city"`
	State       string `json:"state"`
	Zip         string `json:"zip"`
}

type policyDoc struct {
	ID             string  `json:"id"`
	CustomerID     string  `json:"customerId"`
	PolicyNumber   string  `json:"policyNumber"`
	LineOfBusiness string  `json:"lineOfBusiness"`
	Carrier        string  `json:"carrier"`
	Status         string  `json:"status"`
	Premium        float64 `json:"premium"`
}

// Meili is the Meilisearch indexer. A nil *Meili is a valid no-op.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures the indexes. The
// service degrades to unhealthy (indexing skipped) when unreachable.
func NewMeili(url, apiKey string) *Meili {
	client := meili.New(url, meili.WithAPIKey(apiKey))

	m := &Meili{
		client: client,
		done:   make(chan struct{}),
	}

	if _, err := client.Health(); err != nil {
		log.Printf("search: meilisearch unavailable at %s: %v", url, err)
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndexes()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndexes() {
	indexes := []struct {
		uid        string
		filterable []string
		searchable []string
	}{
		{
			uid:        idxCustomers,
			filterable: []string{"state", "city"},
			searchable: []string{"firstName", "lastName", "email", "phone", "addressLine"},
		},
		{
			uid:        idxPolicies,
			filterable: []string{"status", "lineOfBusiness", "carrier", "customerId"},
			searchable: []string{"policyNumber", "carrier", "lineOfBusiness"},
		},
	}

	for _, idx := range indexes {
		if _, err := m.client.CreateIndex(&meili.IndexConfig{
			Uid:        idx.uid,
			PrimaryKey: "id",
		}); err != nil {
			log.Printf("search: create index %s (may already exist): %v", idx.uid, err)
		}

		index := m.client.Index(idx.uid)
		filterableInterface := make([]interface{}, len(idx.filterable))
		for i, v := range idx.filterable {
			filterableInterface[i] = v
		}
		if _, err := index.UpdateFilterableAttributes(&filterableInterface); err != nil {
			log.Printf("search: update filterable attrs for %s: %v", idx.uid, err)
		}
		if _, err := index.UpdateSearchableAttributes(&idx.searchable); err != nil {
			log.Printf("search: update searchable attrs for %s: %v", idx.uid, err)
		}
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				log.Println("search: meilisearch recovered, reconfiguring indexes")
				m.configureIndexes()
			}
		}
	}
}

// IndexCustomers upserts customer documents. Failures are logged, never
// surfaced: search lag is acceptable, a failed sync run is not.
func (m *Meili) IndexCustomers(customers []store.Customer) {
	if m == nil || !m.healthy.Load() || len(customers) == 0 {
		return
	}
	docs := make([]customerDoc, 0, len(customers))
	for _, c := range customers {
		docs = append(docs, customerDoc{
			ID:          c.ID,
			FirstName:   c.FirstName,
			LastName:    c.LastName,
			Email:       c.Email,
			Phone:       c.Phone,
			AddressLine: c.AddressLine,
			City:        c.City,
			State:       c.State,
			Zip:         c.Zip,
		})
	}
	if _, err := m.client.Index(idxCustomers).AddDocuments(docs, nil); err != nil {
		m.healthy.Store(false)
		log.Printf("search: index %d customers: %v", len(docs), err)
	}
}

// IndexPolicies upserts policy documents.
func (m *Meili) IndexPolicies(policies []store.Policy) {
	if m == nil || !m.healthy.Load() || len(policies) == 0 {
		return
	}
	docs := make([]policyDoc, 0, len(policies))
	for _, p := range policies {
		docs = append(docs, policyDoc{
			ID:             p.ID,
			CustomerID:     p.CustomerID,
			PolicyNumber:   p.PolicyNumber,
			LineOfBusiness: p.LineOfBusiness,
			Carrier:        p.Carrier,
			Status:         p.Status,
			Premium:        p.Premium,
		})
	}
	if _, err := m.client.Index(idxPolicies).AddDocuments(docs, nil); err != nil {
		m.healthy.Store(false)
		log.Printf("search: index %d policies: %v", len(docs), err)
	}
}

// Healthy reports whether Meilisearch is reachable.
func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}
