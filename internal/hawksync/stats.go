package hawksync

import (
	"fmt"
	"log"
	"time"
)

// RunStats accumulates the counters and trace lines for one sync invocation.
// It is threaded through every processing step instead of being global state.
type RunStats struct {
	Processed        int
	CustomersUpdated int
	PoliciesSynced   int
	MortgageesSynced int
	FrozenPolicies   int
	PolicyErrors     int
	APIErrors        int
	LockConflicts    int
	Logs             []string
}

// Logf records a timestamped trace line in the run report and mirrors it to
// the server log. The report is often the only observability a nightly job
// gets, so keep the lines human-readable.
func (s *RunStats) Logf(format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	s.Logs = append(s.Logs, time.Now().UTC().Format(time.RFC3339)+" "+line)
	log.Printf("sync: %s", line)
}

// Report is the response body for a sync invocation.
type Report struct {
	Success          bool     `json:"success"`
	Mode             string   `json:"mode"`
	TotalWithHS      int      `json:"totalWithHs"`
	Offset           int      `json:"offset"`
	Limit            int      `json:"limit"`
	Processed        int      `json:"processed"`
	CustomersUpdated int      `json:"customersUpdated"`
	PoliciesSynced   int      `json:"policiesSynced"`
	MortgageesSynced int      `json:"mortgageesSynced"`
	FrozenPolicies   int      `json:"frozenPolicies"`
	PolicyErrors     int      `json:"policyErrors"`
	APIErrors        int      `json:"apiErrors"`
	LockConflicts    int      `json:"lockConflicts"`
	HasMore          bool     `json:"hasMore"`
	NextOffset       *int     `json:"nextOffset"`
	NextURL          *string  `json:"nextUrl"`
	ChangedInVendor  *int     `json:"changedInHawkSoft,omitempty"`
	MatchedInDB      *int     `json:"matchedInDb,omitempty"`
	Duration         string   `json:"duration"`
	Logs             []string `json:"logs"`
	StartedAt        string   `json:"startedAt"`
}

func (r *Report) applyStats(stats *RunStats) {
	r.Processed = stats.Processed
	r.CustomersUpdated = stats.CustomersUpdated
	r.PoliciesSynced = stats.PoliciesSynced
	r.MortgageesSynced = stats.MortgageesSynced
	r.FrozenPolicies = stats.FrozenPolicies
	r.PolicyErrors = stats.PolicyErrors
	r.APIErrors = stats.APIErrors
	r.LockConflicts = stats.LockConflicts
	r.Logs = stats.Logs
	if r.Logs == nil {
		r.Logs = []string{}
	}
}
