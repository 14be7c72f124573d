package hawksync

import (
	"testing"

	"agencydesk/api/internal/hawksoft"
	"agencydesk/api/internal/store"
)

func TestExtractLineOfBusiness(t *testing.T) {
	cases := []struct {
		name   string
		policy hawksoft.PolicyRecord
		want   string
	}{
		{
			name: "lob code wins over everything",
			policy: hawksoft.PolicyRecord{
				LoBs:  []hawksoft.LoB{{Code: "AUTOP", Title: "Personal Auto"}},
				Title: "Homeowners",
				Autos: []hawksoft.AutoRecord{{VIN: "1"}},
			},
			want: "AUTOP",
		},
		{
			name: "lob title used when code blank",
			policy: hawksoft.PolicyRecord{
				LoBs: []hawksoft.LoB{{Title: "Umbrella"}},
			},
			want: "Umbrella",
		},
		{
			name: "general lob title is a placeholder",
			policy: hawksoft.PolicyRecord{
				LoBs:  []hawksoft.LoB{{Title: "General"}},
				Autos: []hawksoft.AutoRecord{{VIN: "1"}},
			},
			want: "Personal Auto",
		},
		{
			name: "policy title used when not general",
			policy: hawksoft.PolicyRecord{
				Title: "Dwelling Fire",
			},
			want: "Dwelling Fire",
		},
		{
			name: "general title falls through to autos",
			policy: hawksoft.PolicyRecord{
				Title: "general",
				Autos: []hawksoft.AutoRecord{{VIN: "1"}},
			},
			want: "Personal Auto",
		},
		{
			name: "locations imply homeowners",
			policy: hawksoft.PolicyRecord{
				Locations: []hawksoft.LocationRecord{{AddressLine: "12 Oak St"}},
			},
			want: "Homeowners",
		},
		{
			name: "autos checked before locations",
			policy: hawksoft.PolicyRecord{
				Autos:     []hawksoft.AutoRecord{{VIN: "1"}},
				Locations: []hawksoft.LocationRecord{{AddressLine: "12 Oak St"}},
			},
			want: "Personal Auto",
		},
		{
			name:   "type field",
			policy: hawksoft.PolicyRecord{Type: "Motorcycle"},
			want:   "Motorcycle",
		},
		{
			name:   "policyType after type",
			policy: hawksoft.PolicyRecord{PolicyType: "Flood"},
			want:   "Flood",
		},
		{
			name:   "lineOfBusiness is the last resort signal",
			policy: hawksoft.PolicyRecord{LineOfBusiness: "Commercial Package"},
			want:   "Commercial Package",
		},
		{
			name:   "nothing populated",
			policy: hawksoft.PolicyRecord{},
			want:   "Unknown",
		},
		{
			name: "whitespace-only signals are skipped",
			policy: hawksoft.PolicyRecord{
				LoBs: []hawksoft.LoB{{Code: "  ", Title: " "}},
				Type: "  ",
			},
			want: "Unknown",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ExtractLineOfBusiness(tc.policy); got != tc.want {
				t.Fatalf("ExtractLineOfBusiness = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestMapStatus(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{"Active", store.PolicyStatusActive},
		{"", store.PolicyStatusActive},
		{"In Force", store.PolicyStatusActive},
		{"Cancelled - NonPay", store.PolicyStatusCancelled},
		{"CANCEL PENDING", store.PolicyStatusCancelled},
		{"Expired", store.PolicyStatusExpired},
		{"Pending Renewal", store.PolicyStatusPending},
		{"Non-Renewed", store.PolicyStatusNonRenewed},
		{"nonrenewal", store.PolicyStatusNonRenewed},
		{"Renewed", store.PolicyStatusActive},
	}

	for _, tc := range cases {
		if got := MapStatus(tc.raw); got != tc.want {
			t.Errorf("MapStatus(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}

func TestNormalizeInterestType(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{"Loss Payee", InterestLossPayee},
		{"LIENHOLDER", InterestLienholder},
		{"Additional Interest", InterestAdditionalInterest},
		{"Mortgagee", InterestMortgagee},
		{"2nd Mortgagee", InterestMortgagee},
		{"", InterestMortgagee},
	}

	for _, tc := range cases {
		if got := NormalizeInterestType(tc.raw); got != tc.want {
			t.Errorf("NormalizeInterestType(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}
