package hawksync

import (
	"strings"

	"agencydesk/api/internal/hawksoft"
	"agencydesk/api/internal/store"
)

// ExtractLineOfBusiness picks a line-of-business label from whichever signals
// the vendor populated. Data completeness varies by product line, so the
// precedence order matters:
//
//	structured LoB code > non-placeholder title > inferred from vehicles >
//	inferred from locations > type > policyType > lineOfBusiness > "Unknown"
func ExtractLineOfBusiness(p hawksoft.PolicyRecord) string {
	for _, lob := range p.LoBs {
		if code := strings.TrimSpace(lob.Code); code != "" {
			return code
		}
	}
	for _, lob := range p.LoBs {
		if title := strings.TrimSpace(lob.Title); title != "" && !strings.EqualFold(title, "general") {
			return title
		}
	}
	if title := strings.TrimSpace(p.Title); title != "" && !strings.EqualFold(title, "general") {
		return title
	}
	if len(p.Autos) > 0 {
		return "Personal Auto"
	}
	if len(p.Locations) > 0 {
		return "Homeowners"
	}
	if t := strings.TrimSpace(p.Type); t != "" {
		return t
	}
	if t := strings.TrimSpace(p.PolicyType); t != "" {
		return t
	}
	if t := strings.TrimSpace(p.LineOfBusiness); t != "" {
		return t
	}
	return "Unknown"
}

// MapStatus classifies the vendor's free-text policy status. Unrecognized and
// missing input default to active.
func MapStatus(raw string) string {
	status := strings.ToLower(raw)
	switch {
	case strings.Contains(status, "cancel"):
		return store.PolicyStatusCancelled
	case strings.Contains(status, "expire"):
		return store.PolicyStatusExpired
	case strings.Contains(status, "pending"):
		return store.PolicyStatusPending
	case strings.Contains(status, "non") && strings.Contains(status, "renew"):
		return store.PolicyStatusNonRenewed
	default:
		return store.PolicyStatusActive
	}
}

// Interest types recorded on mortgagee rows.
const (
	InterestLossPayee          = "loss_payee"
	InterestLienholder         = "lienholder"
	InterestAdditionalInterest = "additional_interest"
	InterestMortgagee          = "mortgagee"
)

// NormalizeInterestType maps the vendor's lienholder-type text onto our
// enum. "Second"/"2nd" mortgagees stay plain mortgagees, not a distinct type.
func NormalizeInterestType(raw string) string {
	t := strings.ToLower(raw)
	switch {
	case strings.Contains(t, "loss"):
		return InterestLossPayee
	case strings.Contains(t, "lien"):
		return InterestLienholder
	case strings.Contains(t, "additional"):
		return InterestAdditionalInterest
	default:
		return InterestMortgagee
	}
}
