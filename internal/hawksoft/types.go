package hawksoft

// ClientRecord is one agency-management client with its nested policy data,
// as returned by the partner API's client batch endpoint.
type ClientRecord struct {
	ClientNumber string         `json:"clientNumber"`
	FirstName    string         `json:"firstName"`
	LastName     string         `json:"lastName"`
	AddressLine  string         `json:"addressLine"`
	City         string         `json:"city"`
	State        string         `json:"state"`
	Zip          string         `json:"zip"`
	Policies     []PolicyRecord `json:"policies"`
}

type PolicyRecord struct {
	PolicyID       string `json:"policyId"`
	PolicyNumber   string `json:"policyNumber"`
	Status         string `json:"status"`
	Carrier        string `json:"carrier"`
	EffectiveDate  string `json:"effectiveDate"`
	ExpirationDate string `json:"expirationDate"`
	Premium        float64 `json:"premium"`

	// Line-of-business signals; completeness varies by product line.
	LoBs           []LoB  `json:"loBs"`
	Title          string `json:"title"`
	Type           string `json:"type"`
	PolicyType     string `json:"policyType"`
	LineOfBusiness string `json:"lineOfBusiness"`

	AgentCode1 string `json:"agentCode1"`
	AgentCode2 string `json:"agentCode2"`
	AgentCode3 string `json:"agentCode3"`

	Coverages           []CoverageRecord     `json:"coverages"`
	Autos               []AutoRecord         `json:"autos"`
	Drivers             []DriverRecord       `json:"drivers"`
	Locations           []LocationRecord     `json:"locations"`
	AdditionalInterests []AdditionalInterest `json:"additionalInterests"`
}

type LoB struct {
	Code  string `json:"code"`
	Title string `json:"title"`
}

type CoverageRecord struct {
	Type       string  `json:"type"`
	Limit      string  `json:"limit"`
	Deductible string  `json:"deductible"`
	Premium    float64 `json:"premium"`
}

type AutoRecord struct {
	Year  int    `json:"year"`
	Make  string `json:"make"`
	Model string `json:"model"`
	VIN   string `json:"vin"`
}

type DriverRecord struct {
	FirstName     string `json:"firstName"`
	LastName      string `json:"lastName"`
	DateOfBirth   string `json:"dateOfBirth"`
	LicenseNumber string `json:"licenseNumber"`
	LicenseState  string `json:"licenseState"`
}

type LocationRecord struct {
	AddressLine      string `json:"addressLine"`
	City             string `json:"city"`
	State            string `json:"state"`
	Zip              string `json:"zip"`
	YearBuilt        *int   `json:"yearBuilt"`
	SquareFeet       *int   `json:"squareFeet"`
	ConstructionType string `json:"constructionType"`
	RoofType         string `json:"roofType"`
}

type AdditionalInterest struct {
	Name        string `json:"name"`
	LoanNumber  string `json:"loanNumber"`
	Type        string `json:"type"`
	AddressLine string `json:"addressLine"`
	City        string `json:"city"`
	State       string `json:"state"`
	Zip         string `json:"zip"`
}
