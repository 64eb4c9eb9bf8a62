package portal

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Complainant is the operator's identity and service details.
type Complainant struct {
	ISPName        string
	AccountNumber  string
	ServiceAddress string // "123 Main St, City, ST 12345"
	Phone          string
	Email          string
	FirstName      string
	LastName       string
	InternetMethod string // e.g. "Fiber", "Cable", "DSL"
}

// LabeledField is a form input located by its visible label.
type LabeledField struct {
	Label string
	Value string
}

// DropdownChoice selects Option in the dropdown whose label contains Label.
type DropdownChoice struct {
	Label  string
	Option string
}

// FormPlan is the complete set of values to enter on the complaint form.
type FormPlan struct {
	Subject     string
	Description string
	Email       string
	Fields      []LabeledField
	Dropdowns   []DropdownChoice
}

// Subject returns the complaint subject line for an ISP.
func Subject(ispName string) string {
	return fmt.Sprintf("Internet Speed Below Advertised - %s", ispName)
}

// BuildForm lays out the form values for a complaint description.
func BuildForm(c Complainant, description string) FormPlan {
	street, city, state, zip := ParseAddress(c.ServiceAddress)

	method := c.InternetMethod
	if method == "" {
		method = "Fiber"
	}

	plan := FormPlan{
		Subject:     Subject(c.ISPName),
		Description: TruncateDescription(description),
		Email:       c.Email,
		// Issue type first; it reveals the remaining dropdowns.
		Dropdowns: []DropdownChoice{
			{Label: "Internet Issues", Option: "Speed"},
			{Label: "Sub Issue", Option: "Less than Advertised"},
			{Label: "Internet Method", Option: method},
			{Label: "Company", Option: c.ISPName},
			{Label: "Relationship", Option: "Current"},
			{Label: "Contacted", Option: "Yes"},
			{Label: "Filing on Behalf of Someone", Option: "No"},
		},
	}
	if state != "" {
		plan.Dropdowns = append(plan.Dropdowns, DropdownChoice{Label: "State", Option: StateName(state)})
	}

	for _, f := range []LabeledField{
		{Label: "Account Number", Value: c.AccountNumber},
		{Label: "Your First Name", Value: c.FirstName},
		{Label: "Your Last Name", Value: c.LastName},
		{Label: "Address 1", Value: street},
		{Label: "City", Value: city},
		{Label: "Zip Code", Value: zip},
		{Label: "Phone", Value: FormatPhone(c.Phone)},
	} {
		if f.Value != "" {
			plan.Fields = append(plan.Fields, f)
		}
	}
	return plan
}

// TruncateDescription cuts text to the portal's limit, marking the cut.
func TruncateDescription(text string) string {
	if len(text) <= MaxDescriptionLength {
		return text
	}
	cut := text[:MaxDescriptionLength]
	for !utf8.ValidString(cut) {
		cut = cut[:len(cut)-1]
	}
	return cut + TruncationNotice
}

// ParseAddress splits "street, [city,] ST zip" into its parts.
func ParseAddress(addr string) (street, city, state, zip string) {
	parts := strings.Split(addr, ",")
	if len(parts) < 2 {
		return strings.TrimSpace(addr), "", "", ""
	}

	street = strings.TrimSpace(parts[0])
	if len(parts) > 2 {
		city = strings.TrimSpace(parts[1])
	}

	csz := strings.Fields(parts[len(parts)-1])
	switch {
	case len(csz) >= 2:
		zip = csz[len(csz)-1]
		state = csz[len(csz)-2]
		if city == "" {
			city = strings.Join(csz[:len(csz)-2], " ")
		}
	case len(csz) == 1:
		zip = csz[0]
	}
	return street, city, state, zip
}

// FormatPhone renders a 10-digit number as NNN-NNN-NNNN; anything else is
// returned with separators stripped.
func FormatPhone(phone string) string {
	var digits strings.Builder
	for _, r := range phone {
		if unicode.IsDigit(r) || r == '+' {
			digits.WriteRune(r)
		}
	}
	d := digits.String()
	if len(d) == 10 {
		return d[:3] + "-" + d[3:6] + "-" + d[6:]
	}
	return d
}

var stateNames = map[string]string{
	"AL": "Alabama", "AK": "Alaska", "AZ": "Arizona", "AR": "Arkansas", "CA": "California",
	"CO": "Colorado", "CT": "Connecticut", "DE": "Delaware", "DC": "District of Columbia",
	"FL": "Florida", "GA": "Georgia", "HI": "Hawaii", "ID": "Idaho", "IL": "Illinois",
	"IN": "Indiana", "IA": "Iowa", "KS": "Kansas", "KY": "Kentucky", "LA": "Louisiana",
	"ME": "Maine", "MD": "Maryland", "MA": "Massachusetts", "MI": "Michigan", "MN": "Minnesota",
	"MS": "Mississippi", "MO": "Missouri", "MT": "Montana", "NE": "Nebraska", "NV": "Nevada",
	"NH": "New Hampshire", "NJ": "New Jersey", "NM": "New Mexico", "NY": "New York",
	"NC": "North Carolina", "ND": "North Dakota", "OH": "Ohio", "OK": "Oklahoma", "OR": "Oregon",
	"PA": "Pennsylvania", "RI": "Rhode Island", "SC": "South Carolina", "SD": "South Dakota",
	"TN": "Tennessee", "TX": "Texas", "UT": "Utah", "VT": "Vermont", "VA": "Virginia",
	"WA": "Washington", "WV": "West Virginia", "WI": "Wisconsin", "WY": "Wyoming",
}

// StateName expands a US state abbreviation; other input is returned as-is.
func StateName(abbrev string) string {
	if name, ok := stateNames[strings.ToUpper(strings.TrimSpace(abbrev))]; ok {
		return name
	}
	return abbrev
}
