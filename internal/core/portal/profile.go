// Package portal describes the consumer-complaint portal: its URLs, form
// selectors, and how its pages are recognized. Pure data and functions; the
// browser adapter does the driving.
package portal

import "time"

// Default FCC consumer complaint portal locations.
const (
	DefaultSigninURL    = "https://consumercomplaints.fcc.gov/hc/en-us/signin"
	DefaultComplaintURL = "https://consumercomplaints.fcc.gov/hc/en-us/requests/new?ticket_form_id=38824"
)

// MaxDescriptionLength is the longest description the portal accepts comfortably.
const MaxDescriptionLength = 2900

// TruncationNotice is appended when a description is cut to fit.
const TruncationNotice = "\n\n[Full data available upon request]"

// Profile is everything the filing engine needs to know about the portal.
type Profile struct {
	SigninURL    string
	ComplaintURL string

	// URL fragments identifying pages.
	SigninMarker string
	FormMarker   string

	EmailSelectors       []string
	PasswordSelectors    []string
	LoginSubmitSelectors []string

	SubjectSelectors     []string
	DescriptionSelectors []string
	ContactEmailSelector []string
	SubmitSelectors      []string

	// Lower-cased markers. Challenge markers are searched in the title and
	// visible text, the others in the HTML.
	ChallengeTitleMarkers []string
	ChallengeTextMarkers  []string
	ErrorMarkers          []string
	DuplicateMarkers      []string

	// SettleDelay is how long to let scripts run after a navigation or click.
	SettleDelay time.Duration
}

// DefaultProfile returns the FCC portal profile.
func DefaultProfile() Profile {
	return Profile{
		SigninURL:    DefaultSigninURL,
		ComplaintURL: DefaultComplaintURL,
		SigninMarker: "signin",
		FormMarker:   "requests/new",

		EmailSelectors: []string{
			`[data-testid="email-input"]`,
			`input[type="email"]`,
			`input[name="email"]`,
			`#user_email`,
		},
		PasswordSelectors: []string{
			`input[type="password"]`,
			`input[name="password"]`,
		},
		LoginSubmitSelectors: []string{
			`button[type="submit"]`,
			`input[type="submit"]`,
		},

		SubjectSelectors: []string{`#request_subject`},
		DescriptionSelectors: []string{
			`#request_description`,
			`textarea[name*="description"]`,
		},
		ContactEmailSelector: []string{`input[name="request[anonymous_requester_email]"]`},
		SubmitSelectors: []string{
			`input[type="submit"][value="Submit"]`,
			`input[type="submit"]`,
			`button[type="submit"]`,
		},

		ChallengeTitleMarkers: []string{"just a moment", "attention required"},
		ChallengeTextMarkers: []string{
			"verify you are human",
			"checking your browser",
		},
		ErrorMarkers: []string{
			"errors prevented",
			"notification-error",
			"can't be blank",
			"is required",
		},
		DuplicateMarkers: []string{
			"duplicate request",
			"already submitted",
		},

		SettleDelay: 2 * time.Second,
	}
}

// WithURLs returns a copy of p with non-empty overrides applied.
func (p Profile) WithURLs(signinURL, complaintURL string) Profile {
	if signinURL != "" {
		p.SigninURL = signinURL
	}
	if complaintURL != "" {
		p.ComplaintURL = complaintURL
	}
	return p
}
