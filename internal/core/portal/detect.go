package portal

import (
	"regexp"
	"strings"
)

// Page is the observable state of the current browser page.
type Page struct {
	URL     string
	Title   string
	Content string // HTML
	Text    string // visible text
}

// IsSigninPage reports whether the page is the portal's sign-in page.
func (p Profile) IsSigninPage(pg Page) bool {
	return strings.Contains(strings.ToLower(pg.URL), p.SigninMarker)
}

// IsComplaintForm reports whether the page is the new-complaint form.
func (p Profile) IsComplaintForm(pg Page) bool {
	return strings.Contains(strings.ToLower(pg.URL), p.FormMarker)
}

// IsChallenge reports whether an anti-automation challenge blocks the page.
// Only the title and visible text are consulted: a solved widget can leave
// its markup behind in the HTML.
func (p Profile) IsChallenge(pg Page) bool {
	title := strings.ToLower(pg.Title)
	for _, m := range p.ChallengeTitleMarkers {
		if strings.Contains(title, m) {
			return true
		}
	}
	text := strings.ToLower(pg.Text)
	for _, m := range p.ChallengeTextMarkers {
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}

// SubmissionOutcome classifies the page shown after clicking submit.
type SubmissionOutcome string

const (
	SubmissionAccepted       SubmissionOutcome = "accepted"
	SubmissionRejected       SubmissionOutcome = "rejected"
	SubmissionDuplicate      SubmissionOutcome = "duplicate"
	SubmissionSessionExpired SubmissionOutcome = "session_expired"
	SubmissionChallenged     SubmissionOutcome = "challenged"
)

// SubmissionResult is the classified post-submit page.
type SubmissionResult struct {
	Outcome         SubmissionOutcome
	ConfirmationRef string
	Detail          string
}

var (
	requestIDPath = regexp.MustCompile(`/requests/(\d+)`)
	requestIDText = regexp.MustCompile(`(?i)request\s*(?:#|number|id)\s*:?\s*(\d{4,})`)
)

// ClassifySubmission decides what the page after submission means.
// Order matters: an expired session redirects to sign-in, and a page still on
// the form after submit was rejected.
func (p Profile) ClassifySubmission(pg Page) SubmissionResult {
	if p.IsSigninPage(pg) {
		return SubmissionResult{Outcome: SubmissionSessionExpired, Detail: "redirected to sign-in"}
	}
	if p.IsChallenge(pg) {
		return SubmissionResult{Outcome: SubmissionChallenged, Detail: "challenge presented after submit"}
	}

	content := strings.ToLower(pg.Content)
	for _, m := range p.DuplicateMarkers {
		if strings.Contains(content, m) {
			return SubmissionResult{Outcome: SubmissionDuplicate, Detail: m}
		}
	}

	if p.IsComplaintForm(pg) {
		detail := "still on complaint form"
		for _, m := range p.ErrorMarkers {
			if strings.Contains(content, m) {
				detail = "form reported: " + m
				break
			}
		}
		return SubmissionResult{Outcome: SubmissionRejected, Detail: detail}
	}

	return SubmissionResult{Outcome: SubmissionAccepted, ConfirmationRef: ConfirmationRef(pg)}
}

// ConfirmationRef extracts the portal's request number, falling back to the URL.
func ConfirmationRef(pg Page) string {
	if m := requestIDPath.FindStringSubmatch(pg.URL); m != nil {
		return m[1]
	}
	if m := requestIDText.FindStringSubmatch(pg.Content); m != nil {
		return m[1]
	}
	return pg.URL
}
