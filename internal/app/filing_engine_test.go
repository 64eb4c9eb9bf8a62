package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/example/ispwatch/internal/core/complaint"
	"github.com/example/ispwatch/internal/core/filing"
	"github.com/example/ispwatch/internal/core/portal"
	"github.com/example/ispwatch/internal/ports/secondary"
)

const (
	testSigninURL    = "https://portal.test/hc/en-us/signin"
	testComplaintURL = "https://portal.test/hc/en-us/requests/new"
	testPeriod       = "2024-03-05"

	loginButton  = `button[type="submit"]`
	submitButton = `input[type="submit"][value="Submit"]`
)

var (
	signinPage    = secondary.PageState{URL: testSigninURL, Title: "Sign in"}
	homePage      = secondary.PageState{URL: "https://portal.test/hc/en-us", Title: "FCC Consumer Complaints"}
	formPage      = secondary.PageState{URL: testComplaintURL, Title: "Submit a request"}
	challengePage = secondary.PageState{URL: testSigninURL, Title: "Just a moment...", Content: `<div id="cf-challenge-running"></div>`}
	confirmedPage = secondary.PageState{URL: "https://portal.test/hc/en-us/requests/7311042", Title: "Request #7311042"}
)

type engineFixture struct {
	engine      *FilingEngineImpl
	cfg         FilingEngineConfig
	browser     *fakeBrowser
	launcher    *fakeLauncher
	sessions    *mockSessionStore
	diagnostics *mockDiagnostics
	complaints  *mockComplaintRepository
	ledger      *ComplaintServiceImpl
}

func newEngineFixture(t *testing.T, tweak func(*FilingEngineConfig)) *engineFixture {
	t.Helper()

	profile := portal.DefaultProfile().WithURLs(testSigninURL, testComplaintURL)
	profile.SettleDelay = 0

	b := newFakeBrowser()
	b.pages[testSigninURL] = signinPage
	b.pages[testComplaintURL] = formPage
	b.onClick[loginButton] = homePage
	b.onClick[submitButton] = confirmedPage

	cfg := FilingEngineConfig{
		Profile:          profile,
		Username:         "me@example.com",
		Password:         "secret",
		ChallengeTimeout: time.Second,
		PollInterval:     time.Millisecond,
		SessionTTL:       time.Hour,
	}
	if tweak != nil {
		tweak(&cfg)
	}

	f := &engineFixture{
		cfg:         cfg,
		browser:     b,
		launcher:    &fakeLauncher{browser: b},
		sessions:    &mockSessionStore{},
		diagnostics: &mockDiagnostics{},
		complaints:  newMockComplaintRepository(),
	}
	f.ledger = NewComplaintService(f.complaints, zaptest.NewLogger(t))
	f.engine = NewFilingEngine(f.launcher, f.sessions, f.diagnostics, f.ledger, cfg, zaptest.NewLogger(t))
	return f
}

func (f *engineFixture) open(t *testing.T) int64 {
	t.Helper()
	id, err := f.ledger.Open(context.Background(), OpenComplaintRequest{
		Period:         testPeriod,
		Text:           "download 310 Mbps against 1000 advertised",
		MeasurementIDs: []int64{1, 2},
	})
	if err != nil {
		t.Fatalf("failed to open complaint: %v", err)
	}
	return id
}

func (f *engineFixture) request(id int64) FilingRequest {
	c := portal.Complainant{
		ISPName:        "Comcast",
		ServiceAddress: "1 Main St, Denver, CO 80202",
		Email:          "me@example.com",
		FirstName:      "Pat",
	}
	return FilingRequest{
		ComplaintID: id,
		Period:      testPeriod,
		Form:        portal.BuildForm(c, "download 310 Mbps against 1000 advertised"),
		ShowBrowser: true,
	}
}

func (f *engineFixture) record(t *testing.T, id int64) *secondary.ComplaintRecord {
	t.Helper()
	r, ok := f.complaints.records[id]
	if !ok {
		t.Fatalf("complaint %d not found", id)
	}
	return r
}

func assertLegalPath(t *testing.T, history []filing.State) {
	t.Helper()
	if len(history) == 0 || history[0] != filing.StateInit {
		t.Fatalf("history must start at INIT: %v", history)
	}
	for i := 1; i < len(history); i++ {
		if !filing.CanTransition(history[i-1], history[i]) {
			t.Errorf("illegal transition %s -> %s in %v", history[i-1], history[i], history)
		}
	}
}

func TestFilingEngine_FreshSignIn(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := newEngineFixture(t, nil)
	id := f.open(t)

	res, err := f.engine.File(context.Background(), f.request(id))
	if err != nil {
		t.Fatalf("File failed: %v", err)
	}

	want := []filing.State{
		filing.StateInit, filing.StateAuthenticating, filing.StateFormFilling,
		filing.StateSubmitting, filing.StateConfirmed,
	}
	if diff := cmp.Diff(want, res.History); diff != "" {
		t.Errorf("history mismatch (-want +got):\n%s", diff)
	}
	if res.State != filing.StateConfirmed || res.Status != complaint.StatusFiled {
		t.Errorf("unexpected result %+v", res)
	}
	if res.ConfirmationRef != "7311042" {
		t.Errorf("ConfirmationRef = %q, want 7311042", res.ConfirmationRef)
	}

	rec := f.record(t, id)
	if rec.Status != string(complaint.StatusFiled) || rec.ConfirmationRef != "7311042" {
		t.Errorf("record not filed: %+v", rec)
	}

	if got := f.browser.fills[`[data-testid="email-input"]`]; got != "me@example.com" {
		t.Errorf("email field = %q", got)
	}
	if got := f.browser.fills[`#request_subject`]; got != "Internet Speed Below Advertised - Comcast" {
		t.Errorf("subject = %q", got)
	}
	if got := f.browser.labeled["Your First Name"]; got != "Pat" {
		t.Errorf("first name = %q", got)
	}
	if diff := cmp.Diff([]string{"before-submit", "after-submit"}, f.diagnostics.labels); diff != "" {
		t.Errorf("diagnostics mismatch (-want +got):\n%s", diff)
	}
	if f.sessions.saves != 1 || f.sessions.artifact == nil || f.sessions.artifact.ExpiresAt.IsZero() {
		t.Errorf("session should be saved with an expiry, saves=%d", f.sessions.saves)
	}
	if !f.launcher.opts.Visible || !f.browser.closed {
		t.Errorf("expected a visible browser that is closed afterwards (opts=%+v closed=%v)", f.launcher.opts, f.browser.closed)
	}
}

func TestFilingEngine_SavedSessionRecognized(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := newEngineFixture(t, nil)
	f.sessions.artifact = &secondary.SessionArtifact{
		Version:   1,
		ExpiresAt: time.Now().Add(time.Hour),
		Data:      secondary.SessionData{Origin: "https://portal.test", Cookies: []secondary.Cookie{{Name: "_session"}}},
	}
	f.browser.pages[testSigninURL] = homePage
	id := f.open(t)

	res, err := f.engine.File(context.Background(), f.request(id))
	if err != nil {
		t.Fatalf("File failed: %v", err)
	}
	if res.State != filing.StateConfirmed {
		t.Fatalf("State = %s", res.State)
	}
	if f.browser.imported == nil || f.browser.imported.Origin != "https://portal.test" {
		t.Error("saved session was not imported")
	}
	if _, filled := f.browser.fills[`[data-testid="email-input"]`]; filled {
		t.Error("credentials should not be entered when the session is recognized")
	}
}

func TestFilingEngine_DiscardsUnusableSession(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*mockSessionStore)
	}{
		{
			name: "expired",
			setup: func(s *mockSessionStore) {
				s.artifact = &secondary.SessionArtifact{Version: 1, ExpiresAt: time.Now().Add(-time.Minute)}
			},
		},
		{
			name: "incompatible",
			setup: func(s *mockSessionStore) {
				s.loadErr = fmt.Errorf("%w: version 9", secondary.ErrSessionIncompatible)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newEngineFixture(t, nil)
			tt.setup(f.sessions)
			id := f.open(t)

			res, err := f.engine.File(context.Background(), f.request(id))
			if err != nil {
				t.Fatalf("File failed: %v", err)
			}
			if f.sessions.invalidated != 1 {
				t.Errorf("invalidated = %d, want 1", f.sessions.invalidated)
			}
			if f.browser.imported != nil {
				t.Error("unusable session must not be imported")
			}
			if res.State != filing.StateConfirmed {
				t.Errorf("State = %s", res.State)
			}
		})
	}
}

func TestFilingEngine_AuthFailure(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := newEngineFixture(t, nil)
	delete(f.browser.onClick, loginButton)
	id := f.open(t)

	res, err := f.engine.File(context.Background(), f.request(id))
	if !errors.Is(err, ErrAuthFailure) {
		t.Fatalf("expected ErrAuthFailure, got %v", err)
	}
	assertLegalPath(t, res.History)
	if res.State != filing.StateFailed {
		t.Errorf("State = %s", res.State)
	}

	rec := f.record(t, id)
	if rec.Status != string(complaint.StatusFailed) || !strings.Contains(rec.FailureReason, "still on sign-in") {
		t.Errorf("unexpected record %+v", rec)
	}
	if len(f.browser.clicks) != 1 {
		t.Errorf("expected one sign-in submission, got clicks %v", f.browser.clicks)
	}
}

func TestFilingEngine_HeadlessChallenge(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := newEngineFixture(t, nil)
	f.browser.pages[testSigninURL] = challengePage
	id := f.open(t)

	req := f.request(id)
	req.ShowBrowser = false
	res, err := f.engine.File(context.Background(), req)

	if !errors.Is(err, ErrChallengeUnattended) || !errors.Is(err, ErrChallengeTimeout) {
		t.Fatalf("expected ErrChallengeUnattended, got %v", err)
	}
	want := []filing.State{filing.StateInit, filing.StateAuthenticating, filing.StateAwaitingHumanChallenge, filing.StateFailed}
	if diff := cmp.Diff(want, res.History); diff != "" {
		t.Errorf("history mismatch (-want +got):\n%s", diff)
	}
	if f.browser.pageCalls != 1 {
		t.Errorf("headless challenge must not be polled, pageCalls=%d", f.browser.pageCalls)
	}
	if f.launcher.opts.Visible {
		t.Error("browser should be headless")
	}
	if rec := f.record(t, id); rec.Status != string(complaint.StatusFailed) {
		t.Errorf("Status = %s, want FAILED", rec.Status)
	}
}

func TestFilingEngine_ChallengeClearedByOperator(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := newEngineFixture(t, nil)
	f.browser.pages[testSigninURL] = challengePage
	f.browser.pageHook = func(call int, cur secondary.PageState) secondary.PageState {
		if call >= 3 && cur.Title == challengePage.Title {
			return homePage
		}
		return cur
	}
	id := f.open(t)

	res, err := f.engine.File(context.Background(), f.request(id))
	if err != nil {
		t.Fatalf("File failed: %v", err)
	}
	want := []filing.State{
		filing.StateInit, filing.StateAuthenticating, filing.StateAwaitingHumanChallenge,
		filing.StateAuthenticating, filing.StateFormFilling, filing.StateSubmitting, filing.StateConfirmed,
	}
	if diff := cmp.Diff(want, res.History); diff != "" {
		t.Errorf("history mismatch (-want +got):\n%s", diff)
	}
	if f.sessions.saves != 2 {
		t.Errorf("session should be saved after the challenge and after confirmation, saves=%d", f.sessions.saves)
	}
}

func TestFilingEngine_ChallengeOnFormThenSubmit(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := newEngineFixture(t, nil)
	f.browser.pages[testSigninURL] = homePage
	// The challenge appears once the form is filled and clears on the next poll.
	filled := false
	f.browser.pageHook = func(call int, cur secondary.PageState) secondary.PageState {
		if cur.URL == testComplaintURL && len(f.browser.fills) > 0 && !filled {
			filled = true
			return secondary.PageState{URL: testComplaintURL, Title: "Attention Required!"}
		}
		if cur.Title == "Attention Required!" {
			return formPage
		}
		return cur
	}
	id := f.open(t)

	res, err := f.engine.File(context.Background(), f.request(id))
	if err != nil {
		t.Fatalf("File failed: %v", err)
	}
	want := []filing.State{
		filing.StateInit, filing.StateAuthenticating, filing.StateFormFilling,
		filing.StateAwaitingHumanChallenge, filing.StateSubmitting, filing.StateConfirmed,
	}
	if diff := cmp.Diff(want, res.History); diff != "" {
		t.Errorf("history mismatch (-want +got):\n%s", diff)
	}
}

func TestFilingEngine_TurnstileMarkupIsNotAChallenge(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := newEngineFixture(t, nil)
	f.browser.pages[testComplaintURL] = secondary.PageState{
		URL:     testComplaintURL,
		Title:   "Submit a request",
		Content: `<form id="new_request"><div class="cf-turnstile"><iframe src="https://challenges.cloudflare.com/cdn-cgi/challenge-platform"></iframe></div></form>`,
		Text:    "Submit a request\nSubject\nDescription",
	}
	id := f.open(t)

	res, err := f.engine.File(context.Background(), f.request(id))
	if err != nil {
		t.Fatalf("File failed: %v", err)
	}
	want := []filing.State{
		filing.StateInit, filing.StateAuthenticating, filing.StateFormFilling,
		filing.StateSubmitting, filing.StateConfirmed,
	}
	if diff := cmp.Diff(want, res.History); diff != "" {
		t.Errorf("history mismatch (-want +got):\n%s", diff)
	}
}

func TestFilingEngine_ChallengeTimeout(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := newEngineFixture(t, func(c *FilingEngineConfig) {
		c.ChallengeTimeout = 20 * time.Millisecond
		c.PollInterval = 2 * time.Millisecond
	})
	f.browser.pages[testSigninURL] = challengePage
	id := f.open(t)

	res, err := f.engine.File(context.Background(), f.request(id))
	if !errors.Is(err, ErrChallengeTimeout) || errors.Is(err, ErrChallengeUnattended) {
		t.Fatalf("expected ErrChallengeTimeout, got %v", err)
	}
	assertLegalPath(t, res.History)

	rec := f.record(t, id)
	if rec.Status != string(complaint.StatusFailed) || !strings.Contains(rec.FailureReason, "not cleared within") {
		t.Errorf("unexpected record %+v", rec)
	}
	if f.browser.pageCalls < 2 {
		t.Errorf("expected polling, pageCalls=%d", f.browser.pageCalls)
	}
}

func TestFilingEngine_CancelledDuringChallenge(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := newEngineFixture(t, func(c *FilingEngineConfig) {
		c.ChallengeTimeout = 10 * time.Second
	})
	f.browser.pages[testSigninURL] = challengePage

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.browser.pageHook = func(call int, cur secondary.PageState) secondary.PageState {
		if call == 2 {
			cancel()
		}
		return cur
	}
	id := f.open(t)

	res, err := f.engine.File(ctx, f.request(id))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if res.State != filing.StateFailed {
		t.Errorf("State = %s", res.State)
	}

	rec := f.record(t, id)
	if rec.Status != string(complaint.StatusFailed) || rec.FailureReason != ReasonInterrupted {
		t.Errorf("unexpected record %+v", rec)
	}
	if f.complaints.updateCtxErr != nil {
		t.Errorf("finalization must run on a live context, saw %v", f.complaints.updateCtxErr)
	}
	if !f.browser.closed {
		t.Error("browser should be closed")
	}
}

func TestFilingEngine_DryRun(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := newEngineFixture(t, nil)

	req := f.request(0)
	req.DryRun = true
	res, err := f.engine.File(context.Background(), req)
	if err != nil {
		t.Fatalf("File failed: %v", err)
	}
	if res.State != filing.StateDryRunHalted || res.Status != "" {
		t.Errorf("unexpected result %+v", res)
	}
	assertLegalPath(t, res.History)
	for _, c := range f.browser.clicks {
		if c == submitButton {
			t.Error("dry run must not click submit")
		}
	}
	if len(f.complaints.records) != 0 {
		t.Error("dry run must not touch complaint records")
	}
	if f.browser.fills[`#request_description`] == "" {
		t.Error("dry run should still fill the form")
	}
}

func TestFilingEngine_SubmissionOutcomes(t *testing.T) {
	tests := []struct {
		name        string
		after       secondary.PageState
		wantErr     error
		wantStatus  complaint.Status
		invalidated int
	}{
		{
			name:       "duplicate",
			after:      secondary.PageState{URL: testComplaintURL, Content: "This looks like a duplicate request."},
			wantErr:    ErrDuplicateSubmission,
			wantStatus: complaint.StatusSkippedDuplicate,
		},
		{
			name:       "rejected",
			after:      secondary.PageState{URL: testComplaintURL, Content: `<div class="notification-error">2 errors prevented</div>`},
			wantErr:    ErrSubmissionRejected,
			wantStatus: complaint.StatusFailed,
		},
		{
			name:        "session expired",
			after:       signinPage,
			wantErr:     ErrSessionExpired,
			wantStatus:  complaint.StatusFailed,
			invalidated: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newEngineFixture(t, nil)
			f.browser.onClick[submitButton] = tt.after
			id := f.open(t)

			res, err := f.engine.File(context.Background(), f.request(id))
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			assertLegalPath(t, res.History)
			if res.Status != tt.wantStatus {
				t.Errorf("result status = %s, want %s", res.Status, tt.wantStatus)
			}
			if rec := f.record(t, id); rec.Status != string(tt.wantStatus) {
				t.Errorf("record status = %s, want %s", rec.Status, tt.wantStatus)
			}
			if f.sessions.invalidated != tt.invalidated {
				t.Errorf("invalidated = %d, want %d", f.sessions.invalidated, tt.invalidated)
			}
			if filed, _ := f.complaints.HasFiled(context.Background(), testPeriod); filed {
				t.Error("period must not be FILED")
			}
		})
	}
}

func TestFilingEngine_AutomationErrorCapturesDiagnostics(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := newEngineFixture(t, nil)
	f.browser.missing[`#request_subject`] = true
	id := f.open(t)

	_, err := f.engine.File(context.Background(), f.request(id))
	var autoErr *AutomationError
	if !errors.As(err, &autoErr) {
		t.Fatalf("expected *AutomationError, got %v", err)
	}
	if autoErr.State != filing.StateFormFilling || !errors.Is(err, secondary.ErrElementNotFound) {
		t.Errorf("unexpected automation error %+v", autoErr)
	}
	if autoErr.Diagnostics != "/diag/failure-form_filling" {
		t.Errorf("Diagnostics = %q", autoErr.Diagnostics)
	}

	rec := f.record(t, id)
	if rec.Status != string(complaint.StatusFailed) || !strings.Contains(rec.FailureReason, "find subject field") {
		t.Errorf("unexpected record %+v", rec)
	}
}

func TestFilingEngine_LaunchFailure(t *testing.T) {
	f := newEngineFixture(t, nil)
	f.launcher.err = errors.New("chromium not found")
	id := f.open(t)

	res, err := f.engine.File(context.Background(), f.request(id))
	var autoErr *AutomationError
	if !errors.As(err, &autoErr) || autoErr.State != filing.StateInit {
		t.Fatalf("expected INIT automation error, got %v", err)
	}
	if res.State != filing.StateFailed {
		t.Errorf("State = %s", res.State)
	}
	if rec := f.record(t, id); rec.Status != string(complaint.StatusFailed) {
		t.Errorf("Status = %s", rec.Status)
	}
}

func TestFilingEngine_CaptureSession(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := newEngineFixture(t, nil)
	f.browser.pageHook = func(call int, cur secondary.PageState) secondary.PageState {
		if call >= 3 {
			return homePage
		}
		return cur
	}

	if err := f.engine.CaptureSession(context.Background()); err != nil {
		t.Fatalf("CaptureSession failed: %v", err)
	}
	if !f.launcher.opts.Visible {
		t.Error("session capture needs a visible browser")
	}
	if f.sessions.saves != 1 || f.sessions.artifact.Portal != testSigninURL {
		t.Errorf("session not saved: saves=%d artifact=%+v", f.sessions.saves, f.sessions.artifact)
	}
	if !f.browser.closed {
		t.Error("browser should be closed")
	}
}

func TestFilingEngine_CaptureSession_Timeout(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := newEngineFixture(t, func(c *FilingEngineConfig) {
		c.ChallengeTimeout = 10 * time.Millisecond
	})

	if err := f.engine.CaptureSession(context.Background()); !errors.Is(err, ErrChallengeTimeout) {
		t.Fatalf("expected ErrChallengeTimeout, got %v", err)
	}
	if f.sessions.saves != 0 {
		t.Error("nothing should be saved")
	}
}

func TestFilingEngine_ClearSession(t *testing.T) {
	f := newEngineFixture(t, nil)
	f.sessions.artifact = &secondary.SessionArtifact{Version: 1}
	if err := f.engine.ClearSession(context.Background()); err != nil {
		t.Fatalf("ClearSession failed: %v", err)
	}
	if f.sessions.invalidated != 1 || f.sessions.artifact != nil {
		t.Error("session should be discarded")
	}
}
