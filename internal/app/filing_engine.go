package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/ispwatch/internal/core/complaint"
	"github.com/example/ispwatch/internal/core/filing"
	"github.com/example/ispwatch/internal/core/portal"
	"github.com/example/ispwatch/internal/ctxutil"
	"github.com/example/ispwatch/internal/ports/secondary"
)

// maxLoginSubmissions bounds sign-in attempts within one filing attempt. A
// second submission is only made when a challenge interrupted the first.
const maxLoginSubmissions = 2

// FilingEngineConfig holds the portal profile, credentials and timing.
type FilingEngineConfig struct {
	Profile           portal.Profile
	Username          string
	Password          string
	ChallengeTimeout  time.Duration
	PollInterval      time.Duration
	SessionTTL        time.Duration
	NavigationTimeout time.Duration
	BrowserBin        string
	UserDataDir       string
}

// FilingRequest describes one filing attempt.
type FilingRequest struct {
	ComplaintID int64 // 0 when there is no record to finalize (dry run)
	Period      string
	Form        portal.FormPlan
	DryRun      bool
	ShowBrowser bool
}

// FilingResult reports how an attempt ended.
type FilingResult struct {
	State           filing.State
	Status          complaint.Status // terminal record status, empty for a dry run
	ConfirmationRef string
	History         []filing.State
	Diagnostics     []string
}

// ComplaintFinisher finalizes the PENDING record of an attempt.
type ComplaintFinisher interface {
	Finish(ctx context.Context, req FinishComplaintRequest) error
}

// FilingEngineImpl drives the complaint portal through the filing state machine.
type FilingEngineImpl struct {
	launcher    secondary.BrowserLauncher
	sessions    secondary.SessionStore
	diagnostics secondary.DiagnosticsSink
	complaints  ComplaintFinisher
	cfg         FilingEngineConfig
	now         func() time.Time
	logger      *zap.Logger
}

// NewFilingEngine creates a new FilingEngine with injected dependencies.
// diagnostics may be nil.
func NewFilingEngine(
	launcher secondary.BrowserLauncher,
	sessions secondary.SessionStore,
	diagnostics secondary.DiagnosticsSink,
	complaints ComplaintFinisher,
	cfg FilingEngineConfig,
	logger *zap.Logger,
) *FilingEngineImpl {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FilingEngineImpl{
		launcher:    launcher,
		sessions:    sessions,
		diagnostics: diagnostics,
		complaints:  complaints,
		cfg:         cfg,
		now:         time.Now,
		logger:      logger,
	}
}

// File runs one attempt to completion. The complaint record (if any) is
// finalized before File returns, even when ctx was cancelled.
func (e *FilingEngineImpl) File(ctx context.Context, req FilingRequest) (*FilingResult, error) {
	a := e.newAttempt(ctx, req)
	err := a.run(ctx)
	return e.finalize(ctx, a, err)
}

// CaptureSession opens a visible browser on the sign-in page and waits for
// the operator to sign in, then saves the session.
func (e *FilingEngineImpl) CaptureSession(ctx context.Context) error {
	a := e.newAttempt(ctx, FilingRequest{ShowBrowser: true})
	driver, err := e.launcher.Launch(ctx, e.browserOptions(true))
	if err != nil {
		return &AutomationError{State: filing.StateInit, Op: "launch browser", Err: err}
	}
	a.driver = driver
	defer a.closeDriver()

	p := e.cfg.Profile
	if err := a.navigate(ctx, p.SigninURL); err != nil {
		return err
	}
	a.logger.Info("sign in and clear any challenge in the browser window", zap.Duration("timeout", e.cfg.ChallengeTimeout))

	signedIn := func(pg portal.Page) bool { return !p.IsSigninPage(pg) && !p.IsChallenge(pg) }
	if err := a.pollUntil(ctx, signedIn); err != nil {
		return err
	}
	if !a.saveSession(ctx) {
		return fmt.Errorf("failed to save session to the session store")
	}
	return nil
}

// ClearSession discards the saved session.
func (e *FilingEngineImpl) ClearSession(ctx context.Context) error {
	if err := e.sessions.Invalidate(ctx); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

func (e *FilingEngineImpl) newAttempt(ctx context.Context, req FilingRequest) *attempt {
	logger := e.logger
	if runID := ctxutil.RunIDFromContext(ctx); runID != "" {
		logger = logger.With(zap.String("run_id", runID))
	}
	if req.Period != "" {
		logger = logger.With(zap.String("period", req.Period))
	}
	return &attempt{e: e, req: req, machine: filing.NewMachine(), logger: logger}
}

func (e *FilingEngineImpl) browserOptions(visible bool) secondary.BrowserOptions {
	return secondary.BrowserOptions{
		Visible:           visible,
		BrowserBin:        e.cfg.BrowserBin,
		UserDataDir:       e.cfg.UserDataDir,
		NavigationTimeout: e.cfg.NavigationTimeout,
	}
}

// loadSession returns the saved session, discarding one that is expired or
// unreadable.
func (e *FilingEngineImpl) loadSession(ctx context.Context, logger *zap.Logger) *secondary.SessionData {
	artifact, err := e.sessions.Load(ctx)
	switch {
	case errors.Is(err, secondary.ErrNoSession):
		logger.Debug("no saved session")
		return nil
	case errors.Is(err, secondary.ErrSessionIncompatible):
		logger.Warn("discarding incompatible saved session", zap.Error(err))
		e.invalidateSession(ctx, logger)
		return nil
	case err != nil:
		logger.Warn("failed to load saved session", zap.Error(err))
		return nil
	}

	if artifact.Expired(e.now()) {
		logger.Info("saved session expired", zap.Time("expires_at", artifact.ExpiresAt))
		e.invalidateSession(ctx, logger)
		return nil
	}
	return &artifact.Data
}

func (e *FilingEngineImpl) invalidateSession(ctx context.Context, logger *zap.Logger) {
	if err := e.sessions.Invalidate(ctx); err != nil {
		logger.Warn("failed to discard saved session", zap.Error(err))
	}
}

// finalize settles the machine and writes the record's terminal status on a
// context that outlives cancellation.
func (e *FilingEngineImpl) finalize(ctx context.Context, a *attempt, runErr error) (*FilingResult, error) {
	if runErr != nil && ctx.Err() != nil && !errors.Is(runErr, ctx.Err()) {
		runErr = fmt.Errorf("%w: %v", ctx.Err(), runErr)
	}
	if runErr != nil && a.machine.Fail() {
		a.logger.Warn("filing failed", zap.String("from", string(a.lastState())), zap.Error(runErr))
	}

	res := &a.result
	res.State = a.machine.Current()
	res.History = a.machine.History()

	finish := FinishComplaintRequest{ComplaintID: a.req.ComplaintID}
	switch {
	case runErr == nil && res.State == filing.StateConfirmed:
		finish.Status = complaint.StatusFiled
		finish.ConfirmationRef = res.ConfirmationRef
	case runErr == nil:
		return res, nil
	case errors.Is(runErr, ErrDuplicateSubmission):
		finish.Status = complaint.StatusSkippedDuplicate
		finish.FailureReason = runErr.Error()
	case ctx.Err() != nil:
		finish.Status = complaint.StatusFailed
		finish.FailureReason = ReasonInterrupted
	default:
		finish.Status = complaint.StatusFailed
		finish.FailureReason = runErr.Error()
	}
	res.Status = finish.Status

	if a.req.ComplaintID == 0 {
		return res, runErr
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := e.complaints.Finish(writeCtx, finish); err != nil {
		a.logger.Error("failed to record filing outcome",
			zap.Int64("complaint_id", a.req.ComplaintID),
			zap.String("status", string(finish.Status)),
			zap.String("confirmation_ref", finish.ConfirmationRef),
			zap.Error(err),
		)
		if runErr == nil {
			return res, fmt.Errorf("complaint confirmed as %s but not recorded: %w", res.ConfirmationRef, err)
		}
		return res, errors.Join(runErr, err)
	}
	return res, runErr
}

// attempt is the state of one pass through the portal.
type attempt struct {
	e       *FilingEngineImpl
	req     FilingRequest
	machine *filing.Machine
	driver  secondary.BrowserDriver
	logger  *zap.Logger
	result  FilingResult
}

func (a *attempt) run(ctx context.Context) error {
	session := a.e.loadSession(ctx, a.logger)

	driver, err := a.e.launcher.Launch(ctx, a.e.browserOptions(a.req.ShowBrowser))
	if err != nil {
		return &AutomationError{State: filing.StateInit, Op: "launch browser", Err: err}
	}
	a.driver = driver
	defer a.closeDriver()

	if session != nil {
		if err := driver.ImportSession(ctx, session); err != nil {
			a.logger.Warn("failed to restore saved session, signing in fresh", zap.Error(err))
		} else {
			a.logger.Debug("saved session restored", zap.Int("cookies", len(session.Cookies)))
		}
	}

	err = a.steps(ctx)

	var autoErr *AutomationError
	if errors.As(err, &autoErr) && ctx.Err() == nil {
		autoErr.Diagnostics = a.capture(ctx, "failure-"+strings.ToLower(string(autoErr.State)))
	}
	return err
}

func (a *attempt) steps(ctx context.Context) error {
	if err := a.advance(filing.StateAuthenticating); err != nil {
		return err
	}
	if err := a.authenticate(ctx); err != nil {
		return err
	}
	if err := a.advance(filing.StateFormFilling); err != nil {
		return err
	}
	if err := a.fillForm(ctx); err != nil {
		return err
	}
	return a.submit(ctx)
}

func (a *attempt) advance(next filing.State) error {
	from := a.machine.Current()
	if err := a.machine.Advance(next); err != nil {
		return &AutomationError{State: from, Op: "advance", Err: err}
	}
	a.logger.Info("filing state", zap.String("from", string(from)), zap.String("to", string(next)))
	return nil
}

// lastState is the state before FAILED.
func (a *attempt) lastState() filing.State {
	h := a.machine.History()
	if len(h) < 2 {
		return h[len(h)-1]
	}
	return h[len(h)-2]
}

func (a *attempt) authenticate(ctx context.Context) error {
	p := a.e.cfg.Profile
	if err := a.navigate(ctx, p.SigninURL); err != nil {
		return err
	}

	submissions := 0
	resumed := false
	for {
		pg, err := a.page(ctx)
		if err != nil {
			return err
		}

		if p.IsChallenge(pg) {
			if err := a.awaitChallenge(ctx, filing.StateAuthenticating); err != nil {
				return err
			}
			resumed = true
			continue
		}

		if !p.IsSigninPage(pg) {
			if submissions == 0 {
				a.logger.Info("portal recognized saved session")
			} else {
				a.logger.Info("signed in to portal")
			}
			return nil
		}

		if submissions >= maxLoginSubmissions || (submissions > 0 && !resumed) {
			return fmt.Errorf("%w: still on sign-in after %d submission(s)", ErrAuthFailure, submissions)
		}
		if err := a.signIn(ctx); err != nil {
			return err
		}
		submissions++
		resumed = false
	}
}

func (a *attempt) signIn(ctx context.Context) error {
	cfg := a.e.cfg
	if cfg.Username == "" || cfg.Password == "" {
		return fmt.Errorf("%w: no portal credentials configured", ErrAuthFailure)
	}
	if err := a.fillFirst(ctx, "email field", cfg.Profile.EmailSelectors, cfg.Username); err != nil {
		return err
	}
	if err := a.fillFirst(ctx, "password field", cfg.Profile.PasswordSelectors, cfg.Password); err != nil {
		return err
	}
	if err := a.clickFirst(ctx, "sign-in button", cfg.Profile.LoginSubmitSelectors); err != nil {
		return err
	}
	return a.settle(ctx)
}

func (a *attempt) fillForm(ctx context.Context) error {
	p := a.e.cfg.Profile
	if err := a.navigate(ctx, p.ComplaintURL); err != nil {
		return err
	}

	pg, err := a.page(ctx)
	if err != nil {
		return err
	}
	if p.IsChallenge(pg) {
		if err := a.awaitChallenge(ctx, filing.StateFormFilling); err != nil {
			return err
		}
		if pg, err = a.page(ctx); err != nil {
			return err
		}
	}
	if p.IsSigninPage(pg) {
		return fmt.Errorf("%w: complaint form redirected to sign-in", ErrSessionExpired)
	}

	form := a.req.Form
	if err := a.fillFirst(ctx, "subject field", p.SubjectSelectors, form.Subject); err != nil {
		return err
	}
	if err := a.fillFirst(ctx, "description field", p.DescriptionSelectors, form.Description); err != nil {
		return err
	}
	if form.Email != "" {
		if err := a.fillFirst(ctx, "contact email field", p.ContactEmailSelector, form.Email); err != nil {
			a.logger.Debug("contact email not filled", zap.Error(err))
		}
	}

	for _, d := range form.Dropdowns {
		ok, err := a.driver.ChooseByLabel(ctx, d.Label, d.Option)
		if err != nil || !ok {
			a.logger.Debug("dropdown not set", zap.String("label", d.Label), zap.String("option", d.Option), zap.Error(err))
		}
	}
	for _, f := range form.Fields {
		ok, err := a.driver.FillByLabel(ctx, f.Label, f.Value)
		if err != nil || !ok {
			a.logger.Debug("field not filled", zap.String("label", f.Label), zap.Error(err))
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := a.settle(ctx); err != nil {
		return err
	}

	if pg, err = a.page(ctx); err != nil {
		return err
	}
	if p.IsChallenge(pg) {
		return a.awaitChallenge(ctx, filing.StateSubmitting)
	}
	return a.advance(filing.StateSubmitting)
}

func (a *attempt) submit(ctx context.Context) error {
	p := a.e.cfg.Profile
	if a.req.DryRun {
		a.logger.Info("dry run: stopping before submission")
		return a.advance(filing.StateDryRunHalted)
	}

	a.capture(ctx, "before-submit")
	if err := a.clickFirst(ctx, "submit button", p.SubmitSelectors); err != nil {
		return err
	}
	if err := a.settle(ctx); err != nil {
		return err
	}
	a.capture(ctx, "after-submit")

	pg, err := a.page(ctx)
	if err != nil {
		return err
	}
	res := p.ClassifySubmission(pg)
	if res.Outcome == portal.SubmissionChallenged {
		a.logger.Warn("challenge presented after submit")
		if err := a.waitForChallenge(ctx); err != nil {
			return err
		}
		if pg, err = a.page(ctx); err != nil {
			return err
		}
		res = p.ClassifySubmission(pg)
	}

	a.logger.Info("submission classified", zap.String("outcome", string(res.Outcome)), zap.String("detail", res.Detail))
	switch res.Outcome {
	case portal.SubmissionSessionExpired:
		a.e.invalidateSession(ctx, a.logger)
		return fmt.Errorf("%w: %s", ErrSessionExpired, res.Detail)
	case portal.SubmissionDuplicate:
		return fmt.Errorf("%w: %s", ErrDuplicateSubmission, res.Detail)
	case portal.SubmissionRejected:
		return fmt.Errorf("%w: %s", ErrSubmissionRejected, res.Detail)
	case portal.SubmissionChallenged:
		return fmt.Errorf("%w: challenge presented again after submission", ErrChallengeTimeout)
	}

	if err := a.advance(filing.StateConfirmed); err != nil {
		return err
	}
	a.result.ConfirmationRef = res.ConfirmationRef
	a.logger.Info("complaint confirmed", zap.String("confirmation_ref", res.ConfirmationRef))
	a.saveSession(ctx)
	return nil
}

// awaitChallenge moves to AWAITING_HUMAN_CHALLENGE, waits, then moves to resume.
func (a *attempt) awaitChallenge(ctx context.Context, resume filing.State) error {
	if err := a.advance(filing.StateAwaitingHumanChallenge); err != nil {
		return err
	}
	if err := a.waitForChallenge(ctx); err != nil {
		return err
	}
	return a.advance(resume)
}

func (a *attempt) waitForChallenge(ctx context.Context) error {
	if !a.req.ShowBrowser {
		return ErrChallengeUnattended
	}
	p := a.e.cfg.Profile
	a.logger.Warn("challenge presented: complete it in the browser window",
		zap.Duration("timeout", a.e.cfg.ChallengeTimeout))

	if err := a.pollUntil(ctx, func(pg portal.Page) bool { return !p.IsChallenge(pg) }); err != nil {
		return err
	}
	a.logger.Info("challenge cleared")
	a.saveSession(ctx)
	return nil
}

// pollUntil reads the page every poll interval until done reports true, the
// challenge timeout passes, or ctx is cancelled.
func (a *attempt) pollUntil(ctx context.Context, done func(portal.Page) bool) error {
	timeout := a.e.cfg.ChallengeTimeout
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(a.e.cfg.PollInterval)
	defer ticker.Stop()

	started := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return fmt.Errorf("%w: not cleared within %s", ErrChallengeTimeout, timeout)
		case <-ticker.C:
			st, err := a.driver.Page(ctx)
			if err != nil {
				a.logger.Debug("page not readable while waiting", zap.Error(err))
				continue
			}
			if done(portal.Page{URL: st.URL, Title: st.Title, Content: st.Content, Text: st.Text}) {
				return nil
			}
			a.logger.Debug("still waiting for operator",
				zap.Duration("waited", time.Since(started).Round(time.Second)),
				zap.Duration("timeout", timeout))
		}
	}
}

func (a *attempt) navigate(ctx context.Context, url string) error {
	if err := a.driver.Navigate(ctx, url); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &AutomationError{State: a.machine.Current(), Op: "navigate to " + url, Err: err}
	}
	return a.settle(ctx)
}

func (a *attempt) page(ctx context.Context) (portal.Page, error) {
	st, err := a.driver.Page(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return portal.Page{}, ctx.Err()
		}
		return portal.Page{}, &AutomationError{State: a.machine.Current(), Op: "read page", Err: err}
	}
	return portal.Page{URL: st.URL, Title: st.Title, Content: st.Content, Text: st.Text}, nil
}

// settle gives the page's scripts time to run after a navigation or click.
func (a *attempt) settle(ctx context.Context) error {
	delay := a.e.cfg.Profile.SettleDelay
	if delay <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// fillFirst fills the first selector that matches.
func (a *attempt) fillFirst(ctx context.Context, what string, selectors []string, value string) error {
	for _, sel := range selectors {
		err := a.driver.Fill(ctx, sel, value)
		if err == nil {
			return nil
		}
		if !errors.Is(err, secondary.ErrElementNotFound) {
			return &AutomationError{State: a.machine.Current(), Op: "fill " + what, Err: err}
		}
	}
	return &AutomationError{State: a.machine.Current(), Op: "find " + what, Err: secondary.ErrElementNotFound}
}

// clickFirst clicks the first selector that matches.
func (a *attempt) clickFirst(ctx context.Context, what string, selectors []string) error {
	for _, sel := range selectors {
		err := a.driver.Click(ctx, sel)
		if err == nil {
			return nil
		}
		if !errors.Is(err, secondary.ErrElementNotFound) {
			return &AutomationError{State: a.machine.Current(), Op: "click " + what, Err: err}
		}
	}
	return &AutomationError{State: a.machine.Current(), Op: "find " + what, Err: secondary.ErrElementNotFound}
}

// capture saves a page snapshot and returns where it went.
func (a *attempt) capture(ctx context.Context, label string) string {
	if a.e.diagnostics == nil || a.driver == nil {
		return ""
	}
	snap, err := a.driver.Snapshot(ctx)
	if err != nil {
		a.logger.Warn("failed to capture page", zap.String("label", label), zap.Error(err))
		return ""
	}
	path, err := a.e.diagnostics.Save(ctx, label, snap)
	if err != nil {
		a.logger.Warn("failed to save diagnostics", zap.String("label", label), zap.Error(err))
		return ""
	}
	a.result.Diagnostics = append(a.result.Diagnostics, path)
	a.logger.Info("diagnostics captured", zap.String("label", label), zap.String("path", path))
	return path
}

// saveSession persists the browser's current session. It reports success.
func (a *attempt) saveSession(ctx context.Context) bool {
	data, err := a.driver.ExportSession(ctx)
	if err != nil {
		a.logger.Warn("failed to export session", zap.Error(err))
		return false
	}

	now := a.e.now().UTC()
	artifact := &secondary.SessionArtifact{
		SavedAt: now,
		Portal:  a.e.cfg.Profile.SigninURL,
		Data:    *data,
	}
	if a.e.cfg.SessionTTL > 0 {
		artifact.ExpiresAt = now.Add(a.e.cfg.SessionTTL)
	}
	if err := a.e.sessions.Save(ctx, artifact); err != nil {
		a.logger.Warn("failed to save session", zap.Error(err))
		return false
	}
	a.logger.Info("session saved", zap.Int("cookies", len(data.Cookies)), zap.Time("expires_at", artifact.ExpiresAt))
	return true
}

func (a *attempt) closeDriver() {
	if err := a.driver.Close(); err != nil {
		a.logger.Debug("failed to close browser", zap.Error(err))
	}
}
