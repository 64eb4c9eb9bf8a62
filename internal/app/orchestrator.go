package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/example/ispwatch/internal/core/filing"
	"github.com/example/ispwatch/internal/core/outcome"
	"github.com/example/ispwatch/internal/core/period"
	"github.com/example/ispwatch/internal/core/portal"
	"github.com/example/ispwatch/internal/core/report"
	"github.com/example/ispwatch/internal/core/threshold"
	"github.com/example/ispwatch/internal/ctxutil"
	"github.com/example/ispwatch/internal/ports/primary"
	"github.com/example/ispwatch/internal/ports/secondary"
)

// Measurer records one measurement.
type Measurer interface {
	Measure(ctx context.Context) (*secondary.MeasurementRecord, error)
}

// ComplaintLedger creates complaint records and clears abandoned ones.
type ComplaintLedger interface {
	HasFiled(ctx context.Context, period string) (bool, error)
	Open(ctx context.Context, req OpenComplaintRequest) (int64, error)
	AbandonOpen(ctx context.Context, period string) (int, error)
}

// FilingGuard admits at most one filing run at a time.
type FilingGuard interface {
	TryAcquire(ctx context.Context, period string) (*Admission, error)
	Release(ctx context.Context, adm *Admission) error
}

// Filer drives the complaint portal.
type Filer interface {
	File(ctx context.Context, req FilingRequest) (*FilingResult, error)
	CaptureSession(ctx context.Context) error
	ClearSession(ctx context.Context) error
}

// Puller fetches a period's measurements from the measurement host.
type Puller interface {
	Pull(ctx context.Context, period string) (*SyncResult, error)
}

// Notifications reports runs to the operator.
type Notifications interface {
	NotifyFiling(ctx context.Context, status report.FilingStatus, period, confirmationRef, failure, complaintText string)
	NotifySummary(ctx context.Context, subject, body string)
}

// OrchestratorSettings is the evaluation and identity configuration of a run.
type OrchestratorSettings struct {
	Contract          threshold.Contract
	Aggregation       threshold.Policy
	ReportAggregation threshold.Policy
	MinFailures       int
	Location          *time.Location
	Complainant       portal.Complainant

	// FilingConfigErr is non-nil when credentials or form fields are
	// incomplete; it is reported only by runs that would open the portal.
	FilingConfigErr error
}

// OrchestratorDeps are the services a run uses. Sync is nil without a
// measurement host.
type OrchestratorDeps struct {
	Measurer     Measurer
	Measurements secondary.MeasurementRepository
	Complaints   ComplaintLedger
	Guard        FilingGuard
	Engine       Filer
	Sync         Puller
	Notify       Notifications
}

// OrchestratorImpl implements the Orchestrator interface.
type OrchestratorImpl struct {
	deps     OrchestratorDeps
	settings OrchestratorSettings
	now      func() time.Time
	logger   *zap.Logger
}

var _ primary.Orchestrator = (*OrchestratorImpl)(nil)

// NewOrchestrator creates a new Orchestrator with injected dependencies.
func NewOrchestrator(deps OrchestratorDeps, settings OrchestratorSettings, logger *zap.Logger) *OrchestratorImpl {
	if settings.Location == nil {
		settings.Location = time.Local
	}
	if settings.Aggregation == "" {
		settings.Aggregation = threshold.PolicySingle
	}
	if settings.ReportAggregation == "" {
		settings.ReportAggregation = threshold.PolicyMin
	}
	if settings.MinFailures < 1 {
		settings.MinFailures = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrchestratorImpl{deps: deps, settings: settings, now: time.Now, logger: logger}
}

// RunMeasurement measures once, evaluates, and files when the connection is
// below threshold.
func (o *OrchestratorImpl) RunMeasurement(ctx context.Context, opts primary.RunOptions) (*primary.RunOutcome, error) {
	ctx, logger := o.startRun(ctx, "measurement")

	if opensPortal(opts) && o.settings.FilingConfigErr != nil {
		return o.fail(logger, &primary.RunOutcome{}, "filing is not configured", o.settings.FilingConfigErr)
	}

	rec, err := o.deps.Measurer.Measure(ctx)
	if err != nil {
		return o.fail(logger, &primary.RunOutcome{}, "measurement failed", err)
	}

	p := period.Of(rec.TakenAt, o.settings.Location)
	out := &primary.RunOutcome{
		Period:      p.String(),
		Measurement: toMeasurement(rec, o.settings.Contract),
	}

	minFailures := 1
	if opts.MinFailures > 0 {
		minFailures = opts.MinFailures
	}

	// The new measurement is always last, so the single policy judges it
	// while failures are counted across the whole period.
	records := []*secondary.MeasurementRecord{rec}
	if o.settings.Aggregation != threshold.PolicySingle || minFailures > 1 {
		stored, err := o.deps.Measurements.Query(ctx, p.Start(), p.End())
		if err != nil {
			return o.fail(logger, out, "failed to read measurements", err)
		}
		records = records[:0]
		for _, r := range stored {
			if r.ID != rec.ID {
				records = append(records, r)
			}
		}
		records = append(records, rec)
	}

	decision, err := o.decide(logger, out, windowOf(records), o.settings.Aggregation, minFailures)
	if err != nil {
		return o.fail(logger, out, "evaluation failed", err)
	}
	if !decision.ShouldFile() {
		out.Kind = outcome.KindOK
		return out, nil
	}

	text := report.SingleComplaint(o.service(), sampleOf(rec), o.settings.Location)
	return o.fileOrHold(ctx, logger, p, text, o.failingIDs(records), opts, out)
}

// RunReport evaluates a whole period and files once for it.
func (o *OrchestratorImpl) RunReport(ctx context.Context, opts primary.RunOptions) (*primary.RunOutcome, error) {
	ctx, logger := o.startRun(ctx, "report")

	if opensPortal(opts) && o.settings.FilingConfigErr != nil {
		return o.fail(logger, &primary.RunOutcome{}, "filing is not configured", o.settings.FilingConfigErr)
	}

	p, err := period.Parse(opts.Date, o.now(), o.settings.Location)
	if err != nil {
		return o.fail(logger, &primary.RunOutcome{}, "invalid report date", err)
	}
	out := &primary.RunOutcome{Period: p.String()}
	logger = logger.With(zap.String("period", out.Period))

	if o.deps.Sync != nil {
		if _, err := o.deps.Sync.Pull(ctx, out.Period); err != nil {
			if mayFile(opts) {
				return o.fail(logger, out, "failed to pull measurements", err)
			}
			logger.Warn("sync failed, using local measurements", zap.Error(err))
		}
	}

	records, err := o.deps.Measurements.Query(ctx, p.Start(), p.End())
	if err != nil {
		return o.fail(logger, out, "failed to read measurements", err)
	}

	minFailures := o.settings.MinFailures
	if opts.MinFailures > 0 {
		minFailures = opts.MinFailures
	}
	decision, err := o.decide(logger, out, windowOf(records), o.settings.ReportAggregation, minFailures)
	if err != nil {
		return o.fail(logger, out, "evaluation failed", err)
	}

	samples := samplesOf(records)
	if !opts.NoEmail && o.deps.Notify != nil {
		o.deps.Notify.NotifySummary(ctx,
			report.DailySubject(out.Period, decision.Failures),
			report.DailyBody(o.service(), out.Period, samples, o.settings.Location))
	}

	if len(records) == 0 {
		out.Kind = outcome.KindOK
		out.Message = fmt.Sprintf("no measurements recorded for %s", out.Period)
		return out, nil
	}
	if !decision.ShouldFile() {
		out.Kind = outcome.KindOK
		return out, nil
	}

	ids := make([]int64, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	text := report.PeriodComplaint(o.service(), out.Period, samples, o.settings.Location)
	return o.fileOrHold(ctx, logger, p, text, ids, opts, out)
}

// SaveSession lets the operator sign in interactively and keeps the session.
func (o *OrchestratorImpl) SaveSession(ctx context.Context) error {
	ctx, _ = o.startRun(ctx, "session")
	return o.deps.Engine.CaptureSession(ctx)
}

// ClearSession discards the saved session.
func (o *OrchestratorImpl) ClearSession(ctx context.Context) error {
	return o.deps.Engine.ClearSession(ctx)
}

func (o *OrchestratorImpl) startRun(ctx context.Context, flow string) (context.Context, *zap.Logger) {
	runID := ctxutil.RunIDFromContext(ctx)
	if runID == "" {
		runID = ctxutil.NewRunID()
		ctx = ctxutil.WithRunID(ctx, runID)
	}
	return ctx, o.logger.With(zap.String("run_id", runID), zap.String("flow", flow))
}

func (o *OrchestratorImpl) decide(logger *zap.Logger, out *primary.RunOutcome, w threshold.Window, policy threshold.Policy, minFailures int) (threshold.Decision, error) {
	decision, err := threshold.Decide(w, policy, minFailures, o.settings.Contract)
	if err != nil {
		return decision, err
	}
	out.Verdict = string(decision.Verdict)
	out.Summary = decision.Summary()
	logger.Info("evaluated",
		zap.String("verdict", out.Verdict),
		zap.String("policy", string(decision.Policy)),
		zap.Float64("aggregate_mbps", decision.Aggregate),
		zap.Float64("minimum_mbps", decision.MinimumMbps),
		zap.Int("samples", decision.Samples),
		zap.Int("failures", decision.Failures),
	)
	return decision, nil
}

// fileOrHold handles a below-threshold verdict: it files, previews, or only
// notifies, depending on the options.
func (o *OrchestratorImpl) fileOrHold(ctx context.Context, logger *zap.Logger, p period.Period, text string, evidence []int64, opts primary.RunOptions, out *primary.RunOutcome) (*primary.RunOutcome, error) {
	out.ComplaintText = text

	switch {
	case opts.MeasureOnly:
		out.Kind = outcome.KindOK
		out.Message = "measure-only run: complaint not filed"
		return out, nil
	case opts.EmailOnly:
		o.notifyFiling(ctx, opts, report.FilingHeld, out.Period, "", "", text)
		out.Kind = outcome.KindOK
		out.Message = "email-only run: complaint not filed"
		return out, nil
	case opts.DryRun && opts.TextOnly:
		filed, err := o.deps.Complaints.HasFiled(ctx, out.Period)
		if err != nil {
			return o.fail(logger, out, "failed to check filed complaints", err)
		}
		if filed {
			out.Kind = outcome.KindOK
			out.Message = fmt.Sprintf("a complaint for %s has already been filed", out.Period)
			return out, nil
		}
		o.notifyFiling(ctx, opts, report.FilingDryRun, out.Period, "", "", text)
		out.Kind = outcome.KindWouldFile
		return out, nil
	}

	return o.file(ctx, logger, p, text, evidence, opts, out)
}

func (o *OrchestratorImpl) file(ctx context.Context, logger *zap.Logger, p period.Period, text string, evidence []int64, opts primary.RunOptions, out *primary.RunOutcome) (*primary.RunOutcome, error) {
	adm, err := o.deps.Guard.TryAcquire(ctx, out.Period)
	if err != nil {
		return o.fail(logger, out, "run guard unavailable", err)
	}
	if !adm.Admitted {
		out.Kind = outcome.KindOK
		out.Message = adm.Message
		return out, nil
	}
	defer func() { _ = o.deps.Guard.Release(ctx, adm) }()

	if !opts.DryRun {
		if _, err := o.deps.Complaints.AbandonOpen(ctx, out.Period); err != nil {
			return o.fail(logger, out, "failed to clear abandoned complaints", err)
		}
		id, err := o.deps.Complaints.Open(ctx, OpenComplaintRequest{
			Period:         out.Period,
			Text:           text,
			MeasurementIDs: evidence,
		})
		if err != nil {
			return o.fail(logger, out, "failed to record complaint", err)
		}
		out.ComplaintID = id
	}

	res, err := o.deps.Engine.File(ctx, FilingRequest{
		ComplaintID: out.ComplaintID,
		Period:      p.String(),
		Form:        portal.BuildForm(o.settings.Complainant, text),
		DryRun:      opts.DryRun,
		ShowBrowser: opts.ShowBrowser,
	})
	switch {
	case err == nil && res.State == filing.StateDryRunHalted:
		out.Kind = outcome.KindWouldFile
		o.notifyFiling(ctx, opts, report.FilingDryRun, out.Period, "", "", text)
	case err == nil:
		out.Kind = outcome.KindFiled
		out.ConfirmationRef = res.ConfirmationRef
		o.notifyFiling(ctx, opts, report.FilingFiled, out.Period, res.ConfirmationRef, "", text)
	case errors.Is(err, ErrDuplicateSubmission):
		out.Kind = outcome.KindOK
		out.Message = fmt.Sprintf("portal already holds this complaint for %s", out.Period)
		logger.Warn("duplicate submission recorded as skipped", zap.Error(err))
	default:
		o.notifyFiling(ctx, opts, report.FilingFailed, out.Period, "", err.Error(), text)
		return o.fail(logger, out, "filing failed", err)
	}
	return out, nil
}

func (o *OrchestratorImpl) notifyFiling(ctx context.Context, opts primary.RunOptions, status report.FilingStatus, periodStr, ref, failure, text string) {
	if opts.NoEmail || o.deps.Notify == nil {
		return
	}
	o.deps.Notify.NotifyFiling(context.WithoutCancel(ctx), status, periodStr, ref, failure, text)
}

// fail marks out as an error outcome and explains err.
func (o *OrchestratorImpl) fail(logger *zap.Logger, out *primary.RunOutcome, msg string, err error) (*primary.RunOutcome, error) {
	out.Kind = outcome.KindError
	out.Message = fmt.Sprintf("%s: %v", msg, err)
	if h := hint(err); h != "" {
		out.Message += " (" + h + ")"
	}
	logger.Error(msg, zap.Error(err))
	return out, fmt.Errorf("%s: %w", msg, err)
}

// hint suggests what the operator can do about err.
func hint(err error) string {
	var automation *AutomationError
	var measureFail *secondary.MeasurementFailure
	var parseFail *secondary.MeasurementParseError

	switch {
	case errors.Is(err, context.Canceled):
		return "interrupted"
	case errors.Is(err, ErrChallengeUnattended):
		return "rerun with --show-browser, or refresh the session with 'ispwatch session save'"
	case errors.Is(err, ErrChallengeTimeout):
		return "challenge was not cleared; a later run will retry"
	case errors.Is(err, ErrAuthFailure):
		return "check FCC_USERNAME and FCC_PASSWORD"
	case errors.Is(err, ErrSessionExpired):
		return "the saved session was discarded; the next run signs in again"
	case errors.As(err, &automation) && automation.Diagnostics != "":
		return "page captured at " + automation.Diagnostics
	case errors.Is(err, secondary.ErrSyncUnreachable):
		return "measurement host unreachable; --dry-run uses local data"
	case errors.Is(err, secondary.ErrSyncDataInvalid):
		return "measurement host returned an unusable export; check both hosts run the same version"
	case errors.As(err, &measureFail), errors.As(err, &parseFail):
		return "check SPEEDTEST_COMMAND"
	case errors.Is(err, threshold.ErrInvalidConfiguration):
		return "check the configuration"
	}
	return ""
}

func mayFile(opts primary.RunOptions) bool {
	return !opts.DryRun && !opts.EmailOnly && !opts.MeasureOnly
}

// opensPortal reports whether a run with opts could launch the browser,
// dry runs included.
func opensPortal(opts primary.RunOptions) bool {
	return !opts.MeasureOnly && !opts.EmailOnly && !(opts.DryRun && opts.TextOnly)
}

// failingIDs returns the IDs of the records below threshold, oldest first.
func (o *OrchestratorImpl) failingIDs(records []*secondary.MeasurementRecord) []int64 {
	c := o.settings.Contract
	var ids []int64
	for _, r := range records {
		if v, _ := threshold.Evaluate(r.DownloadMbps, c.AdvertisedMbps, c.ThresholdPercent); v == threshold.VerdictBelow {
			ids = append(ids, r.ID)
		}
	}
	return ids
}

func (o *OrchestratorImpl) service() report.Service {
	c := o.settings.Complainant
	return report.Service{
		ISPName:        c.ISPName,
		AccountNumber:  c.AccountNumber,
		ServiceAddress: c.ServiceAddress,
		Contract:       o.settings.Contract,
	}
}

func windowOf(records []*secondary.MeasurementRecord) threshold.Window {
	w := threshold.Window{DownloadsMbps: make([]float64, len(records))}
	for i, r := range records {
		w.DownloadsMbps[i] = r.DownloadMbps
	}
	return w
}

func sampleOf(r *secondary.MeasurementRecord) report.Sample {
	return report.Sample{
		ID:           r.ID,
		TakenAt:      r.TakenAt,
		DownloadMbps: r.DownloadMbps,
		UploadMbps:   r.UploadMbps,
		LatencyMs:    r.LatencyMs,
		Server:       r.Server,
	}
}

func samplesOf(records []*secondary.MeasurementRecord) []report.Sample {
	samples := make([]report.Sample, len(records))
	for i, r := range records {
		samples[i] = sampleOf(r)
	}
	return samples
}
