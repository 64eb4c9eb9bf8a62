package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/example/ispwatch/internal/core/complaint"
	"github.com/example/ispwatch/internal/core/runguard"
	"github.com/example/ispwatch/internal/ports/secondary"
)

// ============================================================================
// Measurement store
// ============================================================================

var _ secondary.MeasurementRepository = (*mockMeasurementRepository)(nil)

// mockMeasurementRepository implements secondary.MeasurementRepository in memory.
type mockMeasurementRepository struct {
	records   []*secondary.MeasurementRecord
	nextID    int64
	insertErr error
	queryErr  error
	mergeErr  error
}

func newMockMeasurementRepository() *mockMeasurementRepository {
	return &mockMeasurementRepository{nextID: 1}
}

func (m *mockMeasurementRepository) add(takenAt time.Time, down float64, server string) *secondary.MeasurementRecord {
	rec := &secondary.MeasurementRecord{
		TakenAt:      takenAt.UTC(),
		DownloadMbps: down,
		UploadMbps:   20,
		LatencyMs:    10,
		Server:       server,
		Origin:       "local",
	}
	id, _ := m.Insert(context.Background(), rec)
	rec.ID = id
	return rec
}

func (m *mockMeasurementRepository) Insert(ctx context.Context, r *secondary.MeasurementRecord) (int64, error) {
	if m.insertErr != nil {
		return 0, m.insertErr
	}
	cp := *r
	cp.ID = m.nextID
	m.nextID++
	m.records = append(m.records, &cp)
	return cp.ID, nil
}

func (m *mockMeasurementRepository) Merge(ctx context.Context, rs []*secondary.MeasurementRecord) (int, error) {
	if m.mergeErr != nil {
		return 0, m.mergeErr
	}
	inserted := 0
	for _, r := range rs {
		dup := false
		for _, have := range m.records {
			if have.TakenAt.Equal(r.TakenAt) && have.Server == r.Server {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		if _, err := m.Insert(ctx, r); err != nil {
			return inserted, err
		}
		inserted++
	}
	return inserted, nil
}

func (m *mockMeasurementRepository) Query(ctx context.Context, from, to time.Time) ([]*secondary.MeasurementRecord, error) {
	if m.queryErr != nil {
		return nil, m.queryErr
	}
	var out []*secondary.MeasurementRecord
	for _, r := range m.records {
		if !r.TakenAt.Before(from) && r.TakenAt.Before(to) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TakenAt.Before(out[j].TakenAt) })
	return out, nil
}

func (m *mockMeasurementRepository) Recent(ctx context.Context, limit int) ([]*secondary.MeasurementRecord, error) {
	if m.queryErr != nil {
		return nil, m.queryErr
	}
	out := append([]*secondary.MeasurementRecord(nil), m.records...)
	sort.Slice(out, func(i, j int) bool { return out[i].TakenAt.After(out[j].TakenAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ============================================================================
// Complaint store
// ============================================================================

var _ secondary.ComplaintRepository = (*mockComplaintRepository)(nil)

// mockComplaintRepository implements secondary.ComplaintRepository in memory,
// including the one-FILED-per-period constraint.
type mockComplaintRepository struct {
	records   map[int64]*secondary.ComplaintRecord
	nextID    int64
	insertErr error
	updateErr error
	listErr   error

	updateCtxErr error // ctx.Err() seen by the last UpdateStatus
}

func newMockComplaintRepository() *mockComplaintRepository {
	return &mockComplaintRepository{records: make(map[int64]*secondary.ComplaintRecord), nextID: 1}
}

func (m *mockComplaintRepository) Insert(ctx context.Context, c *secondary.ComplaintRecord) (int64, error) {
	if m.insertErr != nil {
		return 0, m.insertErr
	}
	cp := *c
	cp.ID = m.nextID
	m.nextID++
	m.records[cp.ID] = &cp
	return cp.ID, nil
}

func (m *mockComplaintRepository) GetByID(ctx context.Context, id int64) (*secondary.ComplaintRecord, error) {
	r, ok := m.records[id]
	if !ok {
		return nil, fmt.Errorf("complaint %d: %w", id, secondary.ErrNotFound)
	}
	cp := *r
	return &cp, nil
}

func (m *mockComplaintRepository) UpdateStatus(ctx context.Context, id int64, u secondary.ComplaintStatusUpdate) error {
	m.updateCtxErr = ctx.Err()
	if m.updateErr != nil {
		return m.updateErr
	}
	r, ok := m.records[id]
	if !ok {
		return fmt.Errorf("complaint %d: %w", id, secondary.ErrNotFound)
	}
	if r.Status != string(complaint.StatusPending) {
		return fmt.Errorf("complaint %d is %s and can no longer change", id, r.Status)
	}
	if u.Status == string(complaint.StatusFiled) {
		if filed, _ := m.HasFiled(ctx, r.Period); filed {
			return &secondary.StoreError{Op: "update complaint status", Err: errors.New("UNIQUE constraint failed")}
		}
	}
	r.Status = u.Status
	r.ConfirmationRef = u.ConfirmationRef
	r.FailureReason = u.FailureReason
	r.UpdatedAt = u.UpdatedAt
	return nil
}

func (m *mockComplaintRepository) HasFiled(ctx context.Context, period string) (bool, error) {
	for _, r := range m.records {
		if r.Period == period && r.Status == string(complaint.StatusFiled) {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockComplaintRepository) LatestOpen(ctx context.Context, period string) (*secondary.ComplaintRecord, error) {
	var latest *secondary.ComplaintRecord
	for _, r := range m.records {
		if r.Period == period && r.Status == string(complaint.StatusPending) && (latest == nil || r.ID > latest.ID) {
			latest = r
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (m *mockComplaintRepository) List(ctx context.Context, f secondary.ComplaintFilters) ([]*secondary.ComplaintRecord, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []*secondary.ComplaintRecord
	for _, r := range m.records {
		if (f.Period == "" || r.Period == f.Period) && (f.Status == "" || r.Status == f.Status) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *mockComplaintRepository) countStatus(period string, status complaint.Status) int {
	n := 0
	for _, r := range m.records {
		if r.Period == period && r.Status == string(status) {
			n++
		}
	}
	return n
}

// ============================================================================
// Run lock
// ============================================================================

var _ secondary.RunLockRepository = (*mockRunLockRepository)(nil)

// mockRunLockRepository applies runguard.Decide to a single in-memory lock.
type mockRunLockRepository struct {
	lock       *secondary.RunLockRecord
	complaints *mockComplaintRepository
	liveness   runguard.OwnerLiveness
	acquireErr error
	released   []string
}

func (m *mockRunLockRepository) TryAcquire(ctx context.Context, req secondary.AcquireRequest) (*secondary.AcquireResult, error) {
	if m.acquireErr != nil {
		return nil, m.acquireErr
	}
	filed := false
	if m.complaints != nil {
		filed, _ = m.complaints.HasFiled(ctx, req.Period)
	}
	admission := runguard.AdmissionContext{
		Period:         req.Period,
		PeriodHasFiled: filed,
		OwnerLiveness:  m.liveness,
		Now:            req.Now,
		StaleAfter:     req.StaleAfter,
	}
	if m.lock != nil {
		admission.Existing = &runguard.Lock{
			Token: m.lock.Token, PID: m.lock.PID, Host: m.lock.Host,
			Period: m.lock.Period, AcquiredAt: m.lock.AcquiredAt,
		}
	}

	decision := runguard.Decide(admission)
	if !decision.Allowed {
		return &secondary.AcquireResult{Reason: string(decision.Reason), Message: decision.Message}, nil
	}
	result := &secondary.AcquireResult{Admitted: true}
	if decision.ReclaimStale {
		result.Reclaimed = m.lock
		result.StaleReason = decision.StaleReason
	}
	m.lock = &secondary.RunLockRecord{
		Name: req.Name, Token: req.Token, PID: req.PID, Host: req.Host,
		Period: req.Period, AcquiredAt: req.Now,
	}
	return result, nil
}

func (m *mockRunLockRepository) Release(ctx context.Context, name, token string) error {
	m.released = append(m.released, token)
	if m.lock != nil && m.lock.Token == token {
		m.lock = nil
	}
	return nil
}

func (m *mockRunLockRepository) Get(ctx context.Context, name string) (*secondary.RunLockRecord, error) {
	return m.lock, nil
}

// ============================================================================
// Session store and diagnostics
// ============================================================================

var _ secondary.SessionStore = (*mockSessionStore)(nil)

type mockSessionStore struct {
	artifact    *secondary.SessionArtifact
	loadErr     error
	saves       int
	invalidated int
}

func (m *mockSessionStore) Load(ctx context.Context) (*secondary.SessionArtifact, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	if m.artifact == nil {
		return nil, secondary.ErrNoSession
	}
	return m.artifact, nil
}

func (m *mockSessionStore) Save(ctx context.Context, a *secondary.SessionArtifact) error {
	m.saves++
	m.artifact = a
	return nil
}

func (m *mockSessionStore) Invalidate(ctx context.Context) error {
	m.invalidated++
	m.artifact = nil
	m.loadErr = nil
	return nil
}

var _ secondary.DiagnosticsSink = (*mockDiagnostics)(nil)

type mockDiagnostics struct {
	labels []string
}

func (m *mockDiagnostics) Save(ctx context.Context, label string, snap *secondary.PageSnapshot) (string, error) {
	m.labels = append(m.labels, label)
	return "/diag/" + label, nil
}

// ============================================================================
// Browser
// ============================================================================

var (
	_ secondary.BrowserLauncher = (*fakeLauncher)(nil)
	_ secondary.BrowserDriver   = (*fakeBrowser)(nil)
)

type fakeLauncher struct {
	browser  *fakeBrowser
	err      error
	launches int
	opts     secondary.BrowserOptions
}

func (l *fakeLauncher) Launch(ctx context.Context, opts secondary.BrowserOptions) (secondary.BrowserDriver, error) {
	l.launches++
	l.opts = opts
	if l.err != nil {
		return nil, l.err
	}
	return l.browser, nil
}

// fakeBrowser is a scripted portal. Navigate shows pages[url]; clicking a
// selector in onClick shows that page; pageHook may swap the current page on
// every Page call.
type fakeBrowser struct {
	pages    map[string]secondary.PageState
	onClick  map[string]secondary.PageState
	missing  map[string]bool
	pageHook func(call int, cur secondary.PageState) secondary.PageState

	current   secondary.PageState
	pageCalls int
	navErr    error
	navigated []string
	fills     map[string]string
	clicks    []string
	labeled   map[string]string
	imported  *secondary.SessionData
	closed    bool
}

var _ secondary.BrowserDriver = (*fakeBrowser)(nil)

func newFakeBrowser() *fakeBrowser {
	return &fakeBrowser{
		pages:   make(map[string]secondary.PageState),
		onClick: make(map[string]secondary.PageState),
		missing: make(map[string]bool),
		fills:   make(map[string]string),
		labeled: make(map[string]string),
	}
}

func (b *fakeBrowser) Navigate(ctx context.Context, url string) error {
	if b.navErr != nil {
		return b.navErr
	}
	b.navigated = append(b.navigated, url)
	if p, ok := b.pages[url]; ok {
		b.current = p
	} else {
		b.current = secondary.PageState{URL: url}
	}
	return nil
}

func (b *fakeBrowser) Fill(ctx context.Context, selector, value string) error {
	if b.missing[selector] {
		return secondary.ErrElementNotFound
	}
	b.fills[selector] = value
	return nil
}

func (b *fakeBrowser) FillByLabel(ctx context.Context, label, value string) (bool, error) {
	b.labeled[label] = value
	return true, nil
}

func (b *fakeBrowser) ChooseByLabel(ctx context.Context, label, option string) (bool, error) {
	b.labeled[label] = option
	return !strings.Contains(label, "Behalf"), nil
}

func (b *fakeBrowser) Click(ctx context.Context, selector string) error {
	if b.missing[selector] {
		return secondary.ErrElementNotFound
	}
	b.clicks = append(b.clicks, selector)
	if p, ok := b.onClick[selector]; ok {
		b.current = p
	}
	return nil
}

func (b *fakeBrowser) Page(ctx context.Context) (secondary.PageState, error) {
	b.pageCalls++
	if b.pageHook != nil {
		b.current = b.pageHook(b.pageCalls, b.current)
	}
	return b.current, nil
}

func (b *fakeBrowser) Snapshot(ctx context.Context) (*secondary.PageSnapshot, error) {
	return &secondary.PageSnapshot{URL: b.current.URL, Title: b.current.Title, HTML: b.current.Content}, nil
}

func (b *fakeBrowser) ExportSession(ctx context.Context) (*secondary.SessionData, error) {
	return &secondary.SessionData{
		Origin:  "https://portal.test",
		Cookies: []secondary.Cookie{{Name: "_session", Value: "abc", Domain: "portal.test", Path: "/"}},
	}, nil
}

func (b *fakeBrowser) ImportSession(ctx context.Context, data *secondary.SessionData) error {
	b.imported = data
	return nil
}

func (b *fakeBrowser) Close() error {
	b.closed = true
	return nil
}

// ============================================================================
// Remote, metrics and notifications
// ============================================================================

var _ secondary.RemoteExecutor = (*mockRemoteExecutor)(nil)

type mockRemoteExecutor struct {
	host     string
	out      []byte
	err      error
	commands []string
}

func (m *mockRemoteExecutor) Run(ctx context.Context, command string) ([]byte, error) {
	m.commands = append(m.commands, command)
	return m.out, m.err
}

func (m *mockRemoteExecutor) Host() string { return m.host }

var _ secondary.MetricsSink = (*mockMetricsSink)(nil)

type mockMetricsSink struct {
	snaps []secondary.MetricsSnapshot
	err   error
}

func (m *mockMetricsSink) Record(ctx context.Context, snap secondary.MetricsSnapshot) error {
	m.snaps = append(m.snaps, snap)
	return m.err
}

var _ secondary.Notifier = (*mockNotifier)(nil)

type mockNotifier struct {
	sent []secondary.Notification
	err  error
}

func (m *mockNotifier) Send(ctx context.Context, msg secondary.Notification) error {
	m.sent = append(m.sent, msg)
	return m.err
}

func (m *mockNotifier) subjects() []string {
	out := make([]string, len(m.sent))
	for i, n := range m.sent {
		out[i] = n.Subject
	}
	return out
}
