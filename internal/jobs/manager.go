// Package jobs keeps a registry of geocoding jobs so that each run can be
// polled, cancelled and awaited by id.
package jobs

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/geobatch/internal/geocoding"
	"github.com/sells-group/geobatch/internal/store"
	"github.com/sells-group/geobatch/pkg/geocode"
)

// Default destination columns for coordinates.
const (
	DefaultLatColumn = "lat"
	DefaultLonColumn = "lon"
)

// Destination names where a ResultSink writes coordinates. Rows are matched
// by equality on MatchColumns, which line up with the record fields.
type Destination struct {
	Table        string   `json:"table"`
	MatchColumns []string `json:"match_columns"`
	LatColumn    string   `json:"lat_column"`
	LonColumn    string   `json:"lon_column"`
}

// Params describes one job.
type Params struct {
	Records     []geocode.AddressRecord `json:"records"`
	Destination Destination             `json:"destination"`
	// SaveOnErrorOrInterrupt hands partial rows to the ResultSink when the
	// run is interrupted or aborted. Completed runs are always saved.
	SaveOnErrorOrInterrupt bool `json:"save_on_error_or_interrupt"`
}

// ResultSink persists the rows of a finished job.
type ResultSink interface {
	SaveResults(ctx context.Context, jobID string, dest Destination, rows []geocoding.GeocodedRow) error
}

// History records finished jobs.
type History interface {
	SaveJob(ctx context.Context, job store.JobRecord) error
}

// Info describes a registered job.
type Info struct {
	ID         string                  `json:"id"`
	Progress   geocoding.ProgressState `json:"progress"`
	Done       bool                    `json:"done"`
	Status     geocoding.Status        `json:"status,omitempty"`
	Message    string                  `json:"message,omitempty"`
	CreatedAt  time.Time               `json:"created_at"`
	FinishedAt *time.Time              `json:"finished_at,omitempty"`
}

type job struct {
	id        string
	params    Params
	tracker   *geocoding.Tracker
	canceller *geocoding.Canceller
	done      chan struct{}
	created   time.Time

	// Set once before done is closed.
	report     *geocoding.Report
	persistErr error
	finished   time.Time
}

func (j *job) isDone() bool {
	select {
	case <-j.done:
		return true
	default:
		return false
	}
}

// Option configures a Manager.
type Option func(*Manager)

// WithMaxActive sets how many jobs may run at once. Default: 1.
func WithMaxActive(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxActive = n
		}
	}
}

// WithRetention drops finished jobs from the registry after d. Zero keeps them.
func WithRetention(d time.Duration) Option {
	return func(m *Manager) {
		m.retention = d
	}
}

// WithResultSink sets where finished rows are persisted.
func WithResultSink(s ResultSink) Option {
	return func(m *Manager) {
		m.sink = s
	}
}

// WithHistory records each finished job.
func WithHistory(h History) Option {
	return func(m *Manager) {
		m.history = h
	}
}

// Manager is the job registry. Every job owns its tracker and canceller.
type Manager struct {
	engine    *geocoding.Engine
	maxActive int
	retention time.Duration
	sink      ResultSink
	history   History
	now       func() time.Time

	mu   sync.Mutex
	jobs map[string]*job
	wg   sync.WaitGroup
}

// NewManager creates a registry whose jobs run on engine.
func NewManager(engine *geocoding.Engine, opts ...Option) *Manager {
	m := &Manager{
		engine:    engine,
		maxActive: 1,
		now:       time.Now,
		jobs:      make(map[string]*job),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start registers a job and runs it on its own goroutine.
//
// ctx bounds the lifetime of the job: once it is done the run stops before
// its next record. Pass a process or server context, not a request context.
func (m *Manager) Start(ctx context.Context, params Params) (string, error) {
	if params.Destination.LatColumn == "" {
		params.Destination.LatColumn = DefaultLatColumn
	}
	if params.Destination.LonColumn == "" {
		params.Destination.LonColumn = DefaultLonColumn
	}

	m.mu.Lock()
	m.pruneLocked()
	active := 0
	for _, j := range m.jobs {
		if !j.isDone() {
			active++
		}
	}
	if active >= m.maxActive {
		m.mu.Unlock()
		return "", ErrJobActive
	}

	j := &job{
		id:        uuid.New().String(),
		params:    params,
		tracker:   geocoding.NewTracker(),
		canceller: geocoding.NewCanceller(),
		done:      make(chan struct{}),
		created:   m.now(),
	}
	j.tracker.Begin(len(params.Records))
	m.jobs[j.id] = j
	m.wg.Add(1)
	m.mu.Unlock()

	go m.run(ctx, j)
	return j.id, nil
}

func (m *Manager) run(ctx context.Context, j *job) {
	defer m.wg.Done()
	log := zap.L().With(zap.String("component", "jobs"), zap.String("job_id", j.id))
	log.Info("jobs: started", zap.Int("records", len(j.params.Records)))

	report := m.engine.Run(ctx, j.params.Records, j.tracker, j.canceller)

	// Persistence must not be cut short by the shutdown that interrupted the run.
	saveCtx := context.WithoutCancel(ctx)
	persistErr := m.persist(saveCtx, j, report)
	if persistErr != nil {
		log.Error("jobs: persist results", zap.Error(persistErr))
	}

	m.mu.Lock()
	j.report = report
	j.persistErr = persistErr
	j.finished = m.now()
	m.mu.Unlock()

	if m.history != nil {
		if err := m.history.SaveJob(saveCtx, m.historyRecord(j)); err != nil {
			log.Warn("jobs: save history", zap.Error(err))
		}
	}
	close(j.done)

	log.Info("jobs: finished",
		zap.String("status", string(report.Status)),
		zap.String("message", report.Message),
		zap.String("summary", report.Summary()),
	)
}

func (m *Manager) persist(ctx context.Context, j *job, report *geocoding.Report) error {
	if m.sink == nil {
		return nil
	}
	if report.Partial() && !j.params.SaveOnErrorOrInterrupt {
		return nil
	}
	if err := m.sink.SaveResults(ctx, j.id, j.params.Destination, report.Rows); err != nil {
		return &PersistenceError{JobID: j.id, Err: err}
	}
	return nil
}

func (m *Manager) historyRecord(j *job) store.JobRecord {
	return store.JobRecord{
		ID:         j.id,
		Provider:   m.engine.ProviderName(),
		Status:     j.report.Status,
		Message:    j.report.Message,
		Summary:    j.report.Summary(),
		Progress:   j.report.Progress,
		Failures:   j.report.Failures,
		RowCount:   len(j.report.Rows),
		CreatedAt:  j.created,
		FinishedAt: j.finished,
	}
}

func (m *Manager) lookup(id string) (*job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, ErrUnknownJob
	}
	return j, nil
}

// Progress returns a snapshot of the job's progress.
func (m *Manager) Progress(id string) (geocoding.ProgressState, error) {
	j, err := m.lookup(id)
	if err != nil {
		return geocoding.ProgressState{}, err
	}
	return j.tracker.Snapshot(), nil
}

// Cancel asks the job to stop before its next record. Cancelling a finished
// job is a no-op.
func (m *Manager) Cancel(id string) error {
	j, err := m.lookup(id)
	if err != nil {
		return err
	}
	j.canceller.RequestCancel()
	return nil
}

// Await blocks until the job ends or ctx is done. The report is returned
// even when persisting it failed; the error is then a *PersistenceError.
func (m *Manager) Await(ctx context.Context, id string) (*geocoding.Report, error) {
	j, err := m.lookup(id)
	if err != nil {
		return nil, err
	}
	select {
	case <-j.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return j.report, j.persistErr
}

// Get describes one job.
func (m *Manager) Get(id string) (Info, error) {
	j, err := m.lookup(id)
	if err != nil {
		return Info{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.infoLocked(j), nil
}

// List describes all registered jobs, oldest first.
func (m *Manager) List() []Info {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruneLocked()

	out := make([]Info, 0, len(m.jobs))
	for _, j := range m.jobs {
		out = append(out, m.infoLocked(j))
	}
	slices.SortFunc(out, func(a, b Info) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out
}

// Wait blocks until every started job has finished.
func (m *Manager) Wait() {
	m.wg.Wait()
}

func (m *Manager) infoLocked(j *job) Info {
	info := Info{
		ID:        j.id,
		Progress:  j.tracker.Snapshot(),
		Done:      j.isDone(),
		CreatedAt: j.created,
	}
	if j.report != nil {
		finished := j.finished
		info.Status = j.report.Status
		info.Message = j.report.Message
		info.FinishedAt = &finished
	}
	return info
}

// pruneLocked drops finished jobs older than the retention window.
func (m *Manager) pruneLocked() {
	if m.retention <= 0 {
		return
	}
	cutoff := m.now().Add(-m.retention)
	for id, j := range m.jobs {
		if j.report != nil && j.isDone() && j.finished.Before(cutoff) {
			delete(m.jobs, id)
		}
	}
}
