package core

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/JonMunkholm/milesdash/internal/logging"
	"github.com/google/uuid"
)

var (
	// ErrStaleUpload is returned when an upload finishes after a newer one
	// was started. Its result is discarded.
	ErrStaleUpload = errors.New("upload superseded by a newer upload")

	// ErrUnknownPerson is returned when selecting a person not in the dataset.
	ErrUnknownPerson = errors.New("unknown person")

	// ErrNoData is returned by operations that need a loaded dataset.
	ErrNoData = errors.New("no dataset loaded")
)

// State is one immutable snapshot of the dashboard. Every mutation on
// Service builds a new State and swaps it in whole.
type State struct {
	Dataset  Dataset          `json:"data"` // nil when nothing is loaded
	Persons  []string         `json:"persons"`
	Selected string           `json:"selectedPerson"`
	Err      *ValidationError `json:"error,omitempty"`
	UploadID string           `json:"uploadId,omitempty"`
	FileName string           `json:"fileName,omitempty"`
	LoadedAt time.Time        `json:"loadedAt,omitempty"`
	Version  uint64           `json:"version"`
}

// HasData reports whether a dataset is loaded. A header-only file loads an
// empty, non-nil dataset.
func (s State) HasData() bool {
	return s.Dataset != nil
}

// HasPerson reports whether person appears in the loaded dataset.
func (s State) HasPerson(person string) bool {
	return contains(s.Persons, person)
}

// Ticket identifies one upload attempt. Only the most recently issued
// ticket may change state when it completes.
type Ticket struct {
	ID       string
	FileName string
	Started  time.Time
	seq      uint64
}

// UploadObserver receives the outcome of every completed upload.
type UploadObserver interface {
	UploadFinished(outcome string, verr *ValidationError, records int, elapsed time.Duration)
}

// Upload outcomes reported to UploadObserver.
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeStale    = "stale"
)

// Service owns the dashboard state: the current dataset, the selected
// person and the visible error.
type Service struct {
	mu      sync.Mutex
	state   State
	lastSeq uint64

	limiter   *UploadLimiter
	parseOpts []ParseOption
	maxBytes  int64
	observer  UploadObserver
	now       func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLimiter bounds concurrent uploads.
func WithLimiter(l *UploadLimiter) Option {
	return func(s *Service) { s.limiter = l }
}

// WithParseOptions passes options through to ParseCSV.
func WithParseOptions(opts ...ParseOption) Option {
	return func(s *Service) { s.parseOpts = append(s.parseOpts, opts...) }
}

// WithMaxBytes limits how much of an upload is read. Zero means no limit.
func WithMaxBytes(n int64) Option {
	return func(s *Service) { s.maxBytes = n }
}

// WithObserver registers an upload outcome observer.
func WithObserver(o UploadObserver) Option {
	return func(s *Service) { s.observer = o }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a Service with no dataset loaded.
func NewService(opts ...Option) *Service {
	s := &Service{now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	if s.limiter == nil {
		s.limiter = NewUploadLimiter(DefaultMaxConcurrentUploads, DefaultMaxWaitTime)
	}
	return s
}

// Snapshot returns the current state.
func (s *Service) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Limiter exposes the upload limiter for shutdown and monitoring.
func (s *Service) Limiter() *UploadLimiter {
	return s.limiter
}

// Begin starts an upload attempt and supersedes any attempt in flight.
// A file name without the .csv extension is rejected immediately and the
// rejection becomes the visible error.
func (s *Service) Begin(fileName string) (Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastSeq++
	t := Ticket{
		ID:       uuid.NewString(),
		FileName: fileName,
		Started:  s.now(),
		seq:      s.lastSeq,
	}

	if verr := CheckFileName(fileName); verr != nil {
		next := s.state
		next.Err = verr
		s.swap(next)
		return Ticket{}, verr
	}
	return t, nil
}

// Complete applies the outcome of ticket t. readErr, if non-nil, is the
// failure from acquiring the text. Results of superseded tickets are
// discarded with ErrStaleUpload and leave state untouched.
//
// On success the dataset is replaced wholesale and the error cleared. On
// failure the error is shown and the previous dataset stays loaded.
func (s *Service) Complete(ctx context.Context, t Ticket, text string, readErr *ValidationError) (State, error) {
	logger := logging.WithFields(ctx, "upload_id", t.ID, "file", t.FileName).With(uploadLogFields(ctx)...)

	var result ParseResult
	if readErr != nil {
		result = ParseResult{Err: readErr}
	} else {
		result = ParseCSV(text, s.parseOpts...)
	}

	s.mu.Lock()
	if t.seq == 0 || t.seq != s.lastSeq {
		current := s.state
		s.mu.Unlock()
		logger.Warn("discarding stale upload result")
		s.observe(OutcomeStale, nil, 0, t)
		return current, ErrStaleUpload
	}

	next := s.state
	if !result.OK() {
		next.Err = result.Err
		s.swap(next)
		current := s.state
		s.mu.Unlock()

		logger.Info("upload rejected",
			"kind", result.Err.Kind,
			"code", result.Err.Code,
			"row", result.Err.Line(),
			"error", result.Err.Message,
		)
		if cause := result.Err.Unwrap(); cause != nil {
			logger.Debug("read failure cause", "error", cause)
		}
		s.observe(OutcomeRejected, result.Err, 0, t)
		return current, result.Err
	}

	persons := UniquePersons(result.Records)
	next = State{
		Dataset:  result.Records,
		Persons:  persons,
		Selected: pickSelection(s.state.Selected, persons),
		UploadID: t.ID,
		FileName: t.FileName,
		LoadedAt: s.now(),
	}
	s.swap(next)
	current := s.state
	s.mu.Unlock()

	logger.Info("upload loaded",
		"records", len(result.Records),
		"persons", len(persons),
	)
	s.observe(OutcomeSuccess, nil, len(result.Records), t)
	return current, nil
}

// Upload runs a whole attempt: take a slot, begin, read r, complete.
func (s *Service) Upload(ctx context.Context, fileName string, r io.Reader) (State, error) {
	if err := s.limiter.Acquire(ctx); err != nil {
		return s.Snapshot(), err
	}
	defer s.limiter.Release()

	t, err := s.Begin(fileName)
	if err != nil {
		return s.Snapshot(), err
	}

	text, readErr := ReadText(ctx, r, s.maxBytes)
	return s.Complete(ctx, t, text, readErr)
}

// Select changes the selected person. The person must exist in the dataset.
func (s *Service) Select(person string) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.state.HasData() {
		return s.state, ErrNoData
	}
	if !contains(s.state.Persons, person) {
		return s.state, ErrUnknownPerson
	}

	next := s.state
	next.Selected = person
	s.swap(next)
	return s.state, nil
}

// Clear discards the dataset, the selection and any error, and supersedes
// uploads still in flight.
func (s *Service) Clear() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastSeq++
	s.swap(State{})
	slog.Debug("dashboard cleared")
	return s.state
}

// Overview returns the overall view of the loaded dataset.
func (s *Service) Overview() (OverviewView, error) {
	st := s.Snapshot()
	if !st.HasData() {
		return OverviewView{}, ErrNoData
	}
	return Overview(st.Dataset), nil
}

// PersonView returns the view for person, or for the selected person when
// person is empty.
func (s *Service) PersonView(person string) (PersonView, error) {
	st := s.Snapshot()
	if !st.HasData() {
		return PersonView{}, ErrNoData
	}
	if person == "" {
		person = st.Selected
	}
	if !st.HasPerson(person) {
		return PersonView{}, ErrUnknownPerson
	}
	return BuildPersonView(st.Dataset, person), nil
}

// swap installs next as the current state. Callers hold s.mu.
func (s *Service) swap(next State) {
	next.Version = s.state.Version + 1
	s.state = next
}

func (s *Service) observe(outcome string, verr *ValidationError, records int, t Ticket) {
	if s.observer == nil {
		return
	}
	s.observer.UploadFinished(outcome, verr, records, s.now().Sub(t.Started))
}

// pickSelection keeps current if it still exists, otherwise picks the first
// person, or "" when there are none.
func pickSelection(current string, persons []string) string {
	if current != "" && contains(persons, current) {
		return current
	}
	if len(persons) > 0 {
		return persons[0]
	}
	return ""
}
