package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"rentflow-cloud/internal/audit"
	"rentflow-cloud/internal/auth"
	loan "rentflow-cloud/internal/loan/domain"
	"rentflow-cloud/internal/observability/metrics"
)

// ApplicationRepository reads loan applications.
type ApplicationRepository interface {
	FindByID(ctx context.Context, id string) (*loan.Application, error)
	ListByOwner(ctx context.Context, ownerID string) ([]loan.Application, error)
}

// PaymentRepository reads disbursement records.
type PaymentRepository interface {
	ListByOwner(ctx context.Context, ownerID string) ([]loan.Payment, error)
}

// CompletionFlagStore persists the local "contract completed" flag per application.
type CompletionFlagStore interface {
	IsCompleted(ctx context.Context, applicationID string) (bool, error)
	ListCompleted(ctx context.Context, applicationIDs []string) (map[string]bool, error)
	MarkCompleted(ctx context.Context, applicationID string) error
}

// Clock provides time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

// ApplicationView pairs an application with its derived classification.
type ApplicationView struct {
	Application    loan.Application    `json:"application"`
	Classification loan.Classification `json:"classification"`
	Disbursement   *loan.Payment       `json:"disbursement,omitempty"`
	MatchedBy      loan.MatchField     `json:"matched_by,omitempty"`
}

// Overview is the loan dashboard of one owner.
type Overview struct {
	OwnerID    string            `json:"owner_id"`
	Active     []ApplicationView `json:"active"`
	Closed     []ApplicationView `json:"closed"`
	Payments   int               `json:"payments"`
	SnapshotAt time.Time         `json:"snapshot_at"`
}

// Service derives loan workflow state from snapshot reads.
type Service struct {
	applications ApplicationRepository
	payments     PaymentRepository
	flags        CompletionFlagStore
	audit        audit.Logger
	clock        Clock
	logger       *log.Logger
}

// ServiceOption customizes the loan service.
type ServiceOption func(*Service)

// WithClock assigns a clock.
func WithClock(clock Clock) ServiceOption {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithAuditLogger assigns an audit logger.
func WithAuditLogger(logger audit.Logger) ServiceOption {
	return func(s *Service) {
		s.audit = logger
	}
}

// WithLogger assigns a logger.
func WithLogger(logger *log.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService constructs a loan service.
func NewService(applications ApplicationRepository, payments PaymentRepository, flags CompletionFlagStore, opts ...ServiceOption) (*Service, error) {
	if applications == nil {
		return nil, errors.New("loan: nil application repo")
	}
	if payments == nil {
		return nil, errors.New("loan: nil payment repo")
	}
	if flags == nil {
		return nil, errors.New("loan: nil flag store")
	}
	service := &Service{
		applications: applications,
		payments:     payments,
		flags:        flags,
		clock:        systemClock{},
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// Overview fetches the owner's applications, payments and completion flags
// concurrently and classifies every application. Disbursed or COMPLETED
// applications land in Closed.
func (s *Service) Overview(ctx context.Context, ownerID string) (Overview, error) {
	owner, err := auth.OwnerScope(ctx, ownerID)
	if err != nil {
		return Overview{}, loan.ErrForbidden
	}
	if owner == "" {
		return Overview{}, &loan.ValidationError{Field: "owner_id", Message: "required"}
	}

	var (
		apps     []loan.Application
		payments []loan.Payment
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		var err error
		apps, err = s.applications.ListByOwner(groupCtx, owner)
		return err
	})
	group.Go(func() error {
		var err error
		payments, err = s.payments.ListByOwner(groupCtx, owner)
		return err
	})
	if err := group.Wait(); err != nil {
		return Overview{}, err
	}

	ids := make([]string, 0, len(apps))
	for _, app := range apps {
		ids = append(ids, app.ID)
	}
	flags, err := s.flags.ListCompleted(ctx, ids)
	if err != nil {
		return Overview{}, err
	}

	overview := Overview{
		OwnerID:    owner,
		Active:     make([]ApplicationView, 0),
		Closed:     make([]ApplicationView, 0),
		Payments:   len(payments),
		SnapshotAt: s.clock.Now(),
	}
	active := make(map[string]bool)
	for _, app := range loan.ActiveObligations(apps, payments) {
		active[app.ID] = true
	}
	for _, app := range apps {
		view := s.classify(app, payments, flags[app.ID])
		if active[app.ID] {
			overview.Active = append(overview.Active, view)
		} else {
			overview.Closed = append(overview.Closed, view)
		}
	}
	return overview, nil
}

// Get classifies a single application.
func (s *Service) Get(ctx context.Context, id string) (ApplicationView, error) {
	app, err := s.load(ctx, id)
	if err != nil {
		return ApplicationView{}, err
	}
	var (
		payments  []loan.Payment
		completed bool
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		var err error
		payments, err = s.payments.ListByOwner(groupCtx, app.OwnerID)
		return err
	})
	group.Go(func() error {
		var err error
		completed, err = s.flags.IsCompleted(groupCtx, app.ID)
		return err
	})
	if err := group.Wait(); err != nil {
		return ApplicationView{}, err
	}
	return s.classify(*app, payments, completed), nil
}

// MarkContractCompleted sets the local "contract completed" flag, which
// unlocks disbursement for the application.
func (s *Service) MarkContractCompleted(ctx context.Context, id string) (ApplicationView, error) {
	app, err := s.load(ctx, id)
	if err != nil {
		return ApplicationView{}, err
	}
	if stage, _ := loan.NormalizeStage(app.Status); stage.Terminal() {
		return ApplicationView{}, &loan.ValidationError{Field: "status", Message: fmt.Sprintf("application is %s", stage)}
	}
	if err := s.flags.MarkCompleted(ctx, app.ID); err != nil {
		return ApplicationView{}, err
	}
	s.logAudit(ctx, app)
	s.logf("loan contract completed: application=%s owner=%s", app.ID, app.OwnerID)
	return s.Get(ctx, app.ID)
}

func (s *Service) classify(app loan.Application, payments []loan.Payment, completed bool) ApplicationView {
	payment, field, disbursed := loan.MatchDisbursement(app, payments)
	classification := loan.Classify(app, loan.Signals{ContractCompleted: completed, Disbursed: disbursed})
	metrics.IncLoanClassification(string(classification.Stage))
	if !classification.KnownStatus {
		s.logf("loan status unknown: application=%s status=%q", app.ID, app.Status)
	}
	view := ApplicationView{Application: app, Classification: classification}
	if disbursed {
		metrics.IncDisbursementMatch(string(field))
		view.Disbursement = &payment
		view.MatchedBy = field
	}
	return view
}

func (s *Service) load(ctx context.Context, id string) (*loan.Application, error) {
	if id == "" {
		return nil, &loan.ValidationError{Field: "id", Message: "required"}
	}
	app, err := s.applications.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if app == nil {
		return nil, loan.ErrApplicationNotFound
	}
	if err := auth.EnsureOwner(ctx, app.OwnerID); err != nil {
		return nil, fmt.Errorf("%w: owner %s", loan.ErrForbidden, app.OwnerID)
	}
	return app, nil
}

func (s *Service) logAudit(ctx context.Context, app *loan.Application) {
	if s.audit == nil {
		return
	}
	actor := auth.SubjectFromContext(ctx)
	if actor == "" {
		actor = "system"
	}
	entry := audit.Entry{
		OwnerID:      app.OwnerID,
		Actor:        actor,
		Role:         string(auth.RoleFromContext(ctx)),
		Action:       audit.ActionContractCompleted,
		ResourceType: "loan_application",
		ResourceID:   app.ID,
		Metadata:     audit.Metadata(map[string]any{"status": app.Status, "current_step": app.CurrentStep}),
		CreatedAt:    s.clock.Now().UTC(),
	}
	if err := s.audit.Log(ctx, entry); err != nil {
		s.logf("audit log failed: action=%s application=%s err=%v", entry.Action, app.ID, err)
	}
}

func (s *Service) logf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}
