package service

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"github.com/ttacon/libphonenumber"

	"shopdesk/backend/internal/cache"
	"shopdesk/backend/internal/cart"
	"shopdesk/backend/internal/domain"
	"shopdesk/backend/internal/logging"
	"shopdesk/backend/internal/metrics"
	"shopdesk/backend/internal/store"
	"shopdesk/backend/internal/telemetry"
)

var (
	ErrForbidden     = errors.New("admin role required")
	ErrCommitFailed  = errors.New("sale commit failed")
	ErrPaymentFailed = errors.New("payment update failed")

	// ErrCatalogChanged marks a commit whose product disappeared after the
	// cart was validated.
	ErrCatalogChanged = errors.New("catalog changed during commit")
)

// IsConsistencyError reports whether err comes from a concurrent change
// that a fresh read of the catalog or ledger would reveal.
func IsConsistencyError(err error) bool {
	return errors.Is(err, store.ErrInsufficientStock) ||
		errors.Is(err, store.ErrStaleRecord) ||
		errors.Is(err, ErrCatalogChanged)
}

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Options struct {
	Logger            *logrus.Logger
	Recorder          *telemetry.Recorder
	Snapshots         cache.SnapshotCache
	SnapshotTTL       time.Duration
	CartPolicy        cart.Policy
	PhoneRegion       string
	LowStockThreshold int
	Location          *time.Location
	Now               func() time.Time
}

type Service struct {
	repo        store.Repository
	logger      *logrus.Logger
	recorder    *telemetry.Recorder
	snapshots   cache.SnapshotCache
	snapshotTTL time.Duration
	cartPolicy  cart.Policy
	phoneRegion string
	lowStock    int
	location    *time.Location
	now         func() time.Time
	validate    *validator.Validate

	mu    sync.RWMutex
	state *State
}

func New(repo store.Repository, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.Snapshots == nil {
		opts.Snapshots = cache.NoopSnapshotCache{}
	}
	if opts.SnapshotTTL <= 0 {
		opts.SnapshotTTL = 30 * time.Second
	}
	if opts.LowStockThreshold <= 0 {
		opts.LowStockThreshold = metrics.DefaultLowStockThreshold
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Service{
		repo:        repo,
		logger:      opts.Logger,
		recorder:    opts.Recorder,
		snapshots:   opts.Snapshots,
		snapshotTTL: opts.SnapshotTTL,
		cartPolicy:  opts.CartPolicy,
		phoneRegion: strings.ToUpper(strings.TrimSpace(opts.PhoneRegion)),
		lowStock:    opts.LowStockThreshold,
		location:    opts.Location,
		now:         opts.Now,
		validate:    newValidator(),
	}
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ValidateStruct runs the validate tags of req and reports the first
// failing field as a ValidationError with the given code.
func (s *Service) ValidateStruct(code domain.ErrorCode, req any) error {
	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return domain.Invalid(code, fe.Field(), fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag()))
	}
	return domain.Invalid(code, "", err.Error())
}

func requireAdmin(ctx context.Context) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return ErrForbidden
	}
	return nil
}

// Today is the current calendar day in the shop's location.
func (s *Service) Today() string {
	return s.now().In(s.location).Format(metrics.DateLayout)
}

// normalizePhone returns the E.164 form of phone when a region is
// configured, and phone unchanged otherwise.
func (s *Service) normalizePhone(phone string) (string, error) {
	if s.phoneRegion == "" {
		return phone, nil
	}
	num, err := libphonenumber.Parse(phone, s.phoneRegion)
	if err != nil || !libphonenumber.IsValidNumber(num) {
		return "", domain.ErrInvalidPhone
	}
	return libphonenumber.Format(num, libphonenumber.E164), nil
}

func parseDate(value string, field string) error {
	if _, err := time.Parse(metrics.DateLayout, value); err != nil {
		return domain.Invalid(domain.CodeInvalidDate, field, field+" must be formatted as YYYY-MM-DD")
	}
	return nil
}

func (s *Service) logAudit(ctx context.Context, action string, entityID string, fields logrus.Fields) {
	actor, _ := ActorFromContext(ctx)
	s.logger.WithFields(fields).WithFields(logrus.Fields{
		"audit":     true,
		"action":    action,
		"entity_id": entityID,
		"actor":     actor.Username,
		"role":      actor.Role,
	}).Info("audit")
}
