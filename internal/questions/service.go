package questions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidArgument = errors.New("questions: invalid argument")
)

// Repository persists question sets. A set is written once per check.
type Repository interface {
	InsertBatch(ctx context.Context, qs []Question) error
	ListByCheck(ctx context.Context, checkID string) ([]Question, error)
}

type Service struct {
	repo    Repository
	builder *Builder
	clock   func() time.Time
}

func NewService(repo Repository, builder *Builder) *Service {
	return &Service{repo: repo, builder: builder, clock: time.Now}
}

// Preview builds a set without persisting it.
func (s *Service) Preview(ctx context.Context, req BuildRequest) []Question {
	return s.builder.Build(ctx, req)
}

// CreateForCheck builds and stores the question set for checkID.
func (s *Service) CreateForCheck(ctx context.Context, checkID string, req BuildRequest) ([]Question, error) {
	if checkID == "" {
		return nil, fmt.Errorf("%w: check id is required", ErrInvalidArgument)
	}
	if s.repo == nil {
		return nil, errors.New("questions: repository not configured")
	}

	qs := s.builder.Build(ctx, req)
	now := s.clock().UTC()
	for i := range qs {
		qs[i].ID = uuid.NewString()
		qs[i].CheckID = checkID
		qs[i].CreatedAt = now
	}
	if err := s.repo.InsertBatch(ctx, qs); err != nil {
		return nil, err
	}
	return qs, nil
}

func (s *Service) ListByCheck(ctx context.Context, checkID string) ([]Question, error) {
	if checkID == "" {
		return nil, fmt.Errorf("%w: check id is required", ErrInvalidArgument)
	}
	return s.repo.ListByCheck(ctx, checkID)
}
