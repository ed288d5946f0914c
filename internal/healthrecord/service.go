package healthrecord

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/hackgods/clinic-portal/internal/calendar"
	"github.com/hackgods/clinic-portal/internal/fault"
)

type Service struct {
	repo     Repository
	validate *fault.Validator
	log      logrus.FieldLogger
}

func NewService(repo Repository, log logrus.FieldLogger) *Service {
	return &Service{
		repo:     repo,
		validate: fault.NewValidator(),
		log:      log,
	}
}

func (s *Service) Create(ctx context.Context, in NewRecord) (*Record, error) {
	if in.UserID == uuid.Nil {
		return nil, fault.ErrAuthRequired
	}
	if err := s.validate.Struct(in); err != nil {
		return nil, err
	}
	in.Date = calendar.Day(in.Date)

	rec, err := s.repo.Create(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("create health record: %w", err)
	}

	s.log.WithFields(logrus.Fields{"user_id": in.UserID, "record_id": rec.ID}).Info("health record created")
	return rec, nil
}

// List returns the user's records, newest first.
func (s *Service) List(ctx context.Context, userID uuid.UUID) ([]Record, error) {
	records, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list health records: %w", err)
	}
	return records, nil
}

func (s *Service) Delete(ctx context.Context, userID, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id, userID); err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return err
		}
		return fmt.Errorf("delete health record: %w", err)
	}
	return nil
}

func (s *Service) MarkRead(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	n, err := s.repo.MarkRead(ctx, userID, ids)
	if err != nil {
		return err
	}
	s.log.WithFields(logrus.Fields{"user_id": userID, "requested": len(ids), "updated": n}).Debug("health records marked read")
	return nil
}
