package booking

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/hackgods/clinic-portal/internal/fault"
	"github.com/hackgods/clinic-portal/internal/healthrecord"
	"github.com/hackgods/clinic-portal/internal/sequence"
	"github.com/hackgods/clinic-portal/internal/session"
)

// RecordStore is the remote health record API.
type RecordStore interface {
	ListHealthRecords(ctx context.Context, sess session.Session) ([]healthrecord.Record, error)
	CreateHealthRecord(ctx context.Context, sess session.Session, in RecordInput) (*healthrecord.Record, error)
	DeleteHealthRecord(ctx context.Context, sess session.Session, id uuid.UUID) error
}

type RecordInput struct {
	Date          time.Time `json:"date" validate:"required"`
	Weight        *float64  `json:"weight" validate:"omitempty,gt=0,lte=500"`
	Height        *float64  `json:"height" validate:"omitempty,gt=0,lte=300"`
	BloodPressure *string   `json:"bloodPressure" validate:"omitempty,max=16"`
	HeartRate     *int      `json:"heartRate" validate:"omitempty,gt=0,lte=300"`
	Diagnosis     *string   `json:"diagnosis" validate:"omitempty,max=500"`
	Notes         *string   `json:"notes" validate:"omitempty,max=2000"`
}

// Records keeps the health record screen's list, refetched after every
// mutation.
type Records struct {
	store    RecordStore
	validate *fault.Validator
	log      logrus.FieldLogger
	seq      sequence.Tracker

	mu      sync.Mutex
	records []healthrecord.Record
}

func NewRecords(store RecordStore, log logrus.FieldLogger) *Records {
	return &Records{store: store, validate: fault.NewValidator(), log: log}
}

func (r *Records) List(ctx context.Context, sess session.Session) ([]healthrecord.Record, error) {
	if err := sess.Require(); err != nil {
		return nil, err
	}

	ticket := r.seq.Next()
	list, err := r.store.ListHealthRecords(ctx, sess)
	if !r.seq.IsLatest(ticket) {
		return nil, sequence.ErrSuperseded
	}
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.records = list
	r.mu.Unlock()
	return list, nil
}

// Current returns the last fetched list.
func (r *Records) Current() []healthrecord.Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]healthrecord.Record(nil), r.records...)
}

func (r *Records) Create(ctx context.Context, sess session.Session, in RecordInput) (*healthrecord.Record, error) {
	if err := sess.Require(); err != nil {
		return nil, err
	}
	if err := r.validate.Struct(in); err != nil {
		return nil, err
	}

	rec, err := r.store.CreateHealthRecord(ctx, sess, in)
	if err != nil {
		return nil, err
	}
	r.refresh(ctx, sess)
	return rec, nil
}

func (r *Records) Delete(ctx context.Context, sess session.Session, id uuid.UUID) error {
	if err := sess.Require(); err != nil {
		return err
	}

	err := r.store.DeleteHealthRecord(ctx, sess, id)
	r.refresh(ctx, sess)
	return err
}

func (r *Records) refresh(ctx context.Context, sess session.Session) {
	if _, err := r.List(ctx, sess); err != nil && !errors.Is(err, sequence.ErrSuperseded) {
		r.log.WithError(err).Warn("refresh health records failed")
	}
}
