package referral

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

func (s *PgStore) Put(ctx context.Context, letter Letter) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO referral_letters (ref, owner_id, filename, mime_type, content, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, letter.Ref, letter.OwnerID, letter.Filename, letter.MimeType, letter.Content, letter.CreatedAt)
	return err
}

func (s *PgStore) Get(ctx context.Context, ref string) (*Letter, error) {
	if _, err := uuid.Parse(ref); err != nil {
		return nil, ErrLetterNotFound
	}

	var l Letter
	err := s.pool.QueryRow(ctx, `
		SELECT ref, owner_id, filename, mime_type, content, created_at
		FROM referral_letters
		WHERE ref = $1
	`, ref).Scan(&l.Ref, &l.OwnerID, &l.Filename, &l.MimeType, &l.Content, &l.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLetterNotFound
		}
		return nil, err
	}
	return &l, nil
}

func (s *PgStore) Delete(ctx context.Context, ref string) error {
	if _, err := uuid.Parse(ref); err != nil {
		return nil
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM referral_letters WHERE ref = $1`, ref)
	return err
}
