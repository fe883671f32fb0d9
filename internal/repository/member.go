package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chatserver/internal/logger"
	"github.com/chatserver/internal/model"
	"github.com/jackc/pgx/v5"
)

type MemberRepository struct {
	db DB
}

func NewMemberRepository(db DB) *MemberRepository {
	return &MemberRepository{db: db}
}

// WithTx возвращает копию репозитория, работающую внутри tx.
func (r *MemberRepository) WithTx(tx pgx.Tx) *MemberRepository {
	return &MemberRepository{db: tx}
}

// Upsert создаёт или обновляет участника (вызывается сервисом идентификации).
func (r *MemberRepository) Upsert(ctx context.Context, m *model.Member) error {
	defer logger.DeferLogDuration("member.Upsert", time.Now())()
	_, err := r.db.Exec(ctx,
		`INSERT INTO members (id, username, email, created_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE SET username = $2, email = $3`,
		m.ID, m.Username, m.Email, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("memberRepo.Upsert: %w", err)
	}
	return nil
}

func (r *MemberRepository) GetByID(ctx context.Context, id string) (*model.Member, error) {
	defer logger.DeferLogDuration("member.GetByID", time.Now())()
	m := &model.Member{}
	err := r.db.QueryRow(ctx,
		`SELECT id, username, email, created_at FROM members WHERE id = $1`, id,
	).Scan(&m.ID, &m.Username, &m.Email, &m.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("memberRepo.GetByID: %w", err)
	}
	return m, nil
}

// Exists — лёгкая проверка существования участника без выборки строки.
func (r *MemberRepository) Exists(ctx context.Context, id string) (bool, error) {
	defer logger.DeferLogDuration("member.Exists", time.Now())()
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM members WHERE id = $1)`, id,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("memberRepo.Exists: %w", err)
	}
	return exists, nil
}

func (r *MemberRepository) List(ctx context.Context, limit int) ([]model.Member, error) {
	defer logger.DeferLogDuration("member.List", time.Now())()
	rows, err := r.db.Query(ctx,
		`SELECT id, username, email, created_at FROM members ORDER BY username LIMIT $1`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("memberRepo.List query: %w", err)
	}
	defer rows.Close()

	members := make([]model.Member, 0, limit)
	for rows.Next() {
		var m model.Member
		if err := rows.Scan(&m.ID, &m.Username, &m.Email, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("memberRepo.List scan: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("memberRepo.List rows: %w", err)
	}
	return members, nil
}
