package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"chat-escrow/internal/models"
)

type AdminRepository interface {
	// GetRole returns the caller's admin role. found is false when the user
	// has no admin_users row.
	GetRole(ctx context.Context, userID string) (role models.Role, found bool, err error)
	SetRole(ctx context.Context, userID string, role models.Role) error
}

type adminRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

func NewAdminRepository(db *sqlx.DB, logger *zap.Logger) AdminRepository {
	return &adminRepository{db: db, logger: logger}
}

func (r *adminRepository) GetRole(ctx context.Context, userID string) (models.Role, bool, error) {
	var role string
	query := r.db.Rebind(`SELECT role FROM admin_users WHERE user_id = ?`)
	err := r.db.GetContext(ctx, &role, query, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		r.logger.Error("Failed to look up admin role", zap.String("user_id", userID), zap.Error(err))
		return "", false, err
	}
	return models.Role(role), true, nil
}

func (r *adminRepository) SetRole(ctx context.Context, userID string, role models.Role) error {
	query := r.db.Rebind(`INSERT INTO admin_users (user_id, role) VALUES (?, ?)
		ON CONFLICT (user_id) DO UPDATE SET role = excluded.role`)
	_, err := r.db.ExecContext(ctx, query, userID, string(role))
	return err
}
