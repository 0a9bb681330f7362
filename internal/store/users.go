package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/learnhub/enrollment-be/internal/domain"
)

// GetUser loads a user by id.
func (s *Storage) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	query := `
		SELECT user_id, email, first_name, last_name,
		       external_lms_user_id, external_incubator_user_id,
		       created_at, updated_at
		FROM users
		WHERE user_id = $1
	`

	var user domain.User
	err := s.db.GetContext(ctx, &user, query, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return &user, nil
}

// GetUserByExternalLMSID loads the portal user holding a given LMS id,
// used by sync passes to map LMS records onto portal rows.
func (s *Storage) GetUserByExternalLMSID(ctx context.Context, externalID string) (*domain.User, error) {
	query := `
		SELECT user_id, email, first_name, last_name,
		       external_lms_user_id, external_incubator_user_id,
		       created_at, updated_at
		FROM users
		WHERE external_lms_user_id = $1
	`

	var user domain.User
	err := s.db.GetContext(ctx, &user, query, externalID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user by external id: %w", err)
	}

	return &user, nil
}

// SetExternalLMSUserID records the LMS account id. The IS NULL guard means
// the id is never overwritten: losing the race to another worker is a no-op.
func (s *Storage) SetExternalLMSUserID(ctx context.Context, userID, externalID string) (bool, error) {
	query := `
		UPDATE users
		SET external_lms_user_id = $1,
		    updated_at = NOW()
		WHERE user_id = $2
		  AND external_lms_user_id IS NULL
	`

	return s.setExternalID(ctx, query, userID, externalID, "lms")
}

// SetExternalIncubatorUserID records the incubator account id, set at most once.
func (s *Storage) SetExternalIncubatorUserID(ctx context.Context, userID, externalID string) (bool, error) {
	query := `
		UPDATE users
		SET external_incubator_user_id = $1,
		    updated_at = NOW()
		WHERE user_id = $2
		  AND external_incubator_user_id IS NULL
	`

	return s.setExternalID(ctx, query, userID, externalID, "incubator")
}

func (s *Storage) setExternalID(ctx context.Context, query, userID, externalID, system string) (bool, error) {
	result, err := s.db.ExecContext(ctx, query, externalID, userID)
	if err != nil {
		return false, fmt.Errorf("failed to set external %s id: %w", system, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		s.logger.Debug("External id already set, keeping stored value",
			slog.String("user_id", userID),
			slog.String("system", system),
		)
	}

	return rows > 0, nil
}

// UpsertUserFromLMS reconciles one user row from LMS state. The external
// LMS id is only filled when absent.
func (s *Storage) UpsertUserFromLMS(ctx context.Context, user *domain.User) error {
	query := `
		INSERT INTO users (
			user_id, email, first_name, last_name, external_lms_user_id,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		ON CONFLICT (user_id) DO UPDATE
		SET email = EXCLUDED.email,
		    first_name = EXCLUDED.first_name,
		    last_name = EXCLUDED.last_name,
		    external_lms_user_id = COALESCE(users.external_lms_user_id, EXCLUDED.external_lms_user_id),
		    updated_at = NOW()
	`

	_, err := s.db.ExecContext(ctx, query,
		user.UserID, user.Email, user.FirstName, user.LastName, user.ExternalLMSUserID)
	if err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}

	return nil
}
