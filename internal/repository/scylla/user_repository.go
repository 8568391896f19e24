package scylla

import (
	"context"
	"fmt"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"gateway-service/internal/auth"
	"gateway-service/internal/model"
	"gateway-service/internal/util"
)

// UserRepository persists legacy username/password accounts.
type UserRepository struct {
	client *ScyllaClient
}

func NewUserRepository(client *ScyllaClient) *UserRepository {
	return &UserRepository{client: client}
}

func (r *UserRepository) CreateUser(ctx context.Context, user *model.LegacyUser) error {
	// LWT keeps registration atomic: the insert loses when the username
	// row already exists.
	applied, err := r.client.Query(ctx, r.client.Stmts.CreateUser,
		user.Username, user.UserID, user.PasswordHash, user.CreatedAt).
		MapScanCAS(make(map[string]interface{}))
	if err != nil {
		util.Error("Failed to create legacy user",
			zap.String("username", user.Username),
			zap.Error(err))
		return fmt.Errorf("failed to create user: %w", err)
	}
	if !applied {
		return auth.ErrUsernameTaken
	}

	util.Info("Legacy user created",
		zap.String("username", user.Username),
		zap.String("user_id", user.UserID))
	return nil
}

func (r *UserRepository) GetUserByUsername(ctx context.Context, username string) (*model.LegacyUser, error) {
	user := &model.LegacyUser{}

	query := r.client.Query(ctx, r.client.Stmts.GetUserByUsername, username)
	err := r.client.ScanWithRetry(query,
		&user.Username, &user.UserID, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, auth.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user by username: %w", err)
	}
	return user, nil
}
