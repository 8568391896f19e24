package scylla

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"gateway-service/internal/config"
	"gateway-service/internal/util"
)

// Statements holds the CQL the repositories run. Each call binds a
// fresh Session.Query so no query state is shared between goroutines;
// gocql prepares and caches every statement per node on first use.
// Tokens are written to two tables so both the owner listing and the
// hash lookup stay single-partition reads.
type Statements struct {
	InsertTokenByOwner string
	InsertTokenByHash  string
	GetTokenByHash     string
	GetTokenByOwnerID  string
	ListTokensByOwner  string
	RevokeTokenByOwner string
	RevokeTokenByHash  string
	TouchTokenByOwner  string
	TouchTokenByHash   string

	CreateUser        string
	GetUserByUsername string
}

type ScyllaClient struct {
	Session *gocql.Session
	config  *config.ScyllaConfig
	Stmts   *Statements
}

func NewScyllaClient(cfg *config.Config) (*ScyllaClient, error) {
	scyllaConfig := cfg.Scylla

	cluster := gocql.NewCluster(scyllaConfig.Nodes...)
	cluster.Keyspace = scyllaConfig.Keyspace
	cluster.Consistency = gocql.LocalQuorum
	cluster.Timeout = 10 * time.Second
	cluster.ConnectTimeout = 10 * time.Second
	cluster.NumConns = 4
	cluster.SocketKeepalive = 30 * time.Second
	cluster.MaxPreparedStmts = 1000
	cluster.PageSize = 1000
	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		Min:        time.Second,
		Max:        10 * time.Second,
		NumRetries: 3,
	}

	if scyllaConfig.Username != "" && scyllaConfig.Password != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: scyllaConfig.Username,
			Password: scyllaConfig.Password,
		}
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create scylla session: %w", err)
	}

	client := &ScyllaClient{
		Session: session,
		config:  &scyllaConfig,
		Stmts:   newStatements(),
	}

	util.Info("ScyllaDB client initialized",
		zap.Strings("nodes", scyllaConfig.Nodes),
		zap.String("keyspace", scyllaConfig.Keyspace))

	return client, nil
}

func newStatements() *Statements {
	return &Statements{
		InsertTokenByOwner: `
        INSERT INTO api_tokens_by_owner
            (owner_user_id, token_id, name, secret_hash, created_at, expires_at, last_used_at, revoked)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,

		InsertTokenByHash: `
        INSERT INTO api_tokens_by_hash
            (secret_hash, token_id, owner_user_id, name, created_at, expires_at, last_used_at, revoked)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,

		GetTokenByHash: `
        SELECT secret_hash, token_id, owner_user_id, name, created_at, expires_at, last_used_at, revoked
        FROM api_tokens_by_hash WHERE secret_hash = ?`,

		GetTokenByOwnerID: `
        SELECT owner_user_id, token_id, name, secret_hash, created_at, expires_at, last_used_at, revoked
        FROM api_tokens_by_owner WHERE owner_user_id = ? AND token_id = ?`,

		ListTokensByOwner: `
        SELECT owner_user_id, token_id, name, secret_hash, created_at, expires_at, last_used_at, revoked
        FROM api_tokens_by_owner WHERE owner_user_id = ?`,

		RevokeTokenByOwner: `
        UPDATE api_tokens_by_owner SET revoked = true
        WHERE owner_user_id = ? AND token_id = ?`,

		RevokeTokenByHash: `
        UPDATE api_tokens_by_hash SET revoked = true WHERE secret_hash = ?`,

		TouchTokenByOwner: `
        UPDATE api_tokens_by_owner SET last_used_at = ?
        WHERE owner_user_id = ? AND token_id = ?`,

		TouchTokenByHash: `
        UPDATE api_tokens_by_hash SET last_used_at = ? WHERE secret_hash = ?`,

		CreateUser: `
        INSERT INTO legacy_users (username, user_id, password_hash, created_at)
        VALUES (?, ?, ?, ?) IF NOT EXISTS`,

		GetUserByUsername: `
        SELECT username, user_id, password_hash, created_at
        FROM legacy_users WHERE username = ?`,
	}
}

// Query binds arguments to a fresh per-call query.
func (s *ScyllaClient) Query(ctx context.Context, stmt string, args ...interface{}) *gocql.Query {
	return s.Session.Query(stmt, args...).WithContext(ctx)
}

func (s *ScyllaClient) Close() {
	if s.Session != nil {
		s.Session.Close()
		util.Info("ScyllaDB client closed")
	}
}

func (s *ScyllaClient) Batch(typ gocql.BatchType) *gocql.Batch {
	return s.Session.NewBatch(typ)
}

func (s *ScyllaClient) ExecuteBatch(batch *gocql.Batch) error {
	return s.Session.ExecuteBatch(batch)
}

func (s *ScyllaClient) HealthCheck() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var clusterName string
	err := s.Session.Query(`SELECT cluster_name FROM system.local`).WithContext(ctx).Scan(&clusterName)
	if err != nil {
		return fmt.Errorf("scylla health check failed: %w", err)
	}

	util.Debug("ScyllaDB health check passed", zap.String("cluster_name", clusterName))
	return nil
}

func (s *ScyllaClient) ScanWithRetry(query *gocql.Query, dest ...interface{}) error {
	var lastErr error
	for i := 0; i < 3; i++ {
		if err := query.Scan(dest...); err != nil {
			lastErr = err
			if err == gocql.ErrNotFound {
				return err
			}
			if i < 2 {
				time.Sleep(time.Duration(i+1) * 100 * time.Millisecond)
				continue
			}
		} else {
			return nil
		}
	}
	return lastErr
}
