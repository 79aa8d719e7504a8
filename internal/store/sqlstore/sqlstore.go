// Package sqlstore is the Postgres-backed store.Store implementation,
// built on jmoiron/sqlx + lib/pq — the hand-written-SQL idiom the
// KhryptorGraphics-OllamaMax pack member uses for persistence, adopted
// here in place of the teacher's ent codegen (see DESIGN.md).
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"classroomd/internal/apperr"
	"classroomd/internal/enum"
	"classroomd/internal/store"
)

// Store is a store.Store backed by a live *sqlx.DB or, inside a
// transaction, a *sqlx.Tx. Both satisfy the queryer interface below.
type Store struct {
	db queryer
}

type queryer interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

// Open connects to Postgres and returns a ready Store. It does not apply
// schema.sql; the tables must already exist.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: connect: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if db, ok := s.db.(*sqlx.DB); ok {
		return db.Close()
	}
	return nil
}

// WithTx runs fn inside one Postgres transaction, rolling back on error or
// panic. This is where the autoscaler's "commit atomically; on any
// failure, roll back" requirement (SPEC_FULL.md §4.1) is enforced for the
// production backend.
func (s *Store) WithTx(ctx context.Context, fn func(store.Store) error) error {
	db, ok := s.db.(*sqlx.DB)
	if !ok {
		// Already inside a transaction: reuse it (no nested transactions).
		return fn(s)
	}
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return apperr.Internal("Store.WithTx", err)
	}
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback()
			panic(r)
		}
	}()
	if err := fn(&Store{db: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return apperr.Internal("Store.WithTx", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

func notFound(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.NotFound(op, "not found")
	}
	return apperr.Internal(op, err)
}

// --- Users ---

func (s *Store) GetUser(ctx context.Context, id string) (*store.User, error) {
	var u store.User
	err := s.db.GetContext(ctx, &u, `SELECT id, email, password_hash, role, verified FROM users WHERE id = $1`, id)
	if err != nil {
		return nil, notFound("Store.GetUser", err)
	}
	return &u, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*store.User, error) {
	var u store.User
	err := s.db.GetContext(ctx, &u, `SELECT id, email, password_hash, role, verified FROM users WHERE email = $1`, email)
	if err != nil {
		return nil, notFound("Store.GetUserByEmail", err)
	}
	return &u, nil
}

func (s *Store) CreateUser(ctx context.Context, u *store.User) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, role, verified) VALUES ($1, $2, $3, $4, $5)`,
		u.ID, u.Email, u.PasswordHash, u.Role, u.Verified)
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.Conflict("Store.CreateUser", "email already registered")
		}
		return apperr.Internal("Store.CreateUser", err)
	}
	return nil
}

// --- Containers ---

// containerRow mirrors store.Container with env marshaled to JSON for
// sqlx scanning (store.Container.Env is tagged db:"-").
type containerRow struct {
	store.Container
	EnvJSON []byte `db:"env"`
}

func (s *Store) CreateContainer(ctx context.Context, c *store.Container) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	envJSON, err := json.Marshal(c.Env)
	if err != nil {
		return apperr.Internal("Store.CreateContainer", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO containers
			(id, owner, name, image, status, port, cpu_limit_millicores, memory_limit_mb,
			 env, deployment_type, engine_handle, kind, parent_id, created_at, started_at, stopped_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		c.ID, c.Owner, c.Name, c.Image, c.Status, c.Port, c.CPULimitMillicores, c.MemoryLimitMB,
		envJSON, c.DeploymentType, c.EngineHandle, c.Kind, c.ParentID, c.CreatedAt, c.StartedAt, c.StoppedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.Conflict("Store.CreateContainer", "container name or port already in use")
		}
		return apperr.Internal("Store.CreateContainer", err)
	}
	return nil
}

func (s *Store) scanContainer(row *containerRow) *store.Container {
	c := row.Container
	if len(row.EnvJSON) > 0 {
		_ = json.Unmarshal(row.EnvJSON, &c.Env)
	}
	return &c
}

func (s *Store) GetContainer(ctx context.Context, id uuid.UUID) (*store.Container, error) {
	var row containerRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM containers WHERE id = $1`, id)
	if err != nil {
		return nil, notFound("Store.GetContainer", err)
	}
	return s.scanContainer(&row), nil
}

func (s *Store) ListContainers(ctx context.Context, owner string, allOwners bool) ([]*store.Container, error) {
	var rows []containerRow
	var err error
	if allOwners {
		err = s.db.SelectContext(ctx, &rows, `SELECT * FROM containers ORDER BY created_at`)
	} else {
		err = s.db.SelectContext(ctx, &rows, `SELECT * FROM containers WHERE owner = $1 ORDER BY created_at`, owner)
	}
	if err != nil {
		return nil, apperr.Internal("Store.ListContainers", err)
	}
	out := make([]*store.Container, len(rows))
	for i := range rows {
		out[i] = s.scanContainer(&rows[i])
	}
	return out, nil
}

func (s *Store) ListReplicas(ctx context.Context, parentID uuid.UUID) ([]*store.Container, error) {
	var rows []containerRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT * FROM containers WHERE parent_id = $1 ORDER BY created_at DESC`, parentID)
	if err != nil {
		return nil, apperr.Internal("Store.ListReplicas", err)
	}
	out := make([]*store.Container, len(rows))
	for i := range rows {
		out[i] = s.scanContainer(&rows[i])
	}
	return out, nil
}

func (s *Store) UpdateContainer(ctx context.Context, c *store.Container) error {
	envJSON, err := json.Marshal(c.Env)
	if err != nil {
		return apperr.Internal("Store.UpdateContainer", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE containers SET
			name=$2, image=$3, status=$4, port=$5, cpu_limit_millicores=$6, memory_limit_mb=$7,
			env=$8, deployment_type=$9, engine_handle=$10, kind=$11, parent_id=$12,
			started_at=$13, stopped_at=$14
		WHERE id = $1`,
		c.ID, c.Name, c.Image, c.Status, c.Port, c.CPULimitMillicores, c.MemoryLimitMB,
		envJSON, c.DeploymentType, c.EngineHandle, c.Kind, c.ParentID, c.StartedAt, c.StoppedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.Conflict("Store.UpdateContainer", "container name or port already in use")
		}
		return apperr.Internal("Store.UpdateContainer", err)
	}
	return requireRowsAffected(res, "Store.UpdateContainer")
}

func (s *Store) DeleteContainer(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM containers WHERE id = $1`, id)
	if err != nil {
		return apperr.Internal("Store.DeleteContainer", err)
	}
	return requireRowsAffected(res, "Store.DeleteContainer")
}

// NextFreePort scans for the lowest unused port. Concurrent callers race
// on the unique index in CreateContainer; the loser's insert fails with
// Conflict and is expected to retry via NextFreePort again
// (SPEC_FULL.md §5 "Port allocation race").
func (s *Store) NextFreePort(ctx context.Context, floor int) (int, error) {
	var used []int
	if err := s.db.SelectContext(ctx, &used,
		`SELECT port FROM containers WHERE port IS NOT NULL AND port >= $1 ORDER BY port`, floor); err != nil {
		return 0, apperr.Internal("Store.NextFreePort", err)
	}
	set := make(map[int]bool, len(used))
	for _, p := range used {
		set[p] = true
	}
	p := floor
	for set[p] {
		p++
	}
	return p, nil
}

// --- Policies ---

func (s *Store) CreatePolicy(ctx context.Context, p *store.ScalingPolicy) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scaling_policies
			(id, container_id, scale_up_cpu, scale_up_mem, scale_down_cpu, scale_down_mem,
			 min_replicas, max_replicas, cooldown_seconds, evaluation_seconds, enabled, last_scaled_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		p.ID, p.ContainerID, p.ScaleUpCPU, p.ScaleUpMem, p.ScaleDownCPU, p.ScaleDownMem,
		p.MinReplicas, p.MaxReplicas, p.CooldownSeconds, p.EvaluationSeconds, p.Enabled, p.LastScaledAt)
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.InvalidInput("Store.CreatePolicy", "container already has a scaling policy")
		}
		return apperr.Internal("Store.CreatePolicy", err)
	}
	return nil
}

func (s *Store) GetPolicy(ctx context.Context, id uuid.UUID) (*store.ScalingPolicy, error) {
	var p store.ScalingPolicy
	err := s.db.GetContext(ctx, &p, `SELECT * FROM scaling_policies WHERE id = $1`, id)
	if err != nil {
		return nil, notFound("Store.GetPolicy", err)
	}
	return &p, nil
}

func (s *Store) GetPolicyByContainer(ctx context.Context, containerID uuid.UUID) (*store.ScalingPolicy, error) {
	var p store.ScalingPolicy
	err := s.db.GetContext(ctx, &p, `SELECT * FROM scaling_policies WHERE container_id = $1`, containerID)
	if err != nil {
		return nil, notFound("Store.GetPolicyByContainer", err)
	}
	return &p, nil
}

func (s *Store) ListEnabledPolicies(ctx context.Context) ([]*store.ScalingPolicy, error) {
	var rows []*store.ScalingPolicy
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM scaling_policies WHERE enabled ORDER BY id`); err != nil {
		return nil, apperr.Internal("Store.ListEnabledPolicies", err)
	}
	return rows, nil
}

func (s *Store) ListPoliciesByOwner(ctx context.Context, owner string) ([]*store.ScalingPolicy, error) {
	var rows []*store.ScalingPolicy
	err := s.db.SelectContext(ctx, &rows, `
		SELECT sp.* FROM scaling_policies sp
		JOIN containers c ON c.id = sp.container_id
		WHERE c.owner = $1`, owner)
	if err != nil {
		return nil, apperr.Internal("Store.ListPoliciesByOwner", err)
	}
	return rows, nil
}

func (s *Store) UpdatePolicy(ctx context.Context, p *store.ScalingPolicy) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE scaling_policies SET
			scale_up_cpu=$2, scale_up_mem=$3, scale_down_cpu=$4, scale_down_mem=$5,
			min_replicas=$6, max_replicas=$7, cooldown_seconds=$8, evaluation_seconds=$9,
			enabled=$10, last_scaled_at=$11
		WHERE id = $1`,
		p.ID, p.ScaleUpCPU, p.ScaleUpMem, p.ScaleDownCPU, p.ScaleDownMem,
		p.MinReplicas, p.MaxReplicas, p.CooldownSeconds, p.EvaluationSeconds,
		p.Enabled, p.LastScaledAt)
	if err != nil {
		return apperr.Internal("Store.UpdatePolicy", err)
	}
	return requireRowsAffected(res, "Store.UpdatePolicy")
}

func (s *Store) DeletePolicy(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM scaling_policies WHERE id = $1`, id)
	if err != nil {
		return apperr.Internal("Store.DeletePolicy", err)
	}
	return requireRowsAffected(res, "Store.DeletePolicy")
}

// --- Events ---

func (s *Store) CreateEvent(ctx context.Context, e *store.ScalingEvent) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scaling_events
			(id, policy_id, container_id, action, trigger_metric, metric_value,
			 replicas_before, replicas_after, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		e.ID, e.PolicyID, e.ContainerID, e.Action, e.TriggerMetric, e.MetricValue,
		e.ReplicasBefore, e.ReplicasAfter, e.CreatedAt)
	if err != nil {
		return apperr.Internal("Store.CreateEvent", err)
	}
	return nil
}

func (s *Store) ListEvents(ctx context.Context, owner string, limit int) ([]*store.ScalingEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []*store.ScalingEvent
	err := s.db.SelectContext(ctx, &rows, `
		SELECT se.* FROM scaling_events se
		JOIN containers c ON c.id = se.container_id
		WHERE c.owner = $1
		ORDER BY se.created_at DESC
		LIMIT $2`, owner, limit)
	if err != nil {
		return nil, apperr.Internal("Store.ListEvents", err)
	}
	return rows, nil
}

// --- Load tests ---

func (s *Store) CreateLoadTest(ctx context.Context, t *store.LoadTest) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO load_tests
			(id, owner, container_id, target_url, total_requests, concurrency, duration_seconds,
			 status, error_message, requests_sent, requests_completed, requests_failed,
			 avg_response_ms, min_response_ms, max_response_ms, peak_cpu, peak_memory,
			 created_at, started_at, completed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)`,
		t.ID, t.Owner, t.ContainerID, t.TargetURL, t.TotalRequests, t.Concurrency, t.DurationSeconds,
		t.Status, t.ErrorMessage, t.RequestsSent, t.RequestsDone, t.RequestsFailed,
		t.AvgResponseMS, t.MinResponseMS, t.MaxResponseMS, t.PeakCPU, t.PeakMemory,
		t.CreatedAt, t.StartedAt, t.CompletedAt)
	if err != nil {
		return apperr.Internal("Store.CreateLoadTest", err)
	}
	return nil
}

func (s *Store) GetLoadTest(ctx context.Context, id uuid.UUID) (*store.LoadTest, error) {
	var t store.LoadTest
	err := s.db.GetContext(ctx, &t, `SELECT * FROM load_tests WHERE id = $1`, id)
	if err != nil {
		return nil, notFound("Store.GetLoadTest", err)
	}
	return &t, nil
}

func (s *Store) UpdateLoadTest(ctx context.Context, t *store.LoadTest) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE load_tests SET
			status=$2, error_message=$3, requests_sent=$4, requests_completed=$5, requests_failed=$6,
			avg_response_ms=$7, min_response_ms=$8, max_response_ms=$9, peak_cpu=$10, peak_memory=$11,
			started_at=$12, completed_at=$13
		WHERE id = $1`,
		t.ID, t.Status, t.ErrorMessage, t.RequestsSent, t.RequestsDone, t.RequestsFailed,
		t.AvgResponseMS, t.MinResponseMS, t.MaxResponseMS, t.PeakCPU, t.PeakMemory,
		t.StartedAt, t.CompletedAt)
	if err != nil {
		return apperr.Internal("Store.UpdateLoadTest", err)
	}
	return requireRowsAffected(res, "Store.UpdateLoadTest")
}

func (s *Store) ListLoadTests(ctx context.Context, owner string, containerID *uuid.UUID, page, pageSize int) ([]*store.LoadTest, int, error) {
	if pageSize <= 0 {
		pageSize = 20
	}
	args := []interface{}{owner}
	where := "owner = $1"
	if containerID != nil {
		where += " AND container_id = $2"
		args = append(args, *containerID)
	}
	var total int
	countQuery := fmt.Sprintf(`SELECT count(*) FROM load_tests WHERE %s`, where)
	if err := s.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, apperr.Internal("Store.ListLoadTests", err)
	}

	args = append(args, pageSize, page*pageSize)
	listQuery := fmt.Sprintf(`SELECT * FROM load_tests WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		where, len(args)-1, len(args))
	var rows []*store.LoadTest
	if err := s.db.SelectContext(ctx, &rows, listQuery, args...); err != nil {
		return nil, 0, apperr.Internal("Store.ListLoadTests", err)
	}
	return rows, total, nil
}

// --- Load test metrics ---

func (s *Store) CreateLoadTestMetric(ctx context.Context, m *store.LoadTestMetric) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO load_test_metrics
			(id, test_id, timestamp, cpu_percent, memory_mb, completed, failed, active_requests)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		m.ID, m.TestID, m.Timestamp, m.CPUPercent, m.MemoryMB, m.Completed, m.Failed, m.ActiveRequests)
	if err != nil {
		return apperr.Internal("Store.CreateLoadTestMetric", err)
	}
	return nil
}

func (s *Store) ListLoadTestMetrics(ctx context.Context, testID uuid.UUID) ([]*store.LoadTestMetric, error) {
	var rows []*store.LoadTestMetric
	err := s.db.SelectContext(ctx, &rows,
		`SELECT * FROM load_test_metrics WHERE test_id = $1 ORDER BY timestamp`, testID)
	if err != nil {
		return nil, apperr.Internal("Store.ListLoadTestMetrics", err)
	}
	return rows, nil
}

// --- Usage ---

func (s *Store) RecordUsage(ctx context.Context, u *store.ResourceUsage) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO resource_usage
			(id, container_id, timestamp, cpu_percent, cpu_cores_used, memory_mb, memory_gb,
			 storage_gb, net_rx_bytes, net_tx_bytes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		u.ID, u.ContainerID, u.Timestamp, u.CPUPercent, u.CPUCoresUsed, u.MemoryMB, u.MemoryGB,
		u.StorageGB, u.NetworkRxBytes, u.NetworkTxBytes)
	if err != nil {
		return apperr.Internal("Store.RecordUsage", err)
	}
	return nil
}

func (s *Store) ListUsage(ctx context.Context, containerID uuid.UUID, start, end time.Time) ([]*store.ResourceUsage, error) {
	var rows []*store.ResourceUsage
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM resource_usage
		WHERE container_id = $1 AND timestamp >= $2 AND timestamp < $3
		ORDER BY timestamp`, containerID, start, end)
	if err != nil {
		return nil, apperr.Internal("Store.ListUsage", err)
	}
	return rows, nil
}

func (s *Store) ListRunningContainersWithHandle(ctx context.Context) ([]*store.Container, error) {
	var rows []containerRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT * FROM containers WHERE status = $1 AND engine_handle IS NOT NULL`, enum.ContainerRunning)
	if err != nil {
		return nil, apperr.Internal("Store.ListRunningContainersWithHandle", err)
	}
	out := make([]*store.Container, len(rows))
	for i := range rows {
		out[i] = s.scanContainer(&rows[i])
	}
	return out, nil
}

// --- Pricing ---

func (s *Store) GetPricingModel(ctx context.Context, provider enum.Provider) (*store.PricingModel, error) {
	var p store.PricingModel
	err := s.db.GetContext(ctx, &p, `SELECT * FROM pricing_models WHERE provider = $1`, provider)
	if err != nil {
		return nil, notFound("Store.GetPricingModel", err)
	}
	return &p, nil
}

func (s *Store) ListPricingModels(ctx context.Context) ([]*store.PricingModel, error) {
	var rows []*store.PricingModel
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM pricing_models ORDER BY provider`); err != nil {
		return nil, apperr.Internal("Store.ListPricingModels", err)
	}
	return rows, nil
}

func (s *Store) UpsertPricingModel(ctx context.Context, p *store.PricingModel) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pricing_models
			(provider, cpu_per_hour, memory_per_gb_hour, storage_per_gb_month, ssd_per_gb_month, hdd_per_gb_month)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (provider) DO NOTHING`,
		p.Provider, p.CPUPerHour, p.MemoryPerGBHour, p.StoragePerGBMonth, p.SSDPerGBMonth, p.HDDPerGBMonth)
	if err != nil {
		return apperr.Internal("Store.UpsertPricingModel", err)
	}
	return nil
}

func requireRowsAffected(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return apperr.Internal(op, err)
	}
	if n == 0 {
		return apperr.NotFound(op, "not found")
	}
	return nil
}

var _ store.Store = (*Store)(nil)
