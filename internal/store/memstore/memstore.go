// Package memstore is an in-process implementation of store.Store backed
// by locked Go maps. It is used by unit tests (grounded on the teacher's
// hand-written interface fakes, e.g. billing/deduction_test.go's
// mockCalculator) and doubles as the zero-configuration backend for
// running the teaching sandbox without standing up Postgres.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"classroomd/internal/apperr"
	"classroomd/internal/enum"
	"classroomd/internal/store"
)

// Store implements store.Store entirely in memory.
type Store struct {
	mu sync.Mutex

	users      map[string]*store.User
	containers map[uuid.UUID]*store.Container
	policies   map[uuid.UUID]*store.ScalingPolicy
	events     []*store.ScalingEvent
	loadTests  map[uuid.UUID]*store.LoadTest
	ltMetrics  map[uuid.UUID][]*store.LoadTestMetric
	usage      map[uuid.UUID][]*store.ResourceUsage
	pricing    map[enum.Provider]*store.PricingModel
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{
		users:      map[string]*store.User{},
		containers: map[uuid.UUID]*store.Container{},
		policies:   map[uuid.UUID]*store.ScalingPolicy{},
		loadTests:  map[uuid.UUID]*store.LoadTest{},
		ltMetrics:  map[uuid.UUID][]*store.LoadTestMetric{},
		usage:      map[uuid.UUID][]*store.ResourceUsage{},
		pricing:    map[enum.Provider]*store.PricingModel{},
	}
}

// SeedUser inserts a user directly; exposed for tests and dev bootstrap
// since /auth/* registration is a thin external-collaborator stand-in.
func (s *Store) SeedUser(u *store.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID.String()] = u
}

func (s *Store) Close() error { return nil }

// WithTx snapshots the whole dataset, runs fn against this same Store
// under the lock, and restores the snapshot if fn errors — giving
// all-or-nothing commits without a real transaction manager.
func (s *Store) WithTx(ctx context.Context, fn func(store.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.clone()
	if err := fn(&txView{s}); err != nil {
		s.restore(snapshot)
		return err
	}
	return nil
}

// txView re-exposes Store's methods without re-acquiring the mutex, since
// WithTx already holds it. Each txView method calls the matching
// *Locked helper directly, which assumes the mutex is held.
type txView struct{ s *Store }

func (t *txView) GetUser(ctx context.Context, id string) (*store.User, error) {
	return t.s.getUserLocked(id)
}
func (t *txView) GetUserByEmail(ctx context.Context, email string) (*store.User, error) {
	return t.s.getUserByEmailLocked(email)
}
func (t *txView) CreateUser(ctx context.Context, u *store.User) error {
	return t.s.createUserLocked(u)
}
func (t *txView) CreateContainer(ctx context.Context, c *store.Container) error {
	return t.s.createContainerLocked(c)
}
func (t *txView) GetContainer(ctx context.Context, id uuid.UUID) (*store.Container, error) {
	return t.s.getContainerLocked(id)
}
func (t *txView) ListContainers(ctx context.Context, owner string, allOwners bool) ([]*store.Container, error) {
	return t.s.listContainersLocked(owner, allOwners)
}
func (t *txView) ListReplicas(ctx context.Context, parentID uuid.UUID) ([]*store.Container, error) {
	return t.s.listReplicasLocked(parentID)
}
func (t *txView) UpdateContainer(ctx context.Context, c *store.Container) error {
	return t.s.updateContainerLocked(c)
}
func (t *txView) DeleteContainer(ctx context.Context, id uuid.UUID) error {
	return t.s.deleteContainerLocked(id)
}
func (t *txView) NextFreePort(ctx context.Context, floor int) (int, error) {
	return t.s.nextFreePortLocked(floor)
}
func (t *txView) CreatePolicy(ctx context.Context, p *store.ScalingPolicy) error {
	return t.s.createPolicyLocked(p)
}
func (t *txView) GetPolicy(ctx context.Context, id uuid.UUID) (*store.ScalingPolicy, error) {
	return t.s.getPolicyLocked(id)
}
func (t *txView) GetPolicyByContainer(ctx context.Context, containerID uuid.UUID) (*store.ScalingPolicy, error) {
	return t.s.getPolicyByContainerLocked(containerID)
}
func (t *txView) ListEnabledPolicies(ctx context.Context) ([]*store.ScalingPolicy, error) {
	return t.s.listEnabledPoliciesLocked()
}
func (t *txView) ListPoliciesByOwner(ctx context.Context, owner string) ([]*store.ScalingPolicy, error) {
	return t.s.listPoliciesByOwnerLocked(owner)
}
func (t *txView) UpdatePolicy(ctx context.Context, p *store.ScalingPolicy) error {
	return t.s.updatePolicyLocked(p)
}
func (t *txView) DeletePolicy(ctx context.Context, id uuid.UUID) error {
	return t.s.deletePolicyLocked(id)
}
func (t *txView) CreateEvent(ctx context.Context, e *store.ScalingEvent) error {
	return t.s.createEventLocked(e)
}
func (t *txView) ListEvents(ctx context.Context, owner string, limit int) ([]*store.ScalingEvent, error) {
	return t.s.listEventsLocked(owner, limit)
}
func (t *txView) CreateLoadTest(ctx context.Context, lt *store.LoadTest) error {
	return t.s.createLoadTestLocked(lt)
}
func (t *txView) GetLoadTest(ctx context.Context, id uuid.UUID) (*store.LoadTest, error) {
	return t.s.getLoadTestLocked(id)
}
func (t *txView) UpdateLoadTest(ctx context.Context, lt *store.LoadTest) error {
	return t.s.updateLoadTestLocked(lt)
}
func (t *txView) ListLoadTests(ctx context.Context, owner string, containerID *uuid.UUID, page, pageSize int) ([]*store.LoadTest, int, error) {
	return t.s.listLoadTestsLocked(owner, containerID, page, pageSize)
}
func (t *txView) CreateLoadTestMetric(ctx context.Context, m *store.LoadTestMetric) error {
	return t.s.createLoadTestMetricLocked(m)
}
func (t *txView) ListLoadTestMetrics(ctx context.Context, testID uuid.UUID) ([]*store.LoadTestMetric, error) {
	return t.s.listLoadTestMetricsLocked(testID)
}
func (t *txView) RecordUsage(ctx context.Context, u *store.ResourceUsage) error {
	return t.s.recordUsageLocked(u)
}
func (t *txView) ListUsage(ctx context.Context, containerID uuid.UUID, start, end time.Time) ([]*store.ResourceUsage, error) {
	return t.s.listUsageLocked(containerID, start, end)
}
func (t *txView) ListRunningContainersWithHandle(ctx context.Context) ([]*store.Container, error) {
	return t.s.listRunningWithHandleLocked()
}
func (t *txView) GetPricingModel(ctx context.Context, provider enum.Provider) (*store.PricingModel, error) {
	return t.s.getPricingModelLocked(provider)
}
func (t *txView) ListPricingModels(ctx context.Context) ([]*store.PricingModel, error) {
	return t.s.listPricingModelsLocked()
}
func (t *txView) UpsertPricingModel(ctx context.Context, p *store.PricingModel) error {
	return t.s.upsertPricingModelLocked(p)
}
func (t *txView) WithTx(ctx context.Context, fn func(store.Store) error) error {
	return fn(t)
}
func (t *txView) Close() error { return nil }

// --- top-level Store methods acquire the lock, then delegate to the
// Locked variants shared with txView. ---

func (s *Store) GetUser(ctx context.Context, id string) (*store.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getUserLocked(id)
}
func (s *Store) getUserLocked(id string) (*store.User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, apperr.NotFound("Store.GetUser", "user not found")
	}
	return u, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*store.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getUserByEmailLocked(email)
}
func (s *Store) getUserByEmailLocked(email string) (*store.User, error) {
	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, apperr.NotFound("Store.GetUserByEmail", "user not found")
}

func (s *Store) CreateUser(ctx context.Context, u *store.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createUserLocked(u)
}
func (s *Store) createUserLocked(u *store.User) error {
	if _, err := s.getUserByEmailLocked(u.Email); err == nil {
		return apperr.Conflict("Store.CreateUser", "email already registered")
	}
	s.users[u.ID.String()] = u
	return nil
}

func (s *Store) CreateContainer(ctx context.Context, c *store.Container) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createContainerLocked(c)
}
func (s *Store) createContainerLocked(c *store.Container) error {
	for _, existing := range s.containers {
		if existing.Owner == c.Owner && existing.Name == c.Name {
			return apperr.Conflict("Store.CreateContainer", "container name already in use")
		}
		if c.Port != nil && existing.Port != nil && *existing.Port == *c.Port {
			return apperr.Conflict("Store.CreateContainer", "port already in use")
		}
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	cp := *c
	s.containers[c.ID] = &cp
	return nil
}

func (s *Store) GetContainer(ctx context.Context, id uuid.UUID) (*store.Container, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getContainerLocked(id)
}
func (s *Store) getContainerLocked(id uuid.UUID) (*store.Container, error) {
	c, ok := s.containers[id]
	if !ok {
		return nil, apperr.NotFound("Store.GetContainer", "container not found")
	}
	cp := *c
	return &cp, nil
}

func (s *Store) ListContainers(ctx context.Context, owner string, allOwners bool) ([]*store.Container, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listContainersLocked(owner, allOwners)
}
func (s *Store) listContainersLocked(owner string, allOwners bool) ([]*store.Container, error) {
	var out []*store.Container
	for _, c := range s.containers {
		if allOwners || c.Owner == owner {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) ListReplicas(ctx context.Context, parentID uuid.UUID) ([]*store.Container, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listReplicasLocked(parentID)
}
func (s *Store) listReplicasLocked(parentID uuid.UUID) ([]*store.Container, error) {
	var out []*store.Container
	for _, c := range s.containers {
		if c.ParentID != nil && *c.ParentID == parentID {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) UpdateContainer(ctx context.Context, c *store.Container) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateContainerLocked(c)
}
func (s *Store) updateContainerLocked(c *store.Container) error {
	if _, ok := s.containers[c.ID]; !ok {
		return apperr.NotFound("Store.UpdateContainer", "container not found")
	}
	cp := *c
	s.containers[c.ID] = &cp
	return nil
}

func (s *Store) DeleteContainer(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteContainerLocked(id)
}
func (s *Store) deleteContainerLocked(id uuid.UUID) error {
	if _, ok := s.containers[id]; !ok {
		return apperr.NotFound("Store.DeleteContainer", "container not found")
	}
	delete(s.containers, id)
	// CASCADE: drop replicas of a deleted parent (SPEC_FULL.md §6).
	for rid, c := range s.containers {
		if c.ParentID != nil && *c.ParentID == id {
			delete(s.containers, rid)
		}
	}
	return nil
}

func (s *Store) NextFreePort(ctx context.Context, floor int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextFreePortLocked(floor)
}
func (s *Store) nextFreePortLocked(floor int) (int, error) {
	used := map[int]bool{}
	for _, c := range s.containers {
		if c.Port != nil {
			used[*c.Port] = true
		}
	}
	p := floor
	for used[p] {
		p++
	}
	return p, nil
}

func (s *Store) CreatePolicy(ctx context.Context, p *store.ScalingPolicy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createPolicyLocked(p)
}
func (s *Store) createPolicyLocked(p *store.ScalingPolicy) error {
	for _, existing := range s.policies {
		if existing.ContainerID == p.ContainerID {
			return apperr.InvalidInput("Store.CreatePolicy", "container already has a scaling policy")
		}
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	cp := *p
	s.policies[p.ID] = &cp
	return nil
}

func (s *Store) GetPolicy(ctx context.Context, id uuid.UUID) (*store.ScalingPolicy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getPolicyLocked(id)
}
func (s *Store) getPolicyLocked(id uuid.UUID) (*store.ScalingPolicy, error) {
	p, ok := s.policies[id]
	if !ok {
		return nil, apperr.NotFound("Store.GetPolicy", "policy not found")
	}
	cp := *p
	return &cp, nil
}

func (s *Store) GetPolicyByContainer(ctx context.Context, containerID uuid.UUID) (*store.ScalingPolicy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getPolicyByContainerLocked(containerID)
}
func (s *Store) getPolicyByContainerLocked(containerID uuid.UUID) (*store.ScalingPolicy, error) {
	for _, p := range s.policies {
		if p.ContainerID == containerID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, apperr.NotFound("Store.GetPolicyByContainer", "policy not found")
}

func (s *Store) ListEnabledPolicies(ctx context.Context) ([]*store.ScalingPolicy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listEnabledPoliciesLocked()
}
func (s *Store) listEnabledPoliciesLocked() ([]*store.ScalingPolicy, error) {
	var out []*store.ScalingPolicy
	for _, p := range s.policies {
		if p.Enabled {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

func (s *Store) ListPoliciesByOwner(ctx context.Context, owner string) ([]*store.ScalingPolicy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listPoliciesByOwnerLocked(owner)
}
func (s *Store) listPoliciesByOwnerLocked(owner string) ([]*store.ScalingPolicy, error) {
	var out []*store.ScalingPolicy
	for _, p := range s.policies {
		c, ok := s.containers[p.ContainerID]
		if ok && c.Owner == owner {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *Store) UpdatePolicy(ctx context.Context, p *store.ScalingPolicy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updatePolicyLocked(p)
}
func (s *Store) updatePolicyLocked(p *store.ScalingPolicy) error {
	if _, ok := s.policies[p.ID]; !ok {
		return apperr.NotFound("Store.UpdatePolicy", "policy not found")
	}
	cp := *p
	s.policies[p.ID] = &cp
	return nil
}

func (s *Store) DeletePolicy(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deletePolicyLocked(id)
}
func (s *Store) deletePolicyLocked(id uuid.UUID) error {
	if _, ok := s.policies[id]; !ok {
		return apperr.NotFound("Store.DeletePolicy", "policy not found")
	}
	delete(s.policies, id)
	return nil
}

func (s *Store) CreateEvent(ctx context.Context, e *store.ScalingEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createEventLocked(e)
}
func (s *Store) createEventLocked(e *store.ScalingEvent) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	cp := *e
	s.events = append(s.events, &cp)
	return nil
}

func (s *Store) ListEvents(ctx context.Context, owner string, limit int) ([]*store.ScalingEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listEventsLocked(owner, limit)
}
func (s *Store) listEventsLocked(owner string, limit int) ([]*store.ScalingEvent, error) {
	var out []*store.ScalingEvent
	for i := len(s.events) - 1; i >= 0; i-- {
		e := s.events[i]
		c, ok := s.containers[e.ContainerID]
		if !ok || c.Owner != owner {
			continue
		}
		cp := *e
		out = append(out, &cp)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *Store) CreateLoadTest(ctx context.Context, lt *store.LoadTest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createLoadTestLocked(lt)
}
func (s *Store) createLoadTestLocked(lt *store.LoadTest) error {
	if lt.ID == uuid.Nil {
		lt.ID = uuid.New()
	}
	cp := *lt
	s.loadTests[lt.ID] = &cp
	return nil
}

func (s *Store) GetLoadTest(ctx context.Context, id uuid.UUID) (*store.LoadTest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLoadTestLocked(id)
}
func (s *Store) getLoadTestLocked(id uuid.UUID) (*store.LoadTest, error) {
	t, ok := s.loadTests[id]
	if !ok {
		return nil, apperr.NotFound("Store.GetLoadTest", "load test not found")
	}
	cp := *t
	return &cp, nil
}

func (s *Store) UpdateLoadTest(ctx context.Context, lt *store.LoadTest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateLoadTestLocked(lt)
}
func (s *Store) updateLoadTestLocked(lt *store.LoadTest) error {
	if _, ok := s.loadTests[lt.ID]; !ok {
		return apperr.NotFound("Store.UpdateLoadTest", "load test not found")
	}
	cp := *lt
	s.loadTests[lt.ID] = &cp
	return nil
}

func (s *Store) ListLoadTests(ctx context.Context, owner string, containerID *uuid.UUID, page, pageSize int) ([]*store.LoadTest, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listLoadTestsLocked(owner, containerID, page, pageSize)
}
func (s *Store) listLoadTestsLocked(owner string, containerID *uuid.UUID, page, pageSize int) ([]*store.LoadTest, int, error) {
	var matched []*store.LoadTest
	for _, t := range s.loadTests {
		if t.Owner != owner {
			continue
		}
		if containerID != nil && t.ContainerID != *containerID {
			continue
		}
		cp := *t
		matched = append(matched, &cp)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })
	total := len(matched)
	if pageSize <= 0 {
		pageSize = 20
	}
	start := page * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (s *Store) CreateLoadTestMetric(ctx context.Context, m *store.LoadTestMetric) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createLoadTestMetricLocked(m)
}
func (s *Store) createLoadTestMetricLocked(m *store.LoadTestMetric) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	cp := *m
	s.ltMetrics[m.TestID] = append(s.ltMetrics[m.TestID], &cp)
	return nil
}

func (s *Store) ListLoadTestMetrics(ctx context.Context, testID uuid.UUID) ([]*store.LoadTestMetric, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listLoadTestMetricsLocked(testID)
}
func (s *Store) listLoadTestMetricsLocked(testID uuid.UUID) ([]*store.LoadTestMetric, error) {
	out := make([]*store.LoadTestMetric, len(s.ltMetrics[testID]))
	copy(out, s.ltMetrics[testID])
	return out, nil
}

func (s *Store) RecordUsage(ctx context.Context, u *store.ResourceUsage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recordUsageLocked(u)
}
func (s *Store) recordUsageLocked(u *store.ResourceUsage) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	cp := *u
	s.usage[u.ContainerID] = append(s.usage[u.ContainerID], &cp)
	return nil
}

func (s *Store) ListUsage(ctx context.Context, containerID uuid.UUID, start, end time.Time) ([]*store.ResourceUsage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listUsageLocked(containerID, start, end)
}
func (s *Store) listUsageLocked(containerID uuid.UUID, start, end time.Time) ([]*store.ResourceUsage, error) {
	var out []*store.ResourceUsage
	for _, u := range s.usage[containerID] {
		if (u.Timestamp.Equal(start) || u.Timestamp.After(start)) && u.Timestamp.Before(end) {
			cp := *u
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (s *Store) ListRunningContainersWithHandle(ctx context.Context) ([]*store.Container, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listRunningWithHandleLocked()
}
func (s *Store) listRunningWithHandleLocked() ([]*store.Container, error) {
	var out []*store.Container
	for _, c := range s.containers {
		if c.Status == enum.ContainerRunning && c.EngineHandle != nil {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *Store) GetPricingModel(ctx context.Context, provider enum.Provider) (*store.PricingModel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getPricingModelLocked(provider)
}
func (s *Store) getPricingModelLocked(provider enum.Provider) (*store.PricingModel, error) {
	p, ok := s.pricing[provider]
	if !ok {
		return nil, apperr.NotFound("Store.GetPricingModel", "pricing model not found")
	}
	cp := *p
	return &cp, nil
}

func (s *Store) ListPricingModels(ctx context.Context) ([]*store.PricingModel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listPricingModelsLocked()
}
func (s *Store) listPricingModelsLocked() ([]*store.PricingModel, error) {
	var out []*store.PricingModel
	for _, p := range s.pricing {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out, nil
}

func (s *Store) UpsertPricingModel(ctx context.Context, p *store.PricingModel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upsertPricingModelLocked(p)
}
func (s *Store) upsertPricingModelLocked(p *store.PricingModel) error {
	cp := *p
	s.pricing[p.Provider] = &cp
	return nil
}

// snapshot is a deep-enough copy of every map for WithTx rollback.
type snapshot struct {
	users      map[string]*store.User
	containers map[uuid.UUID]*store.Container
	policies   map[uuid.UUID]*store.ScalingPolicy
	events     []*store.ScalingEvent
	loadTests  map[uuid.UUID]*store.LoadTest
	ltMetrics  map[uuid.UUID][]*store.LoadTestMetric
	usage      map[uuid.UUID][]*store.ResourceUsage
	pricing    map[enum.Provider]*store.PricingModel
}

func (s *Store) clone() snapshot {
	snap := snapshot{
		users:      make(map[string]*store.User, len(s.users)),
		containers: make(map[uuid.UUID]*store.Container, len(s.containers)),
		policies:   make(map[uuid.UUID]*store.ScalingPolicy, len(s.policies)),
		events:     append([]*store.ScalingEvent{}, s.events...),
		loadTests:  make(map[uuid.UUID]*store.LoadTest, len(s.loadTests)),
		ltMetrics:  make(map[uuid.UUID][]*store.LoadTestMetric, len(s.ltMetrics)),
		usage:      make(map[uuid.UUID][]*store.ResourceUsage, len(s.usage)),
		pricing:    make(map[enum.Provider]*store.PricingModel, len(s.pricing)),
	}
	for k, v := range s.users {
		cp := *v
		snap.users[k] = &cp
	}
	for k, v := range s.containers {
		cp := *v
		snap.containers[k] = &cp
	}
	for k, v := range s.policies {
		cp := *v
		snap.policies[k] = &cp
	}
	for k, v := range s.loadTests {
		cp := *v
		snap.loadTests[k] = &cp
	}
	for k, v := range s.ltMetrics {
		snap.ltMetrics[k] = append([]*store.LoadTestMetric{}, v...)
	}
	for k, v := range s.usage {
		snap.usage[k] = append([]*store.ResourceUsage{}, v...)
	}
	for k, v := range s.pricing {
		cp := *v
		snap.pricing[k] = &cp
	}
	return snap
}

func (s *Store) restore(snap snapshot) {
	s.users = snap.users
	s.containers = snap.containers
	s.policies = snap.policies
	s.events = snap.events
	s.loadTests = snap.loadTests
	s.ltMetrics = snap.ltMetrics
	s.usage = snap.usage
	s.pricing = snap.pricing
}

var _ store.Store = (*Store)(nil)
var _ store.Store = (*txView)(nil)
