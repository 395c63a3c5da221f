package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"
	_ "time/tzdata"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/bod9dzys/BasicWFMbb/internal/model"
	"github.com/bod9dzys/BasicWFMbb/internal/normalize"
	"github.com/bod9dzys/BasicWFMbb/internal/repository"
	pkgerrors "github.com/bod9dzys/BasicWFMbb/pkg/errors"
)

// ── in-memory store ──
//
// All mock repositories share one memStore. Transactions are serialised by
// txMu and roll back by restoring a snapshot taken at Begin, which is close
// enough to row locks plus rollback for service tests.

type memStore struct {
	mu   sync.Mutex
	txMu sync.Mutex

	identities   map[int64]*model.Identity
	nextIdentity int64
	roles        map[string]*model.Role
	grants       map[int64]map[int64]struct{} // identity → role ids
	shifts       map[int64]*model.Shift
	nextShift    int64
	exchanges    []model.ExchangeRecord
	changeLogs   []model.ShiftChangeLog

	bulkCalls  int
	failBulkAt int   // 1-based BulkCreate call that fails, 0 = never
	failErr    error // returned by the failing call
	beginCalls int
}

func newMemStore() *memStore {
	s := &memStore{
		identities: make(map[int64]*model.Identity),
		roles:      make(map[string]*model.Role),
		grants:     make(map[int64]map[int64]struct{}),
		shifts:     make(map[int64]*model.Shift),
	}
	s.roles[model.RoleAgent] = &model.Role{ID: 1, Name: model.RoleAgent,
		Capabilities: model.StringArray{model.CapShiftView, model.CapExchangeRequest}}
	s.roles[model.RoleSupervisor] = &model.Role{ID: 2, Name: model.RoleSupervisor,
		Capabilities: model.StringArray{model.CapShiftView, model.CapExchangeRequest, model.CapExportRun, model.CapExchangeHistory}}
	s.roles[model.RoleMonitoring] = &model.Role{ID: 3, Name: model.RoleMonitoring,
		Capabilities: model.StringArray{model.CapShiftView, model.CapExchangeRequest, model.CapExportRun, model.CapExchangeHistory, model.CapExchangeAny}}
	s.roles[model.RolePlanning] = &model.Role{ID: 4, Name: model.RolePlanning,
		Capabilities: model.StringArray{model.CapShiftView, model.CapExchangeRequest, model.CapExportRun, model.CapExchangeHistory, model.CapExchangeAny, model.CapImportRun}}
	return s
}

// repo builds an aggregate over the store with a snapshotting TxBeginner.
func (s *memStore) repo() *repository.Repository {
	r := &repository.Repository{
		Identity:  &mockIdentityRepo{s: s},
		Role:      &mockRoleRepo{s: s},
		Shift:     &mockShiftRepo{s: s},
		Exchange:  &mockExchangeRepo{s: s},
		ChangeLog: &mockChangeLogRepo{s: s},
	}
	r.TxBeginner = func(ctx context.Context) (repository.Tx, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s.txMu.Lock()
		s.mu.Lock()
		s.beginCalls++
		snap := s.snapshot()
		s.mu.Unlock()
		return &memTx{s: s, snap: snap, repo: r}, nil
	}
	return r
}

type memSnapshot struct {
	identities   map[int64]model.Identity
	nextIdentity int64
	grants       map[int64]map[int64]struct{}
	shifts       map[int64]model.Shift
	nextShift    int64
	exchanges    int
	changeLogs   int
}

// snapshot copies mutable state; callers hold mu.
func (s *memStore) snapshot() memSnapshot {
	snap := memSnapshot{
		identities:   make(map[int64]model.Identity, len(s.identities)),
		nextIdentity: s.nextIdentity,
		grants:       make(map[int64]map[int64]struct{}, len(s.grants)),
		shifts:       make(map[int64]model.Shift, len(s.shifts)),
		nextShift:    s.nextShift,
		exchanges:    len(s.exchanges),
		changeLogs:   len(s.changeLogs),
	}
	for id, i := range s.identities {
		snap.identities[id] = *i
	}
	for id, roles := range s.grants {
		cp := make(map[int64]struct{}, len(roles))
		for r := range roles {
			cp[r] = struct{}{}
		}
		snap.grants[id] = cp
	}
	for id, sh := range s.shifts {
		snap.shifts[id] = *sh
	}
	return snap
}

func (s *memStore) restore(snap memSnapshot) {
	s.identities = make(map[int64]*model.Identity, len(snap.identities))
	for id, i := range snap.identities {
		i := i
		s.identities[id] = &i
	}
	s.nextIdentity = snap.nextIdentity
	s.grants = snap.grants
	s.shifts = make(map[int64]*model.Shift, len(snap.shifts))
	for id, sh := range snap.shifts {
		sh := sh
		s.shifts[id] = &sh
	}
	s.nextShift = snap.nextShift
	s.exchanges = s.exchanges[:snap.exchanges]
	s.changeLogs = s.changeLogs[:snap.changeLogs]
}

type memTx struct {
	s    *memStore
	snap memSnapshot
	repo *repository.Repository
	once sync.Once
}

func (t *memTx) Repo() *repository.Repository { return t.repo }

func (t *memTx) Commit() error {
	t.once.Do(t.s.txMu.Unlock)
	return nil
}

func (t *memTx) Rollback() error {
	t.once.Do(func() {
		t.s.mu.Lock()
		t.s.restore(t.snap)
		t.s.mu.Unlock()
		t.s.txMu.Unlock()
	})
	return nil
}

// ── seeding helpers ──

func (s *memStore) addIdentity(first, last string, skills ...string) *model.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextIdentity++
	display := strings.TrimSpace(first + " " + last)
	i := &model.Identity{
		ID:        s.nextIdentity,
		Username:  normalize.UsernameBase(display, "user"),
		FirstName: first,
		LastName:  last,
		NameKey:   normalize.Key(display),
		IsActive:  true,
		Skills:    model.StringArray(skills),
	}
	s.identities[i.ID] = i
	cp := *i
	return &cp
}

func (s *memStore) grantRole(identityID int64, role string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grantLocked(identityID, s.roles[role].ID)
}

func (s *memStore) grantLocked(identityID, roleID int64) {
	if s.grants[identityID] == nil {
		s.grants[identityID] = make(map[int64]struct{})
	}
	s.grants[identityID][roleID] = struct{}{}
}

func (s *memStore) addShift(identityID int64, start time.Time, dir model.Direction, status model.Status) *model.Shift {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextShift++
	sh := &model.Shift{
		ID:         s.nextShift,
		IdentityID: identityID,
		Start:      start,
		End:        start.Add(8 * time.Hour),
		Direction:  dir,
		Status:     status,
		Version:    1,
	}
	s.shifts[sh.ID] = sh
	cp := *sh
	return &cp
}

func (s *memStore) shift(id int64) model.Shift {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.shifts[id]
}

func (s *memStore) identityByKey(key string) (model.Identity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, i := range s.identities {
		if i.NameKey == key {
			return *i, true
		}
	}
	return model.Identity{}, false
}

func (s *memStore) counts() (identities, shifts, exchanges, logs int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.identities), len(s.shifts), len(s.exchanges), len(s.changeLogs)
}

func (s *memStore) hasRole(identityID int64, role string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.grants[identityID][s.roles[role].ID]
	return ok
}

func (s *memStore) allShifts() []model.Shift {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Shift, 0, len(s.shifts))
	for _, sh := range s.shifts {
		out = append(out, *sh)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// errValueTooLong stands in for SQLSTATE 22001 on the varchar columns.
var errValueTooLong = errors.New("value too long for type character varying")

// ── Mock IdentityRepository ──

type mockIdentityRepo struct{ s *memStore }

func (m *mockIdentityRepo) StreamAll(_ context.Context, batchSize int, fn func(batch []model.Identity) error) error {
	m.s.mu.Lock()
	all := make([]model.Identity, 0, len(m.s.identities))
	for _, i := range m.s.identities {
		all = append(all, *i)
	}
	m.s.mu.Unlock()
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })

	for start := 0; start < len(all); start += batchSize {
		end := start + batchSize
		if end > len(all) {
			end = len(all)
		}
		if err := fn(all[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (m *mockIdentityRepo) GetByID(_ context.Context, id int64) (*model.Identity, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if i, ok := m.s.identities[id]; ok {
		cp := *i
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockIdentityRepo) GetByNameKey(_ context.Context, key string) (*model.Identity, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, i := range m.s.identities {
		if i.NameKey == key {
			cp := *i
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockIdentityRepo) ListUsernamesWithPrefix(_ context.Context, prefix string) ([]string, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var out []string
	for _, i := range m.s.identities {
		if i.Username == prefix || strings.HasPrefix(i.Username, prefix+"_") {
			out = append(out, i.Username)
		}
	}
	return out, nil
}

func (m *mockIdentityRepo) CreateIfAbsent(ctx context.Context, identity *model.Identity) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if utf8.RuneCountInString(identity.FirstName) > 150 || utf8.RuneCountInString(identity.LastName) > 150 {
		return false, errValueTooLong
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, i := range m.s.identities {
		if i.NameKey == identity.NameKey || i.Username == identity.Username {
			return false, nil
		}
	}
	m.s.nextIdentity++
	identity.ID = m.s.nextIdentity
	cp := *identity
	m.s.identities[cp.ID] = &cp
	return true, nil
}

func (m *mockIdentityRepo) SetSupervisor(_ context.Context, supervisorID int64, ids []int64) (int64, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var n int64
	for _, id := range ids {
		i, ok := m.s.identities[id]
		if !ok || (i.SupervisorID != nil && *i.SupervisorID == supervisorID) {
			continue
		}
		sup := supervisorID
		i.SupervisorID = &sup
		n++
	}
	return n, nil
}

// ── Mock RoleRepository ──

type mockRoleRepo struct{ s *memStore }

func (m *mockRoleRepo) GetByName(_ context.Context, name string) (*model.Role, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if r, ok := m.s.roles[name]; ok {
		cp := *r
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockRoleRepo) Grant(_ context.Context, identityID, roleID int64) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	m.s.grantLocked(identityID, roleID)
	return nil
}

func (m *mockRoleRepo) Capabilities(_ context.Context, identityID int64) ([]string, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	seen := make(map[string]struct{})
	for _, r := range m.s.roles {
		if _, ok := m.s.grants[identityID][r.ID]; !ok {
			continue
		}
		for _, c := range r.Capabilities {
			seen[c] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out, nil
}

func (m *mockRoleRepo) HasCapability(ctx context.Context, identityID int64, capability string) (bool, error) {
	caps, _ := m.Capabilities(ctx, identityID)
	for _, c := range caps {
		if c == capability {
			return true, nil
		}
	}
	return false, nil
}

// ── Mock ShiftRepository ──

type mockShiftRepo struct{ s *memStore }

func (m *mockShiftRepo) BulkCreate(ctx context.Context, shifts []model.Shift, _ int) error {
	if len(shifts) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	m.s.bulkCalls++
	if m.s.failBulkAt > 0 && m.s.bulkCalls == m.s.failBulkAt {
		return m.s.failErr
	}
	for i := range shifts {
		if !shifts[i].End.After(shifts[i].Start) {
			return gorm.ErrCheckConstraintViolated
		}
		if ext := shifts[i].ExternalID; ext != nil && utf8.RuneCountInString(*ext) > 64 {
			return errValueTooLong
		}
		m.s.nextShift++
		shifts[i].ID = m.s.nextShift
		cp := shifts[i]
		m.s.shifts[cp.ID] = &cp
	}
	return nil
}

func (m *mockShiftRepo) GetByID(_ context.Context, id int64) (*model.Shift, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	sh, ok := m.s.shifts[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *sh
	if owner, ok := m.s.identities[sh.IdentityID]; ok {
		o := *owner
		cp.Identity = &o
	}
	return &cp, nil
}

func (m *mockShiftRepo) GetForUpdate(_ context.Context, id int64) (*model.Shift, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	sh, ok := m.s.shifts[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *sh
	return &cp, nil
}

func (m *mockShiftRepo) UpdateOwner(_ context.Context, shift *model.Shift) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	sh, ok := m.s.shifts[shift.ID]
	if !ok || sh.Version != shift.Version {
		return pkgerrors.ErrOptimisticLock
	}
	sh.IdentityID = shift.IdentityID
	sh.Version++
	shift.Version = sh.Version
	return nil
}

func (m *mockShiftRepo) ExistingExternalIDs(_ context.Context, ids []string) (map[string]struct{}, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	out := make(map[string]struct{})
	for _, sh := range m.s.shifts {
		if sh.ExternalID == nil {
			continue
		}
		if _, ok := want[*sh.ExternalID]; ok {
			out[*sh.ExternalID] = struct{}{}
		}
	}
	return out, nil
}

func (m *mockShiftRepo) List(_ context.Context, filter repository.ShiftFilter) ([]model.Shift, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var out []model.Shift
	for _, sh := range m.s.shifts {
		if !filter.From.IsZero() && !sh.End.After(filter.From) {
			continue
		}
		if !filter.To.IsZero() && !sh.Start.Before(filter.To) {
			continue
		}
		if filter.IdentityID > 0 && sh.IdentityID != filter.IdentityID {
			continue
		}
		cp := *sh
		if owner, ok := m.s.identities[sh.IdentityID]; ok {
			o := *owner
			cp.Identity = &o
		}
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *mockShiftRepo) SetLockTimeout(context.Context, time.Duration) error { return nil }

// ── Mock ExchangeRepository ──

type mockExchangeRepo struct{ s *memStore }

func (m *mockExchangeRepo) Create(_ context.Context, record *model.ExchangeRecord) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	record.ID = int64(len(m.s.exchanges) + 1)
	record.CreatedAt = time.Now()
	m.s.exchanges = append(m.s.exchanges, *record)
	return nil
}

func (m *mockExchangeRepo) List(_ context.Context, shiftID int64, offset, limit int) ([]model.ExchangeRecord, int64, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var matched []model.ExchangeRecord
	for i := len(m.s.exchanges) - 1; i >= 0; i-- {
		e := m.s.exchanges[i]
		if shiftID > 0 && e.FromShiftID != shiftID && e.ToShiftID != shiftID {
			continue
		}
		matched = append(matched, e)
	}
	total := int64(len(matched))
	if offset >= len(matched) {
		return nil, total, nil
	}
	matched = matched[offset:]
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, total, nil
}

// ── Mock ChangeLogRepository ──

type mockChangeLogRepo struct{ s *memStore }

func (m *mockChangeLogRepo) BatchCreate(_ context.Context, logs []model.ShiftChangeLog) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for i := range logs {
		logs[i].ID = int64(len(m.s.changeLogs) + 1)
		m.s.changeLogs = append(m.s.changeLogs, logs[i])
	}
	return nil
}

func (m *mockChangeLogRepo) ListByShift(_ context.Context, shiftID int64, offset, limit int) ([]model.ShiftChangeLog, int64, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var matched []model.ShiftChangeLog
	for _, l := range m.s.changeLogs {
		if l.ShiftID == shiftID {
			matched = append(matched, l)
		}
	}
	total := int64(len(matched))
	if offset >= len(matched) {
		return nil, total, nil
	}
	matched = matched[offset:]
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, total, nil
}
