package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"waterworks/internal/apperr"
	"waterworks/internal/model"
	"waterworks/internal/repository"

	"github.com/google/uuid"
)

var errStoreDown = errors.New("store unavailable")

type permKey struct {
	role uuid.UUID
	page string
}

type snapshot struct {
	roles  map[uuid.UUID]model.Role
	perms  map[permKey]model.Permission
	users  map[uuid.UUID]model.User
	valves map[uuid.UUID]model.Valve
	logs   []model.ValveLog
}

// memStore backs every fake repository. Transactions serialize on txMu, which stands in
// for the role row lock; data access is guarded by mu.
type memStore struct {
	txMu sync.Mutex
	mu   sync.Mutex
	data snapshot

	failCreatePage string
	failAppend     error
	failPermLookup error
	permLookups    int
	valveUpdates   int
	valveReadsInTx int
}

func newMemStore() *memStore {
	return &memStore{data: snapshot{
		roles:  map[uuid.UUID]model.Role{},
		perms:  map[permKey]model.Permission{},
		users:  map[uuid.UUID]model.User{},
		valves: map[uuid.UUID]model.Valve{},
	}}
}

func (s *memStore) snapshot() snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := snapshot{
		roles:  make(map[uuid.UUID]model.Role, len(s.data.roles)),
		perms:  make(map[permKey]model.Permission, len(s.data.perms)),
		users:  make(map[uuid.UUID]model.User, len(s.data.users)),
		valves: make(map[uuid.UUID]model.Valve, len(s.data.valves)),
		logs:   append([]model.ValveLog(nil), s.data.logs...),
	}
	for k, v := range s.data.roles {
		cp.roles[k] = v
	}
	for k, v := range s.data.perms {
		cp.perms[k] = v
	}
	for k, v := range s.data.users {
		cp.users[k] = v
	}
	for k, v := range s.data.valves {
		cp.valves[k] = v
	}
	return cp
}

func (s *memStore) restore(snap snapshot) {
	s.mu.Lock()
	s.data = snap
	s.mu.Unlock()
}

func (s *memStore) rolePerms(roleID uuid.UUID) []model.Permission {
	var perms []model.Permission
	for k, p := range s.data.perms {
		if k.role == roleID {
			perms = append(perms, p)
		}
	}
	sort.Slice(perms, func(i, j int) bool { return perms[i].Page < perms[j].Page })
	return perms
}

func (s *memStore) loginPages(roleID uuid.UUID) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var pages []string
	for _, p := range s.rolePerms(roleID) {
		if p.IsLoginPage {
			pages = append(pages, p.Page)
		}
	}
	return pages
}

func (s *memStore) permCount(roleID uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rolePerms(roleID))
}

func (s *memStore) valveLogs(valveID uuid.UUID) []model.ValveLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	var logs []model.ValveLog
	for _, l := range s.data.logs {
		if l.ValveID == valveID {
			logs = append(logs, l)
		}
	}
	return logs
}

// --- Transactions ---

type txCtxKey struct{}

type fakeTxManager struct{ store *memStore }

// RunInTx rolls back on error; nested calls behave like savepoints.
func (t fakeTxManager) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	if ctx.Value(txCtxKey{}) == nil {
		t.store.txMu.Lock()
		defer t.store.txMu.Unlock()
		ctx = context.WithValue(ctx, txCtxKey{}, true)
	}
	snap := t.store.snapshot()
	if err := fn(ctx); err != nil {
		t.store.restore(snap)
		return err
	}
	return nil
}

// --- Roles ---

type fakeRoleRepo struct{ store *memStore }

func (r fakeRoleRepo) Create(_ context.Context, role *model.Role) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.data.roles {
		if existing.Name == role.Name {
			return repository.ErrDuplicate
		}
	}
	if role.ID == uuid.Nil {
		role.ID = uuid.New()
	}
	role.CreatedAt = time.Now()
	stored := *role
	stored.Permissions = nil
	s.data.roles[role.ID] = stored
	return nil
}

func (r fakeRoleRepo) Update(_ context.Context, role *model.Role) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, existing := range s.data.roles {
		if id != role.ID && existing.Name == role.Name {
			return repository.ErrDuplicate
		}
	}
	stored := *role
	stored.Permissions = nil
	s.data.roles[role.ID] = stored
	return nil
}

func (r fakeRoleRepo) Delete(_ context.Context, id uuid.UUID) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data.roles[id]; !ok {
		return apperr.ErrNotFound
	}
	delete(s.data.roles, id)
	return nil
}

func (r fakeRoleRepo) FindByID(_ context.Context, id uuid.UUID) (*model.Role, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	role, ok := s.data.roles[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return &role, nil
}

func (r fakeRoleRepo) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Role, error) {
	return r.FindByID(ctx, id)
}

func (r fakeRoleRepo) FindByIDWithPermissions(ctx context.Context, id uuid.UUID) (*model.Role, error) {
	role, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	r.store.mu.Lock()
	role.Permissions = r.store.rolePerms(id)
	r.store.mu.Unlock()
	return role, nil
}

func (r fakeRoleRepo) FindByName(_ context.Context, name string) (*model.Role, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, role := range s.data.roles {
		if role.Name == name {
			return &role, nil
		}
	}
	return nil, apperr.ErrNotFound
}

func (r fakeRoleRepo) ListAll(_ context.Context) ([]model.Role, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	roles := make([]model.Role, 0, len(s.data.roles))
	for id, role := range s.data.roles {
		role.Permissions = s.rolePerms(id)
		roles = append(roles, role)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i].Name < roles[j].Name })
	return roles, nil
}

func (r fakeRoleRepo) ClearReferences(_ context.Context, id uuid.UUID) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	for uid, u := range s.data.users {
		if u.RoleID != nil && *u.RoleID == id {
			u.RoleID = nil
			s.data.users[uid] = u
		}
	}
	for vid, v := range s.data.valves {
		if v.ResponsibleRoleID != nil && *v.ResponsibleRoleID == id {
			v.ResponsibleRoleID = nil
			s.data.valves[vid] = v
		}
	}
	return nil
}

// --- Permissions ---

type fakePermRepo struct{ store *memStore }

func (r fakePermRepo) Create(_ context.Context, perm *model.Permission) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCreatePage != "" && perm.Page == s.failCreatePage {
		return errStoreDown
	}
	key := permKey{perm.RoleID, perm.Page}
	if _, ok := s.data.perms[key]; ok {
		return repository.ErrDuplicate
	}
	perm.ID = uuid.New()
	s.data.perms[key] = *perm
	return nil
}

func (r fakePermRepo) Update(_ context.Context, perm *model.Permission) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.perms[permKey{perm.RoleID, perm.Page}] = *perm
	return nil
}

func (r fakePermRepo) FindByRoleAndPage(_ context.Context, roleID uuid.UUID, page string) (*model.Permission, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	s.permLookups++
	if s.failPermLookup != nil {
		return nil, s.failPermLookup
	}
	perm, ok := s.data.perms[permKey{roleID, page}]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return &perm, nil
}

func (r fakePermRepo) FindLoginPage(_ context.Context, roleID uuid.UUID) (*model.Permission, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.rolePerms(roleID) {
		if p.IsLoginPage {
			return &p, nil
		}
	}
	return nil, apperr.ErrNotFound
}

func (r fakePermRepo) ListByRole(_ context.Context, roleID uuid.UUID) ([]model.Permission, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rolePerms(roleID), nil
}

func (r fakePermRepo) ClearLoginPage(_ context.Context, roleID uuid.UUID, exceptPage string) (int64, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k, p := range s.data.perms {
		if k.role == roleID && p.IsLoginPage && k.page != exceptPage {
			p.IsLoginPage = false
			s.data.perms[k] = p
			n++
		}
	}
	return n, nil
}

func (r fakePermRepo) Delete(_ context.Context, roleID uuid.UUID, page string) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	key := permKey{roleID, page}
	if _, ok := s.data.perms[key]; !ok {
		return apperr.ErrNotFound
	}
	delete(s.data.perms, key)
	return nil
}

func (r fakePermRepo) DeleteByRole(_ context.Context, roleID uuid.UUID) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.data.perms {
		if k.role == roleID {
			delete(s.data.perms, k)
		}
	}
	return nil
}

// --- Users ---

type fakeUserRepo struct{ store *memStore }

func (r fakeUserRepo) Create(_ context.Context, user *model.User) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.data.users {
		if u.Email == user.Email || u.Username == user.Username {
			return repository.ErrDuplicate
		}
	}
	user.ID = uuid.New()
	s.data.users[user.ID] = *user
	return nil
}

func (r fakeUserRepo) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.data.users[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	if u.RoleID != nil {
		if role, ok := s.data.roles[*u.RoleID]; ok {
			u.Role = &role
		}
	}
	return &u, nil
}

func (r fakeUserRepo) find(match func(model.User) bool) (*model.User, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.data.users {
		if match(u) {
			return &u, nil
		}
	}
	return nil, apperr.ErrNotFound
}

func (r fakeUserRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	return r.find(func(u model.User) bool { return strings.EqualFold(u.Email, email) })
}

func (r fakeUserRepo) GetByUsername(_ context.Context, username string) (*model.User, error) {
	return r.find(func(u model.User) bool { return u.Username == username })
}

func (r fakeUserRepo) List(_ context.Context, page, limit int) ([]model.User, int64, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	users := make([]model.User, 0, len(s.data.users))
	for _, u := range s.data.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Email < users[j].Email })
	total := int64(len(users))
	start := (page - 1) * limit
	if start > len(users) {
		start = len(users)
	}
	end := start + limit
	if end > len(users) {
		end = len(users)
	}
	return users[start:end], total, nil
}

func (r fakeUserRepo) SetRole(_ context.Context, id uuid.UUID, roleID *uuid.UUID) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.data.users[id]
	if !ok {
		return apperr.ErrNotFound
	}
	u.RoleID = roleID
	s.data.users[id] = u
	return nil
}

func (r fakeUserRepo) Delete(_ context.Context, id uuid.UUID) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data.users, id)
	return nil
}

// --- Valves ---

type fakeValveRepo struct{ store *memStore }

func (r fakeValveRepo) Create(_ context.Context, valve *model.Valve) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	valve.ID = uuid.New()
	s.data.valves[valve.ID] = *valve
	return nil
}

func (r fakeValveRepo) Update(_ context.Context, valve *model.Valve) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	s.valveUpdates++
	s.data.valves[valve.ID] = *valve
	return nil
}

func (r fakeValveRepo) Delete(_ context.Context, id uuid.UUID) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data.valves[id]; !ok {
		return apperr.ErrNotFound
	}
	delete(s.data.valves, id)
	kept := s.data.logs[:0]
	for _, l := range s.data.logs {
		if l.ValveID != id {
			kept = append(kept, l)
		}
	}
	s.data.logs = kept
	return nil
}

func (r fakeValveRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Valve, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if ctx.Value(txCtxKey{}) != nil {
		s.valveReadsInTx++
	}
	v, ok := s.data.valves[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return &v, nil
}

func (r fakeValveRepo) List(_ context.Context, filter repository.ValveFilter, page, limit int) ([]model.Valve, int64, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	var valves []model.Valve
	for _, v := range s.data.valves {
		if filter.Name != "" && !strings.Contains(strings.ToLower(v.Name), strings.ToLower(filter.Name)) {
			continue
		}
		if filter.Area != "" && (v.ProvideArea == nil || !strings.Contains(strings.ToLower(*v.ProvideArea), strings.ToLower(filter.Area))) {
			continue
		}
		valves = append(valves, v)
	}
	sort.Slice(valves, func(i, j int) bool { return valves[i].Name < valves[j].Name })
	return valves, int64(len(valves)), nil
}

// --- Valve logs ---

type fakeLogRepo struct{ store *memStore }

func (r fakeLogRepo) Append(_ context.Context, entries []model.ValveLog) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAppend != nil {
		return s.failAppend
	}
	for _, e := range entries {
		e.ID = uuid.New()
		e.Timestamp = time.Now()
		s.data.logs = append(s.data.logs, e)
	}
	return nil
}

func (r fakeLogRepo) ListByValve(_ context.Context, valveID uuid.UUID) ([]model.ValveLog, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	var logs []model.ValveLog
	for _, l := range s.data.logs {
		if l.ValveID != valveID {
			continue
		}
		if l.UserID != nil {
			if u, ok := s.data.users[*l.UserID]; ok {
				l.User = &u
			}
		}
		logs = append(logs, l)
	}
	return logs, nil
}

func (r fakeLogRepo) DetachUser(_ context.Context, userID uuid.UUID) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, l := range s.data.logs {
		if l.UserID != nil && *l.UserID == userID {
			s.data.logs[i].UserID = nil
		}
	}
	return nil
}

// --- Publisher ---

type recordedEvent struct {
	name string
	data any
}

type fakePublisher struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (p *fakePublisher) Publish(event string, data any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, recordedEvent{name: event, data: data})
}

func (p *fakePublisher) names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	names := make([]string, 0, len(p.events))
	for _, e := range p.events {
		names = append(names, e.name)
	}
	return names
}
