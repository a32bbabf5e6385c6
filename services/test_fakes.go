package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/lborres/workdeck/core"
)

// FakeStorage is a test-only fake implementing core.AuthStorage.
// It keeps everything in maps and exposes per-method error injection.
type FakeStorage struct {
	mu       sync.RWMutex
	state    fakeState
	failures map[string]error
	calls    map[string]int
}

type fakeState struct {
	users    map[string]*core.User
	sessions map[string]*core.Session
	accounts map[string]*core.OAuthAccount
	totp     map[string]*core.TOTPCredential
	passkeys map[string]*core.Passkey
}

var _ core.AuthStorage = (*FakeStorage)(nil)

func NewFakeStorage() *FakeStorage {
	return &FakeStorage{
		state: fakeState{
			users:    make(map[string]*core.User),
			sessions: make(map[string]*core.Session),
			accounts: make(map[string]*core.OAuthAccount),
			totp:     make(map[string]*core.TOTPCredential),
			passkeys: make(map[string]*core.Passkey),
		},
		failures: make(map[string]error),
		calls:    make(map[string]int),
	}
}

// FailOn makes every later call to method return err.
func (f *FakeStorage) FailOn(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[method] = err
}

// Calls returns how many times method was invoked.
func (f *FakeStorage) Calls(method string) int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.calls[method]
}

func (f *FakeStorage) enter(method string) error {
	f.calls[method]++
	return f.failures[method]
}

// Seed helpers

func (f *FakeStorage) AddUser(u *core.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := *u
	f.state.users[u.ID] = &c
}

func (f *FakeStorage) AddSession(s *core.Session) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := *s
	f.state.sessions[s.ID] = &c
}

func (f *FakeStorage) AddPasskey(p *core.Passkey) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := *p
	f.state.passkeys[p.ID] = &c
}

func (f *FakeStorage) AddTOTP(c *core.TOTPCredential) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *c
	f.state.totp[c.UserID] = &cp
}

// Inspection helpers

func (f *FakeStorage) User(id string) *core.User {
	f.mu.RLock()
	defer f.mu.RUnlock()
	u, ok := f.state.users[id]
	if !ok {
		return nil
	}
	c := *u
	return &c
}

func (f *FakeStorage) Session(id string) *core.Session {
	f.mu.RLock()
	defer f.mu.RUnlock()
	s, ok := f.state.sessions[id]
	if !ok {
		return nil
	}
	c := *s
	return &c
}

func (f *FakeStorage) UserCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.state.users)
}

func (f *FakeStorage) SessionCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.state.sessions)
}

func (f *FakeStorage) AccountCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.state.accounts)
}

func (f *FakeStorage) HasTOTP(userID string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.state.totp[userID]
	return ok
}

func accountKey(provider core.Provider, providerUserID string) string {
	return string(provider) + ":" + providerUserID
}

// Transaction snapshots the state and restores it if fn fails.
func (f *FakeStorage) Transaction(ctx context.Context, fn func(tx core.AuthStorage) error) error {
	f.mu.Lock()
	if err := f.enter("Transaction"); err != nil {
		f.mu.Unlock()
		return err
	}
	snapshot := f.state.clone()
	f.mu.Unlock()

	if err := fn(f); err != nil {
		f.mu.Lock()
		f.state = snapshot
		f.mu.Unlock()
		return err
	}
	return nil
}

func (s fakeState) clone() fakeState {
	out := fakeState{
		users:    make(map[string]*core.User, len(s.users)),
		sessions: make(map[string]*core.Session, len(s.sessions)),
		accounts: make(map[string]*core.OAuthAccount, len(s.accounts)),
		totp:     make(map[string]*core.TOTPCredential, len(s.totp)),
		passkeys: make(map[string]*core.Passkey, len(s.passkeys)),
	}
	for k, v := range s.users {
		c := *v
		out.users[k] = &c
	}
	for k, v := range s.sessions {
		c := *v
		out.sessions[k] = &c
	}
	for k, v := range s.accounts {
		c := *v
		out.accounts[k] = &c
	}
	for k, v := range s.totp {
		c := *v
		out.totp[k] = &c
	}
	for k, v := range s.passkeys {
		c := *v
		out.passkeys[k] = &c
	}
	return out
}

// UserStorage

func (f *FakeStorage) CreateUser(ctx context.Context, u *core.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("CreateUser"); err != nil {
		return err
	}
	for _, existing := range f.state.users {
		if existing.Email == u.Email {
			return core.ErrEmailTaken
		}
	}
	c := *u
	f.state.users[u.ID] = &c
	return nil
}

func (f *FakeStorage) GetUserByID(ctx context.Context, id string) (*core.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("GetUserByID"); err != nil {
		return nil, err
	}
	u, ok := f.state.users[id]
	if !ok {
		return nil, core.ErrUserNotFound
	}
	c := *u
	return &c, nil
}

func (f *FakeStorage) GetUserByEmail(ctx context.Context, email string) (*core.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("GetUserByEmail"); err != nil {
		return nil, err
	}
	for _, u := range f.state.users {
		if u.Email == email {
			c := *u
			return &c, nil
		}
	}
	return nil, core.ErrUserNotFound
}

func (f *FakeStorage) LockUser(ctx context.Context, id string) (*core.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("LockUser"); err != nil {
		return nil, err
	}
	u, ok := f.state.users[id]
	if !ok {
		return nil, core.ErrUserNotFound
	}
	c := *u
	return &c, nil
}

func (f *FakeStorage) SetUserRegistered2FA(ctx context.Context, id string, registered bool, updatedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("SetUserRegistered2FA"); err != nil {
		return err
	}
	u, ok := f.state.users[id]
	if !ok {
		return core.ErrUserNotFound
	}
	u.Registered2FA = registered
	u.UpdatedAt = updatedAt
	return nil
}

// OAuthAccountStorage

func (f *FakeStorage) CreateOAuthAccount(ctx context.Context, a *core.OAuthAccount) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("CreateOAuthAccount"); err != nil {
		return err
	}
	c := *a
	f.state.accounts[accountKey(a.Provider, a.ProviderUserID)] = &c
	return nil
}

func (f *FakeStorage) GetOAuthAccount(ctx context.Context, provider core.Provider, providerUserID string) (*core.OAuthAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("GetOAuthAccount"); err != nil {
		return nil, err
	}
	a, ok := f.state.accounts[accountKey(provider, providerUserID)]
	if !ok {
		return nil, core.ErrOAuthAccountNotFound
	}
	c := *a
	return &c, nil
}

// CredentialStorage

func (f *FakeStorage) CreateTOTPCredential(ctx context.Context, c *core.TOTPCredential) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("CreateTOTPCredential"); err != nil {
		return err
	}
	cp := *c
	f.state.totp[c.UserID] = &cp
	return nil
}

func (f *FakeStorage) GetTOTPCredential(ctx context.Context, userID string) (*core.TOTPCredential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("GetTOTPCredential"); err != nil {
		return nil, err
	}
	c, ok := f.state.totp[userID]
	if !ok {
		return nil, core.ErrTOTPNotFound
	}
	cp := *c
	return &cp, nil
}

func (f *FakeStorage) ConsumeTOTPStep(ctx context.Context, userID string, step int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("ConsumeTOTPStep"); err != nil {
		return false, err
	}
	c, ok := f.state.totp[userID]
	if !ok || c.LastUsedStep >= step {
		return false, nil
	}
	c.LastUsedStep = step
	return true, nil
}

func (f *FakeStorage) HasTOTPCredential(ctx context.Context, userID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("HasTOTPCredential"); err != nil {
		return false, err
	}
	_, ok := f.state.totp[userID]
	return ok, nil
}

func (f *FakeStorage) DeleteTOTPCredential(ctx context.Context, userID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("DeleteTOTPCredential"); err != nil {
		return 0, err
	}
	if _, ok := f.state.totp[userID]; !ok {
		return 0, nil
	}
	delete(f.state.totp, userID)
	return 1, nil
}

func (f *FakeStorage) CountPasskeys(ctx context.Context, userID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("CountPasskeys"); err != nil {
		return 0, err
	}
	var n int64
	for _, p := range f.state.passkeys {
		if p.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (f *FakeStorage) DeletePasskey(ctx context.Context, userID, passkeyID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("DeletePasskey"); err != nil {
		return 0, err
	}
	p, ok := f.state.passkeys[passkeyID]
	if !ok || p.UserID != userID {
		return 0, nil
	}
	delete(f.state.passkeys, passkeyID)
	return 1, nil
}

// SessionStorage

func (f *FakeStorage) CreateSession(ctx context.Context, s *core.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("CreateSession"); err != nil {
		return err
	}
	c := *s
	f.state.sessions[s.ID] = &c
	return nil
}

func (f *FakeStorage) GetSessionAndUser(ctx context.Context, id string) (*core.Session, *core.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("GetSessionAndUser"); err != nil {
		return nil, nil, err
	}
	s, ok := f.state.sessions[id]
	if !ok {
		return nil, nil, core.ErrSessionNotFound
	}
	u, ok := f.state.users[s.UserID]
	if !ok {
		return nil, nil, core.ErrSessionNotFound
	}
	session := *s
	user := *u
	_, user.RegisteredTOTP = f.state.totp[u.ID]
	for _, p := range f.state.passkeys {
		if p.UserID == u.ID {
			user.RegisteredPasskey = true
			break
		}
	}
	return &session, &user, nil
}

func (f *FakeStorage) GetSessionByID(ctx context.Context, id string) (*core.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("GetSessionByID"); err != nil {
		return nil, err
	}
	s, ok := f.state.sessions[id]
	if !ok {
		return nil, core.ErrSessionNotFound
	}
	c := *s
	return &c, nil
}

func (f *FakeStorage) GetUserSessions(ctx context.Context, userID string) ([]*core.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("GetUserSessions"); err != nil {
		return nil, err
	}
	var out []*core.Session
	for _, s := range f.state.sessions {
		if s.UserID == userID {
			c := *s
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *FakeStorage) UpdateSessionExpiry(ctx context.Context, id string, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("UpdateSessionExpiry"); err != nil {
		return err
	}
	if s, ok := f.state.sessions[id]; ok {
		s.ExpiresAt = expiresAt
	}
	return nil
}

func (f *FakeStorage) SetSessionTwoFactorVerified(ctx context.Context, id string, verified bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("SetSessionTwoFactorVerified"); err != nil {
		return err
	}
	s, ok := f.state.sessions[id]
	if !ok {
		return core.ErrSessionNotFound
	}
	s.TwoFactorVerified = verified
	return nil
}

func (f *FakeStorage) ClearUserTwoFactorVerified(ctx context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("ClearUserTwoFactorVerified"); err != nil {
		return err
	}
	for _, s := range f.state.sessions {
		if s.UserID == userID {
			s.TwoFactorVerified = false
		}
	}
	return nil
}

func (f *FakeStorage) DeleteSessionByID(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("DeleteSessionByID"); err != nil {
		return err
	}
	delete(f.state.sessions, id)
	return nil
}

func (f *FakeStorage) DeleteUserSessions(ctx context.Context, userID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("DeleteUserSessions"); err != nil {
		return 0, err
	}
	var n int64
	for id, s := range f.state.sessions {
		if s.UserID == userID {
			delete(f.state.sessions, id)
			n++
		}
	}
	return n, nil
}

// FakeGeoLocator returns a fixed location or error.
type FakeGeoLocator struct {
	Location *core.Location
	Err      error
	Delay    time.Duration
	calls    int
	mu       sync.Mutex
}

func (g *FakeGeoLocator) Locate(ctx context.Context, ip string) (*core.Location, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()

	if g.Delay > 0 {
		select {
		case <-time.After(g.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if g.Err != nil {
		return nil, g.Err
	}
	return g.Location, nil
}

func (g *FakeGeoLocator) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}
