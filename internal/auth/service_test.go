package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"packtrack/internal/mfa"
	"packtrack/internal/password"
	"packtrack/internal/token"
	"packtrack/internal/users"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type memUsers struct {
	mu   sync.Mutex
	byID map[string]*users.User
	err  error
}

func newMemUsers() *memUsers {
	return &memUsers{byID: make(map[string]*users.User)}
}

func (m *memUsers) Create(_ context.Context, u *users.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	for _, existing := range m.byID {
		if strings.EqualFold(existing.Email, u.Email) {
			return users.ErrEmailExists
		}
	}
	cp := *u
	m.byID[u.ID] = &cp
	return nil
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (*users.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	for _, u := range m.byID {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, users.ErrNotFound
}

func (m *memUsers) enableMFA(email string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if u.Email == email {
			u.MFAEnabled = true
		}
	}
}

type capturingSender struct {
	mu    sync.Mutex
	codes map[string]string
	err   error
}

func (s *capturingSender) SendMFACode(email, code string, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if s.codes == nil {
		s.codes = make(map[string]string)
	}
	s.codes[email] = code
	return nil
}

func (s *capturingSender) last(email string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.codes[email]
}

type chanAccessLog struct {
	entries chan AccessEntry
	err     error
}

func newChanAccessLog() *chanAccessLog {
	return &chanAccessLog{entries: make(chan AccessEntry, 8)}
}

func (l *chanAccessLog) Record(_ context.Context, e AccessEntry) error {
	l.entries <- e
	return l.err
}

func (l *chanAccessLog) next(t *testing.T) AccessEntry {
	t.Helper()
	select {
	case e := <-l.entries:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("expected an access log entry")
		return AccessEntry{}
	}
}

// stubCodes returns a fixed outcome from Consume
type stubCodes struct {
	outcome mfa.Outcome
	err     error
}

func (s stubCodes) Create(context.Context, string) (string, error) { return "123456", s.err }
func (s stubCodes) Consume(context.Context, string, string) (mfa.Outcome, error) {
	return s.outcome, s.err
}

type fixture struct {
	svc    Service
	users  *memUsers
	sender *capturingSender
	log    *chanAccessLog
	tokens *token.Manager
}

func newFixture(t *testing.T, codes mfa.Store) *fixture {
	t.Helper()
	tokens, err := token.NewManager([]byte(testSecret), time.Hour, time.Minute)
	require.NoError(t, err)
	if codes == nil {
		codes = mfa.NewMemoryStore(mfa.DefaultTTL)
	}

	f := &fixture{
		users:  newMemUsers(),
		sender: &capturingSender{},
		log:    newChanAccessLog(),
		tokens: tokens,
	}
	f.svc = NewService(f.users, password.NewHasher(bcrypt.MinCost), tokens, codes, f.sender, f.log, mfa.DefaultTTL)
	return f
}

var client = ClientInfo{IP: "203.0.113.9", UserAgent: "PackTrack/1.0"}

func (f *fixture) signup(t *testing.T, email string) *Session {
	t.Helper()
	s, err := f.svc.Signup(context.Background(), SignupRequest{Fullname: "A B", Email: email, Password: "secret1"}, client)
	require.NoError(t, err)
	f.log.next(t)
	return s
}

func TestSignupThenLogin(t *testing.T) {
	f := newFixture(t, nil)

	session := f.signup(t, "  A@X.com ")
	assert.Equal(t, "a@x.com", session.User.Email)
	assert.False(t, session.User.MFAEnabled)
	assert.NotEqual(t, "secret1", session.User.PasswordHash)

	claims, ok := f.tokens.Verify(session.Token)
	require.True(t, ok)
	assert.Equal(t, "a@x.com", claims.Email)
	assert.False(t, claims.IsTemp)

	result, err := f.svc.Login(context.Background(), "a@x.com", "secret1", client)
	require.NoError(t, err)
	assert.Equal(t, StatusAuthenticated, result.Status)
	assert.Empty(t, result.TempToken)

	claims, ok = f.tokens.Verify(result.Token)
	require.True(t, ok)
	assert.Equal(t, session.User.ID, claims.UserID)

	entry := f.log.next(t)
	assert.Equal(t, EventLogin, entry.Event)
	assert.Equal(t, client.IP, entry.IP)
}

func TestSignup_DuplicateEmail(t *testing.T) {
	f := newFixture(t, nil)
	f.signup(t, "a@x.com")

	_, err := f.svc.Signup(context.Background(), SignupRequest{Fullname: "C", Email: "A@x.com", Password: "another1"}, client)
	assert.ErrorIs(t, err, ErrDuplicateEmail)
}

func TestLogin_InvalidCredentials(t *testing.T) {
	f := newFixture(t, nil)
	f.signup(t, "a@x.com")

	_, err := f.svc.Login(context.Background(), "a@x.com", "wrong-password", client)
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = f.svc.Login(context.Background(), "nobody@x.com", "secret1", client)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLogin_StoreFailureIsNotInvalidCredentials(t *testing.T) {
	f := newFixture(t, nil)
	f.users.err = errors.New("connection reset")

	_, err := f.svc.Login(context.Background(), "a@x.com", "secret1", client)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrInvalidCredentials))
}

func TestMFAFlow(t *testing.T) {
	f := newFixture(t, nil)
	f.signup(t, "a@x.com")
	f.users.enableMFA("a@x.com")

	result, err := f.svc.Login(context.Background(), "a@x.com", "secret1", client)
	require.NoError(t, err)
	assert.Equal(t, StatusMFARequired, result.Status)
	assert.Empty(t, result.Token, "MFA users must not get a full token from login")

	claims, ok := f.tokens.Verify(result.TempToken)
	require.True(t, ok)
	assert.True(t, claims.IsTemp)

	code := f.sender.last("a@x.com")
	require.Len(t, code, 6)

	_, err = f.svc.VerifyMFA(context.Background(), wrong(code), result.TempToken, client)
	assert.ErrorIs(t, err, ErrInvalidMFACode)
	assert.ErrorIs(t, err, ErrInvalidOrExpiredCode)

	session, err := f.svc.VerifyMFA(context.Background(), code, result.TempToken, client)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", session.User.Email)
	full, ok := f.tokens.Verify(session.Token)
	require.True(t, ok)
	assert.False(t, full.IsTemp)
	assert.Equal(t, EventMFAVerified, f.log.next(t).Event)

	_, err = f.svc.VerifyMFA(context.Background(), code, result.TempToken, client)
	assert.ErrorIs(t, err, ErrMFACodeNotFound)
}

func TestVerifyMFA_RejectsFullToken(t *testing.T) {
	f := newFixture(t, nil)
	session := f.signup(t, "a@x.com")

	_, err := f.svc.VerifyMFA(context.Background(), "123456", session.Token, client)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = f.svc.VerifyMFA(context.Background(), "123456", "garbage", client)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyMFA_OutcomeMapping(t *testing.T) {
	cases := []struct {
		outcome mfa.Outcome
		want    error
	}{
		{mfa.NotFound, ErrMFACodeNotFound},
		{mfa.Expired, ErrMFACodeExpired},
		{mfa.Mismatch, ErrInvalidMFACode},
	}

	for _, tc := range cases {
		t.Run(tc.outcome.String(), func(t *testing.T) {
			f := newFixture(t, stubCodes{outcome: tc.outcome})
			temp, err := f.tokens.IssueTemp("u1", "a@x.com")
			require.NoError(t, err)

			_, err = f.svc.VerifyMFA(context.Background(), "123456", temp, client)
			assert.ErrorIs(t, err, tc.want)
			assert.ErrorIs(t, err, ErrInvalidOrExpiredCode)
		})
	}
}

func TestLogin_DeliveryFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.signup(t, "a@x.com")
	f.users.enableMFA("a@x.com")
	f.sender.err = errors.New("smtp down")

	_, err := f.svc.Login(context.Background(), "a@x.com", "secret1", client)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrInvalidCredentials))
}

func TestAuthenticate(t *testing.T) {
	f := newFixture(t, nil)

	full, _ := f.tokens.IssueFull("u1", "a@x.com")
	temp, _ := f.tokens.IssueTemp("u1", "a@x.com")

	claims, err := f.svc.Authenticate(full)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)

	_, err = f.svc.Authenticate(temp)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAccessLogFailureDoesNotFailLogin(t *testing.T) {
	f := newFixture(t, nil)
	f.signup(t, "a@x.com")
	f.log.err = errors.New("insert failed")

	result, err := f.svc.Login(context.Background(), "a@x.com", "secret1", client)
	require.NoError(t, err)
	assert.NotEmpty(t, result.Token)
	f.log.next(t)
}

func wrong(code string) string {
	if code == "999999" {
		return "100000"
	}
	return "999999"
}
