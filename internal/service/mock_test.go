package service

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/prn-tf/truly/internal/domain"
	"github.com/prn-tf/truly/internal/pkg/crypto"
	"github.com/prn-tf/truly/internal/repository"
)

// MockUserRepository is a mock implementation of repository.UserRepository.
type MockUserRepository struct {
	mu       sync.Mutex
	users    map[string]*domain.User
	messages map[string][]domain.Message
	nextID   int

	getErr    error
	createErr error
	appendErr error

	// beforeAppend runs inside AppendMessage before the gate is checked.
	beforeAppend func(u *domain.User)
}

func NewMockUserRepository() *MockUserRepository {
	return &MockUserRepository{
		users:    make(map[string]*domain.User),
		messages: make(map[string][]domain.Message),
		nextID:   1,
	}
}

func (m *MockUserRepository) Create(ctx context.Context, user *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.createErr != nil {
		return m.createErr
	}
	for _, u := range m.users {
		if u.Username == user.Username {
			return domain.NewDomainError(domain.ErrUsernameTaken, "create", user.Username)
		}
		if u.Email == user.Email {
			return domain.NewDomainError(domain.ErrEmailTaken, "create", user.Email)
		}
	}

	user.ID = "u" + strconv.Itoa(m.nextID)
	m.nextID++
	stored := *user
	stored.Messages = nil
	m.users[user.ID] = &stored
	return nil
}

func (m *MockUserRepository) find(match func(u *domain.User) bool) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.getErr != nil {
		return nil, m.getErr
	}
	for _, u := range m.users {
		if match(u) {
			found := *u
			return &found, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (m *MockUserRepository) GetByIdentifier(ctx context.Context, identifier string) (*domain.User, error) {
	return m.find(func(u *domain.User) bool {
		return u.Username == identifier || u.Email == strings.ToLower(identifier)
	})
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return m.find(func(u *domain.User) bool { return u.ID == id })
}

func (m *MockUserRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	return m.find(func(u *domain.User) bool { return u.Username == username })
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return m.find(func(u *domain.User) bool { return u.Email == email })
}

func (m *MockUserRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	_, err := m.GetByUsername(ctx, username)
	if err == domain.ErrUserNotFound {
		return false, nil
	}
	return err == nil, err
}

func (m *MockUserRepository) MarkVerified(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.IsVerified = true
	return nil
}

func (m *MockUserRepository) ResetVerification(ctx context.Context, id string, reset repository.VerificationReset) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok || u.IsVerified {
		return domain.ErrUserNotFound
	}
	for _, other := range m.users {
		if other.ID != id && other.Username == reset.Username {
			return domain.NewDomainError(domain.ErrUsernameTaken, "reset", reset.Username)
		}
	}
	u.Username = reset.Username
	u.PasswordHash = reset.PasswordHash
	u.VerifyCode = reset.VerifyCode
	u.VerifyCodeExpiry = reset.VerifyCodeExpiry
	return nil
}

func (m *MockUserRepository) SetAcceptingMessages(ctx context.Context, id string, accepting bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.IsAcceptingMessages = accepting
	return nil
}

func (m *MockUserRepository) AppendMessage(ctx context.Context, userID string, message *domain.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.appendErr != nil {
		return m.appendErr
	}
	u, ok := m.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	if m.beforeAppend != nil {
		m.beforeAppend(u)
	}
	if !u.IsAcceptingMessages {
		return domain.ErrNotAcceptingMessages
	}
	message.ID = "m" + strconv.Itoa(len(m.messages[userID])+1)
	m.messages[userID] = append(m.messages[userID], *message)
	return nil
}

func (m *MockUserRepository) ListMessages(ctx context.Context, userID string) ([]domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[userID]; !ok {
		return nil, domain.ErrUserNotFound
	}
	out := make([]domain.Message, len(m.messages[userID]))
	copy(out, m.messages[userID])
	return out, nil
}

var _ repository.UserRepository = (*MockUserRepository)(nil)

// MockSender records verification codes instead of sending them.
type MockSender struct {
	mu    sync.Mutex
	codes map[string]string
	err   error
}

func NewMockSender() *MockSender {
	return &MockSender{codes: make(map[string]string)}
}

func (m *MockSender) SendVerification(ctx context.Context, email, username, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return m.err
	}
	m.codes[email] = code
	return nil
}

func (m *MockSender) Code(email string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.codes[email]
}

// seedUser stores a user with the given password and verification state.
func seedUser(t *testing.T, repo *MockUserRepository, username, email, password string, verified bool) *domain.User {
	t.Helper()

	hash, err := crypto.HashPassword(password, bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}

	user := domain.NewUser(username, email, hash, "123456", time.Now().Add(time.Hour))
	user.IsVerified = verified
	if err := repo.Create(context.Background(), user); err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}
	return user
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}
