package test

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/aryan0dhankhar/identityhub/internal/domain"
	"github.com/aryan0dhankhar/identityhub/internal/handler"
	"github.com/aryan0dhankhar/identityhub/internal/respond"
	"github.com/aryan0dhankhar/identityhub/internal/security/audit"
	"github.com/aryan0dhankhar/identityhub/internal/security/cipher"
	"github.com/aryan0dhankhar/identityhub/internal/security/middleware"
	"github.com/aryan0dhankhar/identityhub/internal/security/token"
	"github.com/aryan0dhankhar/identityhub/internal/service"
	"github.com/aryan0dhankhar/identityhub/pkg/cache"
	"github.com/google/uuid"
)

// memoryDirectory is an in-memory UserDirectory backing the test server.
type memoryDirectory struct {
	mu    sync.Mutex
	users map[string]*domain.User
}

func newMemoryDirectory() *memoryDirectory {
	return &memoryDirectory{users: make(map[string]*domain.User)}
}

func (m *memoryDirectory) Create(user *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	clone := *user
	m.users[user.ID] = &clone
	return nil
}

func (m *memoryDirectory) FindByID(id string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		clone := *u
		return &clone, nil
	}
	return nil, domain.ErrUserNotFound
}

func (m *memoryDirectory) FindByUsername(username string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == username {
			clone := *u
			return &clone, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (m *memoryDirectory) UpdatePassword(id, digest string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	u.PasswordDigest = digest
	u.UpdatedAt = time.Now()
	clone := *u
	return &clone, nil
}

func (m *memoryDirectory) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return domain.ErrUserNotFound
	}
	delete(m.users, id)
	return nil
}

func (m *memoryDirectory) List(filter domain.ListFilter, limit, skip int) ([]*domain.User, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matched []*domain.User
	for _, u := range m.users {
		if filter.Username != "" && u.Username != filter.Username {
			continue
		}
		if filter.Active != nil && u.Active != *filter.Active {
			continue
		}
		clone := *u
		matched = append(matched, &clone)
	}
	total := len(matched)
	if skip > len(matched) {
		skip = len(matched)
	}
	matched = matched[skip:]
	if limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, total, nil
}

// TestServerHelper runs the full API surface against an in-memory
// directory, wired the same way the server binary wires it.
type TestServerHelper struct {
	Server    *httptest.Server
	Directory *memoryDirectory
	Tokens    *token.Manager
}

func NewTestServer(t *testing.T) *TestServerHelper {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	credCipher, err := cipher.New("test-security-key", 1024)
	if err != nil {
		t.Fatalf("cipher.New failed: %v", err)
	}
	tokens, err := token.NewManager("test-secret", "identityhub", "identityhub-clients", time.Hour)
	if err != nil {
		t.Fatalf("token.NewManager failed: %v", err)
	}

	directory := newMemoryDirectory()
	identity := service.NewIdentityService(directory, credCipher, tokens, nil, log)
	auditLog := audit.NewLogger(log)

	identityHandler := handler.NewIdentityHandler(identity, auditLog, log)
	usersHandler := handler.NewUsersHandler(directory, identity, credCipher, cache.New(), log)

	authorize := middleware.Authorize(tokens, log)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/system/signup", identityHandler.Signup)
	mux.HandleFunc("POST /api/v1/system/signin", identityHandler.Signin)
	mux.Handle("GET /api/v1/system/me", authorize(http.HandlerFunc(identityHandler.WhoAmI)))
	mux.Handle("POST /api/v1/system/me/update-password", authorize(http.HandlerFunc(identityHandler.ChangePassword)))

	mux.Handle("GET /api/v1/users", authorize(http.HandlerFunc(usersHandler.List)))
	mux.Handle("POST /api/v1/users", authorize(http.HandlerFunc(usersHandler.Create)))
	mux.Handle("GET /api/v1/users/{id}", authorize(http.HandlerFunc(usersHandler.Get)))
	mux.Handle("PUT /api/v1/users/{id}", authorize(http.HandlerFunc(usersHandler.UpdatePassword)))
	mux.Handle("DELETE /api/v1/users/{id}", authorize(http.HandlerFunc(usersHandler.Delete)))

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		respond.New(w).
			SetResult(map[string]string{"message": "Resource requested does not exist."}).
			SetStatus(respond.StatusNotFound).
			Build()
	})

	var root http.Handler = mux
	root = middleware.ValidateJSONContentType(log)(root)
	root = middleware.Recover(log)(root)
	root = middleware.RequestID(root)

	server := httptest.NewServer(root)
	t.Cleanup(server.Close)

	return &TestServerHelper{
		Server:    server,
		Directory: directory,
		Tokens:    tokens,
	}
}

func (h *TestServerHelper) URL() string {
	return h.Server.URL
}
