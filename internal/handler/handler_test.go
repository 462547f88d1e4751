package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aryan0dhankhar/identityhub/internal/domain"
	"github.com/aryan0dhankhar/identityhub/internal/security/audit"
	"github.com/aryan0dhankhar/identityhub/internal/security/cipher"
	"github.com/aryan0dhankhar/identityhub/internal/security/token"
	"github.com/aryan0dhankhar/identityhub/internal/service"
	"github.com/aryan0dhankhar/identityhub/pkg/cache"
	"github.com/google/uuid"
)

// fakeDirectory is an in-memory UserDirectory for handler tests.
type fakeDirectory struct {
	users map[string]*domain.User
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{users: make(map[string]*domain.User)}
}

func (f *fakeDirectory) Create(user *domain.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	clone := *user
	f.users[user.ID] = &clone
	return nil
}

func (f *fakeDirectory) FindByID(id string) (*domain.User, error) {
	if u, ok := f.users[id]; ok {
		clone := *u
		return &clone, nil
	}
	return nil, domain.ErrUserNotFound
}

func (f *fakeDirectory) FindByUsername(username string) (*domain.User, error) {
	for _, u := range f.users {
		if u.Username == username {
			clone := *u
			return &clone, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (f *fakeDirectory) UpdatePassword(id, digest string) (*domain.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	u.PasswordDigest = digest
	u.UpdatedAt = time.Now()
	clone := *u
	return &clone, nil
}

func (f *fakeDirectory) Delete(id string) error {
	if _, ok := f.users[id]; !ok {
		return domain.ErrUserNotFound
	}
	delete(f.users, id)
	return nil
}

func (f *fakeDirectory) List(filter domain.ListFilter, limit, skip int) ([]*domain.User, int, error) {
	var matched []*domain.User
	for _, u := range f.users {
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

type fixture struct {
	dir      *fakeDirectory
	identity *IdentityHandler
	users    *UsersHandler
	service  *service.IdentityService
	tokens   *token.Manager
}

func newFixture(t *testing.T) *fixture {
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

	dir := newFakeDirectory()
	svc := service.NewIdentityService(dir, credCipher, tokens, nil, log)
	auditLog := audit.NewLogger(log)

	return &fixture{
		dir:      dir,
		identity: NewIdentityHandler(svc, auditLog, log),
		users:    NewUsersHandler(dir, svc, credCipher, cache.New(), log),
		service:  svc,
		tokens:   tokens,
	}
}

type envelope struct {
	Meta   map[string]any  `json:"meta"`
	Result json.RawMessage `json:"result"`
	Errors []string        `json:"errors"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("response is not a valid envelope: %v\nbody: %s", err, rec.Body.String())
	}
	return env
}

func resultMap(t *testing.T, env envelope) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(env.Result, &out); err != nil {
		t.Fatalf("result is not an object: %v\nresult: %s", err, env.Result)
	}
	return out
}

func message(t *testing.T, env envelope) string {
	t.Helper()
	msg, _ := resultMap(t, env)["message"].(string)
	return msg
}
