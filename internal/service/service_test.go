package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"pneumodetect/internal/config"
	"pneumodetect/internal/domain"
	"pneumodetect/internal/repository"
	"pneumodetect/internal/store"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// fakeKV is an in-process store.KV for tests. TTLs are recorded but
// never enforced.
type fakeKV struct {
	mu     sync.Mutex
	data   map[string]string
	counts map[string]int64
}

func newFakeKV() *fakeKV {
	return &fakeKV{data: make(map[string]string), counts: make(map[string]int64)}
}

func (f *fakeKV) Get(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v, ok := f.data[key]; ok {
		return v, nil
	}
	return "", store.ErrMiss
}

func (f *fakeKV) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = value
	return nil
}

func (f *fakeKV) Del(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, key)
	delete(f.counts, key)
	return nil
}

func (f *fakeKV) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[key]++
	n := f.counts[key]
	f.data[key] = itoa(n)
	return n, nil
}

func (f *fakeKV) TTL(ctx context.Context, key string) (time.Duration, error) {
	return time.Minute, nil
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

// testEnv wires memory repositories for service tests.
type testEnv struct {
	users    *repository.MemoryUsersRepository
	notifs   *repository.MemoryNotificationsRepository
	analyses *repository.MemoryAnalysesRepository
	audit    *repository.MemoryAuditRepository
	kv       *fakeKV
	cfg      *config.Config
	logger   *zap.Logger
}

func newTestEnv() *testEnv {
	users := repository.NewMemoryUsersRepository()
	notifs := repository.NewMemoryNotificationsRepository()
	return &testEnv{
		users:    users,
		notifs:   notifs,
		analyses: repository.NewMemoryAnalysesRepository(users, notifs),
		audit:    repository.NewMemoryAuditRepository(),
		kv:       newFakeKV(),
		cfg:      config.Load(),
		logger:   zap.NewNop(),
	}
}

func (e *testEnv) addUser(t *testing.T, username string, role domain.Role, password string) *domain.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	user := &domain.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: string(hash),
		Role:         role,
		IsActive:     true,
	}
	id, err := e.users.CreateUser(context.Background(), user)
	require.NoError(t, err)
	user.ID = id
	return user
}

func (e *testEnv) actor(u *domain.User) Actor {
	return Actor{UserID: u.ID, Username: u.Username, Role: u.Role}
}

func (e *testEnv) addPendingAnalysis(t *testing.T, patientID int64) *domain.AnalysisResult {
	t.Helper()
	a := &domain.AnalysisResult{
		PatientID:   patientID,
		ModelResult: domain.ResultPneumonia,
		Confidence:  0.93,
		ImageRef:    "originals/test.jpg",
	}
	_, err := e.analyses.Create(context.Background(), a)
	require.NoError(t, err)
	return a
}

func analysisFiltersAll() repository.AnalysisFilters {
	return repository.AnalysisFilters{}
}

func (e *testEnv) auditEvents(t *testing.T, eventType string) []*domain.AuditEntry {
	t.Helper()
	entries, _, err := e.audit.List(context.Background(), repository.AuditFilters{EventType: eventType}, 1, 100)
	require.NoError(t, err)
	return entries
}
