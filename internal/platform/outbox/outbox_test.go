package outbox

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockRepo struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*Entry
}

func newMockRepo() *mockRepo {
	return &mockRepo{entries: make(map[uuid.UUID]*Entry)}
}

func (m *mockRepo) Enqueue(_ context.Context, e *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.ID = uuid.New()
	cp := *e
	m.entries[e.ID] = &cp
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return nil, ErrEntryNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *mockRepo) MarkDone(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.entries[id]
	e.Status, e.LastError = StatusDone, ""
	e.Attempts++
	return nil
}

func (m *mockRepo) MarkFailed(_ context.Context, id uuid.UUID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.entries[id]
	e.Status, e.LastError = StatusFailed, reason
	e.Attempts++
	return nil
}

func (m *mockRepo) List(_ context.Context, status string, limit, offset int) ([]*Entry, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Entry
	for _, e := range m.entries {
		if status == "" || e.Status == status {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	total := len(out)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return out[offset:end], total, nil
}

type greeting struct {
	Name string `json:"name"`
}

func enqueue(t *testing.T, repo *mockRepo, kind string) *Entry {
	t.Helper()
	e, err := NewEntry(kind, uuid.New(), greeting{Name: "Asha"})
	require.NoError(t, err)
	require.NoError(t, repo.Enqueue(context.Background(), e))
	return e
}

func TestNewEntry_DecodeRoundTrip(t *testing.T) {
	e, err := NewEntry("greet", uuid.New(), greeting{Name: "Asha"})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, e.Status)

	var g greeting
	require.NoError(t, e.Decode(&g))
	assert.Equal(t, "Asha", g.Name)
}

func TestDispatcher_Success(t *testing.T) {
	repo := newMockRepo()
	d := NewDispatcher(repo, zerolog.Nop())
	var got string
	d.Register("greet", func(_ context.Context, e *Entry) error {
		var g greeting
		if err := e.Decode(&g); err != nil {
			return err
		}
		got = g.Name
		return nil
	})

	e := enqueue(t, repo, "greet")
	d.Dispatch(context.Background(), e)

	assert.Equal(t, "Asha", got)
	assert.Equal(t, StatusDone, e.Status)
	stored, _ := repo.GetByID(context.Background(), e.ID)
	assert.Equal(t, StatusDone, stored.Status)
	assert.Equal(t, 1, stored.Attempts)
}

func TestDispatcher_FailureIsRecordedNotReturned(t *testing.T) {
	repo := newMockRepo()
	d := NewDispatcher(repo, zerolog.Nop())
	d.Register("greet", func(context.Context, *Entry) error { return errors.New("provider down") })

	e := enqueue(t, repo, "greet")
	d.Dispatch(context.Background(), e)

	stored, _ := repo.GetByID(context.Background(), e.ID)
	assert.Equal(t, StatusFailed, stored.Status)
	assert.Equal(t, "provider down", stored.LastError)
	assert.Equal(t, 1, stored.Attempts)
}

func TestDispatcher_OneAttemptPerEntry(t *testing.T) {
	repo := newMockRepo()
	d := NewDispatcher(repo, zerolog.Nop())
	calls := 0
	d.Register("greet", func(context.Context, *Entry) error {
		calls++
		return errors.New("nope")
	})

	a, b := enqueue(t, repo, "greet"), enqueue(t, repo, "greet")
	d.Dispatch(context.Background(), a, b)
	assert.Equal(t, 2, calls)
}

func TestDispatcher_UnknownKind(t *testing.T) {
	repo := newMockRepo()
	d := NewDispatcher(repo, zerolog.Nop())

	e := enqueue(t, repo, "mystery")
	d.Dispatch(context.Background(), e)

	stored, _ := repo.GetByID(context.Background(), e.ID)
	assert.Equal(t, StatusFailed, stored.Status)
	assert.Contains(t, stored.LastError, "no handler")
}

func TestDispatcher_Retry(t *testing.T) {
	repo := newMockRepo()
	d := NewDispatcher(repo, zerolog.Nop())
	fail := true
	d.Register("greet", func(context.Context, *Entry) error {
		if fail {
			return errors.New("flaky")
		}
		return nil
	})

	e := enqueue(t, repo, "greet")
	d.Dispatch(context.Background(), e)

	fail = false
	retried, err := d.Retry(context.Background(), e.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDone, retried.Status)

	_, err = d.Retry(context.Background(), e.ID)
	assert.ErrorIs(t, err, ErrNotRetryable)

	_, err = d.Retry(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrEntryNotFound)
}

func TestDispatcher_RetryStalePending(t *testing.T) {
	repo := newMockRepo()
	d := NewDispatcher(repo, zerolog.Nop())
	now := time.Date(2030, 6, 15, 10, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return now }
	calls := 0
	d.Register("greet", func(context.Context, *Entry) error {
		calls++
		return nil
	})

	// Committed but never dispatched.
	e := enqueue(t, repo, "greet")
	repo.entries[e.ID].CreatedAt = now.Add(-time.Minute)

	_, err := d.Retry(context.Background(), e.ID)
	assert.ErrorIs(t, err, ErrNotRetryable, "a fresh pending entry may still be dispatched by its request")
	assert.Equal(t, 0, calls)

	repo.entries[e.ID].CreatedAt = now.Add(-StalePendingAfter)
	retried, err := d.Retry(context.Background(), e.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDone, retried.Status)
	assert.Equal(t, 1, calls)
	assert.Equal(t, StatusDone, repo.entries[e.ID].Status)
}

func TestDispatcher_ListRejectsUnknownStatus(t *testing.T) {
	d := NewDispatcher(newMockRepo(), zerolog.Nop())
	_, _, err := d.List(context.Background(), "stuck", 20, 0)
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestHandler_ListFailed(t *testing.T) {
	repo := newMockRepo()
	d := NewDispatcher(repo, zerolog.Nop())
	d.Register("ok", func(context.Context, *Entry) error { return nil })
	d.Register("bad", func(context.Context, *Entry) error { return errors.New("boom") })
	d.Dispatch(context.Background(), enqueue(t, repo, "ok"), enqueue(t, repo, "bad"))

	h := NewHandler(d)
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/admin/outbox?status=failed", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, h.List(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total":1`)
	assert.Contains(t, rec.Body.String(), "boom")
}

func TestHandler_ListBadStatus(t *testing.T) {
	h := NewHandler(NewDispatcher(newMockRepo(), zerolog.Nop()))
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/admin/outbox?status=nope", nil)
	c := e.NewContext(req, httptest.NewRecorder())

	err := h.List(c)
	var he *echo.HTTPError
	require.True(t, errors.As(err, &he))
	assert.Equal(t, http.StatusBadRequest, he.Code)
}

func TestHandler_RetryNotFound(t *testing.T) {
	h := NewHandler(NewDispatcher(newMockRepo(), zerolog.Nop()))
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(uuid.New().String())

	err := h.Retry(c)
	var he *echo.HTTPError
	require.True(t, errors.As(err, &he))
	assert.Equal(t, http.StatusNotFound, he.Code)
}
