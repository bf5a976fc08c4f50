package notifications

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"

	"packtrack/internal/api"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memRepo struct {
	mu   sync.Mutex
	byID map[string]*Notification
}

func newMemRepo() *memRepo {
	return &memRepo{byID: make(map[string]*Notification)}
}

func (r *memRepo) Create(_ context.Context, n *Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *n
	r.byID[n.ID] = &cp
	return nil
}

func (r *memRepo) List(_ context.Context, userID string, unreadOnly bool) ([]Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []Notification{}
	for _, n := range r.byID {
		if n.UserID == userID && (!unreadOnly || !n.Read) {
			out = append(out, *n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *memRepo) MarkRead(_ context.Context, userID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.byID[id]
	if !ok || n.UserID != userID {
		return ErrNotFound
	}
	n.Read = true
	return nil
}

func (r *memRepo) Delete(_ context.Context, userID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.byID[id]
	if !ok || n.UserID != userID {
		return ErrNotFound
	}
	delete(r.byID, id)
	return nil
}

func (r *memRepo) DeleteAll(_ context.Context, userID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, v := range r.byID {
		if v.UserID == userID {
			delete(r.byID, id)
			n++
		}
	}
	return n, nil
}

func setupRouter(svc Service, callerID string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	g := r.Group("/api", func(c *gin.Context) {
		api.SetIdentity(c, callerID, "")
		c.Next()
	})
	NewHandler(svc).RegisterRoutes(g)
	return r
}

func do(r http.Handler, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func TestNotificationLifecycle(t *testing.T) {
	svc := NewService(newMemRepo())
	ctx := context.Background()

	require.NoError(t, svc.Notify(ctx, Notification{ID: "n1", UserID: "u1", Type: TypePackJoin, Message: "Bo joined"}))
	require.NoError(t, svc.Notify(ctx, Notification{ID: "n2", UserID: "u1", Type: TypePackInvite, Message: "Invited"}))
	require.NoError(t, svc.Notify(ctx, Notification{UserID: "u2", Type: TypePackRemoved, Message: "Removed"}))

	r := setupRouter(svc, "u1")

	w := do(r, http.MethodGet, "/api/users/u1/notifications")
	require.Equal(t, http.StatusOK, w.Code)
	var resp ListResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Len(t, resp.Notifications, 2)
	assert.Equal(t, 2, resp.Unread)

	w = do(r, http.MethodPost, "/api/users/u1/notifications/n1/read")
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(r, http.MethodGet, "/api/users/u1/notifications?unread=true")
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Len(t, resp.Notifications, 1)
	assert.Equal(t, "n2", resp.Notifications[0].ID)

	w = do(r, http.MethodDelete, "/api/users/u1/notifications/n2")
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(r, http.MethodDelete, "/api/users/u1/notifications/n2")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(r, http.MethodDelete, "/api/users/u1/notifications")
	assert.Equal(t, http.StatusOK, w.Code)
	var cleared map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&cleared))
	assert.EqualValues(t, 1, cleared["deleted"])
}

func TestNotifications_OwnerOnly(t *testing.T) {
	svc := NewService(newMemRepo())
	require.NoError(t, svc.Notify(context.Background(), Notification{ID: "n1", UserID: "u1", Type: TypePackJoin}))

	r := setupRouter(svc, "intruder")

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/users/u1/notifications"},
		{http.MethodPost, "/api/users/u1/notifications/n1/read"},
		{http.MethodDelete, "/api/users/u1/notifications/n1"},
		{http.MethodDelete, "/api/users/u1/notifications"},
	} {
		w := do(r, tc.method, tc.path)
		assert.Equal(t, http.StatusForbidden, w.Code, "%s %s", tc.method, tc.path)
	}
}

func TestNotify_FillsDefaults(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo)

	require.NoError(t, svc.Notify(context.Background(), Notification{UserID: "u1", Type: TypeOwnershipTransferred}))

	list, _ := repo.List(context.Background(), "u1", false)
	require.Len(t, list, 1)
	assert.NotEmpty(t, list[0].ID)
	assert.False(t, list[0].CreatedAt.IsZero())
}
