package users

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"packtrack/internal/api"

	"github.com/gin-gonic/gin"
)

const (
	riderA = "6f1c7d3e-6b1a-4a55-9d8c-0a7d5f0d9b11"
	riderB = "0c4b8a22-6f9e-4d43-8f54-5a2f1d0e7c33"
)

func setupRouter(svc Service, callerID string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	g := r.Group("/api", func(c *gin.Context) {
		api.SetIdentity(c, callerID, "caller@x.com")
		c.Next()
	})
	NewHandler(svc).RegisterRoutes(g)
	return r
}

func seededService(images *fakeStorage) Service {
	name := "rider_a"
	repo := newMemRepo(
		&User{ID: riderA, Email: "a@x.com", Username: &name, Fullname: "A"},
		&User{ID: riderB, Email: "b@x.com", Fullname: "B"},
	)
	if images == nil {
		return NewService(repo, nil)
	}
	return NewService(repo, images)
}

func TestGetProfile_HidesEmailFromOthers(t *testing.T) {
	r := setupRouter(seededService(nil), riderB)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/users/"+riderA+"/profile", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var resp map[string]map[string]any
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if _, ok := resp["user"]["email"]; ok {
		t.Errorf("Expected email to be hidden, got %v", resp["user"])
	}
	if _, ok := resp["user"]["passwordHash"]; ok {
		t.Error("Password hash must never be serialised")
	}
	if resp["user"]["username"] != "rider_a" {
		t.Errorf("Expected username rider_a, got %v", resp["user"]["username"])
	}
}

func TestGetProfile_OwnerSeesEmail(t *testing.T) {
	r := setupRouter(seededService(nil), riderA)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/users/"+riderA+"/profile", nil))

	var resp ProfileResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.User.Email != "a@x.com" {
		t.Errorf("Expected owner to see email, got %q", resp.User.Email)
	}
}

func TestGetProfileHandler_NotFound(t *testing.T) {
	r := setupRouter(seededService(nil), riderA)

	for _, id := range []string{"not-a-uuid", "9a0e5a1c-2f57-4e44-b0a3-6d3f4c2b1a00"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/users/"+id+"/profile", nil))
		if w.Code != http.StatusNotFound {
			t.Errorf("Expected status 404 for %s, got %d", id, w.Code)
		}
	}
}

func TestUpdateProfile_Forbidden(t *testing.T) {
	r := setupRouter(seededService(nil), riderB)

	body := bytes.NewBufferString(`{"bio":"hijacked"}`)
	req := httptest.NewRequest(http.MethodPatch, "/api/users/"+riderA+"/profile", body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("Expected status 403, got %d", w.Code)
	}
}

func TestUpdateProfile_UsernameConflict(t *testing.T) {
	r := setupRouter(seededService(nil), riderB)

	body := bytes.NewBufferString(`{"username":"RIDER_A"}`)
	req := httptest.NewRequest(http.MethodPatch, "/api/users/"+riderB+"/profile", body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusConflict {
		t.Errorf("Expected status 409, got %d", w.Code)
	}
}

func TestUpdateProfile_Validation(t *testing.T) {
	r := setupRouter(seededService(nil), riderA)

	body := bytes.NewBufferString(`{"username":"ab"}`)
	req := httptest.NewRequest(http.MethodPatch, "/api/users/"+riderA+"/profile", body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestUploadProfilePicture(t *testing.T) {
	images := newFakeStorage()
	r := setupRouter(seededService(images), riderA)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("image", "me.png")
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	part.Write(testImage.Data)
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/users/"+riderA+"/profile/picture", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if len(images.uploaded) != 1 {
		t.Errorf("Expected one upload, got %d", len(images.uploaded))
	}
}

func TestUploadProfilePicture_StorageDown(t *testing.T) {
	r := setupRouter(seededService(nil), riderA)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, _ := mw.CreateFormFile("image", "me.png")
	part.Write(testImage.Data)
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/users/"+riderA+"/profile/picture", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503, got %d", w.Code)
	}
}
