package api

import (
	"archive/zip"
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/erazemk/jedilnik/internal/db"
	"github.com/erazemk/jedilnik/internal/staging"
	"github.com/erazemk/jedilnik/internal/store"
)

const (
	testJWTSecret = "test-secret"
	testAdmin     = "admin@example.com"
	testOwner     = "owner@example.com"
	testPassword  = "password123"
)

const scenarioDocument = `[
	{"type": "restaurant", "id": "r1", "name": "Cafe X", "ownerEmailAddress": "owner@example.com", "address": "1 Main"},
	{"type": "banana", "name": "ignored"},
	{"type": "menuItem", "id": "m1", "title": "Soup", "price": 4.5, "restaurantId": "r1"}
]`

type testServer struct {
	*httptest.Server
	db *sql.DB
}

func setupTestServer(t *testing.T) *testServer {
	t.Helper()
	database := db.NewTestDB(t)

	router := NewRouter(Options{
		DB:             database,
		JWTSecret:      testJWTSecret,
		SiteAdmin:      testAdmin,
		Staging:        staging.New(time.Minute),
		ContentRoot:    t.TempDir(),
		MaxUploadBytes: 1 << 20,
	})
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	ts := &testServer{Server: server, db: database}
	ts.createUser(t, testAdmin)
	ts.createUser(t, testOwner)
	return ts
}

func (ts *testServer) createUser(t *testing.T, email string) {
	t.Helper()
	hash, _ := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	if _, err := store.CreateUser(context.Background(), ts.db, email, string(hash)); err != nil {
		t.Fatalf("creating user %s: %v", email, err)
	}
}

func (ts *testServer) login(t *testing.T, email string) string {
	t.Helper()
	resp := ts.do(t, "POST", "/api/auth/login", "", map[string]string{"email": email, "password": testPassword})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login %s failed: %d", email, resp.StatusCode)
	}
	var body loginResponse
	decode(t, resp, &body)
	if body.Token == "" {
		t.Fatal("empty token from login")
	}
	return body.Token
}

// do sends a JSON request. A string body is sent verbatim.
func (ts *testServer) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()

	var reader io.Reader = http.NoBody
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		data, _ := json.Marshal(b)
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, ts.URL+path, reader)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return ts.send(t, req)
}

func (ts *testServer) send(t *testing.T, req *http.Request) *http.Response {
	t.Helper()
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", req.Method, req.URL.Path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, target any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("%s %s: expected %d, got %d: %s", resp.Request.Method, resp.Request.URL.Path, want, resp.StatusCode, body)
	}
}

type catalogEntry struct {
	Type string          `json:"type"`
	Item json.RawMessage `json:"item"`
}

type previewBody struct {
	Message string `json:"message"`
	Batch   string `json:"batch"`
	Items   []struct {
		Position int             `json:"position"`
		Folder   string          `json:"folder"`
		Type     string          `json:"type"`
		Item     json.RawMessage `json:"item"`
	} `json:"items"`
	Skipped int `json:"skipped"`
}

type commitBody struct {
	Message   string `json:"message"`
	Committed int    `json:"committed"`
	Items     []struct {
		Type string `json:"type"`
		Item struct {
			ID       int64  `json:"id"`
			Status   string `json:"status"`
			ImageRef string `json:"image_ref"`
		} `json:"item"`
	} `json:"items"`
}

func (ts *testServer) catalog(t *testing.T) []catalogEntry {
	t.Helper()
	resp := ts.do(t, "GET", "/api/catalog", "", nil)
	expectStatus(t, resp, http.StatusOK)
	var entries []catalogEntry
	decode(t, resp, &entries)
	return entries
}

func (ts *testServer) stageAndCommit(t *testing.T, token string) commitBody {
	t.Helper()
	expectStatus(t, ts.do(t, "POST", "/api/import", token, scenarioDocument), http.StatusOK)

	resp := ts.do(t, "POST", "/api/import/commit", token, nil)
	expectStatus(t, resp, http.StatusOK)
	var committed commitBody
	decode(t, resp, &committed)
	return committed
}

func TestLoginEndpoint(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.do(t, "POST", "/api/auth/login", "", map[string]string{"email": testAdmin, "password": "wrong"})
	expectStatus(t, resp, http.StatusUnauthorized)

	resp = ts.do(t, "POST", "/api/auth/login", "", map[string]string{"email": "nobody@example.com", "password": testPassword})
	expectStatus(t, resp, http.StatusUnauthorized)

	// Emails match regardless of case.
	ts.login(t, "Owner@Example.com")
}

func TestLogoutRevokesToken(t *testing.T) {
	ts := setupTestServer(t)
	token := ts.login(t, testOwner)

	expectStatus(t, ts.do(t, "GET", "/api/import", token, nil), http.StatusOK)
	expectStatus(t, ts.do(t, "POST", "/api/auth/logout", token, nil), http.StatusOK)
	expectStatus(t, ts.do(t, "GET", "/api/import", token, nil), http.StatusUnauthorized)
}

func TestChangePassword(t *testing.T) {
	ts := setupTestServer(t)
	token := ts.login(t, testOwner)

	resp := ts.do(t, "PUT", "/api/auth/password", token, map[string]string{
		"current_password": "wrong-password",
		"new_password":     "new-password-1",
	})
	expectStatus(t, resp, http.StatusUnauthorized)

	resp = ts.do(t, "PUT", "/api/auth/password", token, map[string]string{
		"current_password": testPassword,
		"new_password":     "short",
	})
	expectStatus(t, resp, http.StatusBadRequest)

	resp = ts.do(t, "PUT", "/api/auth/password", token, map[string]string{
		"current_password": testPassword,
		"new_password":     "new-password-1",
	})
	expectStatus(t, resp, http.StatusOK)

	resp = ts.do(t, "POST", "/api/auth/login", "", map[string]string{"email": testOwner, "password": "new-password-1"})
	expectStatus(t, resp, http.StatusOK)
}

func TestImportPreview(t *testing.T) {
	ts := setupTestServer(t)
	token := ts.login(t, testOwner)

	resp := ts.do(t, "POST", "/api/import", token, scenarioDocument)
	expectStatus(t, resp, http.StatusOK)

	var staged previewBody
	decode(t, resp, &staged)
	if len(staged.Items) != 2 || staged.Skipped != 1 {
		t.Fatalf("expected 2 staged and 1 skipped, got %d and %d", len(staged.Items), staged.Skipped)
	}
	if staged.Items[0].Folder != "restaurant-1" || staged.Items[1].Folder != "menuitem-2" {
		t.Errorf("unexpected folders %q, %q", staged.Items[0].Folder, staged.Items[1].Folder)
	}

	// Staged state survives until commit and is visible only to its owner.
	resp = ts.do(t, "GET", "/api/import", token, nil)
	var again previewBody
	decode(t, resp, &again)
	if again.Batch != staged.Batch || len(again.Items) != 2 {
		t.Errorf("expected the same staged batch, got %+v", again)
	}

	resp = ts.do(t, "GET", "/api/import", ts.login(t, testAdmin), nil)
	var other previewBody
	decode(t, resp, &other)
	if len(other.Items) != 0 {
		t.Errorf("expected another user's staging to be empty, got %d items", len(other.Items))
	}

	expectStatus(t, ts.do(t, "DELETE", "/api/import", token, nil), http.StatusOK)
	resp = ts.do(t, "GET", "/api/import", token, nil)
	var cleared previewBody
	decode(t, resp, &cleared)
	if len(cleared.Items) != 0 {
		t.Errorf("expected empty staging after clear, got %d items", len(cleared.Items))
	}
}

func TestImportFormatErrorKeepsStaging(t *testing.T) {
	ts := setupTestServer(t)
	token := ts.login(t, testOwner)

	expectStatus(t, ts.do(t, "POST", "/api/import", token, scenarioDocument), http.StatusOK)
	expectStatus(t, ts.do(t, "POST", "/api/import", token, `{"items": 5}`), http.StatusBadRequest)
	expectStatus(t, ts.do(t, "POST", "/api/import", token, `not json`), http.StatusBadRequest)

	resp := ts.do(t, "GET", "/api/import", token, nil)
	var staged previewBody
	decode(t, resp, &staged)
	if len(staged.Items) != 2 {
		t.Errorf("expected previous batch to remain staged, got %d items", len(staged.Items))
	}
}

func TestImportMultipartFile(t *testing.T) {
	ts := setupTestServer(t)
	token := ts.login(t, testOwner)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, _ := mw.CreateFormFile("file", "catalog.json")
	fw.Write([]byte(scenarioDocument))
	mw.Close()

	req, _ := http.NewRequest("POST", ts.URL+"/api/import", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	resp := ts.send(t, req)
	expectStatus(t, resp, http.StatusOK)

	var staged previewBody
	decode(t, resp, &staged)
	if len(staged.Items) != 2 {
		t.Errorf("expected 2 staged items, got %d", len(staged.Items))
	}
}

func TestCommitEmptyStaging(t *testing.T) {
	ts := setupTestServer(t)
	token := ts.login(t, testOwner)

	resp := ts.do(t, "POST", "/api/import/commit", token, nil)
	expectStatus(t, resp, http.StatusOK)

	var body commitBody
	decode(t, resp, &body)
	if body.Committed != 0 || !strings.HasPrefix(body.Message, "No items to commit") {
		t.Errorf("unexpected commit response %+v", body)
	}

	expectStatus(t, ts.do(t, "GET", "/api/import/images-template", token, nil), http.StatusNotFound)
}

func TestCommitBatchGuard(t *testing.T) {
	ts := setupTestServer(t)
	token := ts.login(t, testOwner)

	expectStatus(t, ts.do(t, "POST", "/api/import", token, scenarioDocument), http.StatusOK)
	expectStatus(t, ts.do(t, "POST", "/api/import/commit?batch=stale", token, nil), http.StatusConflict)

	// The staged batch is still there.
	resp := ts.do(t, "POST", "/api/import/commit", token, nil)
	expectStatus(t, resp, http.StatusOK)
	var body commitBody
	decode(t, resp, &body)
	if body.Committed != 2 {
		t.Errorf("expected 2 committed, got %d", body.Committed)
	}
}

func TestImportCommitApproveFlow(t *testing.T) {
	ts := setupTestServer(t)
	adminToken := ts.login(t, testAdmin)
	ownerToken := ts.login(t, testOwner)

	committed := ts.stageAndCommit(t, adminToken)
	if committed.Committed != 2 || committed.Message != "Committed 2 item(s) to the database." {
		t.Fatalf("unexpected commit response %+v", committed)
	}
	restaurantID := committed.Items[0].Item.ID
	menuItemID := committed.Items[1].Item.ID
	for _, it := range committed.Items {
		if it.Item.Status != "Pending" {
			t.Errorf("expected Pending after commit, got %q", it.Item.Status)
		}
	}

	// Staging is cleared by the commit.
	resp := ts.do(t, "GET", "/api/import", adminToken, nil)
	var staged previewBody
	decode(t, resp, &staged)
	if len(staged.Items) != 0 {
		t.Errorf("expected staging cleared after commit, got %d items", len(staged.Items))
	}

	if got := ts.catalog(t); len(got) != 0 {
		t.Fatalf("expected empty public catalog, got %d", len(got))
	}

	// Owners cannot approve their own restaurant.
	resp = ts.do(t, "POST", "/api/verification/restaurants", ownerToken, map[string]any{"ids": []int64{restaurantID}})
	expectStatus(t, resp, http.StatusForbidden)

	// Anonymous callers are rejected before anything else.
	resp = ts.do(t, "POST", "/api/verification/restaurants", "", map[string]any{"ids": []int64{restaurantID}})
	expectStatus(t, resp, http.StatusUnauthorized)

	// Admin queue lists the pending restaurant.
	resp = ts.do(t, "GET", "/api/verification", adminToken, nil)
	expectStatus(t, resp, http.StatusOK)
	var queue struct {
		Kind        string `json:"kind"`
		Restaurants []struct {
			ID int64 `json:"id"`
		} `json:"restaurants"`
		MenuItems []struct {
			ID int64 `json:"id"`
		} `json:"menu_items"`
	}
	decode(t, resp, &queue)
	if queue.Kind != "pendingRestaurants" || len(queue.Restaurants) != 1 {
		t.Fatalf("unexpected admin queue %+v", queue)
	}

	resp = ts.do(t, "POST", "/api/verification/restaurants", adminToken, map[string]any{"ids": []int64{restaurantID}})
	expectStatus(t, resp, http.StatusOK)

	got := ts.catalog(t)
	if len(got) != 1 || got[0].Type != "restaurant" {
		t.Fatalf("expected approved restaurant in catalog, got %+v", got)
	}

	// The site admin is not an approver of menu items.
	resp = ts.do(t, "POST", "/api/verification/menu-items", adminToken, map[string]any{"ids": []int64{menuItemID}})
	expectStatus(t, resp, http.StatusForbidden)

	resp = ts.do(t, "GET", "/api/verification?restaurant_id="+itoa(restaurantID), ownerToken, nil)
	expectStatus(t, resp, http.StatusOK)
	decode(t, resp, &queue)
	if queue.Kind != "pendingMenuItems" || len(queue.MenuItems) != 1 || queue.MenuItems[0].ID != menuItemID {
		t.Fatalf("unexpected owner queue %+v", queue)
	}

	resp = ts.do(t, "POST", "/api/verification/menu-items", ownerToken, map[string]any{
		"restaurant_id": restaurantID,
		"ids":           []int64{menuItemID},
	})
	expectStatus(t, resp, http.StatusOK)
	var out struct {
		Message  string `json:"message"`
		Approved int64  `json:"approved"`
	}
	decode(t, resp, &out)
	if out.Approved != 1 {
		t.Errorf("expected 1 approved menu item, got %+v", out)
	}

	if got := ts.catalog(t); len(got) != 2 {
		t.Errorf("expected 2 catalog entries, got %d", len(got))
	}
}

func TestApproveEmptySelection(t *testing.T) {
	ts := setupTestServer(t)
	token := ts.login(t, testOwner)

	resp := ts.do(t, "POST", "/api/verification/menu-items", token, map[string]any{"ids": []int64{}})
	expectStatus(t, resp, http.StatusOK)

	var out struct {
		Message string `json:"message"`
	}
	decode(t, resp, &out)
	if out.Message != "No menu items selected." {
		t.Errorf("unexpected message %q", out.Message)
	}
}

func TestCommitWithImages(t *testing.T) {
	ts := setupTestServer(t)
	token := ts.login(t, testOwner)

	resp := ts.do(t, "POST", "/api/import", token, scenarioDocument)
	expectStatus(t, resp, http.StatusOK)
	var staged previewBody
	decode(t, resp, &staged)

	resp = ts.do(t, "GET", "/api/import/images-template", token, nil)
	expectStatus(t, resp, http.StatusOK)
	if ct := resp.Header.Get("Content-Type"); ct != "application/zip" {
		t.Fatalf("expected zip, got %q", ct)
	}
	template, _ := io.ReadAll(resp.Body)
	if _, err := zip.NewReader(bytes.NewReader(template), int64(len(template))); err != nil {
		t.Fatalf("template is not a zip: %v", err)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("batch", staged.Batch)
	fw, _ := mw.CreateFormFile("images", "images.zip")
	fw.Write(template)
	mw.Close()

	req, _ := http.NewRequest("POST", ts.URL+"/api/import/commit", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	resp = ts.send(t, req)
	expectStatus(t, resp, http.StatusOK)

	var committed commitBody
	decode(t, resp, &committed)
	ref := committed.Items[1].Item.ImageRef
	want := "/images/import/" + staged.Batch + "/menuitem-2/default.jpg"
	if ref != want {
		t.Fatalf("expected image ref %q, got %q", want, ref)
	}

	resp = ts.do(t, "GET", ref, "", nil)
	expectStatus(t, resp, http.StatusOK)
	if ct := resp.Header.Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("expected image/jpeg, got %q", ct)
	}
}

func TestSiteAdminOnlyRoutes(t *testing.T) {
	ts := setupTestServer(t)
	ownerToken := ts.login(t, testOwner)
	adminToken := ts.login(t, testAdmin)

	for _, path := range []string{"/api/users", "/api/catalog/all"} {
		expectStatus(t, ts.do(t, "GET", path, ownerToken, nil), http.StatusForbidden)
		expectStatus(t, ts.do(t, "GET", path, "", nil), http.StatusUnauthorized)
		expectStatus(t, ts.do(t, "GET", path, adminToken, nil), http.StatusOK)
	}
}

func TestUsersAPI(t *testing.T) {
	ts := setupTestServer(t)
	token := ts.login(t, testAdmin)

	resp := ts.do(t, "POST", "/api/users", token, map[string]string{"email": "new@example.com", "password": testPassword})
	expectStatus(t, resp, http.StatusCreated)
	var created struct {
		ID    int64  `json:"id"`
		Email string `json:"email"`
	}
	decode(t, resp, &created)

	resp = ts.do(t, "POST", "/api/users", token, map[string]string{"email": "NEW@example.com", "password": testPassword})
	expectStatus(t, resp, http.StatusConflict)

	resp = ts.do(t, "POST", "/api/users", token, map[string]string{"email": "weak@example.com", "password": "short"})
	expectStatus(t, resp, http.StatusBadRequest)

	ts.login(t, "new@example.com")

	expectStatus(t, ts.do(t, "DELETE", "/api/users/"+itoa(created.ID), token, nil), http.StatusOK)
	expectStatus(t, ts.do(t, "DELETE", "/api/users/"+itoa(created.ID), token, nil), http.StatusNotFound)

	resp = ts.do(t, "POST", "/api/auth/login", "", map[string]string{"email": "new@example.com", "password": testPassword})
	expectStatus(t, resp, http.StatusUnauthorized)
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
