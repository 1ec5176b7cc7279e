package blogdesk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/a-h/templ"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eringen/blogdesk/blog"
	"github.com/eringen/blogdesk/kv"
	"github.com/eringen/blogdesk/logging"
)

type testClient struct {
	t       *testing.T
	app     *App
	cookies map[string]*http.Cookie
}

func newTestApp(t *testing.T, mem *kv.Memory, views ViewFuncs, opts ...Option) *testClient {
	t.Helper()
	cfg := Config{SessionSecret: "test-secret", Backend: BackendMemory}
	opts = append([]Option{WithBackend(mem), WithLogger(logging.Discard())}, opts...)
	a := New(cfg, views, opts...)
	require.NoError(t, a.Init())
	t.Cleanup(func() { _ = a.Close() })
	return &testClient{t: t, app: a, cookies: make(map[string]*http.Cookie)}
}

func (tc *testClient) do(req *http.Request) *httptest.ResponseRecorder {
	tc.t.Helper()
	for _, c := range tc.cookies {
		req.AddCookie(c)
	}
	if tok, ok := tc.cookies["_csrf"]; ok {
		req.Header.Set("X-CSRF-Token", tok.Value)
	}
	rec := httptest.NewRecorder()
	tc.app.Echo.ServeHTTP(rec, req)
	for _, c := range rec.Result().Cookies() {
		tc.cookies[c.Name] = c
	}
	return rec
}

func (tc *testClient) get(path string) *httptest.ResponseRecorder {
	return tc.do(httptest.NewRequest(http.MethodGet, path, nil))
}

func (tc *testClient) list(path string) DashboardView {
	tc.t.Helper()
	rec := tc.get(path)
	require.Equal(tc.t, http.StatusOK, rec.Code, rec.Body.String())
	var view DashboardView
	require.NoError(tc.t, json.Unmarshal(rec.Body.Bytes(), &view))
	return view
}

type upload struct {
	contentType string
	data        []byte
}

func (tc *testClient) send(method, path string, fields map[string]string, img *upload) *httptest.ResponseRecorder {
	tc.t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(tc.t, mw.WriteField(k, v))
	}
	if img != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="image"; filename="cover"`)
		h.Set("Content-Type", img.contentType)
		part, err := mw.CreatePart(h)
		require.NoError(tc.t, err)
		_, err = part.Write(img.data)
		require.NoError(tc.t, err)
	}
	require.NoError(tc.t, mw.Close())

	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return tc.do(req)
}

func pngImage(t *testing.T, w, h int) *upload {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))))
	return &upload{contentType: "image/png", data: buf.Bytes()}
}

func validFields() map[string]string {
	return map[string]string{
		"title":       "First",
		"description": "Hello there",
		"category":    "Technology",
		"author":      "Ann",
		"publishDate": "2024-03-01",
		"status":      "draft",
	}
}

func decodePost(t *testing.T, rec *httptest.ResponseRecorder) blog.Post {
	t.Helper()
	var p blog.Post
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p), rec.Body.String())
	return p
}

func TestCreateListDelete(t *testing.T) {
	tc := newTestApp(t, kv.NewMemory(), ViewFuncs{})
	tc.get("/api/posts")

	rec := tc.send(http.MethodPost, "/api/posts", validFields(), pngImage(t, 4, 4))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodePost(t, rec)
	assert.NotEmpty(t, created.ID)
	assert.True(t, strings.HasPrefix(created.Image, "data:image/png;base64,"))
	assert.Equal(t, blog.StatusDraft, created.Status)

	view := tc.list("/api/posts")
	require.Len(t, view.Posts, 1)
	assert.Equal(t, created.ID, view.Posts[0].ID)
	assert.Equal(t, blog.Stats{Total: 1, Drafts: 1}, view.Stats)

	rec = tc.get("/api/posts/" + created.ID)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = tc.do(httptest.NewRequest(http.MethodDelete, "/api/posts/"+created.ID, nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = tc.get("/api/posts/" + created.ID)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = tc.do(httptest.NewRequest(http.MethodDelete, "/api/posts/missing", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestCreateValidation(t *testing.T) {
	tc := newTestApp(t, kv.NewMemory(), ViewFuncs{})
	tc.get("/api/posts")

	tests := []struct {
		name     string
		fields   map[string]string
		img      *upload
		wantErrs map[string]string
	}{
		{
			name:   "missing image",
			fields: validFields(),
			wantErrs: map[string]string{
				"image": "Image is required",
			},
		},
		{
			name:   "gif image",
			fields: validFields(),
			img:    &upload{contentType: "image/gif", data: []byte("GIF89a")},
			wantErrs: map[string]string{
				"image": "Only JPG and PNG images are allowed",
			},
		},
		{
			name:   "empty fields",
			fields: map[string]string{"status": "pending"},
			img:    pngImage(t, 2, 2),
			wantErrs: map[string]string{
				"title":       "Title is required",
				"description": "Description is required",
				"category":    "Category is required",
				"author":      "Author is required",
				"status":      "Status must be published, draft or archived",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := tc.send(http.MethodPost, "/api/posts", tt.fields, tt.img)
			require.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())

			var res blog.ValidationResult
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
			assert.False(t, res.Valid)
			assert.Equal(t, tt.wantErrs, res.Errors)
		})
	}

	assert.Empty(t, tc.app.Store.List())
}

func TestCreateRequiresCSRFToken(t *testing.T) {
	tc := newTestApp(t, kv.NewMemory(), ViewFuncs{})

	rec := tc.send(http.MethodPost, "/api/posts", validFields(), pngImage(t, 2, 2))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, tc.app.Store.List())
}

func TestCreateDownscalesWideImages(t *testing.T) {
	tc := newTestApp(t, kv.NewMemory(), ViewFuncs{})
	tc.app.Config.MaxImageWidth = 10
	tc.get("/api/posts")

	rec := tc.send(http.MethodPost, "/api/posts", validFields(), pngImage(t, 40, 20))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.True(t, strings.HasPrefix(decodePost(t, rec).Image, "data:image/png;base64,"))
}

func TestUpdateKeepsImage(t *testing.T) {
	tc := newTestApp(t, kv.NewMemory(), ViewFuncs{})
	tc.get("/api/posts")

	created := decodePost(t, tc.send(http.MethodPost, "/api/posts", validFields(), pngImage(t, 2, 2)))

	fields := validFields()
	fields["title"] = "  Renamed  "
	fields["status"] = "published"
	rec := tc.send(http.MethodPut, "/api/posts/"+created.ID, fields, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	updated := decodePost(t, rec)
	assert.Equal(t, "Renamed", updated.Title)
	assert.Equal(t, blog.StatusPublished, updated.Status)
	assert.Equal(t, created.Image, updated.Image)
	assert.True(t, created.CreatedAt.Equal(updated.CreatedAt))
	assert.True(t, updated.UpdatedAt.After(created.UpdatedAt))

	rec = tc.send(http.MethodPut, "/api/posts/missing", fields, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func seed(t *testing.T, a *App, n int, category string) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := a.Store.Create(blog.Input{
			Title:       fmt.Sprintf("%s post %d", category, i),
			Description: "d",
			Category:    category,
			Author:      "Ann",
			Status:      blog.StatusPublished,
		})
		require.NoError(t, err)
	}
}

func TestListPaginationPersistsInSession(t *testing.T) {
	tc := newTestApp(t, kv.NewMemory(), ViewFuncs{})
	seed(t, tc.app, 12, "Travel")

	view := tc.list("/api/posts?page=3")
	assert.Equal(t, 3, view.Page.CurrentPage)
	assert.Equal(t, 3, view.Page.TotalPages)
	assert.Len(t, view.Posts, 2)

	view = tc.list("/api/posts")
	assert.Equal(t, 3, view.Page.CurrentPage, "page restored from the session")

	view = tc.list("/api/posts?per_page=10")
	assert.Equal(t, 1, view.Page.CurrentPage)
	assert.Equal(t, 10, view.Page.ItemsPerPage)

	view = tc.list("/api/posts?nav=next")
	assert.Equal(t, 2, view.Page.CurrentPage)
	assert.Len(t, view.Posts, 2)

	view = tc.list("/api/posts?per_page=1000")
	assert.Equal(t, 10, view.Page.ItemsPerPage, "above the maximum is ignored")

	other := newTestApp(t, kv.NewMemory(), ViewFuncs{})
	seed(t, other.app, 12, "Travel")
	assert.Equal(t, 1, other.list("/api/posts").Page.CurrentPage, "a new browser starts at page one")
}

func TestListFilters(t *testing.T) {
	tc := newTestApp(t, kv.NewMemory(), ViewFuncs{})
	seed(t, tc.app, 3, "Travel")
	seed(t, tc.app, 2, "Health")

	view := tc.list("/api/posts?category=Health")
	assert.Len(t, view.Posts, 2)
	assert.Equal(t, 2, view.Page.TotalItems)
	assert.Equal(t, 5, view.Stats.Total, "stats cover the whole collection")

	view = tc.list("/api/posts?q=TRAVEL+POST+1")
	require.Len(t, view.Posts, 1)
	assert.Equal(t, "Travel post 1", view.Posts[0].Title)

	view = tc.list("/api/posts?status=draft")
	assert.Empty(t, view.Posts)
	assert.Equal(t, 1, view.Page.TotalPages)

	rec := tc.get("/api/posts?page=abc")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStorageFailureAndFlush(t *testing.T) {
	mem := kv.NewMemory()
	tc := newTestApp(t, mem, ViewFuncs{})
	tc.get("/api/posts")
	mem.SetQuota(64)

	rec := tc.send(http.MethodPost, "/api/posts", validFields(), pngImage(t, 2, 2))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code, rec.Body.String())
	assert.Len(t, tc.app.Store.List(), 1, "the post is kept in memory")
	assert.True(t, tc.list("/api/posts").Dirty)

	rec = tc.do(httptest.NewRequest(http.MethodPost, "/api/flush", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	mem.SetQuota(0)
	rec = tc.do(httptest.NewRequest(http.MethodPost, "/api/flush", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.False(t, tc.app.Store.Dirty())

	raw, ok, err := mem.Get(blog.KeyPosts)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, raw, `"title":"First"`)
}

func TestAdminDashboard(t *testing.T) {
	tc := newTestApp(t, kv.NewMemory(), ViewFuncs{})
	rec := tc.get("/admin/")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var seen DashboardView
	views := ViewFuncs{
		AdminDashboard: func(view DashboardView, csrfToken string) templ.Component {
			seen = view
			return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
				_, err := io.WriteString(w, "dashboard:"+csrfToken)
				return err
			})
		},
	}
	tc = newTestApp(t, kv.NewMemory(), views)
	seed(t, tc.app, 7, "Business")

	rec = tc.get("/admin/?page=2")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Body.String(), "dashboard:"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.Equal(t, 2, seen.Page.CurrentPage)
	assert.Len(t, seen.Posts, 2)
}

func TestCreateDefaultsPublishDateFromClock(t *testing.T) {
	// 23:30 in New York is already the next day in UTC.
	ny := time.FixedZone("EST", -5*60*60)
	now := time.Date(2026, 1, 1, 23, 30, 0, 0, ny)
	tc := newTestApp(t, kv.NewMemory(), ViewFuncs{}, WithClock(func() time.Time { return now }))
	tc.get("/api/posts")

	fields := validFields()
	delete(fields, "publishDate")
	rec := tc.send(http.MethodPost, "/api/posts", fields, pngImage(t, 2, 2))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	p := decodePost(t, rec)
	assert.Equal(t, "2026-01-02", p.PublishDate)
	assert.Equal(t, now.UTC(), p.CreatedAt)
}

func TestRenderFailureSendsErrorPage(t *testing.T) {
	failing := func(DashboardView, string) templ.Component {
		return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
			_, _ = io.WriteString(w, "<main>half")
			return errors.New("template exploded")
		})
	}
	errorPage := func() templ.Component {
		return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
			_, err := io.WriteString(w, "error page")
			return err
		})
	}

	tests := []struct {
		name  string
		views ViewFuncs
		body  string
	}{
		{name: "with error view", views: ViewFuncs{AdminDashboard: failing, ServerError: errorPage}, body: "error page"},
		{name: "without error view", views: ViewFuncs{AdminDashboard: failing}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tc := newTestApp(t, kv.NewMemory(), tt.views)
			rec := tc.get("/admin/")

			assert.Equal(t, http.StatusInternalServerError, rec.Code)
			assert.NotContains(t, rec.Body.String(), "half", "a partial render must not reach the client")
			if tt.body != "" {
				assert.Equal(t, tt.body, rec.Body.String())
			}
		})
	}
}

func TestInitRequiresSessionSecret(t *testing.T) {
	a := New(Config{Backend: BackendMemory}, ViewFuncs{}, WithLogger(logging.Discard()))
	assert.Error(t, a.Init())
}

func TestInitMigratesStoredCollection(t *testing.T) {
	mem := kv.NewMemory()
	require.NoError(t, mem.Set(blog.KeyPosts, `[{"id":"old","title":"Legacy","publishDate":"2023-01-02"}]`))

	tc := newTestApp(t, mem, ViewFuncs{})
	post, ok := tc.app.Store.Get("old")
	require.True(t, ok)
	assert.Equal(t, blog.StatusDraft, post.Status)

	v, ok, err := mem.Get(blog.KeySchemaVersion)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2", v)
}
