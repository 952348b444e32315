package server_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"socialfeed/cache"
	"socialfeed/models"
	"socialfeed/server"
	"socialfeed/session"
	"socialfeed/store"

	"github.com/gofiber/fiber/v2"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type stubRemote struct{}

func (stubRemote) ListPosts(ctx context.Context, page, limit int) ([]models.Post, error) {
	if page != 1 {
		return nil, nil
	}
	return []models.Post{
		{Id: 1, UserId: 1, Title: "banana bread"},
		{Id: 2, UserId: 1, Title: "Apple pie"},
		{Id: 3, UserId: 1, Title: "apple crumble"},
	}, nil
}

func (stubRemote) ListComments(ctx context.Context, postId int64) ([]models.Comment, error) {
	return []models.Comment{
		{Id: 1, PostId: postId, Email: "someone@example.com", Body: "nice"},
		{Id: 2, PostId: postId, Email: "testuser@logicwind.com", Body: "mine"},
	}, nil
}

func (stubRemote) CreatePost(ctx context.Context, post models.Post) (models.PostPatch, error) {
	return models.PostPatch{Id: lo.ToPtr(int64(101))}, nil
}

func (stubRemote) UpdatePost(ctx context.Context, id int64, patch models.PostPatch) (models.PostPatch, error) {
	return patch, nil
}

func (stubRemote) DeletePost(ctx context.Context, id int64) error {
	return nil
}

type testServer struct {
	app     *fiber.App
	cache   *cache.Cache
	session *session.Store
}

func newTestServer(t *testing.T, moderator bool) *testServer {
	t.Helper()
	user := models.User{FirstName: "Test", LastName: "User", Email: "testuser@logicwind.com", IsModerator: moderator}
	account, err := session.NewAccount(user, "Test123!", "", bcrypt.MinCost)
	require.NoError(t, err)

	kv := store.NewMemory()
	s := session.New(kv, account)
	c := cache.New(stubRemote{}, kv)

	app := server.Server(&server.ServerConfig{Cache: c, Session: s})
	return &testServer{app: app, cache: c, session: s}
}

func (ts *testServer) do(t *testing.T, method, target, body string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	if token := ts.session.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := ts.app.Test(req, -1)
	require.NoError(t, err)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func (ts *testServer) login(t *testing.T) {
	t.Helper()
	resp, _ := ts.do(t, http.MethodPost, "/api/login", `{"email":"testuser@logicwind.com","password":"Test123!"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestFeedRoutesRequireSession(t *testing.T) {
	ts := newTestServer(t, true)

	for _, target := range []string{"/api/posts", "/api/status", "/api/posts/1/comments"} {
		resp, body := ts.do(t, http.MethodGet, target, "")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, target)
		assert.JSONEq(t, `{"redirect":"/login"}`, string(body), target)
	}
}

func TestLogin(t *testing.T) {
	ts := newTestServer(t, true)

	resp, body := ts.do(t, http.MethodPost, "/api/login", `{"email":"testuser@logicwind.com","password":"nope"}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, string(body), session.InvalidCredentialsMessage)

	ts.login(t)
	resp, body = ts.do(t, http.MethodGet, "/api/session", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"authenticated":true`)
}

func TestWrongTokenIsRejected(t *testing.T) {
	ts := newTestServer(t, true)
	ts.login(t)

	req := httptest.NewRequest(http.MethodGet, "/api/posts", nil)
	req.Header.Set("Authorization", "Bearer stale")
	resp, err := ts.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestLogoutRedirects(t *testing.T) {
	ts := newTestServer(t, true)
	ts.login(t)

	resp, body := ts.do(t, http.MethodPost, "/api/logout", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"redirect":"/login"}`, string(body))
	assert.False(t, ts.session.IsAuthenticated())
}

func TestListPostsSearchAndSort(t *testing.T) {
	ts := newTestServer(t, true)
	ts.login(t)

	resp, _ := ts.do(t, http.MethodPost, "/api/posts/fetch?page=1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := ts.do(t, http.MethodGet, "/api/posts?q=apple&sort=alphabeticalAsc", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var posts []models.Post
	require.NoError(t, json.Unmarshal(body, &posts))
	assert.Equal(t, []string{"apple crumble", "Apple pie"}, lo.Map(posts, func(p models.Post, _ int) string { return p.Title }))

	resp, _ = ts.do(t, http.MethodGet, "/api/posts?sort=random", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCreateAndUpdatePost(t *testing.T) {
	ts := newTestServer(t, true)
	ts.login(t)

	resp, body := ts.do(t, http.MethodPost, "/api/posts", `{"title":"Hello","body":"World"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created models.Post
	require.NoError(t, json.Unmarshal(body, &created))
	assert.Equal(t, int64(101), created.Id)

	resp, _ = ts.do(t, http.MethodPost, "/api/posts", `{"title":"Hello"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = ts.do(t, http.MethodPut, "/api/posts/101", `{"title":"Renamed"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var updated models.Post
	require.NoError(t, json.Unmarshal(body, &updated))
	assert.Equal(t, "Renamed", updated.Title)
	assert.Equal(t, "World", updated.Body)

	resp, _ = ts.do(t, http.MethodDelete, "/api/posts/101", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	_, found := ts.cache.Post(101)
	assert.False(t, found)
}

func TestModeration(t *testing.T) {
	ts := newTestServer(t, true)
	ts.login(t)
	ts.do(t, http.MethodPost, "/api/posts/fetch", "")
	resp, _ := ts.do(t, http.MethodPost, "/api/posts/2/comments/fetch", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = ts.do(t, http.MethodPost, "/api/posts/2/comments/1/moderate", `{"approve":true}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	post, _ := ts.cache.Post(2)
	assert.Equal(t, 1, post.ApprovedCommentsCount)

	resp, _ = ts.do(t, http.MethodPost, "/api/posts/2/comments/2/moderate", `{"approve":true}`)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode, "own comment")

	resp, _ = ts.do(t, http.MethodPost, "/api/posts/2/comments/9/moderate", `{"approve":true}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = ts.do(t, http.MethodPost, "/api/posts/2/comments/1/moderate", `{"approve":false}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := ts.do(t, http.MethodGet, "/api/posts/2/comments", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var visible []models.Comment
	require.NoError(t, json.Unmarshal(body, &visible))
	assert.Len(t, visible, 1, "rejected comment hidden")
}

func TestModerationRequiresModerator(t *testing.T) {
	ts := newTestServer(t, false)
	ts.login(t)
	ts.do(t, http.MethodPost, "/api/posts/fetch", "")
	ts.do(t, http.MethodPost, "/api/posts/2/comments/fetch", "")

	resp, _ := ts.do(t, http.MethodPost, "/api/posts/2/comments/1/moderate", `{"approve":true}`)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestAddComment(t *testing.T) {
	ts := newTestServer(t, true)
	ts.login(t)
	ts.do(t, http.MethodPost, "/api/posts/fetch", "")

	resp, body := ts.do(t, http.MethodPost, "/api/posts/3/comments", `{"body":"hello"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var comment models.Comment
	require.NoError(t, json.Unmarshal(body, &comment))
	assert.Equal(t, models.StatusPending, comment.Status)
	assert.Equal(t, "Test User", comment.Name)
	assert.Equal(t, "testuser@logicwind.com", comment.Email)

	resp, _ = ts.do(t, http.MethodPost, "/api/posts/3/comments", `{"body":"  "}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStatusAndMetrics(t *testing.T) {
	ts := newTestServer(t, true)
	ts.login(t)

	resp, body := ts.do(t, http.MethodGet, "/api/status", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"fetchingPosts":false`)

	resp, _ = ts.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestBroadcasterReceivesCommits(t *testing.T) {
	ts := newTestServer(t, true)
	bc := server.NewBroadcaster()
	ts.cache.Subscribe(bc.BroadcastSnapshot)

	events := make(chan models.SnapshotEvent, 1)
	bc.AddClient("client", events)
	require.NoError(t, ts.cache.FetchPosts(context.Background(), 1, false))

	event := <-events
	assert.Equal(t, "posts", event.Reason)
	assert.Len(t, event.Snapshot.Posts, 3)

	bc.RemoveClient("client")
	assert.Zero(t, bc.Clients())
	_, open := <-events
	assert.False(t, open)
}
