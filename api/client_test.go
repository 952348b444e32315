package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"socialfeed/api"
	"socialfeed/models"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T, handler http.HandlerFunc, token string, retries int) *api.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return api.NewClient(api.Config{
		BaseURL:       srv.URL + "/",
		Timeout:       2 * time.Second,
		MaxRetries:    retries,
		RetryInterval: time.Millisecond,
		Token:         func() string { return token },
	})
}

func TestListPostsSendsPaginationAndBearer(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/posts", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("_page"))
		assert.Equal(t, "5", r.URL.Query().Get("_limit"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `[{"id":6,"userId":2,"title":"six","body":"b"},{"id":7,"userId":2,"title":"seven","body":"b"}]`)
	}, "secret", 0)

	posts, err := client.ListPosts(context.Background(), 2, 5)
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, int64(6), posts[0].Id)
	assert.Equal(t, "seven", posts[1].Title)
}

func TestNoBearerWithoutToken(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		io.WriteString(w, `[]`)
	}, "", 0)

	comments, err := client.ListComments(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, comments)
}

func TestListCommentsPath(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/posts/42/comments", r.URL.Path)
		io.WriteString(w, `[{"id":1,"postId":42,"name":"n","email":"e@x.com","body":"hello"}]`)
	}, "", 0)

	comments, err := client.ListComments(context.Background(), 42)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, int64(42), comments[0].PostId)
	assert.Empty(t, comments[0].Status)
}

func TestCreatePostOmitsId(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.NotContains(t, body, "id")
		assert.Equal(t, "title", body["title"])

		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"id":101,"userId":211094,"title":"title","body":"body"}`)
	}, "", 0)

	created, err := client.CreatePost(context.Background(), models.Post{Id: 123, UserId: 211094, Title: "title", Body: "body"})
	require.NoError(t, err)
	require.NotNil(t, created.Id)
	assert.Equal(t, int64(101), *created.Id)
}

func TestUpdatePostSendsPartialFields(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/posts/3", r.URL.Path)

		raw, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"title":"new"}`, string(raw))
		io.WriteString(w, `{"id":3,"title":"new"}`)
	}, "", 0)

	title := "new"
	updated, err := client.UpdatePost(context.Background(), 3, models.PostPatch{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, "new", *updated.Title)
	assert.Nil(t, updated.Body)
}

func TestDeletePost(t *testing.T) {
	var calls int32
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/posts/9", r.URL.Path)
		io.WriteString(w, `{}`)
	}, "", 0)

	require.NoError(t, client.DeletePost(context.Background(), 9))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestNon2xxIsRequestFailure(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}, "", 3)

	err := client.DeletePost(context.Background(), 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, api.ErrRequestFailed))

	var statusErr *api.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusNotFound, statusErr.Code)
}

func TestRetriesServerErrorsOnIdempotentCalls(t *testing.T) {
	var calls int32
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		io.WriteString(w, `[]`)
	}, "", 2)

	_, err := client.ListPosts(context.Background(), 1, 5)
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestNoRetryOnCreate(t *testing.T) {
	var calls int32
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}, "", 2)

	_, err := client.CreatePost(context.Background(), models.Post{Title: "t", Body: "b"})
	assert.ErrorIs(t, err, api.ErrRequestFailed)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestNoRetryOnClientError(t *testing.T) {
	var calls int32
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}, "", 2)

	_, err := client.ListPosts(context.Background(), 1, 5)
	assert.ErrorIs(t, err, api.ErrRequestFailed)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestTransportErrorIsRequestFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	client := api.NewClient(api.Config{BaseURL: srv.URL, Timeout: time.Second})
	_, err := client.ListPosts(context.Background(), 1, 5)
	assert.ErrorIs(t, err, api.ErrRequestFailed)
}

func TestMalformedResponseIsRequestFailure(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"not":"a list"`)
	}, "", 0)

	_, err := client.ListPosts(context.Background(), 1, 5)
	assert.ErrorIs(t, err, api.ErrRequestFailed)
}
