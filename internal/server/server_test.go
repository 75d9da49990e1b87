package server

import (
	"context"
	"ctchen222/blog-web-api/internal/api/controller"
	"ctchen222/blog-web-api/internal/api/service"
	"ctchen222/blog-web-api/internal/db"
	"ctchen222/blog-web-api/internal/events"
	"ctchen222/blog-web-api/internal/feed"
	"ctchen222/blog-web-api/internal/repository"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type apiResponse struct {
	Success  bool            `json:"success"`
	Message  string          `json:"message"`
	Token    string          `json:"token"`
	Users    []string        `json:"users"`
	Username string          `json:"username"`
	PostIDs  []int64         `json:"posts_ids"`
	PostID   int64           `json:"post_id"`
	Post     json.RawMessage `json:"post"`
	Clients  *int            `json:"feed_clients"`
}

type postBody struct {
	ID          int64  `json:"id"`
	Author      string `json:"author"`
	Title       string `json:"title"`
	Body        string `json:"body"`
	LastUpdated *int64 `json:"lastUpdated"`
}

type testServer struct {
	t   *testing.T
	url string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	pool, err := db.LocalConnect(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	userRepo := repository.NewSQLiteUserRepository(pool)
	postRepo := repository.NewSQLitePostRepository(pool)

	hub := feed.NewHub(nil)
	go hub.Run(ctx)

	credentials := service.NewCredentialStore(userRepo, bcrypt.MinCost)
	tokens := service.NewTokenManager(userRepo, []byte("test-secret"), time.Hour)
	posts := service.NewPostStore(postRepo)
	locks := service.NewKeyedMutex()

	srv := NewServer(hub,
		controller.NewUserController(service.NewAccountService(credentials, tokens, posts, hub, locks)),
		controller.NewPostController(service.NewBlogService(credentials, tokens, posts, hub, locks)),
	)

	ts := httptest.NewServer(srv.Engine())
	t.Cleanup(ts.Close)
	return &testServer{t: t, url: ts.URL}
}

func (s *testServer) do(req *http.Request) (int, apiResponse) {
	s.t.Helper()
	res, err := http.DefaultClient.Do(req)
	require.NoError(s.t, err)
	defer res.Body.Close()

	var body apiResponse
	require.NoError(s.t, json.NewDecoder(res.Body).Decode(&body))
	return res.StatusCode, body
}

func (s *testServer) post(path string, form map[string]string) (int, apiResponse) {
	s.t.Helper()
	values := url.Values{}
	for k, v := range form {
		values.Set(k, v)
	}
	req, err := http.NewRequest(http.MethodPost, s.url+path, strings.NewReader(values.Encode()))
	require.NoError(s.t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return s.do(req)
}

func (s *testServer) postJSON(path, body string) (int, apiResponse) {
	s.t.Helper()
	req, err := http.NewRequest(http.MethodPost, s.url+path, strings.NewReader(body))
	require.NoError(s.t, err)
	req.Header.Set("Content-Type", "application/json")
	return s.do(req)
}

func (s *testServer) get(path string) (int, apiResponse) {
	s.t.Helper()
	req, err := http.NewRequest(http.MethodGet, s.url+path, nil)
	require.NoError(s.t, err)
	return s.do(req)
}

func (s *testServer) createUser(username, password string) string {
	s.t.Helper()
	code, body := s.post("/user/create", map[string]string{"username": username, "password": password})
	require.Equal(s.t, http.StatusOK, code, body.Message)
	require.True(s.t, body.Success)
	require.NotEmpty(s.t, body.Token)
	return body.Token
}

func decodePost(t *testing.T, raw json.RawMessage) postBody {
	t.Helper()
	var p postBody
	require.NoError(t, json.Unmarshal(raw, &p))
	return p
}

func TestServer_Info(t *testing.T) {
	s := newTestServer(t)
	code, body := s.get("/")
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, body.Success)
	assert.NotEmpty(t, body.Message)
	require.NotNil(t, body.Clients)
	assert.Equal(t, 0, *body.Clients)
}

func TestServer_EndToEnd(t *testing.T) {
	s := newTestServer(t)
	token := s.createUser("user1", "password1")

	code, body := s.post("/blog/add", map[string]string{"token": token, "title": "The title.", "body": "The body message."})
	require.Equal(t, http.StatusOK, code, body.Message)
	id := fmt.Sprint(body.PostID)

	code, body = s.get("/blog/get/" + id)
	require.Equal(t, http.StatusOK, code)
	post := decodePost(t, body.Post)
	assert.Equal(t, "The title.", post.Title)
	assert.Equal(t, "The body message.", post.Body)
	assert.Equal(t, "user1", post.Author)
	assert.NotNil(t, post.LastUpdated)

	code, body = s.post("/blog/update", map[string]string{"token": token, "blogId": id, "title": "The new title.", "body": "The new body message."})
	require.Equal(t, http.StatusOK, code, body.Message)

	code, body = s.get("/blog/get/" + id)
	require.Equal(t, http.StatusOK, code)
	post = decodePost(t, body.Post)
	assert.Equal(t, "The new title.", post.Title)
	assert.Equal(t, "The new body message.", post.Body)

	code, body = s.post("/blog/remove", map[string]string{"token": token, "blogId": id})
	require.Equal(t, http.StatusOK, code, body.Message)

	code, body = s.get("/blog/get/" + id)
	assert.Equal(t, http.StatusNotFound, code)
	assert.False(t, body.Success)
	assert.Equal(t, "Didn't find the blog post.", body.Message)
}

func TestServer_JSONBodies(t *testing.T) {
	s := newTestServer(t)

	code, body := s.postJSON("/user/create", `{"username":"alice","password":"secret1"}`)
	require.Equal(t, http.StatusOK, code, body.Message)
	token := body.Token

	code, body = s.postJSON("/blog/add", fmt.Sprintf(`{"token":%q,"title":"The title.","body":"The body message."}`, token))
	require.Equal(t, http.StatusOK, code, body.Message)

	// blogId may be sent as a JSON number.
	code, body = s.postJSON("/blog/remove", fmt.Sprintf(`{"token":%q,"blogId":%d}`, token, body.PostID))
	assert.Equal(t, http.StatusOK, code, body.Message)

	code, body = s.postJSON("/user/login", `{"username":`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.False(t, body.Success)

	code, body = s.postJSON("/user/login", "")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Missing 'username' argument.", body.Message)
}

func TestServer_MissingArguments(t *testing.T) {
	s := newTestServer(t)
	token := s.createUser("alice", "secret1")

	routes := map[string]map[string]string{
		"/user/create":            {"username": "bob", "password": "secret1"},
		"/user/login":             {"username": "alice", "password": "secret1"},
		"/user/remove":            {"username": "alice", "password": "secret1"},
		"/user/change_password":   {"username": "alice", "password": "secret1", "newPassword": "secret2"},
		"/user/invalidate_tokens": {"username": "alice", "password": "secret1"},
		"/blog/add":               {"token": token, "title": "The title.", "body": "The body message."},
		"/blog/update":            {"token": token, "blogId": "1", "title": "The title.", "body": "The body message."},
		"/blog/remove":            {"token": token, "blogId": "1"},
	}

	for path, full := range routes {
		for missing := range full {
			form := make(map[string]string)
			for k, v := range full {
				if k != missing {
					form[k] = v
				}
			}
			code, body := s.post(path, form)
			assert.Equal(t, http.StatusBadRequest, code, "%s without %s", path, missing)
			assert.False(t, body.Success)
			assert.Empty(t, body.Token)
			assert.Equal(t, fmt.Sprintf("Missing '%s' argument.", missing), body.Message, path)
		}
	}

	// Nothing above may have changed the account.
	code, _ := s.post("/user/login", map[string]string{"username": "alice", "password": "secret1"})
	assert.Equal(t, http.StatusOK, code)
}

func TestServer_UserLifecycle(t *testing.T) {
	s := newTestServer(t)
	first := s.createUser("alice", "secret1")

	code, body := s.post("/user/create", map[string]string{"username": "alice", "password": "secret1"})
	assert.Equal(t, http.StatusConflict, code)
	assert.Empty(t, body.Token)

	code, body = s.post("/user/login", map[string]string{"username": "alice", "password": "wrong12"})
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Empty(t, body.Token)

	code, body = s.post("/user/login", map[string]string{"username": "ghost", "password": "secret1"})
	assert.Equal(t, http.StatusNotFound, code)
	assert.Empty(t, body.Token)

	code, body = s.post("/user/change_password", map[string]string{"username": "alice", "password": "secret1", "newPassword": "secret2"})
	require.Equal(t, http.StatusOK, code, body.Message)
	changed := body.Token

	code, _ = s.post("/blog/add", map[string]string{"token": first, "title": "The title.", "body": "The body message."})
	assert.Equal(t, http.StatusUnauthorized, code)
	code, body = s.post("/blog/add", map[string]string{"token": changed, "title": "The title.", "body": "The body message."})
	require.Equal(t, http.StatusOK, code, body.Message)

	code, body = s.post("/user/invalidate_tokens", map[string]string{"username": "alice", "password": "secret2"})
	require.Equal(t, http.StatusOK, code, body.Message)
	fresh := body.Token
	code, _ = s.post("/blog/add", map[string]string{"token": changed, "title": "The title.", "body": "The body message."})
	assert.Equal(t, http.StatusUnauthorized, code)
	code, _ = s.post("/blog/add", map[string]string{"token": fresh, "title": "The title.", "body": "The body message."})
	assert.Equal(t, http.StatusOK, code)

	code, body = s.get("/blog/alice/getall")
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body.PostIDs, 2)

	code, body = s.get("/user/getall")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []string{"alice"}, body.Users)

	code, body = s.get("/user/random")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "alice", body.Username)
	assert.Len(t, body.PostIDs, 2)

	code, _ = s.post("/user/remove", map[string]string{"username": "alice", "password": "secret2"})
	require.Equal(t, http.StatusOK, code)

	code, _ = s.get("/blog/alice/getall")
	assert.Equal(t, http.StatusNotFound, code)
	code, body = s.get("/blog/getall")
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, body.PostIDs)
	code, _ = s.get("/user/random")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestServer_PostOwnershipAndReads(t *testing.T) {
	s := newTestServer(t)

	code, body := s.get("/blog/random")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "Couldn't find any post.", body.Message)

	owner := s.createUser("alice", "secret1")
	other := s.createUser("bob", "secret1")

	code, body = s.get("/blog/bob/getall")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "No posts found.", body.Message)

	_, body = s.post("/blog/add", map[string]string{"token": owner, "title": "The title.", "body": "The body message."})
	id := fmt.Sprint(body.PostID)

	code, body = s.post("/blog/update", map[string]string{"token": other, "blogId": id, "title": "Other title", "body": "Other body message"})
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "The blog posts state can only be changed by its author.", body.Message)

	code, _ = s.post("/blog/remove", map[string]string{"token": other, "blogId": id})
	assert.Equal(t, http.StatusForbidden, code)

	code, body = s.get("/blog/random")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "alice", decodePost(t, body.Post).Author)

	code, body = s.get("/blog/getall")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []int64{1}, body.PostIDs)

	code, _ = s.get("/blog/get/abc")
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = s.post("/blog/add", map[string]string{"token": owner, "title": "tiny", "body": "The body message."})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "'title' needs to be between 5 and 100 characters.", body.Message)
}

func TestServer_Feed(t *testing.T) {
	s := newTestServer(t)
	token := s.createUser("alice", "secret1")

	wsURL := "ws" + strings.TrimPrefix(s.url, "http") + "/blog/feed"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		_, body := s.get("/")
		return body.Clients != nil && *body.Clients == 1
	}, 3*time.Second, 20*time.Millisecond)

	code, body := s.post("/blog/add", map[string]string{"token": token, "title": "The title.", "body": "The body message."})
	require.Equal(t, http.StatusOK, code, body.Message)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var event events.Event
	require.NoError(t, json.Unmarshal(data, &event))
	assert.Equal(t, events.PostCreated, event.Type)

	conn.Close()
	require.Eventually(t, func() bool {
		_, body := s.get("/")
		return body.Clients != nil && *body.Clients == 0
	}, 3*time.Second, 20*time.Millisecond)
}
