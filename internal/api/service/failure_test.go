package service

import (
	"context"
	"ctchen222/blog-web-api/internal/api/models"
	"ctchen222/blog-web-api/internal/events"
	"ctchen222/blog-web-api/internal/repository/mocks"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"golang.org/x/crypto/bcrypt"
)

type mockEnv struct {
	users    *mocks.MockUserRepository
	posts    *mocks.MockPostRepository
	accounts AccountService
	blog     BlogService
}

type discardPublisher struct{}

func (discardPublisher) Publish(context.Context, events.Event) error { return nil }

func newMockEnv(t *testing.T) *mockEnv {
	ctrl := gomock.NewController(t)
	users := mocks.NewMockUserRepository(ctrl)
	posts := mocks.NewMockPostRepository(ctrl)

	credentials := NewCredentialStore(users, bcrypt.MinCost)
	tokens := NewTokenManager(users, testSecret, time.Hour)
	postStore := NewPostStore(posts)
	locks := NewKeyedMutex()

	return &mockEnv{
		users:    users,
		posts:    posts,
		accounts: NewAccountService(credentials, tokens, postStore, discardPublisher{}, locks),
		blog:     NewBlogService(credentials, tokens, postStore, discardPublisher{}, locks),
	}
}

func hashedUser(t *testing.T, username, password string) *models.User {
	hash, err := bcrypt.GenerateFromPassword(prehash(password), bcrypt.MinCost)
	require.NoError(t, err)
	return &models.User{ID: "id-" + username, Username: username, PasswordHash: string(hash)}
}

func TestAccountService_CreateStoreFailure(t *testing.T) {
	env := newMockEnv(t)
	storeErr := errors.New("connection reset")
	env.users.EXPECT().Create(gomock.Any(), gomock.Any()).Return(storeErr)

	token, err := env.accounts.Create(context.Background(), &models.CredentialsRequest{Username: "alice", Password: "secret1"})
	assert.ErrorIs(t, err, storeErr)
	assert.Empty(t, token)

	var callerErr *models.Error
	assert.False(t, errors.As(err, &callerErr))
}

func TestAccountService_RemoveStopsWhenCascadeFails(t *testing.T) {
	env := newMockEnv(t)
	storeErr := errors.New("timeout")

	env.users.EXPECT().Get(gomock.Any(), "alice").Return(hashedUser(t, "alice", "secret1"), nil)
	env.posts.EXPECT().DeleteByAuthor(gomock.Any(), "alice").Return(0, storeErr)
	// No Delete call is expected: the credential outlives a failed cascade.

	err := env.accounts.Remove(context.Background(), &models.CredentialsRequest{Username: "alice", Password: "secret1"})
	assert.ErrorIs(t, err, storeErr)
}

func TestAccountService_RemoveOrder(t *testing.T) {
	env := newMockEnv(t)
	user := hashedUser(t, "alice", "secret1")

	gomock.InOrder(
		env.users.EXPECT().Get(gomock.Any(), "alice").Return(user, nil),
		env.posts.EXPECT().DeleteByAuthor(gomock.Any(), "alice").Return(2, nil),
		env.users.EXPECT().Get(gomock.Any(), "alice").Return(user, nil),
		env.users.EXPECT().Delete(gomock.Any(), "alice").Return(nil),
	)

	err := env.accounts.Remove(context.Background(), &models.CredentialsRequest{Username: "alice", Password: "secret1"})
	assert.NoError(t, err)
}

func TestAccountService_LoginIssuesFromStoredGeneration(t *testing.T) {
	env := newMockEnv(t)
	user := hashedUser(t, "alice", "secret1")
	bumped := *user
	bumped.Generation = 7

	gomock.InOrder(
		env.users.EXPECT().Get(gomock.Any(), "alice").Return(user, nil),
		env.users.EXPECT().Get(gomock.Any(), "alice").Return(&bumped, nil),
		env.users.EXPECT().Get(gomock.Any(), "alice").Return(&bumped, nil),
	)

	token, err := env.accounts.Login(context.Background(), &models.CredentialsRequest{Username: "alice", Password: "secret1"})
	require.NoError(t, err)

	username, err := NewTokenManager(env.users, testSecret, time.Hour).Validate(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "alice", username)
}

func TestAccountService_LoginIssueFailure(t *testing.T) {
	env := newMockEnv(t)
	storeErr := errors.New("connection refused")

	gomock.InOrder(
		env.users.EXPECT().Get(gomock.Any(), "alice").Return(hashedUser(t, "alice", "secret1"), nil),
		env.users.EXPECT().Get(gomock.Any(), "alice").Return(nil, storeErr),
	)

	token, err := env.accounts.Login(context.Background(), &models.CredentialsRequest{Username: "alice", Password: "secret1"})
	assert.ErrorIs(t, err, storeErr)
	assert.Empty(t, token)
}

func TestAccountService_ListUsersFailure(t *testing.T) {
	env := newMockEnv(t)
	env.users.EXPECT().List(gomock.Any()).Return(nil, errors.New("broken pipe"))

	_, err := env.accounts.ListUsers(context.Background())
	assert.Error(t, err)
}

func TestBlogService_AddPostStoreFailure(t *testing.T) {
	env := newMockEnv(t)
	user := &models.User{ID: "id-alice", Username: "alice"}
	tm := NewTokenManager(env.users, testSecret, time.Hour)
	token, err := tm.Mint(user)
	require.NoError(t, err)

	storeErr := errors.New("OOM command not allowed")
	env.users.EXPECT().Get(gomock.Any(), "alice").Return(user, nil).Times(2)
	env.posts.EXPECT().Create(gomock.Any(), gomock.Any()).Return(storeErr)

	_, err = env.blog.AddPost(context.Background(), &models.AddPostRequest{Token: token, Title: "The title.", Body: "The body message."})
	assert.ErrorIs(t, err, storeErr)
}

func TestBlogService_AddPostForRemovedAuthor(t *testing.T) {
	env := newMockEnv(t)
	user := &models.User{ID: "id-alice", Username: "alice"}
	token, err := NewTokenManager(env.users, testSecret, time.Hour).Mint(user)
	require.NoError(t, err)

	// The author disappears between the first check and the lock.
	gomock.InOrder(
		env.users.EXPECT().Get(gomock.Any(), "alice").Return(user, nil),
		env.users.EXPECT().Get(gomock.Any(), "alice").Return(nil, models.ErrUserNotFound),
	)

	_, err = env.blog.AddPost(context.Background(), &models.AddPostRequest{Token: token, Title: "The title.", Body: "The body message."})
	assert.ErrorIs(t, err, models.ErrInvalidToken)
}

func TestBlogService_ReadFailures(t *testing.T) {
	env := newMockEnv(t)
	storeErr := errors.New("i/o timeout")

	env.posts.EXPECT().Get(gomock.Any(), int64(3)).Return(nil, storeErr)
	env.posts.EXPECT().Random(gomock.Any()).Return(nil, storeErr)
	env.posts.EXPECT().ListAll(gomock.Any()).Return(nil, storeErr)
	env.users.EXPECT().Get(gomock.Any(), "alice").Return(nil, storeErr)

	ctx := context.Background()
	_, err := env.blog.GetPost(ctx, "3")
	assert.ErrorIs(t, err, storeErr)
	_, err = env.blog.RandomPost(ctx)
	assert.ErrorIs(t, err, storeErr)
	_, err = env.blog.ListPosts(ctx)
	assert.ErrorIs(t, err, storeErr)
	_, err = env.blog.PostsByAuthor(ctx, "alice")
	assert.ErrorIs(t, err, storeErr)
}
