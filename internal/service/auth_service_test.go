package service

import (
	"testing"
	"time"

	"lms_backend/internal/config"
	"lms_backend/internal/model"
	"lms_backend/internal/repository"
	"lms_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAuthService(t *testing.T) (*AuthService, *config.Config) {
	db := newTestDB(t)
	cfg := &config.Config{}
	cfg.JWT.Secret = "test-secret"
	cfg.JWT.ExpireTime = time.Hour
	return NewAuthService(repository.NewUserRepository(db), cfg), cfg
}

func TestRegisterAndLogin(t *testing.T) {
	svc, cfg := newAuthService(t)

	resp, err := svc.Register(RegisterRequest{
		Name:     "Ada",
		Email:    "ada@example.com",
		Password: "supersecret",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, model.Student, resp.User.Role)
	// 密码以 bcrypt 哈希落库
	assert.NotEqual(t, "supersecret", resp.User.Password)

	claims, err := util.ParseJWT(resp.Token, cfg.JWT.Secret)
	require.NoError(t, err)
	assert.Equal(t, resp.User.ID, claims.UserID)

	login, err := svc.Login(LoginRequest{Email: "ada@example.com", Password: "supersecret"})
	require.NoError(t, err)
	assert.NotEmpty(t, login.Token)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc, _ := newAuthService(t)

	_, err := svc.Register(RegisterRequest{Name: "A", Email: "dup@example.com", Password: "supersecret"})
	require.NoError(t, err)

	_, err = svc.Register(RegisterRequest{Name: "B", Email: "dup@example.com", Password: "supersecret"})
	assert.ErrorIs(t, err, util.ErrEmailRegistered)
}

func TestLoginWrongPassword(t *testing.T) {
	svc, _ := newAuthService(t)

	_, err := svc.Register(RegisterRequest{Name: "A", Email: "a@example.com", Password: "supersecret"})
	require.NoError(t, err)

	_, err = svc.Login(LoginRequest{Email: "a@example.com", Password: "wrong"})
	assert.ErrorIs(t, err, util.ErrInvalidCredentials)

	_, err = svc.Login(LoginRequest{Email: "nobody@example.com", Password: "whatever"})
	assert.ErrorIs(t, err, util.ErrInvalidCredentials)
}

func TestRegisterTeacherRole(t *testing.T) {
	svc, _ := newAuthService(t)

	resp, err := svc.Register(RegisterRequest{
		Name:     "T",
		Email:    "t@example.com",
		Password: "supersecret",
		Role:     "teacher",
	})
	require.NoError(t, err)
	assert.Equal(t, model.Teacher, resp.User.Role)
}
