package testutil

import (
	"context"
	"io"
	"log"
	"net/mail"
	"testing"
	"time"

	"github.com/trezcool/elearning/core"
	"github.com/trezcool/elearning/core/user"
	logsvc "github.com/trezcool/elearning/services/logger"
)

// NewConfig returns a test mode configuration that does not read the environment.
func NewConfig() *core.Config {
	conf := &core.Config{
		TestMode:                      true,
		AppName:                       "E-Learning",
		SecretKey:                     "test-secret-key",
		Env:                           "TEST",
		Build:                         "test",
		FrontendBaseURL:               "http://localhost:3000",
		BackendBaseURL:                "http://localhost:8000",
		DefaultFromEmail:              mail.Address{Name: "E-Learning", Address: "noreply@localhost"},
		PasswordResetTimeoutDelta:     3 * 24 * time.Hour,
		EmailVerificationTimeoutDelta: 24 * time.Hour,
	}
	conf.Server.JWTExpirationDelta = time.Hour
	conf.Server.JWTRefreshExpirationDelta = 24 * time.Hour
	conf.AI.Language = "English"
	conf.AI.MaxConcurrentGradings = 2
	return conf
}

// NewLogger returns a logger that discards everything.
func NewLogger() core.Logger {
	return logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), &core.Config{TestMode: true})
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	firstName, lastName, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()

	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		FirstName:     firstName,
		LastName:      lastName,
		Email:         email,
		Roles:         roles,
		IsActive:      isActive,
		EmailVerified: isActive,
		CreatedAt:     tstamp,
		UpdatedAt:     tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}
