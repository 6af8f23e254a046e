package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"energy-forecast/internal/auth"
	"energy-forecast/internal/models"
	"energy-forecast/internal/repository"
)

func validRegistration() RegisterRequest {
	return RegisterRequest{
		PlantName: "North Field Solar",
		Latitude:  48.1,
		Longitude: 11.5,
		City:      "Munich",
		Username:  "northfield",
		Password:  "sufficiently-long",
	}
}

func newTestAuthService(repo repository.ForecastRepository) (*AuthService, *auth.SessionStore) {
	sessions := auth.NewSessionStore(time.Hour)
	return NewAuthService(repo, sessions, testLogger, testMetrics), sessions
}

func TestRegister_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*RegisterRequest)
		field  string
	}{
		{"missing plant name", func(r *RegisterRequest) { r.PlantName = " " }, "plant_name"},
		{"missing city", func(r *RegisterRequest) { r.City = "" }, "city"},
		{"missing username", func(r *RegisterRequest) { r.Username = "" }, "username"},
		{"short password", func(r *RegisterRequest) { r.Password = "1234567" }, "password"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service, _ := newTestAuthService(newFakeRepository())

			req := validRegistration()
			tt.mutate(&req)

			_, err := service.Register(context.Background(), req)

			var validation *models.ValidationError
			if !errors.As(err, &validation) {
				t.Fatalf("Register() error = %v, want ValidationError", err)
			}
			if validation.Field != tt.field {
				t.Errorf("ValidationError.Field = %q, want %q", validation.Field, tt.field)
			}
		})
	}
}

func TestRegister_HashesPassword(t *testing.T) {
	repo := newFakeRepository()
	service, _ := newTestAuthService(repo)

	user, err := service.Register(context.Background(), validRegistration())
	if err != nil {
		t.Fatalf("Register() error: %v", err)
	}

	if user.ID == 0 {
		t.Error("user should have an assigned id")
	}
	if user.PasswordHash == "sufficiently-long" {
		t.Fatal("password stored in plaintext")
	}
	if !auth.CheckPassword(user.PasswordHash, "sufficiently-long") {
		t.Error("stored hash does not verify against the original password")
	}
}

func TestRegister_DuplicateUsername(t *testing.T) {
	repo := newFakeRepository()
	service, _ := newTestAuthService(repo)

	if _, err := service.Register(context.Background(), validRegistration()); err != nil {
		t.Fatal(err)
	}

	req := validRegistration()
	req.PlantName = "Other Plant"

	_, err := service.Register(context.Background(), req)
	if !errors.Is(err, repository.ErrUsernameTaken) {
		t.Errorf("Register() error = %v, want ErrUsernameTaken", err)
	}
}

func TestLogin(t *testing.T) {
	repo := newFakeRepository()
	service, sessions := newTestAuthService(repo)

	registered, err := service.Register(context.Background(), validRegistration())
	if err != nil {
		t.Fatal(err)
	}

	t.Run("success", func(t *testing.T) {
		token, user, err := service.Login(context.Background(), "northfield", "sufficiently-long")
		if err != nil {
			t.Fatalf("Login() error: %v", err)
		}
		if user.ID != registered.ID {
			t.Errorf("Login() user id = %d, want %d", user.ID, registered.ID)
		}

		userID, err := sessions.Resolve(token)
		if err != nil {
			t.Fatalf("issued token does not resolve: %v", err)
		}
		if userID != registered.ID {
			t.Errorf("token resolves to %d, want %d", userID, registered.ID)
		}
	})

	t.Run("wrong password", func(t *testing.T) {
		_, _, err := service.Login(context.Background(), "northfield", "wrong")
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("Login() error = %v, want ErrInvalidCredentials", err)
		}
	})

	t.Run("unknown user", func(t *testing.T) {
		// Indistinguishable from a wrong password.
		_, _, err := service.Login(context.Background(), "nobody", "whatever")
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("Login() error = %v, want ErrInvalidCredentials", err)
		}
	})
}

func TestLogout(t *testing.T) {
	repo := newFakeRepository()
	service, sessions := newTestAuthService(repo)

	if _, err := service.Register(context.Background(), validRegistration()); err != nil {
		t.Fatal(err)
	}

	token, _, err := service.Login(context.Background(), "northfield", "sufficiently-long")
	if err != nil {
		t.Fatal(err)
	}

	service.Logout(context.Background(), token)

	if _, err := sessions.Resolve(token); !errors.Is(err, auth.ErrNoSession) {
		t.Errorf("Resolve() after logout error = %v, want ErrNoSession", err)
	}
}
