package services_test

import (
	"testing"
	"time"

	"github.com/pandeptwidyaop/hpc-console/internal/config"
	"github.com/pandeptwidyaop/hpc-console/internal/database"
	"github.com/pandeptwidyaop/hpc-console/internal/models"
	"github.com/pandeptwidyaop/hpc-console/internal/services"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Auth: config.AuthConfig{
			BcryptCost:      4,
			SessionDuration: "24h",
		},
		Admin: config.AdminConfig{
			Username: "admin",
			Password: "admin123",
			Email:    "admin@localhost",
		},
	}
}

func setupAuth(t *testing.T) (*database.DB, *services.AuthService) {
	t.Helper()
	db := setupTestDB(t)
	return db, services.NewAuthService(db, testConfig(t))
}

func TestAuthService_EnsureAdminUser(t *testing.T) {
	_, authSvc := setupAuth(t)

	if err := authSvc.EnsureAdminUser(); err != nil {
		t.Fatalf("EnsureAdminUser failed: %v", err)
	}
	// second call is a no-op
	if err := authSvc.EnsureAdminUser(); err != nil {
		t.Fatalf("second EnsureAdminUser failed: %v", err)
	}

	admin, err := authSvc.GetUserByUsername("admin")
	if err != nil {
		t.Fatalf("failed to get admin: %v", err)
	}
	if !admin.IsAdmin() {
		t.Error("expected admin role")
	}
	if !authSvc.CheckPassword("admin123", admin.PasswordHash) {
		t.Error("expected configured password to be used")
	}
	if admin.LastLogin != nil {
		t.Error("expected no last login yet")
	}
}

func TestAuthService_EnsureAdminUser_GeneratesPassword(t *testing.T) {
	db := setupTestDB(t)
	cfg := testConfig(t)
	cfg.Admin.Password = "changeme"
	authSvc := services.NewAuthService(db, cfg)

	if err := authSvc.EnsureAdminUser(); err != nil {
		t.Fatalf("EnsureAdminUser failed: %v", err)
	}
	admin, err := authSvc.GetUserByUsername("admin")
	if err != nil {
		t.Fatalf("failed to get admin: %v", err)
	}
	if authSvc.CheckPassword("changeme", admin.PasswordHash) {
		t.Error("default password must be replaced")
	}
}

func TestAuthService_Login(t *testing.T) {
	_, authSvc := setupAuth(t)
	if err := authSvc.EnsureAdminUser(); err != nil {
		t.Fatalf("EnsureAdminUser failed: %v", err)
	}

	session, err := authSvc.Login("admin", "admin123", "10.0.0.5", "curl/8")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if session.ID == "" || session.IPAddress != "10.0.0.5" {
		t.Errorf("unexpected session %+v", session)
	}

	user, err := authSvc.ValidateSession(session.ID)
	if err != nil {
		t.Fatalf("ValidateSession failed: %v", err)
	}
	if user.Username != "admin" {
		t.Errorf("expected admin, got %s", user.Username)
	}
	if user.LastLogin == nil {
		t.Error("expected last login to be recorded")
	}

	// logging in again replaces the previous session
	second, err := authSvc.Login("admin", "admin123", "10.0.0.5", "curl/8")
	if err != nil {
		t.Fatalf("second Login failed: %v", err)
	}
	if _, err := authSvc.ValidateSession(session.ID); err != services.ErrSessionNotFound {
		t.Errorf("expected old session to be gone, got %v", err)
	}
	if _, err := authSvc.ValidateSession(second.ID); err != nil {
		t.Errorf("expected new session to be valid, got %v", err)
	}
}

func TestAuthService_Login_InvalidCredentials(t *testing.T) {
	_, authSvc := setupAuth(t)
	if err := authSvc.EnsureAdminUser(); err != nil {
		t.Fatalf("EnsureAdminUser failed: %v", err)
	}

	if _, err := authSvc.Login("admin", "wrong", "", ""); err != services.ErrInvalidCredentials {
		t.Errorf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := authSvc.Login("ghost", "admin123", "", ""); err != services.ErrInvalidCredentials {
		t.Errorf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}
}

func TestAuthService_ExpiredSession(t *testing.T) {
	db, authSvc := setupAuth(t)
	if err := authSvc.EnsureAdminUser(); err != nil {
		t.Fatalf("EnsureAdminUser failed: %v", err)
	}
	admin, _ := authSvc.GetUserByUsername("admin")

	_, err := db.Exec(
		"INSERT INTO sessions (id, user_id, expires_at) VALUES (?, ?, ?)",
		"expired", admin.ID, time.Now().UTC().Add(-time.Hour),
	)
	if err != nil {
		t.Fatalf("failed to insert session: %v", err)
	}

	if _, err := authSvc.ValidateSession("expired"); err != services.ErrSessionExpired {
		t.Errorf("expected ErrSessionExpired, got %v", err)
	}
	if _, err := authSvc.ValidateSession("expired"); err != services.ErrSessionNotFound {
		t.Errorf("expected expired session to be deleted, got %v", err)
	}
}

func TestAuthService_CleanExpiredSessions(t *testing.T) {
	db, authSvc := setupAuth(t)
	if err := authSvc.EnsureAdminUser(); err != nil {
		t.Fatalf("EnsureAdminUser failed: %v", err)
	}
	admin, _ := authSvc.GetUserByUsername("admin")

	if _, err := authSvc.CreateSession(admin.ID, "", ""); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if _, err := db.Exec("INSERT INTO sessions (id, user_id, expires_at) VALUES (?, ?, ?)",
		"old", admin.ID, time.Now().UTC().Add(-time.Hour)); err != nil {
		t.Fatalf("failed to insert session: %v", err)
	}

	if err := authSvc.CleanExpiredSessions(); err != nil {
		t.Fatalf("CleanExpiredSessions failed: %v", err)
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM sessions").Scan(&count); err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 remaining session, got %d", count)
	}
}

func TestAuthService_GenerateSecurePassword(t *testing.T) {
	_, authSvc := setupAuth(t)

	a, err := authSvc.GenerateSecurePassword(16)
	if err != nil {
		t.Fatalf("GenerateSecurePassword failed: %v", err)
	}
	b, _ := authSvc.GenerateSecurePassword(16)
	if len(a) != 16 || a == b {
		t.Errorf("expected two distinct 16 character passwords, got %q and %q", a, b)
	}
}

func TestUser_IsAdmin(t *testing.T) {
	if (&models.User{Role: models.RoleUser}).IsAdmin() {
		t.Error("user role must not be admin")
	}
}
