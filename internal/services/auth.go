package services

import (
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/pandeptwidyaop/hpc-console/internal/config"
	"github.com/pandeptwidyaop/hpc-console/internal/database"
	"github.com/pandeptwidyaop/hpc-console/internal/models"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrSessionExpired     = errors.New("session expired")
	ErrSessionNotFound    = errors.New("session not found")
	ErrUserNotFound       = errors.New("user not found")
	ErrUserExists         = errors.New("user already exists")
)

const userColumns = "id, username, email, full_name, password_hash, role, created_at, last_login"

type AuthService struct {
	db  *database.DB
	cfg *config.Config
}

func NewAuthService(db *database.DB, cfg *config.Config) *AuthService {
	return &AuthService{db: db, cfg: cfg}
}

func (s *AuthService) HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.Auth.BcryptCost)
	return string(bytes), err
}

func (s *AuthService) CheckPassword(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

func (s *AuthService) GetUserByID(id int64) (*models.User, error) {
	return s.getUser("SELECT "+userColumns+" FROM users WHERE id = ?", id)
}

func (s *AuthService) GetUserByUsername(username string) (*models.User, error) {
	return s.getUser("SELECT "+userColumns+" FROM users WHERE username = ?", username)
}

func (s *AuthService) getUser(query string, arg any) (*models.User, error) {
	user, err := scanUser(s.db.QueryRow(query, arg))
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}

	user.Applications, err = userApplications(s.db, user.ID)
	if err != nil {
		return nil, err
	}
	return user, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var user models.User
	var lastLogin sql.NullTime
	err := row.Scan(&user.ID, &user.Username, &user.Email, &user.FullName, &user.PasswordHash,
		&user.Role, &user.CreatedAt, &lastLogin)
	if err != nil {
		return nil, err
	}
	if lastLogin.Valid {
		user.LastLogin = &lastLogin.Time
	}
	return &user, nil
}

func userApplications(db *database.DB, userID int64) ([]string, error) {
	rows, err := db.Query("SELECT app_id FROM user_applications WHERE user_id = ? ORDER BY app_id", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	apps := []string{}
	for rows.Next() {
		var appID string
		if err := rows.Scan(&appID); err != nil {
			return nil, err
		}
		apps = append(apps, appID)
	}
	return apps, rows.Err()
}

// Login checks the credentials, replaces any previous sessions of the user
// and records the login time.
func (s *AuthService) Login(username, password, ipAddress, userAgent string) (*models.Session, error) {
	user, err := s.GetUserByUsername(username)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	if !s.CheckPassword(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	// Invalidate old sessions for this user (session regeneration)
	if err := s.InvalidateUserSessions(user.ID); err != nil {
		return nil, err
	}

	if _, err := s.db.Exec("UPDATE users SET last_login = ? WHERE id = ?", time.Now().UTC(), user.ID); err != nil {
		log.Printf("[Auth] Failed to record login for %s: %v", username, err)
	}

	return s.CreateSession(user.ID, ipAddress, userAgent)
}

// InvalidateUserSessions removes all sessions for a user
func (s *AuthService) InvalidateUserSessions(userID int64) error {
	_, err := s.db.Exec("DELETE FROM sessions WHERE user_id = ?", userID)
	return err
}

func (s *AuthService) CreateSession(userID int64, ipAddress, userAgent string) (*models.Session, error) {
	sessionID := uuid.New().String()
	now := time.Now().UTC()
	expiresAt := now.Add(s.cfg.Auth.GetSessionDuration())

	_, err := s.db.Exec(
		"INSERT INTO sessions (id, user_id, expires_at, ip_address, user_agent, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		sessionID, userID, expiresAt, ipAddress, userAgent, now,
	)
	if err != nil {
		return nil, err
	}

	return &models.Session{
		ID:        sessionID,
		UserID:    userID,
		ExpiresAt: expiresAt,
		CreatedAt: now,
		IPAddress: ipAddress,
		UserAgent: userAgent,
	}, nil
}

func (s *AuthService) ValidateSession(sessionID string) (*models.User, error) {
	var session models.Session
	err := s.db.QueryRow(
		"SELECT id, user_id, expires_at FROM sessions WHERE id = ?",
		sessionID,
	).Scan(&session.ID, &session.UserID, &session.ExpiresAt)

	if err == sql.ErrNoRows {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}

	if time.Now().After(session.ExpiresAt) {
		_ = s.DeleteSession(sessionID)
		return nil, ErrSessionExpired
	}

	return s.GetUserByID(session.UserID)
}

func (s *AuthService) DeleteSession(sessionID string) error {
	_, err := s.db.Exec("DELETE FROM sessions WHERE id = ?", sessionID)
	return err
}

func (s *AuthService) CleanExpiredSessions() error {
	_, err := s.db.Exec("DELETE FROM sessions WHERE expires_at < ?", time.Now().UTC())
	return err
}

// GenerateSecurePassword generates a random password
func (s *AuthService) GenerateSecurePassword(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(bytes)[:length], nil
}

// insertUser stores a new account and returns its id.
func (s *AuthService) insertUser(username, email, fullName, password string, role models.Role) (int64, error) {
	hash, err := s.HashPassword(password)
	if err != nil {
		return 0, err
	}

	var id int64
	err = s.db.QueryRow(
		"INSERT INTO users (username, email, full_name, password_hash, role, created_at) VALUES (?, ?, ?, ?, ?, ?) RETURNING id",
		username, email, fullName, hash, role, time.Now().UTC(),
	).Scan(&id)
	if database.IsUniqueViolation(err) {
		return 0, ErrUserExists
	}
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (s *AuthService) EnsureAdminUser() error {
	_, err := s.GetUserByUsername(s.cfg.Admin.Username)
	if err != ErrUserNotFound {
		return err
	}

	password := s.cfg.Admin.Password

	// If default password is still "changeme", generate a random one
	if password == "changeme" {
		generated, err := s.GenerateSecurePassword(16)
		if err != nil {
			return err
		}
		password = generated
		log.Printf("WARNING: Default admin password detected!")
		log.Printf("Generated secure admin password: %s", password)
		log.Printf("Please save this password and change it after first login")
		log.Printf("   Username: %s", s.cfg.Admin.Username)
	}

	_, err = s.insertUser(s.cfg.Admin.Username, s.cfg.Admin.Email, "Administrator", password, models.RoleAdmin)
	return err
}
