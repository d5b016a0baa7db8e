package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/pandeptwidyaop/hpc-console/internal/database"
	"github.com/pandeptwidyaop/hpc-console/internal/models"
	"github.com/pandeptwidyaop/hpc-console/internal/validation"
)

// ErrInvalidRequest indicates missing or malformed request fields.
var ErrInvalidRequest = errors.New("invalid request")

// UserService manages console accounts and their application assignments.
// When a provisioner is set, account changes are mirrored onto the cluster
// nodes after the database commit.
type UserService struct {
	db          *database.DB
	auth        *AuthService
	provisioner *Provisioner
}

func NewUserService(db *database.DB, auth *AuthService, provisioner *Provisioner) *UserService {
	return &UserService{db: db, auth: auth, provisioner: provisioner}
}

func (s *UserService) List() ([]models.User, error) {
	rows, err := s.db.Query("SELECT " + userColumns + " FROM users ORDER BY username")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range users {
		users[i].Applications, err = userApplications(s.db, users[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return users, nil
}

func (s *UserService) Get(id int64) (*models.User, error) {
	return s.auth.GetUserByID(id)
}

func (s *UserService) Create(ctx context.Context, req *models.CreateUserRequest) (*models.User, error) {
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	req.FullName = strings.TrimSpace(req.FullName)
	if req.Username == "" || req.Email == "" || req.Password == "" || req.FullName == "" {
		return nil, fmt.Errorf("%w: all fields are required", ErrInvalidRequest)
	}
	if err := validation.ValidateUsername(req.Username); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if err := validation.ValidatePassword(req.Password, s.passwordPolicy()); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	role := req.Role
	if role == "" {
		role = models.RoleUser
	}
	if role != models.RoleAdmin && role != models.RoleUser {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidRequest, role)
	}

	id, err := s.auth.insertUser(req.Username, req.Email, req.FullName, req.Password, role)
	if err != nil {
		return nil, err
	}

	if err := s.assignApplications(ctx, id, req.Applications); err != nil {
		return nil, err
	}

	if s.provisioner != nil {
		if err := s.provisioner.CreateAccount(ctx, req.Username); err != nil {
			log.Printf("[Users] Provisioning %s failed: %v", req.Username, err)
		}
	}

	log.Printf("[Users] Created user %s (%s)", req.Username, role)
	return s.auth.GetUserByID(id)
}

// Update changes the given fields. A username change is mirrored onto the
// nodes through the rename playbook.
func (s *UserService) Update(ctx context.Context, id int64, req *models.UpdateUserRequest) (*models.User, error) {
	user, err := s.auth.GetUserByID(id)
	if err != nil {
		return nil, err
	}
	oldUsername := user.Username

	username := strings.TrimSpace(req.Username)
	if username != "" {
		if err := validation.ValidateUsername(username); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
	}
	if req.Password != "" {
		if err := validation.ValidatePassword(req.Password, s.passwordPolicy()); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
	}
	if req.Role != "" && req.Role != models.RoleAdmin && req.Role != models.RoleUser {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidRequest, req.Role)
	}

	if username != "" {
		user.Username = username
	}
	if email := strings.TrimSpace(req.Email); email != "" {
		user.Email = email
	}
	if fullName := strings.TrimSpace(req.FullName); fullName != "" {
		user.FullName = fullName
	}
	if req.Role != "" {
		user.Role = req.Role
	}
	if req.Password != "" {
		user.PasswordHash, err = s.auth.HashPassword(req.Password)
		if err != nil {
			return nil, err
		}
	}

	_, err = s.db.ExecContext(ctx,
		"UPDATE users SET username = ?, email = ?, full_name = ?, role = ?, password_hash = ? WHERE id = ?",
		user.Username, user.Email, user.FullName, user.Role, user.PasswordHash, id,
	)
	if database.IsUniqueViolation(err) {
		return nil, ErrUserExists
	}
	if err != nil {
		return nil, err
	}

	if req.Applications != nil {
		if err := s.assignApplications(ctx, id, *req.Applications); err != nil {
			return nil, err
		}
	}

	if s.provisioner != nil && user.Username != oldUsername {
		if err := s.provisioner.RenameAccount(ctx, oldUsername, user.Username); err != nil {
			return nil, err
		}
	}

	return s.auth.GetUserByID(id)
}

// UpdateProfile lets a user change their own name, email and password.
// Role and application assignments are not touched.
func (s *UserService) UpdateProfile(ctx context.Context, id int64, req *models.UpdateUserRequest) (*models.User, error) {
	return s.Update(ctx, id, &models.UpdateUserRequest{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		FullName: req.FullName,
	})
}

func (s *UserService) Delete(ctx context.Context, id int64) error {
	user, err := s.auth.GetUserByID(id)
	if err != nil {
		return err
	}

	if s.provisioner != nil {
		if err := s.provisioner.DeleteAccount(ctx, user.Username); err != nil {
			return err
		}
	}

	result, err := s.db.ExecContext(ctx, "DELETE FROM users WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrUserNotFound
	}

	log.Printf("[Users] Deleted user %s", user.Username)
	return nil
}

func (s *UserService) passwordPolicy() validation.PasswordPolicy {
	return validation.PasswordPolicy{
		MinLength:   s.auth.cfg.Auth.MinPasswordLength,
		CheckCommon: s.auth.cfg.Auth.RejectCommonPasswords,
	}
}

// assignApplications replaces the user's assignments. Ids that are not in the
// applications table are ignored.
func (s *UserService) assignApplications(ctx context.Context, userID int64, appIDs []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, s.db.Rebind("DELETE FROM user_applications WHERE user_id = ?"), userID); err != nil {
		return err
	}

	seen := make(map[string]bool, len(appIDs))
	for _, appID := range appIDs {
		if seen[appID] {
			continue
		}
		seen[appID] = true

		var exists int
		err := tx.QueryRowContext(ctx, s.db.Rebind("SELECT 1 FROM applications WHERE app_id = ?"), appID).Scan(&exists)
		if err == sql.ErrNoRows {
			log.Printf("[Users] Ignoring unknown application %s", appID)
			continue
		}
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			s.db.Rebind("INSERT INTO user_applications (user_id, app_id) VALUES (?, ?)"),
			userID, appID,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}
