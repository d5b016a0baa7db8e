package services_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/pandeptwidyaop/hpc-console/internal/config"
	"github.com/pandeptwidyaop/hpc-console/internal/database"
	"github.com/pandeptwidyaop/hpc-console/internal/models"
	"github.com/pandeptwidyaop/hpc-console/internal/runner"
	"github.com/pandeptwidyaop/hpc-console/internal/services"
)

// recorder is a runner that records every command and answers with result.
type recorder struct {
	mu       sync.Mutex
	commands []runner.Command
	result   runner.Result
	err      error
	onRun    func(cmd runner.Command)
}

func (r *recorder) Run(ctx context.Context, cmd runner.Command) (runner.Result, error) {
	r.mu.Lock()
	r.commands = append(r.commands, cmd)
	r.mu.Unlock()
	if r.onRun != nil {
		r.onRun(cmd)
	}
	return r.result, r.err
}

func seedApplications(t *testing.T, db *database.DB, ids ...string) {
	t.Helper()
	for _, id := range ids {
		if _, err := db.Exec("INSERT INTO applications (app_id, name) VALUES (?, ?)", id, id); err != nil {
			t.Fatalf("failed to seed application %s: %v", id, err)
		}
	}
}

func setupUsers(t *testing.T, provisioner *services.Provisioner) (*database.DB, *services.UserService) {
	t.Helper()
	db := setupTestDB(t)
	authSvc := services.NewAuthService(db, testConfig(t))
	return db, services.NewUserService(db, authSvc, provisioner)
}

func TestUserService_Create(t *testing.T) {
	db, users := setupUsers(t, nil)
	seedApplications(t, db, "gmx", "solver")
	ctx := context.Background()

	user, err := users.Create(ctx, &models.CreateUserRequest{
		Username:     "alice",
		Email:        "alice@example.com",
		Password:     "secret",
		FullName:     "Alice",
		Applications: []string{"solver", "gmx", "unknown", "gmx"},
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if user.Role != models.RoleUser {
		t.Errorf("expected default role user, got %s", user.Role)
	}
	if diff := cmp.Diff([]string{"gmx", "solver"}, user.Applications); diff != "" {
		t.Errorf("applications mismatch (-want +got):\n%s", diff)
	}

	_, err = users.Create(ctx, &models.CreateUserRequest{
		Username: "alice", Email: "other@example.com", Password: "x", FullName: "A",
	})
	if !errors.Is(err, services.ErrUserExists) {
		t.Errorf("expected ErrUserExists, got %v", err)
	}
}

func TestUserService_Create_Invalid(t *testing.T) {
	_, users := setupUsers(t, nil)
	ctx := context.Background()

	bad := []*models.CreateUserRequest{
		{Username: "", Email: "a@b", Password: "x", FullName: "A"},
		{Username: "a b", Email: "a@b", Password: "x", FullName: "A"},
		{Username: "ab", Email: "a@b", Password: "x", FullName: "A", Role: "root"},
	}
	for _, req := range bad {
		if _, err := users.Create(ctx, req); !errors.Is(err, services.ErrInvalidRequest) {
			t.Errorf("Create(%+v): expected ErrInvalidRequest, got %v", req, err)
		}
	}
}

func TestUserService_UpdateAndDelete(t *testing.T) {
	db, users := setupUsers(t, nil)
	seedApplications(t, db, "gmx", "solver")
	ctx := context.Background()

	user, err := users.Create(ctx, &models.CreateUserRequest{
		Username: "bob", Email: "bob@example.com", Password: "secret", FullName: "Bob",
		Applications: []string{"gmx"},
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	apps := []string{"solver"}
	updated, err := users.Update(ctx, user.ID, &models.UpdateUserRequest{
		FullName:     "Robert",
		Role:         models.RoleAdmin,
		Applications: &apps,
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if updated.FullName != "Robert" || !updated.IsAdmin() || updated.Email != "bob@example.com" {
		t.Errorf("unexpected user %+v", updated)
	}
	if diff := cmp.Diff([]string{"solver"}, updated.Applications); diff != "" {
		t.Errorf("applications mismatch (-want +got):\n%s", diff)
	}

	// nil applications keep the assignments
	updated, err = users.UpdateProfile(ctx, user.ID, &models.UpdateUserRequest{Email: "rob@example.com", Role: models.RoleUser})
	if err != nil {
		t.Fatalf("UpdateProfile failed: %v", err)
	}
	if !updated.IsAdmin() {
		t.Error("profile updates must not change the role")
	}
	if len(updated.Applications) != 1 {
		t.Errorf("expected assignments to be kept, got %v", updated.Applications)
	}

	list, err := users.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 1 || list[0].Email != "rob@example.com" {
		t.Errorf("unexpected list %+v", list)
	}

	if err := users.Delete(ctx, user.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := users.Get(user.ID); !errors.Is(err, services.ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound after delete, got %v", err)
	}
	if err := users.Delete(ctx, user.ID); !errors.Is(err, services.ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound on second delete, got %v", err)
	}
}

func TestUserService_Update_DuplicateUsername(t *testing.T) {
	_, users := setupUsers(t, nil)
	ctx := context.Background()

	a, _ := users.Create(ctx, &models.CreateUserRequest{Username: "a", Email: "a@x", Password: "p", FullName: "A"})
	if _, err := users.Create(ctx, &models.CreateUserRequest{Username: "b", Email: "b@x", Password: "p", FullName: "B"}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if _, err := users.Update(ctx, a.ID, &models.UpdateUserRequest{Username: "b"}); !errors.Is(err, services.ErrUserExists) {
		t.Errorf("expected ErrUserExists, got %v", err)
	}
}

func provisioningConfig(t *testing.T) *config.Config {
	cfg := testConfig(t)
	cfg.Paths.Inventory = "/srv/inventory.ini"
	cfg.Paths.PlaybookDirs = []string{"/srv/playbooks"}
	cfg.Provisioning = config.ProvisioningConfig{
		Enabled:        true,
		KeyDir:         t.TempDir(),
		CreatePlaybook: "create_user.yml",
		RenamePlaybook: "rename_user.yml",
		DeletePlaybook: "/abs/delete_user.yml",
		MinUID:         1001,
	}
	return cfg
}

func writeAccountFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "accounts")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write account file: %v", err)
	}
	return path
}

func TestUserService_Provisioning(t *testing.T) {
	cfg := provisioningConfig(t)
	rec := &recorder{}
	db := setupTestDB(t)
	authSvc := services.NewAuthService(db, cfg)

	provisioner := services.NewProvisioner(cfg, rec)
	provisioner.SetAccountFiles(
		writeAccountFile(t, "root:x:0:0::/root:/bin/sh\nalice:x:1001:1001::/home/alice:/bin/bash\n"),
		writeAccountFile(t, "root:x:0:\nalice:x:1001:\nbob:x:1002:\n"),
	)
	users := services.NewUserService(db, authSvc, provisioner)
	ctx := context.Background()

	user, err := users.Create(ctx, &models.CreateUserRequest{Username: "carol", Email: "c@x", Password: "p", FullName: "C"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := users.Update(ctx, user.ID, &models.UpdateUserRequest{Username: "caroline"}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if err := users.Delete(ctx, user.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	var got []string
	for _, cmd := range rec.commands {
		got = append(got, cmd.String())
	}
	want := []string{
		"ssh-keygen -t rsa -b 4096 -N  -f " + filepath.Join(cfg.Provisioning.KeyDir, "carol"),
		"ansible-playbook -i /srv/inventory.ini /srv/playbooks/create_user.yml -e username=carol -e uid=1002 -e gid=1003",
		"ansible-playbook -i /srv/inventory.ini /srv/playbooks/rename_user.yml -e old_username=carol -e new_username=caroline",
		"ansible-playbook -i /srv/inventory.ini /abs/delete_user.yml -e username=caroline",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("commands mismatch (-want +got):\n%s", diff)
	}
}

func TestUserService_ProvisioningFailureBlocksDelete(t *testing.T) {
	cfg := provisioningConfig(t)
	db := setupTestDB(t)
	authSvc := services.NewAuthService(db, cfg)
	ctx := context.Background()

	plain := services.NewUserService(db, authSvc, nil)
	user, err := plain.Create(ctx, &models.CreateUserRequest{Username: "dave", Email: "d@x", Password: "p", FullName: "D"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	failing := services.NewUserService(db, authSvc, services.NewProvisioner(cfg, &recorder{result: runner.Result{ExitCode: 2}}))
	if err := failing.Delete(ctx, user.ID); !errors.Is(err, services.ErrProvisioningFailed) {
		t.Fatalf("expected ErrProvisioningFailed, got %v", err)
	}
	if _, err := plain.Get(user.ID); err != nil {
		t.Errorf("user must survive a failed node-side delete: %v", err)
	}
}

func TestNextFreeID(t *testing.T) {
	path := writeAccountFile(t, "root:x:0:0\nsvc:x:999:999\na:x:1001:1001\nb:x:1002:1002\nc:x:1004:1004\nbroken line\n")

	id, err := services.NextFreeID(path, 1001)
	if err != nil {
		t.Fatalf("NextFreeID failed: %v", err)
	}
	if id != 1003 {
		t.Errorf("expected 1003, got %d", id)
	}

	id, err = services.NextFreeID(filepath.Join(t.TempDir(), "missing"), 1001)
	if err != nil || id != 1001 {
		t.Errorf("expected 1001 for a missing file, got %d, %v", id, err)
	}
}

func TestUserService_PasswordPolicy(t *testing.T) {
	db := setupTestDB(t)
	cfg := testConfig(t)
	cfg.Auth.MinPasswordLength = 8
	cfg.Auth.RejectCommonPasswords = true
	users := services.NewUserService(db, services.NewAuthService(db, cfg), nil)
	ctx := context.Background()

	for _, password := range []string{"short", "password123"} {
		_, err := users.Create(ctx, &models.CreateUserRequest{
			Username: "carol", Email: "carol@example.com", Password: password, FullName: "Carol",
		})
		if !errors.Is(err, services.ErrInvalidRequest) {
			t.Errorf("password %q: expected ErrInvalidRequest, got %v", password, err)
		}
	}

	user, err := users.Create(ctx, &models.CreateUserRequest{
		Username: "carol", Email: "carol@example.com", Password: "long-enough", FullName: "Carol",
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := users.Update(ctx, user.ID, &models.UpdateUserRequest{Password: "tiny"}); !errors.Is(err, services.ErrInvalidRequest) {
		t.Errorf("Update with short password: expected ErrInvalidRequest, got %v", err)
	}
}
