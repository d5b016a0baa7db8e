// Package services provides the console's business logic: the application
// catalog and its database mirror, accounts and sessions, playbooks and
// batch jobs.
package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"

	"github.com/pandeptwidyaop/hpc-console/internal/database"
	"github.com/pandeptwidyaop/hpc-console/internal/manifest"
	"github.com/pandeptwidyaop/hpc-console/internal/models"
)

var (
	// ErrAppNotFound indicates the requested application is not in the catalog.
	ErrAppNotFound = errors.New("application not found")
	// ErrAppExists indicates an application record with the same app_id already exists.
	ErrAppExists = errors.New("application already exists")
)

// ApplicationStore persists the application catalog mirror.
type ApplicationStore interface {
	ListApplications(ctx context.Context) ([]models.ApplicationRecord, error)
	// InsertApplication returns ErrAppExists when the app_id is taken.
	InsertApplication(ctx context.Context, rec models.ApplicationRecord) error
	UpdateApplication(ctx context.Context, rec models.ApplicationRecord) error
	DeleteApplication(ctx context.Context, appID string) error
}

// ReconcileResult lists the app ids touched by a reconciliation pass.
type ReconcileResult struct {
	Inserted  []string `json:"inserted"`
	Updated   []string `json:"updated"`
	Deleted   []string `json:"deleted"`
	Discarded []string `json:"discarded"`
}

// Reconcile makes the persisted records mirror manifests. Ids only in the
// manifests are inserted, ids in both are updated, ids only in the store are
// deleted. Each record is written on its own; an insert that loses a race to
// another writer is discarded. Failures of individual records do not stop
// the pass and are returned joined.
func Reconcile(ctx context.Context, manifests []models.ApplicationManifest, store ApplicationStore) (ReconcileResult, error) {
	var result ReconcileResult

	records, err := store.ListApplications(ctx)
	if err != nil {
		return result, fmt.Errorf("list applications: %w", err)
	}
	persisted := make(map[string]bool, len(records))
	for _, rec := range records {
		persisted[rec.AppID] = true
	}

	var errs []error
	wanted := make(map[string]bool, len(manifests))
	for _, m := range manifests {
		if wanted[m.ID] {
			log.Printf("[Reconcile] Duplicate application id %s in %s, keeping first", m.ID, m.Filename)
			continue
		}
		wanted[m.ID] = true

		rec := models.ApplicationRecord{AppID: m.ID, Name: m.Name, Description: m.Description}
		if persisted[m.ID] {
			if err := store.UpdateApplication(ctx, rec); err != nil {
				errs = append(errs, fmt.Errorf("update %s: %w", m.ID, err))
				continue
			}
			result.Updated = append(result.Updated, m.ID)
			continue
		}

		err := store.InsertApplication(ctx, rec)
		if errors.Is(err, ErrAppExists) {
			log.Printf("[Reconcile] %s inserted concurrently, discarding", m.ID)
			result.Discarded = append(result.Discarded, m.ID)
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("insert %s: %w", m.ID, err))
			continue
		}
		result.Inserted = append(result.Inserted, m.ID)
	}

	var stale []string
	for id := range persisted {
		if !wanted[id] {
			stale = append(stale, id)
		}
	}
	sort.Strings(stale)
	for _, id := range stale {
		if err := store.DeleteApplication(ctx, id); err != nil {
			errs = append(errs, fmt.Errorf("delete %s: %w", id, err))
			continue
		}
		result.Deleted = append(result.Deleted, id)
	}

	log.Printf("[Reconcile] inserted=%d updated=%d deleted=%d discarded=%d failed=%d",
		len(result.Inserted), len(result.Updated), len(result.Deleted), len(result.Discarded), len(errs))
	return result, errors.Join(errs...)
}

// ApplicationService is the SQL-backed ApplicationStore and the per-user view
// of the manifest catalog.
type ApplicationService struct {
	db      *database.DB
	catalog *manifest.Catalog
}

// NewApplicationService creates a new ApplicationService instance.
func NewApplicationService(db *database.DB, catalog *manifest.Catalog) *ApplicationService {
	return &ApplicationService{db: db, catalog: catalog}
}

// Catalog returns the manifest catalog the service mirrors.
func (s *ApplicationService) Catalog() *manifest.Catalog {
	return s.catalog
}

// Sync loads the manifest directory and reconciles the applications table with it.
func (s *ApplicationService) Sync(ctx context.Context) (ReconcileResult, error) {
	manifests, err := s.catalog.LoadAll()
	if err != nil {
		return ReconcileResult{}, err
	}
	return Reconcile(ctx, manifests, s)
}

func (s *ApplicationService) ListApplications(ctx context.Context) ([]models.ApplicationRecord, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, app_id, name, description FROM applications ORDER BY app_id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []models.ApplicationRecord{}
	for rows.Next() {
		var rec models.ApplicationRecord
		if err := rows.Scan(&rec.ID, &rec.AppID, &rec.Name, &rec.Description); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *ApplicationService) InsertApplication(ctx context.Context, rec models.ApplicationRecord) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO applications (app_id, name, description) VALUES (?, ?, ?)",
		rec.AppID, rec.Name, rec.Description,
	)
	if database.IsUniqueViolation(err) {
		return ErrAppExists
	}
	return err
}

func (s *ApplicationService) UpdateApplication(ctx context.Context, rec models.ApplicationRecord) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE applications SET name = ?, description = ? WHERE app_id = ?",
		rec.Name, rec.Description, rec.AppID,
	)
	return err
}

func (s *ApplicationService) DeleteApplication(ctx context.Context, appID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM applications WHERE app_id = ?", appID)
	return err
}

// ListForUser returns the manifests visible to user: every manifest for an
// admin, otherwise only those assigned to the user.
func (s *ApplicationService) ListForUser(user *models.User) ([]models.ApplicationManifest, error) {
	manifests, err := s.catalog.LoadAll()
	if err != nil {
		return nil, err
	}
	if user.IsAdmin() {
		return manifests, nil
	}

	assigned := make(map[string]bool, len(user.Applications))
	for _, id := range user.Applications {
		assigned[id] = true
	}

	visible := []models.ApplicationManifest{}
	for _, m := range manifests {
		if assigned[m.ID] {
			visible = append(visible, m)
		}
	}
	return visible, nil
}

// FindForUser returns the manifest with id if user may use it.
func (s *ApplicationService) FindForUser(user *models.User, id string) (models.ApplicationManifest, error) {
	manifests, err := s.ListForUser(user)
	if err != nil {
		return models.ApplicationManifest{}, err
	}
	for _, m := range manifests {
		if m.ID == id {
			return m, nil
		}
	}
	return models.ApplicationManifest{}, fmt.Errorf("%w: %s", ErrAppNotFound, id)
}
