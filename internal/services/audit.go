package services

import (
	"context"
	"database/sql"
	"log"

	"github.com/pandeptwidyaop/hpc-console/internal/database"
	"github.com/pandeptwidyaop/hpc-console/internal/models"
)

const (
	defaultAuditLimit = 50
	maxAuditLimit     = 500
)

// AuditService records who changed what through the console.
type AuditService struct {
	db *database.DB
}

// NewAuditService creates a new AuditService instance.
func NewAuditService(db *database.DB) *AuditService {
	return &AuditService{db: db}
}

// Log records an entry. Failures are logged and swallowed so a broken audit
// table never fails the request being audited.
func (s *AuditService) Log(ctx context.Context, entry models.AuditLog) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (user_id, username, action, resource_type, resource_id, ip_address, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, entry.UserID, entry.Username, entry.Action, entry.ResourceType, entry.ResourceID, entry.IPAddress, entry.Status)
	if err != nil {
		log.Printf("[Audit] Failed to record %s %s/%s: %v", entry.Action, entry.ResourceType, entry.ResourceID, err)
	}
}

// List returns entries newest first.
func (s *AuditService) List(ctx context.Context, limit, offset int) ([]models.AuditLog, error) {
	if limit <= 0 {
		limit = defaultAuditLimit
	}
	if limit > maxAuditLimit {
		limit = maxAuditLimit
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, username, action, resource_type, resource_id, ip_address, status, created_at
		FROM audit_logs
		ORDER BY id DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := []models.AuditLog{}
	for rows.Next() {
		var entry models.AuditLog
		var userID sql.NullInt64
		if err := rows.Scan(&entry.ID, &userID, &entry.Username, &entry.Action, &entry.ResourceType,
			&entry.ResourceID, &entry.IPAddress, &entry.Status, &entry.CreatedAt); err != nil {
			return nil, err
		}
		if userID.Valid {
			entry.UserID = &userID.Int64
		}
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}
