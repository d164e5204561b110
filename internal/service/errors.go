package service

import (
	"errors"
	"strings"

	"github.com/dmehra2102/prod-golang-projects/medlink/internal/domain"
	"github.com/google/uuid"
)

var ErrForbidden = errors.New("forbidden: insufficient permissions")

type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Fields, "; ")
}

// orNil returns nil when no field failed.
func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

func (e *ValidationError) add(field string) {
	e.Fields = append(e.Fields, field)
}

// Caller is the authenticated actor of an operation.
type Caller struct {
	UserID    uuid.UUID
	Role      domain.Role
	Name      string
	IP        string
	RequestID string
}

func (c Caller) Is(role domain.Role) bool {
	return c.Role == role
}

type AuditEntry struct {
	UserID       uuid.UUID
	UserRole     domain.Role
	Action       domain.AuditAction
	ResourceType string
	ResourceID   string
	IPAddress    string
	RequestID    string
	Changes      string
}

func auditFor(c Caller, action domain.AuditAction, resourceType, resourceID, changes string) AuditEntry {
	return AuditEntry{
		UserID:       c.UserID,
		UserRole:     c.Role,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		IPAddress:    c.IP,
		RequestID:    c.RequestID,
		Changes:      changes,
	}
}
