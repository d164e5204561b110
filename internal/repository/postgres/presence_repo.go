package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/dmehra2102/prod-golang-projects/medlink/internal/domain/presence"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PresenceRepository struct {
	db *gorm.DB
}

func NewPresenceRepository(db *gorm.DB) *PresenceRepository {
	return &PresenceRepository{db: db}
}

func (r *PresenceRepository) Get(ctx context.Context, doctorID uuid.UUID) (*presence.Presence, error) {
	var p presence.Presence
	err := r.db.WithContext(ctx).First(&p, "doctor_id = ?", doctorID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, presence.ErrPresenceNotFound
	}
	if err != nil {
		return nil, classify("getting presence", err)
	}
	return &p, nil
}

// keepInService leaves column unchanged while the stored row is in service.
func keepInService(column string) clause.Assignment {
	return clause.Assignment{
		Column: clause.Column{Name: column},
		Value: gorm.Expr(
			"CASE WHEN doctor_presence.status = ? THEN doctor_presence."+column+" ELSE EXCLUDED."+column+" END",
			presence.StatusInService,
		),
	}
}

func (r *PresenceRepository) Upsert(ctx context.Context, p *presence.Presence) (*presence.Presence, error) {
	row := p.Clone()
	row.ActiveRequestID = nil
	row.Version = 1
	if row.UpdatedAt.IsZero() {
		row.UpdatedAt = time.Now().UTC()
	}

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "doctor_id"}},
		DoUpdates: clause.Set{
			keepInService("status"),
			keepInService("active_request_id"),
			{Column: clause.Column{Name: "latitude"}, Value: gorm.Expr("EXCLUDED.latitude")},
			{Column: clause.Column{Name: "longitude"}, Value: gorm.Expr("EXCLUDED.longitude")},
			{Column: clause.Column{Name: "updated_at"}, Value: gorm.Expr("EXCLUDED.updated_at")},
			{Column: clause.Column{Name: "version"}, Value: gorm.Expr("doctor_presence.version + 1")},
		},
	}).Create(row).Error
	if err != nil {
		return nil, classify("upserting presence", err)
	}
	return r.Get(ctx, p.DoctorID)
}

func (r *PresenceRepository) CompareAndSetStatus(
	ctx context.Context,
	doctorID uuid.UUID,
	expected, next presence.Status,
	activeRequestID *uuid.UUID,
) (*presence.Presence, error) {
	res := r.db.WithContext(ctx).Model(&presence.Presence{}).
		Where("doctor_id = ? AND status = ?", doctorID, expected).
		Updates(map[string]any{
			"status":            next,
			"active_request_id": activeRequestID,
			"updated_at":        time.Now().UTC(),
			"version":           gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return nil, classify("updating presence status", res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := r.Get(ctx, doctorID); err != nil {
			return nil, err
		}
		return nil, presence.ErrPresenceConflict
	}
	return r.Get(ctx, doctorID)
}

func (r *PresenceRepository) List(ctx context.Context) ([]*presence.Presence, error) {
	var out []*presence.Presence
	if err := r.db.WithContext(ctx).Find(&out).Error; err != nil {
		return nil, classify("listing presence", err)
	}
	return out, nil
}
