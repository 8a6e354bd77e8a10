package recordstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"gorm.io/gorm"

	"github.com/wardenbot/warden/moderation"
)

type InfractionRow struct {
	ID         int64  `gorm:"primaryKey;autoIncrement"`
	Type       string `gorm:"index;not null"`
	UserID     int64  `gorm:"index;not null"`
	ActorID    int64  `gorm:"index;not null"`
	Reason     string
	InsertedAt time.Time `gorm:"not null"`
	ExpiresAt  *time.Time
	Active     bool `gorm:"index;not null"`
	Hidden     bool `gorm:"not null"`
}

func (InfractionRow) TableName() string {
	return "infractions"
}

func (r *InfractionRow) infraction() moderation.Infraction {
	return moderation.Infraction{
		ID:        r.ID,
		Kind:      moderation.Kind(r.Type),
		Subject:   snowflake.ID(r.UserID),
		Actor:     snowflake.ID(r.ActorID),
		Reason:    r.Reason,
		CreatedAt: r.InsertedAt,
		ExpiresAt: r.ExpiresAt,
		Active:    r.Active,
		Hidden:    r.Hidden,
	}
}

// Record store backed by a SQL database (sqlite or postgres).
type GormStore struct {
	db *gorm.DB
}

var _ RecordStore = (*GormStore)(nil)

func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&InfractionRow{}); err != nil {
		return nil, fmt.Errorf("migrating infractions table: %w", err)
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) Create(ctx context.Context, n moderation.NewInfraction) (*moderation.Infraction, error) {
	if err := n.Validate(); err != nil {
		return nil, err
	}
	row := InfractionRow{
		Type:       n.Kind.String(),
		UserID:     int64(n.Subject),
		ActorID:    int64(n.Actor),
		Reason:     n.Reason,
		InsertedAt: time.Now().UTC(),
		ExpiresAt:  n.ExpiresAt,
		Active:     n.Active(),
		Hidden:     n.Hidden,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return nil, fmt.Errorf("creating %s infraction: %w", n.Kind, err)
	}
	inf := row.infraction()
	return &inf, nil
}

func (s *GormStore) Get(ctx context.Context, id int64) (*moderation.Infraction, error) {
	var row InfractionRow
	err := s.db.WithContext(ctx).First(&row, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, moderation.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	inf := row.infraction()
	return &inf, nil
}

func (s *GormStore) List(ctx context.Context, f moderation.Filter) ([]moderation.Infraction, error) {
	q := s.db.WithContext(ctx).Model(&InfractionRow{})
	if f.Active != nil {
		q = q.Where("active = ?", *f.Active)
	}
	if f.Kind != "" {
		q = q.Where("type = ?", f.Kind.String())
	}
	if f.Subject != 0 {
		q = q.Where("user_id = ?", int64(f.Subject))
	}
	if f.Actor != 0 {
		q = q.Where("actor_id = ?", int64(f.Actor))
	}
	// sqlite has no REGEXP without an extension, so the pattern is matched here
	var search *regexp.Regexp
	if f.Search != "" {
		re, err := moderation.SearchPattern(f.Search)
		if err != nil {
			return nil, err
		}
		search = re
	}
	if f.NewestFirst {
		q = q.Order("inserted_at desc").Order("id desc")
	} else {
		q = q.Order("id asc")
	}

	var rows []InfractionRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]moderation.Infraction, 0, len(rows))
	for i := range rows {
		if search != nil && !search.MatchString(rows[i].Reason) {
			continue
		}
		out = append(out, rows[i].infraction())
	}
	return out, nil
}

func (s *GormStore) Update(ctx context.Context, id int64, u moderation.Update) (*moderation.Infraction, error) {
	updates := map[string]any{}
	if u.SetExpiry {
		if u.ExpiresAt == nil {
			updates["expires_at"] = gorm.Expr("NULL")
		} else {
			updates["expires_at"] = u.ExpiresAt.UTC()
		}
	}
	if u.Reason != nil {
		updates["reason"] = *u.Reason
	}
	if len(updates) > 0 {
		res := s.db.WithContext(ctx).Model(&InfractionRow{}).Where("id = ?", id).Updates(updates)
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 0 {
			return nil, moderation.ErrNotFound
		}
	}
	return s.Get(ctx, id)
}

func (s *GormStore) Deactivate(ctx context.Context, id int64) (*moderation.Infraction, error) {
	res := s.db.WithContext(ctx).Model(&InfractionRow{}).
		Where("id = ? AND active = ?", id, true).
		Update("active", false)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		// distinguish a missing row from one which was already inactive
		if _, err := s.Get(ctx, id); err != nil {
			return nil, err
		}
		return nil, moderation.ErrNotActive
	}
	return s.Get(ctx, id)
}

func (s *GormStore) Delete(ctx context.Context, id int64) error {
	res := s.db.WithContext(ctx).Delete(&InfractionRow{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return moderation.ErrNotFound
	}
	return nil
}
