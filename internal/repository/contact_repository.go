package repository

import (
	"context"
	"errors"

	"awscqrs/internal/domain/contact"
	awscqrs_errors "awscqrs/pkg/errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PostgresContactRepository struct {
	db *gorm.DB
}

func NewContactRepository(db *gorm.DB) ContactRepository {
	return &PostgresContactRepository{db: db}
}

// Upsert writes the contact keyed by id, replacing name and completed.
// Writing the same notification twice leaves the same row.
func (r *PostgresContactRepository) Upsert(ctx context.Context, c contact.Contact) error {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "completed", "owner", "updated_at"}),
		}).
		Create(&c)
	return res.Error
}

func (r *PostgresContactRepository) GetByID(ctx context.Context, id string) (contact.Contact, error) {
	var c contact.Contact
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return contact.Contact{}, awscqrs_errors.ErrNotFound
		}
		return contact.Contact{}, err
	}
	return c, nil
}

func (r *PostgresContactRepository) List(ctx context.Context, owner string, limit int) ([]contact.Contact, error) {
	var contacts []contact.Contact
	q := r.db.WithContext(ctx).Model(&contact.Contact{})
	if owner != "" {
		q = q.Where("owner = ?", owner)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Order("updated_at DESC").Find(&contacts).Error; err != nil {
		return nil, err
	}
	return contacts, nil
}
