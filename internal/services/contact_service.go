package services

import (
	"context"
	"errors"

	"awscqrs/internal/domain/contact"
	"awscqrs/internal/repository"
	awscqrs_errors "awscqrs/pkg/errors"
	"awscqrs/pkg/logger"

	"go.uber.org/zap"
)

type ContactCache interface {
	GetContact(ctx context.Context, id string) (*contact.Contact, error)
	SetContact(ctx context.Context, c contact.Contact) error
}

const maxContactPage = 100

// ContactService answers reads from the contact projection. The cache is
// optional and only ever a shortcut in front of the store.
type ContactService struct {
	repo  repository.ContactRepository
	cache ContactCache
	log   *logger.Logger
}

func NewContactService(repo repository.ContactRepository, cache ContactCache, log *logger.Logger) *ContactService {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &ContactService{repo: repo, cache: cache, log: log}
}

// GetByID returns a contact the caller may see. Contacts of other owners look
// like missing ones unless the caller is an admin.
func (s *ContactService) GetByID(ctx context.Context, claims Claims, id string) (contact.Contact, error) {
	if id == "" {
		return contact.Contact{}, awscqrs_errors.IncorrectRequestError("contact id is missing")
	}

	c, err := s.lookup(ctx, id)
	if err != nil {
		if errors.Is(err, awscqrs_errors.ErrNotFound) {
			return contact.Contact{}, awscqrs_errors.NotFoundError("contact " + id + " not found")
		}
		return contact.Contact{}, err
	}
	if c.Owner != "" && c.Owner != claims.UserID() && !claims.IsAdmin() {
		return contact.Contact{}, awscqrs_errors.NotFoundError("contact " + id + " not found")
	}
	return c, nil
}

func (s *ContactService) lookup(ctx context.Context, id string) (contact.Contact, error) {
	if s.cache != nil {
		cached, err := s.cache.GetContact(ctx, id)
		if err != nil {
			s.log.WarnCtx(ctx, "contact cache read failed", zap.String("contact_id", id), zap.Error(err))
		} else if cached != nil {
			return *cached, nil
		}
	}

	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return contact.Contact{}, err
	}
	if s.cache != nil {
		if err := s.cache.SetContact(ctx, c); err != nil {
			s.log.WarnCtx(ctx, "contact cache fill failed", zap.String("contact_id", id), zap.Error(err))
		}
	}
	return c, nil
}

// List returns the caller's contacts, most recently updated first. Admins
// may list another owner, or everyone with owner "*".
func (s *ContactService) List(ctx context.Context, claims Claims, owner string, limit int) ([]contact.Contact, error) {
	switch {
	case owner == "":
		owner = claims.UserID()
	case owner != claims.UserID() && !claims.IsAdmin():
		return nil, awscqrs_errors.ForbiddenError("cannot list contacts of another owner")
	case owner == "*":
		owner = ""
	}
	if limit <= 0 || limit > maxContactPage {
		limit = maxContactPage
	}
	return s.repo.List(ctx, owner, limit)
}
