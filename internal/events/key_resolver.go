package events

import (
	"fmt"

	awscqrs_errors "awscqrs/pkg/errors"
)

// KeyResolver determines the ordering and deduplication keys of a notification.
type KeyResolver interface {
	GroupID(n Notification) (string, error)
	DedupeID(n Notification) (string, error)
}

// OwnerKeyResolver groups by owner and deduplicates by RequestId, falling
// back to the event id when no RequestId was recorded.
type OwnerKeyResolver struct{}

func NewOwnerKeyResolver() *OwnerKeyResolver {
	return &OwnerKeyResolver{}
}

func (r *OwnerKeyResolver) GroupID(n Notification) (string, error) {
	owner := n.Owner()
	if owner == "" {
		return "", fmt.Errorf("%w: owner is missing", awscqrs_errors.ErrMalformedRecord)
	}
	return owner, nil
}

func (r *OwnerKeyResolver) DedupeID(n Notification) (string, error) {
	if requestID := n.RequestID(); requestID != "" {
		return requestID, nil
	}
	if id := n.ID(); id != "" {
		return id, nil
	}
	return "", fmt.Errorf("%w: neither RequestId nor id present", awscqrs_errors.ErrMalformedRecord)
}
