package entity

import (
	"context"
	"strconv"
)

// ContactGroups lists the group memberships of a contact.
func (s *Service) ContactGroups(ctx context.Context, contactID int64) (*Collection, error) {
	return s.List(ctx, ContactGroup, Contact.URI+strconv.FormatInt(contactID, 10)+"/groups/")
}

// AddToGroup adds a contact to a group.
func (s *Service) AddToGroup(ctx context.Context, contactID, groupID int64) error {
	_, err := s.t.Post(ctx, Contact.URI+"addtogroup/", map[string]any{
		"contact_id": contactID,
		"group_id":   groupID,
	})
	return err
}
