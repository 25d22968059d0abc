package redis

import (
	"context"
	"strconv"

	"github.com/MrSnakeDoc/nodekeeper/internal/domain"
)

// LookupAssignment retrieves the node assigned to (email, service)
func (s *Store) LookupAssignment(ctx context.Context, email, service string) (domain.Assignment, error) {
	fields, err := s.client.HGetAll(ctx, UserKey(email, service)).Result()
	if err != nil {
		return domain.Assignment{}, s.fail("lookup assignment", service, err)
	}
	if len(fields) == 0 {
		return domain.Assignment{}, domain.ErrNotFound
	}

	tos := domain.TosUnsigned
	if fields["tos_signed"] == "1" {
		tos = domain.TosSigned
	}

	return domain.Assignment{
		Email:   email,
		Service: service,
		UID:     atoi64(fields["uid"]),
		Node:    fields["node"],
		Tos:     tos,
	}, nil
}

// CreateAssignment inserts the assignment unless one already exists
func (s *Store) CreateAssignment(ctx context.Context, email, service, node string, tos domain.TosState) (int64, error) {
	uid, err := createAssignmentScript.Run(ctx, s.client,
		[]string{UserKey(email, service), KeyUIDCounter, UsersKey(service)},
		node,
		strconv.Itoa(int(tos)),
		email,
	).Int64()
	if err != nil {
		return 0, s.fail("create assignment", service, err)
	}
	if uid < 0 {
		return 0, domain.ErrDuplicateAssignment
	}
	return uid, nil
}

// SetTosFlag updates the ToS flag of one user, or of the whole service when email is empty
func (s *Store) SetTosFlag(ctx context.Context, service string, tos domain.TosState, email string) error {
	flag := strconv.Itoa(int(tos))

	var err error
	if email != "" {
		err = setTosOneScript.Run(ctx, s.client, []string{UserKey(email, service)}, flag).Err()
	} else {
		err = setTosAllScript.Run(ctx, s.client, []string{UsersKey(service)}, UserKeyPrefix(service), flag).Err()
	}
	if err != nil {
		return s.fail("set tos flag", service, err)
	}
	return nil
}
