package store

// RowStatus is the status of a row. An ARCHIVED user is deactivated and
// blocked from all authenticated operations.
type RowStatus string

const (
	Normal   RowStatus = "NORMAL"
	Archived RowStatus = "ARCHIVED"
)

func (r RowStatus) String() string {
	return string(r)
}

type User struct {
	ID  int32
	UID string

	Email    string
	Nickname string
	// PasswordHash is empty for accounts created through the external
	// identity provider.
	PasswordHash string
	// ExternalID is the identity provider's subject identifier.
	// Unique when present.
	ExternalID *string
	RowStatus  RowStatus
	CreatedTs  int64
	UpdatedTs  int64
}

type FindUser struct {
	ID         *int32
	UID        *string
	Email      *string
	ExternalID *string
	RowStatus  *RowStatus
}

type UpdateUser struct {
	ID int32

	Nickname     *string
	PasswordHash *string
	ExternalID   *string
	RowStatus    *RowStatus
	UpdatedTs    *int64
}

type DeleteUser struct {
	ID int32
}
