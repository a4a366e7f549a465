package store

type Session struct {
	ID  int32
	UID string

	// CreatorID is the owning user. The column is nullable in the schema
	// for migration reasons, but every session created through the API
	// carries an owner; an ownerless row is never returned by a scoped
	// list.
	CreatorID int32
	Title     string
	CreatedTs int64
	UpdatedTs int64
}

type FindSession struct {
	ID        *int32
	UID       *string
	CreatorID *int32

	// Limit caps the number of sessions returned. Zero means unlimited.
	Limit *int
}

type UpdateSession struct {
	ID int32

	Title     *string
	UpdatedTs *int64
}

type DeleteSession struct {
	ID int32
}
