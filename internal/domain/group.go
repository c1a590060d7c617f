package domain

// Group represents a named group that accounts and other groups can
// belong to. Group nesting forms a directed graph that may contain
// cycles; reachability is computed by the group service.
type Group struct {
	// Idx is the unique identifier for the group.
	Idx int64 `json:"idx"`

	// Name is the unique group name.
	Name string `json:"name"`

	// Description is an optional free-form description.
	Description string `json:"description"`
}

// GroupMembership is a direct membership of an account in a group.
// The pair is conceptually unique but the store does not dedupe:
// duplicate rows are allowed and all of them count.
type GroupMembership struct {
	// UserIdx is the member account.
	UserIdx int64 `json:"user_idx"`

	// GroupIdx is the group the account belongs to.
	GroupIdx int64 `json:"group_idx"`
}

// GroupRelation is an "is-member-of" edge between two groups:
// the group GroupIdx is a member of the group ParentIdx.
type GroupRelation struct {
	GroupIdx  int64 `json:"group_idx"`
	ParentIdx int64 `json:"parent_idx"`
}

// Permission is a named capability that host groups can require.
type Permission struct {
	// Idx is the unique identifier for the permission.
	Idx int64 `json:"idx"`

	// Name is the unique permission name.
	Name string `json:"name"`
}
