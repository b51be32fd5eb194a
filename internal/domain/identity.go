package domain

import "encoding/json"

// Identity is the authenticated user a connection or request acts for. It is
// produced once by the session authenticator and passed by value afterwards;
// its fields cannot be changed after construction.
type Identity struct {
	id   string
	name string
}

// NewIdentity binds a user id and display name into an Identity.
func NewIdentity(id, name string) Identity {
	return Identity{id: id, name: name}
}

// ID returns the stable user identifier.
func (i Identity) ID() string { return i.id }

// Name returns the display name captured when the identity was issued.
func (i Identity) Name() string { return i.name }

// IsZero reports whether the identity was never assigned.
func (i Identity) IsZero() bool { return i.id == "" }

func (i Identity) String() string { return i.id }

// MarshalJSON renders the identity as {"id": ..., "name": ...}.
func (i Identity) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID   string `json:"id"`
		Name string `json:"name,omitempty"`
	}{ID: i.id, Name: i.name})
}
