// Package domain contains the core types shared by the session store, the
// request orchestrators and the backend client.
package domain

// Identity is the identity provider's record of a signed-in user.
// It is owned by the provider; consumers hold a read-only snapshot.
type Identity struct {
	// ID is the provider's stable unique identifier for the user.
	ID string `json:"id"`
	// DisplayName is optional.
	DisplayName string `json:"display_name,omitempty"`
	// Email is optional.
	Email string `json:"email,omitempty"`
}

// Label returns the best human-readable name for the identity:
// the display name, then the email, then the ID.
func (i *Identity) Label() string {
	if i == nil {
		return ""
	}
	if i.DisplayName != "" {
		return i.DisplayName
	}
	if i.Email != "" {
		return i.Email
	}
	return i.ID
}

// Session is the process-wide authentication state.
//
// While IsInitializing is true a nil Identity only means the provider has not
// reported yet; it must not be read as "signed out".
type Session struct {
	Identity       *Identity
	IsInitializing bool
}

// SignedIn reports whether the session holds a confirmed identity.
func (s Session) SignedIn() bool {
	return !s.IsInitializing && s.Identity != nil
}

// SignedOut reports whether the provider has confirmed there is no identity.
func (s Session) SignedOut() bool {
	return !s.IsInitializing && s.Identity == nil
}

// UserID returns the identity's ID, or "" when there is none.
func (s Session) UserID() string {
	if s.Identity == nil {
		return ""
	}
	return s.Identity.ID
}
