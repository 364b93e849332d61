package identity

import "time"

// Role classifies a user: staff members take customer conversations,
// customers open them.
type Role string

const (
	RoleStaffAdmin    Role = "staff_admin"
	RoleStaffMechanic Role = "staff_mechanic"
	RoleCustomer      Role = "customer"
)

// IsStaff reports whether the role is eligible for conversation assignment.
func (r Role) IsStaff() bool {
	return r == RoleStaffAdmin || r == RoleStaffMechanic
}

// Valid reports whether the role is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleStaffAdmin || r == RoleStaffMechanic || r == RoleCustomer
}

// CredentialKind names the lookup key a user can be resolved by.
type CredentialKind string

const (
	CredentialAPIKey   CredentialKind = "api_key"
	CredentialPhone    CredentialKind = "phone"
	CredentialTelegram CredentialKind = "telegram_id"
	CredentialUsername CredentialKind = "username"
)

// User is the durable identity record. Credential fields are optional, but
// at least one must be set so the user remains resolvable.
type User struct {
	ID          string
	Role        Role
	DisplayName string
	Username    string
	APIKey      string
	Phone       string
	TelegramID  string
	Online      bool
	LastActive  time.Time
	CreatedAt   time.Time
}

// Credentials returns the non-empty credential bindings of the user.
func (u User) Credentials() map[CredentialKind]string {
	creds := map[CredentialKind]string{}
	if u.APIKey != "" {
		creds[CredentialAPIKey] = u.APIKey
	}
	if u.Phone != "" {
		creds[CredentialPhone] = u.Phone
	}
	if u.TelegramID != "" {
		creds[CredentialTelegram] = u.TelegramID
	}
	if u.Username != "" {
		creds[CredentialUsername] = u.Username
	}
	return creds
}
