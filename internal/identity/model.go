package identity

import "time"

// Role is the capability level of a user.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// DefaultAvatar is assigned when a user registers without one.
const DefaultAvatar = "https://images.unsplash.com/photo-1542206395-9feb3edaa68f?q=80&w=400&auto=format&fit=crop"

// User represents a registered marketplace member. Clients and companions are
// both users; IsCompanion marks users who offer companion services.
type User struct {
	ID           int64
	Username     string
	PasswordHash []byte
	Nickname     string
	Avatar       string
	Role         Role
	IsCompanion  bool
	CreatedAt    time.Time
}

// Credentials request structure.
type Credentials struct {
	Username string
	Password string
}

// RegisterInput captures data required to create a user.
type RegisterInput struct {
	Username    string
	Password    string
	Nickname    string
	IsCompanion bool
}
