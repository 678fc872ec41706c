package store

import (
	"time"
)

// Ad type constants.
const (
	AdTypeImage = "image"
	AdTypeVideo = "video"
)

// User role constants.
const (
	RoleAdmin     = "admin"
	RoleDeveloper = "developer"
)

// Ad represents a creative record with display assets and a target URL.
// The ID is the caller-supplied key; creates upsert on it.
type Ad struct {
	ID         string     `gorm:"primaryKey" json:"id"`
	Title      string     `gorm:"not null" json:"title"`
	Type       string     `gorm:"not null;index" json:"type"`
	ImageURL   string     `json:"imageUrl,omitempty"`
	VideoURL   string     `json:"videoUrl,omitempty"`
	ClickURL   string     `gorm:"not null" json:"clickUrl"`
	Categories StringList `gorm:"type:text" json:"categories"`
	Enabled    bool       `json:"enabled"`
	ClientID   string     `gorm:"not null;index" json:"clientId"`
	CreatedAt  time.Time  `json:"-"`
	UpdatedAt  time.Time  `json:"-"`
}

// ClientConfig is the per-tenant policy restricting which ad types and
// categories may be served. An empty AllowedCategories list means no
// category restriction.
type ClientConfig struct {
	ClientID          string     `gorm:"primaryKey" json:"clientId"`
	AllowedTypes      StringList `gorm:"type:text" json:"allowedTypes"`
	AllowedCategories StringList `gorm:"type:text" json:"allowedCategories"`
	CreatedAt         time.Time  `json:"-"`
	UpdatedAt         time.Time  `json:"-"`
}

// DefaultClientConfig returns the policy applied when a client has not
// configured itself: both ad types allowed, no category restriction.
func DefaultClientConfig(clientID string) *ClientConfig {
	return &ClientConfig{
		ClientID:          clientID,
		AllowedTypes:      StringList{AdTypeImage, AdTypeVideo},
		AllowedCategories: StringList{},
	}
}

// User represents an authenticated account. The admin account is seeded
// from configuration; developer accounts are registered through the API
// and carry the client ids they may operate on.
type User struct {
	Username         string     `gorm:"primaryKey" json:"username"`
	PasswordHash     string     `gorm:"not null" json:"-"`
	Role             string     `gorm:"not null" json:"role"`
	AllowedClientIDs StringList `gorm:"type:text" json:"allowedClientIds"`
	CreatedAt        time.Time  `json:"-"`
	UpdatedAt        time.Time  `json:"-"`
}

// HasClientID reports whether id is already in the user's allowed set.
func (u *User) HasClientID(id string) bool {
	for _, existing := range u.AllowedClientIDs {
		if existing == id {
			return true
		}
	}

	return false
}
