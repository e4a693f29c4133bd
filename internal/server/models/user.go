package models

import (
	"strings"
	"time"
)

// User is the stored identity record. PasswordDigest never leaves the
// server; hand out Profile instead.
type User struct {
	ID             string
	Email          string
	PasswordDigest string
	DisplayName    string
	IsActive       bool
	IsVerified     bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Profile is the outward view of a User.
type Profile struct {
	ID          string
	Email       string
	DisplayName string
	IsVerified  bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (u *User) Profile() Profile {
	return Profile{
		ID:          u.ID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		IsVerified:  u.IsVerified,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}

// ProfileUpdate names every field a user may change about themselves.
// Nil means "leave as is". The password is changed through its own flow.
type ProfileUpdate struct {
	DisplayName *string
	Email       *string
}

func (p ProfileUpdate) IsEmpty() bool {
	return p.DisplayName == nil && p.Email == nil
}

// NormalizeEmail is the canonical form used for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
