package domain

import "time"

// Session groups the refresh tokens of one (user, platform, device) triple.
// Exactly one row exists per triple: repeat logins from the same device
// update last_auth_time rather than creating a sibling.
type Session struct {
	ID           string
	UserID       string
	PlatformID   string
	DeviceID     string
	IsMobile     bool
	LastAuthTime time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
