package models

import (
	"time"
)

// User is a dashboard user. Connected accounts hang off users by ID;
// the user records themselves are provisioned by the auth service that
// issues the bearer tokens this API accepts.
type User struct {
	ID       string `gorm:"primaryKey"`
	Email    string `gorm:"uniqueIndex;not null"`
	FullName string

	CreatedAt time.Time
	UpdatedAt time.Time
}
