package models

import "time"

// User is the directory view of an account. Credentials live with the auth collaborator.
type User struct {
	ID         string     `db:"id" json:"id"`
	FullName   string     `db:"full_name" json:"fullName"`
	Email      string     `db:"email" json:"email"`
	ProfilePic string     `db:"profile_pic" json:"profilePic"`
	LastSeen   *time.Time `db:"last_seen" json:"lastSeen"`
	CreatedAt  time.Time  `db:"created_at" json:"createdAt"`
}
