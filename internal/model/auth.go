package model

type Role string

const (
	RoleStudent Role = "student"
	RoleAdmin   Role = "admin"
)

type AuthSession struct {
	ID     string `json:"id"`
	UserID string `json:"userId"`
	Role   Role   `json:"role"`
	Ctime  int64  `json:"ctime"`
	Expire int64  `json:"expire"`
}

type LoginAttempt struct {
	ClientKey   string `json:"clientKey"`
	Failures    int    `json:"failures"`
	LockedUntil int64  `json:"lockedUntil"`
	Mtime       int64  `json:"mtime"`
}
