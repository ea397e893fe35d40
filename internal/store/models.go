package store

import "time"

// Client is an API client allowed to request tokens for users of its
// authority.
type Client struct {
	ID          string
	SecretHash  string
	Authority   string
	Description string
	CreatedAt   time.Time
}

type Group struct {
	Name        string
	DisplayName string
	ReadPolicy  string
}

type GroupMember struct {
	Group     string
	Login     string
	Authority string
}

// WorldGroup is readable by every authenticated user.
const WorldGroup = "__world__"
