package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	UserStatusActive    = "active"
	UserStatusSuspended = "suspended"
)

type Profile struct {
	Firstname string `json:"firstname" bson:"firstname"`
	Lastname  string `json:"lastname" bson:"lastname"`
	Phone     string `json:"phone,omitempty" bson:"phone,omitempty"`
}

type User struct {
	ID            primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Email         string             `json:"email" bson:"email"`
	Password      string             `json:"-" bson:"password,omitempty"`
	GoogleID      string             `json:"-" bson:"googleId,omitempty"`
	Profile       Profile            `json:"profile" bson:"profile"`
	Role          []string           `json:"role" bson:"role"`
	Status        string             `json:"status" bson:"status"`
	EmailVerified bool               `json:"emailVerified" bson:"emailVerified"`
	PhoneVerified bool               `json:"phoneVerified" bson:"phoneVerified"`
	RefreshToken  string             `json:"-" bson:"refresh_token,omitempty"`
	RefreshExpiry time.Time          `json:"-" bson:"refresh_expiry,omitempty"`
	LastLogin     time.Time          `json:"lastLogin,omitempty" bson:"last_login,omitempty"`
	CreatedAt     time.Time          `json:"createdAt" bson:"createdAt"`
	UpdatedAt     time.Time          `json:"updatedAt" bson:"updatedAt"`
}

func (u *User) IsAdmin() bool {
	for _, r := range u.Role {
		if r == "admin" {
			return true
		}
	}
	return false
}
