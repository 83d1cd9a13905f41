package user

import (
	"time"

	"github.com/wichananm65/referral-service/internal/referral"
)

const DefaultRole = "user"

type User struct {
	ID            string        `json:"id"`
	FullName      string        `json:"fullName" validate:"required"`
	Username      string        `json:"username" validate:"required"`
	Email         string        `json:"email" validate:"required"`
	Phone         string        `json:"phone" validate:"required"`
	Password      string        `json:"password,omitempty" validate:"required"`
	Role          string        `json:"role"`
	ReferralCode  string        `json:"referralCode" validate:"required"`
	Referrer      *string       `json:"referrer,omitempty"`
	ReferralTree  referral.Tree `json:"referralTree"`
	DeedEnergy    float64       `json:"deedEnergy"`
	WalletAddress *string       `json:"walletAddress,omitempty"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

// Patch is a partial update; nil fields are left untouched.
type Patch struct {
	FullName      *string  `json:"fullName,omitempty"`
	Username      *string  `json:"username,omitempty"`
	Email         *string  `json:"email,omitempty"`
	Phone         *string  `json:"phone,omitempty"`
	Password      *string  `json:"password,omitempty"`
	Role          *string  `json:"role,omitempty"`
	DeedEnergy    *float64 `json:"deedEnergy,omitempty"`
	WalletAddress *string  `json:"walletAddress,omitempty"`
}

func (p Patch) apply(u *User) {
	if p.FullName != nil {
		u.FullName = *p.FullName
	}
	if p.Username != nil {
		u.Username = *p.Username
	}
	if p.Email != nil {
		u.Email = *p.Email
	}
	if p.Phone != nil {
		u.Phone = *p.Phone
	}
	if p.Password != nil {
		u.Password = *p.Password
	}
	if p.Role != nil {
		u.Role = *p.Role
	}
	if p.DeedEnergy != nil {
		u.DeedEnergy = *p.DeedEnergy
	}
	if p.WalletAddress != nil {
		u.WalletAddress = p.WalletAddress
	}
}

func sanitizeUser(user User) User {
	user.Password = ""
	if user.ReferralTree == nil {
		user.ReferralTree = referral.Tree{}
	}
	return user
}
