package models

import (
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Role enum
type Role string

const (
	RolePatient Role = "patient"
	RoleAdmin   Role = "admin"
)

// Valid reports whether r is one of the known principal roles.
func (r Role) Valid() bool {
	return r == RolePatient || r == RoleAdmin
}

// Principal is an account that can authenticate: a patient or a clinic admin.
// Both variants share this shape but live in separate tables/collections, so
// email uniqueness is enforced per variant only.
type Principal struct {
	BaseModel `bson:",inline"`
	Name      string `gorm:"size:255;not null" json:"name" bson:"name"`
	Email     string `gorm:"uniqueIndex;size:255;not null" json:"email" bson:"email"`
	Phone     string `gorm:"size:50;not null" json:"phone" bson:"phone"`
	Password  string `gorm:"size:255;not null" json:"-" bson:"password"` // Never send password in JSON
	PhotoURL  string `gorm:"size:1024" json:"photoUrl,omitempty" bson:"photoUrl,omitempty"`
	Role      Role   `gorm:"-" json:"role" bson:"-"`
}

// PrincipalView represents the principal data that is safe to send in API responses.
type PrincipalView struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	PhotoURL  string    `json:"photoUrl,omitempty"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NormalizeEmail lower-cases and trims an email address. Every write and
// lookup goes through it, which makes uniqueness case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SetPassword hashes a password and sets it on the principal
func (p *Principal) SetPassword(password string) error {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	p.Password = string(hashedPassword)
	return nil
}

// CheckPassword compares a password with the principal's hashed password
func (p *Principal) CheckPassword(password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(p.Password), []byte(password))
	return err == nil
}

// Sanitize creates a PrincipalView, excluding the credential.
func (p *Principal) Sanitize() PrincipalView {
	return PrincipalView{
		ID:        p.ID,
		Name:      p.Name,
		Email:     p.Email,
		Phone:     p.Phone,
		PhotoURL:  p.PhotoURL,
		Role:      p.Role,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

// SanitizeAll converts a slice of principals into response views.
func SanitizeAll(principals []*Principal) []PrincipalView {
	views := make([]PrincipalView, len(principals))
	for i, p := range principals {
		views[i] = p.Sanitize()
	}
	return views
}
