package models

import "strings"

// User is a registered member as seen through the identity service.
type User struct {
	ID        string  `json:"id" yaml:"id"`
	FirstName string  `json:"firstName" yaml:"first_name"`
	LastName  string  `json:"lastName" yaml:"last_name"`
	Email     string  `json:"email" yaml:"email"`
	Role      Role    `json:"role" yaml:"role"`
	Hours     float64 `json:"hours" yaml:"hours"`
}

// DisplayName joins first and last name.
func (u User) DisplayName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}
