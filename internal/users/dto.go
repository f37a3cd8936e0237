package users

import "github.com/petrofield/fieldops/internal/shared"

// CreateUserRequest is the body of POST /users.
type CreateUserRequest struct {
	Name     string      `json:"name" validate:"required,max=120"`
	Email    string      `json:"email" validate:"required,email,max=190"`
	Password string      `json:"password" validate:"required,min=8,max=72"`
	Role     shared.Role `json:"role" validate:"required,oneof=Admin Manager User"`
	Status   string      `json:"status" validate:"omitempty,oneof=Active Inactive"`
	Avatar   *string     `json:"avatar" validate:"omitempty,max=500"`
}

// UpdateUserRequest is the body of PUT /users/{id}. Absent fields are kept.
type UpdateUserRequest struct {
	Name     *string      `json:"name" validate:"omitempty,max=120"`
	Email    *string      `json:"email" validate:"omitempty,email,max=190"`
	Password *string      `json:"password" validate:"omitempty,min=8,max=72"`
	Role     *shared.Role `json:"role" validate:"omitempty,oneof=Admin Manager User"`
	Status   *string      `json:"status" validate:"omitempty,oneof=Active Inactive"`
	Avatar   *string      `json:"avatar" validate:"omitempty,max=500"`
}
