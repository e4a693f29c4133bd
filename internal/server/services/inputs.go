package services

import (
	"fmt"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

const (
	minPasswordLen = 6
	maxPasswordLen = 128
	maxNameLen     = 100
)

var passwordRules = []validation.Rule{validation.Required, validation.Length(minPasswordLen, maxPasswordLen)}

type SignUpInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

func (in SignUpInput) Validate() error {
	return invalid(validation.ValidateStruct(&in,
		validation.Field(&in.Email, validation.Required, is.Email),
		validation.Field(&in.Password, passwordRules...),
		validation.Field(&in.Name, validation.Required, validation.Length(1, maxNameLen)),
	))
}

type SignInInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate only checks presence. Length rules would tell a caller something
// about accounts created under older rules.
func (in SignInInput) Validate() error {
	return invalid(validation.ValidateStruct(&in,
		validation.Field(&in.Email, validation.Required),
		validation.Field(&in.Password, validation.Required),
	))
}

// UpdateProfileInput lists the fields a user may change on their own record.
type UpdateProfileInput struct {
	DisplayName *string `json:"display_name"`
	Email       *string `json:"email"`
}

func (in UpdateProfileInput) Validate() error {
	if in.DisplayName == nil && in.Email == nil {
		return fmt.Errorf("%w: nothing to update", common.ErrValidation)
	}
	return invalid(validation.ValidateStruct(&in,
		validation.Field(&in.DisplayName, validation.NilOrNotEmpty, validation.Length(1, maxNameLen)),
		validation.Field(&in.Email, validation.NilOrNotEmpty, is.Email),
	))
}

type ChangePasswordInput struct {
	Current string `json:"current_password"`
	New     string `json:"new_password"`
}

func (in ChangePasswordInput) Validate() error {
	return invalid(validation.ValidateStruct(&in,
		validation.Field(&in.Current, validation.Required),
		validation.Field(&in.New, passwordRules...),
	))
}

type ResetPasswordInput struct {
	UserID      string `json:"user_id"`
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

func (in ResetPasswordInput) Validate() error {
	return invalid(validation.ValidateStruct(&in,
		validation.Field(&in.UserID, validation.Required),
		validation.Field(&in.Token, validation.Required),
		validation.Field(&in.NewPassword, passwordRules...),
	))
}

func validateEmail(email string) error {
	return invalid(validation.Validate(email, validation.Required, is.Email))
}

// invalid tags a validation failure with common.ErrValidation and keeps the
// field message so the caller can correct the input.
func invalid(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s", common.ErrValidation, err)
}
