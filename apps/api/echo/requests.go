package echoapi

import (
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/college/core"
)

type (
	LoginRequest struct {
		Email    string `json:"email" form:"email" validate:"required"`
		Password string `json:"password" form:"password" validate:"required"`
		Next     string `json:"next" form:"next" query:"next"`
	}

	PasswordResetRequest struct {
		Email string `json:"email" validate:"required,email"`
	}

	SuccessResponse struct {
		Success string `json:"success"`
	}

	loginView struct {
		Error    string `json:"error,omitempty"`
		Kind     string `json:"kind,omitempty"`
		Checking bool   `json:"checking"`
		Next     string `json:"next,omitempty"`
	}
)

func (lr *LoginRequest) Validate(validate *validator.Validate) error {
	lr.Email = core.CleanString(lr.Email, true)
	return validate.Struct(lr)
}

func (pr *PasswordResetRequest) Validate(validate *validator.Validate) error {
	pr.Email = core.CleanString(pr.Email, true)
	return validate.Struct(pr)
}
