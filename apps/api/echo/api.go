package echoapi

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/college/core/access"
	"github.com/trezcool/college/core/identity"
	"github.com/trezcool/college/core/role"
	"github.com/trezcool/college/core/user"
	"github.com/trezcool/college/services/aigen"
)

const (
	msgPasswordResetSent = "If the email address supplied is associated with an active account on this system, " +
		"an email will arrive in your inbox shortly with instructions to reset your password."
	msgPasswordResetDone = "Password has been reset with the new password."
)

type (
	sessionView struct {
		Status    string              `json:"status"`
		Principal *identity.Principal `json:"principal,omitempty"`
		Role      string              `json:"role,omitempty"`
		Home      string              `json:"home,omitempty"`
		Error     *errorPanel         `json:"error,omitempty"`
		Redirect  string              `json:"redirect,omitempty"`
	}

	roleView struct {
		Value string `json:"value"`
		Title string `json:"title"`
		Home  string `json:"home"`
	}
)

func registerAuthAPI(v1 *echo.Group, deps ServerDeps, m *metrics) {
	h := authAPI{deps: deps, metrics: m}
	g := v1.Group("/auth")
	g.GET("/session", h.session)
	g.GET("/roles", h.roles, guardMiddleware(deps, m, apiResponder, role.All...))
	g.POST("/password-reset", h.resetPassword)
	g.POST("/password-reset-confirm", h.resetPasswordConfirm)
}

type authAPI struct {
	deps    ServerDeps
	metrics *metrics
}

// session reports the access state of the caller's session, whatever it is.
func (h authAPI) session(ctx echo.Context) error {
	d := guardDecision(ctx, h.deps, "", role.All...)
	h.metrics.guardDecision(d)

	view := sessionView{Status: d.State.Status.String(), Redirect: d.Location}
	switch d.State.Status {
	case access.StatusChecking, access.StatusAuthenticated, access.StatusError:
		if d.State.Principal.ID != "" {
			p := d.State.Principal
			view.Principal = &p
		}
	}
	if d.Action == access.ActionRender {
		view.Role = d.State.Role.String()
		view.Home = d.State.Role.Home()
	}
	if d.Err != nil {
		panel := newErrorPanel(d.Err)
		view.Error = &panel
		if !d.Err.Recoverable() {
			clearSessionCookie(ctx, h.deps.Conf)
		}
	}
	return ctx.JSON(http.StatusOK, view)
}

func (h authAPI) roles(ctx echo.Context) error {
	roles := make([]roleView, 0, len(role.All))
	for _, r := range role.All {
		roles = append(roles, roleView{Value: r.String(), Title: r.Title(), Home: r.Home()})
	}
	return ctx.JSON(http.StatusOK, roles)
}

func (h authAPI) resetPassword(ctx echo.Context) error {
	var data PasswordResetRequest
	if err := ctx.Bind(&data); err != nil {
		return err
	}
	if err := data.Validate(h.deps.Validate); err != nil {
		return err
	}

	if err := h.deps.UserSvc.RequestPasswordReset(ctx.Request().Context(), data.Email); err != nil {
		// do not tell whether the account exists
		if errors.Cause(err) != user.ErrNotFound {
			return err
		}
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: msgPasswordResetSent})
}

func (h authAPI) resetPasswordConfirm(ctx echo.Context) error {
	var data user.ResetUserPassword
	if err := ctx.Bind(&data); err != nil {
		return err
	}
	if err := data.Validate(h.deps.Validate); err != nil {
		return err
	}
	if _, err := h.deps.UserSvc.ResetPassword(ctx.Request().Context(), data); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: msgPasswordResetDone})
}

func registerContentAPI(v1 *echo.Group, deps ServerDeps, m *metrics) {
	g := v1.Group("/content", guardMiddleware(deps, m, apiResponder, role.Admin, role.Principal))
	g.POST("/generate", generateContent(deps))
}

func generateContent(deps ServerDeps) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		var req aigen.Request
		if err := ctx.Bind(&req); err != nil {
			return err
		}
		if err := deps.Validate.Struct(req); err != nil {
			return err
		}

		res, err := deps.Generator.Generate(ctx.Request().Context(), req)
		if err != nil {
			deps.Logger.Error(fmt.Sprintf("content generation (%s): %v", req.Kind, err), err, contextPrincipal(ctx))
			return errGenerateFailed
		}
		return ctx.JSON(http.StatusOK, res)
	}
}
