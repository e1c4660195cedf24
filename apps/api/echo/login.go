package echoapi

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/college/core/access"
	"github.com/trezcool/college/core/role"
)

func registerLoginViews(app *echo.Echo, deps ServerDeps, m *metrics) {
	h := loginHandler{deps: deps, metrics: m}
	app.GET(role.LoginPath, h.show)
	app.POST(role.LoginPath, h.submit)
	app.POST("/logout", h.logout)
}

type loginHandler struct {
	deps    ServerDeps
	metrics *metrics
}

// mount starts a login flow for the request. Navigations are answered with a redirect by the handlers.
func (h loginHandler) mount(ctx echo.Context, next string) *access.LoginFlow {
	return access.NewLoginFlow(access.LoginDeps{
		Provider:  sessionClient(ctx, h.deps.Sessions),
		Store:     h.deps.Roles,
		Navigator: access.NavigatorFunc(func(string, bool) {}),
		Logger:    h.deps.Logger,
		Timeout:   h.deps.Conf.Auth.VerifyTimeout,
		Next:      next,
	})
}

// show renders the login form, or sends a visitor with a valid session to where it belongs.
func (h loginHandler) show(ctx echo.Context) error {
	next := access.SafeNext(ctx.QueryParam("next"))
	flow := h.mount(ctx, next)
	defer flow.Close()

	wctx, cancel := context.WithTimeout(ctx.Request().Context(), h.deps.Conf.Auth.VerifyTimeout)
	defer cancel()
	select {
	case <-flow.CheckDone():
	case <-wctx.Done():
	}

	st := flow.State()
	if st.Redirected {
		return ctx.Redirect(http.StatusSeeOther, st.Location)
	}
	view := loginView{Checking: st.Checking, Next: next}
	if st.Err != nil {
		view.Error = st.Err.Message
		view.Kind = st.Err.Kind.String()
		// the session was never verified, whatever the outcome of the check
		clearSessionCookie(ctx, h.deps.Conf)
	}
	return ctx.JSON(http.StatusOK, view)
}

func (h loginHandler) submit(ctx echo.Context) error {
	var data LoginRequest
	if err := ctx.Bind(&data); err != nil {
		return err
	}
	if err := data.Validate(h.deps.Validate); err != nil {
		return err
	}

	flow := h.mount(ctx, data.Next)
	defer flow.Close()

	res := flow.Submit(ctx.Request().Context(), data.Email, data.Password)
	if res.Err != nil {
		h.metrics.loginOutcome(res.Err)
		if res.Err.Kind != access.KindCredentialRejected {
			// signed in, then signed out again
			clearSessionCookie(ctx, h.deps.Conf)
		}
		return ctx.JSON(http.StatusUnauthorized, loginView{
			Error: res.Err.Message,
			Kind:  res.Err.Kind.String(),
			Next:  access.SafeNext(data.Next),
		})
	}
	if res.Location == "" { // request cancelled
		return ctx.NoContent(http.StatusNoContent)
	}

	h.metrics.loginOutcome(nil)
	if token := sessionClient(ctx, h.deps.Sessions).Token(); token != "" {
		setSessionCookie(ctx, h.deps.Conf, token, h.deps.Sessions.TTL())
	}
	return ctx.Redirect(http.StatusSeeOther, res.Location)
}

func (h loginHandler) logout(ctx echo.Context) error {
	if err := sessionClient(ctx, h.deps.Sessions).SignOut(ctx.Request().Context()); err != nil {
		return err
	}
	clearSessionCookie(ctx, h.deps.Conf)
	return ctx.Redirect(http.StatusSeeOther, role.LoginPath)
}
