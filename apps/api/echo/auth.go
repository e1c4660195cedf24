package echoapi

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/college/core"
	"github.com/trezcool/college/core/access"
	"github.com/trezcool/college/core/identity"
	"github.com/trezcool/college/core/role"
	sessionsvc "github.com/trezcool/college/services/session"
)

const (
	sessionCookieName = "session"

	ctxClientKey    = "sessionClient"
	ctxPrincipalKey = "principal"
	ctxRoleKey      = "role"
)

// sessionClient returns the session client of the request's browser, from its cookie.
func sessionClient(ctx echo.Context, sessions *sessionsvc.Manager) *sessionsvc.Client {
	if c, ok := ctx.Get(ctxClientKey).(*sessionsvc.Client); ok {
		return c
	}
	var token string
	if cookie, err := ctx.Cookie(sessionCookieName); err == nil {
		token = cookie.Value
	}
	c := sessions.Client(token)
	ctx.Set(ctxClientKey, c)
	return c
}

func setSessionCookie(ctx echo.Context, conf *core.Config, token string, ttl time.Duration) {
	ctx.SetCookie(&http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		Expires:  time.Now().Add(ttl),
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   conf.Server.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearSessionCookie(ctx echo.Context, conf *core.Config) {
	ctx.SetCookie(&http.Cookie{
		Name:     sessionCookieName,
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   conf.Server.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

// contextPrincipal returns the principal of an authorized request, nil otherwise. Used as a logger arg.
func contextPrincipal(ctx echo.Context) interface{} {
	if p, ok := ctx.Get(ctxPrincipalKey).(identity.Principal); ok {
		return p
	}
	return nil
}

func contextRole(ctx echo.Context) role.Role {
	r, _ := ctx.Get(ctxRoleKey).(role.Role)
	return r
}

// responder answers a request the guard did not let through. from is the location a login
// should return to, "" for none.
type responder struct {
	from    func(ctx echo.Context) string
	respond func(ctx echo.Context, d access.Decision) error
}

var (
	pageResponder = responder{from: requestLocation, respond: respondPage}
	apiResponder  = responder{from: noLocation, respond: respondAPI}
)

func requestLocation(ctx echo.Context) string { return ctx.Request().URL.RequestURI() }

func noLocation(echo.Context) string { return "" }

// guardMiddleware mounts an access guard for the request and lets it through only when the guard
// renders; every other decision is answered by respond.
func guardMiddleware(deps ServerDeps, m *metrics, respond responder, roles ...role.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			d := guardDecision(ctx, deps, respond.from(ctx), roles...)
			m.guardDecision(d)

			if d.Action == access.ActionRender {
				ctx.Set(ctxPrincipalKey, d.State.Principal)
				ctx.Set(ctxRoleKey, d.State.Role)
				return next(ctx)
			}
			if d.Action == access.ActionShowError && !d.Err.Recoverable() {
				clearSessionCookie(ctx, deps.Conf)
			}
			return respond.respond(ctx, d)
		}
	}
}

// guardDecision runs a guard over the request's session until it settles, at most VerifyTimeout.
func guardDecision(ctx echo.Context, deps ServerDeps, from string, roles ...role.Role) access.Decision {
	g := access.NewGuard(access.GuardDeps{
		Provider: sessionClient(ctx, deps.Sessions),
		Store:    deps.Roles,
		Logger:   deps.Logger,
		Timeout:  deps.Conf.Auth.VerifyTimeout,
	}, roles...)
	defer g.Close()

	wctx, cancel := context.WithTimeout(ctx.Request().Context(), deps.Conf.Auth.VerifyTimeout)
	defer cancel()
	g.Wait(wctx)
	return g.Decide(from)
}

type errorPanel struct {
	Error       string `json:"error"`
	Kind        string `json:"kind"`
	Recoverable bool   `json:"recoverable"`
}

func newErrorPanel(rej *access.Error) errorPanel {
	return errorPanel{Error: rej.Message, Kind: rej.Kind.String(), Recoverable: rej.Recoverable()}
}

// errorStatus is 403 for accounts without a usable role and 503 when the role could not be read.
func errorStatus(rej *access.Error) int {
	switch rej.Kind {
	case access.KindStorageBlocked, access.KindVerificationFailed:
		return http.StatusServiceUnavailable
	}
	return http.StatusForbidden
}

// respondPage answers browser navigations: redirects, a loading page that refreshes itself
// and an inline error panel.
func respondPage(ctx echo.Context, d access.Decision) error {
	switch d.Action {
	case access.ActionLoading:
		ctx.Response().Header().Set("Refresh", "1")
		return ctx.JSON(http.StatusAccepted, echo.Map{"status": d.State.Status.String()})
	case access.ActionShowError:
		return ctx.JSON(errorStatus(d.Err), newErrorPanel(d.Err))
	case access.ActionRedirect:
		return ctx.Redirect(http.StatusFound, d.Location)
	}
	return errHttpNotFound
}

type apiDenied struct {
	Error    string `json:"error"`
	Redirect string `json:"redirect,omitempty"`
}

// respondAPI answers API calls with status codes; redirects become a "redirect" hint.
func respondAPI(ctx echo.Context, d access.Decision) error {
	switch d.Action {
	case access.ActionLoading:
		ctx.Response().Header().Set("Retry-After", "1")
		return ctx.JSON(http.StatusServiceUnavailable, apiDenied{Error: "session verification in progress"})
	case access.ActionShowError:
		return ctx.JSON(errorStatus(d.Err), newErrorPanel(d.Err))
	case access.ActionRedirect:
		if d.State.Status == access.StatusAuthenticated {
			return ctx.JSON(http.StatusForbidden, apiDenied{Error: "permission denied", Redirect: d.Location})
		}
		return ctx.JSON(http.StatusUnauthorized, apiDenied{Error: "authentication required", Redirect: d.Location})
	}
	return errHttpNotFound
}
