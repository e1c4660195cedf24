package echoapi

import (
	"net/http"
	"path"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/college/core/identity"
	"github.com/trezcool/college/core/role"
)

type dashboardView struct {
	Title     string `json:"title"`
	Role      string `json:"role"`
	Principal string `json:"principal"`
	Path      string `json:"path"`
}

// registerDashboards mounts one guarded section per role, under the directory of its home.
func registerDashboards(app *echo.Echo, deps ServerDeps, m *metrics) {
	for _, r := range role.All {
		g := app.Group(path.Dir(r.Home()), guardMiddleware(deps, m, pageResponder, r))
		g.GET("/dashboard", dashboard)
		g.GET("/*", dashboard)
	}
}

func dashboard(ctx echo.Context) error {
	r := contextRole(ctx)
	view := dashboardView{
		Title: r.Title() + " dashboard",
		Role:  r.String(),
		Path:  ctx.Request().URL.Path,
	}
	if p, ok := contextPrincipal(ctx).(identity.Principal); ok {
		view.Principal = p.Email
	}
	return ctx.JSON(http.StatusOK, view)
}
