package echoapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/college/apps/api/echo"
	"github.com/trezcool/college/core"
	"github.com/trezcool/college/core/role"
	"github.com/trezcool/college/core/user"
	"github.com/trezcool/college/services/aigen"
	emailsvc "github.com/trezcool/college/services/email"
	sessionsvc "github.com/trezcool/college/services/session"
	dummydb "github.com/trezcool/college/storage/database/dummy"
	testutil "github.com/trezcool/college/tests"
)

const pwd = "Pa$$w0rd!"

type fixture struct {
	srv     echoapi.Server
	db      *dummydb.DB
	repo    user.Repository
	roles   *dummydb.RoleStore
	mailSvc *emailsvc.ServiceMock
	gen     *generatorMock
}

func setup(t *testing.T) fixture {
	t.Helper()

	conf := core.NewTestConfig()
	translator := core.NewTranslator()
	validate := validator.New()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	role.InitValidators(validate, translator)
	core.ParseEmailTemplates(conf, testutil.NopLogger{})

	db := dummydb.Open()
	repo := dummydb.NewUserRepository(db)
	roles := dummydb.NewRoleStore(db)
	mailSvc := emailsvc.NewServiceMock(conf, testutil.NopLogger{})
	usrSvc := user.NewService(repo, mailSvc, testutil.NopLogger{}, conf)
	gen := &generatorMock{}

	srv := echoapi.NewServer(echoapi.ServerDeps{
		Conf:       conf,
		Logger:     testutil.NopLogger{},
		Validate:   validate,
		Translator: translator,
		UserSvc:    usrSvc,
		Sessions:   sessionsvc.NewManager(usrSvc, validate, testutil.NopLogger{}, conf),
		Roles:      roles,
		Generator:  gen,
	})
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	return fixture{srv: srv, db: db, repo: repo, roles: roles, mailSvc: mailSvc, gen: gen}
}

// createUser creates an active account with the given raw role; a nil role leaves it without a role record.
func (fx fixture) createUser(t *testing.T, email string, raw interface{}) user.User {
	t.Helper()
	usr := testutil.CreateUser(t, fx.repo, "Test User", email, pwd, true)
	if raw != nil {
		require.NoError(t, fx.roles.SetRole(context.Background(), usr.ID, raw))
	}
	return usr
}

// login signs in through the login view and returns the session cookie.
func (fx fixture) login(t *testing.T, email string) *http.Cookie {
	t.Helper()
	req, rec := newRequest(http.MethodPost, "/login", nil, marchallObj(t, echoapi.LoginRequest{Email: email, Password: pwd}))
	fx.srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusSeeOther, rec.Code, rec.Body.String())
	cookie := sessionCookie(rec)
	require.NotNil(t, cookie)
	return cookie
}

type generatorMock struct {
	mu   sync.Mutex
	reqs []aigen.Request
	err  error
}

func (g *generatorMock) Generate(_ context.Context, req aigen.Request) (aigen.Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reqs = append(g.reqs, req)
	if g.err != nil {
		return aigen.Result{}, g.err
	}
	return aigen.Result{Content: "Draft about " + req.Topic}, nil
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name         string
	method       string
	path         string
	body         []byte
	cookie       *http.Cookie
	wantCode     int
	wantData     []byte
	wantLocation string
}

func newRequest(method, path string, cookie *http.Cookie, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func sessionCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == "session" {
			return c
		}
	}
	return nil
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	if j1 == nil || j2 == nil {
		return false, nil
	}
	return assert.ElementsMatch(t, j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantLocation != "" {
		assert.Equal(t, tt.wantLocation, rec.Header().Get("Location"))
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}
