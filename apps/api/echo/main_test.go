package echoapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/markit/apps/api/echo"
	"github.com/trezcool/markit/core"
	"github.com/trezcool/markit/core/answer"
	"github.com/trezcool/markit/core/marking"
	"github.com/trezcool/markit/core/task"
	"github.com/trezcool/markit/core/user"
	"github.com/trezcool/markit/services/email"
	"github.com/trezcool/markit/services/files"
	"github.com/trezcool/markit/services/imaging"
	"github.com/trezcool/markit/services/mirror"
	"github.com/trezcool/markit/services/report"
	inmemdb "github.com/trezcool/markit/storage/database/inmem"
)

const testPassword = "Str0ng&Pa$$"

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

type testApp struct {
	conf    *core.Config
	server  *echoapi.Server
	mailSvc *emailsvc.ConsoleService
	usrRepo user.Repository
	taskSvc task.Service

	admin, marker, student user.User
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	conf := core.NewTestConfig()
	conf.DataFolder = t.TempDir()
	logger := nopLogger{}
	core.ParseEmailTemplates(logger, true)

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	db := inmemdb.Open()
	usrRepo := inmemdb.NewUserRepository(db)
	markingRepo := inmemdb.NewMarkingRepository(db)
	mailSvc := emailsvc.NewConsoleServiceMock(conf, logger)

	usrSvc := user.NewService(usrRepo, mailSvc, conf)
	taskSvc := task.NewService(db.Conn(), inmemdb.NewTaskRepository(db), usrSvc, mailSvc)
	answerSvc := answer.NewService(
		db.Conn(),
		inmemdb.NewAnswerRepository(db),
		taskSvc,
		usrSvc,
		filesvc.NewLocalStore(conf),
		imagingsvc.NewProcessor(),
		mirrorsvc.NewQueue(conf, logger),
	)
	markingSvc := marking.NewService(markingRepo, markingRepo, taskSvc, answerSvc, usrSvc)

	app := &testApp{
		conf:    conf,
		mailSvc: mailSvc,
		usrRepo: usrRepo,
		taskSvc: taskSvc,
		server: echoapi.NewServer(echoapi.ServerDeps{
			Conf:           conf,
			Logger:         logger,
			Validate:       validate,
			Translator:     translator,
			UserSvc:        usrSvc,
			TaskSvc:        taskSvc,
			AnswerSvc:      answerSvc,
			MarkingSvc:     markingSvc,
			Reporter:       reportsvc.NewService(conf),
			DisableReqLogs: true,
		}),
	}
	app.admin = app.createUser(t, "admin", true, user.RoleAdmin)
	app.marker = app.createUser(t, "marker", true, user.RoleMarker)
	app.student = app.createUser(t, "student", true)
	return app
}

func (app *testApp) createUser(t *testing.T, name string, isActive bool, roles ...string) user.User {
	t.Helper()
	usr := user.User{Name: name, Email: name + "@test.cd", IsActive: isActive, Roles: roles}
	require.NoError(t, usr.SetPassword(testPassword))
	usr, err := app.usrRepo.CreateUser(context.Background(), usr)
	require.NoError(t, err)
	return usr
}

func (app *testApp) token(t *testing.T, usr user.User) string {
	t.Helper()
	token, err := echoapi.GenerateToken(app.conf, echoapi.GetUserClaims(app.conf, usr))
	require.NoError(t, err)
	return token
}

// do serves a JSON request; body may be nil.
func (app *testApp) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	app.server.ServeHTTP(rec, req)
	return rec
}

type httpTest struct {
	name     string
	method   string
	path     string
	token    string
	body     interface{}
	wantCode int
	wantMsg  string
}

func (app *testApp) run(t *testing.T, tests []httpTest) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := app.do(t, tt.method, tt.path, tt.token, tt.body)
			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, errorMsg(t, rec))
			}
		})
	}
}

type errorBody struct {
	Msg         string            `json:"msg"`
	Detail      string            `json:"detail"`
	RedirectURL string            `json:"redirect_url"`
	Fields      map[string]string `json:"fields"`
}

func errorMsg(t *testing.T, rec *httptest.ResponseRecorder) string {
	return decode[errorBody](t, rec).Msg
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}
