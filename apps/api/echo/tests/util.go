package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"

	echoapi "github.com/siat-edu/siat/apps/api/echo"
	"github.com/siat-edu/siat/core"
	"github.com/siat-edu/siat/core/academics"
	"github.com/siat-edu/siat/core/coursework"
	"github.com/siat-edu/siat/core/portal"
	"github.com/siat-edu/siat/core/progress"
	"github.com/siat-edu/siat/core/user"
	emailsvc "github.com/siat-edu/siat/services/email"
	logsvc "github.com/siat-edu/siat/services/logger"
	"github.com/siat-edu/siat/services/scheduler"
	sqlxrepos "github.com/siat-edu/siat/storage/database/sqlx"
	"github.com/siat-edu/siat/tests"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

// testEnv is a server wired to a fresh in-memory database.
type testEnv struct {
	conf    *core.Config
	server  *echoapi.Server
	usrRepo user.Repository
	cwRepo  coursework.Repository
	fx      *testutil.Fixtures
	mailSvc *emailsvc.ConsoleService
}

func setup(t *testing.T) *testEnv {
	conf := core.NewTestConfig()
	logger := logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), conf)

	// set up DB & repos
	db := testutil.PrepareDB(t)
	usrRepo := sqlxrepos.NewUserRepository(db)
	acadRepo := sqlxrepos.NewAcademicsRepository(db)
	cwRepo := sqlxrepos.NewCourseworkRepository(db)

	// set up services
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	core.ParseEmailTemplates(conf, logger)

	mailSvc := emailsvc.NewConsoleServiceMock(conf, logger)
	usrSvc := user.NewService(usrRepo)
	acadSvc := academics.NewService(db, acadRepo, usrSvc, mailSvc, conf)
	calculator := progress.NewCalculator(sqlxrepos.NewProgressRepository(db), logger)
	cwSvc := coursework.NewService(db, cwRepo, acadRepo, calculator, mailSvc, logger)
	portalSvc := portal.NewService(sqlxrepos.NewPortalRepository(db), acadRepo, cwRepo)

	// set up server
	server := echoapi.NewServer(echoapi.ServerDeps{
		Conf:           conf,
		Logger:         logger,
		UserSvc:        usrSvc,
		AcadSvc:        acadSvc,
		Coursework:     cwSvc,
		Portal:         portalSvc,
		Calculator:     calculator,
		Syncer:         scheduler.New(conf, acadSvc, calculator, logger),
		Validate:       validate,
		Translator:     translator,
		DisableReqLogs: true,
	})

	return &testEnv{
		conf:    conf,
		server:  server,
		usrRepo: usrRepo,
		cwRepo:  cwRepo,
		fx:      testutil.NewFixtures(t, usrRepo, acadRepo),
		mailSvc: mailSvc,
	}
}

// tokenFor signs a token for the user with the given ID.
func (env *testEnv) tokenFor(t *testing.T, userID string) string {
	t.Helper()
	usr, err := env.usrRepo.GetUser(context.Background(), user.GetFilter{ID: userID})
	if err != nil {
		t.Fatalf("tokenFor() failed: %v", err)
	}
	return getToken(t, env.conf, usr)
}

// do serves the request and returns the recorder.
func (env *testEnv) do(method, path, token string, body ...[]byte) *httptest.ResponseRecorder {
	req, rec := newAuthRequest(method, path, token, body...)
	env.server.ServeHTTP(rec, req)
	return rec
}

func (env *testEnv) run(t *testing.T, tests []httpTest) {
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := tt.method
			if method == "" {
				method = http.MethodGet
			}
			rec := env.do(method, tt.path, tt.token, tt.body)
			checkCodeAndData(t, tt, rec)
		})
	}
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func getToken(t *testing.T, conf *core.Config, usr user.User) string {
	token, err := echoapi.GenerateToken(conf, usr)
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func marchallList(t *testing.T, objs ...interface{}) []byte {
	if objs == nil {
		objs = []interface{}{}
	}
	data, err := json.Marshal(objs)
	if err != nil {
		t.Fatalf("marchallList() failed: %v", err)
	}
	return data
}

// decode unmarshals the response body into v, failing the test otherwise.
func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode(%s) failed: %v", rec.Body.String(), err)
	}
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
	t.Helper()
	wantCode := tt.wantCode
	if wantCode == 0 {
		wantCode = http.StatusOK
	}
	if rec.Code != wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, wantCode)
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
