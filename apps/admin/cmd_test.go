package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"strconv"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siat-edu/siat/core"
	"github.com/siat-edu/siat/core/academics"
	"github.com/siat-edu/siat/core/progress"
	"github.com/siat-edu/siat/core/user"
	emailsvc "github.com/siat-edu/siat/services/email"
	logsvc "github.com/siat-edu/siat/services/logger"
	sqlxrepos "github.com/siat-edu/siat/storage/database/sqlx"
	"github.com/siat-edu/siat/tests"
)

type cliEnv struct {
	cli *commandLine
	out *bytes.Buffer
	fx  *testutil.Fixtures
}

func setup(t *testing.T) cliEnv {
	conf := core.NewTestConfig()
	logger := logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), conf)

	// set up DB & repos
	db := testutil.PrepareDB(t)
	usrRepo := sqlxrepos.NewUserRepository(db)
	acadRepo := sqlxrepos.NewAcademicsRepository(db)
	mailSvc := emailsvc.NewConsoleServiceMock(conf, logger)

	// start CLI
	out := new(bytes.Buffer)
	return cliEnv{
		cli: &commandLine{
			db:         db,
			conf:       conf,
			out:        out,
			usrRepo:    usrRepo,
			acadSvc:    academics.NewService(db, acadRepo, user.NewService(usrRepo), mailSvc, conf),
			calculator: progress.NewCalculator(sqlxrepos.NewProgressRepository(db), logger),
		},
		out: out,
		fx:  testutil.NewFixtures(t, usrRepo, acadRepo),
	}
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	extra      interface{}
}

func (tt cliTest) check(t *testing.T, err error) {
	t.Helper()
	switch {
	case tt.wantErr != nil:
		assert.Equal(t, tt.wantErr, err)
	case tt.wantErrStr != "":
		if assert.Error(t, err) {
			assert.Equal(t, tt.wantErrStr, err.Error())
		}
	default:
		assert.NoError(t, err)
	}
}

func mockPassword(pwd string) func() {
	orig := readPasswordFunc
	readPasswordFunc = func(fd int) ([]byte, error) {
		return []byte(pwd), nil
	}
	return func() { readPasswordFunc = orig }
}

func Test_commandLine_migrate(t *testing.T) {
	env := setup(t)

	var gotEngine string
	orig := migrateFunc
	defer func() { migrateFunc = orig }()
	migrateFunc = func(db *sqlx.DB, engine, command string, args ...string) error {
		gotEngine = engine
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to", "down-to":
			if len(args) == 0 {
				return fmt.Errorf("%s must be of form: goose [OPTIONS] DRIVER DBSTRING %s VERSION", command, command)
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "create", args: []string{"migrate", "create", "notifications", "sql"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, env.cli.run(args))
		})
	}
	assert.Equal(t, "sqlite3", gotEngine)
}

func Test_commandLine_resetPassword(t *testing.T) {
	env := setup(t)
	usr := testutil.CreateUser(t, env.cli.usrRepo, "User", "grace", "grace@siat.test", "mdr", nil, true)

	type extra struct {
		pwd string
	}
	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "username but no password", args: []string{"resetpassword", "-username", "lol"}, wantErr: errHelp},
		{name: "user not found", args: []string{"resetpassword", "-username", "lol"}, extra: extra{pwd: "lol"}, wantErr: user.ErrNotFound},
		{name: "reset with username", args: []string{"resetpassword", "-username", usr.Username}, extra: extra{pwd: "lol"}},
		{name: "reset with email", args: []string{"resetpassword", "-username", "GRACE@siat.test"}, extra: extra{pwd: "lmao"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			var pwd string
			if e, ok := tt.extra.(extra); ok {
				pwd = e.pwd
			}
			defer mockPassword(pwd)()

			err := env.cli.run(args)
			tt.check(t, err)
			if err != nil {
				return
			}
			refreshed, err := env.cli.usrRepo.GetUser(context.Background(), user.GetFilter{ID: usr.ID})
			require.NoError(t, err)
			assert.NoError(t, refreshed.CheckPassword(pwd))
		})
	}
}

func Test_commandLine_addUser(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	tests := []cliTest{
		{name: "no args", args: []string{"adduser"}, wantErr: errHelp},
		{name: "no email", args: []string{"adduser", "-username", "root"}, wantErr: errHelp},
		{name: "no password", args: []string{"adduser", "-username", "root", "-email", "root@siat.test"}, wantErr: errHelp},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)
		t.Run(tt.name, func(t *testing.T) {
			defer mockPassword("")()
			tt.check(t, env.cli.run(args))
		})
	}

	t.Run("create admin", func(t *testing.T) {
		defer mockPassword("s3cret")()
		err := env.cli.run([]string{"admin", "adduser", "-username", "Root", "-email", "ROOT@siat.test", "-name", "Site Admin", "-admin"})
		require.NoError(t, err)

		usr, err := env.cli.usrRepo.GetUser(ctx, user.GetFilter{UsernameOrEmail: []string{"root"}})
		require.NoError(t, err)
		assert.Equal(t, "root@siat.test", usr.Email)
		assert.Equal(t, "Site Admin", usr.Name)
		assert.True(t, usr.IsActive)
		assert.ElementsMatch(t, user.AllRoles, usr.Roles)
		assert.NoError(t, usr.CheckPassword("s3cret"))
	})

	t.Run("update existing", func(t *testing.T) {
		idle := testutil.CreateUser(t, env.cli.usrRepo, "Idle", "idle", "idle@siat.test", "old", nil, false)

		defer mockPassword("n3w")()
		require.NoError(t, env.cli.run([]string{"admin", "adduser", "-username", "idle", "-email", "idle@siat.test"}))

		usr, err := env.cli.usrRepo.GetUser(ctx, user.GetFilter{ID: idle.ID})
		require.NoError(t, err)
		assert.Equal(t, "Idle", usr.Name)
		assert.True(t, usr.IsActive)
		assert.Empty(t, usr.Roles)
		assert.NoError(t, usr.CheckPassword("n3w"))
	})
}

func Test_commandLine_syncProgress(t *testing.T) {
	env := setup(t)

	err := env.cli.run([]string{"admin", "syncprogress"})
	assert.Equal(t, academics.ErrNoCurrentSemester, err)

	sem := env.fx.Semester("2026-S1", true)
	course := env.fx.Course("Software Engineering")
	subj := env.fx.Subject("SE101", "Programming")
	env.fx.CourseSubject(course.ID, subj.ID, sem.ID, 0, true)
	st := env.fx.Student("Grace Hopper", course.ID)
	env.fx.Student("Alan Turing", course.ID)

	require.NoError(t, env.cli.run([]string{"admin", "syncprogress"}))
	assert.Contains(t, env.out.String(), "2026-S1: 2 students, 2 created, 0 updated, 0 errors")

	env.out.Reset()
	require.NoError(t, env.cli.run([]string{"admin", "syncprogress", "-student", strconv.FormatInt(st.ID, 10)}))
	assert.Contains(t, env.out.String(), fmt.Sprintf("student %d (2026-S1): 0 created, 1 updated", st.ID))
	assert.Contains(t, env.out.String(), fmt.Sprintf("subject %d: 100 -> 100", subj.ID))

	err = env.cli.run([]string{"admin", "syncprogress", "-student", "999"})
	assert.Equal(t, academics.ErrNotFound, err)
}
