package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"

	echoapi "github.com/trezcool/college/apps/api/echo"
	"github.com/trezcool/college/core"
	"github.com/trezcool/college/core/role"
	"github.com/trezcool/college/core/user"
	"github.com/trezcool/college/services/aigen"
	emailsvc "github.com/trezcool/college/services/email"
	logsvc "github.com/trezcool/college/services/logger"
	sessionsvc "github.com/trezcool/college/services/session"
	"github.com/trezcool/college/storage"
	"github.com/trezcool/college/storage/database"
	dummydb "github.com/trezcool/college/storage/database/dummy"
	sqlxrepos "github.com/trezcool/college/storage/database/sqlx"
)

// memoryEngine keeps users in memory, for local development without postgres.
const memoryEngine = "memory"

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug && conf.RollbarToken != "")

	ctx := context.Background()

	// set up DB
	var (
		db      *sqlx.DB
		usrRepo user.Repository
		err     error
	)
	if conf.Database.Engine == memoryEngine {
		usrRepo = dummydb.NewUserRepository(dummydb.Open())
	} else {
		if db, err = setUpDB(ctx, conf); err != nil {
			logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
		}
		defer func() {
			if err := db.Close(); err != nil {
				logger.Error(fmt.Sprintf("closing database: %v", err), err)
			}
		}()
		usrRepo = sqlxrepos.NewUserRepository(db)
	}

	var dbExec core.DBExecutor
	if db != nil {
		dbExec = db
	}
	roles, closeRoles, err := storage.OpenRoleStore(conf, dbExec)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up role store: %v", err), err)
	}
	defer func() {
		if err := closeRoles(); err != nil {
			logger.Error(fmt.Sprintf("closing role store: %v", err), err)
		}
	}()

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q, role store %q", conf.Build, conf.RoleStore.Driver))
	defer logger.Info("Application stopped")

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	role.InitValidators(validate, translator)

	core.ParseEmailTemplates(conf, logger)
	user.LoadCommonPasswords(logger)

	// set up services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf, logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}
	usrSvc := user.NewService(usrRepo, mailSvc, logger, conf)
	sessions := sessionsvc.NewManager(usrSvc, validate, logger, conf)

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)
	expvar.NewString("roleStore").Set(conf.RoleStore.Driver)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(echoapi.ServerDeps{
		Conf:       conf,
		Logger:     logger,
		Validate:   validate,
		Translator: translator,
		UserSvc:    usrSvc,
		Sessions:   sessions,
		Roles:      roles,
		Generator:  aigen.NewClient(conf),
	})

	go server.Start()

	// =========================================================================
	// Shutdown

	select {
	case err := <-server.Errors():
		logger.Error(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(ctx, conf.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)
			if err := server.Close(); err != nil {
				logger.Error(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

func setUpDB(ctx context.Context, conf *core.Config) (*sqlx.DB, error) {
	if err := database.CreateIfNotExist(ctx, conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(ctx, db, "up"); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
