package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/college/core"
	"github.com/trezcool/college/core/role"
	"github.com/trezcool/college/core/user"
	emailsvc "github.com/trezcool/college/services/email"
	logsvc "github.com/trezcool/college/services/logger"
	"github.com/trezcool/college/storage"
	"github.com/trezcool/college/storage/database"
	sqlxrepos "github.com/trezcool/college/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(false)

	// set up DB
	ctx := context.Background()
	if err := database.CreateIfNotExist(ctx, conf); err != nil {
		logger.Fatal(fmt.Sprintf("creating database: %v", err), err)
	}
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
	}
	if err := database.Ping(ctx, db); err != nil {
		logger.Fatal(fmt.Sprintf("pinging database: %v", err), err)
	}

	roles, closeRoles, err := storage.OpenRoleStore(conf, db)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening role store: %v", err), err)
	}

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	role.InitValidators(validate, translator)
	user.LoadCommonPasswords(logger)

	// start CLI
	usrRepo := sqlxrepos.NewUserRepository(db)
	cli := commandLine{
		db:         db,
		usrRepo:    usrRepo,
		usrSvc:     user.NewService(usrRepo, emailsvc.NewConsoleService(conf, logger), logger, conf),
		roles:      roles,
		validate:   validate,
		translator: translator,
	}
	err = cli.run(os.Args)

	if cerr := closeRoles(); cerr != nil {
		logger.Error(fmt.Sprintf("closing role store: %v", cerr), cerr)
	}
	_ = db.Close()

	if err != nil {
		if err != errHelp {
			fmt.Fprintf(os.Stderr, "\nerror: %s\n", cli.describe(err))
		}
		os.Exit(1)
	}
}
