package main

import (
	"log"
	"os"

	"github.com/alloqly/alloqly/assets"
	"github.com/alloqly/alloqly/core"
	"github.com/alloqly/alloqly/core/user"
	emailsvc "github.com/alloqly/alloqly/services/email"
	"github.com/alloqly/alloqly/storage/database"
	sqlxrepos "github.com/alloqly/alloqly/storage/database/sqlx"
)

var logger *log.Logger

func main() {
	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	conf := core.NewConfig()

	errAndDie(loadCommonPasswords())

	// set up DB
	errAndDie(database.CreateIfNotExist(conf))
	db, err := database.Open(conf)
	errAndDie(err)
	defer func() { _ = db.Close() }()

	// start CLI
	validate, translator := newValidator()
	cli := commandLine{
		db:         db.DB,
		usrSvc:     user.NewService(sqlxrepos.NewUserRepository(db), emailsvc.NewConsoleService(logger, conf), conf),
		validate:   validate,
		translator: translator,
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		_ = db.Close()
		os.Exit(1)
	}
}

func loadCommonPasswords() error {
	f, err := assets.FS.Open(assets.CommonPasswords)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	return user.LoadCommonPasswords(f)
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}
