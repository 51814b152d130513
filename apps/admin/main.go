package main

import (
	"log"
	"os"

	"github.com/akela-hq/akela/core"
	"github.com/akela-hq/akela/storage/database"
	"github.com/akela-hq/akela/storage/database/sqlxrepos"
)

var logger *log.Logger

func main() {
	defer os.Exit(0)

	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	conf := core.NewConfig()

	// the connection is lazy; createdb runs before the database exists
	db, err := database.Open(conf)
	errAndDie(err)
	defer db.Close()

	cli := commandLine{
		db:      db,
		conf:    conf,
		usrRepo: sqlxrepos.NewUserRepository(db),
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}
