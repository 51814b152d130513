package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"

	echoapi "github.com/akela-hq/akela/apps/api/echo"
	"github.com/akela-hq/akela/core"
	"github.com/akela-hq/akela/core/announce"
	"github.com/akela-hq/akela/core/badge"
	"github.com/akela-hq/akela/core/meeting"
	"github.com/akela-hq/akela/core/member"
	"github.com/akela-hq/akela/core/syncop"
	"github.com/akela-hq/akela/core/unit"
	"github.com/akela-hq/akela/core/user"
	emailsvc "github.com/akela-hq/akela/services/email"
	logsvc "github.com/akela-hq/akela/services/logger"
	pushsvc "github.com/akela-hq/akela/services/push"
	whatsappsvc "github.com/akela-hq/akela/services/whatsapp"
	"github.com/akela-hq/akela/storage/database"
	"github.com/akela-hq/akela/storage/database/sqlxrepos"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up loggers
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	dbLogger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	dbLogger.Enable(!conf.Debug)

	// set up DB
	db, err := setUpDB(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = db.Close(); err != nil {
			dbLogger.Fatal("Failed to close", err)
		}
	}()

	// set up services
	var (
		mailSvc core.EmailService
		pushSvc core.PushService
		waSvc   core.WhatsAppService
	)
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService()
		pushSvc = pushsvc.NewConsoleService(logger)
		waSvc = whatsappsvc.NewConsoleService(logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(logger)
		pushSvc = pushsvc.NewWebPushService(logger)
		waSvc = whatsappsvc.NewCloudAPIService(logger)
	}

	memberRepo := sqlxrepos.NewMemberRepository(db)
	meetingRepo := sqlxrepos.NewMeetingRepository(db)
	annRepo := sqlxrepos.NewAnnounceRepository(db)

	usrSvc := user.NewService(sqlxrepos.NewUserRepository(db), mailSvc, conf)
	unitSvc := unit.NewService(sqlxrepos.NewUnitRepository(db))
	memberSvc := member.NewService(memberRepo)
	meetingSvc := meeting.NewService(meetingRepo)
	badgeSvc := badge.NewService(sqlxrepos.NewBadgeRepository(db))
	annSvc := announce.NewService(annRepo)
	syncSvc := syncop.NewService(sqlxrepos.NewSyncRepository(db, memberRepo, meetingRepo))

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate := validator.New()
	translator := newTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	unit.InitValidators(validate, translator)
	syncop.InitValidators(validate)

	core.ParseEmailTemplates(logger)

	user.LoadCommonPasswords(logger)

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugAddr, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start Announcement Dispatcher

	dispatchCtx, stopDispatch := context.WithCancel(context.Background())
	defer stopDispatch()

	dispatcher := announce.NewDispatcher(annRepo, annRepo, mailSvc, pushSvc, waSvc, logger, conf, database.DSN(conf))
	go func() {
		if err := dispatcher.Run(dispatchCtx); err != nil {
			logger.Error(fmt.Sprintf("announcement dispatcher stopped: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	server := echoapi.NewServer(
		&echoapi.Options{
			Address:        conf.Server.Addr,
			UserSvc:        usrSvc,
			UnitSvc:        unitSvc,
			MemberSvc:      memberSvc,
			MeetingSvc:     meetingSvc,
			BadgeSvc:       badgeSvc,
			AnnounceSvc:    annSvc,
			SyncSvc:        syncSvc,
			Validate:       validate,
			Translator:     translator,
			Logger:         logger,
			SignalShutdown: func() { shutdown <- syscall.SIGTERM },
		},
	)

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	sig := <-shutdown
	logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

	stopDispatch()

	// give outstanding requests a deadline for completion
	ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
	defer cancel()

	if err = server.Stop(ctx); err != nil {
		logger.Fatal(fmt.Sprintf("could not stop server gracefully: %v", err), err)
	}
}

func setUpDB(conf *core.Config) (*sqlx.DB, error) {
	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(db.DB); err != nil {
		return nil, err
	}
	return db, nil
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}
