package main

import (
	"log"
	"os"
	"path/filepath"

	"github.com/darasahq/darasa/apps/api/echo"
	"github.com/darasahq/darasa/core"
	"github.com/darasahq/darasa/core/enroll"
	"github.com/darasahq/darasa/core/persona"
	"github.com/darasahq/darasa/core/replay"
	"github.com/darasahq/darasa/core/script"
	"github.com/darasahq/darasa/services/logger"
	"github.com/darasahq/darasa/storage/database"
	"github.com/darasahq/darasa/storage/database/sqlx"
)

func main() {
	std := log.New(os.Stdout, "API : ", log.LstdFlags|log.Lshortfile)

	var logger core.Logger
	if core.Conf.Debug {
		logger = logsvc.NewConsoleLogger(std)
	} else {
		logger = logsvc.NewRollbarLogger(std, core.Conf)
	}

	// set up DB
	if core.Conf.Debug {
		if err := database.CreateIfNotExist(core.Conf); err != nil {
			logger.Fatal("setting up database", err)
		}
	}
	db, err := database.Open(core.Conf)
	if err != nil {
		logger.Fatal("opening database", err)
	}
	defer db.Close()
	if err := database.Migrate(db); err != nil {
		logger.Fatal("migrating database", err)
	}

	// load authored content; any validation failure blocks startup
	dir := filepath.Join(core.Conf.WorkDir, core.Conf.Replay.ScriptsDir)
	reg, err := persona.LoadFile(filepath.Join(dir, "personas.yml"))
	if err != nil {
		logger.Fatal("loading persona catalog", err)
	}
	chat, err := script.LoadFile(filepath.Join(dir, "webinar_chat.yml"))
	if err != nil {
		logger.Fatal("loading chat script", err)
	}
	drip, err := script.LoadFile(filepath.Join(dir, "nurture_drip.yml"))
	if err != nil {
		logger.Fatal("loading drip script", err)
	}

	// set up services
	replaySvc, err := replay.NewService(
		chat, drip, reg,
		sqlxrepos.NewDeliveryRepository(db),
		logger,
		core.Conf.Replay.MaxEventsPerPass,
	)
	if err != nil {
		logger.Fatal("wiring replay service", err)
	}
	enrollSvc := enroll.NewService(sqlxrepos.NewEnrollmentRepository(db))

	// start API server
	app := echoapi.NewServer(&echoapi.Options{
		Addr:      core.Conf.Server.Addr,
		ReplaySvc: replaySvc,
		EnrollSvc: enrollSvc,
		Logger:    logger,
	})
	app.Start()
}
