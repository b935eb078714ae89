package main

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/darasahq/darasa/core"
	"github.com/darasahq/darasa/core/enroll"
	"github.com/darasahq/darasa/core/persona"
	"github.com/darasahq/darasa/core/replay"
	"github.com/darasahq/darasa/core/script"
	"github.com/darasahq/darasa/services/email"
	"github.com/darasahq/darasa/services/logger"
	"github.com/darasahq/darasa/storage/database"
	"github.com/darasahq/darasa/storage/database/sqlx"
)

// sweepWorkers bounds the per-user fan-out. Users are independent: each
// enrollment's delivery state is its own, so parallel sweeps are safe.
const sweepWorkers = 8

// One sweep pass over every active enrollment, meant to run from cron.
// A missed pass only delays nudges; the ledger guarantees nothing fires twice.
func main() {
	std := log.New(os.Stdout, "SWEEP : ", log.LstdFlags|log.Lshortfile)

	var logger core.Logger
	if core.Conf.Debug {
		logger = logsvc.NewConsoleLogger(std)
	} else {
		logger = logsvc.NewRollbarLogger(std, core.Conf)
	}

	db, err := database.Open(core.Conf)
	if err != nil {
		logger.Fatal("opening database", err)
	}
	defer db.Close()

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

	var mailSvc core.EmailService
	if core.Conf.Debug {
		mailSvc = emailsvc.NewConsoleService()
	} else {
		mailSvc = emailsvc.NewSendgridService(logger)
	}
	dispatcher := emailsvc.NewIntentDispatcher(mailSvc, logger)

	ctx := context.Background()
	enrs, err := enrollSvc.QueryActive(ctx, time.Now().UTC())
	if err != nil {
		logger.Fatal("querying active enrollments", err)
	}

	work := make(chan enroll.Enrollment)
	var wg sync.WaitGroup
	wg.Add(sweepWorkers)
	for i := 0; i < sweepWorkers; i++ {
		go func() {
			defer wg.Done()
			for enr := range work {
				sweepOne(ctx, replaySvc, dispatcher, logger, enr)
			}
		}()
	}
	for _, enr := range enrs {
		work <- enr
	}
	close(work)
	wg.Wait()

	logger.Info("sweep done", map[string]interface{}{"enrollments": len(enrs)})
}

func sweepOne(
	ctx context.Context,
	svc *replay.Service,
	dispatcher *emailsvc.IntentDispatcher,
	logger core.Logger,
	enr enroll.Enrollment,
) {
	rctx := replay.RenderContext{script.TokenFirstName: enr.FirstName}
	res, err := svc.SweepUser(ctx, enr, rctx, 0)
	if err != nil {
		logger.Error("sweeping enrollment "+enr.ID, err, enr)
		return
	}
	// side effects run strictly after the ledger writes
	dispatcher.Dispatch(res.Intents...)
	if n := len(res.Events) + len(res.Intents); n > 0 {
		logger.Info("fired entries", map[string]interface{}{"enrollment": enr.ID, "count": n})
	}
}
