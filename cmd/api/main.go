package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"

	"github.com/ovaphlow/pitchfork/service-municipal/internal/access"
	"github.com/ovaphlow/pitchfork/service-municipal/internal/assessment"
	assessmentrepo "github.com/ovaphlow/pitchfork/service-municipal/internal/assessment/repo"
	"github.com/ovaphlow/pitchfork/service-municipal/internal/attendance"
	attendancerepo "github.com/ovaphlow/pitchfork/service-municipal/internal/attendance/repo"
	"github.com/ovaphlow/pitchfork/service-municipal/internal/auth"
	"github.com/ovaphlow/pitchfork/service-municipal/internal/codegen"
	"github.com/ovaphlow/pitchfork/service-municipal/internal/principal"
	"github.com/ovaphlow/pitchfork/service-municipal/internal/router"
	"github.com/ovaphlow/pitchfork/service-municipal/internal/shop"
	shoprepo "github.com/ovaphlow/pitchfork/service-municipal/internal/shop/repo"
	"github.com/ovaphlow/pitchfork/service-municipal/internal/staff"
	staffrepo "github.com/ovaphlow/pitchfork/service-municipal/internal/staff/repo"
	"github.com/ovaphlow/pitchfork/service-municipal/internal/task"
	taskrepo "github.com/ovaphlow/pitchfork/service-municipal/internal/task/repo"
	"github.com/ovaphlow/pitchfork/service-municipal/internal/token"
	"github.com/ovaphlow/pitchfork/service-municipal/internal/user"
	userrepo "github.com/ovaphlow/pitchfork/service-municipal/internal/user/repo"
	"github.com/ovaphlow/pitchfork/service-municipal/internal/ward"
	wardrepo "github.com/ovaphlow/pitchfork/service-municipal/internal/ward/repo"
	"github.com/ovaphlow/pitchfork/service-municipal/pkg/database"
	"github.com/ovaphlow/pitchfork/service-municipal/pkg/utilities"
)

func main() {
	// best-effort: real env wins when no .env exists
	_ = godotenv.Load()

	lg, err := utilities.Init(utilities.ConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()
	sugar := lg.Sugar()
	sugar.Info("starting service-municipal")

	db, err := database.Connect(database.ConfigFromEnv())
	if err != nil {
		sugar.Fatalf("db connect: %v", err)
	}
	defer db.Close()

	sinkLogger, closeSink, err := utilities.NewFileSink(utilities.FileSinkConfigFromEnv("ATTENDANCE_LOG_PATH", "./logs/attendance.%Y%m%d.log"))
	if err != nil {
		sugar.Fatalf("attendance log sink: %v", err)
	}
	defer closeSink()

	codec, err := token.NewCodec(token.ConfigFromEnv(), nil)
	if err != nil {
		sugar.Fatalf("token codec: %v", err)
	}

	clock := clockwork.NewRealClock()
	codes := codegen.NewGenerator(codegen.DefaultAttempts, codegen.DefaultBackoff, sugar.Named("codegen"))
	hasher := utilities.BcryptHasher{Cost: 12}

	users := userrepo.NewUserRepo(db)
	staffStore := staffrepo.NewStaffRepo(db)
	principals := principal.NewStore(users, staffStore)

	wardSvc := ward.NewService(wardrepo.NewRepo(db))
	userSvc := user.NewUserService(users, hasher, clock)
	staffSvc := staff.NewService(staffStore, wardSvc, codes, hasher, sugar.Named("staff"))
	taskSvc := task.NewService(taskrepo.NewTaskRepo(db), staffStore, wardSvc, staffSvc.Validator(), clock, sugar.Named("task"))
	shopSvc := shop.NewService(shoprepo.NewShopRepo(db), wardSvc, clock, sugar.Named("shop"))
	assessmentSvc := assessment.NewService(assessmentrepo.NewAssessmentRepo(db), shopSvc, codes, clock, sugar.Named("assessment"))

	sessions := attendance.NewManager(attendancerepo.NewSessionRepo(db), clock, sugar.Named("attendance"))
	recorder := attendance.NewRecorder(sessions, sinkLogger.Sugar())
	authSvc := auth.NewService(staffSvc, userSvc, codec, recorder, sugar.Named("auth"))

	routerCfg, err := router.ConfigFromEnv()
	if err != nil {
		sugar.Fatalf("router config: %v", err)
	}
	limiter := router.NewRateLimiter(routerCfg.LoginPerMinute, routerCfg.LoginBurst, routerCfg.TrustedProxies, clock)
	handler := router.RegisterRoutes(sugar, router.Deps{
		Enforcer: access.NewEnforcer(codec, principals, sugar.Named("access")),
		Limiter:  limiter,
		DB:       db,
	}, router.Handlers{
		Auth:        auth.NewHandler(authSvc, sugar),
		Users:       user.NewHandler(userSvc, sugar),
		Wards:       ward.NewHandler(wardSvc, sugar),
		Staff:       staff.NewHandler(staffSvc, sugar),
		Tasks:       task.NewHandler(taskSvc, sugar),
		Shops:       shop.NewHandler(shopSvc, sugar),
		Assessments: assessment.NewHandler(assessmentSvc, sugar),
		Attendance:  attendance.NewHandler(sessions, sugar),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		t := time.NewTicker(10 * time.Minute)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				limiter.Sweep(30 * time.Minute)
			}
		}
	}()

	srv := &http.Server{
		Addr:              routerCfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		sugar.Infow("http server listening", "addr", routerCfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugar.Fatalf("http server failed: %v", err)
		}
	}()

	<-ctx.Done()
	sugar.Info("shutting down")

	doneCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(doneCtx); err != nil {
		sugar.Warnf("http server shutdown failed: %v", err)
	}
	// logins and logouts accepted before shutdown still get their session rows
	if err := recorder.Wait(doneCtx); err != nil {
		sugar.Warnf("attendance tasks still running: %v", err)
	}
	sugar.Info("goodbye")
}
