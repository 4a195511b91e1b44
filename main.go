package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	intconfig "busbooking/internal/config"
	"busbooking/internal/gateway"
	router "busbooking/internal/http"
	h "busbooking/internal/http/handlers"
	"busbooking/internal/repositories"
	"busbooking/internal/repositories/memory"
	"busbooking/internal/services"
	"busbooking/internal/utils"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

type stores struct {
	name      string
	bookings  services.BookingStore
	payments  services.PaymentStore
	ledger    services.SeatLedger
	schedules services.ScheduleDirectory
	customers services.CustomerDirectory
	ping      func(ctx context.Context) error
}

func main() {
	env := intconfig.LoadEnv()
	utils.SetLogLevel(env.LogLevel)
	log := utils.Logger()
	if env.GinMode != "" {
		gin.SetMode(env.GinMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, env)
	if err != nil {
		log.Error("gagal menyiapkan penyimpanan", "err", err)
		os.Exit(1)
	}
	defer intconfig.CloseDB()

	loc := env.Location()
	bookingSvc := services.BookingService{
		Bookings:  st.bookings,
		Ledger:    st.ledger,
		Schedules: st.schedules,
		PNR:       services.NewPNRGenerator(st.bookings),
		HoldTTL:   env.HoldTTL,
		Currency:  env.Currency,
		Location:  loc,
	}
	notifier := services.LogNotifier{}
	hs := h.Handlers{
		Bookings: bookingSvc,
		Payments: services.PaymentService{
			Bookings:  bookingSvc,
			Payments:  st.payments,
			Provider:  newProvider(env),
			Customers: st.customers,
			Notifier:  notifier,
			Timeout:   env.PaymentTimeout,
		},
		Cancellations: services.CancellationService{Bookings: bookingSvc, Notifier: notifier},
		Tickets:       services.TicketService{Bookings: bookingSvc, Schedules: st.schedules, Location: loc},
		StoreName:     st.name,
		Ping:          st.ping,
	}
	sweeper := services.ExpirySweeper{Ledger: st.ledger, Bookings: bookingSvc, Payments: st.payments, Interval: env.SweepInterval}

	srv := &http.Server{
		Addr:              env.AppAddr,
		Handler:           router.NewRouter(env, hs),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       20 * time.Second,
		WriteTimeout:      20 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("server berjalan", "addr", env.AppAddr, "store", st.name)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return sweeper.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("mematikan server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server berhenti dengan error", "err", err)
		os.Exit(1)
	}
	log.Info("server berhenti dengan aman")
}

func openStores(ctx context.Context, env intconfig.Env) (stores, error) {
	if env.StoreDriver == "memory" {
		dir := memory.NewDirectory()
		for _, s := range memory.DemoSchedules() {
			dir.AddSchedule(s)
		}
		return stores{
			name:      "memory",
			bookings:  memory.NewBookingStore(),
			payments:  memory.NewPaymentStore(),
			ledger:    memory.NewSeatLedger(),
			schedules: dir,
			customers: dir,
		}, nil
	}

	db, err := intconfig.ConnectDB(env.MySQLDSN)
	if err != nil {
		return stores{}, err
	}
	if err := repositories.EnsureSchema(ctx, db); err != nil {
		return stores{}, err
	}
	return stores{
		name:      "mysql",
		bookings:  repositories.BookingRepository{DB: db},
		payments:  repositories.PaymentRepository{DB: db},
		ledger:    repositories.SeatRepository{DB: db},
		schedules: repositories.ScheduleRepository{DB: db},
		customers: repositories.CustomerRepository{DB: db},
		ping:      intconfig.Ping,
	}, nil
}

func newProvider(env intconfig.Env) services.PaymentProvider {
	if strings.EqualFold(env.PaymentBaseURL, "sandbox") {
		secret := env.PaymentKeySecret
		if secret == "" {
			secret = "sandbox-secret"
		}
		utils.Logger().Warn("memakai sandbox pembayaran, jangan dipakai di produksi")
		return gateway.NewSandbox(secret)
	}
	return gateway.NewClient(env.PaymentBaseURL, env.PaymentKeyID, env.PaymentKeySecret, env.PaymentTimeout)
}
