package api

import (
	"context"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/dphilippe/vitality-server/db"
	"github.com/dphilippe/vitality-server/service/metrics"
	"github.com/dphilippe/vitality-server/service/notification"
	"github.com/dphilippe/vitality-server/service/patient"
	"github.com/dphilippe/vitality-server/service/practitioner"
	"github.com/dphilippe/vitality-server/service/program"
	"github.com/dphilippe/vitality-server/service/store"
	"github.com/dphilippe/vitality-server/service/vault"
	"github.com/dphilippe/vitality-server/service/vitality"
	"github.com/dphilippe/vitality-server/service/ws"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"gorm.io/gorm"
)

const redeliveryInterval = 30 * time.Second

type APIServer struct {
	address string
	db      *gorm.DB
}

func NewApiServer(address string, db *gorm.DB) *APIServer {
	return &APIServer{
		address: address,
		db:      db,
	}
}

// Run wires every service and blocks serving HTTP until ctx is cancelled.
// Cancelling ctx also stops the payment settlement worker and the
// notification redelivery sweep.
func (s *APIServer) Run(ctx context.Context) error {
	router := mux.NewRouter()
	subrouter := router.PathPrefix("/api/v1").Subrouter()

	hub := ws.NewHub()
	notifier := notification.NewPractitionerNotifier(s.db, hub)
	go notifier.RunRedeliverySweep(ctx, redeliveryInterval)

	machine := vitality.NewMachine(ctx, s.db, notifier, vitality.DefaultSettleDelay)

	otps := patient.NewOTPStore(db.NewRedisClient())

	patientHandler := patient.NewHandler(s.db, otps)
	patientHandler.RegisterRoutes(subrouter)

	vitalityHandler := vitality.NewHandler(s.db, machine)
	vitalityHandler.RegisterRoutes(subrouter)

	practitionerHandler := practitioner.NewHandler(s.db, machine)
	practitionerHandler.RegisterRoutes(subrouter)

	programHandler := program.NewHandler(s.db)
	programHandler.RegisterRoutes(subrouter)

	storeHandler := store.NewHandler(s.db)
	storeHandler.RegisterRoutes(subrouter)

	vaultHandler := vault.NewHandler(s.db)
	vaultHandler.RegisterRoutes(subrouter)

	notificationHandler := notification.NewHandler(s.db)
	notificationHandler.RegisterRoutes(subrouter)

	wsHandler := ws.NewHandler(hub)
	wsHandler.RegisterRoutes(router)

	router.Handle("/metrics", metrics.Handler()).Methods("GET")
	router.PathPrefix("/receipts/").Handler(
		http.StripPrefix("/receipts/", http.FileServer(http.Dir("uploads/receipts"))))

	cors := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	)

	server := &http.Server{
		Addr:    s.address,
		Handler: cors(handlers.LoggingHandler(os.Stdout, router)),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Println("Server running at", s.address)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	machine.Wait()
	return nil
}
