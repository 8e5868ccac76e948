package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	fbauth "firebase.google.com/go/v4/auth"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"google.golang.org/api/option"

	"github.com/sorteomx/sorteo/config"
	"github.com/sorteomx/sorteo/internal/mailer"
	"github.com/sorteomx/sorteo/internal/payments"
	"github.com/sorteomx/sorteo/internal/raffle"
	"github.com/sorteomx/sorteo/internal/store"
	"github.com/sorteomx/sorteo/internal/token"
	"github.com/sorteomx/sorteo/internal/web/handlers"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("sorteo-server %s\n", version)
		fmt.Printf("Commit: %s\n", commit)
		fmt.Printf("Built: %s\n", buildDate)
		os.Exit(0)
	}

	cfg := config.Load()

	if cfg.JWT.SigningKey == "" {
		log.Println("WARNING: JWT_SIGNING_KEY is empty, using insecure default (set JWT_SIGNING_KEY in production)")
		cfg.JWT.SigningKey = "insecure-dev-secret-change-me"
	}

	ctx := context.Background()

	// Initialize the ledger store.
	ledger, cleanup, err := openLedger(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize ledger store: %v", err)
	}
	defer cleanup()

	// Initialize the token service (Firebase verification when configured,
	// local HS256 otherwise).
	authClient := firebaseAuthClient(ctx, cfg)
	tokens := token.New(cfg.JWT.SigningKey, cfg.JWT.Issuer, authClient)

	// Initialize core components.
	guard := raffle.NewGuard(ledger)
	service := raffle.NewService(ledger, guard)
	reconciler := raffle.NewReconciler(ledger)
	drawer := raffle.NewDrawer(ledger, guard)
	reporter := raffle.NewReporter(ledger, guard)

	// The monitor reacts to every committed product change; it completes
	// raffles that hit their goal and notifies the owner.
	monitor := raffle.NewMonitor(ledger)
	ledger.SubscribeProductUpdates(monitor.OnProductUpdated)

	checkout := payments.NewClient(cfg.Stripe.SecretKey)

	// The outbox relay drains pending mail into Kafka. It runs in-process
	// because it needs ledger access; the mail-sender worker consumes the
	// topic on the other side.
	relayCtx, stopRelay := context.WithCancel(ctx)
	defer stopRelay()
	if len(cfg.Kafka.Brokers) > 0 {
		writer := mailer.NewWriter(cfg.Kafka.Brokers)
		defer writer.Close()

		relay := mailer.NewRelay(ledger, writer, time.Duration(cfg.Mail.RelayIntervalSeconds)*time.Second)
		go func() {
			if err := relay.Run(relayCtx); err != nil {
				log.Printf("Mail relay stopped: %v", err)
			}
		}()
	}

	h := handlers.New(ledger, service, reconciler, drawer, reporter, checkout, cfg.Server.ProjectURL, cfg.Stripe.WebhookSecret)

	// Initialize router.
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))
	r.Mount("/", h.Routes(tokens))

	// Start server.
	addr := fmt.Sprintf(":%s", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
		<-sigint

		log.Println("Shutting down server...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	log.Printf("Sorteo server starting on %s (env: %s, store: %s)", addr, cfg.Server.Env, cfg.Store.Driver)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}
	log.Println("Server stopped")
}

// openLedger selects the ledger implementation from config. The memory
// driver backs local development without a Firestore project.
func openLedger(ctx context.Context, cfg *config.Config) (store.Ledger, func(), error) {
	switch cfg.Store.Driver {
	case "memory":
		return store.NewMemory(), func() {}, nil

	case "firestore":
		if cfg.Firebase.UseEmulator {
			os.Setenv("FIRESTORE_EMULATOR_HOST", cfg.Firebase.EmulatorFirestoreHost)
		}

		var opts []option.ClientOption
		if cfg.Firebase.CredentialsPath != "" {
			opts = append(opts, option.WithCredentialsFile(cfg.Firebase.CredentialsPath))
		}

		client, err := firestore.NewClientWithDatabase(ctx, cfg.Firebase.ProjectID, cfg.Firebase.FirestoreDatabase, opts...)
		if err != nil {
			return nil, nil, fmt.Errorf("firestore client: %w", err)
		}

		fs := store.NewFirestore(client)
		return fs, func() {
			if err := fs.Close(); err != nil {
				log.Printf("Error closing firestore client: %v", err)
			}
		}, nil

	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// firebaseAuthClient returns a Firebase Auth client when a project is
// configured, nil otherwise (the token service then falls back to local
// HS256 verification).
func firebaseAuthClient(ctx context.Context, cfg *config.Config) *fbauth.Client {
	if cfg.Firebase.ProjectID == "" {
		log.Println("Firebase project not configured; bearer tokens are verified locally")
		return nil
	}

	if cfg.Firebase.UseEmulator {
		os.Setenv("FIREBASE_AUTH_EMULATOR_HOST", cfg.Firebase.EmulatorAuthHost)
	}

	var opts []option.ClientOption
	if cfg.Firebase.CredentialsPath != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.Firebase.CredentialsPath))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.Firebase.ProjectID}, opts...)
	if err != nil {
		log.Fatalf("Failed to initialize firebase app: %v", err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		log.Fatalf("Failed to initialize firebase auth client: %v", err)
	}
	return client
}
