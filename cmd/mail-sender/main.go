// mail-sender is a long-running Kafka consumer that reads outbound raffle
// notifications from the "mail-outbox" topic and delivers them via the
// configured email backend.
//
// Configuration is done entirely via environment variables so the binary runs
// identically in Docker, on bare metal, or in any CI environment:
//
//	KAFKA_BROKERS  comma-separated broker list, e.g. "kafka:9092"
//	MAIL_API_KEY   Resend API key (starts with "re_...")
//	MAIL_FROM      verified sender address, e.g. "rifas@sorteo.mx"
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sorteomx/sorteo/internal/mailer"
)

func main() {
	brokers := requireEnv("KAFKA_BROKERS")
	apiKey := requireEnv("MAIL_API_KEY")
	from := requireEnv("MAIL_FROM")

	sender := mailer.NewResendSender(apiKey, from)
	consumer := mailer.NewConsumer(strings.Split(brokers, ","), sender)
	defer func() {
		if err := consumer.Close(); err != nil {
			log.Printf("mail-sender: error closing consumer: %v", err)
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Printf("mail-sender: starting (brokers=%s from=%s)", brokers, from)
	if err := consumer.Run(ctx); err != nil {
		log.Fatalf("mail-sender: fatal error: %v", err)
	}
	log.Println("mail-sender: shutdown complete")
}

// requireEnv returns the value of the named environment variable or calls
// log.Fatal if it is empty.  This keeps startup-time misconfiguration loud and
// obvious rather than surfacing as a runtime nil-pointer or auth failure later.
func requireEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Fatalf("mail-sender: required environment variable %q is not set", key)
	}
	return v
}
