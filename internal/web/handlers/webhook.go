package handlers

import (
	"io"
	"log"
	"net/http"

	"github.com/sorteomx/sorteo/internal/payments"
	"github.com/sorteomx/sorteo/internal/raffle"
)

// PaymentWebhook reconciles a purchase after the payment provider confirms
// a checkout session. The provider expects plain status codes, not the
// structured error body: 400 means "do not retry", 500 means "retry later".
// POST /webhooks/payment
func (h *Handler) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		log.Printf("error reading webhook body: %v", err)
		http.Error(w, "could not read body", http.StatusBadRequest)
		return
	}

	if h.webhookSecret != "" {
		if err := payments.VerifySignature(body, r.Header.Get("Stripe-Signature"), h.webhookSecret); err != nil {
			log.Printf("webhook signature rejected: %v", err)
			http.Error(w, "invalid signature", http.StatusBadRequest)
			return
		}
	}

	purchaseID, err := payments.ExtractPurchaseID(body)
	if err != nil {
		log.Printf("error decoding webhook event: %v", err)
		http.Error(w, "invalid event payload", http.StatusBadRequest)
		return
	}
	if purchaseID == "" {
		http.Error(w, "missing purchaseId", http.StatusBadRequest)
		return
	}

	if err := h.reconciler.Reconcile(r.Context(), purchaseID); err != nil {
		log.Printf("error reconciling purchase %s: %v", purchaseID, err)
		if raffle.KindOf(err) == raffle.KindInvalidArgument {
			http.Error(w, raffle.Message(err), http.StatusBadRequest)
			return
		}
		http.Error(w, "reconciliation failed", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}
