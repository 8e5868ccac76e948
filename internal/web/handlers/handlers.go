package handlers

import (
	"context"
	"encoding/json"
	"log"
	"math"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sorteomx/sorteo/internal/payments"
	"github.com/sorteomx/sorteo/internal/raffle"
	"github.com/sorteomx/sorteo/internal/store"
	"github.com/sorteomx/sorteo/internal/token"
	"github.com/sorteomx/sorteo/pkg/models"
)

// CheckoutCreator opens a hosted checkout session with the payment
// provider. Satisfied by *payments.Client.
type CheckoutCreator interface {
	CreateCheckoutSession(ctx context.Context, p payments.SessionParams) (string, error)
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	ledger     store.Ledger
	service    *raffle.Service
	reconciler *raffle.Reconciler
	drawer     *raffle.Drawer
	reporter   *raffle.Reporter
	checkout   CheckoutCreator

	projectURL    string
	webhookSecret string
}

// New creates a new Handler.
func New(ledger store.Ledger, service *raffle.Service, reconciler *raffle.Reconciler, drawer *raffle.Drawer, reporter *raffle.Reporter, checkout CheckoutCreator, projectURL, webhookSecret string) *Handler {
	return &Handler{
		ledger:        ledger,
		service:       service,
		reconciler:    reconciler,
		drawer:        drawer,
		reporter:      reporter,
		checkout:      checkout,
		projectURL:    projectURL,
		webhookSecret: webhookSecret,
	}
}

// Routes builds the HTTP router: the JSON API behind bearer auth plus the
// unauthenticated payment webhook and health check.
func (h *Handler) Routes(tokens *token.Service) chi.Router {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// The payment provider signs its own requests; no bearer auth here.
	r.Post("/webhooks/payment", h.PaymentWebhook)

	r.Route("/api", func(r chi.Router) {
		r.Use(AuthMiddleware(tokens))

		r.Get("/products", h.ListProducts)
		r.Post("/products", h.CreateProduct)
		r.Post("/products/{id}/deactivate", h.DeactivateProduct)
		r.Post("/products/{id}/draw", h.DrawWinner)
		r.Get("/sales-report", h.SalesReport)

		r.Post("/purchases", h.CreatePurchase)
		r.Post("/checkout-session", h.CreateCheckoutSession)
	})

	return r
}

// ListProducts returns every raffle, newest first, for the product gallery.
// GET /api/products
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.ledger.ListProducts(r.Context())
	if err != nil {
		log.Printf("error listing products: %v", err)
		writeError(w, raffle.Errorf(raffle.KindInternal, "could not load the raffles"))
		return
	}
	if products == nil {
		products = []models.Product{}
	}
	jsonOK(w, http.StatusOK, map[string]interface{}{"products": products})
}

type createProductReq struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	ImageURL    string  `json:"imageUrl"`
	BaseCost    float64 `json:"baseCost"`
}

// CreateProduct registers a new raffle with derived pricing.
// POST /api/products
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := GetIdentityFromContext(r.Context())
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, string(raffle.KindUnauthenticated), "not signed in")
		return
	}

	var req createProductReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, string(raffle.KindInvalidArgument), "invalid request body")
		return
	}

	productID, err := h.service.CreateProduct(r.Context(), id.UID, raffle.CreateProductInput{
		Name:        req.Name,
		Description: req.Description,
		ImageURL:    req.ImageURL,
		BaseCost:    req.BaseCost,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	jsonOK(w, http.StatusCreated, map[string]interface{}{
		"success":   true,
		"message":   "The raffle was created successfully.",
		"productId": productID,
	})
}

// DeactivateProduct takes a raffle off sale.
// POST /api/products/{id}/deactivate
func (h *Handler) DeactivateProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := GetIdentityFromContext(r.Context())
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, string(raffle.KindUnauthenticated), "not signed in")
		return
	}

	if err := h.service.DeactivateProduct(r.Context(), id.UID, chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}

	jsonOK(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "The raffle was deactivated.",
	})
}

// DrawWinner picks the winning ticket for a completed raffle.
// POST /api/products/{id}/draw
func (h *Handler) DrawWinner(w http.ResponseWriter, r *http.Request) {
	id, ok := GetIdentityFromContext(r.Context())
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, string(raffle.KindUnauthenticated), "not signed in")
		return
	}

	res, err := h.drawer.Draw(r.Context(), id.UID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	jsonOK(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "The winner is " + res.WinnerEmail + "!",
		"winner":  res.WinnerEmail,
	})
}

// SalesReport aggregates completed sales for a named period or an explicit
// from/to range.
// GET /api/sales-report?period=day|week|month
// GET /api/sales-report?from=RFC3339&to=RFC3339
func (h *Handler) SalesReport(w http.ResponseWriter, r *http.Request) {
	id, ok := GetIdentityFromContext(r.Context())
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, string(raffle.KindUnauthenticated), "not signed in")
		return
	}

	var (
		report *raffle.Report
		err    error
	)
	if fromStr := r.URL.Query().Get("from"); fromStr != "" {
		var from, to time.Time
		from, err = time.Parse(time.RFC3339, fromStr)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, string(raffle.KindInvalidArgument), "from must be RFC 3339 format")
			return
		}
		if toStr := r.URL.Query().Get("to"); toStr != "" {
			to, err = time.Parse(time.RFC3339, toStr)
			if err != nil {
				writeJSONError(w, http.StatusBadRequest, string(raffle.KindInvalidArgument), "to must be RFC 3339 format")
				return
			}
		}
		report, err = h.reporter.ForRange(r.Context(), id.UID, from, to)
	} else {
		report, err = h.reporter.ForPeriod(r.Context(), id.UID, r.URL.Query().Get("period"))
	}
	if err != nil {
		writeError(w, err)
		return
	}

	jsonOK(w, http.StatusOK, report)
}

type createPurchaseReq struct {
	ProductID     string `json:"productId"`
	TicketsBought int    `json:"ticketsBought"`
}

// CreatePurchase records a pending purchase ahead of checkout.
// POST /api/purchases
func (h *Handler) CreatePurchase(w http.ResponseWriter, r *http.Request) {
	id, ok := GetIdentityFromContext(r.Context())
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, string(raffle.KindUnauthenticated), "not signed in")
		return
	}

	var req createPurchaseReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, string(raffle.KindInvalidArgument), "invalid request body")
		return
	}

	purchaseID, err := h.service.CreatePurchase(r.Context(), id.UID, req.ProductID, req.TicketsBought)
	if err != nil {
		writeError(w, err)
		return
	}

	jsonOK(w, http.StatusCreated, map[string]interface{}{
		"purchaseId": purchaseID,
	})
}

type checkoutSessionReq struct {
	PurchaseID string `json:"purchaseId"`
}

// CreateCheckoutSession opens a hosted checkout session for a pending
// purchase and returns the redirect URL.
// POST /api/checkout-session
func (h *Handler) CreateCheckoutSession(w http.ResponseWriter, r *http.Request) {
	id, ok := GetIdentityFromContext(r.Context())
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, string(raffle.KindUnauthenticated), "not signed in")
		return
	}

	var req checkoutSessionReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PurchaseID == "" {
		writeJSONError(w, http.StatusBadRequest, string(raffle.KindInvalidArgument), "purchaseId is required")
		return
	}

	purchase, err := h.ledger.GetPurchase(r.Context(), req.PurchaseID)
	if err != nil {
		log.Printf("error loading purchase %s: %v", req.PurchaseID, err)
		writeError(w, raffle.Errorf(raffle.KindInternal, "could not load the purchase"))
		return
	}
	if purchase == nil || purchase.UserID != id.UID {
		writeError(w, raffle.Errorf(raffle.KindNotFound, "the purchase does not exist"))
		return
	}

	product, err := h.ledger.GetProduct(r.Context(), purchase.ProductID)
	if err != nil {
		log.Printf("error loading product %s: %v", purchase.ProductID, err)
		writeError(w, raffle.Errorf(raffle.KindInternal, "could not load the raffle"))
		return
	}
	if product == nil {
		writeError(w, raffle.Errorf(raffle.KindNotFound, "the raffle does not exist"))
		return
	}

	url, err := h.checkout.CreateCheckoutSession(r.Context(), payments.SessionParams{
		ProductName:     product.Name,
		UnitAmountCents: int64(math.Round(product.TicketPrice * 100)),
		Quantity:        purchase.TicketsBought,
		SuccessURL:      h.projectURL + "/tickets",
		CancelURL:       h.projectURL + "/product/" + product.ID,
		PurchaseID:      purchase.ID,
	})
	if err != nil {
		log.Printf("error creating checkout session for purchase %s: %v", purchase.ID, err)
		writeError(w, raffle.Errorf(raffle.KindInternal, "could not start the checkout"))
		return
	}

	jsonOK(w, http.StatusOK, map[string]interface{}{"url": url})
}

// --- helpers ---

// statusForKind maps the error taxonomy onto HTTP status codes.
func statusForKind(kind raffle.Kind) int {
	switch kind {
	case raffle.KindUnauthenticated:
		return http.StatusUnauthorized
	case raffle.KindPermissionDenied:
		return http.StatusForbidden
	case raffle.KindInvalidArgument:
		return http.StatusBadRequest
	case raffle.KindNotFound:
		return http.StatusNotFound
	case raffle.KindFailedPrecondition:
		return http.StatusPreconditionFailed
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	kind := raffle.KindOf(err)
	writeJSONError(w, statusForKind(kind), string(kind), raffle.Message(err))
}

func writeJSONError(w http.ResponseWriter, status int, kind, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"error":   kind,
		"message": msg,
	})
}

func jsonOK(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
