// Package models defines the persisted record types shared by the store,
// the raffle core, and the HTTP handlers.
package models

import "time"

// ProductStatus represents the lifecycle state of a raffle product.
// Transitions are monotonic: active -> completed -> drawn, or
// active -> inactive.
type ProductStatus string

const (
	ProductActive    ProductStatus = "active"
	ProductCompleted ProductStatus = "completed"
	ProductDrawn     ProductStatus = "drawn"
	ProductInactive  ProductStatus = "inactive"
)

// Product is a raffle campaign. TotalGoal, TotalTickets and TicketPrice are
// derived from BaseCost at creation time and never change afterwards.
type Product struct {
	ID           string        `json:"id" firestore:"-"`
	Name         string        `json:"name" firestore:"name"`
	Description  string        `json:"description" firestore:"description"`
	ImageURL     string        `json:"imageUrl" firestore:"imageUrl"`
	BaseCost     float64       `json:"baseCost" firestore:"baseCost"`
	TotalGoal    float64       `json:"totalGoal" firestore:"totalGoal"`
	TicketPrice  float64       `json:"ticketPrice" firestore:"ticketPrice"`
	TotalTickets int           `json:"totalTickets" firestore:"totalTickets"`
	TicketsSold  int           `json:"ticketsSold" firestore:"ticketsSold"`
	Status       ProductStatus `json:"status" firestore:"status"`
	AdminID      string        `json:"adminId" firestore:"adminId"`
	WinnerID     string        `json:"winnerId,omitempty" firestore:"winnerId"`
	CreatedAt    time.Time     `json:"createdAt" firestore:"createdAt"`
}

// PaymentStatus is the settlement state of a purchase.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
)

// Purchase is one user's attempt to buy N tickets for a product. It is
// created pending and moves to completed exactly once, when the payment
// provider confirms the charge.
type Purchase struct {
	ID            string        `json:"id" firestore:"-"`
	ProductID     string        `json:"productId" firestore:"productId"`
	UserID        string        `json:"userId" firestore:"userId"`
	TicketsBought int           `json:"ticketsBought" firestore:"ticketsBought"`
	PaymentStatus PaymentStatus `json:"paymentStatus" firestore:"paymentStatus"`
	CreatedAt     time.Time     `json:"createdAt" firestore:"createdAt"`
}

// Ticket is one drawable entry, materialized when its purchase is
// reconciled. Tickets are immutable.
type Ticket struct {
	ID         string `json:"id" firestore:"-"`
	ProductID  string `json:"productId" firestore:"productId"`
	UserID     string `json:"userId" firestore:"userId"`
	PurchaseID string `json:"purchaseId" firestore:"purchaseId"`
}

// Role is a user's authorization level.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// User is the read-only projection of an identity-provider account. The
// raffle service never creates or mutates users.
type User struct {
	ID    string `json:"id" firestore:"-"`
	Email string `json:"email" firestore:"email"`
	Role  Role   `json:"role" firestore:"role"`
}

// IsAdmin reports whether the user holds the admin role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// MailStatus tracks outbox delivery progress.
type MailStatus string

const (
	MailPending MailStatus = "pending"
	MailSent    MailStatus = "sent"
)

// Mail is a notification outbox record. The core enqueues pending mail; the
// relay hands it to the delivery pipeline and marks it sent.
type Mail struct {
	ID        string     `json:"id" firestore:"-"`
	To        string     `json:"to" firestore:"to"`
	Subject   string     `json:"subject" firestore:"subject"`
	Body      string     `json:"body" firestore:"body"`
	Status    MailStatus `json:"status" firestore:"status"`
	CreatedAt time.Time  `json:"createdAt" firestore:"createdAt"`
}
