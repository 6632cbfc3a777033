// Package gateway wraps the Midtrans Snap checkout API.
package gateway

import (
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"

	midtrans "github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/snap"
)

// ErrDisabled is returned when checkout is requested but the gateway is off.
var ErrDisabled = errors.New("payment gateway disabled")

// Customer identifies the payer on the hosted checkout page.
type Customer struct {
	Name  string
	Email string
	Phone string
}

// CheckoutRequest is one Snap transaction.
type CheckoutRequest struct {
	OrderID  string
	Amount   int64
	ItemName string
	Customer Customer
}

// Checkout is the hosted-payment handle returned to the client.
type Checkout struct {
	Token       string `json:"token"`
	RedirectURL string `json:"redirectUrl"`
}

// Notification is the subset of the Midtrans HTTP notification body we act on.
type Notification struct {
	OrderID           string `json:"order_id" binding:"required"`
	StatusCode        string `json:"status_code" binding:"required"`
	GrossAmount       string `json:"gross_amount" binding:"required"`
	SignatureKey      string `json:"signature_key" binding:"required"`
	TransactionStatus string `json:"transaction_status" binding:"required"`
	FraudStatus       string `json:"fraud_status"`
	PaymentType       string `json:"payment_type"`
	TransactionID     string `json:"transaction_id"`
}

// Outcome is what a notification means for the payment ledger.
type Outcome int

const (
	OutcomeIgnore Outcome = iota
	OutcomeApprove
	OutcomeReject
)

// snapAPI is the subset of snap.Client used.
type snapAPI interface {
	CreateTransaction(req *snap.Request) (*snap.Response, *midtrans.Error)
}

// Client issues Snap checkouts and authenticates notifications.
type Client struct {
	serverKey string
	snap      snapAPI
}

// NewClient configures a Snap client for sandbox or production.
func NewClient(serverKey string, production bool) *Client {
	env := midtrans.Sandbox
	if production {
		env = midtrans.Production
	}
	var sc snap.Client
	sc.New(serverKey, env)
	return &Client{serverKey: serverKey, snap: &sc}
}

// CreateCheckout opens a Snap transaction.
func (c *Client) CreateCheckout(req CheckoutRequest) (*Checkout, error) {
	if c == nil {
		return nil, ErrDisabled
	}
	if req.OrderID == "" || req.Amount <= 0 {
		return nil, fmt.Errorf("order id and positive amount required")
	}
	name := req.ItemName
	if len(name) > 50 {
		name = name[:50]
	}
	snapReq := &snap.Request{
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:  req.OrderID,
			GrossAmt: req.Amount,
		},
		CustomerDetail: &midtrans.CustomerDetails{
			FName: req.Customer.Name,
			Email: req.Customer.Email,
			Phone: req.Customer.Phone,
		},
		Items: &[]midtrans.ItemDetails{{
			ID:    req.OrderID,
			Name:  name,
			Price: req.Amount,
			Qty:   1,
		}},
	}
	resp, mErr := c.snap.CreateTransaction(snapReq)
	if mErr != nil {
		return nil, fmt.Errorf("snap create transaction: %s", mErr.GetMessage())
	}
	return &Checkout{Token: resp.Token, RedirectURL: resp.RedirectURL}, nil
}

// VerifySignature checks signature_key = sha512(order_id + status_code + gross_amount + server_key).
func (c *Client) VerifySignature(n Notification) bool {
	if c == nil || c.serverKey == "" {
		return false
	}
	sum := sha512.Sum512([]byte(n.OrderID + n.StatusCode + n.GrossAmount + c.serverKey))
	expected := hex.EncodeToString(sum[:])
	return subtle.ConstantTimeCompare([]byte(expected), []byte(n.SignatureKey)) == 1
}

// Classify maps a transaction status onto a ledger outcome.
func Classify(n Notification) Outcome {
	switch n.TransactionStatus {
	case "settlement":
		return OutcomeApprove
	case "capture":
		if n.FraudStatus == "" || n.FraudStatus == "accept" {
			return OutcomeApprove
		}
		return OutcomeIgnore
	case "deny", "cancel", "expire", "failure":
		return OutcomeReject
	default:
		return OutcomeIgnore
	}
}
