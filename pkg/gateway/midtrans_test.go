package gateway

import (
	"crypto/sha512"
	"encoding/hex"
	"testing"

	midtrans "github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/snap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSnap struct {
	req  *snap.Request
	resp *snap.Response
	err  *midtrans.Error
}

func (s *stubSnap) CreateTransaction(req *snap.Request) (*snap.Response, *midtrans.Error) {
	s.req = req
	return s.resp, s.err
}

func sign(orderID, status, gross, key string) string {
	sum := sha512.Sum512([]byte(orderID + status + gross + key))
	return hex.EncodeToString(sum[:])
}

func TestCreateCheckout(t *testing.T) {
	stub := &stubSnap{resp: &snap.Response{Token: "tok", RedirectURL: "https://pay"}}
	client := &Client{serverKey: "key", snap: stub}

	out, err := client.CreateCheckout(CheckoutRequest{OrderID: "PAY-1", Amount: 150000, ItemName: "Class A"})
	require.NoError(t, err)
	assert.Equal(t, "tok", out.Token)
	assert.Equal(t, int64(150000), stub.req.TransactionDetails.GrossAmt)
	assert.Equal(t, "PAY-1", stub.req.TransactionDetails.OrderID)
}

func TestCreateCheckoutError(t *testing.T) {
	stub := &stubSnap{err: &midtrans.Error{Message: "bad key", StatusCode: 401}}
	client := &Client{serverKey: "key", snap: stub}

	_, err := client.CreateCheckout(CheckoutRequest{OrderID: "PAY-1", Amount: 1})
	assert.ErrorContains(t, err, "bad key")
}

func TestCreateCheckoutDisabled(t *testing.T) {
	var client *Client
	_, err := client.CreateCheckout(CheckoutRequest{OrderID: "x", Amount: 1})
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestVerifySignature(t *testing.T) {
	client := &Client{serverKey: "server-key"}
	n := Notification{OrderID: "PAY-1", StatusCode: "200", GrossAmount: "150000.00"}
	n.SignatureKey = sign(n.OrderID, n.StatusCode, n.GrossAmount, "server-key")
	assert.True(t, client.VerifySignature(n))

	n.GrossAmount = "1.00"
	assert.False(t, client.VerifySignature(n))
}

func TestClassify(t *testing.T) {
	assert.Equal(t, OutcomeApprove, Classify(Notification{TransactionStatus: "settlement"}))
	assert.Equal(t, OutcomeApprove, Classify(Notification{TransactionStatus: "capture", FraudStatus: "accept"}))
	assert.Equal(t, OutcomeIgnore, Classify(Notification{TransactionStatus: "capture", FraudStatus: "challenge"}))
	assert.Equal(t, OutcomeReject, Classify(Notification{TransactionStatus: "expire"}))
	assert.Equal(t, OutcomeIgnore, Classify(Notification{TransactionStatus: "pending"}))
}
