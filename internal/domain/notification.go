package domain

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

// Event codes as sent by the gateway, lowercased.
const (
	EventAuthorisation  = "authorisation"
	EventCapture        = "capture"
	EventCaptureFailed  = "capture_failed"
	EventCancellation   = "cancellation"
	EventRefund         = "refund"
	EventCancelOrRefund = "cancel_or_refund"
)

var (
	ErrMalformedNotification = errors.New("malformed notification")
	ErrMalformedResponse     = errors.New("malformed gateway response")
)

type NotificationEvent struct {
	EventCode         string
	MerchantReference string
	PSPReference      string
	OriginalReference string
	Success           bool
	Amount            int64
	Currency          string
	EventDate         time.Time
	Live              bool
	IdempotencyKey    string
	Raw               map[string]string
}

// ParseNotification reads the flat key-value payload posted by the gateway.
// eventCode, merchantReference and success are required; everything else is
// optional and kept verbatim in Raw.
func ParseNotification(data map[string]string) (*NotificationEvent, error) {
	raw := make(map[string]string, len(data))
	for k, v := range data {
		raw[k] = v
	}

	ev := &NotificationEvent{
		EventCode:         strings.ToLower(strings.TrimSpace(raw["eventCode"])),
		MerchantReference: strings.TrimSpace(raw["merchantReference"]),
		PSPReference:      raw["pspReference"],
		OriginalReference: raw["originalReference"],
		Currency:          raw["currency"],
		IdempotencyKey:    raw["eventId"],
		Raw:               raw,
	}
	if ev.EventCode == "" || ev.MerchantReference == "" {
		return nil, ErrMalformedNotification
	}

	success, err := strconv.ParseBool(strings.ToLower(strings.TrimSpace(raw["success"])))
	if err != nil {
		return nil, ErrMalformedNotification
	}
	ev.Success = success

	if v := raw["value"]; v != "" {
		if amount, err := strconv.ParseInt(v, 10, 64); err == nil {
			ev.Amount = amount
		}
	}
	if v := raw["eventDate"]; v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			ev.EventDate = t
		}
	}
	ev.Live, _ = strconv.ParseBool(raw["live"])

	if ev.IdempotencyKey == "" {
		ev.IdempotencyKey = ev.DedupKey()
	}
	return ev, nil
}

// DedupKey is the gateway's natural identity of a notification. Redeliveries
// of one notification share it.
func (ev *NotificationEvent) DedupKey() string {
	ref := ev.PSPReference
	if ref == "" {
		ref = ev.MerchantReference
	}
	return ref + ":" + strings.ToLower(ev.EventCode) + ":" + strconv.FormatBool(ev.Success)
}

type ResponseKind string

const (
	ResponseAuthorisation ResponseKind = "authorisation"
	ResponseCapture       ResponseKind = "capture"
)

// Result codes of synchronous gateway acknowledgements.
const (
	ResultAuthorised = "AUTHORISED"
	ResultRefused    = "REFUSED"
	ResultCancelled  = "CANCELLED"
	ResultPending    = "PENDING"
	ResultError      = "ERROR"
	ResultReceived   = "RECEIVED"
	ResultRejected   = "REJECTED"
)

// SyncResponse is the direct answer to a redirect or capture request. It only
// proves the gateway received the request.
type SyncResponse struct {
	Kind              ResponseKind
	MerchantReference string
	PSPReference      string
	Result            string
	PaymentMethod     string
	Raw               map[string]string
}
