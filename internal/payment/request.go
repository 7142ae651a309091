package payment

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"gateway-reconciler/internal/domain"
)

// Request is the flat, dot-path keyed payload submitted to the gateway's
// hosted payment page (e.g. "openinvoicedata.line1.itemAmount").
type Request struct {
	fields map[string]string
	keys   []string
}

func NewRequest() *Request {
	return &Request{fields: make(map[string]string)}
}

// Set stores a value, converting integers and booleans to their wire form.
// Other values are stored as JSON. A value that cannot be encoded leaves the
// request unchanged and returns an error.
func (r *Request) Set(key string, value any) error {
	var s string
	switch v := value.(type) {
	case string:
		s = v
	case int:
		s = strconv.Itoa(v)
	case int64:
		s = strconv.FormatInt(v, 10)
	case bool:
		s = strconv.FormatBool(v)
	case time.Time:
		s = v.UTC().Format(time.RFC3339)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("set %s: %w", key, err)
		}
		s = string(b)
	}
	if _, ok := r.fields[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.fields[key] = s
	return nil
}

func (r *Request) Get(key string) (string, bool) {
	v, ok := r.fields[key]
	return v, ok
}

func (r *Request) Delete(key string) {
	if _, ok := r.fields[key]; !ok {
		return
	}
	delete(r.fields, key)
	for i, k := range r.keys {
		if k == key {
			r.keys = append(r.keys[:i], r.keys[i+1:]...)
			break
		}
	}
}

// Keys returns field names in the order they were first set.
func (r *Request) Keys() []string {
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

// Fields returns a copy of the payload.
func (r *Request) Fields() map[string]string {
	out := make(map[string]string, len(r.fields))
	for k, v := range r.fields {
		out[k] = v
	}
	return out
}

func (r *Request) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.fields)
}

// SortedKeys is Keys in lexical order, for stable signing and rendering.
func (r *Request) SortedKeys() []string {
	keys := r.Keys()
	sort.Strings(keys)
	return keys
}

// Settings are the merchant-level values every authorisation request carries.
type Settings struct {
	MerchantAccount string
	SkinCode        string
	SessionValidity time.Duration
	ShipWithin      time.Duration
}

// NewAuthorisationRequest fills the fields common to all payment types.
func NewAuthorisationRequest(co *domain.Checkout, s Settings, now time.Time) *Request {
	order := co.Order
	r := NewRequest()

	merchantAccount := co.Method.MerchantAccount
	if merchantAccount == "" {
		merchantAccount = s.MerchantAccount
	}
	skinCode := co.Method.SkinCode
	if skinCode == "" {
		skinCode = s.SkinCode
	}

	r.Set("merchantReference", order.MerchantReference)
	r.Set("paymentAmount", order.Total)
	r.Set("currencyCode", order.Currency)
	r.Set("merchantAccount", merchantAccount)
	r.Set("skinCode", skinCode)
	r.Set("sessionValidity", now.Add(s.SessionValidity))
	r.Set("shipBeforeDate", now.Add(s.ShipWithin).Format("2006-01-02"))
	r.Set("shopperEmail", order.Email)
	r.Set("shopperReference", order.UserID.String())
	if co.Method.ShopperLocale != "" {
		r.Set("shopperLocale", co.Method.ShopperLocale)
	}
	if co.Method.SubType != "" {
		r.Set("brandCode", co.Method.SubType)
	}
	return r
}
