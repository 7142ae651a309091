package payment

import (
	"errors"
	"fmt"
	"time"

	"gateway-reconciler/internal/domain"
)

var ErrUnknownType = errors.New("unknown payment type")

// Builder adds the fields specific to one payment type.
type Builder interface {
	Build(req *Request, co *domain.Checkout) error
}

// Validator is implemented by builders that need checkout details checked
// before a request is built.
type Validator interface {
	Validate(co *domain.Checkout, now time.Time) error
}

// Type describes a payment type offered on checkout.
type Type struct {
	Name     string
	Label    string
	SubTypes map[string]string
	Builder  Builder
}

// Types is the set of payment types the service can build requests for.
type Types struct {
	byName map[string]Type
	order  []string
}

func NewTypes() *Types {
	return &Types{byName: make(map[string]Type)}
}

func (t *Types) Register(pt Type) {
	if _, ok := t.byName[pt.Name]; !ok {
		t.order = append(t.order, pt.Name)
	}
	t.byName[pt.Name] = pt
}

func (t *Types) Remove(name string) {
	if _, ok := t.byName[name]; !ok {
		return
	}
	delete(t.byName, name)
	for i, n := range t.order {
		if n == name {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}

func (t *Types) Get(name string) (Type, error) {
	pt, ok := t.byName[name]
	if !ok {
		return Type{}, fmt.Errorf("%w: %q", ErrUnknownType, name)
	}
	return pt, nil
}

// All returns the registered types in registration order.
func (t *Types) All() []Type {
	out := make([]Type, 0, len(t.order))
	for _, n := range t.order {
		out = append(out, t.byName[n])
	}
	return out
}

// Clone returns a copy that can be altered without touching t.
func (t *Types) Clone() *Types {
	c := NewTypes()
	for _, pt := range t.All() {
		c.Register(pt)
	}
	return c
}
