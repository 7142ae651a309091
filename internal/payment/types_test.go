package payment_test

import (
	"testing"

	"gateway-reconciler/internal/payment"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypes_RegisterKeepsOrder(t *testing.T) {
	types := payment.NewTypes()
	types.Register(payment.Type{Name: "openinvoice", Label: "Open invoice"})
	types.Register(payment.Type{Name: "card", Label: "Card"})
	types.Register(payment.Type{Name: "openinvoice", Label: "Invoice"})

	all := types.All()
	require.Len(t, all, 2)
	assert.Equal(t, "openinvoice", all[0].Name)
	assert.Equal(t, "Invoice", all[0].Label)
	assert.Equal(t, "card", all[1].Name)
}

func TestTypes_GetUnknown(t *testing.T) {
	_, err := payment.NewTypes().Get("ideal")
	assert.ErrorIs(t, err, payment.ErrUnknownType)
}

func TestTypes_CloneIsIndependent(t *testing.T) {
	types := payment.NewTypes()
	types.Register(payment.Type{Name: "openinvoice"})
	types.Register(payment.Type{Name: "card"})

	clone := types.Clone()
	clone.Remove("openinvoice")
	clone.Remove("missing")

	assert.Len(t, clone.All(), 1)
	assert.Len(t, types.All(), 2)
	_, err := types.Get("openinvoice")
	assert.NoError(t, err)
}
