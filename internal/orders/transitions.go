package orders

import (
	"fmt"

	"github.com/mtarikucar/kds-sub004/pkg/enums"
	pkgerrors "github.com/mtarikucar/kds-sub004/pkg/errors"
)

var stageRank = map[enums.OrderStatus]int{
	enums.OrderStatusPending:   0,
	enums.OrderStatusPreparing: 1,
	enums.OrderStatusReady:     2,
}

// checkRequestedTransition validates an explicit status request. PAID is only
// reached through settlement.
func checkRequestedTransition(from, to enums.OrderStatus) error {
	if from.IsTerminal() {
		return invalidTransition(from, to, "order is closed")
	}
	switch to {
	case enums.OrderStatusCancelled:
		return nil
	case enums.OrderStatusPaid:
		return invalidTransition(from, to, "orders become paid through payments")
	}
	toRank, ok := stageRank[to]
	if !ok {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown order status %q", to))
	}
	if toRank <= stageRank[from] {
		return invalidTransition(from, to, "status cannot move backwards")
	}
	return nil
}

func invalidTransition(from, to enums.OrderStatus, reason string) error {
	return pkgerrors.New(pkgerrors.CodeInvalidTransition, reason).WithDetails(map[string]string{
		"from": from.String(),
		"to":   to.String(),
	})
}
