package orders

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mtarikucar/kds-sub004/api/controllers/tenantcontext"
	"github.com/mtarikucar/kds-sub004/api/responses"
	"github.com/mtarikucar/kds-sub004/api/validators"
	internalorders "github.com/mtarikucar/kds-sub004/internal/orders"
	"github.com/mtarikucar/kds-sub004/pkg/enums"
	pkgerrors "github.com/mtarikucar/kds-sub004/pkg/errors"
	"github.com/mtarikucar/kds-sub004/pkg/logger"
	"github.com/mtarikucar/kds-sub004/pkg/pagination"
)

const maxFreeTextLength = 500

type createOrderItemRequest struct {
	ProductID string `json:"productId" validate:"required,uuid"`
	Name      string `json:"name" validate:"required,max=200"`
	Quantity  int    `json:"quantity" validate:"required,min=1"`
	UnitPrice string `json:"unitPrice" validate:"required,money"`
}

type createOrderRequest struct {
	TableID      *string                  `json:"tableId,omitempty" validate:"omitempty,uuid"`
	Type         string                   `json:"type" validate:"required,oneof=DINE_IN TAKEAWAY DELIVERY"`
	Discount     string                   `json:"discount,omitempty" validate:"omitempty,money"`
	CustomerName *string                  `json:"customerName,omitempty"`
	Notes        *string                  `json:"notes,omitempty"`
	Items        []createOrderItemRequest `json:"items" validate:"required,min=1,dive"`
}

type updateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=PENDING PREPARING READY PAID CANCELLED"`
}

type recordPaymentRequest struct {
	Method string `json:"method" validate:"required,oneof=CASH CARD DIGITAL"`
	Amount string `json:"amount" validate:"required,money"`
}

// Create opens a new order with its lines.
func Create(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		actor, err := tenantcontext.Resolve(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var payload createOrderRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		input, err := payload.toInput(actor)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		order, err := svc.CreateOrder(ctx, input)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, order)
	}
}

func (p createOrderRequest) toInput(actor tenantcontext.Actor) (internalorders.CreateOrderInput, error) {
	orderType, err := enums.ParseOrderType(p.Type)
	if err != nil {
		return internalorders.CreateOrderInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order type")
	}
	discount := decimal.Zero
	if strings.TrimSpace(p.Discount) != "" {
		if discount, err = validators.ParseMoney("discount", p.Discount); err != nil {
			return internalorders.CreateOrderInput{}, err
		}
	}

	input := internalorders.CreateOrderInput{
		TenantID:     actor.TenantID,
		ActorUserID:  actor.UserIDPtr(),
		Type:         orderType,
		Discount:     discount,
		CustomerName: sanitizeOptional(p.CustomerName),
		Notes:        sanitizeOptional(p.Notes),
		Items:        make([]internalorders.OrderItemInput, 0, len(p.Items)),
	}
	if p.TableID != nil {
		tableID, err := uuid.Parse(*p.TableID)
		if err != nil {
			return internalorders.CreateOrderInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid tableId")
		}
		input.TableID = &tableID
	}
	for _, item := range p.Items {
		productID, err := uuid.Parse(item.ProductID)
		if err != nil {
			return internalorders.CreateOrderInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid productId")
		}
		unitPrice, err := validators.ParseMoney("unitPrice", item.UnitPrice)
		if err != nil {
			return internalorders.CreateOrderInput{}, err
		}
		input.Items = append(input.Items, internalorders.OrderItemInput{
			ProductID: productID,
			Name:      validators.CleanText(item.Name, 200),
			Quantity:  item.Quantity,
			UnitPrice: unitPrice,
		})
	}
	return input, nil
}

// List pages the tenant's orders, optionally filtered by status and creation date.
func List(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		actor, err := tenantcontext.Resolve(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		params, err := pageParams(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		filters, err := listFilters(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		page, err := svc.ListOrders(ctx, actor.TenantID, filters, params)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

// Detail returns one order with its lines.
func Detail(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		actor, err := tenantcontext.Resolve(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		order, err := svc.GetOrder(ctx, actor.TenantID, orderID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

// UpdateStatus applies an explicit lifecycle change.
func UpdateStatus(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		actor, err := tenantcontext.Resolve(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var payload updateStatusRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		status, err := enums.ParseOrderStatus(payload.Status)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
			return
		}

		order, err := svc.UpdateStatus(ctx, internalorders.UpdateStatusInput{
			TenantID:    actor.TenantID,
			OrderID:     orderID,
			Status:      status,
			ActorUserID: actor.UserIDPtr(),
			ActorRole:   actor.Role,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

// RecordPayment tenders a payment and reports the resulting settlement state.
func RecordPayment(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		actor, err := tenantcontext.Resolve(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var payload recordPaymentRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		method, err := enums.ParsePaymentMethod(payload.Method)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid method"))
			return
		}
		amount, err := validators.ParseMoney("amount", payload.Amount)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		result, err := svc.RecordPayment(ctx, internalorders.RecordPaymentInput{
			TenantID:    actor.TenantID,
			OrderID:     orderID,
			Method:      method,
			Amount:      amount,
			ActorUserID: actor.UserIDPtr(),
			ActorRole:   actor.Role,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// ListPayments returns an order's payments, newest first.
func ListPayments(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		actor, err := tenantcontext.Resolve(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		payments, err := svc.ListPayments(ctx, actor.TenantID, orderID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, payments)
	}
}

func pageParams(r *http.Request) (pagination.Params, error) {
	page, err := validators.ParseQueryInt(r, "page", 1, 1, 100000)
	if err != nil {
		return pagination.Params{}, err
	}
	limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return pagination.Params{}, err
	}
	return pagination.Params{Page: page, Limit: limit}, nil
}

func listFilters(r *http.Request) (internalorders.ListFilters, error) {
	var filters internalorders.ListFilters
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status, err := enums.ParseOrderStatus(raw)
		if err != nil {
			return filters, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status")
		}
		filters.Status = &status
	}
	from, err := validators.ParseQueryDate(r, "dateFrom")
	if err != nil {
		return filters, err
	}
	to, err := validators.ParseQueryDate(r, "dateTo")
	if err != nil {
		return filters, err
	}
	if to != nil {
		end := to.Add(24*time.Hour - time.Nanosecond)
		to = &end
	}
	filters.DateFrom, filters.DateTo = from, to
	return filters, nil
}

func sanitizeOptional(value *string) *string {
	if value == nil {
		return nil
	}
	clean := validators.CleanText(*value, maxFreeTextLength)
	if clean == "" {
		return nil
	}
	return &clean
}
