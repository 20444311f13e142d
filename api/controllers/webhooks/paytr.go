package webhooks

import (
	"context"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"net/url"

	"github.com/mtarikucar/kds-sub004/api/responses"
	paytrwebhook "github.com/mtarikucar/kds-sub004/internal/webhooks/paytr"
	"github.com/mtarikucar/kds-sub004/pkg/logger"
	"github.com/mtarikucar/kds-sub004/pkg/paytr"
)

const maxCallbackBytes = 64 << 10

// CallbackProcessor applies a gateway payment notification.
type CallbackProcessor interface {
	Process(ctx context.Context, cb paytr.Callback) paytrwebhook.Result
}

// PayTRCallback accepts form-encoded or JSON notifications and answers with
// the bare OK or FAIL token the gateway expects.
func PayTRCallback(svc CallbackProcessor, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteText(w, http.StatusServiceUnavailable, paytr.ResponseFail)
			return
		}

		cb, err := decodeCallback(r)
		if err != nil {
			if logg != nil {
				logg.Warn(logg.WithField(ctx, "error", err.Error()), "paytr callback unreadable")
			}
			responses.WriteText(w, http.StatusOK, paytr.ResponseFail)
			return
		}

		result := svc.Process(ctx, cb)
		responses.WriteText(w, http.StatusOK, result.Response)
	}
}

// PayTRThrottled answers a rate-limited callback with FAIL so the gateway
// retries it later.
func PayTRThrottled(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if logg != nil {
			logg.Warn(r.Context(), "paytr callback rate limited")
		}
		responses.WriteText(w, http.StatusOK, paytr.ResponseFail)
	}
}

func decodeCallback(r *http.Request) (paytr.Callback, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxCallbackBytes))
	if err != nil {
		return paytr.Callback{}, err
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var cb paytr.Callback
		if err := json.Unmarshal(body, &cb); err != nil {
			return paytr.Callback{}, err
		}
		return cb, nil
	}

	form, err := url.ParseQuery(string(body))
	if err != nil {
		return paytr.Callback{}, err
	}
	return paytr.Callback{
		MerchantOID:      form.Get("merchant_oid"),
		Status:           form.Get("status"),
		TotalAmount:      form.Get("total_amount"),
		Hash:             form.Get("hash"),
		FailedReasonCode: form.Get("failed_reason_code"),
		FailedReasonMsg:  form.Get("failed_reason_msg"),
		TestMode:         form.Get("test_mode"),
		PaymentType:      form.Get("payment_type"),
		Currency:         form.Get("currency"),
	}, nil
}
