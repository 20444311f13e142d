package webhooks

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	paytrwebhook "github.com/mtarikucar/kds-sub004/internal/webhooks/paytr"
	"github.com/mtarikucar/kds-sub004/pkg/metrics"
	"github.com/mtarikucar/kds-sub004/pkg/paytr"
)

type recordingProcessor struct {
	got    []paytr.Callback
	result paytrwebhook.Result
}

func (p *recordingProcessor) Process(_ context.Context, cb paytr.Callback) paytrwebhook.Result {
	p.got = append(p.got, cb)
	return p.result
}

func TestPayTRCallbackDecodesForm(t *testing.T) {
	proc := &recordingProcessor{result: paytrwebhook.Result{Response: paytr.ResponseOK, Outcome: metrics.WebhookOutcomeOK}}
	form := url.Values{
		"merchant_oid":       {"SUB-abc-1"},
		"status":             {"failed"},
		"total_amount":       {"29999"},
		"hash":               {"aGFzaA=="},
		"failed_reason_code": {"6"},
		"failed_reason_msg":  {"card declined"},
	}
	req := httptest.NewRequest(http.MethodPost, "/webhooks/paytr", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp := httptest.NewRecorder()

	PayTRCallback(proc, nil)(resp, req)

	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "OK", resp.Body.String())
	require.Len(t, proc.got, 1)
	assert.Equal(t, "SUB-abc-1", proc.got[0].MerchantOID)
	assert.Equal(t, "aGFzaA==", proc.got[0].Hash)
	assert.Equal(t, "card declined", proc.got[0].FailedReasonMsg)
}

func TestPayTRCallbackDecodesJSON(t *testing.T) {
	proc := &recordingProcessor{result: paytrwebhook.Result{Response: paytr.ResponseFail, Outcome: metrics.WebhookOutcomeFailSignature}}
	req := httptest.NewRequest(http.MethodPost, "/webhooks/paytr", strings.NewReader(`{"merchant_oid":"SUB-x-2","status":"success","total_amount":"100","hash":"bad"}`))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	resp := httptest.NewRecorder()

	PayTRCallback(proc, nil)(resp, req)

	assert.Equal(t, "FAIL", resp.Body.String())
	require.Len(t, proc.got, 1)
	assert.Equal(t, "success", proc.got[0].Status)
}

func TestPayTRCallbackRejectsMalformedJSON(t *testing.T) {
	proc := &recordingProcessor{}
	req := httptest.NewRequest(http.MethodPost, "/webhooks/paytr", strings.NewReader(`{"merchant_oid":`))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()

	PayTRCallback(proc, nil)(resp, req)

	assert.Equal(t, "FAIL", resp.Body.String())
	assert.Empty(t, proc.got)
}
