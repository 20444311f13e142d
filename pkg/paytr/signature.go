package paytr

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"html"
	"strings"
)

// Sign returns base64(HMAC-SHA256(key, data)), the digest PayTR uses for both
// token requests and callbacks.
func Sign(key, data string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(data))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// CallbackHash computes the expected hash of a callback notification.
func CallbackHash(key, salt, merchantOID, status, totalAmount string) string {
	return Sign(key, merchantOID+salt+status+totalAmount)
}

// VerifyCallback reports whether the supplied hash matches the callback fields.
// Hashes that arrive HTML-entity encoded by a form relay are decoded first.
func VerifyCallback(key, salt string, cb Callback) bool {
	supplied := strings.TrimSpace(html.UnescapeString(cb.Hash))
	if supplied == "" || key == "" {
		return false
	}
	expected := CallbackHash(key, salt, cb.MerchantOID, cb.Status, cb.TotalAmount)
	return hmac.Equal([]byte(expected), []byte(supplied))
}
