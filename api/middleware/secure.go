package middleware

import (
	"net/http"

	"github.com/unrolled/secure"
)

// SecureHeaders sets the API's response hardening headers. Production also
// honours X-Forwarded-Proto for HSTS.
func SecureHeaders(isProd bool) func(http.Handler) http.Handler {
	options := secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ReferrerPolicy:        "no-referrer",
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
		SSLProxyHeaders:       map[string]string{"X-Forwarded-Proto": "https"},
		IsDevelopment:         !isProd,
	}
	if isProd {
		options.STSSeconds = 31536000
		options.STSIncludeSubdomains = true
	}
	return secure.New(options).Handler
}
