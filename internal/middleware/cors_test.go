package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCorsMiddleware(t *testing.T) {
	testCases := []struct {
		name           string
		origin         string
		userAgent      string
		expectCors     bool
		expectedStatus int
	}{
		{
			name:           "AllowedOrigin",
			origin:         "https://fittracker.2beens.online",
			expectCors:     true,
			expectedStatus: http.StatusOK,
		},
		{
			name:           "AllowedLocalhostOrigin",
			origin:         "http://localhost:8080",
			expectCors:     true,
			expectedStatus: http.StatusOK,
		},
		{
			name:           "NotAllowedOrigin",
			origin:         "https://www.notallowed.com",
			expectCors:     false,
			expectedStatus: http.StatusForbidden,
		},
		{
			name:           "AllowedUserAgentIOSApp",
			origin:         "https://www.notallowed.com",
			userAgent:      "FitTracker/1.0",
			expectCors:     true,
			expectedStatus: http.StatusOK,
		},
		{
			name:           "AllowedUserAgentCurl",
			origin:         "https://www.notallowed.com",
			userAgent:      "curl/8.4.0",
			expectCors:     true,
			expectedStatus: http.StatusOK,
		},
		{
			name:           "NoOrigin",
			expectCors:     true,
			expectedStatus: http.StatusOK,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			handler := Cors()
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			})
			handlerFunc := handler(next)

			rr := httptest.NewRecorder()
			req := httptest.NewRequest("GET", "/profile/user1", nil)
			if tc.origin != "" {
				req.Header.Set("Origin", tc.origin)
			}
			if tc.userAgent != "" {
				req.Header.Set("User-Agent", tc.userAgent)
			}

			handlerFunc.ServeHTTP(rr, req)

			assert.Equal(t, tc.expectedStatus, rr.Code)
			if tc.expectCors {
				assert.Equal(t, "POST, GET, OPTIONS, PUT, PATCH, DELETE", rr.Header().Get("Access-Control-Allow-Methods"))
			} else {
				assert.Empty(t, rr.Header().Get("Access-Control-Allow-Methods"))
			}
		})
	}
}
