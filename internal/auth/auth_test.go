package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/danmuck/matterctl/internal/testutil/testlog"
	"github.com/labstack/echo/v4"
)

func TestStaticTokenValidate(t *testing.T) {
	testlog.Start(t)

	tests := []struct {
		name    string
		stored  string
		input   string
		wantErr error
	}{
		{name: "empty token denied", stored: "", input: "abc", wantErr: ErrUnauthorized},
		{name: "mismatched token denied", stored: "abc", input: "xyz", wantErr: ErrUnauthorized},
		{name: "matching token accepted", stored: "abc", input: "abc", wantErr: nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := (StaticToken{Token: tc.stored}).Validate(tc.input)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected err %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestBearerToken(t *testing.T) {
	testlog.Start(t)

	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer  abc ", "abc", true},
		{"Basic abc", "", false},
		{"Bearer", "", false},
		{"Bearer   ", "", false},
		{"", "", false},
	}
	for _, tc := range tests {
		got, ok := BearerToken(tc.header)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("unexpected token for %q: %q %v", tc.header, got, ok)
		}
	}
}

func TestMiddleware(t *testing.T) {
	testlog.Start(t)

	e := echo.New()
	e.GET("/devices", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	}, Middleware(StaticToken{Token: "s3cret"}))

	cases := []struct {
		header string
		want   int
	}{
		{"", http.StatusUnauthorized},
		{"Bearer nope", http.StatusUnauthorized},
		{"Bearer s3cret", http.StatusOK},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/devices", nil)
		if tc.header != "" {
			req.Header.Set(echo.HeaderAuthorization, tc.header)
		}
		rr := httptest.NewRecorder()
		e.ServeHTTP(rr, req)
		if rr.Code != tc.want {
			t.Fatalf("unexpected status for %q: %d", tc.header, rr.Code)
		}
		if tc.want == http.StatusUnauthorized && rr.Header().Get(echo.HeaderWWWAuthenticate) == "" {
			t.Fatalf("expected challenge header")
		}
	}
}
