package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/suite"

	"hatchery/contracts/spawn"
	dErrors "hatchery/pkg/domain-errors"
	"hatchery/pkg/requestcontext"
)

type fakeValidator struct {
	addr spawn.Address
	err  error
}

func (v *fakeValidator) Validate(string) (spawn.Address, error) {
	return v.addr, v.err
}

type MiddlewareSuite struct {
	suite.Suite
	logger *slog.Logger
}

func TestMiddlewareSuite(t *testing.T) {
	suite.Run(t, new(MiddlewareSuite))
}

func (s *MiddlewareSuite) SetupTest() {
	s.logger = slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func (s *MiddlewareSuite) SetupSubTest() {
	s.SetupTest()
}

func (s *MiddlewareSuite) TestRequestID() {
	s.Run("mints an ID and echoes it back", func() {
		var seen string
		handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = requestcontext.RequestID(r.Context())
		}))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		s.NotEmpty(seen)
		s.Equal(seen, rec.Header().Get(RequestIDHeader))
	})

	s.Run("honors a client-supplied ID", func() {
		var seen string
		handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = requestcontext.RequestID(r.Context())
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, "client-chosen")
		handler.ServeHTTP(httptest.NewRecorder(), req)

		s.Equal("client-chosen", seen)
	})
}

func (s *MiddlewareSuite) TestRequireIdentity() {
	s.Run("stamps the validated sender", func() {
		var sender spawn.Address
		handler := RequireIdentity(&fakeValidator{addr: "owner-1"}, s.logger)(
			http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				sender = requestcontext.Sender(r.Context())
			}))

		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set("Authorization", "Bearer token")
		handler.ServeHTTP(httptest.NewRecorder(), req)

		s.Equal(spawn.Address("owner-1"), sender)
	})

	s.Run("missing header is a 401 before validation runs", func() {
		handler := RequireIdentity(&fakeValidator{addr: "owner-1"}, s.logger)(
			http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				s.Fail("handler must not run")
			}))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))

		s.Equal(http.StatusUnauthorized, rec.Code)
	})

	s.Run("a rejected token maps through the domain code", func() {
		validator := &fakeValidator{err: dErrors.New(dErrors.CodeUnauthorized, "token has expired")}
		handler := RequireIdentity(validator, s.logger)(
			http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				s.Fail("handler must not run")
			}))

		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set("Authorization", "Bearer expired")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		s.Equal(http.StatusUnauthorized, rec.Code)
		s.Contains(rec.Body.String(), "token has expired")
	})
}

func (s *MiddlewareSuite) TestRecovery() {
	handler := Recovery(s.logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	s.Equal(http.StatusInternalServerError, rec.Code)
	s.Contains(rec.Body.String(), "internal_error")
}
