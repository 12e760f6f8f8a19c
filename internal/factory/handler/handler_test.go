package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	"hatchery/contracts/spawn"
	dErrors "hatchery/pkg/domain-errors"
	"hatchery/pkg/requestcontext"
)

// fakeGateway records the last delivery and plays back scripted
// answers, keeping the HTTP layer tests independent of the service.
type fakeGateway struct {
	executeAnswer spawn.ExecuteAnswer
	queryAnswer   spawn.QueryAnswer
	err           error

	lastSender  spawn.Address
	lastExecute *spawn.ExecuteMsg
	lastQuery   *spawn.QueryMsg
}

func (g *fakeGateway) ExecuteFactory(_ context.Context, sender spawn.Address, msg spawn.ExecuteMsg) (spawn.ExecuteAnswer, error) {
	g.lastSender = sender
	g.lastExecute = &msg
	return g.executeAnswer, g.err
}

func (g *fakeGateway) QueryFactory(_ context.Context, msg spawn.QueryMsg) (spawn.QueryAnswer, error) {
	g.lastQuery = &msg
	return g.queryAnswer, g.err
}

type HandlerSuite struct {
	suite.Suite
	gateway *fakeGateway
	router  chi.Router
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.gateway = &fakeGateway{}
	s.router = chi.NewRouter()
	// Identity is stamped directly onto request contexts below, so the
	// middleware slot gets a pass-through.
	passthrough := func(next http.Handler) http.Handler { return next }
	New(s.gateway, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))).Register(s.router, passthrough)
}

func (s *HandlerSuite) SetupSubTest() {
	s.SetupTest()
}

// post performs a request, optionally as an authenticated sender.
func (s *HandlerSuite) post(path, body string, sender spawn.Address) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	if !sender.IsZero() {
		req = req.WithContext(requestcontext.WithSender(req.Context(), sender))
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

// requirePadded asserts the framing invariant: every response body is
// a whole number of blocks, and still decodes as JSON.
func (s *HandlerSuite) requirePadded(rec *httptest.ResponseRecorder, v any) {
	body := rec.Body.Bytes()
	s.Require().NotEmpty(body)
	s.Require().Zerof(len(body)%padBlock, "body of %d bytes is not block aligned", len(body))
	s.Require().NoError(json.Unmarshal(body, v))
}

func (s *HandlerSuite) TestExecute() {
	s.Run("delivers the message as the authenticated sender", func() {
		message := "instance creation order accepted"
		s.gateway.executeAnswer = spawn.ExecuteAnswer{
			Status: &spawn.StatusAnswer{Status: spawn.StatusSuccess, Message: &message},
		}

		rec := s.post("/factory/execute",
			`{"create_instance":{"label":"one","owner":"owner-1","entropy":"e"}}`,
			"owner-1")

		s.Equal(http.StatusOK, rec.Code)
		var answer spawn.ExecuteAnswer
		s.requirePadded(rec, &answer)
		s.Require().NotNil(answer.Status)
		s.Equal(spawn.StatusSuccess, answer.Status.Status)

		s.Equal(spawn.Address("owner-1"), s.gateway.lastSender)
		s.Require().NotNil(s.gateway.lastExecute.CreateInstance)
		s.Equal("one", s.gateway.lastExecute.CreateInstance.Label)
	})

	s.Run("refuses anonymous callers before touching the gateway", func() {
		rec := s.post("/factory/execute", `{"set_stopped":{"stop":true}}`, "")

		s.Equal(http.StatusUnauthorized, rec.Code)
		var body map[string]any
		s.requirePadded(rec, &body)
		s.Equal(string(dErrors.CodeUnauthorized), body["error"])
		s.Nil(s.gateway.lastExecute)
	})

	s.Run("maps domain codes onto statuses", func() {
		s.gateway.err = dErrors.New(dErrors.CodeForbidden, "admin authority required")

		rec := s.post("/factory/execute", `{"set_stopped":{"stop":true}}`, "owner-1")

		s.Equal(http.StatusForbidden, rec.Code)
		var body map[string]any
		s.requirePadded(rec, &body)
		s.Equal(string(dErrors.CodeForbidden), body["error"])
	})

	s.Run("rejects unparseable and ambiguous envelopes alike", func() {
		for name, body := range map[string]string{
			"not json":  `{"create_instance":`,
			"empty":     `{}`,
			"ambiguous": `{"create_instance":{"label":"a","owner":"o","entropy":"e"},"set_stopped":{"stop":true}}`,
		} {
			rec := s.post("/factory/execute", body, "owner-1")
			s.Equalf(http.StatusBadRequest, rec.Code, "case %q", name)
			s.Zerof(rec.Body.Len()%padBlock, "case %q not block aligned", name)
		}
		s.Nil(s.gateway.lastExecute)
	})
}

func (s *HandlerSuite) TestQuery() {
	s.Run("answers unauthenticated list queries", func() {
		s.gateway.queryAnswer = spawn.QueryAnswer{
			ListActive: &spawn.ListActiveAnswer{Active: []spawn.InstanceInfo{
				{Label: "one", Identity: spawn.ServiceInfo{Address: "inst-1", CodeHash: "hash-v1"}},
			}},
		}

		rec := s.post("/factory/query", `{"list_active":{}}`, "")

		s.Equal(http.StatusOK, rec.Code)
		var answer spawn.QueryAnswer
		s.requirePadded(rec, &answer)
		s.Require().NotNil(answer.ListActive)
		s.Require().Len(answer.ListActive.Active, 1)
		s.Equal("one", answer.ListActive.Active[0].Label)
	})

	s.Run("a viewing key failure is a padded 200, not an error status", func() {
		s.gateway.queryAnswer = spawn.QueryAnswer{
			ViewingKeyError: &spawn.ViewingKeyErrorAnswer{
				Error: "wrong viewing key for this address or viewing key not set",
			},
		}

		rec := s.post("/factory/query",
			`{"list_mine":{"address":"owner-1","viewing_key":"vk_wrong"}}`,
			"")

		s.Equal(http.StatusOK, rec.Code)
		var answer spawn.QueryAnswer
		s.requirePadded(rec, &answer)
		s.Require().NotNil(answer.ViewingKeyError)
		s.Nil(answer.ListMine)
	})

	s.Run("internal codes hide their description", func() {
		s.gateway.err = dErrors.New(dErrors.CodeInvariantViolation, "index references a missing record")

		rec := s.post("/factory/query", `{"list_active":{}}`, "")

		s.Equal(http.StatusInternalServerError, rec.Code)
		var body map[string]any
		s.requirePadded(rec, &body)
		s.Equal(string(dErrors.CodeInvariantViolation), body["error"])
		s.NotContains(rec.Body.String(), "missing record")
	})
}

func (s *HandlerSuite) TestPaddingWidths() {
	s.Run("short and long answers frame to whole blocks", func() {
		long := make([]spawn.InstanceInfo, 40)
		for i := range long {
			long[i] = spawn.InstanceInfo{
				Label:    strings.Repeat("x", 24),
				Identity: spawn.ServiceInfo{Address: "inst-long", CodeHash: "hash-v1"},
			}
		}

		for name, answer := range map[string]spawn.QueryAnswer{
			"short": {ListActive: &spawn.ListActiveAnswer{Active: []spawn.InstanceInfo{}}},
			"long":  {ListActive: &spawn.ListActiveAnswer{Active: long}},
		} {
			s.gateway.queryAnswer = answer
			rec := s.post("/factory/query", `{"list_active":{}}`, "")
			s.Equalf(http.StatusOK, rec.Code, "case %q", name)
			s.Zerof(rec.Body.Len()%padBlock, "case %q not block aligned", name)
		}
	})
}
