package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	"terrarun/internal/platform/middleware"
	"terrarun/internal/territory/model"
	"terrarun/internal/territory/service"
	"terrarun/pkg/gameerrors"
)

// stubService records calls and returns canned responses.
type stubService struct {
	captureResult *service.CaptureResult
	captureErr    error
	lastUserID    string
	lastCapture   service.CaptureRequest

	cells    []model.Cell
	queryErr error

	bosses []service.BossCell

	renamed   *model.Cell
	renameErr error
}

func (s *stubService) Capture(_ context.Context, userID string, req service.CaptureRequest) (*service.CaptureResult, error) {
	s.lastUserID = userID
	s.lastCapture = req
	return s.captureResult, s.captureErr
}

func (s *stubService) All(context.Context, int, int) ([]model.Cell, error) {
	return s.cells, s.queryErr
}

func (s *stubService) ByUser(context.Context, string) ([]model.Cell, error) {
	return s.cells, s.queryErr
}

func (s *stubService) Nearby(context.Context, float64, float64, float64) ([]model.Cell, error) {
	return s.cells, s.queryErr
}

func (s *stubService) Boss(context.Context, int) ([]service.BossCell, error) {
	return s.bosses, s.queryErr
}

func (s *stubService) Rename(_ context.Context, userID, territoryID, name string) (*model.Cell, error) {
	s.lastUserID = userID
	return s.renamed, s.renameErr
}

// testAuth injects a fixed user without running real token validation.
func testAuth(userID string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if userID == "" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), middleware.ContextKeyUserID, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type HandlerSuite struct {
	suite.Suite
	service *stubService
}

func (s *HandlerSuite) SetupTest() {
	s.service = &stubService{}
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) router(userID string) chi.Router {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := chi.NewRouter()
	New(s.service, testAuth(userID), logger).Register(r)
	return r
}

func (s *HandlerSuite) do(router chi.Router, method, path string, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(encoded)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func (s *HandlerSuite) decode(rec *httptest.ResponseRecorder, dest any) {
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), dest))
}

func (s *HandlerSuite) TestCapture() {
	s.service.captureResult = &service.CaptureResult{
		NewTerritories: []model.Cell{{HexID: "hex-a", OwnerID: "runner-1"}},
		TotalCaptured:  1,
	}
	router := s.router("runner-1")

	rec := s.do(router, http.MethodPost, "/territories/capture", CaptureRequest{
		HexIDs:           []string{"hex-a"},
		Coordinates:      []model.LatLng{{Lat: 60.17, Lng: 24.94}},
		CaptureSessionID: "sess-1",
	})

	s.Equal(http.StatusOK, rec.Code)
	s.Equal("runner-1", s.service.lastUserID)
	s.Equal("sess-1", s.service.lastCapture.CaptureSessionID)

	var result service.CaptureResult
	s.decode(rec, &result)
	s.Equal(1, result.TotalCaptured)
}

func (s *HandlerSuite) TestCaptureRequiresAuth() {
	rec := s.do(s.router(""), http.MethodPost, "/territories/capture", CaptureRequest{})
	s.Equal(http.StatusUnauthorized, rec.Code)
}

func (s *HandlerSuite) TestCaptureErrorMapping() {
	s.service.captureErr = gameerrors.New(gameerrors.CodeBadRequest, "no territories provided")
	rec := s.do(s.router("runner-1"), http.MethodPost, "/territories/capture", CaptureRequest{})

	s.Equal(http.StatusBadRequest, rec.Code)
	var body map[string]string
	s.decode(rec, &body)
	s.Equal("bad_request", body["code"])
	s.Equal("no territories provided", body["message"])
}

func (s *HandlerSuite) TestCaptureRejectsMalformedBody() {
	router := s.router("runner-1")
	req := httptest.NewRequest(http.MethodPost, "/territories/capture", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *HandlerSuite) TestList() {
	s.service.cells = []model.Cell{{HexID: "hex-a"}, {HexID: "hex-b"}}
	rec := s.do(s.router(""), http.MethodGet, "/territories/all?limit=10&offset=0", nil)

	s.Equal(http.StatusOK, rec.Code)
	var body struct {
		Territories []model.Cell `json:"territories"`
		Count       int          `json:"count"`
	}
	s.decode(rec, &body)
	s.Equal(2, body.Count)
	s.Len(body.Territories, 2)
}

func (s *HandlerSuite) TestListEmptyIsNotNull() {
	rec := s.do(s.router(""), http.MethodGet, "/territories/all", nil)
	s.Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), `"territories":[]`)
}

func (s *HandlerSuite) TestNearbyValidation() {
	s.Run("missing coordinates", func() {
		rec := s.do(s.router(""), http.MethodGet, "/territories/nearby", nil)
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("non-numeric radius", func() {
		rec := s.do(s.router(""), http.MethodGet, "/territories/nearby?lat=60&lng=24&radius=wide", nil)
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("valid query", func() {
		s.service.cells = []model.Cell{{HexID: "hex-a"}}
		rec := s.do(s.router(""), http.MethodGet, "/territories/nearby?lat=60.17&lng=24.94&radius=5", nil)
		s.Equal(http.StatusOK, rec.Code)
	})

	s.Run("legacy radiusKm parameter", func() {
		s.service.cells = []model.Cell{{HexID: "hex-a"}}
		rec := s.do(s.router(""), http.MethodGet, "/territories/nearby?lat=60.17&lng=24.94&radiusKm=5", nil)
		s.Equal(http.StatusOK, rec.Code)
	})
}

func (s *HandlerSuite) TestByUser() {
	s.service.cells = []model.Cell{{HexID: "hex-a", OwnerID: "runner-1"}}
	rec := s.do(s.router(""), http.MethodGet, "/territories/user/runner-1", nil)
	s.Equal(http.StatusOK, rec.Code)
}

func (s *HandlerSuite) TestBoss() {
	s.service.bosses = []service.BossCell{
		{Cell: model.Cell{HexID: "hex-a"}, IsBoss: true, BossRewardPoints: 200},
	}
	rec := s.do(s.router(""), http.MethodGet, "/territories/boss?limit=1", nil)

	s.Equal(http.StatusOK, rec.Code)
	var body struct {
		Bosses []service.BossCell `json:"bosses"`
		Count  int                `json:"count"`
	}
	s.decode(rec, &body)
	s.Equal(1, body.Count)
	s.True(body.Bosses[0].IsBoss)
}

func (s *HandlerSuite) TestRename() {
	s.Run("success", func() {
		s.service.renamed = &model.Cell{ID: "id-1", Name: "Harbor Loop"}
		rec := s.do(s.router("runner-1"), http.MethodPatch, "/territories/id-1/name", RenameRequest{Name: "Harbor Loop"})
		s.Equal(http.StatusOK, rec.Code)

		var cell model.Cell
		s.decode(rec, &cell)
		s.Equal("Harbor Loop", cell.Name)
	})

	s.Run("forbidden for non-owner", func() {
		s.service.renameErr = gameerrors.New(gameerrors.CodeForbidden, "only the owner can rename this territory")
		rec := s.do(s.router("runner-2"), http.MethodPatch, "/territories/id-1/name", RenameRequest{Name: "Mine"})
		s.Equal(http.StatusForbidden, rec.Code)
	})

	s.Run("requires auth", func() {
		rec := s.do(s.router(""), http.MethodPatch, "/territories/id-1/name", RenameRequest{Name: "Mine"})
		s.Equal(http.StatusUnauthorized, rec.Code)
	})
}
