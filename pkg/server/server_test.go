package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/momentseek/pkg/model"
	"github.com/m-mizutani/momentseek/pkg/repository"
	"github.com/m-mizutani/momentseek/pkg/server"
	"github.com/m-mizutani/momentseek/pkg/usecase/history"
	"github.com/m-mizutani/momentseek/pkg/usecase/query"
)

var secret = []byte("test-secret")

type mockPredictor struct {
	raw string
	err error
}

func (m *mockPredictor) Predict(ctx context.Context, input *model.PredictInput) (*model.Prediction, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &model.Prediction{Raw: []byte(m.raw)}, nil
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Detail  string          `json:"detail"`
	Data    json.RawMessage `json:"data"`
}

func init() {
	gin.SetMode(gin.TestMode)
}

func setup(t *testing.T, p *mockPredictor) (http.Handler, *history.Ledger) {
	t.Helper()
	ledger := history.New(repository.NewMemory())
	uc := query.New(p, ledger, query.WithResolution(3))
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("# metrics\n"))
	})
	return server.New(uc, ledger, secret, server.WithMetricsHandler(metrics)).Handler(), ledger
}

func token(t *testing.T, subject string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := tok.SignedString(secret)
	gt.NoError(t, err)
	return signed
}

func do(t *testing.T, h http.Handler, req *http.Request, owner string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	if owner != "" {
		req.Header.Set("Authorization", "Bearer "+token(t, owner))
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var env envelope
	if w.Header().Get("Content-Type") != "" && bytes.HasPrefix(w.Body.Bytes(), []byte("{")) {
		gt.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func queryRequest(t *testing.T, fields map[string]string, withVideo bool) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if withVideo {
		fw, err := mw.CreateFormFile("video", "lobby.mp4")
		gt.NoError(t, err)
		_, err = fw.Write([]byte("frames"))
		gt.NoError(t, err)
	}
	for k, v := range fields {
		gt.NoError(t, mw.WriteField(k, v))
	}
	gt.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/queries", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestHealthAndMetrics(t *testing.T) {
	h, _ := setup(t, &mockPredictor{})

	w, _ := do(t, h, httptest.NewRequest(http.MethodGet, "/health", nil), "")
	gt.Equal(t, w.Code, http.StatusOK)

	w, _ = do(t, h, httptest.NewRequest(http.MethodGet, "/metrics", nil), "")
	gt.Equal(t, w.Code, http.StatusOK)
	gt.S(t, w.Body.String()).Contains("# metrics")
}

func TestAuthentication(t *testing.T) {
	h, _ := setup(t, &mockPredictor{})

	w, env := do(t, h, httptest.NewRequest(http.MethodGet, "/api/v1/history", nil), "")
	gt.Equal(t, w.Code, http.StatusUnauthorized)
	gt.Equal(t, env.Code, http.StatusUnauthorized)

	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "mallory"}).
		SignedString([]byte("other-secret"))
	gt.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/history", nil)
	req.Header.Set("Authorization", "Bearer "+forged)
	w, _ = do(t, h, req, "")
	gt.Equal(t, w.Code, http.StatusUnauthorized)

	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{}).SignedString(secret)
	gt.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/api/v1/history", nil)
	req.Header.Set("Authorization", "Bearer "+noSubject)
	w, _ = do(t, h, req, "")
	gt.Equal(t, w.Code, http.StatusUnauthorized)
}

func TestSubmitQuery(t *testing.T) {
	h, _ := setup(t, &mockPredictor{raw: `{"predicted_moments": [[15, 25, 0.4], [10, 20, 0.9]]}`})

	w, env := do(t, h, queryRequest(t, map[string]string{
		"query":    "when does the door open",
		"duration": "30",
		"aux":      "witness.pdf",
	}, true), "alice")
	gt.Equal(t, w.Code, http.StatusOK)
	gt.Equal(t, env.Code, 0)

	var data struct {
		Entry        model.HistoryEntry `json:"entry"`
		Timeline     model.Timeline     `json:"timeline"`
		NoMatch      bool               `json:"no_match"`
		Top          model.ResultSet    `json:"top"`
		PersistError *struct{}          `json:"persist_error"`
	}
	gt.NoError(t, json.Unmarshal(env.Data, &data))
	gt.False(t, data.NoMatch)
	gt.True(t, data.PersistError == nil)
	gt.Equal(t, data.Entry.OwnerID, model.OwnerID("alice"))
	gt.Equal(t, data.Entry.VideoLabel, "lobby.mp4")
	gt.Equal(t, *data.Entry.AuxDocumentLabel, "witness.pdf")
	gt.A(t, data.Top).Length(2)
	gt.Equal(t, data.Top[0].Confidence, 0.9)
	gt.A(t, data.Timeline.Points).Length(3)
	gt.Equal(t, data.Timeline.Points[2].Confidence, 0.4)
}

func TestSubmitQueryErrors(t *testing.T) {
	t.Run("missing query", func(t *testing.T) {
		h, _ := setup(t, &mockPredictor{raw: `{"predicted_moments": []}`})
		w, env := do(t, h, queryRequest(t, map[string]string{}, true), "alice")
		gt.Equal(t, w.Code, http.StatusBadRequest)
		gt.Equal(t, env.Message, model.Summary(model.ErrQueryRequired))
	})

	t.Run("missing video", func(t *testing.T) {
		h, _ := setup(t, &mockPredictor{raw: `{"predicted_moments": []}`})
		w, env := do(t, h, queryRequest(t, map[string]string{"query": "q"}, false), "alice")
		gt.Equal(t, w.Code, http.StatusBadRequest)
		gt.Equal(t, env.Message, model.Summary(model.ErrVideoRequired))
	})

	t.Run("prediction failure keeps detail", func(t *testing.T) {
		h, _ := setup(t, &mockPredictor{
			err: goerr.Wrap(model.ErrPredictionFailed, "prediction server returned error", goerr.V("status", 503)),
		})
		w, env := do(t, h, queryRequest(t, map[string]string{"query": "q"}, true), "alice")
		gt.Equal(t, w.Code, http.StatusBadGateway)
		gt.Equal(t, env.Message, "Failed to process your query. Please try again.")
		gt.S(t, env.Detail).Contains("prediction server returned error")
	})

	t.Run("malformed response", func(t *testing.T) {
		h, _ := setup(t, &mockPredictor{raw: `{"predicted_moments": "none"}`})
		w, _ := do(t, h, queryRequest(t, map[string]string{"query": "q"}, true), "alice")
		gt.Equal(t, w.Code, http.StatusBadGateway)
	})
}

func TestUpdateDuration(t *testing.T) {
	h, _ := setup(t, &mockPredictor{raw: `{"predicted_moments": [[10, 20, 0.9]]}`})

	body := func() *bytes.Reader { return bytes.NewReader([]byte(`{"duration": 30}`)) }

	w, _ := do(t, h, httptest.NewRequest(http.MethodPut, "/api/v1/queries/latest/duration", body()), "alice")
	gt.Equal(t, w.Code, http.StatusNotFound)

	w, _ = do(t, h, queryRequest(t, map[string]string{"query": "q"}, true), "alice")
	gt.Equal(t, w.Code, http.StatusOK)

	// another owner has no session of its own yet
	w, _ = do(t, h, httptest.NewRequest(http.MethodPut, "/api/v1/queries/latest/duration", body()), "bob")
	gt.Equal(t, w.Code, http.StatusNotFound)

	w, env := do(t, h, httptest.NewRequest(http.MethodPut, "/api/v1/queries/latest/duration", body()), "alice")
	gt.Equal(t, w.Code, http.StatusOK)
	var tl model.Timeline
	gt.NoError(t, json.Unmarshal(env.Data, &tl))
	gt.False(t, tl.Degraded)
	gt.Equal(t, tl.Duration, 30.0)
	gt.Equal(t, tl.Points[1].Confidence, 0.9)

	w, _ = do(t, h, httptest.NewRequest(http.MethodPut, "/api/v1/queries/latest/duration",
		bytes.NewReader([]byte(`{"duration": -1}`))), "alice")
	gt.Equal(t, w.Code, http.StatusBadRequest)
}

func TestHistoryRoutes(t *testing.T) {
	ctx := context.Background()
	h, ledger := setup(t, &mockPredictor{})

	first := ledger.NewEntry("alice", "car parks", "lot.mp4", nil, model.ResultSet{{StartTime: 1, EndTime: 2, Confidence: 0.3}})
	second := ledger.NewEntry("alice", "door opens", "lobby.mp4", nil, model.ResultSet{
		{StartTime: 10, EndTime: 20, Confidence: 0.9},
		{StartTime: 30, EndTime: 35, Confidence: 0.2},
	})
	other := ledger.NewEntry("bob", "door opens", "lobby.mp4", nil, nil)
	for _, e := range []*model.HistoryEntry{first, second, other} {
		gt.NoError(t, ledger.Append(ctx, e))
	}

	w, env := do(t, h, httptest.NewRequest(http.MethodGet, "/api/v1/history?sort=queryText&order=asc&page_size=1&page=2", nil), "alice")
	gt.Equal(t, w.Code, http.StatusOK)
	var page model.HistoryPage
	gt.NoError(t, json.Unmarshal(env.Data, &page))
	gt.Equal(t, page.TotalPages, 2)
	gt.A(t, page.Entries).Length(1)
	gt.Equal(t, page.Entries[0].QueryText, "door opens")

	w, env = do(t, h, httptest.NewRequest(http.MethodGet, "/api/v1/history?search=LOT", nil), "alice")
	gt.Equal(t, w.Code, http.StatusOK)
	gt.NoError(t, json.Unmarshal(env.Data, &page))
	gt.Equal(t, page.TotalCount, 1)

	w, _ = do(t, h, httptest.NewRequest(http.MethodGet, "/api/v1/history?sort=relevance", nil), "alice")
	gt.Equal(t, w.Code, http.StatusBadRequest)

	w, env = do(t, h, httptest.NewRequest(http.MethodGet, "/api/v1/history/"+string(second.ID)+"?duration=40", nil), "alice")
	gt.Equal(t, w.Code, http.StatusOK)
	var shown struct {
		Entry    model.HistoryEntry `json:"entry"`
		Best     *model.Segment     `json:"best"`
		Timeline model.Timeline     `json:"timeline"`
	}
	gt.NoError(t, json.Unmarshal(env.Data, &shown))
	gt.Equal(t, shown.Best.Confidence, 0.9)
	gt.Equal(t, shown.Timeline.Duration, 40.0)

	w, _ = do(t, h, httptest.NewRequest(http.MethodGet, "/api/v1/history/"+string(other.ID), nil), "alice")
	gt.Equal(t, w.Code, http.StatusNotFound)
}
