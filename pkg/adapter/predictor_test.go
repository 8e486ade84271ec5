package adapter_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/momentseek/pkg/adapter"
	"github.com/m-mizutani/momentseek/pkg/model"
)

func TestHTTPPredictor(t *testing.T) {
	var gotQuery, gotVideo, gotFilename, gotType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/predict" {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		gotQuery = r.FormValue("query")
		f, hdr, err := r.FormFile("video")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		gotVideo = string(data)
		gotFilename = hdr.Filename
		gotType = hdr.Header.Get("Content-Type")

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"predicted_moments": [[10, 20, 0.9]]}`))
	}))
	defer srv.Close()

	p := adapter.NewHTTPPredictor(srv.URL + "/")
	pred, err := p.Predict(context.Background(), &model.PredictInput{
		Video: bytesVideo("lobby.mp4", []byte("frames")),
		Query: "who enters the lobby",
	})
	gt.NoError(t, err)
	gt.Equal(t, string(pred.Raw), `{"predicted_moments": [[10, 20, 0.9]]}`)
	gt.Equal(t, gotQuery, "who enters the lobby")
	gt.Equal(t, gotVideo, "frames")
	gt.Equal(t, gotFilename, "lobby.mp4")
	gt.Equal(t, gotType, "video/mp4")
}

func TestHTTPPredictorServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p := adapter.NewHTTPPredictor(srv.URL)
	_, err := p.Predict(context.Background(), &model.PredictInput{
		Video: bytesVideo("a.mp4", []byte("x")),
		Query: "q",
	})
	gt.True(t, errors.Is(err, model.ErrPredictionFailed))

	values := goerr.Values(err)
	gt.Equal(t, values["status"], any(http.StatusServiceUnavailable))
	gt.Equal(t, values["body"], any("model not loaded"))
}

func TestHTTPPredictorTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	p := adapter.NewHTTPPredictor(srv.URL, adapter.WithPredictTimeout(50*time.Millisecond))
	_, err := p.Predict(context.Background(), &model.PredictInput{
		Video: bytesVideo("a.mp4", []byte("x")),
		Query: "q",
	})
	gt.True(t, errors.Is(err, model.ErrPredictionFailed))
}

func TestHTTPPredictorOpenFailure(t *testing.T) {
	p := adapter.NewHTTPPredictor("http://127.0.0.1:1")
	_, err := p.Predict(context.Background(), &model.PredictInput{
		Video: &model.Video{
			Label: "gone.mp4",
			Open: func(ctx context.Context) (io.ReadCloser, error) {
				return nil, errors.New("file vanished")
			},
		},
		Query: "q",
	})
	gt.Error(t, err)
	gt.False(t, errors.Is(err, model.ErrPredictionFailed))
}
