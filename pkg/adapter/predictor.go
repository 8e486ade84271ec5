package adapter

import (
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/momentseek/pkg/model"
)

// Predictor is the moment prediction service
type Predictor interface {
	// Predict sends the video and question and returns the raw payload
	Predict(ctx context.Context, input *model.PredictInput) (*model.Prediction, error)
}

const (
	defaultPredictTimeout = 10 * time.Minute
	maxResponseBytes      = 4 << 20
	maxErrorBodyChars     = 512
)

// HTTPPredictor calls a prediction server exposing POST /predict with a
// multipart form of "video" and "query".
type HTTPPredictor struct {
	endpoint string
	client   *http.Client
}

type HTTPPredictorOption func(*HTTPPredictor)

func WithHTTPClient(client *http.Client) HTTPPredictorOption {
	return func(p *HTTPPredictor) {
		p.client = client
	}
}

func WithPredictTimeout(d time.Duration) HTTPPredictorOption {
	return func(p *HTTPPredictor) {
		if d > 0 {
			p.client = &http.Client{Timeout: d, Transport: p.client.Transport}
		}
	}
}

func NewHTTPPredictor(endpoint string, opts ...HTTPPredictorOption) *HTTPPredictor {
	p := &HTTPPredictor{
		endpoint: strings.TrimSuffix(endpoint, "/"),
		client:   &http.Client{Timeout: defaultPredictTimeout},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *HTTPPredictor) Predict(ctx context.Context, input *model.PredictInput) (*model.Prediction, error) {
	if input == nil || input.Video == nil || input.Video.Open == nil {
		return nil, goerr.Wrap(model.ErrVideoRequired, "no video to upload")
	}

	video, err := input.Video.Open(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open video", goerr.V("video", input.Video.Label))
	}

	// Stream the upload instead of buffering the whole video
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		defer video.Close()
		pw.CloseWithError(writeForm(mw, input, video))
	}()

	url := p.endpoint + "/predict"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, pr)
	if err != nil {
		pr.Close()
		return nil, goerr.Wrap(err, "failed to build predict request", goerr.V("url", url))
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, goerr.Wrap(model.ErrPredictionFailed, "predict request failed",
			goerr.V("url", url),
			goerr.V("cause", err.Error()))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, goerr.Wrap(model.ErrPredictionFailed, "failed to read predict response",
			goerr.V("url", url),
			goerr.V("cause", err.Error()))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, goerr.Wrap(model.ErrPredictionFailed, "prediction server returned error",
			goerr.V("url", url),
			goerr.V("status", resp.StatusCode),
			goerr.V("body", truncate(string(body), maxErrorBodyChars)))
	}

	return &model.Prediction{Raw: body}, nil
}

func writeForm(mw *multipart.Writer, input *model.PredictInput, video io.Reader) error {
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", multipart.FileContentDisposition("video", input.Video.Label))
	mimeType := input.Video.MIMEType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	header.Set("Content-Type", mimeType)

	part, err := mw.CreatePart(header)
	if err != nil {
		return goerr.Wrap(err, "failed to create video part")
	}
	if _, err := io.Copy(part, video); err != nil {
		return goerr.Wrap(err, "failed to copy video", goerr.V("video", input.Video.Label))
	}
	if err := mw.WriteField("query", input.Query); err != nil {
		return goerr.Wrap(err, "failed to write query field")
	}
	return mw.Close()
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
