package server

import (
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/momentseek/pkg/adapter"
	"github.com/m-mizutani/momentseek/pkg/model"
	"github.com/m-mizutani/momentseek/pkg/usecase/query"
)

type queryResponse struct {
	Entry        *model.HistoryEntry `json:"entry"`
	Timeline     *model.Timeline     `json:"timeline"`
	NoMatch      bool                `json:"no_match"`
	Top          model.ResultSet     `json:"top"`
	PersistError *errorBody          `json:"persist_error,omitempty"`
}

type durationRequest struct {
	Duration float64 `json:"duration" binding:"required,gt=0"`
}

// submitQuery handles POST /api/v1/queries
func (s *Server) submitQuery(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxUploadBytes)

	video, err := s.videoFromForm(c)
	if err != nil {
		fail(c, err)
		return
	}

	if d := c.PostForm("duration"); d != "" {
		duration, err := strconv.ParseFloat(d, 64)
		if err != nil {
			badRequest(c, "Invalid video duration.", err)
			return
		}
		video.Duration = duration
	}

	req := query.Request{
		Owner: ownerOf(c),
		Video: video,
		Query: c.PostForm("query"),
	}
	if aux := strings.TrimSpace(c.PostForm("aux")); aux != "" {
		req.AuxDocumentLabel = &aux
	}

	out, err := s.session(req.Owner).Submit(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}

	success(c, queryResponse{
		Entry:        out.Entry,
		Timeline:     out.Timeline,
		NoMatch:      out.NoMatch,
		Top:          out.Top(0),
		PersistError: newErrorBody(out.PersistErr),
	})
}

// updateDuration handles PUT /api/v1/queries/latest/duration
func (s *Server) updateDuration(c *gin.Context) {
	var req durationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid video duration.", err)
		return
	}

	timeline, ok := s.session(ownerOf(c)).UpdateDuration(req.Duration)
	if !ok {
		c.AbortWithStatusJSON(http.StatusNotFound, Response{
			Code:    http.StatusNotFound,
			Message: "No query has been answered yet.",
		})
		return
	}

	success(c, timeline)
}

func (s *Server) videoFromForm(c *gin.Context) (*model.Video, error) {
	if url := strings.TrimSpace(c.PostForm("video_url")); url != "" {
		return s.videoFromURL(c.Request.Context(), url)
	}

	fh, err := c.FormFile("video")
	if err != nil {
		return nil, goerr.Wrap(model.ErrVideoRequired, "no video in form", goerr.V("cause", err.Error()))
	}
	return uploadedVideo(fh), nil
}

func (s *Server) videoFromURL(ctx context.Context, url string) (*model.Video, error) {
	if s.storage == nil {
		return nil, goerr.Wrap(model.ErrVideoRequired, "video_url is not supported by this server")
	}
	bucket, object, err := adapter.ParseGSURL(url)
	if err != nil {
		return nil, goerr.Wrap(model.ErrVideoRequired, "invalid video_url", goerr.V("cause", err.Error()))
	}
	st, err := s.storage(ctx, bucket)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open storage", goerr.V("bucket", bucket))
	}
	return adapter.StorageVideo(st, object), nil
}

func uploadedVideo(fh *multipart.FileHeader) *model.Video {
	return &model.Video{
		Label:    fh.Filename,
		MIMEType: fh.Header.Get("Content-Type"),
		Open: func(ctx context.Context) (io.ReadCloser, error) {
			f, err := fh.Open()
			if err != nil {
				return nil, goerr.Wrap(err, "failed to open uploaded video", goerr.V("video", fh.Filename))
			}
			return f, nil
		},
	}
}
