package adapter

import (
	"context"
	"io"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/momentseek/pkg/model"
)

// LocalVideo builds a video backed by a file on disk
func LocalVideo(filePath string) (*model.Video, error) {
	info, err := os.Stat(filePath)
	if err != nil {
		return nil, goerr.Wrap(model.ErrVideoRequired, "video file is not accessible",
			goerr.V("path", filePath),
			goerr.V("cause", err.Error()))
	}
	if info.IsDir() {
		return nil, goerr.Wrap(model.ErrVideoRequired, "video path is a directory", goerr.V("path", filePath))
	}

	return &model.Video{
		Label:    filepath.Base(filePath),
		MIMEType: videoMIMEType(filePath),
		Open: func(ctx context.Context) (io.ReadCloser, error) {
			f, err := os.Open(filePath)
			if err != nil {
				return nil, goerr.Wrap(err, "failed to open video file", goerr.V("path", filePath))
			}
			return f, nil
		},
	}, nil
}

// StorageVideo builds a video backed by an object in Storage
func StorageVideo(st Storage, key string) *model.Video {
	return &model.Video{
		Label:    path.Base(key),
		MIMEType: videoMIMEType(key),
		Open: func(ctx context.Context) (io.ReadCloser, error) {
			return st.Get(ctx, key)
		},
	}
}

func videoMIMEType(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".mp4", ".m4v":
		return "video/mp4"
	case ".mov":
		return "video/quicktime"
	case ".webm":
		return "video/webm"
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}
