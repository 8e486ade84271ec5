package adapter_test

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/momentseek/pkg/adapter"
	"github.com/m-mizutani/momentseek/pkg/model"
)

func TestParseGSURL(t *testing.T) {
	bucket, object, err := adapter.ParseGSURL("gs://media-bucket/videos/lobby.mp4")
	gt.NoError(t, err)
	gt.Equal(t, bucket, "media-bucket")
	gt.Equal(t, object, "videos/lobby.mp4")

	for _, url := range []string{"", "/tmp/a.mp4", "gs://", "gs://bucket", "gs://bucket/", "gs:///obj"} {
		_, _, err := adapter.ParseGSURL(url)
		gt.Error(t, err)
	}
}

func TestLocalVideo(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "entrance.MOV")
	gt.NoError(t, os.WriteFile(p, []byte("mov-data"), 0600))

	v, err := adapter.LocalVideo(p)
	gt.NoError(t, err)
	gt.Equal(t, v.Label, "entrance.MOV")
	gt.Equal(t, v.MIMEType, "video/quicktime")

	r, err := v.Open(context.Background())
	gt.NoError(t, err)
	defer r.Close()
	data, err := io.ReadAll(r)
	gt.NoError(t, err)
	gt.Equal(t, string(data), "mov-data")

	_, err = adapter.LocalVideo(filepath.Join(dir, "missing.mp4"))
	gt.True(t, errors.Is(err, model.ErrVideoRequired))

	_, err = adapter.LocalVideo(dir)
	gt.True(t, errors.Is(err, model.ErrVideoRequired))
}

type memStorage struct {
	objects map[string]string
}

func (m *memStorage) Put(ctx context.Context, key string) (io.WriteCloser, error) {
	return nil, nil
}

func (m *memStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(m.objects[key])), nil
}

func TestStorageVideo(t *testing.T) {
	st := &memStorage{objects: map[string]string{"videos/a.webm": "webm"}}
	v := adapter.StorageVideo(st, "videos/a.webm")
	gt.Equal(t, v.Label, "a.webm")
	gt.Equal(t, v.MIMEType, "video/webm")

	r, err := v.Open(context.Background())
	gt.NoError(t, err)
	data, err := io.ReadAll(r)
	gt.NoError(t, err)
	gt.Equal(t, string(data), "webm")
}

func TestCloudStorage(t *testing.T) {
	bucket := os.Getenv("TEST_STORAGE_BUCKET")
	if bucket == "" {
		t.Skip("TEST_STORAGE_BUCKET is not set")
	}

	ctx := context.Background()
	st, err := adapter.NewStorage(ctx, bucket)
	gt.NoError(t, err)

	key := "test/" + string(model.NewHistoryID()) + ".json"
	w, err := st.Put(ctx, key)
	gt.NoError(t, err)
	_, err = w.Write([]byte(`{"predicted_moments": []}`))
	gt.NoError(t, err)
	gt.NoError(t, w.Close())

	r, err := st.Get(ctx, key)
	gt.NoError(t, err)
	defer r.Close()
	data, err := io.ReadAll(r)
	gt.NoError(t, err)
	gt.Equal(t, string(data), `{"predicted_moments": []}`)
}
