package media

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/minio/minio-go/v7"
)

type fakePutter struct {
	bucket, key, contentType string
	body                     string
}

func (f *fakePutter) PutObject(_ context.Context, bucket, key string, r io.Reader, _ int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	b, _ := io.ReadAll(r)
	f.bucket, f.key, f.contentType, f.body = bucket, key, opts.ContentType, string(b)
	return minio.UploadInfo{Bucket: bucket, Key: key}, nil
}

func TestUploadStoresUnderTherapy(t *testing.T) {
	fake := &fakePutter{}
	imgs := &Images{client: fake, bucket: "zen", publicURL: "https://cdn.example"}

	url, err := imgs.Upload(context.Background(), "t1", "image/png", strings.NewReader("png-bytes"), 9)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if !strings.HasPrefix(fake.key, "therapies/t1/") || !strings.HasSuffix(fake.key, ".png") {
		t.Fatalf("unexpected key %q", fake.key)
	}
	if url != "https://cdn.example/zen/"+fake.key {
		t.Fatalf("unexpected url %q", url)
	}
	if fake.body != "png-bytes" || fake.contentType != "image/png" {
		t.Fatalf("unexpected object %q %q", fake.body, fake.contentType)
	}
}

func TestUploadRejectsNonImages(t *testing.T) {
	imgs := &Images{client: &fakePutter{}, bucket: "zen"}
	_, err := imgs.Upload(context.Background(), "t1", "application/pdf", strings.NewReader("x"), 1)
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("expected ErrUnsupportedType, got %v", err)
	}
}
