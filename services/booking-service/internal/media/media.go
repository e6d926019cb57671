package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// PublicURL is the base under which objects are served, e.g. a CDN.
	// Defaults to the endpoint.
	PublicURL string
}

func (c Config) Enabled() bool {
	return c.Endpoint != "" && c.Bucket != ""
}

type objectPutter interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Images stores therapy images in an S3 compatible bucket.
type Images struct {
	client    objectPutter
	bucket    string
	publicURL string
}

func NewImages(cfg Config) (*Images, error) {
	cl, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	base := cfg.PublicURL
	if base == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		base = scheme + "://" + cfg.Endpoint
	}
	return &Images{client: cl, bucket: cfg.Bucket, publicURL: strings.TrimRight(base, "/")}, nil
}

var allowedTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// ErrUnsupportedType is returned for content types other than JPEG, PNG and WebP.
var ErrUnsupportedType = errors.New("unsupported image type")

// Upload stores r under therapies/<therapyID>/ and returns its public URL.
func (i *Images) Upload(ctx context.Context, therapyID, contentType string, r io.Reader, size int64) (string, error) {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", ErrUnsupportedType
	}
	ext, ok := allowedTypes[mediaType]
	if !ok {
		return "", ErrUnsupportedType
	}
	key := path.Join("therapies", therapyID, uuid.NewString()+ext)
	if _, err := i.client.PutObject(ctx, i.bucket, key, r, size, minio.PutObjectOptions{
		ContentType:  mediaType,
		CacheControl: "public, max-age=31536000",
	}); err != nil {
		return "", fmt.Errorf("put object %s/%s: %w", i.bucket, key, err)
	}
	return i.publicURL + "/" + i.bucket + "/" + key, nil
}
