package s3storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var ErrObjectNotFound = errors.New("object not found")

// MinIOClient wraps the MinIO client for voice card audio storage
type MinIOClient struct {
	client     *minio.Client
	bucketName string
}

// Object is an open blob stream together with its metadata
type Object struct {
	io.ReadCloser
	Size        int64
	ContentType string
}

// NewMinIOClient creates a new MinIO client and ensures bucket exists
func NewMinIOClient(endpoint, accessKey, secretKey, bucketName string, useSSL bool) (*MinIOClient, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	mc := &MinIOClient{
		client:     client,
		bucketName: bucketName,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := mc.ensureBucket(ctx); err != nil {
		return nil, err
	}

	return mc, nil
}

// ensureBucket creates the bucket if it doesn't exist
func (m *MinIOClient) ensureBucket(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.bucketName)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}

	if !exists {
		err = m.client.MakeBucket(ctx, m.bucketName, minio.MakeBucketOptions{})
		if err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return nil
}

// ObjectName maps a client storage key onto the bucket layout
func ObjectName(key string) string {
	return path.Join("audio", key)
}

// ContentTypeFor guesses the audio content type from a key's extension
func ContentTypeFor(key string) string {
	switch strings.ToLower(path.Ext(key)) {
	case ".mp3":
		return "audio/mpeg"
	case ".ogg":
		return "audio/ogg"
	case ".wav":
		return "audio/wav"
	case ".opus":
		return "audio/opus"
	default:
		return "audio/mp4"
	}
}

// UploadAudio uploads an audio blob under the given key
// Returns the object path in MinIO
func (m *MinIOClient) UploadAudio(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	objectName := ObjectName(key)

	if contentType == "" {
		contentType = ContentTypeFor(key)
	}

	_, err := m.client.PutObject(
		ctx,
		m.bucketName,
		objectName,
		bytes.NewReader(data),
		int64(len(data)),
		minio.PutObjectOptions{
			ContentType: contentType,
		},
	)
	if err != nil {
		return "", fmt.Errorf("failed to upload to minio: %w", err)
	}

	return objectName, nil
}

// OpenAudio opens a stored blob for streaming; the caller closes it
func (m *MinIOClient) OpenAudio(ctx context.Context, key string) (*Object, error) {
	info, err := m.StatAudio(ctx, key)
	if err != nil {
		return nil, err
	}

	object, err := m.client.GetObject(ctx, m.bucketName, ObjectName(key), minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get object: %w", err)
	}

	return &Object{
		ReadCloser:  object,
		Size:        info.Size,
		ContentType: info.ContentType,
	}, nil
}

// StatAudio retrieves metadata about a stored blob
func (m *MinIOClient) StatAudio(ctx context.Context, key string) (*minio.ObjectInfo, error) {
	info, err := m.client.StatObject(ctx, m.bucketName, ObjectName(key), minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("failed to get object info: %w", err)
	}
	return &info, nil
}

// AudioExists reports whether a blob is stored under key
func (m *MinIOClient) AudioExists(ctx context.Context, key string) (bool, error) {
	_, err := m.StatAudio(ctx, key)
	if errors.Is(err, ErrObjectNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
