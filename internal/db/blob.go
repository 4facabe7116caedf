package db

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/ukydev/fleet-logbook/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// GridFSBlobStore keeps driver and vehicle documents in a GridFS bucket.
type GridFSBlobStore struct {
	Bucket *gridfs.Bucket
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// Upload streams r into the bucket.
func (s *GridFSBlobStore) Upload(ctx context.Context, name, contentType string, r io.Reader) (models.Document, error) {
	if deadline, ok := ctx.Deadline(); ok {
		if err := s.Bucket.SetWriteDeadline(deadline); err != nil {
			return models.Document{}, err
		}
	}
	src := &countingReader{r: r}
	opts := options.GridFSUpload().SetMetadata(bson.D{{Key: "content_type", Value: contentType}})
	id, err := s.Bucket.UploadFromStream(name, src, opts)
	if err != nil {
		return models.Document{}, classify("upload document", err)
	}
	return models.Document{
		ID:          id,
		Name:        name,
		ContentType: contentType,
		Size:        src.n,
		UploadedAt:  time.Now().UTC(),
	}, nil
}

// Open returns a reader over a stored document. The caller closes it.
func (s *GridFSBlobStore) Open(ctx context.Context, id primitive.ObjectID) (io.ReadCloser, *models.Document, error) {
	if deadline, ok := ctx.Deadline(); ok {
		if err := s.Bucket.SetReadDeadline(deadline); err != nil {
			return nil, nil, err
		}
	}
	stream, err := s.Bucket.OpenDownloadStream(id)
	if err != nil {
		if errors.Is(err, gridfs.ErrFileNotFound) {
			return nil, nil, fmt.Errorf("open document: %w", ErrNotFound)
		}
		return nil, nil, classify("open document", err)
	}
	file := stream.GetFile()
	doc := &models.Document{
		ID:          id,
		Name:        file.Name,
		Size:        file.Length,
		UploadedAt:  file.UploadDate,
		ContentType: "application/octet-stream",
	}
	if file.Metadata != nil {
		if ct, ok := file.Metadata.Lookup("content_type").StringValueOK(); ok && ct != "" {
			doc.ContentType = ct
		}
	}
	return stream, doc, nil
}

// Delete removes a document and its chunks.
func (s *GridFSBlobStore) Delete(ctx context.Context, id primitive.ObjectID) error {
	err := s.Bucket.DeleteContext(ctx, id)
	if errors.Is(err, gridfs.ErrFileNotFound) {
		return fmt.Errorf("delete document: %w", ErrNotFound)
	}
	return classify("delete document", err)
}
