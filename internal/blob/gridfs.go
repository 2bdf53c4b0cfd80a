package blob

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const bucketName = "product_images"

type GridFSStore struct {
	bucket *gridfs.Bucket
}

func NewGridFSStore(db *mongo.Database) (*GridFSStore, error) {
	bucket, err := gridfs.NewBucket(db, options.GridFSBucket().SetName(bucketName))
	if err != nil {
		return nil, fmt.Errorf("failed to open gridfs bucket: %w", err)
	}
	return &GridFSStore{bucket: bucket}, nil
}

func (s *GridFSStore) Put(ctx context.Context, name, contentType string, r io.Reader) error {
	if !validName(name) {
		return fmt.Errorf("invalid object name %q", name)
	}
	opts := options.GridFSUpload().SetMetadata(bson.M{"contentType": contentType})
	if _, err := s.bucket.UploadFromStream(name, ctxReader{ctx: ctx, r: r}, opts); err != nil {
		return fmt.Errorf("failed to upload %s: %w", name, err)
	}
	return nil
}

func (s *GridFSStore) Open(_ context.Context, name string) (io.ReadCloser, Info, error) {
	stream, err := s.bucket.OpenDownloadStreamByName(name)
	if err != nil {
		if errors.Is(err, gridfs.ErrFileNotFound) {
			return nil, Info{}, ErrNotFound
		}
		return nil, Info{}, fmt.Errorf("failed to open %s: %w", name, err)
	}

	file := stream.GetFile()
	info := Info{Name: file.Name, Size: file.Length, UploadedAt: file.UploadDate}
	if ct, ok := file.Metadata.Lookup("contentType").StringValueOK(); ok {
		info.ContentType = ct
	}
	return stream, info, nil
}

func (s *GridFSStore) Delete(ctx context.Context, name string) error {
	cursor, err := s.bucket.FindContext(ctx, bson.M{"filename": name})
	if err != nil {
		return fmt.Errorf("failed to find %s: %w", name, err)
	}
	defer cursor.Close(ctx)

	found := false
	for cursor.Next(ctx) {
		var file gridfs.File
		if err := cursor.Decode(&file); err != nil {
			return fmt.Errorf("failed to decode %s: %w", name, err)
		}
		if err := s.bucket.DeleteContext(ctx, file.ID); err != nil {
			return fmt.Errorf("failed to delete %s: %w", name, err)
		}
		found = true
	}
	if err := cursor.Err(); err != nil {
		return fmt.Errorf("failed to iterate %s: %w", name, err)
	}
	if !found {
		return ErrNotFound
	}
	return nil
}

// ctxReader stops an upload once the request context is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
