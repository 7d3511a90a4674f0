package repository

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"ephemeral_chat/pkg/database"
	errprocess "ephemeral_chat/pkg/err"

	"github.com/spf13/afero"
)

// UploadsPrefix public path prefix of attachment references
const UploadsPrefix = "/uploads/"

// ErrInvalidRef reference does not name a single stored object
var ErrInvalidRef = errors.New("invalid attachment reference")

// AttachmentStore 上傳檔案儲存, refs look like /uploads/<name>
type AttachmentStore interface {
	Save(ctx context.Context, name string, r io.Reader, size int64, contentType string) (string, error)
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	Remove(ctx context.Context, ref string) error
}

// RefFor public reference of an object name
func RefFor(name string) string {
	return UploadsPrefix + name
}

// ObjectName extract the stored object name from ref (or a bare name).
// Anything that would escape the upload directory is rejected.
func ObjectName(ref string) (string, error) {
	name := strings.TrimPrefix(ref, UploadsPrefix)
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidRef, ref)
	}
	return name, nil
}

// LocalAttachmentStore keep attachments in a directory of fs
type LocalAttachmentStore struct {
	fs  afero.Fs
	dir string
}

// NewLocalAttachmentStore create the directory when missing
func NewLocalAttachmentStore(fs afero.Fs, dir string) (*LocalAttachmentStore, error) {
	if err := fs.MkdirAll(dir, 0755); err != nil {
		return nil, errprocess.FileSystem("create upload dir", err)
	}
	return &LocalAttachmentStore{fs: fs, dir: dir}, nil
}

func (s *LocalAttachmentStore) path(ref string) (string, error) {
	name, err := ObjectName(ref)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.dir, name), nil
}

// Save write r to <dir>/<name>
func (s *LocalAttachmentStore) Save(_ context.Context, name string, r io.Reader, _ int64, _ string) (string, error) {
	p, err := s.path(name)
	if err != nil {
		return "", errprocess.FileSystem("save attachment", err)
	}
	f, err := s.fs.Create(p)
	if err != nil {
		return "", errprocess.FileSystem("save attachment", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		_ = s.fs.Remove(p)
		return "", errprocess.FileSystem("save attachment", err)
	}
	if err := f.Close(); err != nil {
		return "", errprocess.FileSystem("save attachment", err)
	}
	return RefFor(filepath.Base(p)), nil
}

// Open open <dir>/<name> for reading
func (s *LocalAttachmentStore) Open(_ context.Context, name string) (io.ReadCloser, error) {
	p, err := s.path(name)
	if err != nil {
		return nil, errprocess.FileSystem("open attachment", err)
	}
	f, err := s.fs.Open(p)
	if err != nil {
		return nil, errprocess.FileSystem("open attachment", err)
	}
	return f, nil
}

// Remove delete the file behind ref
func (s *LocalAttachmentStore) Remove(_ context.Context, ref string) error {
	p, err := s.path(ref)
	if err != nil {
		return errprocess.FileSystem("remove attachment", err)
	}
	return errprocess.FileSystem("remove attachment", s.fs.Remove(p))
}

// MinIOAttachmentStore keep attachments as objects in a minio bucket
type MinIOAttachmentStore struct {
	client *database.MinIOClient
}

// NewMinIOAttachmentStore create MinIOAttachmentStore
func NewMinIOAttachmentStore(client *database.MinIOClient) *MinIOAttachmentStore {
	return &MinIOAttachmentStore{client: client}
}

// Save upload r as object name
func (s *MinIOAttachmentStore) Save(ctx context.Context, name string, r io.Reader, size int64, contentType string) (string, error) {
	obj, err := ObjectName(name)
	if err != nil {
		return "", errprocess.FileSystem("save attachment", err)
	}
	if err := s.client.PutStream(ctx, obj, r, size, contentType); err != nil {
		return "", errprocess.FileSystem("save attachment", err)
	}
	return RefFor(obj), nil
}

// Open stream object name
func (s *MinIOAttachmentStore) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	obj, err := ObjectName(name)
	if err != nil {
		return nil, errprocess.FileSystem("open attachment", err)
	}
	rc, err := s.client.GetStream(ctx, obj)
	if err != nil {
		return nil, errprocess.FileSystem("open attachment", err)
	}
	return rc, nil
}

// Remove delete the object behind ref
func (s *MinIOAttachmentStore) Remove(ctx context.Context, ref string) error {
	obj, err := ObjectName(ref)
	if err != nil {
		return errprocess.FileSystem("remove attachment", err)
	}
	return errprocess.FileSystem("remove attachment", s.client.RemoveObject(ctx, obj))
}
