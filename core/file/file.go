package file

import (
	"context"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/elearning/core"
	"github.com/trezcool/elearning/core/user"
)

const maxUploadSize = 10 << 20 // 10 MiB

var (
	// errors
	ErrNotFound = core.NewNotFoundError("file not found")
	ErrTooLarge = errors.New("file is too large")
	ErrEmpty    = errors.New("file is empty")
	ErrNotImage = errors.New("only PNG, JPEG, GIF, WebP and HEIC images are accepted")

	nowFunc = func() time.Time { return time.Now().UTC() } // mockable
)

type File struct {
	Name             string    `json:"name"`
	OriginalFilename string    `json:"original_filename"`
	ContentType      string    `json:"content_type"`
	Size             int64     `json:"size"`
	IsPrivate        bool      `json:"is_private"`
	OwnerID          string    `json:"owner_id"`
	AttachedTo       string    `json:"attached_to"`
	URL              string    `json:"file_url"`
	CreatedAt        time.Time `json:"created_at"` // UTC
}

type (
	// Storage holds file contents.
	Storage interface {
		Put(ctx context.Context, name string, content []byte) error
		Get(ctx context.Context, name string) ([]byte, error)
		Delete(ctx context.Context, name string) error
	}

	// Repository holds file metadata.
	Repository interface {
		CreateFile(ctx context.Context, f File) (File, error)
		GetFile(ctx context.Context, name string) (File, error)
		AttachFiles(ctx context.Context, attachedTo string, names ...string) error
	}

	Service struct {
		repo    Repository
		storage Storage
		baseURL string
	}
)

// NewService builds the file service. Files are served under baseURL + "/v1/files/".
func NewService(repo Repository, storage Storage, baseURL string) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(storage, "storage"),
	).CheckAndPanic()
	return &Service{repo: repo, storage: storage, baseURL: strings.TrimSuffix(baseURL, "/")}
}

// Upload stores content under a generated name and records its metadata.
// attachedTo optionally links the file to the record it belongs to.
func (svc *Service) Upload(ctx context.Context, ownerID, filename string, content []byte, private bool, attachedTo string) (File, error) {
	if len(content) == 0 {
		return File{}, core.NewValidationError(ErrEmpty, core.FieldError{Field: "file", Error: ErrEmpty.Error()})
	}
	if len(content) > maxUploadSize {
		return File{}, core.NewValidationError(ErrTooLarge, core.FieldError{Field: "file", Error: ErrTooLarge.Error()})
	}

	filename = path.Base(strings.ReplaceAll(core.CleanString(filename), "\\", "/"))
	if filename == "." || filename == "/" {
		filename = "upload"
	}
	contentType := DetectContentType(filename, content)
	if !IsImage(contentType) {
		return File{}, core.NewValidationError(ErrNotImage, core.FieldError{Field: "file", Error: ErrNotImage.Error()})
	}
	name := uuid.New().String() + strings.ToLower(path.Ext(filename))

	if err := svc.storage.Put(ctx, name, content); err != nil {
		return File{}, errors.Wrap(err, "storing file")
	}
	f, err := svc.repo.CreateFile(ctx, File{
		Name:             name,
		OriginalFilename: filename,
		ContentType:      contentType,
		Size:             int64(len(content)),
		IsPrivate:        private,
		OwnerID:          ownerID,
		AttachedTo:       attachedTo,
		CreatedAt:        nowFunc(),
	})
	if err != nil {
		_ = svc.storage.Delete(ctx, name)
		return File{}, errors.Wrap(err, "recording file")
	}
	f.URL = svc.url(f.Name)
	return f, nil
}

// Open returns the metadata and content of a file the user may read.
func (svc *Service) Open(ctx context.Context, usr user.User, name string) (File, []byte, error) {
	f, err := svc.repo.GetFile(ctx, name)
	if err != nil {
		return File{}, nil, err
	}
	if f.IsPrivate && f.OwnerID != usr.ID && !usr.CanManageContent() {
		return File{}, nil, ErrNotFound
	}
	return svc.read(ctx, f)
}

// Read returns a file regardless of its owner, for internal use.
func (svc *Service) Read(ctx context.Context, name string) (File, []byte, error) {
	f, err := svc.repo.GetFile(ctx, name)
	if err != nil {
		return File{}, nil, err
	}
	return svc.read(ctx, f)
}

func (svc *Service) read(ctx context.Context, f File) (File, []byte, error) {
	content, err := svc.storage.Get(ctx, f.Name)
	if err != nil {
		return File{}, nil, errors.Wrap(err, "reading file")
	}
	f.URL = svc.url(f.Name)
	return f, content, nil
}

// Attach links previously uploaded files to a record.
func (svc *Service) Attach(ctx context.Context, attachedTo string, names ...string) error {
	if len(names) == 0 {
		return nil
	}
	return svc.repo.AttachFiles(ctx, attachedTo, names...)
}

func (svc *Service) URL(name string) string {
	return svc.url(name)
}

func (svc *Service) url(name string) string {
	return svc.baseURL + "/v1/files/" + name
}

var imageTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/gif":  true,
	"image/webp": true,
	"image/heic": true,
	"image/heif": true,
}

// IsImage reports whether contentType is one of the accepted image types.
func IsImage(contentType string) bool {
	return imageTypes[contentType]
}

// DetectContentType sniffs the MIME type of content. HEIC and HEIF images, which
// the sniffer does not know, are recognised by their extension and ISO-BMFF header.
func DetectContentType(filename string, content []byte) string {
	ct := http.DetectContentType(content)
	if imageTypes[ct] {
		return ct
	}
	if len(content) >= 12 && string(content[4:8]) == "ftyp" {
		switch strings.ToLower(path.Ext(filename)) {
		case ".heic":
			return "image/heic"
		case ".heif":
			return "image/heif"
		}
	}
	return ct
}
