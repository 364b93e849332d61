// Package media persists binary attachments on disk. Direct uploads and
// bridge-downloaded files go through the same store and share locators.
package media

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/fixline/fixline/internal/chat"
)

var (
	// ErrAttachmentTooLarge is returned when the payload exceeds the
	// configured limit.
	ErrAttachmentTooLarge = errors.New("attachment too large")
	// ErrInvalidAttachmentType is returned when the file extension does
	// not match the declared category.
	ErrInvalidAttachmentType = errors.New("invalid attachment type")
	// ErrAttachmentNotFound is returned for an unknown locator.
	ErrAttachmentNotFound = errors.New("attachment not found")
)

// allowedExtensions maps each category to its accepted file extensions.
var allowedExtensions = map[chat.MessageType][]string{
	chat.TypeImage: {".jpg", ".jpeg", ".png", ".gif", ".webp"},
	chat.TypeAudio: {".mp3", ".m4a", ".wav", ".ogg", ".flac"},
	chat.TypeVoice: {".ogg", ".oga", ".opus", ".m4a"},
	chat.TypeVideo: {".mp4", ".mov", ".webm", ".mkv"},
	chat.TypeFile:  nil, // any extension
}

// Store is a disk-backed attachment store. Locators are relative paths
// of the form category/hash-prefix/hash+ext.
type Store struct {
	dir      string
	maxBytes int64
	logger   *slog.Logger
}

// NewStore creates the store rooted at dir.
func NewStore(log *slog.Logger, dir string, maxBytes int64) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, fmt.Errorf("media dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create media dir: %w", err)
	}
	return &Store{
		dir:      dir,
		maxBytes: maxBytes,
		logger:   log.With(slog.String("service", "media")),
	}, nil
}

// MaxBytes returns the configured size limit.
func (s *Store) MaxBytes() int64 { return s.maxBytes }

// Save stores the payload and returns its locator. Content is hashed so
// repeated uploads of the same bytes deduplicate onto one file.
func (s *Store) Save(ctx context.Context, data []byte, suggestedName string, category chat.MessageType) (string, error) {
	if category == chat.TypeText {
		return "", fmt.Errorf("%w: text messages carry no attachment", ErrInvalidAttachmentType)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("attachment payload is empty")
	}
	if s.maxBytes > 0 && int64(len(data)) > s.maxBytes {
		return "", fmt.Errorf("%w: max %d bytes", ErrAttachmentTooLarge, s.maxBytes)
	}
	ext, err := validateExtension(suggestedName, category)
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])
	locator := path.Join(string(category), hash[:2], hash+ext)

	target := filepath.Join(s.dir, filepath.FromSlash(locator))
	if _, err := os.Stat(target); err == nil {
		return locator, nil
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("create attachment dir: %w", err)
	}
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return "", fmt.Errorf("write attachment: %w", err)
	}
	s.logger.Debug("attachment stored",
		slog.String("locator", locator),
		slog.Int("size", len(data)),
	)
	return locator, nil
}

// Read loads the payload for a locator.
func (s *Store) Read(ctx context.Context, locator string) ([]byte, error) {
	target, err := s.resolve(locator)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(target)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrAttachmentNotFound, locator)
		}
		return nil, fmt.Errorf("read attachment: %w", err)
	}
	return data, nil
}

// resolve turns a locator into an absolute path, rejecting traversal
// outside the store root.
func (s *Store) resolve(locator string) (string, error) {
	locator = strings.TrimSpace(locator)
	if locator == "" {
		return "", fmt.Errorf("%w: empty locator", ErrAttachmentNotFound)
	}
	cleaned := path.Clean("/" + locator)
	target := filepath.Join(s.dir, filepath.FromSlash(strings.TrimPrefix(cleaned, "/")))
	rel, err := filepath.Rel(s.dir, target)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("%w: %s", ErrAttachmentNotFound, locator)
	}
	return target, nil
}

func validateExtension(name string, category chat.MessageType) (string, error) {
	ext := strings.ToLower(path.Ext(path.Base(strings.TrimSpace(name))))
	allowed, ok := allowedExtensions[category]
	if !ok {
		return "", fmt.Errorf("%w: unknown category %s", ErrInvalidAttachmentType, category)
	}
	if allowed == nil {
		if ext == "" {
			ext = ".bin"
		}
		return ext, nil
	}
	for _, candidate := range allowed {
		if ext == candidate {
			return ext, nil
		}
	}
	return "", fmt.Errorf("%w: %s not allowed for %s", ErrInvalidAttachmentType, ext, category)
}
