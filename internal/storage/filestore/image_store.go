package filestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ImageStore хранит изображения товаров в каталоге на диске и отдаёт их по MediaURL.
type ImageStore struct {
	root     string
	mediaURL string
}

// NewImageStore создаёт хранилище; каталог root создаётся при необходимости.
func NewImageStore(root, mediaURL string) (*ImageStore, error) {
	if root == "" {
		return nil, errors.New("media root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create media root: %w", err)
	}
	if mediaURL == "" {
		mediaURL = "/media/"
	}
	if !strings.HasSuffix(mediaURL, "/") {
		mediaURL += "/"
	}
	return &ImageStore{root: root, mediaURL: mediaURL}, nil
}

// Root возвращает каталог с файлами, чтобы его можно было раздавать статикой.
func (s *ImageStore) Root() string {
	return s.root
}

// Save атомарно записывает файл: сначала во временный, затем rename.
func (s *ImageStore) Save(ctx context.Context, name string, r io.Reader) (string, error) {
	rel, full, err := s.resolve(name)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("create image dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("write image: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close image: %w", err)
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		return "", fmt.Errorf("store image: %w", err)
	}
	return rel, nil
}

// Remove удаляет файл; отсутствие файла ошибкой не считается.
func (s *ImageStore) Remove(_ context.Context, name string) error {
	_, full, err := s.resolve(name)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove image: %w", err)
	}
	return nil
}

// URL строит публичную ссылку на файл.
func (s *ImageStore) URL(name string) string {
	segments := strings.Split(name, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return s.mediaURL + strings.Join(segments, "/")
}

// resolve проверяет, что путь не выходит за пределы root.
func (s *ImageStore) resolve(name string) (string, string, error) {
	rel := path.Clean("/" + strings.ReplaceAll(name, "\\", "/"))[1:]
	if rel == "" {
		return "", "", errors.New("image name is required")
	}
	return rel, filepath.Join(s.root, filepath.FromSlash(rel)), nil
}
