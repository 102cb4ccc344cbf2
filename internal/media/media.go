package media

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// PostsDir is the subdirectory post images are stored under.
const PostsDir = "posts"

// Store keeps uploaded files below a fixed root directory.
type Store struct {
	root string
}

func New(root string) *Store {
	return &Store{root: root}
}

// SavePostImage writes data under a fresh name and returns the path to store on
// the post, relative to the media root ("posts/<uuid><ext>").
func (s *Store) SavePostImage(ext string, data []byte) (string, error) {
	dir := filepath.Join(s.root, PostsDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}
	name := uuid.NewString() + strings.ToLower(ext)
	if err := os.WriteFile(filepath.Join(dir, name), data, 0644); err != nil {
		return "", fmt.Errorf("write upload: %w", err)
	}
	rel := PostsDir + "/" + name
	slog.Debug("media: Saved post image", "path", rel, "bytes", len(data))
	return rel, nil
}

// Path resolves a stored relative path to its location on disk.
func (s *Store) Path(rel string) string {
	return filepath.Join(s.root, filepath.FromSlash(rel))
}

// Remove deletes a stored file by the relative path SavePostImage returned.
func (s *Store) Remove(rel string) error {
	if err := os.Remove(s.Path(rel)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove upload: %w", err)
	}
	return nil
}

// Handler serves stored files; mount it with the URL prefix stripped.
func (s *Store) Handler() http.Handler {
	return http.FileServer(http.Dir(s.root))
}
