package evidence

import (
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"time"

	"github.com/disintegration/imaging"
)

// FileName 证据文件名：session_{id}_{unix秒}.jpg
func FileName(sessionID int64, at time.Time) string {
	return fmt.Sprintf("session_%d_%d.jpg", sessionID, at.Unix())
}

// FileStore 本地目录证据存储
// 同名文件只写一次，已存在时视为成功（幂等）。
type FileStore struct {
	dir         string
	jpegQuality int
}

// NewFileStore 创建证据目录
func NewFileStore(dir string, jpegQuality int) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create evidence directory: %w", err)
	}
	if jpegQuality <= 0 || jpegQuality > 100 {
		jpegQuality = 90
	}
	return &FileStore{dir: dir, jpegQuality: jpegQuality}, nil
}

// Path 文件完整路径
func (s *FileStore) Path(name string) string {
	return filepath.Join(s.dir, name)
}

// Exists 文件是否已写入
func (s *FileStore) Exists(name string) bool {
	_, err := os.Stat(s.Path(name))
	return err == nil
}

// Save 以独占方式创建并写入 JPEG；created=false 表示文件已存在未覆盖
func (s *FileStore) Save(name string, img image.Image) (path string, created bool, err error) {
	path = s.Path(name)
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return path, false, nil
		}
		return "", false, fmt.Errorf("failed to create evidence file: %w", err)
	}

	if err := imaging.Encode(file, img, imaging.JPEG, imaging.JPEGQuality(s.jpegQuality)); err != nil {
		file.Close()
		os.Remove(path)
		return "", false, fmt.Errorf("JPEG encode failed: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(path)
		return "", false, fmt.Errorf("failed to close evidence file: %w", err)
	}
	return path, true, nil
}
