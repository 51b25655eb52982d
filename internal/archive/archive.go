// Package archive распаковка загруженных RINEX-архивов, результатов конвертации
// и навигационных файлов.
package archive

import (
	"archive/zip"
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrEmptyArchive архив без файлов
	ErrEmptyArchive = errors.New("empty archive")
	// ErrMultipleFiles в архиве загрузки больше одного файла
	ErrMultipleFiles = errors.New("multiple files in archive")
	// ErrUnsafePath имя записи выходит за пределы каталога
	ErrUnsafePath = errors.New("unsafe path in archive")
)

const dirPerm = 0755

// IsZip проверяет сигнатуру zip, включая пустой архив
func IsZip(data []byte) bool {
	if len(data) < 4 {
		return false
	}
	return bytes.Equal(data[:4], []byte("PK\x03\x04")) || bytes.Equal(data[:4], []byte("PK\x05\x06"))
}

// ExtractSingle сохраняет загруженный файл в dir. Zip-архив должен содержать
// ровно один файл, он и извлекается. Остальные данные записываются как есть под именем name.
func ExtractSingle(data []byte, name, dir string) (string, error) {
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	if !IsZip(data) {
		path, err := safeJoin(dir, name)
		if err != nil {
			return "", err
		}
		if err := os.WriteFile(path, data, 0644); err != nil {
			return "", fmt.Errorf("failed to save file: %w", err)
		}
		return path, nil
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to open zip: %w", err)
	}

	files := regularFiles(zr.File)
	switch {
	case len(files) == 0:
		return "", ErrEmptyArchive
	case len(files) > 1:
		return "", fmt.Errorf("%w: %d", ErrMultipleFiles, len(files))
	}

	return extractFile(files[0], dir)
}

// ExtractAll распаковывает все файлы zip-архива в dir
func ExtractAll(zipPath, dir string) ([]string, error) {
	zr, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open zip %s: %w", filepath.Base(zipPath), err)
	}
	defer zr.Close()

	files := regularFiles(zr.File)
	if len(files) == 0 {
		return nil, ErrEmptyArchive
	}

	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	paths := make([]string, 0, len(files))
	for _, f := range files {
		path, err := extractFile(f, dir)
		if err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// Gunzip распаковывает path в dir, имя результата без суффикса .gz
func Gunzip(path, dir string) (string, error) {
	in, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", filepath.Base(path), err)
	}
	defer in.Close()

	gz, err := gzip.NewReader(in)
	if err != nil {
		return "", fmt.Errorf("failed to read gzip %s: %w", filepath.Base(path), err)
	}
	defer gz.Close()

	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	target := filepath.Join(dir, strings.TrimSuffix(filepath.Base(path), ".gz"))
	if err := writeFile(target, gz); err != nil {
		return "", err
	}
	return target, nil
}

func regularFiles(entries []*zip.File) []*zip.File {
	files := make([]*zip.File, 0, len(entries))
	for _, f := range entries {
		if f.FileInfo().IsDir() {
			continue
		}
		files = append(files, f)
	}
	return files
}

func extractFile(f *zip.File, dir string) (string, error) {
	target, err := safeJoin(dir, f.Name)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(target), dirPerm); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	rc, err := f.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open %s in zip: %w", f.Name, err)
	}
	defer rc.Close()

	if err := writeFile(target, rc); err != nil {
		return "", err
	}
	return target, nil
}

func writeFile(path string, r io.Reader) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Base(path), err)
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return out.Close()
}

// safeJoin не дает записи архива выйти за пределы dir
func safeJoin(dir, name string) (string, error) {
	if name == "" || filepath.IsAbs(name) {
		return "", fmt.Errorf("%w: %q", ErrUnsafePath, name)
	}
	target := filepath.Join(dir, name)
	rel, err := filepath.Rel(dir, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrUnsafePath, name)
	}
	return target, nil
}
