package filemgr

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	_ "golang.org/x/image/webp"
)

type EntityType string
type PictureType string

const (
	EntityProduct  EntityType = "product"
	EntityCategory EntityType = "category"
	EntityUser     EntityType = "user"

	PicPhoto  PictureType = "photo"
	PicBanner PictureType = "banner"
	PicThumb  PictureType = "thumb"
)

var (
	AllowedExtensions = map[PictureType][]string{
		PicPhoto:  {".jpg", ".jpeg", ".png", ".gif", ".webp"},
		PicBanner: {".jpg", ".jpeg", ".png"},
		PicThumb:  {".jpg"},
	}

	AllowedMIMEs = map[PictureType][]string{
		PicPhoto:  {"image/jpeg", "image/png", "image/gif", "image/webp"},
		PicBanner: {"image/jpeg", "image/png"},
		PicThumb:  {"image/jpeg"},
	}

	PictureSubfolders = map[PictureType]string{
		PicPhoto:  "photo",
		PicBanner: "banner",
		PicThumb:  "thumb",
	}

	ErrInvalidExtension = errors.New("invalid file extension")
	ErrInvalidMIME      = errors.New("invalid MIME type")
	ErrFileTooLarge     = errors.New("file size exceeds limit")

	LogFunc func(path string, size int64, mimeType string)
)

// SaveFile validates and writes a single upload into destDir, returning the
// stored filename. Unnamed uploads get a uuid name.
func SaveFile(reader io.Reader, header *multipart.FileHeader, destDir string, maxSize int64, customNameFn func(original string) string) (string, error) {
	ext := strings.ToLower(filepath.Ext(header.Filename))
	picType := detectPicType(destDir)
	if picType == "" {
		return "", fmt.Errorf("unknown picture type for folder: %s", destDir)
	}

	if !isExtensionAllowed(ext, picType) {
		return "", fmt.Errorf("%w: %s for %s", ErrInvalidExtension, ext, picType)
	}

	buf := make([]byte, 512)
	n, err := reader.Read(buf)
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("read header: %w", err)
	}
	mimeType := http.DetectContentType(buf[:n])
	if mimeType == "application/octet-stream" {
		if formMime := header.Header.Get("Content-Type"); formMime != "" {
			mimeType = formMime
		}
	}
	if !isMIMEAllowed(mimeType, picType) {
		return "", fmt.Errorf("%w: %s for %s", ErrInvalidMIME, mimeType, picType)
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", destDir, err)
	}

	filename := ""
	if customNameFn != nil {
		filename = strings.TrimSpace(customNameFn(header.Filename))
	}
	if filename == "" {
		filename = uuid.New().String() + ext
	} else {
		filename = ensureSafeFilename(filename, ext)
	}

	fullPath := filepath.Join(destDir, filename)
	out, err := os.Create(fullPath)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", fullPath, err)
	}
	defer out.Close()

	if _, err := out.Write(buf[:n]); err != nil {
		return "", fmt.Errorf("write header: %w", err)
	}

	written, err := io.Copy(out, io.LimitReader(reader, maxSize-int64(n)))
	if err != nil {
		return "", fmt.Errorf("write body: %w", err)
	}
	if maxSize > 0 && written+int64(n) > maxSize {
		return "", ErrFileTooLarge
	}

	if LogFunc != nil {
		LogFunc(fullPath, written+int64(n), mimeType)
	}

	return filename, nil
}

// SaveFileForEntity strips EXIF from images, saves the original and writes a
// 200px thumbnail alongside it.
func SaveFileForEntity(file multipart.File, header *multipart.FileHeader, entity EntityType, picType PictureType) (string, error) {
	defer file.Close()
	dest := ResolvePath(entity, picType)

	buf, err := io.ReadAll(file)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}

	if img, _, derr := image.Decode(bytes.NewReader(buf)); derr == nil {
		if strip, serr := stripEXIF(img); serr == nil {
			buf = strip.Bytes()
		}

		fileName, err := SaveFile(bytes.NewReader(buf), header, dest, 10<<20, nil)
		if err != nil {
			return "", err
		}

		_ = generateThumbnail(img, entity, fileName)
		return fileName, nil
	}

	// fallback save when decode fails
	return SaveFile(bytes.NewReader(buf), header, dest, 10<<20, nil)
}

// SaveFormFile saves the first file under formKey, if any.
func SaveFormFile(form *multipart.Form, formKey string, entity EntityType, picType PictureType, required bool) (string, error) {
	files := form.File[formKey]
	if len(files) == 0 {
		if required {
			return "", fmt.Errorf("missing required file: %s", formKey)
		}
		return "", nil
	}
	file, err := files[0].Open()
	if err != nil {
		return "", fmt.Errorf("open %s: %w", formKey, err)
	}
	return SaveFileForEntity(file, files[0], entity, picType)
}

// SaveFormFiles saves every file under formKey, collecting per-file errors.
func SaveFormFiles(form *multipart.Form, formKey string, entity EntityType, picType PictureType, required bool) ([]string, error) {
	files := form.File[formKey]
	if len(files) == 0 {
		if required {
			return nil, fmt.Errorf("missing required files: %s", formKey)
		}
		return nil, nil
	}

	var saved []string
	var errs []string
	for _, hdr := range files {
		file, err := hdr.Open()
		if err != nil {
			errs = append(errs, fmt.Sprintf("open %s: %v", hdr.Filename, err))
			continue
		}
		name, err := SaveFileForEntity(file, hdr, entity, picType)
		if err != nil {
			errs = append(errs, fmt.Sprintf("save %s: %v", hdr.Filename, err))
			continue
		}
		saved = append(saved, name)
	}

	if len(errs) > 0 {
		return saved, fmt.Errorf("one or more errors saving files: %s", strings.Join(errs, "; "))
	}
	return saved, nil
}

func ResolvePath(entity EntityType, picType PictureType) string {
	subfolder, ok := PictureSubfolders[picType]
	if !ok || subfolder == "" {
		subfolder = "misc"
	}
	return filepath.Join("static", "uploads", strings.ToLower(string(entity)), subfolder)
}

func ValidateImageDimensions(img image.Image, maxWidth, maxHeight int) error {
	bounds := img.Bounds()
	if bounds.Dx() > maxWidth || bounds.Dy() > maxHeight {
		return fmt.Errorf("image dimensions %dx%d exceed allowed maximum %dx%d", bounds.Dx(), bounds.Dy(), maxWidth, maxHeight)
	}
	return nil
}

func generateThumbnail(img image.Image, entity EntityType, baseFilename string) error {
	resized := imaging.Resize(img, 200, 0, imaging.Lanczos) // keep aspect ratio
	name := strings.TrimSuffix(baseFilename, filepath.Ext(baseFilename)) + ".jpg"
	path := filepath.Join(ResolvePath(entity, PicThumb), name)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", filepath.Dir(path), err)
	}

	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create thumbnail: %w", err)
	}
	defer out.Close()

	if err := jpeg.Encode(out, resized, &jpeg.Options{Quality: 85}); err != nil {
		return fmt.Errorf("encode thumbnail: %w", err)
	}

	if LogFunc != nil {
		LogFunc(path, 0, "image/jpeg")
	}
	return nil
}

func stripEXIF(img image.Image) (*bytes.Buffer, error) {
	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: 90}); err != nil {
		return nil, err
	}
	return buf, nil
}

func detectPicType(destDir string) PictureType {
	parts := strings.Split(destDir, string(os.PathSeparator))
	if len(parts) == 0 {
		return ""
	}
	last := strings.ToLower(parts[len(parts)-1])
	for picType, folder := range PictureSubfolders {
		if folder == last {
			return picType
		}
	}
	return ""
}

func ensureSafeFilename(name, ext string) string {
	name = strings.TrimSuffix(name, filepath.Ext(name))
	name = strings.ToLower(name)
	name = strings.ReplaceAll(name, " ", "_")
	reg := regexp.MustCompile(`[^a-zA-Z0-9_\-]`)
	name = reg.ReplaceAllString(name, "")
	return name + ext
}

func isExtensionAllowed(ext string, picType PictureType) bool {
	for _, a := range AllowedExtensions[picType] {
		if ext == a {
			return true
		}
	}
	return false
}

func isMIMEAllowed(mimeType string, picType PictureType) bool {
	for _, a := range AllowedMIMEs[picType] {
		if mimeType == a {
			return true
		}
	}
	return false
}
