// Package images moves per-item photos between import archives and the
// content root.
//
// Archive entries are addressed by position in the staged batch: the n-th
// staged item (1-based) owns folder "restaurant-{n}" or "menuitem-{n}",
// which holds a single "default.jpg".
package images

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/erazemk/jedilnik/internal/imaging"
	"github.com/erazemk/jedilnik/internal/model"
	"github.com/google/uuid"
)

// FileName is the only file accepted in an item folder.
const FileName = "default.jpg"

// PublicPrefix is the URL prefix the content root is served under.
const PublicPrefix = "/images"

// importDir is the content root subdirectory holding extracted batches.
const importDir = "import"

// ErrArchive is returned for uploads that are not readable zip archives.
var ErrArchive = errors.New("invalid image archive")

var entryPattern = regexp.MustCompile(`^(restaurant|menuitem)-([1-9][0-9]*)/default\.jpg$`)

// Folder returns the archive folder of the item at 1-based position n.
func Folder(item model.Item, n int) string {
	if item.TypeTag() == model.TypeRestaurant {
		return "restaurant-" + strconv.Itoa(n)
	}
	return "menuitem-" + strconv.Itoa(n)
}

// TemplateZip builds an archive with a placeholder photo for every item.
func TemplateZip(items []model.Item) ([]byte, error) {
	placeholder, err := imaging.Placeholder(320, 240)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for i, item := range items {
		w, err := zw.Create(path.Join(Folder(item, i+1), FileName))
		if err != nil {
			return nil, fmt.Errorf("adding template entry: %w", err)
		}
		if _, err := w.Write(placeholder); err != nil {
			return nil, fmt.Errorf("writing template entry: %w", err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("closing template: %w", err)
	}
	return buf.Bytes(), nil
}

// Report summarizes an extraction.
type Report struct {
	Written  int      `json:"written"`
	Rejected []string `json:"rejected,omitempty"`
}

// Extract writes the photos of an uploaded archive under
// root/import/{batch}. Entries outside the folder layout, folders that do
// not match the staged item at that position, and undecodable photos are
// reported as rejected and skipped.
func Extract(r io.ReaderAt, size int64, root, batch string, items []model.Item) (Report, error) {
	var report Report

	dir, err := batchDir(root, batch)
	if err != nil {
		return report, err
	}

	// Insecure names are rejected per entry below.
	zr, err := zip.NewReader(r, size)
	if err != nil && !(errors.Is(err, zip.ErrInsecurePath) && zr != nil) {
		return report, fmt.Errorf("%w: %w", ErrArchive, err)
	}

	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}

		folder, ok := matchEntry(f.Name, items)
		if !ok {
			report.Rejected = append(report.Rejected, f.Name)
			continue
		}

		data, err := normalizeEntry(f)
		if err != nil {
			if errors.Is(err, imaging.ErrUnsupported) {
				report.Rejected = append(report.Rejected, f.Name)
				continue
			}
			return report, err
		}

		target := filepath.Join(dir, folder)
		if err := os.MkdirAll(target, 0o755); err != nil {
			return report, fmt.Errorf("creating image directory: %w", err)
		}
		if err := os.WriteFile(filepath.Join(target, FileName), data, 0o644); err != nil {
			return report, fmt.Errorf("writing image: %w", err)
		}
		report.Written++
	}

	return report, nil
}

// matchEntry returns the folder of a well-formed entry whose kind agrees
// with the staged item at its position.
func matchEntry(name string, items []model.Item) (string, bool) {
	m := entryPattern.FindStringSubmatch(name)
	if m == nil {
		return "", false
	}
	n, err := strconv.Atoi(m[2])
	if err != nil || n > len(items) {
		return "", false
	}
	folder := path.Dir(name)
	if Folder(items[n-1], n) != folder {
		return "", false
	}
	return folder, true
}

func normalizeEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %w", ErrArchive, f.Name, err)
	}
	defer rc.Close()
	return imaging.Normalize(rc)
}

// AssignRefs returns copies of items whose extracted photo exists with
// ImageRef pointing at its public path. Other items are copied unchanged.
func AssignRefs(root, batch string, items []model.Item) []model.Item {
	out := model.CloneItems(items)

	dir, err := batchDir(root, batch)
	if err != nil {
		return out
	}

	for i, item := range out {
		folder := Folder(item, i+1)
		if _, err := os.Stat(filepath.Join(dir, folder, FileName)); err != nil {
			continue
		}
		ref := path.Join(PublicPrefix, importDir, batch, folder, FileName)
		switch v := item.(type) {
		case *model.Restaurant:
			v.ImageRef = ref
		case *model.MenuItem:
			v.ImageRef = ref
		}
	}
	return out
}

// batchDir maps a batch id to its directory, refusing anything that is not
// a UUID so ids cannot escape the content root.
func batchDir(root, batch string) (string, error) {
	id, err := uuid.Parse(batch)
	if err != nil || id.String() != batch {
		return "", fmt.Errorf("invalid batch id %q", batch)
	}
	return filepath.Join(root, importDir, batch), nil
}
