// Package export assembles downloadable artifacts from a transcript
// entry. It is read-only over the transcript: bundles are built from
// the entry passed in, never from ambient state.
package export

import (
	"archive/zip"
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"room-renovator-bot/internal/transcript"
)

// BundleName is the filename of the full download archive.
const BundleName = "room-renovation-package.zip"

const promptsFilename = "renovation-prompts.txt"

// File is one archive manifest item.
type File struct {
	Path string
	Data []byte
}

// Slug lower-cases a label and collapses runs of anything outside
// [a-z0-9] to a single hyphen. Stage labels carry ":" and "&", which
// some extractors reject in member paths.
func Slug(label string) string {
	var b strings.Builder
	pendingHyphen := false
	for _, r := range strings.ToLower(label) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
		} else {
			pendingHyphen = true
		}
	}
	return b.String()
}

// SingleFilename is the download name for one staged image.
func SingleFilename(label string) string {
	return "renovator-" + Slug(label) + ".png"
}

// Bundle builds the archive manifest for an entry: every staged image
// under images/<ordinal>-<slug>.png (1-based, in entry order), plus a
// prompts text file when the entry carries structured prompts.
func Bundle(entry transcript.Entry) ([]File, error) {
	var files []File

	for i, img := range entry.Images {
		data, err := decodeBase64(img.DataBase64)
		if err != nil {
			return nil, fmt.Errorf("decode %s image: %w", img.Label, err)
		}
		files = append(files, File{
			Path: fmt.Sprintf("images/%d-%s.png", i+1, Slug(img.Label)),
			Data: data,
		})
	}

	if len(entry.Prompts) > 0 {
		var b strings.Builder
		for _, p := range entry.Prompts {
			b.WriteString(p.StageLabel)
			b.WriteString("\n")
			b.WriteString(p.Text)
			b.WriteString("\n\n")
		}
		files = append(files, File{
			Path: promptsFilename,
			Data: []byte(b.String()),
		})
	}

	return files, nil
}

// WriteZip renders a manifest as a zip archive.
func WriteZip(w io.Writer, files []File) error {
	zw := zip.NewWriter(w)
	for _, f := range files {
		fw, err := zw.Create(f.Path)
		if err != nil {
			return fmt.Errorf("create %s: %w", f.Path, err)
		}
		if _, err := fw.Write(f.Data); err != nil {
			return fmt.Errorf("write %s: %w", f.Path, err)
		}
	}
	return zw.Close()
}

// BundleZip builds the complete archive for an entry in memory.
func BundleZip(entry transcript.Entry) ([]byte, error) {
	files, err := Bundle(entry)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := WriteZip(&buf, files); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeBase64(value string) ([]byte, error) {
	if idx := strings.IndexByte(value, ','); idx >= 0 {
		value = value[idx+1:]
	}
	return base64.StdEncoding.DecodeString(value)
}
