package source

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
)

// ParseGCSURI splits gs://bucket/path/to/object into bucket and object.
func ParseGCSURI(uri string) (bucket, object string, err error) {
	if !strings.HasPrefix(uri, "gs://") {
		return "", "", fmt.Errorf("invalid GCS URI: %s", uri)
	}
	parts := strings.SplitN(strings.TrimPrefix(uri, "gs://"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", uri)
	}
	return parts[0], parts[1], nil
}

// FilenameFromGCSURI returns the base name of the object,
// e.g. "gs://bucket/folder/file.ofx" → "file.ofx".
func FilenameFromGCSURI(uri string) string {
	_, object, err := ParseGCSURI(uri)
	if err != nil {
		return strings.TrimPrefix(uri, "gs://")
	}
	return path.Base(object)
}

// KindFromFilename guesses the source kind from a file extension.
func KindFromFilename(name string) (Kind, bool) {
	switch strings.ToLower(path.Ext(name)) {
	case ".csv":
		return KindCSV, true
	case ".xlsx":
		return KindXLSX, true
	case ".qif":
		return KindQIF, true
	case ".ofx", ".qfx":
		return KindOFX, true
	case ".pdf":
		return KindPDF, true
	}
	return "", false
}

// gcsObject closes the storage client together with the object reader.
type gcsObject struct {
	*storage.Reader
	client *storage.Client
}

func (o *gcsObject) Close() error {
	err := o.Reader.Close()
	if cerr := o.client.Close(); err == nil {
		err = cerr
	}
	return err
}

// OpenGCS opens a gs:// object for reading using Application Default
// Credentials.
func OpenGCS(ctx context.Context, uri string) (io.ReadCloser, error) {
	bucket, object, err := ParseGCSURI(uri)
	if err != nil {
		return nil, fmt.Errorf("OpenGCS: %w", err)
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("OpenGCS: creating storage client: %w", err)
	}
	rc, err := client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("OpenGCS: reading object %s/%s: %w", bucket, object, err)
	}
	return &gcsObject{Reader: rc, client: client}, nil
}

// UploadGCS writes r to a gs:// object.
func UploadGCS(ctx context.Context, uri string, r io.Reader) error {
	bucket, object, err := ParseGCSURI(uri)
	if err != nil {
		return fmt.Errorf("UploadGCS: %w", err)
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("UploadGCS: creating storage client: %w", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := client.Bucket(bucket).Object(object).NewWriter(ctx)
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return fmt.Errorf("UploadGCS: copy to GCS writer: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("UploadGCS: finalize upload: %w", err)
	}
	return nil
}
