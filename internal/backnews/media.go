package backnews

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"path/filepath"
	"strings"
)

// UploadImage sends one image as multipart field "image". The body is buffered
// so a 429 retry can resend it.
func (c *Client) UploadImage(ctx context.Context, filename, contentType string, r io.Reader) (FileUpload, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename="%s"`, quoteFilename(filename)))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header.Set("Content-Type", contentType)

	part, err := writer.CreatePart(header)
	if err != nil {
		return FileUpload{}, fmt.Errorf("backnews: build upload: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return FileUpload{}, fmt.Errorf("backnews: read upload: %w", err)
	}
	if err := writer.Close(); err != nil {
		return FileUpload{}, fmt.Errorf("backnews: build upload: %w", err)
	}

	body, err := c.do(ctx, request{
		method:      http.MethodPost,
		path:        "/upload/image",
		rawBody:     buf.Bytes(),
		contentType: writer.FormDataContentType(),
	})
	if err != nil {
		return FileUpload{}, err
	}
	var out FileUpload
	if err := decodeData(body, &out); err != nil {
		return FileUpload{}, err
	}
	if strings.TrimSpace(out.URL) == "" {
		return FileUpload{}, newDecodeError(fmt.Errorf("upload response without url"))
	}
	return out, nil
}

func (c *Client) DeleteFile(ctx context.Context, filename string) error {
	return c.send(ctx, http.MethodDelete, "/upload/delete/"+escape(filename), nil, nil)
}

func quoteFilename(name string) string {
	name = filepath.Base(strings.TrimSpace(name))
	if name == "." || name == "/" || name == "" {
		name = "upload"
	}
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(name)
}
