package diagnosis

import (
	"bytes"

	"github.com/google/uuid"
)

// Form field and file metadata of the single image part
const (
	FieldName   = "image"
	FileName    = "image.jpg"
	ContentType = "image/jpeg"
)

// NewBoundary returns a fresh multipart delimiter
func NewBoundary() string {
	return "Boundary-" + uuid.NewString()
}

// FormDataContentType returns the request Content-Type for the boundary
func FormDataContentType(boundary string) string {
	return "multipart/form-data; boundary=" + boundary
}

// BuildMultipartBody wraps the JPEG bytes in a single-part form-data payload.
// Collision of the boundary with the image bytes is not checked.
func BuildMultipartBody(imageBytes []byte, boundary string) []byte {
	var buf bytes.Buffer
	buf.Grow(len(imageBytes) + 2*len(boundary) + 160)

	buf.WriteString("--" + boundary + "\r\n")
	buf.WriteString(`Content-Disposition: form-data; name="` + FieldName + `"; filename="` + FileName + "\"\r\n")
	buf.WriteString("Content-Type: " + ContentType + "\r\n\r\n")
	buf.Write(imageBytes)
	buf.WriteString("\r\n")
	buf.WriteString("--" + boundary + "--\r\n")

	return buf.Bytes()
}
