package gemini

// ImageInput is a base64-encoded image payload plus its MIME type.
// DataBase64 may carry a data-URL prefix; it is stripped on the wire.
type ImageInput struct {
	DataBase64 string
	MimeType   string
}
