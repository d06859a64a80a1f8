package mocks

import (
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
)

// readUpload decodes a metadata-only or multipart/related media request.
// The first part is JSON metadata and the second the media body.
func readUpload(r *http.Request, meta interface{}) []byte {
	mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") {
		_ = json.NewDecoder(r.Body).Decode(meta)
		return nil
	}
	var body []byte
	mr := multipart.NewReader(r.Body, params["boundary"])
	for i := 0; ; i++ {
		part, err := mr.NextPart()
		if err != nil {
			break
		}
		data, _ := io.ReadAll(part)
		if i == 0 {
			_ = json.Unmarshal(data, meta)
		} else {
			body = data
		}
	}
	return body
}
