package api

import (
	"fmt"
	"net/http"
	"path"
	"time"

	"github.com/chatlink-app/chatlink/internal/storage"
)

// maxUploadSize bounds multipart uploads (32 MB).
const maxUploadSize = 32 << 20

type UploadResponse struct {
	Url         string `json:"url"`
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
}

func (s *ChatLinkApp) uploadAvatar(w http.ResponseWriter, r *http.Request) {
	s.upload(w, r, storage.BucketAvatars)
}

func (s *ChatLinkApp) uploadAttachment(w http.ResponseWriter, r *http.Request) {
	s.upload(w, r, storage.BucketAttachments)
}

func (s *ChatLinkApp) upload(w http.ResponseWriter, r *http.Request, bucket string) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if s.store == nil {
		errResp := &ApiError{
			StatusCode: http.StatusServiceUnavailable,
			Message:    "uploads are not enabled",
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		errResp := NewValidationError("upload too large or malformed")
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	// scope objects per user so names cannot collide across accounts
	objectName := fmt.Sprintf("%d/%d-%s", userId, time.Now().UnixNano(), path.Base(header.Filename))

	url, err := s.store.Upload(r.Context(), bucket, objectName, file, header.Size, contentType)
	if err != nil {
		s.log.Println("upload object:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusCreated, UploadResponse{
		Url:         url,
		Name:        header.Filename,
		ContentType: contentType,
	})
}
