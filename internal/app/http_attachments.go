package app

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"taskboard/api/internal/files"
)

func (s *HTTPServer) handleUploadAttachment(w http.ResponseWriter, r *http.Request, session Session) {
	r.Body = http.MaxBytesReader(w, r.Body, files.MaxAttachmentSize+4096)
	if err := r.ParseMultipartForm(files.MaxAttachmentSize); err != nil {
		writeFailure(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "attachment exceeds 10 MiB", nil)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeFailure(w, http.StatusBadRequest, "VALIDATION_FAILED", "invalid attachment",
			[]FieldError{{Field: "file", Message: "is required"}})
		return
	}
	defer file.Close()

	attachment, err := s.service.UploadAttachment(r.Context(), session, mux.Vars(r)["id"], UploadAttachmentInput{
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Reader:      file,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusCreated, attachment)
}

func (s *HTTPServer) handleDownloadAttachment(w http.ResponseWriter, r *http.Request, session Session) {
	attachment, reader, err := s.service.OpenAttachment(r.Context(), session, mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	defer reader.Close()

	contentType := attachment.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.FormatInt(attachment.SizeBytes, 10))
	w.Header().Set("Content-Disposition", `attachment; filename="`+attachment.FileName+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, reader)
}

func (s *HTTPServer) handleDeleteAttachment(w http.ResponseWriter, r *http.Request, session Session) {
	if err := s.service.DeleteAttachment(r.Context(), session, mux.Vars(r)["id"]); err != nil {
		s.fail(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "attachment deleted")
}
