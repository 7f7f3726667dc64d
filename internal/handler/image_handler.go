/*
Package handler provides the HTTP handlers and routing setup for the pairchat server.

This file contains the image download handler. Message images live in the
object store under keys prefixed "messages/"; clients exchange the key and
fetch the payload through a short-lived presigned URL.
*/
package handler

import (
	"net/http"
	"strings"
	"time"

	"pairchat/internal/pkg/auth/jwt"
	"pairchat/internal/pkg/errs"
	"pairchat/internal/pkg/logx"
	"pairchat/internal/pkg/resp"
)

// presignedDownloadDuration is how long a generated image URL stays valid.
const presignedDownloadDuration = 10 * time.Minute

// HandleImageDownloadURL exchanges a message image key for a presigned URL.
func HandleImageDownloadURL(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)
		if identity == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		key := r.URL.Query().Get("key")
		if key == "" || !strings.HasPrefix(key, "messages/") || strings.Contains(key, "..") {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		url, err := deps.Images.PresignDownload(r.Context(), key, presignedDownloadDuration)
		if err != nil {
			logx.Error(err, "failed to presign image download", "key", key)
			resp.RespondError(w, r, errs.NewError(errs.ErrImageStorageFailed))
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"url":       url,
			"expiresIn": int(presignedDownloadDuration.Seconds()),
		})
	}
}
