package api

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"
	"github.com/probeflow/probeflow/internal/core"
)

// maxUploadSize bounds environment file asset uploads.
const maxUploadSize = 32 << 20 // 32 MiB

func (a *API) handleListEnvironments(w http.ResponseWriter, r *http.Request) {
	envs, err := a.envs.List(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	masked := lo.Map(envs, func(e *core.Environment, _ int) *core.Environment {
		return e.Masked()
	})
	a.respondJSON(w, http.StatusOK, map[string]any{"environments": masked})
}

func (a *API) handleCreateEnvironment(w http.ResponseWriter, r *http.Request) {
	var env core.Environment
	if err := decodeJSON(r, &env); err != nil {
		a.writeError(w, r, err)
		return
	}
	if err := a.envs.Create(r.Context(), &env); err != nil {
		a.writeError(w, r, err)
		return
	}
	a.respondJSON(w, http.StatusCreated, map[string]string{"name": env.Name})
}

func (a *API) handleGetEnvironment(w http.ResponseWriter, r *http.Request) {
	env, err := a.envs.Get(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.respondJSON(w, http.StatusOK, env.Masked())
}

func (a *API) handleUpdateEnvironment(w http.ResponseWriter, r *http.Request) {
	var env core.Environment
	if err := decodeJSON(r, &env); err != nil {
		a.writeError(w, r, err)
		return
	}
	name := chi.URLParam(r, "name")
	if env.Name == "" {
		env.Name = name
	} else if env.Name != name {
		a.writeError(w, r, errBadRequest("environment name does not match URL"))
		return
	}
	if err := a.envs.Update(r.Context(), &env); err != nil {
		a.writeError(w, r, err)
		return
	}
	a.respondJSON(w, http.StatusOK, env.Masked())
}

func (a *API) handleDeleteEnvironment(w http.ResponseWriter, r *http.Request) {
	if err := a.envs.Delete(r.Context(), chi.URLParam(r, "name")); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleUploadEnvironmentFile stores one multipart file asset on the
// environment. The "file" part carries the content; "fileKey" names the
// ${FILE:key} placeholder that resolves to it.
func (a *API) handleUploadEnvironmentFile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		a.writeError(w, r, errBadRequest("invalid multipart form: "+err.Error()))
		return
	}

	fileKey := r.FormValue("fileKey")
	if fileKey == "" {
		a.writeError(w, r, errBadRequest("fileKey is required"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		a.writeError(w, r, errBadRequest("file part is required"))
		return
	}
	defer func() { _ = file.Close() }()

	content, err := io.ReadAll(file)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	asset := core.FileAsset{
		FileKey:     fileKey,
		FileName:    header.Filename,
		ContentType: contentType,
		Content:     content,
	}
	if err := a.envs.SaveFile(r.Context(), chi.URLParam(r, "name"), asset); err != nil {
		a.writeError(w, r, err)
		return
	}

	a.respondJSON(w, http.StatusCreated, map[string]string{
		"fileKey":     asset.FileKey,
		"fileName":    asset.FileName,
		"contentType": asset.ContentType,
	})
}
