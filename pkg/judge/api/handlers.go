package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/oimasterkafuu/judge-server/pkg/judge/cache"
	"github.com/oimasterkafuu/judge-server/pkg/judge/pipeline"
	"github.com/oimasterkafuu/judge-server/pkg/judge/scheduler"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}

var uploadTypes = map[string]cache.Type{
	"source":  cache.TypeSource,
	"binary":  cache.TypeBinary,
	"input":   cache.TypeInput,
	"output":  cache.TypeOutput,
	"checker": cache.TypeChecker,
}

// handleUpload stores a multipart-uploaded file's bytes under the
// requested artifact type, defaulting to "source" per spec.md §6.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart upload: "+err.Error())
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	typeName := r.FormValue("type")
	if typeName == "" {
		typeName = "source"
	}
	artifactType, ok := uploadTypes[typeName]
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid artifact type: "+typeName)
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read upload: "+err.Error())
		return
	}

	id, err := s.Cache.Put(artifactType, data, cache.Metadata{Filename: header.Filename, Size: int64(len(data))})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to store upload: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"cacheId":   id,
		"fileName":  header.Filename,
		"type":      typeName,
		"size":      len(data),
		"expiresIn": 300,
	})
}

// submitRequest is the shared envelope for compile/judge/run/interactive
// submission: a task-type-specific body plus an optional priority.
type submitRequest struct {
	Priority int `json:"priority,omitempty"`
}

func (s *Server) handleCompile(w http.ResponseWriter, r *http.Request) {
	var in pipeline.CompileInput
	var pr submitRequest
	if !decodeBoth(w, r, &in, &pr) {
		return
	}
	if in.SourceCacheID == "" {
		writeError(w, http.StatusBadRequest, "sourceCacheId is required")
		return
	}
	if !s.Cache.Has(in.SourceCacheID) {
		writeError(w, http.StatusBadRequest, "source handle missing or expired")
		return
	}
	s.submitTask(w, "compile", in, pr.Priority)
}

func (s *Server) handleCompileChecker(w http.ResponseWriter, r *http.Request) {
	var in pipeline.CompileCheckerInput
	var pr submitRequest
	if !decodeBoth(w, r, &in, &pr) {
		return
	}
	if in.SourceCacheID == "" {
		writeError(w, http.StatusBadRequest, "sourceCacheId is required")
		return
	}
	if !s.Cache.Has(in.SourceCacheID) {
		writeError(w, http.StatusBadRequest, "source handle missing or expired")
		return
	}
	s.submitTask(w, "compile-checker", in, pr.Priority)
}

func (s *Server) handleJudge(w http.ResponseWriter, r *http.Request) {
	var in pipeline.JudgeInput
	var pr submitRequest
	if !decodeBoth(w, r, &in, &pr) {
		return
	}
	for _, handle := range []string{in.BinaryCacheID, in.InputCacheID, in.OutputCacheID} {
		if handle == "" || !s.Cache.Has(handle) {
			writeError(w, http.StatusBadRequest, "a required handle is missing or expired")
			return
		}
	}
	if in.CheckerName == "" {
		writeError(w, http.StatusBadRequest, "checkerName is required")
		return
	}
	s.submitTask(w, "judge", in, pr.Priority)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var in pipeline.RunInput
	var pr submitRequest
	if !decodeBoth(w, r, &in, &pr) {
		return
	}
	if in.BinaryCacheID == "" || !s.Cache.Has(in.BinaryCacheID) {
		writeError(w, http.StatusBadRequest, "binaryCacheId missing or expired")
		return
	}
	s.submitTask(w, "run", in, pr.Priority)
}

func (s *Server) handleInteractive(w http.ResponseWriter, r *http.Request) {
	var in pipeline.InteractiveInput
	var pr submitRequest
	if !decodeBoth(w, r, &in, &pr) {
		return
	}
	for _, handle := range []string{in.UserBinaryCacheID, in.InteractorBinaryCacheID} {
		if handle == "" || !s.Cache.Has(handle) {
			writeError(w, http.StatusBadRequest, "a required binary handle is missing or expired")
			return
		}
	}
	s.submitTask(w, "interactive", in, pr.Priority)
}

// submitTask enqueues data under taskType and responds with the
// pending task envelope from spec.md §6.
func (s *Server) submitTask(w http.ResponseWriter, taskType string, data interface{}, priority int) {
	id := s.Scheduler.AddTask(taskType, data, priority)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"taskId": id,
		"status": string(scheduler.StatusPending),
	})
}

// decodeBoth reads the request body once into both the task-specific
// struct and the shared submitRequest envelope (for "priority"), since
// the wire body is a single flat JSON object carrying both.
func decodeBoth(w http.ResponseWriter, r *http.Request, in interface{}, pr *submitRequest) bool {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body: "+err.Error())
		return false
	}
	if err := json.Unmarshal(body, in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	if err := json.Unmarshal(body, pr); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	task := s.Scheduler.GetTask(id)
	if task == nil {
		writeError(w, http.StatusNotFound, "unknown task id")
		return
	}

	body := map[string]interface{}{
		"id":          task.ID,
		"type":        task.Type,
		"priority":    task.Priority,
		"status":      string(task.Status),
		"createdAt":   task.CreatedAt,
		"startedAt":   task.StartedAt,
		"completedAt": task.CompletedAt,
	}
	if task.Result != nil {
		body["result"] = task.Result
	}
	if task.Error != nil {
		body["error"] = task.Error.Error()
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleGetCache(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	file, entry, err := s.Cache.Open(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "artifact missing or expired")
		return
	}
	defer file.Close()

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", entry.Metadata.Filename))
	w.Header().Set("Content-Type", "application/octet-stream")
	io.Copy(w, file)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"queue":  s.Scheduler.Status(),
		"cache":  s.Cache.Stats(),
		"uptime": time.Since(s.startedAt).Seconds(),
	})
}
