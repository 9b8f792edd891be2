package server

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"mime"
	"net/http"
	"time"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"
	"github.com/swdee/go-segdist"
	"github.com/swdee/go-segdist/pipeline"
)

func (s *Server) handleDetect(w http.ResponseWriter, r *http.Request) {

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)

	imgBytes, err := readImage(r)

	if err != nil {
		sendError(w, "invalid_request", err.Error(), http.StatusBadRequest)
		return
	}

	img, err := imaging.Decode(bytes.NewReader(imgBytes), imaging.AutoOrientation(true))

	if err != nil {
		sendError(w, "invalid_image", "failed to decode image", http.StatusBadRequest)
		return
	}

	det, err := s.pool.Get(r.Context())

	if err != nil {
		sendError(w, "busy", err.Error(), http.StatusServiceUnavailable)
		return
	}

	res := det.ProcessImage(img)
	s.pool.Return(det)

	if res.Status == pipeline.StatusError {
		code := "processing_error"

		if segdist.IsConfigError(res.Err) {
			code = "configuration_error"
		}

		sendError(w, code, res.Err.Error(), http.StatusInternalServerError)
		return
	}

	sendJSON(w, http.StatusOK, toDetectResponse(res))
}

// readImage returns the image bytes from a raw, multipart or JSON body
func readImage(r *http.Request) ([]byte, error) {

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	switch mediaType {
	case "application/json":
		var req struct {
			Image string `json:"image"`
		}

		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return nil, err
		}

		return base64.StdEncoding.DecodeString(req.Image)

	case "multipart/form-data":
		if err := r.ParseMultipartForm(maxUploadSize); err != nil {
			return nil, err
		}

		file, _, err := r.FormFile("file")

		if err != nil {
			return nil, err
		}

		defer file.Close()

		return io.ReadAll(file)
	}

	data, err := io.ReadAll(r.Body)

	if err == nil && len(data) == 0 {
		return nil, errors.New("empty request body")
	}

	return data, err
}

func (s *Server) handleOrientation(w http.ResponseWriter, r *http.Request) {

	var req OrientationRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, "invalid_request", err.Error(), http.StatusBadRequest)
		return
	}

	if req.Pitch == nil || req.Roll == nil {
		sendError(w, "invalid_request", "pitch and roll are required", http.StatusBadRequest)
		return
	}

	resp := OrientationResponse{
		Accepted: s.angles.Update(*req.Pitch, *req.Roll),
	}

	if rad, ok := s.angles.Current(); ok {
		deg := rad * 180 / math.Pi
		resp.ZenithDeg = &deg
	}

	sendJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetConfig(w http.ResponseWriter, _ *http.Request) {
	s.cfgMu.Lock()
	cfg := s.cfg
	s.cfgMu.Unlock()

	sendJSON(w, http.StatusOK, cfg)
}

func (s *Server) handlePutConfig(w http.ResponseWriter, r *http.Request) {

	s.cfgMu.Lock()
	defer s.cfgMu.Unlock()

	// absent fields keep their current value
	cfg := s.cfg

	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		sendError(w, "invalid_request", err.Error(), http.StatusBadRequest)
		return
	}

	if err := cfg.Validate(); err != nil {
		sendError(w, "invalid_config", err.Error(), http.StatusUnprocessableEntity)
		return
	}

	err := s.pool.Each(func(d *pipeline.Detector) error {
		return d.SetConfig(cfg)
	})

	if err != nil {
		sendError(w, "config_error", err.Error(), http.StatusInternalServerError)
		return
	}

	s.cfg = cfg
	s.log.WithField("config", fmt.Sprintf("%+v", cfg)).Info("configuration updated")

	sendJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleReset(w http.ResponseWriter, _ *http.Request) {

	err := s.pool.Each(func(d *pipeline.Detector) error {
		d.ClearHistory()
		return nil
	})

	if err != nil {
		sendError(w, "reset_error", err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	sendJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"pool_size": s.pool.Size(),
	})
}

// logRequests logs every request at debug level
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)

		s.log.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"duration": time.Since(start),
		}).Debug("request")
	})
}

func sendJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func sendError(w http.ResponseWriter, code, message string, status int) {
	sendJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}
