// Package server exposes a pool of detectors over HTTP.
//
// Routes:
//
//	POST /v1/detect       image as raw body, multipart "file" or JSON base64
//	POST /v1/orientation  {"pitch": deg, "roll": deg} device orientation
//	GET  /v1/config       current runtime configuration
//	PUT  /v1/config       replace runtime configuration
//	POST /v1/reset        clear distance history
//	GET  /healthz         liveness
package server

import (
	"sync"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/swdee/go-segdist/distance"
	"github.com/swdee/go-segdist/pipeline"
)

// maxUploadSize limits the size of images accepted
const maxUploadSize = 20 << 20

// Server holds the state shared by the HTTP handlers
type Server struct {
	pool   *pipeline.Pool
	angles *distance.AngleFeed
	log    logrus.FieldLogger
	router *mux.Router

	// cfgMu guards cfg, the configuration last applied to every detector
	cfgMu sync.Mutex
	cfg   pipeline.Config
}

// New returns a Server for the detector pool.  angles must be the same feed
// the pool's detectors were created with.
func New(pool *pipeline.Pool, angles *distance.AngleFeed, cfg pipeline.Config,
	log logrus.FieldLogger) *Server {

	if log == nil {
		log = logrus.StandardLogger()
	}

	s := &Server{
		pool:   pool,
		angles: angles,
		log:    log,
		cfg:    cfg,
	}

	r := mux.NewRouter()
	r.HandleFunc("/v1/detect", s.handleDetect).Methods("POST")
	r.HandleFunc("/v1/orientation", s.handleOrientation).Methods("POST")
	r.HandleFunc("/v1/config", s.handleGetConfig).Methods("GET")
	r.HandleFunc("/v1/config", s.handlePutConfig).Methods("PUT")
	r.HandleFunc("/v1/reset", s.handleReset).Methods("POST")
	r.HandleFunc("/healthz", s.handleHealth).Methods("GET")
	r.Use(s.logRequests)

	s.router = r

	return s
}

// Router returns the HTTP handler
func (s *Server) Router() *mux.Router {
	return s.router
}
