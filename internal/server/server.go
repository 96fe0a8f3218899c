// Package server exposes pending bisection verdicts over a small HTTP API,
// so that a bisection running on a headless machine can be driven remotely.
package server

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/kraktus/cargo-bisect-rustc/pkg/bisect"
)

// A Server publishes toolchains awaiting a verdict and accepts verdicts for
// them. It implements bisect.Decider.
type Server struct {
	port int
	log  *logrus.Logger

	pending chan pendingVerdict

	mu       sync.Mutex
	verdicts map[string]chan bisect.Outcome
	report   string
}

// pendingVerdict couples a published toolchain with the channel its verdict
// is delivered on.
type pendingVerdict struct {
	payload pendingToolchainResponse
	result  chan bisect.Outcome
}

// New creates a verdict server listening on the given port once started.
func New(port int, log *logrus.Logger) *Server {
	return &Server{
		port:     port,
		log:      log,
		pending:  make(chan pendingVerdict),
		verdicts: make(map[string]chan bisect.Outcome),
	}
}
