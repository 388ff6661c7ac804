// Package api exposes the poll controller over HTTP. Administrative
// endpoints authenticate with a bearer token resolved through the member
// directory; voting endpoints are anonymous.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/garagevoting/garage-node/access"
	"github.com/garagevoting/garage-node/log"
	"github.com/garagevoting/garage-node/poll"
)

const (
	maxRequestBodyLog = 512 // Maximum length of request body to log
)

// VerifierLoader builds a verifier from serialized verifying keys.
type VerifierLoader func(keys []VerifyingKey) (poll.Verifier, error)

// APIConfig type represents the configuration for the API HTTP server.
type APIConfig struct {
	Host       string
	Port       int
	Controller *poll.Controller
	// Directory resolves bearer tokens. Without it every request is
	// anonymous.
	Directory access.Directory
	// VerifierLoader enables PUT /config/verifier.
	VerifierLoader VerifierLoader
	// Gatherer enables GET /metrics.
	Gatherer prometheus.Gatherer
}

// API type represents the API HTTP server.
type API struct {
	router     *chi.Mux
	server     *http.Server
	addr       net.Addr
	controller *poll.Controller
	directory  access.Directory
	loader     VerifierLoader
	gatherer   prometheus.Gatherer
}

// New creates a new API instance with the given configuration and starts
// the HTTP server.
func New(conf *APIConfig) (*API, error) {
	a, err := newAPI(conf)
	if err != nil {
		return nil, err
	}
	addr := net.JoinHostPort(conf.Host, fmt.Sprint(conf.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	a.addr = ln.Addr()
	a.server = &http.Server{
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Infow("starting API server", "address", a.Addr())
		if err := a.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorw(err, "API server stopped")
		}
	}()
	return a, nil
}

func newAPI(conf *APIConfig) (*API, error) {
	if conf == nil {
		return nil, fmt.Errorf("missing API configuration")
	}
	if conf.Controller == nil {
		return nil, fmt.Errorf("missing poll controller")
	}
	a := &API{
		controller: conf.Controller,
		directory:  conf.Directory,
		loader:     conf.VerifierLoader,
		gatherer:   conf.Gatherer,
	}
	a.initRouter()
	return a, nil
}

// Router returns the chi router for testing purposes
func (a *API) Router() *chi.Mux {
	return a.router
}

// Addr returns the address the server listens on, useful when the
// configured port is 0.
func (a *API) Addr() string {
	if a.addr == nil {
		return ""
	}
	return a.addr.String()
}

// Shutdown gracefully stops the HTTP server.
func (a *API) Shutdown(ctx context.Context) error {
	if a.server == nil {
		return nil
	}
	return a.server.Shutdown(ctx)
}

// registerHandlers registers all the HTTP handlers for the API endpoints.
func (a *API) registerHandlers() {
	log.Infow("register handler", "endpoint", PingEndpoint, "method", "GET")
	a.router.Get(PingEndpoint, func(w http.ResponseWriter, r *http.Request) {
		httpWriteOK(w)
	})
	log.Infow("register handler", "endpoint", InfoEndpoint, "method", "GET")
	a.router.Get(InfoEndpoint, a.info)
	if a.gatherer != nil {
		log.Infow("register handler", "endpoint", MetricsEndpoint, "method", "GET")
		a.router.Handle(MetricsEndpoint, promhttp.HandlerFor(a.gatherer, promhttp.HandlerOpts{}))
	}

	// configuration endpoints
	log.Infow("register handler", "endpoint", ConfigDepthEndpoint, "method", "PUT")
	a.router.Put(ConfigDepthEndpoint, a.setMerkleTreeDepth)
	log.Infow("register handler", "endpoint", ConfigVerifierEndpoint, "method", "PUT")
	a.router.Put(ConfigVerifierEndpoint, a.setVerifier)
	log.Infow("register handler", "endpoint", ConfigImplementationEndpoint, "method", "PUT")
	a.router.Put(ConfigImplementationEndpoint, a.setPollImplementation)
	log.Infow("register handler", "endpoint", ConfigCipherEndpoint, "method", "GET")
	a.router.Get(ConfigCipherEndpoint, a.cipherKey)

	// poll endpoints
	log.Infow("register handler", "endpoint", PollsEndpoint, "method", "GET")
	a.router.Get(PollsEndpoint, a.pollsAmount)
	log.Infow("register handler", "endpoint", PollsEndpoint, "method", "POST")
	a.router.Post(PollsEndpoint, a.createPoll)
	log.Infow("register handler", "endpoint", PollEndpoint, "method", "GET")
	a.router.Get(PollEndpoint, a.poll)
	log.Infow("register handler", "endpoint", PollMembersEndpoint, "method", "GET")
	a.router.Get(PollMembersEndpoint, a.members)
	log.Infow("register handler", "endpoint", PollMembersEndpoint, "method", "POST")
	a.router.Post(PollMembersEndpoint, a.addVoters)

	// vote endpoints
	log.Infow("register handler", "endpoint", PollVotesEndpoint, "method", "GET", "parameters", PollVoteRecordsParam)
	a.router.Get(PollVotesEndpoint, a.encryptedVotes)
	log.Infow("register handler", "endpoint", PollVotesEndpoint, "method", "POST")
	a.router.Post(PollVotesEndpoint, a.castVote)
	log.Infow("register handler", "endpoint", PollRevealsEndpoint, "method", "POST")
	a.router.Post(PollRevealsEndpoint, a.revealVote)
	log.Infow("register handler", "endpoint", PollResultsEndpoint, "method", "GET")
	a.router.Get(PollResultsEndpoint, a.results)
}

// initRouter creates the router with all the routes and middleware.
func (a *API) initRouter() {
	a.router = chi.NewRouter()
	a.router.Use(cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler)
	a.router.Use(requestIDMiddleware)
	a.router.Use(loggingMiddleware(maxRequestBodyLog))
	a.router.Use(middleware.Recoverer)
	a.router.Use(middleware.Throttle(100))
	a.router.Use(middleware.ThrottleBacklog(5000, 40000, 60*time.Second))
	a.router.Use(middleware.Timeout(45 * time.Second))
	a.router.Use(authMiddleware(a.directory))
	a.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		ErrResourceNotFound.With(r.URL.Path).Write(w)
	})

	a.registerHandlers()
}
