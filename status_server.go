package lxpulseaudio

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sort"
	"sync"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"
	"go.viam.com/utils"
	"goji.io"
	"goji.io/pat"
)

// A StatusServer serves the devices of a core and their metrics over HTTP.
type StatusServer interface {
	// Start starts listening. It does not block.
	Start(ctx context.Context) error
	// Address returns the address the server listens on once started.
	Address() string
	// Stop stops the server.
	Stop(ctx context.Context) error
}

type statusServer struct {
	core                    *Core
	port                    int
	listener                net.Listener
	httpServer              *http.Server
	started                 bool
	logger                  golog.Logger
	activeBackgroundWorkers sync.WaitGroup
}

// NewStatusServer returns a server for core that will run on the given port. Port 0 picks a free one.
func NewStatusServer(core *Core, port int, logger golog.Logger) StatusServer {
	if logger == nil {
		logger = Logger
	}
	return &statusServer{
		core:   core,
		port:   port,
		logger: logger,
	}
}

// ErrServerAlreadyStarted happens when the server has already been started.
var ErrServerAlreadyStarted = errors.New("already started")

func (ss *statusServer) Start(ctx context.Context) error {
	if ss.started {
		return ErrServerAlreadyStarted
	}
	ss.started = true

	humanAddress := fmt.Sprintf("localhost:%d", ss.port)
	listener, secure, err := utils.NewPossiblySecureTCPListenerFromFile(humanAddress, "", "")
	if err != nil {
		return err
	}
	ss.listener = listener

	mux := goji.NewMux()
	mux.HandleFunc(pat.Get("/devices"), ss.listDevices)
	mux.HandleFunc(pat.Get("/devices/:name"), ss.getDevice)
	mux.Handle(pat.Get("/metrics"), promhttp.Handler())

	httpServer, err := utils.NewPlainTextHTTP2Server(mux)
	if err != nil {
		return multierr.Combine(err, listener.Close())
	}
	httpServer.Addr = listener.Addr().String()
	ss.httpServer = httpServer

	scheme := "http"
	if secure {
		scheme = "https"
	}

	ss.activeBackgroundWorkers.Add(1)
	utils.PanicCapturingGo(func() {
		defer ss.activeBackgroundWorkers.Done()
		ss.logger.Infow("serving", "url", fmt.Sprintf("%s://%s", scheme, listener.Addr()))
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			ss.logger.Errorw("error serving", "error", err)
		}
	})
	return nil
}

func (ss *statusServer) Address() string {
	if ss.listener == nil {
		return ""
	}
	return ss.listener.Addr().String()
}

func (ss *statusServer) Stop(ctx context.Context) error {
	if ss.httpServer == nil {
		return nil
	}
	defer ss.activeBackgroundWorkers.Wait()
	return ss.httpServer.Shutdown(ctx)
}

func (ss *statusServer) infos() []Info {
	devices := ss.core.Devices()
	infos := make([]Info, 0, len(devices))
	for _, d := range devices {
		infos = append(infos, d.Info())
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Name < infos[j].Name
	})
	return infos
}

func (ss *statusServer) listDevices(w http.ResponseWriter, r *http.Request) {
	ss.writeJSON(w, ss.infos())
}

func (ss *statusServer) getDevice(w http.ResponseWriter, r *http.Request) {
	name := pat.Param(r, "name")
	for _, info := range ss.infos() {
		if info.Name == name {
			ss.writeJSON(w, info)
			return
		}
	}
	http.Error(w, fmt.Sprintf("no device named %q", name), http.StatusNotFound)
}

func (ss *statusServer) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		ss.logger.Debugw("failed to write response", "error", err)
	}
}
