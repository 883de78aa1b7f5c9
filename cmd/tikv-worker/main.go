// Command tikv-worker runs the priority-tiered read worker as a daemon
// with an HTTP surface: point gets and coprocessor requests go through the
// scheduler, pool statistics and prometheus metrics are exposed for
// operators, and streaming coprocessor responses are pushed frame by
// frame over a websocket.
package main

import (
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/breeswish/tikv/pkg/config"
	"github.com/breeswish/tikv/pkg/coprocessor"
	"github.com/breeswish/tikv/pkg/keys"
	"github.com/breeswish/tikv/pkg/logging"
	"github.com/breeswish/tikv/pkg/readpool"
	"github.com/breeswish/tikv/pkg/storage"
	"github.com/breeswish/tikv/pkg/worker"
)

var (
	configPath = flag.String("config", "", "Path to the JSON configuration file")
	listenAddr = flag.String("addr", "", "Listen address override")
)

// requestTimeout bounds how long an HTTP handler waits for a callback.
const requestTimeout = 30 * time.Second

type server struct {
	config     *config.Config
	engine     *storage.MemEngine
	reqWorker  *worker.GrpcRequestWorker
	logger     *logging.Logger
	wsUpgrader websocket.Upgrader
}

type apiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func main() {
	flag.Parse()

	cfg := config.DefaultConfig()
	if *configPath != "" {
		loaded, err := config.LoadConfig(*configPath)
		if err != nil {
			logging.GetGlobalLogger().Errorf("loading configuration: %v", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if *listenAddr != "" {
		cfg.Server.ListenAddr = *listenAddr
	}

	logging.InitGlobalLogger(&logging.Config{
		Level:  logging.ParseLevel(cfg.Logging.Level),
		Format: logging.ParseFormat(cfg.Logging.Format),
	})
	logger := logging.GetGlobalLogger().WithComponent("tikv-worker")

	engine := storage.NewMemEngine()
	reqWorker := worker.New(worker.Config{
		ReadCriticalConcurrency: cfg.Worker.ReadCriticalConcurrency,
		ReadHighConcurrency:     cfg.Worker.ReadHighConcurrency,
		ReadNormalConcurrency:   cfg.Worker.ReadNormalConcurrency,
		ReadLowConcurrency:      cfg.Worker.ReadLowConcurrency,
		MaxReadTasks:            cfg.Worker.MaxReadTasks,
		StackSize:               cfg.Worker.StackSize,
		SchedulerQueueSize:      cfg.Worker.SchedulerQueueSize,
		BatchRowLimit:           cfg.Coprocessor.EndPointBatchRowLimit,
		ChunksPerStream:         cfg.Coprocessor.ChunksPerStream,
		RecursionLimit:          cfg.Coprocessor.EndPointRecursionLimit,
	}, engine, logging.GetGlobalLogger())
	if err := reqWorker.Start(); err != nil {
		logger.Errorf("starting request worker: %v", err)
		os.Exit(1)
	}

	if *configPath != "" {
		watcher, err := config.Watch(*configPath, logging.GetGlobalLogger(), func(updated *config.Config) {
			reqWorker.SetMaxReadTasks(updated.Worker.MaxReadTasks)
		})
		if err != nil {
			logger.Warnf("config watcher unavailable: %v", err)
		} else {
			defer watcher.Close()
		}
	}

	s := &server{
		config:    cfg,
		engine:    engine,
		reqWorker: reqWorker,
		logger:    logger,
		wsUpgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	router := mux.NewRouter()
	router.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/kv/put", s.handleKvPut).Methods(http.MethodPost)
	router.HandleFunc("/kv/get", s.handleKvGet).Methods(http.MethodPost)
	router.HandleFunc("/cop", s.handleCop).Methods(http.MethodPost)
	router.HandleFunc("/cop/stream", s.handleCopStream).Methods(http.MethodGet)

	httpServer := &http.Server{Addr: cfg.Server.ListenAddr, Handler: router}
	go func() {
		logger.Info("listening", map[string]interface{}{"addr": cfg.Server.ListenAddr})
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("http server: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down")
	_ = httpServer.Close()
	reqWorker.Shutdown()
}

func writeJSON(w http.ResponseWriter, status int, body apiResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeErr(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, apiResponse{Error: err.Error()})
}

type statusPayload struct {
	MaxReadTasks int                      `json:"max_read_tasks"`
	StackSize    int                      `json:"stack_size"`
	Pools        map[string]int           `json:"pool_concurrency"`
	Coprocessor  config.CoprocessorConfig `json:"coprocessor"`
}

func (s *server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, apiResponse{Success: true, Data: statusPayload{
		MaxReadTasks: s.reqWorker.MaxReadTasks(),
		StackSize:    s.config.Worker.StackSize,
		Pools: map[string]int{
			readpool.ReadCritical.String(): s.config.Worker.ReadCriticalConcurrency,
			readpool.ReadHigh.String():     s.config.Worker.ReadHighConcurrency,
			readpool.ReadNormal.String():   s.config.Worker.ReadNormalConcurrency,
			readpool.ReadLow.String():      s.config.Worker.ReadLowConcurrency,
		},
		Coprocessor: s.config.Coprocessor,
	}})
}

type kvPutRequest struct {
	Key      []byte `json:"key"`
	Value    []byte `json:"value"`
	CommitTS uint64 `json:"commit_ts"`
}

// handleKvPut seeds data directly into the engine. Transactional writes
// are coordinated elsewhere; this endpoint exists for fixtures and demos.
func (s *server) handleKvPut(w http.ResponseWriter, r *http.Request) {
	var req kvPutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	pk := keys.Basic.AllocFromUser(req.Key)
	pk.AppendTs(req.CommitTS)
	if err := s.engine.Write([]storage.Modify{{
		CF: storage.CFDefault, Key: pk.IntoPhysicalBytes(), Value: req.Value,
	}}); err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{Success: true})
}

type kvGetRequest struct {
	Key      []byte            `json:"key"`
	StartTS  uint64            `json:"start_ts"`
	Priority worker.CommandPri `json:"priority"`
}

type kvGetResponse struct {
	Found bool   `json:"found"`
	Value []byte `json:"value,omitempty"`
}

func (s *server) handleKvGet(w http.ResponseWriter, r *http.Request) {
	var req kvGetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}

	type outcome struct {
		value worker.Value
		err   error
	}
	done := make(chan outcome, 1)
	s.reqWorker.AsyncExecute(
		&worker.KvGetSubTask{Key: req.Key, StartTS: req.StartTS},
		worker.MapCommandPriority(req.Priority),
		func(v worker.Value, err error) { done <- outcome{v, err} },
	)

	select {
	case res := <-done:
		if res.err != nil {
			writeErr(w, http.StatusServiceUnavailable, res.err)
			return
		}
		sv := res.value.(worker.StorageValue)
		writeJSON(w, http.StatusOK, apiResponse{Success: true, Data: kvGetResponse{
			Found: sv.Found, Value: sv.Data,
		}})
	case <-time.After(requestTimeout):
		writeJSON(w, http.StatusGatewayTimeout, apiResponse{Error: "request timed out"})
	}
}

type copRequest struct {
	Request    *coprocessor.DAGRequest `json:"request"`
	Ranges     []*coprocessor.KeyRange `json:"ranges"`
	Priority   worker.CommandPri       `json:"priority"`
	Streaming  bool                    `json:"streaming"`
	DeadlineMS int64                   `json:"deadline_ms"`
}

func (s *server) reqContext(req *copRequest) *coprocessor.ReqContext {
	reqCtx := &coprocessor.ReqContext{FillCache: true, StreamingReply: req.Streaming}
	if req.DeadlineMS > 0 {
		reqCtx.Deadline = time.Now().Add(time.Duration(req.DeadlineMS) * time.Millisecond)
	}
	return reqCtx
}

func (s *server) runCop(req *copRequest) ([]*coprocessor.Response, error) {
	type outcome struct {
		value worker.Value
		err   error
	}
	done := make(chan outcome, 1)
	s.reqWorker.AsyncExecute(
		&worker.CopDAGSubTask{
			Req:       req.Request,
			Ranges:    req.Ranges,
			ReqCtx:    s.reqContext(req),
			Streaming: req.Streaming,
		},
		worker.MapCommandPriority(req.Priority),
		func(v worker.Value, err error) { done <- outcome{v, err} },
	)
	select {
	case res := <-done:
		if res.err != nil {
			return nil, res.err
		}
		return res.value.(worker.CoprocessorValue).Responses, nil
	case <-time.After(requestTimeout):
		return nil, coprocessor.ErrOutdated
	}
}

func (s *server) handleCop(w http.ResponseWriter, r *http.Request) {
	var req copRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Request == nil {
		writeJSON(w, http.StatusBadRequest, apiResponse{Error: "invalid coprocessor request"})
		return
	}
	responses, err := s.runCop(&req)
	if err != nil {
		writeErr(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{Success: true, Data: responses})
}

type streamFrame struct {
	Response *coprocessor.Response `json:"response"`
	Remain   bool                  `json:"remain"`
}

// handleCopStream upgrades to a websocket, reads one coprocessor request,
// runs it in streaming mode, and writes the response frames in order; the
// terminal frame carries remain=false.
func (s *server) handleCopStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	var req copRequest
	if err := conn.ReadJSON(&req); err != nil || req.Request == nil {
		_ = conn.WriteJSON(apiResponse{Error: "invalid coprocessor request"})
		return
	}
	req.Streaming = true

	responses, err := s.runCop(&req)
	if err != nil {
		_ = conn.WriteJSON(apiResponse{Error: err.Error()})
		return
	}
	for i, resp := range responses {
		frame := streamFrame{Response: resp, Remain: i < len(responses)-1}
		if err := conn.WriteJSON(frame); err != nil {
			s.logger.Debugf("websocket send failed: %v", err)
			return
		}
	}
}
