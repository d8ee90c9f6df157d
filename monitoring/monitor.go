// Package monitoring turns a running robot into a web server that shows its
// components, tunables, and failures, and lets an operator adjust them.
package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"strconv"
	"strings"
	"time"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/sarchlab/magicbot/monitoring/web"
	"github.com/sarchlab/magicbot/robot"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"
)

// Monitor serves the state of a robot over HTTP.
type Monitor struct {
	robot      *robot.Robot
	gatherer   prometheus.Gatherer
	portNumber int
	assetDir   string
	logger     zerolog.Logger

	server *http.Server
}

// NewMonitor creates a new Monitor.
func NewMonitor() *Monitor {
	return &Monitor{logger: zerolog.Nop()}
}

// WithPortNumber sets the port number of the monitor. Ports below 1000 are
// not allowed and select a random port instead.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber < 1000 {
		m.logger.Warn().
			Int("port", portNumber).
			Msg("port not allowed for the monitor, using a random port")

		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// WithAssetDir serves the dashboard from dir instead of the pages built into
// the binary.
func (m *Monitor) WithAssetDir(dir string) *Monitor {
	m.assetDir = dir
	return m
}

// WithLogger sets the logger of the monitor.
func (m *Monitor) WithLogger(logger zerolog.Logger) *Monitor {
	m.logger = logger
	return m
}

// RegisterRobot sets the robot to be monitored.
func (m *Monitor) RegisterRobot(r *robot.Robot) {
	m.robot = r
}

// RegisterGatherer makes the metrics of g available at /metrics.
func (m *Monitor) RegisterGatherer(g prometheus.Gatherer) {
	m.gatherer = g
}

// Router returns the HTTP routes of the monitor.
func (m *Monitor) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/api/status", m.status).Methods(http.MethodGet)
	r.HandleFunc("/api/pause", m.pause).Methods(http.MethodPost)
	r.HandleFunc("/api/continue", m.continueTicking).Methods(http.MethodPost)
	r.HandleFunc("/api/mode/{mode}", m.setMode).Methods(http.MethodPost)
	r.HandleFunc("/api/components", m.listComponents).Methods(http.MethodGet)
	r.HandleFunc("/api/component/{name}", m.componentDetails).
		Methods(http.MethodGet)
	r.HandleFunc("/api/field/{json}", m.fieldValue).Methods(http.MethodGet)
	r.HandleFunc("/api/graph", m.graph).Methods(http.MethodGet)
	r.HandleFunc("/api/tunables", m.listTunables).Methods(http.MethodGet)
	r.HandleFunc("/api/tunable/{path:.+}", m.setTunable).Methods(http.MethodPut)
	r.HandleFunc("/api/failures", m.listFailures).Methods(http.MethodGet)
	r.HandleFunc("/api/resource", m.listResources).Methods(http.MethodGet)
	r.HandleFunc("/api/profile", m.collectProfile).Methods(http.MethodGet)

	if m.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(m.gatherer,
			promhttp.HandlerOpts{}))
	}

	r.PathPrefix("/").Handler(http.FileServer(m.assets()))

	return r
}

func (m *Monitor) assets() http.FileSystem {
	assets, err := web.Assets(m.assetDir)
	if err == nil {
		return assets
	}

	m.logger.Warn().Err(err).Msg("using the built-in dashboard")

	assets, err = web.Assets("")
	if err != nil {
		panic(err)
	}

	return assets
}

// StartServer starts serving in the background and returns the URL of the
// monitor.
func (m *Monitor) StartServer() (string, error) {
	if m.robot == nil {
		return "", errors.New("monitor has no robot registered")
	}

	if _, err := web.Assets(m.assetDir); err != nil {
		return "", err
	}

	listener, err := net.Listen("tcp", ":"+strconv.Itoa(m.portNumber))
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("http://localhost:%d",
		listener.Addr().(*net.TCPAddr).Port)

	m.server = &http.Server{
		Handler:           m.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		err := m.server.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error().Err(err).Msg("monitor stopped")
		}
	}()

	fmt.Fprintf(os.Stderr, "Monitoring robot with %s\n", url)

	return url, nil
}

// Stop shuts the server down.
func (m *Monitor) Stop(ctx context.Context) error {
	if m.server == nil {
		return nil
	}

	return m.server.Shutdown(ctx)
}

func (m *Monitor) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(v); err != nil {
		m.logger.Error().Err(err).Msg("failed to write response")
	}
}

type statusRsp struct {
	ID     string `json:"id"`
	Tick   uint64 `json:"tick"`
	Paused bool   `json:"paused"`
	Mode   string `json:"mode"`
}

func (m *Monitor) status(w http.ResponseWriter, _ *http.Request) {
	s := m.robot.Scheduler()

	m.writeJSON(w, statusRsp{
		ID:     m.robot.ID(),
		Tick:   s.TickCount(),
		Paused: s.Paused(),
		Mode:   m.robot.Mode().String(),
	})
}

func (m *Monitor) pause(w http.ResponseWriter, _ *http.Request) {
	m.robot.Scheduler().Pause()
	w.WriteHeader(http.StatusNoContent)
}

func (m *Monitor) continueTicking(w http.ResponseWriter, _ *http.Request) {
	m.robot.Scheduler().Continue()
	w.WriteHeader(http.StatusNoContent)
}

func (m *Monitor) setMode(w http.ResponseWriter, r *http.Request) {
	mode, err := robot.ParseMode(mux.Vars(r)["mode"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	m.robot.SetMode(mode)
	w.WriteHeader(http.StatusNoContent)
}

func (m *Monitor) listComponents(w http.ResponseWriter, _ *http.Request) {
	m.writeJSON(w, m.robot.Scheduler().Components())
}

func (m *Monitor) findComponentOr404(w http.ResponseWriter, name string) any {
	c, found := m.robot.Container().Get(name)
	if !found {
		http.Error(w, "Component not found", http.StatusNotFound)
		return nil
	}

	return c
}

var errUnknownField = errors.New("unknown field")

// serialize walks a component, starting at the field path entry when it is
// not empty. Components are only read between loop periods.
func (m *Monitor) serialize(component any, entry []string) ([]byte, error) {
	var (
		buf bytes.Buffer
		err error
	)

	m.robot.Inspect(func() {
		serializer := goseth.NewSerializer()
		serializer.SetRoot(component)
		serializer.SetMaxDepth(1)

		if len(entry) > 0 {
			if err = serializer.SetEntryPoint(entry); err != nil {
				err = fmt.Errorf("%w: %v", errUnknownField, err)
				return
			}
		}

		err = serializer.Serialize(&buf)
	})

	return buf.Bytes(), err
}

func (m *Monitor) writeSerialized(
	w http.ResponseWriter,
	component any,
	entry []string,
) {
	data, err := m.serialize(component, entry)

	switch {
	case errors.Is(err, errUnknownField):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case err != nil:
		m.logger.Error().Err(err).Msg("failed to serialize component")
		http.Error(w, err.Error(), http.StatusInternalServerError)
	default:
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(data)
	}
}

func (m *Monitor) componentDetails(w http.ResponseWriter, r *http.Request) {
	component := m.findComponentOr404(w, mux.Vars(r)["name"])
	if component == nil {
		return
	}

	m.writeSerialized(w, component, nil)
}

type fieldReq struct {
	CompName  string `json:"comp_name,omitempty"`
	FieldName string `json:"field_name,omitempty"`
}

func (m *Monitor) fieldValue(w http.ResponseWriter, r *http.Request) {
	req := fieldReq{}

	err := json.Unmarshal([]byte(mux.Vars(r)["json"]), &req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	component := m.findComponentOr404(w, req.CompName)
	if component == nil {
		return
	}

	m.writeSerialized(w, component, strings.Split(req.FieldName, "."))
}

type edgeRsp struct {
	From string `json:"from"`
	To   string `json:"to"`
}

func (m *Monitor) graph(w http.ResponseWriter, _ *http.Request) {
	edges := m.robot.Container().Graph()

	rsp := make([]edgeRsp, 0, len(edges))
	for _, e := range edges {
		rsp = append(rsp, edgeRsp{From: e.From, To: e.To})
	}

	m.writeJSON(w, rsp)
}

type tunableRsp struct {
	Path  string `json:"path"`
	Type  string `json:"type"`
	Value any    `json:"value"`
}

func (m *Monitor) listTunables(w http.ResponseWriter, _ *http.Request) {
	b := m.robot.Binder()
	paths := b.Paths()

	rsp := make([]tunableRsp, 0, len(paths))
	for _, p := range paths {
		t, _ := b.TypeOf(p)
		v, _ := b.Get(p)
		rsp = append(rsp, tunableRsp{Path: p, Type: t, Value: v})
	}

	m.writeJSON(w, rsp)
}

func (m *Monitor) setTunable(w http.ResponseWriter, r *http.Request) {
	b := m.robot.Binder()
	path := "/" + mux.Vars(r)["path"]

	if _, bound := b.TypeOf(path); !bound {
		http.Error(w, "Tunable not found", http.StatusNotFound)
		return
	}

	var value any
	if err := json.NewDecoder(r.Body).Decode(&value); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	b.Set(path, value)
	w.WriteHeader(http.StatusNoContent)
}

type failureRsp struct {
	Component string  `json:"component"`
	Error     string  `json:"error"`
	Time      float64 `json:"time"`
	Tick      uint64  `json:"tick"`
	Forced    bool    `json:"forced"`
}

func (m *Monitor) listFailures(w http.ResponseWriter, _ *http.Request) {
	failures := m.robot.Scheduler().Failures()

	rsp := make([]failureRsp, 0, len(failures))
	for _, f := range failures {
		entry := failureRsp{
			Component: f.Component,
			Time:      f.Time.Seconds(),
			Tick:      f.Tick,
			Forced:    f.Forced,
		}

		if f.Err != nil {
			entry.Error = f.Err.Error()
		}

		rsp = append(rsp, entry)
	}

	m.writeJSON(w, rsp)
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	cpuPercent, err := proc.CPUPercent()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	memory, err := proc.MemoryInfo()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	m.writeJSON(w, resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memory.RSS,
	})
}

// collectProfile samples the CPU for the number of seconds given by the
// "seconds" query parameter, one by default.
func (m *Monitor) collectProfile(w http.ResponseWriter, r *http.Request) {
	seconds := 1.0
	if s := r.URL.Query().Get("seconds"); s != "" {
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil || parsed <= 0 {
			http.Error(w, "invalid seconds", http.StatusBadRequest)
			return
		}

		seconds = parsed
	}

	buf := bytes.NewBuffer(nil)

	if err := pprof.StartCPUProfile(buf); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	time.Sleep(time.Duration(seconds * float64(time.Second)))
	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	m.writeJSON(w, prof)
}
