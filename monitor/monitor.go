// Package monitor turns a live shadow engine into a small HTTP server
// for inspection during bring-up and debugging.
package monitor

import (
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"strconv"

	// Enable profiling
	_ "net/http/pprof"

	"github.com/gorilla/mux"
	"github.com/pkg/browser"
	"github.com/shirou/gopsutil/process"

	"github.com/sarchlab/gvt/gtt/shadow"
)

// Monitor exposes the state of registered shadow engines over HTTP.
type Monitor struct {
	engines     []*shadow.Engine
	portNumber  int
	openBrowser bool
}

// NewMonitor creates a new Monitor.
func NewMonitor() *Monitor {
	return &Monitor{}
}

// WithPortNumber sets the port number of the monitor.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber < 1000 {
		fmt.Fprintf(os.Stderr,
			"Port number %d is assigned to the monitoring server, "+
				"which is not allowed. Using a random port instead.\n",
			portNumber)
		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// WithBrowserLaunch makes StartServer open the stats page in the local
// browser.
func (m *Monitor) WithBrowserLaunch() *Monitor {
	m.openBrowser = true

	return m
}

// RegisterEngine registers a shadow engine to be monitored.
func (m *Monitor) RegisterEngine(e *shadow.Engine) {
	m.engines = append(m.engines, e)
}

// StartServer starts the monitor as a web server.
func (m *Monitor) StartServer() {
	r := mux.NewRouter()

	r.HandleFunc("/api/list_engines", m.listEngines)
	r.HandleFunc("/api/engine/{name}", m.engineStats)
	r.HandleFunc("/api/resource", m.listResources)
	r.PathPrefix("/debug/").Handler(http.DefaultServeMux)

	actualPort := ":0"
	if m.portNumber > 1000 {
		actualPort = ":" + strconv.Itoa(m.portNumber)
	}

	listener, err := net.Listen("tcp", actualPort)
	dieOnErr(err)

	url := fmt.Sprintf("http://localhost:%d/api/list_engines",
		listener.Addr().(*net.TCPAddr).Port)
	fmt.Fprintf(os.Stderr, "Monitoring shadow engines with %s\n", url)

	go func() {
		err := http.Serve(listener, r)
		dieOnErr(err)
	}()

	if m.openBrowser {
		err := browser.OpenURL(url)
		dieOnErr(err)
	}
}

func (m *Monitor) listEngines(w http.ResponseWriter, _ *http.Request) {
	names := make([]string, 0, len(m.engines))
	for _, e := range m.engines {
		names = append(names, e.Name())
	}

	bytes, err := json.Marshal(names)
	dieOnErr(err)

	_, err = w.Write(bytes)
	dieOnErr(err)
}

func (m *Monitor) engineStats(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	engine := m.findEngineOr404(w, name)
	if engine == nil {
		return
	}

	bytes, err := json.Marshal(engine.CollectStats())
	dieOnErr(err)

	_, err = w.Write(bytes)
	dieOnErr(err)
}

func (m *Monitor) findEngineOr404(
	w http.ResponseWriter,
	name string,
) *shadow.Engine {
	for _, e := range m.engines {
		if e.Name() == name {
			return e
		}
	}

	w.WriteHeader(http.StatusNotFound)
	_, err := w.Write([]byte("Engine not found"))
	dieOnErr(err)

	return nil
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	pid := os.Getpid()
	proc, err := process.NewProcess(int32(pid))
	dieOnErr(err)

	cpuPercent, err := proc.CPUPercent()
	dieOnErr(err)

	memoryInfo, err := proc.MemoryInfo()
	dieOnErr(err)

	rsp := resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memoryInfo.RSS,
	}

	bytes, err := json.Marshal(rsp)
	dieOnErr(err)

	_, err = w.Write(bytes)
	dieOnErr(err)
}

func dieOnErr(err error) {
	if err != nil {
		log.Panic(err)
	}
}
