package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"io"
	"log"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	sse "github.com/alexandrevicenzi/go-sse"
	"github.com/gorilla/mux"

	"github.com/mastercactapus/bedmesh/coord"
	"github.com/mastercactapus/bedmesh/history"
	"github.com/mastercactapus/bedmesh/machine"
	"github.com/mastercactapus/bedmesh/machine/grbl"
	"github.com/mastercactapus/bedmesh/meshlevel"
	"github.com/mastercactapus/bedmesh/transport"
)

const probeEvents = "/events/probe"

type api struct {
	http.Handler

	connect func() (*grbl.Session, error)
	offset  grbl.ProbeOffset
	dataDir string
	history *history.Store
	sse     *sse.Server

	// one sweep at a time
	probeMx sync.Mutex
}

func newAPI(connect func() (*grbl.Session, error), off grbl.ProbeOffset, dir string, store *history.Store) *api {
	r := mux.NewRouter()

	a := &api{
		Handler: r,
		connect: connect,
		offset:  off,
		dataDir: dir,
		history: store,
		sse: sse.NewServer(&sse.Options{
			Logger: log.New(io.Discard, "", 0),
		}),
	}

	fs := http.FileServer(http.Dir(dir))
	r.PathPrefix("/data/").Handler(http.StripPrefix("/data", http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		switch req.Method {
		case "GET":
			fs.ServeHTTP(w, req)
		case "PUT":
			a.putFile(w, req)
		case "DELETE":
			a.deleteFile(w, req)
		default:
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		}
	})))

	r.HandleFunc("/api/plan", a.plan).Methods("POST")
	r.HandleFunc("/api/probe", a.probe).Methods("POST")
	r.HandleFunc("/api/remap", a.remap).Methods("POST")
	r.HandleFunc("/api/ports", a.ports).Methods("GET")
	r.HandleFunc("/api/history", a.runs).Methods("GET")
	r.HandleFunc("/api/history/{id}", a.run).Methods("GET")
	r.PathPrefix("/events/").Handler(a.sse)

	return a
}

func (a *api) Close() { a.sse.Shutdown() }

func safePath(base, name string) (bool, string) {
	if filepath.Separator != '/' && strings.ContainsRune(name, filepath.Separator) {
		log.Println("invalid path '" + name + "'")
		return false, ""
	}
	dir := string(base)
	if dir == "" {
		dir = "."
	}
	fullName := filepath.Join(dir, filepath.FromSlash(path.Clean("/"+name)))
	return true, fullName
}

// gridOptions reads sweep options from form values, using the command
// line defaults for anything missing.
func gridOptions(req *http.Request) (machine.ProbeGridOptions, error) {
	fs := flag.NewFlagSet("grid", flag.ContinueOnError)
	opt := gridFlags(fs)

	var err error
	fs.VisitAll(func(f *flag.Flag) {
		v := req.FormValue(f.Name)
		if v == "" || err != nil {
			return
		}
		err = fs.Set(f.Name, v)
	})
	return *opt, err
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		log.Println("ERROR: encode:", err)
	}
}

func (a *api) plan(w http.ResponseWriter, req *http.Request) {
	opt, err := gridOptions(req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	plan, err := opt.Plan()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var buf bytes.Buffer
	_, err = plan.WriteTo(&buf)
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	buf.WriteTo(w)
}

type sampleEvent struct {
	Index int     `json:"index"`
	Total int     `json:"total"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Z     float64 `json:"z"`
}

type probeResult struct {
	RunID   string        `json:"run_id,omitempty"`
	File    string        `json:"file"`
	Grid    bool          `json:"grid"`
	Samples []coord.Point `json:"samples"`
}

func (a *api) probe(w http.ResponseWriter, req *http.Request) {
	opt, err := gridOptions(req)
	if err == nil {
		opt, err = opt.Normalize()
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	name := req.FormValue("name")
	if name == "" {
		name = "mesh"
	}
	ok, file := safePath(a.dataDir, name+".tsv")
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	a.probeMx.Lock()
	defer a.probeMx.Unlock()

	sess, err := a.connect()
	if err != nil {
		log.Printf("ERROR: connect: %+v", err)
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	total := opt.NX * opt.NY
	samples, err := machine.NewMachine(sess, a.offset).ProbeGrid(opt, func(i int, p coord.Point) {
		data, err := json.Marshal(sampleEvent{Index: i, Total: total, X: p.X, Y: p.Y, Z: p.Z})
		if err != nil {
			log.Printf("ERROR: marshal json: %+v", err)
			return
		}
		a.sse.SendMessage(probeEvents, sse.SimpleMessage(string(data)))
	})
	closeErr := sess.Close()
	if err != nil {
		log.Printf("ERROR: probe grid: %+v", err)
		http.Error(w, err.Error(), 500)
		return
	}
	if closeErr != nil {
		log.Println("ERROR: close:", closeErr)
	}

	hm, err := meshlevel.New(samples)
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	err = writeHeightMap(file, hm)
	if err != nil {
		log.Printf("ERROR: create '%s': %+v", file, err)
		http.Error(w, err.Error(), 500)
		return
	}

	res := probeResult{File: name + ".tsv", Grid: hm.IsGrid(), Samples: samples}
	if a.history != nil {
		run := &history.Run{Name: name, Source: "api", NX: opt.NX, NY: opt.NY, XMax: opt.XMax, YMax: opt.YMax}
		err = a.history.Record(run, samples)
		if err != nil {
			log.Printf("ERROR: archive run: %+v", err)
		} else {
			res.RunID = run.RunID
		}
	}
	writeJSON(w, res)
}

// parseFloatParam reads a query parameter; the body is the toolpath.
func parseFloatParam(req *http.Request, name string, dst *float64) error {
	v := req.URL.Query().Get(name)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return errors.New("invalid " + name + ": " + err.Error())
	}
	*dst = f
	return nil
}

func (a *api) remap(w http.ResponseWriter, req *http.Request) {
	meshName := req.URL.Query().Get("mesh")
	if meshName == "" {
		meshName = "mesh"
	}
	ok, file := safePath(a.dataDir, meshName+".tsv")
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	cfg := remapConfig{Reference: req.URL.Query().Get("zero")}
	for name, dst := range map[string]*float64{
		"xOffset":        &cfg.OffsetX,
		"yOffset":        &cfg.OffsetY,
		"machineXOffset": &cfg.MachineX,
		"machineYOffset": &cfg.MachineY,
	} {
		err := parseFloatParam(req, name, dst)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	hm, err := readHeightMap(file)
	if errors.Is(err, os.ErrNotExist) {
		http.Error(w, "unknown height map "+meshName, http.StatusNotFound)
		return
	}
	if err == nil {
		hm, err = cfg.prepare(hm)
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var buf bytes.Buffer
	_, err = meshlevel.Remap(req.Body, &buf, hm, cfg.RemapOptions)
	var oerr *meshlevel.OutOfDomainError
	if errors.As(err, &oerr) {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	buf.WriteTo(w)
}

func (a *api) ports(w http.ResponseWriter, req *http.Request) {
	ports, err := transport.Ports()
	if err != nil {
		log.Printf("ERROR: list ports: %+v", err)
		http.Error(w, err.Error(), 500)
		return
	}
	writeJSON(w, ports)
}

func (a *api) runs(w http.ResponseWriter, req *http.Request) {
	if a.history == nil {
		http.Error(w, "history disabled", http.StatusNotFound)
		return
	}
	runs, err := a.history.Runs()
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	if runs == nil {
		runs = []*history.Run{}
	}
	writeJSON(w, runs)
}

// run returns an archived run as a height map table.
func (a *api) run(w http.ResponseWriter, req *http.Request) {
	if a.history == nil {
		http.Error(w, "history disabled", http.StatusNotFound)
		return
	}
	samples, err := a.history.Load(mux.Vars(req)["id"])
	if errors.Is(err, history.ErrNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	hm, err := meshlevel.New(samples)
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	w.Header().Set("Content-Type", "text/tab-separated-values")
	err = hm.WriteTSV(w)
	if err != nil {
		log.Println("ERROR: write:", err)
	}
}

func (a *api) putFile(w http.ResponseWriter, req *http.Request) {
	ok, name := safePath(a.dataDir, req.URL.Path)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	os.MkdirAll(filepath.Dir(name), 0755)
	f, err := os.Create(name)
	if err != nil {
		log.Printf("ERROR: create '%s': %+v", name, err)
		http.Error(w, err.Error(), 500)
		return
	}
	defer f.Close()
	_, err = io.Copy(f, req.Body)
	if err != nil {
		log.Printf("ERROR: write '%s': %+v", name, err)
		http.Error(w, err.Error(), 500)
		return
	}
}

func (a *api) deleteFile(w http.ResponseWriter, req *http.Request) {
	ok, name := safePath(a.dataDir, req.URL.Path)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	err := os.Remove(name)
	if err != nil {
		log.Printf("ERROR: delete '%s': %+v", name, err)
		http.Error(w, err.Error(), 500)
		return
	}
}

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	conn := newConnFlags(fs)
	off := offsetFlags(fs)
	addr := fs.String("addr", ":9091", "Address to bind the server to.")
	dir := fs.String("dir", "./data", "Data directory to use.")
	historyDB := fs.String("history", "", "Archive runs in this SQLite database.")
	fs.Parse(args)

	var store *history.Store
	var err error
	if *historyDB != "" {
		store, err = history.Open(*historyDB)
		if err != nil {
			return err
		}
		defer store.Close()
	}

	audit, err := conn.openAudit()
	if err != nil {
		return err
	}
	if audit != nil {
		defer audit.Close()
	}

	a := newAPI(func() (*grbl.Session, error) { return conn.dial(audit) }, *off, *dir, store)
	defer a.Close()

	log.Println("listening on", *addr)
	return http.ListenAndServe(*addr, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "*")
		log.Printf("%s %s - %s", req.Method, req.URL.Path, req.RemoteAddr)
		a.ServeHTTP(w, req)
	}))
}
