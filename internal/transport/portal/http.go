package portal

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/schema"
	"github.com/muurk/edgent/internal/logging"
	"github.com/muurk/edgent/internal/scan"
	"github.com/muurk/edgent/internal/transport"
	"go.uber.org/zap"
)

//go:embed assets/index.html assets/update.html
var assets embed.FS

var formDecoder = func() *schema.Decoder {
	d := schema.NewDecoder()
	d.IgnoreUnknownKeys(true)
	return d
}()

// configForm is the query accepted by /config.
type configForm struct {
	SSID       string `schema:"ssid"`
	SSIDManual string `schema:"ssidManual"`
	Pass       string `schema:"pass"`
	Token      string `schema:"blynk"`
	Host       string `schema:"host"`
	Port       string `schema:"port"`
	PortSSL    string `schema:"port_ssl"`
	IP         string `schema:"ip"`
	Mask       string `schema:"mask"`
	GW         string `schema:"gw"`
	DNS        string `schema:"dns"`
	DNS2       string `schema:"dns2"`
	Save       string `schema:"save"`
}

// command converts the form to a "config" command. Empty fields are left
// out so the device keeps its defaults.
func (f configForm) command() transport.Command {
	ssid := f.SSID
	if f.SSIDManual != "" {
		ssid = f.SSIDManual
	}
	port := f.Port
	if f.PortSSL != "" {
		port = f.PortSSL
	}

	msg := map[string]any{"t": transport.TypeConfig}
	for key, val := range map[string]string{
		"ssid":  ssid,
		"pass":  f.Pass,
		"blynk": f.Token,
		"host":  f.Host,
		"port":  port,
		"ip":    f.IP,
		"mask":  f.Mask,
		"gw":    f.GW,
		"dns":   f.DNS,
		"dns2":  f.DNS2,
	} {
		if val != "" {
			msg[key] = val
		}
	}
	// the session decides what counts as a forced save
	if f.Save != "" {
		msg["save"] = f.Save
	}

	cmd, _ := json.Marshal(msg)
	return cmd
}

func (p *Portal) routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/", p.handleRoot)
	r.Get("/board_info.json", p.handleBoardInfo)
	r.Get("/wifi_scan.json", p.handleScan)
	r.Get("/config", p.handleConfig)
	r.Get("/reset", p.handleSimple(`{"t":"reset"}`))
	r.Get("/reboot", p.handleSimple(`{"t":"reboot"}`))
	r.Get("/update", p.handleUpdateForm)
	r.Post("/update", p.handleUpdate)

	if dir := p.cfg.Settings.AssetDir; dir != "" {
		r.Handle("/img/*", http.FileServer(http.Dir(dir)))
	}

	// Captive portal: anything unknown lands on the form.
	r.NotFound(p.handleRoot)
	return r
}

func (p *Portal) handleRoot(w http.ResponseWriter, r *http.Request) {
	if dir := p.cfg.Settings.AssetDir; dir != "" {
		index := filepath.Join(dir, "index.html")
		if _, err := os.Stat(index); err == nil {
			http.ServeFile(w, r, index)
			return
		}
	}
	serveAsset(w, "assets/index.html")
}

func (p *Portal) handleUpdateForm(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Connection", "close")
	serveAsset(w, "assets/update.html")
}

func serveAsset(w http.ResponseWriter, name string) {
	data, err := assets.ReadFile(name)
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(data)
}

func (p *Portal) handleBoardInfo(w http.ResponseWriter, r *http.Request) {
	resps, err := p.exchange(r.Context(), transport.Command(`{"t":"info"}`))
	if err != nil {
		writeExchangeError(w, err)
		return
	}
	writeResponse(w, last(resps), http.StatusOK)
}

func (p *Portal) handleScan(w http.ResponseWriter, r *http.Request) {
	resps, err := p.exchange(r.Context(), transport.Command(`{"t":"scan"}`))
	if err != nil {
		writeExchangeError(w, err)
		return
	}

	nets := make([]scan.Network, 0, scan.MaxResults)
	for _, resp := range resps {
		if resp.Type == transport.TypeScan && resp.Network != nil {
			nets = append(nets, *resp.Network)
		}
	}
	writeJSON(w, http.StatusOK, nets)
}

func (p *Portal) handleConfig(w http.ResponseWriter, r *http.Request) {
	var form configForm
	if err := formDecoder.Decode(&form, r.URL.Query()); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"status": transport.StatusError,
			"msg":    "Malformed request",
		})
		return
	}

	resps, err := p.exchange(r.Context(), form.command())
	if err != nil {
		writeExchangeError(w, err)
		return
	}

	resp := last(resps)
	status := http.StatusOK
	if resp.Failed() {
		status = http.StatusInternalServerError
	}
	writeResponse(w, resp, status)
}

func (p *Portal) handleSimple(cmd string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resps, err := p.exchange(r.Context(), transport.Command(cmd))
		if err != nil {
			writeExchangeError(w, err)
			return
		}
		writeResponse(w, last(resps), http.StatusOK)
	}
}

// writerFunc adapts the updater to io.Writer without exposing its other
// methods to io.Copy.
type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(b []byte) (int, error) { return f(b) }

func (p *Portal) handleUpdate(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Connection", "close")

	u := p.cfg.Updater
	if u == nil {
		http.Error(w, "FAIL", http.StatusNotImplemented)
		return
	}

	mr, err := r.MultipartReader()
	if err != nil {
		http.Error(w, "FAIL", http.StatusBadRequest)
		return
	}

	attempted := false
	ok := false
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			logging.Warn("Malformed firmware upload", zap.Error(err))
			break
		}
		if part.FileName() == "" {
			continue
		}

		attempted = true
		logging.Info("Firmware upload", zap.String("file", part.FileName()))
		if err := u.Begin(-1); err != nil {
			logging.Error("Failed to begin update", zap.Error(err))
			break
		}

		buf := make([]byte, 4096)
		if _, err := io.CopyBuffer(writerFunc(u.Write), part, buf); err != nil {
			logging.Error("Firmware upload failed", zap.Error(err))
			_ = u.End(false)
			break
		}
		if err := u.End(true); err != nil {
			logging.Error("Failed to finish update", zap.Error(err))
			break
		}
		ok = true
		break
	}

	if attempted && p.cfg.State != nil {
		p.cfg.State.ScheduleRestart(updateRestartDelay)
	}

	w.Header().Set("Content-Type", "text/plain")
	if !ok {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("FAIL"))
		return
	}
	_, _ = w.Write([]byte("OK"))
}

func last(resps []transport.Response) transport.Response {
	return resps[len(resps)-1]
}

func writeResponse(w http.ResponseWriter, resp transport.Response, status int) {
	body, err := resp.Body()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if resp.Type == transport.TypeError && status == http.StatusOK {
		status = http.StatusBadRequest
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

func writeExchangeError(w http.ResponseWriter, err error) {
	status := http.StatusGatewayTimeout
	if errors.Is(err, errBusy) {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]string{
		"status": transport.StatusError,
		"msg":    err.Error(),
	})
}
