package web

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"switchcontrol/errcode"
	"switchcontrol/services/hal"
	"switchcontrol/types"
)

const maxBody = 64 << 10

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// httpStatus maps an error code to the HTTP status of its response.
func httpStatus(c errcode.Code) int {
	switch {
	case errcode.IsValidation(c):
		return http.StatusBadRequest
	case c == errcode.NotFound:
		return http.StatusNotFound
	case c == errcode.Conflict:
		return http.StatusConflict
	case c == errcode.Unsupported:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	c := errcode.Of(err)
	code := httpStatus(c)
	if code >= http.StatusInternalServerError {
		s.log.Error("request failed", "path", r.URL.Path, "err", err)
	}
	writeJSON(w, code, map[string]string{"error": err.Error(), "code": string(c)})
}

func decodeBody(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		return errcode.Wrap(errcode.InvalidPayload, "web.decode", err)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return errcode.Wrap(errcode.InvalidPayload, "web.decode", err)
	}
	return nil
}

// GET /api/config[?channel=A1]
func (s *Server) getConfig(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("channel")
	if id == "" {
		writeJSON(w, http.StatusOK, s.store.Channels())
		return
	}
	cfg, err := s.store.GetConfig(types.ChannelID(id))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// POST /api/config stores one channel config and applies it live.
func (s *Server) postConfig(w http.ResponseWriter, r *http.Request) {
	var cfg types.ChannelConfig
	if err := decodeBody(r, &cfg); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.cfgMu.Lock()
	defer s.cfgMu.Unlock()
	if err := s.store.SetConfig(cfg); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.ctl.UpdateChannel(cfg)
	s.log.Info("channel reconfigured", "channel", cfg.Channel, "type", cfg.Type)
	writeJSON(w, http.StatusOK, cfg)
}

// GET /api/channel
func (s *Server) getChannels(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.ctl.GenerateStatus())
}

// POST /api/channel queues one switch action. Custom positions apply
// immediately.
func (s *Server) postChannel(w http.ResponseWriter, r *http.Request) {
	var a types.SwitchAction
	if err := decodeBody(r, &a); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := a.Validate(); err != nil {
		s.writeError(w, r, err)
		return
	}
	if a.Direction == types.DirCustom {
		s.ctl.ForceSwitchChange(a)
		writeJSON(w, http.StatusOK, a)
		return
	}
	s.ctl.RequestSwitchChange([]types.SwitchAction{a})
	writeJSON(w, http.StatusAccepted, a)
}

// GET /api/i2c scans the bus when B1 and B2 are both handed to I2c.
func (s *Server) getI2C(w http.ResponseWriter, r *http.Request) {
	const op = "web.i2c"
	for _, id := range []types.ChannelID{"B1", "B2"} {
		cfg, err := s.store.GetConfig(id)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if cfg.Type != types.ChannelI2c {
			s.writeError(w, r, errcode.New(errcode.Conflict, op, fmt.Sprintf("%s is %s, not I2c", id, cfg.Type)))
			return
		}
	}
	if s.opts.I2C == nil {
		s.writeError(w, r, errcode.New(errcode.Unsupported, op, "no i2c bus on this board"))
		return
	}

	s.i2cMu.Lock()
	found := hal.ScanI2C(s.opts.I2C)
	s.i2cMu.Unlock()

	hex := make([]string, len(found))
	for i, a := range found {
		hex[i] = fmt.Sprintf("0x%02x", a)
	}
	writeJSON(w, http.StatusOK, map[string]any{"addresses": found, "hex": hex})
}
