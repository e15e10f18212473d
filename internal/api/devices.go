package api

import (
	"encoding/json"
	"net/http"
	"sort"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/womgr-core/internal/device"
)

// maxQueryParamLen limits path and query parameter length.
const maxQueryParamLen = 100

// lookupDevice resolves the {name} URL parameter, writing the error
// response itself when it fails.
func (s *Server) lookupDevice(w http.ResponseWriter, r *http.Request) (*device.Record, bool) {
	name := chi.URLParam(r, "name")
	if name == "" || len(name) > maxQueryParamLen {
		writeBadRequest(w, "invalid device name")
		return nil, false
	}
	rec, err := s.registry.Get(name)
	if err != nil {
		writeDeviceError(w, err, "failed to get device")
		return nil, false
	}
	return rec, true
}

// handleListDevices returns all registered devices with their last known
// reachability.
//
// Query parameters:
//   - online: "true" or "false" to filter by last probe result
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	var onlineFilter *bool
	if raw := r.URL.Query().Get("online"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeBadRequest(w, "invalid online filter")
			return
		}
		onlineFilter = &v
	}

	devices := make([]device.Info, 0, s.registry.Len())
	for _, rec := range s.registry.List() {
		info := rec.Info()
		if onlineFilter != nil && (info.Online == nil || *info.Online != *onlineFilter) {
			continue
		}
		devices = append(devices, info)
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].Name < devices[j].Name })

	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

// handleGetDevice returns a single device by name.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.lookupDevice(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, rec.Info())
}

// handleCreateDevice registers a new device. The dashboard card is added
// in the background.
func (s *Server) handleCreateDevice(w http.ResponseWriter, r *http.Request) {
	var p device.Params
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	rec, err := s.registry.Register(r.Context(), p)
	if err != nil {
		writeDeviceError(w, err, "failed to register device")
		return
	}

	writeJSON(w, http.StatusCreated, rec.Info())
}

// handleDeleteDevice removes a device and schedules removal of its card.
func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if name == "" || len(name) > maxQueryParamLen {
		writeBadRequest(w, "invalid device name")
		return
	}
	if _, err := s.registry.RemoveByName(r.Context(), name); err != nil {
		writeDeviceError(w, err, "failed to remove device")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleWakeDevice sends a burst of magic packets.
//
// Query parameters:
//   - confirm: "true" waits for the device to answer probes
func (s *Server) handleWakeDevice(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.lookupDevice(w, r)
	if !ok {
		return
	}

	confirm := false
	if raw := r.URL.Query().Get("confirm"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeBadRequest(w, "invalid confirm flag")
			return
		}
		confirm = v
	}

	res, err := s.wake(r.Context(), rec, device.HistorySourceAPI)
	if err != nil {
		writeDeviceError(w, err, "wake request interrupted")
		return
	}

	if confirm && res.Sent {
		online, err := s.monitor.ConfirmWake(r.Context(), rec)
		if err != nil {
			writeDeviceError(w, err, "wake confirmation interrupted")
			return
		}
		res.Confirmed = &online
	}

	writeJSON(w, http.StatusOK, res)
}

// handleProbeDevice runs a reachability check now.
func (s *Server) handleProbeDevice(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.lookupDevice(w, r)
	if !ok {
		return
	}
	online, err := s.probe(r.Context(), rec, device.HistorySourceAPI)
	if err != nil {
		writeDeviceError(w, err, "probe failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"device": rec.Name, "online": online})
}

// handleRestartDevice launches the restart command.
func (s *Server) handleRestartDevice(w http.ResponseWriter, r *http.Request) {
	s.handleSystemAction(w, r, device.ActionRestart)
}

// handleShutdownDevice launches the shutdown command.
func (s *Server) handleShutdownDevice(w http.ResponseWriter, r *http.Request) {
	s.handleSystemAction(w, r, device.ActionShutdown)
}

func (s *Server) handleSystemAction(w http.ResponseWriter, r *http.Request, action device.Action) {
	rec, ok := s.lookupDevice(w, r)
	if !ok {
		return
	}
	if err := s.system(r.Context(), rec, action, device.HistorySourceAPI); err != nil {
		writeDeviceError(w, err, "failed to launch "+string(action)+" command")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"device":   rec.Name,
		"action":   action,
		"launched": true,
	})
}

// handleDeviceCommands reports which system commands resolve on the host.
func (s *Server) handleDeviceCommands(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.lookupDevice(w, r)
	if !ok {
		return
	}
	sw := rec.System()
	if sw == nil {
		writeNotFound(w, "device not found")
		return
	}
	cmds, err := sw.AvailableCommands()
	if err != nil {
		writeDeviceError(w, err, "failed to resolve commands")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"device": rec.Name, "os_type": rec.OS, "commands": cmds})
}
