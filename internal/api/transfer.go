package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"

	"github.com/nerrad567/womgr-core/internal/device"
)

// ExportVersion is the version written to and accepted from export files.
const ExportVersion = 1

// ExportFile is the device list exchanged by export and import. Entries
// carry credentials so an export can recreate the devices elsewhere.
type ExportFile struct {
	Version int             `json:"version"`
	Devices []device.Params `json:"devices"`
}

// ImportFailure describes one entry that could not be imported.
type ImportFailure struct {
	Device string `json:"device"`
	Error  string `json:"error"`
}

// ImportResult summarises an import.
type ImportResult struct {
	Imported int             `json:"imported"`
	Skipped  int             `json:"skipped"`
	Failed   []ImportFailure `json:"failed"`
}

// handleExport returns every registered device in export format.
func (s *Server) handleExport(w http.ResponseWriter, _ *http.Request) {
	recs := s.registry.List()
	out := ExportFile{Version: ExportVersion, Devices: make([]device.Params, 0, len(recs))}
	for _, rec := range recs {
		out.Devices = append(out.Devices, rec.Params())
	}
	sort.Slice(out.Devices, func(i, j int) bool { return out.Devices[i].Name < out.Devices[j].Name })

	w.Header().Set("Content-Disposition", `attachment; filename="womgr-devices.json"`)
	writeJSON(w, http.StatusOK, out)
}

// handleImport registers every device in the body. Entries that collide
// with a registered device are skipped; invalid entries are reported and
// do not stop the import.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeBadRequest(w, "failed to read request body")
		return
	}
	file, err := decodeExportFile(body)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	res := ImportResult{Failed: []ImportFailure{}}
	for _, p := range file.Devices {
		_, err := s.registry.Register(r.Context(), p)
		switch {
		case err == nil:
			res.Imported++
		case errors.Is(err, device.ErrDuplicateName),
			errors.Is(err, device.ErrDuplicateMAC),
			errors.Is(err, device.ErrDuplicateIP):
			res.Skipped++
		default:
			res.Failed = append(res.Failed, ImportFailure{Device: p.Name, Error: err.Error()})
		}
	}

	s.logger.Info("device import finished",
		"imported", res.Imported,
		"skipped", res.Skipped,
		"failed", len(res.Failed),
	)
	writeJSON(w, http.StatusOK, res)
}

// decodeExportFile accepts the versioned export object or a bare array of
// devices.
func decodeExportFile(body []byte) (ExportFile, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var devices []device.Params
		if err := json.Unmarshal(trimmed, &devices); err != nil {
			return ExportFile{}, fmt.Errorf("invalid JSON body")
		}
		return ExportFile{Version: ExportVersion, Devices: devices}, nil
	}

	var file ExportFile
	if err := json.Unmarshal(trimmed, &file); err != nil {
		return ExportFile{}, fmt.Errorf("invalid JSON body")
	}
	if file.Version != ExportVersion {
		return ExportFile{}, fmt.Errorf("unsupported export version %d", file.Version)
	}
	return file, nil
}
