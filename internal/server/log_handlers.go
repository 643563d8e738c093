package server

import (
	"bufio"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// maxLogLines caps how many lines one request may return
const maxLogLines = 10000

// consoleLevels maps level names to the zerolog console writer abbreviations
var consoleLevels = map[string]string{
	"TRACE": "TRC",
	"DEBUG": "DBG",
	"INFO":  "INF",
	"WARN":  "WRN",
	"ERROR": "ERR",
	"FATAL": "FTL",
}

// LogHandlers serves the log files written under <data dir>/logs
type LogHandlers struct {
	log     zerolog.Logger
	logsDir string
}

// NewLogHandlers creates a new log handlers instance
func NewLogHandlers(log zerolog.Logger, dataDir string) *LogHandlers {
	return &LogHandlers{
		log:     log.With().Str("component", "log_handlers").Logger(),
		logsDir: filepath.Join(dataDir, "logs"),
	}
}

// LogFileInfo represents information about a log file
type LogFileInfo struct {
	Name         string    `json:"name"`
	SizeMB       float64   `json:"size_mb"`
	Size         string    `json:"size"`
	ModifiedAt   time.Time `json:"modified_at"`
	LastModified string    `json:"last_modified"` // Human-readable
}

// LogListResponse represents the list of available log files
type LogListResponse struct {
	LogFiles []LogFileInfo `json:"log_files"`
	Total    int           `json:"total"`
}

// LogContentResponse represents log content
type LogContentResponse struct {
	Lines  []string `json:"lines"`
	Total  int      `json:"total"`
	Status string   `json:"status"`
}

// HandleListLogs handles GET /api/logs
func (h *LogHandlers) HandleListLogs(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Listing log files")

	entries, err := os.ReadDir(h.logsDir)
	if err != nil && !os.IsNotExist(err) {
		h.log.Error().Err(err).Msg("Failed to read logs directory")
		http.Error(w, "Failed to list logs", http.StatusInternalServerError)
		return
	}

	files := make([]LogFileInfo, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".log") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, LogFileInfo{
			Name:         entry.Name(),
			SizeMB:       float64(info.Size()) / 1024 / 1024,
			Size:         humanize.IBytes(uint64(info.Size())),
			ModifiedAt:   info.ModTime(),
			LastModified: humanize.Time(info.ModTime()),
		})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].ModifiedAt.After(files[j].ModifiedAt)
	})

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(LogListResponse{LogFiles: files, Total: len(files)})
}

// HandleGetLogs handles GET /api/logs/{name}?lines=N&level=L&search=S.
// Returns the last N lines (default 100) after filtering.
func (h *LogHandlers) HandleGetLogs(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	path, ok := h.resolve(name)
	if !ok {
		http.Error(w, "Invalid log file name", http.StatusBadRequest)
		return
	}

	lines := 100
	if linesParam := r.URL.Query().Get("lines"); linesParam != "" {
		parsed, err := strconv.Atoi(linesParam)
		if err != nil || parsed < 1 {
			http.Error(w, "lines must be a positive integer", http.StatusBadRequest)
			return
		}
		lines = min(parsed, maxLogLines)
	}
	level := strings.ToUpper(r.URL.Query().Get("level"))
	search := r.URL.Query().Get("search")

	h.log.Debug().
		Str("log_file", name).
		Int("lines", lines).
		Str("level", level).
		Str("search", search).
		Msg("Reading log file")

	logLines, err := readLines(path)
	if err != nil {
		if os.IsNotExist(err) {
			http.Error(w, "Log file not found", http.StatusNotFound)
			return
		}
		h.log.Error().Err(err).Str("log_file", name).Msg("Failed to read log file")
		http.Error(w, "Failed to read logs", http.StatusInternalServerError)
		return
	}

	totalLines := len(logLines)
	filtered := filterLogs(logLines, level, search)
	if len(filtered) > lines {
		filtered = filtered[len(filtered)-lines:]
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(LogContentResponse{
		Lines:  filtered,
		Total:  totalLines,
		Status: "ok",
	})
}

// resolve maps a log file name to a path inside the logs directory
func (h *LogHandlers) resolve(name string) (string, bool) {
	return resolveLogFile(h.logsDir, name)
}

func resolveLogFile(logsDir, name string) (string, bool) {
	if name == "" || strings.Contains(name, "..") || strings.ContainsAny(name, `/\`) {
		return "", false
	}
	path := filepath.Join(logsDir, name)
	if !strings.HasPrefix(path, logsDir+string(filepath.Separator)) {
		return "", false
	}
	return path, true
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	lines := []string{}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines, scanner.Err()
}

// filterLogs filters log lines by level and search term
func filterLogs(lines []string, level string, search string) []string {
	if level == "" && search == "" {
		return lines
	}

	filtered := make([]string, 0)
	search = strings.ToLower(search)

	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if level != "" && !lineMatchesLevel(line, level) {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(line), search) {
			continue
		}
		filtered = append(filtered, line)
	}

	return filtered
}

// lineMatchesLevel checks if a log line matches the specified level.
// Handles zerolog JSON lines and console-formatted lines.
func lineMatchesLevel(line string, level string) bool {
	if strings.Contains(line, `"level"`) {
		return strings.Contains(strings.ToLower(line), `"level":"`+strings.ToLower(level)+`"`)
	}

	upperLine := strings.ToUpper(line)
	upperLevel := strings.ToUpper(level)

	if abbrev, ok := consoleLevels[upperLevel]; ok && strings.Contains(upperLine, " "+abbrev+" ") {
		return true
	}

	return strings.Contains(upperLine, upperLevel+":") ||
		strings.Contains(upperLine, "["+upperLevel+"]") ||
		strings.Contains(upperLine, " "+upperLevel+" ")
}
