package benchmark

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Columns is the header of every result file.
var Columns = []string{"tool", "function", "mode", "run", "memory_mb", "time_s"}

// requiredColumns must be present for a file to be loadable. mode is optional
// so that older files without it still load.
var requiredColumns = []string{"tool", "function", "run", "memory_mb", "time_s"}

// Row is one persisted run.
type Row struct {
	Tool     string  `json:"tool"`
	Function string  `json:"function"`
	Mode     Mode    `json:"mode"`
	Run      int     `json:"run"`
	MemoryMB float64 `json:"memory_mb"`
	TimeS    float64 `json:"time_s"`
	// Source is the file the row came from; set only when requested on load.
	Source string `json:"source,omitempty"`
}

// Rows flattens a session in run order.
func (s *Session) Rows() []Row {
	rows := make([]Row, len(s.Records))
	for i, r := range s.Records {
		rows[i] = Row{
			Tool:     s.Tool,
			Function: s.Function,
			Mode:     s.Mode,
			Run:      r.Run,
			MemoryMB: r.MemoryMB,
			TimeS:    r.TimeS,
		}
	}
	return rows
}

// ResultPath is the conventional file for a session: <dir>/<tool>_<function>_<mode>.csv.
func ResultPath(dir, tool, function string, mode Mode) string {
	return filepath.Join(dir, fmt.Sprintf("%s_%s_%s.csv", tool, function, mode))
}

// ResultFile persists the rows of one session.
type ResultFile struct {
	path string
}

// NewResultFile prepares path for writing, creating its directory.
func NewResultFile(path string) (*ResultFile, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return &ResultFile{path: path}, nil
}

// Path returns the file location.
func (f *ResultFile) Path() string { return f.path }

// Save rewrites the file with a header and one row per run. An empty session
// still produces a header-only file.
func (f *ResultFile) Save(s *Session) error {
	file, err := os.Create(f.path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", f.path, err)
	}
	if err := writeRows(file, s.Rows()); err != nil {
		file.Close()
		return fmt.Errorf("failed to write %s: %w", f.path, err)
	}
	return file.Close()
}

// Load reads the rows back.
func (f *ResultFile) Load() ([]Row, error) {
	return loadFile(f.path, false)
}

func writeRows(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return err
	}
	for _, r := range rows {
		record := []string{
			r.Tool,
			r.Function,
			string(r.Mode),
			strconv.Itoa(r.Run),
			strconv.FormatFloat(r.MemoryMB, 'f', -1, 64),
			strconv.FormatFloat(r.TimeS, 'f', -1, 64),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// LoadResults concatenates several result files. With withSource set, each
// row carries the path it came from. Any missing file or column aborts.
func LoadResults(paths []string, withSource bool) ([]Row, error) {
	var all []Row
	for _, p := range paths {
		rows, err := loadFile(p, withSource)
		if err != nil {
			return nil, err
		}
		all = append(all, rows...)
	}
	return all, nil
}

// HasData reports whether path exists and holds at least one data row.
func HasData(path string) bool {
	rows, err := loadFile(path, false)
	return err == nil && len(rows) > 0
}

func loadFile(path string, withSource bool) ([]Row, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open result file: %w", err)
	}
	defer file.Close()

	cr := csv.NewReader(file)
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: %s is empty", ErrMissingColumns, path)
		}
		return nil, fmt.Errorf("failed to read header of %s: %w", path, err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(name)] = i
	}
	var missing []string
	for _, name := range requiredColumns {
		if _, ok := index[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s lacks %s", ErrMissingColumns, path, strings.Join(missing, ", "))
	}
	modeCol, hasMode := index["mode"]

	var rows []Row
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}

		run, err := strconv.Atoi(rec[index["run"]])
		if err != nil {
			return nil, fmt.Errorf("%s:%d: invalid run %q: %w", path, line, rec[index["run"]], err)
		}
		mem, err := strconv.ParseFloat(rec[index["memory_mb"]], 64)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: invalid memory_mb %q: %w", path, line, rec[index["memory_mb"]], err)
		}
		elapsed, err := strconv.ParseFloat(rec[index["time_s"]], 64)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: invalid time_s %q: %w", path, line, rec[index["time_s"]], err)
		}

		row := Row{
			Tool:     rec[index["tool"]],
			Function: rec[index["function"]],
			Run:      run,
			MemoryMB: mem,
			TimeS:    elapsed,
		}
		if hasMode {
			row.Mode = Mode(rec[modeCol])
		}
		if withSource {
			row.Source = path
		}
		rows = append(rows, row)
	}
	return rows, nil
}
