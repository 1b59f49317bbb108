package journal

import (
	"compress/gzip"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/tailscale/tailsql/server/tailsql"
	"tailscale.com/tsweb"

	"github.com/banshee-data/simbridge/internal/httputil"
	"github.com/banshee-data/simbridge/internal/monitoring"
)

const defaultSignalLimit = 50

// AttachAdminRoutes mounts the journal under /debug/: a JSON listing of
// recent signals, a gzipped backup download and a tailsql console over the
// journal database.
func (j *Journal) AttachAdminRoutes(mux *http.ServeMux) error {
	debug := tsweb.Debugger(mux)

	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		return fmt.Errorf("failed to create tailsql server: %w", err)
	}
	tsql.SetDB("sqlite://journal.db", j.DB, &tailsql.DBOptions{
		Label: "Bridge journal",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("journal", "Recent bridge signals (JSON)", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limit := defaultSignalLimit
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				httputil.BadRequest(w, "invalid limit")
				return
			}
			limit = n
		}

		signals, err := j.RecentSignals(limit)
		if err != nil {
			monitoring.Diagf("journal: %v", err)
			httputil.InternalServerError(w, err.Error())
			return
		}
		if signals == nil {
			signals = []Signal{}
		}
		httputil.WriteJSONOK(w, signals)
	}))

	debug.Handle("journal/backup", "Create and download a backup of the journal now", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		backupPath := filepath.Join(os.TempDir(), fmt.Sprintf("simbridge-backup-%d.db", time.Now().UnixNano()))
		if err := j.Backup(backupPath); err != nil {
			httputil.InternalServerError(w, err.Error())
			return
		}
		defer func() {
			if err := os.Remove(backupPath); err != nil {
				monitoring.Diagf("failed to remove backup file: %v", err)
			}
		}()

		backupFile, err := os.Open(backupPath)
		if err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("failed to open backup file: %v", err))
			return
		}
		defer backupFile.Close()

		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.gz", filepath.Base(backupPath)))
		w.Header().Set("Content-Type", "application/gzip")
		gzipWriter := gzip.NewWriter(w)
		defer gzipWriter.Close()
		if _, err := io.Copy(gzipWriter, backupFile); err != nil {
			monitoring.Diagf("failed to write backup: %v", err)
		}
	}))
	return nil
}
