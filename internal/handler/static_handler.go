package handler

import (
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/astropulse/internal/report"
)

// StaticHandler は生成済みPDFレポートを配信するHTTPハンドラー。
type StaticHandler struct {
	dir    string
	logger *slog.Logger
}

// NewStaticHandler はStaticHandlerを生成する。dirはレポートの出力ディレクトリ。
func NewStaticHandler(dir string, logger *slog.Logger) *StaticHandler {
	return &StaticHandler{
		dir:    dir,
		logger: logger,
	}
}

// ServeReport はレポートPDFを返す。
// GET /static/{name}
//
// 命名規則に合わないファイル名は存在有無に関わらず404とする。
func (h *StaticHandler) ServeReport(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if !report.IsArtifactName(name) {
		http.NotFound(w, r)
		return
	}

	path := filepath.Join(h.dir, name)
	info, err := os.Stat(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			h.logger.Error("report stat failed",
				slog.String("name", name),
				slog.String("error", err.Error()),
			)
		}
		http.NotFound(w, r)
		return
	}
	if !info.Mode().IsRegular() {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	http.ServeFile(w, r, path)
}
