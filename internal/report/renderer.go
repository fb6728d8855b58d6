// Package report は予測文をPDFレポートに描画する。
// 英語はコアフォント（Helvetica, cp1252）、マラヤーラム語はNoto Sans MalayalamのTTFを使う。
// 出力ファイルはリクエストごとに一意な名前で作成する。
package report

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-pdf/fpdf"
	"github.com/google/uuid"

	"github.com/hitoshi/astropulse/internal/model"
)

const (
	// ArtifactPrefix と ArtifactExt はレポートファイル名の前後。クリーンアップ対象の判定にも使う。
	ArtifactPrefix = "report-"
	ArtifactExt    = ".pdf"

	malayalamFamily = "NotoSansMalayalam"
	lineHeight      = 7.0
)

// Document は描画する内容。
type Document struct {
	Text     string
	Category model.Category
	Year     string
	Language model.Language
}

// Artifact は書き出されたPDFファイル。
type Artifact struct {
	Name string
	Path string
}

// Renderer はPDFレポートを生成する。
type Renderer struct {
	dir      string
	fontPath string
	logger   *slog.Logger
}

// NewRenderer はRendererを生成する。dirは公開ディレクトリ、fontPathはマラヤーラム語フォント。
func NewRenderer(dir, fontPath string, logger *slog.Logger) *Renderer {
	return &Renderer{dir: dir, fontPath: fontPath, logger: logger}
}

// Render はDocumentをPDFに描画し、REPORT_DIR配下に一意な名前で保存する。
// 失敗時はRenderFailureのmodel.Failureを返す。
func (r *Renderer) Render(ctx context.Context, doc Document) (*Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, model.NewFailure(model.KindRender, "render", err)
	}

	pdf, err := r.build(doc)
	if err != nil {
		r.logger.Error("PDFの生成に失敗しました",
			slog.String("error", err.Error()),
			slog.String("language", string(doc.Language)),
			slog.String("category", string(doc.Category)),
		)
		return nil, model.NewFailure(model.KindRender, "render", err)
	}

	artifact, err := r.write(pdf)
	if err != nil {
		r.logger.Error("PDFの書き出しに失敗しました",
			slog.String("error", err.Error()),
			slog.String("dir", r.dir),
		)
		return nil, model.NewFailure(model.KindRender, "write", err)
	}

	r.logger.Debug("PDFを生成しました",
		slog.String("name", artifact.Name),
		slog.String("language", string(doc.Language)),
	)
	return artifact, nil
}

func (r *Renderer) build(doc Document) (*fpdf.Fpdf, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Astro Pulse", true)
	pdf.SetCreator("Astro Pulse", true)
	pdf.SetMargins(20, 20, 20)
	pdf.SetAutoPageBreak(true, 20)

	switch doc.Language {
	case model.LanguageMalayalam:
		r.layoutMalayalam(pdf, doc)
	default:
		layoutEnglish(pdf, doc)
	}

	if err := pdf.Error(); err != nil {
		return nil, err
	}
	return pdf, nil
}

// layoutEnglish はタイトル、見出し、本文の順に描画する。
func layoutEnglish(pdf *fpdf.Fpdf, doc Document) {
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(0, 12, "Astro Pulse: Thank You!", "", 1, "C", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "B", 14)
	heading := fmt.Sprintf("Your %s Prediction for %s:", doc.Category.Label(model.LanguageEnglish), doc.Year)
	pdf.CellFormat(0, 10, tr(heading), "", 1, "L", false, 0, "")
	pdf.Ln(2)

	pdf.SetFont("Helvetica", "", 12)
	pdf.MultiCell(0, lineHeight, tr(doc.Text), "", "L", false)
}

// layoutMalayalam は中央寄せのタイトルと本文を描画する。
func (r *Renderer) layoutMalayalam(pdf *fpdf.Fpdf, doc Document) {
	pdf.AddUTF8Font(malayalamFamily, "", r.fontPath)
	if pdf.Err() {
		return
	}
	pdf.AddPage()

	pdf.SetFont(malayalamFamily, "", 16)
	title := fmt.Sprintf("%s ലെ %s പ്രവചനം", doc.Year, doc.Category.Label(model.LanguageMalayalam))
	pdf.CellFormat(0, 12, title, "", 1, "C", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont(malayalamFamily, "", 12)
	pdf.MultiCell(0, lineHeight+1, doc.Text, "", "L", false)
}

// write は一時ファイルに書き出してからリネームする。
// 配信側が書き込み途中のファイルを読むことはない。
func (r *Renderer) write(pdf *fpdf.Fpdf) (*Artifact, error) {
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return nil, fmt.Errorf("出力ディレクトリの作成に失敗しました: %w", err)
	}

	tmp, err := os.CreateTemp(r.dir, ".report-*.tmp")
	if err != nil {
		return nil, fmt.Errorf("一時ファイルの作成に失敗しました: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // リネーム後は存在しないため無視される

	if err := pdf.Output(tmp); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("PDFの出力に失敗しました: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("一時ファイルのクローズに失敗しました: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return nil, fmt.Errorf("パーミッションの設定に失敗しました: %w", err)
	}

	name := ArtifactPrefix + uuid.NewString() + ArtifactExt
	path := filepath.Join(r.dir, name)
	if err := os.Rename(tmpPath, path); err != nil {
		return nil, fmt.Errorf("ファイルのリネームに失敗しました: %w", err)
	}
	return &Artifact{Name: name, Path: path}, nil
}

// IsArtifactName はファイル名がレポートの命名規則に合うかを返す。
// パス区切りや隠しファイルは拒否する。
func IsArtifactName(name string) bool {
	if name == "" || strings.ContainsAny(name, `/\`) || name != filepath.Base(name) {
		return false
	}
	if !strings.HasPrefix(name, ArtifactPrefix) || !strings.HasSuffix(name, ArtifactExt) {
		return false
	}
	id := strings.TrimSuffix(strings.TrimPrefix(name, ArtifactPrefix), ArtifactExt)
	return uuid.Validate(id) == nil
}

// PublicURL はレポートの公開URLを返す。
func PublicURL(baseURL, name string) string {
	return strings.TrimRight(baseURL, "/") + "/static/" + name
}
