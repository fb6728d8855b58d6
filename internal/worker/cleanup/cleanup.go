// Package cleanup は生成済みPDFレポートの自動削除ジョブを提供する。
// レポートはリクエストごとに一意な名前で作られるため、
// 保持期間（デフォルト24時間）を過ぎたファイルを定期的に削除する。
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hitoshi/astropulse/internal/report"
)

// CleanupJob は保持期間を超過したレポートファイルの削除ジョブ。
// 冪等: 削除対象がない場合やディレクトリが未作成の場合もエラーにならない。
type CleanupJob struct {
	dir       string
	logger    *slog.Logger
	Retention time.Duration
	now       func() time.Time
}

// NewCleanupJob は新しいCleanupJobを生成する。
func NewCleanupJob(dir string, retention time.Duration, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		dir:       dir,
		logger:    logger,
		Retention: retention,
		now:       time.Now,
	}
}

// Start は起動直後に1回、その後intervalごとにRunを実行する。
// コンテキストがキャンセルされるまで戻らない。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	if err := j.Run(ctx); err != nil {
		j.logger.Error("cleanup job failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := j.Run(ctx); err != nil {
				j.logger.Error("cleanup job failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Run は更新時刻がRetentionより古いレポートと書き込み途中で残った一時ファイルを削除する。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	entries, err := os.ReadDir(j.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		j.logger.Error("レポートディレクトリの読み取りに失敗しました",
			slog.String("error", err.Error()),
			slog.String("dir", j.dir),
		)
		return fmt.Errorf("レポートディレクトリの読み取りに失敗: %w", err)
	}

	cutoff := j.now().Add(-j.Retention)
	deleted := 0
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if e.IsDir() || !isManagedFile(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// 並行して削除された場合など
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(j.dir, e.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
			j.logger.Warn("レポートファイルの削除に失敗しました",
				slog.String("error", err.Error()),
				slog.String("name", e.Name()),
			)
			continue
		}
		deleted++
	}

	j.logger.Info("レポートクリーンアップジョブが完了しました",
		slog.Int("deleted_count", deleted),
		slog.Duration("retention", j.Retention),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

// isManagedFile はこのジョブが削除してよいファイルかを返す。
func isManagedFile(name string) bool {
	if report.IsArtifactName(name) {
		return true
	}
	return strings.HasPrefix(name, "."+report.ArtifactPrefix) && strings.HasSuffix(name, ".tmp")
}
