// Package artifact は取り込み済み投稿の成果物（画像・プロンプト）を
// 決定的なパスに保存する。
package artifact

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	imagesDir  = "images"
	promptsDir = "prompts"
)

// Store は成果物ストア。baseDir配下にimages/とprompts/を持つ。
// 保存パスはタイトル由来のベース名から決定的に導出されるため、
// 同一アイテムの再処理は同じパスへの上書きになる（冪等）。
type Store struct {
	baseDir string
}

// NewStore はStoreを生成する。
func NewStore(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

// SafeBasename はタイトルからファイルシステム安全なベース名を導出する。
// 空白の連続はアンダースコア1つに置き換え、パス区切りと親参照を除去する。
// 結果が空になる場合は"untitled"を返す。
func SafeBasename(title string) string {
	// 空白の正規化
	base := strings.Join(strings.Fields(title), "_")

	// パスとして危険な並びの除去
	base = strings.ReplaceAll(base, "/", "_")
	base = strings.ReplaceAll(base, "\\", "_")
	base = strings.ReplaceAll(base, "..", "_")
	base = strings.TrimLeft(base, ".")

	// 制御文字の除去
	base = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, base)

	if base == "" {
		return "untitled"
	}
	return base
}

// SaveImage は画像バイト列をimages/<base>.pngに保存し、
// baseDirからの相対パスを返す。書き込みはアトミック置き換えで行う。
func (s *Store) SaveImage(base string, data []byte) (string, error) {
	relPath := filepath.Join(imagesDir, base+".png")
	if err := s.writeFileAtomic(relPath, data); err != nil {
		return "", err
	}
	return relPath, nil
}

// SavePrompt はプロンプトテキストをprompts/<base>.txtに保存し、
// baseDirからの相対パスを返す。
func (s *Store) SavePrompt(base string, text string) (string, error) {
	relPath := filepath.Join(promptsDir, base+".txt")
	if err := s.writeFileAtomic(relPath, []byte(text)); err != nil {
		return "", err
	}
	return relPath, nil
}

// writeFileAtomic は一時ファイル書き込み + renameで成果物を保存する。
func (s *Store) writeFileAtomic(relPath string, data []byte) error {
	fullPath := filepath.Join(s.baseDir, relPath)
	dir := filepath.Dir(fullPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(fullPath)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", tmpName, err)
	}

	if err := os.Rename(tmpName, fullPath); err != nil {
		return fmt.Errorf("failed to replace %s: %w", fullPath, err)
	}
	return nil
}
