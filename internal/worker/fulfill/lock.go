package fulfill

import (
	"fmt"
	"os"
	"strconv"
)

// Lock は取り込みジョブの多重起動を防ぐプロセスロック。
// O_EXCLによるロックファイル作成で排他する。ファイルには取得した
// プロセスのPIDが書き込まれ、残留時の調査に使える。
type Lock struct {
	path string
}

// AcquireLock は指定パスにロックファイルを作成する。
// 既にロックが存在する場合はエラーを返す。
func AcquireLock(path string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil, fmt.Errorf("lock file %s already exists: another run may be in progress", path)
		}
		return nil, fmt.Errorf("failed to create lock file %s: %w", path, err)
	}

	_, writeErr := f.WriteString(strconv.Itoa(os.Getpid()))
	closeErr := f.Close()
	if writeErr != nil || closeErr != nil {
		os.Remove(path)
		return nil, fmt.Errorf("failed to write lock file %s", path)
	}

	return &Lock{path: path}, nil
}

// Release はロックファイルを削除する。
func (l *Lock) Release() error {
	if err := os.Remove(l.path); err != nil {
		return fmt.Errorf("failed to remove lock file %s: %w", l.path, err)
	}
	return nil
}
