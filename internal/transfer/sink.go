package transfer

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/1ureka/peerdrop/internal/util"
)

const maxNameAttempts = 1000

// DiskSink saves received files into Dir without overwriting existing ones:
// "a.txt" becomes "a (1).txt", "a (2).txt" and so on.
type DiskSink struct {
	Dir string
}

// Save writes data under a sanitised version of meta.FileName.
func (d DiskSink) Save(meta Metadata, data []byte) error {
	name := sanitizeName(meta.FileName)
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	for i := 0; i < maxNameAttempts; i++ {
		candidate := name
		if i > 0 {
			candidate = fmt.Sprintf("%s (%d)%s", stem, i, ext)
		}
		path := filepath.Join(d.Dir, candidate)

		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return err
		}
		if _, err := f.Write(data); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		util.LogSuccess("saved %s (%s)", path, util.FormatFileSize(int64(len(data))))
		return nil
	}
	return fmt.Errorf("no free file name for %q in %s", name, d.Dir)
}

// sanitizeName strips any directory part a peer may have put in the name.
func sanitizeName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(filepath.FromSlash(name))
	switch name {
	case "", ".", "..", "/":
		return "download"
	}
	return name
}
