package recordset

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Dir is a record set backed by the document store layout: one entry per
// hash under root, named <hash><suffix>. KYC records are directories
// (suffix ""), explanations are JSON files (suffix ".json").
type Dir struct {
	root   string
	suffix string
}

func NewDir(root, suffix string) *Dir { return &Dir{root: root, suffix: suffix} }

// Exists accepts entries named with or without the 0x prefix.
func (d *Dir) Exists(_ context.Context, hash string) (bool, error) {
	h := strings.ToLower(hash)
	for _, name := range []string{h, strings.TrimPrefix(h, "0x")} {
		if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
			continue
		}
		_, err := os.Stat(filepath.Join(d.root, name+d.suffix))
		if err == nil {
			return true, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return false, err
		}
	}
	return false, nil
}
