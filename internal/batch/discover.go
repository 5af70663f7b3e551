package batch

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ResolveInputs expands explicit files, directories and glob patterns into a
// sorted, de-duplicated file list. Directories contribute their *.json files,
// descending into subdirectories when recursive is set. Paths that do not
// exist are returned as-is so loading reports them.
func ResolveInputs(inputs []string, recursive bool) ([]string, error) {
	seen := make(map[string]struct{})
	var files []string
	add := func(p string) {
		p = filepath.Clean(p)
		if _, ok := seen[p]; ok {
			return
		}
		seen[p] = struct{}{}
		files = append(files, p)
	}

	for _, in := range inputs {
		in = expandHome(strings.TrimSpace(in))
		if in == "" {
			continue
		}

		if hasGlobMeta(in) {
			matches, err := filepath.Glob(in)
			if err != nil {
				return nil, fmt.Errorf("input pattern %q: %w", in, err)
			}
			for _, m := range matches {
				if info, err := os.Stat(m); err == nil && !info.IsDir() {
					add(m)
				}
			}
			continue
		}

		info, err := os.Stat(in)
		if err != nil || !info.IsDir() {
			add(in)
			continue
		}

		found, err := jsonFiles(in, recursive)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", in, err)
		}
		for _, f := range found {
			add(f)
		}
	}

	sort.Strings(files)
	return files, nil
}

func jsonFiles(dir string, recursive bool) ([]string, error) {
	var out []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && !recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.EqualFold(filepath.Ext(d.Name()), ".json") {
			out = append(out, path)
		}
		return nil
	})
	return out, err
}

func hasGlobMeta(p string) bool {
	return strings.ContainsAny(p, "*?[")
}

func expandHome(path string) string {
	if len(path) > 1 && path[0] == '~' && path[1] == '/' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
