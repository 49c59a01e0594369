package snapshot

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// maxFileSize is the per-file size cutoff for snapshot capture (§4.3 step 2).
const maxFileSize = 5 * 1024 * 1024

var skipDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	".terminal-output-cache": true,
}

// enumerateFiles lists every snapshot-eligible file under root, relative to
// root, respecting .gitignore. It first tries delegating to `git ls-files`;
// if git is unavailable or the directory isn't a repo, it falls back to a
// plain walk filtered by skipDirs.
func enumerateFiles(ctx context.Context, root string) ([]string, error) {
	if paths, err := gitLsFiles(ctx, root); err == nil {
		return paths, nil
	}
	return walkFiles(root)
}

func gitLsFiles(ctx context.Context, root string) ([]string, error) {
	cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	cmd := exec.CommandContext(cctx, "git", "ls-files", "--cached", "--others", "--exclude-standard")
	cmd.Dir = root
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return nil, err
	}

	var paths []string
	for _, line := range strings.Split(out.String(), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		paths = append(paths, line)
	}
	return paths, nil
}

func walkFiles(root string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		paths = append(paths, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paths, nil
}
