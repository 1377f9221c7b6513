// Package fstools provides the filesystem tools: read_file, list_dir,
// write_file and fs_delete.
package fstools

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/moorebrett0/agentcore/internal/risk"
	"github.com/moorebrett0/agentcore/internal/tool"
)

const defaultLineLimit = 2000

// FS resolves tool paths. Relative paths are taken from Root, and a leading
// "~" expands to the home directory.
type FS struct {
	Root string
}

// New returns an FS rooted at root, or at the working directory when empty.
func New(root string) *FS {
	if root == "" {
		root, _ = os.Getwd()
	}
	return &FS{Root: root}
}

// Tools returns all filesystem tools.
func (f *FS) Tools() []*tool.Tool {
	return []*tool.Tool{f.readFile(), f.listDir(), f.writeFile(), f.delete()}
}

// Register adds every filesystem tool to reg.
func (f *FS) Register(reg *tool.Registry) error {
	for _, t := range f.Tools() {
		if err := reg.Register(t); err != nil {
			return err
		}
	}
	return nil
}

// Resolve maps a tool path argument to the absolute path it touches.
func (f *FS) Resolve(p string) (string, error) {
	if p == "" {
		return "", errors.New("path is required")
	}
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolving home directory: %w", err)
		}
		p = filepath.Join(home, strings.TrimPrefix(p, "~"))
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(f.Root, p)
	}
	return filepath.Clean(p), nil
}

func stringArg(in map[string]any, key string) string {
	s, _ := in[key].(string)
	return s
}

func intArg(in map[string]any, key string) int {
	switch v := in[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	}
	return 0
}

func boolArg(in map[string]any, key string) bool {
	b, _ := in[key].(bool)
	return b
}

func (f *FS) readFile() *tool.Tool {
	return &tool.Tool{
		Name:        "read_file",
		Category:    tool.CategoryFilesystem,
		Description: "Read a text file. Returns line-numbered content.",
		Parameters: tool.Object(map[string]*tool.Schema{
			"path":   {Type: tool.TypeString, Description: "Path of the file to read"},
			"offset": {Type: tool.TypeInteger, Description: "1-based line number to start from"},
			"limit":  {Type: tool.TypeInteger, Description: "Maximum number of lines. Default: 2000."},
		}, "path"),
		Risk: risk.Safe,
		Execute: func(ctx context.Context, in map[string]any) (string, error) {
			p, err := f.Resolve(stringArg(in, "path"))
			if err != nil {
				return "", err
			}
			return readLines(ctx, p, intArg(in, "offset"), intArg(in, "limit"))
		},
	}
}

func readLines(ctx context.Context, path string, offset, limit int) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	if offset < 1 {
		offset = 1
	}
	if limit <= 0 {
		limit = defaultLineLimit
	}

	var b strings.Builder
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64<<10), 4<<20)
	line, shown := 0, 0
	for scanner.Scan() {
		line++
		if line < offset {
			continue
		}
		if shown == limit {
			fmt.Fprintf(&b, "... (more lines after %d)\n", line-1)
			break
		}
		if ctx.Err() != nil {
			return b.String(), ctx.Err()
		}
		fmt.Fprintf(&b, "%d | %s\n", line, scanner.Text())
		shown++
	}
	if err := scanner.Err(); err != nil {
		return b.String(), fmt.Errorf("reading %s: %w", path, err)
	}
	if shown == 0 {
		return fmt.Sprintf("(no lines at or after line %d; file has %d lines)", offset, line), nil
	}
	return b.String(), nil
}

func (f *FS) listDir() *tool.Tool {
	return &tool.Tool{
		Name:        "list_dir",
		Category:    tool.CategoryFilesystem,
		Description: "List the entries of a directory with their sizes.",
		Parameters: tool.Object(map[string]*tool.Schema{
			"path":   {Type: tool.TypeString, Description: "Directory to list"},
			"hidden": {Type: tool.TypeBoolean, Description: "Include dot files"},
		}, "path"),
		Risk: risk.Safe,
		Execute: func(_ context.Context, in map[string]any) (string, error) {
			p, err := f.Resolve(stringArg(in, "path"))
			if err != nil {
				return "", err
			}
			entries, err := os.ReadDir(p)
			if err != nil {
				return "", err
			}
			hidden := boolArg(in, "hidden")

			sort.Slice(entries, func(i, j int) bool {
				if entries[i].IsDir() != entries[j].IsDir() {
					return entries[i].IsDir()
				}
				return entries[i].Name() < entries[j].Name()
			})
			var b strings.Builder
			for _, e := range entries {
				if !hidden && strings.HasPrefix(e.Name(), ".") {
					continue
				}
				if e.IsDir() {
					fmt.Fprintf(&b, "%s/\n", e.Name())
					continue
				}
				var size int64
				if info, err := e.Info(); err == nil {
					size = info.Size()
				}
				fmt.Fprintf(&b, "%s\t%d\n", e.Name(), size)
			}
			if b.Len() == 0 {
				return "(empty directory)", nil
			}
			return b.String(), nil
		},
	}
}

func (f *FS) writeFile() *tool.Tool {
	return &tool.Tool{
		Name:        "write_file",
		Category:    tool.CategoryFilesystem,
		Description: "Write content to a file, creating parent directories if needed.",
		Parameters: tool.Object(map[string]*tool.Schema{
			"path":    {Type: tool.TypeString, Description: "Path to write to"},
			"content": {Type: tool.TypeString, Description: "The full file content"},
			"append":  {Type: tool.TypeBoolean, Description: "Append instead of replacing"},
		}, "path", "content"),
		Risk: risk.Sensitive,
		Execute: func(_ context.Context, in map[string]any) (string, error) {
			p, err := f.Resolve(stringArg(in, "path"))
			if err != nil {
				return "", err
			}
			content, ok := in["content"].(string)
			if !ok {
				return "", errors.New("content is required")
			}
			if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
				return "", fmt.Errorf("creating parent directory: %w", err)
			}
			flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
			if boolArg(in, "append") {
				flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
			}
			file, err := os.OpenFile(p, flags, 0o644)
			if err != nil {
				return "", err
			}
			if _, err := file.WriteString(content); err != nil {
				file.Close()
				return "", err
			}
			if err := file.Close(); err != nil {
				return "", err
			}
			return fmt.Sprintf("Wrote %d bytes to %s", len(content), p), nil
		},
	}
}

func (f *FS) delete() *tool.Tool {
	return &tool.Tool{
		Name:        "fs_delete",
		Category:    tool.CategoryFilesystem,
		Description: "Delete a file, or a directory when recursive is set. This cannot be undone.",
		Parameters: tool.Object(map[string]*tool.Schema{
			"path":      {Type: tool.TypeString, Description: "Path to delete"},
			"recursive": {Type: tool.TypeBoolean, Description: "Delete a directory and everything under it"},
		}, "path"),
		Risk: risk.Dangerous,
		Execute: func(_ context.Context, in map[string]any) (string, error) {
			p, err := f.Resolve(stringArg(in, "path"))
			if err != nil {
				return "", err
			}
			if p == string(filepath.Separator) {
				return "", errors.New("refusing to delete the filesystem root")
			}
			info, err := os.Lstat(p)
			if err != nil {
				return "", err
			}
			if info.IsDir() {
				if !boolArg(in, "recursive") {
					if err := os.Remove(p); err != nil {
						return "", fmt.Errorf("%w (set recursive to delete a non-empty directory)", err)
					}
					return "Deleted directory " + p, nil
				}
				if err := os.RemoveAll(p); err != nil {
					return "", err
				}
				return "Deleted directory tree " + p, nil
			}
			if err := os.Remove(p); err != nil {
				return "", err
			}
			return "Deleted " + p, nil
		},
	}
}
