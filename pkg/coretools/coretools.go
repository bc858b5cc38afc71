// Package coretools provides the built-in filesystem tools exposed to
// the model: ls and read_file.
package coretools

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/andreytim/dreamytin-ai/pkg/toolexecutor"
)

// Register installs the core tools on an executor.
func Register(exec *toolexecutor.Executor) error {
	if err := exec.Register(lsDefinition()); err != nil {
		return err
	}
	return exec.Register(readFileDefinition())
}

func lsDefinition() toolexecutor.Definition {
	return toolexecutor.Definition{
		Name:        "ls",
		Description: "List files and directories in a specified path",
		Parameters: []toolexecutor.Parameter{
			{
				Name:        "path",
				Type:        "string",
				Description: "The directory path to list (defaults to current directory)",
				Default:     ".",
			},
			{
				Name:        "show_hidden",
				Type:        "boolean",
				Description: "Show hidden files (files starting with .)",
				Default:     false,
			},
			{
				Name:        "details",
				Type:        "boolean",
				Description: "Show detailed information (size, modified time)",
				Default:     false,
			},
		},
		Handler: lsHandler,
	}
}

func lsHandler(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	path, _ := params["path"].(string)
	if path == "" {
		path = "."
	}
	showHidden, _ := params["show_hidden"].(bool)
	details, _ := params["details"].(bool)

	target, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("error listing directory: %v", err)
	}

	info, err := os.Stat(target)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("Path does not exist: %s", path)
		}
		if os.IsPermission(err) {
			return nil, fmt.Errorf("Permission denied: %s", path)
		}
		return nil, fmt.Errorf("error listing directory: %v", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("Path is not a directory: %s", path)
	}

	entries, err := os.ReadDir(target)
	if err != nil {
		if os.IsPermission(err) {
			return nil, fmt.Errorf("Permission denied: %s", path)
		}
		return nil, fmt.Errorf("error listing directory: %v", err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	items := make([]interface{}, 0, len(entries))
	for _, entry := range entries {
		if !showHidden && strings.HasPrefix(entry.Name(), ".") {
			continue
		}

		if details {
			fi, err := entry.Info()
			if err != nil {
				continue
			}
			itemType := "file"
			var size interface{} = fi.Size()
			if entry.IsDir() {
				itemType = "directory"
				size = nil
			}
			items = append(items, map[string]interface{}{
				"name":     entry.Name(),
				"type":     itemType,
				"size":     size,
				"modified": fi.ModTime().Unix(),
			})
		} else {
			name := entry.Name()
			if entry.IsDir() {
				name += "/"
			}
			items = append(items, name)
		}
	}

	return map[string]interface{}{
		"path":  target,
		"items": items,
		"count": len(items),
	}, nil
}

func readFileDefinition() toolexecutor.Definition {
	return toolexecutor.Definition{
		Name:        "read_file",
		Description: "Read the contents of a file",
		Parameters: []toolexecutor.Parameter{
			{
				Name:        "path",
				Type:        "string",
				Description: "The file path to read",
				Required:    true,
			},
			{
				Name:        "encoding",
				Type:        "string",
				Description: "File encoding (defaults to utf-8)",
				Default:     "utf-8",
			},
			{
				Name:        "lines",
				Type:        "integer",
				Description: "Number of lines to read (reads all if not specified)",
			},
		},
		Handler: readFileHandler,
	}
}

func readFileHandler(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	path, _ := params["path"].(string)

	encoding, _ := params["encoding"].(string)
	if encoding == "" {
		encoding = "utf-8"
	}
	switch strings.ToLower(encoding) {
	case "utf-8", "utf8", "ascii":
	default:
		return nil, fmt.Errorf("Unsupported encoding: %s", encoding)
	}

	target, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("error reading file: %v", err)
	}

	info, err := os.Stat(target)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("File does not exist: %s", path)
		}
		if os.IsPermission(err) {
			return nil, fmt.Errorf("Permission denied: %s", path)
		}
		return nil, fmt.Errorf("error reading file: %v", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("Path is not a file: %s", path)
	}

	maxLines := 0
	switch v := params["lines"].(type) {
	case float64:
		maxLines = int(v)
	case int:
		maxLines = v
	}

	var content string
	truncated := false

	if maxLines > 0 {
		file, err := os.Open(target)
		if err != nil {
			if os.IsPermission(err) {
				return nil, fmt.Errorf("Permission denied: %s", path)
			}
			return nil, fmt.Errorf("error reading file: %v", err)
		}
		defer file.Close()

		var read []string
		scanner := bufio.NewScanner(file)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			if len(read) >= maxLines {
				truncated = true
				break
			}
			read = append(read, scanner.Text())
		}
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("error reading file: %v", err)
		}
		content = strings.Join(read, "\n")
	} else {
		data, err := os.ReadFile(target)
		if err != nil {
			if os.IsPermission(err) {
				return nil, fmt.Errorf("Permission denied: %s", path)
			}
			return nil, fmt.Errorf("error reading file: %v", err)
		}
		content = string(data)
	}

	if !utf8.ValidString(content) {
		return nil, fmt.Errorf("Failed to decode file with encoding '%s'. Try a different encoding.", encoding)
	}

	return map[string]interface{}{
		"path":      target,
		"content":   content,
		"size":      info.Size(),
		"truncated": truncated,
		"encoding":  encoding,
	}, nil
}
