package utils

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/kataras/golog"
)

func WriteMarkdown(filePath, fileName, content string) error {
	if err := os.MkdirAll(filePath, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", filePath, err)
	}

	filePath = filepath.Join(filePath, fileName)
	if err := os.WriteFile(filePath, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write file %s: %w", filePath, err)
	}
	golog.Debugf("written to: %s", filePath)
	return nil
}
