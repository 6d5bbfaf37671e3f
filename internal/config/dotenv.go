package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// LoadDotenv reads dotenv files into the process environment. Variables that
// are already set win, so the real environment overrides the file. Missing
// files are skipped.
func LoadDotenv(paths ...string) error {
	for _, p := range paths {
		if strings.TrimSpace(p) == "" {
			continue
		}
		if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("env file %s: %w", p, err)
		}
	}
	return nil
}
