package redis_functions

import (
	"context"
	"embed"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Functions registered by the embedded libraries.
const (
	ChatRecord = "chat_record"
)

//go:embed *.lua
var fs embed.FS

// LoadAll loads (or replaces) every embedded Lua library in Redis and
// returns the library names.
func LoadAll(ctx context.Context, rdb *redis.Client) ([]string, error) {
	files, err := fs.ReadDir(".")
	if err != nil {
		return nil, fmt.Errorf("read embed dir: %w", err)
	}
	var libs []string
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".lua") {
			continue
		}

		code, err := fs.ReadFile(f.Name())
		if err != nil {
			return nil, err
		}
		name, err := libraryName(string(code))
		if err != nil {
			return nil, fmt.Errorf("lua %s: %w", f.Name(), err)
		}
		if err := rdb.FunctionLoadReplace(ctx, string(code)).Err(); err != nil {
			return nil, fmt.Errorf("load lua %s: %w", f.Name(), err)
		}
		libs = append(libs, name)
		zap.L().Info("redis_functions.loaded", zap.String("file", f.Name()), zap.String("library", name))
	}
	return libs, nil
}

// libraryName reads the "#!lua name=<lib>" shebang Redis requires.
func libraryName(code string) (string, error) {
	first, _, _ := strings.Cut(code, "\n")
	const prefix = "#!lua name="
	if !strings.HasPrefix(first, prefix) {
		return "", fmt.Errorf("missing %q header", prefix)
	}
	name := strings.TrimSpace(strings.TrimPrefix(first, prefix))
	if name == "" {
		return "", fmt.Errorf("empty library name")
	}
	return name, nil
}
