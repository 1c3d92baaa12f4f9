// Package catalogfile reads catalog exports stored as JSON lines.
package catalogfile

import (
	"bufio"
	"encoding/json"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/cognicore/lexmatch/pkg/lexmatch/store"
)

// maxLine bounds one JSONL record.
const maxLine = 4 << 20

// LoadRows loads dictionary rows from a JSONL file. Malformed lines are
// logged and skipped.
func LoadRows(path string, logger *zap.Logger) ([]store.CatalogRow, error) {
	return load[store.CatalogRow](path, logger)
}

// LoadProducts loads products from a JSONL file. Malformed lines are
// logged and skipped.
func LoadProducts(path string, logger *zap.Logger) ([]store.Product, error) {
	return load[store.Product](path, logger)
}

func load[T any](path string, logger *zap.Logger) ([]T, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()

	var items []T
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLine)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		var item T
		if err := json.Unmarshal([]byte(text), &item); err != nil {
			logger.Warn("skipping malformed line",
				zap.String("path", path), zap.Int("line", line), zap.Error(err))
			continue
		}
		items = append(items, item)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}

	if len(items) == 0 {
		return nil, errors.Newf("no valid records found in %s", path)
	}
	return items, nil
}
