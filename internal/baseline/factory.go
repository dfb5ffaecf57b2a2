package baseline

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/afero"
)

// BuildStoreFromDSN selects a backend by DSN scheme. A bare path or file://
// DSN is the JSON file backend; memory:// is in-process; postgres:// shares
// one row in a database. An empty DSN falls back to the default cache file
// under the user's home directory.
func BuildStoreFromDSN(fs afero.Fs, dsn string) (Store, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		path, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		return NewFileStore(fs, path), nil
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return NewFileStore(fs, dsn), nil
	}
	scheme := strings.ToLower(strings.TrimSpace(parsed.Scheme))
	switch scheme {
	case "", "file":
		return NewFileStore(fs, dsnPath(parsed, dsn)), nil
	case "memory", "mem", "inmem":
		return NewMemoryStore(), nil
	case "postgres", "postgresql":
		return NewPostgresStore(dsn)
	default:
		return nil, fmt.Errorf("unsupported baseline backend scheme: %s", scheme)
	}
}

func dsnPath(parsed *url.URL, raw string) string {
	if parsed.Scheme == "" {
		return raw
	}
	path := parsed.Path
	if parsed.Host != "" {
		path = parsed.Host + path
	}
	if parsed.Opaque != "" {
		path = parsed.Opaque
	}
	if strings.TrimSpace(path) == "" {
		return raw
	}
	return path
}
