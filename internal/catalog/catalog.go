// Package catalog reads model metadata from the model server's SQLite stores:
// the central catalog listing every model, and the per-model history store
// recording each edit.
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	appErrors "revit-server-backup/internal/errors"
	"revit-server-backup/internal/logging"
)

const (
	listModelsQuery = `SELECT ModelPath FROM ModelStorageTable`
	lastEditQuery   = `SELECT MAX(Time) FROM ModelHistory`

	// TimestampLayout is the UTC text format of ModelHistory.Time
	TimestampLayout = "2006-01-02 15:04:05Z"

	defaultQueryTimeout = 30 * time.Second
)

// ModelStoreSubPath locates a model's history store under its directory
var ModelStoreSubPath = filepath.Join("Data", "Model.db3")

// ModelRecord pairs a model with its most recent edit
type ModelRecord struct {
	ID       string    `json:"id" yaml:"id"`
	LastEdit time.Time `json:"last_edit" yaml:"last_edit"`
}

// Opener opens a read-only handle on the SQLite store at path
type Opener func(path string) (*sql.DB, error)

// OpenReadOnly is the default Opener. It refuses to open a store that does not
// exist, so a lookup never leaves an empty database behind.
func OpenReadOnly(path string) (*sql.DB, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}

	db, err := sql.Open("sqlite3", readOnlyDSN(path))
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

// readOnlyDSN builds a SQLite URI for path. The path is percent-encoded so
// '#', '?' and '%' in folder names stay part of the file name.
func readOnlyDSN(path string) string {
	slashed := filepath.ToSlash(path)
	if !strings.HasPrefix(slashed, "/") {
		// drive-letter paths such as C:/Projects
		slashed = "/" + slashed
	}
	u := url.URL{Scheme: "file", OmitHost: true, Path: slashed, RawQuery: "mode=ro"}
	return u.String()
}

// Catalog answers which models exist and when each was last edited.
// Every call opens its own connection and closes it before returning.
type Catalog struct {
	dbLocation   string
	sourceRoot   string
	open         Opener
	logger       *logging.Logger
	queryTimeout time.Duration
}

// NewCatalog creates a catalog over the store at dbLocation, resolving model
// history stores under sourceRoot
func NewCatalog(dbLocation, sourceRoot string, logger *logging.Logger) *Catalog {
	return NewCatalogWithOpener(dbLocation, sourceRoot, logger, OpenReadOnly)
}

// NewCatalogWithOpener creates a catalog with a custom store opener
func NewCatalogWithOpener(dbLocation, sourceRoot string, logger *logging.Logger, opener Opener) *Catalog {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Catalog{
		dbLocation:   dbLocation,
		sourceRoot:   sourceRoot,
		open:         opener,
		logger:       logger,
		queryTimeout: defaultQueryTimeout,
	}
}

// ListAllModels returns the path of every model registered with the server,
// in catalog order
func (c *Catalog) ListAllModels(ctx context.Context) (models []string, err error) {
	start := time.Now()
	defer func() {
		c.logger.LogCatalogQuery(c.dbLocation, len(models), time.Since(start), err)
	}()

	db, err := c.open(c.dbLocation)
	if err != nil {
		return nil, catalogError("catalog store cannot be opened", c.dbLocation, err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(ctx, c.queryTimeout)
	defer cancel()

	rows, err := db.QueryContext(ctx, listModelsQuery)
	if err != nil {
		return nil, catalogError("failed to query model list", c.dbLocation, err)
	}
	defer rows.Close()

	for rows.Next() {
		var path sql.NullString
		if err := rows.Scan(&path); err != nil {
			return nil, catalogError("failed to scan model path", c.dbLocation, err)
		}
		if !path.Valid || strings.TrimSpace(path.String) == "" {
			continue
		}
		models = append(models, path.String)
	}
	if err := rows.Err(); err != nil {
		return nil, catalogError("failed to read model list", c.dbLocation, err)
	}

	return models, nil
}

// LastEditTime returns the UTC time of the most recent edit recorded in the
// model's history store
func (c *Catalog) LastEditTime(ctx context.Context, id string) (lastEdit time.Time, err error) {
	if strings.TrimSpace(id) == "" {
		return time.Time{}, appErrors.NewCatalogError("model identifier cannot be empty", nil)
	}

	storePath, err := ModelStorePath(c.sourceRoot, id)
	if err != nil {
		return time.Time{}, err
	}
	start := time.Now()
	defer func() {
		rows := 0
		if err == nil {
			rows = 1
		}
		c.logger.LogCatalogQuery(storePath, rows, time.Since(start), err)
	}()

	db, err := c.open(storePath)
	if err != nil {
		return time.Time{}, catalogError("model store cannot be opened", storePath, err).WithContext("model", id)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(ctx, c.queryTimeout)
	defer cancel()

	var raw sql.NullString
	if err := db.QueryRowContext(ctx, lastEditQuery).Scan(&raw); err != nil {
		return time.Time{}, catalogError("failed to query model history", storePath, err).WithContext("model", id)
	}
	if !raw.Valid {
		return time.Time{}, catalogError("model has no edit history", storePath, nil).WithContext("model", id)
	}

	lastEdit, err = ParseTimestamp(raw.String)
	if err != nil {
		return time.Time{}, appErrors.NewFormatError(
			fmt.Sprintf("unrecognised edit timestamp %q", raw.String), err).
			WithContext("store", storePath).
			WithContext("model", id)
	}

	return lastEdit, nil
}

// Records returns every listed model with its last edit time. Models whose
// history cannot be read are left out and their errors returned alongside.
func (c *Catalog) Records(ctx context.Context) ([]ModelRecord, []error) {
	models, err := c.ListAllModels(ctx)
	if err != nil {
		return nil, []error{err}
	}

	records := make([]ModelRecord, 0, len(models))
	var errs []error
	for _, id := range models {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		lastEdit, err := c.LastEditTime(ctx, id)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		records = append(records, ModelRecord{ID: id, LastEdit: lastEdit})
	}

	return records, errs
}

// ParseTimestamp parses a ModelHistory time value as UTC
func ParseTimestamp(value string) (time.Time, error) {
	t, err := time.ParseInLocation(TimestampLayout, strings.TrimSpace(value), time.UTC)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// ModelStorePath returns the history store of model id under root
func ModelStorePath(root, id string) (string, error) {
	dir, err := JoinModelPath(root, id)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ModelStoreSubPath), nil
}

// JoinModelPath joins a model identifier onto root. Identifiers are recorded
// with Windows separators, which are converted to the host's. An identifier
// that is absolute, climbs out of root or names root itself is a CatalogError.
func JoinModelPath(root, id string) (string, error) {
	normalised := filepath.Clean(filepath.FromSlash(strings.ReplaceAll(id, `\`, "/")))
	if normalised == "." || !filepath.IsLocal(normalised) {
		return "", appErrors.NewCatalogError(fmt.Sprintf("model identifier %q does not name a path below the model roots", id), nil).
			WithContext("model", id)
	}
	return filepath.Join(root, normalised), nil
}

func catalogError(message, store string, cause error) *appErrors.AppError {
	return appErrors.NewCatalogError(fmt.Sprintf("%s: %s", message, store), cause).
		WithContext("store", store)
}
