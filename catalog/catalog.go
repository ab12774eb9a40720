// Package catalog queries a Sentinel-2 scene-metadata archive held in
// Postgres and caches query responses in memcache. Records carry enough
// identity and footprint information for batch indexing; pixel access
// stays with the geotiff package.
package catalog

import (
	"context"
	"crypto/md5"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/nci/gomemcache/memcache"
	"go.uber.org/zap"

	"github.com/geostack/geostack/raster"
)

const logTag = "<catalog> "

var (
	// ErrInvalidQuery marks a query that cannot be sent to the archive.
	ErrInvalidQuery = errors.New("catalog: invalid query")
	// ErrQueryFailed marks an archive round-trip that did not complete.
	ErrQueryFailed = errors.New("catalog: query failed")
)

// SceneRecord is one row of the scene-metadata archive. The bounding box
// is stored in the archive's CRS; Path locates the stacked GeoTIFF.
type SceneRecord struct {
	ProductURI  string        `json:"product_uri"`
	Platform    string        `json:"platform"`
	SensingTime time.Time     `json:"sensing_time"`
	EPSG        int           `json:"epsg"`
	CloudCover  float64       `json:"cloud_cover"`
	BBox        raster.Bounds `json:"bbox"`
	Path        string        `json:"path"`
}

// Query selects scenes by half-open acquisition window [Start, End).
// Platform, ProcessingLevel, MaxCloudCover and AOI are optional; zero
// values leave the respective clause out. The AOI is interpreted in the
// archive's storage CRS.
type Query struct {
	Start           time.Time
	End             time.Time
	Platform        string
	ProcessingLevel string
	MaxCloudCover   float64
	AOI             *raster.Bounds
}

func (q Query) validate() error {
	if q.Start.IsZero() || q.End.IsZero() {
		return fmt.Errorf("%w: acquisition window required", ErrInvalidQuery)
	}
	if !q.End.After(q.Start) {
		return fmt.Errorf("%w: window end %s not after start %s",
			ErrInvalidQuery, q.End.Format(time.RFC3339), q.Start.Format(time.RFC3339))
	}
	if q.MaxCloudCover < 0 || q.MaxCloudCover > 100 {
		return fmt.Errorf("%w: cloud cover ceiling %g outside [0,100]", ErrInvalidQuery, q.MaxCloudCover)
	}
	return nil
}

// cacheKey is a canonical URI-shaped rendering of the query; its md5 is
// the memcache key.
func (q Query) cacheKey() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "scenes?start=%s&end=%s",
		q.Start.UTC().Format(time.RFC3339Nano), q.End.UTC().Format(time.RFC3339Nano))
	fmt.Fprintf(&sb, "&platform=%s&level=%s", q.Platform, q.ProcessingLevel)
	if q.MaxCloudCover > 0 {
		fmt.Fprintf(&sb, "&cloud=%g", q.MaxCloudCover)
	}
	if q.AOI != nil {
		fmt.Fprintf(&sb, "&aoi=%g,%g,%g,%g", q.AOI.XMin, q.AOI.YMin, q.AOI.XMax, q.AOI.YMax)
	}
	return sb.String()
}

// Config connects a Client. MaxIdle and MaxOpen default to 8 and 64.
// An empty MemcacheURI runs the client without a cache layer.
type Config struct {
	DSN         string
	MaxIdle     int
	MaxOpen     int
	MemcacheURI string
	Logger      *zap.Logger
}

// Client runs scene-metadata queries. The memcache layer is optional and
// purely an accelerator: every cache miss or cache failure falls through
// to Postgres.
type Client struct {
	db  *sql.DB
	mc  *memcache.Client
	log *zap.Logger
}

// Open connects to the archive and, when configured, the memcache host.
func Open(cfg Config) (*Client, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("%w: open archive: %v", ErrQueryFailed, err)
	}
	if cfg.MaxIdle == 0 {
		cfg.MaxIdle = 8
	}
	if cfg.MaxOpen == 0 {
		cfg.MaxOpen = 64
	}
	db.SetMaxIdleConns(cfg.MaxIdle)
	db.SetMaxOpenConns(cfg.MaxOpen)

	var mc *memcache.Client
	if cfg.MemcacheURI != "" {
		// lazy connection; errors surface in Get
		mc = memcache.New(cfg.MemcacheURI)
	}
	return NewClient(db, mc, cfg.Logger), nil
}

// NewClient wraps an existing database handle. mc and logger may be nil.
func NewClient(db *sql.DB, mc *memcache.Client, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{db: db, mc: mc, log: logger}
}

// Close releases the database pool.
func (c *Client) Close() error {
	return c.db.Close()
}

// The nullif() noise coerces Go's empty-string zero values for absent
// parameters into proper null arguments, so optional clauses drop out
// without building SQL by string interpolation. Every cast sits inside a
// nullif so a disabled clause never casts ''.
const sceneQuery = `
select product_uri, platform, sensing_time, epsg, cloud_cover,
       xmin, ymin, xmax, ymax, path
  from scenes
 where sensing_time >= $1
   and sensing_time < $2
   and (nullif($3,'') is null or platform = $3)
   and (nullif($4,'') is null or processing_level = $4)
   and (nullif($5,'')::numeric is null or cloud_cover <= nullif($5,'')::numeric)
   and (nullif($6,'') is null or
        (xmin < nullif($8,'')::numeric and nullif($6,'')::numeric < xmax and
         ymin < nullif($9,'')::numeric and nullif($7,'')::numeric < ymax))
 order by sensing_time, product_uri`

// Scenes returns the archive rows matching the query in acquisition
// order. Responses are cached under the md5 of the canonical query when
// a memcache layer is configured.
func (c *Client) Scenes(ctx context.Context, q Query) ([]SceneRecord, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}

	var hash string
	if c.mc != nil {
		buff := md5.Sum([]byte(q.cacheKey()))
		hash = hex.EncodeToString(buff[:])
		if cached, err := c.mc.Get(hash); err == nil {
			var recs []SceneRecord
			if err := json.Unmarshal(cached.Value, &recs); err == nil {
				return recs, nil
			}
		}
	}

	cloud := ""
	if q.MaxCloudCover > 0 {
		cloud = strconv.FormatFloat(q.MaxCloudCover, 'f', -1, 64)
	}
	var aoiXMin, aoiYMin, aoiXMax, aoiYMax string
	if q.AOI != nil {
		aoiXMin = strconv.FormatFloat(q.AOI.XMin, 'f', -1, 64)
		aoiYMin = strconv.FormatFloat(q.AOI.YMin, 'f', -1, 64)
		aoiXMax = strconv.FormatFloat(q.AOI.XMax, 'f', -1, 64)
		aoiYMax = strconv.FormatFloat(q.AOI.YMax, 'f', -1, 64)
	}

	rows, err := c.db.QueryContext(ctx, sceneQuery,
		q.Start, q.End, q.Platform, q.ProcessingLevel, cloud,
		aoiXMin, aoiYMin, aoiXMax, aoiYMax)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQueryFailed, err)
	}
	defer rows.Close()

	var recs []SceneRecord
	for rows.Next() {
		var r SceneRecord
		err := rows.Scan(&r.ProductURI, &r.Platform, &r.SensingTime, &r.EPSG, &r.CloudCover,
			&r.BBox.XMin, &r.BBox.YMin, &r.BBox.XMax, &r.BBox.YMax, &r.Path)
		if err != nil {
			return nil, fmt.Errorf("%w: scan: %v", ErrQueryFailed, err)
		}
		recs = append(recs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQueryFailed, err)
	}

	if c.mc != nil {
		if buf, err := json.Marshal(recs); err == nil {
			// don't care about errors; memcache may not retain this anyway
			c.mc.Set(&memcache.Item{Key: hash, Value: buf})
		}
	}

	c.log.Info(logTag+"scenes queried",
		zap.Int("count", len(recs)),
		zap.Time("start", q.Start), zap.Time("end", q.End))
	return recs, nil
}

// EPSGCodes lists the CRS code of every record in order, ready for
// majority reconciliation.
func EPSGCodes(recs []SceneRecord) []int {
	codes := make([]int, len(recs))
	for i, r := range recs {
		codes[i] = r.EPSG
	}
	return codes
}
