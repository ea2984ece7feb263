// Package timeseries stores high-frequency wearable readings in InfluxDB,
// next to the hourly roll-ups written to the FHIR store.
package timeseries

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/query"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/rs/zerolog"
)

// MeasurementWearable is the measurement every wearable reading is written to.
const MeasurementWearable = "wearable_vitals"

type Config struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// Reading is one wearable sample: a set of named numeric measures taken at
// the same instant by one device.
type Reading struct {
	PatientID string
	DeviceID  string
	Time      time.Time
	Fields    map[string]float64
}

// Sample is one stored field value read back from the store.
type Sample struct {
	Time     time.Time `json:"time"`
	Field    string    `json:"field"`
	Value    float64   `json:"value"`
	DeviceID string    `json:"device_id,omitempty"`
}

type pointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

type records interface {
	Next() bool
	Record() *query.FluxRecord
	Err() error
	Close() error
}

type queryFunc func(ctx context.Context, flux string) (records, error)

// InfluxStore writes readings through the blocking write API, so a request
// only succeeds once InfluxDB has accepted the point.
type InfluxStore struct {
	client influxdb2.Client
	writer pointWriter
	query  queryFunc
	bucket string
	logger zerolog.Logger
}

func NewInfluxStore(cfg Config, logger zerolog.Logger) (*InfluxStore, error) {
	if cfg.URL == "" || cfg.Org == "" || cfg.Bucket == "" {
		return nil, errors.New("influx url, org and bucket are required")
	}
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	queryAPI := client.QueryAPI(cfg.Org)
	return &InfluxStore{
		client: client,
		writer: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		query: func(ctx context.Context, flux string) (records, error) {
			return queryAPI.Query(ctx, flux)
		},
		bucket: cfg.Bucket,
		logger: logger.With().Str("component", "timeseries").Logger(),
	}, nil
}

// WriteReading stores r as a single point tagged with the patient and device.
func (s *InfluxStore) WriteReading(ctx context.Context, r Reading) error {
	if r.PatientID == "" {
		return errors.New("reading has no patient id")
	}
	if len(r.Fields) == 0 {
		return errors.New("reading has no measures")
	}
	fields := make(map[string]any, len(r.Fields))
	for k, v := range r.Fields {
		fields[k] = v
	}
	tags := map[string]string{"patient_id": r.PatientID}
	if r.DeviceID != "" {
		tags["device"] = r.DeviceID
	}
	at := r.Time
	if at.IsZero() {
		at = time.Now()
	}
	p := influxdb2.NewPoint(MeasurementWearable, tags, fields, at.UTC())
	if err := s.writer.WritePoint(ctx, p); err != nil {
		return fmt.Errorf("write wearable point: %w", err)
	}
	s.logger.Debug().Str("patient_id", r.PatientID).Int("fields", len(fields)).Msg("wearable point written")
	return nil
}

// Recent returns the patient's samples from the last window, oldest first.
func (s *InfluxStore) Recent(ctx context.Context, patientID string, window time.Duration) ([]Sample, error) {
	if patientID == "" {
		return nil, errors.New("patient id is required")
	}
	if window <= 0 {
		window = time.Hour
	}
	res, err := s.query(ctx, recentFlux(s.bucket, patientID, window))
	if err != nil {
		return nil, fmt.Errorf("query wearable points: %w", err)
	}
	defer res.Close()

	samples := []Sample{}
	for res.Next() {
		rec := res.Record()
		v, ok := toFloat(rec.Value())
		if !ok {
			continue
		}
		sample := Sample{Time: rec.Time(), Field: rec.Field(), Value: v}
		if d, ok := rec.ValueByKey("device").(string); ok {
			sample.DeviceID = d
		}
		samples = append(samples, sample)
	}
	if err := res.Err(); err != nil {
		return nil, fmt.Errorf("read wearable points: %w", err)
	}
	sort.SliceStable(samples, func(i, j int) bool { return samples[i].Time.Before(samples[j].Time) })
	return samples, nil
}

// Ping reports whether the InfluxDB server is ready.
func (s *InfluxStore) Ping(ctx context.Context) error {
	ok, err := s.client.Ping(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("influxdb not ready")
	}
	return nil
}

func (s *InfluxStore) Close() {
	s.client.Close()
}

func recentFlux(bucket, patientID string, window time.Duration) string {
	return fmt.Sprintf(`from(bucket: %q)
  |> range(start: -%s)
  |> filter(fn: (r) => r._measurement == %q and r.patient_id == %q)`,
		bucket, fluxDuration(window), MeasurementWearable, patientID)
}

// fluxDuration renders d in whole seconds, e.g. 3600s.
func fluxDuration(d time.Duration) string {
	secs := int64(d / time.Second)
	if secs < 1 {
		secs = 1
	}
	return fmt.Sprintf("%ds", secs)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}
