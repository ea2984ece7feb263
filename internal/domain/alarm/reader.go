package alarm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"github.com/vhealth/integration/internal/platform/apperr"
)

const defaultLookbackDays = 2

// Notification is one alarm raised by the monitoring pipeline.
type Notification struct {
	PatientID   string    `json:"patientId"`
	AlarmType   string    `json:"alarmType"`
	TriggeredBy Trigger   `json:"triggeredBy"`
	Timestamp   time.Time `json:"timestamp"`
	Message     string    `json:"message"`
}

// Trigger holds the readings that tripped the alarm.
type Trigger struct {
	HeartRate       int `json:"heartRate"`
	SpO2            int `json:"spo2"`
	RespiratoryRate int `json:"respiratoryRate"`
	BloodGlucose    int `json:"bloodGlucose"`
}

type Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string
	Bucket          string
	LookbackDays    int
}

// objectAPI is the subset of *s3.Client the reader calls.
type objectAPI interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// NewS3Client builds an S3 client from cfg. Static credentials are used when
// both keys are set, otherwise the default AWS credential chain applies. A
// custom endpoint switches to path-style addressing for S3-compatible stores.
func NewS3Client(ctx context.Context, cfg Config) (*s3.Client, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// Reader lists a patient's alarm notifications from the bucket, where they
// are stored as one JSON document per alarm under
// {patientId}/{yyyy}/{MM}/{dd}/.
type Reader struct {
	api      objectAPI
	bucket   string
	lookback int
	now      func() time.Time
	logger   zerolog.Logger
}

func NewReader(api objectAPI, bucket string, lookbackDays int, logger zerolog.Logger) *Reader {
	if lookbackDays <= 0 {
		lookbackDays = defaultLookbackDays
	}
	return &Reader{
		api:      api,
		bucket:   bucket,
		lookback: lookbackDays,
		now:      time.Now,
		logger:   logger.With().Str("component", "alarms").Logger(),
	}
}

// List returns the notifications of today and the previous lookback-1 days,
// newest first. Objects that cannot be read or decoded are logged and
// skipped; a failed listing fails the call.
func (r *Reader) List(ctx context.Context, patientID string) ([]Notification, error) {
	if strings.TrimSpace(patientID) == "" {
		return nil, apperr.Validation("patient_id", "patient id is required")
	}
	today := r.now().UTC()
	out := []Notification{}
	for i := 0; i < r.lookback; i++ {
		prefix := dayPrefix(patientID, today.AddDate(0, 0, -i))
		keys, err := r.listKeys(ctx, prefix)
		if err != nil {
			return nil, &apperr.RemoteCallError{Method: "ListObjectsV2", Resource: r.bucket + "/" + prefix, Err: err}
		}
		for _, key := range keys {
			notes, err := r.read(ctx, key)
			if err != nil {
				r.logger.Warn().Err(err).Str("key", key).Msg("skipping unreadable alarm object")
				continue
			}
			out = append(out, notes...)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out, nil
}

func (r *Reader) listKeys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	p := s3.NewListObjectsV2Paginator(r.api, &s3.ListObjectsV2Input{
		Bucket: aws.String(r.bucket),
		Prefix: aws.String(prefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if strings.HasSuffix(strings.ToLower(key), ".json") {
				keys = append(keys, key)
			}
		}
	}
	return keys, nil
}

func (r *Reader) read(ctx context.Context, key string) ([]Notification, error) {
	obj, err := r.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("get object: %w", err)
	}
	defer obj.Body.Close()

	body, err := io.ReadAll(obj.Body)
	if err != nil {
		return nil, fmt.Errorf("read object: %w", err)
	}
	return decode(body)
}

var brokenTimestamp = regexp.MustCompile(`"timestamp":\s*"(\d{4}-\d{2}-\d{2}T\d{2})-(\d{2})-(\d{2})Z"`)

// decode accepts a single notification or an array of them. Timestamps
// written as 2024-03-01T10-15-00Z are repaired before decoding.
func decode(body []byte) ([]Notification, error) {
	body = brokenTimestamp.ReplaceAll(body, []byte(`"timestamp":"$1:$2:$3Z"`))
	body = bytes.TrimSpace(body)
	if len(body) > 0 && body[0] == '[' {
		var list []Notification
		if err := json.Unmarshal(body, &list); err != nil {
			return nil, fmt.Errorf("decode alarm list: %w", err)
		}
		return list, nil
	}
	var n Notification
	if err := json.Unmarshal(body, &n); err != nil {
		return nil, fmt.Errorf("decode alarm: %w", err)
	}
	return []Notification{n}, nil
}

func dayPrefix(patientID string, day time.Time) string {
	return fmt.Sprintf("%s/%04d/%02d/%02d/", patientID, day.Year(), int(day.Month()), day.Day())
}
