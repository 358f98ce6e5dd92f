// Package sink persists flattened records: batches are encoded as
// parquet files partitioned by date, kept on local disk and optionally
// uploaded to S3. Upsert and conflict resolution belong to the
// destination store, not here.
package sink

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	appconfig "quantmuse/config"
	"quantmuse/logger"
	"quantmuse/models"
)

// QuoteRow is the parquet schema for one daily quote record.
type QuoteRow struct {
	TradeDate string  `parquet:"name=trade_date, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Code      string  `parquet:"name=code, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Open      float64 `parquet:"name=open, type=DOUBLE"`
	High      float64 `parquet:"name=high, type=DOUBLE"`
	Low       float64 `parquet:"name=low, type=DOUBLE"`
	Close     float64 `parquet:"name=close, type=DOUBLE"`
	Volume    float64 `parquet:"name=volume, type=DOUBLE"`
	Amount    float64 `parquet:"name=amount, type=DOUBLE"`
}

// Sink writes record batches. Construction validates storage settings;
// S3 upload stays disabled when not configured.
type Sink struct {
	cfg      *appconfig.Config
	s3Client *s3.Client
	localDir string
	log      *logger.Entry
}

// New builds a sink. When S3 is enabled the AWS SDK configuration is
// loaded eagerly so credential problems surface at startup, not at the
// first batch.
func New(ctx context.Context, cfg *appconfig.Config) (*Sink, error) {
	log := logger.GetLogger().WithComponent("sink")

	localDir := cfg.Storage.LocalDir
	if localDir == "" {
		localDir = "data"
	}
	if err := os.MkdirAll(localDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create local data dir: %w", err)
	}

	s := &Sink{cfg: cfg, localDir: localDir, log: log}

	if cfg.Storage.S3.Enabled {
		loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Storage.S3.Region)}
		if cfg.Storage.S3.AccessKeyID != "" && cfg.Storage.S3.SecretAccessKey != "" {
			loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(
					cfg.Storage.S3.AccessKeyID,
					cfg.Storage.S3.SecretAccessKey,
					"",
				),
			))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
		}
		s.s3Client = s3.NewFromConfig(awsCfg)
		log.WithFields(logger.Fields{
			"bucket": cfg.Storage.S3.Bucket,
			"region": cfg.Storage.S3.Region,
		}).Info("sink S3 upload enabled")
	}

	return s, nil
}

// WriteQuotes persists one batch of flattened quote records and returns
// the local file path. An empty batch is a no-op.
func (s *Sink) WriteQuotes(ctx context.Context, records []models.Record) (string, error) {
	rows := toQuoteRows(records)
	if len(rows) == 0 {
		return "", nil
	}

	name := fmt.Sprintf("daily_quotes_%s_%s.parquet",
		time.Now().UTC().Format("2006-01-02_15"), uuid.NewString()[:8])
	path := filepath.Join(s.localDir, name)

	if err := s.writeParquet(path, rows); err != nil {
		return "", err
	}

	if s.s3Client != nil {
		if err := s.upload(ctx, path, name); err != nil {
			// The local file survives, so a failed upload loses nothing.
			s.log.WithError(err).Warn("failed to upload batch to S3")
		}
	}

	logger.IncrementSinkWrite(len(rows))
	s.log.WithFields(logger.Fields{"path": path, "rows": len(rows)}).Info("batch written")
	return path, nil
}

func (s *Sink) writeParquet(path string, rows []QuoteRow) error {
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return fmt.Errorf("failed to create parquet file: %w", err)
	}
	pw, err := writer.NewParquetWriter(fw, new(QuoteRow), 2)
	if err != nil {
		fw.Close()
		return fmt.Errorf("failed to create parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, row := range rows {
		if err := pw.Write(row); err != nil {
			pw.WriteStop()
			fw.Close()
			return fmt.Errorf("failed to write parquet row: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		fw.Close()
		return fmt.Errorf("failed to finalize parquet file: %w", err)
	}
	return fw.Close()
}

func (s *Sink) upload(ctx context.Context, path, name string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read batch file: %w", err)
	}
	key := name
	if s.cfg.Storage.S3.Prefix != "" {
		key = s.cfg.Storage.S3.Prefix + "/" + name
	}
	_, err = s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.cfg.Storage.S3.Bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("failed to put object: %w", err)
	}
	s.log.WithFields(logger.Fields{"key": key, "bytes": len(data)}).Info("batch uploaded")
	return nil
}

// toQuoteRows converts normalized records to the parquet schema on a
// best-effort basis; rows without a code or trade date are skipped.
func toQuoteRows(records []models.Record) []QuoteRow {
	rows := make([]QuoteRow, 0, len(records))
	for _, r := range records {
		code := toString(r["code"])
		date := toString(r["trade_date"])
		if code == "" || date == "" {
			continue
		}
		rows = append(rows, QuoteRow{
			TradeDate: date,
			Code:      code,
			Open:      toFloat(r["open"]),
			High:      toFloat(r["high"]),
			Low:       toFloat(r["low"]),
			Close:     toFloat(r["close"]),
			Volume:    toFloat(r["volume"]),
			Amount:    toFloat(r["amount"]),
		})
	}
	return rows
}

func toString(v interface{}) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func toFloat(v interface{}) float64 {
	switch tv := v.(type) {
	case float64:
		return tv
	case float32:
		return float64(tv)
	case int:
		return float64(tv)
	case int64:
		return float64(tv)
	default:
		return 0
	}
}
