// Package s3blob archives batch proof bundles to an S3-compatible object
// store so anyone can audit a batch's Merkle commitment without touching the
// database. Works against standard AWS S3 as well as MinIO/R2 style
// providers via the Endpoint override.
package s3blob

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/veritaslabs/oraclesettle/internal/domain"
)

// ClientConfig holds the configuration for connecting to an S3-compatible
// object store.
type ClientConfig struct {
	// Endpoint is the S3-compatible endpoint URL. Leave empty for AWS S3.
	Endpoint string
	Region   string
	Bucket   string
	// Prefix is prepended to every object key, e.g. "proofs".
	Prefix    string
	AccessKey string
	SecretKey string
	// ForcePathStyle forces path-style addressing, required by MinIO and
	// most S3-compatible providers.
	ForcePathStyle bool
}

// Archiver uploads one JSON proof bundle per committed batch.
type Archiver struct {
	s3     *s3.Client
	bucket string
	prefix string
}

// New creates an Archiver from the given configuration.
func New(ctx context.Context, cfg ClientConfig) (*Archiver, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3blob: bucket name is required")
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("s3blob: region is required")
	}

	creds := credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(creds),
	)
	if err != nil {
		return nil, fmt.Errorf("s3blob: load aws config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		endpoint := cfg.Endpoint
		if !strings.Contains(endpoint, "://") {
			endpoint = "https://" + endpoint
		}
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
		})
	}
	if cfg.ForcePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	return &Archiver{
		s3:     s3.NewFromConfig(awsCfg, s3Opts...),
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

// Health performs a HeadBucket call to verify connectivity and permissions.
func (a *Archiver) Health(ctx context.Context) error {
	_, err := a.s3.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(a.bucket),
	})
	if err != nil {
		return fmt.Errorf("s3blob: health check failed for bucket %s: %w", a.bucket, err)
	}
	return nil
}

// proofBundle is the archived JSON document. It contains everything needed
// to recompute the Merkle root independently.
type proofBundle struct {
	BatchID    string        `json:"batch_id"`
	MerkleRoot string        `json:"merkle_root"`
	CreatedAt  time.Time     `json:"created_at"`
	Leaves     []string      `json:"leaves"`
	Members    []proofMember `json:"members"`
}

type proofMember struct {
	MarketID  string    `json:"market_id"`
	Outcome   float64   `json:"outcome"`
	DecidedAt time.Time `json:"decided_at"`
}

// ArchiveBatch uploads the proof bundle for a committed batch. Keys are
// date-partitioned: <prefix>/2026/08/31/<batch-id>.json.
func (a *Archiver) ArchiveBatch(ctx context.Context, b domain.Batch, leaves [][32]byte, members []domain.Settlement) error {
	bundle := proofBundle{
		BatchID:    b.ID.String(),
		MerkleRoot: hex.EncodeToString(b.MerkleRoot[:]),
		CreatedAt:  b.CreatedAt,
		Leaves:     make([]string, len(leaves)),
		Members:    make([]proofMember, len(members)),
	}
	for i, leaf := range leaves {
		bundle.Leaves[i] = hex.EncodeToString(leaf[:])
	}
	for i, m := range members {
		bundle.Members[i] = proofMember{
			MarketID:  m.MarketID.String(),
			Outcome:   m.Outcome,
			DecidedAt: m.DecidedAt,
		}
	}

	data, err := json.MarshalIndent(bundle, "", "  ")
	if err != nil {
		return fmt.Errorf("s3blob: marshal proof bundle %s: %w", b.ID, err)
	}

	key := fmt.Sprintf("%s/%s.json", b.CreatedAt.UTC().Format("2006/01/02"), b.ID)
	if a.prefix != "" {
		key = a.prefix + "/" + key
	}

	_, err = a.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("s3blob: put proof bundle %s: %w", key, err)
	}
	return nil
}
