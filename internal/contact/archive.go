package contact

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/keithlinneman/clubdesk-web/internal/xerrors"
)

// S3PutAPI is the part of the s3 client the archiver uses
type S3PutAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type ArchiverOptions struct {
	Bucket string
	Prefix string
	// Client overrides the s3 client built from AWSConfig (or the default chain)
	Client    S3PutAPI
	AWSConfig *aws.Config
}

// Archiver keeps a JSON copy of every submission in S3
type Archiver struct {
	bucket string
	prefix string
	client S3PutAPI
}

func NewArchiver(ctx context.Context, opts ArchiverOptions) (*Archiver, error) {
	if opts.Bucket == "" {
		return nil, xerrors.New("archive bucket is required")
	}
	client := opts.Client
	if client == nil {
		var awsCfg aws.Config
		if opts.AWSConfig != nil {
			awsCfg = *opts.AWSConfig
		} else {
			var err error
			if awsCfg, err = config.LoadDefaultConfig(ctx); err != nil {
				return nil, xerrors.Wrap(err, "load AWS config")
			}
		}
		client = s3.NewFromConfig(awsCfg)
	}
	return &Archiver{
		bucket: opts.Bucket,
		prefix: strings.Trim(opts.Prefix, "/"),
		client: client,
	}, nil
}

func (a *Archiver) Name() string { return "s3" }

// Key is {prefix}/{yyyy}/{mm}/{dd}/{id}.json, dated by ReceivedAt in UTC
func (a *Archiver) Key(s *Submission) string {
	t := s.ReceivedAt.UTC()
	k := fmt.Sprintf("%04d/%02d/%02d/%s.json", t.Year(), int(t.Month()), t.Day(), s.ID)
	if a.prefix != "" {
		k = a.prefix + "/" + k
	}
	return k
}

func (a *Archiver) Notify(ctx context.Context, s *Submission) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return xerrors.Wrap(err, "encode submission")
	}
	key := a.Key(s)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:               aws.String(a.bucket),
		Key:                  aws.String(key),
		Body:                 bytes.NewReader(data),
		ContentLength:        aws.Int64(int64(len(data))),
		ContentType:          aws.String("application/json"),
		ServerSideEncryption: s3types.ServerSideEncryptionAes256,
	})
	if err != nil {
		return xerrors.Mark(xerrors.Wrapf(err, "put s3://%s/%s", a.bucket, key), xerrors.KindUnavailable)
	}
	return nil
}
