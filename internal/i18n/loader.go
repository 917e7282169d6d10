package i18n

import (
	"context"
	"errors"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/keithlinneman/clubdesk-web/internal/cryptoutil"
	"github.com/keithlinneman/clubdesk-web/internal/log"
	"github.com/keithlinneman/clubdesk-web/internal/xerrors"
)

// DefaultMaxBundleBytes caps an overlay download
const DefaultMaxBundleBytes int64 = 2 << 20

var sha256Hex = regexp.MustCompile(`^[0-9a-f]{64}$`)

// SSMAPI is the part of the ssm client the loader uses
type SSMAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// S3GetAPI is the part of the s3 client the loader uses
type S3GetAPI interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

type LoaderOptions struct {
	Logger log.Logger

	// SSM parameter holding the sha256 of the current overlay bundle
	SSMParam string

	// bundles live at s3://{S3Bucket}/{S3Prefix}/{sha256}.json
	S3Bucket string
	S3Prefix string

	MaxBundleBytes int64

	// AWSConfig is used when the clients below are nil, default chain if also nil
	AWSConfig *aws.Config
	SSMClient SSMAPI
	S3Client  S3GetAPI
}

// Bundle is a verified overlay, not yet merged or validated
type Bundle struct {
	Hash     string
	Messages Messages
}

type Loader struct {
	opts   LoaderOptions
	ssm    SSMAPI
	s3     S3GetAPI
	logger log.Logger
}

func NewLoader(ctx context.Context, opts LoaderOptions) (*Loader, error) {
	if opts.SSMParam == "" {
		return nil, xerrors.New("SSMParam is required")
	}
	if opts.S3Bucket == "" {
		return nil, xerrors.New("S3Bucket is required")
	}
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	if opts.MaxBundleBytes <= 0 {
		opts.MaxBundleBytes = DefaultMaxBundleBytes
	}
	opts.S3Prefix = strings.Trim(opts.S3Prefix, "/")

	if opts.SSMClient == nil || opts.S3Client == nil {
		var awsCfg aws.Config
		if opts.AWSConfig != nil {
			awsCfg = *opts.AWSConfig
		} else {
			var err error
			awsCfg, err = config.LoadDefaultConfig(ctx)
			if err != nil {
				return nil, xerrors.Wrap(err, "load AWS config")
			}
		}
		if opts.SSMClient == nil {
			opts.SSMClient = ssm.NewFromConfig(awsCfg)
		}
		if opts.S3Client == nil {
			opts.S3Client = s3.NewFromConfig(awsCfg)
		}
	}

	return &Loader{
		opts:   opts,
		ssm:    opts.SSMClient,
		s3:     opts.S3Client,
		logger: opts.Logger,
	}, nil
}

// FetchCurrentHash reads the overlay hash from SSM
func (l *Loader) FetchCurrentHash(ctx context.Context) (string, error) {
	out, err := l.ssm.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(l.opts.SSMParam),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", xerrors.Mark(xerrors.Wrapf(err, "get SSM parameter %s", l.opts.SSMParam), xerrors.KindUnavailable)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return "", xerrors.Mark(xerrors.Newf("SSM parameter %s has no value", l.opts.SSMParam), xerrors.KindNotFound)
	}

	hash := strings.ToLower(strings.TrimSpace(*out.Parameter.Value))
	if !sha256Hex.MatchString(hash) {
		return "", xerrors.Mark(xerrors.Newf("SSM parameter %s is not a sha256 hex digest", l.opts.SSMParam), xerrors.KindInvalid)
	}
	return hash, nil
}

func (l *Loader) s3Key(hash string) string {
	if l.opts.S3Prefix != "" {
		return l.opts.S3Prefix + "/" + hash + ".json"
	}
	return hash + ".json"
}

// LoadHash downloads the bundle for hash, checks its digest and parses it
func (l *Loader) LoadHash(ctx context.Context, hash string) (*Bundle, error) {
	key := l.s3Key(hash)
	start := time.Now()

	out, err := l.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(l.opts.S3Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, xerrors.Mark(xerrors.Wrapf(err, "get S3 object s3://%s/%s", l.opts.S3Bucket, key), xerrors.KindUnavailable)
	}
	defer out.Body.Close()

	data, actual, err := readWithHash(out.Body, l.opts.MaxBundleBytes)
	if err != nil {
		return nil, xerrors.Wrapf(err, "read s3://%s/%s", l.opts.S3Bucket, key)
	}

	if !cryptoutil.HashEqual(actual, hash) {
		return nil, xerrors.Mark(xerrors.Newf("checksum mismatch: expected %s, got %s", hash, actual), xerrors.KindInvalid)
	}

	msgs, err := ParseBundle(data)
	if err != nil {
		return nil, xerrors.Wrapf(err, "parse bundle %s", truncHash(hash))
	}

	l.logger.Info(ctx, "loaded message bundle",
		"bucket", l.opts.S3Bucket,
		"key", key,
		"bytes", len(data),
		"locales", len(msgs),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return &Bundle{Hash: hash, Messages: msgs}, nil
}

// readWithHash reads at most maxSize bytes from r, hashing as it goes
func readWithHash(r io.Reader, maxSize int64) ([]byte, string, error) {
	data, sum, err := cryptoutil.ReadSHA256(r, maxSize)
	switch {
	case errors.Is(err, cryptoutil.ErrTooLarge):
		return nil, "", xerrors.Mark(xerrors.Newf("bundle exceeds %d bytes", maxSize), xerrors.KindInvalid)
	case err != nil:
		return nil, "", xerrors.Mark(xerrors.WithStack(err), xerrors.KindUnavailable)
	}
	return data, sum, nil
}

func truncHash(h string) string { return cryptoutil.Short(h) }
