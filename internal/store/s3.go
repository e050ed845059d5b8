package store

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
)

// A S3 store keeps values in an S3 bucket. Credentials come from the
// session, normally the standard AWS environment variables or shared
// config.
type S3 struct {
	svc      *s3.S3
	uploader *s3manager.Uploader
	Bucket   string
	Prefix   string
}

var _ Store = &S3{}

// S3Options locate a bucket. Endpoint is only needed for S3 compatible
// services; it switches to path style addressing.
type S3Options struct {
	Bucket   string
	Prefix   string
	Region   string
	Endpoint string
}

// NewS3 creates a new S3 store. It will use the given bucket and will prepend
// prefix to all keys, so one bucket can serve more than one store.
func NewS3(bucket, prefix string, awsSession *session.Session) *S3 {
	svc := s3.New(awsSession)
	return &S3{
		svc:      svc,
		uploader: s3manager.NewUploaderWithClient(svc),
		Bucket:   bucket,
		Prefix:   prefix,
	}
}

// OpenS3 builds a session from opts and returns the store.
func OpenS3(opts S3Options) (*S3, error) {
	if opts.Bucket == "" {
		return nil, errors.New("s3 store: bucket is required")
	}
	conf := &aws.Config{}
	if opts.Region != "" {
		conf.Region = aws.String(opts.Region)
	}
	if opts.Endpoint != "" {
		conf.Endpoint = aws.String(opts.Endpoint)
		conf.S3ForcePathStyle = aws.Bool(true)
		if strings.HasPrefix(opts.Endpoint, "http://") {
			conf.DisableSSL = aws.Bool(true)
		}
	}
	sess, err := session.NewSession(conf)
	if err != nil {
		return nil, fmt.Errorf("s3 session: %w", err)
	}
	return NewS3(opts.Bucket, opts.Prefix, sess), nil
}

// Create starts an upload of key. Data written is streamed to S3 by the
// upload manager, which switches to multipart uploads for large archives.
// Close waits for the upload to finish and reports its error.
func (s *S3) Create(key string) (io.WriteCloser, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	pr, pw := io.Pipe()
	w := &s3Writer{pw: pw, done: make(chan error, 1)}
	go func() {
		_, err := s.uploader.Upload(&s3manager.UploadInput{
			Bucket: aws.String(s.Bucket),
			Key:    aws.String(s.Prefix + key),
			Body:   pr,
		})
		// Unblock a writer still waiting on the pipe.
		pr.CloseWithError(err)
		w.done <- err
	}()
	return w, nil
}

func (s *S3) Open(key string) (io.ReadCloser, error) {
	out, err := s.svc.GetObject(&s3.GetObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(s.Prefix + key),
	})
	if err != nil {
		var aerr awserr.Error
		if errors.As(err, &aerr) && aerr.Code() == s3.ErrCodeNoSuchKey {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return out.Body, nil
}

// ListPrefix returns the keys in this store that have the given prefix.
// The argument prefix is added to the store's Prefix.
func (s *S3) ListPrefix(prefix string) ([]string, error) {
	var result []string
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.Bucket),
		Prefix: aws.String(s.Prefix + prefix),
	}
	err := s.svc.ListObjectsV2Pages(input,
		func(page *s3.ListObjectsV2Output, lastpage bool) bool {
			for _, item := range page.Contents {
				result = append(result, strings.TrimPrefix(aws.StringValue(item.Key), s.Prefix))
			}
			return !lastpage
		})
	sort.Strings(result)
	return result, err
}

// Delete removes key. The store's Prefix is prepended first. It is not an
// error to delete something that doesn't exist.
func (s *S3) Delete(key string) error {
	_, err := s.svc.DeleteObject(&s3.DeleteObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(s.Prefix + key),
	})
	return err
}

type s3Writer struct {
	pw     *io.PipeWriter
	done   chan error
	closed bool
	err    error
}

func (w *s3Writer) Write(p []byte) (int, error) {
	return w.pw.Write(p)
}

func (w *s3Writer) Close() error {
	if w.closed {
		return w.err
	}
	w.closed = true
	_ = w.pw.Close()
	w.err = <-w.done
	return w.err
}

// CloseWithError aborts the upload; nothing is stored under the key.
func (w *s3Writer) CloseWithError(err error) error {
	if w.closed {
		return w.err
	}
	w.closed = true
	_ = w.pw.CloseWithError(err)
	<-w.done
	w.err = err
	return err
}
