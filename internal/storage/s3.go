package storage

import (
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	awscreds "github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	log "github.com/sirupsen/logrus"

	"github.com/spectravue/emit-unmix/internal/cache"
	"github.com/spectravue/emit-unmix/internal/emit"
)

// Store resolves granule references to local files. Every implementation
// exposes the reference's source path so granule IDs can be parsed uniformly,
// whatever the backing transport.
type Store interface {
	// SourcePath is the canonical path of the reference, used for granule ID
	// parsing.
	SourcePath(ref string) string
	// Fetch makes the referenced file available locally and returns its path.
	// A fetch failure is fatal for the granule being processed.
	Fetch(ref string) (string, error)
}

// emitRegion hosts the Earthdata cloud product buckets.
const emitRegion = "us-west-2"

// S3Store downloads s3:// references with temporary credentials and keeps
// them in the local blob cache across runs.
type S3Store struct {
	client *s3.S3
	cache  *cache.BlobCache
}

func NewS3Store(creds TemporaryCredentials) (*S3Store, error) {
	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(emitRegion),
		Credentials: awscreds.NewStaticCredentials(
			creds.AccessKeyID, creds.SecretAccessKey, creds.SessionToken),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create aws session: %w", err)
	}
	return &S3Store{
		client: s3.New(sess),
		cache:  cache.NewBlobCache("granules"),
	}, nil
}

func (s *S3Store) SourcePath(ref string) string { return ref }

func (s *S3Store) Fetch(ref string) (string, error) {
	bucket, key, err := splitS3Ref(ref)
	if err != nil {
		return "", err
	}
	if local, ok := s.cache.Path(ref); ok {
		log.Debugf("granule %s already cached at %s", ref, local)
		return local, nil
	}

	log.Infof("downloading s3://%s/%s", bucket, key)
	obj, err := s.client.GetObject(&s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", fmt.Errorf("failed to download %s: %w", ref, err)
	}
	defer obj.Body.Close()

	local, err := s.cache.Fill(ref, obj.Body)
	if err != nil {
		return "", fmt.Errorf("failed to cache %s: %w", ref, err)
	}
	return local, nil
}

func splitS3Ref(ref string) (bucket, key string, err error) {
	trimmed, ok := strings.CutPrefix(ref, "s3://")
	if !ok {
		return "", "", fmt.Errorf("%w: %q is not an s3 reference", emit.ErrValidation, ref)
	}
	bucket, key, ok = strings.Cut(trimmed, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("%w: malformed s3 reference %q", emit.ErrValidation, ref)
	}
	return bucket, key, nil
}

// LocalStore serves references that are already files on disk.
type LocalStore struct{}

func (LocalStore) SourcePath(ref string) string { return ref }

func (LocalStore) Fetch(ref string) (string, error) { return ref, nil }

// ForRef picks a store for the reference: s3 references need a provider and
// credentials, anything else is treated as a local path.
func ForRef(ref string, provider *CredentialProvider) (Store, error) {
	if !strings.HasPrefix(ref, "s3://") {
		return LocalStore{}, nil
	}
	if provider == nil {
		return nil, fmt.Errorf("%w: s3 reference %q needs a credential provider", emit.ErrConfiguration, ref)
	}
	creds, err := provider.Fetch()
	if err != nil {
		return nil, err
	}
	return NewS3Store(creds)
}
