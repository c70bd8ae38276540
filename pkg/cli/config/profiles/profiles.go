package profiles

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"
	"gocloud.dev/blob/s3blob"
	yaml "gopkg.in/yaml.v3"
)

var ErrProfileStoreNotFound = errors.New("profile store is not found")
var ErrCannotCreateConfig = errors.New("cannot create profile store")
var ErrCannotUpdateConfig = errors.New("cannot update profile store")
var ErrProfileInvalid = errors.New("profile is invalid")

// EnvProfileStore names the environment variable overriding the profile store location.
const EnvProfileStore = "SAVETHAT_PROFILE_STORE"

// DefaultRegion is used for S3 compatible remotes without region.
const DefaultRegion = "us-east-1"

// ProfileStore is a map from project name to Profile.
type ProfileStore map[string]*Profile

// Profile tells where runs of a project are stored.
type Profile struct {
	// directory holding run directories.
	LocalPath string `yaml:"localPath"`

	// When true, runs are kept only in LocalPath.
	SkipSyncing bool `yaml:"skipSyncing,omitempty"`

	Remote *Remote `yaml:"remote,omitempty"`

	// free-form settings passed to nodes.
	Env map[string]string `yaml:"env,omitempty"`
}

// Remote is an object storage mirroring LocalPath.
//
// Either URL or Bucket should be set.
type Remote struct {
	// bucket URL for gocloud.dev/blob, like "s3://bucket?region=...", "file:///path" or "mem://".
	URL string `yaml:"url,omitempty"`

	// S3 compatible bucket (AWS S3, Backblaze B2, MinIO...).
	Bucket    string `yaml:"bucket,omitempty"`
	Endpoint  string `yaml:"endpoint,omitempty"`
	Region    string `yaml:"region,omitempty"`
	KeyId     string `yaml:"keyId,omitempty"`
	Key       string `yaml:"key,omitempty"`
	PathStyle bool   `yaml:"pathStyle,omitempty"`

	// path in the bucket where runs are put.
	Prefix string `yaml:"prefix,omitempty"`
}

// NoSyncing returns a Profile storing runs only in localPath.
func NoSyncing(localPath string) *Profile {
	return &Profile{LocalPath: localPath, SkipSyncing: true}
}

// Default returns the profile for projects without one:
// runs are kept in "data_storage" next to projectDir, without syncing.
func Default(projectDir string) *Profile {
	return NoSyncing(filepath.Join(filepath.Dir(filepath.Clean(projectDir)), "data_storage"))
}

// Verify Profile
//
// # Return
//
// nil if it is valid. Otherwise, ErrProfileInvalid error.
func (p *Profile) Verify() error {
	if p.LocalPath == "" {
		return fmt.Errorf("%w: localPath is empty", ErrProfileInvalid)
	}
	if p.SkipSyncing {
		return nil
	}
	if p.Remote == nil {
		return fmt.Errorf("%w: remote is not set. Set skipSyncing to keep runs only locally", ErrProfileInvalid)
	}
	r := p.Remote
	switch {
	case r.URL != "" && r.Bucket != "":
		return fmt.Errorf("%w: remote.url and remote.bucket are exclusive", ErrProfileInvalid)
	case r.URL != "":
		if u, err := url.Parse(r.URL); err != nil || u.Scheme == "" {
			return fmt.Errorf("%w: remote.url is not URL: %s", ErrProfileInvalid, r.URL)
		}
	case r.Bucket != "":
		if r.Endpoint != "" {
			if u, err := url.Parse(r.Endpoint); err != nil || !u.IsAbs() {
				return fmt.Errorf("%w: remote.endpoint is not URL: %s", ErrProfileInvalid, r.Endpoint)
			}
		}
		if (r.KeyId == "") != (r.Key == "") {
			return fmt.Errorf("%w: remote.keyId and remote.key should be set together", ErrProfileInvalid)
		}
	default:
		return fmt.Errorf("%w: remote needs url or bucket", ErrProfileInvalid)
	}
	return nil
}

// OpenRemote opens the bucket of the remote, scoped to its prefix.
//
// For profiles without syncing, it returns (nil, nil).
func (p *Profile) OpenRemote(ctx context.Context) (*blob.Bucket, error) {
	if p.SkipSyncing || p.Remote == nil {
		return nil, nil
	}
	r := p.Remote

	var bucket *blob.Bucket
	if r.URL != "" {
		b, err := blob.OpenBucket(ctx, r.URL)
		if err != nil {
			return nil, fmt.Errorf("opening remote %s: %w", r.URL, err)
		}
		bucket = b
	} else {
		b, err := s3blob.OpenBucketV2(ctx, r.s3Client(), r.Bucket, nil)
		if err != nil {
			return nil, fmt.Errorf("opening bucket %s: %w", r.Bucket, err)
		}
		bucket = b
	}

	prefix := strings.Trim(r.Prefix, "/")
	if prefix == "" {
		return bucket, nil
	}
	return blob.PrefixedBucket(bucket, prefix+"/"), nil
}

func (r *Remote) s3Client() *s3.Client {
	region := r.Region
	if region == "" {
		region = DefaultRegion
	}
	opts := s3.Options{
		Region:       region,
		UsePathStyle: r.PathStyle,
	}
	if r.Endpoint != "" {
		opts.BaseEndpoint = aws.String(r.Endpoint)
	}
	if r.KeyId != "" {
		opts.Credentials = aws.NewCredentialsCache(
			credentials.NewStaticCredentialsProvider(r.KeyId, r.Key, ""),
		)
	}
	return s3.New(opts)
}

// DefaultStorePath returns $SAVETHAT_PROFILE_STORE, or ~/.savethat/profile when it is empty.
func DefaultStorePath() string {
	if p := os.Getenv(EnvProfileStore); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = ""
	}
	return filepath.Join(home, ".savethat", "profile")
}

// LoadProfileStore loads profile store from file.
func LoadProfileStore(filepath string) (ProfileStore, error) {
	buf, err := os.ReadFile(filepath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w at %s", ErrProfileStoreNotFound, filepath)
		}
		return nil, err
	}
	return Unmarshall(buf)
}

// Unmarshall profile store from yaml in byte array.
func Unmarshall(buf []byte) (ProfileStore, error) {
	ret := map[string]*Profile{}
	if err := yaml.Unmarshal(buf, &ret); err != nil {
		return nil, err
	}
	return ret, nil
}

// Save profile store to file.
//
// The file is readable only by the current user, since profiles may hold credentials.
// The previous content is kept in "<path>.backup" until the new one is written.
func (ps ProfileStore) Save(path string) error {
	saving := false

	if err := os.MkdirAll(filepath.Dir(path), os.FileMode(0700)); err != nil {
		return err
	}

	bkpath := path + ".backup"
	bk, err := newSafeFile(bkpath)
	if err != nil {
		return err
	}
	defer func() {
		if !saving {
			os.Remove(bkpath)
		}
	}()
	defer bk.Close()

	f, err := os.OpenFile(path, os.O_RDWR, os.FileMode(0600))
	if err == nil {
		if err := os.Chmod(path, os.FileMode(0600)); err != nil {
			f.Close()
			return err
		}
	} else if os.IsPermission(err) {
		return fmt.Errorf(
			"%w, because no permission to write file at %s",
			ErrCannotUpdateConfig, path,
		)
	} else if os.IsNotExist(err) {
		f_, err_ := newSafeFile(path)
		if err_ != nil {
			return fmt.Errorf("%w: cannot create a file at %s", ErrCannotCreateConfig, path)
		}
		f = f_
	} else {
		return err
	}
	defer f.Close()

	if _, err := io.Copy(bk, f); err != nil {
		return err
	}

	saving = true
	if _, err := f.Seek(0, 0); err != nil {
		return err
	}
	if err := f.Truncate(0); err != nil {
		return err
	}
	buf, err := yaml.Marshal(ps)
	if err != nil {
		return err
	}
	if _, err := f.Write(buf); err != nil {
		return err
	}
	saving = false
	return nil
}

// newSafeFile creates a new empty file which is accessible only by the current user.
//
// If the file already exists, it will be truncated.
func newSafeFile(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_TRUNC|os.O_CREATE|os.O_RDWR, os.FileMode(0600))
	if err != nil {
		return nil, err
	}
	if err := os.Chmod(path, os.FileMode(0600)); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}
