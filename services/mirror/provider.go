// Package mirrorsvc copies the answer book files to a remote mirror and signs their URLs.
package mirrorsvc

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/markit/core"
)

const ProviderAliyunOSS = "aliyun-oss"

// Provider is a remote file storage.
type Provider interface {
	Put(ctx context.Context, remotePath, localPath string) error
	Delete(ctx context.Context, remotePath string) error
	Exists(ctx context.Context, remotePath string) (bool, error)
	// URL returns a signed, expiring download URL.
	URL(remotePath string) string
}

// NewProvider returns the configured Provider, nil when mirroring is disabled.
func NewProvider(conf *core.Config) (Provider, error) {
	switch conf.Mirror.Provider {
	case "":
		return nil, nil
	case ProviderAliyunOSS:
		return NewOSSProvider(conf.Mirror)
	default:
		return nil, errors.Errorf("invalid mirror provider: %s", conf.Mirror.Provider)
	}
}

type OSSProvider struct {
	bucket *oss.Bucket
	conf   core.MirrorConfig
	now    func() time.Time
}

var _ Provider = (*OSSProvider)(nil)

func NewOSSProvider(conf core.MirrorConfig) (*OSSProvider, error) {
	client, err := oss.New(conf.Endpoint, conf.AccessKeyID, conf.AccessKeySecret)
	if err != nil {
		return nil, errors.Wrap(err, "creating oss client")
	}
	bucket, err := client.Bucket(conf.Bucket)
	if err != nil {
		return nil, errors.Wrap(err, "getting oss bucket")
	}
	return &OSSProvider{bucket: bucket, conf: conf, now: time.Now}, nil
}

func (p *OSSProvider) Put(ctx context.Context, remotePath, localPath string) error {
	err := p.bucket.PutObjectFromFile(remotePath, localPath, oss.WithContext(ctx))
	return errors.Wrapf(err, "uploading %s", remotePath)
}

func (p *OSSProvider) Delete(ctx context.Context, remotePath string) error {
	err := p.bucket.DeleteObject(remotePath, oss.WithContext(ctx))
	return errors.Wrapf(err, "deleting %s", remotePath)
}

func (p *OSSProvider) Exists(ctx context.Context, remotePath string) (bool, error) {
	exists, err := p.bucket.IsObjectExist(remotePath, oss.WithContext(ctx))
	if err != nil {
		return false, errors.Wrapf(err, "checking %s", remotePath)
	}
	return exists, nil
}

func (p *OSSProvider) URL(remotePath string) string {
	rand := "0"
	if p.conf.Randomize {
		rand = strings.ReplaceAll(uuid.New().String(), "-", "")
	}
	return signURL(p.conf.Domain+"/"+remotePath, p.conf.Secret, expiresAt(p.now(), p.conf.Expire, p.conf.ExpireTimeUnit), rand)
}

// expiresAt returns the unix time now+expire rounded to the nearest multiple of unit.
func expiresAt(now time.Time, expire, unit time.Duration) int64 {
	exp := now.Unix() + int64(expire.Seconds())
	u := int64(unit.Seconds())
	if u <= 0 {
		return exp
	}
	return int64(math.RoundToEven(float64(exp)/float64(u))) * u
}

// signURL appends a CDN "type A" auth_key to uri:
// `auth_key=<exp>-<rand>-<uid>-md5(<path>-<exp>-<rand>-<uid>-<key>)`, uid being always "0".
func signURL(uri, key string, exp int64, rand string) string {
	if !strings.Contains(uri, "://") {
		uri = "https://" + uri
	}
	u, err := url.Parse(uri)
	if err != nil {
		return uri
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
		u.Path = path
	}

	const uid = "0"
	expStr := strconv.FormatInt(exp, 10)
	sum := md5.Sum([]byte(strings.Join([]string{path, expStr, rand, uid, key}, "-")))
	authKey := strings.Join([]string{expStr, rand, uid, hex.EncodeToString(sum[:])}, "-")

	if u.RawQuery != "" {
		u.RawQuery += "&auth_key=" + authKey
	} else {
		u.RawQuery = "auth_key=" + authKey
	}
	return u.String()
}
