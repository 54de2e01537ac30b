package videoFs

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/sirupsen/logrus"

	"livewall/pkg/sharedTypes"
)

// NewS3Client builds a client from AWS_DEFAULT_REGION, AWS_ACCESS_KEY_ID and
// AWS_SECRET_ACCESS_KEY.
func NewS3Client() (s3iface.S3API, error) {
	region := os.Getenv("AWS_DEFAULT_REGION")
	accessKey := os.Getenv("AWS_ACCESS_KEY_ID")
	secretKey := os.Getenv("AWS_SECRET_ACCESS_KEY")

	if region == "" || accessKey == "" || secretKey == "" {
		return nil, errors.New("missing one or more required environment variables: AWS_DEFAULT_REGION, AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY")
	}

	sess, err := session.NewSession(&aws.Config{
		Region:      aws.String(region),
		Credentials: credentials.NewStaticCredentials(accessKey, secretKey, ""),
	})
	if err != nil {
		return nil, err
	}
	return s3.New(sess), nil
}

type remoteObject struct {
	key  string
	size int64
}

// listCollection returns the playable objects under the collection folder.
func listCollection(api s3iface.S3API, collection sharedTypes.Collection) ([]remoteObject, error) {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(collection.Bucket),
		Prefix: aws.String(collection.Folder),
	}

	var objects []remoteObject
	err := api.ListObjectsV2Pages(input, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, obj := range page.Contents {
			if obj.Key == nil || strings.HasSuffix(*obj.Key, "/") || !IsVideoFile(*obj.Key) {
				continue
			}
			objects = append(objects, remoteObject{key: *obj.Key, size: aws.Int64Value(obj.Size)})
		}
		return !lastPage
	})
	if err != nil {
		return nil, fmt.Errorf("listing s3://%s/%s: %w", collection.Bucket, collection.Folder, err)
	}
	return objects, nil
}

// DownloadSegment downloads up to count videos of a collection into dir,
// starting at startIndex (0-based). It returns the local paths and whether
// the end of the collection was reached. Files already present with the
// remote size are not downloaded again.
func DownloadSegment(api s3iface.S3API, collection sharedTypes.Collection, dir string, startIndex, count int) ([]string, bool, error) {
	entry := logrus.WithFields(logrus.Fields{
		"component":  "videoFs",
		"collection": collection.Title,
		"start":      startIndex,
		"count":      count,
	})
	if count <= 0 {
		return nil, false, nil
	}

	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return nil, false, err
	}

	objects, err := listCollection(api, collection)
	if err != nil {
		return nil, false, err
	}
	if startIndex > len(objects) {
		return nil, true, fmt.Errorf("startIndex %d > collection size %d", startIndex, len(objects))
	}

	end := min(startIndex+count, len(objects))
	reachedEnd := end >= len(objects)

	paths := make([]string, 0, end-startIndex)
	for _, obj := range objects[startIndex:end] {
		localPath := filepath.Join(dir, filepath.Base(obj.key))
		if info, err := os.Stat(localPath); err == nil && info.Size() == obj.size {
			entry.WithField("key", obj.key).Debug("Already downloaded, skipping")
			paths = append(paths, localPath)
			continue
		}

		if err := download(api, collection.Bucket, obj.key, localPath); err != nil {
			entry.WithError(err).WithField("key", obj.key).Warn("Failed to download video")
			continue
		}
		paths = append(paths, localPath)
	}

	if len(paths) == 0 && end > startIndex {
		return nil, reachedEnd, fmt.Errorf("no videos downloaded for keys %d..%d", startIndex, end)
	}

	entry.WithFields(logrus.Fields{
		"downloaded":  len(paths),
		"reached_end": reachedEnd,
	}).Info("Collection segment ready")
	return paths, reachedEnd, nil
}

// download writes the object to a temporary file and renames it into
// place so a partial download is never picked up as a video.
func download(api s3iface.S3API, bucket, key, localPath string) error {
	result, err := api.GetObject(&s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		return err
	}
	defer result.Body.Close()

	tmp := localPath + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, result.Body); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, localPath)
}
