package videoFs

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"livewall/pkg/sharedTypes"
)

type fakeS3 struct {
	s3iface.S3API
	objects map[string]string
	order   []string
	gets    []string
	failGet map[string]bool
}

func (f *fakeS3) ListObjectsV2Pages(in *s3.ListObjectsV2Input, fn func(*s3.ListObjectsV2Output, bool) bool) error {
	page := &s3.ListObjectsV2Output{}
	for _, k := range f.order {
		page.Contents = append(page.Contents, &s3.Object{Key: aws.String(k), Size: aws.Int64(int64(len(f.objects[k])))})
	}
	fn(page, true)
	return nil
}

func (f *fakeS3) GetObject(in *s3.GetObjectInput) (*s3.GetObjectOutput, error) {
	key := aws.StringValue(in.Key)
	f.gets = append(f.gets, key)
	if f.failGet[key] {
		return nil, errors.New("access denied")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewBufferString(f.objects[key]))}, nil
}

func newFakeS3() *fakeS3 {
	return &fakeS3{
		objects: map[string]string{
			"calm/":          "",
			"calm/a.mp4":     "aaaa",
			"calm/b.mkv":     "bbbbbb",
			"calm/notes.txt": "skip me",
			"calm/c.webm":    "cc",
		},
		order:   []string{"calm/", "calm/a.mp4", "calm/b.mkv", "calm/notes.txt", "calm/c.webm"},
		failGet: map[string]bool{},
	}
}

var collection = sharedTypes.Collection{Id: "1", Title: "Calm", Bucket: "walls", Folder: "calm"}

func TestAvailableVideos(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.MP4", "a.mkv", "readme.md", ".hidden.mp4", "c.mpeg"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.mp4"), 0o755))

	videos, err := AvailableVideos(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.mkv"),
		filepath.Join(dir, "b.MP4"),
		filepath.Join(dir, "c.mpeg"),
	}, videos)
}

func TestAvailableVideosMissingDir(t *testing.T) {
	_, err := AvailableVideos(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestDownloadSegmentSkipsExistingFiles(t *testing.T) {
	api := newFakeS3()
	dir := filepath.Join(t.TempDir(), "videos")

	paths, _, err := DownloadSegment(api, collection, dir, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.mp4"), filepath.Join(dir, "b.mkv")}, paths)
	assert.Equal(t, []string{"calm/a.mp4", "calm/b.mkv"}, api.gets)

	data, err := os.ReadFile(filepath.Join(dir, "b.mkv"))
	require.NoError(t, err)
	assert.Equal(t, "bbbbbb", string(data))

	// Second sync finds both files with matching sizes.
	api.gets = nil
	_, _, err = DownloadSegment(api, collection, dir, 0, 2)
	require.NoError(t, err)
	assert.Empty(t, api.gets)
}

func TestDownloadSegment(t *testing.T) {
	api := newFakeS3()
	dir := t.TempDir()

	paths, end, err := DownloadSegment(api, collection, dir, 2, 5)
	require.NoError(t, err)
	assert.True(t, end)
	assert.Equal(t, []string{filepath.Join(dir, "c.webm")}, paths)

	_, end, err = DownloadSegment(api, collection, dir, 0, 1)
	require.NoError(t, err)
	assert.False(t, end)

	_, _, err = DownloadSegment(api, collection, dir, 9, 1)
	assert.Error(t, err)
}

func TestDownloadSegmentSkipsFailedObjects(t *testing.T) {
	api := newFakeS3()
	api.failGet["calm/a.mp4"] = true
	dir := t.TempDir()

	paths, _, err := DownloadSegment(api, collection, dir, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "b.mkv")}, paths)
	assert.NoFileExists(t, filepath.Join(dir, "a.mp4.part"))

	api.failGet["calm/b.mkv"] = true
	require.NoError(t, os.Remove(filepath.Join(dir, "b.mkv")))
	_, _, err = DownloadSegment(api, collection, dir, 0, 2)
	assert.Error(t, err)
}
