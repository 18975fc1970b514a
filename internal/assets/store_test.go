package assets

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/srcf/lightbluetent/internal/models"
	"github.com/srcf/lightbluetent/pkg/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memObjects struct {
	mu        sync.Mutex
	objects   map[string]string
	failDel   map[string]bool
	failUpper bool
}

func newMemObjects() *memObjects {
	return &memObjects{objects: map[string]string{}, failDel: map[string]bool{}}
}

func (m *memObjects) Upload(_ context.Context, key, _ string, body io.Reader, _ int64) (string, error) {
	if m.failUpper && strings.Contains(key, "@2x") {
		return "", errors.New("upload refused")
	}
	b, _ := io.ReadAll(body)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = string(b)
	return m.PublicObjectURL(key), nil
}

func (m *memObjects) Delete(_ context.Context, key string) error {
	if m.failDel[key] {
		return errors.New("delete refused")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *memObjects) PublicObjectURL(key string) string { return "https://cdn.example.org/" + key }

type memRecords struct {
	rows map[string][]models.Asset
}

func (m *memRecords) List(_ context.Context, key string) ([]models.Asset, error) {
	return append([]models.Asset(nil), m.rows[key]...), nil
}

func (m *memRecords) Replace(_ context.Context, key string, variants []models.Asset) error {
	m.rows[key] = append([]models.Asset(nil), variants...)
	return nil
}

func (m *memRecords) DeleteKey(_ context.Context, key string) error {
	delete(m.rows, key)
	return nil
}

type countingLocker struct {
	mu       sync.Mutex
	held     map[string]bool
	acquired int
	released int
}

func (l *countingLocker) Lock(_ context.Context, key string) (func(context.Context) error, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return nil, errors.New("lock held")
	}
	l.held[key] = true
	l.acquired++
	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, key)
		l.released++
		return nil
	}, nil
}

type recordingPurger struct {
	jobs []queue.AssetPurgePayload
}

func (p *recordingPurger) EnqueueAssetPurge(_ context.Context, payload queue.AssetPurgePayload) error {
	p.jobs = append(p.jobs, payload)
	return nil
}

func newTestStore() (*Store, *memObjects, *memRecords, *countingLocker, *recordingPurger) {
	objs := newMemObjects()
	recs := &memRecords{rows: map[string][]models.Asset{}}
	locker := &countingLocker{held: map[string]bool{}}
	purger := &recordingPurger{}
	return NewStore(objs, recs, locker, purger, nil), objs, recs, locker, purger
}

func logoUploads() []Upload {
	return []Upload{
		{Filename: "logo.png", ContentType: "image/png", Body: strings.NewReader("1x")},
		{Variant: "@2x", Filename: "logo@2x.png", ContentType: "image/png", Body: strings.NewReader("2x")},
	}
}

func TestReplace_SwapsVariantsAndDeletesOld(t *testing.T) {
	s, objs, recs, locker, purger := newTestStore()
	ctx := context.Background()

	first, err := s.Replace(ctx, "jazz", logoUploads())
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Len(t, objs.objects, 2)

	second, err := s.Replace(ctx, "jazz", logoUploads())
	require.NoError(t, err)
	assert.Len(t, objs.objects, 2, "old objects are deleted")
	for _, a := range first {
		assert.NotContains(t, objs.objects, a.Path)
	}
	for _, a := range second {
		assert.Contains(t, objs.objects, a.Path)
	}
	assert.Equal(t, second, recs.rows["jazz"])
	assert.Equal(t, 2, locker.acquired)
	assert.Equal(t, 2, locker.released)
	assert.Empty(t, purger.jobs)
}

func TestReplace_FailedUploadKeepsOldLogo(t *testing.T) {
	s, objs, recs, locker, _ := newTestStore()
	ctx := context.Background()

	first, err := s.Replace(ctx, "jazz", logoUploads())
	require.NoError(t, err)

	objs.failUpper = true
	_, err = s.Replace(ctx, "jazz", logoUploads())
	require.Error(t, err)

	assert.Equal(t, first, recs.rows["jazz"])
	assert.Len(t, objs.objects, 2, "partial upload is cleaned up")
	assert.Equal(t, locker.acquired, locker.released)
}

func TestReplace_QueuesUndeletableObjects(t *testing.T) {
	s, objs, _, _, purger := newTestStore()
	ctx := context.Background()

	first, err := s.Replace(ctx, "jazz", logoUploads())
	require.NoError(t, err)
	objs.failDel[first[1].Path] = true

	_, err = s.Replace(ctx, "jazz", logoUploads())
	require.NoError(t, err)
	require.Len(t, purger.jobs, 1)
	assert.Equal(t, "jazz", purger.jobs[0].Key)
	assert.Equal(t, []string{first[1].Path}, purger.jobs[0].Objects)
}

func TestReplace_RejectsBadInput(t *testing.T) {
	s, _, _, locker, _ := newTestStore()
	ctx := context.Background()

	_, err := s.Replace(ctx, "jazz", nil)
	assert.Error(t, err)
	_, err = s.Replace(ctx, "jazz", []Upload{{Variant: "big", Filename: "a.png", Body: strings.NewReader("")}})
	assert.Error(t, err)
	_, err = s.Replace(ctx, "jazz", []Upload{{Filename: "a.exe", ContentType: "application/x-msdownload", Body: strings.NewReader("")}})
	assert.Error(t, err)
	assert.Zero(t, locker.acquired)
}

func TestRemove(t *testing.T) {
	s, objs, recs, _, _ := newTestStore()
	ctx := context.Background()

	_, err := s.Replace(ctx, "jazz", logoUploads())
	require.NoError(t, err)
	require.NoError(t, s.Remove(ctx, "jazz"))
	assert.Empty(t, objs.objects)
	assert.Empty(t, recs.rows)

	_, ok, err := s.Lookup(ctx, "jazz")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestResponsive(t *testing.T) {
	url := func(p string) string { return "/static/" + p }

	img := Responsive([]models.Asset{
		{Variant: "@2x", Path: "a@2x.png"},
		{Variant: "@1x", Path: "a@1x.png"},
		{Variant: "weird", Path: "a-weird.png"},
	}, url)
	assert.Equal(t, "/static/a@2x.png", img.Main)
	assert.Equal(t, "/static/a@1x.png 1x, /static/a@2x.png 2x", img.Srcset())

	img = Responsive([]models.Asset{
		{Variant: "@2x", Path: "a@2x.png"},
		{Variant: "", Path: "a.png"},
		{Variant: "@3x", Path: "a@3x.png"},
	}, url)
	assert.Equal(t, "/static/a.png", img.Main)
	assert.Len(t, img.Variants, 2)
}

func TestLookup(t *testing.T) {
	s, _, _, _, _ := newTestStore()
	ctx := context.Background()
	_, err := s.Replace(ctx, "jazz", logoUploads())
	require.NoError(t, err)

	img, ok, err := s.Lookup(ctx, "jazz")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(img.Main, "https://cdn.example.org/logos/jazz-"))
	assert.True(t, strings.HasSuffix(img.Main, ".png"))
	assert.Contains(t, img.Variants, "2")
}
