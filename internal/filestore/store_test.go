package filestore

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/koustreak/geori/internal/errs"
	"github.com/koustreak/geori/internal/rowsource"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memObject struct {
	io.Reader
	info   *ObjectInfo
	closed bool
}

func (o *memObject) Close() error      { o.closed = true; return nil }
func (o *memObject) Info() *ObjectInfo { return o.info }

type memStore struct {
	objects map[string]string
	opened  []*memObject
}

func (s *memStore) Ping(context.Context) error { return nil }
func (s *memStore) Close() error               { return nil }

func (s *memStore) GetObject(_ context.Context, bucket, key string) (Object, error) {
	body, ok := s.objects[bucket+"/"+key]
	if !ok {
		return nil, errs.Newf(errs.ErrKindNotFound, "no object %s/%s", bucket, key)
	}
	o := &memObject{Reader: strings.NewReader(body), info: &ObjectInfo{Key: key, Size: int64(len(body))}}
	s.opened = append(s.opened, o)
	return o, nil
}

func (s *memStore) StatObject(ctx context.Context, bucket, key string) (*ObjectInfo, error) {
	o, err := s.GetObject(ctx, bucket, key)
	if err != nil {
		return nil, err
	}
	return o.Info(), nil
}

func TestParseRef(t *testing.T) {
	tests := []struct {
		in, def string
		want    Ref
		wantErr bool
	}{
		{in: "imports/parcels.csv", want: Ref{"imports", "parcels.csv"}},
		{in: "imports/2024/parcels.csv", want: Ref{"imports", "2024/parcels.csv"}},
		{in: "/imports/parcels.csv", want: Ref{"imports", "parcels.csv"}},
		{in: "parcels.csv", def: "imports", want: Ref{"imports", "parcels.csv"}},
		{in: "parcels.csv", wantErr: true},
		{in: "imports/", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRef(tt.in, tt.def)
			if tt.wantErr {
				assert.True(t, errs.IsInvalidInput(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
	assert.Equal(t, "imports/parcels.csv", Ref{"imports", "parcels.csv"}.String())
}

func TestOpenCSV(t *testing.T) {
	store := &memStore{objects: map[string]string{
		"imports/parcels.csv": "id,name\n1,a\n2,b\n",
	}}

	src, err := OpenCSV(context.Background(), store, Ref{"imports", "parcels.csv"})
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name"}, src.Header())

	rows, err := rowsource.Collect(src)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
	require.Len(t, store.opened, 1)
	assert.True(t, store.opened[0].closed)

	_, err = OpenCSV(context.Background(), store, Ref{"imports", "missing.csv"})
	assert.True(t, errs.IsNotFound(err))
}

func TestConfig_Enabled(t *testing.T) {
	var nilCfg *Config
	assert.False(t, nilCfg.Enabled())
	assert.False(t, (&Config{}).Enabled())
	assert.True(t, DefaultConfig("localhost:9000", "k", "s").Enabled())
}
