package objectstore_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-objectstore/pkg/objectstore"
)

const workers = 16

// parallel runs fn on workers goroutines and collects their errors
func parallel(n int, fn func(i int) error) []error {
	errs := make([]error, n)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			errs[i] = fn(i)
		}(i)
	}
	close(start)
	wg.Wait()
	return errs
}

func countErrors(errs []error) (succeeded int, failed []error) {
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		failed = append(failed, err)
	}
	return succeeded, failed
}

func TestConcurrentCreateObjectSameID(t *testing.T) {
	for _, mode := range modes {
		t.Run(mode.name, func(t *testing.T) {
			ctx := context.Background()
			store, _ := newStorage(t, mode)

			errs := parallel(workers, func(int) error {
				_, err := store.CreateObject(ctx, "shared")
				return err
			})

			succeeded, failed := countErrors(errs)
			assert.Equal(t, 1, succeeded)
			for _, err := range failed {
				assert.True(t, errors.Is(err, objectstore.ErrDuplicateOID), "got %v", err)
			}
			assert.Equal(t, []string{"shared"}, store.ObjectIDs(ctx))
		})
	}
}

func TestConcurrentCreatePayloadSameID(t *testing.T) {
	for _, mode := range modes {
		t.Run(mode.name, func(t *testing.T) {
			ctx := context.Background()
			store, d := newStorage(t, mode)
			obj, err := store.CreateObject(ctx, "obj")
			require.NoError(t, err)

			errs := parallel(workers, func(i int) error {
				_, err := obj.CreateStoredPayload(ctx, "data.txt", strings.NewReader(fmt.Sprintf("writer %d", i)))
				return err
			})

			succeeded, failed := countErrors(errs)
			assert.Equal(t, 1, succeeded)
			for _, err := range failed {
				assert.True(t, errors.Is(err, objectstore.ErrDuplicatePID), "got %v", err)
			}
			assert.Equal(t, []string{"data.txt"}, obj.PayloadIDs())
			assert.Equal(t, "data.txt", obj.SourceID())
			assert.Equal(t, []string{"data.txt"}, manifestNames(readManifest(t, d, "obj")))
		})
	}
}

func TestConcurrentCreateAndRemovePayloads(t *testing.T) {
	for _, mode := range modes {
		t.Run(mode.name, func(t *testing.T) {
			ctx := context.Background()
			store, d := newStorage(t, mode)
			obj, err := store.CreateObject(ctx, "obj")
			require.NoError(t, err)

			var keep, drop, added []string
			for i := 0; i < workers/2; i++ {
				keep = append(keep, fmt.Sprintf("keep-%02d", i))
				drop = append(drop, fmt.Sprintf("drop-%02d", i))
				added = append(added, fmt.Sprintf("new-%02d", i))
			}
			for _, pid := range append(append([]string{}, keep...), drop...) {
				_, err := obj.CreateStoredPayload(ctx, pid, strings.NewReader(pid))
				require.NoError(t, err)
			}

			errs := parallel(workers, func(i int) error {
				if i%2 == 0 {
					pid := added[i/2]
					_, err := obj.CreateStoredPayload(ctx, pid, strings.NewReader(pid))
					return err
				}
				return obj.RemovePayload(ctx, drop[i/2])
			})
			for _, err := range errs {
				require.NoError(t, err)
			}

			want := append(append([]string{}, keep...), added...)
			assert.ElementsMatch(t, want, obj.PayloadIDs())
			assert.ElementsMatch(t, want, manifestNames(readManifest(t, d, "obj")))
			assert.Equal(t, "keep-00", obj.SourceID())

			for _, pid := range want {
				exists, err := d.BlobExists(ctx, container, "obj/"+pid)
				require.NoError(t, err)
				assert.True(t, exists, pid)
			}
			for _, pid := range drop {
				exists, err := d.BlobExists(ctx, container, "obj/"+pid)
				require.NoError(t, err)
				assert.False(t, exists, pid)

				exists, err = d.BlobExists(ctx, container, "obj/"+pid+objectstore.SidecarSuffix)
				require.NoError(t, err)
				assert.False(t, exists, pid)
			}

			reopened, err := store.GetObject(ctx, "obj")
			require.NoError(t, err)
			assert.ElementsMatch(t, want, reopened.PayloadIDs())
		})
	}
}

func TestConcurrentCreateAndRemoveObjects(t *testing.T) {
	ctx := context.Background()
	store, _ := newStorage(t, modes[0])

	for round := 0; round < 20; round++ {
		oid := fmt.Sprintf("obj-%02d", round)
		_, err := store.CreateObject(ctx, oid)
		require.NoError(t, err)

		errs := parallel(workers, func(i int) error {
			if i%2 == 0 {
				_, err := store.CreateObject(ctx, oid)
				return err
			}
			return store.RemoveObject(ctx, oid)
		})
		for _, err := range errs {
			if err == nil {
				continue
			}
			assert.True(t, errors.Is(err, objectstore.ErrDuplicateOID) || errors.Is(err, objectstore.ErrNotFound), "got %v", err)
		}

		ids := store.ObjectIDs(ctx)
		obj, err := store.GetObject(ctx, oid)
		if err == nil {
			assert.Contains(t, ids, oid)
			assert.Empty(t, obj.PayloadIDs())
		} else {
			assert.True(t, errors.Is(err, objectstore.ErrNotFound), "got %v", err)
			assert.NotContains(t, ids, oid)
		}
	}
}
