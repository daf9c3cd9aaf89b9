package artifacts

import (
	"context"
	"io"
	"strings"
	"testing"

	"labcore/pkg/domain"
)

func testStores(t *testing.T) map[string]Store {
	t.Helper()
	fsStore, err := NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("fs store: %v", err)
	}
	return map[string]Store{
		"fs":     fsStore,
		"memory": NewMemory(),
	}
}

func TestStorePutGetOverwrite(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			key := "results/exp-1/pixeltrack/basic_metrics/trace.csv"

			info, err := store.Put(ctx, key, strings.NewReader("a,b\n1,2\n"), PutOptions{ContentType: "text/csv"})
			if err != nil {
				t.Fatalf("put: %v", err)
			}
			if info.Size != 8 || info.ETag == "" {
				t.Fatalf("unexpected info %+v", info)
			}

			// re-running a dispatch overwrites its artifacts
			if _, err := store.Put(ctx, key, strings.NewReader("a,b\n3,4\n5,6\n"), PutOptions{}); err != nil {
				t.Fatalf("overwrite: %v", err)
			}
			got, body, err := store.Get(ctx, key)
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			data, err := io.ReadAll(body)
			_ = body.Close()
			if err != nil {
				t.Fatalf("read: %v", err)
			}
			if string(data) != "a,b\n3,4\n5,6\n" {
				t.Fatalf("unexpected content %q", data)
			}
			if got.Size != int64(len(data)) {
				t.Fatalf("size mismatch: %d vs %d", got.Size, len(data))
			}
		})
	}
}

func TestStoreHeadDeleteList(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			key := domain.ResultKey{ExperimentID: "exp-1", PluginName: "pixeltrack", Capability: "basic_metrics"}
			keyA := ResultKeyFor(key, "trace.csv")
			keyB := ResultKeyFor(key, "summary.json")
			other := "results/exp-2/pixeltrack/basic_metrics/trace.csv"

			for _, k := range []string{keyA, keyB, other} {
				if _, err := store.Put(ctx, k, strings.NewReader("x"), PutOptions{}); err != nil {
					t.Fatalf("put %s: %v", k, err)
				}
			}

			if _, err := store.Head(ctx, keyA); err != nil {
				t.Fatalf("head: %v", err)
			}
			if _, err := store.Head(ctx, "results/none"); err == nil {
				t.Fatalf("expected head miss")
			}

			infos, err := store.List(ctx, ResultPrefix(key))
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(infos) != 2 {
				t.Fatalf("expected 2 artifacts under prefix, got %d", len(infos))
			}
			if infos[0].Key > infos[1].Key {
				t.Fatalf("expected key-sorted listing")
			}

			ok, err := store.Delete(ctx, keyA)
			if err != nil || !ok {
				t.Fatalf("delete: ok=%v err=%v", ok, err)
			}
			if _, _, err := store.Get(ctx, keyA); err == nil {
				t.Fatalf("expected get miss after delete")
			}
		})
	}
}

func TestFilesystemDeleteMissing(t *testing.T) {
	store, err := NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("fs store: %v", err)
	}
	ok, err := store.Delete(context.Background(), "results/none")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if ok {
		t.Fatalf("expected false for absent key")
	}
}

func TestSanitizeKeyRejectsTraversal(t *testing.T) {
	for _, key := range []string{"", "../etc/passwd", "/abs", "a/../../b"} {
		if _, err := sanitizeKey(key); err == nil {
			t.Fatalf("expected rejection of %q", key)
		}
	}
	if _, err := sanitizeKey("results/exp/plugin/cap/file.csv"); err != nil {
		t.Fatalf("expected accept: %v", err)
	}
}

func TestResultKeyHelpers(t *testing.T) {
	key := domain.ResultKey{ExperimentID: "e", PluginName: "p", Capability: "c"}
	if got := ResultPrefix(key); got != "results/e/p/c/" {
		t.Fatalf("unexpected prefix %q", got)
	}
	if got := ResultKeyFor(key, "out.csv"); got != "results/e/p/c/out.csv" {
		t.Fatalf("unexpected key %q", got)
	}
}
