package handlers

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/maruel/bibdb/internal/auth"
	"github.com/maruel/bibdb/internal/library"
	"github.com/maruel/bibdb/internal/server/dto"
	"github.com/maruel/bibdb/internal/server/reqctx"
)

func newTestServices(t *testing.T) *Services {
	t.Helper()
	lib, err := library.NewService(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return &Services{Library: lib}
}

func objectPath(typ string) dto.ObjectPath {
	return dto.ObjectPath{LibraryPath: dto.LibraryPath{LibraryType: "users", LibraryID: "1"}, ObjectType: typ}
}

func keyPath(typ, key string) dto.ObjectKeyPath {
	return dto.ObjectKeyPath{ObjectPath: objectPath(typ), Key: key}
}

func version(v int64) dto.Version {
	return dto.Version{Value: v, Set: true}
}

func mustValidate(t *testing.T, req dto.Validatable) {
	t.Helper()
	if err := req.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func wantStatus(t *testing.T, err error, status int) {
	t.Helper()
	var ews dto.ErrorWithStatus
	if !errors.As(err, &ews) {
		t.Fatalf("error %v has no status", err)
	}
	if ews.StatusCode() != status {
		t.Fatalf("status = %d, want %d (%v)", ews.StatusCode(), status, err)
	}
}

func TestObjectHandler(t *testing.T) {
	ctx := context.Background()
	svc := newTestServices(t)
	h := NewObjectHandler(svc)
	lh := NewLibraryHandler(svc)

	w := &dto.WriteObjectsRequest{ObjectPath: objectPath("collections")}
	w.SetBody([]byte(`[{"name":"A"},{"name":"B"},{}]`))
	mustValidate(t, w)
	wres, err := h.Write(ctx, w)
	if err != nil {
		t.Fatal(err)
	}
	if len(wres.Success) != 2 || len(wres.Failed) != 1 || wres.Failed[2] == nil {
		t.Fatalf("unexpected write result %+v", wres.WriteResult)
	}
	if v, _ := wres.ResponseMeta().Version(); v != 1 {
		t.Fatalf("Last-Modified-Version = %d", v)
	}
	keyA, keyB := wres.Success[0], wres.Success[1]

	t.Run("List", func(t *testing.T) {
		req := &dto.ListObjectsRequest{ObjectPath: objectPath("collections")}
		mustValidate(t, req)
		resp, err := h.List(ctx, req)
		if err != nil {
			t.Fatal(err)
		}
		if len(resp.Objects) != 2 {
			t.Fatalf("got %d objects", len(resp.Objects))
		}
		if n, ok := resp.Total(); !ok || n != 2 {
			t.Errorf("Total-Results = %d, %v", n, ok)
		}
	})
	t.Run("Keys", func(t *testing.T) {
		req := &dto.ListObjectsRequest{ObjectPath: objectPath("collections"), Format: dto.FormatKeys}
		mustValidate(t, req)
		resp, err := h.List(ctx, req)
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(keyA+"\n"+keyB+"\n", string(resp.Text())); diff != "" {
			t.Errorf("keys mismatch (-want +got):\n%s", diff)
		}
	})
	t.Run("Versions", func(t *testing.T) {
		req := &dto.ListObjectsRequest{ObjectPath: objectPath("collections"), Format: dto.FormatVersions, CollectionKey: keyB + ","}
		mustValidate(t, req)
		resp, err := h.List(ctx, req)
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(map[string]int64{keyB: 1}, resp.Versions); diff != "" {
			t.Errorf("versions mismatch (-want +got):\n%s", diff)
		}
	})
	t.Run("NotModified", func(t *testing.T) {
		req := &dto.ListObjectsRequest{ObjectPath: objectPath("collections"), IfModified: version(1)}
		mustValidate(t, req)
		resp, err := h.List(ctx, req)
		if err != nil {
			t.Fatal(err)
		}
		if resp.Status() != http.StatusNotModified || resp.HasBody() {
			t.Errorf("status = %d", resp.Status())
		}
	})
	t.Run("Get", func(t *testing.T) {
		req := &dto.GetObjectRequest{ObjectKeyPath: keyPath("collections", keyA)}
		mustValidate(t, req)
		resp, err := h.Get(ctx, req)
		if err != nil {
			t.Fatal(err)
		}
		if resp.Object.Key != keyA || resp.Object.Version != 1 {
			t.Errorf("got %+v", resp.Object)
		}
		req = &dto.GetObjectRequest{ObjectKeyPath: keyPath("collections", "ZZZZZZZZ")}
		mustValidate(t, req)
		_, err = h.Get(ctx, req)
		wantStatus(t, err, http.StatusNotFound)
	})

	t.Run("Patch", func(t *testing.T) {
		req := &dto.PutObjectRequest{ObjectKeyPath: keyPath("collections", keyA), IfUnmodified: version(1)}
		req.SetBody([]byte(`{"name":"C"}`))
		mustValidate(t, req)
		resp, err := h.Patch(ctx, req)
		if err != nil {
			t.Fatal(err)
		}
		if v, _ := resp.Version(); v != 2 || resp.Status() != http.StatusNoContent {
			t.Errorf("got version %d, status %d", v, resp.Status())
		}
		// The object is at version 2 now.
		req = &dto.PutObjectRequest{ObjectKeyPath: keyPath("collections", keyA), IfUnmodified: version(1)}
		req.SetBody([]byte(`{"name":"D"}`))
		mustValidate(t, req)
		_, err = h.Put(ctx, req)
		wantStatus(t, err, http.StatusPreconditionFailed)
	})

	t.Run("Delete", func(t *testing.T) {
		req := &dto.DeleteObjectRequest{ObjectKeyPath: keyPath("collections", keyB)}
		mustValidate(t, req)
		_, err := h.DeleteOne(ctx, req)
		wantStatus(t, err, http.StatusPreconditionRequired)

		req.IfUnmodified = version(1)
		_, err = h.DeleteOne(ctx, req)
		wantStatus(t, err, http.StatusPreconditionFailed)

		req.IfUnmodified = version(2)
		resp, err := h.DeleteOne(ctx, req)
		if err != nil {
			t.Fatal(err)
		}
		if v, _ := resp.Version(); v != 3 {
			t.Errorf("version = %d", v)
		}

		many := &dto.DeleteObjectsRequest{ObjectPath: objectPath("collections"), CollectionKey: "ZZZZZZZZ", IfUnmodified: version(3)}
		mustValidate(t, many)
		resp, err = h.DeleteMany(ctx, many)
		if err != nil {
			t.Fatal(err)
		}
		if v, _ := resp.Version(); v != 3 {
			t.Errorf("deleting nothing bumped the version to %d", v)
		}

		del := &dto.DeletedRequest{LibraryPath: dto.LibraryPath{LibraryType: "users", LibraryID: "1"}, Newer: version(0)}
		mustValidate(t, del)
		tomb, err := lh.Deleted(ctx, del)
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff([]string{keyB}, tomb.Collections); diff != "" {
			t.Errorf("deleted mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestLibraryHandlerTags(t *testing.T) {
	ctx := context.Background()
	svc := newTestServices(t)
	h := NewObjectHandler(svc)
	lh := NewLibraryHandler(svc)
	lib := dto.LibraryPath{LibraryType: "users", LibraryID: "1"}

	w := &dto.WriteObjectsRequest{ObjectPath: objectPath("items")}
	w.SetBody([]byte(`[{"itemType":"book","title":"A","tags":[{"tag":"x"},{"tag":"y"}]},{"itemType":"book","tags":[{"tag":"x"}]}]`))
	mustValidate(t, w)
	if _, err := h.Write(ctx, w); err != nil {
		t.Fatal(err)
	}

	list := &dto.ListTagsRequest{LibraryPath: lib}
	mustValidate(t, list)
	resp, err := lh.Tags(ctx, list)
	if err != nil {
		t.Fatal(err)
	}
	want := []library.TagCount{{Tag: "x", NumItems: 2}, {Tag: "y", NumItems: 1}}
	if diff := cmp.Diff(want, resp.Tags); diff != "" {
		t.Errorf("tags mismatch (-want +got):\n%s", diff)
	}

	del := &dto.DeleteTagsRequest{LibraryPath: lib, Tag: "x || z", IfUnmodified: version(1)}
	mustValidate(t, del)
	dresp, err := lh.DeleteTags(ctx, del)
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := dresp.Version(); v != 2 {
		t.Errorf("version = %d", v)
	}
	resp, err = lh.Tags(ctx, list)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]library.TagCount{{Tag: "y", NumItems: 1}}, resp.Tags); diff != "" {
		t.Errorf("tags mismatch (-want +got):\n%s", diff)
	}
}

func TestSchemaHandler(t *testing.T) {
	ctx := context.Background()
	h := NewSchemaHandler(newTestServices(t))

	types, err := h.ItemTypes(ctx, &dto.ItemTypesRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if len(types.ItemTypes) == 0 || types.ItemTypes[0].ItemType != "book" {
		t.Errorf("item types = %+v", types.ItemTypes)
	}
	fields, err := h.ItemFields(ctx, &dto.ItemFieldsRequest{ItemType: "book"})
	if err != nil {
		t.Fatal(err)
	}
	if fields.Fields[0].Field != "title" {
		t.Errorf("fields = %+v", fields.Fields)
	}
	all, err := h.ItemFields(ctx, &dto.ItemFieldsRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all.Fields) <= len(fields.Fields) {
		t.Errorf("all fields %d <= book fields %d", len(all.Fields), len(fields.Fields))
	}
	creators, err := h.CreatorTypes(ctx, &dto.ItemTypeRequest{ItemType: "book"})
	if err != nil {
		t.Fatal(err)
	}
	if creators.CreatorTypes[0].CreatorType != "author" {
		t.Errorf("creator types = %+v", creators.CreatorTypes)
	}
	tmpl, err := h.NewItem(ctx, &dto.ItemTypeRequest{ItemType: "book"})
	if err != nil {
		t.Fatal(err)
	}
	if tmpl.Template["itemType"] != "book" {
		t.Errorf("template = %+v", tmpl.Template)
	}
	_, err = h.NewItem(ctx, &dto.ItemTypeRequest{ItemType: "spaceship"})
	wantStatus(t, err, http.StatusBadRequest)
}

func TestKeyHandler(t *testing.T) {
	h := NewKeyHandler()
	_, err := h.CurrentKey(context.Background(), &dto.CurrentKeyRequest{})
	wantStatus(t, err, http.StatusUnauthorized)

	ctx := reqctx.WithAPIKey(context.Background(), &auth.Key{UserID: 5, Name: "laptop", Groups: []int64{9}})
	resp, err := h.CurrentKey(ctx, &dto.CurrentKeyRequest{})
	if err != nil {
		t.Fatal(err)
	}
	want := &dto.KeyResponse{
		UserID: 5,
		Name:   "laptop",
		Access: dto.KeyAccess{
			User:   &dto.LibraryAccess{Library: true},
			Groups: map[string]dto.LibraryAccess{"9": {Library: true}},
		},
	}
	if diff := cmp.Diff(want, resp); diff != "" {
		t.Errorf("key mismatch (-want +got):\n%s", diff)
	}
}
