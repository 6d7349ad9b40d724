package server

import (
	"os"
	"path/filepath"
	"testing"
)

func newTestFSOps(t *testing.T) (*FSOps, string) {
	t.Helper()
	root := t.TempDir()
	ops, err := NewFSOps(root)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ops.Close() })
	return ops, ops.Root()
}

func TestFSOps_WriteThenRead(t *testing.T) {
	ops, root := newTestFSOps(t)
	path := filepath.Join(root, "a.txt")

	if err := ops.Write(path, []byte("hello"), "wb"); err != nil {
		t.Fatal(err)
	}
	got, err := ops.Read(path, 0, -1)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hello" {
		t.Fatalf("got %q", got)
	}

	got, err = ops.Read(path, 1, 3)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "ell" {
		t.Fatalf("got %q", got)
	}
}

func TestFSOps_AppendMode(t *testing.T) {
	ops, root := newTestFSOps(t)
	path := filepath.Join(root, "a.txt")

	ops.Write(path, []byte("hello"), "wb")
	if err := ops.Write(path, []byte(" world"), "ab"); err != nil {
		t.Fatal(err)
	}
	got, _ := ops.Read(path, 0, -1)
	if string(got) != "hello world" {
		t.Fatalf("got %q", got)
	}
}

func TestFSOps_MkdirListRmdir(t *testing.T) {
	ops, root := newTestFSOps(t)
	dir := filepath.Join(root, "sub")

	if err := ops.Mkdir(dir); err != nil {
		t.Fatal(err)
	}
	ops.Write(filepath.Join(dir, "x.txt"), []byte("x"), "wb")

	names, err := ops.List(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 1 || names[0] != "x.txt" {
		t.Fatalf("got %v", names)
	}

	if err := ops.RmdirRecursive(dir); err != nil {
		t.Fatal(err)
	}
	if exists, _, _ := ops.Exists(dir); exists {
		t.Fatal("expected directory to be removed")
	}
}

func TestFSOps_DeleteFile(t *testing.T) {
	ops, root := newTestFSOps(t)
	path := filepath.Join(root, "a.txt")
	ops.Write(path, []byte("x"), "wb")

	if err := ops.DeleteFile(path); err != nil {
		t.Fatal(err)
	}
	if exists, _, _ := ops.Exists(path); exists {
		t.Fatal("expected file to be gone")
	}
}

func TestFSOps_Rename(t *testing.T) {
	ops, root := newTestFSOps(t)
	src := filepath.Join(root, "a.txt")
	dst := filepath.Join(root, "b.txt")
	ops.Write(src, []byte("x"), "wb")

	if err := ops.Rename(src, dst); err != nil {
		t.Fatal(err)
	}
	if exists, _, _ := ops.Exists(src); exists {
		t.Fatal("expected source to be gone after rename")
	}
	if exists, isFile, _ := ops.Exists(dst); !exists || !isFile {
		t.Fatal("expected destination to exist as a file")
	}
}

func TestFSOps_CopyFile(t *testing.T) {
	ops, root := newTestFSOps(t)
	src := filepath.Join(root, "a.txt")
	dst := filepath.Join(root, "b.txt")
	ops.Write(src, []byte("copyme"), "wb")

	if err := ops.Copy(src, dst); err != nil {
		t.Fatal(err)
	}
	if exists, _, _ := ops.Exists(src); !exists {
		t.Fatal("expected source to remain after copy")
	}
	got, _ := ops.Read(dst, 0, -1)
	if string(got) != "copyme" {
		t.Fatalf("got %q", got)
	}
}

func TestFSOps_CopyDir(t *testing.T) {
	ops, root := newTestFSOps(t)
	srcDir := filepath.Join(root, "srcdir")
	dstDir := filepath.Join(root, "dstdir")
	ops.Mkdir(srcDir)
	ops.Write(filepath.Join(srcDir, "f.txt"), []byte("data"), "wb")

	if err := ops.Copy(srcDir, dstDir); err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(filepath.Join(dstDir, "f.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "data" {
		t.Fatalf("got %q", got)
	}
}

func TestFSOps_Size(t *testing.T) {
	ops, root := newTestFSOps(t)
	path := filepath.Join(root, "a.txt")
	ops.Write(path, []byte("12345"), "wb")

	size, err := ops.Size(path)
	if err != nil {
		t.Fatal(err)
	}
	if size != 5 {
		t.Fatalf("got %d", size)
	}
}

func TestFSOps_ExistsForMissingPath(t *testing.T) {
	ops, root := newTestFSOps(t)
	exists, isFile, isDir := ops.Exists(filepath.Join(root, "nope"))
	if exists || isFile || isDir {
		t.Fatal("expected all false for a missing path")
	}
}
