package docroot

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		in   string
		want string
		err  error
	}{
		{"/", "", nil},
		{"/index.html", "index.html", nil},
		{"/scripts/osnovni.smscr", "scripts/osnovni.smscr", nil},
		{"/a/./b//c", "a/b/c", nil},
		{"/a/b/../c", "a/c", nil},
		{"/a/%20b.txt", "a/ b.txt", nil},
		{"/../etc/passwd", "", ErrEscapesRoot},
		{"/a/../../etc/passwd", "", ErrEscapesRoot},
		{"/%2e%2e/etc/passwd", "", ErrEscapesRoot},
		{"/%2E%2E%2Fetc%2Fpasswd", "", ErrEscapesRoot},
		{"/a/%2e%2e/%2e%2e/x", "", ErrEscapesRoot},
		{"/..%5c..%5cwindows", "", ErrEscapesRoot},
		{"/file%00.txt", "", ErrEscapesRoot},
		{"/bad%zz", "", ErrEscapesRoot},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Resolve(tt.in)
			if !errors.Is(err, tt.err) {
				t.Fatalf("Resolve(%q) err = %v, want %v", tt.in, err, tt.err)
			}
			if got != tt.want {
				t.Errorf("Resolve(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestExt(t *testing.T) {
	tests := map[string]string{
		"index.html":      "html",
		"a/b/page.smscr":  "smscr",
		"README":          "",
		"dir.d/noext":     "",
		".hidden":         "",
		"archive.tar.gz":  "gz",
		"scripts/x.SMSCR": "SMSCR",
	}
	for in, want := range tests {
		if got := Ext(in); got != want {
			t.Errorf("Ext(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDir_Open(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "sub", "a.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}

	root, err := NewDir(dir)
	if err != nil {
		t.Fatalf("NewDir failed: %v", err)
	}

	rc, size, err := root.Open(context.Background(), "sub/a.txt")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != "hello" || size != 5 {
		t.Errorf("Open = %q (%d bytes), want hello (5)", data, size)
	}

	if _, _, err := root.Open(context.Background(), "missing.txt"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Open(missing) = %v, want ErrNotFound", err)
	}
	if _, _, err := root.Open(context.Background(), "sub"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Open(dir) = %v, want ErrNotFound", err)
	}
	if _, _, err := root.Open(context.Background(), "../outside"); !errors.Is(err, ErrEscapesRoot) {
		t.Errorf("Open(../outside) = %v, want ErrEscapesRoot", err)
	}
}

func TestDir_Rel(t *testing.T) {
	root, err := NewDir(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	rel, ok := root.Rel(filepath.Join(root.Path(), "scripts", "a.smscr"))
	if !ok || rel != "scripts/a.smscr" {
		t.Errorf("Rel = %q, %v, want scripts/a.smscr, true", rel, ok)
	}
	if _, ok := root.Rel(filepath.Dir(root.Path())); ok {
		t.Error("Rel(parent) should fail")
	}
}

func TestNewDir_NotADirectory(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file")
	os.WriteFile(f, nil, 0o644)
	if _, err := NewDir(f); err == nil {
		t.Error("expected error for file path")
	}
}

type fakeS3 struct {
	objects map[string]string
	keys    []string
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.keys = append(f.keys, *in.Key)
	body, ok := f.objects[*in.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	n := int64(len(body))
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader([]byte(body))),
		ContentLength: &n,
	}, nil
}

func TestS3_Open(t *testing.T) {
	client := &fakeS3{objects: map[string]string{"site/index.html": "<h1>hi</h1>"}}
	root := NewS3(client, "bucket", "/site/")

	data, err := ReadAll(context.Background(), root, "index.html")
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if string(data) != "<h1>hi</h1>" {
		t.Errorf("data = %q", data)
	}
	if client.keys[0] != "site/index.html" {
		t.Errorf("key = %q, want site/index.html", client.keys[0])
	}

	if _, _, err := root.Open(context.Background(), "nope.html"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Open(missing) = %v, want ErrNotFound", err)
	}
}

func TestNewS3Client(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "")
	client := NewS3Client(S3Config{Bucket: "b", Endpoint: "http://localhost:9000"})
	opts := client.Options()
	if opts.Region != "us-east-1" {
		t.Errorf("Region = %q, want us-east-1", opts.Region)
	}
	if !opts.UsePathStyle {
		t.Error("UsePathStyle = false with custom endpoint")
	}
}
