package fileinfo

import (
	"bytes"
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestFromURL(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    FileInfo
		wantErr error
	}{
		{
			name: "local file",
			raw:  "file:///home/user/src/file_sync.rs",
			want: FileInfo{
				Filename:    "file_sync.rs",
				Filepath:    "/home/user/src/file_sync.rs",
				URL:         "file:///home/user/src/file_sync.rs",
				ServiceType: ServiceLocal,
			},
		},
		{
			name: "s3 object",
			raw:  "s3://test_bucket/src/file_sync.rs",
			want: FileInfo{
				Filename:       "file_sync.rs",
				Filepath:       "src/file_sync.rs",
				URL:            "s3://test_bucket/src/file_sync.rs",
				ServiceID:      "test_bucket",
				ServiceType:    ServiceS3,
				ServiceSession: "test_bucket",
			},
		},
		{
			name: "gcs object",
			raw:  "gs://archive/2020/photo.jpg",
			want: FileInfo{
				Filename:       "photo.jpg",
				Filepath:       "2020/photo.jpg",
				URL:            "gs://archive/2020/photo.jpg",
				ServiceID:      "archive",
				ServiceType:    ServiceGCS,
				ServiceSession: "archive",
			},
		},
		{
			name: "gdrive with account session",
			raw:  "gdrive://user@domain.com/My%20Drive/test.txt",
			want: FileInfo{
				Filename:       "test.txt",
				Filepath:       "/My Drive/test.txt",
				URL:            "gdrive://user@domain.com/My%20Drive/test.txt",
				ServiceID:      "test.txt",
				ServiceType:    ServiceGDrive,
				ServiceSession: "user@domain.com",
			},
		},
		{
			name: "ssh path",
			raw:  "ssh://ubuntu@cloud.example.net/home/ubuntu/movie_queue.sql",
			want: FileInfo{
				Filename:    "movie_queue.sql",
				Filepath:    "/home/ubuntu/movie_queue.sql",
				URL:         "ssh://ubuntu@cloud.example.net/home/ubuntu/movie_queue.sql",
				ServiceType: ServiceSSH,
			},
		},
		{name: "unknown scheme", raw: "ftp://host/file", wantErr: ErrUnknownScheme},
		{name: "no filename", raw: "s3://bucket/", wantErr: ErrNoFilename},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FromURL(tt.raw)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("FromURL() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("FromURL() error = %v", err)
			}
			if !reflect.DeepEqual(*got, tt.want) {
				t.Errorf("FromURL() = %+v, want %+v", *got, tt.want)
			}
		})
	}
}

func TestParseChecksums(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		parse func(string) (string, bool)
		want  string
		ok    bool
	}{
		{"md5 valid", "6f90ebdaabef92a9f76be131037f593b", ParseMD5, "6f90ebdaabef92a9f76be131037f593b", true},
		{"md5 quoted etag", `"6F90EBDAABEF92A9F76BE131037F593B"`, ParseMD5, "6f90ebdaabef92a9f76be131037f593b", true},
		{"md5 multipart etag", "6f90ebdaabef92a9f76be131037f593b-3", ParseMD5, "", false},
		{"md5 not hex", "zz90ebdaabef92a9f76be131037f593b", ParseMD5, "", false},
		{"sha1 valid", "da39a3ee5e6b4b0d3255bfef95601890afd80709", ParseSHA1, "da39a3ee5e6b4b0d3255bfef95601890afd80709", true},
		{"sha1 short", "da39a3ee", ParseSHA1, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.parse(tt.in)
			if got != tt.want || ok != tt.ok {
				t.Errorf("got (%q, %v), want (%q, %v)", got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	good := &FileInfo{Filename: "a.txt", URL: "s3://b/a.txt", MD5: "6f90ebdaabef92a9f76be131037f593b", ServiceType: ServiceS3}
	if err := good.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}

	tests := []struct {
		name string
		f    FileInfo
	}{
		{"missing filename", FileInfo{URL: "s3://b/a", ServiceType: ServiceS3}},
		{"bad md5", FileInfo{Filename: "a", MD5: "abc", ServiceType: ServiceS3}},
		{"bad sha1", FileInfo{Filename: "a", SHA1: "abc", ServiceType: ServiceS3}},
		{"scheme mismatch", FileInfo{Filename: "a", URL: "gs://b/a", ServiceType: ServiceS3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.f.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestNormalizeAndClone(t *testing.T) {
	f := &FileInfo{Filename: "a", MD5: "bad", SHA1: "DA39A3EE5E6B4B0D3255BFEF95601890AFD80709", Stat: &FileStat{MTime: 1, Size: 2}}
	f.Normalize()
	if f.MD5 != "" {
		t.Errorf("MD5 = %q, want empty", f.MD5)
	}
	if f.SHA1 != "da39a3ee5e6b4b0d3255bfef95601890afd80709" {
		t.Errorf("SHA1 = %q", f.SHA1)
	}

	cp := f.Clone()
	cp.Stat.Size = 99
	if f.Stat.Size != 2 {
		t.Error("Clone shares Stat with original")
	}
}

func TestURLHelpers(t *testing.T) {
	if got := RemoveBaseURL("file:///home/u/src/a.rs", "file:///home/u/"); got != "src/a.rs" {
		t.Errorf("RemoveBaseURL = %q", got)
	}
	got, err := ReplaceBaseURL("file:///home/u/src/a.rs", "file:///home/u", "s3://test_bucket")
	if err != nil || got != "s3://test_bucket/src/a.rs" {
		t.Errorf("ReplaceBaseURL = %q, %v", got, err)
	}
	if got := RemoveBasePath("/home/u/src/a.rs", "/home/u"); got != "src/a.rs" {
		t.Errorf("RemoveBasePath = %q", got)
	}
	if got := ReplaceBasePath("/home/u/src/a.rs", "/home/u/", "backup"); got != "backup/src/a.rs" {
		t.Errorf("ReplaceBasePath = %q", got)
	}
	if got := RemoveBasePath("src/a.rs", ""); got != "src/a.rs" {
		t.Errorf("RemoveBasePath(bucket root) = %q", got)
	}
	if got := ReplaceBasePath("/home/u/src/a.rs", "/home/u", ""); got != "src/a.rs" {
		t.Errorf("ReplaceBasePath(onto bucket root) = %q", got)
	}
	if got := ReplaceBasePath("src/a.rs", "", "/home/u"); got != "/home/u/src/a.rs" {
		t.Errorf("ReplaceBasePath(from bucket root) = %q", got)
	}

	groups := GroupURLs([]string{"s3://b/1", "file:///a", "s3://b/2"})
	if len(groups) != 2 || !reflect.DeepEqual(groups["s3"], []string{"s3://b/1", "s3://b/2"}) {
		t.Errorf("GroupURLs = %v", groups)
	}
	if keys := SortedSchemes(groups); !reflect.DeepEqual(keys, []string{"file", "s3"}) {
		t.Errorf("SortedSchemes = %v", keys)
	}

	canon, err := Canonical("gdrive://me@example.com/My Drive/x.txt")
	if err != nil || canon != "gdrive://me@example.com/My%20Drive/x.txt" {
		t.Errorf("Canonical = %q, %v", canon, err)
	}
	if _, err := Canonical("ftp://x/y"); !errors.Is(err, ErrUnknownScheme) {
		t.Errorf("Canonical(ftp) error = %v", err)
	}
}

func TestNDJSON(t *testing.T) {
	files := []*FileInfo{
		{Filename: "a.txt", Filepath: "/d/a.txt", URL: "file:///d/a.txt", MD5: "6f90ebdaabef92a9f76be131037f593b",
			Stat: &FileStat{MTime: 1556668800, Size: 100}, ServiceID: "/d", ServiceType: ServiceLocal, ServiceSession: "/d"},
		{Filename: "b.txt", Filepath: "/d/b.txt", URL: "file:///d/b.txt", ServiceType: ServiceLocal},
	}
	var buf bytes.Buffer
	if err := WriteNDJSON(&buf, files); err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(buf.String(), "\n"); n != 2 {
		t.Fatalf("wrote %d lines, want 2", n)
	}
	buf.WriteString("\n")

	got, err := ReadNDJSON(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, files) {
		t.Errorf("ReadNDJSON = %+v", got)
	}

	if _, err := ReadNDJSON(strings.NewReader("{bad\n")); err == nil {
		t.Error("expected parse error")
	}
}

func TestListRender(t *testing.T) {
	l := List{{URL: "s3://b/a", Stat: &FileStat{Size: 2048}}, {URL: "s3://b/c"}}
	rows := l.AsTableRenderer().Rows()
	if len(rows) != 2 || rows[0][1] != "2.0 kB" || rows[1][1] != "-" {
		t.Errorf("rows = %v", rows)
	}
	if !reflect.DeepEqual(l.Lines(), []string{"s3://b/a", "s3://b/c"}) {
		t.Errorf("Lines = %v", l.Lines())
	}
}

func TestServiceTypes(t *testing.T) {
	for scheme, st := range schemeToService {
		if st.Scheme() != scheme {
			t.Errorf("%s.Scheme() = %q, want %q", st, st.Scheme(), scheme)
		}
		if parsed, err := ParseServiceType(string(st)); err != nil || parsed != st {
			t.Errorf("ParseServiceType(%q) = %v, %v", st, parsed, err)
		}
	}
	if _, err := ParseServiceType("ftp"); err == nil {
		t.Error("expected error for unknown service type")
	}
}
