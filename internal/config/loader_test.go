package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestGetString(t *testing.T) {
	cases := []struct {
		name     string
		value    *string
		def      string
		required bool
		want     string
		wantErr  bool
	}{
		{name: "set", value: ptr("hello"), want: "hello"},
		{name: "unset uses default", def: "fallback", want: "fallback"},
		{name: "unset required fails", required: true, wantErr: true},
		{name: "empty required fails", value: ptr(""), required: true, wantErr: true},
		{name: "whitespace trimmed", value: ptr("  padded  "), want: "padded"},
	}

	loader := &Loader{}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			key := "JASTON_TEST_STRING"
			os.Unsetenv(key)
			if tc.value != nil {
				t.Setenv(key, *tc.value)
			}
			got, err := loader.GetString(key, tc.def, tc.required)
			assertValidation(t, err, tc.wantErr, key)
			if !tc.wantErr && got != tc.want {
				t.Fatalf("GetString() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestGetInt(t *testing.T) {
	cases := []struct {
		name     string
		value    *string
		def      int
		required bool
		want     int
		wantErr  bool
	}{
		{name: "valid integer", value: ptr("42"), want: 42},
		{name: "negative integer", value: ptr("-7"), want: -7},
		{name: "unset uses default", def: 99, want: 99},
		{name: "unset required fails", required: true, wantErr: true},
		{name: "non-integer fails", value: ptr("abc"), wantErr: true},
		{name: "float fails", value: ptr("3.14"), wantErr: true},
	}

	loader := &Loader{}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			key := "JASTON_TEST_INT"
			os.Unsetenv(key)
			if tc.value != nil {
				t.Setenv(key, *tc.value)
			}
			got, err := loader.GetInt(key, tc.def, tc.required)
			assertValidation(t, err, tc.wantErr, key)
			if !tc.wantErr && got != tc.want {
				t.Fatalf("GetInt() = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestGetBool(t *testing.T) {
	cases := []struct {
		name    string
		value   string
		want    bool
		wantErr bool
	}{
		{name: "true", value: "true", want: true},
		{name: "yes", value: "yes", want: true},
		{name: "one", value: "1", want: true},
		{name: "on", value: "ON", want: true},
		{name: "false", value: "false", want: false},
		{name: "off", value: "off", want: false},
		{name: "zero", value: "0", want: false},
		{name: "garbage fails", value: "maybe", wantErr: true},
	}

	loader := &Loader{}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			key := "JASTON_TEST_BOOL"
			t.Setenv(key, tc.value)
			got, err := loader.GetBool(key, false, false)
			assertValidation(t, err, tc.wantErr, key)
			if !tc.wantErr && got != tc.want {
				t.Fatalf("GetBool(%q) = %v, want %v", tc.value, got, tc.want)
			}
		})
	}
}

func TestGetList(t *testing.T) {
	cases := []struct {
		name  string
		value string
		want  []string
	}{
		{name: "single item", value: "localhost", want: []string{"localhost"}},
		{name: "multiple items", value: "a,b,c", want: []string{"a", "b", "c"}},
		{name: "trims whitespace", value: " a , b ", want: []string{"a", "b"}},
		{name: "drops empty entries", value: "a,,b,", want: []string{"a", "b"}},
	}

	loader := &Loader{}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			key := "JASTON_TEST_LIST"
			t.Setenv(key, tc.value)
			got, err := loader.GetList(key, nil, false)
			if err != nil {
				t.Fatalf("GetList() error: %v", err)
			}
			if len(got) != len(tc.want) {
				t.Fatalf("GetList() = %v, want %v", got, tc.want)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Fatalf("GetList()[%d] = %q, want %q", i, got[i], tc.want[i])
				}
			}
		})
	}
}

func TestNewLoaderReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("JASTON_TEST_DOTENV=from-file\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	os.Unsetenv("JASTON_TEST_DOTENV")
	t.Cleanup(func() { os.Unsetenv("JASTON_TEST_DOTENV") })

	loader, err := NewLoader(path)
	if err != nil {
		t.Fatalf("NewLoader() error: %v", err)
	}
	got, err := loader.GetString("JASTON_TEST_DOTENV", "", true)
	if err != nil {
		t.Fatalf("GetString() error: %v", err)
	}
	if got != "from-file" {
		t.Fatalf("GetString() = %q, want %q", got, "from-file")
	}
}

func TestNewLoaderMissingFileIsNotAnError(t *testing.T) {
	if _, err := NewLoader(filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Fatalf("NewLoader() error for missing file: %v", err)
	}
}

func assertValidation(t *testing.T, err error, wantErr bool, key string) {
	t.Helper()
	if !wantErr {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		return
	}
	if err == nil {
		t.Fatal("expected a ValidationError, got nil")
	}
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %T: %v", err, err)
	}
	if verr.Key != key {
		t.Fatalf("ValidationError.Key = %q, want %q", verr.Key, key)
	}
}

func ptr(s string) *string { return &s }
