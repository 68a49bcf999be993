package scconfig

import (
	"errors"
	"testing"
)

func TestParse_ValidMinimal(t *testing.T) {
	got, err := Parse(`[{"writeBufferEnabled": true}]`)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("len(got) = %d, want 1", len(got))
	}
	want := Options{WriteBufferEnabled: true, TemporaryFileSystemSize: 104857600}
	if got[0] != want {
		t.Errorf("got %+v, want %+v", got[0], want)
	}
}

func TestParse_FullySpecified(t *testing.T) {
	got, err := Parse(`[{"writeBufferEnabled": true, "temporaryFileSystemWriteBufferEnabled": true, "temporaryFileSystemSize": 4096}]`)
	if err != nil {
		t.Fatal(err)
	}
	want := Options{WriteBufferEnabled: true, TemporaryFileSystemWriteBufferEnabled: true, TemporaryFileSystemSize: 4096}
	if got[0] != want {
		t.Errorf("got %+v, want %+v", got[0], want)
	}
}

func TestParse_WriteBufferDisabled_LeavesTmpfsAtDefaults(t *testing.T) {
	got, err := Parse(`[{"writeBufferEnabled": false}]`)
	if err != nil {
		t.Fatal(err)
	}
	want := Options{WriteBufferEnabled: false, TemporaryFileSystemSize: 104857600}
	if got[0] != want {
		t.Errorf("got %+v, want %+v", got[0], want)
	}
}

func TestParse_MissingRequiredKey(t *testing.T) {
	_, err := Parse(`[{"WRONG": true}]`)
	var invalid *InvalidConfigError
	if !errors.As(err, &invalid) {
		t.Fatalf("err = %v, want *InvalidConfigError", err)
	}
	if invalid.Detail != "missing:writeBufferEnabled" {
		t.Errorf("Detail = %q", invalid.Detail)
	}
}

func TestParse_EmptyString(t *testing.T) {
	_, err := Parse("")
	var invalid *InvalidConfigError
	if !errors.As(err, &invalid) || invalid.Detail != "empty" {
		t.Fatalf("err = %v, want InvalidConfigError{empty}", err)
	}
}

func TestParse_EmptyArrayIsNotAnError(t *testing.T) {
	got, err := Parse(`[]`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("len(got) = %d, want 0", len(got))
	}
}

func TestParse_RootNotAnArray(t *testing.T) {
	_, err := Parse(`{"writeBufferEnabled": true}`)
	var invalid *InvalidConfigError
	if !errors.As(err, &invalid) {
		t.Fatalf("err = %v, want *InvalidConfigError", err)
	}
}

func TestParse_ElementNotAnObject(t *testing.T) {
	_, err := Parse(`[42]`)
	var invalid *InvalidConfigError
	if !errors.As(err, &invalid) {
		t.Fatalf("err = %v, want *InvalidConfigError", err)
	}
}

func TestParse_UnknownKeyIgnored(t *testing.T) {
	got, err := Parse(`[{"writeBufferEnabled": true, "extra": 1}]`)
	if err != nil {
		t.Fatal(err)
	}
	if !got[0].WriteBufferEnabled {
		t.Errorf("got %+v", got[0])
	}
}

func TestParseYAML_Valid(t *testing.T) {
	got, err := ParseYAML("- writeBufferEnabled: true\n")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || !got[0].WriteBufferEnabled {
		t.Errorf("got %+v", got)
	}
}
