package ml

import (
	"slices"
	"strings"
	"testing"
)

type fakeBackend struct{ Backend }

func (fakeBackend) Name() string { return "fake" }

func TestRegisterBackend(t *testing.T) {
	RegisterBackend("test-fake", func(BackendParams) (Backend, error) {
		return fakeBackend{}, nil
	})

	if !slices.Contains(Backends(), "test-fake") {
		t.Fatalf("Backends() = %v, want test-fake", Backends())
	}

	b, err := NewBackend("test-fake", BackendParams{})
	if err != nil {
		t.Fatal(err)
	}
	if b.Name() != "fake" {
		t.Errorf("Name() = %q", b.Name())
	}

	t.Run("duplicate", func(t *testing.T) {
		defer func() {
			if recover() == nil {
				t.Error("doppelte Registrierung sollte paniken")
			}
		}()
		RegisterBackend("test-fake", func(BackendParams) (Backend, error) { return nil, nil })
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := NewBackend("does-not-exist", BackendParams{})
		if err == nil || !strings.Contains(err.Error(), "test-fake") {
			t.Errorf("NewBackend() error = %v, want list of available backends", err)
		}
	})
}

func TestParseDType(t *testing.T) {
	for _, dt := range []DType{DTypeF32, DTypeF16, DTypeI32, DTypeU8, DTypeI64, DTypeBool, DTypeI16, DTypeI8, DTypeF64, DTypeBF16} {
		got, err := ParseDType(dt.String())
		if err != nil || got != dt {
			t.Errorf("ParseDType(%q) = %v, %v", dt.String(), got, err)
		}
	}

	if _, err := ParseDType("c64"); err == nil {
		t.Error("ParseDType(c64) sollte fehlschlagen")
	}
}

func TestDTypeSize(t *testing.T) {
	cases := map[DType]int{
		DTypeF32: 4, DTypeF16: 2, DTypeI8: 1, DTypeU8: 1, DTypeI64: 8, DTypeF64: 8, DTypeBF16: 2,
	}
	for dt, want := range cases {
		if got := dt.Size(); got != want {
			t.Errorf("%s.Size() = %d, want %d", dt, got, want)
		}
	}
}

func TestNodeOpName(t *testing.T) {
	cases := []struct {
		node Node
		want string
	}{
		{Node{BuiltinName: "CONV_2D"}, "CONV_2D"},
		{Node{CustomName: "TfLiteGpuDelegateV2", Delegated: true}, "TfLiteGpuDelegateV2"},
		{Node{BuiltinName: "ADD", CustomName: "ignored"}, "ADD"},
		{Node{}, "UNKNOWN"},
	}

	for _, c := range cases {
		if got := c.node.OpName(); got != c.want {
			t.Errorf("OpName(%+v) = %q, want %q", c.node, got, c.want)
		}
	}
}
