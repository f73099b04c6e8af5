package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
}

func TestModulePath(t *testing.T) {
	root := t.TempDir()

	specs := []struct {
		goMod     string
		expModule string
	}{
		{"// kernel\nmodule example.com/os\n\ngo 1.24\n", "example.com/os"},
		{"module example.com/os // kernel\n\ngo 1.24\n", "example.com/os"},
		{"module \"example.com/os\"\n", "example.com/os"},
	}

	for specIndex, spec := range specs {
		writeFile(t, filepath.Join(root, "go.mod"), spec.goMod)

		module, err := modulePath(root)
		require.NoError(t, err, "spec %d", specIndex)
		assert.Equal(t, spec.expModule, module, "spec %d", specIndex)
	}

	writeFile(t, filepath.Join(root, "go.mod"), "go 1.24\n")
	_, err := modulePath(root)
	assert.Error(t, err)

	_, err = modulePath(filepath.Join(root, "missing"))
	assert.Error(t, err)
}

func TestLoadRedirects(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "go.mod"), "module example.com/os\n")
	writeFile(t, filepath.Join(root, "kernel", "kfmt", "panic.go"), `package kfmt

// Panic halts the CPU.
//
//go:redirect-from runtime.gopanic
func Panic(e interface{}) {}

func helper() {}
`)
	writeFile(t, filepath.Join(root, "kernel", "kfmt", "panic_test.go"), `package kfmt

//go:redirect-from runtime.ignored
func testHelper() {}
`)
	writeFile(t, filepath.Join(root, "kernel", "mm", "alloc.go"), `package mm

//go:redirect-from runtime.mallocgc
func alloc() {}
`)

	redirects, err := loadRedirects(root)
	require.NoError(t, err)
	require.Len(t, redirects, 2)

	got := map[string]string{}
	for _, r := range redirects {
		got[r.src] = r.dst
	}

	assert.Equal(t, map[string]string{
		"runtime.gopanic":  "example.com/os/kernel/kfmt.Panic",
		"runtime.mallocgc": "example.com/os/kernel/mm.alloc",
	}, got)
}

func TestLoadRedirectsErrors(t *testing.T) {
	t.Run("malformed directive", func(t *testing.T) {
		root := t.TempDir()
		writeFile(t, filepath.Join(root, "go.mod"), "module example.com/os\n")
		writeFile(t, filepath.Join(root, "kernel", "bad.go"), `package kernel

//go:redirect-from runtime.a runtime.b
func Bad() {}
`)

		_, err := loadRedirects(root)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "malformed go:redirect-from syntax")
	})

	t.Run("missing kernel folder", func(t *testing.T) {
		root := t.TempDir()
		writeFile(t, filepath.Join(root, "go.mod"), "module example.com/os\n")

		_, err := loadRedirects(root)
		assert.Error(t, err)
	})

	t.Run("syntax error", func(t *testing.T) {
		root := t.TempDir()
		writeFile(t, filepath.Join(root, "go.mod"), "module example.com/os\n")
		writeFile(t, filepath.Join(root, "kernel", "broken.go"), "package kernel\nfunc {")

		_, err := loadRedirects(root)
		assert.Error(t, err)
	})
}

func TestElfRedirectTableOffsetErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kernel.bin")
	writeFile(t, path, "not an elf file")

	_, err := elfRedirectTableOffset(path)
	assert.Error(t, err)

	assert.Error(t, elfResolveRedirectSymbols(nil, path))
}
