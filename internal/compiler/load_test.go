package compiler

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/editledger/internal/entity"
)

func TestLoadDir(t *testing.T) {
	result, errs := LoadDir("testdata/types", LoadModeCollectAll)
	require.Empty(t, errs)

	assert.Equal(t, 1, result.FileCount)
	require.Len(t, result.Types, 2)

	byName := map[string]entity.TypeSpec{}
	for _, spec := range result.Types {
		byName[spec.Name] = spec
	}
	assert.Equal(t, 30*time.Minute, byName["project"].MergeWindow)
	assert.Len(t, byName["project"].Keys, 10)
	assert.Len(t, byName["organization"].Counters, 1)
}

func TestLoadDirMatchesBuiltins(t *testing.T) {
	reg, err := LoadRegistry("testdata/types")
	require.NoError(t, err)

	builtin, err := entity.NewRegistry(entity.BuiltinTypes()...)
	require.NoError(t, err)

	assert.Equal(t, builtin.Names(), reg.Names())
	for _, name := range builtin.Names() {
		want, _ := builtin.Lookup(name)
		got, _ := reg.Lookup(name)
		assert.Equal(t, want.Spec(), got.Spec(), name)
	}
}

func TestLoadDirCollectAll(t *testing.T) {
	_, errs := LoadDir("testdata/broken", LoadModeCollectAll)
	require.Len(t, errs, 3)

	var codes []string
	for _, err := range errs {
		var loadErr *LoadError
		require.ErrorAs(t, err, &loadErr)
		codes = append(codes, loadErr.Code)
	}
	assert.ElementsMatch(t, []string{ErrTypeNoKeys, ErrInvalidMergeWindow, ErrUnknownTargetType}, codes)
}

func TestLoadDirFailFast(t *testing.T) {
	_, errs := LoadDir("testdata/broken", LoadModeFailFast)
	require.Len(t, errs, 1)
}

func TestLoadDirErrors(t *testing.T) {
	tests := []struct {
		name string
		dir  string
		code string
	}{
		{"missing", filepath.Join(t.TempDir(), "nope"), ErrCodeNotFound},
		{"no files", t.TempDir(), ErrCodeNoFiles},
		{"no types", "testdata/empty", ErrCodeNoTypes},
		{"file not dir", "testdata/types/directory.cue", ErrCodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, errs := LoadDir(tt.dir, LoadModeCollectAll)
			require.Len(t, errs, 1)
			var loadErr *LoadError
			require.ErrorAs(t, errs[0], &loadErr)
			assert.Equal(t, tt.code, loadErr.Code)
		})
	}
}

func TestLoadRegistryError(t *testing.T) {
	_, err := LoadRegistry("testdata/broken")
	require.Error(t, err)
}

func TestLoadErrorFormat(t *testing.T) {
	err := &LoadError{Code: ErrCodeNoFiles, Message: "no CUE files found in x"}
	assert.Equal(t, "E003: no CUE files found in x", err.Error())
}
