/*
 * Copyright 2025 The RuleGo Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */
package fs

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFile(t *testing.T) {
	tempDir := t.TempDir()
	testFilePath := filepath.Join(tempDir, "testfile.txt")
	testData := []byte("hello world")
	require.Nil(t, os.WriteFile(testFilePath, testData, 0644))

	assert.Equal(t, testData, LoadFile(testFilePath))
	assert.Nil(t, LoadFile(filepath.Join(tempDir, "nonexistent.txt")))
}

func TestGetFilePaths(t *testing.T) {
	tempDir := t.TempDir()
	require.Nil(t, os.MkdirAll(filepath.Join(tempDir, "sub"), 0755))
	require.Nil(t, os.MkdirAll(filepath.Join(tempDir, "skip"), 0755))
	for _, name := range []string{"a.json", "b.txt", "sub/c.json", "skip/d.json"} {
		require.Nil(t, os.WriteFile(filepath.Join(tempDir, name), []byte("{}"), 0644))
	}

	paths, err := GetFilePaths(filepath.Join(tempDir, "*.json"), "skip")
	require.Nil(t, err)
	sort.Strings(paths)
	assert.Equal(t, []string{filepath.Join(tempDir, "a.json"), filepath.Join(tempDir, "sub", "c.json")}, paths)

	_, err = GetFilePaths(filepath.Join(tempDir, "missing", "*.json"))
	assert.Error(t, err)
}
